package connection

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/surrealdb/surrealgeo/internal/codec"
	"github.com/surrealdb/surrealgeo/pkg/logger"
	"github.com/surrealdb/surrealgeo/pkg/models"
)

// Config describes how to reach a SurrealDB RPC endpoint.
type Config struct {
	URL         url.URL
	BaseURL     string
	Marshaler   codec.Marshaler
	Unmarshaler codec.Unmarshaler
	Logger      logger.Logger
	// Timeout bounds the wait for each response. Zero leaves it to the
	// caller's context.
	Timeout time.Duration
}

// NewConfig creates a Config for the endpoint u, such as
// "ws://localhost:8000". Any path on u is ignored; requests go to /rpc.
func NewConfig(u *url.URL) *Config {
	c := models.NewCodec()
	return &Config{
		URL:         *u,
		Marshaler:   c,
		Unmarshaler: c,
		BaseURL:     fmt.Sprintf("%s://%s", u.Scheme, u.Host),
		Logger:      logger.New(slog.NewTextHandler(os.Stderr, nil)),
		Timeout:     DefaultTimeout,
	}
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return ErrNoBaseURL
	}
	if c.Marshaler == nil {
		return ErrNoMarshaler
	}
	if c.Unmarshaler == nil {
		return ErrNoUnmarshaler
	}
	switch c.URL.Scheme {
	case WebsocketScheme, SecureWebsocketScheme, "":
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedScheme, c.URL.Scheme)
	}
	return nil
}
