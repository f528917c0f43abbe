package surrealstore

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/surrealdb/surrealgeo/internal/envutil"
	"github.com/surrealdb/surrealgeo/pkg/connection"
	"github.com/surrealdb/surrealgeo/pkg/logger"
)

const (
	EnvURL       = "SURREALDB_URL"
	EnvNamespace = "SURREALDB_NAMESPACE"
	EnvDatabase  = "SURREALDB_DATABASE"
	EnvTable     = "SURREALDB_TABLE"
	EnvUser      = "SURREALDB_USER"
	EnvPass      = "SURREALDB_PASS"

	DefaultURL   = "ws://localhost:8000"
	DefaultTable = "locations"
)

// Config holds the settings needed to open a Store.
type Config struct {
	// URL is the SurrealDB endpoint, such as "ws://localhost:8000".
	URL       string
	Namespace string
	Database  string
	// Table holds one record per entity with fields g and l.
	Table string
	// Username and Password sign in as a root or system user. Leave Username
	// empty to skip signin.
	Username string
	Password string
	// Timeout bounds each RPC request.
	Timeout time.Duration
	Logger  logger.Logger
}

// NewConfig returns a Config with defaults suitable for a local server.
func NewConfig() *Config {
	return &Config{
		URL:       DefaultURL,
		Namespace: "surrealgeo",
		Database:  "surrealgeo",
		Table:     DefaultTable,
		Username:  "root",
		Password:  "root",
		Timeout:   connection.DefaultTimeout,
	}
}

// ConfigFromEnv returns NewConfig overridden by the SURREALDB_* variables.
func ConfigFromEnv() *Config {
	c := NewConfig()
	c.URL = envutil.GetEnvOrDefault(EnvURL, c.URL)
	c.Namespace = envutil.GetEnvOrDefault(EnvNamespace, c.Namespace)
	c.Database = envutil.GetEnvOrDefault(EnvDatabase, c.Database)
	c.Table = envutil.GetEnvOrDefault(EnvTable, c.Table)
	c.Username = envutil.GetEnvOrDefault(EnvUser, c.Username)
	c.Password = envutil.GetEnvOrDefault(EnvPass, c.Password)
	return c
}

// Validate checks that the configuration is complete.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != connection.WebsocketScheme && u.Scheme != connection.SecureWebsocketScheme {
		return fmt.Errorf("url scheme must be ws or wss, got %q", u.Scheme)
	}
	if c.Namespace == "" {
		return errors.New("namespace is required")
	}
	if c.Database == "" {
		return errors.New("database is required")
	}
	if c.Table == "" {
		return errors.New("table is required")
	}
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	return nil
}
