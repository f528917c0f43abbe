package redisstore

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/surrealdb/surrealgeo/internal/envutil"
	"github.com/surrealdb/surrealgeo/pkg/logger"
)

const (
	EnvAddr   = "REDIS_ADDR"
	EnvPass   = "REDIS_PASS"
	EnvDB     = "REDIS_DB"
	EnvPrefix = "REDIS_PREFIX"

	DefaultAddr   = "127.0.0.1:6379"
	DefaultPrefix = "surrealgeo:"
)

// Config holds the settings needed to open a Store.
type Config struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key and the change channel.
	Prefix string
	Logger logger.Logger
}

func NewConfig() *Config {
	return &Config{
		Addr:   DefaultAddr,
		Prefix: DefaultPrefix,
	}
}

// ConfigFromEnv returns NewConfig overridden by the REDIS_* variables.
func ConfigFromEnv() (*Config, error) {
	c := NewConfig()
	c.Addr = envutil.GetEnvOrDefault(EnvAddr, c.Addr)
	c.Password = envutil.GetEnvOrDefault(EnvPass, c.Password)
	c.Prefix = envutil.GetEnvOrDefault(EnvPrefix, c.Prefix)

	db, err := envutil.GetEnvIntOrDefault(EnvDB, c.DB)
	if err != nil {
		return nil, err
	}
	c.DB = db
	return c, c.Validate()
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.DB < 0 {
		return errors.New("db must not be negative")
	}
	if c.Prefix == "" {
		return errors.New("prefix is required")
	}
	return nil
}

func (c *Config) options() *redis.Options {
	return &redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB}
}
