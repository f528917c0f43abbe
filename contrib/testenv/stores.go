// Package testenv provides helpers for running the store tests against real
// SurrealDB and Redis servers, and a deterministic slog handler for examples.
//
// Servers are found through the same environment variables the stores read
// (SURREALDB_URL and friends, REDIS_ADDR and friends). Tests that need a
// server are skipped when its address variable is unset.
package testenv

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/surrealgeo/pkg/store/redisstore"
	"github.com/surrealdb/surrealgeo/pkg/store/surrealstore"
)

const setupTimeout = 10 * time.Second

func uniqueSuffix(t testing.TB) string {
	t.Helper()
	id, err := uuid.NewV4()
	require.NoError(t, err)
	return id.String()[:8]
}

// SurrealDBConfig returns the surrealstore configuration from the
// environment, with a table of its own so that tests do not share records.
// It skips t when SURREALDB_URL is unset.
func SurrealDBConfig(t testing.TB) *surrealstore.Config {
	t.Helper()
	if os.Getenv(surrealstore.EnvURL) == "" {
		t.Skipf("%s is not set", surrealstore.EnvURL)
	}
	conf := surrealstore.ConfigFromEnv()
	conf.Table = conf.Table + "_" + uniqueSuffix(t)
	return conf
}

// SurrealDBStore opens a surrealstore.Store against the configured server.
func SurrealDBStore(t testing.TB) *surrealstore.Store {
	t.Helper()
	conf := SurrealDBConfig(t)

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()
	s, err := surrealstore.Open(ctx, conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

// RedisConfig returns the redisstore configuration from the environment, with
// a key prefix of its own. It skips t when REDIS_ADDR is unset.
func RedisConfig(t testing.TB) *redisstore.Config {
	t.Helper()
	if os.Getenv(redisstore.EnvAddr) == "" {
		t.Skipf("%s is not set", redisstore.EnvAddr)
	}
	conf, err := redisstore.ConfigFromEnv()
	require.NoError(t, err)
	conf.Prefix = conf.Prefix + "test:" + uniqueSuffix(t) + ":"
	return conf
}

// RedisStore opens a redisstore.Store against the configured server and
// deletes its keys when t finishes.
func RedisStore(t testing.TB) *redisstore.Store {
	t.Helper()
	conf := RedisConfig(t)

	rdb := redis.NewClient(&redis.Options{Addr: conf.Addr, Password: conf.Password, DB: conf.DB})
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()
	require.NoError(t, rdb.Ping(ctx).Err())

	s := redisstore.New(rdb, conf.Prefix, conf.Logger)
	t.Cleanup(func() {
		_ = s.Close()
		deleteKeys(context.Background(), rdb, conf.Prefix+"*")
		_ = rdb.Close()
	})
	return s
}

func deleteKeys(ctx context.Context, rdb *redis.Client, pattern string) {
	iter := rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		_ = rdb.Del(ctx, iter.Val()).Err()
	}
}
