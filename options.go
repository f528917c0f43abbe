package surrealgeo

import (
	"log/slog"
	"os"
	"time"

	"github.com/surrealdb/surrealgeo/pkg/geohash"
	"github.com/surrealdb/surrealgeo/pkg/logger"
	"github.com/surrealdb/surrealgeo/pkg/store"
)

type Option func(*GeoStore)

// WithLogger replaces the default text logger on stderr.
func WithLogger(l logger.Logger) Option {
	return func(g *GeoStore) {
		g.logger = l
	}
}

// WithPrecision sets the number of geohash characters written to the "g"
// field. Every writer and query of one collection must agree on it.
func WithPrecision(precision int) Option {
	return func(g *GeoStore) {
		g.precision = precision
	}
}

func WithMetrics(m Metrics) Option {
	return func(g *GeoStore) {
		g.metrics = m
	}
}

// WithWatchErrorHandler registers fn to be called, on the delivery goroutine,
// whenever the initial load of a range watch fails. The range stays
// outstanding and the query does not become ready.
func WithWatchErrorHandler(fn func(q store.RangeQuery, err error)) Option {
	return func(g *GeoStore) {
		g.onWatchError = fn
	}
}

func defaultOptions(g *GeoStore) {
	g.precision = geohash.DefaultPrecision
	g.logger = logger.New(slog.NewTextHandler(os.Stderr, nil))
	g.metrics = nopMetrics{}
}

// Metrics receives engine events. pkg/metrics provides a Prometheus collector.
type Metrics interface {
	WatchStarted()
	WatchStopped()
	EventDispatched(kind string)
	Ready(elapsed time.Duration)
	EntitiesTracked(delta int)
}

type nopMetrics struct{}

func (nopMetrics) WatchStarted() {}
func (nopMetrics) WatchStopped() {}
func (nopMetrics) EventDispatched(string) {}
func (nopMetrics) Ready(time.Duration) {}
func (nopMetrics) EntitiesTracked(int) {}
