package surrealgeo

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealgeo/pkg/geo"
	"github.com/surrealdb/surrealgeo/pkg/geohash"
	"github.com/surrealdb/surrealgeo/pkg/logger"
	"github.com/surrealdb/surrealgeo/pkg/store"
)

// GeoStore writes locations to a store and creates queries over them.
type GeoStore struct {
	store        store.Store
	precision    int
	logger       logger.Logger
	metrics      Metrics
	onWatchError func(store.RangeQuery, error)

	dispatcher *dispatcher
}

func New(s store.Store, opts ...Option) (*GeoStore, error) {
	if s == nil {
		return nil, ErrNilStore
	}

	g := &GeoStore{store: s}
	defaultOptions(g)
	for _, opt := range opts {
		opt(g)
	}

	if err := geohash.ValidatePrecision(g.precision); err != nil {
		return nil, err
	}
	if g.logger == nil {
		g.logger = logger.Discard()
	}
	if g.metrics == nil {
		g.metrics = nopMetrics{}
	}

	g.dispatcher = newDispatcher(g.logger, g.metrics)
	return g, nil
}

// Precision returns the number of geohash characters written per location.
func (g *GeoStore) Precision() int {
	return g.precision
}

// SetLocation stores location for id, replacing the "g" and "l" fields only.
func (g *GeoStore) SetLocation(ctx context.Context, id string, location geo.Point) error {
	if id == "" {
		return ErrInvalidID
	}
	hash, err := geohash.Encode(location, g.precision)
	if err != nil {
		return err
	}

	doc := store.Document{ID: id, Location: location, Geohash: hash}
	if err := g.store.SetLocation(ctx, doc); err != nil {
		return fmt.Errorf("set location of %q: %w", id, err)
	}
	return nil
}

// Location returns the stored location of id, or an error wrapping ErrNotFound.
func (g *GeoStore) Location(ctx context.Context, id string) (geo.Point, error) {
	doc, err := g.store.Location(ctx, id)
	if err != nil {
		return geo.Point{}, fmt.Errorf("read location of %q: %w", id, err)
	}
	return doc.Location, nil
}

// RemoveLocation deletes id from the store. Queries that track it report it as
// exited once the store notifies them.
func (g *GeoStore) RemoveLocation(ctx context.Context, id string) error {
	if err := g.store.RemoveLocation(ctx, id); err != nil {
		return fmt.Errorf("remove location of %q: %w", id, err)
	}
	return nil
}

// QueryAtLocation returns a query for every record within radius kilometers of
// center.
func (g *GeoStore) QueryAtLocation(center geo.Point, radius float64) (*Query, error) {
	circle := geo.NewCircle(center, radius*metersPerKilometer)
	if err := circle.Validate(); err != nil {
		return nil, err
	}
	return newQuery(g, circle), nil
}

// QueryInRegion returns a query for every record inside r, edges included.
func (g *GeoStore) QueryInRegion(r geo.Rectangle) (*Query, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return newQuery(g, r), nil
}

const metersPerKilometer = 1000.0
