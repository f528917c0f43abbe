// Package surrealstore implements store.Store on SurrealDB. Each entity is a
// record of one table with fields g (geohash) and l ([lat, lon]); range
// watches are LIVE SELECT queries on g.
package surrealstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/surrealdb/surrealgeo/pkg/connection"
	"github.com/surrealdb/surrealgeo/pkg/geo"
	"github.com/surrealdb/surrealgeo/pkg/logger"
	"github.com/surrealdb/surrealgeo/pkg/models"
	"github.com/surrealdb/surrealgeo/pkg/store"
)

const (
	upsertSQL = "UPSERT type::thing($tb, $id) MERGE { g: $g, l: $l } RETURN NONE"
	getSQL    = "SELECT * FROM ONLY type::thing($tb, $id)"
	deleteSQL = "DELETE type::thing($tb, $id) RETURN NONE"
	liveSQL   = "LIVE SELECT * FROM type::table($tb) WHERE g >= $start AND g < $end"
	rangeSQL  = "SELECT * FROM type::table($tb) WHERE g >= $start AND g < $end ORDER BY g"
	limitSQL  = " LIMIT $limit"

	killTimeout = 5 * time.Second
)

// Store is a store.Store backed by a SurrealDB connection.
type Store struct {
	conn   connection.Connection
	table  models.Table
	logger logger.Logger
}

var _ store.Store = (*Store)(nil)

// New wraps an established connection that already selected its namespace
// and database and signed in.
func New(conn connection.Connection, table string, l logger.Logger) *Store {
	if l == nil {
		l = logger.Discard()
	}
	return &Store{conn: conn, table: models.Table(table), logger: l}
}

// Open connects to SurrealDB as described by conf and returns a Store that
// owns the connection.
func Open(ctx context.Context, conf *Config) (*Store, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	u, err := url.Parse(conf.URL)
	if err != nil {
		return nil, err
	}
	connConf := connection.NewConfig(u)
	connConf.Timeout = conf.Timeout
	if conf.Logger != nil {
		connConf.Logger = conf.Logger
	}

	conn := connection.NewWebSocketConnection(connConf)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", conf.URL, err)
	}

	if err := connection.UseNamespace(ctx, conn, conf.Namespace, conf.Database); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("use %s/%s: %w", conf.Namespace, conf.Database, err)
	}
	if conf.Username != "" {
		if _, err := connection.SignInWith(ctx, conn, connection.Auth{
			Username: conf.Username,
			Password: conf.Password,
		}); err != nil {
			_ = conn.Close(ctx)
			return nil, fmt.Errorf("signin as %s: %w", conf.Username, err)
		}
	}

	return New(conn, conf.Table, conf.Logger), nil
}

// Close closes the underlying connection.
func (s *Store) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

func (s *Store) SetLocation(ctx context.Context, doc store.Document) error {
	if doc.ID == "" {
		return store.ErrInvalidID
	}
	_, err := connection.QueryAll[any](ctx, s.conn, upsertSQL, map[string]any{
		"tb": s.table,
		"id": doc.ID,
		"g":  doc.Geohash,
		"l":  doc.Location.Coordinates(),
	})
	return err
}

func (s *Store) Location(ctx context.Context, id string) (store.Document, error) {
	res, err := connection.QueryAll[*row](ctx, s.conn, getSQL, map[string]any{
		"tb": s.table,
		"id": id,
	})
	if err != nil {
		return store.Document{}, err
	}
	if len(res) == 0 || res[0].Result == nil {
		return store.Document{}, store.ErrNotFound
	}
	doc, ok := res[0].Result.document()
	if !ok {
		s.logger.Debug("record has no valid location", "entity_id", id)
		return store.Document{}, store.ErrNotFound
	}
	return doc, nil
}

func (s *Store) RemoveLocation(ctx context.Context, id string) error {
	_, err := connection.QueryAll[any](ctx, s.conn, deleteSQL, map[string]any{
		"tb": s.table,
		"id": id,
	})
	return err
}

func (s *Store) WatchRange(q store.RangeQuery, h store.Handler) store.Watch {
	ctx, cancel := context.WithCancel(context.Background())
	w := &watch{
		s:       s,
		q:       q,
		feed:    store.NewFeed(h),
		ctx:     ctx,
		cancel:  cancel,
		started: make(chan struct{}),
	}
	go w.run()
	return w
}

func (s *Store) selectRange(ctx context.Context, q store.RangeQuery) ([]store.Document, error) {
	sql := rangeSQL
	vars := map[string]any{
		"tb":    s.table,
		"start": q.Range.Start,
		"end":   q.Range.End,
	}
	if q.Limit > 0 {
		sql += limitSQL
		vars["limit"] = q.Limit
	}

	res, err := connection.QueryAll[[]row](ctx, s.conn, sql, vars)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, nil
	}

	docs := make([]store.Document, 0, len(res[0].Result))
	for _, r := range res[0].Result {
		doc, ok := r.document()
		if !ok {
			s.logger.Debug("skipping record without valid location", "entity_id", r.ID.Key())
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *Store) startLive(ctx context.Context, q store.RangeQuery) (models.UUID, error) {
	res, err := connection.QueryAll[models.UUID](ctx, s.conn, liveSQL, map[string]any{
		"tb":    s.table,
		"start": q.Range.Start,
		"end":   q.Range.End,
	})
	if err != nil {
		return models.UUID{}, err
	}
	if len(res) == 0 {
		return models.UUID{}, errors.New("live select returned no result")
	}
	return res[0].Result, nil
}

func (s *Store) kill(id models.UUID) {
	if err := s.conn.CloseLiveNotifications(id.String()); err != nil {
		s.logger.Debug("live notifications already closed", "live_id", id.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), killTimeout)
	defer cancel()
	if err := connection.KillLiveQuery(ctx, s.conn, id); err != nil {
		s.logger.Warn("failed to kill live query", "live_id", id.String(), "error", err)
	}
}

// row is a location record as returned by SurrealDB.
type row struct {
	ID models.RecordID `cbor:"id"`
	G  string          `cbor:"g"`
	L  []float64       `cbor:"l"`
}

func (r *row) document() (store.Document, bool) {
	p, ok := geo.PointFromCoordinates(r.L)
	if !ok || r.G == "" {
		return store.Document{}, false
	}
	return store.Document{ID: r.ID.Key(), Location: p, Geohash: r.G}, true
}
