// Package redisstore implements store.Store on Redis.
//
// Each entity is a hash holding g, lat, lon and its index member. A sorted
// set with all scores zero indexes the members so that ZRANGEBYLEX answers
// geohash range queries. Writes run as Lua scripts that also bump a revision
// counter and publish the change, so a watch can order its initial load
// against the live feed exactly.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/surrealdb/surrealgeo/pkg/logger"
	"github.com/surrealdb/surrealgeo/pkg/store"
)

var setScript = redis.NewScript(`
local prev = redis.call('HMGET', KEYS[1], 'g', 'm')
if prev[2] then
	redis.call('ZREM', KEYS[2], prev[2])
end
redis.call('HSET', KEYS[1], 'g', ARGV[2], 'lat', ARGV[3], 'lon', ARGV[4], 'm', ARGV[5])
redis.call('ZADD', KEYS[2], 0, ARGV[5])
local rev = redis.call('INCR', KEYS[3])
redis.call('PUBLISH', ARGV[6], cjson.encode({
	op = 'set', id = ARGV[1], g = ARGV[2], prev_g = prev[1] or '',
	lat = ARGV[3], lon = ARGV[4], rev = rev,
}))
return rev
`)

var removeScript = redis.NewScript(`
local prev = redis.call('HMGET', KEYS[1], 'g', 'm')
if not prev[1] then
	return 0
end
redis.call('ZREM', KEYS[2], prev[2])
redis.call('DEL', KEYS[1])
local rev = redis.call('INCR', KEYS[3])
redis.call('PUBLISH', ARGV[2], cjson.encode({op = 'del', id = ARGV[1], prev_g = prev[1], rev = rev}))
return rev
`)

// Store is a store.Store backed by Redis.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
	logger logger.Logger
	hub    *hub
	owned  bool
}

var _ store.Store = (*Store)(nil)

// New wraps an existing client. Keys and the change channel start with prefix.
func New(rdb redis.UniversalClient, prefix string, l logger.Logger) *Store {
	if l == nil {
		l = logger.Discard()
	}
	s := &Store{rdb: rdb, prefix: prefix, logger: l}
	s.hub = newHub(s)
	return s
}

// Open connects to Redis as described by conf and checks the connection.
func Open(ctx context.Context, conf *Config) (*Store, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	rdb := redis.NewClient(conf.options())
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping %s: %w", conf.Addr, err)
	}

	s := New(rdb, conf.Prefix, conf.Logger)
	s.owned = true
	return s, nil
}

// Close stops the change subscription and, for stores from Open, the client.
func (s *Store) Close() error {
	err := s.hub.close()
	if s.owned {
		err = errors.Join(err, s.rdb.Close())
	}
	return err
}

func (s *Store) locationKey(id string) string { return s.prefix + "loc:" + id }
func (s *Store) indexKey() string            { return s.prefix + "index" }
func (s *Store) revKey() string              { return s.prefix + "rev" }
func (s *Store) channel() string             { return s.prefix + "changes" }

func (s *Store) SetLocation(ctx context.Context, doc store.Document) error {
	if doc.ID == "" {
		return store.ErrInvalidID
	}
	keys := []string{s.locationKey(doc.ID), s.indexKey(), s.revKey()}
	return setScript.Run(ctx, s.rdb, keys,
		doc.ID,
		doc.Geohash,
		formatCoordinate(doc.Location.Latitude),
		formatCoordinate(doc.Location.Longitude),
		indexMember(doc),
		s.channel(),
	).Err()
}

func (s *Store) Location(ctx context.Context, id string) (store.Document, error) {
	vals, err := s.rdb.HMGet(ctx, s.locationKey(id), "g", "lat", "lon").Result()
	if err != nil {
		return store.Document{}, err
	}
	g, _ := vals[0].(string)
	lat, _ := vals[1].(string)
	lon, _ := vals[2].(string)
	if g == "" {
		return store.Document{}, store.ErrNotFound
	}

	doc, err := document(id, g, lat, lon)
	if err != nil {
		s.logger.Debug("record has no valid location", "entity_id", id, "error", err)
		return store.Document{}, store.ErrNotFound
	}
	return doc, nil
}

// RemoveLocation deletes id. Removing a missing record is not an error.
func (s *Store) RemoveLocation(ctx context.Context, id string) error {
	keys := []string{s.locationKey(id), s.indexKey(), s.revKey()}
	return removeScript.Run(ctx, s.rdb, keys, id, s.channel()).Err()
}

func (s *Store) WatchRange(q store.RangeQuery, h store.Handler) store.Watch {
	ctx, cancel := context.WithCancel(context.Background())
	return &watch{s: s, q: q, feed: store.NewFeed(h), ctx: ctx, cancel: cancel}
}

// snapshot reads the documents in q together with the revision they reflect.
func (s *Store) snapshot(ctx context.Context, q store.RangeQuery) ([]store.Document, uint64, error) {
	by := &redis.ZRangeBy{Min: "[" + q.Range.Start, Max: "(" + q.Range.End}
	if q.Limit > 0 {
		by.Count = int64(q.Limit)
	}

	var rev *redis.StringCmd
	var members *redis.StringSliceCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		rev = pipe.Get(ctx, s.revKey())
		members = pipe.ZRangeByLex(ctx, s.indexKey(), by)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, err
	}

	r, err := rev.Uint64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, fmt.Errorf("read revision: %w", err)
	}

	docs := make([]store.Document, 0, len(members.Val()))
	for _, m := range members.Val() {
		doc, err := parseMember(m)
		if err != nil {
			s.logger.Debug("skipping index member", "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, r, nil
}
