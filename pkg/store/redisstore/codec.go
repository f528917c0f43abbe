package redisstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/surrealdb/surrealgeo/pkg/geo"
	"github.com/surrealdb/surrealgeo/pkg/store"
)

// memberSep sorts below every geohash character, so a member sorts exactly
// where its geohash does.
const memberSep = "\x00"

// indexMember encodes doc as a sorted set member: geohash, latitude,
// longitude and id. Lexicographic ranges over members are ranges over
// geohashes.
func indexMember(doc store.Document) string {
	return strings.Join([]string{
		doc.Geohash,
		formatCoordinate(doc.Location.Latitude),
		formatCoordinate(doc.Location.Longitude),
		doc.ID,
	}, memberSep)
}

func parseMember(m string) (store.Document, error) {
	parts := strings.SplitN(m, memberSep, 4)
	if len(parts) != 4 {
		return store.Document{}, fmt.Errorf("malformed index member %q", m)
	}
	return document(parts[3], parts[0], parts[1], parts[2])
}

func document(id, g, lat, lon string) (store.Document, error) {
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return store.Document{}, fmt.Errorf("latitude of %q: %w", id, err)
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return store.Document{}, fmt.Errorf("longitude of %q: %w", id, err)
	}
	p, ok := geo.PointFromCoordinates([]float64{la, lo})
	if !ok || g == "" {
		return store.Document{}, fmt.Errorf("record %q has no valid location", id)
	}
	return store.Document{ID: id, Location: p, Geohash: g}, nil
}

func formatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

const (
	opSet = "set"
	opDel = "del"
)

// event is the change message published by the write scripts.
type event struct {
	Op    string `json:"op"`
	ID    string `json:"id"`
	G     string `json:"g,omitempty"`
	PrevG string `json:"prev_g,omitempty"`
	Lat   string `json:"lat,omitempty"`
	Lon   string `json:"lon,omitempty"`
	Rev   uint64 `json:"rev"`
}

func decodeEvent(payload string) (event, error) {
	var e event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return event{}, err
	}
	if e.ID == "" || (e.Op != opSet && e.Op != opDel) {
		return event{}, fmt.Errorf("malformed change event %q", payload)
	}
	return e, nil
}

// documents returns the sides of the write as seen by a range watch. Only
// the geohash of the previous side is known.
func (e event) documents() (prev, cur *store.Document, err error) {
	if e.PrevG != "" {
		prev = &store.Document{ID: e.ID, Geohash: e.PrevG}
	}
	if e.Op == opSet {
		doc, err := document(e.ID, e.G, e.Lat, e.Lon)
		if err != nil {
			return nil, nil, err
		}
		cur = &doc
	}
	return prev, cur, nil
}
