package redisstore

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/surrealgeo/pkg/geohash"
	"github.com/surrealdb/surrealgeo/pkg/store"
	"github.com/surrealdb/surrealgeo/pkg/store/storetest"
)

func TestIndexMember(t *testing.T) {
	doc := storetest.Document(t, "bus|7:a", 37.7853889, -122.4056973)

	m := indexMember(doc)
	assert.True(t, len(m) > len(doc.Geohash) && m[:len(doc.Geohash)] == doc.Geohash)

	got, err := parseMember(m)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	_, err = parseMember("9q8yy")
	assert.Error(t, err)
	_, err = parseMember("9q8yy\x00x\x000\x00id")
	assert.Error(t, err)
}

func TestIndexMemberOrdering(t *testing.T) {
	// Members must fall inside a range exactly when their geohash does,
	// including when the geohash is a prefix of a bound.
	r := geohash.Range{Start: "9q8yy", End: "9q8yz"}
	for _, tc := range []struct {
		g    string
		want bool
	}{
		{"9q8yy", true},
		{"9q8yyk8ytp", true},
		{"9q8yx", false},
		{"9q8y", false},
		{"9q8yz", false},
		{"9q8yz0", false},
	} {
		m := indexMember(store.Document{ID: "id", Geohash: tc.g})
		in := m >= r.Start && m < r.End
		assert.Equal(t, tc.want, in, tc.g)
		assert.Equal(t, r.Contains(tc.g), in, tc.g)
	}
}

func TestDecodeEvent(t *testing.T) {
	payload, err := json.Marshal(map[string]any{
		"op": "set", "id": "bus", "g": "9q8yyk8ytp", "prev_g": "9q8yyk8ytn",
		"lat": "37.7853889", "lon": "-122.4056973", "rev": 12,
	})
	require.NoError(t, err)

	e, err := decodeEvent(string(payload))
	require.NoError(t, err)
	assert.Equal(t, uint64(12), e.Rev)

	prev, cur, err := e.documents()
	require.NoError(t, err)
	assert.Equal(t, &store.Document{ID: "bus", Geohash: "9q8yyk8ytn"}, prev)
	require.NotNil(t, cur)
	assert.Equal(t, 37.7853889, cur.Location.Latitude)

	e, err = decodeEvent(`{"op":"del","id":"bus","prev_g":"9q8yyk8ytp","rev":13}`)
	require.NoError(t, err)
	prev, cur, err = e.documents()
	require.NoError(t, err)
	assert.NotNil(t, prev)
	assert.Nil(t, cur)

	_, err = decodeEvent(`{"op":"rename","id":"bus"}`)
	assert.Error(t, err)
	_, err = decodeEvent(`not json`)
	assert.Error(t, err)

	e, err = decodeEvent(`{"op":"set","id":"bus","g":"9q8yyk8ytp","lat":"95","lon":"0","rev":1}`)
	require.NoError(t, err)
	_, _, err = e.documents()
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	s := New(nil, "fleet:", nil)
	assert.Equal(t, "fleet:loc:bus", s.locationKey("bus"))
	assert.Equal(t, "fleet:index", s.indexKey())
	assert.Equal(t, "fleet:rev", s.revKey())
	assert.Equal(t, "fleet:changes", s.channel())
	assert.Equal(t, 0, s.hub.count())
}

func TestConfig(t *testing.T) {
	t.Setenv(EnvAddr, "redis:6380")
	t.Setenv(EnvDB, "2")
	t.Setenv(EnvPrefix, "")

	c, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "redis:6380", c.Addr)
	assert.Equal(t, 2, c.DB)
	assert.Equal(t, DefaultPrefix, c.Prefix)
	assert.Equal(t, "redis:6380", c.options().Addr)

	t.Setenv(EnvDB, "two")
	_, err = ConfigFromEnv()
	assert.Error(t, err)

	t.Setenv(EnvDB, "-1")
	_, err = ConfigFromEnv()
	assert.Error(t, err)
}
