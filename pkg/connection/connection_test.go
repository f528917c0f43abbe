package connection

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionKeepsOrder(t *testing.T) {
	s := newSubscription()

	for _, a := range []Action{CreateAction, UpdateAction, DeleteAction} {
		s.push(Notification{Action: a})
	}

	var got []Action
	for i := 0; i < 3; i++ {
		select {
		case n := <-s.out:
			got = append(got, n.Action)
		case <-time.After(time.Second):
			t.Fatal("timed out")
		}
	}
	assert.Equal(t, []Action{CreateAction, UpdateAction, DeleteAction}, got)

	s.close()
	s.close()
	_, ok := <-s.out
	assert.False(t, ok)
}

func TestLiveNotificationsRegistry(t *testing.T) {
	u, err := url.Parse("ws://localhost:8000")
	require.NoError(t, err)
	ws := NewWebSocketConnection(NewConfig(u))

	ch, err := ws.LiveNotifications("live-1")
	require.NoError(t, err)

	_, err = ws.LiveNotifications("live-1")
	assert.ErrorIs(t, err, ErrIDInUse)

	require.NoError(t, ws.CloseLiveNotifications("live-1"))
	_, ok := <-ch
	assert.False(t, ok)
	assert.Error(t, ws.CloseLiveNotifications("live-1"))
}

func TestConfigValidate(t *testing.T) {
	u, err := url.Parse("http://localhost:8000")
	require.NoError(t, err)

	conf := NewConfig(u)
	assert.ErrorIs(t, conf.validate(), ErrUnsupportedScheme)

	conf.URL.Scheme = WebsocketScheme
	assert.NoError(t, conf.validate())

	conf.Marshaler = nil
	assert.ErrorIs(t, conf.validate(), ErrNoMarshaler)

	conf = &Config{}
	assert.ErrorIs(t, conf.validate(), ErrNoBaseURL)
}

func TestSendBeforeConnect(t *testing.T) {
	u, err := url.Parse("ws://localhost:8000")
	require.NoError(t, err)
	ws := NewWebSocketConnection(NewConfig(u))

	assert.ErrorIs(t, ws.Send(context.Background(), nil, "info"), ErrNotConnected)
	assert.ErrorIs(t, ws.Close(context.Background()), ErrNotConnected)
}

func TestNilOrTypedNil(t *testing.T) {
	var s *string
	assert.True(t, nilOrTypedNil(nil))
	assert.True(t, nilOrTypedNil(s))
	assert.False(t, nilOrTypedNil(new(string)))
	assert.False(t, nilOrTypedNil("x"))
}

func TestRPCError(t *testing.T) {
	err := error(&RPCError{Code: -32000, Message: "boom"})
	assert.EqualError(t, err, "boom")
	assert.ErrorIs(t, err, &RPCError{})

	err = &RPCError{Message: "boom", Description: "detailed"}
	assert.EqualError(t, err, "detailed")

	assert.EqualError(t, &QueryError{Statement: 1, Message: "bad"}, "statement 1 failed: bad")
}
