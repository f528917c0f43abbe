// Package connection is a minimal SurrealDB RPC client over WebSocket with
// CBOR encoding. It supports plain requests and live query notifications.
package connection

import (
	"context"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/surrealdb/surrealgeo/internal/codec"
	"github.com/surrealdb/surrealgeo/pkg/logger"
)

// Connection is the RPC surface used by the SurrealDB store.
type Connection interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	// Send issues method with params and decodes the result into dest.
	// dest may be nil to discard the result.
	Send(ctx context.Context, dest any, method string, params ...any) error
	// LiveNotifications returns the notifications of the live query id, in
	// the order the server sent them. The channel is closed by
	// CloseLiveNotifications or when the connection goes away.
	LiveNotifications(id string) (<-chan Notification, error)
	CloseLiveNotifications(id string) error
	GetUnmarshaler() codec.Unmarshaler
}

type BaseConnection struct {
	baseURL     string
	marshaler   codec.Marshaler
	unmarshaler codec.Unmarshaler
	logger      logger.Logger

	responseChannels     map[string]chan RPCResponse[cbor.RawMessage]
	responseChannelsLock sync.RWMutex

	notificationChannels     map[string]*subscription
	notificationChannelsLock sync.RWMutex
}

func newBaseConnection(conf *Config) BaseConnection {
	l := conf.Logger
	if l == nil {
		l = logger.Discard()
	}
	return BaseConnection{
		baseURL:              conf.BaseURL,
		marshaler:            conf.Marshaler,
		unmarshaler:          conf.Unmarshaler,
		logger:               l,
		responseChannels:     make(map[string]chan RPCResponse[cbor.RawMessage]),
		notificationChannels: make(map[string]*subscription),
	}
}

func (bc *BaseConnection) GetUnmarshaler() codec.Unmarshaler {
	return bc.unmarshaler
}

func (bc *BaseConnection) createResponseChannel(id string) (chan RPCResponse[cbor.RawMessage], error) {
	bc.responseChannelsLock.Lock()
	defer bc.responseChannelsLock.Unlock()

	if _, ok := bc.responseChannels[id]; ok {
		return nil, fmt.Errorf("%w: %v", ErrIDInUse, id)
	}

	// One slot so the reader never waits on a caller that already gave up.
	ch := make(chan RPCResponse[cbor.RawMessage], 1)
	bc.responseChannels[id] = ch

	return ch, nil
}

func (bc *BaseConnection) getResponseChannel(id string) (chan RPCResponse[cbor.RawMessage], bool) {
	bc.responseChannelsLock.RLock()
	defer bc.responseChannelsLock.RUnlock()
	ch, ok := bc.responseChannels[id]
	return ch, ok
}

func (bc *BaseConnection) removeResponseChannel(id string) {
	bc.responseChannelsLock.Lock()
	defer bc.responseChannelsLock.Unlock()
	delete(bc.responseChannels, id)
}

func (bc *BaseConnection) LiveNotifications(liveQueryID string) (<-chan Notification, error) {
	bc.notificationChannelsLock.Lock()
	defer bc.notificationChannelsLock.Unlock()

	if _, ok := bc.notificationChannels[liveQueryID]; ok {
		err := fmt.Errorf("%w: %v", ErrIDInUse, liveQueryID)
		bc.logger.Error(err.Error())
		return nil, err
	}

	s := newSubscription()
	bc.notificationChannels[liveQueryID] = s
	return s.out, nil
}

func (bc *BaseConnection) CloseLiveNotifications(liveQueryID string) error {
	bc.notificationChannelsLock.Lock()
	s, ok := bc.notificationChannels[liveQueryID]
	delete(bc.notificationChannels, liveQueryID)
	bc.notificationChannelsLock.Unlock()

	if !ok {
		return fmt.Errorf("no live query %q", liveQueryID)
	}
	s.close()
	return nil
}

func (bc *BaseConnection) getNotificationChannel(id string) (*subscription, bool) {
	bc.notificationChannelsLock.RLock()
	defer bc.notificationChannelsLock.RUnlock()
	s, ok := bc.notificationChannels[id]
	return s, ok
}

func (bc *BaseConnection) closeAllNotifications() {
	bc.notificationChannelsLock.Lock()
	subs := bc.notificationChannels
	bc.notificationChannels = make(map[string]*subscription)
	bc.notificationChannelsLock.Unlock()

	for _, s := range subs {
		s.close()
	}
}

// subscription buffers notifications without bound so that the socket reader
// never waits for a slow consumer.
type subscription struct {
	mu     sync.Mutex
	queue  []Notification
	wake   chan struct{}
	out    chan Notification
	done   chan struct{}
	closer sync.Once
}

func newSubscription() *subscription {
	s := &subscription{
		wake: make(chan struct{}, 1),
		out:  make(chan Notification),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscription) push(n Notification) {
	s.mu.Lock()
	s.queue = append(s.queue, n)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) close() {
	s.closer.Do(func() { close(s.done) })
}

func (s *subscription) run() {
	defer close(s.out)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		n := s.queue[0]
		s.queue[0] = Notification{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- n:
		case <-s.done:
			return
		}
	}
}
