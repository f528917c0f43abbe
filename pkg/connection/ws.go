package connection

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gofrs/uuid"
	gorilla "github.com/gorilla/websocket"
)

// DefaultDialer is the gorilla dialer used by WebSocketConnection.
//
// It is the default gorilla dialer with compression enabled and the "cbor"
// subprotocol requested.
var DefaultDialer = &gorilla.Dialer{
	Proxy:             gorilla.DefaultDialer.Proxy,
	HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
	EnableCompression: true,
	Subprotocols:      []string{"cbor"},
}

type WebSocketConnection struct {
	BaseConnection

	conf *Config

	conn     *gorilla.Conn
	connLock sync.Mutex

	// Timeout is the timeout for receiving the RPC response after the
	// request was written. Zero disables it.
	Timeout time.Duration

	closed     chan struct{}
	closeOnce  sync.Once
	closeError error
}

func NewWebSocketConnection(conf *Config) *WebSocketConnection {
	return &WebSocketConnection{
		BaseConnection: newBaseConnection(conf),
		conf:           conf,
		Timeout:        conf.Timeout,
		closed:         make(chan struct{}),
	}
}

func (ws *WebSocketConnection) Connect(ctx context.Context) error {
	if err := ws.conf.validate(); err != nil {
		return err
	}

	conn, res, err := DefaultDialer.DialContext(ctx, fmt.Sprintf("%s/rpc", ws.baseURL), nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	ws.connLock.Lock()
	ws.conn = conn
	ws.connLock.Unlock()

	go ws.readLoop(conn)
	return nil
}

// Close sends a close frame and tears down the socket. The context bounds
// only the close frame write; the socket is closed regardless.
func (ws *WebSocketConnection) Close(ctx context.Context) error {
	ws.connLock.Lock()
	conn := ws.conn
	ws.connLock.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	ws.shutdown(ErrConnectionClosed)

	writeErr := make(chan error, 1)
	go func() {
		ws.connLock.Lock()
		defer ws.connLock.Unlock()
		writeErr <- conn.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(CloseMessageCode, ""))
	}()

	select {
	case err := <-writeErr:
		if err != nil && !errors.Is(err, gorilla.ErrCloseSent) {
			ws.logger.Debug("failed to write close message", "error", err)
		}
	case <-ctx.Done():
	}

	return conn.Close()
}

// Send sends a request to SurrealDB and waits for the response.
func (ws *WebSocketConnection) Send(ctx context.Context, dest any, method string, params ...any) error {
	if ws.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ws.Timeout)
		defer cancel()
	}

	select {
	case <-ws.closed:
		return ws.closeError
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	requestID, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("generate request id: %w", err)
	}
	id := requestID.String()

	responseChan, err := ws.createResponseChannel(id)
	if err != nil {
		return err
	}
	defer ws.removeResponseChannel(id)

	if err := ws.write(&RPCRequest{ID: id, Method: method, Params: params}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrTimeout, method)
		}
		return ctx.Err()
	case <-ws.closed:
		return ws.closeError
	case res := <-responseChan:
		if res.Error != nil {
			return res.Error
		}
		if nilOrTypedNil(dest) || res.Result == nil {
			return nil
		}
		if err := ws.unmarshaler.Unmarshal(*res.Result, dest); err != nil {
			return fmt.Errorf("error unmarshaling %s result: %w", method, err)
		}
		return nil
	}
}

func nilOrTypedNil(val any) bool {
	if val == nil {
		return true
	}
	v := reflect.ValueOf(val)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

func (ws *WebSocketConnection) write(v any) error {
	data, err := ws.marshaler.Marshal(v)
	if err != nil {
		return err
	}

	ws.connLock.Lock()
	defer ws.connLock.Unlock()
	if ws.conn == nil {
		return ErrNotConnected
	}
	return ws.conn.WriteMessage(gorilla.BinaryMessage, data)
}

// readLoop handles messages one at a time so that notifications of a live
// query keep their order.
func (ws *WebSocketConnection) readLoop(conn *gorilla.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			ws.handleError(err)
			return
		}
		ws.handleResponse(data)
	}
}

func (ws *WebSocketConnection) handleError(err error) {
	select {
	case <-ws.closed:
		return
	default:
	}
	if !gorilla.IsCloseError(err, gorilla.CloseNormalClosure) {
		ws.logger.Error("websocket read failed", "error", err)
	}
	ws.shutdown(fmt.Errorf("%w: %w", ErrConnectionClosed, err))
}

func (ws *WebSocketConnection) shutdown(err error) {
	ws.closeOnce.Do(func() {
		ws.closeError = err
		close(ws.closed)
		ws.closeAllNotifications()
	})
}

func (ws *WebSocketConnection) handleResponse(data []byte) {
	var rpcRes RPCResponse[cbor.RawMessage]
	if err := ws.unmarshaler.Unmarshal(data, &rpcRes); err != nil {
		ws.logger.Error("error unmarshaling response", "error", err)
		return
	}

	if rpcRes.ID != nil && rpcRes.ID != "" {
		id := fmt.Sprintf("%v", rpcRes.ID)
		responseChan, ok := ws.getResponseChannel(id)
		if !ok {
			ws.logger.Debug("response for unknown request", "id", id)
			return
		}
		select {
		case responseChan <- rpcRes:
		default:
			ws.logger.Warn("duplicate response", "id", id)
		}
		return
	}

	if rpcRes.Result == nil {
		ws.logger.Error("notification without result")
		return
	}

	var notification Notification
	if err := ws.unmarshaler.Unmarshal(*rpcRes.Result, &notification); err != nil {
		ws.logger.Error("error unmarshaling as notification", "error", err)
		return
	}
	if notification.ID == nil {
		ws.logger.Error("notification did not contain an 'id' field")
		return
	}

	sub, ok := ws.getNotificationChannel(notification.ID.String())
	if !ok {
		ws.logger.Debug("notification for unknown live query", "id", notification.ID.String())
		return
	}
	sub.push(notification)
}
