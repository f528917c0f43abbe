package connection

import (
	"errors"
	"time"
)

const (
	// CloseMessageCode is the close code sent when the client hangs up.
	CloseMessageCode = 1000
	// DefaultTimeout bounds the wait for a single RPC response.
	DefaultTimeout = 30 * time.Second

	WebsocketScheme       = "ws"
	SecureWebsocketScheme = "wss"
)

var (
	ErrIDInUse           = errors.New("id already in use")
	ErrTimeout           = errors.New("timeout")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrNotConnected      = errors.New("not connected")
	ErrNoBaseURL         = errors.New("base url not set")
	ErrNoMarshaler       = errors.New("marshaler is not set")
	ErrNoUnmarshaler     = errors.New("unmarshaler is not set")
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
)
