// Package fakesdb provides a fake SurrealDB WebSocket server for tests.
// It speaks the SurrealDB RPC protocol over WebSocket using CBOR encoding,
// keeps location records in memory and pushes live query notifications.
//
// The WebSocket server is implemented using the `gws` library.
//
// Failures can be injected per request with stub responses, or for every
// request with global failure configurations.
package fakesdb

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/lxzan/gws"
	"github.com/surrealdb/surrealgeo/internal/codec"
	"github.com/surrealdb/surrealgeo/pkg/connection"
	"github.com/surrealdb/surrealgeo/pkg/models"
)

// FailureType represents the type of failure to inject during request processing
type FailureType string

const (
	// FailureRequestDelay delays before processing the request
	FailureRequestDelay FailureType = "request_delay"
	// FailureDropConnection immediately closes the underlying network connection
	FailureDropConnection FailureType = "drop_connection"
	// FailureWebSocketClose sends a close frame with configurable code and reason
	FailureWebSocketClose FailureType = "websocket_close"
)

// RequestMatcher selects the requests a stub applies to.
type RequestMatcher struct {
	Method string
	// Matcher optionally inspects the params. Nil matches on Method alone.
	Matcher func(params []any) bool
}

// StubResponse overrides the built-in handling of matching requests.
type StubResponse struct {
	Matcher RequestMatcher
	// Result is returned when Error is nil.
	Result   any
	Error    *connection.RPCError
	Failures []FailureConfig
}

// FailureConfig defines a failure to apply before the request is handled.
type FailureConfig struct {
	Type        FailureType
	Delay       time.Duration
	CloseCode   uint16
	CloseReason string
}

// Session is the namespace, database and auth state of one socket.
type Session struct {
	Namespace string
	Database  string
	Token     string
	Username  string
}

// Server is a fake SurrealDB WebSocket server.
type Server struct {
	addr     string
	listener net.Listener
	server   *gws.Server
	codec    codec.Codec

	mu             sync.RWMutex
	stubResponses  []StubResponse
	globalFailures []FailureConfig
	connSessions   map[*gws.Conn]*Session
	tokens         map[string]string

	db *database

	// TokenSignIn is the token returned by every successful signin.
	TokenSignIn string
}

// Handler implements gws.Event for the server's sockets.
type Handler struct {
	server *Server
}

// NewServer creates a new fake SurrealDB server.
// Use "127.0.0.1:0" to bind to a random available port.
func NewServer(addr string) *Server {
	s := &Server{
		addr:         addr,
		codec:        models.NewCodec(),
		connSessions: make(map[*gws.Conn]*Session),
		tokens:       make(map[string]string),
		TokenSignIn:  "fake_token",
	}
	s.db = newDatabase(s)

	s.server = gws.NewServer(&Handler{server: s}, &gws.ServerOption{})
	s.server.OnError = func(_ net.Conn, err error) {
		if !errors.Is(err, net.ErrClosed) && !isUseOfClosedNetworkError(err) {
			log.Printf("Server error: %v", err)
		}
	}

	return s
}

// AddStubResponse adds a stub. Stubs are matched in the order they were added.
func (s *Server) AddStubResponse(stub StubResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubResponses = append(s.stubResponses, stub)
}

// SetGlobalFailures sets failures applied to every request.
func (s *Server) SetGlobalFailures(failures []FailureConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalFailures = failures
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	go func() {
		if err := s.server.RunListener(listener); err != nil {
			if !errors.Is(err, net.ErrClosed) && !isUseOfClosedNetworkError(err) {
				log.Printf("Server error: %v", err)
			}
		}
	}()

	return nil
}

// Stop closes the listener and every open socket.
func (s *Server) Stop() error {
	s.mu.Lock()
	conns := make([]*gws.Conn, 0, len(s.connSessions))
	for c := range s.connSessions {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.NetConn().Close()
	}
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Address returns the address the server is listening on.
func (s *Server) Address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// URL returns the ws:// endpoint of the server.
func (s *Server) URL() string {
	return "ws://" + s.Address()
}

// LiveQueryCount reports the live queries currently registered.
func (s *Server) LiveQueryCount() int {
	return s.db.liveCount()
}

func (h *Handler) OnOpen(socket *gws.Conn) {
	h.server.mu.Lock()
	h.server.connSessions[socket] = &Session{}
	h.server.mu.Unlock()
}

func (h *Handler) OnClose(socket *gws.Conn, err error) {
	h.server.mu.Lock()
	delete(h.server.connSessions, socket)
	h.server.mu.Unlock()
	h.server.db.killAll(socket)
}

func (h *Handler) OnPing(socket *gws.Conn, payload []byte) {
	if err := socket.WritePong(payload); err != nil {
		log.Printf("Error writing Pong: %v", err)
	}
}

func (h *Handler) OnPong(socket *gws.Conn, payload []byte) {
}

func (h *Handler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()

	var req connection.RPCRequest
	if err := h.server.codec.Unmarshal(message.Bytes(), &req); err != nil {
		h.sendError(socket, nil, -32700, "Parse error")
		return
	}

	h.server.mu.RLock()
	failures := append([]FailureConfig(nil), h.server.globalFailures...)
	var matchedStub *StubResponse
	for i := range h.server.stubResponses {
		stub := h.server.stubResponses[i]
		if stub.Matcher.Method == req.Method && (stub.Matcher.Matcher == nil || stub.Matcher.Matcher(req.Params)) {
			matchedStub = &stub
			break
		}
	}
	h.server.mu.RUnlock()

	if matchedStub != nil {
		failures = append(failures, matchedStub.Failures...)
	}
	for _, failure := range failures {
		if err := h.applyFailure(socket, failure); err != nil {
			return
		}
	}

	if matchedStub != nil {
		if matchedStub.Error != nil {
			h.sendError(socket, req.ID, matchedStub.Error.Code, matchedStub.Error.Message)
		} else {
			h.sendResponse(socket, req.ID, matchedStub.Result)
		}
		return
	}

	switch req.Method {
	case "use":
		h.handleUse(socket, &req)
		return
	case "signin":
		h.handleSignIn(socket, &req)
		return
	case "authenticate":
		h.handleAuthenticate(socket, &req)
		return
	}

	if msg := h.checkSession(socket); msg != "" {
		h.sendError(socket, req.ID, -32000, "There was a problem with the database: There was a problem with authentication: "+msg)
		return
	}

	switch req.Method {
	case "query":
		h.handleQuery(socket, &req)
	case "kill":
		h.handleKill(socket, &req)
	default:
		h.sendError(socket, req.ID, -32601, fmt.Sprintf("Method not found: %s", req.Method))
	}
}

func (h *Handler) checkSession(socket *gws.Conn) string {
	h.server.mu.RLock()
	defer h.server.mu.RUnlock()

	session, ok := h.server.connSessions[socket]
	switch {
	case !ok:
		return "Session not found"
	case session.Namespace == "" || session.Database == "":
		return "Specify a namespace and database"
	case session.Username == "":
		return "Not signed in"
	}
	return ""
}

func (h *Handler) applyFailure(socket *gws.Conn, failure FailureConfig) error {
	switch failure.Type {
	case FailureRequestDelay:
		time.Sleep(failure.Delay)

	case FailureDropConnection:
		socket.NetConn().Close()
		return fmt.Errorf("connection dropped")

	case FailureWebSocketClose:
		code := failure.CloseCode
		if code == 0 {
			code = 1001
		}
		reason := failure.CloseReason
		if reason == "" {
			reason = "failure injection"
		}
		socket.WriteClose(code, []byte(reason))
		return fmt.Errorf("websocket close")
	}

	return nil
}

func (h *Handler) sendResponse(socket *gws.Conn, id, result any) {
	h.server.write(socket, connection.RPCResponse[any]{ID: id, Result: &result})
}

func (h *Handler) sendError(socket *gws.Conn, id any, code int, message string) {
	h.server.write(socket, connection.RPCResponse[any]{
		ID:    id,
		Error: &connection.RPCError{Code: code, Message: message},
	})
}

func (s *Server) write(socket *gws.Conn, v any) {
	data, err := s.codec.Marshal(v)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}
	if err := socket.WriteMessage(gws.OpcodeBinary, data); err != nil && !isUseOfClosedNetworkError(err) {
		log.Printf("Error writing message: %v", err)
	}
}

// MatchMethod creates a RequestMatcher that matches only by method name
func MatchMethod(method string) RequestMatcher {
	return RequestMatcher{Method: method}
}

// SimpleStubResponse creates a stub that answers method with response.
func SimpleStubResponse(method string, response any) StubResponse {
	return StubResponse{
		Matcher: MatchMethod(method),
		Result:  response,
	}
}

// ErrorStubResponse creates a stub that answers method with an RPC error.
func ErrorStubResponse(method string, code int, message string) StubResponse {
	return StubResponse{
		Matcher: MatchMethod(method),
		Error: &connection.RPCError{
			Code:    code,
			Message: message,
		},
	}
}

func (h *Handler) handleUse(socket *gws.Conn, req *connection.RPCRequest) {
	if len(req.Params) < 2 {
		h.sendError(socket, req.ID, -32602, "handleUse: invalid params: use requires namespace and database parameters")
		return
	}

	namespace, ok := req.Params[0].(string)
	if !ok {
		h.sendError(socket, req.ID, -32602, "handleUse: invalid params: namespace must be a string")
		return
	}

	database, ok := req.Params[1].(string)
	if !ok {
		h.sendError(socket, req.ID, -32602, "handleUse: invalid params: database must be a string")
		return
	}

	h.server.mu.Lock()
	session := h.server.connSessions[socket]
	session.Namespace = namespace
	session.Database = database
	h.server.mu.Unlock()

	h.sendResponse(socket, req.ID, nil)
}

func (h *Handler) handleSignIn(socket *gws.Conn, req *connection.RPCRequest) {
	if len(req.Params) < 1 {
		h.sendError(socket, req.ID, -32602, "handleSignIn: invalid params: signin requires auth data")
		return
	}

	username := ""
	if authData, ok := req.Params[0].(map[string]any); ok {
		if user, ok := authData["user"].(string); ok {
			username = user
		}
	}
	if username == "" {
		h.sendError(socket, req.ID, -32602, "handleSignIn: Signin requires username in auth data")
		return
	}

	h.server.mu.Lock()
	session := h.server.connSessions[socket]
	if session.Namespace == "" || session.Database == "" {
		h.server.mu.Unlock()
		h.sendError(socket, req.ID, -32000, "handleSignIn: Specify a namespace and database to use")
		return
	}
	token := h.server.TokenSignIn
	session.Token = token
	session.Username = username
	h.server.tokens[token] = username
	h.server.mu.Unlock()

	h.sendResponse(socket, req.ID, token)
}

func (h *Handler) handleAuthenticate(socket *gws.Conn, req *connection.RPCRequest) {
	if len(req.Params) < 1 {
		h.sendError(socket, req.ID, -32602, "handleAuthenticate: invalid params: authenticate requires token parameter")
		return
	}

	token, ok := req.Params[0].(string)
	if !ok {
		h.sendError(socket, req.ID, -32602, "handleAuthenticate: invalid params: token must be a string")
		return
	}

	h.server.mu.Lock()
	session := h.server.connSessions[socket]
	username, found := h.server.tokens[token]
	if found {
		session.Token = token
		session.Username = username
	}
	h.server.mu.Unlock()

	if !found {
		h.sendError(socket, req.ID, -32000, "handleAuthenticate: Authentication failed: No session found for token")
		return
	}
	h.sendResponse(socket, req.ID, nil)
}

func (h *Handler) handleKill(socket *gws.Conn, req *connection.RPCRequest) {
	if len(req.Params) < 1 {
		h.sendError(socket, req.ID, -32602, "handleKill: invalid params: kill requires a live query id")
		return
	}
	id, err := models.UUIDFromTag(req.Params[0])
	if err != nil {
		h.sendError(socket, req.ID, -32602, "handleKill: "+err.Error())
		return
	}
	if !h.server.db.kill(id.String()) {
		h.sendError(socket, req.ID, -32000, fmt.Sprintf("Can not execute KILL statement using id '%s'", id))
		return
	}
	h.sendResponse(socket, req.ID, nil)
}

func isUseOfClosedNetworkError(err error) bool {
	return err != nil && strings.HasSuffix(err.Error(), "use of closed network connection")
}
