package connection

import "fmt"

// RPCError is an error returned by SurrealDB for a single RPC request.
type RPCError struct {
	Code        int    `json:"code" cbor:"code"`
	Message     string `json:"message,omitempty" cbor:"message,omitempty"`
	Description string `json:"description,omitempty" cbor:"description,omitempty"`
}

func (r RPCError) Error() string {
	if r.Description != "" {
		return r.Description
	}
	return r.Message
}

func (r *RPCError) Is(target error) bool {
	if target == nil {
		return r == nil
	}

	_, ok := target.(*RPCError)
	return ok
}

// RPCRequest is a single request sent over the RPC socket.
type RPCRequest struct {
	ID     any    `json:"id" cbor:"id"`
	Method string `json:"method,omitempty" cbor:"method,omitempty"`
	Params []any  `json:"params,omitempty" cbor:"params,omitempty"`
}

// RPCResponse is either the reply to a request or, when ID is nil, a live
// query notification.
type RPCResponse[T any] struct {
	ID     any       `json:"id" cbor:"id"`
	Error  *RPCError `json:"error,omitempty" cbor:"error,omitempty"`
	Result *T        `json:"result,omitempty" cbor:"result,omitempty"`
}

type RPCFunction string

const (
	Use          RPCFunction = "use"
	SignIn       RPCFunction = "signin"
	Authenticate RPCFunction = "authenticate"
	Query        RPCFunction = "query"
	Kill         RPCFunction = "kill"
)

// QueryResult is the outcome of one statement of a query request.
type QueryResult[T any] struct {
	Status string `json:"status" cbor:"status"`
	Time   string `json:"time" cbor:"time"`
	Result T      `json:"result" cbor:"result"`
}

// QueryError reports a statement that did not finish with status OK.
type QueryError struct {
	Statement int
	Message   string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("statement %d failed: %s", e.Statement, e.Message)
}
