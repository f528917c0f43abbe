package connection

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Auth holds root, namespace or database user credentials for signin.
type Auth struct {
	Namespace string `json:"NS,omitempty" cbor:"NS,omitempty"`
	Database  string `json:"DB,omitempty" cbor:"DB,omitempty"`
	Username  string `json:"user,omitempty" cbor:"user,omitempty"`
	Password  string `json:"pass,omitempty" cbor:"pass,omitempty"`
}

// Call sends method and decodes its result as T.
func Call[T any](ctx context.Context, c Connection, method RPCFunction, params ...any) (T, error) {
	var res T
	err := c.Send(ctx, &res, string(method), params...)
	return res, err
}

func UseNamespace(ctx context.Context, c Connection, namespace, database string) error {
	return c.Send(ctx, nil, string(Use), namespace, database)
}

func SignInWith(ctx context.Context, c Connection, auth Auth) (string, error) {
	return Call[string](ctx, c, SignIn, auth)
}

func AuthenticateWith(ctx context.Context, c Connection, token string) error {
	return c.Send(ctx, nil, string(Authenticate), token)
}

func KillLiveQuery(ctx context.Context, c Connection, id any) error {
	return c.Send(ctx, nil, string(Kill), id)
}

// QueryAll runs sql with vars and returns the result of every statement.
// It fails with a *QueryError for the first statement that did not succeed.
func QueryAll[T any](ctx context.Context, c Connection, sql string, vars map[string]any) ([]QueryResult[T], error) {
	var raw []QueryResult[cbor.RawMessage]
	if err := c.Send(ctx, &raw, string(Query), sql, vars); err != nil {
		return nil, err
	}

	dec := c.GetUnmarshaler()
	results := make([]QueryResult[T], len(raw))
	for i, r := range raw {
		if r.Status != "OK" {
			var msg string
			if err := dec.Unmarshal(r.Result, &msg); err != nil {
				msg = fmt.Sprintf("status %s", r.Status)
			}
			return nil, &QueryError{Statement: i, Message: msg}
		}
		results[i].Status = r.Status
		results[i].Time = r.Time
		if len(r.Result) == 0 {
			continue
		}
		if err := dec.Unmarshal(r.Result, &results[i].Result); err != nil {
			return nil, fmt.Errorf("decode statement %d: %w", i, err)
		}
	}
	return results, nil
}
