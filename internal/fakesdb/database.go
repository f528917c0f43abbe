package fakesdb

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lxzan/gws"
	"github.com/surrealdb/surrealgeo/pkg/connection"
	"github.com/surrealdb/surrealgeo/pkg/models"
)

// The statements understood by the fake. Each query request carries exactly
// one of them, recognized by prefix, with its inputs passed as variables.
const (
	StatementUpsert = "UPSERT type::thing($tb, $id)"
	StatementGet    = "SELECT * FROM ONLY type::thing($tb, $id)"
	StatementDelete = "DELETE type::thing($tb, $id)"
	StatementLive   = "LIVE SELECT * FROM type::table($tb)"
	StatementRange  = "SELECT * FROM type::table($tb)"
)

type record struct {
	id       models.RecordID
	geohash  string
	location []any
}

func (r *record) value() map[string]any {
	return map[string]any{
		"id": r.id,
		"g":  r.geohash,
		"l":  r.location,
	}
}

type liveQuery struct {
	socket *gws.Conn
	table  string
	start  string
	end    string
}

func (q *liveQuery) matches(r *record) bool {
	return r != nil && r.id.Table == q.table && r.geohash >= q.start && r.geohash < q.end
}

type database struct {
	server *Server

	mu     sync.Mutex
	tables map[string]map[string]*record
	lives  map[string]*liveQuery
}

func newDatabase(s *Server) *database {
	return &database{
		server: s,
		tables: make(map[string]map[string]*record),
		lives:  make(map[string]*liveQuery),
	}
}

func (h *Handler) handleQuery(socket *gws.Conn, req *connection.RPCRequest) {
	if len(req.Params) < 1 {
		h.sendError(socket, req.ID, -32602, "handleQuery: invalid params: query requires a statement")
		return
	}
	sql, ok := req.Params[0].(string)
	if !ok {
		h.sendError(socket, req.ID, -32602, "handleQuery: invalid params: statement must be a string")
		return
	}
	vars := map[string]any{}
	if len(req.Params) > 1 {
		if v, ok := req.Params[1].(map[string]any); ok {
			vars = v
		}
	}

	result, err := h.server.db.exec(socket, strings.TrimSpace(sql), vars)
	if err != nil {
		h.sendResponse(socket, req.ID, []any{map[string]any{
			"status": "ERR",
			"time":   "0ns",
			"result": err.Error(),
		}})
		return
	}
	h.sendResponse(socket, req.ID, []any{map[string]any{
		"status": "OK",
		"time":   "0ns",
		"result": result,
	}})
}

func (db *database) exec(socket *gws.Conn, sql string, vars map[string]any) (any, error) {
	table, err := stringVar(vars, "tb")
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasPrefix(sql, StatementUpsert):
		id, err := stringVar(vars, "id")
		if err != nil {
			return nil, err
		}
		g, err := stringVar(vars, "g")
		if err != nil {
			return nil, err
		}
		l, ok := vars["l"].([]any)
		if !ok || len(l) != 2 {
			return nil, fmt.Errorf("expected $l to be a [lat, lon] array, got %T", vars["l"])
		}
		return db.upsert(&record{id: models.NewRecordID(table, id), geohash: g, location: l}), nil

	case strings.HasPrefix(sql, StatementGet):
		id, err := stringVar(vars, "id")
		if err != nil {
			return nil, err
		}
		return db.get(table, id), nil

	case strings.HasPrefix(sql, StatementDelete):
		id, err := stringVar(vars, "id")
		if err != nil {
			return nil, err
		}
		db.remove(table, id)
		return []any{}, nil

	case strings.HasPrefix(sql, StatementLive):
		start, end, err := rangeVars(vars)
		if err != nil {
			return nil, err
		}
		return db.live(&liveQuery{socket: socket, table: table, start: start, end: end})

	case strings.HasPrefix(sql, StatementRange):
		start, end, err := rangeVars(vars)
		if err != nil {
			return nil, err
		}
		limit := 0
		switch n := vars["limit"].(type) {
		case uint64:
			limit = int(n)
		case int64:
			limit = int(n)
		}
		return db.selectRange(table, start, end, limit), nil
	}

	return nil, fmt.Errorf("Parse error: unsupported statement %q", sql)
}

func (db *database) upsert(r *record) any {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows := db.tables[r.id.Table]
	if rows == nil {
		rows = make(map[string]*record)
		db.tables[r.id.Table] = rows
	}
	key := r.id.Key()
	prev := rows[key]
	rows[key] = r
	db.notify(prev, r)
	return []any{r.value()}
}

func (db *database) get(table, id string) any {
	db.mu.Lock()
	defer db.mu.Unlock()

	r, ok := db.tables[table][id]
	if !ok {
		return nil
	}
	return r.value()
}

func (db *database) remove(table, id string) {
	db.mu.Lock()
	defer db.mu.Unlock()

	r, ok := db.tables[table][id]
	if !ok {
		return
	}
	delete(db.tables[table], id)
	db.notify(r, nil)
}

func (db *database) selectRange(table, start, end string, limit int) []any {
	db.mu.Lock()
	defer db.mu.Unlock()

	var rows []*record
	for _, r := range db.tables[table] {
		if r.geohash >= start && r.geohash < end {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].geohash != rows[j].geohash {
			return rows[i].geohash < rows[j].geohash
		}
		return rows[i].id.Key() < rows[j].id.Key()
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r.value()
	}
	return out
}

func (db *database) live(q *liveQuery) (any, error) {
	id, err := models.NewUUID()
	if err != nil {
		return nil, err
	}

	db.mu.Lock()
	db.lives[id.String()] = q
	db.mu.Unlock()
	return id, nil
}

func (db *database) kill(id string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.lives[id]; !ok {
		return false
	}
	delete(db.lives, id)
	return true
}

func (db *database) killAll(socket *gws.Conn) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for id, q := range db.lives {
		if q.socket == socket {
			delete(db.lives, id)
		}
	}
}

func (db *database) liveCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.lives)
}

// notify pushes the change from prev to cur to every live query that saw
// either side. A record leaving a live query's range is reported as DELETE
// carrying its new content. Called with db.mu held.
func (db *database) notify(prev, cur *record) {
	ids := make([]string, 0, len(db.lives))
	for id := range db.lives {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		q := db.lives[id]
		before, after := q.matches(prev), q.matches(cur)

		var action connection.Action
		var content *record
		switch {
		case !before && after:
			action, content = connection.CreateAction, cur
		case before && after:
			action, content = connection.UpdateAction, cur
		case before && cur != nil:
			action, content = connection.DeleteAction, cur
		case before:
			action, content = connection.DeleteAction, prev
		default:
			continue
		}

		liveID, _ := models.UUIDFromTag(id)
		var notification any = map[string]any{
			"id":     liveID,
			"action": string(action),
			"result": content.value(),
		}
		db.server.write(q.socket, connection.RPCResponse[any]{Result: &notification})
	}
}

func stringVar(vars map[string]any, name string) (string, error) {
	switch v := vars[name].(type) {
	case string:
		return v, nil
	case models.Table:
		return string(v), nil
	default:
		return "", fmt.Errorf("expected $%s to be a string, got %T", name, vars[name])
	}
}

func rangeVars(vars map[string]any) (string, string, error) {
	start, err := stringVar(vars, "start")
	if err != nil {
		return "", "", err
	}
	end, err := stringVar(vars, "end")
	if err != nil {
		return "", "", err
	}
	return start, end, nil
}
