// Package sqlstore provides a durable store.Repository on SQLite
// (modernc.org/sqlite, pure Go). Embeddings are stored as JSON text and
// nearest-neighbor ordering uses a registered cosine_distance SQL function, so
// "find closest, then mutate" runs as one atomic UPDATE/DELETE ... RETURNING
// statement.
package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hupe1980/todomesh/core"
	"github.com/hupe1980/todomesh/embedding"
	"github.com/hupe1980/todomesh/logging"
	"modernc.org/sqlite"
)

const (
	queryInsert  = `INSERT INTO todos (id, content, done, embedding) VALUES (?, ?, ?, ?)`
	queryNearest = `SELECT id, content, done, embedding, cosine_distance(embedding, ?) AS distance
		FROM todos ORDER BY distance ASC, seq ASC LIMIT 1`
	queryMarkDone = `UPDATE todos SET done = 1
		WHERE id = (SELECT id FROM todos ORDER BY cosine_distance(embedding, ?) ASC, seq ASC LIMIT 1)
		RETURNING id, content, done, embedding, cosine_distance(embedding, ?)`
	queryDelete = `DELETE FROM todos
		WHERE id = (SELECT id FROM todos ORDER BY cosine_distance(embedding, ?) ASC, seq ASC LIMIT 1)
		RETURNING id, content, done, embedding, cosine_distance(embedding, ?)`
	queryList = `SELECT id, content, done, embedding FROM todos ORDER BY seq ASC`
)

// Schema is the DDL applied on open. It is also handed to the model by the raw
// query tool catalog.
const Schema = `CREATE TABLE IF NOT EXISTS todos (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	id        TEXT    NOT NULL UNIQUE DEFAULT (lower(hex(randomblob(16)))),
	content   TEXT    NOT NULL,
	done      INTEGER NOT NULL DEFAULT 0,
	embedding TEXT    NOT NULL DEFAULT '[]'
);`

var (
	registerOnce sync.Once
	registerErr  error
)

// registerFunctions installs cosine_distance(a, b) for every connection of the
// sqlite driver. Both arguments are JSON float arrays.
func registerFunctions() error {
	registerOnce.Do(func() {
		registerErr = sqlite.RegisterDeterministicScalarFunction("cosine_distance", 2,
			func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				a, err := decodeVector(args[0])
				if err != nil {
					return nil, err
				}
				b, err := decodeVector(args[1])
				if err != nil {
					return nil, err
				}
				return embedding.CosineDistance(a, b), nil
			})
	})
	return registerErr
}

// Config configures Open.
type Config struct {
	// Path of the database file, or ":memory:".
	Path   string
	Logger logging.Logger
}

// Store is the SQLite backed repository.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// Open creates the data directory if needed, opens SQLite and applies the schema.
func Open(cfg Config) (*Store, error) {
	if err := registerFunctions(); err != nil {
		return nil, fmt.Errorf("sqlstore: register functions: %w", err)
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("sqlstore: create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlstore: pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: migration: %w", err)
	}

	return &Store{db: db, logger: logging.OrNoOp(cfg.Logger)}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert persists a new item.
func (s *Store) Insert(ctx context.Context, item core.Item) error {
	vec, err := encodeVector(item.Embedding)
	if err != nil {
		return &core.StoreError{Op: "insert", Query: queryInsert, Err: err}
	}
	args := []any{item.ID, item.Description, boolToInt(item.Done), vec}
	if _, err := s.db.ExecContext(ctx, queryInsert, args...); err != nil {
		return s.fail("insert", queryInsert, args, err)
	}
	return nil
}

// Nearest returns the closest item, or nil when the table is empty.
func (s *Store) Nearest(ctx context.Context, vec []float32) (*core.Match, error) {
	return s.nearest(ctx, "nearest", queryNearest, vec, 1)
}

// MarkNearestDone atomically resolves and flips the closest item to done.
func (s *Store) MarkNearestDone(ctx context.Context, vec []float32) (*core.Match, error) {
	return s.nearest(ctx, "mark_done", queryMarkDone, vec, 2)
}

// DeleteNearest atomically resolves and deletes the closest item.
func (s *Store) DeleteNearest(ctx context.Context, vec []float32) (*core.Match, error) {
	return s.nearest(ctx, "delete", queryDelete, vec, 2)
}

func (s *Store) nearest(ctx context.Context, op, query string, vec []float32, vecArgs int) (*core.Match, error) {
	enc, err := encodeVector(vec)
	if err != nil {
		return nil, &core.StoreError{Op: op, Query: query, Err: err}
	}
	args := make([]any, vecArgs)
	for i := range args {
		args[i] = enc
	}

	var (
		m   core.Match
		raw string
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&m.Item.ID, &m.Item.Description, &m.Item.Done, &raw, &m.Distance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.fail(op, query, args, err)
	}
	if m.Item.Embedding, err = decodeVector(raw); err != nil {
		return nil, s.fail(op, query, args, err)
	}
	return &m, nil
}

// List returns all items in insertion order.
func (s *Store) List(ctx context.Context) ([]core.Item, error) {
	rows, err := s.db.QueryContext(ctx, queryList)
	if err != nil {
		return nil, s.fail("list", queryList, nil, err)
	}
	defer rows.Close()

	items := []core.Item{}
	for rows.Next() {
		var (
			it  core.Item
			raw string
		)
		if err := rows.Scan(&it.ID, &it.Description, &it.Done, &raw); err != nil {
			return nil, s.fail("list", queryList, nil, err)
		}
		if it.Embedding, err = decodeVector(raw); err != nil {
			return nil, s.fail("list", queryList, nil, err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("list", queryList, nil, err)
	}
	return items, nil
}

// ExecuteQuery runs a raw statement and returns its rows as JSON: a single
// object when exactly one row is produced, otherwise an array.
func (s *Store) ExecuteQuery(ctx context.Context, query string) (string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return "", s.fail("execute", query, nil, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", s.fail("execute", query, nil, err)
	}

	result := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", s.fail("execute", query, nil, err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return "", s.fail("execute", query, nil, err)
	}

	var out []byte
	if len(result) == 1 {
		out, err = json.Marshal(result[0])
	} else {
		out, err = json.Marshal(result)
	}
	if err != nil {
		return "", &core.StoreError{Op: "execute", Query: query, Err: err}
	}
	return string(out), nil
}

// fail logs the failing statement with its parameters and wraps err.
func (s *Store) fail(op, query string, args []any, err error) error {
	s.logger.Error("Error during DB query", "op", op, "query", query, "params", summarizeArgs(args), "error", err.Error())
	return &core.StoreError{Op: op, Query: query, Err: err}
}

// summarizeArgs shortens vector parameters so log lines stay readable.
func summarizeArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if s, ok := a.(string); ok && len(s) > 64 && s[0] == '[' {
			out[i] = fmt.Sprintf("<vector %d bytes>", len(s))
			continue
		}
		out[i] = a
	}
	return out
}

func encodeVector(vec []float32) (string, error) {
	if vec == nil {
		return "[]", nil
	}
	b, err := json.Marshal(vec)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeVector(v any) ([]float32, error) {
	var raw []byte
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		raw = []byte(x)
	case []byte:
		raw = x
	default:
		return nil, fmt.Errorf("unsupported vector type %T", v)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, fmt.Errorf("decode vector: %w", err)
	}
	return vec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
