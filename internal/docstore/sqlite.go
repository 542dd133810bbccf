// ABOUTME: SQLite document store using modernc.org/sqlite with JSON document bodies
// ABOUTME: Times are stored as {"$date": RFC3339Nano} so they read back as time.Time

package docstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const dateKey = "$date"

// SQLiteStore implements Store on a single SQLite table of JSON documents.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite document store at path.
// Parent directories are created if needed. ":memory:" gives a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "docstore", "backend", "sqlite")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would otherwise see its own empty database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite document store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS documents (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			data       TEXT NOT NULL,
			UNIQUE (collection, id)
		);

		CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Collection returns a handle on the named collection.
func (s *SQLiteStore) Collection(name string) Collection {
	return &sqliteCollection{store: s, name: name}
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteCollection struct {
	store *SQLiteStore
	name  string
}

func (c *sqliteCollection) Get(ctx context.Context, id string, fields ...string) (*Snapshot, error) {
	var raw string
	err := c.store.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, c.name, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying document: %w", err)
	}

	doc, err := decodeJSONDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding document %s/%s: %w", c.name, id, err)
	}
	return &Snapshot{ID: id, Data: doc.project(fields)}, nil
}

func (c *sqliteCollection) Query(ctx context.Context, q Query) ([]*Snapshot, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}

	query := `SELECT id, data FROM documents WHERE collection = ?`
	args := []any{c.name}

	// Scalar filters run in SQL; anything else is checked after decoding
	var residual []Filter
	for _, f := range q.Filters {
		arg, ok := sqlScalar(f.Value)
		if !ok {
			residual = append(residual, f)
			continue
		}
		op := "="
		if f.Op == OpNotEqual {
			op = "IS NOT"
		}
		query += fmt.Sprintf(" AND json_extract(data, ?) %s ?", op)
		args = append(args, jsonPath(f.Field), arg)
	}
	query += " ORDER BY seq ASC"

	rows, err := c.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Snapshot
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		doc, err := decodeJSONDocument(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding document %s/%s: %w", c.name, id, err)
		}
		if !matches(doc, residual) {
			continue
		}
		result = append(result, &Snapshot{ID: id, Data: doc.project(q.Fields)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return result, nil
}

func (c *sqliteCollection) Insert(ctx context.Context, doc Document) (string, error) {
	raw, err := encodeJSONDocument(doc)
	if err != nil {
		return "", fmt.Errorf("encoding document: %w", err)
	}

	id := uuid.New().String()
	_, err = c.store.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)`, c.name, id, raw,
	)
	if err != nil {
		return "", fmt.Errorf("inserting document: %w", err)
	}

	c.store.logger.Debug("inserted document", "collection", c.name, "id", id)
	return id, nil
}

func (c *sqliteCollection) Update(ctx context.Context, id string, partial Document) error {
	patch, err := encodeJSONDocument(partial)
	if err != nil {
		return fmt.Errorf("encoding patch: %w", err)
	}

	result, err := c.store.db.ExecContext(ctx,
		`UPDATE documents SET data = json_patch(data, ?) WHERE collection = ? AND id = ?`,
		patch, c.name, id,
	)
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *sqliteCollection) Delete(ctx context.Context, id string) error {
	_, err := c.store.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, c.name, id,
	)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// jsonPath builds a quoted SQLite JSON path for a top-level field.
func jsonPath(field string) string {
	return `$."` + strings.ReplaceAll(field, `"`, `\"`) + `"`
}

// sqlScalar converts a filter value into the form json_extract returns for it.
func sqlScalar(v any) (any, bool) {
	switch tv := normalize(v).(type) {
	case string, int64, float64:
		return tv, true
	case bool:
		if tv {
			return int64(1), true
		}
		return int64(0), true
	default:
		return nil, false
	}
}

// encodeJSONDocument serialises a document, wrapping times in {"$date": ...}.
func encodeJSONDocument(doc Document) (string, error) {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = encodeJSONValue(normalize(v))
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func encodeJSONValue(v any) any {
	switch tv := v.(type) {
	case time.Time:
		return map[string]any{dateKey: tv.UTC().Format(time.RFC3339Nano)}
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = encodeJSONValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, item := range tv {
			out[k] = encodeJSONValue(item)
		}
		return out
	default:
		return v
	}
}

// decodeJSONDocument parses a stored document back into normalised values.
func decodeJSONDocument(raw string) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	doc := make(Document, len(m))
	for k, v := range m {
		doc[k] = decodeJSONValue(v)
	}
	return doc, nil
}

func decodeJSONValue(v any) any {
	switch tv := v.(type) {
	case json.Number:
		if i, err := tv.Int64(); err == nil {
			return i
		}
		f, _ := tv.Float64()
		return f
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = decodeJSONValue(item)
		}
		return out
	case map[string]any:
		if len(tv) == 1 {
			if s, ok := tv[dateKey].(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					return t
				}
			}
		}
		out := make(map[string]any, len(tv))
		for k, item := range tv {
			out[k] = decodeJSONValue(item)
		}
		return out
	default:
		return v
	}
}
