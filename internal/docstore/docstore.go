// ABOUTME: Collection-oriented document store interface and shared value types
// ABOUTME: Defines Store, Collection, Document, Snapshot and Query used by every backend

package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Update when the target document does not exist.
// Reads never return it: an absent document is a nil Snapshot.
var ErrNotFound = errors.New("document not found")

// ErrUnsupportedOp is returned when a query filter uses an operator the store does not support.
var ErrUnsupportedOp = errors.New("unsupported filter operator")

// Filter operators.
const (
	OpEqual    = "=="
	OpNotEqual = "!="
)

// Document is a schema-flexible record. Values are normalised by every backend to
// string, bool, int64, float64, time.Time, []any or map[string]any.
type Document map[string]any

// String returns the string value of key, or "" when missing or not a string.
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Time returns the time value of key, or the zero time.
func (d Document) Time(key string) time.Time {
	t, _ := d[key].(time.Time)
	return t
}

// Strings returns key as a string slice, skipping non-string elements.
func (d Document) Strings(key string) []string {
	switch v := d[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Clone returns a shallow copy of d.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// project returns a copy of d restricted to fields. An empty field list keeps everything.
func (d Document) project(fields []string) Document {
	if len(fields) == 0 {
		return d.Clone()
	}
	out := make(Document, len(fields))
	for _, f := range fields {
		if v, ok := d[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Snapshot is a point-in-time read of a document. A nil *Snapshot means the document
// does not exist.
type Snapshot struct {
	ID   string
	Data Document
}

// Exists reports whether the snapshot represents an existing document.
func (s *Snapshot) Exists() bool {
	return s != nil
}

// Filter restricts a query to documents whose Field compares to Value with Op.
type Filter struct {
	Field string
	Op    string
	Value any
}

// Where builds an equality filter.
func Where(field string, value any) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

// Query describes a collection read: all Filters must hold, Fields is an optional projection.
type Query struct {
	Filters []Filter
	Fields  []string
}

// validate checks that every filter uses a supported operator.
func (q Query) validate() error {
	for _, f := range q.Filters {
		if f.Op != OpEqual && f.Op != OpNotEqual {
			return fmt.Errorf("%w: %q", ErrUnsupportedOp, f.Op)
		}
	}
	return nil
}

// Collection exposes the per-collection operations. All operations are atomic per document only.
type Collection interface {
	// Get returns the document with id, or nil when it does not exist.
	Get(ctx context.Context, id string, fields ...string) (*Snapshot, error)
	// Query returns matching documents in the store's natural order.
	Query(ctx context.Context, q Query) ([]*Snapshot, error)
	// Insert stores doc under a new store-assigned id and returns it.
	Insert(ctx context.Context, doc Document) (string, error)
	// Update merges the top-level fields of partial into the document. Returns ErrNotFound
	// when the document does not exist.
	Update(ctx context.Context, id string, partial Document) error
	// Delete removes the document. Deleting an absent document is not an error.
	Delete(ctx context.Context, id string) error
}

// Store is a document database addressed by collection name.
type Store interface {
	Collection(name string) Collection
	Ping(ctx context.Context) error
	Close() error
}

// Collection names used by the dashboard.
const (
	CollectionUsers  = "users"
	CollectionImages = "images"
	CollectionPosts  = "posts"
)

// matches reports whether doc satisfies every filter. Used by backends that filter in process.
func matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		v, ok := doc[f.Field]
		eq := ok && equalValues(v, f.Value)
		switch f.Op {
		case OpEqual:
			if !eq {
				return false
			}
		case OpNotEqual:
			if eq {
				return false
			}
		}
	}
	return true
}

// equalValues compares two normalised document values.
func equalValues(a, b any) bool {
	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case int64:
		switch bv := b.(type) {
		case int64:
			return av == bv
		case int:
			return av == int64(bv)
		case float64:
			return float64(av) == bv
		}
		return false
	case float64:
		switch bv := b.(type) {
		case float64:
			return av == bv
		case int:
			return av == float64(bv)
		case int64:
			return av == float64(bv)
		}
		return false
	case string, bool:
		return a == b
	default:
		return false
	}
}

// normalize converts a value supplied by callers into its canonical stored form.
func normalize(v any) any {
	switch tv := v.(type) {
	case int:
		return int64(tv)
	case int32:
		return int64(tv)
	case float32:
		return float64(tv)
	case time.Time:
		return tv.UTC()
	case []string:
		out := make([]any, len(tv))
		for i, s := range tv {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, item := range tv {
			out[k] = normalize(item)
		}
		return out
	case Document:
		return normalize(map[string]any(tv))
	default:
		return v
	}
}

// normalizeDocument applies normalize to every top-level field.
func normalizeDocument(d Document) Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = normalize(v)
	}
	return out
}
