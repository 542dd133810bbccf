// ABOUTME: Cloud Firestore document store backed by cloud.google.com/go/firestore
// ABOUTME: gRPC NotFound maps to an absent snapshot on reads and ErrNotFound on updates

package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore implements Store on a Firestore project.
type FirestoreStore struct {
	client *firestore.Client
	logger *slog.Logger
}

// NewFirestoreStore creates a Firestore client for projectID using ambient credentials.
func NewFirestoreStore(ctx context.Context, projectID string) (*FirestoreStore, error) {
	logger := slog.Default().With("component", "docstore", "backend", "firestore")

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	logger.Info("Firestore document store initialized", "project", projectID)
	return &FirestoreStore{client: client, logger: logger}, nil
}

// Collection returns a handle on the named collection.
func (s *FirestoreStore) Collection(name string) Collection {
	return &firestoreCollection{ref: s.client.Collection(name), logger: s.logger}
}

// Ping issues a cheap read to confirm the backend is reachable.
func (s *FirestoreStore) Ping(ctx context.Context) error {
	iter := s.client.Collections(ctx)
	_, err := iter.Next()
	if err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("listing collections: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

type firestoreCollection struct {
	ref    *firestore.CollectionRef
	logger *slog.Logger
}

func (c *firestoreCollection) Get(ctx context.Context, id string, fields ...string) (*Snapshot, error) {
	if id == "" {
		return nil, nil
	}
	doc, err := c.ref.Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	snap := firestoreSnapshot(doc)
	snap.Data = snap.Data.project(fields)
	return snap, nil
}

func (c *firestoreCollection) Query(ctx context.Context, q Query) ([]*Snapshot, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}

	query := c.ref.Query
	for _, f := range q.Filters {
		query = query.Where(f.Field, f.Op, normalize(f.Value))
	}
	if len(q.Fields) > 0 {
		query = query.Select(q.Fields...)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var result []*Snapshot
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("querying documents: %w", err)
		}
		result = append(result, firestoreSnapshot(doc))
	}
	return result, nil
}

func (c *firestoreCollection) Insert(ctx context.Context, doc Document) (string, error) {
	ref, _, err := c.ref.Add(ctx, map[string]any(normalizeDocument(doc)))
	if err != nil {
		return "", fmt.Errorf("adding document: %w", err)
	}
	c.logger.Debug("inserted document", "collection", c.ref.ID, "id", ref.ID)
	return ref.ID, nil
}

func (c *firestoreCollection) Update(ctx context.Context, id string, partial Document) error {
	if id == "" {
		return ErrNotFound
	}

	updates := make([]firestore.Update, 0, len(partial))
	for k, v := range normalizeDocument(partial) {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: v})
	}

	var err error
	if len(updates) == 0 {
		_, err = c.ref.Doc(id).Get(ctx)
	} else {
		_, err = c.ref.Doc(id).Update(ctx, updates)
	}
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}
	return nil
}

func (c *firestoreCollection) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if _, err := c.ref.Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

func firestoreSnapshot(doc *firestore.DocumentSnapshot) *Snapshot {
	data := doc.Data()
	out := make(Document, len(data))
	for k, v := range data {
		out[k] = fromFirestore(v)
	}
	return &Snapshot{ID: doc.Ref.ID, Data: out}
}

// fromFirestore normalises Firestore-decoded values. References collapse to their id.
func fromFirestore(v any) any {
	switch tv := v.(type) {
	case time.Time:
		return tv.UTC()
	case *firestore.DocumentRef:
		if tv == nil {
			return nil
		}
		return tv.ID
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = fromFirestore(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, item := range tv {
			out[k] = fromFirestore(item)
		}
		return out
	default:
		return v
	}
}
