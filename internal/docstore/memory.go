// ABOUTME: In-memory document store for tests and throwaway demo instances
// ABOUTME: Keeps insertion order per collection and returns copies of stored documents

package docstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store implementation.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memoryCollection),
	}
}

// Collection returns the named collection, creating it on first use.
func (m *MemoryStore) Collection(name string) Collection {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[name]
	if !ok {
		c = &memoryCollection{docs: make(map[string]Document)}
		m.collections[name] = c
	}
	return c
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// Count returns the number of documents in a collection. Test helper.
func (m *MemoryStore) Count(name string) int {
	c := m.Collection(name).(*memoryCollection)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

type memoryCollection struct {
	mu    sync.RWMutex
	order []string // insertion order of ids
	docs  map[string]Document
}

func (c *memoryCollection) Get(ctx context.Context, id string, fields ...string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	doc, ok := c.docs[id]
	if !ok {
		return nil, nil
	}
	return &Snapshot{ID: id, Data: doc.project(fields)}, nil
}

func (c *memoryCollection) Query(ctx context.Context, q Query) ([]*Snapshot, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []*Snapshot
	for _, id := range c.order {
		doc := c.docs[id]
		if !matches(doc, q.Filters) {
			continue
		}
		result = append(result, &Snapshot{ID: id, Data: doc.project(q.Fields)})
	}
	return result, nil
}

func (c *memoryCollection) Insert(ctx context.Context, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.New().String()
	c.docs[id] = normalizeDocument(doc)
	c.order = append(c.order, id)
	return id, nil
}

func (c *memoryCollection) Update(ctx context.Context, id string, partial Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, ok := c.docs[id]
	if !ok {
		return ErrNotFound
	}
	merged := doc.Clone()
	for k, v := range partial {
		merged[k] = normalize(v)
	}
	c.docs[id] = merged
	return nil
}

func (c *memoryCollection) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.docs[id]; !ok {
		return nil
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}
