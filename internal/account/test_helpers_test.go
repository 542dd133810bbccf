// ABOUTME: Shared fixtures for account tests
// ABOUTME: Builds a Service over an in-memory store with a low-cost bcrypt hasher

package account

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/blogsys/internal/docstore"
)

const testInitSecret = "let-me-in"

var (
	pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	gifBytes = []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")
)

func newTestService(t *testing.T) (*Service, *docstore.MemoryStore) {
	t.Helper()
	store := docstore.NewMemoryStore()
	svc := NewService(store, &BcryptHasher{cost: bcrypt.MinCost}, testInitSecret, nil)
	return svc, store
}

// seedUser inserts a user document directly and returns its id.
func seedUser(t *testing.T, store docstore.Store, name, email string, role Role) string {
	t.Helper()
	id, err := store.Collection(docstore.CollectionUsers).Insert(context.Background(), userDocument(&User{
		Name:      name,
		Email:     email,
		Password:  "$2a$04$seededhashseededhashseededhashseededhashseededhashse",
		Role:      role,
		CreatedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, err)
	return id
}

func rawUser(t *testing.T, store docstore.Store, id string) docstore.Document {
	t.Helper()
	snap, err := store.Collection(docstore.CollectionUsers).Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, snap, "user %s should exist", id)
	return snap.Data
}
