// ABOUTME: Tests for the account action handlers against an in-memory store
// ABOUTME: Covers bootstrap, listing, lookups, create/update paths and deletion

package account

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/blogsys/internal/docstore"
)

func initForm(key, email, password string) *Form {
	return NewForm(map[string]string{"key": key, "email": email, "password": password})
}

func TestInit_CreatesSingleAdmin(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	out := svc.Init(ctx, initForm(testInitSecret, "  Root@Example.com ", " s3cret "))
	require.False(t, out.Failed(), "init failed: %v", out.Err)
	assert.Equal(t, Redirect("/login?initialized=true"), out)

	require.Equal(t, 1, store.Count(docstore.CollectionUsers))
	u, err := svc.GetUserByEmail(ctx, "root@example.com", true)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Admin", u.Name)
	assert.Equal(t, RoleAdmin, u.Role)
	assert.Equal(t, "root@example.com", u.Email)
	assert.Empty(t, u.AvatarID)
	assert.False(t, u.CreatedAt.IsZero())
	assert.NotEqual(t, "s3cret", u.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("s3cret")), "password is trimmed before hashing")
}

func TestInit_WrongKey(t *testing.T) {
	svc, store := newTestService(t)

	out := svc.Init(context.Background(), initForm("nope", "root@example.com", "pw"))
	assert.ErrorIs(t, out.Err, ErrUnauthorized)
	assert.Equal(t, 0, store.Count(docstore.CollectionUsers))

	out = svc.Init(context.Background(), initForm("", "root@example.com", "pw"))
	assert.ErrorIs(t, out.Err, ErrUnauthorized)
	assert.Equal(t, 0, store.Count(docstore.CollectionUsers))
}

func TestInit_MissingSecret(t *testing.T) {
	store := docstore.NewMemoryStore()
	svc := NewService(store, &BcryptHasher{cost: bcrypt.MinCost}, "", nil)

	out := svc.Init(context.Background(), initForm("", "root@example.com", "pw"))
	assert.ErrorIs(t, out.Err, ErrConfiguration)
	assert.NotErrorIs(t, out.Err, ErrUnauthorized)
	assert.Equal(t, 0, store.Count(docstore.CollectionUsers))
}

func TestInit_InvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"missing email", "", "pw"},
		{"missing password", "root@example.com", ""},
		{"blank password", "root@example.com", "   "},
		{"malformed email", "not-an-email", "pw"},
		{"password too long", "root@example.com", strings.Repeat("x", 73)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestService(t)
			out := svc.Init(context.Background(), initForm(testInitSecret, tt.email, tt.password))
			assert.ErrorIs(t, out.Err, ErrInvalidInput)
			assert.Equal(t, 0, store.Count(docstore.CollectionUsers))
		})
	}
}

func TestInit_DuplicateEmail(t *testing.T) {
	svc, store := newTestService(t)
	seedUser(t, store, "Existing", "root@example.com", RoleUser)

	out := svc.Init(context.Background(), initForm(testInitSecret, "root@example.com", "pw"))
	assert.ErrorIs(t, out.Err, ErrDuplicateEmail)
	assert.Equal(t, 1, store.Count(docstore.CollectionUsers))
}

func TestGetUsers_RequiresAdmin(t *testing.T) {
	svc, store := newTestService(t)
	seedUser(t, store, "Ada", "ada@example.com", RoleUser)

	_, err := svc.GetUsers(context.Background(), &Caller{ID: "x", Role: RoleUser})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.GetUsers(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestGetUsers_SortedWithoutPasswords(t *testing.T) {
	svc, store := newTestService(t)
	seedUser(t, store, "charlie", "c@example.com", RoleUser)
	seedUser(t, store, "Alice", "a@example.com", RoleAdmin)
	seedUser(t, store, "bob", "b@example.com", RoleUser)

	users, err := svc.GetUsers(context.Background(), &Caller{ID: "admin", Role: RoleAdmin})
	require.NoError(t, err)
	require.Len(t, users, 3)

	assert.Equal(t, "Alice", users[0].Name)
	assert.Equal(t, "bob", users[1].Name)
	assert.Equal(t, "charlie", users[2].Name)
	for _, u := range users {
		assert.Empty(t, u.Password)
		assert.NotEmpty(t, u.ID)
		assert.NotEmpty(t, u.Email)
		assert.False(t, u.CreatedAt.IsZero())
	}
}

func TestGetUserByEmail(t *testing.T) {
	svc, store := newTestService(t)
	id := seedUser(t, store, "Ada", "ada@example.com", RoleUser)
	ctx := context.Background()

	u, err := svc.GetUserByEmail(ctx, "ADA@example.com", false)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, id, u.ID)
	assert.Empty(t, u.Password)

	u, err = svc.GetUserByEmail(ctx, "ada@example.com", true)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.NotEmpty(t, u.Password)

	u, err = svc.GetUserByEmail(ctx, "nobody@example.com", false)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestGetUserByID(t *testing.T) {
	svc, store := newTestService(t)
	id := seedUser(t, store, "Ada", "ada@example.com", RoleUser)
	ctx := context.Background()

	u, err := svc.GetUserByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Ada", u.Name)
	assert.Empty(t, u.Password)

	u, err = svc.GetUserByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = svc.GetUserByID(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestSaveUser_CreateNovelEmail(t *testing.T) {
	svc, store := newTestService(t)
	admin := &Caller{ID: seedUser(t, store, "Root", "root@example.com", RoleAdmin), Role: RoleAdmin}
	ctx := context.Background()

	out := svc.SaveUser(ctx, admin, NewForm(map[string]string{
		"name":     "Grace",
		"email":    "Grace@Example.com",
		"password": "pw",
	}))
	require.False(t, out.Failed(), "save failed: %v", out.Err)
	assert.Equal(t, Redirect("/users?saved=true"), out)
	assert.Equal(t, 2, store.Count(docstore.CollectionUsers))

	u, err := svc.GetUserByEmail(ctx, "grace@example.com", true)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, RoleUser, u.Role, "role defaults to user")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("pw")))

	raw := rawUser(t, store, u.ID)
	_, hasID := raw["id"]
	assert.False(t, hasID, "id is never stored as a field")
}

func TestSaveUser_CreateDuplicateEmail(t *testing.T) {
	svc, store := newTestService(t)
	admin := &Caller{ID: seedUser(t, store, "Root", "root@example.com", RoleAdmin), Role: RoleAdmin}

	out := svc.SaveUser(context.Background(), admin, NewForm(map[string]string{
		"name":     "Impostor",
		"email":    "ROOT@example.com",
		"password": "pw",
	}))
	assert.ErrorIs(t, out.Err, ErrDuplicateEmail)
	assert.Equal(t, 1, store.Count(docstore.CollectionUsers))
}

func TestSaveUser_CreateRequiresAdmin(t *testing.T) {
	svc, store := newTestService(t)
	user := &Caller{ID: seedUser(t, store, "Ada", "ada@example.com", RoleUser), Role: RoleUser}

	out := svc.SaveUser(context.Background(), user, NewForm(map[string]string{
		"email":    "new@example.com",
		"password": "pw",
	}))
	assert.ErrorIs(t, out.Err, ErrUnauthorized)
	assert.Equal(t, 1, store.Count(docstore.CollectionUsers))
}

func TestSaveUser_CreateRequiresEmailAndPassword(t *testing.T) {
	svc, store := newTestService(t)
	admin := &Caller{ID: "admin", Role: RoleAdmin}

	out := svc.SaveUser(context.Background(), admin, NewForm(map[string]string{"email": "x@example.com"}))
	assert.ErrorIs(t, out.Err, ErrInvalidInput)

	out = svc.SaveUser(context.Background(), admin, NewForm(map[string]string{"password": "pw"}))
	assert.ErrorIs(t, out.Err, ErrInvalidInput)
	assert.Equal(t, 0, store.Count(docstore.CollectionUsers))
}

func TestSaveUser_UpdateOnlyTouchesTarget(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	adminID := seedUser(t, store, "Root", "root@example.com", RoleAdmin)
	targetID := seedUser(t, store, "Ada", "ada@example.com", RoleUser)
	otherID := seedUser(t, store, "Bob", "bob@example.com", RoleUser)

	before := rawUser(t, store, targetID)
	otherBefore := rawUser(t, store, otherID)

	fixed := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	out := svc.SaveUser(ctx, &Caller{ID: adminID, Role: RoleAdmin}, NewForm(map[string]string{
		"id":   targetID,
		"name": "Ada Lovelace",
	}))
	require.False(t, out.Failed(), "save failed: %v", out.Err)
	assert.Equal(t, Redirect("/users?saved=true"), out)

	after := rawUser(t, store, targetID)
	assert.Equal(t, "Ada Lovelace", after.String("name"))
	assert.Equal(t, before.String("email"), after.String("email"))
	assert.Equal(t, before.String("password"), after.String("password"), "absent password leaves hash untouched")
	assert.Equal(t, before.String("role"), after.String("role"))
	assert.True(t, fixed.Equal(after.Time("createdAt")), "createdAt is refreshed on edit")
	_, hasID := after["id"]
	assert.False(t, hasID)

	assert.Equal(t, otherBefore, rawUser(t, store, otherID))
	assert.Equal(t, 3, store.Count(docstore.CollectionUsers))

	u, err := svc.GetUserByID(ctx, targetID)
	require.NoError(t, err)
	assert.Equal(t, targetID, u.ID)
}

func TestSaveUser_SelfEditFromSettings(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	id := seedUser(t, store, "Ada", "ada@example.com", RoleUser)
	before := rawUser(t, store, id)

	out := svc.SaveUser(ctx, &Caller{ID: id, Role: RoleUser}, NewForm(map[string]string{
		"id":       id,
		"password": "new-password",
		"settings": "true",
	}))
	require.False(t, out.Failed(), "save failed: %v", out.Err)
	assert.Equal(t, Refresh("/settings?saved=true"), out)

	after := rawUser(t, store, id)
	assert.NotEqual(t, before.String("password"), after.String("password"))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(after.String("password")), []byte("new-password")))
	_, hasSettings := after["settings"]
	assert.False(t, hasSettings, "form control fields are not persisted")
}

func TestSaveUser_EmptyPasswordKeepsHash(t *testing.T) {
	svc, store := newTestService(t)
	id := seedUser(t, store, "Ada", "ada@example.com", RoleUser)
	before := rawUser(t, store, id)

	out := svc.SaveUser(context.Background(), &Caller{ID: id, Role: RoleUser}, NewForm(map[string]string{
		"id":       id,
		"name":     "Ada",
		"password": "",
	}))
	require.False(t, out.Failed(), "save failed: %v", out.Err)
	assert.Equal(t, before.String("password"), rawUser(t, store, id).String("password"))
}

func TestSaveUser_OtherUserForbidden(t *testing.T) {
	svc, store := newTestService(t)
	ada := seedUser(t, store, "Ada", "ada@example.com", RoleUser)
	bob := seedUser(t, store, "Bob", "bob@example.com", RoleUser)

	out := svc.SaveUser(context.Background(), &Caller{ID: ada, Role: RoleUser}, NewForm(map[string]string{
		"id":   bob,
		"name": "Hacked",
	}))
	assert.ErrorIs(t, out.Err, ErrUnauthorized)
	assert.Equal(t, "Bob", rawUser(t, store, bob).String("name"))
}

func TestSaveUser_NonAdminCannotChangeRole(t *testing.T) {
	svc, store := newTestService(t)
	id := seedUser(t, store, "Ada", "ada@example.com", RoleUser)

	out := svc.SaveUser(context.Background(), &Caller{ID: id, Role: RoleUser}, NewForm(map[string]string{
		"id":   id,
		"role": "admin",
	}))
	assert.ErrorIs(t, out.Err, ErrUnauthorized)
	assert.Equal(t, "user", rawUser(t, store, id).String("role"))
}

func TestSaveUser_UpdateEmailCollision(t *testing.T) {
	svc, store := newTestService(t)
	admin := &Caller{ID: seedUser(t, store, "Root", "root@example.com", RoleAdmin), Role: RoleAdmin}
	id := seedUser(t, store, "Ada", "ada@example.com", RoleUser)

	out := svc.SaveUser(context.Background(), admin, NewForm(map[string]string{"id": id, "email": "root@example.com"}))
	assert.ErrorIs(t, out.Err, ErrDuplicateEmail)

	// Re-saving your own email is fine
	out = svc.SaveUser(context.Background(), admin, NewForm(map[string]string{"id": id, "email": "ada@example.com"}))
	assert.False(t, out.Failed(), "save failed: %v", out.Err)
}

// slowStore delays every query so concurrent saves overlap between the
// uniqueness check and the write.
type slowStore struct {
	*docstore.MemoryStore
}

func (s slowStore) Collection(name string) docstore.Collection {
	return slowCollection{Collection: s.MemoryStore.Collection(name)}
}

type slowCollection struct {
	docstore.Collection
}

func (c slowCollection) Query(ctx context.Context, q docstore.Query) ([]*docstore.Snapshot, error) {
	time.Sleep(5 * time.Millisecond)
	return c.Collection.Query(ctx, q)
}

func usersWithEmail(t *testing.T, store docstore.Store, email string) []*docstore.Snapshot {
	t.Helper()
	snaps, err := store.Collection(docstore.CollectionUsers).Query(context.Background(), docstore.Query{
		Filters: []docstore.Filter{docstore.Where(fieldEmail, email)},
	})
	require.NoError(t, err)
	return snaps
}

func TestSaveUser_ConcurrentCreatesSameEmail(t *testing.T) {
	const workers = 8
	mem := docstore.NewMemoryStore()
	svc := NewService(slowStore{mem}, &BcryptHasher{cost: bcrypt.MinCost}, testInitSecret, nil)
	admin := &Caller{ID: seedUser(t, mem, "Root", "root@example.com", RoleAdmin), Role: RoleAdmin}

	outcomes := make([]Outcome, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = svc.SaveUser(context.Background(), admin, NewForm(map[string]string{
				"name": fmt.Sprintf("Racer %d", i), "email": "race@example.com", "password": "pw",
			}))
		}(i)
	}
	wg.Wait()

	var saved, duplicates int
	for _, out := range outcomes {
		switch {
		case !out.Failed():
			saved++
		case assert.ErrorIs(t, out.Err, ErrDuplicateEmail):
			duplicates++
		}
	}
	assert.Equal(t, 1, saved)
	assert.Equal(t, workers-1, duplicates)
	assert.Len(t, usersWithEmail(t, mem, "race@example.com"), 1)
	assert.Equal(t, 2, mem.Count(docstore.CollectionUsers))
}

func TestSaveUser_ConcurrentUpdateAndCreateSameEmail(t *testing.T) {
	const creators = 4
	mem := docstore.NewMemoryStore()
	svc := NewService(slowStore{mem}, &BcryptHasher{cost: bcrypt.MinCost}, testInitSecret, nil)
	admin := &Caller{ID: seedUser(t, mem, "Root", "root@example.com", RoleAdmin), Role: RoleAdmin}
	adaID := seedUser(t, mem, "Ada", "ada@example.com", RoleUser)

	outcomes := make([]Outcome, creators+1)
	var wg sync.WaitGroup
	wg.Add(creators + 1)
	go func() {
		defer wg.Done()
		outcomes[0] = svc.SaveUser(context.Background(), admin, NewForm(map[string]string{
			"id": adaID, "name": "Ada", "email": "taken@example.com",
		}))
	}()
	for i := 1; i <= creators; i++ {
		go func(i int) {
			defer wg.Done()
			outcomes[i] = svc.SaveUser(context.Background(), admin, NewForm(map[string]string{
				"name": fmt.Sprintf("Racer %d", i), "email": "taken@example.com", "password": "pw",
			}))
		}(i)
	}
	wg.Wait()

	var saved int
	for _, out := range outcomes {
		if out.Failed() {
			assert.ErrorIs(t, out.Err, ErrDuplicateEmail)
			continue
		}
		saved++
	}
	assert.Equal(t, 1, saved)
	assert.Len(t, usersWithEmail(t, mem, "taken@example.com"), 1)

	// Ada either moved to the new address or kept her old one
	ada := rawUser(t, mem, adaID)
	if outcomes[0].Failed() {
		assert.Equal(t, "ada@example.com", ada.String(fieldEmail))
	} else {
		assert.Equal(t, "taken@example.com", ada.String(fieldEmail))
	}
}

func TestSaveUser_UpdateMissingUser(t *testing.T) {
	svc, _ := newTestService(t)

	out := svc.SaveUser(context.Background(), &Caller{ID: "admin", Role: RoleAdmin}, NewForm(map[string]string{
		"id":   "ghost",
		"name": "Nobody",
	}))
	assert.ErrorIs(t, out.Err, ErrInvalidInput)
}

func TestSaveUser_InvalidFields(t *testing.T) {
	svc, store := newTestService(t)
	admin := &Caller{ID: "admin", Role: RoleAdmin}
	id := seedUser(t, store, "Ada", "ada@example.com", RoleUser)

	out := svc.SaveUser(context.Background(), admin, NewForm(map[string]string{"id": id, "email": "bad"}))
	assert.ErrorIs(t, out.Err, ErrInvalidInput)

	out = svc.SaveUser(context.Background(), admin, NewForm(map[string]string{"id": id, "role": "owner"}))
	assert.ErrorIs(t, out.Err, ErrInvalidInput)
}

func TestDeleteUser_SelfForbidden(t *testing.T) {
	for _, role := range []Role{RoleAdmin, RoleUser} {
		t.Run(string(role), func(t *testing.T) {
			svc, store := newTestService(t)
			id := seedUser(t, store, "Self", "self@example.com", role)

			out := svc.DeleteUser(context.Background(), &Caller{ID: id, Role: role}, id)
			assert.ErrorIs(t, out.Err, ErrUnauthorized)
			assert.Equal(t, 1, store.Count(docstore.CollectionUsers))
		})
	}
}

func TestDeleteUser_AdminRemovesExactlyTarget(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	adminID := seedUser(t, store, "Root", "root@example.com", RoleAdmin)
	targetID := seedUser(t, store, "Ada", "ada@example.com", RoleUser)
	otherID := seedUser(t, store, "Bob", "bob@example.com", RoleUser)

	out := svc.DeleteUser(ctx, &Caller{ID: adminID, Role: RoleAdmin}, targetID)
	require.False(t, out.Failed(), "delete failed: %v", out.Err)
	assert.Equal(t, Redirect("/users?deleted=true"), out)

	assert.Equal(t, 2, store.Count(docstore.CollectionUsers))
	gone, err := svc.GetUserByID(ctx, targetID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	rawUser(t, store, adminID)
	rawUser(t, store, otherID)
}

func TestDeleteUser_NonAdminForbidden(t *testing.T) {
	svc, store := newTestService(t)
	ada := seedUser(t, store, "Ada", "ada@example.com", RoleUser)
	bob := seedUser(t, store, "Bob", "bob@example.com", RoleUser)

	out := svc.DeleteUser(context.Background(), &Caller{ID: ada, Role: RoleUser}, bob)
	assert.ErrorIs(t, out.Err, ErrUnauthorized)
	assert.Equal(t, 2, store.Count(docstore.CollectionUsers))
}

func TestDeleteUser_LeavesAvatarImage(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	adminID := seedUser(t, store, "Root", "root@example.com", RoleAdmin)
	admin := &Caller{ID: adminID, Role: RoleAdmin}
	id := seedUser(t, store, "Ada", "ada@example.com", RoleUser)

	form := NewForm(map[string]string{"id": id})
	form.SetFile("avatar", &File{Name: "a.png", Size: int64(len(pngBytes)), Data: pngBytes})
	require.False(t, svc.SaveAvatar(ctx, admin, form).Failed())

	require.False(t, svc.DeleteUser(ctx, admin, id).Failed())
	assert.Equal(t, 1, store.Count(docstore.CollectionImages))
}
