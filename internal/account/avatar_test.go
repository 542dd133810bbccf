// ABOUTME: Tests for avatar storage and retrieval
// ABOUTME: Covers Image creation, in-place replacement, clearing and data URI encoding

package account

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/blogsys/internal/docstore"
)

func avatarForm(userID string, data []byte) *Form {
	form := NewForm(map[string]string{"id": userID})
	form.SetFile("avatar", &File{Name: "avatar", Size: int64(len(data)), Data: data})
	return form
}

func TestGetAvatar_EmptyOrMissing(t *testing.T) {
	svc, _ := newTestService(t)

	img, err := svc.GetAvatar(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, img)

	img, err = svc.GetAvatar(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, img)
}

func TestSaveAvatar_CreatesAndLinksImage(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	id := seedUser(t, store, "Ada", "ada@example.com", RoleUser)

	out := svc.SaveAvatar(ctx, &Caller{ID: id, Role: RoleUser}, avatarForm(id, pngBytes))
	require.False(t, out.Failed(), "save avatar failed: %v", out.Err)
	assert.Equal(t, Redirect("/settings?saved=true"), out)

	assert.Equal(t, 1, store.Count(docstore.CollectionImages))
	avatarID := rawUser(t, store, id).String("avatarId")
	require.NotEmpty(t, avatarID)

	img, err := svc.GetAvatar(ctx, avatarID)
	require.NoError(t, err)
	require.NotNil(t, img)
	assert.Equal(t, avatarID, img.ID)

	contentType, raw, err := DecodeAvatar(img.Data)
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
	assert.True(t, bytes.Equal(pngBytes, raw))
}

func TestSaveAvatar_ReplacesInPlace(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	id := seedUser(t, store, "Ada", "ada@example.com", RoleUser)
	caller := &Caller{ID: id, Role: RoleUser}

	require.False(t, svc.SaveAvatar(ctx, caller, avatarForm(id, pngBytes)).Failed())
	firstID := rawUser(t, store, id).String("avatarId")
	first, err := svc.GetAvatar(ctx, firstID)
	require.NoError(t, err)

	out := svc.SaveAvatar(ctx, caller, avatarForm(id, gifBytes))
	require.False(t, out.Failed(), "save avatar failed: %v", out.Err)

	assert.Equal(t, 1, store.Count(docstore.CollectionImages), "image count unchanged")
	assert.Equal(t, firstID, rawUser(t, store, id).String("avatarId"))

	second, err := svc.GetAvatar(ctx, firstID)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.NotEqual(t, first.Data, second.Data)
	assert.Contains(t, second.Data, "data:image/gif;base64,")
}

func TestSaveAvatar_ClearKeepsImageAndReference(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	id := seedUser(t, store, "Ada", "ada@example.com", RoleUser)
	caller := &Caller{ID: id, Role: RoleUser}

	require.False(t, svc.SaveAvatar(ctx, caller, avatarForm(id, pngBytes)).Failed())
	avatarID := rawUser(t, store, id).String("avatarId")

	out := svc.SaveAvatar(ctx, caller, avatarForm(id, nil))
	require.False(t, out.Failed(), "clear avatar failed: %v", out.Err)
	assert.Equal(t, Refresh("/settings"), out)

	assert.Equal(t, avatarID, rawUser(t, store, id).String("avatarId"), "reference unchanged")
	img, err := svc.GetAvatar(ctx, avatarID)
	require.NoError(t, err)
	require.NotNil(t, img, "image is preserved")
	assert.Equal(t, "", img.Data)
}

func TestSaveAvatar_ClearWithoutAvatarIsNoop(t *testing.T) {
	svc, store := newTestService(t)
	id := seedUser(t, store, "Ada", "ada@example.com", RoleUser)

	out := svc.SaveAvatar(context.Background(), &Caller{ID: id, Role: RoleUser}, avatarForm(id, nil))
	assert.Equal(t, Refresh("/settings"), out)
	assert.Equal(t, 0, store.Count(docstore.CollectionImages))
	assert.Equal(t, "", rawUser(t, store, id).String("avatarId"))
}

func TestSaveAvatar_Authorization(t *testing.T) {
	svc, store := newTestService(t)
	ada := seedUser(t, store, "Ada", "ada@example.com", RoleUser)
	bob := seedUser(t, store, "Bob", "bob@example.com", RoleUser)

	out := svc.SaveAvatar(context.Background(), &Caller{ID: bob, Role: RoleUser}, avatarForm(ada, pngBytes))
	assert.ErrorIs(t, out.Err, ErrUnauthorized)

	out = svc.SaveAvatar(context.Background(), nil, avatarForm(ada, pngBytes))
	assert.ErrorIs(t, out.Err, ErrUnauthorized)
	assert.Equal(t, 0, store.Count(docstore.CollectionImages))

	out = svc.SaveAvatar(context.Background(), &Caller{ID: "root", Role: RoleAdmin}, avatarForm(ada, pngBytes))
	assert.False(t, out.Failed(), "admin may set any avatar: %v", out.Err)
}

func TestSaveAvatar_RejectsBadUploads(t *testing.T) {
	svc, store := newTestService(t)
	id := seedUser(t, store, "Ada", "ada@example.com", RoleUser)
	caller := &Caller{ID: id, Role: RoleUser}

	out := svc.SaveAvatar(context.Background(), caller, avatarForm(id, []byte("plain text, not an image")))
	assert.ErrorIs(t, out.Err, ErrInvalidInput)

	huge := append(append([]byte{}, pngBytes...), make([]byte, MaxAvatarBytes)...)
	out = svc.SaveAvatar(context.Background(), caller, avatarForm(id, huge))
	assert.ErrorIs(t, out.Err, ErrInvalidInput)

	assert.Equal(t, 0, store.Count(docstore.CollectionImages))
}

func TestSaveAvatar_UnknownUser(t *testing.T) {
	svc, store := newTestService(t)

	out := svc.SaveAvatar(context.Background(), &Caller{ID: "root", Role: RoleAdmin}, avatarForm("ghost", pngBytes))
	assert.ErrorIs(t, out.Err, ErrInvalidInput)
	assert.Equal(t, 0, store.Count(docstore.CollectionImages))
}

func TestDecodeAvatar_Malformed(t *testing.T) {
	for _, in := range []string{"", "png", "data:image/png,abc", "data:image/png;base64,***"} {
		_, _, err := DecodeAvatar(in)
		assert.ErrorIs(t, err, ErrInvalidInput, "input %q", in)
	}
}
