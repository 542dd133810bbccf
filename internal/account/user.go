// ABOUTME: User and Image records plus the explicit mapping to and from store documents
// ABOUTME: The password hash only leaves the store when a caller asks for it

package account

import (
	"strings"
	"time"

	"github.com/2389/blogsys/internal/docstore"
)

// Document field names for users.
const (
	fieldName      = "name"
	fieldEmail     = "email"
	fieldPassword  = "password"
	fieldRole      = "role"
	fieldCreatedAt = "createdAt"
	fieldAvatarID  = "avatarId"
	fieldImageData = "data"
)

// listFields is the projection used for user listings. It never includes the password.
var listFields = []string{fieldName, fieldEmail, fieldRole, fieldCreatedAt}

// User is a dashboard account.
type User struct {
	ID        string
	Name      string
	Email     string
	Password  string // bcrypt hash; empty unless explicitly requested
	Role      Role
	CreatedAt time.Time
	AvatarID  string
}

// Image is a stored avatar payload, a base64 data URI or "" once cleared.
type Image struct {
	ID   string
	Data string
}

// ToUser maps a user document to a User. It returns nil for an absent snapshot and
// leaves Password empty unless keepSecret is set.
func ToUser(snap *docstore.Snapshot, keepSecret bool) *User {
	if !snap.Exists() {
		return nil
	}
	u := &User{
		ID:        snap.ID,
		Name:      snap.Data.String(fieldName),
		Email:     snap.Data.String(fieldEmail),
		Role:      Role(snap.Data.String(fieldRole)),
		CreatedAt: snap.Data.Time(fieldCreatedAt),
		AvatarID:  snap.Data.String(fieldAvatarID),
	}
	if keepSecret {
		u.Password = snap.Data.String(fieldPassword)
	}
	return u
}

// userDocument is the inverse of ToUser for a full record. The id is never stored as a field.
func userDocument(u *User) docstore.Document {
	return docstore.Document{
		fieldName:      u.Name,
		fieldEmail:     u.Email,
		fieldPassword:  u.Password,
		fieldRole:      string(u.Role),
		fieldCreatedAt: u.CreatedAt,
		fieldAvatarID:  u.AvatarID,
	}
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
