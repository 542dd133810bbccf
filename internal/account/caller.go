// ABOUTME: Caller identity and role definitions passed explicitly to every handler
// ABOUTME: A nil *Caller means the request is unauthenticated

package account

// Role is a user's authorization level.
type Role string

// Known roles.
const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Caller is the authenticated identity making a request.
type Caller struct {
	ID   string
	Role Role
}

// IsAdmin reports whether the caller holds the admin role. Nil-safe.
func (c *Caller) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}
