// ABOUTME: Cookie-based session provider for the dashboard
// ABOUTME: Checks credentials with bcrypt and resolves the caller for each request

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/2389/blogsys/internal/account"
)

const (
	// CookieName is the name of the session cookie
	CookieName = "blogsys_session"

	// Duration is how long sessions last by default
	Duration = 7 * 24 * time.Hour
)

// ErrInvalidCredentials is returned by Authenticate for an unknown email or wrong password.
var ErrInvalidCredentials = errors.New("invalid email or password")

// dummyHash keeps Authenticate timing flat when the email is unknown.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Users is the account lookup the session provider needs.
type Users interface {
	GetUserByEmail(ctx context.Context, email string, keepSecret bool) (*account.User, error)
	GetUserByID(ctx context.Context, id string) (*account.User, error)
}

// Manager issues session cookies and resolves callers from requests.
type Manager struct {
	signer *Signer
	users  Users
	ttl    time.Duration
	secure bool
	logger *slog.Logger
}

// NewManager creates a session manager. secret signs the session cookie and
// ttl <= 0 means Duration.
func NewManager(secret []byte, users Users, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = Duration
	}
	return &Manager{
		signer: NewSigner(secret),
		users:  users,
		ttl:    ttl,
		logger: slog.Default().With("component", "session"),
	}
}

// SetSecureCookies forces the Secure flag on session cookies, for deployments
// where TLS terminates at a proxy.
func (m *Manager) SetSecureCookies(secure bool) {
	m.secure = secure
}

// Authenticate checks email and password and returns the matching caller.
func (m *Manager) Authenticate(ctx context.Context, email, password string) (*account.Caller, error) {
	user, err := m.users.GetUserByEmail(ctx, email, true)
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if user == nil || user.Password == "" {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &account.Caller{ID: user.ID, Role: user.Role}, nil
}

// Login sets the session cookie for caller.
func (m *Manager) Login(w http.ResponseWriter, r *http.Request, caller *account.Caller) error {
	token, err := m.signer.Sign(caller, m.ttl)
	if err != nil {
		return fmt.Errorf("signing session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(m.ttl),
		HttpOnly: true,
		Secure:   r.TLS != nil || m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Logout clears the session cookie.
func (m *Manager) Logout(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// CallerFromRequest returns the signed-in caller, or nil. The role is read from the
// store so role changes and deletions apply to existing sessions.
func (m *Manager) CallerFromRequest(r *http.Request) *account.Caller {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	claimed, err := m.signer.Verify(cookie.Value)
	if err != nil {
		m.logger.Debug("rejected session cookie", "error", err)
		return nil
	}

	user, err := m.users.GetUserByID(r.Context(), claimed.ID)
	if err != nil {
		m.logger.Error("failed to load session user", "user_id", claimed.ID, "error", err)
		return nil
	}
	if user == nil {
		return nil
	}
	return &account.Caller{ID: user.ID, Role: user.Role}
}
