// ABOUTME: Dashboard web UI for blogsys: sessions, CSRF protection and page routes
// ABOUTME: Handlers turn forms into account and post actions and render their outcomes

package webadmin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/blogsys/internal/account"
	"github.com/2389/blogsys/internal/posts"
	"github.com/2389/blogsys/internal/session"
	"github.com/2389/blogsys/internal/throttle"
)

const (
	// CSRFCookieName is the name of the CSRF token cookie
	CSRFCookieName = "blogsys_csrf"

	// maxFormMemory bounds multipart parsing; the avatar limit is enforced separately
	maxFormMemory = account.MaxAvatarBytes + 1<<20

	// maxRequestBytes caps every POST body, including parts spilled to temp files
	maxRequestBytes = maxFormMemory + 1<<20

	// Failed login and init attempts allowed per key within attemptWindow
	maxFailedAttempts = 5
	attemptWindow     = 15 * time.Minute
	maxTrackedKeys    = 10_000
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const callerContextKey contextKey = "caller"
const csrfContextKey contextKey = "csrf_token"

// Config holds dashboard UI configuration
type Config struct {
	// BaseURL is the external URL of the dashboard. An https URL marks
	// cookies Secure even when TLS terminates in front of the server.
	BaseURL string
}

// SecureCookies reports whether the dashboard is served over https.
func (c Config) SecureCookies() bool {
	return strings.HasPrefix(strings.ToLower(c.BaseURL), "https://")
}

// Admin handles dashboard routes
type Admin struct {
	accounts *account.Service
	posts    *posts.Service
	sessions *session.Manager
	config   Config
	attempts *throttle.Limiter
	logger   *slog.Logger
}

// New creates a new Admin handler
func New(accounts *account.Service, postService *posts.Service, sessions *session.Manager, cfg Config) *Admin {
	return &Admin{
		accounts: accounts,
		posts:    postService,
		sessions: sessions,
		config:   cfg,
		attempts: throttle.New(attemptWindow, maxFailedAttempts, maxTrackedKeys),
		logger:   slog.Default().With("component", "webadmin"),
	}
}

// Close releases background resources.
func (a *Admin) Close() {
	a.attempts.Close()
}

// RegisterRoutes registers all dashboard routes on the given mux
func (a *Admin) RegisterRoutes(mux *http.ServeMux) {
	// Public routes (no auth required)
	mux.HandleFunc("GET /login", a.handleLoginPage)
	mux.HandleFunc("POST /login", a.protect(a.handleLogin))
	mux.HandleFunc("GET /init", a.handleInitPage)
	mux.HandleFunc("POST /init", a.protect(a.handleInit))

	// Protected routes (auth required)
	mux.HandleFunc("GET /{$}", a.requireAuth(a.handleHome))
	mux.HandleFunc("POST /logout", a.protect(a.handleLogout))

	// Users
	mux.HandleFunc("GET /users", a.requireAuth(a.handleUsersList))
	mux.HandleFunc("GET /users/new", a.requireAuth(a.handleUserNew))
	mux.HandleFunc("GET /users/{id}", a.requireAuth(a.handleUserEdit))
	mux.HandleFunc("POST /users/save", a.requireAuth(a.protect(a.handleUserSave)))
	mux.HandleFunc("POST /users/{id}/delete", a.requireAuth(a.protect(a.handleUserDelete)))

	// Own profile and avatar
	mux.HandleFunc("GET /settings", a.requireAuth(a.handleSettingsPage))
	mux.HandleFunc("POST /settings", a.requireAuth(a.protect(a.handleSettingsSave)))
	mux.HandleFunc("POST /settings/avatar", a.requireAuth(a.protect(a.handleAvatarSave)))
	mux.HandleFunc("GET /avatars/{id}", a.requireAuth(a.handleAvatar))

	// Posts
	mux.HandleFunc("GET /posts", a.requireAuth(a.handlePostsList))
	mux.HandleFunc("GET /posts/new", a.requireAuth(a.handlePostNew))
	mux.HandleFunc("GET /posts/{id}", a.requireAuth(a.handlePostEdit))
	mux.HandleFunc("POST /posts/save", a.requireAuth(a.protect(a.handlePostSave)))
	mux.HandleFunc("POST /posts/{id}/delete", a.requireAuth(a.protect(a.handlePostDelete)))

	a.logger.Info("dashboard routes registered")
}

// requireAuth wraps a handler to require a signed-in caller
func (a *Admin) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := a.sessions.CallerFromRequest(r)
		if caller == nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		ctx := context.WithValue(r.Context(), callerContextKey, caller)
		next(w, r.WithContext(ctx))
	}
}

// protect parses the submitted form and rejects it unless the CSRF token matches
func (a *Admin) protect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
		if err := parseRequestForm(r); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				a.renderError(w, r, http.StatusRequestEntityTooLarge, "Upload is too large")
				return
			}
			a.renderError(w, r, http.StatusBadRequest, "Invalid form data")
			return
		}
		if !a.validateCSRF(r) {
			a.logger.Warn("request with invalid CSRF token", "path", r.URL.Path)
			a.renderError(w, r, http.StatusForbidden, "Invalid request, please try again")
			return
		}
		next(w, r)
	}
}

// getCaller retrieves the signed-in caller from the request context
func getCaller(r *http.Request) *account.Caller {
	caller, _ := r.Context().Value(callerContextKey).(*account.Caller)
	return caller
}

// getCSRFToken retrieves the CSRF token from the request context
func getCSRFToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfContextKey).(string)
	return token
}

// ensureCSRFToken generates a CSRF token if not present and adds it to context
func (a *Admin) ensureCSRFToken(w http.ResponseWriter, r *http.Request) (*http.Request, string) {
	if token := getCSRFToken(r); token != "" {
		return r, token
	}

	// Try to get existing token from cookie
	cookie, err := r.Cookie(CSRFCookieName)
	if err == nil && cookie.Value != "" {
		ctx := context.WithValue(r.Context(), csrfContextKey, cookie.Value)
		return r.WithContext(ctx), cookie.Value
	}

	// Generate new token
	token, err := generateSecureToken(32)
	if err != nil {
		a.logger.Error("failed to generate CSRF token", "error", err)
		token = "" // Will fail validation, but won't crash
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secureCookie(r),
		SameSite: http.SameSiteStrictMode,
	})

	ctx := context.WithValue(r.Context(), csrfContextKey, token)
	return r.WithContext(ctx), token
}

func (a *Admin) secureCookie(r *http.Request) bool {
	return r.TLS != nil || a.config.SecureCookies()
}

// validateCSRF checks the CSRF token from form against cookie
func (a *Admin) validateCSRF(r *http.Request) bool {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}

	formToken := r.PostFormValue("csrf_token")
	if formToken == "" {
		formToken = r.Header.Get("X-CSRF-Token")
	}

	return formToken != "" && formToken == cookie.Value
}

// parseRequestForm parses urlencoded and multipart bodies
func parseRequestForm(r *http.Request) error {
	err := r.ParseMultipartForm(maxFormMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		return r.ParseForm()
	}
	return err
}

// formFromRequest converts a parsed request body into an action form. Only the
// first value of each field is kept.
func formFromRequest(r *http.Request) (*account.Form, error) {
	form := account.NewForm(firstValues(r.PostForm))
	delete(form.Values, "csrf_token")

	if r.MultipartForm == nil {
		return form, nil
	}
	for name, headers := range r.MultipartForm.File {
		if len(headers) == 0 {
			continue
		}
		file, err := readUpload(headers[0])
		if err != nil {
			return nil, err
		}
		form.SetFile(name, file)
	}
	return form, nil
}

func firstValues(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// readUpload reads at most one byte past the avatar limit so oversize files are still detected
func readUpload(header *multipart.FileHeader) (*account.File, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, account.MaxAvatarBytes+1))
	if err != nil {
		return nil, err
	}
	return &account.File{Name: header.Filename, Size: header.Size, Data: data}, nil
}

// errorStatus maps an action failure onto an HTTP status and a message safe to show
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, account.ErrUnauthorized):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, account.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, account.ErrDuplicateEmail):
		return http.StatusConflict, err.Error()
	case errors.Is(err, account.ErrConfiguration):
		return http.StatusInternalServerError, "Server configuration error"
	default:
		return http.StatusInternalServerError, "An error occurred"
	}
}

// applyOutcome interprets an action outcome. refresh re-renders a target view in place.
func (a *Admin) applyOutcome(w http.ResponseWriter, r *http.Request, out account.Outcome, refresh func(target *url.URL)) {
	switch out.Kind {
	case account.OutcomeRedirect:
		http.Redirect(w, r, out.Target, http.StatusSeeOther)
	case account.OutcomeRefresh:
		target, err := url.Parse(out.Target)
		if err != nil || refresh == nil {
			http.Redirect(w, r, out.Target, http.StatusSeeOther)
			return
		}
		refresh(target)
	default:
		status, msg := errorStatus(out.Err)
		if status == http.StatusInternalServerError {
			a.logger.Error("action failed", "path", r.URL.Path, "error", out.Err)
		}
		a.renderError(w, r, status, msg)
	}
}

// flashMessage turns confirmation query flags into a notice
func flashMessage(q url.Values) string {
	switch {
	case q.Get("initialized") == "true":
		return "Admin account created. Sign in to continue."
	case q.Get("saved") == "true":
		return "Saved."
	case q.Get("deleted") == "true":
		return "Deleted."
	default:
		return ""
	}
}

// handleHome sends signed-in callers to the posts list
func (a *Admin) handleHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/posts", http.StatusSeeOther)
}

// handleLoginPage renders the login page
func (a *Admin) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	// If already logged in, go to the dashboard
	if a.sessions.CallerFromRequest(r) != nil {
		http.Redirect(w, r, "/posts", http.StatusSeeOther)
		return
	}

	r, _ = a.ensureCSRFToken(w, r)
	a.renderLoginPage(w, r, http.StatusOK, "")
}

// handleLogin processes login form submission
func (a *Admin) handleLogin(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	if email == "" || password == "" {
		a.renderLoginPage(w, r, http.StatusBadRequest, "Email and password required")
		return
	}

	key := "login:" + account.NormalizeEmail(email)
	if !a.attempts.Allow(key) {
		a.logger.Warn("login throttled", "email", account.NormalizeEmail(email))
		a.renderLoginPage(w, r, http.StatusTooManyRequests, "Too many failed attempts, try again later")
		return
	}

	caller, err := a.sessions.Authenticate(r.Context(), email, password)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			a.attempts.Fail(key)
			a.renderLoginPage(w, r, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		a.logger.Error("failed to authenticate", "error", err)
		a.renderLoginPage(w, r, http.StatusInternalServerError, "An error occurred")
		return
	}

	if err := a.sessions.Login(w, r, caller); err != nil {
		a.logger.Error("failed to create session", "error", err)
		a.renderLoginPage(w, r, http.StatusInternalServerError, "An error occurred")
		return
	}

	a.attempts.Reset(key)
	a.logger.Info("login successful", "user_id", caller.ID)
	http.Redirect(w, r, "/posts", http.StatusSeeOther)
}

// handleLogout logs out the current user
func (a *Admin) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.sessions.Logout(w)

	// Clear CSRF cookie
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// handleInitPage renders the bootstrap admin form
func (a *Admin) handleInitPage(w http.ResponseWriter, r *http.Request) {
	r, _ = a.ensureCSRFToken(w, r)
	a.renderInitPage(w, r, http.StatusOK, "")
}

// handleInit creates the first admin account
func (a *Admin) handleInit(w http.ResponseWriter, r *http.Request) {
	form, err := formFromRequest(r)
	if err != nil {
		a.renderInitPage(w, r, http.StatusBadRequest, "Invalid form data")
		return
	}

	key := "init:" + clientIP(r)
	if !a.attempts.Allow(key) {
		a.renderInitPage(w, r, http.StatusTooManyRequests, "Too many failed attempts, try again later")
		return
	}

	out := a.accounts.Init(r.Context(), form)
	if out.Failed() {
		if errors.Is(out.Err, account.ErrUnauthorized) {
			a.attempts.Fail(key)
		}
		status, msg := errorStatus(out.Err)
		if status == http.StatusInternalServerError {
			a.logger.Error("bootstrap failed", "error", out.Err)
		}
		a.renderInitPage(w, r, status, msg)
		return
	}
	a.applyOutcome(w, r, out, nil)
}

// handleUsersList renders all users for admins
func (a *Admin) handleUsersList(w http.ResponseWriter, r *http.Request) {
	users, err := a.accounts.GetUsers(r.Context(), getCaller(r))
	if err != nil {
		status, msg := errorStatus(err)
		a.renderError(w, r, status, msg)
		return
	}
	a.renderUsersPage(w, r, users)
}

// handleUserNew renders an empty user form
func (a *Admin) handleUserNew(w http.ResponseWriter, r *http.Request) {
	if err := account.RequireRole(getCaller(r), account.RoleAdmin); err != nil {
		status, msg := errorStatus(err)
		a.renderError(w, r, status, msg)
		return
	}
	a.renderUserForm(w, r, &account.User{Role: account.RoleUser})
}

// handleUserEdit renders the form for an existing user
func (a *Admin) handleUserEdit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	caller := getCaller(r)
	if err := account.RequireSelfOrRole(caller, id, account.RoleAdmin); err != nil {
		status, msg := errorStatus(err)
		a.renderError(w, r, status, msg)
		return
	}
	// non-admins have no users list to return to; their profile lives in settings
	if !caller.IsAdmin() {
		http.Redirect(w, r, account.TargetSettings, http.StatusSeeOther)
		return
	}

	user, err := a.accounts.GetUserByID(r.Context(), id)
	if err != nil {
		a.logger.Error("failed to get user", "user_id", id, "error", err)
		a.renderError(w, r, http.StatusInternalServerError, "An error occurred")
		return
	}
	if user == nil {
		a.renderError(w, r, http.StatusNotFound, "User not found")
		return
	}
	a.renderUserForm(w, r, user)
}

// handleUserSave creates or updates a user from the users form
func (a *Admin) handleUserSave(w http.ResponseWriter, r *http.Request) {
	form, err := formFromRequest(r)
	if err != nil {
		a.renderError(w, r, http.StatusBadRequest, "Invalid form data")
		return
	}
	delete(form.Values, "settings")

	caller := getCaller(r)
	var refresh func(*url.URL)
	if caller != nil && !caller.IsAdmin() && strings.TrimSpace(form.Get("id")) == caller.ID {
		// a self-edit by a non-admin is a settings save
		form.Values["settings"] = "true"
		refresh = func(target *url.URL) {
			a.renderSettingsPage(w, r, flashMessage(target.Query()))
		}
	}
	a.applyOutcome(w, r, a.accounts.SaveUser(r.Context(), caller, form), refresh)
}

// handleUserDelete deletes a user
func (a *Admin) handleUserDelete(w http.ResponseWriter, r *http.Request) {
	out := a.accounts.DeleteUser(r.Context(), getCaller(r), r.PathValue("id"))
	a.applyOutcome(w, r, out, nil)
}

// handleSettingsPage renders the caller's own profile
func (a *Admin) handleSettingsPage(w http.ResponseWriter, r *http.Request) {
	a.renderSettingsPage(w, r, flashMessage(r.URL.Query()))
}

// handleSettingsSave updates the caller's own profile and refreshes the page in place
func (a *Admin) handleSettingsSave(w http.ResponseWriter, r *http.Request) {
	form, err := formFromRequest(r)
	if err != nil {
		a.renderError(w, r, http.StatusBadRequest, "Invalid form data")
		return
	}
	form.Values["id"] = getCaller(r).ID
	form.Values["settings"] = "true"

	out := a.accounts.SaveUser(r.Context(), getCaller(r), form)
	a.applyOutcome(w, r, out, func(target *url.URL) {
		a.renderSettingsPage(w, r, flashMessage(target.Query()))
	})
}

// handleAvatarSave uploads or clears the caller's avatar
func (a *Admin) handleAvatarSave(w http.ResponseWriter, r *http.Request) {
	form, err := formFromRequest(r)
	if err != nil {
		a.renderError(w, r, http.StatusBadRequest, "Invalid form data")
		return
	}
	if form.Get("id") == "" {
		form.Values["id"] = getCaller(r).ID
	}

	out := a.accounts.SaveAvatar(r.Context(), getCaller(r), form)
	a.applyOutcome(w, r, out, func(target *url.URL) {
		a.renderSettingsPage(w, r, flashMessage(target.Query()))
	})
}

// handleAvatar serves stored avatar bytes
func (a *Admin) handleAvatar(w http.ResponseWriter, r *http.Request) {
	img, err := a.accounts.GetAvatar(r.Context(), r.PathValue("id"))
	if err != nil {
		a.logger.Error("failed to get avatar", "error", err)
		http.Error(w, "An error occurred", http.StatusInternalServerError)
		return
	}
	if img == nil || img.Data == "" {
		http.NotFound(w, r)
		return
	}

	contentType, data, err := account.DecodeAvatar(img.Data)
	if err != nil {
		a.logger.Warn("stored avatar is malformed", "image_id", img.ID, "error", err)
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, max-age=60")
	_, _ = w.Write(data)
}

// handlePostsList renders all posts
func (a *Admin) handlePostsList(w http.ResponseWriter, r *http.Request) {
	list, err := a.posts.GetPosts(r.Context(), getCaller(r))
	if err != nil {
		status, msg := errorStatus(err)
		if status == http.StatusInternalServerError {
			a.logger.Error("failed to list posts", "error", err)
		}
		a.renderError(w, r, status, msg)
		return
	}
	a.renderPostsPage(w, r, list)
}

// handlePostNew renders an empty post form
func (a *Admin) handlePostNew(w http.ResponseWriter, r *http.Request) {
	a.renderPostForm(w, r, &posts.Post{})
}

// handlePostEdit renders the form for an existing post with a rendered preview
func (a *Admin) handlePostEdit(w http.ResponseWriter, r *http.Request) {
	post, err := a.posts.GetPost(r.Context(), r.PathValue("id"))
	if err != nil {
		a.logger.Error("failed to get post", "error", err)
		a.renderError(w, r, http.StatusInternalServerError, "An error occurred")
		return
	}
	if post == nil {
		a.renderError(w, r, http.StatusNotFound, "Post not found")
		return
	}
	a.renderPostForm(w, r, post)
}

// handlePostSave creates or updates a post
func (a *Admin) handlePostSave(w http.ResponseWriter, r *http.Request) {
	form, err := formFromRequest(r)
	if err != nil {
		a.renderError(w, r, http.StatusBadRequest, "Invalid form data")
		return
	}
	a.applyOutcome(w, r, a.posts.SavePost(r.Context(), getCaller(r), form), nil)
}

// handlePostDelete deletes a post
func (a *Admin) handlePostDelete(w http.ResponseWriter, r *http.Request) {
	a.applyOutcome(w, r, a.posts.DeletePost(r.Context(), getCaller(r), r.PathValue("id")), nil)
}

// clientIP returns the remote host of the request without its port
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// generateSecureToken generates a cryptographically secure random hex token
func generateSecureToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
