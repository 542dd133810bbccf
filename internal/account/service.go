// ABOUTME: Account action handlers: bootstrap admin, list, lookup, save and delete users
// ABOUTME: Mutations return an Outcome; reads return records or nil when absent

package account

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/2389/blogsys/internal/docstore"
)

// Navigation targets produced by account actions.
const (
	TargetLoginInitialized = "/login?initialized=true"
	TargetUsersSaved       = "/users?saved=true"
	TargetUsersDeleted     = "/users?deleted=true"
	TargetSettingsSaved    = "/settings?saved=true"
	TargetSettings         = "/settings"
)

// Service implements the account actions over a document store.
type Service struct {
	users      docstore.Collection
	images     docstore.Collection
	hasher     Hasher
	initSecret string
	validate   *validator.Validate
	logger     *slog.Logger
	now        func() time.Time

	// createMu serialises the email check-then-insert within this process.
	createMu sync.Mutex
}

// NewService creates an account service. initSecret gates Init; when empty, Init
// always fails with ErrConfiguration.
func NewService(store docstore.Store, hasher Hasher, initSecret string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:      store.Collection(docstore.CollectionUsers),
		images:     store.Collection(docstore.CollectionImages),
		hasher:     hasher,
		initSecret: initSecret,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     logger.With("component", "account"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// credentials is the validated shape of a bootstrap submission.
type credentials struct {
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required"`
}

// maxPasswordBytes is bcrypt's input limit.
const maxPasswordBytes = 72

// Init creates the first admin account. It is gated only by the configured secret.
func (s *Service) Init(ctx context.Context, form *Form) Outcome {
	if s.initSecret == "" {
		return Failure(fmt.Errorf("%w: INIT_ADMIN_SECRET_KEY is not set", ErrConfiguration))
	}
	if subtle.ConstantTimeCompare([]byte(form.Get("key")), []byte(s.initSecret)) != 1 {
		return Failure(fmt.Errorf("%w: invalid init key", ErrUnauthorized))
	}

	in := credentials{
		Email:    NormalizeEmail(form.Get("email")),
		Password: strings.TrimSpace(form.Get("password")),
	}
	if err := s.validate.Struct(in); err != nil {
		return Failure(fmt.Errorf("%w: email and password required", ErrInvalidInput))
	}
	if len(in.Password) > maxPasswordBytes {
		return Failure(fmt.Errorf("%w: password is too long", ErrInvalidInput))
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Failure(err)
	}

	user := &User{
		Name:      "Admin",
		Email:     in.Email,
		Password:  hash,
		Role:      RoleAdmin,
		CreatedAt: s.now(),
		AvatarID:  "",
	}
	id, err := s.create(ctx, userDocument(user))
	if err != nil {
		return Failure(err)
	}

	s.logger.Info("bootstrap admin created", "user_id", id, "email", user.Email)
	return Redirect(TargetLoginInitialized)
}

// GetUsers lists every user for an admin caller, sorted by name then id. Password
// hashes are never read.
func (s *Service) GetUsers(ctx context.Context, caller *Caller) ([]*User, error) {
	if err := RequireRole(caller, RoleAdmin); err != nil {
		return nil, err
	}

	snaps, err := s.users.Query(ctx, docstore.Query{Fields: listFields})
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	users := make([]*User, 0, len(snaps))
	for _, snap := range snaps {
		users = append(users, ToUser(snap, false))
	}
	sort.SliceStable(users, func(i, j int) bool {
		a, b := strings.ToLower(users[i].Name), strings.ToLower(users[j].Name)
		if a != b {
			return a < b
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

// GetUserByEmail returns the user with email, or nil. keepSecret includes the
// password hash for credential checks.
func (s *Service) GetUserByEmail(ctx context.Context, email string, keepSecret bool) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}

	snaps, err := s.users.Query(ctx, docstore.Query{
		Filters: []docstore.Filter{docstore.Where(fieldEmail, email)},
	})
	if err != nil {
		return nil, fmt.Errorf("finding user by email: %w", err)
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return ToUser(snaps[0], keepSecret), nil
}

// GetUserByID returns the user with id, or nil.
func (s *Service) GetUserByID(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, nil
	}
	snap, err := s.users.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return ToUser(snap, false), nil
}

// SaveUser creates a user (no id) or updates one (id present). Callers may edit
// themselves; everything else needs the admin role.
func (s *Service) SaveUser(ctx context.Context, caller *Caller, form *Form) Outcome {
	id := strings.TrimSpace(form.Get("id"))
	if err := RequireSelfOrRole(caller, id, RoleAdmin); err != nil {
		return Failure(err)
	}

	fields, err := s.userFields(caller, form)
	if err != nil {
		return Failure(err)
	}

	if id != "" {
		err = s.update(ctx, id, fields)
	} else {
		_, err = s.createFromForm(ctx, fields)
	}
	if err != nil {
		return Failure(err)
	}

	if form.Get("settings") != "" {
		return Refresh(TargetSettingsSaved)
	}
	return Redirect(TargetUsersSaved)
}

// userFields extracts the fields present in the form into a partial user document.
func (s *Service) userFields(caller *Caller, form *Form) (docstore.Document, error) {
	fields := docstore.Document{}

	if form.Has(fieldName) {
		name := strings.TrimSpace(form.Get(fieldName))
		if err := s.validate.Var(name, "max=200"); err != nil {
			return nil, fmt.Errorf("%w: name is too long", ErrInvalidInput)
		}
		fields[fieldName] = name
	}

	if form.Has(fieldEmail) {
		email := NormalizeEmail(form.Get(fieldEmail))
		if err := s.validate.Var(email, "required,email,max=254"); err != nil {
			return nil, fmt.Errorf("%w: invalid email", ErrInvalidInput)
		}
		fields[fieldEmail] = email
	}

	if form.Has(fieldRole) {
		role := Role(strings.TrimSpace(form.Get(fieldRole)))
		if !role.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
		}
		if !caller.IsAdmin() {
			return nil, fmt.Errorf("%w: only admins can change roles", ErrUnauthorized)
		}
		fields[fieldRole] = string(role)
	}

	// An empty password field leaves the stored hash untouched
	if password := form.Get(fieldPassword); password != "" {
		if len(password) > maxPasswordBytes {
			return nil, fmt.Errorf("%w: password is too long", ErrInvalidInput)
		}
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return nil, err
		}
		fields[fieldPassword] = hash
	}

	return fields, nil
}

// update applies a partial update. createdAt is refreshed on every edit.
func (s *Service) update(ctx context.Context, id string, fields docstore.Document) error {
	if email, ok := fields[fieldEmail].(string); ok {
		s.createMu.Lock()
		defer s.createMu.Unlock()
		if err := s.ensureEmailFree(ctx, email, id); err != nil {
			return err
		}
	}

	fields[fieldCreatedAt] = s.now()
	err := s.users.Update(ctx, id, fields)
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%w: user %s does not exist", ErrInvalidInput, id)
	}
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}

	s.logger.Info("user updated", "user_id", id)
	return nil
}

// createFromForm fills defaults for a form-created user and inserts it.
func (s *Service) createFromForm(ctx context.Context, fields docstore.Document) (string, error) {
	if fields.String(fieldEmail) == "" {
		return "", fmt.Errorf("%w: email required", ErrInvalidInput)
	}
	if fields.String(fieldPassword) == "" {
		return "", fmt.Errorf("%w: password required", ErrInvalidInput)
	}

	user := &User{
		Name:      fields.String(fieldName),
		Email:     fields.String(fieldEmail),
		Password:  fields.String(fieldPassword),
		Role:      RoleUser,
		CreatedAt: s.now(),
	}
	if role := Role(fields.String(fieldRole)); role.Valid() {
		user.Role = role
	}

	id, err := s.create(ctx, userDocument(user))
	if err != nil {
		return "", err
	}
	s.logger.Info("user created", "user_id", id, "email", user.Email)
	return id, nil
}

// create inserts doc unless its email is already taken.
func (s *Service) create(ctx context.Context, doc docstore.Document) (string, error) {
	s.createMu.Lock()
	defer s.createMu.Unlock()

	if err := s.ensureEmailFree(ctx, doc.String(fieldEmail), ""); err != nil {
		return "", err
	}

	id, err := s.users.Insert(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("inserting user: %w", err)
	}
	return id, nil
}

// ensureEmailFree fails with ErrDuplicateEmail when a user other than exceptID has email.
func (s *Service) ensureEmailFree(ctx context.Context, email, exceptID string) error {
	snaps, err := s.users.Query(ctx, docstore.Query{
		Filters: []docstore.Filter{docstore.Where(fieldEmail, email)},
		Fields:  []string{fieldEmail},
	})
	if err != nil {
		return fmt.Errorf("checking email: %w", err)
	}
	for _, snap := range snaps {
		if snap.ID != exceptID {
			return ErrDuplicateEmail
		}
	}
	return nil
}

// DeleteUser removes another user's account. The linked avatar Image is left in place.
func (s *Service) DeleteUser(ctx context.Context, caller *Caller, id string) Outcome {
	if err := ForbidSelf(caller, id); err != nil {
		return Failure(err)
	}
	if err := RequireRole(caller, RoleAdmin); err != nil {
		return Failure(err)
	}
	if id == "" {
		return Failure(fmt.Errorf("%w: user id required", ErrInvalidInput))
	}

	if err := s.users.Delete(ctx, id); err != nil {
		return Failure(fmt.Errorf("deleting user: %w", err))
	}

	s.logger.Info("user deleted", "user_id", id, "by", caller.ID)
	return Redirect(TargetUsersDeleted)
}
