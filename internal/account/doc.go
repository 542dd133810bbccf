// Package account implements the user management actions of the dashboard.
//
// # Actions
//
// Service exposes one method per action. Every action takes the caller
// identity explicitly as a *Caller (nil when unauthenticated) rather than
// reading it from request state:
//
//   - Init: create the first admin, gated by INIT_ADMIN_SECRET_KEY
//   - GetUsers: admin-only listing without password hashes
//   - GetUserByEmail / GetUserByID: unauthenticated lookups
//   - SaveUser: create or partially update a user
//   - DeleteUser: remove another user
//   - GetAvatar / SaveAvatar: avatar Images referenced from users
//
// Mutating actions return an Outcome: a Redirect, an in-place Refresh or a
// Failure. The web layer decides what each means for the browser.
//
// # Errors
//
// Failures wrap ErrUnauthorized, ErrInvalidInput, ErrConfiguration or
// ErrDuplicateEmail. A missing record is reported as a nil result.
//
// # Email uniqueness
//
// Emails are unique per the users collection. The check-then-insert is
// serialised by a mutex inside one Service; separate processes sharing a
// store can still race and create duplicates.
package account
