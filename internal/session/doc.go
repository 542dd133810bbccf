// Package session provides cookie sessions for the dashboard.
//
// A session is an HS256 JWT stored in the blogsys_session cookie. The token
// carries the user id in "sub" and the role at login in "role", and expires
// after seven days unless configured otherwise. CallerFromRequest verifies
// the token and reloads the user so a deleted account loses access immediately.
//
// Authenticate compares a submitted password against the stored bcrypt hash.
// Unknown emails still pay for one bcrypt comparison so response timing does
// not reveal which addresses have accounts.
package session
