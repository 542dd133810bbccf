// Package webadmin provides the browser dashboard for blogsys.
//
// # Overview
//
// The dashboard lets signed-in users manage:
//
//   - Users: admins list, create, edit and delete accounts
//   - Settings: every user edits their own profile and avatar
//   - Posts: authors write markdown posts with a rendered preview
//
// # Authentication
//
// Sessions are signed JWT cookies issued by the session package. The
// first admin is created through /init with the server's init secret:
//
//  1. Set INIT_ADMIN_SECRET_KEY (or auth.init_admin_secret)
//  2. Open /init and submit the key, an email and a password
//  3. Sign in at /login
//
// # Actions and outcomes
//
// Form submissions are converted into an account.Form and handed to the
// account and posts services. The returned account.Outcome decides the
// response:
//
//   - Redirect: 303 See Other to the target
//   - Refresh: the target view is rendered in place
//   - Failure: an error page with a status derived from the error kind
//
// # CSRF Protection
//
// All form submissions require CSRF tokens:
//
//	<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
//
// The token is a double-submit cookie and may also be sent in the
// X-CSRF-Token header.
//
// # Usage
//
//	admin := webadmin.New(accounts, posts, sessions, webadmin.Config{})
//	admin.RegisterRoutes(mux)
package webadmin
