// ABOUTME: Error taxonomy for account operations
// ABOUTME: Sentinels are wrapped with detail and matched with errors.Is by the presentation layer

package account

import "errors"

// Account errors. A missing record is never an error: lookups return nil instead.
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConfiguration  = errors.New("server configuration error")
	ErrDuplicateEmail = errors.New("user with this email already exists")
)
