// ABOUTME: Pure authorization checks over the explicit caller identity
// ABOUTME: Every check fails with ErrUnauthorized and a nil caller never passes

package account

import "fmt"

// RequireRole fails unless the caller holds role.
func RequireRole(caller *Caller, role Role) error {
	if caller == nil {
		return fmt.Errorf("%w: not signed in", ErrUnauthorized)
	}
	if caller.Role != role {
		return fmt.Errorf("%w: %s role required", ErrUnauthorized, role)
	}
	return nil
}

// RequireSelfOrRole passes when the caller is the target or holds role.
func RequireSelfOrRole(caller *Caller, targetID string, role Role) error {
	if caller == nil {
		return fmt.Errorf("%w: not signed in", ErrUnauthorized)
	}
	if targetID != "" && caller.ID == targetID {
		return nil
	}
	if caller.Role != role {
		return fmt.Errorf("%w: %s role required", ErrUnauthorized, role)
	}
	return nil
}

// ForbidSelf fails when the caller is the target.
func ForbidSelf(caller *Caller, targetID string) error {
	if caller == nil {
		return fmt.Errorf("%w: not signed in", ErrUnauthorized)
	}
	if caller.ID == targetID {
		return fmt.Errorf("%w: you cannot delete yourself", ErrUnauthorized)
	}
	return nil
}
