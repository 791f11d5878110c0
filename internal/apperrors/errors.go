package apperrors

import (
	"errors"
)

var (
	// No session is persisted, or the persisted data could not be parsed.
	// Stores treat corrupt data the same as absent data: logged out.
	ErrNoSession = errors.New("no session")

	// A protected call was attempted without an access token
	ErrNotAuthenticated = errors.New("not authenticated")

	// Refresh failed; the session has been cleared as a side effect
	ErrSessionExpired = errors.New("session expired")

	// Authenticated but the role is not privileged enough
	ErrAccessDenied = errors.New("access denied")
)
