package authapi

import (
	"errors"
	"fmt"
)

const (
	// The server rejected the access or refresh token (HTTP 401)
	CodeUnauthorized = "unauthorized"
	// Any other non-2xx answer; Detail carries the server's message verbatim
	CodeRejected = "rejected"
	// The body could not be decoded or failed schema validation
	CodeMalformed = "malformed-response"
	// Network level failure, no response to interpret
	CodeTransport = "transport"
)

// Error is the typed error returned for every failed auth service call
type Error struct {
	Code   string
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %s, status: %d, detail: %q, error: %v", e.Code, e.Status, e.Detail, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code string, status int, detail string, err error) *Error {
	return &Error{
		Code:   code,
		Status: status,
		Detail: detail,
		Err:    err,
	}
}

// IsUnauthorized reports whether err is an auth service 401
func IsUnauthorized(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == CodeUnauthorized
}
