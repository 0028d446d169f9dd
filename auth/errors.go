package auth

import (
	"errors"
	"fmt"
)

// Kind classifies an authentication failure. The HTTP layer maps each kind
// to a status code.
type Kind int

const (
	// KindInternal is store unavailability, serialization failure or misconfiguration.
	KindInternal Kind = iota
	// KindBadRequest is malformed or missing required input.
	KindBadRequest
	// KindUnauthorized is bad credentials or a bad, expired or missing token.
	KindUnauthorized
	// KindTooManyRequests means the login attempt limit has been reached.
	KindTooManyRequests
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindTooManyRequests:
		return "too_many_requests"
	default:
		return "internal"
	}
}

// Error is the error type returned by every operation in this package.
// Message is safe to show to clients except for KindInternal.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or KindInternal for errors not produced here.
func KindOf(err error) Kind {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return KindInternal
}

// User-facing messages.
const (
	MsgInvalidToken        = "Invalid or expired token"
	MsgInvalidCSRFToken    = "Invalid or expired CSRF token"
	MsgMissingCSRF         = "Missing CSRF token or session"
	MsgMissingSession      = "Missing session"
	MsgSessionExpired      = "Session expired"
	MsgCredentialsRequired = "Username and password are required"
	MsgInvalidCredentials  = "Invalid credentials"
	MsgTooManyAttempts     = "Too many login attempts, please try again later"
	MsgInternal            = "Internal server error"
)

func badRequest(msg string) error {
	return &Error{Kind: KindBadRequest, Message: msg}
}

func unauthorized(msg string, err error) error {
	return &Error{Kind: KindUnauthorized, Message: msg, Err: err}
}

func tooManyRequests() error {
	return &Error{Kind: KindTooManyRequests, Message: MsgTooManyAttempts}
}

func internal(err error) error {
	return &Error{Kind: KindInternal, Message: MsgInternal, Err: err}
}
