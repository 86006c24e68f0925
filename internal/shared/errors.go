package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the actor is not allowed to perform the action.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized indicates a missing or unknown principal.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a duplicate or conflicting record.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState indicates the action violates a workflow transition.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage returns a message that can be shown to end users without leaking internals.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "Data not found"
	case errors.Is(err, ErrForbidden):
		return "You do not have access to this action"
	case errors.Is(err, ErrValidation):
		return "Please check the submitted data"
	case errors.Is(err, ErrConflict):
		return "The record conflicts with existing data"
	case errors.Is(err, ErrInvalidState):
		return "The document is not in a state that allows this action"
	default:
		return "An unexpected error occurred"
	}
}
