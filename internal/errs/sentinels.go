// Package errs contains sentinel errors shared by the service layers so that
// transports can map failures without knowing which service produced them.
package errs

import "errors"

var (
	// ErrValidation indicates a malformed or incomplete request.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates the caller may not act on the entity.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict indicates the operation clashes with existing state.
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized indicates a missing or invalid credential.
	ErrUnauthorized = errors.New("unauthorized")
)

// Validation wraps msg as a validation error.
func Validation(msg string) error {
	return &wrapped{msg: msg, kind: ErrValidation}
}

// Forbidden wraps msg as a forbidden error.
func Forbidden(msg string) error {
	return &wrapped{msg: msg, kind: ErrForbidden}
}

// NotFound wraps msg as a not-found error.
func NotFound(msg string) error {
	return &wrapped{msg: msg, kind: ErrNotFound}
}

// Conflict wraps msg as a conflict error.
func Conflict(msg string) error {
	return &wrapped{msg: msg, kind: ErrConflict}
}

type wrapped struct {
	msg  string
	kind error
}

func (e *wrapped) Error() string { return e.msg }

func (e *wrapped) Unwrap() error { return e.kind }

// Public reports whether err carries a message safe to show to a client.
func Public(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrUnauthorized)
}
