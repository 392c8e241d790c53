package auth

import (
	"errors"
	"fmt"
)

var (
	ErrBadCredentials = errors.New("auth: bad credentials")
	ErrInvalidToken   = errors.New("auth: invalid token")
	ErrMalformedToken = errors.New("auth: malformed token")
	ErrForbidden      = errors.New("auth: forbidden")
	ErrNotFound       = errors.New("auth: not found")
	ErrConflict       = errors.New("auth: conflict")
	ErrInvalidInput   = errors.New("auth: invalid input")
	ErrPrecondition   = errors.New("auth: precondition failed")
)

// ConflictError reports a uniqueness violation on a specific field.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s already exists", e.Field)
	}
	return fmt.Sprintf("%s %q already exists", e.Field, e.Value)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// ReferenceError reports a referenced client, role or permission that could not be resolved.
type ReferenceError struct {
	Kind string
	Ref  string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Ref)
}

func (e *ReferenceError) Is(target error) bool { return target == ErrNotFound }

func conflict(field, value string) error {
	return &ConflictError{Field: field, Value: value}
}

func missingRef(kind, ref string) error {
	return &ReferenceError{Kind: kind, Ref: ref}
}
