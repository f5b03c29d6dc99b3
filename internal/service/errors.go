package service

import (
	"errors"
	"fmt"
	"strings"
)

var ( // Define custom errors
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrValidation         = errors.New("validation failed")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserInactive       = errors.New("user is inactive")
	ErrTokenRevoked       = errors.New("token has been revoked")
)

// ErrInvalidTransition is returned when an annotation is not in a status that
// allows the requested operation. It matches ErrForbidden under errors.Is.
var ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrForbidden)

// ValidationError carries every problem found in a rejected input.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func newValidationError(problems ...string) error {
	return &ValidationError{Problems: problems}
}
