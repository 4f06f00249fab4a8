package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Error kinds surfaced by the collaboration core. Callers match them with errors.Is.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrAccessDenied     = errors.New("access denied")
	ErrDuplicateRequest = errors.New("duplicate membership request")
	ErrAlreadyMember    = errors.New("already a member")
	ErrConflict         = errors.New("conflict")
	ErrUnauthenticated  = errors.New("unauthenticated")
)

// ErrRestrictedToOwner is returned when an owner-only action is attempted by anyone else.
var ErrRestrictedToOwner = &DomainError{Kind: ErrAccessDenied, Message: "action restricted to the project owner"}

// DomainError is a typed failure carrying one of the kinds above.
type DomainError struct {
	Kind    error
	Message string
	Field   string
}

func (e *DomainError) Error() string {
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Kind
}

func validationError(field, format string, args ...interface{}) *DomainError {
	return &DomainError{Kind: ErrValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

func notFound(resource string) *DomainError {
	return &DomainError{Kind: ErrNotFound, Message: resource + " not found"}
}

func accessDenied(message string) *DomainError {
	return &DomainError{Kind: ErrAccessDenied, Message: message}
}

func conflict(message string) *DomainError {
	return &DomainError{Kind: ErrConflict, Message: message}
}

// storeError maps storage errors onto the domain kinds. Unknown errors are
// wrapped and stay opaque infrastructure failures.
func storeError(resource string, err error) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound(resource)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return conflict(resource + " was modified concurrently")
	default:
		return fmt.Errorf("%s: %w", resource, err)
	}
}
