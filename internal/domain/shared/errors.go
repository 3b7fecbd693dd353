// Package shared contains the error kinds and domain events used by every
// schoolhub domain package. It has no external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds, matched with errors.Is.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	ErrValidation    = errors.New("validation error")
	ErrInvalidID     = errors.New("invalid ID")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidFormat = errors.New("invalid format")

	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")

	// ErrStoreNotInitialized signals a wiring defect: a store accessor was
	// reached without a constructed store. It is raised with panic.
	ErrStoreNotInitialized = errors.New("store used outside an initialized store context")
)

// DomainError carries where an error happened and which kind it is.
type DomainError struct {
	Domain  string // "student", "transaction", "event", "employee", "store"
	Op      string // "Insert", "Update", "LoadAll", ...
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches both the kind and the wrapped cause.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	return e.Err != nil && errors.Is(e.Err, target)
}

func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// NotFound builds the error a backend returns for an unknown identifier.
func NotFound(domain, op, id string) *DomainError {
	return NewDomainError(domain, op, ErrNotFound, fmt.Sprintf("%s %q not found", domain, id))
}

// AlreadyExists builds the error a backend returns for a duplicate insert.
func AlreadyExists(domain, op, id string) *DomainError {
	return NewDomainError(domain, op, ErrAlreadyExists, fmt.Sprintf("%s %q already exists", domain, id))
}

func IsNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }

// IsValidation reports input problems a retry cannot fix.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsRetryable reports whether repeating a persistence call may succeed.
// Identity conflicts and validation failures never will.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !IsNotFound(err) && !IsAlreadyExists(err) && !IsValidation(err)
}
