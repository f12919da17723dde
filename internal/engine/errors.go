package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/prevail/internal/schema"
)

// ErrNotFound is returned by fetches of an identity that is not stored.
var ErrNotFound = errors.New("entity not found")

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeDuplicateIdentity indicates an add with an identity already stored.
	ErrCodeDuplicateIdentity ErrorCode = "DUPLICATE_IDENTITY"

	// ErrCodeUniqueViolation indicates a value already held by another entity
	// under a unique index, composite index or unique foreign key.
	ErrCodeUniqueViolation ErrorCode = "UNIQUE_VIOLATION"

	// ErrCodeNotNullViolation indicates a null in a not-null field.
	ErrCodeNotNullViolation ErrorCode = "NOT_NULL_VIOLATION"

	// ErrCodeDeleteConflict indicates a reject rule blocked a delete.
	ErrCodeDeleteConflict ErrorCode = "DELETE_CONFLICT"

	// ErrCodeStoreError wraps unexpected failures.
	ErrCodeStoreError ErrorCode = "STORE_ERROR"
)

// Error is returned by every failed engine operation.
type Error struct {
	Code    ErrorCode
	Message string

	// Type and ID identify the entity the error is about.
	Type string
	ID   schema.ID

	// Field is the field or index key involved, if any.
	Field string

	// Err is the wrapped cause of a store error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Type != "" && e.ID != 0 && e.Field != "":
		msg = fmt.Sprintf("%s (%s#%s.%s)", msg, e.Type, e.ID, e.Field)
	case e.Type != "" && e.ID != 0:
		msg = fmt.Sprintf("%s (%s#%s)", msg, e.Type, e.ID)
	case e.Type != "" && e.Field != "":
		msg = fmt.Sprintf("%s (%s.%s)", msg, e.Type, e.Field)
	case e.Type != "":
		msg = fmt.Sprintf("%s (%s)", msg, e.Type)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.Err }

func duplicateIdentity(r schema.Ref) *Error {
	return &Error{Code: ErrCodeDuplicateIdentity, Message: "identity already stored", Type: r.Type, ID: r.ID}
}

func uniqueViolation(typ, field string, value any) *Error {
	return &Error{Code: ErrCodeUniqueViolation, Message: fmt.Sprintf("value %v already indexed", value), Type: typ, Field: field}
}

func notNullViolation(typ, field string) *Error {
	return &Error{Code: ErrCodeNotNullViolation, Message: "null value in not-null field", Type: typ, Field: field}
}

func deleteConflict(owner schema.Ref, rule string) *Error {
	return &Error{
		Code:    ErrCodeDeleteConflict,
		Message: fmt.Sprintf("delete rejected by %s", rule),
		Type:    owner.Type,
		ID:      owner.ID,
		Field:   rule,
	}
}

func storeError(typ string, id schema.ID, err error) *Error {
	return &Error{Code: ErrCodeStoreError, Message: "store failure", Type: typ, ID: id, Err: err}
}

func storeErrorf(typ string, id schema.ID, format string, args ...any) *Error {
	return storeError(typ, id, fmt.Errorf(format, args...))
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsDuplicateIdentity reports whether err is a duplicate-identity error.
func IsDuplicateIdentity(err error) bool { return hasCode(err, ErrCodeDuplicateIdentity) }

// IsUniqueViolation reports whether err is a unique-index violation.
func IsUniqueViolation(err error) bool { return hasCode(err, ErrCodeUniqueViolation) }

// IsNotNullViolation reports whether err is a not-null violation.
func IsNotNullViolation(err error) bool { return hasCode(err, ErrCodeNotNullViolation) }

// IsDeleteConflict reports whether err is a delete conflict.
func IsDeleteConflict(err error) bool { return hasCode(err, ErrCodeDeleteConflict) }

// IsStoreError reports whether err is a store error.
func IsStoreError(err error) bool { return hasCode(err, ErrCodeStoreError) }
