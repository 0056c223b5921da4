/*
errors.go - Error taxonomy of the recurrence engine

ERROR CATEGORIES:
  1. RangeError             - start after end (or range too wide); rejected before expansion
  2. MalformedTemplateError - frequency-required field missing or out of bounds
  3. ConflictError          - exclusion already present
  4. NotFoundError          - template unknown to the store

Structured errors unwrap to a sentinel, so callers can use errors.Is:

    if errors.Is(err, recurrence.ErrAlreadyExcluded) { ... }
*/
package recurrence

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRange is returned when a query window is malformed.
	ErrInvalidRange = errors.New("invalid range")

	// ErrMalformedTemplate is returned when a template lacks the field its
	// frequency requires.
	ErrMalformedTemplate = errors.New("malformed template")

	// ErrAlreadyExcluded is returned when the date is already in the
	// template's exclusion set.
	ErrAlreadyExcluded = errors.New("date already excluded")

	// ErrTemplateNotFound is returned when a referenced template doesn't exist.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrDuplicateTemplate is returned when inserting a template whose id is
	// already taken within its scope.
	ErrDuplicateTemplate = errors.New("template already exists")

	// ErrInvalidOccurrenceID is returned when a wire occurrence id cannot be parsed.
	ErrInvalidOccurrenceID = errors.New("invalid occurrence id")

	// ErrNilExclusionSet is returned by Add on a nil *ExclusionSet, which is
	// read-only. Template.Exclude allocates the set instead.
	ErrNilExclusionSet = errors.New("nil exclusion set")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RangeError describes a rejected query window.
type RangeError struct {
	Start  Date
	End    Date
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid range [%s, %s]: %s", e.Start, e.End, e.Reason)
}

func (e *RangeError) Unwrap() error { return ErrInvalidRange }

// MalformedTemplateError names the field that makes a template unusable.
type MalformedTemplateError struct {
	TemplateID TemplateID
	Frequency  Frequency
	Field      string
	Reason     string
}

func (e *MalformedTemplateError) Error() string {
	return fmt.Sprintf("malformed %s template %q: %s %s", e.Frequency, e.TemplateID, e.Field, e.Reason)
}

func (e *MalformedTemplateError) Unwrap() error { return ErrMalformedTemplate }

// ConflictError reports an exclusion that was already present.
type ConflictError struct {
	ScopeID    ScopeID
	TemplateID TemplateID
	Date       Date
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("date %s already excluded from template %q", e.Date, e.TemplateID)
}

func (e *ConflictError) Unwrap() error { return ErrAlreadyExcluded }

// NotFoundError reports a template missing from its scope.
type NotFoundError struct {
	ScopeID    ScopeID
	TemplateID TemplateID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("template %q not found in scope %q", e.TemplateID, e.ScopeID)
}

func (e *NotFoundError) Unwrap() error { return ErrTemplateNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrMalformedTemplate) ||
		errors.Is(err, ErrInvalidOccurrenceID)
}

// IsConflict returns true if the error reports already-present state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExcluded) || errors.Is(err, ErrDuplicateTemplate)
}

// IsNotFound returns true if the error indicates a missing template.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}
