// LOCATION: internal/errors/errors.go
//
// This file provides:
// - Sentinel errors for all error conditions
// - Structured error types carrying path, line and cause context
// - Error category checking functions
// - Error wrapping utilities

package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Per-line errors (recovered locally, the line is skipped)
	ErrMalformedLine = errors.New("malformed log line")

	// Per-file errors (recovered at file granularity)
	ErrSourceCorrupted = errors.New("source corrupted")
	ErrSourceNotFound  = errors.New("source not found")

	// Per-store errors (fatal to the current run)
	ErrWrite           = errors.New("columnar write failed")
	ErrWriterFinalized = errors.New("writer already finalized")
	ErrRead            = errors.New("columnar read failed")

	// Merge errors
	ErrMergeSchema = errors.New("merge schema mismatch")
	ErrNoInputs    = errors.New("no valid input stores")

	// Validation errors (fatal at startup)
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrMissingField   = errors.New("missing required field")
	ErrInvalidPattern = errors.New("invalid accession pattern")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// IsRecoverable returns true if processing may continue past err:
// a skipped line or a skipped source file.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrMalformedLine) ||
		errors.Is(err, ErrSourceCorrupted) ||
		errors.Is(err, ErrSourceNotFound)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidPattern)
}

// IsStoreError returns true if err concerns a columnar store.
func IsStoreError(err error) bool {
	return errors.Is(err, ErrWrite) ||
		errors.Is(err, ErrRead) ||
		errors.Is(err, ErrWriterFinalized) ||
		errors.Is(err, ErrMergeSchema)
}

// ============================================================================
// Structured errors
// ============================================================================

// ParseError describes a log line that could not be turned into a record.
type ParseError struct {
	Path   string
	Line   int
	Reason string
	Row    []string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap supports errors.Is(err, ErrMalformedLine).
func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedLine}
	}
	return []error{ErrMalformedLine, e.Err}
}

// SourceError describes a log source that could not be read to the end.
type SourceError struct {
	Path string
	Line int // last line read successfully, 0 if none
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s (after line %d): %v", e.Path, e.Line, e.Err)
}

func (e *SourceError) Unwrap() []error {
	return []error{ErrSourceCorrupted, e.Err}
}

// WriteError describes a failed columnar write.
type WriteError struct {
	Path string
	Op   string
	Rows int
	Err  error
}

func (e *WriteError) Error() string {
	if e.Rows > 0 {
		return fmt.Sprintf("%s %s (%d rows): %v", e.Op, e.Path, e.Rows, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() []error {
	return []error{ErrWrite, e.Err}
}

// MergeSchemaError names an input whose schema differs from the pinned one.
type MergeSchemaError struct {
	Source   string
	Batch    int
	Expected string
	Actual   string
}

func (e *MergeSchemaError) Error() string {
	return fmt.Sprintf("merge: %s (batch %d) has schema %s, expected %s",
		e.Source, e.Batch, e.Actual, e.Expected)
}

func (e *MergeSchemaError) Unwrap() error {
	return ErrMergeSchema
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidPattern creates an invalid pattern error.
func NewInvalidPattern(pattern string, cause error) error {
	return fmt.Errorf("%q: %v: %w", pattern, cause, ErrInvalidPattern)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap exposes every collected error to errors.Is/As.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
