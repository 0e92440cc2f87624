package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
)

// NewAppError builds an AppError with a stable code.
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ExtractionKind distinguishes retryable extraction failures from fatal ones.
type ExtractionKind int

const (
	ExtractionOther ExtractionKind = iota
	ExtractionRateLimited
	ExtractionTimeout
)

func (k ExtractionKind) String() string {
	switch k {
	case ExtractionRateLimited:
		return "rate_limited"
	case ExtractionTimeout:
		return "timeout"
	default:
		return "other"
	}
}

// ExtractionError is returned by the extraction client. RateLimited and
// Timeout are retried locally; Other propagates to the caller.
type ExtractionError struct {
	Kind ExtractionKind
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction %s: %v", e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// NewExtractionError wraps err with a failure kind.
func NewExtractionError(kind ExtractionKind, err error) *ExtractionError {
	return &ExtractionError{Kind: kind, Err: err}
}

// ExtractionKindOf returns the kind of err, or ExtractionOther for non
// extraction errors.
func ExtractionKindOf(err error) ExtractionKind {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ExtractionOther
}

// ParseError reports an unrecognized filename or case-id format. Callers
// recover by falling back to a raw-name identifier; it is never fatal.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Input, e.Reason)
}

// CatalogError reports a credential-catalog load failure. No classification
// is possible without the catalog, so it fails the whole job.
type CatalogError struct {
	Source string
	Err    error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog %s: %v", e.Source, e.Err)
}

func (e *CatalogError) Unwrap() error { return e.Err }

// ResourcePressureError rejects a new job submission under memory pressure.
// In-flight jobs are unaffected.
type ResourcePressureError struct {
	UsedPercent float64
	HighWater   float64
}

func (e *ResourcePressureError) Error() string {
	return fmt.Sprintf("memory pressure: %.1f%% used (high water %.1f%%), rejecting new jobs", e.UsedPercent, e.HighWater)
}
