// Package qdberrors provides the structured error taxonomy of qdbbatch.
//
// # Overview
//
// Every failure surfaced by the writers, the push executor, the bulk reader
// and the aggregation client is an *Error carrying:
//   - a Type from the fixed taxonomy below
//   - a human readable Message
//   - the Cause it wraps, if any
//   - key/value Details (table, column, mode, ...)
//   - the call stack at the point of creation
//
// Raw engine result codes never reach callers: they are translated once, at
// the engine boundary, into one of these types.
//
// # Usage
//
//	err := qdberrors.New(qdberrors.ErrorTypeColumnNotFound, "column does not exist").
//	    WithDetail("table", "trades").
//	    WithDetail("column", "price")
//
//	if qdberrors.IsType(err, qdberrors.ErrorTypeColumnNotFound) {
//	    // create the column and retry
//	}
//
// # Thread Safety
//
// Error instances are not safe for concurrent modification. Add details
// before sharing an error across goroutines.
package qdberrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of an error.
type ErrorType string

const (
	// ErrorTypeAliasNotFound means the referenced table does not exist.
	ErrorTypeAliasNotFound ErrorType = "alias_not_found"
	// ErrorTypeAliasAlreadyExists means a create was issued for an existing alias.
	ErrorTypeAliasAlreadyExists ErrorType = "alias_already_exists"
	// ErrorTypeIncompatibleType means the alias exists but is not a time series table.
	ErrorTypeIncompatibleType ErrorType = "incompatible_type"
	// ErrorTypeColumnNotFound means a named column is not part of the table.
	ErrorTypeColumnNotFound ErrorType = "column_not_found"
	// ErrorTypeEmptyColumn means an aggregate was requested over a column without points.
	ErrorTypeEmptyColumn ErrorType = "empty_column"
	// ErrorTypeInvalidArgument covers malformed intervals, empty column lists
	// and non-positive shard durations.
	ErrorTypeInvalidArgument ErrorType = "invalid_argument"
	// ErrorTypeTypeMismatch means an accessor or setter does not match the column type.
	ErrorTypeTypeMismatch ErrorType = "type_mismatch"
	// ErrorTypePartialFailure means some but not all rows of a batch were applied.
	ErrorTypePartialFailure ErrorType = "partial_failure"
	// ErrorTypeAlignment means a payload column length differs from its timestamps.
	ErrorTypeAlignment ErrorType = "alignment"
	// ErrorTypeReleased means a buffer, row or cell was used after release.
	ErrorTypeReleased ErrorType = "released"
	// ErrorTypeConfig represents configuration errors.
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeInternal represents unexpected engine or codec failures.
	ErrorTypeInternal ErrorType = "internal"
)

// Error is a structured error with context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error so errors.Is and errors.As see the chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. Calls can be chained.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Detail returns the detail stored under key.
func (e *Error) Detail(key string) (interface{}, bool) {
	v, ok := e.Details[key]
	return v, ok
}

// New creates a new error with the given type and message, capturing the
// call stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a format string.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with a type and message. If err is already an
// *Error its stack is kept. Returns nil if err is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsRetryable reports whether a caller may retry the failed operation.
// Only partial failures qualify; this module never retries on its own.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypePartialFailure:
		return true
	default:
		return false
	}
}

// IsType checks whether err (or an error in its chain) is of the given type.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the type of err, or ErrorTypeInternal for foreign errors.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
