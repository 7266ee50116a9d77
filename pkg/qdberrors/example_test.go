package qdberrors_test

import (
	"fmt"
	"io"

	"github.com/bureau14/qdbbatch/pkg/qdberrors"
)

// Example demonstrates basic error creation.
func Example() {
	err := qdberrors.New(qdberrors.ErrorTypeAliasNotFound, "table does not exist").
		WithDetail("table", "trades")

	fmt.Println(err.Error())

	// Output:
	// alias_not_found: table does not exist
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := qdberrors.Wrap(io.ErrUnexpectedEOF, qdberrors.ErrorTypeInternal, "failed to decode result frame").
		WithDetail("bytes", 42)

	if qdberrors.IsType(err, qdberrors.ErrorTypeInternal) {
		fmt.Println("This is an internal error")
	}

	fmt.Println(err)

	// Output:
	// This is an internal error
	// internal: failed to decode result frame: unexpected EOF
}

// ExampleIsRetryable shows which errors a calling layer may retry.
func ExampleIsRetryable() {
	partial := qdberrors.New(qdberrors.ErrorTypePartialFailure, "2 of 3 tables applied")
	mismatch := qdberrors.New(qdberrors.ErrorTypeTypeMismatch, "column price is a double")

	fmt.Println(qdberrors.IsRetryable(partial))
	fmt.Println(qdberrors.IsRetryable(mismatch))

	// Output:
	// true
	// false
}

// Example_errorChain shows how IsType looks at the outermost structured error.
func Example_errorChain() {
	inner := qdberrors.New(qdberrors.ErrorTypeColumnNotFound, "column does not exist")
	outer := qdberrors.Wrap(inner, qdberrors.ErrorTypePartialFailure, "table skipped")

	fmt.Println(qdberrors.IsType(outer, qdberrors.ErrorTypePartialFailure))
	fmt.Println(qdberrors.IsType(outer, qdberrors.ErrorTypeColumnNotFound))
	fmt.Println(qdberrors.TypeOf(io.EOF))
	fmt.Println(outer)

	// Output:
	// true
	// false
	// internal
	// partial_failure: table skipped: column_not_found: column does not exist
}
