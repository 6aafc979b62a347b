// Package errors provides examples of structured error handling in pipeflow.
package errors_test

import (
	"context"
	"fmt"
	"io"

	"github.com/ajitpratap0/pipeflow/pkg/errors"
)

// Example demonstrates basic error creation and details.
func Example() {
	err := errors.New(errors.ErrorTypeLoad, "batch insert failed").
		WithDetail("batch", 3).
		WithDetail("table", "users")

	fmt.Println(err.Error())

	// Output:
	// load: batch insert failed
}

// ExampleWrap shows how to wrap an extraction failure with its source position.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeExtraction, "malformed JSON line").
		WithDetail("line", 42)

	if errors.IsType(err, errors.ErrorTypeExtraction) {
		fmt.Println("recoverable extraction error")
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("caused by unexpected EOF")
	}
	line, _ := errors.Detail(err, "line")
	fmt.Println("line", line)

	// Output:
	// recoverable extraction error
	// caused by unexpected EOF
	// line 42
}

// ExampleIsRetryable shows which error types the API client retries.
func ExampleIsRetryable() {
	fmt.Println(errors.IsRetryable(errors.New(errors.ErrorTypeRateLimit, "429 too many requests")))
	fmt.Println(errors.IsRetryable(errors.New(errors.ErrorTypeConnection, "connection reset")))
	fmt.Println(errors.IsRetryable(errors.New(errors.ErrorTypeValidation, "bad field")))
	fmt.Println(errors.IsRetryable(context.Canceled))

	// Output:
	// true
	// true
	// false
	// false
}

// ExampleGetType demonstrates reading the category of a wrapped error.
func ExampleGetType() {
	base := errors.New(errors.ErrorTypeConnection, "database unreachable")
	err := errors.Wrapf(base, errors.ErrorTypeLoad, "open %s", "sqlite")

	fmt.Println(errors.GetType(err))
	fmt.Println(errors.GetType(io.EOF))
	fmt.Println(err)

	// Output:
	// load
	// internal
	// load: open sqlite: connection: database unreachable
}
