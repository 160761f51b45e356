// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error is returned by runtimes when a device primitive fails. It carries the name of
// the primitive and the runtime's native error code.
type Error struct {
	// Primitive is the name of the failed call, e.g. "cudaMemcpyAsync".
	Primitive string

	// Code is the native error code of the runtime.
	Code int

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("device primitive %s failed with code %d: %v", e.Primitive, e.Code, e.Err)
	}
	return fmt.Sprintf("device primitive %s failed with code %d", e.Primitive, e.Code)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// NewError creates an Error with a stack trace attached.
func NewError(primitive string, code int, cause error) error {
	return errors.WithStack(&Error{Primitive: primitive, Code: code, Err: cause})
}

// AsError returns the device Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var devErr *Error
	if errors.As(err, &devErr) {
		return devErr, true
	}
	return nil, false
}
