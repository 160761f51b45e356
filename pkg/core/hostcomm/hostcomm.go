// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package hostcomm defines the host communication layer used by the host-transfer collectives:
// a process group that runs non-blocking collective and point-to-point operations on host memory,
// and is polled for completion.
//
// The transport is provided by implementations, see package loopback for an in-process one.
package hostcomm

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Buffer is a view of host memory holding Count elements of DType.
//
// Data must hold at least Count*DType.Memory() bytes.
type Buffer struct {
	Data  []byte
	Count int
	DType dtypes.DType
}

// Bytes returns the number of bytes spanned by the Count elements.
func (b Buffer) Bytes() int {
	return b.Count * int(b.DType.Memory())
}

// Validate checks that Data is large enough for Count elements.
func (b Buffer) Validate() error {
	if b.Count < 0 {
		return errors.Errorf("hostcomm.Buffer with negative count %d", b.Count)
	}
	if len(b.Data) < b.Bytes() {
		return errors.Errorf("hostcomm.Buffer with %d bytes, but %d elements of %s require %d bytes",
			len(b.Data), b.Count, b.DType, b.Bytes())
	}
	return nil
}

// InPlace is the zero Buffer. Passed as the send buffer (or the receive buffer of a scatter root)
// it means the operation works in place on the other buffer.
var InPlace = Buffer{}

// IsInPlace reports whether b is the in-place marker.
func (b Buffer) IsInPlace() bool { return b.Data == nil }

// ReduceOp selects the reduction of reducing collectives.
// Use ReduceOpString to parse a name, case-insensitive.
type ReduceOp int

//go:generate go tool enumer -type=ReduceOp -trimprefix=ReduceOp -output=gen_reduceop_enumer.go hostcomm.go

const (
	// ReduceOpSum adds the values of every rank.
	ReduceOpSum ReduceOp = iota

	// ReduceOpProd multiplies the values of every rank.
	ReduceOpProd

	// ReduceOpMin takes the minimum value.
	ReduceOpMin

	// ReduceOpMax takes the maximum value.
	ReduceOpMax

	// ReduceOpBitwiseOr is only valid for integer dtypes.
	ReduceOpBitwiseOr

	// ReduceOpBitwiseAnd is only valid for integer dtypes.
	ReduceOpBitwiseAnd

	// ReduceOpBitwiseXor is only valid for integer dtypes.
	ReduceOpBitwiseXor
)

// IsBitwise reports whether op is one of the bitwise reductions.
func (op ReduceOp) IsBitwise() bool {
	return op == ReduceOpBitwiseOr || op == ReduceOpBitwiseAnd || op == ReduceOpBitwiseXor
}

// Request is a handle of a non-blocking host operation, to be polled with Comm.Test.
//
// It is opaque: each implementation defines its own.
type Request interface{}

// Comm is a process group of Size ranks, from the point of view of one of them.
//
// All I* calls are non-blocking: they return a Request that completes once the operation
// finished and the receive buffers (in-place buffers for in-place operations) hold the result.
// The send buffers must not be modified until then. Every rank of the group must issue
// the same collectives in the same order, with consistent arguments (counts, roots, ops).
//
// Counts are per rank: for Iallgather, Igather, Iscatter and IreduceScatterBlock the aggregate
// buffer holds count*Size elements, ordered by rank.
type Comm interface {
	Rank() int
	Size() int

	Ibarrier() (Request, error)

	// Ibcast broadcasts buf from root into buf of every other rank.
	Ibcast(buf Buffer, root int) (Request, error)

	// Iallreduce reduces send of every rank into recv of every rank. If send is InPlace, recv is
	// used as both.
	Iallreduce(send, recv Buffer, op ReduceOp) (Request, error)

	// Iallgather gathers send (count elements) of every rank into recv (count*Size). If send
	// is InPlace, the contribution of this rank is taken from its slot of recv.
	Iallgather(send, recv Buffer) (Request, error)

	// Ialltoall sends the i-th slot of send to rank i, that stores it into its slot for this rank.
	// If send is InPlace, recv is used as both.
	Ialltoall(send, recv Buffer) (Request, error)

	// Igather gathers send of every rank into recv (count*Size) of root. Non-root ranks ignore recv.
	// If send is InPlace at root, its contribution is taken from its slot of recv.
	Igather(send, recv Buffer, root int) (Request, error)

	// Iscatter scatters the slots of send (count*Size) of root, one into recv of each rank.
	// Non-root ranks ignore send. If recv is InPlace at root, its slot of send is left in place.
	Iscatter(send, recv Buffer, root int) (Request, error)

	// Ireduce reduces send of every rank into recv of root. Non-root ranks ignore recv.
	// If send is InPlace at root, recv is used as both.
	Ireduce(send, recv Buffer, op ReduceOp, root int) (Request, error)

	// IreduceScatterBlock reduces send (count*Size) of every rank, and stores the i-th slot of
	// the result into recv (count) of rank i. If send is InPlace, recv holds count*Size elements
	// as input and the result is stored in its first slot.
	IreduceScatterBlock(send, recv Buffer, op ReduceOp) (Request, error)

	Isend(buf Buffer, dest int) (Request, error)
	Irecv(buf Buffer, source int) (Request, error)

	// Test reports whether the request completed, without blocking. Once it reports true the
	// request is consumed and must not be tested again.
	Test(req Request) (bool, error)
}

// Error is returned by implementations when a host communication call fails.
type Error struct {
	// Call is the name of the failed call, e.g. "Iallreduce".
	Call string

	// Code is the native error code of the implementation.
	Code int

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("host communication call %s failed with code %d: %v", e.Call, e.Code, e.Err)
	}
	return fmt.Sprintf("host communication call %s failed with code %d", e.Call, e.Code)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// NewError creates an Error with a stack trace attached.
func NewError(call string, code int, cause error) error {
	return errors.WithStack(&Error{Call: call, Code: code, Err: cause})
}

// AsError returns the host communication Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var commErr *Error
	if errors.As(err, &commErr) {
		return commErr, true
	}
	return nil, false
}
