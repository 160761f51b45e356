// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package device defines the device runtime API consumed by the host-transfer collectives:
// streams, events, host-writable synchronization words, device buffers and pinned host memory.
//
// The collectives only need a small vocabulary from the runtime: enqueue asynchronous copies
// and event records on a stream, make a stream wait on an event or on a synchronization word,
// and query or block on events from the host. Implementations register themselves with Register,
// see package simdevice for an in-process one.
package device

import (
	"github.com/gomlx/gopjrt/dtypes"
)

// Location of a piece of memory.
type Location int

//go:generate go tool enumer -type=Location -trimprefix=Location -transform=kebab -output=gen_location_enumer.go device.go

const (
	// LocationHost is plain host memory, not registered with the device.
	LocationHost Location = iota

	// LocationPinnedHost is host memory registered with the device for asynchronous transfers.
	LocationPinnedHost

	// LocationDevice is device memory.
	LocationDevice
)

// Priority of a stream, within the range returned by Runtime.PriorityRange.
// Lower numbers are higher priorities, and DefaultPriority is always valid.
type Priority int

// DefaultPriority is the priority given to streams when none is requested.
const DefaultPriority Priority = 0

// Buffer is a flat array of elements of one dtype, owned by the runtime that created it.
type Buffer interface {
	DType() dtypes.DType

	// Len is the number of elements in the buffer.
	Len() int

	Location() Location
}

// Event marks a position in a stream. It is reached when all work enqueued in the stream
// before the record has completed.
//
// An event never recorded is considered reached.
type Event interface {
	// Query reports whether the last record of the event was reached, without blocking.
	Query() (bool, error)

	// Synchronize blocks the calling goroutine until the last record of the event is reached.
	Synchronize() error

	// Destroy releases the event. It must not be referenced by any stream afterwards.
	Destroy() error
}

// SyncWord is a 32-bit word of host memory that the host writes and the device reads,
// used to have a stream wait for a host decision without the host issuing stream calls.
type SyncWord interface {
	Load() int32
	Store(value int32)
}

// Stream is an ordered queue of device work. All methods enqueue work and return without
// waiting for it, except Synchronize.
type Stream interface {
	// CopyToHost enqueues a copy of len(dst) bytes from src, starting at byte srcOffset, into dst.
	CopyToHost(dst []byte, src Buffer, srcOffset int) error

	// CopyToDevice enqueues a copy of src into dst, starting at byte dstOffset.
	CopyToDevice(dst Buffer, dstOffset int, src []byte) error

	// Record enqueues event: it is reached once all previously enqueued work completes.
	// Re-recording an event moves it to the new position.
	Record(event Event) error

	// WaitEvent makes all work enqueued afterward wait for the event, as last recorded
	// at the time of this call. It doesn't block the host.
	WaitEvent(event Event) error

	// WaitValue makes all work enqueued afterward wait until word holds value.
	WaitValue(word SyncWord, value int32) error

	// Synchronize blocks until all work enqueued so far has completed.
	Synchronize() error

	// Destroy releases the stream once its pending work completes.
	Destroy() error
}

// Runtime is the device runtime: it creates streams, events, synchronization words and memory.
type Runtime interface {
	// Name of the runtime, e.g. "sim".
	Name() string

	NewStream(priority Priority) (Stream, error)

	// PriorityRange returns the least and greatest priorities supported by NewStream.
	PriorityRange() (least, greatest Priority, err error)

	NewEvent() (Event, error)

	// NewSyncWord allocates a synchronization word, initialized to 0, on its own cache line.
	NewSyncWord() (SyncWord, error)
	FreeSyncWord(word SyncWord) error

	// AllocHost allocates nbytes of host memory at the given location (LocationHost or LocationPinnedHost).
	AllocHost(loc Location, nbytes int) ([]byte, error)
	FreeHost(loc Location, mem []byte) error

	// AllocDevice allocates a device buffer of count elements of dtype.
	AllocDevice(dtype dtypes.DType, count int) (Buffer, error)

	// StreamMemOpsSupported reports whether streams can wait on synchronization words natively.
	StreamMemOpsSupported() bool

	// Finalize releases the runtime. Nothing it created may be used afterward.
	Finalize() error
}
