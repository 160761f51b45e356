// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package progress

import (
	"sync/atomic"

	"github.com/gomlx/exceptions"
)

// Status of a State in its lifecycle. It only moves forward:
//
//	Created → WaitingStart → Running → Finalizing → Done
type Status int32

//go:generate go tool enumer -type=Status -output=gen_status_enumer.go state.go

const (
	// Created is the status of a State not yet given to an Engine.
	Created Status = iota

	// WaitingStart states were admitted, and wait for their start point on the device.
	WaitingStart

	// Running states issued their host operation, and wait for it to complete.
	Running

	// Finalizing states completed their host operation, and wait for the device to consume the results.
	Finalizing

	// Done states released all their resources, and were dropped by the engine.
	Done
)

// Lifecycle holds the Status of a State. Embed it in State implementations: only the Engine
// advances it.
type Lifecycle struct {
	status atomic.Int32
}

// Status implements State.
func (l *Lifecycle) Status() Status { return Status(l.status.Load()) }

// lifecycle implements State.
func (l *Lifecycle) lifecycle() *Lifecycle { return l }

// advance moves to status to, and panics if it's not ahead of the current status.
func (l *Lifecycle) advance(to Status) {
	from := Status(l.status.Load())
	if to <= from || to > Done {
		exceptions.Panicf("progress: invalid status transition %s -> %s", from, to)
	}
	l.status.Store(int32(to))
}

// State is an operation driven by the Engine. Its hooks are only called from the engine
// goroutine, so they don't need to synchronize among themselves, and they must not block.
type State interface {
	// Name of the operation, for logging.
	Name() string

	// Status is implemented by the embedded Lifecycle.
	Status() Status

	// StartReady reports whether the operation can start: whether the device reached the point
	// where its inputs are staged.
	StartReady() (bool, error)

	// OnStart starts the operation, typically issuing a non-blocking host call.
	OnStart() error

	// IsComplete reports whether the operation started by OnStart completed.
	IsComplete() (bool, error)

	// OnFinish is called once, after IsComplete returned true, typically to let the device consume the results.
	OnFinish() error

	// Finalize reports whether the device is done with the resources of the operation, and if so releases them.
	// It's called until it returns true.
	Finalize() (bool, error)

	lifecycle() *Lifecycle
}

// Sequenced is implemented by States that must start in admission order relative to other
// states with the same key: a later state is not started while an earlier one with the same
// key is waiting to start.
//
// Operations sharing a process group use it, since the group matches operations by issue order.
type Sequenced interface {
	SequenceKey() any
}
