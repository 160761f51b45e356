// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hostxfer

import (
	"runtime"
	"sync"

	"github.com/gomlx/hostxfer/internal/fatal"
	"github.com/gomlx/hostxfer/pkg/core/device"
	"github.com/gomlx/hostxfer/pkg/core/syncpoint"
)

// Request is the handle of a non-blocking operation.
//
// The nil *Request is the null request, returned by operations with nothing to do: it is
// always complete. Otherwise, once completion is observed (by Test, Wait or StreamWait) the
// request becomes inert and further calls return immediately. It's safe to use concurrently.
type Request struct {
	origin device.Stream

	mu      sync.Mutex
	point   *syncpoint.Point
	cleanup runtime.Cleanup
}

// newRequest takes ownership of point, recorded after the operation on the stream it ran.
// origin is the stream of the communicator, used by StreamWait.
func newRequest(point *syncpoint.Point, origin device.Stream) *Request {
	r := &Request{point: point, origin: origin}
	// Requests dropped without being observed return their point to the pool.
	r.cleanup = runtime.AddCleanup(r, func(point *syncpoint.Point) { point.Release() }, point)
	return r
}

// lockedRelease releases the point and makes the request inert. It must be called with r.mu locked.
func (r *Request) lockedRelease() {
	r.cleanup.Stop()
	r.point.Release()
	r.point = nil
}

// Test reports whether the operation completed, without blocking.
func (r *Request) Test() bool {
	if r == nil {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.point == nil {
		return true
	}
	reached, err := r.point.Query()
	if err != nil {
		fatal.Report(err, "hostxfer: testing request")
		reached = true
	}
	if reached {
		r.lockedRelease()
	}
	return reached
}

// Wait blocks the calling goroutine until the operation completes.
func (r *Request) Wait() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.point == nil {
		return
	}
	if err := r.point.Block(); err != nil {
		fatal.Report(err, "hostxfer: waiting for request")
	}
	r.lockedRelease()
}

// StreamWait makes work enqueued afterward on the communicator stream wait for the operation
// to complete, without blocking the calling goroutine. The request becomes inert.
func (r *Request) StreamWait() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.point == nil {
		return
	}
	if err := r.point.WaitOn(r.origin); err != nil {
		fatal.Report(err, "hostxfer: enqueuing wait for request")
	}
	r.lockedRelease()
}

// WaitAll waits for every request. Nil requests are complete.
func WaitAll(reqs ...*Request) {
	for _, r := range reqs {
		r.Wait()
	}
}
