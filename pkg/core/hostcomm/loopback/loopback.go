// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package loopback implements hostcomm.Comm for a group of ranks living in the same process,
// exchanging data through memory.
//
// Collectives are matched by the per-rank sequence number of the call: the i-th collective
// issued by every rank forms one round, and the last rank to arrive computes the results of
// every rank and completes their requests. Point-to-point messages are matched in FIFO order
// per (source, destination) pair; sends are buffered, so they complete immediately.
package loopback

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gomlx/hostxfer/pkg/core/hostcomm"
	"github.com/gomlx/hostxfer/pkg/support/xsync"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Native error codes.
const (
	CodeInvalidArgument = 1
	CodeMismatch        = 2
	CodeTruncated       = 3
	CodeInvalidRequest  = 4
	CodeInjectedFailure = 999
)

// World is the shared state of one group of ranks.
type World struct {
	id   uuid.UUID
	size int

	mu       sync.Mutex
	rounds   map[uint64]*round
	messages map[link][][]byte
	receives map[link][]*pendingRecv
}

type link struct{ source, dest int }

type pendingRecv struct {
	buf hostcomm.Buffer
	req *request
}

// NewWorld creates a group of size ranks and returns one Comm per rank, indexed by rank.
func NewWorld(size int) []*Comm {
	if size <= 0 {
		panic(errors.Errorf("loopback.NewWorld: invalid size %d", size))
	}
	w := &World{
		id:       uuid.New(),
		size:     size,
		rounds:   make(map[uint64]*round),
		messages: make(map[link][][]byte),
		receives: make(map[link][]*pendingRecv),
	}
	comms := make([]*Comm, size)
	for rank := range comms {
		comms[rank] = &Comm{world: w, rank: rank, failNext: make(map[string]int)}
	}
	klog.V(1).Infof("loopback: created world %s with %d ranks", w.id, size)
	return comms
}

// ID of the world, used in logs.
func (w *World) ID() uuid.UUID { return w.id }

// Comm implements hostcomm.Comm for one rank of a World.
type Comm struct {
	world *World
	rank  int
	seq   atomic.Uint64

	mu       sync.Mutex
	failNext map[string]int
}

// Compile-time check that Comm implements hostcomm.Comm.
var _ hostcomm.Comm = (*Comm)(nil)

// World returns the group the rank belongs to.
func (c *Comm) World() *World { return c.world }

// Rank implements hostcomm.Comm.
func (c *Comm) Rank() int { return c.rank }

// Size implements hostcomm.Comm.
func (c *Comm) Size() int { return c.world.size }

// String implements fmt.Stringer.
func (c *Comm) String() string {
	return fmt.Sprintf("loopback(%s)[%d/%d]", c.world.id, c.rank, c.world.size)
}

// FailNext makes the next call named call (e.g. "Iallreduce") issued by this rank fail with
// CodeInjectedFailure. It's meant for testing error paths.
func (c *Comm) FailNext(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext[call]++
}

func (c *Comm) checkInjected(call string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext[call] > 0 {
		c.failNext[call]--
		return hostcomm.NewError(call, CodeInjectedFailure, errors.Errorf("injected failure on %s", c))
	}
	return nil
}

// request is the hostcomm.Request returned by Comm.
type request struct {
	world    *World
	done     *xsync.Latch
	err      error
	consumed atomic.Bool
}

func newRequest(w *World) *request {
	return &request{world: w, done: xsync.NewLatch()}
}

// complete sets the result of the request. It must be called at most once.
func (r *request) complete(err error) {
	r.err = err
	r.done.Trigger()
}

// Test implements hostcomm.Comm.
func (c *Comm) Test(req hostcomm.Request) (bool, error) {
	r, ok := req.(*request)
	if !ok || r == nil || r.world != c.world {
		return false, hostcomm.NewError("Test", CodeInvalidRequest, errors.Errorf("request %T not issued by %s", req, c))
	}
	if !r.done.Test() {
		return false, nil
	}
	if r.consumed.Swap(true) {
		return false, hostcomm.NewError("Test", CodeInvalidRequest, errors.New("request tested after completion"))
	}
	return true, r.err
}

// Wait blocks until req completes, and consumes it. It's a convenience for tests.
func (c *Comm) Wait(req hostcomm.Request) error {
	if r, ok := req.(*request); ok && r != nil {
		r.done.Wait()
	}
	_, err := c.Test(req)
	return err
}

func (c *Comm) checkPeer(call string, peer int) error {
	if peer < 0 || peer >= c.world.size {
		return hostcomm.NewError(call, CodeInvalidArgument, errors.Errorf("rank %d out of range for %s", peer, c))
	}
	return nil
}

func checkBuffer(call, name string, buf hostcomm.Buffer, count int) error {
	if buf.Count != count {
		return hostcomm.NewError(call, CodeInvalidArgument,
			errors.Errorf("%s buffer has %d elements, expected %d", name, buf.Count, count))
	}
	if err := buf.Validate(); err != nil {
		return hostcomm.NewError(call, CodeInvalidArgument, errors.WithMessagef(err, "invalid %s buffer", name))
	}
	return nil
}

// Isend implements hostcomm.Comm. The data is copied, so the request completes immediately.
func (c *Comm) Isend(buf hostcomm.Buffer, dest int) (hostcomm.Request, error) {
	const call = "Isend"
	if err := c.checkPeer(call, dest); err != nil {
		return nil, err
	}
	if err := checkBuffer(call, "send", buf, buf.Count); err != nil {
		return nil, err
	}
	if err := c.checkInjected(call); err != nil {
		return nil, err
	}
	payload := make([]byte, buf.Bytes())
	copy(payload, buf.Data)

	w := c.world
	l := link{source: c.rank, dest: dest}
	w.mu.Lock()
	if pending := w.receives[l]; len(pending) > 0 {
		w.receives[l] = pending[1:]
		w.mu.Unlock()
		deliver(pending[0], payload)
	} else {
		w.messages[l] = append(w.messages[l], payload)
		w.mu.Unlock()
	}
	req := newRequest(w)
	req.complete(nil)
	return req, nil
}

// Irecv implements hostcomm.Comm.
func (c *Comm) Irecv(buf hostcomm.Buffer, source int) (hostcomm.Request, error) {
	const call = "Irecv"
	if err := c.checkPeer(call, source); err != nil {
		return nil, err
	}
	if err := checkBuffer(call, "receive", buf, buf.Count); err != nil {
		return nil, err
	}
	if err := c.checkInjected(call); err != nil {
		return nil, err
	}
	w := c.world
	l := link{source: source, dest: c.rank}
	recv := &pendingRecv{buf: buf, req: newRequest(w)}
	w.mu.Lock()
	if queued := w.messages[l]; len(queued) > 0 {
		w.messages[l] = queued[1:]
		w.mu.Unlock()
		deliver(recv, queued[0])
	} else {
		w.receives[l] = append(w.receives[l], recv)
		w.mu.Unlock()
	}
	return recv.req, nil
}

func deliver(recv *pendingRecv, payload []byte) {
	if len(payload) != recv.buf.Bytes() {
		recv.req.complete(hostcomm.NewError("Irecv", CodeTruncated,
			errors.Errorf("received message of %d bytes into a buffer of %d bytes", len(payload), recv.buf.Bytes())))
		return
	}
	copy(recv.buf.Data, payload)
	recv.req.complete(nil)
}
