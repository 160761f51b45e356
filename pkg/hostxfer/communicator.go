// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hostxfer

import (
	"fmt"
	"sync"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/hostxfer/internal/fatal"
	"github.com/gomlx/hostxfer/pkg/core/device"
	"github.com/gomlx/hostxfer/pkg/core/hostcomm"
	"github.com/gomlx/hostxfer/pkg/core/syncpoint"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Communicator runs collectives of a host process group, ordered by a device stream.
//
// It references the host group and the stream, the caller keeps their ownership.
// It's safe to issue operations from multiple goroutines, but every rank must issue the
// collectives of the group in the same order.
//
// Non-blocking operations run on internal streams of the communicator, created on first use:
// a gate only holds back operations of its own group.
type Communicator struct {
	backend *Backend
	comm    hostcomm.Comm
	stream  device.Stream
	id      uuid.UUID

	muStreams       sync.Mutex
	internalStreams []device.Stream
	nextStream      int
}

// NewCommunicator creates a Communicator for the host process group comm, whose blocking
// operations run on stream.
func (b *Backend) NewCommunicator(comm hostcomm.Comm, stream device.Stream) *Communicator {
	return &Communicator{
		backend: b,
		comm:    comm,
		stream:  stream,
		id:      uuid.New(),
	}
}

// Rank of this process in the group.
func (c *Communicator) Rank() int { return c.comm.Rank() }

// Size of the group.
func (c *Communicator) Size() int { return c.comm.Size() }

// Stream the operations of the communicator are ordered by.
func (c *Communicator) Stream() device.Stream { return c.stream }

// ID of the communicator, used in logs.
func (c *Communicator) ID() uuid.UUID { return c.id }

// Backend of the communicator.
func (c *Communicator) Backend() *Backend { return c.backend }

// String implements fmt.Stringer.
func (c *Communicator) String() string {
	return fmt.Sprintf("Communicator(%s, rank %d/%d)", c.id, c.comm.Rank(), c.comm.Size())
}

// opBuilder creates the state of an operation running on stream.
type opBuilder func(base *collectiveState) collective

// blocking runs the operation on the communicator stream, and waits for it to complete.
func (c *Communicator) blocking(name string, build opBuilder) error {
	b := c.backend
	b.mu.RLock()
	if err := b.lockedCheckLive(); err != nil {
		b.mu.RUnlock()
		return err
	}
	done, err := c.issue(name, c.stream, build)
	b.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := done.Block(); err != nil {
		fatal.Report(err, "%s: waiting for %s to complete", c, name)
	}
	done.Release()
	return nil
}

// nonblocking runs the operation on the next internal stream, after the work already enqueued
// in the communicator stream, and returns a request for its completion.
func (c *Communicator) nonblocking(name string, build opBuilder) (*Request, error) {
	b := c.backend
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.lockedCheckLive(); err != nil {
		return nil, err
	}
	stream, err := c.lockedInternalStream()
	if err != nil {
		fatal.Report(err, "%s: creating internal streams for %s", c, name)
		return nil, err
	}
	if err := c.syncStreams(stream); err != nil {
		fatal.Report(err, "%s: synchronizing internal stream for %s", c, name)
		return nil, err
	}
	done, err := c.issue(name, stream, build)
	if err != nil {
		return nil, err
	}
	return newRequest(done, c.stream), nil
}

// lockedInternalStream returns the next internal stream of the communicator, round-robin, creating
// them on the first call. It must be called with the backend mu held.
//
// The streams are selected in issue order, which is the same on every rank.
func (c *Communicator) lockedInternalStream() (device.Stream, error) {
	c.muStreams.Lock()
	defer c.muStreams.Unlock()
	if c.internalStreams == nil {
		streams, err := c.backend.lockedNewInternalStreams()
		if err != nil {
			return nil, err
		}
		c.internalStreams = streams
	}
	stream := c.internalStreams[c.nextStream%len(c.internalStreams)]
	c.nextStream++
	return stream, nil
}

// syncStreams makes stream wait for the work already enqueued in the communicator stream.
func (c *Communicator) syncStreams(stream device.Stream) error {
	ordering, err := c.backend.points.NewPoint()
	if err != nil {
		return err
	}
	// The wait captures the record: the point can be released right away.
	defer ordering.Release()
	if err := ordering.Record(c.stream); err != nil {
		return err
	}
	return ordering.WaitOn(stream)
}

// issue builds the operation on stream, admits it to the progress engine, and returns a point
// recorded on stream after it.
//
// Failures are primitive failures: they are reported as fatal, and returned if the fatal
// handler returns.
func (c *Communicator) issue(name string, stream device.Stream, build opBuilder) (*syncpoint.Point, error) {
	base, err := c.newCollectiveState(name, stream)
	if err != nil {
		fatal.Report(err, "%s: allocating resources for %s", c, name)
		return nil, err
	}
	op := build(base)
	if err := base.setup(op); err != nil {
		fatal.Report(err, "%s: enqueuing %s", c, name)
		base.abandon()
		return nil, err
	}
	c.backend.engine.Enqueue(op)

	done, err := c.backend.points.NewPoint()
	if err == nil {
		err = done.Record(stream)
	}
	if err != nil {
		fatal.Report(err, "%s: recording completion of %s", c, name)
		return nil, err
	}
	return done, nil
}

// Argument validation: these are usage errors, returned before anything is issued.

func checkBuffer(name string, buf device.Buffer, count int) error {
	if buf == nil {
		return errors.Errorf("nil %s buffer", name)
	}
	if buf.Len() < count {
		return errors.Errorf("%s buffer has %d elements, but %d are required", name, buf.Len(), count)
	}
	if buf.DType().Memory() == 0 {
		return errors.Errorf("%s buffer has unsupported dtype %s", name, buf.DType())
	}
	return nil
}

func checkSameDType(send, recv device.Buffer) error {
	if send.DType() != recv.DType() {
		return errors.Errorf("send buffer has dtype %s, but receive buffer has dtype %s", send.DType(), recv.DType())
	}
	return nil
}

func checkCount(count int) error {
	if count < 0 {
		return errors.Errorf("invalid negative count %d", count)
	}
	return nil
}

func (c *Communicator) checkRank(name string, rank int) error {
	if rank < 0 || rank >= c.Size() {
		return errors.Errorf("%s %d out of range for group of size %d", name, rank, c.Size())
	}
	return nil
}

func checkReduction(op hostcomm.ReduceOp, dtype dtypes.DType) error {
	if op < hostcomm.ReduceOpSum || op > hostcomm.ReduceOpBitwiseXor {
		return errors.Errorf("invalid reduction %s", op)
	}
	if op.IsBitwise() && !dtype.IsInt() {
		return errors.Errorf("bitwise reduction %s requires an integer dtype, got %s", op, dtype)
	}
	return nil
}
