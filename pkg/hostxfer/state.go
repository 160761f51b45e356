// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hostxfer

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/hostxfer/pkg/core/device"
	"github.com/gomlx/hostxfer/pkg/core/hostcomm"
	"github.com/gomlx/hostxfer/pkg/core/mempool"
	"github.com/gomlx/hostxfer/pkg/core/progress"
	"github.com/gomlx/hostxfer/pkg/core/syncpoint"
	"github.com/pkg/errors"
)

// collective is implemented by the state of each operation: it embeds a *collectiveState,
// which provides the common hooks, and adds the operation specific ones.
type collective interface {
	progress.State

	// stageIn allocates the staging buffers, and enqueues the device to host copies.
	stageIn() error

	// stageOut enqueues the host to device copies of the results. It's enqueued behind the gate.
	stageOut() error
}

// collectiveState is the part common to all operations.
//
// On the stream, an operation is: stage in, start point, gate, stage out, end point. The engine
// starts the host call once the start point is reached, opens the gate once the host call
// completes, and releases the resources once the end point is reached.
type collectiveState struct {
	progress.Lifecycle

	name   string
	comm   *Communicator
	stream device.Stream

	start, end *syncpoint.Point
	gate       *syncpoint.Gate
	stages     []*mempool.Buffer
	requests   []hostcomm.Request
}

// newCollectiveState checks out the synchronization resources of an operation on stream.
func (c *Communicator) newCollectiveState(name string, stream device.Stream) (*collectiveState, error) {
	s := &collectiveState{
		name:   fmt.Sprintf("%s(rank %d/%d, comm %s)", name, c.Rank(), c.Size(), c.id),
		comm:   c,
		stream: stream,
	}
	var err error
	if s.start, err = c.backend.points.NewPoint(); err != nil {
		return nil, err
	}
	if s.end, err = c.backend.points.NewPoint(); err != nil {
		s.start.Release()
		return nil, err
	}
	if s.gate, err = c.backend.points.NewGate(); err != nil {
		s.start.Release()
		s.end.Release()
		return nil, err
	}
	return s, nil
}

// setup enqueues the whole operation on the stream.
func (s *collectiveState) setup(op collective) error {
	if err := op.stageIn(); err != nil {
		return err
	}
	if err := s.start.Record(s.stream); err != nil {
		return err
	}
	if err := s.gate.Arm(s.stream); err != nil {
		return err
	}
	if err := op.stageOut(); err != nil {
		return err
	}
	return s.end.Record(s.stream)
}

// abandon an operation that failed: the gate is opened so the stream doesn't hang, and the
// resources are not recycled, since the device or the host layer may still reference them.
func (s *collectiveState) abandon() {
	s.gate.Open()
}

// Name implements progress.State.
func (s *collectiveState) Name() string { return s.name }

// SequenceKey implements progress.Sequenced: host calls of a communicator are issued in order.
func (s *collectiveState) SequenceKey() any { return s.comm }

// StartReady implements progress.State.
func (s *collectiveState) StartReady() (bool, error) {
	return s.start.Query()
}

// IsComplete implements progress.State: it tests the outstanding host requests.
func (s *collectiveState) IsComplete() (bool, error) {
	for len(s.requests) > 0 {
		done, err := s.comm.comm.Test(s.requests[0])
		if err != nil {
			s.abandon()
			return false, errors.WithMessagef(err, "%s", s.name)
		}
		if !done {
			return false, nil
		}
		s.requests[0] = nil
		s.requests = s.requests[1:]
	}
	return true, nil
}

// OnFinish implements progress.State: it opens the gate, so that the device copies the
// results back.
func (s *collectiveState) OnFinish() error {
	s.gate.Open()
	return nil
}

// Finalize implements progress.State.
func (s *collectiveState) Finalize() (bool, error) {
	reached, err := s.end.Query()
	if err != nil || !reached {
		return false, err
	}
	for _, stage := range s.stages {
		s.comm.backend.staging.Release(stage)
	}
	s.stages = nil
	s.gate.Release()
	s.start.Release()
	s.end.Release()
	return true, nil
}

// signalEarly opens the gate when the host call is issued, for operations whose results are
// not visible on this device: the stream only needs to wait for the inputs to be staged.
func (s *collectiveState) signalEarly() {
	s.gate.Open()
}

// addRequest keeps the request of a host call. On error the operation is abandoned.
func (s *collectiveState) addRequest(req hostcomm.Request, err error) error {
	if err != nil {
		s.abandon()
		return errors.WithMessagef(err, "%s", s.name)
	}
	s.requests = append(s.requests, req)
	return nil
}

// newStage allocates a pinned staging buffer, owned by the state.
func (s *collectiveState) newStage(dtype dtypes.DType, count int) (*mempool.Buffer, error) {
	stage, err := s.comm.backend.staging.Allocate(device.LocationPinnedHost, dtype, count)
	if err != nil {
		return nil, err
	}
	s.stages = append(s.stages, stage)
	return stage, nil
}

// toHost enqueues the copy of count elements of src, starting at srcOffset, into stage at stageOffset.
func (s *collectiveState) toHost(stage *mempool.Buffer, stageOffset int, src device.Buffer, srcOffset, count int) error {
	elementSize := int(src.DType().Memory())
	return s.stream.CopyToHost(stage.Slice(stageOffset, count), src, srcOffset*elementSize)
}

// toDevice enqueues the copy of count elements of stage, starting at stageOffset, into dst at dstOffset.
func (s *collectiveState) toDevice(dst device.Buffer, dstOffset int, stage *mempool.Buffer, stageOffset, count int) error {
	elementSize := int(dst.DType().Memory())
	return s.stream.CopyToDevice(dst, dstOffset*elementSize, stage.Slice(stageOffset, count))
}

// hostBuffer returns the view of count elements of stage, starting at offset, for the host calls.
func hostBuffer(stage *mempool.Buffer, offset, count int) hostcomm.Buffer {
	return hostcomm.Buffer{Data: stage.Slice(offset, count), Count: count, DType: stage.DType()}
}

// noStageIn and noStageOut are embedded by operations without staging in one direction.
type noStageIn struct{}

func (noStageIn) stageIn() error { return nil }

type noStageOut struct{}

func (noStageOut) stageOut() error { return nil }
