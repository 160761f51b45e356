// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hostxfer

import (
	"github.com/gomlx/hostxfer/pkg/core/device"
	"github.com/gomlx/hostxfer/pkg/core/hostcomm"
	"github.com/gomlx/hostxfer/pkg/core/mempool"
)

// The states of each operation. Counts are per rank: aggregate stages hold count*Size elements,
// with the slot of rank r starting at element r*count.

type barrierState struct {
	*collectiveState
	noStageIn
	noStageOut
}

func (s *barrierState) OnStart() error {
	return s.addRequest(s.comm.comm.Ibarrier())
}

type bcastState struct {
	*collectiveState
	buf         device.Buffer
	count, root int
	stage       *mempool.Buffer
}

func (s *bcastState) isRoot() bool { return s.comm.Rank() == s.root }

func (s *bcastState) stageIn() (err error) {
	if s.stage, err = s.newStage(s.buf.DType(), s.count); err != nil {
		return err
	}
	if !s.isRoot() {
		return nil
	}
	return s.toHost(s.stage, 0, s.buf, 0, s.count)
}

func (s *bcastState) OnStart() error {
	if err := s.addRequest(s.comm.comm.Ibcast(hostBuffer(s.stage, 0, s.count), s.root)); err != nil {
		return err
	}
	if s.isRoot() {
		s.signalEarly()
	}
	return nil
}

func (s *bcastState) stageOut() error {
	if s.isRoot() {
		return nil
	}
	return s.toDevice(s.buf, 0, s.stage, 0, s.count)
}

type allreduceState struct {
	*collectiveState
	send, recv device.Buffer
	count      int
	op         hostcomm.ReduceOp
	stage      *mempool.Buffer
}

func (s *allreduceState) stageIn() (err error) {
	if s.stage, err = s.newStage(s.send.DType(), s.count); err != nil {
		return err
	}
	return s.toHost(s.stage, 0, s.send, 0, s.count)
}

func (s *allreduceState) OnStart() error {
	return s.addRequest(s.comm.comm.Iallreduce(hostcomm.InPlace, hostBuffer(s.stage, 0, s.count), s.op))
}

func (s *allreduceState) stageOut() error {
	return s.toDevice(s.recv, 0, s.stage, 0, s.count)
}

type allgatherState struct {
	*collectiveState
	send, recv device.Buffer
	count      int
	stage      *mempool.Buffer
}

func (s *allgatherState) stageIn() (err error) {
	size, rank := s.comm.Size(), s.comm.Rank()
	if s.stage, err = s.newStage(s.recv.DType(), s.count*size); err != nil {
		return err
	}
	srcOffset := 0
	if s.send == s.recv {
		srcOffset = rank * s.count
	}
	return s.toHost(s.stage, rank*s.count, s.send, srcOffset, s.count)
}

func (s *allgatherState) OnStart() error {
	total := s.count * s.comm.Size()
	return s.addRequest(s.comm.comm.Iallgather(hostcomm.InPlace, hostBuffer(s.stage, 0, total)))
}

func (s *allgatherState) stageOut() error {
	return s.toDevice(s.recv, 0, s.stage, 0, s.count*s.comm.Size())
}

type alltoallState struct {
	*collectiveState
	send, recv device.Buffer
	count      int
	stage      *mempool.Buffer
}

func (s *alltoallState) stageIn() (err error) {
	total := s.count * s.comm.Size()
	if s.stage, err = s.newStage(s.send.DType(), total); err != nil {
		return err
	}
	return s.toHost(s.stage, 0, s.send, 0, total)
}

func (s *alltoallState) OnStart() error {
	total := s.count * s.comm.Size()
	return s.addRequest(s.comm.comm.Ialltoall(hostcomm.InPlace, hostBuffer(s.stage, 0, total)))
}

func (s *alltoallState) stageOut() error {
	return s.toDevice(s.recv, 0, s.stage, 0, s.count*s.comm.Size())
}

// gatherState: at the root the stage holds every slot, elsewhere only the local contribution.
type gatherState struct {
	*collectiveState
	send, recv  device.Buffer
	count, root int
	stage       *mempool.Buffer
}

func (s *gatherState) isRoot() bool { return s.comm.Rank() == s.root }

func (s *gatherState) stageIn() (err error) {
	if !s.isRoot() {
		if s.stage, err = s.newStage(s.send.DType(), s.count); err != nil {
			return err
		}
		return s.toHost(s.stage, 0, s.send, 0, s.count)
	}
	rank := s.comm.Rank()
	if s.stage, err = s.newStage(s.send.DType(), s.count*s.comm.Size()); err != nil {
		return err
	}
	srcOffset := 0
	if s.send == s.recv {
		srcOffset = rank * s.count
	}
	return s.toHost(s.stage, rank*s.count, s.send, srcOffset, s.count)
}

func (s *gatherState) OnStart() error {
	if !s.isRoot() {
		if err := s.addRequest(s.comm.comm.Igather(hostBuffer(s.stage, 0, s.count), hostcomm.InPlace, s.root)); err != nil {
			return err
		}
		s.signalEarly()
		return nil
	}
	total := s.count * s.comm.Size()
	return s.addRequest(s.comm.comm.Igather(hostcomm.InPlace, hostBuffer(s.stage, 0, total), s.root))
}

func (s *gatherState) stageOut() error {
	if !s.isRoot() {
		return nil
	}
	return s.toDevice(s.recv, 0, s.stage, 0, s.count*s.comm.Size())
}

// scatterState: at the root the stage holds every slot, elsewhere only the received one.
type scatterState struct {
	*collectiveState
	send, recv  device.Buffer
	count, root int
	stage       *mempool.Buffer
}

func (s *scatterState) isRoot() bool { return s.comm.Rank() == s.root }

func (s *scatterState) stageIn() (err error) {
	if !s.isRoot() {
		s.stage, err = s.newStage(s.recv.DType(), s.count)
		return err
	}
	total := s.count * s.comm.Size()
	if s.stage, err = s.newStage(s.send.DType(), total); err != nil {
		return err
	}
	return s.toHost(s.stage, 0, s.send, 0, total)
}

func (s *scatterState) OnStart() error {
	if !s.isRoot() {
		return s.addRequest(s.comm.comm.Iscatter(hostcomm.InPlace, hostBuffer(s.stage, 0, s.count), s.root))
	}
	total := s.count * s.comm.Size()
	if err := s.addRequest(s.comm.comm.Iscatter(hostBuffer(s.stage, 0, total), hostcomm.InPlace, s.root)); err != nil {
		return err
	}
	if s.send == s.recv {
		s.signalEarly()
	}
	return nil
}

func (s *scatterState) stageOut() error {
	if !s.isRoot() {
		return s.toDevice(s.recv, 0, s.stage, 0, s.count)
	}
	if s.send == s.recv {
		// The slot of the root is already in place.
		return nil
	}
	return s.toDevice(s.recv, 0, s.stage, s.comm.Rank()*s.count, s.count)
}

type reduceState struct {
	*collectiveState
	send, recv  device.Buffer
	count, root int
	op          hostcomm.ReduceOp
	stage       *mempool.Buffer
}

func (s *reduceState) isRoot() bool { return s.comm.Rank() == s.root }

func (s *reduceState) stageIn() (err error) {
	if s.stage, err = s.newStage(s.send.DType(), s.count); err != nil {
		return err
	}
	return s.toHost(s.stage, 0, s.send, 0, s.count)
}

func (s *reduceState) OnStart() error {
	if !s.isRoot() {
		if err := s.addRequest(s.comm.comm.Ireduce(hostBuffer(s.stage, 0, s.count), hostcomm.InPlace, s.op, s.root)); err != nil {
			return err
		}
		s.signalEarly()
		return nil
	}
	return s.addRequest(s.comm.comm.Ireduce(hostcomm.InPlace, hostBuffer(s.stage, 0, s.count), s.op, s.root))
}

func (s *reduceState) stageOut() error {
	if !s.isRoot() {
		return nil
	}
	return s.toDevice(s.recv, 0, s.stage, 0, s.count)
}

// reduceScatterState reduces count*Size elements of every rank, and keeps the slot of this rank.
// The result of the slot is left in the first count elements of the stage.
type reduceScatterState struct {
	*collectiveState
	send, recv device.Buffer
	count      int
	op         hostcomm.ReduceOp
	stage      *mempool.Buffer
}

func (s *reduceScatterState) stageIn() (err error) {
	total := s.count * s.comm.Size()
	if s.stage, err = s.newStage(s.send.DType(), total); err != nil {
		return err
	}
	return s.toHost(s.stage, 0, s.send, 0, total)
}

func (s *reduceScatterState) OnStart() error {
	total := s.count * s.comm.Size()
	return s.addRequest(s.comm.comm.IreduceScatterBlock(hostcomm.InPlace, hostBuffer(s.stage, 0, total), s.op))
}

func (s *reduceScatterState) stageOut() error {
	return s.toDevice(s.recv, 0, s.stage, 0, s.count)
}

// p2pHalf is one direction of a point-to-point operation. A zero count half is skipped.
type p2pHalf struct {
	buf   device.Buffer
	count int
	peer  int
	stage *mempool.Buffer
}

func (h *p2pHalf) active() bool { return h.count > 0 }

// sendRecvState implements Send, Recv and SendRecv.
type sendRecvState struct {
	*collectiveState
	send, recv p2pHalf
}

func (s *sendRecvState) stageIn() (err error) {
	if s.recv.active() {
		if s.recv.stage, err = s.newStage(s.recv.buf.DType(), s.recv.count); err != nil {
			return err
		}
	}
	if !s.send.active() {
		return nil
	}
	if s.send.stage, err = s.newStage(s.send.buf.DType(), s.send.count); err != nil {
		return err
	}
	return s.toHost(s.send.stage, 0, s.send.buf, 0, s.send.count)
}

func (s *sendRecvState) OnStart() error {
	if s.recv.active() {
		if err := s.addRequest(s.comm.comm.Irecv(hostBuffer(s.recv.stage, 0, s.recv.count), s.recv.peer)); err != nil {
			return err
		}
	}
	if s.send.active() {
		if err := s.addRequest(s.comm.comm.Isend(hostBuffer(s.send.stage, 0, s.send.count), s.send.peer)); err != nil {
			return err
		}
	}
	if !s.recv.active() {
		s.signalEarly()
	}
	return nil
}

func (s *sendRecvState) stageOut() error {
	if !s.recv.active() {
		return nil
	}
	return s.toDevice(s.recv.buf, 0, s.recv.stage, 0, s.recv.count)
}
