// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hostxfer

import (
	"github.com/gomlx/hostxfer/pkg/core/device"
	"github.com/gomlx/hostxfer/pkg/core/hostcomm"
	"github.com/pkg/errors"
)

// Every operation comes in two calling modes:
//
//   - Blocking (e.g. Allreduce): it's enqueued on the communicator stream, and the call returns
//     once it completed.
//   - Non-blocking (e.g. NonblockingAllreduce): it's enqueued on an internal stream, after the
//     work already enqueued on the communicator stream, and it returns a Request. Use
//     Request.StreamWait to order later work of the communicator stream after it.
//
// Counts are per rank. Operations with a zero count do nothing and their other arguments are
// not checked: the non-blocking versions return a nil Request. Passing the same buffer as send and receive buffer runs the operation
// in place. Invalid arguments are returned as errors, and nothing is enqueued.

// run dispatches build in the blocking mode. A nil build is a no-op.
func (c *Communicator) run(name string, build opBuilder, err error) error {
	if err != nil {
		return errors.WithMessagef(err, "%s.%s", c, name)
	}
	if build == nil {
		return nil
	}
	return c.blocking(name, build)
}

// start dispatches build in the non-blocking mode. A nil build is a no-op.
func (c *Communicator) start(name string, build opBuilder, err error) (*Request, error) {
	if err != nil {
		return nil, errors.WithMessagef(err, "%s.Nonblocking%s", c, name)
	}
	if build == nil {
		return nil, nil
	}
	return c.nonblocking(name, build)
}

// Barrier blocks until every rank of the group reached it.
func (c *Communicator) Barrier(algo CollectiveAlgorithm) error {
	build, err := c.barrier(algo)
	return c.run("Barrier", build, err)
}

// NonblockingBarrier is the non-blocking version of Barrier.
func (c *Communicator) NonblockingBarrier(algo CollectiveAlgorithm) (*Request, error) {
	build, err := c.barrier(algo)
	return c.start("Barrier", build, err)
}

func (c *Communicator) barrier(algo CollectiveAlgorithm) (opBuilder, error) {
	if err := algo.validate(); err != nil {
		return nil, err
	}
	return func(base *collectiveState) collective {
		return &barrierState{collectiveState: base}
	}, nil
}

// Bcast broadcasts count elements of buf from root into buf of every other rank.
func (c *Communicator) Bcast(buf device.Buffer, count, root int, algo CollectiveAlgorithm) error {
	build, err := c.bcast(buf, count, root, algo)
	return c.run("Bcast", build, err)
}

// NonblockingBcast is the non-blocking version of Bcast.
func (c *Communicator) NonblockingBcast(buf device.Buffer, count, root int, algo CollectiveAlgorithm) (*Request, error) {
	build, err := c.bcast(buf, count, root, algo)
	return c.start("Bcast", build, err)
}

func (c *Communicator) bcast(buf device.Buffer, count, root int, algo CollectiveAlgorithm) (opBuilder, error) {
	if count == 0 {
		return nil, nil
	}
	if err := algo.validate(); err != nil {
		return nil, err
	}
	if err := checkCount(count); err != nil {
		return nil, err
	}
	if err := c.checkRank("root", root); err != nil {
		return nil, err
	}
	if err := checkBuffer("broadcast", buf, count); err != nil {
		return nil, err
	}
	return func(base *collectiveState) collective {
		return &bcastState{collectiveState: base, buf: buf, count: count, root: root}
	}, nil
}

// Allreduce reduces count elements of send of every rank with op, into recv of every rank.
func (c *Communicator) Allreduce(send, recv device.Buffer, count int, op hostcomm.ReduceOp, algo AllreduceAlgorithm) error {
	build, err := c.allreduce(send, recv, count, op, algo)
	return c.run("Allreduce", build, err)
}

// NonblockingAllreduce is the non-blocking version of Allreduce.
func (c *Communicator) NonblockingAllreduce(send, recv device.Buffer, count int, op hostcomm.ReduceOp, algo AllreduceAlgorithm) (*Request, error) {
	build, err := c.allreduce(send, recv, count, op, algo)
	return c.start("Allreduce", build, err)
}

func (c *Communicator) allreduce(send, recv device.Buffer, count int, op hostcomm.ReduceOp, algo AllreduceAlgorithm) (opBuilder, error) {
	if count == 0 {
		return nil, nil
	}
	if err := algo.validate(); err != nil {
		return nil, err
	}
	if err := checkCount(count); err != nil {
		return nil, err
	}
	if err := checkSendRecv(send, count, recv, count); err != nil {
		return nil, err
	}
	if err := checkReduction(op, send.DType()); err != nil {
		return nil, err
	}
	return func(base *collectiveState) collective {
		return &allreduceState{collectiveState: base, send: send, recv: recv, count: count, op: op}
	}, nil
}

// Allgather gathers count elements of send of every rank, into recv (count*Size elements,
// ordered by rank) of every rank. In place, the contribution of each rank is read from its slot of recv.
func (c *Communicator) Allgather(send, recv device.Buffer, count int, algo CollectiveAlgorithm) error {
	build, err := c.allgather(send, recv, count, algo)
	return c.run("Allgather", build, err)
}

// NonblockingAllgather is the non-blocking version of Allgather.
func (c *Communicator) NonblockingAllgather(send, recv device.Buffer, count int, algo CollectiveAlgorithm) (*Request, error) {
	build, err := c.allgather(send, recv, count, algo)
	return c.start("Allgather", build, err)
}

func (c *Communicator) allgather(send, recv device.Buffer, count int, algo CollectiveAlgorithm) (opBuilder, error) {
	if count == 0 {
		return nil, nil
	}
	if err := algo.validate(); err != nil {
		return nil, err
	}
	if err := checkCount(count); err != nil {
		return nil, err
	}
	sendCount := count
	if send == recv {
		sendCount = count * c.Size()
	}
	if err := checkSendRecv(send, sendCount, recv, count*c.Size()); err != nil {
		return nil, err
	}
	return func(base *collectiveState) collective {
		return &allgatherState{collectiveState: base, send: send, recv: recv, count: count}
	}, nil
}

// Alltoall sends the i-th slot (count elements) of send to rank i, which stores it in the slot
// of this rank of recv. Both buffers hold count*Size elements.
func (c *Communicator) Alltoall(send, recv device.Buffer, count int, algo CollectiveAlgorithm) error {
	build, err := c.alltoall(send, recv, count, algo)
	return c.run("Alltoall", build, err)
}

// NonblockingAlltoall is the non-blocking version of Alltoall.
func (c *Communicator) NonblockingAlltoall(send, recv device.Buffer, count int, algo CollectiveAlgorithm) (*Request, error) {
	build, err := c.alltoall(send, recv, count, algo)
	return c.start("Alltoall", build, err)
}

func (c *Communicator) alltoall(send, recv device.Buffer, count int, algo CollectiveAlgorithm) (opBuilder, error) {
	if count == 0 {
		return nil, nil
	}
	if err := algo.validate(); err != nil {
		return nil, err
	}
	if err := checkCount(count); err != nil {
		return nil, err
	}
	total := count * c.Size()
	if err := checkSendRecv(send, total, recv, total); err != nil {
		return nil, err
	}
	return func(base *collectiveState) collective {
		return &alltoallState{collectiveState: base, send: send, recv: recv, count: count}
	}, nil
}

// Gather gathers count elements of send of every rank into recv (count*Size elements) of root.
// recv is only used at the root, and may be nil elsewhere.
func (c *Communicator) Gather(send, recv device.Buffer, count, root int, algo CollectiveAlgorithm) error {
	build, err := c.gather(send, recv, count, root, algo)
	return c.run("Gather", build, err)
}

// NonblockingGather is the non-blocking version of Gather.
func (c *Communicator) NonblockingGather(send, recv device.Buffer, count, root int, algo CollectiveAlgorithm) (*Request, error) {
	build, err := c.gather(send, recv, count, root, algo)
	return c.start("Gather", build, err)
}

func (c *Communicator) gather(send, recv device.Buffer, count, root int, algo CollectiveAlgorithm) (opBuilder, error) {
	if count == 0 {
		return nil, nil
	}
	if err := algo.validate(); err != nil {
		return nil, err
	}
	if err := checkCount(count); err != nil {
		return nil, err
	}
	if err := c.checkRank("root", root); err != nil {
		return nil, err
	}
	if c.Rank() != root {
		if err := checkBuffer("send", send, count); err != nil {
			return nil, err
		}
	} else {
		sendCount := count
		if send == recv {
			sendCount = count * c.Size()
		}
		if err := checkSendRecv(send, sendCount, recv, count*c.Size()); err != nil {
			return nil, err
		}
	}
	return func(base *collectiveState) collective {
		return &gatherState{collectiveState: base, send: send, recv: recv, count: count, root: root}
	}, nil
}

// Scatter sends the i-th slot (count elements) of send of root into recv of rank i. send holds
// count*Size elements, and is only used at the root: it may be nil elsewhere.
func (c *Communicator) Scatter(send, recv device.Buffer, count, root int, algo CollectiveAlgorithm) error {
	build, err := c.scatter(send, recv, count, root, algo)
	return c.run("Scatter", build, err)
}

// NonblockingScatter is the non-blocking version of Scatter.
func (c *Communicator) NonblockingScatter(send, recv device.Buffer, count, root int, algo CollectiveAlgorithm) (*Request, error) {
	build, err := c.scatter(send, recv, count, root, algo)
	return c.start("Scatter", build, err)
}

func (c *Communicator) scatter(send, recv device.Buffer, count, root int, algo CollectiveAlgorithm) (opBuilder, error) {
	if count == 0 {
		return nil, nil
	}
	if err := algo.validate(); err != nil {
		return nil, err
	}
	if err := checkCount(count); err != nil {
		return nil, err
	}
	if err := c.checkRank("root", root); err != nil {
		return nil, err
	}
	if c.Rank() != root {
		if err := checkBuffer("receive", recv, count); err != nil {
			return nil, err
		}
	} else {
		recvCount := count
		if send == recv {
			recvCount = count * c.Size()
		}
		if err := checkSendRecv(send, count*c.Size(), recv, recvCount); err != nil {
			return nil, err
		}
	}
	return func(base *collectiveState) collective {
		return &scatterState{collectiveState: base, send: send, recv: recv, count: count, root: root}
	}, nil
}

// Reduce reduces count elements of send of every rank with op, into recv of root. recv is only
// used at the root, and may be nil elsewhere.
func (c *Communicator) Reduce(send, recv device.Buffer, count int, op hostcomm.ReduceOp, root int, algo CollectiveAlgorithm) error {
	build, err := c.reduce(send, recv, count, op, root, algo)
	return c.run("Reduce", build, err)
}

// NonblockingReduce is the non-blocking version of Reduce.
func (c *Communicator) NonblockingReduce(send, recv device.Buffer, count int, op hostcomm.ReduceOp, root int, algo CollectiveAlgorithm) (*Request, error) {
	build, err := c.reduce(send, recv, count, op, root, algo)
	return c.start("Reduce", build, err)
}

func (c *Communicator) reduce(send, recv device.Buffer, count int, op hostcomm.ReduceOp, root int, algo CollectiveAlgorithm) (opBuilder, error) {
	if count == 0 {
		return nil, nil
	}
	if err := algo.validate(); err != nil {
		return nil, err
	}
	if err := checkCount(count); err != nil {
		return nil, err
	}
	if err := c.checkRank("root", root); err != nil {
		return nil, err
	}
	if c.Rank() != root {
		if err := checkBuffer("send", send, count); err != nil {
			return nil, err
		}
	} else if err := checkSendRecv(send, count, recv, count); err != nil {
		return nil, err
	}
	if err := checkReduction(op, send.DType()); err != nil {
		return nil, err
	}
	return func(base *collectiveState) collective {
		return &reduceState{collectiveState: base, send: send, recv: recv, count: count, op: op, root: root}
	}, nil
}

// ReduceScatter reduces send (count*Size elements) of every rank with op, and stores the i-th
// slot of the result into recv (count elements) of rank i. In place, recv holds count*Size
// elements and the result is stored in its first count elements.
func (c *Communicator) ReduceScatter(send, recv device.Buffer, count int, op hostcomm.ReduceOp, algo CollectiveAlgorithm) error {
	build, err := c.reduceScatter(send, recv, count, op, algo)
	return c.run("ReduceScatter", build, err)
}

// NonblockingReduceScatter is the non-blocking version of ReduceScatter.
func (c *Communicator) NonblockingReduceScatter(send, recv device.Buffer, count int, op hostcomm.ReduceOp, algo CollectiveAlgorithm) (*Request, error) {
	build, err := c.reduceScatter(send, recv, count, op, algo)
	return c.start("ReduceScatter", build, err)
}

func (c *Communicator) reduceScatter(send, recv device.Buffer, count int, op hostcomm.ReduceOp, algo CollectiveAlgorithm) (opBuilder, error) {
	if count == 0 {
		return nil, nil
	}
	if err := algo.validate(); err != nil {
		return nil, err
	}
	if err := checkCount(count); err != nil {
		return nil, err
	}
	recvCount := count
	if send == recv {
		recvCount = count * c.Size()
	}
	if err := checkSendRecv(send, count*c.Size(), recv, recvCount); err != nil {
		return nil, err
	}
	if err := checkReduction(op, send.DType()); err != nil {
		return nil, err
	}
	return func(base *collectiveState) collective {
		return &reduceScatterState{collectiveState: base, send: send, recv: recv, count: count, op: op}
	}, nil
}

// Send sends count elements of buf to rank dest. Messages between two ranks are received in
// the order they were sent.
func (c *Communicator) Send(buf device.Buffer, count, dest int) error {
	build, err := c.sendRecv(buf, count, dest, nil, 0, 0)
	return c.run("Send", build, err)
}

// NonblockingSend is the non-blocking version of Send.
func (c *Communicator) NonblockingSend(buf device.Buffer, count, dest int) (*Request, error) {
	build, err := c.sendRecv(buf, count, dest, nil, 0, 0)
	return c.start("Send", build, err)
}

// Recv receives count elements into buf from rank src.
func (c *Communicator) Recv(buf device.Buffer, count, src int) error {
	build, err := c.sendRecv(nil, 0, 0, buf, count, src)
	return c.run("Recv", build, err)
}

// NonblockingRecv is the non-blocking version of Recv.
func (c *Communicator) NonblockingRecv(buf device.Buffer, count, src int) (*Request, error) {
	build, err := c.sendRecv(nil, 0, 0, buf, count, src)
	return c.start("Recv", build, err)
}

// SendRecv sends sendCount elements of send to rank dest, and receives recvCount elements into
// recv from rank src, as one operation. Either half is skipped if its count is zero.
func (c *Communicator) SendRecv(send device.Buffer, sendCount, dest int, recv device.Buffer, recvCount, src int) error {
	build, err := c.sendRecv(send, sendCount, dest, recv, recvCount, src)
	return c.run("SendRecv", build, err)
}

// NonblockingSendRecv is the non-blocking version of SendRecv.
func (c *Communicator) NonblockingSendRecv(send device.Buffer, sendCount, dest int, recv device.Buffer, recvCount, src int) (*Request, error) {
	build, err := c.sendRecv(send, sendCount, dest, recv, recvCount, src)
	return c.start("SendRecv", build, err)
}

func (c *Communicator) sendRecv(send device.Buffer, sendCount, dest int, recv device.Buffer, recvCount, src int) (opBuilder, error) {
	if sendCount == 0 && recvCount == 0 {
		return nil, nil
	}
	if err := checkCount(sendCount); err != nil {
		return nil, err
	}
	if err := checkCount(recvCount); err != nil {
		return nil, err
	}
	if sendCount > 0 {
		if err := c.checkRank("destination rank", dest); err != nil {
			return nil, err
		}
		if err := checkBuffer("send", send, sendCount); err != nil {
			return nil, err
		}
	}
	if recvCount > 0 {
		if err := c.checkRank("source rank", src); err != nil {
			return nil, err
		}
		if err := checkBuffer("receive", recv, recvCount); err != nil {
			return nil, err
		}
	}
	return func(base *collectiveState) collective {
		return &sendRecvState{
			collectiveState: base,
			send:            p2pHalf{buf: send, count: sendCount, peer: dest},
			recv:            p2pHalf{buf: recv, count: recvCount, peer: src},
		}
	}, nil
}

// checkSendRecv checks both buffers of a collective and that their dtypes match.
func checkSendRecv(send device.Buffer, sendCount int, recv device.Buffer, recvCount int) error {
	if err := checkBuffer("send", send, sendCount); err != nil {
		return err
	}
	if err := checkBuffer("receive", recv, recvCount); err != nil {
		return err
	}
	return checkSameDType(send, recv)
}
