// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package loopback

import (
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/hostxfer/pkg/core/hostcomm"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// contribution is what one rank passed to a collective.
type contribution struct {
	send, recv hostcomm.Buffer
	count      int // Per rank.
	dtype      dtypes.DType
	root       int
	op         hostcomm.ReduceOp
}

// slotBytes is the size in bytes of the per-rank slot.
func (c *contribution) slotBytes() int { return c.count * int(c.dtype.Memory()) }

// round is one collective, matched across ranks by sequence number.
type round struct {
	call     string
	compute  func(r *round)
	contribs []*contribution
	reqs     []*request
	arrived  int
	err      error
}

// join adds the contribution of c to its next collective round, and returns the request that
// completes when every rank has joined and the results are stored.
func (c *Comm) join(call string, contrib *contribution, compute func(r *round)) (hostcomm.Request, error) {
	if err := c.checkInjected(call); err != nil {
		return nil, err
	}
	w := c.world
	seq := c.seq.Add(1) - 1
	req := newRequest(w)

	w.mu.Lock()
	r, found := w.rounds[seq]
	if !found {
		r = &round{
			call:     call,
			compute:  compute,
			contribs: make([]*contribution, w.size),
			reqs:     make([]*request, w.size),
		}
		w.rounds[seq] = r
	} else if r.err == nil {
		r.err = r.checkConsistent(call, c.rank, contrib)
	}
	r.contribs[c.rank] = contrib
	r.reqs[c.rank] = req
	r.arrived++
	full := r.arrived == w.size
	if full {
		delete(w.rounds, seq)
	}
	w.mu.Unlock()

	if full {
		if r.err == nil {
			r.compute(r)
		} else {
			klog.Errorf("loopback: collective #%d of world %s failed: %v", seq, w.id, r.err)
		}
		for _, rankReq := range r.reqs {
			rankReq.complete(r.err)
		}
	}
	return req, nil
}

// checkConsistent compares the contribution of rank with the first one joined.
func (r *round) checkConsistent(call string, rank int, contrib *contribution) error {
	var first *contribution
	for _, other := range r.contribs {
		if other != nil {
			first = other
			break
		}
	}
	var err error
	switch {
	case call != r.call:
		err = errors.Errorf("rank %d called %s while other ranks called %s", rank, call, r.call)
	case contrib.count != first.count:
		err = errors.Errorf("rank %d passed count %d, other ranks passed %d", rank, contrib.count, first.count)
	case contrib.dtype != first.dtype:
		err = errors.Errorf("rank %d passed dtype %s, other ranks passed %s", rank, contrib.dtype, first.dtype)
	case contrib.root != first.root:
		err = errors.Errorf("rank %d passed root %d, other ranks passed %d", rank, contrib.root, first.root)
	case contrib.op != first.op:
		err = errors.Errorf("rank %d passed reduction %s, other ranks passed %s", rank, contrib.op, first.op)
	default:
		return nil
	}
	return hostcomm.NewError(call, CodeMismatch, err)
}

func (c *Comm) invalid(call, format string, args ...any) error {
	return hostcomm.NewError(call, CodeInvalidArgument, errors.Errorf("%s on %s: "+format, append([]any{call, c}, args...)...))
}

// checkOptionalSend validates send, unless it's the in-place marker.
func checkOptionalSend(call string, send hostcomm.Buffer, count int, dtype dtypes.DType) error {
	if send.IsInPlace() {
		return nil
	}
	if send.DType != dtype {
		return hostcomm.NewError(call, CodeInvalidArgument,
			errors.Errorf("send buffer has dtype %s, receive buffer has %s", send.DType, dtype))
	}
	return checkBuffer(call, "send", send, count)
}

// perRankCount returns the per-rank count of an aggregate buffer.
func (c *Comm) perRankCount(call string, aggregate hostcomm.Buffer) (int, error) {
	if aggregate.Count%c.world.size != 0 {
		return 0, c.invalid(call, "aggregate buffer count %d is not a multiple of the group size", aggregate.Count)
	}
	return aggregate.Count / c.world.size, nil
}

// Ibarrier implements hostcomm.Comm.
func (c *Comm) Ibarrier() (hostcomm.Request, error) {
	return c.join("Ibarrier", &contribution{}, func(*round) {})
}

// Ibcast implements hostcomm.Comm.
func (c *Comm) Ibcast(buf hostcomm.Buffer, root int) (hostcomm.Request, error) {
	const call = "Ibcast"
	if err := c.checkPeer(call, root); err != nil {
		return nil, err
	}
	if err := checkBuffer(call, "broadcast", buf, buf.Count); err != nil {
		return nil, err
	}
	contrib := &contribution{recv: buf, count: buf.Count, dtype: buf.DType, root: root}
	return c.join(call, contrib, computeBcast)
}

func computeBcast(r *round) {
	root := r.contribs[r.contribs[0].root]
	n := root.slotBytes()
	for rank, contrib := range r.contribs {
		if rank != root.root {
			copy(contrib.recv.Data[:n], root.recv.Data[:n])
		}
	}
}

// Iallreduce implements hostcomm.Comm.
func (c *Comm) Iallreduce(send, recv hostcomm.Buffer, op hostcomm.ReduceOp) (hostcomm.Request, error) {
	const call = "Iallreduce"
	if err := checkBuffer(call, "receive", recv, recv.Count); err != nil {
		return nil, err
	}
	if err := checkOptionalSend(call, send, recv.Count, recv.DType); err != nil {
		return nil, err
	}
	if err := checkReduction(op, recv.DType); err != nil {
		return nil, c.invalid(call, "%v", err)
	}
	contrib := &contribution{send: send, recv: recv, count: recv.Count, dtype: recv.DType, op: op}
	return c.join(call, contrib, computeAllreduce)
}

// input returns n bytes of the send buffer, or of the receive buffer if in-place.
func (contrib *contribution) input(n int) []byte {
	if contrib.send.IsInPlace() {
		return contrib.recv.Data[:n]
	}
	return contrib.send.Data[:n]
}

// reduceAll reduces the first n elements of the inputs of every rank into a new slice.
func reduceAll(r *round, n int) []byte {
	first := r.contribs[0]
	nBytes := n * int(first.dtype.Memory())
	acc := slices.Clone(first.input(nBytes))
	for _, contrib := range r.contribs[1:] {
		reduceInto(first.op, first.dtype, acc, contrib.input(nBytes), n)
	}
	return acc
}

func computeAllreduce(r *round) {
	acc := reduceAll(r, r.contribs[0].count)
	for _, contrib := range r.contribs {
		copy(contrib.recv.Data, acc)
	}
}

// Iallgather implements hostcomm.Comm.
func (c *Comm) Iallgather(send, recv hostcomm.Buffer) (hostcomm.Request, error) {
	const call = "Iallgather"
	count, err := c.perRankCount(call, recv)
	if err != nil {
		return nil, err
	}
	if err := checkBuffer(call, "receive", recv, recv.Count); err != nil {
		return nil, err
	}
	if err := checkOptionalSend(call, send, count, recv.DType); err != nil {
		return nil, err
	}
	contrib := &contribution{send: send, recv: recv, count: count, dtype: recv.DType}
	return c.join(call, contrib, computeAllgather)
}

// ownSlot returns the contribution of rank to a gather: its send buffer or, if in-place, its
// slot of the receive buffer.
func (contrib *contribution) ownSlot(rank int) []byte {
	n := contrib.slotBytes()
	if contrib.send.IsInPlace() {
		return contrib.recv.Data[rank*n : (rank+1)*n]
	}
	return contrib.send.Data[:n]
}

func computeAllgather(r *round) {
	n := r.contribs[0].slotBytes()
	all := make([]byte, n*len(r.contribs))
	for rank, contrib := range r.contribs {
		copy(all[rank*n:], contrib.ownSlot(rank))
	}
	for _, contrib := range r.contribs {
		copy(contrib.recv.Data, all)
	}
}

// Ialltoall implements hostcomm.Comm.
func (c *Comm) Ialltoall(send, recv hostcomm.Buffer) (hostcomm.Request, error) {
	const call = "Ialltoall"
	count, err := c.perRankCount(call, recv)
	if err != nil {
		return nil, err
	}
	if err := checkBuffer(call, "receive", recv, recv.Count); err != nil {
		return nil, err
	}
	if err := checkOptionalSend(call, send, recv.Count, recv.DType); err != nil {
		return nil, err
	}
	contrib := &contribution{send: send, recv: recv, count: count, dtype: recv.DType}
	return c.join(call, contrib, computeAlltoall)
}

func computeAlltoall(r *round) {
	n := r.contribs[0].slotBytes()
	size := len(r.contribs)
	inputs := make([][]byte, size)
	for rank, contrib := range r.contribs {
		inputs[rank] = slices.Clone(contrib.input(n * size))
	}
	for dest, contrib := range r.contribs {
		for source := range size {
			copy(contrib.recv.Data[source*n:(source+1)*n], inputs[source][dest*n:(dest+1)*n])
		}
	}
}

// Igather implements hostcomm.Comm.
func (c *Comm) Igather(send, recv hostcomm.Buffer, root int) (hostcomm.Request, error) {
	const call = "Igather"
	if err := c.checkPeer(call, root); err != nil {
		return nil, err
	}
	contrib := &contribution{send: send, recv: recv, root: root}
	if c.rank == root {
		count, err := c.perRankCount(call, recv)
		if err != nil {
			return nil, err
		}
		if err := checkBuffer(call, "receive", recv, recv.Count); err != nil {
			return nil, err
		}
		if err := checkOptionalSend(call, send, count, recv.DType); err != nil {
			return nil, err
		}
		contrib.count, contrib.dtype = count, recv.DType
	} else {
		if send.IsInPlace() {
			return nil, c.invalid(call, "only the root can gather in-place")
		}
		if err := checkBuffer(call, "send", send, send.Count); err != nil {
			return nil, err
		}
		contrib.count, contrib.dtype = send.Count, send.DType
	}
	return c.join(call, contrib, computeGather)
}

func computeGather(r *round) {
	rootRank := r.contribs[0].root
	root := r.contribs[rootRank]
	n := root.slotBytes()
	for rank, contrib := range r.contribs {
		if rank == rootRank && root.send.IsInPlace() {
			continue
		}
		copy(root.recv.Data[rank*n:(rank+1)*n], contrib.ownSlot(rank))
	}
}

// Iscatter implements hostcomm.Comm.
func (c *Comm) Iscatter(send, recv hostcomm.Buffer, root int) (hostcomm.Request, error) {
	const call = "Iscatter"
	if err := c.checkPeer(call, root); err != nil {
		return nil, err
	}
	contrib := &contribution{send: send, recv: recv, root: root}
	if c.rank == root {
		count, err := c.perRankCount(call, send)
		if err != nil {
			return nil, err
		}
		if err := checkBuffer(call, "send", send, send.Count); err != nil {
			return nil, err
		}
		if !recv.IsInPlace() {
			if recv.DType != send.DType {
				return nil, c.invalid(call, "receive buffer has dtype %s, send buffer has %s", recv.DType, send.DType)
			}
			if err := checkBuffer(call, "receive", recv, count); err != nil {
				return nil, err
			}
		}
		contrib.count, contrib.dtype = count, send.DType
	} else {
		if err := checkBuffer(call, "receive", recv, recv.Count); err != nil {
			return nil, err
		}
		contrib.count, contrib.dtype = recv.Count, recv.DType
	}
	return c.join(call, contrib, computeScatter)
}

func computeScatter(r *round) {
	rootRank := r.contribs[0].root
	root := r.contribs[rootRank]
	n := root.slotBytes()
	for rank, contrib := range r.contribs {
		if rank == rootRank && root.recv.IsInPlace() {
			continue
		}
		copy(contrib.recv.Data[:n], root.send.Data[rank*n:(rank+1)*n])
	}
}

// Ireduce implements hostcomm.Comm.
func (c *Comm) Ireduce(send, recv hostcomm.Buffer, op hostcomm.ReduceOp, root int) (hostcomm.Request, error) {
	const call = "Ireduce"
	if err := c.checkPeer(call, root); err != nil {
		return nil, err
	}
	contrib := &contribution{send: send, recv: recv, root: root, op: op}
	if c.rank == root {
		if err := checkBuffer(call, "receive", recv, recv.Count); err != nil {
			return nil, err
		}
		if err := checkOptionalSend(call, send, recv.Count, recv.DType); err != nil {
			return nil, err
		}
		contrib.count, contrib.dtype = recv.Count, recv.DType
	} else {
		if send.IsInPlace() {
			return nil, c.invalid(call, "only the root can reduce in-place")
		}
		if err := checkBuffer(call, "send", send, send.Count); err != nil {
			return nil, err
		}
		contrib.count, contrib.dtype = send.Count, send.DType
	}
	if err := checkReduction(op, contrib.dtype); err != nil {
		return nil, c.invalid(call, "%v", err)
	}
	return c.join(call, contrib, computeReduce)
}

func computeReduce(r *round) {
	root := r.contribs[r.contribs[0].root]
	copy(root.recv.Data, reduceAll(r, root.count))
}

// IreduceScatterBlock implements hostcomm.Comm.
func (c *Comm) IreduceScatterBlock(send, recv hostcomm.Buffer, op hostcomm.ReduceOp) (hostcomm.Request, error) {
	const call = "IreduceScatterBlock"
	var count int
	if send.IsInPlace() {
		var err error
		if count, err = c.perRankCount(call, recv); err != nil {
			return nil, err
		}
		if err := checkBuffer(call, "receive", recv, recv.Count); err != nil {
			return nil, err
		}
	} else {
		count = recv.Count
		if err := checkBuffer(call, "receive", recv, count); err != nil {
			return nil, err
		}
		if err := checkOptionalSend(call, send, count*c.world.size, recv.DType); err != nil {
			return nil, err
		}
	}
	if err := checkReduction(op, recv.DType); err != nil {
		return nil, c.invalid(call, "%v", err)
	}
	contrib := &contribution{send: send, recv: recv, count: count, dtype: recv.DType, op: op}
	return c.join(call, contrib, computeReduceScatter)
}

func computeReduceScatter(r *round) {
	first := r.contribs[0]
	acc := reduceAll(r, first.count*len(r.contribs))
	n := first.slotBytes()
	for rank, contrib := range r.contribs {
		copy(contrib.recv.Data[:n], acc[rank*n:(rank+1)*n])
	}
}
