// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hostxfer_test

import (
	"sync"
	"testing"
	"time"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/hostxfer/pkg/core/device"
	"github.com/gomlx/hostxfer/pkg/core/device/simdevice"
	"github.com/gomlx/hostxfer/pkg/core/hostcomm"
	"github.com/gomlx/hostxfer/pkg/core/hostcomm/loopback"
	"github.com/gomlx/hostxfer/pkg/hostxfer"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rank is the environment of one process of a test group: each has its own device runtime,
// backend and communicator.
type rank struct {
	rt      *simdevice.Runtime
	backend *hostxfer.Backend
	comm    *hostxfer.Communicator
	stream  device.Stream
}

func testConfig() hostxfer.Config {
	cfg := hostxfer.DefaultConfig()
	cfg.NumInternalStreams = 2
	cfg.SyncWordPrealloc = 4
	cfg.EventPrealloc = 4
	return cfg
}

func newRanks(t *testing.T, size int) []*rank {
	ranks := make([]*rank, size)
	for i, hostComm := range loopback.NewWorld(size) {
		rt := simdevice.New()
		backend := must.M1(hostxfer.New(rt, testConfig()))
		stream := must.M1(rt.NewStream(device.DefaultPriority))
		ranks[i] = &rank{
			rt:      rt,
			backend: backend,
			comm:    backend.NewCommunicator(hostComm, stream),
			stream:  stream,
		}
	}
	t.Cleanup(func() {
		for _, r := range ranks {
			require.NoError(t, r.backend.Finalize())
			require.NoError(t, r.rt.Finalize())
		}
	})
	return ranks
}

// onAllRanks runs fn concurrently for every rank.
func onAllRanks(t *testing.T, ranks []*rank, fn func(r *rank) error) {
	var wg sync.WaitGroup
	for _, r := range ranks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, fn(r), "rank %d", r.comm.Rank())
		}()
	}
	wg.Wait()
}

// requireIdle checks that every resource checked out by the ranks was returned.
func requireIdle(t *testing.T, ranks []*rank) {
	for _, r := range ranks {
		r.backend.WaitIdle()
		engine := r.backend.EngineStats()
		assert.Zero(t, engine.Pending+engine.InFlight, "rank %d", r.comm.Rank())
		assert.Zero(t, engine.Live, "rank %d", r.comm.Rank())
		assert.Zero(t, engine.Failed, "rank %d", r.comm.Rank())
		assert.Zero(t, r.backend.StagingStats().Live, "rank %d", r.comm.Rank())
		pools := r.backend.SyncStats()
		assert.Equal(t, pools.AllocatedEvents, pools.FreeEvents, "rank %d", r.comm.Rank())
		assert.Equal(t, pools.AllocatedWords, pools.FreeWords, "rank %d", r.comm.Rank())
	}
}

func TestCollectives(t *testing.T) {
	const size = 3
	ranks := newRanks(t, size)

	t.Run("Barrier", func(t *testing.T) {
		onAllRanks(t, ranks, func(r *rank) error {
			return r.comm.Barrier(hostxfer.CollectiveAutomatic)
		})
	})

	t.Run("Allreduce", func(t *testing.T) {
		results := make([]*simdevice.Buffer, size)
		onAllRanks(t, ranks, func(r *rank) error {
			v := float32(r.comm.Rank() + 1)
			send := simdevice.FromFlat([]float32{v, 10 * v})
			results[r.comm.Rank()] = simdevice.FromFlat([]float32{0, 0})
			return r.comm.Allreduce(send, results[r.comm.Rank()], 2, hostcomm.ReduceOpSum, hostxfer.AllreduceAutomatic)
		})
		for _, recv := range results {
			assert.Equal(t, []float32{6, 60}, simdevice.ToFlat[float32](recv))
		}
	})

	t.Run("AllreduceInPlace", func(t *testing.T) {
		results := make([]*simdevice.Buffer, size)
		onAllRanks(t, ranks, func(r *rank) error {
			buf := simdevice.FromFlat([]int32{int32(1 << r.comm.Rank()), 3})
			results[r.comm.Rank()] = buf
			return r.comm.Allreduce(buf, buf, 2, hostcomm.ReduceOpBitwiseOr, hostxfer.AllreduceHostTransfer)
		})
		for _, buf := range results {
			assert.Equal(t, []int32{7, 3}, simdevice.ToFlat[int32](buf))
		}
	})

	t.Run("Bcast", func(t *testing.T) {
		const root = 1
		results := make([]*simdevice.Buffer, size)
		onAllRanks(t, ranks, func(r *rank) error {
			buf := simdevice.FromFlat([]int64{0, 0, 0})
			if r.comm.Rank() == root {
				simdevice.FillFlat(buf, []int64{7, 8, 9})
			}
			results[r.comm.Rank()] = buf
			return r.comm.Bcast(buf, 3, root, hostxfer.CollectiveAutomatic)
		})
		for _, buf := range results {
			assert.Equal(t, []int64{7, 8, 9}, simdevice.ToFlat[int64](buf))
		}
	})

	t.Run("Allgather", func(t *testing.T) {
		results := make([]*simdevice.Buffer, size)
		onAllRanks(t, ranks, func(r *rank) error {
			v := float32(r.comm.Rank())
			results[r.comm.Rank()] = must.M1(r.rt.AllocDevice(dtypes.Float32, 2*size)).(*simdevice.Buffer)
			return r.comm.Allgather(simdevice.FromFlat([]float32{v, v + 10}), results[r.comm.Rank()], 2, hostxfer.CollectiveAutomatic)
		})
		for _, recv := range results {
			assert.Equal(t, []float32{0, 10, 1, 11, 2, 12}, simdevice.ToFlat[float32](recv))
		}
	})

	t.Run("AllgatherInPlace", func(t *testing.T) {
		results := make([]*simdevice.Buffer, size)
		onAllRanks(t, ranks, func(r *rank) error {
			flat := make([]float32, 2*size)
			flat[2*r.comm.Rank()] = float32(r.comm.Rank())
			flat[2*r.comm.Rank()+1] = float32(r.comm.Rank() + 10)
			buf := simdevice.FromFlat(flat)
			results[r.comm.Rank()] = buf
			return r.comm.Allgather(buf, buf, 2, hostxfer.CollectiveAutomatic)
		})
		for _, buf := range results {
			assert.Equal(t, []float32{0, 10, 1, 11, 2, 12}, simdevice.ToFlat[float32](buf))
		}
	})

	t.Run("Alltoall", func(t *testing.T) {
		results := make([]*simdevice.Buffer, size)
		onAllRanks(t, ranks, func(r *rank) error {
			flat := make([]int32, size)
			for i := range flat {
				flat[i] = int32(10*r.comm.Rank() + i)
			}
			results[r.comm.Rank()] = simdevice.FromFlat(make([]int32, size))
			return r.comm.Alltoall(simdevice.FromFlat(flat), results[r.comm.Rank()], 1, hostxfer.CollectiveAutomatic)
		})
		for i, recv := range results {
			assert.Equal(t, []int32{int32(i), int32(10 + i), int32(20 + i)}, simdevice.ToFlat[int32](recv))
		}
	})

	t.Run("Gather", func(t *testing.T) {
		const root = 0
		recv := simdevice.FromFlat(make([]int32, 2*size))
		onAllRanks(t, ranks, func(r *rank) error {
			v := int32(2 * r.comm.Rank())
			var rootRecv device.Buffer
			if r.comm.Rank() == root {
				rootRecv = recv
			}
			return r.comm.Gather(simdevice.FromFlat([]int32{v, v + 1}), rootRecv, 2, root, hostxfer.CollectiveAutomatic)
		})
		assert.Equal(t, []int32{0, 1, 2, 3, 4, 5}, simdevice.ToFlat[int32](recv))
	})

	t.Run("GatherLeavesNonRootReceiveBuffer", func(t *testing.T) {
		const root, sentinel = 1, int32(-7)
		results := make([]*simdevice.Buffer, size)
		onAllRanks(t, ranks, func(r *rank) error {
			me := r.comm.Rank()
			flat := make([]int32, 2*size)
			for i := range flat {
				flat[i] = sentinel
			}
			results[me] = simdevice.FromFlat(flat)
			v := int32(2 * me)
			return r.comm.Gather(simdevice.FromFlat([]int32{v, v + 1}), results[me], 2, root, hostxfer.CollectiveAutomatic)
		})
		for i, recv := range results {
			if i == root {
				assert.Equal(t, []int32{0, 1, 2, 3, 4, 5}, simdevice.ToFlat[int32](recv))
				continue
			}
			for _, v := range simdevice.ToFlat[int32](recv) {
				assert.Equal(t, sentinel, v, "rank %d receive buffer was modified", i)
			}
		}
	})

	t.Run("BarrierWaitsForAll", func(t *testing.T) {
		reqs := make([]*hostxfer.Request, size-1)
		for i, r := range ranks[:size-1] {
			reqs[i] = must.M1(r.comm.NonblockingBarrier(hostxfer.CollectiveAutomatic))
		}
		time.Sleep(10 * time.Millisecond)
		for i, req := range reqs {
			assert.False(t, req.Test(), "rank %d passed the barrier before the last rank entered it", i)
		}
		require.NoError(t, ranks[size-1].comm.Barrier(hostxfer.CollectiveAutomatic))
		hostxfer.WaitAll(reqs...)
		for _, req := range reqs {
			assert.True(t, req.Test())
		}
	})

	t.Run("Scatter", func(t *testing.T) {
		const root = 2
		results := make([]*simdevice.Buffer, size)
		onAllRanks(t, ranks, func(r *rank) error {
			var send device.Buffer
			if r.comm.Rank() == root {
				send = simdevice.FromFlat([]int32{0, 1, 2, 3, 4, 5})
			}
			results[r.comm.Rank()] = simdevice.FromFlat([]int32{-1, -1})
			return r.comm.Scatter(send, results[r.comm.Rank()], 2, root, hostxfer.CollectiveAutomatic)
		})
		for i, recv := range results {
			assert.Equal(t, []int32{int32(2 * i), int32(2*i + 1)}, simdevice.ToFlat[int32](recv))
		}
	})

	t.Run("ScatterInPlace", func(t *testing.T) {
		const root = 0
		results := make([]*simdevice.Buffer, size)
		onAllRanks(t, ranks, func(r *rank) error {
			if r.comm.Rank() == root {
				buf := simdevice.FromFlat([]int32{0, 1, 2, 3, 4, 5})
				results[root] = buf
				return r.comm.Scatter(buf, buf, 2, root, hostxfer.CollectiveAutomatic)
			}
			results[r.comm.Rank()] = simdevice.FromFlat([]int32{-1, -1})
			return r.comm.Scatter(nil, results[r.comm.Rank()], 2, root, hostxfer.CollectiveAutomatic)
		})
		assert.Equal(t, []int32{0, 1, 2, 3, 4, 5}, simdevice.ToFlat[int32](results[root]))
		assert.Equal(t, []int32{2, 3}, simdevice.ToFlat[int32](results[1]))
		assert.Equal(t, []int32{4, 5}, simdevice.ToFlat[int32](results[2]))
	})

	t.Run("Reduce", func(t *testing.T) {
		const root = 0
		recv := simdevice.FromFlat([]float64{0, 0})
		onAllRanks(t, ranks, func(r *rank) error {
			v := float64(r.comm.Rank())
			var rootRecv device.Buffer
			if r.comm.Rank() == root {
				rootRecv = recv
			}
			return r.comm.Reduce(simdevice.FromFlat([]float64{v, -v}), rootRecv, 2, hostcomm.ReduceOpMax, root, hostxfer.CollectiveAutomatic)
		})
		assert.Equal(t, []float64{2, 0}, simdevice.ToFlat[float64](recv))
	})

	t.Run("ReduceScatter", func(t *testing.T) {
		results := make([]*simdevice.Buffer, size)
		onAllRanks(t, ranks, func(r *rank) error {
			results[r.comm.Rank()] = simdevice.FromFlat([]int32{0, 0})
			send := simdevice.FromFlat([]int32{0, 1, 2, 3, 4, 5})
			return r.comm.ReduceScatter(send, results[r.comm.Rank()], 2, hostcomm.ReduceOpSum, hostxfer.CollectiveAutomatic)
		})
		for i, recv := range results {
			assert.Equal(t, []int32{int32(3 * 2 * i), int32(3 * (2*i + 1))}, simdevice.ToFlat[int32](recv))
		}
	})

	t.Run("ReduceScatterInPlace", func(t *testing.T) {
		results := make([]*simdevice.Buffer, size)
		onAllRanks(t, ranks, func(r *rank) error {
			buf := simdevice.FromFlat([]int32{0, 1, 2, 3, 4, 5})
			results[r.comm.Rank()] = buf
			return r.comm.ReduceScatter(buf, buf, 2, hostcomm.ReduceOpSum, hostxfer.CollectiveAutomatic)
		})
		for i, buf := range results {
			assert.Equal(t, []int32{int32(3 * 2 * i), int32(3 * (2*i + 1))}, simdevice.ToFlat[int32](buf)[:2])
		}
	})

	requireIdle(t, ranks)
}

func TestPointToPoint(t *testing.T) {
	const size = 4
	ranks := newRanks(t, size)

	t.Run("SendRecvRing", func(t *testing.T) {
		results := make([]*simdevice.Buffer, size)
		onAllRanks(t, ranks, func(r *rank) error {
			me := r.comm.Rank()
			results[me] = simdevice.FromFlat([]int32{-1})
			return r.comm.SendRecv(simdevice.FromFlat([]int32{int32(me)}), 1, (me+1)%size,
				results[me], 1, (me+size-1)%size)
		})
		for i, recv := range results {
			assert.Equal(t, []int32{int32((i + size - 1) % size)}, simdevice.ToFlat[int32](recv))
		}
	})

	t.Run("OrderedMessages", func(t *testing.T) {
		recvs := []*simdevice.Buffer{simdevice.FromFlat([]int32{0}), simdevice.FromFlat([]int32{0})}
		onAllRanks(t, ranks[:2], func(r *rank) error {
			if r.comm.Rank() == 0 {
				req1 := must.M1(r.comm.NonblockingSend(simdevice.FromFlat([]int32{1}), 1, 1))
				req2 := must.M1(r.comm.NonblockingSend(simdevice.FromFlat([]int32{2}), 1, 1))
				hostxfer.WaitAll(req1, req2)
				return nil
			}
			for _, recv := range recvs {
				if err := r.comm.Recv(recv, 1, 0); err != nil {
					return err
				}
			}
			return nil
		})
		assert.Equal(t, []int32{1}, simdevice.ToFlat[int32](recvs[0]))
		assert.Equal(t, []int32{2}, simdevice.ToFlat[int32](recvs[1]))
	})

	t.Run("OneSided", func(t *testing.T) {
		// A SendRecv with a zero receive count is a plain send.
		recv := simdevice.FromFlat([]float32{0, 0})
		onAllRanks(t, ranks[2:], func(r *rank) error {
			if r.comm.Rank() == 2 {
				return r.comm.SendRecv(simdevice.FromFlat([]float32{3, 4}), 2, 3, nil, 0, 0)
			}
			return r.comm.SendRecv(nil, 0, 0, recv, 2, 2)
		})
		assert.Equal(t, []float32{3, 4}, simdevice.ToFlat[float32](recv))
	})

	requireIdle(t, ranks)
}

func TestNonblocking(t *testing.T) {
	const size, numOps = 2, 8
	ranks := newRanks(t, size)

	t.Run("Concurrent", func(t *testing.T) {
		results := make([][]*simdevice.Buffer, size)
		onAllRanks(t, ranks, func(r *rank) error {
			reqs := make([]*hostxfer.Request, numOps)
			results[r.comm.Rank()] = make([]*simdevice.Buffer, numOps)
			for i := range numOps {
				buf := simdevice.FromFlat([]int32{int32(i), int32(r.comm.Rank())})
				results[r.comm.Rank()][i] = buf
				req, err := r.comm.NonblockingAllreduce(buf, buf, 2, hostcomm.ReduceOpSum, hostxfer.AllreduceAutomatic)
				if err != nil {
					return err
				}
				reqs[i] = req
			}
			hostxfer.WaitAll(reqs...)
			return nil
		})
		for _, bufs := range results {
			for i, buf := range bufs {
				assert.Equal(t, []int32{int32(2 * i), 1}, simdevice.ToFlat[int32](buf))
			}
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		onAllRanks(t, ranks, func(r *rank) error {
			req, err := r.comm.NonblockingBarrier(hostxfer.CollectiveAutomatic)
			if err != nil {
				return err
			}
			assert.Eventually(t, req.Test, 5*time.Second, 100*time.Microsecond)
			assert.True(t, req.Test())
			req.Wait()
			req.StreamWait()
			return nil
		})
	})

	t.Run("StreamWait", func(t *testing.T) {
		results := make([]*simdevice.Buffer, size)
		onAllRanks(t, ranks, func(r *rank) error {
			results[r.comm.Rank()] = simdevice.FromFlat([]float32{0, 0})
			send := simdevice.FromFlat([]float32{float32(r.comm.Rank() + 1)})
			req, err := r.comm.NonblockingAllgather(send, results[r.comm.Rank()], 1, hostxfer.CollectiveAutomatic)
			if err != nil {
				return err
			}
			req.StreamWait()
			return r.stream.Synchronize()
		})
		for _, recv := range results {
			assert.Equal(t, []float32{1, 2}, simdevice.ToFlat[float32](recv))
		}
	})

	t.Run("OrderedAfterCommunicatorStream", func(t *testing.T) {
		// Work enqueued on the communicator stream before a non-blocking operation is seen by it.
		results := make([]*simdevice.Buffer, size)
		onAllRanks(t, ranks, func(r *rank) error {
			send := simdevice.FromFlat([]int32{0})
			host := must.M1(r.rt.AllocHost(device.LocationHost, 4))
			host[0] = byte(r.comm.Rank() + 5)
			if err := r.stream.CopyToDevice(send, 0, host); err != nil {
				return err
			}
			results[r.comm.Rank()] = simdevice.FromFlat([]int32{0})
			req, err := r.comm.NonblockingAllreduce(send, results[r.comm.Rank()], 1, hostcomm.ReduceOpSum, hostxfer.AllreduceAutomatic)
			if err != nil {
				return err
			}
			req.Wait()
			return nil
		})
		for _, recv := range results {
			assert.Equal(t, []int32{11}, simdevice.ToFlat[int32](recv))
		}
	})

	t.Run("NilRequest", func(t *testing.T) {
		var req *hostxfer.Request
		assert.True(t, req.Test())
		req.Wait()
		req.StreamWait()
		hostxfer.WaitAll(nil, nil)
	})

	requireIdle(t, ranks)
}

// TestIndependentCommunicators runs operations of several process groups concurrently, one
// goroutine per communicator: each group completes on its own, whatever the interleaving.
func TestIndependentCommunicators(t *testing.T) {
	const size, numComms, numOps = 2, 4, 50
	ranks := newRanks(t, size)
	comms := make([][]*hostxfer.Communicator, size)
	for range numComms {
		world := loopback.NewWorld(size)
		for i, r := range ranks {
			stream := must.M1(r.rt.NewStream(device.DefaultPriority))
			comms[i] = append(comms[i], r.backend.NewCommunicator(world[i], stream))
		}
	}

	var wg sync.WaitGroup
	for i := range size {
		for k := range numComms {
			wg.Add(1)
			go func() {
				defer wg.Done()
				comm := comms[i][k]
				for op := range numOps {
					buf := simdevice.FromFlat([]int32{int32(op), int32(k), int32(i)})
					req, err := comm.NonblockingAllreduce(buf, buf, 3, hostcomm.ReduceOpSum, hostxfer.AllreduceAutomatic)
					if !assert.NoError(t, err) {
						return
					}
					req.Wait()
					if !assert.Equal(t, []int32{int32(2 * op), int32(2 * k), 1}, simdevice.ToFlat[int32](buf),
						"rank %d, communicator %d, operation %d", i, k, op) {
						return
					}
				}
			}()
		}
	}
	wg.Wait()
	for _, r := range ranks {
		assert.Equal(t, int64(numComms*numOps), r.backend.EngineStats().Admitted)
		assert.Equal(t, numComms*testConfig().NumInternalStreams, r.backend.NumInternalStreams())
	}
	requireIdle(t, ranks)
}

func TestZeroCount(t *testing.T) {
	ranks := newRanks(t, 2)
	c := ranks[0].comm
	buf := simdevice.FromFlat([]float32{1})

	// Nothing is issued: a single rank doesn't hang waiting for its peer.
	require.NoError(t, c.Allreduce(buf, buf, 0, hostcomm.ReduceOpSum, hostxfer.AllreduceAutomatic))
	require.NoError(t, c.Bcast(buf, 0, 1, hostxfer.CollectiveAutomatic))
	require.NoError(t, c.Gather(nil, nil, 0, 0, hostxfer.CollectiveAutomatic))
	require.NoError(t, c.Send(nil, 0, 1))
	require.NoError(t, c.SendRecv(nil, 0, 1, nil, 0, 1))

	req, err := c.NonblockingAlltoall(buf, buf, 0, hostxfer.CollectiveAutomatic)
	require.NoError(t, err)
	assert.Nil(t, req)
	req, err = c.NonblockingRecv(buf, 0, 1)
	require.NoError(t, err)
	assert.Nil(t, req)

	t.Run("BeforeValidation", func(t *testing.T) {
		// Invalid roots, peers and algorithms are not checked for empty operations.
		require.NoError(t, c.Bcast(buf, 0, 7, hostxfer.CollectiveAutomatic))
		require.NoError(t, c.Allreduce(buf, buf, 0, hostcomm.ReduceOpSum, hostxfer.AllreduceAlgorithm(9)))
		require.NoError(t, c.Reduce(nil, nil, 0, hostcomm.ReduceOp(42), -3, hostxfer.CollectiveAlgorithm(5)))
		require.NoError(t, c.Recv(nil, 0, 9))
		req, err := c.NonblockingGather(buf, nil, 0, -1, hostxfer.CollectiveAutomatic)
		require.NoError(t, err)
		assert.Nil(t, req)
		req, err = c.NonblockingScatter(nil, nil, 0, 5, hostxfer.CollectiveAlgorithm(2))
		require.NoError(t, err)
		assert.Nil(t, req)
	})

	assert.Equal(t, []float32{1}, simdevice.ToFlat[float32](buf))
	assert.Zero(t, ranks[0].backend.EngineStats().Admitted)
}

func TestUsageErrors(t *testing.T) {
	ranks := newRanks(t, 2)
	c := ranks[0].comm
	f32 := simdevice.FromFlat([]float32{1, 2})
	i32 := simdevice.FromFlat([]int32{1, 2})

	testCases := []struct {
		name string
		call func() error
	}{
		{"InvalidAllreduceAlgorithm", func() error {
			return c.Allreduce(f32, f32, 2, hostcomm.ReduceOpSum, hostxfer.AllreduceAlgorithm(7))
		}},
		{"InvalidCollectiveAlgorithm", func() error {
			return c.Barrier(hostxfer.CollectiveAlgorithm(1))
		}},
		{"NegativeCount", func() error {
			return c.Allgather(f32, f32, -1, hostxfer.CollectiveAutomatic)
		}},
		{"RootOutOfRange", func() error {
			return c.Bcast(f32, 2, 2, hostxfer.CollectiveAutomatic)
		}},
		{"BufferTooSmall", func() error {
			return c.Alltoall(f32, f32, 2, hostxfer.CollectiveAutomatic)
		}},
		{"NilBuffer", func() error {
			return c.Allreduce(nil, f32, 2, hostcomm.ReduceOpSum, hostxfer.AllreduceAutomatic)
		}},
		{"DTypeMismatch", func() error {
			return c.Allreduce(f32, i32, 2, hostcomm.ReduceOpSum, hostxfer.AllreduceAutomatic)
		}},
		{"BitwiseOnFloat", func() error {
			return c.Allreduce(f32, f32, 2, hostcomm.ReduceOpBitwiseAnd, hostxfer.AllreduceAutomatic)
		}},
		{"InvalidReduction", func() error {
			_, err := c.NonblockingReduce(i32, i32, 2, hostcomm.ReduceOp(42), 0, hostxfer.CollectiveAutomatic)
			return err
		}},
		{"MissingRootReceiveBuffer", func() error {
			return c.Gather(f32, nil, 1, 0, hostxfer.CollectiveAutomatic)
		}},
		{"DestinationOutOfRange", func() error {
			return c.Send(f32, 1, -1)
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Error(t, tc.call())
		})
	}
	assert.Zero(t, ranks[0].backend.EngineStats().Admitted)

	t.Run("ParseAlgorithms", func(t *testing.T) {
		algo, err := hostxfer.AllreduceAlgorithmString("host-transfer")
		require.NoError(t, err)
		assert.Equal(t, hostxfer.AllreduceHostTransfer, algo)
		assert.Equal(t, "automatic", hostxfer.AllreduceAutomatic.String())
		assert.Equal(t, []string{"automatic", "host-transfer"}, hostxfer.AllreduceAlgorithmStrings())
		_, err = hostxfer.AllreduceAlgorithmString("ring")
		require.Error(t, err)

		collectiveAlgo, err := hostxfer.CollectiveAlgorithmString("Automatic")
		require.NoError(t, err)
		assert.Equal(t, hostxfer.CollectiveAutomatic, collectiveAlgo)
		assert.Equal(t, "CollectiveAlgorithm(3)", hostxfer.CollectiveAlgorithm(3).String())
	})
}
