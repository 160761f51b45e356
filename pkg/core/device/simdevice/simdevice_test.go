// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simdevice_test

import (
	"testing"
	"time"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/hostxfer/pkg/core/device"
	"github.com/gomlx/hostxfer/pkg/core/device/simdevice"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	assert.Contains(t, device.Registered(), simdevice.RuntimeName)
	rt, err := device.NewWithConfig("sim:no_mem_ops")
	require.NoError(t, err)
	assert.Equal(t, "sim", rt.Name())
	assert.False(t, rt.StreamMemOpsSupported())

	_, err = device.NewWithConfig("sim:bogus")
	require.Error(t, err)
	_, err = device.NewWithConfig("nonexistent:")
	require.Error(t, err)
}

func TestCopies(t *testing.T) {
	rt := simdevice.New()
	defer func() { require.NoError(t, rt.Finalize()) }()
	stream := must.M1(rt.NewStream(device.DefaultPriority))

	src := simdevice.FromFlat([]float32{1, 2, 3, 4})
	host := must.M1(rt.AllocHost(device.LocationPinnedHost, 8))
	assert.Equal(t, int64(8), rt.PinnedBytes())

	// Copy the middle two elements to the host, then back at the start of another buffer.
	dst := must.M1(rt.AllocDevice(dtypes.Float32, 4))
	require.NoError(t, stream.CopyToHost(host, src, 4))
	require.NoError(t, stream.CopyToDevice(dst, 0, host))
	require.NoError(t, stream.Synchronize())
	assert.Equal(t, []float32{2, 3, 0, 0}, simdevice.ToFlat[float32](dst))

	// Out of bounds copies are rejected with a device error.
	err := stream.CopyToHost(make([]byte, 20), src, 0)
	devErr, ok := device.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "cudaMemcpyAsync", devErr.Primitive)
	assert.Equal(t, simdevice.CodeInvalidValue, devErr.Code)

	require.NoError(t, rt.FreeHost(device.LocationPinnedHost, host))
	assert.Equal(t, int64(0), rt.PinnedBytes())
	require.Panics(t, func() { simdevice.ToFlat[int32](dst) })
}

func TestEventsAndGates(t *testing.T) {
	rt := simdevice.New()
	defer func() { require.NoError(t, rt.Finalize()) }()
	producer := must.M1(rt.NewStream(device.DefaultPriority))
	consumer := must.M1(rt.NewStream(device.DefaultPriority))

	t.Run("NeverRecorded", func(t *testing.T) {
		ev := must.M1(rt.NewEvent())
		assert.True(t, must.M1(ev.Query()))
		require.NoError(t, ev.Synchronize())
		require.NoError(t, consumer.WaitEvent(ev))
		require.NoError(t, ev.Destroy())
		require.Error(t, ev.Destroy())
	})

	t.Run("GatedCopy", func(t *testing.T) {
		word := must.M1(rt.NewSyncWord())
		ev := must.M1(rt.NewEvent())
		buf := simdevice.FromFlat([]int32{7})
		host := make([]byte, 4)

		require.NoError(t, producer.WaitValue(word, 1))
		require.NoError(t, producer.Record(ev))
		require.NoError(t, consumer.WaitEvent(ev))
		require.NoError(t, consumer.CopyToHost(host, buf, 0))
		done := must.M1(rt.NewEvent())
		require.NoError(t, consumer.Record(done))

		time.Sleep(5 * time.Millisecond)
		assert.False(t, must.M1(ev.Query()), "producer should be blocked by the gate")
		assert.False(t, must.M1(done.Query()), "consumer should wait for the producer event")

		word.Store(1)
		require.NoError(t, done.Synchronize())
		assert.True(t, must.M1(ev.Query()))
		assert.Equal(t, []byte{7, 0, 0, 0}, host)

		require.NoError(t, ev.Destroy())
		require.NoError(t, done.Destroy())
		require.NoError(t, rt.FreeSyncWord(word))
		require.Error(t, rt.FreeSyncWord(word))
	})

	t.Run("WaitCapturesLastRecord", func(t *testing.T) {
		word := must.M1(rt.NewSyncWord())
		ev := must.M1(rt.NewEvent())
		require.NoError(t, producer.Record(ev))
		require.NoError(t, producer.Synchronize())

		// The consumer waits on the first record, already reached: re-recording the
		// event behind a closed gate must not block it.
		require.NoError(t, consumer.WaitEvent(ev))
		require.NoError(t, producer.WaitValue(word, 1))
		require.NoError(t, producer.Record(ev))
		require.NoError(t, consumer.Synchronize())
		assert.False(t, must.M1(ev.Query()))

		word.Store(1)
		require.NoError(t, ev.Synchronize())
		require.NoError(t, ev.Destroy())
		require.NoError(t, rt.FreeSyncWord(word))
	})
	assert.Equal(t, 0, rt.LiveEvents())
	assert.Equal(t, 0, rt.LiveSyncWords())
}

func TestFailuresAndFinalize(t *testing.T) {
	rt := simdevice.New()
	stream := must.M1(rt.NewStream(-100))
	assert.Equal(t, device.Priority(-5), stream.(*simdevice.Stream).Priority())
	least, greatest := must.M2(rt.PriorityRange())
	assert.Equal(t, device.DefaultPriority, least)
	assert.Less(t, int(greatest), int(least))

	rt.FailNext("cudaEventRecord")
	ev := must.M1(rt.NewEvent())
	err := stream.Record(ev)
	devErr, ok := device.AsError(err)
	require.True(t, ok)
	assert.Equal(t, simdevice.CodeInjectedFailure, devErr.Code)
	require.NoError(t, stream.Record(ev), "only the next call fails")

	assert.Equal(t, 1, rt.NumStreams())
	require.NoError(t, rt.Finalize())
	assert.Equal(t, 0, rt.NumStreams())
	require.Error(t, stream.Synchronize())
	_, err = rt.NewStream(device.DefaultPriority)
	require.Error(t, err)
}

func TestWaitValueModes(t *testing.T) {
	for _, config := range []string{"", "no_mem_ops"} {
		t.Run("config="+config, func(t *testing.T) {
			rt := must.M1(simdevice.NewWithConfig(config))
			defer func() { require.NoError(t, rt.Finalize()) }()
			native := config == ""
			nativePrimitive, kernelPrimitive := "cuStreamWaitValue32", "cudaLaunchKernel"
			used, unused := nativePrimitive, kernelPrimitive
			if !native {
				used, unused = unused, used
			}
			stream := must.M1(rt.NewStream(device.DefaultPriority))
			word := must.M1(rt.NewSyncWord())

			// Only the primitive the runtime uses for the wait can fail it.
			rt.FailNext(used)
			err := stream.WaitValue(word, 1)
			devErr, ok := device.AsError(err)
			require.True(t, ok)
			assert.Equal(t, used, devErr.Primitive)
			rt.FailNext(unused)
			require.NoError(t, stream.WaitValue(word, 1))

			ev := must.M1(rt.NewEvent())
			require.NoError(t, stream.Record(ev))
			time.Sleep(2 * time.Millisecond)
			assert.False(t, must.M1(ev.Query()))
			word.Store(2)
			time.Sleep(2 * time.Millisecond)
			assert.False(t, must.M1(ev.Query()), "only the awaited value releases the stream")
			word.Store(1)
			require.NoError(t, ev.Synchronize())

			if native {
				assert.Zero(t, rt.EmulatedWaits())
			} else {
				assert.Equal(t, int64(1), rt.EmulatedWaits())
			}
			require.NoError(t, ev.Destroy())
			require.NoError(t, rt.FreeSyncWord(word))
		})
	}
	assert.Equal(t, "pinned-host", device.LocationPinnedHost.String())
}
