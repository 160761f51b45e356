// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package syncpoint_test

import (
	"testing"
	"time"

	"github.com/gomlx/hostxfer/pkg/core/device"
	"github.com/gomlx/hostxfer/pkg/core/device/simdevice"
	"github.com/gomlx/hostxfer/pkg/core/syncpoint"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPools(t *testing.T) {
	rt := simdevice.New()
	defer func() { require.NoError(t, rt.Finalize()) }()
	pools := must.M1(syncpoint.NewPools(rt, syncpoint.Config{SyncWordPrealloc: 4, EventPrealloc: 2}))
	assert.Equal(t, syncpoint.Stats{FreeEvents: 2, AllocatedEvents: 2, FreeWords: 4, AllocatedWords: 4}, pools.Stats())
	assert.Equal(t, 2, rt.LiveEvents())
	assert.Equal(t, 4, rt.LiveSyncWords())

	// Checking out more than preallocated grows the pools.
	points := make([]*syncpoint.Point, 3)
	for i := range points {
		points[i] = must.M1(pools.NewPoint())
	}
	assert.Equal(t, 3, pools.Stats().AllocatedEvents)
	for _, pt := range points {
		pt.Release()
	}
	require.Panics(t, func() { points[0].Release() })
	require.Panics(t, func() { _, _ = points[0].Query() })
	assert.Equal(t, 3, pools.Stats().FreeEvents)

	require.NoError(t, pools.Close())
	assert.Equal(t, 0, rt.LiveEvents())
	assert.Equal(t, 0, rt.LiveSyncWords())

	rt.FailNext("cudaHostRegister")
	_, err := syncpoint.NewPools(rt, syncpoint.DefaultConfig())
	require.Error(t, err)
	assert.Equal(t, 0, rt.LiveEvents(), "events preallocated before the failure must be destroyed")
}

func TestGateAndPoint(t *testing.T) {
	rt := simdevice.New()
	defer func() { require.NoError(t, rt.Finalize()) }()
	pools := must.M1(syncpoint.NewPools(rt, syncpoint.Config{SyncWordPrealloc: 1, EventPrealloc: 1}))
	stream := must.M1(rt.NewStream(device.DefaultPriority))
	other := must.M1(rt.NewStream(device.DefaultPriority))

	gate := must.M1(pools.NewGate())
	assert.False(t, gate.IsOpen())
	start := must.M1(pools.NewPoint())
	end := must.M1(pools.NewPoint())
	assert.True(t, must.M1(end.Query()), "a point never recorded is reached")

	require.NoError(t, start.Record(stream))
	require.NoError(t, gate.Arm(stream))
	require.NoError(t, end.Record(stream))
	require.NoError(t, start.Block())

	// The stream "other" depends on end, without blocking the host.
	require.NoError(t, end.WaitOn(other))
	follower := must.M1(pools.NewPoint())
	require.NoError(t, follower.Record(other))

	time.Sleep(2 * time.Millisecond)
	assert.False(t, must.M1(end.Query()))
	assert.False(t, must.M1(follower.Query()))

	gate.Open()
	assert.True(t, gate.IsOpen())
	require.NoError(t, follower.Block())
	assert.True(t, must.M1(end.Query()))

	gate.Release()
	require.Panics(t, func() { gate.Release() })
	for _, pt := range []*syncpoint.Point{start, end, follower} {
		pt.Release()
	}

	// Recycled gates start closed.
	gate = must.M1(pools.NewGate())
	assert.False(t, gate.IsOpen())
	gate.Release()
	require.NoError(t, pools.Close())
}

func TestReleaseAfterClose(t *testing.T) {
	rt := simdevice.New()
	defer func() { require.NoError(t, rt.Finalize()) }()
	pools := must.M1(syncpoint.NewPools(rt, syncpoint.Config{SyncWordPrealloc: 2, EventPrealloc: 2}))
	point := must.M1(pools.NewPoint())
	gate := must.M1(pools.NewGate())

	require.NoError(t, pools.Close())
	assert.Equal(t, 1, rt.LiveEvents())
	assert.Equal(t, 1, rt.LiveSyncWords())
	_, err := pools.NewPoint()
	require.Error(t, err)
	_, err = pools.NewGate()
	require.Error(t, err)

	point.Release()
	gate.Release()
	assert.Equal(t, 0, rt.LiveEvents())
	assert.Equal(t, 0, rt.LiveSyncWords())
	assert.Equal(t, syncpoint.Stats{}, pools.Stats())
}
