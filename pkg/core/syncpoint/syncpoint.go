// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package syncpoint implements the two synchronization primitives that bridge device streams
// and host goroutines:
//
//   - Point: a pooled device event. Recorded on a stream, the host can query or block on it,
//     and other streams can wait on it.
//   - Gate: a pooled synchronization word the device waits on. Armed on a stream, it holds all work
//     enqueued afterward until the host opens it, with a plain memory write.
//
// Both are checked out from Pools, and must be released exactly once, after the device no
// longer references them.
package syncpoint

import (
	"sync/atomic"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/hostxfer/pkg/core/device"
	"github.com/gomlx/hostxfer/pkg/support/respool"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Config of the pools.
type Config struct {
	// SyncWordPrealloc is the number of synchronization words created by NewPools.
	SyncWordPrealloc int

	// EventPrealloc is the number of events created by NewPools.
	EventPrealloc int
}

// DefaultConfig returns the default preallocation sizes.
func DefaultConfig() Config {
	return Config{SyncWordPrealloc: 1024, EventPrealloc: 64}
}

// Pools of events and synchronization words of one device runtime.
type Pools struct {
	rt     device.Runtime
	events *respool.Pool[device.Event]
	words  *respool.Pool[device.SyncWord]
}

// NewPools creates the pools for rt, preallocating as configured.
func NewPools(rt device.Runtime, cfg Config) (*Pools, error) {
	p := &Pools{
		rt: rt,
		events: respool.New[device.Event](respool.FuncAllocator[device.Event]{
			AllocateFn:   rt.NewEvent,
			DeallocateFn: device.Event.Destroy,
		}),
		words: respool.New[device.SyncWord](respool.FuncAllocator[device.SyncWord]{
			AllocateFn:   rt.NewSyncWord,
			DeallocateFn: rt.FreeSyncWord,
		}),
	}
	if err := p.events.Preallocate(cfg.EventPrealloc); err != nil {
		return nil, errors.WithMessage(err, "syncpoint: failed to preallocate events")
	}
	if err := p.words.Preallocate(cfg.SyncWordPrealloc); err != nil {
		_ = p.events.Close()
		return nil, errors.WithMessage(err, "syncpoint: failed to preallocate synchronization words")
	}
	return p, nil
}

// Runtime returns the device runtime the pools allocate from.
func (p *Pools) Runtime() device.Runtime { return p.rt }

// Stats of the pools: the number of free and allocated handles, per kind.
type Stats struct {
	FreeEvents, AllocatedEvents int
	FreeWords, AllocatedWords   int
}

// Stats returns a snapshot of the pool counters.
func (p *Pools) Stats() Stats {
	return Stats{
		FreeEvents:      p.events.Len(),
		AllocatedEvents: p.events.Allocated(),
		FreeWords:       p.words.Len(),
		AllocatedWords:  p.words.Allocated(),
	}
}

// Close destroys every free event and synchronization word. Points and gates still checked out
// are destroyed when released, and new ones can't be created.
func (p *Pools) Close() error {
	stats := p.Stats()
	errEvents := p.events.Close()
	errWords := p.words.Close()
	klog.V(1).Infof("syncpoint: closed pools, destroyed %d events and %d synchronization words, %d and %d still checked out",
		stats.FreeEvents, stats.FreeWords, stats.AllocatedEvents-stats.FreeEvents, stats.AllocatedWords-stats.FreeWords)
	if errEvents != nil {
		return errEvents
	}
	return errWords
}

// Point is a position in a device stream, backed by a pooled event.
type Point struct {
	pools    *Pools
	event    device.Event
	released atomic.Bool
}

// NewPoint checks out an event. It is considered reached until recorded.
func (p *Pools) NewPoint() (*Point, error) {
	event, err := p.events.Checkout()
	if err != nil {
		return nil, err
	}
	return &Point{pools: p, event: event}, nil
}

func (pt *Point) checkLive() {
	if pt.released.Load() {
		exceptions.Panicf("syncpoint.Point used after Release")
	}
}

// Record the point at the current end of stream.
func (pt *Point) Record(stream device.Stream) error {
	pt.checkLive()
	return stream.Record(pt.event)
}

// WaitOn makes work enqueued on stream afterward wait until the point is reached. It doesn't block the host.
func (pt *Point) WaitOn(stream device.Stream) error {
	pt.checkLive()
	return stream.WaitEvent(pt.event)
}

// Query reports whether the point was reached, without blocking.
func (pt *Point) Query() (bool, error) {
	pt.checkLive()
	return pt.event.Query()
}

// Block the calling goroutine until the point is reached.
func (pt *Point) Block() error {
	pt.checkLive()
	return pt.event.Synchronize()
}

// Release returns the event to its pool, or destroys it if the pools were closed. The point must
// not be used afterward, and no stream may still be waiting on it. Releasing twice panics.
func (pt *Point) Release() {
	if pt.released.Swap(true) {
		exceptions.Panicf("syncpoint.Point released twice")
	}
	pt.pools.events.Release(pt.event)
}

// Gate values written to the synchronization word.
const (
	gateClosed int32 = 0
	gateOpen   int32 = 1
)

// Gate holds device work until the host opens it, backed by a pooled synchronization word.
type Gate struct {
	pools    *Pools
	word     device.SyncWord
	released atomic.Bool
}

// NewGate checks out a synchronization word, closed.
func (p *Pools) NewGate() (*Gate, error) {
	word, err := p.words.Checkout()
	if err != nil {
		return nil, err
	}
	word.Store(gateClosed)
	return &Gate{pools: p, word: word}, nil
}

func (g *Gate) checkLive() {
	if g.released.Load() {
		exceptions.Panicf("syncpoint.Gate used after Release")
	}
}

// Arm makes work enqueued on stream afterward wait until the gate is opened.
func (g *Gate) Arm(stream device.Stream) error {
	g.checkLive()
	return stream.WaitValue(g.word, gateOpen)
}

// Open the gate. It's a host memory write, it doesn't call into the device runtime.
func (g *Gate) Open() {
	g.checkLive()
	g.word.Store(gateOpen)
}

// IsOpen reports whether Open was called.
func (g *Gate) IsOpen() bool {
	g.checkLive()
	return g.word.Load() == gateOpen
}

// Release closes the gate and returns its word to the pool. The device must have passed the
// wait on the gate. Releasing twice panics.
func (g *Gate) Release() {
	if g.released.Swap(true) {
		exceptions.Panicf("syncpoint.Gate released twice")
	}
	g.word.Store(gateClosed)
	g.pools.words.Release(g.word)
}
