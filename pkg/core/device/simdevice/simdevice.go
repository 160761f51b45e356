// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package simdevice implements an in-process device runtime: device memory is Go memory,
// and each stream is a goroutine executing its commands in order.
//
// It honours the same ordering contract as a real accelerator runtime (events capture their
// position at record time, waits capture the last record at call time, copies are
// asynchronous), so it's used to test the host-transfer collectives, and to run them in a
// single process with no accelerator.
//
// It registers itself as the "sim" device runtime. Configuration is a comma-separated list of
// flags, currently only "no_mem_ops": StreamMemOpsSupported reports false, and WaitValue is
// emulated by a polling kernel ("cudaLaunchKernel") instead of the native stream wait
// ("cuStreamWaitValue32"), which sleeps until the word is written.
package simdevice

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/hostxfer/pkg/core/device"
	"github.com/gomlx/hostxfer/pkg/support/xsync"
	"github.com/pkg/errors"
)

// RuntimeName to be used in HOSTXFER_DEVICE to select this runtime.
const RuntimeName = "sim"

func init() {
	device.Register(RuntimeName, func(config string) (device.Runtime, error) {
		return NewWithConfig(config)
	})
}

// Native error codes, following the numbering of the CUDA runtime.
const (
	CodeInvalidValue     = 1
	CodeNotInitialized   = 3
	CodeInvalidHandle    = 400
	CodeLaunchFailure    = 719
	CodeInjectedFailure  = 999
	greatestPriority     = device.Priority(-5)
	leastPriority        = device.DefaultPriority
	syncWordCacheLineLen = 64
)

// Runtime implements device.Runtime.
type Runtime struct {
	memOps bool

	mu        sync.Mutex
	streams   map[*Stream]struct{}
	finalized bool
	failNext  map[string]int

	liveEvents, liveWords atomic.Int64
	pinnedBytes           atomic.Int64
	emulatedWaits         atomic.Int64
}

// Compile-time check that Runtime implements device.Runtime.
var _ device.Runtime = (*Runtime)(nil)

// New creates a simulated runtime with the default configuration.
func New() *Runtime {
	return &Runtime{
		memOps:   true,
		streams:  make(map[*Stream]struct{}),
		failNext: make(map[string]int),
	}
}

// NewWithConfig creates a simulated runtime from a configuration string, see package documentation.
func NewWithConfig(config string) (*Runtime, error) {
	rt := New()
	for _, flag := range strings.Split(config, ",") {
		switch strings.TrimSpace(flag) {
		case "":
		case "no_mem_ops":
			rt.memOps = false
		default:
			return nil, errors.Errorf("simdevice: unknown configuration flag %q in %q", flag, config)
		}
	}
	return rt, nil
}

// Name implements device.Runtime.
func (rt *Runtime) Name() string { return RuntimeName }

// StreamMemOpsSupported implements device.Runtime.
func (rt *Runtime) StreamMemOpsSupported() bool { return rt.memOps }

// FailNext makes the next call to the given primitive (e.g. "cudaMemcpyAsync") return a
// device.Error with CodeInjectedFailure. It's meant for testing error paths.
func (rt *Runtime) FailNext(primitive string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.failNext[primitive]++
}

// checkPrimitive returns an error if the runtime is finalized or a failure was injected for primitive.
func (rt *Runtime) checkPrimitive(primitive string) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.finalized {
		return device.NewError(primitive, CodeNotInitialized, errors.New("runtime finalized"))
	}
	if rt.failNext[primitive] > 0 {
		rt.failNext[primitive]--
		return device.NewError(primitive, CodeInjectedFailure, errors.New("injected failure"))
	}
	return nil
}

// PriorityRange implements device.Runtime.
func (rt *Runtime) PriorityRange() (least, greatest device.Priority, err error) {
	if err = rt.checkPrimitive("cudaDeviceGetStreamPriorityRange"); err != nil {
		return
	}
	return leastPriority, greatestPriority, nil
}

// NewStream implements device.Runtime. Priorities outside of PriorityRange are clamped.
func (rt *Runtime) NewStream(priority device.Priority) (device.Stream, error) {
	if err := rt.checkPrimitive("cudaStreamCreateWithPriority"); err != nil {
		return nil, err
	}
	priority = max(min(priority, leastPriority), greatestPriority)
	s := newStream(rt, priority)
	rt.mu.Lock()
	rt.streams[s] = struct{}{}
	rt.mu.Unlock()
	return s, nil
}

// NumStreams returns the number of live streams.
func (rt *Runtime) NumStreams() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.streams)
}

func (rt *Runtime) removeStream(s *Stream) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.streams, s)
}

// NewEvent implements device.Runtime.
func (rt *Runtime) NewEvent() (device.Event, error) {
	if err := rt.checkPrimitive("cudaEventCreateWithFlags"); err != nil {
		return nil, err
	}
	rt.liveEvents.Add(1)
	return &Event{rt: rt}, nil
}

// LiveEvents returns the number of events created and not yet destroyed.
func (rt *Runtime) LiveEvents() int { return int(rt.liveEvents.Load()) }

// EmulatedWaits returns the number of WaitValue commands executed by a polling kernel, with
// the "no_mem_ops" configuration.
func (rt *Runtime) EmulatedWaits() int64 { return rt.emulatedWaits.Load() }

// syncWord value is padded to its own cache line, so the device polling it doesn't
// contend with neighbouring words.
//
// Native waits register a latch, triggered by the Store of the value they wait for.
type syncWord struct {
	value atomic.Int32
	_     [syncWordCacheLineLen - 4]byte
	freed atomic.Bool

	mu      sync.Mutex
	waiters []wordWaiter
}

type wordWaiter struct {
	value int32
	latch *xsync.Latch
}

// Load implements device.SyncWord.
func (w *syncWord) Load() int32 { return w.value.Load() }

// Store implements device.SyncWord.
func (w *syncWord) Store(value int32) {
	w.value.Store(value)
	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.waiters[:0]
	for _, waiter := range w.waiters {
		if waiter.value == value {
			waiter.latch.Trigger()
		} else {
			kept = append(kept, waiter)
		}
	}
	clear(w.waiters[len(kept):])
	w.waiters = kept
}

// wait blocks until the word holds value.
func (w *syncWord) wait(value int32) {
	w.mu.Lock()
	if w.value.Load() == value {
		w.mu.Unlock()
		return
	}
	latch := xsync.NewLatch()
	w.waiters = append(w.waiters, wordWaiter{value: value, latch: latch})
	w.mu.Unlock()
	latch.Wait()
}

// NewSyncWord implements device.Runtime.
func (rt *Runtime) NewSyncWord() (device.SyncWord, error) {
	if err := rt.checkPrimitive("cudaHostRegister"); err != nil {
		return nil, err
	}
	rt.liveWords.Add(1)
	return &syncWord{}, nil
}

// FreeSyncWord implements device.Runtime.
func (rt *Runtime) FreeSyncWord(word device.SyncWord) error {
	w, ok := word.(*syncWord)
	if !ok || w == nil {
		return device.NewError("cudaHostUnregister", CodeInvalidValue, errors.Errorf("not a %s sync word: %T", RuntimeName, word))
	}
	if w.freed.Swap(true) {
		return device.NewError("cudaHostUnregister", CodeInvalidValue, errors.New("sync word freed twice"))
	}
	rt.liveWords.Add(-1)
	return nil
}

// LiveSyncWords returns the number of synchronization words allocated and not yet freed.
func (rt *Runtime) LiveSyncWords() int { return int(rt.liveWords.Load()) }

// AllocHost implements device.Runtime.
func (rt *Runtime) AllocHost(loc device.Location, nbytes int) ([]byte, error) {
	if loc != device.LocationHost && loc != device.LocationPinnedHost {
		return nil, device.NewError("cudaHostAlloc", CodeInvalidValue, errors.Errorf("location %s is not host memory", loc))
	}
	if nbytes < 0 {
		return nil, device.NewError("cudaHostAlloc", CodeInvalidValue, errors.Errorf("negative size %d", nbytes))
	}
	if err := rt.checkPrimitive("cudaHostAlloc"); err != nil {
		return nil, err
	}
	if loc == device.LocationPinnedHost {
		rt.pinnedBytes.Add(int64(nbytes))
	}
	return make([]byte, nbytes), nil
}

// FreeHost implements device.Runtime.
func (rt *Runtime) FreeHost(loc device.Location, mem []byte) error {
	if loc != device.LocationHost && loc != device.LocationPinnedHost {
		return device.NewError("cudaFreeHost", CodeInvalidValue, errors.Errorf("location %s is not host memory", loc))
	}
	if loc == device.LocationPinnedHost {
		rt.pinnedBytes.Add(-int64(cap(mem)))
	}
	return nil
}

// PinnedBytes returns the amount of pinned host memory currently allocated.
func (rt *Runtime) PinnedBytes() int64 { return rt.pinnedBytes.Load() }

// AllocDevice implements device.Runtime.
func (rt *Runtime) AllocDevice(dtype dtypes.DType, count int) (device.Buffer, error) {
	if err := rt.checkPrimitive("cudaMalloc"); err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, device.NewError("cudaMalloc", CodeInvalidValue, errors.Errorf("negative count %d", count))
	}
	return newBuffer(dtype, count), nil
}

// Finalize implements device.Runtime: it destroys every stream, after their pending work completes.
func (rt *Runtime) Finalize() error {
	rt.mu.Lock()
	if rt.finalized {
		rt.mu.Unlock()
		return nil
	}
	streams := make([]*Stream, 0, len(rt.streams))
	for s := range rt.streams {
		streams = append(streams, s)
	}
	rt.mu.Unlock()

	for _, s := range streams {
		s.markDestroyed()
		s.waitExit()
	}
	rt.mu.Lock()
	rt.finalized = true
	rt.mu.Unlock()
	return nil
}
