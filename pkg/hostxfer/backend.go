// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package hostxfer implements collective operations for device streams that are executed by a
// host communication layer, staging the data through pinned host memory.
//
// Operations are issued on a device stream without blocking it on the host: each one is turned
// into a state that copies its inputs to the host, then holds the stream behind a gate (a
// device-side wait on a host-written word) until the host operation completes, and finally
// copies the results back. A progress engine goroutine polls every in-flight operation.
//
// Usage, per process (or rank):
//
//	backend, err := hostxfer.New(rt, hostxfer.DefaultConfig())
//	comm := backend.NewCommunicator(hostComm, stream)
//	err = comm.Allreduce(buf, buf, count, hostcomm.ReduceOpSum, hostxfer.AllreduceAutomatic)
//	req, err := comm.NonblockingAllgather(send, recv, count, hostxfer.CollectiveAutomatic)
//	...
//	req.Wait()
//	err = backend.Finalize()
package hostxfer

import (
	"sync"

	"github.com/gomlx/hostxfer/pkg/core/device"
	"github.com/gomlx/hostxfer/pkg/core/mempool"
	"github.com/gomlx/hostxfer/pkg/core/progress"
	"github.com/gomlx/hostxfer/pkg/core/syncpoint"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// BackendName is returned by Backend.Name.
const BackendName = "HostTransferBackend"

// Backend holds the resources shared by the communicators of one device runtime: the progress
// engine and the pools. It also keeps track of the internal streams of its communicators.
type Backend struct {
	rt       device.Runtime
	cfg      Config
	priority device.Priority
	engine   *progress.Engine
	points   *syncpoint.Pools
	staging  *mempool.Pool

	// mu is held for reading while issuing operations, and for writing to finalize.
	mu           sync.RWMutex
	createStream func() (device.Stream, error)
	ownsStreams  bool
	finalized    bool

	// muStreams guards the list of internal streams created so far, for Finalize.
	muStreams       sync.Mutex
	internalStreams []internalStream
}

type internalStream struct {
	stream device.Stream
	owned  bool
}

// New initializes a Backend for rt. The caller keeps ownership of rt.
func New(rt device.Runtime, cfg Config) (*Backend, error) {
	if rt == nil {
		return nil, errors.New("hostxfer.New: nil device runtime")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	points, err := syncpoint.NewPools(rt, syncpoint.Config{
		SyncWordPrealloc: cfg.SyncWordPrealloc,
		EventPrealloc:    cfg.EventPrealloc,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "hostxfer.New")
	}
	b := &Backend{
		rt:          rt,
		cfg:         cfg,
		priority:    device.DefaultPriority,
		points:      points,
		staging:     mempool.New(rt),
		ownsStreams: true,
		engine: progress.NewEngine(
			progress.WithName(BackendName),
			progress.WithPollInterval(cfg.PollInterval)),
	}
	if cfg.PriorityStreams {
		_, greatest, err := rt.PriorityRange()
		if err != nil {
			klog.Warningf("%s: failed to query stream priorities, using default priority: %v", BackendName, err)
		} else {
			b.priority = greatest
		}
	}
	b.createStream = func() (device.Stream, error) { return b.rt.NewStream(b.priority) }
	b.engine.Start()
	klog.V(1).Infof("%s initialized on device runtime %q, %d internal streams per communicator", BackendName, rt.Name(), cfg.NumInternalStreams)
	return b, nil
}

// lockedNewInternalStreams creates the cfg.NumInternalStreams internal streams of a communicator.
// It must be called with b.mu held.
func (b *Backend) lockedNewInternalStreams() ([]device.Stream, error) {
	streams := make([]device.Stream, 0, b.cfg.NumInternalStreams)
	for range b.cfg.NumInternalStreams {
		stream, err := b.createStream()
		if err == nil && stream == nil {
			err = errors.New("internal stream factory returned a nil stream")
		}
		if err != nil {
			if b.ownsStreams {
				for _, s := range streams {
					_ = s.Destroy()
				}
			}
			return nil, errors.WithMessagef(err, "failed to create internal stream (priority %d)", b.priority)
		}
		streams = append(streams, stream)
	}
	b.muStreams.Lock()
	for _, stream := range streams {
		b.internalStreams = append(b.internalStreams, internalStream{stream: stream, owned: b.ownsStreams})
	}
	b.muStreams.Unlock()
	return streams, nil
}

// NumInternalStreams returns the number of internal streams created so far by the communicators
// of the backend.
func (b *Backend) NumInternalStreams() int {
	b.muStreams.Lock()
	defer b.muStreams.Unlock()
	return len(b.internalStreams)
}

// Name of the backend.
func (b *Backend) Name() string { return BackendName }

// Runtime returns the device runtime of the backend.
func (b *Backend) Runtime() device.Runtime { return b.rt }

// Config returns the configuration the backend was created with.
func (b *Backend) Config() Config { return b.cfg }

// StreamMemOpsSupported reports whether the device runtime supports waiting on host-written
// words natively. Otherwise, device.Stream.WaitValue is emulated by the runtime (e.g. with a
// kernel polling the word), and the gates work the same, at the cost of a busy device.
func (b *Backend) StreamMemOpsSupported() bool { return b.rt.StreamMemOpsSupported() }

// EngineStats returns the counters of the progress engine.
func (b *Backend) EngineStats() progress.Stats { return b.engine.Stats() }

// StagingStats returns the usage of the host staging memory pool.
func (b *Backend) StagingStats() mempool.Stats { return b.staging.Stats() }

// SyncStats returns the usage of the event and synchronization word pools.
func (b *Backend) SyncStats() syncpoint.Stats { return b.points.Stats() }

// WaitIdle blocks until every operation issued so far released its resources.
func (b *Backend) WaitIdle() { b.engine.WaitIdle() }

// lockedCheckLive returns an error if the backend was finalized. It must be called with b.mu held.
func (b *Backend) lockedCheckLive() error {
	if b.finalized {
		return errors.Errorf("%s already finalized", BackendName)
	}
	return nil
}

// ReplaceInternalStreams makes create the source of the internal streams of communicators that
// didn't issue a non-blocking operation yet. Communicators keep the internal streams they already
// have. The backend doesn't own the streams returned by create: they are not destroyed by Finalize.
func (b *Backend) ReplaceInternalStreams(create func() (device.Stream, error)) error {
	if create == nil {
		return errors.New("hostxfer.ReplaceInternalStreams: nil stream factory")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.lockedCheckLive(); err != nil {
		return errors.WithMessage(err, "hostxfer.ReplaceInternalStreams")
	}
	b.createStream, b.ownsStreams = create, false
	return nil
}

// Finalize waits for all issued operations to complete, and releases the resources of the
// backend. Communicators of the backend can't be used afterward.
func (b *Backend) Finalize() error {
	b.mu.Lock()
	if err := b.lockedCheckLive(); err != nil {
		b.mu.Unlock()
		return err
	}
	b.finalized = true
	b.mu.Unlock()

	b.engine.Stop()
	var firstErr error
	keepErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.muStreams.Lock()
	streams := b.internalStreams
	b.internalStreams = nil
	b.muStreams.Unlock()
	for _, s := range streams {
		keepErr(s.stream.Synchronize())
		if s.owned {
			keepErr(s.stream.Destroy())
		}
	}
	keepErr(b.points.Close())
	keepErr(b.staging.Clear())
	klog.V(1).Infof("%s finalized", BackendName)
	return errors.WithMessage(firstErr, "hostxfer.Finalize")
}

var (
	muDefault      sync.Mutex
	defaultBackend *Backend
)

// Init creates the process-wide default Backend, see Default. It's an error to call it twice
// without Finalize in between.
func Init(rt device.Runtime, cfg Config) error {
	muDefault.Lock()
	defer muDefault.Unlock()
	if defaultBackend != nil {
		return errors.Errorf("hostxfer.Init called twice, the default %s is already initialized", BackendName)
	}
	b, err := New(rt, cfg)
	if err != nil {
		return err
	}
	defaultBackend = b
	return nil
}

// Default returns the backend created by Init.
func Default() (*Backend, error) {
	muDefault.Lock()
	defer muDefault.Unlock()
	if defaultBackend == nil {
		return nil, errors.Errorf("default %s not initialized, call hostxfer.Init first", BackendName)
	}
	return defaultBackend, nil
}

// Finalize finalizes the default backend created by Init.
func Finalize() error {
	muDefault.Lock()
	defer muDefault.Unlock()
	if defaultBackend == nil {
		return errors.Errorf("hostxfer.Finalize called without hostxfer.Init")
	}
	err := defaultBackend.Finalize()
	defaultBackend = nil
	return err
}
