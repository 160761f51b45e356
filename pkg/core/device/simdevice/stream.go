// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simdevice

import (
	"runtime"
	"sync"
	"time"

	"github.com/gomlx/hostxfer/internal/osprio"
	"github.com/gomlx/hostxfer/pkg/core/device"
	"github.com/gomlx/hostxfer/pkg/support/xsync"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Stream implements device.Stream with a goroutine that executes an unbounded FIFO of commands.
type Stream struct {
	rt       *Runtime
	priority device.Priority

	mu        sync.Mutex
	cond      sync.Cond
	queue     []func()
	destroyed bool
	exited    *xsync.Latch
}

// Compile-time check that Stream implements device.Stream.
var _ device.Stream = (*Stream)(nil)

func newStream(rt *Runtime, priority device.Priority) *Stream {
	s := &Stream{
		rt:       rt,
		priority: priority,
		exited:   xsync.NewLatch(),
	}
	s.cond.L = &s.mu
	go s.worker()
	return s
}

// Priority returns the (clamped) priority the stream was created with.
func (s *Stream) Priority() device.Priority { return s.priority }

func (s *Stream) worker() {
	defer s.exited.Trigger()
	if s.priority < device.DefaultPriority {
		// The goroutine exits locked, so the thread with the changed priority is discarded.
		runtime.LockOSThread()
		if err := osprio.SetCurrentThread(int(s.priority)); err != nil {
			klog.Warningf("simdevice: failed to raise priority of stream thread to %d: %v", s.priority, err)
		}
	}
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.destroyed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			// Destroyed and drained.
			s.mu.Unlock()
			s.rt.removeStream(s)
			return
		}
		cmd := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()
		cmd()
	}
}

// enqueue appends cmd to the stream, after checking primitive for injected failures.
func (s *Stream) enqueue(primitive string, cmd func()) error {
	if err := s.rt.checkPrimitive(primitive); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return device.NewError(primitive, CodeInvalidHandle, errors.New("stream destroyed"))
	}
	s.queue = append(s.queue, cmd)
	s.cond.Signal()
	return nil
}

func (s *Stream) waitExit() { s.exited.Wait() }

// CopyToHost implements device.Stream.
func (s *Stream) CopyToHost(dst []byte, src device.Buffer, srcOffset int) error {
	const primitive = "cudaMemcpyAsync"
	buf, err := checkBuffer(primitive, src, srcOffset, len(dst))
	if err != nil {
		return err
	}
	if len(dst) == 0 {
		return nil
	}
	return s.enqueue(primitive, func() {
		copy(dst, buf.data[srcOffset:srcOffset+len(dst)])
	})
}

// CopyToDevice implements device.Stream.
func (s *Stream) CopyToDevice(dst device.Buffer, dstOffset int, src []byte) error {
	const primitive = "cudaMemcpyAsync"
	buf, err := checkBuffer(primitive, dst, dstOffset, len(src))
	if err != nil {
		return err
	}
	if len(src) == 0 {
		return nil
	}
	return s.enqueue(primitive, func() {
		copy(buf.data[dstOffset:dstOffset+len(src)], src)
	})
}

// Record implements device.Stream.
func (s *Stream) Record(event device.Event) error {
	const primitive = "cudaEventRecord"
	ev, err := checkEvent(primitive, event)
	if err != nil {
		return err
	}
	// The event moves to the new position when the command is enqueued, not when it runs.
	marker := xsync.NewLatch()
	if err := s.enqueue(primitive, marker.Trigger); err != nil {
		return err
	}
	ev.setMarker(marker)
	return nil
}

// WaitEvent implements device.Stream.
func (s *Stream) WaitEvent(event device.Event) error {
	const primitive = "cudaStreamWaitEvent"
	ev, err := checkEvent(primitive, event)
	if err != nil {
		return err
	}
	marker := ev.currentMarker()
	if marker == nil {
		// Never recorded: nothing to wait for.
		return s.rt.checkPrimitive(primitive)
	}
	return s.enqueue(primitive, marker.Wait)
}

// WaitValue implements device.Stream.
//
// Natively (cuStreamWaitValue32) the stream sleeps until the word is written with value. Without
// stream memory operations, a polling kernel is launched instead: it spins on the word, backing
// off to short sleeps when it stays unchanged.
func (s *Stream) WaitValue(word device.SyncWord, value int32) error {
	if !s.rt.memOps {
		return s.launchPollKernel(word, value)
	}
	const primitive = "cuStreamWaitValue32"
	w, ok := word.(*syncWord)
	if !ok || w == nil {
		return device.NewError(primitive, CodeInvalidValue, errors.Errorf("not a %s sync word: %T", RuntimeName, word))
	}
	if w.freed.Load() {
		return device.NewError(primitive, CodeInvalidValue, errors.New("sync word already freed"))
	}
	return s.enqueue(primitive, func() { w.wait(value) })
}

// launchPollKernel emulates WaitValue with a kernel polling the host-mapped word.
func (s *Stream) launchPollKernel(word device.SyncWord, value int32) error {
	const primitive = "cudaLaunchKernel"
	if word == nil {
		return device.NewError(primitive, CodeInvalidValue, errors.New("nil sync word"))
	}
	return s.enqueue(primitive, func() {
		s.rt.emulatedWaits.Add(1)
		for spins := 0; word.Load() != value; spins++ {
			if spins < 64 {
				runtime.Gosched()
			} else {
				time.Sleep(5 * time.Microsecond)
			}
		}
	})
}

// Synchronize implements device.Stream.
func (s *Stream) Synchronize() error {
	done := xsync.NewLatch()
	if err := s.enqueue("cudaStreamSynchronize", done.Trigger); err != nil {
		return err
	}
	done.Wait()
	return nil
}

// Destroy implements device.Stream. Pending work still runs.
func (s *Stream) Destroy() error {
	if !s.markDestroyed() {
		return device.NewError("cudaStreamDestroy", CodeInvalidHandle, errors.New("stream destroyed twice"))
	}
	return nil
}

// markDestroyed stops accepting work and wakes the worker. It returns false if the
// stream was already destroyed.
func (s *Stream) markDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return false
	}
	s.destroyed = true
	s.cond.Signal()
	return true
}
