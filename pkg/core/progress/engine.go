// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package progress implements the progress engine: one background goroutine, locked to its OS
// thread, that polls every in-flight operation and moves it through its lifecycle.
//
// Goroutines issuing operations only build a State and Enqueue it; all device and host polling
// happens in the engine goroutine.
package progress

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/hostxfer/internal/fatal"
	"github.com/gomlx/hostxfer/pkg/support/xsync"
	"k8s.io/klog/v2"
)

const (
	// DefaultPollInterval is the longest the engine sleeps when no operation made progress.
	DefaultPollInterval = 20 * time.Microsecond

	// DefaultSpinIterations is the number of idle iterations the engine spins (yielding the
	// processor) before it starts sleeping.
	DefaultSpinIterations = 64

	// DefaultName of the engine, used in logs.
	DefaultName = "hostxfer-progress"
)

// EngineOption configures an Engine.
type EngineOption func(e *Engine)

// WithPollInterval sets the longest time the engine sleeps when idle. A new State wakes it immediately.
func WithPollInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithSpinIterations sets the number of idle iterations the engine spins before sleeping.
func WithSpinIterations(n int) EngineOption {
	return func(e *Engine) {
		if n >= 0 {
			e.spinIterations = n
		}
	}
}

// WithName sets the name of the engine, used in logs.
func WithName(name string) EngineOption {
	return func(e *Engine) { e.name = name }
}

// Engine drives States to completion. Create it with NewEngine, then Start it.
type Engine struct {
	name           string
	pollInterval   time.Duration
	spinIterations int

	mu       sync.Mutex
	queue    []State
	started  bool
	stopping bool
	wake     chan struct{}
	stopped  *xsync.Latch

	live                        *xsync.DynamicWaitGroup
	admitted, completed, failed atomic.Int64
	numPending, numInFlight     atomic.Int64
}

// NewEngine creates an Engine, not yet started.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		name:           DefaultName,
		pollInterval:   DefaultPollInterval,
		spinIterations: DefaultSpinIterations,
		wake:           make(chan struct{}, 1),
		stopped:        xsync.NewLatch(),
		live:           xsync.NewDynamicWaitGroup(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name of the engine.
func (e *Engine) Name() string { return e.name }

// Start the engine goroutine. Starting twice is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	if e.stopping {
		exceptions.Panicf("progress: Start called on stopped engine %q", e.name)
	}
	e.started = true
	go e.run()
}

// Enqueue transfers ownership of state to the engine. The state must have status Created.
//
// It's safe to call concurrently, and it panics if the engine is stopping.
func (e *Engine) Enqueue(state State) {
	state.lifecycle().advance(WaitingStart)
	e.mu.Lock()
	if e.stopping {
		e.mu.Unlock()
		exceptions.Panicf("progress: Enqueue(%s) called on stopped engine %q", state.Name(), e.name)
	}
	e.live.Add(1)
	e.queue = append(e.queue, state)
	e.mu.Unlock()
	e.admitted.Add(1)
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// WaitIdle blocks until every state enqueued so far is Done (or failed).
func (e *Engine) WaitIdle() {
	e.live.Wait()
}

// Stop waits for every enqueued state to be Done, and then stops the engine goroutine.
// States are never cancelled. Calling Stop more than once is fine.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopping = true
	if !e.started && len(e.queue) > 0 {
		// Drain what was enqueued before the engine was ever started.
		e.started = true
		go e.run()
	}
	started := e.started
	e.mu.Unlock()
	if !started {
		e.stopped.Trigger()
		return
	}
	select {
	case e.wake <- struct{}{}:
	default:
	}
	e.stopped.Wait()
}

// Stats are the engine counters.
type Stats struct {
	// Admitted is the number of states enqueued so far.
	Admitted int64

	// Completed is the number of states that reached Done.
	Completed int64

	// Failed is the number of states dropped after a fatal error whose handler returned.
	Failed int64

	// Pending is the number of states waiting to start, as of the last engine iteration.
	Pending int64

	// InFlight is the number of started states not yet Done, as of the last engine iteration.
	InFlight int64

	// Live is the number of states admitted and neither Done nor dropped, including states
	// enqueued since the last engine iteration. WaitIdle waits for it to be zero.
	Live int
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Admitted:  e.admitted.Load(),
		Completed: e.completed.Load(),
		Failed:    e.failed.Load(),
		Pending:   e.numPending.Load(),
		InFlight:  e.numInFlight.Load(),
		Live:      e.live.Count(),
	}
}

// report a hook error as fatal. If the fatal handler returns, the state is dropped.
func (e *Engine) report(state State, hook string, err error) {
	fatal.Report(err, "progress engine %q: %s.%s failed in status %s", e.name, state.Name(), hook, state.Status())
	e.failed.Add(1)
	e.live.Done()
}

func (e *Engine) run() {
	// The engine polls the device: keep it on one thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer e.stopped.Trigger()
	klog.V(1).Infof("progress engine %q started", e.name)
	defer klog.V(1).Infof("progress engine %q stopped", e.name)

	var (
		pendingStart, inFlight []State
		blocked                = make(map[any]bool)
		idle                   int
		timer                  = time.NewTimer(e.pollInterval)
	)
	defer timer.Stop()
	for {
		e.mu.Lock()
		batch := e.queue
		e.queue = nil
		stopping := e.stopping
		e.mu.Unlock()

		progressed := len(batch) > 0
		for _, state := range batch {
			klog.V(2).Infof("progress engine %q: admitted %s", e.name, state.Name())
		}
		pendingStart = append(pendingStart, batch...)

		var started []State
		pendingStart, started = e.startReady(pendingStart, blocked)
		inFlight = append(inFlight, started...)
		progressed = progressed || len(started) > 0

		var advanced bool
		inFlight, advanced = e.advanceInFlight(inFlight)
		progressed = progressed || advanced

		e.numPending.Store(int64(len(pendingStart)))
		e.numInFlight.Store(int64(len(inFlight)))
		if stopping && len(pendingStart) == 0 && len(inFlight) == 0 {
			return
		}

		if progressed {
			idle = 0
			continue
		}
		idle++
		if idle <= e.spinIterations {
			runtime.Gosched()
			continue
		}
		timer.Reset(e.pollInterval)
		select {
		case <-e.wake:
		case <-timer.C:
		}
	}
}

// startReady starts the pending states whose start point was reached, and returns the ones
// still pending and the ones started.
func (e *Engine) startReady(pending []State, blocked map[any]bool) (remaining, started []State) {
	clear(blocked)
	remaining = pending[:0]
	for _, state := range pending {
		sequenced, isSequenced := state.(Sequenced)
		var key any
		if isSequenced {
			key = sequenced.SequenceKey()
			if blocked[key] {
				remaining = append(remaining, state)
				continue
			}
		}
		ready, err := state.StartReady()
		if err != nil {
			e.report(state, "StartReady", err)
			continue
		}
		if !ready {
			if isSequenced {
				blocked[key] = true
			}
			remaining = append(remaining, state)
			continue
		}
		if err := state.OnStart(); err != nil {
			e.report(state, "OnStart", err)
			continue
		}
		state.lifecycle().advance(Running)
		started = append(started, state)
	}
	clear(pending[len(remaining):])
	return remaining, started
}

// advanceInFlight polls the started states, and drops the ones that reached Done.
func (e *Engine) advanceInFlight(inFlight []State) (remaining []State, progressed bool) {
	remaining = inFlight[:0]
	for _, state := range inFlight {
		if state.Status() == Running {
			complete, err := state.IsComplete()
			if err != nil {
				e.report(state, "IsComplete", err)
				progressed = true
				continue
			}
			if !complete {
				remaining = append(remaining, state)
				continue
			}
			if err := state.OnFinish(); err != nil {
				e.report(state, "OnFinish", err)
				progressed = true
				continue
			}
			state.lifecycle().advance(Finalizing)
			progressed = true
		}

		finalized, err := state.Finalize()
		if err != nil {
			e.report(state, "Finalize", err)
			progressed = true
			continue
		}
		if !finalized {
			remaining = append(remaining, state)
			continue
		}
		state.lifecycle().advance(Done)
		klog.V(2).Infof("progress engine %q: %s done", e.name, state.Name())
		e.completed.Add(1)
		e.live.Done()
		progressed = true
	}
	clear(inFlight[len(remaining):])
	return remaining, progressed
}
