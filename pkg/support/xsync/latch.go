// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xsync implements a few synchronization tools shared by the device runtimes,
// the loopback communicator and the progress engine.
package xsync

import (
	"sync"
	"time"
)

// Latch is a one-shot signal: once triggered it stays triggered forever.
//
// The zero value is not usable, create it with NewLatch.
type Latch struct {
	once sync.Once
	done chan struct{}
}

// NewLatch returns an un-triggered latch.
func NewLatch() *Latch {
	return &Latch{done: make(chan struct{})}
}

// NewTriggeredLatch returns a latch that is already triggered.
func NewTriggeredLatch() *Latch {
	l := NewLatch()
	l.Trigger()
	return l
}

// Trigger the latch. Triggering more than once is a no-op.
func (l *Latch) Trigger() {
	l.once.Do(func() { close(l.done) })
}

// Test reports whether the latch has been triggered, without blocking.
func (l *Latch) Test() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the latch is triggered.
func (l *Latch) Wait() {
	<-l.done
}

// WaitTimeout waits for the latch for at most timeout, and returns whether it was triggered.
func (l *Latch) WaitTimeout(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-l.done:
		return true
	case <-timer.C:
		return false
	}
}

// WaitChan returns a channel that is closed when the latch triggers, to be used in a select.
func (l *Latch) WaitChan() <-chan struct{} {
	return l.done
}
