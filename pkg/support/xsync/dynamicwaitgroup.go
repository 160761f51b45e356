// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xsync

import (
	"sync"

	"github.com/gomlx/exceptions"
)

// DynamicWaitGroup counts live items. Unlike sync.WaitGroup, items can be added while
// another goroutine waits, and Wait returns the first time the count is seen at zero.
//
// Each busy period (count above zero) has its own Latch, triggered when it ends.
type DynamicWaitGroup struct {
	mu    sync.Mutex
	count int
	idle  *Latch
}

// NewDynamicWaitGroup creates an idle DynamicWaitGroup.
func NewDynamicWaitGroup() *DynamicWaitGroup {
	return &DynamicWaitGroup{idle: NewTriggeredLatch()}
}

// Add changes the count by delta. It panics if the count would become negative.
func (wg *DynamicWaitGroup) Add(delta int) {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	previous := wg.count
	if previous+delta < 0 {
		exceptions.Panicf("xsync.DynamicWaitGroup: count would become negative (%d%+d)", previous, delta)
	}
	wg.count += delta
	switch {
	case previous == 0 && wg.count > 0:
		wg.idle = NewLatch()
	case previous > 0 && wg.count == 0:
		wg.idle.Trigger()
	}
}

// Done decrements the count by one.
func (wg *DynamicWaitGroup) Done() {
	wg.Add(-1)
}

// Count returns the current count.
func (wg *DynamicWaitGroup) Count() int {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	return wg.count
}

// Idle returns the latch of the current busy period: it's triggered once the count drops to zero.
func (wg *DynamicWaitGroup) Idle() *Latch {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	return wg.idle
}

// Wait blocks until the count is zero.
func (wg *DynamicWaitGroup) Wait() {
	wg.Idle().Wait()
}
