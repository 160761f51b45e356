// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simdevice

import (
	"sync"

	"github.com/gomlx/hostxfer/pkg/core/device"
	"github.com/gomlx/hostxfer/pkg/support/xsync"
	"github.com/pkg/errors"
)

// Event implements device.Event. Each record installs a new marker latch, triggered by the
// stream when it reaches the record.
type Event struct {
	rt *Runtime

	mu        sync.Mutex
	marker    *xsync.Latch
	destroyed bool
}

// Compile-time check that Event implements device.Event.
var _ device.Event = (*Event)(nil)

func checkEvent(primitive string, event device.Event) (*Event, error) {
	ev, ok := event.(*Event)
	if !ok || ev == nil {
		return nil, device.NewError(primitive, CodeInvalidHandle, errors.Errorf("not a %s event: %T", RuntimeName, event))
	}
	ev.mu.Lock()
	defer ev.mu.Unlock()
	if ev.destroyed {
		return nil, device.NewError(primitive, CodeInvalidHandle, errors.New("event destroyed"))
	}
	return ev, nil
}

func (ev *Event) setMarker(marker *xsync.Latch) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	ev.marker = marker
}

func (ev *Event) currentMarker() *xsync.Latch {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return ev.marker
}

// Query implements device.Event.
func (ev *Event) Query() (bool, error) {
	if _, err := checkEvent("cudaEventQuery", ev); err != nil {
		return false, err
	}
	if err := ev.rt.checkPrimitive("cudaEventQuery"); err != nil {
		return false, err
	}
	marker := ev.currentMarker()
	return marker == nil || marker.Test(), nil
}

// Synchronize implements device.Event.
func (ev *Event) Synchronize() error {
	if _, err := checkEvent("cudaEventSynchronize", ev); err != nil {
		return err
	}
	if err := ev.rt.checkPrimitive("cudaEventSynchronize"); err != nil {
		return err
	}
	if marker := ev.currentMarker(); marker != nil {
		marker.Wait()
	}
	return nil
}

// Destroy implements device.Event.
func (ev *Event) Destroy() error {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	if ev.destroyed {
		return device.NewError("cudaEventDestroy", CodeInvalidHandle, errors.New("event destroyed twice"))
	}
	ev.destroyed = true
	ev.rt.liveEvents.Add(-1)
	return nil
}
