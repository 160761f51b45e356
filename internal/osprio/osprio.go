// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package osprio changes the scheduling priority of the calling OS thread.
//
// It's used by priority streams, whose goroutines are locked to their OS thread.
// Raising a priority usually requires privileges, so callers treat failures as warnings.
package osprio

import "github.com/pkg/errors"

// ErrUnsupported is returned on platforms without per-thread priorities.
var ErrUnsupported = errors.New("per-thread priority not supported on this platform")

// SetCurrentThread sets the nice value of the calling OS thread (-20 is the highest priority,
// 19 the lowest). The caller must have called runtime.LockOSThread.
func SetCurrentThread(nice int) error {
	if nice < -20 || nice > 19 {
		return errors.Errorf("invalid nice value %d, it must be in [-20, 19]", nice)
	}
	return setCurrentThread(nice)
}
