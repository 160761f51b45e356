// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fatal reports unrecoverable errors: failures of device or host communication
// primitives, after which the state of the collectives can't be trusted.
//
// By default it logs the error (with stack) and panics. Tests can replace the handler with SetHandler.
package fatal

import (
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Handler is called with the fatal error.
type Handler func(err error)

// DefaultHandler logs err with its stack trace, flushes the logs and panics.
func DefaultHandler(err error) {
	klog.Errorf("Fatal error in host-transfer collectives: %+v\nPanicking ...\n\n", err)
	klog.Flush()
	panic(err)
}

var (
	muHandler sync.RWMutex
	handler   Handler = DefaultHandler
)

// SetHandler replaces the fatal error handler, and returns the previous one.
// A nil handler restores DefaultHandler.
func SetHandler(h Handler) (previous Handler) {
	if h == nil {
		h = DefaultHandler
	}
	muHandler.Lock()
	defer muHandler.Unlock()
	previous, handler = handler, h
	return previous
}

// Report wraps err with the formatted context and calls the handler.
// If the handler returns, so does Report, and the caller abandons the failed operation.
func Report(err error, format string, args ...any) {
	if err == nil {
		return
	}
	muHandler.RLock()
	h := handler
	muHandler.RUnlock()
	h(errors.WithMessagef(err, format, args...))
}
