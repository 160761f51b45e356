// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hostxfer

import (
	"os"
	"time"

	"github.com/gomlx/hostxfer/pkg/core/progress"
	"github.com/gomlx/hostxfer/pkg/core/syncpoint"
	"github.com/pkg/errors"
)

// HOSTXFER_USE_PRIORITY_STREAM is the environment variable that, if set to any value, makes the
// internal streams of the backend be created with the greatest priority.
const HOSTXFER_USE_PRIORITY_STREAM = "HOSTXFER_USE_PRIORITY_STREAM"

// HOSTXFER_POLL_INTERVAL is the environment variable with the longest idle sleep of the progress
// engine, as a Go duration (e.g. "50us").
const HOSTXFER_POLL_INTERVAL = "HOSTXFER_POLL_INTERVAL"

// Config of a Backend.
type Config struct {
	// NumInternalStreams is the number of streams non-blocking operations are spread over (round-robin).
	NumInternalStreams int

	// PriorityStreams creates the internal streams with the greatest priority supported by the runtime.
	PriorityStreams bool

	// SyncWordPrealloc is the number of synchronization words preallocated at initialization.
	SyncWordPrealloc int

	// EventPrealloc is the number of events preallocated at initialization.
	EventPrealloc int

	// PollInterval is the longest the progress engine sleeps when there is nothing to do.
	PollInterval time.Duration
}

// DefaultConfig returns the default configuration, ignoring the environment.
func DefaultConfig() Config {
	pools := syncpoint.DefaultConfig()
	return Config{
		NumInternalStreams: 5,
		SyncWordPrealloc:   pools.SyncWordPrealloc,
		EventPrealloc:      pools.EventPrealloc,
		PollInterval:       progress.DefaultPollInterval,
	}
}

// ConfigFromEnv returns DefaultConfig, modified by HOSTXFER_USE_PRIORITY_STREAM and HOSTXFER_POLL_INTERVAL.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if _, found := os.LookupEnv(HOSTXFER_USE_PRIORITY_STREAM); found {
		cfg.PriorityStreams = true
	}
	if value, found := os.LookupEnv(HOSTXFER_POLL_INTERVAL); found {
		interval, err := time.ParseDuration(value)
		if err != nil {
			return cfg, errors.Wrapf(err, "invalid value %q for %s", value, HOSTXFER_POLL_INTERVAL)
		}
		if interval <= 0 {
			return cfg, errors.Errorf("invalid value %q for %s: it must be positive", value, HOSTXFER_POLL_INTERVAL)
		}
		cfg.PollInterval = interval
	}
	return cfg, nil
}

// validate returns an error if cfg can't be used.
func (cfg Config) validate() error {
	if cfg.NumInternalStreams <= 0 {
		return errors.Errorf("invalid Config.NumInternalStreams %d: it must be positive", cfg.NumInternalStreams)
	}
	if cfg.SyncWordPrealloc < 0 || cfg.EventPrealloc < 0 {
		return errors.Errorf("invalid Config preallocation sizes (%d words, %d events): they can't be negative",
			cfg.SyncWordPrealloc, cfg.EventPrealloc)
	}
	if cfg.PollInterval <= 0 {
		return errors.Errorf("invalid Config.PollInterval %s: it must be positive", cfg.PollInterval)
	}
	return nil
}
