// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package device

import (
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Constructor takes a runtime-specific configuration string (optionally empty) and returns a Runtime.
type Constructor func(config string) (Runtime, error)

var (
	muRegistry             sync.Mutex
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register a runtime constructor under name. Call it during the initialization of a package.
func Register(name string, constructor Constructor) {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// Registered returns the sorted names of the registered runtimes.
func Registered() []string {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	names := make([]string, 0, len(registeredConstructors))
	for name := range registeredConstructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HOSTXFER_DEVICE is the environment variable with the default device runtime configuration.
//
// The format is "<runtime_name>:<runtime_configuration>", see NewWithConfig.
const HOSTXFER_DEVICE = "HOSTXFER_DEVICE"

// DefaultConfig is used by New if HOSTXFER_DEVICE is not set.
var DefaultConfig string

// New returns a Runtime configured by HOSTXFER_DEVICE if set, then DefaultConfig,
// then the first registered runtime with an empty configuration.
func New() (Runtime, error) {
	if config, found := os.LookupEnv(HOSTXFER_DEVICE); found {
		return NewWithConfig(config)
	}
	return NewWithConfig(DefaultConfig)
}

// NewWithConfig creates a runtime from a "<runtime_name>:<runtime_configuration>" string.
// If the name is omitted (no ":"), the first registered runtime is used and the whole
// string is its configuration.
func NewWithConfig(config string) (Runtime, error) {
	muRegistry.Lock()
	if len(registeredConstructors) == 0 {
		muRegistry.Unlock()
		return nil, errors.New(`no registered device runtimes -- maybe import the simulated one with import _ "github.com/gomlx/hostxfer/pkg/core/device/simdevice"?`)
	}
	name := firstRegistered
	runtimeConfig := config
	if idx := strings.Index(config, ":"); idx != -1 {
		name = config[:idx]
		runtimeConfig = config[idx+1:]
	}
	constructor, found := registeredConstructors[name]
	muRegistry.Unlock()
	if !found {
		return nil, errors.Errorf("can't find device runtime %q for configuration %q, registered runtimes: %v",
			name, config, Registered())
	}
	return constructor(runtimeConfig)
}
