// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

//go:build linux

package osprio

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func setCurrentThread(nice int) error {
	tid := unix.Gettid()
	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, nice); err != nil {
		return errors.Wrapf(err, "setpriority(tid=%d, nice=%d)", tid, nice)
	}
	return nil
}
