// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package osprio

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetCurrentThread(t *testing.T) {
	require.Error(t, SetCurrentThread(-21))
	require.Error(t, SetCurrentThread(20))

	// Lowering the priority (raising nice) never needs privileges. The goroutine exits
	// while locked, so its thread is discarded instead of returning to the scheduler.
	errCh := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		errCh <- SetCurrentThread(19)
	}()
	err := <-errCh
	if runtime.GOOS == "linux" {
		require.NoError(t, err)
	} else {
		require.ErrorIs(t, err, ErrUnsupported)
	}
}
