// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

//go:build !linux

package osprio

func setCurrentThread(int) error {
	return ErrUnsupported
}
