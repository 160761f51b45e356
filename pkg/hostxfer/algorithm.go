// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hostxfer

import (
	"github.com/pkg/errors"
)

// AllreduceAlgorithm selects how Allreduce is implemented. Names are parsed with
// AllreduceAlgorithmString.
type AllreduceAlgorithm int

//go:generate go tool enumer -type=AllreduceAlgorithm -trimprefix=Allreduce -transform=kebab -output=gen_allreducealgorithm_enumer.go algorithm.go

const (
	// AllreduceAutomatic lets the backend choose.
	AllreduceAutomatic AllreduceAlgorithm = iota

	// AllreduceHostTransfer stages the data through host memory.
	AllreduceHostTransfer
)

func (a AllreduceAlgorithm) validate() error {
	if !a.IsAAllreduceAlgorithm() {
		return errors.Errorf("invalid allreduce algorithm %s, valid values are %q", a, AllreduceAlgorithmStrings())
	}
	return nil
}

// CollectiveAlgorithm selects how collectives other than Allreduce are implemented.
// There is only one implementation, so the only value is CollectiveAutomatic.
type CollectiveAlgorithm int

//go:generate go tool enumer -type=CollectiveAlgorithm -trimprefix=Collective -transform=kebab -output=gen_collectivealgorithm_enumer.go algorithm.go

const (
	// CollectiveAutomatic lets the backend choose.
	CollectiveAutomatic CollectiveAlgorithm = iota
)

func (a CollectiveAlgorithm) validate() error {
	if !a.IsACollectiveAlgorithm() {
		return errors.Errorf("invalid collective algorithm %s", a)
	}
	return nil
}
