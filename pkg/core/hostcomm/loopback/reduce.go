// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package loopback

import (
	"unsafe"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/gomlx/hostxfer/pkg/core/hostcomm"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// reduceFn reduces count elements of in into acc, both holding values of the dtype it was registered for.
type reduceFn func(op hostcomm.ReduceOp, acc, in []byte, count int)

type reducer struct {
	fn      reduceFn
	integer bool
}

var reducers = map[dtypes.DType]reducer{
	dtypes.Int8:     {reduceIntegerBytes[int8], true},
	dtypes.Int16:    {reduceIntegerBytes[int16], true},
	dtypes.Int32:    {reduceIntegerBytes[int32], true},
	dtypes.Int64:    {reduceIntegerBytes[int64], true},
	dtypes.Uint8:    {reduceIntegerBytes[uint8], true},
	dtypes.Uint16:   {reduceIntegerBytes[uint16], true},
	dtypes.Uint32:   {reduceIntegerBytes[uint32], true},
	dtypes.Uint64:   {reduceIntegerBytes[uint64], true},
	dtypes.Float32:  {reduceFloatBytes[float32], false},
	dtypes.Float64:  {reduceFloatBytes[float64], false},
	dtypes.Float16:  {reduceFloat16Bytes, false},
	dtypes.BFloat16: {reduceBFloat16Bytes, false},
}

// checkReduction returns an error if op can't be applied to dtype.
func checkReduction(op hostcomm.ReduceOp, dtype dtypes.DType) error {
	if op < hostcomm.ReduceOpSum || op > hostcomm.ReduceOpBitwiseXor {
		return errors.Errorf("invalid reduction %s", op)
	}
	r, found := reducers[dtype]
	if !found {
		return errors.Errorf("reductions not supported for dtype %s", dtype)
	}
	if op.IsBitwise() && !r.integer {
		return errors.Errorf("bitwise reduction %s requires an integer dtype, got %s", op, dtype)
	}
	return nil
}

// reduceInto reduces count elements of in into acc. The reduction must have been checked with checkReduction.
func reduceInto(op hostcomm.ReduceOp, dtype dtypes.DType, acc, in []byte, count int) {
	reducers[dtype].fn(op, acc, in, count)
}

func asFlat[T any](data []byte, count int) []T {
	if count == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), count)
}

func reduceIntegerBytes[T constraints.Integer](op hostcomm.ReduceOp, acc, in []byte, count int) {
	accFlat, inFlat := asFlat[T](acc, count), asFlat[T](in, count)
	switch op {
	case hostcomm.ReduceOpBitwiseOr:
		for i, v := range inFlat {
			accFlat[i] |= v
		}
	case hostcomm.ReduceOpBitwiseAnd:
		for i, v := range inFlat {
			accFlat[i] &= v
		}
	case hostcomm.ReduceOpBitwiseXor:
		for i, v := range inFlat {
			accFlat[i] ^= v
		}
	default:
		reduceOrdered(op, accFlat, inFlat)
	}
}

func reduceFloatBytes[T constraints.Float](op hostcomm.ReduceOp, acc, in []byte, count int) {
	reduceOrdered(op, asFlat[T](acc, count), asFlat[T](in, count))
}

func reduceOrdered[T constraints.Integer | constraints.Float](op hostcomm.ReduceOp, acc, in []T) {
	switch op {
	case hostcomm.ReduceOpSum:
		for i, v := range in {
			acc[i] += v
		}
	case hostcomm.ReduceOpProd:
		for i, v := range in {
			acc[i] *= v
		}
	case hostcomm.ReduceOpMin:
		for i, v := range in {
			acc[i] = min(acc[i], v)
		}
	case hostcomm.ReduceOpMax:
		for i, v := range in {
			acc[i] = max(acc[i], v)
		}
	}
}

// reduceConverted reduces half precision values in float32, rounding after each step.
func reduceConverted[T any](op hostcomm.ReduceOp, acc, in []T, toF32 func(T) float32, fromF32 func(float32) T) {
	pair := [2]float32{}
	for i, v := range in {
		pair[0], pair[1] = toF32(acc[i]), toF32(v)
		reduceOrdered(op, pair[:1], pair[1:])
		acc[i] = fromF32(pair[0])
	}
}

func reduceFloat16Bytes(op hostcomm.ReduceOp, acc, in []byte, count int) {
	reduceConverted(op, asFlat[float16.Float16](acc, count), asFlat[float16.Float16](in, count),
		float16.Float16.Float32, float16.Fromfloat32)
}

func reduceBFloat16Bytes(op hostcomm.ReduceOp, acc, in []byte, count int) {
	reduceConverted(op, asFlat[bfloat16.BFloat16](acc, count), asFlat[bfloat16.BFloat16](in, count),
		bfloat16.BFloat16.Float32, bfloat16.FromFloat32)
}
