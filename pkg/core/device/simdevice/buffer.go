// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simdevice

import (
	"unsafe"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/hostxfer/pkg/core/device"
	"github.com/pkg/errors"
)

// Buffer implements device.Buffer with Go memory.
//
// Its contents are only safe to access from the host (ToFlat, FillFlat) once the streams
// using it were synchronized.
type Buffer struct {
	dtype dtypes.DType
	count int
	data  []byte
}

// Compile-time check that Buffer implements device.Buffer.
var _ device.Buffer = (*Buffer)(nil)

func newBuffer(dtype dtypes.DType, count int) *Buffer {
	return &Buffer{
		dtype: dtype,
		count: count,
		data:  make([]byte, count*int(dtype.Memory())),
	}
}

// DType implements device.Buffer.
func (b *Buffer) DType() dtypes.DType { return b.dtype }

// Len implements device.Buffer.
func (b *Buffer) Len() int { return b.count }

// Location implements device.Buffer.
func (b *Buffer) Location() device.Location { return device.LocationDevice }

func checkBuffer(primitive string, buffer device.Buffer, offset, nbytes int) (*Buffer, error) {
	buf, ok := buffer.(*Buffer)
	if !ok || buf == nil {
		return nil, device.NewError(primitive, CodeInvalidValue, errors.Errorf("not a %s buffer: %T", RuntimeName, buffer))
	}
	if offset < 0 || nbytes < 0 || offset+nbytes > len(buf.data) {
		return nil, device.NewError(primitive, CodeInvalidValue,
			errors.Errorf("copy of %d bytes at offset %d out of bounds of buffer with %d bytes", nbytes, offset, len(buf.data)))
	}
	return buf, nil
}

// bytesOf returns the bytes backing flat.
func bytesOf[T dtypes.Supported](flat []T) []byte {
	if len(flat) == 0 {
		return nil
	}
	var t T
	return unsafe.Slice((*byte)(unsafe.Pointer(&flat[0])), len(flat)*int(unsafe.Sizeof(t)))
}

// FromFlat creates a device buffer holding a copy of flat.
func FromFlat[T dtypes.Supported](flat []T) *Buffer {
	buf := newBuffer(dtypes.FromGenericsType[T](), len(flat))
	copy(buf.data, bytesOf(flat))
	return buf
}

// ToFlat returns a copy of the contents of a simdevice buffer as a slice of T.
// It panics if buffer is not a simdevice buffer of dtype T.
func ToFlat[T dtypes.Supported](buffer device.Buffer) []T {
	buf := mustBuffer[T](buffer)
	flat := make([]T, buf.count)
	copy(bytesOf(flat), buf.data)
	return flat
}

// FillFlat overwrites the contents of a simdevice buffer with flat, which must have the buffer length.
func FillFlat[T dtypes.Supported](buffer device.Buffer, flat []T) {
	buf := mustBuffer[T](buffer)
	if len(flat) != buf.count {
		exceptions.Panicf("simdevice.FillFlat: buffer has %d elements, got %d", buf.count, len(flat))
	}
	copy(buf.data, bytesOf(flat))
}

func mustBuffer[T dtypes.Supported](buffer device.Buffer) *Buffer {
	buf, ok := buffer.(*Buffer)
	if !ok || buf == nil {
		exceptions.Panicf("not a %s buffer: %T", RuntimeName, buffer)
	}
	if want := dtypes.FromGenericsType[T](); buf.dtype != want {
		exceptions.Panicf("buffer has dtype %s, requested %s", buf.dtype, want)
	}
	return buf
}
