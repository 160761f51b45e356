// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package mempool implements a pool of host staging memory, bucketed by location and size class.
//
// Allocating pinned host memory is expensive (it goes through the device runtime), while
// collectives allocate and release staging buffers at a high rate, so released buffers are kept
// in a free list and reused by later allocations of the same size class. The pool only shrinks on Clear.
package mempool

import (
	"fmt"
	"math/bits"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/hostxfer/pkg/core/device"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Allocator of host memory, implemented by device.Runtime.
type Allocator interface {
	AllocHost(loc device.Location, nbytes int) ([]byte, error)
	FreeHost(loc device.Location, mem []byte) error
}

const (
	// MinClassBytes is the smallest size class.
	MinClassBytes = 1 << 8

	// MaxClassBytes is the largest power-of-two size class: larger allocations are pooled by exact size.
	MaxClassBytes = 1 << 30
)

// ClassBytes returns the size class of an allocation of nbytes.
func ClassBytes(nbytes int) int {
	if nbytes <= MinClassBytes {
		return MinClassBytes
	}
	if nbytes > MaxClassBytes {
		return nbytes
	}
	return 1 << bits.Len(uint(nbytes-1))
}

// Key identifies a free list.
type Key struct {
	Location   device.Location
	ClassBytes int
}

// String implements fmt.Stringer.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Location, humanize.IBytes(uint64(k.ClassBytes)))
}

// Pool of host memory. It's safe for concurrent use.
type Pool struct {
	alloc Allocator

	mu        sync.Mutex
	free      map[Key][][]byte
	live      int
	heldBytes int64
}

// New creates an empty pool that allocates memory from alloc.
func New(alloc Allocator) *Pool {
	return &Pool{
		alloc: alloc,
		free:  make(map[Key][][]byte),
	}
}

// Buffer is a staging buffer of Len elements of DType, checked out from a Pool.
type Buffer struct {
	pool     *Pool
	key      Key
	mem      []byte
	dtype    dtypes.DType
	count    int
	released bool
}

// Location of the memory.
func (b *Buffer) Location() device.Location { return b.key.Location }

// DType of the elements.
func (b *Buffer) DType() dtypes.DType { return b.dtype }

// Len is the number of elements.
func (b *Buffer) Len() int { return b.count }

// Bytes returns the memory of the Len elements. It returns nil after the buffer is released.
func (b *Buffer) Bytes() []byte {
	if b.mem == nil {
		return nil
	}
	return b.mem[:b.count*int(b.dtype.Memory())]
}

// Slice returns the memory of count elements, starting at element offset.
func (b *Buffer) Slice(offset, count int) []byte {
	if offset < 0 || count < 0 || offset+count > b.count {
		exceptions.Panicf("mempool.Buffer.Slice(%d, %d) out of bounds for buffer of %d elements", offset, count, b.count)
	}
	elementSize := int(b.dtype.Memory())
	return b.Bytes()[offset*elementSize : (offset+count)*elementSize]
}

// Allocate returns a buffer of count elements of dtype at loc, reusing pooled memory of the
// same size class if available.
func (p *Pool) Allocate(loc device.Location, dtype dtypes.DType, count int) (*Buffer, error) {
	if count < 0 {
		return nil, errors.Errorf("mempool: invalid count %d", count)
	}
	if dtype.Memory() == 0 {
		return nil, errors.Errorf("mempool: can't allocate buffers of dtype %s", dtype)
	}
	key := Key{Location: loc, ClassBytes: ClassBytes(count * int(dtype.Memory()))}
	buf := &Buffer{pool: p, key: key, dtype: dtype, count: count}

	p.mu.Lock()
	if list := p.free[key]; len(list) > 0 {
		buf.mem = list[len(list)-1]
		list[len(list)-1] = nil
		p.free[key] = list[:len(list)-1]
		p.live++
		p.mu.Unlock()
		return buf, nil
	}
	p.mu.Unlock()

	mem, err := p.alloc.AllocHost(loc, key.ClassBytes)
	if err != nil {
		return nil, errors.WithMessagef(err, "mempool: failed to allocate %s", key)
	}
	buf.mem = mem
	p.mu.Lock()
	p.live++
	p.heldBytes += int64(key.ClassBytes)
	p.mu.Unlock()
	return buf, nil
}

// Release returns the memory of buf to the pool. buf must not be used afterward, and
// releasing it twice panics.
func (p *Pool) Release(buf *Buffer) {
	if buf.pool != p {
		exceptions.Panicf("mempool: releasing a buffer into a pool that didn't allocate it")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if buf.released {
		exceptions.Panicf("mempool: buffer %s released twice", buf.key)
	}
	buf.released = true
	p.free[buf.key] = append(p.free[buf.key], buf.mem)
	buf.mem = nil
	p.live--
}

// Prewarm allocates count buffers of the size class of nbytes at loc, and returns them to the pool.
func (p *Pool) Prewarm(loc device.Location, nbytes, count int) error {
	bufs := make([]*Buffer, 0, count)
	defer func() {
		for _, buf := range bufs {
			p.Release(buf)
		}
	}()
	for range count {
		buf, err := p.Allocate(loc, dtypes.Uint8, nbytes)
		if err != nil {
			return err
		}
		bufs = append(bufs, buf)
	}
	return nil
}

// Stats is a snapshot of the pool usage.
type Stats struct {
	// Free is the number of pooled buffers per free list.
	Free map[Key]int

	// Live is the number of buffers checked out.
	Live int

	// HeldBytes is the total memory allocated by the pool, free or checked out.
	HeldBytes int64
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	keys := make([]Key, 0, len(s.Free))
	for key := range s.Free {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Location != keys[j].Location {
			return keys[i].Location < keys[j].Location
		}
		return keys[i].ClassBytes < keys[j].ClassBytes
	})
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d live buffers, %s held", s.Live, humanize.IBytes(uint64(s.HeldBytes)))
	for _, key := range keys {
		fmt.Fprintf(&sb, "\n\t%s: %d free", key, s.Free[key])
	}
	return sb.String()
}

// Stats returns a snapshot of the pool usage.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{
		Free:      make(map[Key]int, len(p.free)),
		Live:      p.live,
		HeldBytes: p.heldBytes,
	}
	for key, list := range p.free {
		if len(list) > 0 {
			s.Free[key] = len(list)
		}
	}
	return s
}

// Clear frees every pooled buffer. Buffers checked out are not affected, and are kept by
// the pool when released later.
//
// It returns the first error reported by the allocator, after attempting to free everything.
func (p *Pool) Clear() error {
	p.mu.Lock()
	free := p.free
	p.free = make(map[Key][][]byte)
	var freedBytes int64
	for key, list := range free {
		freedBytes += int64(key.ClassBytes) * int64(len(list))
	}
	p.heldBytes -= freedBytes
	p.mu.Unlock()

	var firstErr error
	for key, list := range free {
		for _, mem := range list {
			if err := p.alloc.FreeHost(key.Location, mem); err != nil && firstErr == nil {
				firstErr = errors.WithMessagef(err, "mempool: failed to free %s", key)
			}
		}
	}
	klog.V(1).Infof("mempool: cleared %s of pooled host memory", humanize.IBytes(uint64(freedBytes)))
	return firstErr
}
