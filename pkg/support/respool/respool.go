// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package respool implements a thread-safe pool of expensive handles (device events,
// synchronization words, ...), that grows on demand and only shrinks on Clear or Close.
//
// Checkouts happen when an operation is issued and releases once per completed operation,
// so a single mutex is enough.
package respool

import (
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Allocator creates and destroys the handles held by a Pool.
type Allocator[T any] interface {
	Allocate() (T, error)
	Deallocate(T) error
}

// FuncAllocator adapts a pair of functions to an Allocator.
type FuncAllocator[T any] struct {
	AllocateFn   func() (T, error)
	DeallocateFn func(T) error
}

// Allocate implements Allocator.
func (f FuncAllocator[T]) Allocate() (T, error) { return f.AllocateFn() }

// Deallocate implements Allocator. A nil DeallocateFn is a no-op.
func (f FuncAllocator[T]) Deallocate(v T) error {
	if f.DeallocateFn == nil {
		return nil
	}
	return f.DeallocateFn(v)
}

// Pool is a locked free list of handles of type T.
type Pool[T any] struct {
	alloc Allocator[T]

	mu        sync.Mutex
	free      []T
	allocated int
	closed    bool
}

// New creates an empty Pool that uses alloc to create and destroy handles.
func New[T any](alloc Allocator[T]) *Pool[T] {
	return &Pool[T]{alloc: alloc}
}

// Preallocate eagerly creates n handles and puts them in the free list.
func (p *Pool[T]) Preallocate(n int) error {
	fresh := make([]T, 0, n)
	for range n {
		v, err := p.alloc.Allocate()
		if err != nil {
			// Don't leak what was already created.
			for _, created := range fresh {
				_ = p.alloc.Deallocate(created)
			}
			return errors.WithMessagef(err, "respool: failed to preallocate %d entries", n)
		}
		fresh = append(fresh, v)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, fresh...)
	p.allocated += n
	return nil
}

// Checkout pops a free handle, or creates a new one if the free list is empty.
func (p *Pool[T]) Checkout() (T, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		var zero T
		return zero, errors.New("respool: checkout from a closed pool")
	}
	if n := len(p.free); n > 0 {
		v := p.free[n-1]
		var zero T
		p.free[n-1] = zero
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return v, nil
	}
	p.mu.Unlock()

	// Allocate outside the lock: handle creation may be slow.
	v, err := p.alloc.Allocate()
	if err != nil {
		var zero T
		return zero, err
	}
	p.mu.Lock()
	p.allocated++
	p.mu.Unlock()
	return v, nil
}

// Release returns v to the free list. v must have come from Checkout, and must not be used
// after this call. If the pool was closed, v is destroyed instead.
func (p *Pool[T]) Release(v T) {
	p.mu.Lock()
	if !p.closed {
		p.free = append(p.free, v)
		p.mu.Unlock()
		return
	}
	p.allocated--
	p.mu.Unlock()
	if err := p.alloc.Deallocate(v); err != nil {
		klog.Errorf("respool: failed to deallocate entry released after Close: %+v", err)
	}
}

// Len returns the number of handles currently in the free list.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Allocated returns the total number of handles created by the pool and not yet destroyed,
// whether free or checked out.
func (p *Pool[T]) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocated
}

// Clear destroys every handle in the free list. Checked-out handles are not affected.
//
// It returns the first error reported by the allocator, after attempting to destroy all entries.
func (p *Pool[T]) Clear() error {
	return p.clear(false)
}

// Close destroys every handle in the free list, like Clear, and the handles checked out as they
// are released. Checkout fails afterward.
func (p *Pool[T]) Close() error {
	return p.clear(true)
}

func (p *Pool[T]) clear(closing bool) error {
	p.mu.Lock()
	if closing {
		p.closed = true
	}
	free := p.free
	p.free = nil
	p.allocated -= len(free)
	p.mu.Unlock()

	var firstErr error
	for _, v := range free {
		if err := p.alloc.Deallocate(v); err != nil && firstErr == nil {
			firstErr = errors.WithMessage(err, "respool: failed to deallocate entry")
		}
	}
	return firstErr
}
