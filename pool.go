// Copyright 2020-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package arena

import (
	"github.com/go-slab/arena/internal/slab"
)

// Pool is a slab allocator confined to a single goroutine end to end: the
// pool itself, every Box/Rc it produces, and every drop of those handles
// must happen on the goroutine that constructed the Pool. In exchange for
// that restriction, nothing in its fast path touches an atomic: no
// bitfield CAS, no pending-list push, no writer token.
//
// Built with -tags slabdebug, any call (including a handle drop) from a
// different goroutine panics.
type Pool[T any] struct {
	confine slab.Confine

	freeList  *slab.LocalPage[T]
	fullList  *slab.LocalPage[T]
	pageCount int
	tracer    slab.Tracer
}

// NewPool constructs a Pool with one page, room for BlockPerPage values,
// confined to the calling goroutine.
func NewPool[T any]() *Pool[T] {
	return NewPoolWithCapacity[T](slab.BlockPerPage)
}

// NewPoolWithCapacity constructs a Pool pre-populated with enough pages to
// hold at least capacity values without a further page allocation.
func NewPoolWithCapacity[T any](capacity int) *Pool[T] {
	p := &Pool[T]{confine: slab.NewConfine()}
	if capacity > 0 {
		p.grow(pagesFor(capacity))
	}
	return p
}

// SetTracer installs a diagnostics hook called on page-allocation and
// shrink transitions. Passing nil disables tracing.
func (p *Pool[T]) SetTracer(t slab.Tracer) { p.tracer = t }

func (p *Pool[T]) findPlace() *slab.Block[T] {
	for p.freeList != nil {
		head := p.freeList
		if block, ok := head.AcquireFreeBlock(); ok {
			return block
		}
		p.freeList = head.NextFree()
	}
	return nil
}

func (p *Pool[T]) grow(n int) {
	if n < 1 {
		n = 1
	}
	first, last := slab.MakeLocalPageList[T](n, &p.confine)
	last.SetNextFree(p.freeList)
	p.freeList = first
	last.SetNext(p.fullList)
	p.fullList = first
	p.pageCount += n
	p.tracer.Trace("pool: grew by %d pages", n)
}

func (p *Pool[T]) nextBatchSize() int {
	n := p.pageCount
	if n < 1 {
		n = 1
	}
	return min(n, 900_000)
}

func (p *Pool[T]) acquireBlock() *slab.Block[T] {
	p.confine.Check("Pool.Alloc")
	if block := p.findPlace(); block != nil {
		return block
	}
	p.grow(p.nextBatchSize())
	block := p.findPlace()
	if block == nil {
		panic("arena: findPlace returned nothing immediately after grow")
	}
	return block
}

// Alloc places value into a freshly acquired slot and returns a uniquely
// owning handle to it.
func (p *Pool[T]) Alloc(value T) Box[T] {
	block := p.acquireBlock()
	block.Value = value
	return newBox(block)
}

// AllocWith behaves like Alloc but constructs the value in place from fn.
func (p *Pool[T]) AllocWith(fn func() T) Box[T] {
	block := p.acquireBlock()
	block.Value = fn()
	return newBox(block)
}

// AllocRc places value into a freshly acquired slot and returns a
// non-atomically reference-counted handle.
func (p *Pool[T]) AllocRc(value T) Rc[T] {
	block := p.acquireBlock()
	block.Value = value
	return newRc(block)
}

// AllocRcWith behaves like AllocRc but constructs the value in place
// from fn.
func (p *Pool[T]) AllocRcWith(fn func() T) Rc[T] {
	block := p.acquireBlock()
	block.Value = fn()
	return newRc(block)
}

// Stats reports the number of blocks currently allocated and the number
// still free across the pages on the pool's full list (pages released by
// ShrinkToFit or Close are not counted).
func (p *Pool[T]) Stats() (used, free int) {
	p.confine.Check("Pool.Stats")
	for pg := p.fullList; pg != nil; pg = pg.Next() {
		bf := pg.Bitfield() &^ (uint64(1) << slab.BlockPerPage)
		freeInPage := popcount(bf)
		free += freeInPage
		used += slab.BlockPerPage - freeInPage
	}
	return used, free
}

// ShrinkToFit releases any page that is entirely free back to the Go
// garbage collector. It reports whether it released at least one page.
func (p *Pool[T]) ShrinkToFit() bool {
	p.confine.Check("Pool.ShrinkToFit")

	if p.freeList == nil {
		return false
	}

	var keepHead, keepTail *slab.LocalPage[T]
	drop := make(map[*slab.LocalPage[T]]bool)

	for pg := p.freeList; pg != nil; {
		next := pg.NextFree()
		if pg.Bitfield() == ^uint64(0) {
			drop[pg] = true
		} else if keepHead == nil {
			keepHead = pg
			keepTail = pg
		} else {
			keepTail.SetNextFree(pg)
			keepTail = pg
		}
		pg = next
	}
	if keepTail != nil {
		keepTail.SetNextFree(nil)
	}
	p.freeList = keepHead

	if len(drop) == 0 {
		return false
	}

	var newFull, tail *slab.LocalPage[T]
	for pg := p.fullList; pg != nil; pg = pg.Next() {
		if drop[pg] {
			continue
		}
		if newFull == nil {
			newFull = pg
			tail = pg
		} else {
			tail.SetNext(pg)
			tail = pg
		}
	}
	p.fullList = newFull
	p.pageCount -= len(drop)
	p.tracer.Trace("pool: shrink released %d pages", len(drop))
	return true
}

// Close clears the arena-alive bit on every page the pool still
// references. Pages with no outstanding handles become unreachable
// immediately; pages with live handles survive until their last handle
// drops, which (since a Pool's handles never leave its goroutine) can only
// happen on the same goroutine that calls Close.
func (p *Pool[T]) Close() {
	p.confine.Check("Pool.Close")
	for pg := p.fullList; pg != nil; pg = pg.Next() {
		slab.CloseLocalPage(pg)
	}
	p.fullList = nil
	p.freeList = nil
}
