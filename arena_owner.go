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

// Arena is a slab allocator whose allocation-side operations (Alloc,
// AllocWith, AllocRc, AllocRcWith, ShrinkToFit) are only ever called from
// one goroutine, the one that constructed it. Box handles it produces may
// be freely moved to and dropped from any other goroutine (Rc handles stay
// on the owning goroutine, see AllocRc): the drop path uses an atomic
// auxiliary bitfield for exactly that reason, merged into the owner-only
// bitfield only when the owner observes its own view exhausted.
//
// Built with -tags slabdebug, violating the single-owner discipline panics
// instead of racing silently.
type Arena[T any] struct {
	confine slab.Confine

	freeList  *slab.OwnerPage[T]
	fullList  *slab.OwnerPage[T]
	pending   *slab.OwnerPending[T]
	pageCount int
	tracer    slab.Tracer
}

// NewArena constructs an Arena with one page, room for BlockPerPage
// values, confined to the calling goroutine.
func NewArena[T any]() *Arena[T] {
	return NewArenaWithCapacity[T](slab.BlockPerPage)
}

// NewArenaWithCapacity constructs an Arena pre-populated with enough pages
// to hold at least capacity values without a further page allocation.
func NewArenaWithCapacity[T any](capacity int) *Arena[T] {
	a := &Arena[T]{confine: slab.NewConfine(), pending: slab.NewOwnerPending[T]()}
	if capacity > 0 {
		a.grow(pagesFor(capacity))
	}
	return a
}

// SetTracer installs a diagnostics hook called on page-allocation and
// shrink transitions. Passing nil disables tracing.
func (a *Arena[T]) SetTracer(t slab.Tracer) { a.tracer = t }

// drainPending folds the pending chain (pages other goroutines' drops
// pushed back) onto the free list. Only the owner calls this. Pending
// pages arrive with inFree already true (set by the dropper); splicing
// them onto freeList preserves that.
func (a *Arena[T]) drainPending() bool {
	pending := a.pending.Swap()
	if pending == nil {
		return false
	}
	tail := pending
	for tail.NextFree() != nil {
		tail = tail.NextFree()
	}
	tail.SetNextFreeTail(a.freeList)
	a.freeList = pending
	return true
}

func (a *Arena[T]) findPlace() *slab.Block[T] {
	for {
		if a.freeList == nil {
			if !a.drainPending() {
				return nil
			}
			continue
		}

		head := a.freeList
		if block, ok := head.AcquireFreeBlock(); ok {
			return block
		}
		a.freeList = head.NextFree()
	}
}

func (a *Arena[T]) grow(n int) {
	if n < 1 {
		n = 1
	}
	first, last := slab.MakeOwnerPageList[T](n, a.pending)
	last.SetNextFreeTail(a.freeList)
	a.freeList = first
	last.SetNext(a.fullList)
	a.fullList = first
	a.pageCount += n
	a.tracer.Trace("arena: grew by %d pages", n)
}

func (a *Arena[T]) nextBatchSize() int {
	n := a.pageCount
	if n < 1 {
		n = 1
	}
	return min(n, 900_000)
}

func (a *Arena[T]) acquireBlock() *slab.Block[T] {
	a.confine.Check("Arena.Alloc")
	if block := a.findPlace(); block != nil {
		return block
	}
	a.grow(a.nextBatchSize())
	block := a.findPlace()
	if block == nil {
		panic("arena: findPlace returned nothing immediately after grow")
	}
	return block
}

// Alloc places value into a freshly acquired slot and returns a uniquely
// owning handle to it. Must be called from the goroutine that constructed
// the Arena.
func (a *Arena[T]) Alloc(value T) Box[T] {
	block := a.acquireBlock()
	block.Value = value
	return newBox(block)
}

// AllocWith behaves like Alloc but constructs the value in place from fn.
func (a *Arena[T]) AllocWith(fn func() T) Box[T] {
	block := a.acquireBlock()
	block.Value = fn()
	return newBox(block)
}

// AllocRc places value into a freshly acquired slot and returns a
// non-atomically reference-counted handle confined to the owning
// goroutine (clones and drops of the returned Rc must also stay on that
// goroutine; only a Box from this arena may migrate).
func (a *Arena[T]) AllocRc(value T) Rc[T] {
	block := a.acquireBlock()
	block.Value = value
	return newRc(block)
}

// AllocRcWith behaves like AllocRc but constructs the value in place
// from fn.
func (a *Arena[T]) AllocRcWith(fn func() T) Rc[T] {
	block := a.acquireBlock()
	block.Value = fn()
	return newRc(block)
}

// Stats reports the number of blocks currently allocated and the number
// still free across the pages on the arena's full list (pages released by
// ShrinkToFit or Close are not counted).
func (a *Arena[T]) Stats() (used, free int) {
	a.confine.Check("Arena.Stats")
	for p := a.fullList; p != nil; p = p.Next() {
		bf := p.Bitfield() &^ (uint64(1) << slab.BlockPerPage)
		freeInPage := popcount(bf)
		free += freeInPage
		used += slab.BlockPerPage - freeInPage
	}
	return used, free
}

// ShrinkToFit releases any page that is entirely free back to the Go
// garbage collector. It reports whether it released at least one page.
func (a *Arena[T]) ShrinkToFit() bool {
	a.confine.Check("Arena.ShrinkToFit")
	a.drainPending()

	if a.freeList == nil {
		return false
	}

	var keepHead, keepTail *slab.OwnerPage[T]
	drop := make(map[*slab.OwnerPage[T]]bool)

	for p := a.freeList; p != nil; {
		next := p.NextFree()
		if p.Bitfield() == ^uint64(0) {
			drop[p] = true
		} else if keepHead == nil {
			keepHead = p
			keepTail = p
		} else {
			keepTail.SetNextFreeTail(p)
			keepTail = p
		}
		p = next
	}
	if keepTail != nil {
		keepTail.SetNextFreeTail(nil)
	}
	a.freeList = keepHead

	if len(drop) == 0 {
		return false
	}

	var newFull, tail *slab.OwnerPage[T]
	for p := a.fullList; p != nil; p = p.Next() {
		if drop[p] {
			continue
		}
		if newFull == nil {
			newFull = p
			tail = p
		} else {
			tail.SetNext(p)
			tail = p
		}
	}
	a.fullList = newFull
	a.pageCount -= len(drop)
	a.tracer.Trace("arena: shrink released %d pages", len(drop))
	return true
}

// Close clears the arena-alive bit on every page the arena still
// references. Pages with no outstanding handles become unreachable
// immediately; pages with live handles survive until their last handle
// drops.
func (a *Arena[T]) Close() {
	a.confine.Check("Arena.Close")
	for p := a.fullList; p != nil; p = p.Next() {
		slab.CloseOwnerPage(p)
	}
	a.fullList = nil
	a.freeList = nil
}
