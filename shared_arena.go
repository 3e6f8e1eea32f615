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
	"sync/atomic"

	"github.com/go-slab/arena/internal/slab"
)

// SharedArena is a slab allocator safe to allocate from and free into from
// any number of goroutines at once. Allocation is lock-free: goroutines
// only ever contend on a handful of atomic words, never an OS mutex.
type SharedArena[T any] struct {
	freeList  atomic.Pointer[slab.SharedPage[T]]
	fullList  atomic.Pointer[slab.SharedPage[T]]
	pending   *slab.SharedPending[T]
	writer    slab.WriterToken
	pageCount atomic.Int64
	tracer    slab.Tracer
}

// NewSharedArena constructs a SharedArena with one page, room for
// BlockPerPage values.
func NewSharedArena[T any]() *SharedArena[T] {
	return NewSharedArenaWithCapacity[T](slab.BlockPerPage)
}

// NewSharedArenaWithCapacity constructs a SharedArena pre-populated with
// enough pages to hold at least capacity values without a further page
// allocation.
func NewSharedArenaWithCapacity[T any](capacity int) *SharedArena[T] {
	a := &SharedArena[T]{pending: slab.NewSharedPending[T]()}
	if capacity > 0 {
		a.growBy(pagesFor(capacity))
	}
	return a
}

// SetTracer installs a diagnostics hook called on page-allocation and
// shrink transitions. Passing nil disables tracing.
func (a *SharedArena[T]) SetTracer(t slab.Tracer) { a.tracer = t }

func pagesFor(capacity int) int {
	n := (capacity + slab.BlockPerPage - 1) / slab.BlockPerPage
	if n < 1 {
		n = 1
	}
	return n
}

// findPlace walks the free list looking for a page with an open slot,
// discarding exhausted pages it passes and refilling the free list from
// the pending list if it runs out. It returns nil if no page currently
// has room, leaving batch allocation to the caller.
func (a *SharedArena[T]) findPlace() *slab.Block[T] {
	for {
		head := a.freeList.Load()
		if head == nil {
			pending := a.pending.Swap()
			if pending == nil {
				return nil
			}
			// The chain is ours alone now; splice all of it onto the free
			// list, keeping each page's inFree flag set.
			tail := pending
			for tail.NextFree() != nil {
				tail = tail.NextFree()
			}
			for {
				oldFree := a.freeList.Load()
				tail.SetNextFree(oldFree)
				if a.freeList.CompareAndSwap(oldFree, pending) {
					break
				}
			}
			continue
		}

		if block, ok := head.AcquireFreeBlock(); ok {
			return block
		}

		// head is exhausted; drop it from the free list and retry. Once it
		// is off the list, a later drop may push it onto pending again.
		if a.freeList.CompareAndSwap(head, head.NextFree()) {
			head.ResetInFree()
		}
	}
}

// growBy allocates n additional pages under the writer token and splices
// them onto both the free list and the full list.
func (a *SharedArena[T]) growBy(n int) {
	a.writer.Acquire()
	defer a.writer.Release()
	a.growLocked(n)
}

// growLocked is growBy's body, run by a caller that already holds the
// writer token.
func (a *SharedArena[T]) growLocked(n int) {
	if n < 1 {
		n = 1
	}
	first, last := slab.MakeSharedPageList[T](n, a.pending)

	for {
		oldFree := a.freeList.Load()
		last.SetNextFree(oldFree)
		if a.freeList.CompareAndSwap(oldFree, first) {
			break
		}
	}
	for {
		oldFull := a.fullList.Load()
		last.SetNext(oldFull)
		if a.fullList.CompareAndSwap(oldFull, first) {
			break
		}
	}
	a.pageCount.Add(int64(n))
	a.tracer.Trace("arena: grew by %d pages", n)
}

// nextBatchSize doubles the page count on each growth, capped to avoid an
// unbounded heap spike from a pathological allocation pattern.
func (a *SharedArena[T]) nextBatchSize() int {
	n := int(a.pageCount.Load())
	if n < 1 {
		n = 1
	}
	return min(n, 900_000)
}

func (a *SharedArena[T]) acquireBlock() *slab.Block[T] {
	for {
		if block := a.findPlace(); block != nil {
			return block
		}
		a.writer.Acquire()
		// Another goroutine may have already grown the arena while we
		// were waiting for the token; check once more before adding
		// more pages ourselves.
		block, ok := a.tryFindPlaceLocked()
		if ok {
			a.writer.Release()
			return block
		}
		a.growLocked(a.nextBatchSize())
		a.writer.Release()
	}
}

// tryFindPlaceLocked is findPlace run while already holding the writer
// token, used to avoid growing the arena twice in a race.
func (a *SharedArena[T]) tryFindPlaceLocked() (*slab.Block[T], bool) {
	block := a.findPlace()
	return block, block != nil
}

// Alloc places value into a freshly acquired slot and returns a uniquely
// owning handle to it.
func (a *SharedArena[T]) Alloc(value T) Box[T] {
	block := a.acquireBlock()
	block.Value = value
	return newBox(block)
}

// AllocWith behaves like Alloc but constructs the value in place from fn,
// avoiding a copy for large T.
func (a *SharedArena[T]) AllocWith(fn func() T) Box[T] {
	block := a.acquireBlock()
	block.Value = fn()
	return newBox(block)
}

// AllocArc places value into a freshly acquired slot and returns an
// atomically reference-counted handle to it.
func (a *SharedArena[T]) AllocArc(value T) Arc[T] {
	block := a.acquireBlock()
	block.Value = value
	return newArc(block)
}

// AllocArcWith behaves like AllocArc but constructs the value in place
// from fn.
func (a *SharedArena[T]) AllocArcWith(fn func() T) Arc[T] {
	block := a.acquireBlock()
	block.Value = fn()
	return newArc(block)
}

// Stats reports the number of blocks currently allocated and the number
// still free across the pages on the arena's full list (pages released by
// ShrinkToFit or Close are not counted). It walks the
// full list under the writer token, so it is not cheap; callers should not
// treat it as a hot-path operation.
func (a *SharedArena[T]) Stats() (used, free int) {
	a.writer.Acquire()
	defer a.writer.Release()

	for p := a.fullList.Load(); p != nil; p = p.Next() {
		bf := p.Bitfield() &^ (uint64(1) << slab.BlockPerPage)
		freeInPage := popcount(bf)
		free += freeInPage
		used += slab.BlockPerPage - freeInPage
	}
	return used, free
}

func popcount(x uint64) int {
	n := 0
	for x != 0 {
		x &= x - 1
		n++
	}
	return n
}

// ShrinkToFit releases any page that is entirely free back to the Go
// garbage collector. It reports whether it released at least one page.
//
// Pages are found by detaching the free list, partitioning it into pages
// that are completely unused versus pages that still have live blocks,
// removing the unused pages from the full list, and re-splicing the
// remainder back onto the free list. A page removed this way becomes
// unreachable from the arena; Go reclaims it the next time the collector
// runs, there is no explicit deallocation step.
func (a *SharedArena[T]) ShrinkToFit() bool {
	a.writer.Acquire()
	defer a.writer.Release()

	detached := a.freeList.Swap(nil)
	if detached == nil {
		return false
	}

	var keepHead, keepTail *slab.SharedPage[T]
	drop := make(map[*slab.SharedPage[T]]bool)
	shrunk := false

	for p := detached; p != nil; {
		next := p.NextFree()
		if p.Bitfield() == ^uint64(0) {
			drop[p] = true
			shrunk = true
		} else {
			p.SetNextFree(nil)
			if keepHead == nil {
				keepHead = p
				keepTail = p
			} else {
				keepTail.SetNextFree(p)
				keepTail = p
			}
		}
		p = next
	}

	// Re-check every candidate: an allocator that loaded a page before the
	// free list was detached may have taken a slot in it since.
	for p := range drop {
		if p.Bitfield() != ^uint64(0) {
			delete(drop, p)
			p.SetNextFree(nil)
			if keepHead == nil {
				keepHead = p
			} else {
				keepTail.SetNextFree(p)
			}
			keepTail = p
		}
	}
	shrunk = len(drop) > 0

	if len(drop) > 0 {
		var newFull, tail *slab.SharedPage[T]
		for p := a.fullList.Load(); p != nil; p = p.Next() {
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
		if tail != nil {
			tail.SetNext(nil)
		}
		a.fullList.Store(newFull)
		a.pageCount.Add(-int64(len(drop)))
	}

	if keepHead != nil {
		for {
			oldFree := a.freeList.Load()
			keepTail.SetNextFree(oldFree)
			if a.freeList.CompareAndSwap(oldFree, keepHead) {
				break
			}
		}
	}

	a.tracer.Trace("arena: shrink released %d pages", len(drop))
	return shrunk
}

// Close clears the arena-alive bit on every page the arena still holds a
// reference to. Pages with no outstanding handles become unreachable
// immediately; pages with live handles stay alive until their last handle
// is dropped, at which point the drop path sees the bit already cleared
// and the page becomes unreachable then instead. Close does not itself
// free anything: Go's garbage collector reclaims pages once nothing
// references them, the way it reclaims any other value.
func (a *SharedArena[T]) Close() {
	a.writer.Acquire()
	defer a.writer.Release()

	for p := a.fullList.Load(); p != nil; p = p.Next() {
		slab.CloseSharedPage(p)
	}
	a.fullList.Store(nil)
	a.freeList.Store(nil)
}
