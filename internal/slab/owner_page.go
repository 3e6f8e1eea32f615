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

package slab

import (
	"math/bits"
	"sync/atomic"
	"unsafe"
)

// OwnerPending mirrors SharedPending but for the owner-confined arena: a
// handle dropped from a goroutine other than the owner cannot touch the
// owner's plain bitfield directly, so it links the page onto this chain
// instead and the owner folds it in the next time it allocates.
type OwnerPending[T any] struct {
	head atomic.Pointer[OwnerPage[T]]
}

// NewOwnerPending allocates a fresh, empty pending-free channel.
func NewOwnerPending[T any]() *OwnerPending[T] { return &OwnerPending[T]{} }

func (p *OwnerPending[T]) Swap() *OwnerPage[T] { return p.head.Swap(nil) }
func (p *OwnerPending[T]) Load() *OwnerPage[T] { return p.head.Load() }

func (p *OwnerPending[T]) push(page *OwnerPage[T]) {
	for {
		head := p.head.Load()
		page.nextFree.Store(head)
		if p.head.CompareAndSwap(head, page) {
			return
		}
	}
}

// OwnerPage is a page belonging to an Arena: the owning goroutine is the
// only one ever allowed to read or write bitfield, so that field is a plain
// uint64. returned accumulates bits released by handle drops (a Box may
// be dropped on any goroutine) and is only ever merged into bitfield by
// the owner; no drop path writes bitfield directly.
type OwnerPage[T any] struct {
	bitfield uint64
	returned atomic.Uint64
	Blocks   [BlockPerPage]Block[T]
	pending  *OwnerPending[T]
	nextFree atomic.Pointer[OwnerPage[T]]
	next     *OwnerPage[T]
	inFree   atomic.Bool
}

func newOwnerPage[T any](pending *OwnerPending[T], next *OwnerPage[T]) *OwnerPage[T] {
	p := &OwnerPage[T]{pending: pending, bitfield: allOnes, next: next}
	p.nextFree.Store(next)
	p.inFree.Store(true)
	for i := range p.Blocks {
		p.Blocks[i].Ref = newBackRef[T](unsafe.Pointer(p), i, KindOwner)
	}
	return p
}

// MakeOwnerPageList allocates n freshly initialized pages linked via both
// next and NextFree, for the caller (always the owning goroutine) to splice into its lists.
func MakeOwnerPageList[T any](n int, pending *OwnerPending[T]) (first, last *OwnerPage[T]) {
	last = newOwnerPage(pending, nil)
	previous := last
	for range n - 1 {
		previous = newOwnerPage(pending, previous)
	}
	return previous, last
}

// Next returns the page's full-list successor. Only the owner reads or
// writes this.
func (p *OwnerPage[T]) Next() *OwnerPage[T] { return p.next }

// SetNext sets the page's full-list successor. Only called by the owner.
func (p *OwnerPage[T]) SetNext(n *OwnerPage[T]) { p.next = n }

// NextFree returns the page's pending-list successor.
func (p *OwnerPage[T]) NextFree() *OwnerPage[T] { return p.nextFree.Load() }

// SetNextFreeTail sets the page's free/pending-list successor. Only the
// owner calls this, to splice chains it exclusively holds (the pending
// chain it just drained, the free/keep chains ShrinkToFit rebuilds); it is
// distinct from the dropper's CAS-based push onto the pending chain.
func (p *OwnerPage[T]) SetNextFreeTail(n *OwnerPage[T]) { p.nextFree.Store(n) }

// mergeReturned folds blocks released by non-owner goroutines into the
// owner-only bitfield. Only the owner calls this.
func (p *OwnerPage[T]) mergeReturned() {
	if r := p.returned.Swap(0); r != 0 {
		p.bitfield |= r
	}
}

// Bitfield returns a snapshot combining the owner's view with anything not
// yet merged, for stats and tests.
func (p *OwnerPage[T]) Bitfield() uint64 { return p.bitfield | p.returned.Load() }

// AcquireFreeBlock finds a free slot and marks it used. Only the owning
// goroutine calls this. Returned bits are merged in only once the owner's
// own bitfield has no free slot left.
func (p *OwnerPage[T]) AcquireFreeBlock() (*Block[T], bool) {
	i := bits.TrailingZeros64(p.bitfield)
	if i == BlockPerPage {
		p.mergeReturned()
		i = bits.TrailingZeros64(p.bitfield)
		if i == BlockPerPage {
			return nil, false
		}
	}
	p.bitfield &^= uint64(1) << i
	return &p.Blocks[i], true
}

// dropBlockOwner releases a block back to its owner page by accumulating
// its bit into the atomic returned word for the owner to merge later. A
// Box/Rc carries no record of which goroutine dropped it, so this path
// never touches the plain bitfield: it is correct from any goroutine,
// including the owner's. The bit is set before the page is pushed onto
// the pending chain.
func dropBlockOwner[T any](page *OwnerPage[T], block *Block[T]) {
	mask := uint64(1) << block.Index()
	page.returned.Add(mask)

	if !page.inFree.Load() && page.inFree.CompareAndSwap(false, true) {
		page.pending.push(page)
	}
}

// dropPageOwner clears the arena bit for a page the arena is letting go
// of, reporting whether it is now fully free.
func dropPageOwner[T any](page *OwnerPage[T]) (fullyFree bool) {
	page.mergeReturned()
	page.bitfield &^= arenaBit
	return page.bitfield == ^arenaBit
}

// CloseOwnerPage clears the arena-alive bit on page, reporting whether the
// page was already fully free (no live blocks) at that moment.
func CloseOwnerPage[T any](page *OwnerPage[T]) bool { return dropPageOwner(page) }
