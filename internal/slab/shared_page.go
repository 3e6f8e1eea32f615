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

// cacheLine is the assumed false-sharing boundary. The bitfield word is the
// single hottest piece of state in a shared page, touched by every acquire
// and every drop, so it is padded onto its own line.
const cacheLine = 64

// sharedBitfield is a cache-line padded atomic word.
type sharedBitfield struct {
	word atomic.Uint64
	_    [cacheLine - 8]byte
}

// SharedPending is the pending-free channel a SharedArena hands to every
// page it owns. It is a separate allocation from the arena itself so a page
// can still push onto it after the arena value is no longer reachable from
// the caller's variable: pages hold a direct, strong pointer to this struct,
// and it stays alive for as long as any page referencing it does.
type SharedPending[T any] struct {
	head atomic.Pointer[SharedPage[T]]
}

// NewSharedPending allocates a fresh, empty pending-free channel.
func NewSharedPending[T any]() *SharedPending[T] { return &SharedPending[T]{} }

// Swap atomically replaces the pending chain's head with nil and returns the
// chain that was there.
func (p *SharedPending[T]) Swap() *SharedPage[T] { return p.head.Swap(nil) }

// Load returns the current head without detaching it.
func (p *SharedPending[T]) Load() *SharedPage[T] { return p.head.Load() }

// push CAS-links page onto the head of the pending chain.
func (p *SharedPending[T]) push(page *SharedPage[T]) {
	for {
		head := p.head.Load()
		page.nextFree.Store(head)
		if p.head.CompareAndSwap(head, page) {
			return
		}
	}
}

// SharedPage is a page belonging to a lock-free SharedArena: every field
// that more than one goroutine can touch is a typed atomic.
type SharedPage[T any] struct {
	bitfield sharedBitfield
	Blocks   [BlockPerPage]Block[T]
	pending  *SharedPending[T]
	nextFree atomic.Pointer[SharedPage[T]]
	next     atomic.Pointer[SharedPage[T]]
	inFree   atomic.Bool
}

func newSharedPage[T any](pending *SharedPending[T], next *SharedPage[T]) *SharedPage[T] {
	p := &SharedPage[T]{pending: pending}
	p.bitfield.word.Store(allOnes)
	p.nextFree.Store(next)
	p.next.Store(next)
	p.inFree.Store(true)

	for i := range p.Blocks {
		p.Blocks[i].Ref = newBackRef[T](unsafe.Pointer(p), i, KindShared)
	}
	return p
}

// MakeSharedPageList allocates n freshly initialized pages linked via
// NextFree, and returns the first and last of the chain so the caller can
// splice them into its own lists.
func MakeSharedPageList[T any](n int, pending *SharedPending[T]) (first, last *SharedPage[T]) {
	last = newSharedPage(pending, nil)
	previous := last
	for range n - 1 {
		previous = newSharedPage(pending, previous)
	}
	return previous, last
}

// Next returns the page's full-list successor.
func (p *SharedPage[T]) Next() *SharedPage[T] { return p.next.Load() }

// SetNext sets the page's full-list successor. Only called under the
// writer token.
func (p *SharedPage[T]) SetNext(n *SharedPage[T]) { p.next.Store(n) }

// NextFree returns the page's free/pending-list successor.
func (p *SharedPage[T]) NextFree() *SharedPage[T] { return p.nextFree.Load() }

// SetNextFree sets the page's free/pending-list successor. Only called by
// whichever goroutine currently holds exclusive custody of the page (the
// writer-token holder rebuilding a list, or the arena splicing a freshly
// detached pending chain onto the free list).
func (p *SharedPage[T]) SetNextFree(n *SharedPage[T]) { p.nextFree.Store(n) }

// ResetInFree clears the page's free/pending-membership flag once an
// allocator has taken the exhausted page off the free list, so a later
// drop can push it onto pending again.
func (p *SharedPage[T]) ResetInFree() { p.inFree.Store(false) }

// Bitfield returns a snapshot of the page's bitfield, for stats and tests.
func (p *SharedPage[T]) Bitfield() uint64 { return p.bitfield.word.Load() }

// AcquireFreeBlock finds a free slot and marks it used, or reports that
// none was free at the moment of the successful transition.
func (p *SharedPage[T]) AcquireFreeBlock() (*Block[T], bool) {
	for {
		bf := p.bitfield.word.Load()
		i := bits.TrailingZeros64(bf)
		if i == BlockPerPage {
			return nil, false
		}

		mask := uint64(1) << i
		if !p.bitfield.word.CompareAndSwap(bf, bf&^mask) {
			// Another goroutine changed the word first; the bit we saw
			// might already be gone. Reload and retry.
			continue
		}
		return &p.Blocks[i], true
	}
}

// dropBlockShared releases a block back to its shared page: sets its bit,
// reinserts the page onto the pending list if needed, and lets the page
// become unreferenced once the bitfield reaches all-ones (every user slot
// free and the arena bit cleared).
func dropBlockShared[T any](page *SharedPage[T], block *Block[T]) {
	mask := uint64(1) << block.Index()
	newWord := page.bitfield.word.Add(mask)

	if newWord == ^arenaBit {
		// Every user bit is now free and the arena bit is already clear
		// (the arena let go of this page earlier). Nothing references the
		// page through any list anymore; it is garbage from here. It must
		// not be reinserted onto the pending list below.
		return
	}

	if !page.inFree.Load() {
		if page.inFree.CompareAndSwap(false, true) {
			page.pending.push(page)
		}
	}
}

// dropPageShared clears the arena bit for a page an arena is letting go of
// (arena Close / shrink), reporting whether the page is now fully free
// (informational only: in Go this does not itself reclaim memory, the
// caller is expected to also drop its own references to the page).
func dropPageShared[T any](page *SharedPage[T]) (fullyFree bool) {
	newWord := page.bitfield.word.Add(^(arenaBit - 1)) // fetch_sub(arenaBit) via twos complement
	return newWord == ^arenaBit
}

// CloseSharedPage clears the arena-alive bit on page, reporting whether the
// page was already fully free (no live blocks) at that moment.
func CloseSharedPage[T any](page *SharedPage[T]) bool { return dropPageShared(page) }
