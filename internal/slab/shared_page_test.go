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

package slab_test

import (
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-slab/arena/internal/slab"
)

func TestSharedPage_AcquireUntilFull(t *testing.T) {
	t.Parallel()

	pending := slab.NewSharedPending[int]()
	first, _ := slab.MakeSharedPageList[int](1, pending)
	require.NotNil(t, first)

	assert.Equal(t, bits.TrailingZeros64(uint64(1)<<slab.BlockPerPage), slab.BlockPerPage) // sanity on the helper itself: arena bit alone reads as "none free"

	block, ok := first.AcquireFreeBlock()
	require.True(t, ok)
	assert.Equal(t, 0, block.Index())

	// Every subsequent acquire must see a distinct, still-free slot.
	seen := map[int]bool{0: true}
	for range slab.BlockPerPage - 1 {
		b, ok := first.AcquireFreeBlock()
		require.True(t, ok)
		assert.False(t, seen[b.Index()])
		seen[b.Index()] = true
	}

	_, ok = first.AcquireFreeBlock()
	assert.False(t, ok, "page should be fully acquired")
}

func TestSharedPage_ArenaBitNeverReportedFree(t *testing.T) {
	t.Parallel()

	pending := slab.NewSharedPending[int]()
	first, _ := slab.MakeSharedPageList[int](1, pending)

	for range slab.BlockPerPage {
		_, ok := first.AcquireFreeBlock()
		require.True(t, ok)
	}
	// Only the arena bit remains set; acquiring must report none free, not
	// the out-of-range arena bit index.
	_, ok := first.AcquireFreeBlock()
	assert.False(t, ok)
}

// TestSharedPage_CloseReportsFullyFreeWhenNoLiveBlocks covers boundary B2 at
// the page level: closing a page with no outstanding blocks must report it
// fully free so the caller knows it can drop its own reference immediately.
func TestSharedPage_CloseReportsFullyFreeWhenNoLiveBlocks(t *testing.T) {
	t.Parallel()

	pending := slab.NewSharedPending[int]()
	first, _ := slab.MakeSharedPageList[int](1, pending)

	assert.True(t, slab.CloseSharedPage(first))
}

// TestSharedPage_DropAfterCloseBecomesFullyFree covers the other half of B2:
// a page with one outstanding block is not fully free at Close time, and
// only becomes so once that last block is dropped.
func TestSharedPage_DropAfterCloseBecomesFullyFree(t *testing.T) {
	t.Parallel()

	pending := slab.NewSharedPending[int]()
	first, _ := slab.MakeSharedPageList[int](1, pending)

	block, ok := first.AcquireFreeBlock()
	require.True(t, ok)

	assert.False(t, slab.CloseSharedPage(first), "page still has a live block when the arena closes")

	block.Drop()

	fullyFree := uint64(1)<<slab.BlockPerPage - 1 // every user bit set, arena bit clear
	assert.Equal(t, fullyFree, first.Bitfield(), "page should be fully free once its last live block drops after Close")
}

func TestMakeSharedPageList_ChainLength(t *testing.T) {
	t.Parallel()

	pending := slab.NewSharedPending[int]()
	first, last := slab.MakeSharedPageList[int](5, pending)

	count := 0
	for p := first; p != nil; p = p.NextFree() {
		count++
		if count > 10 {
			t.Fatal("chain too long or cyclic")
		}
	}
	assert.Equal(t, 5, count)
	assert.Nil(t, last.NextFree())
}
