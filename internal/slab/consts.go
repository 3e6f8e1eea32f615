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

// Package slab is the shared slab-allocation engine backing the three
// arena flavors in the parent package: pages, blocks, bitfields, and the
// free/full/pending list discipline that makes allocation O(1) amortized.
package slab

import "math/bits"

const (
	// BlockPerPage is the number of user-addressable slots in a page. One
	// machine word holds the bitfield; the top bit is reserved for the
	// arena-alive flag, so a 64-bit word yields 63 usable slots.
	BlockPerPage = bits.UintSize - 1

	// arenaBit is the reserved top bit of a page's bitfield. It is inverted:
	// 1 means the arena still references the page, 0 means it has let go.
	// Keeping it inverted means TrailingZeros64 never reports it as free.
	arenaBit = uint64(1) << BlockPerPage

	// allOnes is the bitfield value a freshly constructed page starts with:
	// every user slot free, arena bit set.
	allOnes = ^uint64(0)

	// maxBatchPages caps how many pages a single allocation burst creates,
	// bounding the heap spike from a pathological doubling sequence.
	maxBatchPages = 900_000
)
