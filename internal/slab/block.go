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

import "sync/atomic"

// Block is storage for one value of T plus the bookkeeping every handle
// kind needs: a reference count and a read-only pointer back to the owning
// page. Block is laid out with Value first so that a pointer to the block
// and a pointer to its value would coincide under a C-style cast; Go doesn't
// let callers exploit that directly, but it keeps the type's shape close to
// the one this engine was ported from.
type Block[T any] struct {
	Value   T
	Counter atomic.Int64
	Ref     backRef[T]
}

// Index returns this block's slot index within its page.
func (b *Block[T]) Index() int { return b.Ref.Index() }

// Drop releases the value and returns the block's slot to its page,
// dispatching to the bitfield discipline appropriate for the page kind
// that owns it.
func (b *Block[T]) Drop() {
	var zero T
	b.Value = zero // release the value before the slot can be reacquired

	switch b.Ref.Kind() {
	case KindShared:
		dropBlockShared(b.Ref.SharedPage(), b)
	case KindOwner:
		dropBlockOwner(b.Ref.OwnerPage(), b)
	case KindLocal:
		dropBlockLocal(b.Ref.LocalPage(), b)
	default:
		panic("slab: block has invalid page kind")
	}
}
