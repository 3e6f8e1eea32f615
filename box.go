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

import "github.com/go-slab/arena/internal/slab"

// Box is a uniquely owned handle into a slab page. It is never cloned, so
// its backing block's reference count only ever takes the values 0 and 1;
// Box touches it purely as a double-free guard.
type Box[T any] struct {
	block *slab.Block[T]
}

func newBox[T any](b *slab.Block[T]) Box[T] {
	if !b.Counter.CompareAndSwap(0, 1) {
		panic("arena: block counter not zero at acquire")
	}
	return Box[T]{block: b}
}

// Get returns a pointer to the boxed value. The pointer is valid until
// Drop is called.
func (b Box[T]) Get() *T { return &b.block.Value }

// Valid reports whether the box refers to a block. It is false only for
// the zero value; Drop does not change it, since Box is a value type.
func (b Box[T]) Valid() bool { return b.block != nil }

// Into extracts the value, mirroring a move-out: the caller now owns a
// copy of T independent of the arena, and the underlying slot is released
// by calling Drop.
func (b Box[T]) Into() T {
	v := b.block.Value
	b.Drop()
	return v
}

// Drop releases the box's slot back to its page. Calling Drop more than
// once on copies of the same Box panics.
func (b Box[T]) Drop() {
	if b.block == nil {
		panic("arena: double drop of Box")
	}
	if !b.block.Counter.CompareAndSwap(1, 0) {
		panic("arena: double drop of Box")
	}
	b.block.Drop()
}
