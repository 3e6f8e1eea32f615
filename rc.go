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
	"math"

	"github.com/go-slab/arena/internal/slab"
)

// Rc is a shared handle produced by Arena and Pool. Unlike Arc, its
// reference count is only ever touched by the single goroutine the
// producing arena confines it to (the owner, for Arena; the sole user, for
// Pool), so Clone and Drop use plain load/store instead of an atomic
// add/sub: there is no concurrent writer to race against.
type Rc[T any] struct {
	block *slab.Block[T]
}

func newRc[T any](b *slab.Block[T]) Rc[T] {
	if !b.Counter.CompareAndSwap(0, 1) {
		panic("arena: block counter not zero at acquire")
	}
	return Rc[T]{block: b}
}

// Get returns a pointer to the shared value.
func (r Rc[T]) Get() *T { return &r.block.Value }

// Valid reports whether r refers to a block. It is false only for the zero
// value; Drop does not change it.
func (r Rc[T]) Valid() bool { return r.block != nil }

// Clone increments the reference count and returns a new handle to the
// same block. Calling Clone from a goroutine other than the one the
// producing arena confines this Rc to is a misuse; Clone performs no
// goroutine check, in any build.
func (r Rc[T]) Clone() Rc[T] {
	n := r.block.Counter.Load() + 1
	if n == math.MaxInt64 {
		panic("arena: Rc reference count overflow")
	}
	r.block.Counter.Store(n)
	return Rc[T]{block: r.block}
}

// Drop decrements the reference count, releasing the block back to its
// page when it reaches zero.
func (r Rc[T]) Drop() {
	if r.block == nil {
		panic("arena: double drop of Rc")
	}
	n := r.block.Counter.Load() - 1
	r.block.Counter.Store(n)
	switch {
	case n == 0:
		r.block.Drop()
	case n < 0:
		panic("arena: double drop of Rc")
	}
}
