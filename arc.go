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

// Arc is a shared handle produced only by SharedArena. Its reference count
// is maintained with atomic add/sub, since clones and drops may race across
// goroutines.
type Arc[T any] struct {
	block *slab.Block[T]
}

func newArc[T any](b *slab.Block[T]) Arc[T] {
	if !b.Counter.CompareAndSwap(0, 1) {
		panic("arena: block counter not zero at acquire")
	}
	return Arc[T]{block: b}
}

// Get returns a pointer to the shared value.
func (a Arc[T]) Get() *T { return &a.block.Value }

// Valid reports whether a refers to a block. It is false only for the zero
// value; Drop does not change it.
func (a Arc[T]) Valid() bool { return a.block != nil }

// Clone increments the reference count and returns a new handle to the
// same block.
func (a Arc[T]) Clone() Arc[T] {
	n := a.block.Counter.Add(1)
	if n <= 1 {
		panic("arena: Clone of an already-dropped Arc")
	}
	if n == math.MaxInt64 {
		panic("arena: Arc reference count overflow")
	}
	return Arc[T]{block: a.block}
}

// Drop decrements the reference count, releasing the block back to its
// page when it reaches zero.
func (a Arc[T]) Drop() {
	if a.block == nil {
		panic("arena: double drop of Arc")
	}
	if n := a.block.Counter.Add(-1); n == 0 {
		a.block.Drop()
	} else if n < 0 {
		panic("arena: double drop of Arc")
	}
}
