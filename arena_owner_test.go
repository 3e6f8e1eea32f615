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

package arena_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	arena "github.com/go-slab/arena"
)

func TestArena_AllocStatsShrink(t *testing.T) {
	t.Parallel()

	a := arena.NewArenaWithCapacity[int](1000)
	used, free := a.Stats()
	assert.Equal(t, 0, used)
	assert.Equal(t, 16*63, free)

	b := a.Alloc(1)
	used, free = a.Stats()
	assert.Equal(t, 1, used)
	assert.Equal(t, 16*63-1, free)

	b.Drop()
	assert.True(t, a.ShrinkToFit())
	used, free = a.Stats()
	assert.Equal(t, 0, used)
	assert.Equal(t, 0, free)
}

// TestArena_HandlesMigrateAcrossGoroutines exercises the single-owner
// arena's defining property: allocation stays on the owning goroutine, but
// the Box handles it hands out may be dropped from any goroutine, and the
// owner's next Stats() sees those drops.
func TestArena_HandlesMigrateAcrossGoroutines(t *testing.T) {
	a := arena.NewArena[int]()

	const n = 200
	boxes := make([]arena.Box[int], n)
	for i := range boxes {
		boxes[i] = a.Alloc(i)
	}

	var g errgroup.Group
	for i := range boxes {
		g.Go(func() error {
			boxes[i].Drop()
			return nil
		})
	}
	assert.NoError(t, g.Wait())

	// Drops from other goroutines land in each page's atomic returned
	// word, which Stats reads alongside the owner's own bitfield.
	var used, free int
	for range 100 {
		used, free = a.Stats()
		if used == 0 {
			break
		}
	}
	assert.Equal(t, 0, used)
	assert.True(t, free > 0)
}

func TestArena_RcClone(t *testing.T) {
	t.Parallel()

	a := arena.NewArena[int]()
	r := a.AllocRc(9)
	r2 := r.Clone()
	assert.Equal(t, 9, *r2.Get())
	r.Drop()
	r2.Drop()

	used, _ := a.Stats()
	assert.Equal(t, 0, used)
}

func TestArena_ShrinkIdempotent(t *testing.T) {
	t.Parallel()

	a := arena.NewArenaWithCapacity[int](100)
	assert.True(t, a.ShrinkToFit())
	assert.False(t, a.ShrinkToFit())
}

func TestArena_CrossGoroutineDropsMany(t *testing.T) {
	t.Parallel()

	a := arena.NewArenaWithCapacity[int](1)
	var mu sync.Mutex
	var pending []arena.Box[int]

	for i := 0; i < 300; i++ {
		b := a.Alloc(i)
		mu.Lock()
		pending = append(pending, b)
		mu.Unlock()
	}

	var g errgroup.Group
	mu.Lock()
	toDrop := pending
	mu.Unlock()
	for _, b := range toDrop {
		g.Go(func() error {
			b.Drop()
			return nil
		})
	}
	assert.NoError(t, g.Wait())

	var used int
	for range 100 {
		used, _ = a.Stats()
		if used == 0 {
			break
		}
	}
	assert.Equal(t, 0, used)
}

// TestArena_CloseThenDropLastHandle is boundary B2: closing an arena with a
// live handle outstanding must not deallocate the page out from under that
// handle, and dropping the handle afterward must complete without
// panicking, leaving the arena's own bookkeeping clean.
func TestArena_CloseThenDropLastHandle(t *testing.T) {
	t.Parallel()

	a := arena.NewArenaWithCapacity[int](1)
	b := a.Alloc(42)
	used, _ := a.Stats()
	require.Equal(t, 1, used)

	a.Close()

	assert.NotPanics(t, func() { b.Drop() }, "dropping the last handle after Close must deallocate cleanly, not crash")

	used, free := a.Stats()
	assert.Equal(t, 0, used)
	assert.Equal(t, 0, free)

	b2 := a.Alloc(7)
	used, free = a.Stats()
	assert.Equal(t, 1, used)
	assert.Equal(t, 62, free)
	b2.Drop()
}
