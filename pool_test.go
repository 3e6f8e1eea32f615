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
	"testing"

	"github.com/stretchr/testify/assert"

	arena "github.com/go-slab/arena"
)

func TestPool_AllocStatsShrink(t *testing.T) {
	t.Parallel()

	p := arena.NewPoolWithCapacity[int](1000)
	used, free := p.Stats()
	assert.Equal(t, 0, used)
	assert.Equal(t, 16*63, free)

	b := p.Alloc(1)
	used, free = p.Stats()
	assert.Equal(t, 1, used)
	assert.Equal(t, 16*63-1, free)

	b.Drop()
	assert.True(t, p.ShrinkToFit())
	used, free = p.Stats()
	assert.Equal(t, 0, used)
	assert.Equal(t, 0, free)
}

func TestPool_FillTriggersGrowth(t *testing.T) {
	t.Parallel()

	p := arena.NewPoolWithCapacity[int](1)
	boxes := make([]arena.Box[int], 63)
	for i := range boxes {
		boxes[i] = p.Alloc(i)
	}
	used, free := p.Stats()
	assert.Equal(t, 63, used)
	assert.Equal(t, 0, free)

	extra := p.Alloc(63)
	used, free = p.Stats()
	assert.Equal(t, 64, used)
	assert.Equal(t, 2*63-64, free)

	extra.Drop()
	for _, b := range boxes {
		b.Drop()
	}
}

func TestPool_RcClone(t *testing.T) {
	t.Parallel()

	p := arena.NewPool[string]()
	r := p.AllocRc("hi")
	r2 := r.Clone()
	assert.Equal(t, "hi", *r2.Get())
	r.Drop()

	used, _ := p.Stats()
	assert.Equal(t, 1, used)

	r2.Drop()
	used, _ = p.Stats()
	assert.Equal(t, 0, used)
}

func TestPool_ShrinkIdempotent(t *testing.T) {
	t.Parallel()

	p := arena.NewPoolWithCapacity[int](100)
	assert.True(t, p.ShrinkToFit())
	assert.False(t, p.ShrinkToFit())
}

func TestPool_CrossGoroutineDropUncheckedInReleaseBuild(t *testing.T) {
	t.Parallel()

	// Without -tags slabdebug, Confine.Check is a no-op: cross-goroutine
	// drops on a Pool are a documented misuse, not something the release
	// build detects. This test only pins down that release-mode behavior
	// so the confinement cost stays opt-in.
	p := arena.NewPool[int]()
	b := p.Alloc(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Drop()
	}()
	<-done

	used, _ := p.Stats()
	assert.Equal(t, 0, used)
}

// TestPool_CloseThenDropLastHandle is boundary B2: closing a pool with a
// live handle outstanding must not deallocate the page out from under that
// handle, and dropping the handle afterward must complete without
// panicking, leaving the pool's own bookkeeping clean.
func TestPool_CloseThenDropLastHandle(t *testing.T) {
	t.Parallel()

	p := arena.NewPoolWithCapacity[int](1)
	b := p.Alloc(42)
	used, _ := p.Stats()
	assert.Equal(t, 1, used)

	p.Close()

	assert.NotPanics(t, func() { b.Drop() }, "dropping the last handle after Close must deallocate cleanly, not crash")

	used, free := p.Stats()
	assert.Equal(t, 0, used)
	assert.Equal(t, 0, free)

	b2 := p.Alloc(7)
	used, free = p.Stats()
	assert.Equal(t, 1, used)
	assert.Equal(t, 62, free)
	b2.Drop()
}
