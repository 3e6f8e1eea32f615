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

//go:build slabdebug

package arena_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	arena "github.com/go-slab/arena"
)

// Run with `go test -tags slabdebug ./...` to exercise these.

func TestArena_ConfinementCatchesWrongGoroutine(t *testing.T) {
	t.Parallel()

	a := arena.NewArena[int]()
	done := make(chan struct{})
	var panicked bool
	go func() {
		defer close(done)
		defer func() {
			if recover() != nil {
				panicked = true
			}
		}()
		a.Alloc(1)
	}()
	<-done
	assert.True(t, panicked, "Arena.Alloc from a non-owning goroutine should panic under slabdebug")
}

func TestPool_ConfinementCatchesWrongGoroutineDrop(t *testing.T) {
	t.Parallel()

	p := arena.NewPool[int]()
	b := p.Alloc(1)

	done := make(chan struct{})
	var panicked bool
	go func() {
		defer close(done)
		defer func() {
			if recover() != nil {
				panicked = true
			}
		}()
		b.Drop()
	}()
	<-done
	assert.True(t, panicked, "Pool handle Drop from a non-owning goroutine should panic under slabdebug")
}
