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
	"runtime"
	"sync/atomic"
)

// WriterToken is a single-slot mutual-exclusion flag guarding the rare,
// batched operations (page-batch allocation, shrink) that every arena
// variant otherwise avoids taking any lock for. Contenders never block on
// an OS primitive; they yield the goroutine and retry.
type WriterToken struct {
	held atomic.Bool
}

// TryAcquire attempts to take the token without blocking. It reports
// whether it succeeded.
func (w *WriterToken) TryAcquire() bool {
	return !w.held.Load() && !w.held.Swap(true)
}

// Acquire blocks (via busy-yield, never an OS wait) until the token is held.
func (w *WriterToken) Acquire() {
	for !w.held.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

// Release gives up the token.
func (w *WriterToken) Release() {
	w.held.Store(false)
}
