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

// Package arena implements slab allocators for fixed-size values: pages of
// up to 63 slots handed out through a lock-free bitfield, with three
// concurrency flavors trading off synchronization cost against who is
// allowed to touch a handle.
//
//   - SharedArena allocates and frees from any number of goroutines at once.
//   - Arena allocates from a single owning goroutine; produced handles may
//     be dropped from any goroutine.
//   - Pool confines both allocation and every handle it produces to a
//     single goroutine, trading the cheapest possible path for that
//     restriction.
//
// Handles come in three shapes. Box is uniquely owned and cannot be cloned.
// Arc is atomically reference-counted and safe to share across goroutines;
// only SharedArena produces it. Rc is reference-counted without atomics and
// is produced by Arena and Pool, where the single-owner or single-goroutine
// discipline already rules out concurrent mutation of the count.
package arena
