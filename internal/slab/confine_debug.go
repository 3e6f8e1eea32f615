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

package slab

import (
	"fmt"

	"github.com/timandy/routine"
)

// Confine is a debug-only assertion that every call to a single-owner
// operation happens on the same goroutine that created the Confine value.
// Arena[T] embeds one and checks it on every allocation-side entry point;
// Pool[T] embeds one and checks it on every entry point, including handle
// drops, since Pool's confinement is stricter than Arena's.
//
// Go has no static equivalent of Rust's !Send; this is the dynamic
// substitute, built the same way the teacher package checks which
// goroutine logged a debug line (internal/debug.Log uses routine.Goid()
// to tag its output; here the id gates an assertion instead).
type Confine struct {
	owner int64
}

// NewConfine captures the calling goroutine as the sole permitted caller.
func NewConfine() Confine { return Confine{owner: routine.Goid()} }

// Check panics if called from a goroutine other than the one that created
// c. what names the operation being checked, for the panic message.
func (c Confine) Check(what string) {
	if got := routine.Goid(); got != c.owner {
		panic(fmt.Sprintf("slab: %s called from goroutine %d, confined to goroutine %d", what, got, c.owner))
	}
}
