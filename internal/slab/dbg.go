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

import "fmt"

// Formatter is a fmt.Formatter implementation that defers evaluation of its
// arguments until something actually calls Format, so a disabled Trace hook
// costs nothing beyond a closure allocation that the compiler usually
// inlines away.
type Formatter func(fmt.State)

func (f Formatter) Format(s fmt.State, verb rune) {
	if verb != 'v' {
		fmt.Fprintf(s, "%%%c(slab.Formatter)", verb)
		return
	}
	f(s)
}

func (f Formatter) String() string { return fmt.Sprint(f) }

// Fprintf returns a Formatter that prints format against args when formatted
// with %v.
func Fprintf(format string, args ...any) Formatter {
	return Formatter(func(s fmt.State) { fmt.Fprintf(s, format, args...) })
}

// Tracer is the opt-in hook arenas call when they grow by a batch of pages
// and when they shrink; single allocations and drops are not traced.
// A nil Tracer does nothing; arenas never format the event unless a Tracer
// is actually set.
type Tracer func(Formatter)

// Trace calls t with the lazily-formatted event if t is non-nil.
func (t Tracer) Trace(format string, args ...any) {
	if t == nil {
		return
	}
	t(Fprintf(format, args...))
}
