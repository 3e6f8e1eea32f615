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

//go:build !slabdebug

package slab

// Confine is the zero-cost, non-debug stand-in for the goroutine-
// confinement assertion: it carries no state and checks nothing. See
// confine_debug.go for the -tags slabdebug build, which uses
// github.com/timandy/routine to check this dynamically.
type Confine struct{}

// NewConfine is a no-op outside of debug builds.
func NewConfine() Confine { return Confine{} }

// Check is a no-op outside of debug builds.
func (Confine) Check(string) {}
