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

// Kind identifies which of the three page flavors a back-reference points
// into, so a block's drop path can dispatch to the right bitfield discipline
// without a type switch on the page pointer itself.
type Kind uint8

const (
	KindShared Kind = iota // lock-free, shared across goroutines
	KindOwner               // single allocating owner, handles may migrate
	KindLocal               // confined to one goroutine end to end
)

func (k Kind) String() string {
	switch k {
	case KindShared:
		return "shared"
	case KindOwner:
		return "owner"
	case KindLocal:
		return "local"
	default:
		return "invalid"
	}
}
