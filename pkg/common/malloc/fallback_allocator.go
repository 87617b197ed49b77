// Copyright 2024 Kestrel Engine Authors
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

package malloc

import "unsafe"

// FallbackAllocator composes two allocators: requests go to the primary
// first and fall through to the secondary when the primary is exhausted or
// rejects the alignment. Dealloc routes by ownership, so a fast bounded
// primary (pool, arena) can be backed by a slower unbounded secondary.
type FallbackAllocator struct {
	primary   Allocator
	secondary Allocator
	id        AllocID
}

func NewFallbackAllocator(primary, secondary Allocator) *FallbackAllocator {
	return &FallbackAllocator{
		primary:   primary,
		secondary: secondary,
	}
}

var _ Allocator = new(FallbackAllocator)

func (f *FallbackAllocator) Alloc(layout Layout) unsafe.Pointer {
	if ptr := f.primary.Alloc(layout); ptr != nil {
		return ptr
	}
	return f.secondary.Alloc(layout)
}

func (f *FallbackAllocator) Dealloc(ptr unsafe.Pointer, layout Layout) {
	if f.primary.Owns(ptr, layout) {
		f.primary.Dealloc(ptr, layout)
		return
	}
	f.secondary.Dealloc(ptr, layout)
}

func (f *FallbackAllocator) Owns(ptr unsafe.Pointer, layout Layout) bool {
	return f.primary.Owns(ptr, layout) || f.secondary.Owns(ptr, layout)
}

func (f *FallbackAllocator) SetAllocID(id AllocID) { f.id = id }
func (f *FallbackAllocator) AllocID() AllocID { return f.id }

// SupportsFree is conservative: allocations are only stamped freeable when
// both halves can free, since the header is written before it is known
// which half will serve a given request.
func (f *FallbackAllocator) SupportsFree() bool {
	return f.primary.SupportsFree() && f.secondary.SupportsFree()
}
