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

// LinearAllocator is a bump arena without per-allocation reclamation:
// Dealloc is a no-op and SupportsFree reports false, so the manager stamps
// its allocations non-freeable and Reset is the only way to get memory
// back. Each request is front-aligned to its own layout.
//
// Not safe for concurrent use. Confine it to one owning goroutine or lock
// externally.
type LinearAllocator struct {
	buffer    unsafe.Pointer
	bufLayout Layout
	head      unsafe.Pointer
	end       unsafe.Pointer
	id        AllocID
}

func NewLinearAllocator(buffer unsafe.Pointer, bufLayout Layout) *LinearAllocator {
	return &LinearAllocator{
		buffer:    buffer,
		bufLayout: bufLayout,
		head:      buffer,
		end:       unsafe.Add(buffer, bufLayout.Size()),
	}
}

var _ Allocator = new(LinearAllocator)

// Reset invalidates all outstanding allocations at once.
func (l *LinearAllocator) Reset() {
	l.head = l.buffer
}

func (l *LinearAllocator) Alloc(layout Layout) unsafe.Pointer {
	padding := alignOffset(uintptr(l.head), layout.Align())
	aligned := unsafe.Add(l.head, padding)
	newHead := unsafe.Add(aligned, layout.Size())
	if uintptr(newHead) > uintptr(l.end) {
		return nil
	}
	l.head = newHead
	return aligned
}

func (l *LinearAllocator) Dealloc(ptr unsafe.Pointer, layout Layout) {
	if !l.Owns(ptr, layout) {
		panic("malloc: cannot deallocate an allocation not owned by this allocator")
	}
	// reclamation only happens in Reset
}

func (l *LinearAllocator) Owns(ptr unsafe.Pointer, _ Layout) bool {
	return uintptr(ptr) >= uintptr(l.buffer) && uintptr(ptr) <= uintptr(l.end)
}

func (l *LinearAllocator) SetAllocID(id AllocID) { l.id = id }
func (l *LinearAllocator) AllocID() AllocID { return l.id }
func (l *LinearAllocator) SupportsFree() bool { return false }
