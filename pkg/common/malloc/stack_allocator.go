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

import (
	"fmt"
	"unsafe"
)

// StackAllocator is a bump arena with strict LIFO deallocation: freeing
// anything but the most recent allocation panics. Alloc and Dealloc are
// O(1) and fragmentation-free; the ordering cost is pushed to the caller.
//
// Not safe for concurrent use. Confine it to one owning goroutine or lock
// externally.
type StackAllocator struct {
	maxAlign  uintptr
	buffer    unsafe.Pointer
	bufLayout Layout
	head      unsafe.Pointer
	end       unsafe.Pointer
	id        AllocID
}

// NewStackAllocator creates a stack allocator over buffer. Every request is
// padded out to maxAlign, which must be a power of two, and buffer must be
// aligned to it.
func NewStackAllocator(buffer unsafe.Pointer, bufLayout Layout, maxAlign uintptr) *StackAllocator {
	if maxAlign == 0 || maxAlign&(maxAlign-1) != 0 {
		panic(fmt.Sprintf("malloc: max align %d is not a power of two", maxAlign))
	}
	if uintptr(buffer)%maxAlign != 0 {
		panic("malloc: stack allocator buffer is not aligned to max align")
	}
	return &StackAllocator{
		maxAlign:  maxAlign,
		buffer:    buffer,
		bufLayout: bufLayout,
		head:      buffer,
		end:       unsafe.Add(buffer, bufLayout.Size()),
	}
}

var _ Allocator = new(StackAllocator)

// Reset invalidates all outstanding allocations at once.
func (s *StackAllocator) Reset() {
	s.head = s.buffer
}

func (s *StackAllocator) Alloc(layout Layout) unsafe.Pointer {
	if layout.Align() > s.maxAlign {
		return nil
	}
	ptr := s.head
	padded := layout.Size() + layout.PaddingNeededFor(s.maxAlign)
	newHead := unsafe.Add(ptr, padded)
	if uintptr(newHead) > uintptr(s.end) {
		return nil
	}
	s.head = newHead
	return ptr
}

func (s *StackAllocator) Dealloc(ptr unsafe.Pointer, layout Layout) {
	if !s.Owns(ptr, layout) {
		panic("malloc: cannot deallocate an allocation not owned by this allocator")
	}
	padded := layout.Size() + layout.PaddingNeededFor(s.maxAlign)
	if unsafe.Add(ptr, padded) != s.head {
		panic("malloc: invalid deallocation order")
	}
	s.head = ptr
}

func (s *StackAllocator) Owns(ptr unsafe.Pointer, _ Layout) bool {
	return uintptr(ptr) >= uintptr(s.buffer) && uintptr(ptr) <= uintptr(s.end)
}

func (s *StackAllocator) SetAllocID(id AllocID) { s.id = id }
func (s *StackAllocator) AllocID() AllocID { return s.id }
func (s *StackAllocator) SupportsFree() bool { return true }
