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
	"sync"
	"unsafe"
)

// freeBlock lives inside the free space it describes. The free list is kept
// in address order so neighbouring blocks can be coalesced on free.
type freeBlock struct {
	next *freeBlock
	size uintptr
}

const freeBlockSize = unsafe.Sizeof(freeBlock{})

// Every allocation carries a 4-byte front record directly before the
// returned pointer: the front padding at ptr-2 and the absorbed tail
// fragment at ptr-4. Dealloc reads both to recover the exact block that was
// taken off the free list.
const frontRecordSize = uintptr(4)

// FreelistAllocator is a general heap over a single buffer: a first-fit
// scan over an address-ordered list of free blocks serves allocations, and
// frees coalesce with their neighbours. It is mutex-guarded and therefore
// shareable, though its main role is backing the per-goroutine scratch
// pad.
type FreelistAllocator struct {
	mu        sync.Mutex
	buffer    unsafe.Pointer
	bufLayout Layout
	head      *freeBlock
	id        AllocID
}

// NewFreelistAllocator creates a freelist heap over buffer. The buffer must
// be at least one freeBlock large.
func NewFreelistAllocator(buffer unsafe.Pointer, bufLayout Layout) *FreelistAllocator {
	if bufLayout.Size() < freeBlockSize {
		panic("malloc: freelist buffer is too small")
	}
	head := (*freeBlock)(buffer)
	head.next = nil
	head.size = bufLayout.Size()
	return &FreelistAllocator{
		buffer:    buffer,
		bufLayout: bufLayout,
		head:      head,
	}
}

var _ Allocator = new(FreelistAllocator)

func (f *FreelistAllocator) Alloc(layout Layout) unsafe.Pointer {
	f.mu.Lock()
	defer f.mu.Unlock()

	var prev *freeBlock
	for cur := f.head; cur != nil; cur = cur.next {
		base := uintptr(unsafe.Pointer(cur))
		padding := frontRecordSize + alignOffset(base+frontRecordSize, layout.Align())
		paddedSize := padding + layout.Size()
		// the block must be able to hold a freeBlock again once freed
		if paddedSize < freeBlockSize {
			paddedSize = freeBlockSize
		}
		if paddedSize > cur.size {
			prev = cur
			continue
		}

		next := cur.next
		remaining := cur.size - paddedSize
		if remaining >= freeBlockSize {
			split := (*freeBlock)(unsafe.Pointer(base + paddedSize))
			split.next = next
			split.size = remaining
			next = split
		} else {
			// tail fragment too small to track, absorb it
			paddedSize = cur.size
		}
		if prev == nil {
			f.head = next
		} else {
			prev.next = next
		}

		ptr := unsafe.Pointer(base + padding)
		extra := paddedSize - padding - layout.Size()
		*(*uint16)(unsafe.Add(ptr, -2)) = uint16(padding)
		*(*uint16)(unsafe.Add(ptr, -4)) = uint16(extra)
		return ptr
	}
	return nil
}

func (f *FreelistAllocator) Dealloc(ptr unsafe.Pointer, layout Layout) {
	if !f.Owns(ptr, layout) {
		panic("malloc: cannot deallocate an allocation not owned by this allocator")
	}
	padding := uintptr(*(*uint16)(unsafe.Add(ptr, -2)))
	extra := uintptr(*(*uint16)(unsafe.Add(ptr, -4)))
	orig := uintptr(ptr) - padding
	size := padding + layout.Size() + extra

	f.mu.Lock()
	defer f.mu.Unlock()

	var prev *freeBlock
	next := f.head
	for next != nil && uintptr(unsafe.Pointer(next)) < orig {
		prev = next
		next = next.next
	}

	cur := (*freeBlock)(unsafe.Pointer(orig))
	cur.next = next
	cur.size = size

	if next != nil && orig+size == uintptr(unsafe.Pointer(next)) {
		cur.size += next.size
		cur.next = next.next
	}
	if prev != nil && uintptr(unsafe.Pointer(prev))+prev.size == orig {
		prev.size += cur.size
		prev.next = cur.next
	} else if prev == nil {
		f.head = cur
	} else {
		prev.next = cur
	}
}

func (f *FreelistAllocator) Owns(ptr unsafe.Pointer, _ Layout) bool {
	return uintptr(ptr) >= uintptr(f.buffer) &&
		uintptr(ptr) < uintptr(f.buffer)+f.bufLayout.Size()
}

func (f *FreelistAllocator) SetAllocID(id AllocID) { f.id = id }
func (f *FreelistAllocator) AllocID() AllocID { return f.id }
func (f *FreelistAllocator) SupportsFree() bool { return true }
