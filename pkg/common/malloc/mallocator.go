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

	"golang.org/x/sys/unix"
)

// Mallocator passes every request straight to the operating system as an
// anonymous private mapping. It is the root of the subsystem: untracked
// allocations and the backing buffers of every other allocator come from
// here, which keeps all raw pointers outside the garbage collected heap.
type Mallocator struct {
	id AllocID
}

func NewMallocator() *Mallocator {
	return &Mallocator{id: AllocIDMalloc}
}

var _ Allocator = new(Mallocator)

func (m *Mallocator) Alloc(layout Layout) unsafe.Pointer {
	if layout.Size() == 0 {
		return nil
	}
	// mmap hands back page-aligned memory, anything stricter is
	// unsupported.
	if layout.Align() > uintptr(unix.Getpagesize()) {
		return nil
	}
	b, err := unix.Mmap(
		-1, 0,
		int(layout.Size()),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON,
	)
	if err != nil {
		return nil
	}
	return unsafe.Pointer(unsafe.SliceData(b))
}

func (m *Mallocator) Dealloc(ptr unsafe.Pointer, layout Layout) {
	if err := unix.Munmap(unsafe.Slice((*byte)(ptr), layout.Size())); err != nil {
		panic(fmt.Sprintf("malloc: munmap failed: %v", err))
	}
}

// Owns always reports true: the OS allocator is the fallback owner of any
// pointer the registry cannot attribute elsewhere.
func (m *Mallocator) Owns(ptr unsafe.Pointer, _ Layout) bool {
	return ptr != nil
}

func (m *Mallocator) SetAllocID(id AllocID) { m.id = id }
func (m *Mallocator) AllocID() AllocID { return m.id }
func (m *Mallocator) SupportsFree() bool { return true }
