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

// Alloc allocates layout bytes through the installed manager, using the
// goroutine's active allocator unless an override id is given.
func Alloc(init AllocInitState, layout Layout, override ...AllocID) unsafe.Pointer {
	return GetMemoryManager().AllocRaw(init, layout, override...)
}

// Dealloc releases an allocation made by Alloc.
func Dealloc(ptr unsafe.Pointer, layout Layout) {
	GetMemoryManager().Dealloc(ptr, layout)
}

// New allocates an uninitialized T through the installed manager. T must
// not contain Go pointers, since the memory lives outside the garbage
// collector's view. Returns nil when the chosen allocator is exhausted.
func New[T any](override ...AllocID) *T {
	return (*T)(Alloc(AllocUninitialized, LayoutOf[T](), override...))
}

// NewZeroed is New with the memory guaranteed to read as zero.
func NewZeroed[T any](override ...AllocID) *T {
	return (*T)(Alloc(AllocZeroed, LayoutOf[T](), override...))
}

// Free releases a value allocated by New.
func Free[T any](ptr *T) {
	Dealloc(unsafe.Pointer(ptr), LayoutOf[T]())
}

// NewSlice allocates a zeroed slice of n elements of T in one contiguous
// block. Free it with FreeSlice using the same n.
func NewSlice[T any](n int, override ...AllocID) []T {
	if n <= 0 {
		return nil
	}
	elem := LayoutOf[T]()
	layout := NewLayout(elem.Size()*uintptr(n), elem.Align())
	ptr := Alloc(AllocZeroed, layout, override...)
	if ptr == nil {
		return nil
	}
	return unsafe.Slice((*T)(ptr), n)
}

// FreeSlice releases a slice allocated by NewSlice.
func FreeSlice[T any](s []T, n int) {
	if len(s) == 0 {
		return
	}
	elem := LayoutOf[T]()
	Dealloc(unsafe.Pointer(&s[0]), NewLayout(elem.Size()*uintptr(n), elem.Align()))
}
