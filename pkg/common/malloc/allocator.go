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

// Allocator is the capability interface every concrete allocator
// implements.
//
// Implementations are unaware of allocation headers: the memory manager
// extends the caller's layout before dispatch, so every Alloc sees a plain,
// header-free request and the manager alone owns header placement.
type Allocator interface {
	// Alloc returns a pointer to layout.Size() bytes aligned to
	// layout.Align(), or nil on exhaustion or an unsupported alignment.
	// A failed Alloc never mutates allocator state.
	Alloc(layout Layout) unsafe.Pointer

	// Dealloc releases an allocation made with the same layout. It may
	// panic on an owner or order mismatch, since continuing would silently
	// corrupt allocator state.
	Dealloc(ptr unsafe.Pointer, layout Layout)

	// Owns reports whether ptr was handed out by this allocator.
	Owns(ptr unsafe.Pointer, layout Layout) bool

	SetAllocID(id AllocID)
	AllocID() AllocID

	// SupportsFree reports whether individual deallocation reclaims
	// anything. Bump-style allocators return false; their only reclamation
	// path is Reset.
	SupportsFree() bool
}

// AllocID is the compact numeric token identifying which registered
// allocator services a request.
type AllocID uint16

const (
	// AllocIDUntracked bypasses the registry and goes straight to the OS.
	AllocIDUntracked AllocID = 0

	// AllocIDMalloc is the pass-through OS allocator.
	AllocIDMalloc AllocID = 1

	// AllocIDTLSTemp is the calling goroutine's scratch allocator, a
	// lazily built 1 MiB freelist heap for short-lived allocations.
	AllocIDTLSTemp AllocID = 2

	// NumReservedAllocIDs ids (0..3) are reserved; dynamically registered
	// allocators start right after them.
	NumReservedAllocIDs AllocID = 4

	// MaxAllocID is returned by RegisterAllocator when the registry is
	// full, and doubles as the "use the configured default" sentinel.
	MaxAllocID AllocID = 4095

	// AllocIDDefault resolves to the manager's configured default
	// allocator at dispatch time.
	AllocIDDefault = MaxAllocID
)

// MaxRegisterableAllocs is the number of dynamically assignable registry
// slots.
const MaxRegisterableAllocs = int(MaxAllocID - NumReservedAllocIDs)

// AllocInitState defines how freshly allocated memory is initialized.
type AllocInitState uint8

const (
	// AllocUninitialized leaves the new memory with whatever contents the
	// allocator hands back.
	AllocUninitialized AllocInitState = iota

	// AllocZeroed guarantees the new memory reads as zero.
	AllocZeroed
)
