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
	"sync/atomic"
	"unsafe"

	"github.com/petermattis/goid"
	"go.uber.org/zap"

	"github.com/kestrel-engine/kestrel/pkg/logutil"
)

// TLSTempSize is the size of each goroutine's lazily built scratch pad.
const TLSTempSize = 1 << 20

var memoryManager atomic.Pointer[MemoryManager]

// SetMemoryManager installs the process-wide manager. Call once near
// process start, before any tracked allocation.
func SetMemoryManager(m *MemoryManager) {
	memoryManager.Store(m)
}

// GetMemoryManager returns the installed manager. It panics when no
// manager was set, since that is a startup-ordering bug, not a runtime
// condition.
func GetMemoryManager() *MemoryManager {
	m := memoryManager.Load()
	if m == nil {
		panic("malloc: memory manager was not set")
	}
	return m
}

// untrackedMallocator serves allocations that bypass the registry
// entirely. It never carries a registry id other than the reserved one.
var untrackedMallocator = NewMallocator()

type scratchShard struct {
	sync.Mutex
	pads map[int64]*FreelistAllocator
}

// MemoryManager is the process-wide registry of allocators. Ordinary
// alloc/dealloc traffic only takes the read lock to find an allocator;
// registration and default changes take the write lock and are expected to
// be rare.
type MemoryManager struct {
	mu         sync.RWMutex
	mallocator *Mallocator
	allocs     [MaxRegisterableAllocs]Allocator
	defaultID  AllocID // never AllocIDUntracked

	scratchSize uintptr
	scratch     [numContextShards]scratchShard
	stats       Stats
}

func NewMemoryManager() *MemoryManager {
	m := &MemoryManager{
		mallocator:  NewMallocator(),
		defaultID:   AllocIDMalloc,
		scratchSize: TLSTempSize,
	}
	for i := range m.scratch {
		m.scratch[i].pads = make(map[int64]*FreelistAllocator)
	}
	return m
}

// RegisterAllocator assigns the first free registry slot to alloc and
// returns its id. When the registry is full it returns the MaxAllocID
// sentinel; it never panics, so callers can fall back to the default
// allocator.
func (m *MemoryManager) RegisterAllocator(alloc Allocator) AllocID {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.allocs {
		if m.allocs[i] != nil {
			continue
		}
		id := NumReservedAllocIDs + AllocID(i)
		alloc.SetAllocID(id)
		m.allocs[i] = alloc
		logutil.Info("allocator registered",
			zap.Uint16("id", uint16(id)),
			zap.Bool("supportsFree", alloc.SupportsFree()),
		)
		return id
	}
	return MaxAllocID
}

// SetDefaultAllocator sets the allocator that AllocIDDefault resolves to.
// The untracked allocator can never be the default; the sentinel itself is
// rejected with a panic.
func (m *MemoryManager) SetDefaultAllocator(id AllocID) {
	if id == AllocIDUntracked {
		return
	}
	if id == MaxAllocID {
		panic("malloc: cannot set the default allocator to the sentinel id")
	}
	m.mu.Lock()
	m.defaultID = id
	m.mu.Unlock()
}

// GetAllocator resolves id to a registered allocator, following the
// default indirection. Returns nil for empty or out-of-range slots.
func (m *MemoryManager) GetAllocator(id AllocID) Allocator {
	if id == AllocIDDefault {
		m.mu.RLock()
		id = m.defaultID
		m.mu.RUnlock()
	}
	switch id {
	case AllocIDUntracked:
		panic("malloc: cannot get the untracked allocator directly")
	case AllocIDMalloc:
		return m.mallocator
	case AllocIDTLSTemp:
		return m.scratchAllocator()
	default:
		if id < NumReservedAllocIDs || int(id-NumReservedAllocIDs) >= len(m.allocs) {
			return nil
		}
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.allocs[id-NumReservedAllocIDs]
	}
}

// SetScratchSize overrides the size of scratch pads built after the call.
// Existing pads keep their size. Sizes below one free block are ignored.
func (m *MemoryManager) SetScratchSize(size uintptr) {
	if size < freeBlockSize {
		return
	}
	m.scratchSize = size
}

// Stats returns the manager's allocation counters.
func (m *MemoryManager) Stats() *Stats {
	return &m.stats
}

// AllocRaw allocates layout bytes through the active allocator, or through
// override when given. The returned pointer is preceded by a stamped
// AllocHeader; nil means the chosen allocator is exhausted, rejected the
// alignment, or is not registered.
func (m *MemoryManager) AllocRaw(init AllocInitState, layout Layout, override ...AllocID) unsafe.Pointer {
	id := GetActiveAlloc()
	if len(override) > 0 {
		id = override[0]
	}
	return m.handleAlloc(init, layout, true, id)
}

func (m *MemoryManager) handleAlloc(init AllocInitState, layout Layout, tracked bool, id AllocID) unsafe.Pointer {
	// resolve the default indirection now so the stamped id still routes
	// correctly if the default changes before the free
	if id == AllocIDDefault {
		m.mu.RLock()
		id = m.defaultID
		m.mu.RUnlock()
	}

	extended, offset := headerLayout.Extend(layout)

	var ptr unsafe.Pointer
	freeable := true
	if id == AllocIDUntracked {
		ptr = m.mallocator.Alloc(extended)
	} else {
		alloc := m.GetAllocator(id)
		if alloc == nil {
			return nil
		}
		ptr = alloc.Alloc(extended)
		freeable = alloc.SupportsFree()
	}
	if ptr == nil {
		return nil
	}
	if init == AllocZeroed {
		clear(unsafe.Slice((*byte)(ptr), extended.Size()))
	}
	m.stats.recordAlloc(extended.Size())

	user := unsafe.Add(ptr, offset)
	*HeaderOf(user) = NewAllocHeader(id, tracked, freeable)
	return user
}

// Dealloc releases an allocation made through AllocRaw with the same
// layout the caller used then. Allocations whose header says non-freeable
// are silently ignored, which is how bump-style allocators are handled
// uniformly. A corrupt header panics.
func (m *MemoryManager) Dealloc(ptr unsafe.Pointer, layout Layout) {
	header := HeaderOf(ptr)
	if !header.IsValid() {
		panic("malloc: corrupt allocation header")
	}
	if !header.IsFreeable() {
		return
	}

	extended, offset := headerLayout.Extend(layout)
	base := unsafe.Add(ptr, -int(offset))
	id := header.AllocID()

	if id == AllocIDUntracked {
		m.mallocator.Dealloc(base, extended)
		m.stats.recordFree(extended.Size())
		return
	}
	alloc := m.GetAllocator(id)
	if alloc == nil {
		panic("malloc: failed to retrieve the allocator that owns this allocation")
	}
	alloc.Dealloc(base, extended)
	m.stats.recordFree(extended.Size())
}

// AllocUntracked goes straight to the OS, ignoring the registry and the
// active allocator. The allocation still carries a header so Dealloc and
// DeallocUntracked both route it correctly.
func AllocUntracked(init AllocInitState, layout Layout) unsafe.Pointer {
	extended, offset := headerLayout.Extend(layout)
	ptr := untrackedMallocator.Alloc(extended)
	if ptr == nil {
		return nil
	}
	if init == AllocZeroed {
		clear(unsafe.Slice((*byte)(ptr), extended.Size()))
	}
	user := unsafe.Add(ptr, offset)
	*HeaderOf(user) = NewAllocHeader(AllocIDUntracked, false, true)
	return user
}

// DeallocUntracked frees memory obtained from AllocUntracked.
func DeallocUntracked(ptr unsafe.Pointer, layout Layout) {
	header := HeaderOf(ptr)
	if !header.IsValid() {
		panic("malloc: corrupt allocation header")
	}
	if header.AllocID() != AllocIDUntracked {
		panic("malloc: trying to deallocate tracked memory as untracked memory")
	}
	extended, offset := headerLayout.Extend(layout)
	untrackedMallocator.Dealloc(unsafe.Add(ptr, -int(offset)), extended)
}

// scratchAllocator returns the calling goroutine's scratch pad, building it
// on first use. The pad's buffer is allocated with an explicit Malloc
// override under a Malloc scope guard so constructing the pad can never
// recurse into the pad itself.
func (m *MemoryManager) scratchAllocator() *FreelistAllocator {
	gid := goid.Get()
	shard := &m.scratch[uint64(gid)%numContextShards]
	shard.Lock()
	pad, ok := shard.pads[gid]
	shard.Unlock()
	if ok {
		return pad
	}

	guard := EnterScopedAlloc(AllocIDMalloc)
	defer guard.Exit()

	layout := NewLayout(m.scratchSize, 8)
	buffer := m.AllocRaw(AllocUninitialized, layout, AllocIDMalloc)
	if buffer == nil {
		panic("malloc: failed to allocate the scratch pad buffer")
	}
	pad = NewFreelistAllocator(buffer, layout)
	pad.SetAllocID(AllocIDTLSTemp)

	shard.Lock()
	shard.pads[gid] = pad
	shard.Unlock()
	logutil.Debug("scratch allocator created",
		zap.Int64("goroutine", gid),
		zap.Uintptr("size", layout.Size()),
	)
	return pad
}

// ReleaseScratchAllocator frees the calling goroutine's scratch pad, if it
// was ever built. Long-lived worker goroutines should call this before
// exiting; pads of goroutines that never do are only reclaimed at process
// exit.
func (m *MemoryManager) ReleaseScratchAllocator() {
	gid := goid.Get()
	shard := &m.scratch[uint64(gid)%numContextShards]
	shard.Lock()
	pad, ok := shard.pads[gid]
	delete(shard.pads, gid)
	shard.Unlock()
	if !ok {
		return
	}
	m.Dealloc(pad.buffer, pad.bufLayout)
}
