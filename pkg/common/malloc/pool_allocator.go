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
	"runtime"
	"sync/atomic"
	"unsafe"
)

// PoolAllocator carves a buffer into equal power-of-two blocks and hands
// them out through a lock-free freelist, so it may be shared across
// goroutines without external locking.
//
// The freelist is a stack of packed words: (index+1)<<32 | aba. The
// per-block ABA counter is bumped on every push, which makes the pop
// compare-and-swap safe against a block being freed and reallocated
// between a load and the swap. A block's next word is 0 while the block is
// live, which is also how double frees are caught.
type PoolAllocator struct {
	buffer    unsafe.Pointer
	bufLayout Layout
	blockSize uintptr
	head      atomic.Uint64 // packed; 0 = empty freelist
	blocks    []poolBlock
	id        AllocID
}

type poolBlock struct {
	next atomic.Uint64
	aba  uint32
}

// NewPoolAllocator creates a pool over buffer. blockSize must be a power of
// two of at least 8 bytes, buffer must be aligned to it, and the buffer
// size must be a multiple of it.
func NewPoolAllocator(buffer unsafe.Pointer, bufLayout Layout, blockSize uintptr) *PoolAllocator {
	if blockSize < 8 || blockSize&(blockSize-1) != 0 {
		panic(fmt.Sprintf("malloc: block size %d is not a power of two of at least 8", blockSize))
	}
	if uintptr(buffer)%blockSize != 0 {
		panic("malloc: pool buffer is not aligned to the block size")
	}
	if bufLayout.Size() == 0 || bufLayout.Size()%blockSize != 0 {
		panic("malloc: pool buffer size is not a multiple of the block size")
	}

	numBlocks := bufLayout.Size() / blockSize
	p := &PoolAllocator{
		buffer:    buffer,
		bufLayout: bufLayout,
		blockSize: blockSize,
		blocks:    make([]poolBlock, numBlocks),
	}
	for i := uintptr(0); i < numBlocks-1; i++ {
		p.blocks[i].next.Store(uint64(i+2) << 32)
	}
	p.head.Store(1 << 32)
	return p
}

var _ Allocator = new(PoolAllocator)

func (p *PoolAllocator) NumBlocks() int { return len(p.blocks) }
func (p *PoolAllocator) BlockSize() uintptr { return p.blockSize }

func (p *PoolAllocator) Alloc(layout Layout) unsafe.Pointer {
	if layout.Align() > p.blockSize || layout.Size() > p.blockSize {
		return nil
	}
	for {
		old := p.head.Load()
		if old == 0 {
			return nil
		}
		idx := uintptr(old>>32) - 1
		blk := &p.blocks[idx]
		next := blk.next.Load()
		if p.head.CompareAndSwap(old, next) {
			blk.next.Store(0)
			return unsafe.Add(p.buffer, idx*p.blockSize)
		}
		runtime.Gosched()
	}
}

func (p *PoolAllocator) Dealloc(ptr unsafe.Pointer, layout Layout) {
	if !p.Owns(ptr, layout) {
		panic("malloc: cannot deallocate an allocation not owned by this allocator")
	}
	offset := uintptr(ptr) - uintptr(p.buffer)
	if offset%p.blockSize != 0 {
		panic("malloc: pointer does not address a pool block")
	}
	idx := offset / p.blockSize
	blk := &p.blocks[idx]
	if blk.next.Load() != 0 {
		panic("malloc: double free of pool block")
	}

	blk.aba++
	packed := uint64(idx+1)<<32 | uint64(blk.aba)
	for {
		old := p.head.Load()
		blk.next.Store(old)
		if p.head.CompareAndSwap(old, packed) {
			return
		}
		runtime.Gosched()
	}
}

func (p *PoolAllocator) Owns(ptr unsafe.Pointer, _ Layout) bool {
	return uintptr(ptr) >= uintptr(p.buffer) &&
		uintptr(ptr) < uintptr(p.buffer)+p.bufLayout.Size()
}

func (p *PoolAllocator) SetAllocID(id AllocID) { p.id = id }
func (p *PoolAllocator) AllocID() AllocID { return p.id }
func (p *PoolAllocator) SupportsFree() bool { return true }
