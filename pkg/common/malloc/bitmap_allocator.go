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
	"math/bits"
	"sync/atomic"
	"unsafe"
)

// BitmapAllocator is a fixed-block allocator that tracks occupancy with
// atomic 64-bit masks, one bit per block. Like PoolAllocator it is
// lock-free and shareable across goroutines; unlike it, liveness of any
// block can be inspected cheaply and every double free is detected.
type BitmapAllocator struct {
	buffer    unsafe.Pointer
	bufLayout Layout
	blockSize uintptr
	numBlocks uintptr
	words     []atomic.Uint64
	id        AllocID
}

// NewBitmapAllocator creates a bitmap allocator over buffer, with the same
// buffer requirements as NewPoolAllocator.
func NewBitmapAllocator(buffer unsafe.Pointer, bufLayout Layout, blockSize uintptr) *BitmapAllocator {
	if blockSize < 8 || blockSize&(blockSize-1) != 0 {
		panic(fmt.Sprintf("malloc: block size %d is not a power of two of at least 8", blockSize))
	}
	if uintptr(buffer)%blockSize != 0 {
		panic("malloc: bitmap buffer is not aligned to the block size")
	}
	if bufLayout.Size() == 0 || bufLayout.Size()%blockSize != 0 {
		panic("malloc: bitmap buffer size is not a multiple of the block size")
	}

	numBlocks := bufLayout.Size() / blockSize
	b := &BitmapAllocator{
		buffer:    buffer,
		bufLayout: bufLayout,
		blockSize: blockSize,
		numBlocks: numBlocks,
		words:     make([]atomic.Uint64, (numBlocks+63)/64),
	}
	// mark the bits past the last block as permanently occupied
	if tail := numBlocks % 64; tail != 0 {
		b.words[len(b.words)-1].Store(^uint64(0) << tail)
	}
	return b
}

var _ Allocator = new(BitmapAllocator)

func (b *BitmapAllocator) NumBlocks() int { return int(b.numBlocks) }

func (b *BitmapAllocator) Alloc(layout Layout) unsafe.Pointer {
	if layout.Align() > b.blockSize || layout.Size() > b.blockSize {
		return nil
	}
	for wi := range b.words {
		for {
			mask := b.words[wi].Load()
			reverse := ^mask
			if reverse == 0 {
				// word full
				break
			}
			bit := bits.TrailingZeros64(reverse)
			if b.words[wi].CompareAndSwap(mask, mask|1<<bit) {
				idx := uintptr(wi)*64 + uintptr(bit)
				return unsafe.Add(b.buffer, idx*b.blockSize)
			}
		}
	}
	return nil
}

func (b *BitmapAllocator) Dealloc(ptr unsafe.Pointer, layout Layout) {
	if !b.Owns(ptr, layout) {
		panic("malloc: cannot deallocate an allocation not owned by this allocator")
	}
	offset := uintptr(ptr) - uintptr(b.buffer)
	if offset%b.blockSize != 0 {
		panic("malloc: pointer does not address a bitmap block")
	}
	idx := offset / b.blockSize
	wi, bit := idx/64, idx%64
	for {
		mask := b.words[wi].Load()
		if mask&(1<<bit) == 0 {
			panic("malloc: double free of bitmap block")
		}
		if b.words[wi].CompareAndSwap(mask, mask&^(1<<bit)) {
			return
		}
	}
}

func (b *BitmapAllocator) Owns(ptr unsafe.Pointer, _ Layout) bool {
	return uintptr(ptr) >= uintptr(b.buffer) &&
		uintptr(ptr) < uintptr(b.buffer)+b.bufLayout.Size()
}

func (b *BitmapAllocator) SetAllocID(id AllocID) { b.id = id }
func (b *BitmapAllocator) AllocID() AllocID { return b.id }
func (b *BitmapAllocator) SupportsFree() bool { return true }
