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

const (
	allocHeaderMagic uint16 = 0xCA04

	allocIDMask uint16 = 0x0FFF
	trackedBit  uint16 = 0x8000
	freeableBit uint16 = 0x4000
)

// AllocHeader is the 8-byte record stamped directly before the user pointer
// of every allocation that goes through the memory manager. It lets any
// pointer be freed without the caller remembering which allocator produced
// it.
//
//	tracked  freeable      alloc id      tag      pad     magic
//	+-------+--------+-----------------+-------+--------+-------+
//	| bit15 | bit14  |   bits 0..11    | 1 B   |  3 B   |  2 B  |
//	+-------+--------+-----------------+-------+--------+-------+
//
// The header's position is never stored separately: it is always re-derived
// from the request layout via headerLayout.Extend.
type AllocHeader struct {
	data  uint16
	tag   uint8
	_     [3]uint8
	magic uint16
}

const allocHeaderSize = unsafe.Sizeof(AllocHeader{})

var _ = [1]struct{}{}[allocHeaderSize-8] // AllocHeader must stay 8 bytes

// headerLayout aligns to 8 so every concrete allocator sees requests with
// an alignment of at least 8 bytes.
var headerLayout = Layout{size: allocHeaderSize, align: 8}

func NewAllocHeader(id AllocID, tracked, freeable bool) AllocHeader {
	data := uint16(id) & allocIDMask
	if tracked {
		data |= trackedBit
	}
	if freeable {
		data |= freeableBit
	}
	return AllocHeader{data: data, magic: allocHeaderMagic}
}

// HeaderOf reinterprets the 8 bytes immediately preceding ptr as the
// allocation's header. Only valid while the allocation is live.
func HeaderOf(ptr unsafe.Pointer) *AllocHeader {
	return (*AllocHeader)(unsafe.Add(ptr, -int(allocHeaderSize)))
}

func (h *AllocHeader) AllocID() AllocID { return AllocID(h.data & allocIDMask) }
func (h *AllocHeader) IsTracked() bool { return h.data&trackedBit != 0 }
func (h *AllocHeader) IsFreeable() bool { return h.data&freeableBit != 0 }

// IsValid reports whether the magic constant survived; anything else means
// the header is corrupt or ptr was not allocated through the manager.
func (h *AllocHeader) IsValid() bool { return h.magic == allocHeaderMagic }

func (h *AllocHeader) Tag() uint8 { return h.tag }
func (h *AllocHeader) SetTag(tag uint8) { h.tag = tag }
