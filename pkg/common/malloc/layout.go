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

// Layout describes the size and alignment of an allocation request.
// Alignment is always a power of two.
type Layout struct {
	size  uintptr
	align uintptr
}

// NewLayout builds a layout, panicking when align is not a power of two
// since that is a programming error rather than a runtime condition.
func NewLayout(size, align uintptr) Layout {
	if align == 0 || align&(align-1) != 0 {
		panic(fmt.Sprintf("malloc: layout alignment %d is not a power of two", align))
	}
	return Layout{size: size, align: align}
}

// LayoutOf returns the layout of a value of type T.
func LayoutOf[T any]() Layout {
	var v T
	return Layout{size: unsafe.Sizeof(v), align: unsafe.Alignof(v)}
}

func (l Layout) Size() uintptr { return l.size }
func (l Layout) Align() uintptr { return l.align }

// PaddingNeededFor returns the trailing bytes needed to round the layout's
// size up to a multiple of align.
func (l Layout) PaddingNeededFor(align uintptr) uintptr {
	return alignUp(l.size, align) - l.size
}

// Extend returns the layout of a record holding l directly followed by
// other, plus the byte offset of other within that record. Alloc and
// dealloc both derive the header offset through this single function, so
// the two sides always agree on where user data starts.
func (l Layout) Extend(other Layout) (Layout, uintptr) {
	align := l.align
	if other.align > align {
		align = other.align
	}
	offset := alignUp(l.size, other.align)
	return Layout{size: offset + other.size, align: align}, offset
}

func alignUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}

func alignOffset(addr, align uintptr) uintptr {
	return alignUp(addr, align) - addr
}
