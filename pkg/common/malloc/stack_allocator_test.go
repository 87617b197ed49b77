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
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestStackAllocatorLIFO(t *testing.T) {
	buf, layout := newTestBuffer(t, 256)
	s := NewStackAllocator(buf, layout, 16)

	l := NewLayout(24, 8)
	a := s.Alloc(l)
	require.NotNil(t, a)
	require.Equal(t, buf, a)

	b := s.Alloc(l)
	require.NotNil(t, b)
	// 24 padded to 32 by maxAlign
	require.Equal(t, unsafe.Add(buf, 32), b)

	s.Dealloc(b, l)
	s.Dealloc(a, l)

	// fully unwound, the next allocation reuses the start
	require.Equal(t, buf, s.Alloc(l))
}

func TestStackAllocatorOutOfOrderPanics(t *testing.T) {
	buf, layout := newTestBuffer(t, 256)
	s := NewStackAllocator(buf, layout, 16)

	l := NewLayout(16, 8)
	a := s.Alloc(l)
	b := s.Alloc(l)
	require.NotNil(t, a)
	require.NotNil(t, b)

	require.PanicsWithValue(t, "malloc: invalid deallocation order", func() {
		s.Dealloc(a, l)
	})
	// b is still the top and can be freed normally
	s.Dealloc(b, l)
	s.Dealloc(a, l)
}

func TestStackAllocatorExhaustion(t *testing.T) {
	buf, layout := newTestBuffer(t, 64)
	s := NewStackAllocator(buf, layout, 8)

	a := s.Alloc(NewLayout(48, 8))
	require.NotNil(t, a)

	// a failed allocation must not move the head
	require.Nil(t, s.Alloc(NewLayout(32, 8)))
	b := s.Alloc(NewLayout(16, 8))
	require.Equal(t, unsafe.Add(buf, 48), b)
}

func TestStackAllocatorRejectsLargeAlign(t *testing.T) {
	buf, layout := newTestBuffer(t, 256)
	s := NewStackAllocator(buf, layout, 8)
	require.Nil(t, s.Alloc(NewLayout(8, 16)))
}

func TestStackAllocatorReset(t *testing.T) {
	buf, layout := newTestBuffer(t, 64)
	s := NewStackAllocator(buf, layout, 8)

	require.NotNil(t, s.Alloc(NewLayout(64, 8)))
	require.Nil(t, s.Alloc(NewLayout(8, 8)))
	s.Reset()
	require.Equal(t, buf, s.Alloc(NewLayout(64, 8)))
}

func TestStackAllocatorForeignPointerPanics(t *testing.T) {
	buf, layout := newTestBuffer(t, 64)
	s := NewStackAllocator(buf, layout, 8)
	var x int64
	require.Panics(t, func() {
		s.Dealloc(unsafe.Pointer(&x), NewLayout(8, 8))
	})
}

func TestNewStackAllocatorValidation(t *testing.T) {
	buf, layout := newTestBuffer(t, 64)
	require.Panics(t, func() {
		NewStackAllocator(buf, layout, 12)
	})
	require.Panics(t, func() {
		NewStackAllocator(unsafe.Add(buf, 4), layout, 16)
	})
}
