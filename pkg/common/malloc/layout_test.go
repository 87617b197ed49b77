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

	"github.com/stretchr/testify/require"
)

func TestNewLayout(t *testing.T) {
	l := NewLayout(24, 8)
	require.Equal(t, uintptr(24), l.Size())
	require.Equal(t, uintptr(8), l.Align())

	require.Panics(t, func() {
		NewLayout(24, 0)
	})
	require.Panics(t, func() {
		NewLayout(24, 3)
	})
	require.Panics(t, func() {
		NewLayout(24, 12)
	})
}

func TestLayoutOf(t *testing.T) {
	type record struct {
		a uint64
		b uint8
	}
	l := LayoutOf[record]()
	require.Equal(t, uintptr(16), l.Size())
	require.Equal(t, uintptr(8), l.Align())

	require.Equal(t, uintptr(1), LayoutOf[byte]().Size())
	require.Equal(t, uintptr(1), LayoutOf[byte]().Align())
}

func TestLayoutPaddingNeededFor(t *testing.T) {
	l := NewLayout(10, 2)
	require.Equal(t, uintptr(6), l.PaddingNeededFor(16))
	require.Equal(t, uintptr(0), l.PaddingNeededFor(2))
	require.Equal(t, uintptr(0), NewLayout(16, 8).PaddingNeededFor(16))
}

func TestLayoutExtend(t *testing.T) {
	tests := []struct {
		name       string
		first      Layout
		second     Layout
		wantSize   uintptr
		wantAlign  uintptr
		wantOffset uintptr
	}{
		{
			name:       "same alignment",
			first:      NewLayout(8, 8),
			second:     NewLayout(24, 8),
			wantSize:   32,
			wantAlign:  8,
			wantOffset: 8,
		},
		{
			name:       "second more aligned",
			first:      NewLayout(8, 8),
			second:     NewLayout(32, 16),
			wantSize:   48,
			wantAlign:  16,
			wantOffset: 16,
		},
		{
			name:       "second less aligned",
			first:      NewLayout(8, 8),
			second:     NewLayout(3, 1),
			wantSize:   11,
			wantAlign:  8,
			wantOffset: 8,
		},
		{
			name:       "first unaligned tail",
			first:      NewLayout(10, 2),
			second:     NewLayout(8, 8),
			wantSize:   24,
			wantAlign:  8,
			wantOffset: 16,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, offset := tt.first.Extend(tt.second)
			require.Equal(t, tt.wantSize, got.Size())
			require.Equal(t, tt.wantAlign, got.Align())
			require.Equal(t, tt.wantOffset, offset)
		})
	}
}
