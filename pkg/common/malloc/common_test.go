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

// newTestBuffer mmaps a page-aligned buffer for allocator tests and frees
// it on cleanup. Page alignment covers every block size the tests use.
func newTestBuffer(t *testing.T, size uintptr) (unsafe.Pointer, Layout) {
	t.Helper()
	m := NewMallocator()
	layout := NewLayout(size, 8)
	buf := m.Alloc(layout)
	require.NotNil(t, buf)
	t.Cleanup(func() {
		m.Dealloc(buf, layout)
	})
	return buf, layout
}
