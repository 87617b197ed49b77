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

import "sync/atomic"

// Stats counts manager-level allocation traffic. Sizes include the 8-byte
// header overhead.
type Stats struct {
	NumAlloc      atomic.Int64
	NumFree       atomic.Int64
	InuseBytes    atomic.Int64
	HighWaterMark atomic.Int64
}

func (s *Stats) recordAlloc(size uintptr) {
	s.NumAlloc.Add(1)
	inuse := s.InuseBytes.Add(int64(size))
	for {
		peak := s.HighWaterMark.Load()
		if inuse <= peak {
			return
		}
		if s.HighWaterMark.CompareAndSwap(peak, inuse) {
			return
		}
	}
}

func (s *Stats) recordFree(size uintptr) {
	s.NumFree.Add(1)
	s.InuseBytes.Add(-int64(size))
}
