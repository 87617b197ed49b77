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

	"github.com/petermattis/goid"
)

// The active-allocator context: one logical cell per goroutine, mutated
// only through LIFO-nested scope guards. A missing entry reads as
// AllocIDUntracked, so goroutines that never scope an allocator cost
// nothing on exit.

const numContextShards = 256

type contextShard struct {
	sync.Mutex
	ids map[int64]AllocID
}

var activeAllocs = func() (ret [numContextShards]contextShard) {
	for i := range ret {
		ret[i].ids = make(map[int64]AllocID)
	}
	return
}()

func contextShardOf(gid int64) *contextShard {
	return &activeAllocs[uint64(gid)%numContextShards]
}

// GetActiveAlloc returns the allocator id in effect on the calling
// goroutine. Defaults to AllocIDUntracked.
func GetActiveAlloc() AllocID {
	gid := goid.Get()
	shard := contextShardOf(gid)
	shard.Lock()
	id := shard.ids[gid]
	shard.Unlock()
	return id
}

// SetActiveAlloc sets the allocator id in effect on the calling goroutine.
// Prefer EnterScopedAlloc, which restores the previous id automatically.
func SetActiveAlloc(id AllocID) {
	gid := goid.Get()
	shard := contextShardOf(gid)
	shard.Lock()
	if id == AllocIDUntracked {
		delete(shard.ids, gid)
	} else {
		shard.ids[gid] = id
	}
	shard.Unlock()
}

// ScopedAlloc overrides the active allocator for a lexical scope:
//
//	defer EnterScopedAlloc(id).Exit()
//
// Exit restores the id that was active at enter time, so nested guards
// unwind in LIFO order on every exit path, including panics.
type ScopedAlloc struct {
	prev AllocID
}

// EnterScopedAlloc snapshots the current active id and installs id.
func EnterScopedAlloc(id AllocID) ScopedAlloc {
	prev := GetActiveAlloc()
	SetActiveAlloc(id)
	return ScopedAlloc{prev: prev}
}

// Set replaces the active id without touching the snapshot taken at enter
// time.
func (s ScopedAlloc) Set(id AllocID) {
	SetActiveAlloc(id)
}

// Exit restores the id active when the guard was entered.
func (s ScopedAlloc) Exit() {
	SetActiveAlloc(s.prev)
}
