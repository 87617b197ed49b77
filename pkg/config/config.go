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

// Package config loads the engine's toml configuration and builds the
// memory subsystem from it.
package config

import (
	"math/bits"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/kestrel-engine/kestrel/pkg/common/malloc"
	"github.com/kestrel-engine/kestrel/pkg/common/merr"
	"github.com/kestrel-engine/kestrel/pkg/logutil"
)

// PoolConfig declares a fixed-block pool to register at startup.
type PoolConfig struct {
	// Name labels the pool in logs.
	Name string `toml:"name"`
	// Kind selects the freelist strategy: "freelist" (default, lock-free
	// intrusive list) or "bitmap" (atomic occupancy words).
	Kind string `toml:"kind"`
	// BlockSize is the fixed block size in bytes, a power of two of at
	// least 8 and at most 4096 so mmap page alignment covers block
	// alignment.
	BlockSize int `toml:"block-size"`
	// NumBlocks is the pool capacity in blocks.
	NumBlocks int `toml:"num-blocks"`
}

// ArenaConfig declares a bump arena (stack or linear) to register at
// startup.
type ArenaConfig struct {
	// Name labels the arena in logs.
	Name string `toml:"name"`
	// Kind is "stack" for strict LIFO or "linear" for reset-only.
	Kind string `toml:"kind"`
	// Size is the arena capacity in bytes.
	Size int `toml:"size"`
	// MaxAlign is the largest alignment a stack arena serves, a power of
	// two. Ignored for linear arenas.
	MaxAlign int `toml:"max-align"`
}

// MemoryConfig configures the memory subsystem.
type MemoryConfig struct {
	Log logutil.LogConfig `toml:"log"`
	// ScratchSize overrides the per-goroutine scratch pad size in bytes.
	// Zero keeps the 1 MiB default.
	ScratchSize int           `toml:"scratch-size"`
	Pools       []PoolConfig  `toml:"pools"`
	Arenas      []ArenaConfig `toml:"arenas"`
}

// LoadMemoryConfig reads a toml file into a MemoryConfig and validates it.
func LoadMemoryConfig(path string) (*MemoryConfig, error) {
	var cfg MemoryConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, merr.NewBadConfig("%s: %s", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && bits.OnesCount(uint(n)) == 1
}

// Validate rejects configurations the allocator constructors would panic
// on.
func (cfg *MemoryConfig) Validate() error {
	if cfg.ScratchSize < 0 {
		return merr.NewBadConfig("scratch size must not be negative")
	}
	for _, p := range cfg.Pools {
		if p.Kind != "" && p.Kind != "freelist" && p.Kind != "bitmap" {
			return merr.NewBadConfig("pool %q: unknown kind %q", p.Name, p.Kind)
		}
		if !isPowerOfTwo(p.BlockSize) || p.BlockSize < 8 {
			return merr.NewBadConfig("pool %q: block size %d must be a power of two of at least 8", p.Name, p.BlockSize)
		}
		if p.BlockSize > 4096 {
			return merr.NewBadConfig("pool %q: block size %d exceeds the page-alignment limit of 4096", p.Name, p.BlockSize)
		}
		if p.NumBlocks <= 0 {
			return merr.NewBadConfig("pool %q: must have at least one block", p.Name)
		}
	}
	for _, a := range cfg.Arenas {
		if a.Kind != "stack" && a.Kind != "linear" {
			return merr.NewBadConfig("arena %q: unknown kind %q", a.Name, a.Kind)
		}
		if a.Size <= 0 {
			return merr.NewBadConfig("arena %q: size must be positive", a.Name)
		}
		if a.Kind == "stack" && !isPowerOfTwo(a.MaxAlign) {
			return merr.NewBadConfig("arena %q: max align %d must be a power of two", a.Name, a.MaxAlign)
		}
	}
	return nil
}

// Build creates a memory manager, registers every configured pool and
// arena, and installs it as the process-wide manager. Buffers are backed
// by the manager's own OS allocator with the block size as alignment, so
// the pool constructors' alignment requirements always hold.
func (cfg *MemoryConfig) Build() (*malloc.MemoryManager, error) {
	logutil.SetupLogger(&cfg.Log)

	manager := malloc.NewMemoryManager()
	if cfg.ScratchSize > 0 {
		manager.SetScratchSize(uintptr(cfg.ScratchSize))
	}
	malloc.SetMemoryManager(manager)

	for _, p := range cfg.Pools {
		layout := malloc.NewLayout(uintptr(p.BlockSize*p.NumBlocks), uintptr(p.BlockSize))
		buffer := manager.AllocRaw(malloc.AllocUninitialized, layout, malloc.AllocIDMalloc)
		if buffer == nil {
			return nil, merr.NewOOM()
		}
		var pool malloc.Allocator
		if p.Kind == "bitmap" {
			pool = malloc.NewBitmapAllocator(buffer, layout, uintptr(p.BlockSize))
		} else {
			pool = malloc.NewPoolAllocator(buffer, layout, uintptr(p.BlockSize))
		}
		id := manager.RegisterAllocator(pool)
		if id == malloc.MaxAllocID {
			return nil, merr.NewInvalidState("allocator registry is full")
		}
		logutil.Info("pool allocator built",
			zap.String("name", p.Name),
			zap.String("kind", p.Kind),
			zap.Uint16("id", uint16(id)),
			zap.Int("blockSize", p.BlockSize),
			zap.Int("numBlocks", p.NumBlocks),
		)
	}

	for _, a := range cfg.Arenas {
		maxAlign := uintptr(a.MaxAlign)
		if a.Kind == "linear" || maxAlign < 8 {
			maxAlign = 8
		}
		layout := malloc.NewLayout(uintptr(a.Size), maxAlign)
		buffer := manager.AllocRaw(malloc.AllocUninitialized, layout, malloc.AllocIDMalloc)
		if buffer == nil {
			return nil, merr.NewOOM()
		}
		var arena malloc.Allocator
		if a.Kind == "stack" {
			arena = malloc.NewStackAllocator(buffer, layout, maxAlign)
		} else {
			arena = malloc.NewLinearAllocator(buffer, layout)
		}
		id := manager.RegisterAllocator(arena)
		if id == malloc.MaxAllocID {
			return nil, merr.NewInvalidState("allocator registry is full")
		}
		logutil.Info("arena allocator built",
			zap.String("name", a.Name),
			zap.String("kind", a.Kind),
			zap.Uint16("id", uint16(id)),
			zap.Int("size", a.Size),
		)
	}

	return manager, nil
}
