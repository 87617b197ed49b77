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
	"unsafe"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsAllocator wraps an upstream allocator and reports its traffic to
// prometheus. Any of the collectors may be nil to skip that series.
type MetricsAllocator struct {
	upstream Allocator

	allocateBytesCounter   prometheus.Counter
	allocateObjectsCounter prometheus.Counter
	inuseBytesGauge        prometheus.Gauge
	inuseObjectsGauge      prometheus.Gauge
}

func NewMetricsAllocator(
	upstream Allocator,
	allocateBytesCounter prometheus.Counter,
	allocateObjectsCounter prometheus.Counter,
	inuseBytesGauge prometheus.Gauge,
	inuseObjectsGauge prometheus.Gauge,
) *MetricsAllocator {
	return &MetricsAllocator{
		upstream:               upstream,
		allocateBytesCounter:   allocateBytesCounter,
		allocateObjectsCounter: allocateObjectsCounter,
		inuseBytesGauge:        inuseBytesGauge,
		inuseObjectsGauge:      inuseObjectsGauge,
	}
}

var _ Allocator = new(MetricsAllocator)

func (m *MetricsAllocator) Alloc(layout Layout) unsafe.Pointer {
	ptr := m.upstream.Alloc(layout)
	if ptr == nil {
		return nil
	}
	if m.allocateBytesCounter != nil {
		m.allocateBytesCounter.Add(float64(layout.Size()))
	}
	if m.allocateObjectsCounter != nil {
		m.allocateObjectsCounter.Inc()
	}
	if m.inuseBytesGauge != nil {
		m.inuseBytesGauge.Add(float64(layout.Size()))
	}
	if m.inuseObjectsGauge != nil {
		m.inuseObjectsGauge.Inc()
	}
	return ptr
}

func (m *MetricsAllocator) Dealloc(ptr unsafe.Pointer, layout Layout) {
	m.upstream.Dealloc(ptr, layout)
	if m.inuseBytesGauge != nil {
		m.inuseBytesGauge.Sub(float64(layout.Size()))
	}
	if m.inuseObjectsGauge != nil {
		m.inuseObjectsGauge.Dec()
	}
}

func (m *MetricsAllocator) Owns(ptr unsafe.Pointer, layout Layout) bool {
	return m.upstream.Owns(ptr, layout)
}

// SetAllocID forwards to the upstream so allocators that stamp their own id
// into derived state stay consistent with the registry.
func (m *MetricsAllocator) SetAllocID(id AllocID) {
	m.upstream.SetAllocID(id)
}

func (m *MetricsAllocator) AllocID() AllocID { return m.upstream.AllocID() }
func (m *MetricsAllocator) SupportsFree() bool { return m.upstream.SupportsFree() }
