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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsAllocator(t *testing.T) {
	allocBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_allocate_bytes",
	})
	allocObjects := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_allocate_objects",
	})
	inuseBytes := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_inuse_bytes",
	})
	inuseObjects := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_inuse_objects",
	})

	buf, layout := newTestBuffer(t, 4096)
	m := NewMetricsAllocator(
		NewFreelistAllocator(buf, layout),
		allocBytes, allocObjects, inuseBytes, inuseObjects,
	)

	l := NewLayout(100, 8)
	a := m.Alloc(l)
	b := m.Alloc(l)
	require.NotNil(t, a)
	require.NotNil(t, b)

	require.Equal(t, float64(200), testutil.ToFloat64(allocBytes))
	require.Equal(t, float64(2), testutil.ToFloat64(allocObjects))
	require.Equal(t, float64(200), testutil.ToFloat64(inuseBytes))
	require.Equal(t, float64(2), testutil.ToFloat64(inuseObjects))

	m.Dealloc(a, l)
	require.Equal(t, float64(200), testutil.ToFloat64(allocBytes))
	require.Equal(t, float64(100), testutil.ToFloat64(inuseBytes))
	require.Equal(t, float64(1), testutil.ToFloat64(inuseObjects))

	m.Dealloc(b, l)
	require.Equal(t, float64(0), testutil.ToFloat64(inuseBytes))
	require.Equal(t, float64(0), testutil.ToFloat64(inuseObjects))
}

func TestMetricsAllocatorNilCollectors(t *testing.T) {
	buf, layout := newTestBuffer(t, 4096)
	m := NewMetricsAllocator(NewFreelistAllocator(buf, layout), nil, nil, nil, nil)

	l := NewLayout(64, 8)
	ptr := m.Alloc(l)
	require.NotNil(t, ptr)
	m.Dealloc(ptr, l)
	require.True(t, m.SupportsFree())
}

func TestMetricsAllocatorForwardsID(t *testing.T) {
	buf, layout := newTestBuffer(t, 4096)
	upstream := NewFreelistAllocator(buf, layout)
	m := NewMetricsAllocator(upstream, nil, nil, nil, nil)

	m.SetAllocID(17)
	require.Equal(t, AllocID(17), upstream.AllocID())
	require.Equal(t, AllocID(17), m.AllocID())
}
