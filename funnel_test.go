// Copyright 2025 The Probekit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package probekit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFunnelGeometry(t *testing.T) {
	for _, tc := range []struct {
		capacity int
		delta    float64
	}{
		{64, 0.2},
		{1024, 0.2},
		{1 << 16, 0.1},
		{100000, 0.05},
	} {
		m := mustNew[int, int](t, Funnel, tc.capacity, WithDelta[int, int](tc.delta))
		fe := m.(*funnelEngine[int, int])

		require.Equal(t, int(math.Ceil(4*math.Log2(1/tc.delta)+10)), fe.alpha)
		require.Equal(t, int(math.Ceil(math.Log2(1/tc.delta))), fe.beta)

		total := 0
		for l := 0; l < len(fe.levels)-1; l++ {
			require.Zero(t, len(fe.levels[l])%fe.beta,
				"cascade level %d size %d not a multiple of β", l, len(fe.levels[l]))
			require.GreaterOrEqual(t, len(fe.levels[l]), fe.beta)
			if l > 0 {
				require.LessOrEqual(t, len(fe.levels[l]), len(fe.levels[l-1]))
			}
			total += len(fe.levels[l])
		}
		overflow := len(fe.levels[len(fe.levels)-1])
		require.GreaterOrEqual(t, overflow, int(math.Ceil(tc.delta*float64(tc.capacity)/2)),
			"overflow smaller than the δN/2 reserve")
		require.Equal(t, tc.capacity, total+overflow)
	}
}

func TestFunnelLoadBound(t *testing.T) {
	delta := 0.2
	m := mustNew[int, int](t, Funnel, 0)
	for i := 0; i < 30000; i++ {
		m.Put(i, i)
		require.LessOrEqual(t, m.LoadFactor(), 1-delta+1e-9)
	}
	for i := 0; i < 30000; i++ {
		v, ok := m.Get(i)
		require.True(t, ok)
		require.EqualValues(t, i, v)
	}
}

// Deleted slots are transparent holes: a key placed past one must stay
// reachable after its predecessors in the bucket are removed.
func TestFunnelDeletedTransparent(t *testing.T) {
	m := mustNew[int, int](t, Funnel, 0, constHash[int, int](9))
	// All keys share one bucket per level; β for δ=0.2 is 3, so these
	// five keys span at least two cascade levels.
	for i := 0; i < 5; i++ {
		m.Put(i, i)
	}
	require.True(t, m.Delete(0))
	require.True(t, m.Delete(1))
	for i := 2; i < 5; i++ {
		v, ok := m.Get(i)
		require.True(t, ok, "key %d lost behind deleted slots", i)
		require.EqualValues(t, i, v)
	}
	// Reinsertion may land in the holes; the count must balance.
	m.Put(0, 10)
	m.Put(1, 11)
	require.EqualValues(t, 5, m.Len())
	v, ok := m.Get(0)
	require.True(t, ok)
	require.EqualValues(t, 10, v)
}

// Cascade spill: once the per-level buckets of a degenerate key are
// full, entries land in the overflow level and remain reachable.
func TestFunnelOverflowSpill(t *testing.T) {
	m := mustNew[int, int](t, Funnel, 0, constHash[int, int](1))
	fe := m.(*funnelEngine[int, int])
	// One bucket of β slots per cascade level caps the cascade at
	// (levels-1)*β entries for a constant hash; insert past it.
	cascadeCap := (len(fe.levels) - 1) * fe.beta
	count := cascadeCap + 4
	for i := 0; i < count; i++ {
		m.Put(i, i)
	}
	ov := fe.levels[len(fe.levels)-1]
	inOverflow := 0
	for i := range ov {
		if ov[i].state == slotOccupied {
			inOverflow++
		}
	}
	require.Greater(t, inOverflow, 0)
	for i := 0; i < count; i++ {
		v, ok := m.Get(i)
		require.True(t, ok)
		require.EqualValues(t, i, v)
	}
}

func TestFunnelGrowthPreservesEntries(t *testing.T) {
	m := mustNew[int, int](t, Funnel, 64)
	before := m.Capacity()
	for i := 0; i < 10000; i++ {
		m.Put(i, i)
	}
	require.Greater(t, m.Capacity(), before)
	require.EqualValues(t, 10000, m.Len())
	for i := 0; i < 10000; i++ {
		v, ok := m.Get(i)
		require.True(t, ok)
		require.EqualValues(t, i, v)
	}
}
