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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLinearLoadBound(t *testing.T) {
	m := mustNew[int, int](t, Linear, 0)
	for i := 0; i < 100000; i++ {
		m.Put(i, i)
		require.LessOrEqual(t, m.LoadFactor(), linearMaxLoad)
	}
}

// A key resident beyond a tombstone must be overwritten in place, not
// duplicated into the tombstone.
func TestLinearPutAcrossTombstone(t *testing.T) {
	m := mustNew[int, int](t, Linear, 64, constHash[int, int](7))
	// All three keys share the probe chain starting at slot 7%64.
	m.Put(1, 1)
	m.Put(2, 2)
	m.Put(3, 3)
	require.True(t, m.Delete(1)) // tombstone at the chain head

	// 3 is resident past the tombstone; Put must find it there.
	m.Put(3, 33)
	require.EqualValues(t, 2, m.Len())
	v, ok := m.Get(3)
	require.True(t, ok)
	require.EqualValues(t, 33, v)

	// The tombstone is reusable for a genuinely new key.
	m.Put(4, 4)
	require.EqualValues(t, 3, m.Len())

	le := m.(*linearEngine[int, int])
	occupied := 0
	for i := range le.slots {
		if le.slots[i].state == slotOccupied {
			occupied++
		}
	}
	require.Equal(t, 3, occupied)
}

// Growth rehashes only live entries, shedding accumulated tombstones.
func TestLinearGrowthDropsTombstones(t *testing.T) {
	m := mustNew[int, int](t, Linear, 0)
	for i := 0; i < 1000; i++ {
		m.Put(i, i)
		require.True(t, m.Delete(i))
	}
	m.Put(0, 0)

	le := m.(*linearEngine[int, int])
	le.grow(2 * len(le.slots))
	for i := range le.slots {
		require.NotEqual(t, slotDeleted, le.slots[i].state)
	}
	v, ok := m.Get(0)
	require.True(t, ok)
	require.EqualValues(t, 0, v)
}

func TestLinearLookupHaltsAtEmpty(t *testing.T) {
	m := mustNew[int, int](t, Linear, 1024, WithSeed[int, int](1))
	for i := 0; i < 100; i++ {
		m.Put(i, i)
	}
	le := m.(*linearEngine[int, int])
	// Every occupied slot's key must be reachable by a probe walk from
	// its home that crosses only non-empty slots.
	for i := range le.slots {
		if le.slots[i].state != slotOccupied {
			continue
		}
		c := uint64(len(le.slots))
		home := le.hashOf(le.slots[i].key) % c
		for j := home; j != uint64(i); j = (j + 1) % c {
			require.NotEqual(t, slotEmpty, le.slots[j].state,
				"probe chain for key %d broken at slot %d", le.slots[i].key, j)
		}
	}
}
