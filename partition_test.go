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

func TestPartitionGeometry(t *testing.T) {
	for _, capacity := range []int{16, 1024, 1 << 16} {
		m := mustNew[int, int](t, IndexedPartition, capacity)
		pe := m.(*partitionEngine[int, int])

		lg := math.Log2(float64(capacity))
		wantCount := int(float64(capacity) / (lg * lg * lg))
		if wantCount < 1 {
			wantCount = 1
		}
		require.Equal(t, wantCount, len(pe.buckets))
		require.Equal(t, int(math.Ceil(lg*lg*lg+defaultPartitionC*lg*lg)), pe.bucketCap)

		// The fingerprint domain is a power of two of at least the cube
		// of the bucket capacity.
		require.Zero(t, pe.fpDomain&(pe.fpDomain-1))
		cube := uint64(pe.bucketCap) * uint64(pe.bucketCap) * uint64(pe.bucketCap)
		require.GreaterOrEqual(t, pe.fpDomain, cube)
		require.Less(t, pe.fpDomain/2, cube)
	}
}

// The fingerprint index is a bijection onto the dense slots: every
// entry is indexed under exactly the fingerprint of its key, and no two
// entries of a bucket share one.
func TestPartitionFingerprintIndex(t *testing.T) {
	m := mustNew[int, int](t, IndexedPartition, 0)
	for i := 0; i < 20000; i++ {
		m.Put(i, i)
	}
	pe := m.(*partitionEngine[int, int])
	total := 0
	for i := range pe.buckets {
		b := &pe.buckets[i]
		require.Equal(t, len(b.entries), len(b.index), "bucket %d", i)
		positions := make(map[int]bool, len(b.index))
		for fp, pos := range b.index {
			require.False(t, positions[pos])
			positions[pos] = true
			require.Equal(t, fp, pe.fingerprint(b, pe.hashOf(b.entries[pos].key)))
		}
		total += len(b.entries)
	}
	require.Equal(t, 20000, total)
}

func TestPartitionGrowth(t *testing.T) {
	m := mustNew[int, int](t, IndexedPartition, 0)
	for i := 0; i < 100000; i++ {
		m.Put(i, i)
		require.Less(t, m.LoadFactor(), partitionMaxLoad)
	}
	for i := 0; i < 100000; i++ {
		v, ok := m.Get(i)
		require.True(t, ok)
		require.EqualValues(t, i, v)
	}
}

// Delete keeps the dense arrays left-justified by swapping the last
// slot into the hole and re-pointing its fingerprint.
func TestPartitionSwapLastDelete(t *testing.T) {
	m := mustNew[int, int](t, IndexedPartition, 0)
	const count = 5000
	for i := 0; i < count; i++ {
		m.Put(i, i*3)
	}
	for i := 0; i < count; i += 2 {
		require.True(t, m.Delete(i))
	}
	pe := m.(*partitionEngine[int, int])
	for i := range pe.buckets {
		b := &pe.buckets[i]
		require.Equal(t, len(b.entries), len(b.index))
		for fp, pos := range b.index {
			require.Less(t, pos, len(b.entries))
			require.Equal(t, fp, pe.fingerprint(b, pe.hashOf(b.entries[pos].key)))
		}
	}
	for i := 1; i < count; i += 2 {
		v, ok := m.Get(i)
		require.True(t, ok)
		require.EqualValues(t, i*3, v)
	}
	require.EqualValues(t, count/2, m.Len())
}

// Force a fingerprint collision between two distinct hashes and verify
// the bucket resalts instead of corrupting its index.
func TestPartitionResalt(t *testing.T) {
	hashes := map[int]uintptr{1: 100}
	m := mustNew[int, int](t, IndexedPartition, 0,
		WithHash[int, int](func(key *int, seed uintptr) uintptr {
			return hashes[*key]
		}))
	pe := m.(*partitionEngine[int, int])

	m.Put(1, 1)

	// Find a second hash that lands in the same bucket with the same
	// fingerprint under the current salt.
	b := pe.bucket(100)
	salt := b.salt
	count := uint64(len(pe.buckets))
	target := derive(100, salt) % pe.fpDomain
	h2 := uint64(0)
	for h := uint64(0); ; h++ {
		if h != 100 && h%count == 100%count && derive(h, salt)%pe.fpDomain == target {
			h2 = h
			break
		}
	}
	hashes[2] = uintptr(h2)

	m.Put(2, 2)
	require.NotEqual(t, salt, b.salt, "bucket kept a colliding salt")
	require.EqualValues(t, 2, m.Len())
	for _, k := range []int{1, 2} {
		v, ok := m.Get(k)
		require.True(t, ok)
		require.EqualValues(t, k, v)
	}
}
