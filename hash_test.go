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

func TestMix64(t *testing.T) {
	// Reference values of the splitmix64 sequence seeded with 0: the
	// n-th output is mix64(n*golden). The multiples wrap mod 2^64, so
	// they are computed at runtime.
	g := uint64(golden)
	require.EqualValues(t, uint64(0xE220A8397B1DCDAF), mix64(0))
	require.EqualValues(t, uint64(0x6E789E6AA1B965F4), mix64(g))
	require.EqualValues(t, uint64(0x06C45D188009454F), mix64(g+g))

	// Invertibility implies no two inputs share an output; spot-check a
	// dense input range for collisions anyway.
	seen := make(map[uint64]uint64, 1<<16)
	for i := uint64(0); i < 1<<16; i++ {
		m := mix64(i)
		if prev, ok := seen[m]; ok {
			t.Fatalf("mix64(%d) == mix64(%d) == %#x", i, prev, m)
		}
		seen[m] = i
	}
}

func TestDeriveStreams(t *testing.T) {
	tags := []uint64{
		tagCuckooLeft, tagCuckooRight,
		tagElasticLevel, tagElasticProbe,
		tagFunnelBucket, tagFunnelProbe,
		tagPartitionFp,
		tagIcebergLv1, tagIcebergLv2,
	}
	// Distinct tags must yield distinct values for the same source hash.
	for _, h := range []uint64{0, 1, ^uint64(0), golden} {
		seen := make(map[uint64]uint64, len(tags))
		for _, tag := range tags {
			d := derive(h, tag)
			if prev, ok := seen[d]; ok {
				t.Fatalf("derive(%#x, %#x) == derive(%#x, %#x)", h, tag, h, prev)
			}
			seen[d] = tag
		}
	}
}

// The elastic position formula must not collapse when the level and
// probe indices coincide: the level and probe streams carry different
// tags, so their xor never cancels.
func TestElasticPosNoCancellation(t *testing.T) {
	const size = 1 << 20
	for _, h := range []uint64{0, 42, ^uint64(0)} {
		positions := make(map[uint64]bool)
		for i := 0; i < 8; i++ {
			positions[pos(h, i, i, size)] = true
		}
		require.Greater(t, len(positions), 1, "diagonal positions collapsed for h=%#x", h)
	}
}
