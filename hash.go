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

import "unsafe"

// golden is 2^64/phi, the increment of the splitmix64 stream. It doubles
// as the xor constant for the second bucket choice in the funnel
// overflow level.
const golden = 0x9e3779b97f4a7c15

// Tags for the per-engine probe streams. Every derived position an
// engine computes is derive(hash(key), tag) for a tag drawn from a
// distinct namespace, so the streams of different engines, levels and
// probe indices are statistically independent even when they share the
// same source hash. The values are arbitrary odd 64-bit constants.
const (
	tagCuckooLeft   = 0xc13fa9a902a6328f
	tagCuckooRight  = 0x91e10da5c79e7b1d
	tagElasticLevel = 0x8bb84b93962eacc9
	tagElasticProbe = 0x2545f4914f6cdd1d
	tagFunnelBucket = 0xd6e8feb86659fd93
	tagFunnelProbe  = 0xa0761d6478bd642f
	tagPartitionFp  = 0xe7037ed1a0b428db
	tagIcebergLv1   = 0x9ddfea08eb382d69
	tagIcebergLv2   = 0xff51afd7ed558ccd
)

// mix64 is the splitmix64 finalizer: an invertible mixer whose output is
// well distributed even on sequential inputs. Every engine-internal
// derivation bottoms out here; the quality of the probe sequences rests
// on this function, not on the caller-supplied hash.
func mix64(x uint64) uint64 {
	x += golden
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// derive builds a tagged stream from a source hash. Distinct tags yield
// independent streams; the engines use it for secondary hash functions,
// per-level probe positions, and bucket fingerprints.
func derive(h, tag uint64) uint64 {
	return mix64(h ^ tag)
}

// hasher carries the key hash function and its seed. Every engine embeds
// one; hashOf is the single entry point from a key to the 64-bit hash
// the probe machinery consumes.
type hasher[K comparable] struct {
	hash hashFn
	seed uintptr
}

func (h hasher[K]) hashOf(key K) uint64 {
	return uint64(h.hash(noescape(unsafe.Pointer(&key)), h.seed))
}
