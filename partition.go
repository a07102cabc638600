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
	"math/bits"

	"github.com/pkg/errors"
)

const (
	// defaultPartitionC is the head-room constant in the bucket capacity
	// polynomial ⌈log₂³N + c·log₂²N⌉.
	defaultPartitionC = 2.0

	minPartitionCapacity = 16

	partitionMaxLoad = 0.7

	// maxResaltAttempts bounds salt redraws for one bucket rebuild.
	maxResaltAttempts = 64
)

// partitionEngine partitions keys into buckets of log-polynomial
// capacity. Each bucket stores its entries densely and keeps a
// fingerprint index mapping a salted hash residue to the slot position,
// which makes lookup and delete single-map-probe operations. A
// fingerprint collision inside a bucket is resolved by redrawing that
// bucket's salt and reindexing it; the fingerprint domain is sized at
// the cube of the bucket capacity, so a redraw collides with
// probability O(1/capacity) and the resalt loop terminates fast.
type partitionEngine[K comparable, V any] struct {
	hasher[K]
	buckets   []partitionBucket[K, V]
	capacity  int
	bucketCap int
	fpDomain  uint64
	used      int
	c         float64
}

type partitionBucket[K comparable, V any] struct {
	entries []partitionEntry[K, V]
	index   map[uint64]int
	salt    uint64
}

type partitionEntry[K comparable, V any] struct {
	key   K
	value V
}

func newPartition[K comparable, V any](cfg config[K, V], initialCapacity int) *partitionEngine[K, V] {
	capacity := initialCapacity
	if capacity < minPartitionCapacity {
		capacity = minPartitionCapacity
	}
	e := &partitionEngine[K, V]{
		hasher: cfg.hasher(),
		c:      cfg.partitionC,
	}
	e.alloc(capacity)
	return e
}

// alloc derives the bucket geometry for capacity N: ⌊N/log₂³N⌋ buckets
// of capacity ⌈log₂³N + c·log₂²N⌉, and a power-of-two fingerprint
// domain of at least bucketCap³.
func (e *partitionEngine[K, V]) alloc(capacity int) {
	e.capacity = capacity
	lg := math.Log2(float64(capacity))
	count := int(float64(capacity) / (lg * lg * lg))
	if count < 1 {
		count = 1
	}
	e.bucketCap = int(math.Ceil(lg*lg*lg + e.c*lg*lg))
	e.fpDomain = uint64(1) << bits.Len64(uint64(e.bucketCap)*uint64(e.bucketCap)*uint64(e.bucketCap)-1)
	e.buckets = make([]partitionBucket[K, V], count)
	for i := range e.buckets {
		e.buckets[i].salt = tagPartitionFp ^ uint64(i)
	}
}

func (e *partitionEngine[K, V]) bucket(h uint64) *partitionBucket[K, V] {
	return &e.buckets[h%uint64(len(e.buckets))]
}

func (e *partitionEngine[K, V]) fingerprint(b *partitionBucket[K, V], h uint64) uint64 {
	return derive(h, b.salt) % e.fpDomain
}

func (e *partitionEngine[K, V]) Put(key K, value V) {
	if float64(e.used+1)/float64(e.capacity) >= partitionMaxLoad {
		e.grow()
	}
	h := e.hashOf(key)
	if e.put(e.bucket(h), h, key, value) {
		e.used++
	}
	e.checkInvariants()
}

// put inserts or overwrites within a bucket, reporting whether a new
// entry was created.
func (e *partitionEngine[K, V]) put(b *partitionBucket[K, V], h uint64, key K, value V) bool {
	if b.index == nil {
		b.index = make(map[uint64]int)
		b.entries = make([]partitionEntry[K, V], 0, e.bucketCap)
	}
	fp := e.fingerprint(b, h)
	if pos, ok := b.index[fp]; ok {
		if b.entries[pos].key == key {
			b.entries[pos].value = value
			return false
		}
		// Two resident keys share a fingerprint under the current salt.
		e.resalt(b, h)
		fp = e.fingerprint(b, h)
	}
	if len(b.entries) == e.bucketCap {
		panic(errors.Wrapf(ErrBucketOverflow, "%d entries", len(b.entries)))
	}
	b.entries = append(b.entries, partitionEntry[K, V]{key: key, value: value})
	b.index[fp] = len(b.entries) - 1
	return true
}

// resalt redraws the bucket's salt until every resident entry and the
// incoming hash fingerprint injectively.
func (e *partitionEngine[K, V]) resalt(b *partitionBucket[K, V], incoming uint64) {
	for attempt := 0; attempt < maxResaltAttempts; attempt++ {
		salt := fastrand64()
		index := make(map[uint64]int, len(b.entries)+1)
		index[derive(incoming, salt)%e.fpDomain] = -1
		ok := true
		for i := range b.entries {
			fp := derive(e.hashOf(b.entries[i].key), salt) % e.fpDomain
			if _, dup := index[fp]; dup {
				ok = false
				break
			}
			index[fp] = i
		}
		if ok {
			delete(index, derive(incoming, salt)%e.fpDomain)
			b.salt = salt
			b.index = index
			return
		}
	}
	panic(errors.Wrapf(ErrRebuildBound, "%d resalt attempts", maxResaltAttempts))
}

func (e *partitionEngine[K, V]) lookup(key K) (*partitionBucket[K, V], int) {
	h := e.hashOf(key)
	b := e.bucket(h)
	if b.index == nil {
		return b, -1
	}
	pos, ok := b.index[e.fingerprint(b, h)]
	if !ok || b.entries[pos].key != key {
		return b, -1
	}
	return b, pos
}

func (e *partitionEngine[K, V]) Get(key K) (value V, ok bool) {
	if b, pos := e.lookup(key); pos >= 0 {
		return b.entries[pos].value, true
	}
	return value, false
}

func (e *partitionEngine[K, V]) Update(key K, value V) bool {
	if b, pos := e.lookup(key); pos >= 0 {
		b.entries[pos].value = value
		return true
	}
	return false
}

// Delete swaps the last dense slot into the removed position so the
// entry array stays left-justified, then fixes the moved entry's
// fingerprint mapping.
func (e *partitionEngine[K, V]) Delete(key K) bool {
	b, pos := e.lookup(key)
	if pos < 0 {
		return false
	}
	fp := e.fingerprint(b, e.hashOf(key))
	last := len(b.entries) - 1
	if pos != last {
		b.entries[pos] = b.entries[last]
		b.index[e.fingerprint(b, e.hashOf(b.entries[pos].key))] = pos
	}
	b.entries[last] = partitionEntry[K, V]{}
	b.entries = b.entries[:last]
	delete(b.index, fp)
	e.used--
	e.checkInvariants()
	return true
}

func (e *partitionEngine[K, V]) grow() {
	old := e.buckets
	e.alloc(2 * e.capacity)
	for i := range old {
		for j := range old[i].entries {
			entry := &old[i].entries[j]
			h := e.hashOf(entry.key)
			e.put(e.bucket(h), h, entry.key, entry.value)
		}
	}
}

func (e *partitionEngine[K, V]) Len() int { return e.used }

func (e *partitionEngine[K, V]) Capacity() int { return e.capacity }

func (e *partitionEngine[K, V]) LoadFactor() float64 {
	return float64(e.used) / float64(e.capacity)
}

func (e *partitionEngine[K, V]) Clear() {
	for i := range e.buckets {
		e.buckets[i].entries = nil
		e.buckets[i].index = nil
	}
	e.used = 0
}

func (e *partitionEngine[K, V]) All(yield func(key K, value V) bool) {
	for i := range e.buckets {
		for j := range e.buckets[i].entries {
			if !yield(e.buckets[i].entries[j].key, e.buckets[i].entries[j].value) {
				return
			}
		}
	}
}

func (e *partitionEngine[K, V]) checkInvariants() {
	if invariants {
		used := 0
		for i := range e.buckets {
			b := &e.buckets[i]
			if len(b.entries) != len(b.index) {
				panic(errors.Errorf("invariant failed: bucket %d has %d entries but %d fingerprints",
					i, len(b.entries), len(b.index)))
			}
			for fp, pos := range b.index {
				if got := e.fingerprint(b, e.hashOf(b.entries[pos].key)); got != fp {
					panic(errors.Errorf("invariant failed: bucket %d slot %d indexed under %d, fingerprint is %d",
						i, pos, fp, got))
				}
			}
			used += len(b.entries)
		}
		if used != e.used {
			panic(errors.Errorf("invariant failed: found %d entries, but used count is %d",
				used, e.used))
		}
	}
}
