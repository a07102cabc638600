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
	"fmt"
	"math"
)

const (
	defaultFunnelDelta = 0.2

	minFunnelCapacity = 64

	// funnelGrowthRatio shapes the cascade: level ℓ gets a 0.75^ℓ share
	// of the non-overflow capacity.
	funnelGrowthRatio = 0.75

	// maxFunnelGrowRetries bounds consecutive doublings on behalf of a
	// single insert.
	maxFunnelGrowRetries = 8
)

// funnelEngine implements funnel hashing: α cascade levels of
// geometrically shrinking size, each partitioned into buckets of β
// slots, plus one overflow level split into a uniformly probed half and
// a two-choice half. An insert greedily scans the key's single bucket
// per cascade level and falls through to the overflow level; the
// cascade shape bounds worst-case probes by O(log²(1/δ)).
//
// Deletes mark slots Deleted. Deleted slots are transparent to probing
// while Empty slots halt it, so probe chains established at insert time
// survive any sequence of removals.
type funnelEngine[K comparable, V any] struct {
	hasher[K]
	// levels[0:len-1] is the cascade; levels[len-1] is the overflow
	// level.
	levels   [][]funnelSlot[K, V]
	capacity int
	used     int
	delta    float64
	alpha    int
	beta     int
}

type funnelSlot[K comparable, V any] struct {
	key   K
	value V
	state slotState
}

func newFunnel[K comparable, V any](cfg config[K, V], initialCapacity int) *funnelEngine[K, V] {
	capacity := initialCapacity
	if capacity < minFunnelCapacity {
		capacity = minFunnelCapacity
	}
	e := &funnelEngine[K, V]{
		hasher: cfg.hasher(),
		delta:  cfg.delta,
		alpha:  int(math.Ceil(4*math.Log2(1/cfg.delta) + 10)),
		beta:   int(math.Ceil(math.Log2(1 / cfg.delta))),
	}
	e.alloc(capacity)
	return e
}

// alloc builds the level schedule: reserve ⌈δ·n/2⌉ for overflow, hand
// out 0.75^ℓ shares of the rest rounded down to multiples of β, stop at
// the first level too small for a single bucket, and give all remaining
// slack to the overflow level. Level sizes always sum to n.
func (e *funnelEngine[K, V]) alloc(capacity int) {
	e.capacity = capacity
	minOverflow := int(math.Ceil(e.delta * float64(capacity) / 2))
	rem := capacity - minOverflow

	sum := 0.0
	for i := 0; i < e.alpha; i++ {
		sum += math.Pow(funnelGrowthRatio, float64(i))
	}
	e.levels = e.levels[:0]
	assigned := 0
	for i := 0; i < e.alpha; i++ {
		size := int(math.Floor(float64(rem) * math.Pow(funnelGrowthRatio, float64(i)) / sum))
		if size < e.beta {
			break
		}
		size -= size % e.beta
		e.levels = append(e.levels, make([]funnelSlot[K, V], size))
		assigned += size
	}
	e.levels = append(e.levels, make([]funnelSlot[K, V], capacity-assigned))
}

// bucketStart returns the offset of the key's bucket within cascade
// level lvl.
func (e *funnelEngine[K, V]) bucketStart(h uint64, lvl int) int {
	nbuckets := uint64(len(e.levels[lvl]) / e.beta)
	return int(derive(h, tagFunnelBucket^uint64(lvl))%nbuckets) * e.beta
}

// overflowLimit is the uniform-half trial count, ⌈log₂log₂(n+2)⌉.
func (e *funnelEngine[K, V]) overflowLimit() int {
	return int(math.Ceil(math.Log2(math.Log2(float64(e.capacity) + 2))))
}

func (e *funnelEngine[K, V]) find(key K) *funnelSlot[K, V] {
	h := e.hashOf(key)
	for lvl := 0; lvl < len(e.levels)-1; lvl++ {
		start := e.bucketStart(h, lvl)
		for j := 0; j < e.beta; j++ {
			s := &e.levels[lvl][start+j]
			if s.state == slotEmpty {
				break
			}
			if s.state == slotOccupied && s.key == key {
				return s
			}
		}
	}
	return e.findOverflow(h, key)
}

// findOverflow mirrors the overflow placement order exactly: uniform
// trials first, then the interleaved two-choice buckets, or a linear
// sweep of the second half when it is too small for two-choice
// bucketing. Halting at the first Empty slot is sound because inserts
// place at the first Empty or Deleted slot in this same order and
// Empty slots are never created by removal.
func (e *funnelEngine[K, V]) findOverflow(h uint64, key K) *funnelSlot[K, V] {
	ov := e.levels[len(e.levels)-1]
	half := len(ov) / 2
	limit := e.overflowLimit()
	if half > 0 {
		for t := 0; t < limit; t++ {
			s := &ov[derive(h, tagFunnelProbe^uint64(t))%uint64(half)]
			if s.state == slotEmpty {
				break
			}
			if s.state == slotOccupied && s.key == key {
				return s
			}
		}
	}
	bucketSize := 2 * limit
	if half >= 2*bucketSize {
		nbuckets := uint64(half / bucketSize)
		b1 := int(derive(h, tagFunnelBucket^uint64(len(e.levels)-1)) % nbuckets)
		b2 := int(derive(h^golden, tagFunnelBucket^uint64(len(e.levels)-1)) % nbuckets)
		for j := 0; j < bucketSize; j++ {
			for _, b := range [2]int{b1, b2} {
				s := &ov[half+b*bucketSize+j]
				if s.state == slotEmpty {
					return nil
				}
				if s.state == slotOccupied && s.key == key {
					return s
				}
			}
		}
		return nil
	}
	for i := half; i < len(ov); i++ {
		if ov[i].state == slotOccupied && ov[i].key == key {
			return &ov[i]
		}
	}
	return nil
}

// place tries to store a key known to be absent, reporting false when
// the cascade and the overflow level both decline.
func (e *funnelEngine[K, V]) place(key K, value V) bool {
	h := e.hashOf(key)
	for lvl := 0; lvl < len(e.levels)-1; lvl++ {
		start := e.bucketStart(h, lvl)
		for j := 0; j < e.beta; j++ {
			s := &e.levels[lvl][start+j]
			if s.state != slotOccupied {
				*s = funnelSlot[K, V]{key: key, value: value, state: slotOccupied}
				return true
			}
		}
	}
	return e.placeOverflow(h, key, value)
}

func (e *funnelEngine[K, V]) placeOverflow(h uint64, key K, value V) bool {
	ov := e.levels[len(e.levels)-1]
	half := len(ov) / 2
	limit := e.overflowLimit()
	if half > 0 {
		for t := 0; t < limit; t++ {
			s := &ov[derive(h, tagFunnelProbe^uint64(t))%uint64(half)]
			if s.state != slotOccupied {
				*s = funnelSlot[K, V]{key: key, value: value, state: slotOccupied}
				return true
			}
		}
	}
	bucketSize := 2 * limit
	if half >= 2*bucketSize {
		nbuckets := uint64(half / bucketSize)
		b1 := int(derive(h, tagFunnelBucket^uint64(len(e.levels)-1)) % nbuckets)
		b2 := int(derive(h^golden, tagFunnelBucket^uint64(len(e.levels)-1)) % nbuckets)
		for j := 0; j < bucketSize; j++ {
			for _, b := range [2]int{b1, b2} {
				s := &ov[half+b*bucketSize+j]
				if s.state != slotOccupied {
					*s = funnelSlot[K, V]{key: key, value: value, state: slotOccupied}
					return true
				}
			}
		}
		return false
	}
	for i := half; i < len(ov); i++ {
		if ov[i].state != slotOccupied {
			ov[i] = funnelSlot[K, V]{key: key, value: value, state: slotOccupied}
			return true
		}
	}
	return false
}

func (e *funnelEngine[K, V]) Put(key K, value V) {
	if s := e.find(key); s != nil {
		s.value = value
		return
	}
	for float64(e.used+1) > (1-e.delta)*float64(e.capacity) {
		e.grow()
	}
	for attempt := 0; !e.place(key, value); attempt++ {
		if attempt == maxFunnelGrowRetries {
			panic(ErrPlacementFailed)
		}
		e.grow()
	}
	e.used++
	e.checkInvariants()
}

func (e *funnelEngine[K, V]) grow() {
	entries := make([]funnelSlot[K, V], 0, e.used)
	for _, lvl := range e.levels {
		for i := range lvl {
			if lvl[i].state == slotOccupied {
				entries = append(entries, lvl[i])
			}
		}
	}
	capacity := 2 * e.capacity
	for attempt := 0; ; attempt++ {
		e.alloc(capacity)
		replaced := true
		for i := range entries {
			if !e.place(entries[i].key, entries[i].value) {
				replaced = false
				break
			}
		}
		if replaced {
			return
		}
		if attempt == maxFunnelGrowRetries {
			panic(ErrPlacementFailed)
		}
		capacity *= 2
	}
}

func (e *funnelEngine[K, V]) Get(key K) (value V, ok bool) {
	if s := e.find(key); s != nil {
		return s.value, true
	}
	return value, false
}

func (e *funnelEngine[K, V]) Update(key K, value V) bool {
	if s := e.find(key); s != nil {
		s.value = value
		return true
	}
	return false
}

func (e *funnelEngine[K, V]) Delete(key K) bool {
	s := e.find(key)
	if s == nil {
		return false
	}
	*s = funnelSlot[K, V]{state: slotDeleted}
	e.used--
	e.checkInvariants()
	return true
}

func (e *funnelEngine[K, V]) Len() int { return e.used }

func (e *funnelEngine[K, V]) Capacity() int { return e.capacity }

func (e *funnelEngine[K, V]) LoadFactor() float64 {
	return float64(e.used) / float64(e.capacity)
}

func (e *funnelEngine[K, V]) Clear() {
	for _, lvl := range e.levels {
		clear(lvl)
	}
	e.used = 0
}

func (e *funnelEngine[K, V]) All(yield func(key K, value V) bool) {
	for _, lvl := range e.levels {
		for i := range lvl {
			if lvl[i].state == slotOccupied {
				if !yield(lvl[i].key, lvl[i].value) {
					return
				}
			}
		}
	}
}

func (e *funnelEngine[K, V]) checkInvariants() {
	if invariants {
		used, capacity := 0, 0
		for lvl, slots := range e.levels {
			if lvl < len(e.levels)-1 && len(slots)%e.beta != 0 {
				panic(fmt.Sprintf("invariant failed: cascade level %d size %d not a multiple of β=%d",
					lvl, len(slots), e.beta))
			}
			for i := range slots {
				if slots[i].state == slotOccupied {
					used++
					if e.find(slots[i].key) == nil {
						panic(fmt.Sprintf("invariant failed: level %d holds %v outside its probe order",
							lvl, slots[i].key))
					}
				}
			}
			capacity += len(slots)
		}
		if used != e.used {
			panic(fmt.Sprintf("invariant failed: found %d entries, but used count is %d",
				used, e.used))
		}
		if capacity != e.capacity {
			panic(fmt.Sprintf("invariant failed: level sizes sum to %d, capacity says %d",
				capacity, e.capacity))
		}
	}
}
