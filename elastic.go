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
	// elasticC scales the per-level probe budgets.
	elasticC = 4.0

	defaultElasticDelta = 0.1

	minElasticCapacity = 4
)

// elasticEngine lays its slots out in geometrically shrinking levels:
// level sizes come from repeatedly halving the remaining capacity, with
// the tail going to a final level. Inserts walk the levels front to
// back, spending a budget of probes per level that shrinks as the level
// and the table fill, which biases entries into the big early levels
// while they have room. Reads probe every level with one fixed budget
// derived from δ; inserts never exceed that budget because growth keeps
// the global free fraction at δ or above, so a placed key is always
// findable.
type elasticEngine[K comparable, V any] struct {
	hasher[K]
	levels    []elasticLevel[K, V]
	capacity  int
	used      int
	delta     float64
	maxProbes int
}

type elasticLevel[K comparable, V any] struct {
	slots    []elasticSlot[K, V]
	occupied int
}

type elasticSlot[K comparable, V any] struct {
	key      K
	value    V
	occupied bool
}

func newElastic[K comparable, V any](cfg config[K, V], initialCapacity int) *elasticEngine[K, V] {
	capacity := initialCapacity
	if capacity < minElasticCapacity {
		capacity = minElasticCapacity
	}
	e := &elasticEngine[K, V]{
		hasher:    cfg.hasher(),
		delta:     cfg.delta,
		maxProbes: int(math.Ceil(elasticC * math.Log2(1/cfg.delta))),
	}
	e.alloc(capacity)
	return e
}

// alloc builds the level schedule for the given capacity: halve the
// remainder per level, tail level takes the rest.
func (e *elasticEngine[K, V]) alloc(capacity int) {
	e.capacity = capacity
	e.levels = e.levels[:0]
	rem := capacity
	for rem > 1 {
		size := rem / 2
		e.levels = append(e.levels, elasticLevel[K, V]{slots: make([]elasticSlot[K, V], size)})
		rem -= size
	}
	e.levels = append(e.levels, elasticLevel[K, V]{slots: make([]elasticSlot[K, V], rem)})
}

// pos is the j-th probe position for hash h in level ℓ. The level and
// probe streams are tagged separately so the combination never
// collapses to a constant.
func pos(h uint64, level, probe int, size int) uint64 {
	p := derive(h, tagElasticLevel^uint64(level)) ^ derive(h, tagElasticProbe^uint64(probe))
	return p % uint64(size)
}

func (e *elasticEngine[K, V]) find(key K) (*elasticLevel[K, V], *elasticSlot[K, V]) {
	h := e.hashOf(key)
	for l := range e.levels {
		lvl := &e.levels[l]
		for j := 0; j < e.maxProbes; j++ {
			s := &lvl.slots[pos(h, l, j, len(lvl.slots))]
			// Deletes clear slots outright, so an empty slot proves
			// nothing; the whole budget is probed.
			if s.occupied && s.key == key {
				return lvl, s
			}
		}
	}
	return nil, nil
}

// budget is the insert probe allowance for a level: the scaled minimum
// of the local and global fill pressures, at least 1, never above the
// fixed read budget.
func (e *elasticEngine[K, V]) budget(lvl *elasticLevel[K, V]) int {
	limit := math.Log2(1 / e.delta)
	local, global := limit, limit
	if free := float64(len(lvl.slots)-lvl.occupied) / float64(len(lvl.slots)); free > 0 {
		local = math.Log2(1 / free)
	}
	if free := float64(e.capacity-e.used) / float64(e.capacity); free > 0 {
		global = math.Log2(1 / free)
	}
	b := int(math.Ceil(elasticC * math.Min(local, global)))
	if b < 1 {
		b = 1
	}
	if b > e.maxProbes {
		b = e.maxProbes
	}
	return b
}

// place tries to put a key known to be absent, reporting false when
// every level declines within its budget.
func (e *elasticEngine[K, V]) place(key K, value V) bool {
	h := e.hashOf(key)
	for l := range e.levels {
		lvl := &e.levels[l]
		probes := e.budget(lvl)
		for j := 0; j < probes; j++ {
			s := &lvl.slots[pos(h, l, j, len(lvl.slots))]
			if !s.occupied {
				*s = elasticSlot[K, V]{key: key, value: value, occupied: true}
				lvl.occupied++
				return true
			}
		}
	}
	return false
}

func (e *elasticEngine[K, V]) Put(key K, value V) {
	if _, s := e.find(key); s != nil {
		s.value = value
		return
	}
	// Keep the global free fraction at δ or above so insert budgets stay
	// within the read budget.
	for float64(e.used+1) > (1-e.delta)*float64(e.capacity) {
		e.grow()
	}
	for !e.place(key, value) {
		e.grow()
	}
	e.used++
	e.checkInvariants()
}

func (e *elasticEngine[K, V]) grow() {
	entries := make([]elasticSlot[K, V], 0, e.used)
	for l := range e.levels {
		for i := range e.levels[l].slots {
			if e.levels[l].slots[i].occupied {
				entries = append(entries, e.levels[l].slots[i])
			}
		}
	}
	capacity := 2 * e.capacity
	for {
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
		// Doubling again adds a level, and with it at least one more
		// reachable slot per key, so this terminates.
		capacity *= 2
	}
}

func (e *elasticEngine[K, V]) Get(key K) (value V, ok bool) {
	if _, s := e.find(key); s != nil {
		return s.value, true
	}
	return value, false
}

func (e *elasticEngine[K, V]) Update(key K, value V) bool {
	if _, s := e.find(key); s != nil {
		s.value = value
		return true
	}
	return false
}

func (e *elasticEngine[K, V]) Delete(key K) bool {
	lvl, s := e.find(key)
	if s == nil {
		return false
	}
	*s = elasticSlot[K, V]{}
	lvl.occupied--
	e.used--
	e.checkInvariants()
	return true
}

func (e *elasticEngine[K, V]) Len() int { return e.used }

func (e *elasticEngine[K, V]) Capacity() int { return e.capacity }

func (e *elasticEngine[K, V]) LoadFactor() float64 {
	return float64(e.used) / float64(e.capacity)
}

func (e *elasticEngine[K, V]) Clear() {
	for l := range e.levels {
		clear(e.levels[l].slots)
		e.levels[l].occupied = 0
	}
	e.used = 0
}

func (e *elasticEngine[K, V]) All(yield func(key K, value V) bool) {
	for l := range e.levels {
		for i := range e.levels[l].slots {
			s := &e.levels[l].slots[i]
			if s.occupied {
				if !yield(s.key, s.value) {
					return
				}
			}
		}
	}
}

func (e *elasticEngine[K, V]) checkInvariants() {
	if invariants {
		used, capacity := 0, 0
		for l := range e.levels {
			occupied := 0
			for i := range e.levels[l].slots {
				s := &e.levels[l].slots[i]
				if s.occupied {
					occupied++
					if _, found := e.find(s.key); found == nil {
						panic(fmt.Sprintf("invariant failed: level %d holds %v outside the read budget",
							l, s.key))
					}
				}
			}
			if occupied != e.levels[l].occupied {
				panic(fmt.Sprintf("invariant failed: level %d has %d occupied slots, count says %d",
					l, occupied, e.levels[l].occupied))
			}
			used += occupied
			capacity += len(e.levels[l].slots)
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
