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

import "fmt"

// maxSecondaryRebuilds bounds how many times a single secondary insert
// may rebuild and retry. Reached only when the hash collapses so badly
// that probing wraps a quadratic-capacity table repeatedly.
const maxSecondaryRebuilds = 32

// perfectEngine is a two-level scheme over a bucket count fixed at
// construction. Each top bucket owns a secondary table of quadratic
// capacity max(2n², 4), linearly probed under the shared hash and
// rebuilt whenever it passes half load. The quadratic capacity keeps
// expected collisions per secondary constant, so probe chains stay
// short. LoadFactor is measured against the top bucket count and may
// exceed 1.
type perfectEngine[K comparable, V any] struct {
	hasher[K]
	buckets []secondaryTable[K, V]
	used    int
}

// secondaryTable is the per-bucket open-addressed array. A zero value
// has capacity 0 and allocates on first insert.
type secondaryTable[K comparable, V any] struct {
	slots []perfectSlot[K, V]
	size  int
}

type perfectSlot[K comparable, V any] struct {
	key      K
	value    V
	occupied bool
}

func newPerfect[K comparable, V any](cfg config[K, V], initialCapacity int) *perfectEngine[K, V] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	return &perfectEngine[K, V]{
		hasher:  cfg.hasher(),
		buckets: make([]secondaryTable[K, V], initialCapacity),
	}
}

func (e *perfectEngine[K, V]) bucket(h uint64) *secondaryTable[K, V] {
	return &e.buckets[h%uint64(len(e.buckets))]
}

func secondaryCapacity(size int) int {
	if c := 2 * size * size; c > 4 {
		return c
	}
	return 4
}

// build sizes the table at max(2n², 4) for the n given entries and
// places them by linear probing. Placement cannot wrap: capacity is at
// least twice the entry count.
func (t *secondaryTable[K, V]) build(h func(K) uint64, entries []perfectSlot[K, V]) {
	t.size = len(entries)
	t.slots = make([]perfectSlot[K, V], secondaryCapacity(len(entries)))
	c := uint64(len(t.slots))
	for _, entry := range entries {
		i := h(entry.key) % c
		for t.slots[i].occupied {
			i = (i + 1) % c
		}
		t.slots[i] = entry
	}
}

func (t *secondaryTable[K, V]) rebuild(h func(K) uint64) {
	entries := make([]perfectSlot[K, V], 0, t.size)
	for i := range t.slots {
		if t.slots[i].occupied {
			entries = append(entries, t.slots[i])
		}
	}
	t.build(h, entries)
}

func (t *secondaryTable[K, V]) find(h func(K) uint64, key K) *perfectSlot[K, V] {
	if len(t.slots) == 0 {
		return nil
	}
	c := uint64(len(t.slots))
	i := h(key) % c
	for probes := uint64(0); probes < c; probes++ {
		s := &t.slots[i]
		if !s.occupied {
			return nil
		}
		if s.key == key {
			return s
		}
		i = (i + 1) % c
	}
	return nil
}

// put inserts or overwrites, reporting whether a new entry was created.
// A full probe cycle without an empty slot forces a rebuild and retry;
// the half-load rule makes that all but impossible, so exceeding the
// retry bound is a structural fault.
func (t *secondaryTable[K, V]) put(h func(K) uint64, key K, value V) bool {
	if len(t.slots) == 0 {
		t.build(h, []perfectSlot[K, V]{{key: key, value: value, occupied: true}})
		return true
	}
	for attempt := 0; attempt < maxSecondaryRebuilds; attempt++ {
		c := uint64(len(t.slots))
		i := h(key) % c
		for probes := uint64(0); probes < c; probes++ {
			s := &t.slots[i]
			if !s.occupied {
				*s = perfectSlot[K, V]{key: key, value: value, occupied: true}
				t.size++
				if t.size > len(t.slots)/2 {
					t.rebuild(h)
				}
				return true
			}
			if s.key == key {
				s.value = value
				return false
			}
			i = (i + 1) % c
		}
		t.rebuild(h)
	}
	panic(ErrRebuildBound)
}

// remove clears the key's slot and then reinserts the occupied run that
// follows it. Clearing alone would break the probe chains of keys that
// had probed past the removed slot.
func (t *secondaryTable[K, V]) remove(h func(K) uint64, key K) bool {
	if len(t.slots) == 0 {
		return false
	}
	c := uint64(len(t.slots))
	i := h(key) % c
	probes := uint64(0)
	for ; probes < c; probes++ {
		s := &t.slots[i]
		if !s.occupied {
			return false
		}
		if s.key == key {
			break
		}
		i = (i + 1) % c
	}
	if probes == c {
		return false
	}
	t.slots[i] = perfectSlot[K, V]{}
	t.size--
	for i = (i + 1) % c; t.slots[i].occupied; i = (i + 1) % c {
		entry := t.slots[i]
		t.slots[i] = perfectSlot[K, V]{}
		j := h(entry.key) % c
		for t.slots[j].occupied {
			j = (j + 1) % c
		}
		t.slots[j] = entry
	}
	return true
}

func (e *perfectEngine[K, V]) Put(key K, value V) {
	if e.bucket(e.hashOf(key)).put(e.hashOf, key, value) {
		e.used++
	}
	e.checkInvariants()
}

func (e *perfectEngine[K, V]) Get(key K) (value V, ok bool) {
	if s := e.bucket(e.hashOf(key)).find(e.hashOf, key); s != nil {
		return s.value, true
	}
	return value, false
}

func (e *perfectEngine[K, V]) Update(key K, value V) bool {
	if s := e.bucket(e.hashOf(key)).find(e.hashOf, key); s != nil {
		s.value = value
		return true
	}
	return false
}

func (e *perfectEngine[K, V]) Delete(key K) bool {
	if e.bucket(e.hashOf(key)).remove(e.hashOf, key) {
		e.used--
		e.checkInvariants()
		return true
	}
	return false
}

func (e *perfectEngine[K, V]) Len() int { return e.used }

func (e *perfectEngine[K, V]) Capacity() int { return len(e.buckets) }

func (e *perfectEngine[K, V]) LoadFactor() float64 {
	return float64(e.used) / float64(len(e.buckets))
}

func (e *perfectEngine[K, V]) Clear() {
	for i := range e.buckets {
		e.buckets[i] = secondaryTable[K, V]{}
	}
	e.used = 0
}

func (e *perfectEngine[K, V]) All(yield func(key K, value V) bool) {
	for b := range e.buckets {
		for i := range e.buckets[b].slots {
			s := &e.buckets[b].slots[i]
			if s.occupied {
				if !yield(s.key, s.value) {
					return
				}
			}
		}
	}
}

func (e *perfectEngine[K, V]) checkInvariants() {
	if invariants {
		used := 0
		for b := range e.buckets {
			t := &e.buckets[b]
			size := 0
			for i := range t.slots {
				if t.slots[i].occupied {
					size++
					if t.find(e.hashOf, t.slots[i].key) == nil {
						panic(fmt.Sprintf("invariant failed: bucket %d: %v unreachable from its home",
							b, t.slots[i].key))
					}
				}
			}
			if size != t.size {
				panic(fmt.Sprintf("invariant failed: bucket %d holds %d entries, size says %d",
					b, size, t.size))
			}
			if len(t.slots) > 0 && t.size > len(t.slots)/2 {
				panic(fmt.Sprintf("invariant failed: bucket %d at %d/%d exceeds half load",
					b, t.size, len(t.slots)))
			}
			used += size
		}
		if used != e.used {
			panic(fmt.Sprintf("invariant failed: found %d entries, but used count is %d",
				used, e.used))
		}
	}
}
