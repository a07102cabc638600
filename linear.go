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

const (
	// linearMaxLoad is the growth threshold: inserting past it doubles
	// the table.
	linearMaxLoad = 0.6

	minLinearCapacity = 4
)

// linearEngine is open addressing with linear probing. Deletes leave
// tombstones so that probe chains stay intact; growth rehashes only the
// occupied slots, which drops accumulated tombstones.
type linearEngine[K comparable, V any] struct {
	hasher[K]
	slots []linearSlot[K, V]
	used  int
}

type linearSlot[K comparable, V any] struct {
	key   K
	value V
	state slotState
}

func newLinear[K comparable, V any](cfg config[K, V], initialCapacity int) *linearEngine[K, V] {
	capacity := initialCapacity
	if capacity < minLinearCapacity {
		capacity = minLinearCapacity
	}
	return &linearEngine[K, V]{
		hasher: cfg.hasher(),
		slots:  make([]linearSlot[K, V], capacity),
	}
}

func (e *linearEngine[K, V]) Put(key K, value V) {
	if float64(e.used+1)/float64(len(e.slots)) > linearMaxLoad {
		e.grow(2 * len(e.slots))
	}
	if e.put(e.hashOf(key), key, value) {
		e.used++
	}
	e.checkInvariants()
}

// put places key, reporting whether a new entry was created. The probe
// walk must reach the first Empty slot before committing to a tombstone:
// the key may be resident beyond the tombstone, and placing early would
// duplicate it.
func (e *linearEngine[K, V]) put(h uint64, key K, value V) bool {
	c := uint64(len(e.slots))
	home := h % c
	tombstone := -1
	for i := uint64(0); i < c; i++ {
		s := &e.slots[(home+i)%c]
		switch s.state {
		case slotEmpty:
			if tombstone >= 0 {
				s = &e.slots[tombstone]
			}
			*s = linearSlot[K, V]{key: key, value: value, state: slotOccupied}
			return true
		case slotDeleted:
			if tombstone < 0 {
				tombstone = int((home + i) % c)
			}
		case slotOccupied:
			if s.key == key {
				s.value = value
				return false
			}
		}
	}
	// Every slot is occupied or deleted. The load policy keeps occupancy
	// at or below 60%, so a tombstone exists.
	e.slots[tombstone] = linearSlot[K, V]{key: key, value: value, state: slotOccupied}
	return true
}

// find returns the occupied slot holding key, or nil. Probing halts at
// the first Empty slot or after a full cycle; tombstones are
// transparent.
func (e *linearEngine[K, V]) find(key K) *linearSlot[K, V] {
	c := uint64(len(e.slots))
	home := e.hashOf(key) % c
	for i := uint64(0); i < c; i++ {
		s := &e.slots[(home+i)%c]
		if s.state == slotEmpty {
			return nil
		}
		if s.state == slotOccupied && s.key == key {
			return s
		}
	}
	return nil
}

func (e *linearEngine[K, V]) Get(key K) (value V, ok bool) {
	if s := e.find(key); s != nil {
		return s.value, true
	}
	return value, false
}

func (e *linearEngine[K, V]) Update(key K, value V) bool {
	if s := e.find(key); s != nil {
		s.value = value
		return true
	}
	return false
}

func (e *linearEngine[K, V]) Delete(key K) bool {
	s := e.find(key)
	if s == nil {
		return false
	}
	*s = linearSlot[K, V]{state: slotDeleted}
	e.used--
	e.checkInvariants()
	return true
}

func (e *linearEngine[K, V]) Len() int { return e.used }

func (e *linearEngine[K, V]) Capacity() int { return len(e.slots) }

func (e *linearEngine[K, V]) LoadFactor() float64 {
	return float64(e.used) / float64(len(e.slots))
}

func (e *linearEngine[K, V]) Clear() {
	clear(e.slots)
	e.used = 0
}

func (e *linearEngine[K, V]) All(yield func(key K, value V) bool) {
	for i := range e.slots {
		if e.slots[i].state == slotOccupied {
			if !yield(e.slots[i].key, e.slots[i].value) {
				return
			}
		}
	}
}

func (e *linearEngine[K, V]) grow(newCapacity int) {
	old := e.slots
	e.slots = make([]linearSlot[K, V], newCapacity)
	for i := range old {
		if old[i].state == slotOccupied {
			e.put(e.hashOf(old[i].key), old[i].key, old[i].value)
		}
	}
}

func (e *linearEngine[K, V]) checkInvariants() {
	if invariants {
		used := 0
		for i := range e.slots {
			if e.slots[i].state != slotOccupied {
				continue
			}
			used++
			if _, ok := e.Get(e.slots[i].key); !ok {
				panic(fmt.Sprintf("invariant failed: slot(%d): %v not reachable from its home",
					i, e.slots[i].key))
			}
		}
		if used != e.used {
			panic(fmt.Sprintf("invariant failed: found %d occupied slots, but used count is %d",
				used, e.used))
		}
	}
}
