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
	"math/bits"
)

const (
	// cuckooMaxLoad is the growth threshold over the combined capacity of
	// both tables. Two-position cuckoo degrades sharply past 50%, so we
	// grow a little before that.
	cuckooMaxLoad = 0.48

	minCuckooCapacity = 4

	// maxCuckooGrowRetries bounds consecutive grow-and-rebuild attempts
	// for a single insert. Exceeding it means the hash function cannot
	// spread keys across two positions at any table size.
	maxCuckooGrowRetries = 8
)

// cuckooEngine keeps two parallel tables. Every key has exactly one
// candidate slot per table, derived from its hash through the left and
// right tag streams, so lookups and deletes touch at most two slots.
// Inserts displace residents along an eviction chain that alternates
// tables, rebuilding into a doubled pair of tables when the chain
// exceeds its bound.
type cuckooEngine[K comparable, V any] struct {
	hasher[K]
	tables   [2][]cuckooSlot[K, V]
	tableCap int
	used     int
}

type cuckooSlot[K comparable, V any] struct {
	key      K
	value    V
	occupied bool
}

func newCuckoo[K comparable, V any](cfg config[K, V], initialCapacity int) *cuckooEngine[K, V] {
	perTable := (initialCapacity + 1) / 2
	if perTable < minCuckooCapacity {
		perTable = minCuckooCapacity
	}
	e := &cuckooEngine[K, V]{hasher: cfg.hasher()}
	e.alloc(perTable)
	return e
}

func (e *cuckooEngine[K, V]) alloc(perTable int) {
	e.tableCap = perTable
	e.tables[0] = make([]cuckooSlot[K, V], perTable)
	e.tables[1] = make([]cuckooSlot[K, V], perTable)
}

// pos returns the candidate slot index for hash h in the given table.
func (e *cuckooEngine[K, V]) pos(h uint64, table int) uint64 {
	if table == 0 {
		return derive(h, tagCuckooLeft) % uint64(e.tableCap)
	}
	return derive(h, tagCuckooRight) % uint64(e.tableCap)
}

func (e *cuckooEngine[K, V]) find(key K) *cuckooSlot[K, V] {
	h := e.hashOf(key)
	for t := 0; t < 2; t++ {
		s := &e.tables[t][e.pos(h, t)]
		if s.occupied && s.key == key {
			return s
		}
	}
	return nil
}

func (e *cuckooEngine[K, V]) Put(key K, value V) {
	if s := e.find(key); s != nil {
		s.value = value
		return
	}
	if float64(e.used+1)/float64(2*e.tableCap) > cuckooMaxLoad {
		e.rebuild(2*e.tableCap, key, value)
	} else if k, v, ok := e.place(key, value); !ok {
		e.rebuild(2*e.tableCap, k, v)
	}
	e.used++
	e.checkInvariants()
}

// place runs the eviction chain for a key known to be absent. On
// failure it returns ok=false along with the entry left holding the
// displacement baton; every other entry, the original key included, is
// resident in some slot at that point.
func (e *cuckooEngine[K, V]) place(key K, value V) (K, V, bool) {
	// Chains longer than a small multiple of log₂(capacity) almost
	// certainly cycle.
	maxKicks := 4 * (bits.Len(uint(e.tableCap)) + 1)
	t := 0
	for i := 0; i < maxKicks; i++ {
		s := &e.tables[t][e.pos(e.hashOf(key), t)]
		if !s.occupied {
			*s = cuckooSlot[K, V]{key: key, value: value, occupied: true}
			return key, value, true
		}
		s.key, key = key, s.key
		s.value, value = value, s.value
		t = 1 - t
	}
	return key, value, false
}

// rebuild moves every resident entry, plus the given unplaced entry,
// into a pair of tables of the given per-table capacity, doubling again
// as long as placement keeps failing.
func (e *cuckooEngine[K, V]) rebuild(perTable int, key K, value V) {
	entries := make([]cuckooSlot[K, V], 0, e.used+1)
	for t := 0; t < 2; t++ {
		for i := range e.tables[t] {
			if e.tables[t][i].occupied {
				entries = append(entries, e.tables[t][i])
			}
		}
	}
	entries = append(entries, cuckooSlot[K, V]{key: key, value: value, occupied: true})
	for retry := 0; retry < maxCuckooGrowRetries; retry++ {
		e.alloc(perTable)
		placed := true
		for i := range entries {
			// A mid-rebuild failure evicts an already placed entry, but the
			// next attempt reinserts from entries, so nothing is lost.
			if _, _, ok := e.place(entries[i].key, entries[i].value); !ok {
				placed = false
				break
			}
		}
		if placed {
			return
		}
		perTable *= 2
	}
	panic(ErrPlacementFailed)
}

func (e *cuckooEngine[K, V]) Get(key K) (value V, ok bool) {
	if s := e.find(key); s != nil {
		return s.value, true
	}
	return value, false
}

func (e *cuckooEngine[K, V]) Update(key K, value V) bool {
	if s := e.find(key); s != nil {
		s.value = value
		return true
	}
	return false
}

func (e *cuckooEngine[K, V]) Delete(key K) bool {
	s := e.find(key)
	if s == nil {
		return false
	}
	*s = cuckooSlot[K, V]{}
	e.used--
	e.checkInvariants()
	return true
}

func (e *cuckooEngine[K, V]) Len() int { return e.used }

func (e *cuckooEngine[K, V]) Capacity() int { return 2 * e.tableCap }

func (e *cuckooEngine[K, V]) LoadFactor() float64 {
	return float64(e.used) / float64(2*e.tableCap)
}

func (e *cuckooEngine[K, V]) Clear() {
	clear(e.tables[0])
	clear(e.tables[1])
	e.used = 0
}

func (e *cuckooEngine[K, V]) All(yield func(key K, value V) bool) {
	for t := 0; t < 2; t++ {
		for i := range e.tables[t] {
			if e.tables[t][i].occupied {
				if !yield(e.tables[t][i].key, e.tables[t][i].value) {
					return
				}
			}
		}
	}
}

func (e *cuckooEngine[K, V]) checkInvariants() {
	if invariants {
		used := 0
		for t := 0; t < 2; t++ {
			for i := range e.tables[t] {
				s := &e.tables[t][i]
				if !s.occupied {
					continue
				}
				used++
				if want := e.pos(e.hashOf(s.key), t); want != uint64(i) {
					panic(fmt.Sprintf("invariant failed: table %d slot %d holds %v, whose candidate is %d",
						t, i, s.key, want))
				}
			}
		}
		if used != e.used {
			panic(fmt.Sprintf("invariant failed: found %d occupied slots, but used count is %d",
				used, e.used))
		}
	}
}
