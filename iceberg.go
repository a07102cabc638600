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
	// icebergMaxLoad is the growth threshold over the slotted capacity.
	// Overflow chains absorb anything past it between growths, so the
	// bound is on occupancy, not correctness.
	icebergMaxLoad = 0.85

	// icebergLv1Slots and icebergLv2Slots are the per-block widths of
	// the primary and secondary levels.
	icebergLv1Slots = 64
	icebergLv2Slots = 8

	minIcebergBlocks = 1
)

// icebergEngine stores every key in one of three levels. The primary
// and secondary levels are arrays of fixed-width blocks; a key's
// primary and secondary block positions come from independent tag
// streams, so the secondary acts as a second choice when the primary
// block is full. Keys that miss both blocks go to an overflow chain
// anchored at the primary block. Lookups scan exactly one block per
// slotted level plus the chain, so the worst case is
// icebergLv1Slots + icebergLv2Slots + chain length probes.
type icebergEngine[K comparable, V any] struct {
	hasher[K]
	lv1    []icebergSlot[K, V] // blocks of icebergLv1Slots
	lv2    []icebergSlot[K, V] // blocks of icebergLv2Slots
	lv3    []*icebergNode[K, V]
	blocks int
	used   int
}

type icebergSlot[K comparable, V any] struct {
	key      K
	value    V
	occupied bool
}

type icebergNode[K comparable, V any] struct {
	key   K
	value V
	next  *icebergNode[K, V]
}

func newIceberg[K comparable, V any](cfg config[K, V], initialCapacity int) *icebergEngine[K, V] {
	perBlock := icebergLv1Slots + icebergLv2Slots
	blocks := (initialCapacity + perBlock - 1) / perBlock
	if blocks < minIcebergBlocks {
		blocks = minIcebergBlocks
	}
	e := &icebergEngine[K, V]{hasher: cfg.hasher()}
	e.alloc(blocks)
	return e
}

func (e *icebergEngine[K, V]) alloc(blocks int) {
	e.blocks = blocks
	e.lv1 = make([]icebergSlot[K, V], blocks*icebergLv1Slots)
	e.lv2 = make([]icebergSlot[K, V], blocks*icebergLv2Slots)
	e.lv3 = make([]*icebergNode[K, V], blocks)
}

// blockPair returns the key's primary and secondary block indices.
func (e *icebergEngine[K, V]) blockPair(h uint64) (int, int) {
	b := uint64(e.blocks)
	return int(derive(h, tagIcebergLv1) % b), int(derive(h, tagIcebergLv2) % b)
}

// find returns the resident value for key, or nil. All three levels are
// checked; removal leaves holes in the slotted blocks, so block scans
// never halt early.
func (e *icebergEngine[K, V]) find(key K) *V {
	b1, b2 := e.blockPair(e.hashOf(key))
	for j := 0; j < icebergLv1Slots; j++ {
		s := &e.lv1[b1*icebergLv1Slots+j]
		if s.occupied && s.key == key {
			return &s.value
		}
	}
	for j := 0; j < icebergLv2Slots; j++ {
		s := &e.lv2[b2*icebergLv2Slots+j]
		if s.occupied && s.key == key {
			return &s.value
		}
	}
	for n := e.lv3[b1]; n != nil; n = n.next {
		if n.key == key {
			return &n.value
		}
	}
	return nil
}

// place stores a key known to be absent: first hole in the primary
// block, then the secondary block, then a chain prepend. It cannot
// fail.
func (e *icebergEngine[K, V]) place(key K, value V) {
	b1, b2 := e.blockPair(e.hashOf(key))
	for j := 0; j < icebergLv1Slots; j++ {
		s := &e.lv1[b1*icebergLv1Slots+j]
		if !s.occupied {
			*s = icebergSlot[K, V]{key: key, value: value, occupied: true}
			return
		}
	}
	for j := 0; j < icebergLv2Slots; j++ {
		s := &e.lv2[b2*icebergLv2Slots+j]
		if !s.occupied {
			*s = icebergSlot[K, V]{key: key, value: value, occupied: true}
			return
		}
	}
	e.lv3[b1] = &icebergNode[K, V]{key: key, value: value, next: e.lv3[b1]}
}

func (e *icebergEngine[K, V]) Put(key K, value V) {
	// The overwrite check must cover all three levels before placement:
	// a key resident in the secondary or the chain would otherwise be
	// duplicated into a primary hole opened by a later delete.
	if v := e.find(key); v != nil {
		*v = value
		return
	}
	if float64(e.used+1) > icebergMaxLoad*float64(e.Capacity()) {
		e.grow()
	}
	e.place(key, value)
	e.used++
	e.checkInvariants()
}

func (e *icebergEngine[K, V]) grow() {
	entries := make([]icebergSlot[K, V], 0, e.used)
	for i := range e.lv1 {
		if e.lv1[i].occupied {
			entries = append(entries, e.lv1[i])
		}
	}
	for i := range e.lv2 {
		if e.lv2[i].occupied {
			entries = append(entries, e.lv2[i])
		}
	}
	for _, n := range e.lv3 {
		for ; n != nil; n = n.next {
			entries = append(entries, icebergSlot[K, V]{key: n.key, value: n.value})
		}
	}
	e.alloc(2 * e.blocks)
	for i := range entries {
		e.place(entries[i].key, entries[i].value)
	}
}

func (e *icebergEngine[K, V]) Get(key K) (value V, ok bool) {
	if v := e.find(key); v != nil {
		return *v, true
	}
	return value, false
}

func (e *icebergEngine[K, V]) Update(key K, value V) bool {
	if v := e.find(key); v != nil {
		*v = value
		return true
	}
	return false
}

func (e *icebergEngine[K, V]) Delete(key K) bool {
	b1, b2 := e.blockPair(e.hashOf(key))
	for j := 0; j < icebergLv1Slots; j++ {
		s := &e.lv1[b1*icebergLv1Slots+j]
		if s.occupied && s.key == key {
			*s = icebergSlot[K, V]{}
			e.used--
			e.checkInvariants()
			return true
		}
	}
	for j := 0; j < icebergLv2Slots; j++ {
		s := &e.lv2[b2*icebergLv2Slots+j]
		if s.occupied && s.key == key {
			*s = icebergSlot[K, V]{}
			e.used--
			e.checkInvariants()
			return true
		}
	}
	for p := &e.lv3[b1]; *p != nil; p = &(*p).next {
		if (*p).key == key {
			*p = (*p).next
			e.used--
			e.checkInvariants()
			return true
		}
	}
	return false
}

func (e *icebergEngine[K, V]) Len() int { return e.used }

func (e *icebergEngine[K, V]) Capacity() int {
	return e.blocks * (icebergLv1Slots + icebergLv2Slots)
}

func (e *icebergEngine[K, V]) LoadFactor() float64 {
	return float64(e.used) / float64(e.Capacity())
}

func (e *icebergEngine[K, V]) Clear() {
	clear(e.lv1)
	clear(e.lv2)
	clear(e.lv3)
	e.used = 0
}

func (e *icebergEngine[K, V]) All(yield func(key K, value V) bool) {
	for i := range e.lv1 {
		if e.lv1[i].occupied {
			if !yield(e.lv1[i].key, e.lv1[i].value) {
				return
			}
		}
	}
	for i := range e.lv2 {
		if e.lv2[i].occupied {
			if !yield(e.lv2[i].key, e.lv2[i].value) {
				return
			}
		}
	}
	for _, n := range e.lv3 {
		for ; n != nil; n = n.next {
			if !yield(n.key, n.value) {
				return
			}
		}
	}
}

func (e *icebergEngine[K, V]) checkInvariants() {
	if invariants {
		used := 0
		for i := range e.lv1 {
			if !e.lv1[i].occupied {
				continue
			}
			used++
			if b1, _ := e.blockPair(e.hashOf(e.lv1[i].key)); b1 != i/icebergLv1Slots {
				panic(fmt.Sprintf("invariant failed: primary slot %d holds %v, whose block is %d",
					i, e.lv1[i].key, b1))
			}
		}
		for i := range e.lv2 {
			if !e.lv2[i].occupied {
				continue
			}
			used++
			if _, b2 := e.blockPair(e.hashOf(e.lv2[i].key)); b2 != i/icebergLv2Slots {
				panic(fmt.Sprintf("invariant failed: secondary slot %d holds %v, whose block is %d",
					i, e.lv2[i].key, b2))
			}
		}
		for b, n := range e.lv3 {
			for ; n != nil; n = n.next {
				used++
				if b1, _ := e.blockPair(e.hashOf(n.key)); b1 != b {
					panic(fmt.Sprintf("invariant failed: chain %d holds %v, whose block is %d",
						b, n.key, b1))
				}
			}
		}
		if used != e.used {
			panic(fmt.Sprintf("invariant failed: found %d entries, but used count is %d",
				used, e.used))
		}
	}
}
