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

// chainNodeSlots is the entry capacity of one chain node. Four entries
// per node amortizes the pointer chase without bloating short chains.
const chainNodeSlots = 4

// chainedEngine is separate chaining over a bucket count fixed at
// construction. Chains are unrolled: each node packs several entries,
// kept dense from the head node down, so deletion is a swap with the
// head node's last entry. The bucket count never changes, which means
// LoadFactor exceeds 1 once Len passes the bucket count.
type chainedEngine[K comparable, V any] struct {
	hasher[K]
	buckets []*chainNode[K, V]
	used    int
}

type chainNode[K comparable, V any] struct {
	entries [chainNodeSlots]chainEntry[K, V]
	n       int
	next    *chainNode[K, V]
}

type chainEntry[K comparable, V any] struct {
	key   K
	value V
}

func newChained[K comparable, V any](cfg config[K, V], initialCapacity int) *chainedEngine[K, V] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	return &chainedEngine[K, V]{
		hasher:  cfg.hasher(),
		buckets: make([]*chainNode[K, V], initialCapacity),
	}
}

func (e *chainedEngine[K, V]) bucket(key K) uint64 {
	return e.hashOf(key) % uint64(len(e.buckets))
}

func (e *chainedEngine[K, V]) find(key K) *chainEntry[K, V] {
	for node := e.buckets[e.bucket(key)]; node != nil; node = node.next {
		for i := 0; i < node.n; i++ {
			if node.entries[i].key == key {
				return &node.entries[i]
			}
		}
	}
	return nil
}

func (e *chainedEngine[K, V]) Put(key K, value V) {
	if entry := e.find(key); entry != nil {
		entry.value = value
		return
	}
	b := e.bucket(key)
	head := e.buckets[b]
	if head == nil || head.n == chainNodeSlots {
		head = &chainNode[K, V]{next: e.buckets[b]}
		e.buckets[b] = head
	}
	head.entries[head.n] = chainEntry[K, V]{key: key, value: value}
	head.n++
	e.used++
	e.checkInvariants()
}

func (e *chainedEngine[K, V]) Get(key K) (value V, ok bool) {
	if entry := e.find(key); entry != nil {
		return entry.value, true
	}
	return value, false
}

func (e *chainedEngine[K, V]) Update(key K, value V) bool {
	if entry := e.find(key); entry != nil {
		entry.value = value
		return true
	}
	return false
}

func (e *chainedEngine[K, V]) Delete(key K) bool {
	entry := e.find(key)
	if entry == nil {
		return false
	}
	b := e.bucket(entry.key)
	head := e.buckets[b]
	*entry = head.entries[head.n-1]
	head.entries[head.n-1] = chainEntry[K, V]{}
	head.n--
	if head.n == 0 {
		e.buckets[b] = head.next
	}
	e.used--
	e.checkInvariants()
	return true
}

func (e *chainedEngine[K, V]) Len() int { return e.used }

func (e *chainedEngine[K, V]) Capacity() int { return len(e.buckets) }

func (e *chainedEngine[K, V]) LoadFactor() float64 {
	return float64(e.used) / float64(len(e.buckets))
}

func (e *chainedEngine[K, V]) Clear() {
	clear(e.buckets)
	e.used = 0
}

func (e *chainedEngine[K, V]) All(yield func(key K, value V) bool) {
	for _, node := range e.buckets {
		for ; node != nil; node = node.next {
			for i := 0; i < node.n; i++ {
				if !yield(node.entries[i].key, node.entries[i].value) {
					return
				}
			}
		}
	}
}

func (e *chainedEngine[K, V]) checkInvariants() {
	if invariants {
		used := 0
		for b, node := range e.buckets {
			for ; node != nil; node = node.next {
				if node.n == 0 {
					panic(fmt.Sprintf("invariant failed: bucket %d has an empty chain node", b))
				}
				// Only the head node may be partially filled.
				if node.next != nil && node.next.n != chainNodeSlots {
					panic(fmt.Sprintf("invariant failed: bucket %d has a partial interior node", b))
				}
				for i := 0; i < node.n; i++ {
					if got := e.bucket(node.entries[i].key); got != uint64(b) {
						panic(fmt.Sprintf("invariant failed: bucket %d holds %v, which hashes to bucket %d",
							b, node.entries[i].key, got))
					}
				}
				used += node.n
			}
		}
		if used != e.used {
			panic(fmt.Sprintf("invariant failed: found %d entries, but used count is %d",
				used, e.used))
		}
	}
}
