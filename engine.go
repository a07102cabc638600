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

// Package probekit is a family of in-memory hash table engines that
// share one key/value contract but differ fundamentally in collision
// resolution and layout: open addressing with linear probing, two-table
// cuckoo displacement, fixed-bucket separate chaining, two-level perfect
// hashing, multi-level elastic hashing, funnel hashing with a split
// overflow level, an indexed-partition scheme with per-bucket
// fingerprint maps, and three-level iceberg hashing with per-block
// overflow chains. The point of keeping eight engines behind one
// interface is to make their probing regimes directly measurable against
// each other; cmd/probebench does exactly that.
//
// All engines hash keys with the function the Go runtime uses for
// map[K]struct{} (see runtime_hash.go), overridable per engine with
// WithHash. Engine-internal probe sequences, secondary hashes and
// fingerprints are derived from that single 64-bit hash through tagged
// splitmix64 streams (see hash.go), so an engine never asks for more
// than one hash of a key per operation.
//
// Engines are not goroutine-safe and growth happens internally: either
// the pre-growth or the post-growth table is observable, never a
// partially migrated one.
package probekit

import (
	"math"

	"github.com/pkg/errors"
)

// Kind selects an engine implementation at construction time. The
// contract is identical across kinds; the probing regime is not.
type Kind uint8

const (
	// Linear is open addressing with linear probing, tombstones on
	// delete, and doubling growth at load factor 0.6.
	Linear Kind = iota
	// Cuckoo keeps two parallel tables and displaces residents along a
	// bounded eviction chain; growth doubles both tables.
	Cuckoo
	// Chained is separate chaining over a bucket count fixed at
	// construction; its load factor may exceed 1.
	Chained
	// Perfect is a two-level scheme: top buckets each owning an
	// open-addressed secondary of quadratic capacity, rebuilt whenever a
	// collision or the half-load bound demands it.
	Perfect
	// Elastic lays slots out in geometrically shrinking levels and
	// spends a per-level probe budget driven by local and global free
	// fractions.
	Elastic
	// Funnel cascades fixed-size buckets through geometrically shrinking
	// levels and spills into an overflow level split into a uniform half
	// and a two-choice half.
	Funnel
	// IndexedPartition partitions keys into buckets of log-polynomial
	// capacity, each indexed by a salted fingerprint map for constant
	// time lookup and delete.
	IndexedPartition
	// Iceberg stores each key in one of three levels: a wide primary
	// block, a small secondary block at an independent position, or an
	// unbounded overflow chain anchored at the primary block. Growth
	// doubles the block count at load factor 0.85.
	Iceberg

	numKinds
)

var kindNames = [numKinds]string{
	Linear:           "linear",
	Cuckoo:           "cuckoo",
	Chained:          "chained",
	Perfect:          "perfect",
	Elastic:          "elastic",
	Funnel:           "funnel",
	IndexedPartition: "indexed_partition",
	Iceberg:          "iceberg",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Kinds returns every engine kind, in declaration order. Intended for
// harnesses and tests that sweep the whole family.
func Kinds() []Kind {
	kinds := make([]Kind, numKinds)
	for i := range kinds {
		kinds[i] = Kind(i)
	}
	return kinds
}

// ParseKind maps the names used by cmd/probebench (and Kind.String)
// back to kinds.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, errors.Errorf("probekit: unknown engine kind %q", s)
}

// Structural faults. These indicate an engine bug or an adversarial
// hash function, not a recoverable condition; the engine methods panic
// with one of these values.
var (
	// ErrBucketOverflow reports that an indexed-partition bucket
	// exhausted its dense slot capacity.
	ErrBucketOverflow = errors.New("probekit: partition bucket exhausted its dense capacity")
	// ErrPlacementFailed reports that an engine could not place an entry
	// even after repeatedly growing.
	ErrPlacementFailed = errors.New("probekit: placement failed after repeated growth")
	// ErrRebuildBound reports that a rebuild or resalt loop exceeded its
	// retry bound.
	ErrRebuildBound = errors.New("probekit: rebuild retry bound exceeded")
)

// Engine is the contract every probekit hash table implements. An
// Engine is NOT goroutine-safe. Values are stored and returned by copy;
// callers never hold references into engine storage.
type Engine[K comparable, V any] interface {
	// Put inserts an entry, overwriting the value if an entry with the
	// same key already exists. May trigger internal growth.
	Put(key K, value V)
	// Get returns the value associated with key, or ok=false.
	Get(key K) (value V, ok bool)
	// Update overwrites the value for a present key and returns true; it
	// returns false without inserting if the key is absent.
	Update(key K, value V) bool
	// Delete erases the entry for key and reports whether it was
	// present.
	Delete(key K) bool
	// Len returns the number of entries.
	Len() int
	// Capacity returns the engine-specific load factor denominator.
	Capacity() int
	// LoadFactor returns Len divided by Capacity. For the Chained kind
	// it may exceed 1.
	LoadFactor() float64
	// Clear removes all entries, retaining capacity.
	Clear()
	// All calls yield for each entry until yield returns false. The
	// iteration order is unspecified and mutation during iteration has
	// no visibility guarantee.
	All(yield func(key K, value V) bool)
}

// config collects everything an engine constructor needs. Options
// mutate it before validation.
type config[K comparable, V any] struct {
	kind       Kind
	hash       hashFn
	seed       uintptr
	delta      float64
	partitionC float64
}

func defaultConfig[K comparable, V any](kind Kind) config[K, V] {
	cfg := config[K, V]{
		kind:       kind,
		hash:       getRuntimeHasher[K](),
		seed:       uintptr(fastrand64()),
		partitionC: defaultPartitionC,
	}
	switch kind {
	case Elastic:
		cfg.delta = defaultElasticDelta
	case Funnel:
		cfg.delta = defaultFunnelDelta
	}
	return cfg
}

func (c *config[K, V]) validate() error {
	switch c.kind {
	case Elastic, Funnel:
		if math.IsNaN(c.delta) || c.delta <= 0 || c.delta >= 1 {
			return errors.Errorf("probekit: delta %v outside (0, 1)", c.delta)
		}
	case IndexedPartition:
		if math.IsNaN(c.partitionC) || c.partitionC < 0 {
			return errors.Errorf("probekit: partition constant %v is negative", c.partitionC)
		}
	}
	return nil
}

func (c *config[K, V]) hasher() hasher[K] {
	return hasher[K]{hash: c.hash, seed: c.seed}
}

// New constructs an engine of the given kind with the specified initial
// capacity. A small initial capacity is legal for every kind; engines
// with structural minimums (funnel level geometry, partition sizing
// polynomials) clamp it upward, and Capacity reports the clamped value.
// Construction fails on a negative capacity, an out-of-range option, or
// an unknown kind.
func New[K comparable, V any](kind Kind, initialCapacity int, options ...option[K, V]) (Engine[K, V], error) {
	if initialCapacity < 0 {
		return nil, errors.Errorf("probekit: negative initial capacity %d", initialCapacity)
	}
	cfg := defaultConfig[K, V](kind)
	for _, op := range options {
		op.apply(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	switch kind {
	case Linear:
		return newLinear(cfg, initialCapacity), nil
	case Cuckoo:
		return newCuckoo(cfg, initialCapacity), nil
	case Chained:
		return newChained(cfg, initialCapacity), nil
	case Perfect:
		return newPerfect(cfg, initialCapacity), nil
	case Elastic:
		return newElastic(cfg, initialCapacity), nil
	case Funnel:
		return newFunnel(cfg, initialCapacity), nil
	case IndexedPartition:
		return newPartition(cfg, initialCapacity), nil
	case Iceberg:
		return newIceberg(cfg, initialCapacity), nil
	default:
		return nil, errors.Errorf("probekit: unknown engine kind %d", kind)
	}
}

// slotState is the three-state slot marker shared by the open-addressing
// style engines. Engines that never need tombstones only ever use the
// first two states.
type slotState uint8

const (
	slotEmpty slotState = iota
	slotOccupied
	slotDeleted
)
