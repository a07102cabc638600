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

// option provides an interface to do work on the engine configuration
// while it is being created.
type option[K comparable, V any] interface {
	apply(cfg *config[K, V])
}

type hashOption[K comparable, V any] struct {
	hash func(key *K, seed uintptr) uintptr
}

func (op hashOption[K, V]) apply(cfg *config[K, V]) {
	cfg.hash = *(*hashFn)(noescape(unsafe.Pointer(&op.hash)))
}

// WithHash is an option to specify the hash function to use instead of
// the one extracted from the Go runtime. The function must be pure: an
// engine assumes hash(k, seed) is stable for the lifetime of the
// engine.
func WithHash[K comparable, V any](hash func(key *K, seed uintptr) uintptr) option[K, V] {
	return hashOption[K, V]{hash}
}

type seedOption[K comparable, V any] struct {
	seed uintptr
}

func (op seedOption[K, V]) apply(cfg *config[K, V]) {
	cfg.seed = op.seed
}

// WithSeed pins the hash seed, making probe sequences reproducible
// across runs. Intended for benchmarks and debugging; the default is a
// fresh random seed per engine.
func WithSeed[K comparable, V any](seed uintptr) option[K, V] {
	return seedOption[K, V]{seed}
}

type deltaOption[K comparable, V any] struct {
	delta float64
}

func (op deltaOption[K, V]) apply(cfg *config[K, V]) {
	cfg.delta = op.delta
}

// WithDelta sets the free-fraction parameter δ for the Elastic and
// Funnel kinds: both cap their load at 1−δ, and their probe budgets and
// level geometry are functions of δ. Values outside (0, 1) are rejected
// by New. Other kinds ignore the option.
func WithDelta[K comparable, V any](delta float64) option[K, V] {
	return deltaOption[K, V]{delta}
}

type partitionConstantOption[K comparable, V any] struct {
	c float64
}

func (op partitionConstantOption[K, V]) apply(cfg *config[K, V]) {
	cfg.partitionC = op.c
}

// WithPartitionConstant sets the head-room constant c in the
// IndexedPartition bucket capacity ⌈log₂³N + c·log₂²N⌉. Negative values
// are rejected by New. Other kinds ignore the option.
func WithPartitionConstant[K comparable, V any](c float64) option[K, V] {
	return partitionConstantOption[K, V]{c}
}
