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

// Package bench generates the datasets and drives the measurement
// passes behind cmd/probebench.
package bench

import (
	"math/rand"
	"strconv"
)

// datasetSeed fixes the RNG so that every engine sees the identical key
// sequence for a given size.
const datasetSeed = 42

// DefaultKeyRange is the half-open key universe (0, DefaultKeyRange]
// the datasets draw from.
const DefaultKeyRange = 100_000_000

// Pair is one dataset entry.
type Pair[K comparable, V any] struct {
	Key   K
	Value V
}

// Numbers returns count unique uint64 keys drawn uniformly from
// [1, keyRange], each valued at ten times its key.
func Numbers(count int, keyRange uint64) []Pair[uint64, uint64] {
	rng := rand.New(rand.NewSource(datasetSeed))
	used := make(map[uint64]struct{}, count)
	dataset := make([]Pair[uint64, uint64], 0, count)
	for len(dataset) < count {
		key := rng.Uint64()%keyRange + 1
		if _, ok := used[key]; ok {
			continue
		}
		used[key] = struct{}{}
		dataset = append(dataset, Pair[uint64, uint64]{Key: key, Value: key * 10})
	}
	return dataset
}

// Strings returns count unique "key<n>" keys with independent "val<n>"
// values, n drawn uniformly from [1, keyRange].
func Strings(count int, keyRange uint64) []Pair[string, string] {
	rng := rand.New(rand.NewSource(datasetSeed))
	used := make(map[string]struct{}, count)
	dataset := make([]Pair[string, string], 0, count)
	for len(dataset) < count {
		key := "key" + strconv.FormatUint(rng.Uint64()%keyRange+1, 10)
		if _, ok := used[key]; ok {
			continue
		}
		used[key] = struct{}{}
		val := "val" + strconv.FormatUint(rng.Uint64()%keyRange+1, 10)
		dataset = append(dataset, Pair[string, string]{Key: key, Value: val})
	}
	return dataset
}
