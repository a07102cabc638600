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

package bench

import (
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
)

// Table is the mutable-map surface the runner measures. probekit
// engines satisfy it; RuntimeMap adapts the builtin map as a baseline.
type Table[K comparable, V any] interface {
	Put(key K, value V)
	Get(key K) (value V, ok bool)
	Update(key K, value V) bool
	Delete(key K) bool
}

// RuntimeMap adapts map[K]V to the Table interface.
type RuntimeMap[K comparable, V comparable] map[K]V

func (m RuntimeMap[K, V]) Put(key K, value V) { m[key] = value }

func (m RuntimeMap[K, V]) Get(key K) (V, bool) {
	v, ok := m[key]
	return v, ok
}

func (m RuntimeMap[K, V]) Update(key K, value V) bool {
	if _, ok := m[key]; !ok {
		return false
	}
	m[key] = value
	return true
}

func (m RuntimeMap[K, V]) Delete(key K) bool {
	_, ok := m[key]
	delete(m, key)
	return ok
}

// Result holds the wall-clock duration of each measurement pass.
type Result struct {
	Insert time.Duration
	Lookup time.Duration
	Update time.Duration
	Delete time.Duration
}

// Report renders the result in the harness report format under the
// given section name.
func (r Result) Report(w io.Writer, name string) error {
	_, err := fmt.Fprintf(w, "[%s]\nInsert time: %d ms\nLookup time: %d ms\nUpdate time: %d ms\nDelete time: %d ms\n",
		name, r.Insert.Milliseconds(), r.Lookup.Milliseconds(),
		r.Update.Milliseconds(), r.Delete.Milliseconds())
	return err
}

// Run drives the four passes over the dataset in order: insert every
// pair, look up and verify every pair, update every pair to
// mutate(pair), delete every pair. Verification failures abort with an
// error rather than skewing the timings silently.
func Run[K comparable, V comparable](table Table[K, V], dataset []Pair[K, V], mutate func(Pair[K, V]) V) (Result, error) {
	var r Result

	start := time.Now()
	for _, p := range dataset {
		table.Put(p.Key, p.Value)
	}
	r.Insert = time.Since(start)

	start = time.Now()
	for _, p := range dataset {
		v, ok := table.Get(p.Key)
		if !ok || v != p.Value {
			return r, errors.Errorf("lookup of %v returned (%v, %t), want %v", p.Key, v, ok, p.Value)
		}
	}
	r.Lookup = time.Since(start)

	start = time.Now()
	for _, p := range dataset {
		if !table.Update(p.Key, mutate(p)) {
			return r, errors.Errorf("update of %v refused a present key", p.Key)
		}
	}
	r.Update = time.Since(start)

	start = time.Now()
	for _, p := range dataset {
		if !table.Delete(p.Key) {
			return r, errors.Errorf("delete of %v missed a present key", p.Key)
		}
	}
	r.Delete = time.Since(start)

	return r, nil
}

// Space measures the resident-set growth across the insert pass, in
// kilobytes. The delta is a point sample of VmRSS, not an allocator
// accounting, so small tables can legitimately report zero.
func Space[K comparable, V any](table Table[K, V], dataset []Pair[K, V]) (uint64, error) {
	before, err := ResidentSetKB()
	if err != nil {
		return 0, err
	}
	for _, p := range dataset {
		table.Put(p.Key, p.Value)
	}
	after, err := ResidentSetKB()
	if err != nil {
		return 0, err
	}
	if after < before {
		return 0, nil
	}
	return after - before, nil
}
