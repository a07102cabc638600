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
	"io"
	"strconv"
	"testing"

	"github.com/aclements/go-perfevent/perfbench"
)

type benchTypes interface {
	int64 | string
}

func benchSizes[T benchTypes](
	f func(b *testing.B, n int, genKeys func(start, end int) []T), genKeys func(start, end int) []T,
) func(*testing.B) {
	var cases = []int{
		16,
		256,
		4096,
		1 << 16,
	}
	return func(b *testing.B) {
		for _, n := range cases {
			b.Run("len="+strconv.Itoa(n), func(b *testing.B) { f(b, n, genKeys) })
		}
	}
}

func genKeys[T benchTypes](start, end int) []T {
	keys := make([]T, end-start)
	for i := range keys {
		switch p := any(&keys[i]).(type) {
		case *int64:
			*p = int64(start + i)
		case *string:
			*p = strconv.Itoa(start + i)
		}
	}
	return keys
}

func benchTypeName[T benchTypes]() string {
	switch any(*new(T)).(type) {
	case int64:
		return "Int64"
	default:
		return "String"
	}
}

func benchKinds[T benchTypes](
	b *testing.B, f func(kind Kind) func(b *testing.B, n int, genKeys func(start, end int) []T),
) {
	for _, kind := range Kinds() {
		b.Run("impl="+kind.String(), func(b *testing.B) {
			b.Run("t="+benchTypeName[T](), benchSizes(f(kind), genKeys[T]))
		})
	}
}

func BenchmarkEngineGetHit(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapGetHit[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapGetHit[string], genKeys[string]))
	})
	for _, kind := range Kinds() {
		b.Run("impl="+kind.String(), func(b *testing.B) {
			b.Run("t=Int64", benchSizes(benchmarkEngineGetHit[int64](kind), genKeys[int64]))
			b.Run("t=String", benchSizes(benchmarkEngineGetHit[string](kind), genKeys[string]))
		})
	}
}

func BenchmarkEngineGetMiss(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapGetMiss[int64], genKeys[int64]))
	})
	benchKinds(b, benchmarkEngineGetMiss[int64])
}

func BenchmarkEnginePutGrow(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapPutGrow[int64], genKeys[int64]))
	})
	benchKinds(b, benchmarkEnginePutGrow[int64])
}

func BenchmarkEnginePutDelete(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapPutDelete[int64], genKeys[int64]))
	})
	benchKinds(b, benchmarkEnginePutDelete[int64])
}

func BenchmarkEngineIter(b *testing.B) {
	benchKinds(b, benchmarkEngineIter[int64])
}

func benchmarkRuntimeMapGetHit[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}
	// Defeat the builtin map's pointer-equality shortcut on string keys.
	keys = genKeys(0, n)
	cs := perfbench.Open(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m[keys[i%n]]
	}
	cs.Stop()
}

func benchmarkEngineGetHit[T benchTypes](kind Kind) func(b *testing.B, n int, genKeys func(start, end int) []T) {
	return func(b *testing.B, n int, genKeys func(start, end int) []T) {
		m, err := New[T, T](kind, n)
		if err != nil {
			b.Fatal(err)
		}
		keys := genKeys(0, n)
		for _, k := range keys {
			m.Put(k, k)
		}
		keys = genKeys(0, n)
		cs := perfbench.Open(b)
		b.ResetTimer()
		var ok bool
		for i := 0; i < b.N; i++ {
			_, ok = m.Get(keys[i%n])
		}
		cs.Stop()
		b.StopTimer()
		fmt.Fprint(io.Discard, ok)
	}
}

func benchmarkRuntimeMapGetMiss[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := make(map[T]T)
	keys := genKeys(0, n)
	miss := genKeys(-n, 0)
	for _, k := range keys {
		m[k] = k
	}
	cs := perfbench.Open(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m[miss[i%n]]
	}
	cs.Stop()
}

func benchmarkEngineGetMiss[T benchTypes](kind Kind) func(b *testing.B, n int, genKeys func(start, end int) []T) {
	return func(b *testing.B, n int, genKeys func(start, end int) []T) {
		m, err := New[T, T](kind, 0)
		if err != nil {
			b.Fatal(err)
		}
		keys := genKeys(0, n)
		miss := genKeys(-n, 0)
		for _, k := range keys {
			m.Put(k, k)
		}
		cs := perfbench.Open(b)
		b.ResetTimer()
		var ok bool
		for i := 0; i < b.N; i++ {
			_, ok = m.Get(miss[i%n])
		}
		cs.Stop()
		b.StopTimer()
		fmt.Fprint(io.Discard, ok)
	}
}

func benchmarkRuntimeMapPutGrow[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	keys := genKeys(0, n)
	cs := perfbench.Open(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := make(map[T]T)
		for _, k := range keys {
			m[k] = k
		}
	}
	cs.Stop()
}

func benchmarkEnginePutGrow[T benchTypes](kind Kind) func(b *testing.B, n int, genKeys func(start, end int) []T) {
	return func(b *testing.B, n int, genKeys func(start, end int) []T) {
		keys := genKeys(0, n)
		cs := perfbench.Open(b)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			m, err := New[T, T](kind, 0)
			if err != nil {
				b.Fatal(err)
			}
			for _, k := range keys {
				m.Put(k, k)
			}
		}
		cs.Stop()
	}
}

func benchmarkRuntimeMapPutDelete[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	cs := perfbench.Open(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, k := range keys {
			m[k] = k
		}
		for _, k := range keys {
			delete(m, k)
		}
	}
	cs.Stop()
}

func benchmarkEnginePutDelete[T benchTypes](kind Kind) func(b *testing.B, n int, genKeys func(start, end int) []T) {
	return func(b *testing.B, n int, genKeys func(start, end int) []T) {
		m, err := New[T, T](kind, n)
		if err != nil {
			b.Fatal(err)
		}
		keys := genKeys(0, n)
		cs := perfbench.Open(b)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			for _, k := range keys {
				m.Put(k, k)
			}
			for _, k := range keys {
				m.Delete(k)
			}
		}
		cs.Stop()
	}
}

func benchmarkEngineIter[T benchTypes](kind Kind) func(b *testing.B, n int, genKeys func(start, end int) []T) {
	return func(b *testing.B, n int, genKeys func(start, end int) []T) {
		m, err := New[T, T](kind, n)
		if err != nil {
			b.Fatal(err)
		}
		keys := genKeys(0, n)
		for _, k := range keys {
			m.Put(k, k)
		}
		cs := perfbench.Open(b)
		b.ResetTimer()
		count := 0
		for i := 0; i < b.N; i++ {
			m.All(func(k, v T) bool {
				count++
				return true
			})
		}
		cs.Stop()
		b.StopTimer()
		fmt.Fprint(io.Discard, count)
	}
}
