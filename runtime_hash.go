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

import "unsafe" // also required for go:linkname

// hashFn has the signature of the Go runtime's typehash functions.
type hashFn func(pointer unsafe.Pointer, seed uintptr) uintptr

// getRuntimeHasher returns the hash function the Go runtime uses for
// map[K]struct{} by reaching into the internals of the map's type
// descriptor. This gives every engine a well-distributed hash over
// arbitrary comparable key types for free, including the AES-based
// string hashing on amd64/arm64. The struct mirrors below must track
// the layout of the runtime's abi.MapType; they match go1.22.
func getRuntimeHasher[K comparable]() hashFn {
	a := any((map[K]struct{})(nil))
	return (*rtEface)(unsafe.Pointer(&a)).typ.Hasher
}

//go:linkname fastrand64 runtime.fastrand64
func fastrand64() uint64

type rtEface struct {
	typ *rtMapType
	val unsafe.Pointer
}

// rtType mirrors the prefix of the runtime's abi.Type that precedes the
// map-specific fields we need.
type rtType struct {
	Size_       uintptr
	PtrBytes    uintptr
	Hash        uint32
	TFlag       uint8
	Align_      uint8
	FieldAlign_ uint8
	Kind_       uint8
	Equal       func(unsafe.Pointer, unsafe.Pointer) bool
	GCData      *byte
	Str         int32
	PtrToThis   int32
}

// rtMapType mirrors the runtime's abi.MapType.
type rtMapType struct {
	rtType
	Key    *rtType
	Elem   *rtType
	Bucket *rtType
	// Hasher computes the hash of the object at the given pointer using
	// the supplied seed.
	Hasher     func(unsafe.Pointer, uintptr) uintptr
	KeySize    uint8
	ValueSize  uint8
	BucketSize uint16
	Flags      uint32
}

// noescape hides a pointer from escape analysis.  noescape is
// the identity function but escape analysis doesn't think the
// output depends on the input.  noescape is inlined and currently
// compiles down to zero instructions.
// USE CAREFULLY!
//
//go:nosplit
//go:nocheckptr
func noescape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
