/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package mpm

import (
	"encoding/binary"

	"github.com/cespare/xxhash"
)

// fieldMap is a hash-bucketed store of fields keyed by 32-bit field id,
// the Go analog of the original message's uthash-backed field table: a
// bucket array plus chaining, with insertion order preserved separately so
// serialization is stable and the first-set field wins position on
// re-insertion.
type fieldMap struct {
	buckets [][]*Field
	order   []uint32
	mask    uint64
}

const fieldMapInitialBuckets = 16

func newFieldMap() *fieldMap {
	return &fieldMap{
		buckets: make([][]*Field, fieldMapInitialBuckets),
		mask:    fieldMapInitialBuckets - 1,
	}
}

func bucketHash(id uint32) uint64 {
	var key [4]byte
	binary.BigEndian.PutUint32(key[:], id)
	return xxhash.Sum64(key[:])
}

func (m *fieldMap) bucketIndex(id uint32) int {
	return int(bucketHash(id) & m.mask)
}

// set inserts or replaces the field for id. Replacing an existing field
// keeps its position in iteration order.
func (m *fieldMap) set(f *Field) {
	idx := m.bucketIndex(f.ID)
	for i, existing := range m.buckets[idx] {
		if existing.ID == f.ID {
			m.buckets[idx][i] = f
			return
		}
	}
	m.buckets[idx] = append(m.buckets[idx], f)
	m.order = append(m.order, f.ID)
	if len(m.order) > len(m.buckets)*2 {
		m.grow()
	}
}

func (m *fieldMap) grow() {
	next := make([][]*Field, len(m.buckets)*2)
	nextMask := uint64(len(next) - 1)
	for _, bucket := range m.buckets {
		for _, f := range bucket {
			idx := int(bucketHash(f.ID) & nextMask)
			next[idx] = append(next[idx], f)
		}
	}
	m.buckets = next
	m.mask = nextMask
}

func (m *fieldMap) get(id uint32) (*Field, bool) {
	idx := m.bucketIndex(id)
	for _, f := range m.buckets[idx] {
		if f.ID == id {
			return f, true
		}
	}
	return nil, false
}

func (m *fieldMap) delete(id uint32) {
	idx := m.bucketIndex(id)
	bucket := m.buckets[idx]
	for i, f := range bucket {
		if f.ID == id {
			m.buckets[idx] = append(bucket[:i], bucket[i+1:]...)
			for j, oid := range m.order {
				if oid == id {
					m.order = append(m.order[:j], m.order[j+1:]...)
					break
				}
			}
			return
		}
	}
}

// each calls fn for every field in insertion order.
func (m *fieldMap) each(fn func(*Field)) {
	for _, id := range m.order {
		if f, ok := m.get(id); ok {
			fn(f)
		}
	}
}

func (m *fieldMap) len() int {
	return len(m.order)
}

// clone performs a deep copy, the Go analog of the original's pool-backed
// deep message copy.
func (m *fieldMap) clone() *fieldMap {
	out := newFieldMap()
	m.each(func(f *Field) {
		cp := *f
		cp.Bin = append([]byte(nil), f.Bin...)
		out.set(&cp)
	})
	return out
}
