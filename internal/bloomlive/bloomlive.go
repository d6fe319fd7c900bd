// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bloomlive implements a conductor.Liveset backed by a
// bloom filter. Bloom livesets are compact and may be marshaled
// for transport to a store server's collector.
package bloomlive

import (
	"bytes"

	"github.com/grailbio/base/digest"
	"github.com/grailbio/conductor"
	"github.com/willf/bloom"
)

// T is a conductor.Liveset using a bloom filter. T must not be
// used concurrently.
type T struct {
	filter *bloom.BloomFilter
	buf    bytes.Buffer
}

var _ conductor.Liveset = (*T)(nil)

// New creates a new bloom liveset sized for the expected number of
// live objects n at false positive rate fp.
func New(n uint, fp float64) *T {
	return &T{filter: bloom.NewWithEstimates(n, fp)}
}

// NewFromFilter creates a bloom liveset from an existing bloom
// filter.
func NewFromFilter(b *bloom.BloomFilter) *T {
	return &T{filter: b}
}

// Add adds an object identifier to the liveset.
func (t *T) Add(id conductor.ObjectID) {
	t.filter.Add(t.bytes(id))
}

// Contains tells whether the given object identifier may be in the
// liveset. Contains may rarely return true for identifiers that
// were never added.
func (t *T) Contains(id conductor.ObjectID) bool {
	return t.filter.Test(t.bytes(id))
}

// MarshalJSON marshals the underlying bloom filter into JSON.
func (t *T) MarshalJSON() ([]byte, error) {
	return t.filter.MarshalJSON()
}

// UnmarshalJSON unmarshals the underlying bloom filter from JSON.
func (t *T) UnmarshalJSON(p []byte) error {
	if t.filter == nil {
		t.filter = &bloom.BloomFilter{}
	}
	return t.filter.UnmarshalJSON(p)
}

func (t *T) bytes(id conductor.ObjectID) []byte {
	t.buf.Reset()
	if _, err := digest.WriteDigest(&t.buf, digest.Digest(id)); err != nil {
		panic("bloomlive: failed to write digest: " + err.Error())
	}
	return t.buf.Bytes()
}
