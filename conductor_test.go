// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package conductor

import (
	"testing"

	"github.com/grailbio/conductor/types"
)

func TestObjectID(t *testing.T) {
	id := NewObjectID()
	if !id.IsValid() {
		t.Error("fresh ObjectID is not valid")
	}
	parsed, err := ParseObjectID(id.String())
	if err != nil {
		t.Fatal(err)
	}
	if got, want := parsed, id; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	var zero ObjectID
	if zero.IsValid() {
		t.Error("zero ObjectID is valid")
	}
	if id == zero {
		t.Error("fresh ObjectID is zero")
	}
}

func TestArg(t *testing.T) {
	lit := Arg{Value: int64(123), Type: types.Int}
	if lit.IsRef() {
		t.Error("literal arg is a ref")
	}
	if got, want := lit.String(), "123"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	ref := Arg{Type: types.String, ID: NewObjectID()}
	if !ref.IsRef() {
		t.Error("reference arg is not a ref")
	}
}

func TestFutureString(t *testing.T) {
	f := Future{ID: NewObjectID(), Type: types.String}
	if !f.IsValid() {
		t.Error("future is not valid")
	}
	if got, want := f.String(), "future<string>"+f.ID.Short(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFuncSpecString(t *testing.T) {
	spec := &FuncSpec{
		Name:    "sum_by_key",
		Args:    []*types.T{types.Map(types.String, types.Int), types.Rest},
		Returns: []*types.T{types.Map(types.String, types.Int)},
	}
	if got, want := spec.String(), "sum_by_key([string:int], ...) ([string:int])"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got, want := spec.NumOut(), 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
