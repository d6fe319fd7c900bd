// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package registry

import (
	"context"
	"testing"

	"github.com/grailbio/conductor"
	"github.com/grailbio/conductor/errors"
	"github.com/grailbio/conductor/types"
	"github.com/grailbio/conductor/values"
)

func identity(ctx context.Context, args []values.T) (values.T, error) {
	return args[0], nil
}

func spec(name string) *conductor.FuncSpec {
	return &conductor.FuncSpec{
		Name:    name,
		Args:    []*types.T{types.String},
		Returns: []*types.T{types.String},
		Body:    identity,
	}
}

func TestRegistry(t *testing.T) {
	r := New()
	if err := r.Register(spec("count_words")); err != nil {
		t.Fatal(err)
	}
	got, err := r.Lookup("count_words")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "count_words" {
		t.Errorf("got %q, want %q", got.Name, "count_words")
	}
}

func TestDuplicateRegistration(t *testing.T) {
	r := New()
	if err := r.Register(spec("count_words")); err != nil {
		t.Fatal(err)
	}
	err := r.Register(spec("count_words"))
	if !errors.Is(errors.DuplicateRegistration, err) {
		t.Errorf("got %v, want DuplicateRegistration", err)
	}
	// The original registration is unaffected.
	if _, err := r.Lookup("count_words"); err != nil {
		t.Error(err)
	}
}

func TestUnknownFunction(t *testing.T) {
	r := New()
	_, err := r.Lookup("frobnicate")
	if !errors.Is(errors.UnknownFunction, err) {
		t.Errorf("got %v, want UnknownFunction", err)
	}
}

func TestSeal(t *testing.T) {
	r := New()
	if err := r.Register(spec("before")); err != nil {
		t.Fatal(err)
	}
	r.Seal()
	r.Seal() // idempotent
	err := r.Register(spec("after"))
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want Invalid", err)
	}
	if _, err := r.Lookup("before"); err != nil {
		t.Error(err)
	}
}

func TestNames(t *testing.T) {
	r := New()
	for _, name := range []string{"sum_by_key", "count_words", "load_textfile"} {
		if err := r.Register(spec(name)); err != nil {
			t.Fatal(err)
		}
	}
	got := r.Names()
	want := []string{"count_words", "load_textfile", "sum_by_key"}
	if len(got) != len(want) {
		t.Fatalf("got %d names, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("name %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestValidate(t *testing.T) {
	r := New()
	for _, bad := range []*conductor.FuncSpec{
		{Name: "", Args: []*types.T{types.String}, Returns: []*types.T{types.String}, Body: identity},
		{Name: "nobody", Args: []*types.T{types.String}, Returns: []*types.T{types.String}},
		{Name: "noout", Args: []*types.T{types.String}, Body: identity},
		{Name: "restout", Args: []*types.T{types.String}, Returns: []*types.T{types.Rest}, Body: identity},
		{Name: "restfirst", Args: []*types.T{types.Rest}, Returns: []*types.T{types.String}, Body: identity},
	} {
		err := r.Register(bad)
		if !errors.Is(errors.Invalid, err) {
			t.Errorf("%s: got %v, want Invalid", bad.Name, err)
		}
	}
}
