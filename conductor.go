// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package conductor implements the core data structures for
// conductor, a runtime for distributed function execution.
//
// Applications register named functions with typed signatures,
// invoke them asynchronously, and receive futures in place of
// results. The runtime schedules each invocation as a task once the
// tasks producing its arguments have completed, executes the
// function body on a worker, and deposits the outputs into an
// object store under fresh object identifiers. Passing a future as
// an argument to a later invocation establishes a dependency edge;
// fetching a future blocks until its value is available.
//
// Package conductor defines the object identifier, future,
// argument, function specification, and object store types shared
// by the scheduler (package sched), the stores (package store), and
// the driver API (package runtime).
package conductor

import (
	"context"
	"fmt"

	"github.com/grailbio/base/digest"
	"github.com/grailbio/conductor/types"
	"github.com/grailbio/conductor/values"
)

// An ObjectID names a single value in an object store. ObjectIDs
// are opaque and globally unique: they are minted randomly at task
// creation time, one per declared output, and by direct driver
// puts. Each ObjectID is written at most once.
type ObjectID digest.Digest

// NewObjectID mints a fresh random ObjectID.
func NewObjectID() ObjectID {
	return ObjectID(Digester.Rand(nil))
}

// ParseObjectID parses the string representation of an ObjectID, as
// returned by ObjectID.String.
func ParseObjectID(s string) (ObjectID, error) {
	d, err := Digester.Parse(s)
	if err != nil {
		return ObjectID{}, err
	}
	return ObjectID(d), nil
}

// String returns the full string representation of the ObjectID.
func (id ObjectID) String() string {
	return digest.Digest(id).String()
}

// Hex returns the hexadecimal representation of the ObjectID.
func (id ObjectID) Hex() string {
	return digest.Digest(id).Hex()
}

// Short returns a short (prefix) representation of the ObjectID.
func (id ObjectID) Short() string {
	return digest.Digest(id).HexN(4)
}

// IsValid tells whether the ObjectID has been set.
func (id ObjectID) IsValid() bool {
	return !digest.Digest(id).IsZero()
}

// Less defines an order over ObjectIDs.
func (id ObjectID) Less(other ObjectID) bool {
	return digest.Digest(id).Less(digest.Digest(other))
}

// A Future is a typed handle to a value that becomes available in
// the object store once its producing task completes. Futures are
// created by invocation (one per declared output) and by driver
// puts; they are dereferenced by passing them as arguments to later
// invocations, or explicitly through the driver's Fetch.
type Future struct {
	// ID names the object this future refers to.
	ID ObjectID
	// Type is the declared type of the object.
	Type *types.T
}

// IsValid tells whether the future refers to an object.
func (f Future) IsValid() bool {
	return f.ID.IsValid()
}

func (f Future) String() string {
	return fmt.Sprintf("future<%s>%s", f.Type, f.ID.Short())
}

// An Arg is a single task argument: either a literal value or a
// reference to an object produced by another task or put by the
// driver. An Arg is a reference iff its ID is valid; the worker
// resolves references from the object store before execution.
type Arg struct {
	// Value is the literal argument value. It is set only when ID
	// is not valid.
	Value values.T
	// Type is the argument's type.
	Type *types.T
	// ID names the object holding the argument's value.
	ID ObjectID
}

// IsRef tells whether the argument is an object reference.
func (a Arg) IsRef() bool {
	return a.ID.IsValid()
}

func (a Arg) String() string {
	if a.IsRef() {
		return fmt.Sprintf("ref<%s>%s", a.Type, a.ID.Short())
	}
	return values.Sprint(a.Value, a.Type)
}

// Func is the type of a registered function body. Bodies receive
// their arguments in invocation order, with references resolved to
// values. Bodies declaring a single output return the value
// directly; bodies declaring multiple outputs return a
// values.Tuple whose length must equal the declared output count.
type Func func(ctx context.Context, args []values.T) (values.T, error)

// A FuncSpec describes a registered function: its name, argument
// and output signatures, and its body. FuncSpecs are registered
// once before the runtime starts and are immutable and shared
// read-only thereafter.
type FuncSpec struct {
	// Name is the function's registered name.
	Name string
	// Args is the function's argument signature. It may end in
	// types.Rest, admitting zero or more additional trailing
	// arguments of the signature's previous type.
	Args []*types.T
	// Returns is the function's output signature. Every function
	// declares at least one output.
	Returns []*types.T
	// Body is the function's callable body.
	Body Func
}

// NumOut returns the function's declared output count.
func (f *FuncSpec) NumOut() int {
	return len(f.Returns)
}

func (f *FuncSpec) String() string {
	return fmt.Sprintf("%s%s %s", f.Name,
		types.SignatureString(f.Args), types.SignatureString(f.Returns))
}

// A Store is a single-assignment object store. Implementations
// must be safe for concurrent use.
type Store interface {
	// Put stores value v under id. Put fails with a DuplicateWrite
	// error if id has already been written. A successful Put wakes
	// all Get calls blocked on id.
	Put(ctx context.Context, id ObjectID, v values.T) error

	// Get returns the value stored under id, blocking until the
	// value is available or the context is done. Concurrent Gets on
	// the same id are safe, and all return once the id is written.
	Get(ctx context.Context, id ObjectID) (values.T, error)

	// Exists tells whether id has been written. Exists never blocks
	// on an unwritten id.
	Exists(ctx context.Context, id ObjectID) (bool, error)
}

// A Liveset contains a possibly approximate judgement about live
// objects, used during store collection.
type Liveset interface {
	// Contains returns true if the given object definitely is in the
	// set; it may rarely return true when the object is not.
	Contains(ObjectID) bool
}
