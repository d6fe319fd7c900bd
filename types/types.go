// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package types contains data structures and algorithms for dealing
// with value types in conductor. It defines type-trees, constructors
// for type trees, and the signature satisfaction algorithm used to
// check invocations against registered function signatures.
//
// A conductor type is one of:
//
//	int            the type of 64-bit integers
//	float          the type of 64-bit floating point numbers
//	string         the type of (utf-8 encoded) strings
//	bool           the type of booleans
//	[t]            the type of lists of element type t
//	[t1:t2]        the type of maps of index type t1, element type t2
//	(t1, ..., tn)  the type of tuples of type t1, ..., tn
//	...            the trailing marker in an argument signature,
//	               repeating the signature's previous type for zero
//	               or more additional arguments
//
// The trailing marker supports variadic reduction functions: a
// signature ending in the marker accepts any number of additional
// arguments of the type preceding it.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// Kind represents a type's kind.
type Kind int

const (
	// ErrorKind is an illegal type.
	ErrorKind Kind = iota

	// BottomKind is a value-less type. It is the element type of
	// empty literal lists and maps, and is a subtype of every type.
	BottomKind

	// Kind 0 types.

	// IntKind is the type of 64-bit integers.
	IntKind
	// FloatKind is the type of 64-bit floats.
	FloatKind
	// StringKind is the type of UTF-8 encoded strings.
	StringKind
	// BoolKind is the type of booleans.
	BoolKind

	// Kind >0 types.

	// ListKind is the type of lists.
	ListKind
	// MapKind is the type of maps.
	MapKind
	// TupleKind is the kind of n-tuples of values (containing positional fields).
	TupleKind

	// RestKind is a pseudo-kind: the trailing marker in argument
	// signatures. It is not the type of any value.
	RestKind

	typeMax
)

var kindStrings = [typeMax]string{
	ErrorKind:  "error",
	BottomKind: "bottom",
	IntKind:    "int",
	FloatKind:  "float",
	StringKind: "string",
	BoolKind:   "bool",
	ListKind:   "list",
	MapKind:    "map",
	TupleKind:  "tuple",
	RestKind:   "rest",
}

func (k Kind) String() string {
	return kindStrings[k]
}

// KindsInOrder stores the order in which kinds were added.
var kindsInOrder = [...]Kind{
	ErrorKind,
	BottomKind,
	IntKind,
	StringKind,
	BoolKind,
	ListKind,
	MapKind,
	TupleKind,
	RestKind,
	FloatKind,
}

var kindID [typeMax]byte

func init() {
	for i, k := range kindsInOrder {
		kindID[k] = byte(i)
	}
}

// ID returns the kind's stable identifier, which may be used
// for serialization.
func (k Kind) ID() byte {
	return kindID[k]
}

func typeErrorf(format string, args ...interface{}) *T {
	return &T{
		Kind:  ErrorKind,
		Error: fmt.Errorf(format, args...),
	}
}

// A Field is a labelled type. It is used in tuples, where labels
// name a function's declared outputs.
type Field struct {
	Name string
	*T
}

func (f *Field) String() string {
	return fmt.Sprintf("%s %s", f.Name, f.T)
}

// Equal checks whether Field f is equivalent to Field e.
func (f *Field) Equal(e *Field) bool {
	return f.Name == e.Name && f.T.Equal(e.T)
}

// FieldsString returns a parseable string representation of the
// given fields.
func FieldsString(fields []*Field) string {
	args := make([]string, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			args[i] = f.T.String()
		} else {
			args[i] = f.Name + " " + f.T.String()
		}
	}
	return strings.Join(args, ", ")
}

// A T is a conductor type. The zero T is a type error.
type T struct {
	// Kind is the kind of the type. See above.
	Kind Kind
	// Index is the type of the type's index; used in maps.
	Index *T
	// Elem is the type of the type's elem; used in lists and maps.
	Elem *T
	// Fields stores tuple fields.
	Fields []*Field
	// Error holds the type's error.
	Error error
}

// Convenience vars for common types.
var (
	Bottom = &T{Kind: BottomKind}
	Int    = &T{Kind: IntKind}
	Float  = &T{Kind: FloatKind}
	String = &T{Kind: StringKind}
	Bool   = &T{Kind: BoolKind}
	// Rest is the trailing signature marker. It stands for zero or
	// more additional arguments of the signature's previous type.
	Rest = &T{Kind: RestKind}
)

// Make initializes type t and returns it, propagating errors
// of any child type.
func Make(t *T) *T {
	if t.Index != nil && t.Index.Error != nil {
		return t.Index
	}
	if t.Elem != nil && t.Elem.Error != nil {
		return t.Elem
	}
	for _, f := range t.Fields {
		if f.T.Error != nil {
			return f.T
		}
	}
	return t
}

// Error constructs a new error type.
func Error(err error) *T {
	return &T{Kind: ErrorKind, Error: err}
}

// Errorf formats a new error type
func Errorf(format string, args ...interface{}) *T {
	return Error(fmt.Errorf(format, args...))
}

// List returns a new list type with the given element type.
func List(elem *T) *T {
	return Make(&T{Kind: ListKind, Elem: elem})
}

// Map returns a new map type with the given index and element types.
// Conductor maps are indexed by strings.
func Map(index, elem *T) *T {
	if index.Kind != StringKind {
		return Errorf("%v is not a valid map key type", index)
	}
	return Make(&T{Kind: MapKind, Index: index, Elem: elem})
}

// Tuple returns a new tuple type with the given fields.
func Tuple(fields ...*Field) *T {
	return Make(&T{Kind: TupleKind, Fields: fields})
}

// Copy returns a shallow copy of type t.
func (t *T) Copy() *T {
	u := new(T)
	*u = *t
	if u.Fields != nil {
		u.Fields = make([]*Field, len(t.Fields))
		for i := range t.Fields {
			u.Fields[i] = new(Field)
			*u.Fields[i] = *t.Fields[i]
		}
	}
	return u
}

// String renders a parseable version of Type t.
func (t *T) String() string {
	switch t.Kind {
	default:
		if t.Error != nil {
			return "error: " + t.Error.Error()
		}
		return "error"
	case BottomKind:
		return "bottom"
	case IntKind:
		return "int"
	case FloatKind:
		return "float"
	case StringKind:
		return "string"
	case BoolKind:
		return "bool"
	case ListKind:
		return "[" + t.Elem.String() + "]"
	case MapKind:
		return "[" + t.Index.String() + ":" + t.Elem.String() + "]"
	case TupleKind:
		return "(" + FieldsString(t.Fields) + ")"
	case RestKind:
		return "..."
	}
}

// Equal tests whether type t is equivalent to type u.
func (t *T) Equal(u *T) bool {
	if u == nil {
		return false
	}
	if t.Kind == ErrorKind {
		return false
	}
	if t.Kind != u.Kind {
		return false
	}
	if t.Index != nil && !t.Index.Equal(u.Index) {
		return false
	}
	if t.Elem != nil && !t.Elem.Equal(u.Elem) {
		return false
	}
	if len(t.Fields) != len(u.Fields) {
		return false
	}
	for i := range t.Fields {
		if !t.Fields[i].T.Equal(u.Fields[i].T) {
			return false
		}
	}
	return true
}

// Sub tells whether t is a subtype of u. Bottom is a subtype of
// every type; lists and maps are covariant in their element types.
// Sub is used to check literal argument types against declared
// signatures, where empty literals carry Bottom element types.
func (t *T) Sub(u *T) bool {
	if u == nil || t.Kind == ErrorKind || u.Kind == ErrorKind {
		return false
	}
	if t.Kind == BottomKind {
		return true
	}
	if t.Kind != u.Kind {
		return false
	}
	switch t.Kind {
	default:
		return false
	case IntKind, FloatKind, StringKind, BoolKind, RestKind:
		return true
	case ListKind:
		return t.Elem.Sub(u.Elem)
	case MapKind:
		return t.Index.Sub(u.Index) && t.Elem.Sub(u.Elem)
	case TupleKind:
		if len(t.Fields) != len(u.Fields) {
			return false
		}
		for i := range t.Fields {
			if !t.Fields[i].T.Sub(u.Fields[i].T) {
				return false
			}
		}
		return true
	}
}

// SignatureString renders an argument or output signature.
func SignatureString(ts []*T) string {
	elems := make([]string, len(ts))
	for i, t := range ts {
		elems[i] = t.String()
	}
	return "(" + strings.Join(elems, ", ") + ")"
}

// HasRest tells whether the signature sig ends in the trailing
// marker.
func HasRest(sig []*T) bool {
	return len(sig) > 0 && sig[len(sig)-1].Kind == RestKind
}

// MinArgs returns the minimum number of arguments admitted by the
// argument signature sig.
func MinArgs(sig []*T) int {
	if HasRest(sig) {
		return len(sig) - 1
	}
	return len(sig)
}

// ValidSignature checks that sig is a well-formed argument
// signature: the trailing marker may appear only in the last
// position, and must be preceded by the type it repeats.
func ValidSignature(sig []*T) error {
	for i, t := range sig {
		if t == nil || t.Kind == ErrorKind {
			return fmt.Errorf("argument %d: illegal type", i)
		}
		if t.Kind != RestKind {
			continue
		}
		if i != len(sig)-1 {
			return errors.New("rest marker must be in the last position")
		}
		if i == 0 {
			return errors.New("rest marker must follow the type it repeats")
		}
	}
	return nil
}

// Satisfies checks the argument types args against the argument
// signature sig, applying the trailing marker rule: a signature
// ending in the marker accepts zero or more additional trailing
// arguments of the signature's previous type. Argument types are
// checked by subtyping, so empty literals satisfy any list or map
// position. It returns a descriptive error on arity or type
// mismatch.
func Satisfies(args []*T, sig []*T) error {
	n := MinArgs(sig)
	if n == 0 && HasRest(sig) {
		return errors.New("invalid signature: leading rest marker")
	}
	if HasRest(sig) {
		if len(args) < n {
			return fmt.Errorf("too few arguments: have %d, want at least %d", len(args), n)
		}
	} else if len(args) != n {
		return fmt.Errorf("wrong number of arguments: have %d, want %d", len(args), n)
	}
	for i, arg := range args {
		want := sig[n-1]
		if i < n {
			want = sig[i]
		}
		if arg == nil || arg.Kind == ErrorKind {
			return fmt.Errorf("argument %d: illegal type", i)
		}
		if !arg.Sub(want) {
			return fmt.Errorf("argument %d: have %s, want %s", i, arg, want)
		}
	}
	return nil
}
