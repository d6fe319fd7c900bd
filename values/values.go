// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package values defines data structures for representing (runtime)
// values in conductor. Any valid conductor type has representable
// values (see package types) and the structures in this package
// mirror those in the type system.
//
// Values are represented by values.T, defined as
//
//	type T = interface{}
//
// which is done to clarify code that uses conductor values.
// The value representations are:
//
//	int      int64
//	float    float64
//	string   string
//	bool     bool
//	list     values.List
//	map      values.Dict
//	tuple    values.Tuple
package values

import (
	"crypto" // The SHA-256 implementation is required for this package's
	// Digester.
	_ "crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/digest"
	"github.com/grailbio/conductor/types"
)

// Digester is the digester used to compute value digests.
var Digester = digest.Digester(crypto.SHA256)

// T is the type of value. It is just an alias to interface{},
// but is used throughout code for clarity.
type T interface{}

// Tuple is the type of tuple values. Function bodies declaring
// multiple outputs return their outputs as a Tuple.
type Tuple []T

// List is the type of list values.
type List []T

// Dict is the type of map values. Conductor maps are indexed
// by strings.
type Dict map[string]T

// Keys returns the dictionary's keys in sorted order.
func (d Dict) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal tells whether values v and w are structurally equal.
func Equal(v, w T) bool {
	return reflect.DeepEqual(v, w)
}

// Less tells whether value v is (structurally) less than w.
func Less(v, w T) bool {
	switch v := v.(type) {
	case int64:
		return v < w.(int64)
	case float64:
		return v < w.(float64)
	case string:
		return v < w.(string)
	case bool:
		return !v && w.(bool)
	case List:
		w := w.(List)
		if len(v) != len(w) {
			return len(v) < len(w)
		}
		for i := range v {
			if !Equal(v[i], w[i]) {
				return Less(v[i], w[i])
			}
		}
		return false
	case Dict:
		w := w.(Dict)
		if len(v) != len(w) {
			return len(v) < len(w)
		}
		vkeys, wkeys := v.Keys(), w.Keys()
		for i := range vkeys {
			if vkeys[i] != wkeys[i] {
				return vkeys[i] < wkeys[i]
			}
			if !Equal(v[vkeys[i]], w[wkeys[i]]) {
				return Less(v[vkeys[i]], w[wkeys[i]])
			}
		}
		return false
	case Tuple:
		w := w.(Tuple)
		for i := range v {
			if !Equal(v[i], w[i]) {
				return Less(v[i], w[i])
			}
		}
		return false
	default:
		panic("attempted to compare incomparable values")
	}
}

// Of converts a Go value into a conductor value. It accepts the
// value representations directly, and additionally converts int,
// []string, map[string]int, and map[string]int64 for convenience.
func Of(v interface{}) (T, error) {
	switch v := v.(type) {
	case int64, float64, string, bool, List, Dict, Tuple:
		return v, nil
	case int:
		return int64(v), nil
	case []string:
		list := make(List, len(v))
		for i := range v {
			list[i] = v[i]
		}
		return list, nil
	case map[string]int:
		d := make(Dict, len(v))
		for k, e := range v {
			d[k] = int64(e)
		}
		return d, nil
	case map[string]int64:
		d := make(Dict, len(v))
		for k, e := range v {
			d[k] = e
		}
		return d, nil
	default:
		return nil, fmt.Errorf("cannot convert value of type %T", v)
	}
}

// Typeof returns the type of value v. Empty lists and maps are
// given Bottom element types, which satisfy any declared element
// type by subtyping.
func Typeof(v T) (*types.T, error) {
	switch v := v.(type) {
	case int64:
		return types.Int, nil
	case float64:
		return types.Float, nil
	case string:
		return types.String, nil
	case bool:
		return types.Bool, nil
	case List:
		if len(v) == 0 {
			return types.List(types.Bottom), nil
		}
		elem, err := Typeof(v[0])
		if err != nil {
			return nil, err
		}
		return types.List(elem), nil
	case Dict:
		if len(v) == 0 {
			return types.Map(types.String, types.Bottom), nil
		}
		elem, err := Typeof(v[v.Keys()[0]])
		if err != nil {
			return nil, err
		}
		return types.Map(types.String, elem), nil
	case Tuple:
		fields := make([]*types.Field, len(v))
		for i := range v {
			t, err := Typeof(v[i])
			if err != nil {
				return nil, err
			}
			fields[i] = &types.Field{T: t}
		}
		return types.Tuple(fields...), nil
	default:
		return nil, fmt.Errorf("value of type %T is not a conductor value", v)
	}
}

// Sprint returns a pretty-printed version of value v
// with type t.
func Sprint(v T, t *types.T) string {
	switch t.Kind {
	case types.ErrorKind, types.BottomKind, types.RestKind:
		panic("illegal type")
	case types.IntKind:
		return strconv.FormatInt(v.(int64), 10)
	case types.FloatKind:
		return strconv.FormatFloat(v.(float64), 'g', -1, 64)
	case types.StringKind:
		return fmt.Sprintf("%q", v.(string))
	case types.BoolKind:
		if v.(bool) {
			return "true"
		}
		return "false"
	case types.ListKind:
		list := v.(List)
		elems := make([]string, len(list))
		for i, e := range list {
			elems[i] = Sprint(e, t.Elem)
		}
		return fmt.Sprintf("[%s]", strings.Join(elems, ", "))
	case types.MapKind:
		d := v.(Dict)
		elems := make([]string, 0, len(d))
		for _, k := range d.Keys() {
			elems = append(elems, fmt.Sprintf("%q: %s", k, Sprint(d[k], t.Elem)))
		}
		return fmt.Sprintf("[%s]", strings.Join(elems, ", "))
	case types.TupleKind:
		tuple := v.(Tuple)
		elems := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			elems[i] = Sprint(tuple[i], f.T)
		}
		return fmt.Sprintf("(%s)", strings.Join(elems, ", "))
	default:
		panic("unknown type " + t.String())
	}
}

// Digest computes the digest for value v, given type t.
func Digest(v T, t *types.T) digest.Digest {
	w := Digester.NewWriter()
	WriteDigest(w, v, t)
	return w.Digest()
}

var (
	falseByte = []byte{0}
	trueByte  = []byte{1}
)

func writeLength(w io.Writer, n int) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(n))
	w.Write(b[:])
}

// WriteDigest writes digest material for value v (given type t)
// into the writer w.
func WriteDigest(w io.Writer, v T, t *types.T) {
	w.Write([]byte{t.Kind.ID()})
	switch t.Kind {
	case types.ErrorKind, types.BottomKind, types.RestKind:
		panic("illegal type")
	case types.IntKind:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v.(int64)))
		w.Write(b[:])
	case types.FloatKind:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v.(float64)))
		w.Write(b[:])
	case types.StringKind:
		io.WriteString(w, v.(string))
	case types.BoolKind:
		if v.(bool) {
			w.Write(trueByte)
		} else {
			w.Write(falseByte)
		}
	case types.ListKind:
		list := v.(List)
		writeLength(w, len(list))
		for _, e := range list {
			WriteDigest(w, e, t.Elem)
		}
	case types.MapKind:
		d := v.(Dict)
		writeLength(w, len(d))
		for _, k := range d.Keys() {
			io.WriteString(w, k)
			WriteDigest(w, d[k], t.Elem)
		}
	case types.TupleKind:
		tuple := v.(Tuple)
		writeLength(w, len(tuple))
		for i, f := range t.Fields {
			WriteDigest(w, tuple[i], f.T)
		}
	}
}
