// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package values

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/grailbio/conductor/types"
)

// Marshal encodes value v, of type t, into a byte-stream
// representation suitable for storage and transmission. The
// encoding is type directed: it can be decoded only with the
// same type.
func Marshal(v T, t *types.T) ([]byte, error) {
	enc, err := encode(v, t)
	if err != nil {
		return nil, err
	}
	return json.Marshal(enc)
}

// Unmarshal decodes the byte-stream representation p into a value
// of type t, as encoded by Marshal.
func Unmarshal(p []byte, t *types.T) (T, error) {
	dec := json.NewDecoder(bytes.NewReader(p))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return decode(raw, t)
}

func encode(v T, t *types.T) (interface{}, error) {
	switch t.Kind {
	case types.IntKind:
		i, ok := v.(int64)
		if !ok {
			return nil, encodeErrorf(v, t)
		}
		return i, nil
	case types.FloatKind:
		f, ok := v.(float64)
		if !ok {
			return nil, encodeErrorf(v, t)
		}
		return f, nil
	case types.StringKind:
		s, ok := v.(string)
		if !ok {
			return nil, encodeErrorf(v, t)
		}
		return s, nil
	case types.BoolKind:
		b, ok := v.(bool)
		if !ok {
			return nil, encodeErrorf(v, t)
		}
		return b, nil
	case types.ListKind:
		list, ok := v.(List)
		if !ok {
			return nil, encodeErrorf(v, t)
		}
		elems := make([]interface{}, len(list))
		for i, e := range list {
			var err error
			elems[i], err = encode(e, t.Elem)
			if err != nil {
				return nil, err
			}
		}
		return elems, nil
	case types.MapKind:
		d, ok := v.(Dict)
		if !ok {
			return nil, encodeErrorf(v, t)
		}
		elems := make(map[string]interface{}, len(d))
		for k, e := range d {
			enc, err := encode(e, t.Elem)
			if err != nil {
				return nil, err
			}
			elems[k] = enc
		}
		return elems, nil
	case types.TupleKind:
		tuple, ok := v.(Tuple)
		if !ok {
			return nil, encodeErrorf(v, t)
		}
		if len(tuple) != len(t.Fields) {
			return nil, fmt.Errorf("values: tuple has %d elements, type %s wants %d", len(tuple), t, len(t.Fields))
		}
		elems := make([]interface{}, len(tuple))
		for i, f := range t.Fields {
			var err error
			elems[i], err = encode(tuple[i], f.T)
			if err != nil {
				return nil, err
			}
		}
		return elems, nil
	default:
		return nil, fmt.Errorf("values: cannot encode type %s", t)
	}
}

func decode(raw interface{}, t *types.T) (T, error) {
	switch t.Kind {
	case types.IntKind:
		num, ok := raw.(json.Number)
		if !ok {
			return nil, decodeErrorf(raw, t)
		}
		return num.Int64()
	case types.FloatKind:
		num, ok := raw.(json.Number)
		if !ok {
			return nil, decodeErrorf(raw, t)
		}
		return num.Float64()
	case types.StringKind:
		s, ok := raw.(string)
		if !ok {
			return nil, decodeErrorf(raw, t)
		}
		return s, nil
	case types.BoolKind:
		b, ok := raw.(bool)
		if !ok {
			return nil, decodeErrorf(raw, t)
		}
		return b, nil
	case types.ListKind:
		elems, ok := raw.([]interface{})
		if !ok {
			return nil, decodeErrorf(raw, t)
		}
		list := make(List, len(elems))
		for i, e := range elems {
			var err error
			list[i], err = decode(e, t.Elem)
			if err != nil {
				return nil, err
			}
		}
		return list, nil
	case types.MapKind:
		elems, ok := raw.(map[string]interface{})
		if !ok {
			return nil, decodeErrorf(raw, t)
		}
		d := make(Dict, len(elems))
		for k, e := range elems {
			dec, err := decode(e, t.Elem)
			if err != nil {
				return nil, err
			}
			d[k] = dec
		}
		return d, nil
	case types.TupleKind:
		elems, ok := raw.([]interface{})
		if !ok {
			return nil, decodeErrorf(raw, t)
		}
		if len(elems) != len(t.Fields) {
			return nil, fmt.Errorf("values: encoded tuple has %d elements, type %s wants %d", len(elems), t, len(t.Fields))
		}
		tuple := make(Tuple, len(elems))
		for i, f := range t.Fields {
			var err error
			tuple[i], err = decode(elems[i], f.T)
			if err != nil {
				return nil, err
			}
		}
		return tuple, nil
	default:
		return nil, fmt.Errorf("values: cannot decode type %s", t)
	}
}

func encodeErrorf(v T, t *types.T) error {
	return fmt.Errorf("values: value of type %T does not represent type %s", v, t)
}

func decodeErrorf(raw interface{}, t *types.T) error {
	return fmt.Errorf("values: encoded value of type %T does not represent type %s", raw, t)
}

// envelope pairs an encoded value with its type.
type envelope struct {
	Type  *types.T        `json:"type"`
	Value json.RawMessage `json:"value"`
}

// Encode encodes value v together with its derived type into a
// self-describing representation, used by stores that do not know
// object types in advance. Decode recovers both.
func Encode(v T) ([]byte, error) {
	t, err := Typeof(v)
	if err != nil {
		return nil, err
	}
	p, err := Marshal(v, t)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: t, Value: p})
}

// Decode decodes the self-describing representation produced by
// Encode, returning the value and its type.
func Decode(p []byte) (T, *types.T, error) {
	var env envelope
	if err := json.Unmarshal(p, &env); err != nil {
		return nil, nil, err
	}
	if env.Type == nil {
		return nil, nil, fmt.Errorf("values: missing type in encoded object")
	}
	v, err := Unmarshal(env.Value, env.Type)
	if err != nil {
		return nil, nil, err
	}
	return v, env.Type, nil
}
