// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package types

import (
	"encoding/json"
	"fmt"
)

// typeJSON is the JSON representation of a type tree. It is used
// by stores that marshal values together with their types.
type typeJSON struct {
	Kind   string      `json:"kind"`
	Index  *T          `json:"index,omitempty"`
	Elem   *T          `json:"elem,omitempty"`
	Fields []fieldJSON `json:"fields,omitempty"`
}

type fieldJSON struct {
	Name string `json:"name,omitempty"`
	Type *T     `json:"type"`
}

// MarshalJSON marshals the type tree into JSON. Error types cannot
// be marshaled.
func (t *T) MarshalJSON() ([]byte, error) {
	if t.Kind == ErrorKind {
		return nil, fmt.Errorf("cannot marshal error type: %v", t.Error)
	}
	tj := typeJSON{Kind: t.Kind.String(), Index: t.Index, Elem: t.Elem}
	for _, f := range t.Fields {
		tj.Fields = append(tj.Fields, fieldJSON{Name: f.Name, Type: f.T})
	}
	return json.Marshal(tj)
}

// UnmarshalJSON unmarshals a type tree from JSON, as marshaled by
// MarshalJSON.
func (t *T) UnmarshalJSON(p []byte) error {
	var tj typeJSON
	if err := json.Unmarshal(p, &tj); err != nil {
		return err
	}
	kind, ok := kindByString(tj.Kind)
	if !ok || kind == ErrorKind {
		return fmt.Errorf("cannot unmarshal type of kind %q", tj.Kind)
	}
	t.Kind = kind
	t.Index = tj.Index
	t.Elem = tj.Elem
	t.Fields = nil
	t.Error = nil
	for _, f := range tj.Fields {
		t.Fields = append(t.Fields, &Field{Name: f.Name, T: f.Type})
	}
	switch t.Kind {
	case ListKind:
		if t.Elem == nil {
			return fmt.Errorf("list type missing element type")
		}
	case MapKind:
		if t.Index == nil || t.Elem == nil {
			return fmt.Errorf("map type missing index or element type")
		}
	}
	return nil
}

func kindByString(s string) (Kind, bool) {
	for kind, str := range kindStrings {
		if s == str {
			return Kind(kind), true
		}
	}
	return ErrorKind, false
}
