// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package registry implements the function registry through which
// applications make functions available for invocation. Functions
// are registered by unique name before the runtime starts; the
// registry is then sealed and shared read-only by the scheduler
// and its workers.
package registry

import (
	"sort"
	"sync"

	"github.com/grailbio/conductor"
	"github.com/grailbio/conductor/errors"
	"github.com/grailbio/conductor/types"
)

// A Registry maps function names to their specifications. The zero
// Registry is ready to use. Registries are safe for concurrent
// use.
type Registry struct {
	mu     sync.Mutex
	funcs  map[string]*conductor.FuncSpec
	sealed bool
}

// New returns a fresh, empty registry.
func New() *Registry {
	return &Registry{funcs: make(map[string]*conductor.FuncSpec)}
}

// Register adds the function spec to the registry. Register fails
// with a DuplicateRegistration error if a function with the same
// name has already been registered, and with an Invalid error if
// the spec is malformed or the registry has been sealed.
func (r *Registry) Register(spec *conductor.FuncSpec) error {
	if err := validate(spec); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return errors.E("register", spec.Name, errors.Invalid, errors.New("registry is sealed"))
	}
	if r.funcs == nil {
		r.funcs = make(map[string]*conductor.FuncSpec)
	}
	if _, ok := r.funcs[spec.Name]; ok {
		return errors.E("register", spec.Name, errors.DuplicateRegistration)
	}
	r.funcs[spec.Name] = spec
	return nil
}

// Lookup returns the spec registered under the given name. Lookup
// fails with an UnknownFunction error if no such function has been
// registered.
func (r *Registry) Lookup(name string) (*conductor.FuncSpec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	spec, ok := r.funcs[name]
	if !ok {
		return nil, errors.E("lookup", name, errors.UnknownFunction)
	}
	return spec, nil
}

// Seal closes the registry to further registration. Sealing is
// idempotent.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Names returns the names of all registered functions in sorted
// order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func validate(spec *conductor.FuncSpec) error {
	if spec.Name == "" {
		return errors.E("register", errors.Invalid, errors.New("missing function name"))
	}
	if spec.Body == nil {
		return errors.E("register", spec.Name, errors.Invalid, errors.New("missing function body"))
	}
	if err := types.ValidSignature(spec.Args); err != nil {
		return errors.E("register", spec.Name, errors.Invalid, err)
	}
	if len(spec.Returns) == 0 {
		return errors.E("register", spec.Name, errors.Invalid, errors.New("function declares no outputs"))
	}
	for i, t := range spec.Returns {
		if t == nil || t.Kind == types.ErrorKind || t.Kind == types.RestKind {
			return errors.E("register", spec.Name, errors.Invalid,
				errors.Errorf("output %d: illegal type", i))
		}
	}
	return nil
}
