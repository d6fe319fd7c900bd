// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package memstore implements an in-memory, process-local object
// store. It is the default store for single-process runs and for
// tests.
package memstore

import (
	"context"
	"sync"

	"github.com/grailbio/base/sync/ctxsync"
	"github.com/grailbio/conductor"
	"github.com/grailbio/conductor/errors"
	"github.com/grailbio/conductor/values"
)

// Store is an in-memory object store. Values are stored by
// reference and must not be mutated after they are put. Store is
// safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	cond    *ctxsync.Cond
	objects map[conductor.ObjectID]values.T
}

var _ conductor.Store = (*Store)(nil)

// New returns a new, empty store.
func New() *Store {
	s := &Store{objects: make(map[conductor.ObjectID]values.T)}
	s.cond = ctxsync.NewCond(&s.mu)
	return s
}

// Put stores value v under id. Put fails with a DuplicateWrite
// error if id has already been written.
func (s *Store) Put(ctx context.Context, id conductor.ObjectID, v values.T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[id]; ok {
		return errors.E("put", id, errors.DuplicateWrite)
	}
	s.objects[id] = v
	s.cond.Broadcast()
	return nil
}

// Get returns the value stored under id, blocking until it is
// written or the context is done.
func (s *Store) Get(ctx context.Context, id conductor.ObjectID) (values.T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if v, ok := s.objects[id]; ok {
			return v, nil
		}
		if err := s.cond.Wait(ctx); err != nil {
			return nil, errors.E("get", id, err)
		}
	}
}

// Exists tells whether id has been written.
func (s *Store) Exists(ctx context.Context, id conductor.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[id]
	return ok, nil
}

// Len returns the number of objects in the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
