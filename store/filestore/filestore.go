// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package filestore implements a filesystem-backed object store.
// It stores encoded objects in a directory on disk; the objects
// are named by the hexadecimal representation of their identifier.
// Multiple processes sharing a directory may share a filestore.
package filestore

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/grailbio/base/data"
	"github.com/grailbio/base/retry"
	"github.com/grailbio/conductor"
	"github.com/grailbio/conductor/errors"
	"github.com/grailbio/conductor/log"
	"github.com/grailbio/conductor/values"
	"golang.org/x/sync/singleflight"
)

// pollPolicy paces Get's polling for objects that have not yet
// been written.
var pollPolicy = retry.Jitter(retry.Backoff(10*time.Millisecond, time.Second, 1.5), 0.2)

// Store implements a filesystem-backed object store.
type Store struct {
	// Root is the root directory for this store. This directory
	// contains all objects.
	Root string

	Log *log.Logger

	read singleflight.Group
}

var _ conductor.Store = (*Store)(nil)

// Path returns the filesystem directory and full path of the
// object with the given id.
func (s *Store) Path(id conductor.ObjectID) (dir, path string) {
	dir = filepath.Join(s.Root, id.Hex()[:2])
	return dir, filepath.Join(dir, id.Hex()[2:])
}

// Put stores value v under id. Put fails with a DuplicateWrite
// error if id has already been written. The object is written to a
// temporary file and linked into place, so concurrent writers of
// the same id cannot observe partial objects.
func (s *Store) Put(ctx context.Context, id conductor.ObjectID, v values.T) error {
	if ok, _ := s.Exists(ctx, id); ok {
		return errors.E("put", id, errors.DuplicateWrite)
	}
	p, err := values.Encode(v)
	if err != nil {
		return errors.E("put", id, errors.Invalid, err)
	}
	temp, err := s.TempFile("put-")
	if err != nil {
		return errors.E("put", id, err)
	}
	defer os.Remove(temp.Name())
	if _, err := temp.Write(p); err != nil {
		temp.Close()
		return errors.E("put", id, err)
	}
	if err := temp.Close(); err != nil {
		return errors.E("put", id, err)
	}
	dir, path := s.Path(id)
	if err := os.MkdirAll(dir, 0777); err != nil {
		return errors.E("put", id, err)
	}
	err = os.Link(temp.Name(), path)
	if os.IsExist(err) {
		return errors.E("put", id, errors.DuplicateWrite)
	}
	if err != nil {
		return errors.E("put", id, err)
	}
	return nil
}

// Get returns the value stored under id. If the object has not yet
// been written, Get polls the store until it appears or the
// context is done.
func (s *Store) Get(ctx context.Context, id conductor.ObjectID) (values.T, error) {
	for retries := 0; ; retries++ {
		v, err := s.load(id)
		if err == nil {
			return v, nil
		}
		if !errors.Is(errors.NotExist, err) {
			return nil, err
		}
		if err := retry.Wait(ctx, pollPolicy, retries); err != nil {
			return nil, errors.E("get", id, err)
		}
	}
}

// load reads and decodes the object named by id. Concurrent loads
// of the same object are deduplicated.
func (s *Store) load(id conductor.ObjectID) (values.T, error) {
	v, err, _ := s.read.Do(id.Hex(), func() (interface{}, error) {
		_, path := s.Path(id)
		p, err := ioutil.ReadFile(path)
		if err != nil {
			return nil, errors.E("get", id, err)
		}
		v, _, err := values.Decode(p)
		if err != nil {
			return nil, errors.E("get", id, errors.Invalid, err)
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Exists tells whether id has been written.
func (s *Store) Exists(ctx context.Context, id conductor.ObjectID) (bool, error) {
	_, path := s.Path(id)
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

// Scan invokes handler for each object in the store.
func (s *Store) Scan(ctx context.Context, handler func(conductor.ObjectID) error) error {
	var w objwalker
	w.Init(s)
	for w.Scan() {
		if err := handler(w.ID()); err != nil {
			return err
		}
	}
	return w.Err()
}

// Size returns the total size of the objects in the store.
func (s *Store) Size(ctx context.Context) (data.Size, error) {
	var w objwalker
	w.Init(s)
	var size int64
	for w.Scan() {
		size += w.Info().Size()
	}
	return data.Size(size), w.Err()
}

// Collect removes any objects in the store that are not also in
// the live set.
func (s *Store) Collect(ctx context.Context, live conductor.Liveset) error {
	var w objwalker
	w.Init(s)
	var (
		n    int
		size int64
	)
	for w.Scan() {
		if live != nil && live.Contains(w.ID()) {
			continue
		}
		size += w.Info().Size()
		if err := os.Remove(w.Path()); err != nil {
			s.Log.Errorf("remove %q: %v", w.Path(), err)
		}
		// Clean up object subdirectories. (Ignores failure when nonempty.)
		os.Remove(filepath.Dir(w.Path()))
		n++
	}
	if live != nil {
		s.Log.Printf("collected %v objects (%s)", n, data.Size(size))
	}
	return w.Err()
}

// TempFile creates and returns a new temporary file adjacent to
// the store. Files created by TempFile can be efficiently linked
// into the store. The caller is responsible for cleaning up
// temporary files.
func (s *Store) TempFile(prefix string) (*os.File, error) {
	dir := filepath.Join(s.Root, "tmp")
	os.MkdirAll(dir, 0777)
	return ioutil.TempFile(dir, prefix)
}
