// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package filestore

import (
	"os"
	"path/filepath"

	"github.com/grailbio/conductor"
	fswalker "github.com/grailbio/conductor/internal/walker"
)

// objwalker walks a store's directory tree, reconstructing object
// identifiers from the file layout. Temporary files are skipped.
type objwalker struct {
	walker fswalker.Walker
	id     conductor.ObjectID
	err    error
}

func (w *objwalker) Init(s *Store) {
	w.walker.Init(s.Root)
}

func (w *objwalker) ID() conductor.ObjectID {
	return w.id
}

func (w *objwalker) Err() error {
	if w.err != nil {
		return w.err
	}
	return w.walker.Err()
}

func (w *objwalker) Path() string {
	return w.walker.Path()
}

func (w *objwalker) Info() os.FileInfo {
	return w.walker.Info()
}

func (w *objwalker) Scan() bool {
	for {
		if !w.walker.Scan() {
			return false
		}
		if w.walker.Info().IsDir() {
			continue
		}
		path := w.Path()
		first, last := filepath.Base(filepath.Dir(path)), filepath.Base(path)
		if first == "tmp" {
			continue
		}
		d, err := conductor.Digester.Parse(first + last)
		if err != nil {
			w.err = err
			return false
		}
		w.id = conductor.ObjectID(d)
		return true
	}
}
