// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package walker provides a scanner-style directory tree walker
// used by the file store to enumerate stored objects.
package walker

import (
	"os"
	"path/filepath"
	"sort"
)

// A Walker traverses a directory tree in depth-first order,
// presenting a scanner-style interface. Entries within a directory
// are visited in lexical order. The root itself is not reported.
type Walker struct {
	root string
	err  error
	path string
	rel  string
	info os.FileInfo
	todo []string
}

// Init initializes the walker rooted at the provided path.
// Init must be called before Scan.
func (w *Walker) Init(root string) {
	w.root = root
	w.err = nil
	w.todo = []string{""}
}

// Scan advances the walker to the next entry in the tree. It
// returns false when the walk stops, either because it has
// completed or because of an error. Entries that disappear during
// the walk are skipped.
func (w *Walker) Scan() bool {
	for w.err == nil && len(w.todo) > 0 {
		rel := w.todo[0]
		w.todo = w.todo[1:]
		path := filepath.Join(w.root, rel)
		info, err := os.Lstat(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			w.err = err
			break
		}
		if info.IsDir() {
			names, err := readDirNames(path)
			if err != nil {
				w.err = err
				break
			}
			down := make([]string, len(names), len(names)+len(w.todo))
			for i, name := range names {
				down[i] = filepath.Join(rel, name)
			}
			w.todo = append(down, w.todo...)
			if rel == "" {
				continue
			}
		}
		w.path, w.rel, w.info = path, rel, info
		return true
	}
	return false
}

// Path returns the full path of the current entry.
func (w *Walker) Path() string { return w.path }

// Relpath returns the path of the current entry relative to the
// walk's root.
func (w *Walker) Relpath() string { return w.rel }

// Info returns the os.FileInfo of the current entry.
func (w *Walker) Info() os.FileInfo { return w.info }

// Err returns the error, if any, that stopped the walk.
func (w *Walker) Err() error { return w.err }

func readDirNames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	names, err := f.Readdirnames(-1)
	f.Close()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
