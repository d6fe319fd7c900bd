// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package walker

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/grailbio/testutil"
)

func TestWalker(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "walker")
	defer cleanup()
	testutil.CreateDirectoryTree(t, dir, 3, 2, 2)
	var want []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path != dir {
			want = append(want, path)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	var w Walker
	w.Init(dir)
	var got []string
	for w.Scan() {
		got = append(got, w.Path())
	}
	if err := w.Err(); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestWalkerRelpath(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "walker")
	defer cleanup()
	testutil.CreateDirectoryTree(t, dir, 2, 2, 2)
	var w Walker
	w.Init(dir)
	for w.Scan() {
		if got, want := w.Path(), filepath.Join(dir, w.Relpath()); got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
	if err := w.Err(); err != nil {
		t.Fatal(err)
	}
}

func TestWalkerEmpty(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "walker")
	defer cleanup()
	var w Walker
	w.Init(dir)
	if w.Scan() {
		t.Error("scan of empty directory returned an entry")
	}
	if err := w.Err(); err != nil {
		t.Fatal(err)
	}
}

func TestWalkerMissingRoot(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "walker")
	defer cleanup()
	var w Walker
	w.Init(filepath.Join(dir, "nonexistent"))
	if w.Scan() {
		t.Error("scan of missing root returned an entry")
	}
	if err := w.Err(); err != nil {
		t.Fatal(err)
	}
}
