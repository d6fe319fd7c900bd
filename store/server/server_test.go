// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package server

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/grailbio/conductor"
	"github.com/grailbio/conductor/errors"
	"github.com/grailbio/conductor/internal/bloomlive"
	"github.com/grailbio/conductor/rest"
	"github.com/grailbio/conductor/store/client"
	"github.com/grailbio/conductor/store/filestore"
	"github.com/grailbio/conductor/store/memstore"
	"github.com/grailbio/conductor/values"
	"github.com/grailbio/testutil"
)

func newClientServer(t *testing.T, store conductor.Store) (*client.Client, func()) {
	t.Helper()
	srv := httptest.NewServer(rest.Handler(Node{store}, nil))
	c, err := client.New(srv.URL, nil, nil)
	if err != nil {
		srv.Close()
		t.Fatal(err)
	}
	return c, srv.Close
}

func TestClientServer(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "serverstore")
	defer cleanup()
	store, closeSrv := newClientServer(t, &filestore.Store{Root: dir})
	defer closeSrv()
	ctx := context.Background()

	id := conductor.NewObjectID()
	if ok, err := store.Exists(ctx, id); err != nil || ok {
		t.Errorf("got %v, %v, want false, nil", ok, err)
	}
	want := values.T(values.Dict{"a": int64(2), "b": int64(1)})
	if err := store.Put(ctx, id, want); err != nil {
		t.Fatal(err)
	}
	if ok, err := store.Exists(ctx, id); err != nil || !ok {
		t.Errorf("got %v, %v, want true, nil", ok, err)
	}
	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !values.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	err = store.Put(ctx, id, "second")
	if !errors.Is(errors.DuplicateWrite, err) {
		t.Errorf("got %v, want DuplicateWrite", err)
	}
}

func TestClientServerBlocks(t *testing.T) {
	store, closeSrv := newClientServer(t, memstore.New())
	defer closeSrv()
	ctx := context.Background()

	id := conductor.NewObjectID()
	got := make(chan values.T)
	errc := make(chan error)
	go func() {
		v, err := store.Get(ctx, id)
		if err != nil {
			errc <- err
			return
		}
		got <- v
	}()
	select {
	case v := <-got:
		t.Fatalf("get returned %v before put", v)
	case err := <-errc:
		t.Fatal(err)
	case <-time.After(20 * time.Millisecond):
	}
	if err := store.Put(ctx, id, int64(123)); err != nil {
		t.Fatal(err)
	}
	select {
	case v := <-got:
		if want := values.T(int64(123)); !values.Equal(v, want) {
			t.Errorf("got %v, want %v", v, want)
		}
	case err := <-errc:
		t.Fatal(err)
	}
}

func TestClientServerCollect(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "serverstore")
	defer cleanup()
	store, closeSrv := newClientServer(t, &filestore.Store{Root: dir})
	defer closeSrv()
	ctx := context.Background()

	id1, id2 := conductor.NewObjectID(), conductor.NewObjectID()
	if err := store.Put(ctx, id1, "live"); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, id2, "dead"); err != nil {
		t.Fatal(err)
	}
	live := bloomlive.New(64, 0.01)
	live.Add(id1)
	if err := store.Collect(ctx, live); err != nil {
		t.Fatal(err)
	}
	if ok, err := store.Exists(ctx, id1); err != nil || !ok {
		t.Errorf("got %v, %v, want true, nil", ok, err)
	}
	if ok, err := store.Exists(ctx, id2); err != nil || ok {
		t.Errorf("got %v, %v, want false, nil", ok, err)
	}
}

func TestClientServerCollectNotSupported(t *testing.T) {
	store, closeSrv := newClientServer(t, memstore.New())
	defer closeSrv()

	live := bloomlive.New(64, 0.01)
	err := store.Collect(context.Background(), live)
	if !errors.Is(errors.NotSupported, err) {
		t.Errorf("got %v, want NotSupported", err)
	}
}
