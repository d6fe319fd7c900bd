// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package s3store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/grailbio/base/retry"
	"github.com/grailbio/conductor"
	"github.com/grailbio/conductor/errors"
	"github.com/grailbio/conductor/values"
	"github.com/grailbio/testutil/s3test"
	"golang.org/x/time/rate"
)

const bucket = "conductor-test"

func newTestStore(t *testing.T) (*Store, *s3test.Client) {
	t.Helper()
	client := s3test.NewClient(t, bucket)
	store := New(client, bucket, "conductor")
	store.Admitter = rate.NewLimiter(rate.Every(time.Millisecond), 1)
	return store, client
}

func TestPutGet(t *testing.T) {
	store, _ := newTestStore(t)
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
}

func TestDuplicateWrite(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	id := conductor.NewObjectID()
	if err := store.Put(ctx, id, "first"); err != nil {
		t.Fatal(err)
	}
	err := store.Put(ctx, id, "second")
	if !errors.Is(errors.DuplicateWrite, err) {
		t.Errorf("got %v, want DuplicateWrite", err)
	}
	v, err := store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := v, values.T("first"); !values.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestGetBlocks(t *testing.T) {
	store, _ := newTestStore(t)
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

func TestGetCancel(t *testing.T) {
	store, _ := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error)
	go func() {
		_, err := store.Get(ctx, conductor.NewObjectID())
		errc <- err
	}()
	cancel()
	if err := <-errc; !errors.Is(errors.Canceled, err) {
		t.Errorf("got %v, want Canceled", err)
	}
}

func TestGetTransient(t *testing.T) {
	save := retryPolicy
	retryPolicy = retry.MaxTries(retry.Backoff(time.Millisecond, 10*time.Millisecond, 1.5), 4)
	defer func() { retryPolicy = save }()

	store, client := newTestStore(t)
	ctx := context.Background()

	id := conductor.NewObjectID()
	if err := store.Put(ctx, id, int64(123)); err != nil {
		t.Fatal(err)
	}
	var (
		mu    sync.Mutex
		fails = 2
	)
	client.Err = func(api string, input interface{}) error {
		if api != "GetObjectRequest" {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		if fails > 0 {
			fails--
			return awserr.New("SlowDown", "slow down", nil)
		}
		return nil
	}
	v, err := store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := v, values.T(int64(123)); !values.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	mu.Lock()
	defer mu.Unlock()
	if fails != 0 {
		t.Errorf("got %d remaining failures, want 0", fails)
	}
}

func TestScan(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	want := map[conductor.ObjectID]bool{}
	for i := 0; i < 10; i++ {
		id := conductor.NewObjectID()
		if err := store.Put(ctx, id, int64(i)); err != nil {
			t.Fatal(err)
		}
		want[id] = true
	}
	got := map[conductor.ObjectID]bool{}
	err := store.Scan(ctx, func(id conductor.ObjectID) error {
		got[id] = true
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d objects, want %d", len(got), len(want))
	}
	for id := range want {
		if !got[id] {
			t.Errorf("missing object %v", id)
		}
	}
	size, err := store.Size(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if size <= 0 {
		t.Errorf("got size %v, want positive", size)
	}
}

type mapLiveset map[conductor.ObjectID]bool

func (m mapLiveset) Contains(id conductor.ObjectID) bool { return m[id] }

func TestCollect(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	live := make(mapLiveset)
	var dead []conductor.ObjectID
	for i := 0; i < 10; i++ {
		id := conductor.NewObjectID()
		if err := store.Put(ctx, id, int64(i)); err != nil {
			t.Fatal(err)
		}
		if i%2 == 0 {
			live[id] = true
		} else {
			dead = append(dead, id)
		}
	}
	if err := store.Collect(ctx, live); err != nil {
		t.Fatal(err)
	}
	for id := range live {
		ok, err := store.Exists(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Errorf("live object %v was collected", id)
		}
	}
	for _, id := range dead {
		ok, err := store.Exists(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Errorf("dead object %v was not collected", id)
		}
	}
}
