// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package runtime

import (
	"context"

	"github.com/grailbio/conductor"
	"github.com/grailbio/conductor/errors"
	"github.com/grailbio/conductor/sched"
	"github.com/grailbio/conductor/values"
	"golang.org/x/sync/errgroup"
)

// Fetch returns the value referred to by the future, blocking until
// the task producing it has completed. If that task failed, or any
// task it transitively depends on failed, Fetch returns a
// DependencyFailed error identifying the originally failing task and
// wrapping its failure. Futures minted by Put are fetched directly
// from the store.
func (rt *Runtime) Fetch(ctx context.Context, f conductor.Future) (values.T, error) {
	if !f.IsValid() {
		return nil, errors.E("fetch", errors.Invalid, errors.New("invalid future"))
	}
	rt.mu.Lock()
	task := rt.producers[f.ID]
	rt.mu.Unlock()
	if task == nil {
		return rt.store.Get(ctx, f.ID)
	}
	if err := task.Wait(ctx, sched.TaskDone); err != nil {
		return nil, errors.E("fetch", f.ID, err)
	}
	if task.State() == sched.TaskFailed {
		if errors.Is(errors.DependencyFailed, task.Err) {
			return nil, errors.E("fetch", task.Err)
		}
		return nil, errors.E("fetch", "task "+task.ID.IDShort(), errors.DependencyFailed, task.Err)
	}
	return rt.store.Get(ctx, f.ID)
}

// FetchAll fetches all of the provided futures, returning their
// values in corresponding order. If any fetch fails, FetchAll
// returns the first error encountered.
func (rt *Runtime) FetchAll(ctx context.Context, futures ...conductor.Future) ([]values.T, error) {
	vs := make([]values.T, len(futures))
	g, ctx := errgroup.WithContext(ctx)
	for i := range futures {
		i := i
		g.Go(func() error {
			var err error
			vs[i], err = rt.Fetch(ctx, futures[i])
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vs, nil
}

// Put deposits a driver-side value into the object store under a
// fresh object identifier and returns an already-ready future
// referring to it. The returned future may be passed as an argument
// to invocations or fetched back. The value is converted by
// values.Of.
func (rt *Runtime) Put(ctx context.Context, v interface{}) (conductor.Future, error) {
	val, err := values.Of(v)
	if err != nil {
		return conductor.Future{}, errors.E("put", errors.Invalid, err)
	}
	t, err := values.Typeof(val)
	if err != nil {
		return conductor.Future{}, errors.E("put", errors.Invalid, err)
	}
	f := conductor.Future{ID: conductor.NewObjectID(), Type: t}
	if err := rt.store.Put(ctx, f.ID, val); err != nil {
		return conductor.Future{}, err
	}
	return f, nil
}
