// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package runtime implements the conductor driver API: the runtime
// through which applications register functions, invoke them
// asynchronously, and fetch their results.
//
// A Runtime binds together a function registry, an object store, and
// a task scheduler. Register declares functions before the runtime
// starts; Start seals the registry and commences scheduling; Invoke
// submits an invocation as a task and returns one future per
// declared output; Fetch blocks until a future's value is available.
// Passing a future as an argument to a later invocation defers that
// invocation until the task producing the future has completed.
package runtime

import (
	"context"
	"sync"

	"github.com/grailbio/base/status"
	"github.com/grailbio/base/sync/once"
	"github.com/grailbio/conductor"
	"github.com/grailbio/conductor/config"
	"github.com/grailbio/conductor/errors"
	"github.com/grailbio/conductor/log"
	"github.com/grailbio/conductor/registry"
	"github.com/grailbio/conductor/sched"
)

// Params defines the set of parameters necessary to initialize a
// Runtime.
type Params struct {
	// Config is the main configuration for the conductor runtime.
	// It provides the runtime's object store, worker count, and
	// default logger.
	Config config.Config

	// Logger is the top-level logger passed to the various
	// underlying components. Logger is optional and overrides the
	// Config provided logger (if any).
	Logger *log.Logger

	// Optional parameters

	// Status is the top-level status object. If provided, internal
	// components create groups under this status object for
	// reporting purposes.
	Status *status.Status
}

// New creates a new runtime from the given parameters. New returns
// an error upon failure to set up and initialize the runtime.
func New(p Params) (*Runtime, error) {
	rt := &Runtime{Params: p}
	return rt, rt.init()
}

// A Runtime is a conductor runtime environment for registering,
// invoking, and fetching distributed function invocations. A
// Runtime manages the underlying components necessary to process
// invocations: the function registry, the object store, and the
// task scheduler.
//
// A Runtime must be started with Start before invocations are
// accepted; registration is closed once the runtime starts. The
// methods of a Runtime are safe for concurrent use.
type Runtime struct {
	Params

	store     conductor.Store
	scheduler *sched.Scheduler
	reg       *registry.Registry
	rtLog     *log.Logger

	startOnce once.Task
	cancel    context.CancelFunc
	done      chan struct{}

	mu        sync.Mutex
	started   bool
	producers map[conductor.ObjectID]*sched.Task
}

func (rt *Runtime) init() (err error) {
	if rt.Config == nil {
		return errors.E("runtime.init", errors.Invalid, errors.New("no config provided"))
	}
	if rt.Logger == nil {
		if rt.Logger, err = rt.Config.Logger(); err != nil {
			return errors.E("runtime.init", "logger", errors.Fatal, err)
		}
	}
	rt.rtLog = rt.Logger.Tee(nil, "runtime: ")

	if rt.store, err = rt.Config.Store(); err != nil {
		return errors.E("runtime.init", "store", errors.Fatal, err)
	}
	workers, err := rt.Config.Workers()
	if err != nil {
		return errors.E("runtime.init", "workers", errors.Fatal, err)
	}

	rt.scheduler = sched.New()
	rt.scheduler.Store = rt.store
	rt.scheduler.Log = rt.Logger.Tee(nil, "sched: ")
	rt.scheduler.NumWorkers = workers

	rt.reg = registry.New()
	rt.producers = make(map[conductor.ObjectID]*sched.Task)

	rt.setupStatus()
	return nil
}

func (rt *Runtime) setupStatus() {
	if rt.Status == nil {
		return
	}
	rt.scheduler.Status = rt.Status.Group("tasks")
}

// Store returns the runtime's object store.
func (rt *Runtime) Store() conductor.Store {
	return rt.store
}

// Stats returns a snapshot of the runtime's scheduler statistics.
func (rt *Runtime) Stats() sched.StatsData {
	return rt.scheduler.Stats.GetStats()
}

// Start starts the runtime: the registry is sealed and the
// scheduler commences dispatching tasks. Start uses the provided
// context to run the runtime's background processes, upon
// cancellation of which the runtime becomes unviable. Start is
// idempotent.
func (rt *Runtime) Start(ctx context.Context) {
	_ = rt.startOnce.Do(func() error {
		rt.doStart(ctx)
		return nil
	})
}

func (rt *Runtime) doStart(ctx context.Context) {
	rt.reg.Seal()
	rt.mu.Lock()
	rt.started = true
	rt.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	rt.cancel = cancel
	rt.done = make(chan struct{})
	rt.rtLog.Debug("started")
	go func() {
		defer close(rt.done)
		if err := rt.scheduler.Do(ctx); err != nil && err != context.Canceled {
			rt.rtLog.Errorf("scheduler: %v", err)
		}
		rt.rtLog.Debug("shutdown")
	}()
}

// Shutdown stops the runtime and waits for the scheduler to drain.
// Tasks that have not reached a terminal state are failed.
// Shutdown may only be called after Start.
func (rt *Runtime) Shutdown() {
	rt.cancel()
	<-rt.done
}
