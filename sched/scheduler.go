// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package sched implements task scheduling for conductor.
//
// A unit of work is encapsulated by a Task, and is submitted to the
// scheduler. A task becomes ready once every object it depends on
// has been written to the scheduler's store; ready tasks are
// dispatched to a bounded pool of workers in submission order. A
// worker resolves the task's argument references from the store,
// invokes the function body, and writes the declared outputs back
// to the store, unblocking any tasks that depend on them.
//
// When a task fails, tasks that transitively depend on its outputs
// fail without running; their errors identify the task whose
// failure originated the cascade.
package sched

import (
	"container/heap"
	"context"
	"runtime/debug"

	"github.com/grailbio/base/status"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/conductor"
	"github.com/grailbio/conductor/errors"
	"github.com/grailbio/conductor/log"
	"github.com/grailbio/conductor/values"
)

// DefaultWorkers is the number of workers used when the Scheduler's
// NumWorkers is left unset.
const DefaultWorkers = 8

// A Scheduler is responsible for managing a set of tasks and
// dispatching them to workers as their dependencies are written.
// The scheduler can manage large numbers of tasks efficiently.
type Scheduler struct {
	// Store is the object store from which argument references are
	// resolved and to which task outputs are written.
	Store conductor.Store
	// Log logs scheduler actions.
	Log *log.Logger
	// NumWorkers is the maximum number of tasks executed
	// concurrently.
	NumWorkers int
	// Stats is the scheduler stats.
	Stats *Stats
	// Status is an optional status group to which the progress of
	// running tasks is reported.
	Status *status.Group

	submitc chan []*Task
}

// New returns a new Scheduler instance. The caller may customize
// its parameters before starting scheduling by invoking
// Scheduler.Do.
func New() *Scheduler {
	return &Scheduler{
		submitc:    make(chan []*Task),
		NumWorkers: DefaultWorkers,
		Stats:      newStats(),
	}
}

// Submit adds a set of tasks to the scheduler's todo list. The
// provided tasks are managed by the scheduler after this call. The
// scheduler manages a task until it reaches a terminal state;
// progress is observed with Task.Wait.
func (s *Scheduler) Submit(tasks ...*Task) {
	for _, task := range tasks {
		task.Log.Debugf("submit %s", task.Func.Name)
	}
	tasksCopy := append([]*Task{}, tasks...)
	s.submitc <- tasksCopy
}

// ExportStats exports scheduler stats as expvars.
func (s *Scheduler) ExportStats() {
	s.Stats.Publish()
}

// Do commences scheduling. The scheduler runs until the provided
// context is canceled, after which all submitted tasks are failed
// and the context error is returned.
func (s *Scheduler) Do(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The loop owns all dependency bookkeeping. Objects move
	// through three maps: producers names the submitted task that
	// will write each object; written records objects that have
	// been written; failed records, for each object whose producer
	// failed, the error to propagate to its consumers. Tasks
	// blocked on an object are parked in waiters and are made ready
	// when their last dependency is written.
	//
	// Ready tasks are kept in a queue ordered by submission
	// sequence number and dispatched in that order whenever a
	// worker is free.
	var (
		todo      taskq
		producers = make(map[conductor.ObjectID]*Task)
		written   = make(map[conductor.ObjectID]bool)
		failed    = make(map[conductor.ObjectID]error)
		waiters   = make(map[conductor.ObjectID][]*Task)

		nrunning int
		seq      uint64

		returnc = make(chan *Task)
	)
	max := s.NumWorkers
	if max < 1 {
		max = 1
	}

	// ready marks the task ready and queues it for dispatch.
	ready := func(task *Task) {
		task.Set(TaskReady)
		heap.Push(&todo, task)
	}

	// fail fails the task and cascades the failure to its waiters.
	var fail func(task *Task, err error)

	// cascade propagates the task's failure to every task waiting on
	// one of its outputs. The propagated error is derived once from
	// the originating task's error, so that transitive consumers
	// identify the origin of the cascade.
	cascade := func(task *Task, err error) {
		depErr := err
		if !errors.Is(errors.DependencyFailed, depErr) {
			depErr = errors.E("task "+task.ID.IDShort(), errors.DependencyFailed, depErr)
		}
		for _, out := range task.Outputs {
			failed[out.ID] = depErr
			delete(producers, out.ID)
			for _, waiter := range waiters[out.ID] {
				fail(waiter, depErr)
			}
			delete(waiters, out.ID)
		}
	}

	fail = func(task *Task, err error) {
		if task.State() >= TaskDone {
			return
		}
		task.Err = err
		task.Set(TaskFailed)
		cascade(task, err)
	}

	// write records the object as written and unblocks its waiters.
	write := func(id conductor.ObjectID) {
		written[id] = true
		delete(producers, id)
		for _, waiter := range waiters[id] {
			if waiter.State() >= TaskDone {
				continue
			}
			waiter.npending--
			if waiter.npending == 0 {
				ready(waiter)
			}
		}
		delete(waiters, id)
	}

	for {
		select {
		case <-ctx.Done():
			// After being canceled, we fail all queued and parked
			// tasks, then drain the running ones. (All of which will
			// be canceled by the same context cancellation.)
			for _, task := range todo {
				task.Err = ctx.Err()
				task.Set(TaskFailed)
			}
			for _, parked := range waiters {
				for _, task := range parked {
					if task.State() >= TaskDone {
						continue
					}
					task.Err = ctx.Err()
					task.Set(TaskFailed)
				}
			}
			for ; nrunning > 0; nrunning-- {
				task := <-returnc
				if task.status != nil {
					task.status.Done()
				}
			}
			return ctx.Err()
		case tasks := <-s.submitc:
			s.Stats.AddTasks(tasks)
			for _, task := range tasks {
				task.seq = seq
				seq++
				for _, out := range task.Outputs {
					producers[out.ID] = task
				}
				var depErr error
				for _, arg := range task.Args {
					if !arg.IsRef() || written[arg.ID] {
						continue
					}
					if err, ok := failed[arg.ID]; ok {
						depErr = err
						break
					}
					if _, ok := producers[arg.ID]; !ok {
						// Not produced by any submitted task: either
						// written directly by the driver, or unknown.
						// An unknown reference parks the task until
						// the object appears.
						ok, err := s.Store.Exists(ctx, arg.ID)
						if err != nil {
							depErr = errors.E("exists", arg.ID, err)
							break
						}
						if ok {
							written[arg.ID] = true
							continue
						}
						task.Log.Errorf("parked on unknown object %s", arg.ID.Short())
					}
					waiters[arg.ID] = append(waiters[arg.ID], task)
					task.npending++
				}
				switch {
				case depErr != nil:
					fail(task, depErr)
				case task.npending == 0:
					ready(task)
				}
			}
		case task := <-returnc:
			nrunning--
			if task.status != nil {
				if task.State() == TaskFailed {
					task.status.Printf("failed: %v", task.Err)
				} else {
					task.status.Print("done")
				}
				task.status.Done()
				task.status = nil
			}
			if task.State() == TaskFailed {
				// The worker already set the task's state; only the
				// cascade to its waiters remains.
				cascade(task, task.Err)
			} else {
				for _, out := range task.Outputs {
					write(out.ID)
				}
			}
		}

		for nrunning < max && len(todo) > 0 {
			task := heap.Pop(&todo).(*Task)
			task.Log.Debugf("dispatch %s", task.Func.Name)
			task.Set(TaskRunning)
			if s.Status != nil {
				task.status = s.Status.Start(task.Func.Name)
				task.status.Print("running")
			}
			nrunning++
			go s.run(ctx, task, returnc)
		}
	}
}

// run executes the task and delivers it back to the scheduler
// loop.
func (s *Scheduler) run(ctx context.Context, task *Task, returnc chan<- *Task) {
	if err := s.exec(ctx, task); err != nil {
		task.Log.Debugf("%s failed: %v", task.Func.Name, err)
		task.Err = err
		task.Set(TaskFailed)
	} else {
		task.Set(TaskDone)
	}
	returnc <- task
}

// exec resolves the task's arguments, invokes its function body,
// and writes the outputs to the store. The output count is
// validated before any output is written, so a task that returns
// the wrong number of values writes nothing.
func (s *Scheduler) exec(ctx context.Context, task *Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			task.Log.Errorf("panic in %s: %v\n%s", task.Func.Name, p, debug.Stack())
			err = errors.E("exec", task.Func.Name, errors.Fatal, errors.Errorf("panic: %v", p))
		}
	}()
	args := make([]values.T, len(task.Args))
	for i, arg := range task.Args {
		if !arg.IsRef() {
			args[i] = arg.Value
			continue
		}
		v, gerr := s.Store.Get(ctx, arg.ID)
		if gerr != nil {
			return errors.E("exec", task.Func.Name, gerr)
		}
		args[i] = v
	}
	result, err := task.Func.Body(ctx, args)
	if err != nil {
		return errors.E("exec", task.Func.Name, err)
	}
	outs, err := taskOutputs(task.Func, result)
	if err != nil {
		return err
	}
	err = traverse.Each(len(outs), func(i int) error {
		return s.Store.Put(ctx, task.Outputs[i].ID, outs[i])
	})
	if err != nil {
		return errors.E("exec", task.Func.Name, err)
	}
	return nil
}

// taskOutputs splits the body's result into the task's declared
// outputs. Functions declaring one output return their value
// directly; functions declaring several return a tuple with one
// value per output.
func taskOutputs(f *conductor.FuncSpec, result values.T) ([]values.T, error) {
	n := f.NumOut()
	if n == 1 {
		return []values.T{result}, nil
	}
	tup, ok := result.(values.Tuple)
	if !ok {
		return nil, errors.E("exec", f.Name, errors.OutputArity, errors.New("returned 1 value"))
	}
	if len(tup) != n {
		return nil, errors.E("exec", f.Name, errors.OutputArity, errors.Errorf("returned %d values", len(tup)))
	}
	return tup, nil
}
