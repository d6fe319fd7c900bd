// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sched

import (
	"context"
	"strings"
	"testing"

	"github.com/grailbio/conductor"
	"github.com/grailbio/conductor/errors"
	"github.com/grailbio/conductor/store/memstore"
	"github.com/grailbio/conductor/types"
	"github.com/grailbio/conductor/values"
)

func newTestScheduler(t *testing.T, workers int) (*Scheduler, *memstore.Store, func()) {
	t.Helper()
	store := memstore.New()
	scheduler := New()
	scheduler.Store = store
	scheduler.NumWorkers = workers
	ctx, cancel := context.WithCancel(context.Background())
	go scheduler.Do(ctx)
	return scheduler, store, cancel
}

func newTask(f *conductor.FuncSpec, args ...conductor.Arg) *Task {
	task := NewTask()
	task.Func = f
	task.Args = args
	task.Outputs = make([]conductor.Future, len(f.Returns))
	for i, typ := range f.Returns {
		task.Outputs[i] = conductor.Future{ID: conductor.NewObjectID(), Type: typ}
	}
	return task
}

func literal(v values.T, t *types.T) conductor.Arg {
	return conductor.Arg{Value: v, Type: t}
}

func ref(f conductor.Future) conductor.Arg {
	return conductor.Arg{Type: f.Type, ID: f.ID}
}

func incr(ctx context.Context, args []values.T) (values.T, error) {
	return args[0].(int64) + 1, nil
}

var incrSpec = &conductor.FuncSpec{
	Name:    "incr",
	Args:    []*types.T{types.Int},
	Returns: []*types.T{types.Int},
	Body:    incr,
}

func TestScheduler(t *testing.T) {
	scheduler, store, shutdown := newTestScheduler(t, 2)
	defer shutdown()
	ctx := context.Background()

	task := newTask(incrSpec, literal(int64(1), types.Int))
	scheduler.Submit(task)
	if err := task.Wait(ctx, TaskDone); err != nil {
		t.Fatal(err)
	}
	if got, want := task.State(), TaskDone; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	v, err := store.Get(ctx, task.Outputs[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := v, values.T(int64(2)); !values.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSchedulerFIFO(t *testing.T) {
	scheduler, _, shutdown := newTestScheduler(t, 1)
	defer shutdown()
	ctx := context.Background()

	order := make(chan int64, 3)
	record := &conductor.FuncSpec{
		Name:    "record",
		Args:    []*types.T{types.Int},
		Returns: []*types.T{types.Int},
		Body: func(ctx context.Context, args []values.T) (values.T, error) {
			order <- args[0].(int64)
			return args[0], nil
		},
	}
	var tasks []*Task
	for i := 0; i < 3; i++ {
		task := newTask(record, literal(int64(i), types.Int))
		scheduler.Submit(task)
		tasks = append(tasks, task)
	}
	for _, task := range tasks {
		if err := task.Wait(ctx, TaskDone); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 3; i++ {
		if got, want := <-order, int64(i); got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestSchedulerDependencies(t *testing.T) {
	scheduler, store, shutdown := newTestScheduler(t, 2)
	defer shutdown()
	ctx := context.Background()

	first := newTask(incrSpec, literal(int64(1), types.Int))
	second := newTask(incrSpec, ref(first.Outputs[0]))
	third := newTask(incrSpec, ref(second.Outputs[0]))
	// Submission order does not matter: tasks run as their
	// dependencies are written.
	scheduler.Submit(third)
	scheduler.Submit(second)
	scheduler.Submit(first)
	if err := third.Wait(ctx, TaskDone); err != nil {
		t.Fatal(err)
	}
	v, err := store.Get(ctx, third.Outputs[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := v, values.T(int64(4)); !values.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSchedulerFanIn(t *testing.T) {
	scheduler, store, shutdown := newTestScheduler(t, 4)
	defer shutdown()
	ctx := context.Background()

	sum := &conductor.FuncSpec{
		Name:    "sum",
		Args:    []*types.T{types.Int, types.Rest},
		Returns: []*types.T{types.Int},
		Body: func(ctx context.Context, args []values.T) (values.T, error) {
			var total int64
			for _, arg := range args {
				total += arg.(int64)
			}
			return total, nil
		},
	}
	var parts []*Task
	args := make([]conductor.Arg, 4)
	for i := range args {
		part := newTask(incrSpec, literal(int64(i), types.Int))
		scheduler.Submit(part)
		parts = append(parts, part)
		args[i] = ref(part.Outputs[0])
	}
	total := newTask(sum, args...)
	scheduler.Submit(total)
	if err := total.Wait(ctx, TaskDone); err != nil {
		t.Fatal(err)
	}
	v, err := store.Get(ctx, total.Outputs[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	// (0+1) + (1+1) + (2+1) + (3+1)
	if got, want := v, values.T(int64(10)); !values.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	for _, part := range parts {
		if got, want := part.State(), TaskDone; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestSchedulerFailure(t *testing.T) {
	scheduler, store, shutdown := newTestScheduler(t, 2)
	defer shutdown()
	ctx := context.Background()

	boom := &conductor.FuncSpec{
		Name:    "boom",
		Args:    []*types.T{},
		Returns: []*types.T{types.Int},
		Body: func(ctx context.Context, args []values.T) (values.T, error) {
			return nil, errors.New("boom")
		},
	}
	origin := newTask(boom)
	second := newTask(incrSpec, ref(origin.Outputs[0]))
	third := newTask(incrSpec, ref(second.Outputs[0]))
	scheduler.Submit(origin)
	scheduler.Submit(second)
	scheduler.Submit(third)

	if err := third.Wait(ctx, TaskDone); err != nil {
		t.Fatal(err)
	}
	if got, want := origin.State(), TaskFailed; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if !strings.Contains(origin.Err.Error(), "boom") {
		t.Errorf("origin error %v does not mention failure", origin.Err)
	}
	if errors.Is(errors.DependencyFailed, origin.Err) {
		t.Errorf("origin error %v should not be a dependency failure", origin.Err)
	}
	for _, task := range []*Task{second, third} {
		if got, want := task.State(), TaskFailed; got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
		if !errors.Is(errors.DependencyFailed, task.Err) {
			t.Errorf("got %v, want DependencyFailed", task.Err)
		}
		if !strings.Contains(task.Err.Error(), "boom") {
			t.Errorf("error %v does not identify origin", task.Err)
		}
	}
	// Transitive failures propagate the originating error as is.
	if second.Err != third.Err {
		t.Errorf("got %v, want %v", third.Err, second.Err)
	}
	// None of the failed tasks' outputs were written.
	for _, task := range []*Task{origin, second, third} {
		ok, err := store.Exists(ctx, task.Outputs[0].ID)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Errorf("output of failed task %v was written", task.ID.IDShort())
		}
	}
}

func TestSchedulerLateSubmitFailure(t *testing.T) {
	scheduler, _, shutdown := newTestScheduler(t, 2)
	defer shutdown()
	ctx := context.Background()

	boom := &conductor.FuncSpec{
		Name:    "boom",
		Args:    []*types.T{},
		Returns: []*types.T{types.Int},
		Body: func(ctx context.Context, args []values.T) (values.T, error) {
			return nil, errors.New("boom")
		},
	}
	origin := newTask(boom)
	scheduler.Submit(origin)
	if err := origin.Wait(ctx, TaskDone); err != nil {
		t.Fatal(err)
	}
	// A task submitted after its dependency has already failed
	// fails the same way as one submitted before.
	late := newTask(incrSpec, ref(origin.Outputs[0]))
	scheduler.Submit(late)
	if err := late.Wait(ctx, TaskDone); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(errors.DependencyFailed, late.Err) {
		t.Errorf("got %v, want DependencyFailed", late.Err)
	}
}

func TestSchedulerOutputArity(t *testing.T) {
	scheduler, store, shutdown := newTestScheduler(t, 2)
	defer shutdown()
	ctx := context.Background()

	split := &conductor.FuncSpec{
		Name:    "split",
		Args:    []*types.T{types.String},
		Returns: []*types.T{types.String, types.String},
		Body: func(ctx context.Context, args []values.T) (values.T, error) {
			return args[0], nil // should have returned a pair
		},
	}
	task := newTask(split, literal("a b", types.String))
	scheduler.Submit(task)
	if err := task.Wait(ctx, TaskDone); err != nil {
		t.Fatal(err)
	}
	if got, want := task.State(), TaskFailed; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if !errors.Is(errors.OutputArity, task.Err) {
		t.Errorf("got %v, want OutputArity", task.Err)
	}
	for _, out := range task.Outputs {
		ok, err := store.Exists(ctx, out.ID)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Error("output of arity-failed task was written")
		}
	}
}

func TestSchedulerMultipleOutputs(t *testing.T) {
	scheduler, store, shutdown := newTestScheduler(t, 2)
	defer shutdown()
	ctx := context.Background()

	divmod := &conductor.FuncSpec{
		Name:    "divmod",
		Args:    []*types.T{types.Int, types.Int},
		Returns: []*types.T{types.Int, types.Int},
		Body: func(ctx context.Context, args []values.T) (values.T, error) {
			a, b := args[0].(int64), args[1].(int64)
			return values.Tuple{a / b, a % b}, nil
		},
	}
	task := newTask(divmod, literal(int64(17), types.Int), literal(int64(5), types.Int))
	scheduler.Submit(task)
	if err := task.Wait(ctx, TaskDone); err != nil {
		t.Fatal(err)
	}
	if got, want := task.State(), TaskDone; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i, want := range []int64{3, 2} {
		v, err := store.Get(ctx, task.Outputs[i].ID)
		if err != nil {
			t.Fatal(err)
		}
		if got := v; !values.Equal(got, want) {
			t.Errorf("output %d: got %v, want %v", i, got, want)
		}
	}
}

func TestSchedulerPanic(t *testing.T) {
	scheduler, _, shutdown := newTestScheduler(t, 1)
	defer shutdown()
	ctx := context.Background()

	bad := &conductor.FuncSpec{
		Name:    "bad",
		Args:    []*types.T{},
		Returns: []*types.T{types.Int},
		Body: func(ctx context.Context, args []values.T) (values.T, error) {
			panic("unexpected")
		},
	}
	task := newTask(bad)
	scheduler.Submit(task)
	if err := task.Wait(ctx, TaskDone); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(errors.Fatal, task.Err) {
		t.Errorf("got %v, want Fatal", task.Err)
	}
	// The scheduler keeps running after a panicking task.
	after := newTask(incrSpec, literal(int64(1), types.Int))
	scheduler.Submit(after)
	if err := after.Wait(ctx, TaskDone); err != nil {
		t.Fatal(err)
	}
	if got, want := after.State(), TaskDone; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSchedulerDirectWrite(t *testing.T) {
	scheduler, store, shutdown := newTestScheduler(t, 2)
	defer shutdown()
	ctx := context.Background()

	// An argument may reference an object written directly to the
	// store rather than produced by a task.
	id := conductor.NewObjectID()
	if err := store.Put(ctx, id, int64(41)); err != nil {
		t.Fatal(err)
	}
	task := newTask(incrSpec, ref(conductor.Future{ID: id, Type: types.Int}))
	scheduler.Submit(task)
	if err := task.Wait(ctx, TaskDone); err != nil {
		t.Fatal(err)
	}
	v, err := store.Get(ctx, task.Outputs[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := v, values.T(int64(42)); !values.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSchedulerCancel(t *testing.T) {
	store := memstore.New()
	scheduler := New()
	scheduler.Store = store
	scheduler.NumWorkers = 2
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- scheduler.Do(ctx)
	}()

	// This task waits on an object that is never written.
	task := newTask(incrSpec, ref(conductor.Future{ID: conductor.NewObjectID(), Type: types.Int}))
	scheduler.Submit(task)
	cancel()
	if err := task.Wait(context.Background(), TaskDone); err != nil {
		t.Fatal(err)
	}
	if got, want := task.State(), TaskFailed; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if task.Err == nil {
		t.Error("canceled task has no error")
	}
	if err := <-done; err != context.Canceled {
		t.Errorf("got %v, want %v", err, context.Canceled)
	}
}
