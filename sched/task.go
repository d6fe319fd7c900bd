// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sched

import (
	"context"
	"sync"

	"github.com/grailbio/base/digest"
	"github.com/grailbio/base/status"
	"github.com/grailbio/base/sync/ctxsync"
	"github.com/grailbio/conductor"
	"github.com/grailbio/conductor/log"
)

// TaskID is a unique task identifier.
type TaskID digest.Digest

// NewTaskID returns a new, randomly minted task identifier.
func NewTaskID() TaskID {
	return TaskID(conductor.Digester.Rand(nil))
}

// ID returns the full string representation of the TaskID.
func (t TaskID) ID() string {
	return digest.Digest(t).String()
}

// IDShort returns a short prefix representation of the TaskID.
func (t TaskID) IDShort() string {
	return digest.Digest(t).HexN(4)
}

// IsValid tells whether the TaskID has been set.
func (t TaskID) IsValid() bool {
	return !digest.Digest(t).IsZero()
}

// TaskState enumerates the possible states of a task.
type TaskState int

const (
	// TaskPending is the initial state of a Task. The task is waiting
	// for the objects it depends on to be written.
	TaskPending TaskState = iota
	// TaskReady indicates that all of the task's dependencies have
	// been written and the task is awaiting dispatch.
	TaskReady
	// TaskRunning indicates the task is currently executing.
	TaskRunning
	// TaskDone indicates the task has completed and its outputs have
	// been written.
	TaskDone
	// TaskFailed indicates the task has failed. The task's Err field
	// holds the failure.
	TaskFailed
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskDone:
		return "done"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Task represents a single invocation of a registered function:
// a schedulable unit of work. Tasks are submitted to a scheduler,
// which dispatches them once the objects they depend on have been
// written. After submission, all coordination is performed through
// the task struct.
type Task struct {
	// ID is a caller-assigned identifier for the task.
	ID TaskID
	// Func is the specification of the function the task invokes.
	Func *conductor.FuncSpec
	// Args are the task's arguments, literal or references, in
	// invocation order.
	Args []conductor.Arg
	// Outputs are the futures minted for the task's declared
	// outputs, in declaration order.
	Outputs []conductor.Future
	// Log receives any status log messages during task scheduling
	// and execution.
	Log *log.Logger

	// Err stores the task's failure. It is set (at the latest) by
	// the time the task enters TaskFailed.
	Err error

	mu   sync.Mutex
	cond *ctxsync.Cond

	state TaskState

	// seq is the task's dispatch sequence number, assigned by the
	// scheduler on submission; ready tasks are dispatched in seq
	// order. npending counts the task's unwritten dependencies.
	// Both are owned by the scheduler loop.
	seq      uint64
	npending int
	index    int
	stats    *TaskStats
	status   *status.Task
}

// NewTask returns a new, initialized task. The Task may be
// populated and then submitted to the scheduler.
func NewTask() *Task {
	task := new(Task)
	task.ID = NewTaskID()
	task.cond = ctxsync.NewCond(&task.mu)
	return task
}

// State returns the task's current state.
func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Wait returns after the task's state is at least the provided
// state. Wait returns an error if the context was canceled while
// waiting. Since TaskFailed orders after TaskDone, Wait(ctx,
// TaskDone) returns when the task reaches either terminal state.
func (t *Task) Wait(ctx context.Context, state TaskState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var err error
	for t.state < state && err == nil {
		err = t.cond.Wait(ctx)
	}
	return err
}

// Set sets the task's state to the given state.
func (t *Task) Set(state TaskState) {
	mutate(t, func(target *Task) { target.state = state })
}

// mutate mutates the given task using the given mutator function.
func mutate(target *Task, mutator func(t *Task)) {
	target.mu.Lock()
	mutator(target)
	if target.stats != nil {
		target.stats.Update(target)
	}
	target.cond.Broadcast()
	target.mu.Unlock()
}

// Taskq defines a priority queue of tasks, ordered by dispatch
// sequence number, so that ready tasks are dispatched in the order
// they were submitted.
type taskq []*Task

func (q taskq) Len() int { return len(q) }

func (q taskq) Less(i, j int) bool {
	return q[i].seq < q[j].seq
}

func (q taskq) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}

// Push implements heap.Interface.
func (q *taskq) Push(x interface{}) {
	t := x.(*Task)
	t.index = len(*q)
	*q = append(*q, t)
}

// Pop implements heap.Interface.
func (q *taskq) Pop() interface{} {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[0 : n-1]
	x.index = -1
	return x
}
