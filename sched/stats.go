// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sched

import (
	"expvar"
	"fmt"
	"sync"
)

// expVarSched is the prefix of the scheduler stats exported name.
const expVarSched = "conductor.sched"

// OverallStats is the overall scheduler stats.
type OverallStats struct {
	// TotalTasks is the total number of tasks (pending, running or
	// completed).
	TotalTasks int64
}

// TaskStatsData is a snapshot of the task stats.
type TaskStatsData struct {
	// Func is the name of the function the task invokes.
	Func string
	// State is the current state of the task.
	State int
	// Error, if not nil, is the task error.
	Error error
}

// TaskStats is the per task info and stats used to update stats.
type TaskStats struct {
	// Mutex protects TaskStatsData.
	sync.Mutex `json:"-"`
	// TaskStatsData are the task stats.
	TaskStatsData
}

// Update updates task state and error, if any.
func (t *TaskStats) Update(task *Task) {
	t.Mutex.Lock()
	defer t.Mutex.Unlock()
	t.State = int(task.state)
	if task.Err != nil {
		t.Error = task.Err
	}
}

// Copy returns an immutable snapshot of TaskStats.
func (t *TaskStats) Copy() TaskStatsData {
	t.Mutex.Lock()
	defer t.Mutex.Unlock()
	return t.TaskStatsData
}

// newStats returns a new Stats object.
func newStats() *Stats {
	return &Stats{
		Tasks: make(map[string]*TaskStats),
	}
}

// StatsData is an immutable snapshot of Stats, usually obtained by
// calling Stats.GetStats.
type StatsData struct {
	// OverallStats has the overall scheduler stats.
	OverallStats
	// TasksRunning is the number of tasks currently executing.
	TasksRunning int64
	// TasksDone is the number of tasks that have completed.
	TasksDone int64
	// TasksFailed is the number of tasks that have failed.
	TasksFailed int64
	// Tasks has all the task state and stats, including completed
	// and failed tasks.
	Tasks map[string]TaskStatsData
}

// Stats has all the scheduler stats, including task states. It is
// thread safe and can be used to update stats.
type Stats struct {
	// Mutex protects all the data members.
	sync.Mutex `json:"-"`
	// OverallStats has the overall scheduler stats.
	OverallStats
	// Tasks has all the task state and stats, including completed
	// and failed tasks.
	Tasks map[string]*TaskStats
}

var (
	exportMu          sync.Mutex
	exportNameCounter int
)

// Publish publishes the stats as a go expvar.
func (s *Stats) Publish() {
	exportMu.Lock()
	val := exportNameCounter
	exportNameCounter++
	exportMu.Unlock()
	name := expVarSched + fmt.Sprintf("-%d", val)
	expvar.Publish(name, expvar.Func(func() interface{} { return s.GetStats() }))
}

// AddTasks adds the tasks to the stats.
func (s *Stats) AddTasks(tasks []*Task) {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()
	s.TotalTasks += int64(len(tasks))
	for _, t := range tasks {
		s.Tasks[t.ID.ID()] = &TaskStats{TaskStatsData: TaskStatsData{Func: t.Func.Name}}
		t.stats = s.Tasks[t.ID.ID()]
	}
}

// GetStats returns a snapshot of the scheduler stats.
func (s *Stats) GetStats() StatsData {
	var copy StatsData
	s.Mutex.Lock()
	copy.OverallStats = s.OverallStats
	copy.Tasks = make(map[string]TaskStatsData)
	for k, v := range s.Tasks {
		data := v.Copy()
		copy.Tasks[k] = data
		switch TaskState(data.State) {
		case TaskRunning:
			copy.TasksRunning++
		case TaskDone:
			copy.TasksDone++
		case TaskFailed:
			copy.TasksFailed++
		}
	}
	s.Mutex.Unlock()
	return copy
}
