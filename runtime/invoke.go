// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package runtime

import (
	"context"

	"github.com/grailbio/conductor"
	"github.com/grailbio/conductor/errors"
	"github.com/grailbio/conductor/sched"
	"github.com/grailbio/conductor/types"
	"github.com/grailbio/conductor/values"
)

// Register registers the named function with the given argument and
// output signatures and body. The argument signature may end in
// types.Rest, admitting zero or more additional trailing arguments
// of the signature's previous type. Registration must be completed
// before the runtime is started; Register fails with a
// DuplicateRegistration error if the name is already taken.
func (rt *Runtime) Register(name string, args, returns []*types.T, body conductor.Func) error {
	return rt.reg.Register(&conductor.FuncSpec{
		Name:    name,
		Args:    args,
		Returns: returns,
		Body:    body,
	})
}

// Funcs returns the specifications of all registered functions in
// name order.
func (rt *Runtime) Funcs() []*conductor.FuncSpec {
	names := rt.reg.Names()
	specs := make([]*conductor.FuncSpec, 0, len(names))
	for _, name := range names {
		spec, err := rt.reg.Lookup(name)
		if err != nil {
			continue
		}
		specs = append(specs, spec)
	}
	return specs
}

// Invoke submits an invocation of the named function with the given
// arguments, returning one future per declared output. Arguments are
// passed positionally: a conductor.Future argument is passed by
// reference, deferring the invocation until its producing task has
// completed; any other argument is converted to a literal conductor
// value by values.Of. Invoke validates the arguments against the
// function's signature, failing with a TypeMismatch error on arity
// or type violations, and returns without waiting on execution:
// progress is observed by fetching the returned futures.
//
// Invoke may be called only between Start and Shutdown.
func (rt *Runtime) Invoke(ctx context.Context, name string, args ...interface{}) ([]conductor.Future, error) {
	spec, err := rt.reg.Lookup(name)
	if err != nil {
		return nil, err
	}
	taskArgs := make([]conductor.Arg, len(args))
	argTypes := make([]*types.T, len(args))
	for i, arg := range args {
		switch arg := arg.(type) {
		case conductor.Future:
			if !arg.IsValid() {
				return nil, errors.E("invoke", name, errors.Invalid,
					errors.Errorf("argument %d: invalid future", i))
			}
			taskArgs[i] = conductor.Arg{ID: arg.ID, Type: arg.Type}
		default:
			v, err := values.Of(arg)
			if err != nil {
				return nil, errors.E("invoke", name, errors.Invalid, err)
			}
			t, err := values.Typeof(v)
			if err != nil {
				return nil, errors.E("invoke", name, errors.Invalid, err)
			}
			taskArgs[i] = conductor.Arg{Value: v, Type: t}
		}
		argTypes[i] = taskArgs[i].Type
	}
	if err := types.Satisfies(argTypes, spec.Args); err != nil {
		return nil, errors.E("invoke", name, errors.TypeMismatch, err)
	}

	task := sched.NewTask()
	task.Func = spec
	task.Args = taskArgs
	task.Log = rt.scheduler.Log
	task.Outputs = make([]conductor.Future, spec.NumOut())
	for i, t := range spec.Returns {
		task.Outputs[i] = conductor.Future{ID: conductor.NewObjectID(), Type: t}
	}

	rt.mu.Lock()
	if !rt.started {
		rt.mu.Unlock()
		return nil, errors.E("invoke", name, errors.Invalid, errors.New("runtime not started"))
	}
	for _, out := range task.Outputs {
		rt.producers[out.ID] = task
	}
	rt.mu.Unlock()

	rt.scheduler.Submit(task)
	return task.Outputs, nil
}
