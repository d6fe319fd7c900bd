// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package runtime

import (
	"context"
	"strings"
	"testing"

	"github.com/grailbio/conductor/config"
	_ "github.com/grailbio/conductor/config/memconfig"
	"github.com/grailbio/conductor/errors"
	"github.com/grailbio/conductor/types"
	"github.com/grailbio/conductor/values"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	cfg, err := config.Parse([]byte("store: mem\nworkers: 4\nlog: \"off\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	rt, err := New(Params{Config: cfg})
	if err != nil {
		t.Fatal(err)
	}
	return rt
}

func registerTestFuncs(t *testing.T, rt *Runtime) {
	t.Helper()
	countsType := types.Map(types.String, types.Int)
	err := rt.Register("count_words",
		[]*types.T{types.String}, []*types.T{countsType},
		func(_ context.Context, args []values.T) (values.T, error) {
			counts := make(values.Dict)
			for _, word := range strings.Fields(args[0].(string)) {
				n, _ := counts[word].(int64)
				counts[word] = n + 1
			}
			return counts, nil
		})
	if err != nil {
		t.Fatal(err)
	}
	err = rt.Register("sum_by_key",
		[]*types.T{countsType, types.Rest}, []*types.T{countsType},
		func(_ context.Context, args []values.T) (values.T, error) {
			sum := make(values.Dict)
			for _, arg := range args {
				for k, v := range arg.(values.Dict) {
					n, _ := sum[k].(int64)
					sum[k] = n + v.(int64)
				}
			}
			return sum, nil
		})
	if err != nil {
		t.Fatal(err)
	}
}

func TestEndToEnd(t *testing.T) {
	rt := newTestRuntime(t)
	registerTestFuncs(t, rt)
	rt.Start(context.Background())
	defer rt.Shutdown()
	ctx := context.Background()

	first, err := rt.Invoke(ctx, "count_words", "a a b")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(first), 1; got != want {
		t.Fatalf("got %v futures, want %v", got, want)
	}
	second, err := rt.Invoke(ctx, "count_words", "b c")
	if err != nil {
		t.Fatal(err)
	}
	sum, err := rt.Invoke(ctx, "sum_by_key", first[0], second[0])
	if err != nil {
		t.Fatal(err)
	}
	v, err := rt.Fetch(ctx, sum[0])
	if err != nil {
		t.Fatal(err)
	}
	want := values.Dict{"a": int64(2), "b": int64(2), "c": int64(1)}
	if !values.Equal(v, want) {
		t.Errorf("got %v, want %v", v, want)
	}

	stats := rt.Stats()
	if got, want := stats.TotalTasks, int64(3); got != want {
		t.Errorf("got %v tasks, want %v", got, want)
	}
	if got, want := stats.TasksDone, int64(3); got != want {
		t.Errorf("got %v done tasks, want %v", got, want)
	}
}

func TestFetchAll(t *testing.T) {
	rt := newTestRuntime(t)
	registerTestFuncs(t, rt)
	rt.Start(context.Background())
	defer rt.Shutdown()
	ctx := context.Background()

	first, err := rt.Invoke(ctx, "count_words", "a a b")
	if err != nil {
		t.Fatal(err)
	}
	second, err := rt.Invoke(ctx, "count_words", "b c")
	if err != nil {
		t.Fatal(err)
	}
	vs, err := rt.FetchAll(ctx, first[0], second[0])
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(vs), 2; got != want {
		t.Fatalf("got %v values, want %v", got, want)
	}
	if got, want := vs[0], (values.Dict{"a": int64(2), "b": int64(1)}); !values.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := vs[1], (values.Dict{"b": int64(1), "c": int64(1)}); !values.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestPut(t *testing.T) {
	rt := newTestRuntime(t)
	registerTestFuncs(t, rt)
	rt.Start(context.Background())
	defer rt.Shutdown()
	ctx := context.Background()

	f, err := rt.Put(ctx, "hello hello world")
	if err != nil {
		t.Fatal(err)
	}
	v, err := rt.Fetch(ctx, f)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := v, "hello hello world"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	futs, err := rt.Invoke(ctx, "count_words", f)
	if err != nil {
		t.Fatal(err)
	}
	v, err = rt.Fetch(ctx, futs[0])
	if err != nil {
		t.Fatal(err)
	}
	want := values.Dict{"hello": int64(2), "world": int64(1)}
	if !values.Equal(v, want) {
		t.Errorf("got %v, want %v", v, want)
	}
}

func TestUnknownFunction(t *testing.T) {
	rt := newTestRuntime(t)
	registerTestFuncs(t, rt)
	rt.Start(context.Background())
	defer rt.Shutdown()
	ctx := context.Background()

	_, err := rt.Invoke(ctx, "frobnicate", "x")
	if !errors.Is(errors.UnknownFunction, err) {
		t.Errorf("got %v, want UnknownFunction", err)
	}
	if got, want := rt.Stats().TotalTasks, int64(0); got != want {
		t.Errorf("got %v tasks, want %v", got, want)
	}
}

func TestTypeMismatch(t *testing.T) {
	rt := newTestRuntime(t)
	registerTestFuncs(t, rt)
	rt.Start(context.Background())
	defer rt.Shutdown()
	ctx := context.Background()

	for _, args := range [][]interface{}{
		{int64(3)},
		{},
		{"a", "b"},
	} {
		_, err := rt.Invoke(ctx, "count_words", args...)
		if !errors.Is(errors.TypeMismatch, err) {
			t.Errorf("args %v: got %v, want TypeMismatch", args, err)
		}
	}
	if got, want := rt.Stats().TotalTasks, int64(0); got != want {
		t.Errorf("got %v tasks, want %v", got, want)
	}
}

func TestDependencyFailed(t *testing.T) {
	rt := newTestRuntime(t)
	registerTestFuncs(t, rt)
	err := rt.Register("explode",
		[]*types.T{types.String}, []*types.T{types.String},
		func(_ context.Context, args []values.T) (values.T, error) {
			return nil, errors.New("boom")
		})
	if err != nil {
		t.Fatal(err)
	}
	rt.Start(context.Background())
	defer rt.Shutdown()
	ctx := context.Background()

	exploded, err := rt.Invoke(ctx, "explode", "x")
	if err != nil {
		t.Fatal(err)
	}
	counted, err := rt.Invoke(ctx, "count_words", exploded[0])
	if err != nil {
		t.Fatal(err)
	}
	// Fetching a downstream future reports the origin of the cascade.
	_, err = rt.Fetch(ctx, counted[0])
	if !errors.Is(errors.DependencyFailed, err) {
		t.Errorf("got %v, want DependencyFailed", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error %v does not mention cause", err)
	}
	if !strings.Contains(err.Error(), "task ") {
		t.Errorf("error %v does not identify origin task", err)
	}
	// So does fetching the failed task's own future.
	_, err = rt.Fetch(ctx, exploded[0])
	if !errors.Is(errors.DependencyFailed, err) {
		t.Errorf("got %v, want DependencyFailed", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error %v does not mention cause", err)
	}
}

func TestMultipleOutputs(t *testing.T) {
	rt := newTestRuntime(t)
	err := rt.Register("halve",
		[]*types.T{types.String}, []*types.T{types.String, types.String},
		func(_ context.Context, args []values.T) (values.T, error) {
			s := args[0].(string)
			return values.Tuple{s[:len(s)/2], s[len(s)/2:]}, nil
		})
	if err != nil {
		t.Fatal(err)
	}
	rt.Start(context.Background())
	defer rt.Shutdown()
	ctx := context.Background()

	futs, err := rt.Invoke(ctx, "halve", "abcd")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(futs), 2; got != want {
		t.Fatalf("got %v futures, want %v", got, want)
	}
	vs, err := rt.FetchAll(ctx, futs...)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := vs[0], "ab"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := vs[1], "cd"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestOutputArity(t *testing.T) {
	rt := newTestRuntime(t)
	err := rt.Register("halve",
		[]*types.T{types.String}, []*types.T{types.String, types.String},
		func(_ context.Context, args []values.T) (values.T, error) {
			return args[0], nil
		})
	if err != nil {
		t.Fatal(err)
	}
	rt.Start(context.Background())
	defer rt.Shutdown()
	ctx := context.Background()

	futs, err := rt.Invoke(ctx, "halve", "abcd")
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range futs {
		_, err = rt.Fetch(ctx, f)
		if !errors.Is(errors.DependencyFailed, err) {
			t.Errorf("got %v, want DependencyFailed", err)
		}
		if !strings.Contains(err.Error(), "wrong number of outputs") {
			t.Errorf("error %v does not mention arity", err)
		}
	}
}

func TestRuntimeLifecycle(t *testing.T) {
	rt := newTestRuntime(t)
	registerTestFuncs(t, rt)
	ctx := context.Background()

	_, err := rt.Invoke(ctx, "count_words", "a")
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want Invalid", err)
	}

	rt.Start(ctx)
	defer rt.Shutdown()

	err = rt.Register("late",
		[]*types.T{types.String}, []*types.T{types.String},
		func(_ context.Context, args []values.T) (values.T, error) {
			return args[0], nil
		})
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want Invalid", err)
	}

	var names []string
	for _, spec := range rt.Funcs() {
		names = append(names, spec.Name)
	}
	if got, want := strings.Join(names, ","), "count_words,sum_by_key"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
