// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package tool

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/grailbio/conductor/examples/wordcount"
	"github.com/grailbio/conductor/runtime"
)

func (c *Cmd) wordcount(ctx context.Context, args ...string) {
	var (
		flags = flag.NewFlagSet("wordcount", flag.ExitOnError)
		help  = `Wordcount counts the words in the named files through a conductor
runtime backed by the configured store. Each file is loaded and
tallied by its own tasks; tallies are merged by size-balanced partial
reductions and a final merge. The most frequent words are printed
together with their counts.

Flag -parts sets the number of partial reductions; it defaults to
the configured worker count. Flag -top sets the number of words
displayed.`
	)
	partsFlag := flags.Int("parts", 0, "number of partial reductions; 0 means the worker count")
	topFlag := flags.Int("top", 10, "number of most frequent words to display")
	c.Parse(flags, args, help, "wordcount [-parts n] [-top k] file...")
	if flags.NArg() == 0 {
		flags.Usage()
	}
	parts := *partsFlag
	if parts == 0 {
		var err error
		parts, err = c.Config.Workers()
		c.must(err)
	}
	rt, err := runtime.New(runtime.Params{
		Config: c.Config,
		Status: c.Status,
	})
	c.must(err)
	c.must(wordcount.Register(rt))
	rt.Start(ctx)
	defer rt.Shutdown()
	tally, err := wordcount.Count(ctx, rt, parts, flags.Args()...)
	c.must(err)
	var total int64
	for _, n := range tally {
		total += n.(int64)
	}
	stats := rt.Stats()
	c.Log.Printf("counted %d words (%d distinct) in %d files with %d tasks",
		total, len(tally), flags.NArg(), stats.TotalTasks)
	var tw tabwriter.Writer
	tw.Init(c.Stdout, 4, 4, 1, ' ', 0)
	defer tw.Flush()
	for _, wc := range wordcount.Top(tally, *topFlag) {
		fmt.Fprintf(&tw, "%s\t%d\n", wc.Word, wc.Count)
	}
}
