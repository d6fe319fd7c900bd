// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package tool

import (
	"context"
	"flag"
	"io"

	"github.com/grailbio/conductor/examples/wordcount"
	"github.com/grailbio/conductor/runtime"
	"v.io/x/lib/textutil"
)

// funcDocs documents the functions registered by the conductor
// distribution.
var funcDocs = map[string]string{
	"load_textfile": `Load_textfile reads the named file and returns its contents together with their size in bytes.`,
	"count_words":   `Count_words tallies the whitespace-separated words in its string argument.`,
	"sum_by_key":    `Sum_by_key merges one or more tallies, summing the counts of matching keys. Its trailing argument type repeats.`,
}

func (c *Cmd) funcs(ctx context.Context, args ...string) {
	var (
		flags = flag.NewFlagSet("funcs", flag.ExitOnError)
		help  = `Funcs displays the functions registered by the conductor
distribution together with their signatures. These are the functions
available to invocations made by the tool's commands.`
	)
	c.Parse(flags, args, help, "funcs")
	if flags.NArg() != 0 {
		flags.Usage()
	}
	rt, err := runtime.New(runtime.Params{Config: c.Config})
	c.must(err)
	c.must(wordcount.Register(rt))
	for _, spec := range rt.Funcs() {
		c.Printf("func %s\n", spec)
		c.printdoc(funcDocs[spec.Name], "\n")
	}
}

func (c *Cmd) printdoc(doc string, nl string) {
	if doc == "" {
		c.Printf("%s", nl)
		return
	}
	pw := textutil.PrefixLineWriter(c.Stdout, "    ")
	ww := textutil.NewUTF8WrapWriter(pw, 80)
	if _, err := io.WriteString(ww, doc); err != nil {
		c.Fatal(err)
	}
	ww.Flush()
	pw.Flush()
	c.Printf("%s", nl)
}
