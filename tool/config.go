// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package tool

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"sort"

	"github.com/grailbio/conductor/config"
	yaml "gopkg.in/yaml.v2"
)

func (c *Cmd) configCmd(ctx context.Context, args ...string) {
	var (
		flags  = flag.NewFlagSet("config", flag.ExitOnError)
		header = `Config writes the current conductor configuration to standard
output.

Conductor's configuration is a YAML file with the following toplevel
keys:

`
		footer = `The plain-valued keys log, workers, and maxsize set the default log
level, the runtime worker count, and the store size under which
collection is skipped.

A conductor distribution may contain a builtin configuration that may
be modified and overriden:

	$ conductor config > myconfig
	<edit myconfig>
	$ conductor -config myconfig ...`
	)
	marshalFlag := flags.Bool("marshal", false, "marshal the configuration before displaying it")
	// Construct a help string from the available providers.
	b := new(bytes.Buffer)
	b.WriteString(header)
	providerHelp := config.Help()
	var keys []string
	for key := range providerHelp {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		usages := providerHelp[key]
		sort.Slice(usages, func(i, j int) bool { return usages[i].Kind < usages[j].Kind })
		fmt.Fprintf(b, "%s:\n", key)
		for _, u := range usages {
			if u.Arg != "" {
				fmt.Fprintf(b, "	%s,%s\n		%s\n", u.Kind, u.Arg, u.Usage)
			} else {
				fmt.Fprintf(b, "	%s\n		%s\n", u.Kind, u.Usage)
			}
		}
		b.WriteString("\n")
	}
	b.WriteString(footer)

	c.Parse(flags, args, b.String(), "config [-marshal]")

	if flags.NArg() != 0 {
		flags.Usage()
	}
	keysToPrint := c.Config.Keys()
	if *marshalFlag {
		keysToPrint = make(config.Keys)
		c.must(c.Config.Marshal(keysToPrint))
	}
	data, err := yaml.Marshal(keysToPrint)
	c.must(err)
	c.Stdout.Write(data)
}
