// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package tool

import (
	"context"
	"flag"
	"net/http"

	"github.com/grailbio/conductor/rest"
	"github.com/grailbio/conductor/store/server"
)

func (c *Cmd) serve(ctx context.Context, args ...string) {
	var (
		flags = flag.NewFlagSet("serve", flag.ExitOnError)
		help  = `Serve exposes the configured store through a REST API. Remote
runtimes reach a served store through the remote store provider:

	store: remote,url=http://host:9000/

The server holds GETs of unwritten objects open until the objects
are written, so remote runtimes observe the same blocking fetch
semantics as local ones. The diagnostic handlers (/debug/status,
/debug/vars, /debug/pprof) are served on the same address.`
	)
	addrFlag := flags.String("addr", ":9000", "address on which to serve")
	c.Parse(flags, args, help, "serve [-addr address]")
	if flags.NArg() != 0 {
		flags.Usage()
	}
	store, err := c.Config.Store()
	c.must(err)
	http.Handle("/", rest.Handler(server.Node{Store: store}, c.Log.Tee(nil, "serve: ")))
	c.Log.Printf("serving store on %s", *addrFlag)
	srv := &http.Server{Addr: *addrFlag}
	// Shutdown the server if the context is done.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		c.Fatal(err)
	}
}
