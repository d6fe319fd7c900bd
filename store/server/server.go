// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package server implements a store REST server. Objects are
// resources named by their identifiers; values travel as
// self-describing encodings, so that a server can host objects of
// any type.
package server

import (
	"bytes"
	"context"
	"io/ioutil"
	"net/http"

	"github.com/grailbio/conductor"
	"github.com/grailbio/conductor/errors"
	"github.com/grailbio/conductor/internal/bloomlive"
	"github.com/grailbio/conductor/rest"
	"github.com/grailbio/conductor/values"
)

// A Collector is a store that supports garbage collection.
type Collector interface {
	Collect(ctx context.Context, live conductor.Liveset) error
}

// Node is a REST node serving a store.
type Node struct {
	Store conductor.Store
}

// Walk walks the Node tree to path.
func (n Node) Walk(ctx context.Context, call *rest.Call, path string) rest.Node {
	switch path {
	case "collect":
		return collectNode{n.Store}
	default:
		id, err := conductor.ParseObjectID(path)
		if err != nil {
			call.Error(errors.E("walk", path, err))
			return nil
		}
		return objectNode{n.Store, id}
	}
}

// Do replies to the call with http.StatusNotFound: the root node
// performs no operations itself.
func (n Node) Do(ctx context.Context, call *rest.Call) {
	call.Reply(http.StatusNotFound, nil)
}

type collectNode struct {
	store conductor.Store
}

func (n collectNode) Walk(ctx context.Context, call *rest.Call, path string) rest.Node {
	return nil
}

func (n collectNode) Do(ctx context.Context, call *rest.Call) {
	if !call.Allow("POST") {
		return
	}
	collector, ok := n.store.(Collector)
	if !ok {
		call.Error(errors.E("collect", errors.NotSupported))
		return
	}
	var live bloomlive.T
	if call.Unmarshal(&live) != nil {
		return
	}
	if err := collector.Collect(ctx, &live); err != nil {
		call.Error(err)
		return
	}
	call.Reply(http.StatusOK, nil)
}

type objectNode struct {
	store conductor.Store
	id    conductor.ObjectID
}

func (n objectNode) Walk(ctx context.Context, call *rest.Call, path string) rest.Node {
	return nil
}

func (n objectNode) Do(ctx context.Context, call *rest.Call) {
	if !call.Allow("HEAD", "GET", "PUT") {
		return
	}
	switch call.Method() {
	case "HEAD":
		ok, err := n.store.Exists(ctx, n.id)
		if err != nil {
			call.Error(err)
			return
		}
		if !ok {
			call.Error(errors.E("head", n.id, errors.NotExist))
			return
		}
		call.Reply(http.StatusOK, nil)
	case "GET":
		// Get blocks until the object is written, so clients use GET
		// to await objects. The wait is abandoned when the client
		// disconnects.
		v, err := n.store.Get(ctx, n.id)
		if err != nil {
			call.Error(err)
			return
		}
		p, err := values.Encode(v)
		if err != nil {
			call.Error(errors.E("get", n.id, err))
			return
		}
		call.Write(http.StatusOK, bytes.NewReader(p))
	case "PUT":
		p, err := ioutil.ReadAll(call.Body())
		if err != nil {
			call.Error(errors.E("put", n.id, err))
			return
		}
		v, _, err := values.Decode(p)
		if err != nil {
			call.Error(errors.E("put", n.id, errors.Invalid, err))
			return
		}
		if err := n.store.Put(ctx, n.id, v); err != nil {
			call.Error(err)
			return
		}
		call.Reply(http.StatusOK, nil)
	}
}
