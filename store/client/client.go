// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package client implements a store REST client.
package client

import (
	"bytes"
	"context"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/grailbio/base/retry"
	"github.com/grailbio/conductor"
	"github.com/grailbio/conductor/errors"
	"github.com/grailbio/conductor/log"
	"github.com/grailbio/conductor/rest"
	"github.com/grailbio/conductor/values"
)

// retryPolicy determines how severed connections and transient
// server errors are retried.
var retryPolicy = retry.MaxTries(retry.Backoff(time.Second, 30*time.Second, 1.5), 6)

// Client is a store that dispatches requests to a server
// implementing the store REST API.
type Client struct {
	*rest.Client
}

var _ conductor.Store = (*Client)(nil)

// New returns a new store client for the server at the given base
// URL. If httpClient is nil, http.DefaultClient is used.
func New(rawurl string, httpClient *http.Client, log *log.Logger) (*Client, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return &Client{rest.NewClient(httpClient, u, log)}, nil
}

func (c *Client) String() string {
	return "remote: " + c.URL().String()
}

// Put stores the value v under the name id. Put returns an error
// with kind errors.DuplicateWrite if id has already been written.
func (c *Client) Put(ctx context.Context, id conductor.ObjectID, v values.T) error {
	p, err := values.Encode(v)
	if err != nil {
		return errors.E("put", id, err)
	}
	call := c.Call("PUT", "%s", id.Hex())
	defer call.Close()
	code, err := call.Do(ctx, bytes.NewReader(p))
	if err != nil {
		return errors.E("put", id, err)
	}
	if code != http.StatusOK {
		return call.Error()
	}
	return nil
}

// Get returns the value stored under the name id, blocking until
// the object is written if it does not yet exist. The server holds
// the request until the object is available; severed connections
// and transient errors are retried.
func (c *Client) Get(ctx context.Context, id conductor.ObjectID) (values.T, error) {
	for retries := 0; ; retries++ {
		v, err := c.get(ctx, id)
		if err == nil {
			return v, nil
		}
		if !errors.Is(errors.Net, err) && !errors.Transient(err) {
			return nil, err
		}
		if err := retry.Wait(ctx, retryPolicy, retries); err != nil {
			return nil, errors.E("get", id, err)
		}
	}
}

func (c *Client) get(ctx context.Context, id conductor.ObjectID) (values.T, error) {
	call := c.Call("GET", "%s", id.Hex())
	defer call.Close()
	code, err := call.Do(ctx, nil)
	if err != nil {
		return nil, errors.E("get", id, err)
	}
	if code != http.StatusOK {
		return nil, call.Error()
	}
	p, err := ioutil.ReadAll(call)
	if err != nil {
		return nil, errors.E("get", id, err)
	}
	v, _, err := values.Decode(p)
	if err != nil {
		return nil, errors.E("get", id, errors.Invalid, err)
	}
	return v, nil
}

// Exists tells whether id has been written.
func (c *Client) Exists(ctx context.Context, id conductor.ObjectID) (bool, error) {
	call := c.Call("HEAD", "%s", id.Hex())
	defer call.Close()
	code, err := call.Do(ctx, nil)
	if err != nil {
		return false, errors.E("exists", id, err)
	}
	// HEAD replies carry no bodies, so errors are reconstructed from
	// the status code alone.
	switch code {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, errors.E("exists", id, errors.Errorf("status %v", code))
	}
}

// Collect instructs the server to collect all objects not in the
// live set.
func (c *Client) Collect(ctx context.Context, live conductor.Liveset) error {
	call := c.Call("POST", "collect")
	defer call.Close()
	code, err := call.DoJSON(ctx, live)
	if err != nil {
		return errors.E("collect", err)
	}
	if code != http.StatusOK {
		return call.Error()
	}
	return nil
}
