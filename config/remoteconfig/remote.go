// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package remoteconfig defines a configuration provider named
// "remote" which configures a client for an object store served
// over HTTP by a conductor store server.
package remoteconfig

import (
	"errors"
	"fmt"
	"strings"

	"github.com/grailbio/conductor"
	"github.com/grailbio/conductor/config"
	"github.com/grailbio/conductor/store/client"
)

func init() {
	config.Register(config.Store, "remote", "url=url", "configure a client for a remote object store",
		func(cfg config.Config, arg string) (config.Config, error) {
			s := &store{Config: cfg}
			for _, field := range strings.Split(arg, ",") {
				k, v := peel(field)
				switch k {
				case "url":
					s.url = v
				default:
					return nil, fmt.Errorf("remote: invalid argument %q", field)
				}
			}
			if s.url == "" {
				return nil, errors.New("remote: url not provided")
			}
			return s, nil
		},
	)
}

type store struct {
	config.Config
	url string
}

// Store returns a new client for the remote store at this
// configuration's URL.
func (s *store) Store() (conductor.Store, error) {
	logger, err := s.Logger()
	if err != nil {
		return nil, err
	}
	return client.New(s.url, nil, logger.Tee(nil, "remote: "))
}

func peel(field string) (k, v string) {
	parts := strings.SplitN(field, "=", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}
