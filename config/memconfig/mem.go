// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package memconfig defines a configuration provider named "mem"
// which configures an in-memory object store, useful for tests and
// for ephemeral single-process runs.
package memconfig

import (
	"github.com/grailbio/conductor"
	"github.com/grailbio/conductor/config"
	"github.com/grailbio/conductor/store/memstore"
)

func init() {
	config.Register(config.Store, "mem", "", "configure an in-memory object store",
		func(cfg config.Config, arg string) (config.Config, error) {
			return &store{cfg}, nil
		},
	)
}

type store struct {
	config.Config
}

// Store returns a new in-memory store.
func (s *store) Store() (conductor.Store, error) {
	return memstore.New(), nil
}
