// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package fileconfig defines a configuration provider named "file"
// which configures an object store rooted at a filesystem directory.
package fileconfig

import (
	"errors"
	"fmt"
	"strings"

	"github.com/grailbio/conductor"
	"github.com/grailbio/conductor/config"
	"github.com/grailbio/conductor/store/filestore"
)

func init() {
	config.Register(config.Store, "file", "dir=path", "configure an object store in the directory path",
		func(cfg config.Config, arg string) (config.Config, error) {
			s := &store{Config: cfg}
			for _, field := range strings.Split(arg, ",") {
				k, v := peel(field)
				switch k {
				case "dir":
					s.dir = v
				default:
					return nil, fmt.Errorf("file: invalid argument %q", field)
				}
			}
			if s.dir == "" {
				return nil, errors.New("file: directory not provided")
			}
			return s, nil
		},
	)
}

type store struct {
	config.Config
	dir string
}

// Store returns a new store instance rooted at this configuration's
// directory.
func (s *store) Store() (conductor.Store, error) {
	logger, err := s.Logger()
	if err != nil {
		return nil, err
	}
	return &filestore.Store{Root: s.dir, Log: logger.Tee(nil, "filestore: ")}, nil
}

func peel(field string) (k, v string) {
	parts := strings.SplitN(field, "=", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}
