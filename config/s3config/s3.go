// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package s3config defines a configuration provider named "s3" which
// configures an object store backed by an S3 bucket. The provider
// derives its client from the session configured by the aws key.
package s3config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/grailbio/conductor"
	"github.com/grailbio/conductor/config"
	"github.com/grailbio/conductor/store/s3store"
)

func init() {
	config.Register(config.Store, "s3", "bucket=name[,prefix=prefix]", "configure an object store using an S3 bucket",
		func(cfg config.Config, arg string) (config.Config, error) {
			s := &store{Config: cfg}
			for _, field := range strings.Split(arg, ",") {
				k, v := peel(field)
				switch k {
				case "bucket":
					s.bucket = v
				case "prefix":
					s.prefix = v
				default:
					return nil, fmt.Errorf("s3: invalid argument %q", field)
				}
			}
			if s.bucket == "" {
				return nil, errors.New("s3: bucket name not provided")
			}
			return s, nil
		},
	)
}

type store struct {
	config.Config
	bucket, prefix string
}

// Store returns a new store instance as configured by this S3 store
// configuration.
func (s *store) Store() (conductor.Store, error) {
	sess, err := s.AWS()
	if err != nil {
		return nil, err
	}
	logger, err := s.Logger()
	if err != nil {
		return nil, err
	}
	st := s3store.New(s3.New(sess), s.bucket, s.prefix)
	st.Log = logger.Tee(nil, "s3store: ")
	return st, nil
}

func peel(field string) (k, v string) {
	parts := strings.SplitN(field, "=", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}
