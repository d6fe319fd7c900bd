// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import (
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/sync/once"
	"github.com/grailbio/conductor"
	"github.com/grailbio/conductor/log"
)

// OnceConfig memoizes the first call of the following methods to the
// underlying config: Store, AWS, and Logger.
type OnceConfig struct {
	Config

	storeOnce once.Task
	store     conductor.Store

	awsOnce once.Task
	aws     *session.Session

	loggerOnce once.Task
	logger     *log.Logger
}

// Once constructs a new OnceConfig using the provided
// underlying configuration.
func Once(cfg Config) *OnceConfig {
	return &OnceConfig{Config: cfg}
}

// Store returns the result of the first call to the underlying
// configuration's Store.
func (o *OnceConfig) Store() (conductor.Store, error) {
	err := o.storeOnce.Do(func() (err error) {
		o.store, err = o.Config.Store()
		return
	})
	return o.store, err
}

// AWS returns the result of the first call to the underlying
// configuration's AWS.
func (o *OnceConfig) AWS() (*session.Session, error) {
	err := o.awsOnce.Do(func() (err error) {
		o.aws, err = o.Config.AWS()
		return
	})
	return o.aws, err
}

// Logger returns the result of the first call to the underlying
// configuration's Logger.
func (o *OnceConfig) Logger() (*log.Logger, error) {
	err := o.loggerOnce.Do(func() (err error) {
		o.logger, err = o.Config.Logger()
		return
	})
	return o.logger, err
}
