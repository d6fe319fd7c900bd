// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package awsenvconfig configures AWS sessions to be derived from
// the user's environment in accordance with the AWS SDK.
package awsenvconfig

import (
	"sync"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/conductor/config"
)

func init() {
	config.Register(config.AWS, "awsenv", "", "configure AWS from the user's environment",
		func(cfg config.Config, arg string) (config.Config, error) {
			return &envSession{Config: cfg}, nil
		},
	)
}

// An envSession derives an AWS session from the user's environment
// using the SDK's defaults, including its shared configuration
// files.
type envSession struct {
	config.Config

	once    sync.Once
	session *session.Session
	err     error
}

// AWS returns a session derived from the environment. The session is
// constructed at most once.
func (e *envSession) AWS() (*session.Session, error) {
	e.once.Do(func() {
		e.session, e.err = session.NewSessionWithOptions(session.Options{
			SharedConfigState: session.SharedConfigEnable,
		})
	})
	return e.session, e.err
}
