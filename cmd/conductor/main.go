// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/grailbio/conductor/config"
	_ "github.com/grailbio/conductor/config/all"
	"github.com/grailbio/conductor/tool"
)

// version is set by the conductor release process.
var version string

var (
	configFile   = os.ExpandEnv("$HOME/.conductor/config.yaml")
	defaultStore = "file,dir=" + os.ExpandEnv("$HOME/.conductor/store")
)

func main() {
	var cfg config.Config = make(config.Base)
	cfg = &config.KeyConfig{Config: cfg, Key: config.AWS, Val: "awsenv"}
	cfg = &config.KeyConfig{Config: cfg, Key: config.Store, Val: defaultStore}
	cmd := &tool.Cmd{
		Config:            cfg,
		DefaultConfigFile: configFile,
		Version:           version,
	}
	cmd.Flags().Parse(os.Args[1:])
	cmd.Main()
}
