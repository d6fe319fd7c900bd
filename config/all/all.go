// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package all imports all standard configuration providers
// in conductor.
package all

import (
	_ "github.com/grailbio/conductor/config/awsenvconfig"
	_ "github.com/grailbio/conductor/config/fileconfig"
	_ "github.com/grailbio/conductor/config/memconfig"
	_ "github.com/grailbio/conductor/config/remoteconfig"
	_ "github.com/grailbio/conductor/config/s3config"
)
