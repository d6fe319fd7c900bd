// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package tool

import (
	"context"
	"flag"
	"strings"

	units "github.com/docker/go-units"
	"github.com/grailbio/base/data"
	"github.com/grailbio/base/digest"
	"github.com/grailbio/conductor"
	"github.com/grailbio/conductor/errors"
	"github.com/grailbio/conductor/internal/bloomlive"
)

// A collector is a store that supports garbage collection.
type collector interface {
	Collect(ctx context.Context, live conductor.Liveset) error
}

// A scanner is a store whose object identifiers may be enumerated.
type scanner interface {
	Scan(ctx context.Context, handler func(conductor.ObjectID) error) error
}

// A sizer is a store that reports its total size.
type sizer interface {
	Size(ctx context.Context) (data.Size, error)
}

func (c *Cmd) collect(ctx context.Context, args ...string) {
	var (
		flags = flag.NewFlagSet("collect", flag.ExitOnError)
		help  = `Collect removes objects from the configured store, keeping the
objects named by the -keep flag. Keep identifiers may be abbreviated;
abbreviated identifiers are expanded by scanning the store and must
expand uniquely.

Collection is skipped while the store's size does not exceed the size
threshold, taken from the -maxsize flag or else from the maxsize
configuration key. A zero threshold always collects; flag -force
collects regardless of the store's size.

Keeping is approximate: the live set is a bloom filter, so an
unnamed object may rarely survive a collection. Named objects are
never removed.`
	)
	keepFlag := flags.String("keep", "", "comma-separated identifiers of objects to keep")
	maxsizeFlag := flags.String("maxsize", "", "store size under which collection is skipped; defaults to the configured maxsize")
	forceFlag := flags.Bool("force", false, "collect even when the store is under the size threshold")
	c.Parse(flags, args, help, "collect -keep id,... [-maxsize size] [-force]")
	if flags.NArg() != 0 {
		flags.Usage()
	}
	store, err := c.Config.Store()
	c.must(err)
	coll, ok := store.(collector)
	if !ok {
		c.Fatal("configured store does not support collection")
	}
	maxsize, err := c.Config.MaxSize()
	c.must(err)
	if *maxsizeFlag != "" {
		maxsize, err = units.RAMInBytes(*maxsizeFlag)
		c.must(err)
	}
	if maxsize > 0 && !*forceFlag {
		szr, ok := store.(sizer)
		if !ok {
			c.Fatal("configured store cannot report its size; use -force to collect anyway")
		}
		size, err := szr.Size(ctx)
		c.must(err)
		if int64(size) <= maxsize {
			c.Log.Printf("store size %s does not exceed %s; skipping collection",
				size, data.Size(maxsize))
			return
		}
	}
	var ids, abbrevs []conductor.ObjectID
	for _, field := range strings.Split(*keepFlag, ",") {
		if field == "" {
			continue
		}
		id, err := conductor.ParseObjectID(field)
		if err != nil {
			c.Fatalf("parse %s: %v", field, err)
		}
		if digest.Digest(id).IsAbbrev() {
			abbrevs = append(abbrevs, id)
		} else {
			ids = append(ids, id)
		}
	}
	if len(abbrevs) > 0 {
		scr, ok := store.(scanner)
		if !ok {
			c.Fatal("configured store does not support scanning; supply full identifiers")
		}
		expanded, err := expand(ctx, scr, abbrevs)
		c.must(err)
		ids = append(ids, expanded...)
	}
	live := bloomlive.New(uint(len(ids))+1, 1e-6)
	for _, id := range ids {
		live.Add(id)
	}
	c.must(coll.Collect(ctx, live))
}

// expand resolves abbreviated identifiers to the full identifiers
// they abbreviate. Each abbreviation must expand to exactly one
// object in the store.
func expand(ctx context.Context, s scanner, abbrevs []conductor.ObjectID) ([]conductor.ObjectID, error) {
	full := make([]conductor.ObjectID, len(abbrevs))
	err := s.Scan(ctx, func(id conductor.ObjectID) error {
		for i, abbrev := range abbrevs {
			if !digest.Digest(id).Expands(digest.Digest(abbrev)) {
				continue
			}
			if full[i].IsValid() {
				return errors.E("expand", abbrev, errors.New("abbreviated id is not unique"))
			}
			full[i] = id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, id := range full {
		if !id.IsValid() {
			return nil, errors.E("expand", abbrevs[i], errors.NotExist)
		}
	}
	return full, nil
}
