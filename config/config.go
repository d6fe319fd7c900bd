// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package config defines an interface for configuring a conductor
// instance. This interface can be composed in multiple ways, allowing
// for layered configuration and also for distributions of conductor
// to supply custom configuration.
//
// A configuration is a set of keys (corresponding to toplevel keys in
// a YAML document). A subset of keys, defined by the package's
// AllKeys, correspond to objects that are configured by the Config
// interface. These keys may be provisioned by globally registered
// providers; the keys must be string formatted, and contain the
// (registered) name of the provider, followed by an optional comma
// and string argument. For example:
//
//	store: s3,bucket=conductor-objects,prefix=prod
//
// configures the store key (corresponding to Config.Store) using the
// s3 provider; the argument "bucket=conductor-objects,prefix=prod" is
// used to configure it.
//
// Providers may themselves look up keys to supply further
// configuration. For example, the s3 provider provisions its client
// from the session configured by the aws key:
//
//	aws: awsenv
//	store: s3,bucket=conductor-objects
//
// Configuration providers are registered globally, allowing for
// different distributions to provide different backends or
// configuration mechanisms.
//
// The remaining keys are plain values interpreted by the Config
// interface directly: "log" names the logging level, "workers" the
// worker count, and "maxsize" the store size below which collection
// is skipped.
package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	golog "log"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws/session"
	units "github.com/docker/go-units"
	"github.com/grailbio/conductor"
	"github.com/grailbio/conductor/log"
	yaml "gopkg.in/yaml.v2"
)

// The following are the set of keys provisioned by Config.
const (
	AWS   = "aws"
	Store = "store"
)

// AllKeys defines the order in which configuration keys are
// provisioned. Thus, providers for keys later in the list may use
// configuration provided by providers for keys earlier in the list.
var AllKeys = []string{
	AWS,
	Store,
}

// Keys is a map of string keys to configuration values.
type Keys map[string]interface{}

// A Config provides a number of methods to mint new objects that are
// used in conductor. It is safe to call each method multiple times,
// but they should not be called concurrently.
type Config interface {
	// Store returns this configuration's object store.
	Store() (conductor.Store, error)

	// AWS returns this configuration's AWS session.
	AWS() (*session.Session, error)

	// Logger returns the configured logger.
	Logger() (*log.Logger, error)

	// Workers returns the number of tasks that may execute
	// concurrently.
	Workers() (int, error)

	// MaxSize returns the store size below which collection is
	// skipped.
	MaxSize() (int64, error)

	// Value returns the value of the given key.
	Value(key string) interface{}

	// Marshal marshals the current configuration into keys.
	Marshal(keys Keys) error

	// Keys returns all the keys as defined by this config.
	Keys() Keys
}

// Base defines a base configuration with reasonable defaults where
// they apply.
type Base Keys

// Store returns an error indicating no object store was configured.
func (b Base) Store() (conductor.Store, error) {
	return nil, errors.New("store not configured")
}

// AWS returns an error indicating no AWS session was configured.
func (b Base) AWS() (*session.Session, error) {
	return nil, errors.New("AWS session not configured")
}

// Logger returns a logger that outputs to standard error at the
// level named by the key "log", or else at log.InfoLevel.
func (b Base) Logger() (*log.Logger, error) {
	level := log.InfoLevel
	if v, ok := b["log"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("invalid log level: %v", v)
		}
		var err error
		level, err = log.ParseLevel(s)
		if err != nil {
			return nil, err
		}
	}
	return log.New(golog.New(os.Stderr, "", golog.LstdFlags), level), nil
}

// Workers returns the worker count in the key "workers", or else the
// number of CPUs available to the process.
func (b Base) Workers() (int, error) {
	v, ok := b["workers"]
	if !ok {
		return runtime.NumCPU(), nil
	}
	n, ok := v.(int)
	if !ok || n < 1 {
		return 0, fmt.Errorf("invalid worker count: %v", v)
	}
	return n, nil
}

// MaxSize returns the size in the key "maxsize", parsed as a
// human-readable quantity such as "10GB", or else 0, indicating that
// collection should always proceed.
func (b Base) MaxSize() (int64, error) {
	switch v := b["maxsize"].(type) {
	case nil:
		return 0, nil
	case int:
		return int64(v), nil
	case string:
		return units.RAMInBytes(v)
	default:
		return 0, fmt.Errorf("invalid maxsize: %v", v)
	}
}

// Keys returns the configured keys.
func (b Base) Keys() Keys {
	return Keys(b)
}

// Value returns the value for the provided key.
func (b Base) Value(key string) interface{} {
	return b[key]
}

// Marshal populates the provided key dictionary with the keys
// present in this configuration.
func (b Base) Marshal(keys Keys) error {
	for k, v := range b {
		keys[k] = v
	}
	return nil
}

// Unmarshal unmarshals the (YAML-configured) configuration in b into
// keys.
func Unmarshal(b []byte, keys Keys) error {
	return yaml.Unmarshal(b, keys)
}

// Marshal marshals the given config's keys into YAML-formatted
// bytes.
func Marshal(cfg Config) ([]byte, error) {
	keys := make(Keys)
	if err := cfg.Marshal(keys); err != nil {
		return nil, err
	}
	return yaml.Marshal(keys)
}

// Make evaluates a config's keys: for each key in AllKeys (and in
// the order defined by AllKeys), Make parses its provider, and
// provisions the key accordingly. Make returns errors if a provider
// cannot be found or if the provider fails to configure the given
// key.
func Make(cfg Config) (Config, error) {
	for _, key := range AllKeys {
		v := cfg.Value(key)
		if v == nil {
			continue
		}
		vstr, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string for key %s, got %T", key, v)
		}
		name, arg := peel(vstr, ",")
		provider, ok := Lookup(key, name)
		if !ok {
			return nil, fmt.Errorf("provider %s not defined for key %s", name, key)
		}
		var err error
		cfg, err = provider.Configure(cfg, arg)
		if err != nil {
			return nil, fmt.Errorf("configuring key %s with provider %s: %v", key, name, err)
		}
	}
	return cfg, nil
}

// Parse parses and provisions a configuration from the
// YAML-formatted bytes b.
func Parse(b []byte) (Config, error) {
	base := make(Base)
	if err := Unmarshal(b, Keys(base)); err != nil {
		return nil, err
	}
	return Make(base)
}

// ParseFile reads and then parses the configuration from the
// provided filename.
func ParseFile(filename string) (Config, error) {
	b, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// A Provider provisions a single key in a configuration. Providers
// must be registered via the package's Register function.
type Provider struct {
	Configure        func(cfg Config, arg string) (Config, error)
	Kind, Arg, Usage string
}

var (
	providers = make(map[string]map[string]Provider)
	mu        sync.Mutex
)

// Register the configuration provider kind for the given key. The
// arg and usage string should describe the provider's argument.
// Register panics if a provider of the same kind is already
// registered for the key.
func Register(key, kind, arg, usage string, configure func(Config, string) (Config, error)) {
	mu.Lock()
	defer mu.Unlock()
	kindmap := providers[key]
	if kindmap == nil {
		kindmap = make(map[string]Provider)
		providers[key] = kindmap
	}
	if _, ok := kindmap[kind]; ok {
		panic(fmt.Sprintf("provider %s already registered for key %s", kind, key))
	}
	kindmap[kind] = Provider{
		Configure: configure,
		Kind:      kind,
		Arg:       arg,
		Usage:     usage,
	}
}

// Lookup returns the Provider of kind for key.
func Lookup(key, kind string) (Provider, bool) {
	mu.Lock()
	defer mu.Unlock()
	p, ok := providers[key][kind]
	return p, ok
}

// Usage contains usage information for a provider.
type Usage struct {
	Kind, Arg, Usage string
}

// Help returns Usages, organized by key.
func Help() map[string][]Usage {
	mu.Lock()
	defer mu.Unlock()
	help := make(map[string][]Usage)
	for key, keyProviders := range providers {
		var usages []Usage
		for name, provider := range keyProviders {
			usages = append(usages, Usage{
				Kind:  name,
				Arg:   provider.Arg,
				Usage: provider.Usage,
			})
		}
		help[key] = usages
	}
	return help
}

func peel(s, sep string) (head, tail string) {
	switch parts := strings.SplitN(s, sep, 2); len(parts) {
	case 1:
		return parts[0], ""
	case 2:
		return parts[0], parts[1]
	default:
		panic("bug")
	}
}
