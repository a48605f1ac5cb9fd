// Package plugin is the idempotent import-by-name loader.
// Go has no runtime import-by-string, so "import each module
// exactly once, causing its registrations to run" is implemented
// as: every plugin package
// registers a deferred registration thunk into this package's
// directory from its own init() (see Provide); linking a plugin
// package into the binary (a blank import in cmd/ingestctl) makes it
// available but does not yet register it into wiring - only an
// explicit Load, driven by the job config's `plugins` list, does that,
// exactly once per process per name.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package plugin

import (
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/sgtransit/ingest/cmn/xerrors"
)

type registerFunc func() error

var (
	mu        sync.Mutex
	providers = map[string]registerFunc{}
	loaded    = map[string]error{}
	group     singleflight.Group
)

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Provide registers a plugin's deferred registration thunk under name.
// Plugin packages call this from their own init(); it must never be
// called from application code.
func Provide(name string, register registerFunc) {
	n := normalize(name)
	if n == "" {
		panic("plugin: name must be non-empty")
	}
	mu.Lock()
	defer mu.Unlock()
	providers[n] = register
}

// Available reports whether a plugin with the given name has been
// linked into the binary (blank-imported somewhere), independent of
// whether it has been Load-ed yet.
func Available(name string) bool {
	mu.Lock()
	defer mu.Unlock()
	_, ok := providers[normalize(name)]
	return ok
}

// Known returns every linked-in plugin name, for the `list` CLI
// subcommand.
func Known() []string {
	mu.Lock()
	defer mu.Unlock()
	out := make([]string, 0, len(providers))
	for k := range providers {
		out = append(out, k)
	}
	return out
}

// Load imports each named plugin exactly once per process, in order,
// causing its registration thunk to run. A name not found among the
// linked-in providers fails with KindNotFound. Safe to call repeatedly
// or concurrently with the same or overlapping name lists: each
// distinct name's thunk runs exactly once, guarded by a singleflight
// group keyed on the normalized name.
func Load(names []string) error {
	for _, name := range names {
		if err := loadOne(name); err != nil {
			return err
		}
	}
	return nil
}

func loadOne(name string) error {
	n := normalize(name)
	if n == "" {
		return xerrors.Configurationf("plugin name must be non-empty")
	}
	_, err, _ := group.Do(n, func() (any, error) {
		mu.Lock()
		if prevErr, ok := loaded[n]; ok {
			mu.Unlock()
			return nil, prevErr
		}
		fn, ok := providers[n]
		mu.Unlock()
		if !ok {
			return nil, xerrors.NotFoundf("plugin %q not found, available=%v", n, Known())
		}
		runErr := fn()
		mu.Lock()
		loaded[n] = runErr
		mu.Unlock()
		return nil, runErr
	})
	return err
}

// reset clears all loader state. Exposed only for tests that need a
// clean directory between cases; application code never calls it.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	providers = map[string]registerFunc{}
	loaded = map[string]error{}
	group = singleflight.Group{}
}
