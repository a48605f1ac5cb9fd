// Package wiring declares the fixed set of named registries the system
// exposes as extension points: sources, raw caches,
// preprocessed caches, frontends, optimizers, and backends. It imports
// only the packages that define the extension-point interfaces
// (cache, source, transform) - never a concrete implementation package.
// Implementations live in their own packages (cache/fsraw,
// source/datamall, transform/frontend/jsonpayload, ...) and call the
// Register* functions below from a plugin-loader hook (see package
// plugin), not from a bare package init.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package wiring

import (
	"github.com/sgtransit/ingest/cache"
	"github.com/sgtransit/ingest/registry"
	"github.com/sgtransit/ingest/source"
	"github.com/sgtransit/ingest/transform"
)

var (
	Sources            = registry.New[source.DataSource]("sources")
	RawCaches          = registry.New[cache.RawCache]("raw_caches")
	PreprocessedCaches = registry.New[cache.PreprocessedCache]("preprocessed_caches")
	Frontends          = registry.New[transform.FrontendCompiler]("frontends")
	Optimizers         = registry.New[transform.Optimizer]("optimizers")
	Backends           = registry.New[transform.BackendCompiler]("backends")
)

// RegisterSource binds name to a DataSource factory. override matches
// the registry's own override semantics: a second
// registration of the identical factory under the same name is
// idempotent; a different factory under an existing name fails unless
// override is true.
func RegisterSource(name string, factory registry.Factory[source.DataSource], override bool) error {
	return Sources.Register(name, factory, override)
}

// RegisterRawCache binds name to a RawCache factory.
func RegisterRawCache(name string, factory registry.Factory[cache.RawCache], override bool) error {
	return RawCaches.Register(name, factory, override)
}

// RegisterPreprocessedCache binds name to a PreprocessedCache factory.
func RegisterPreprocessedCache(name string, factory registry.Factory[cache.PreprocessedCache], override bool) error {
	return PreprocessedCaches.Register(name, factory, override)
}

// RegisterFrontend binds name to a FrontendCompiler factory.
func RegisterFrontend(name string, factory registry.Factory[transform.FrontendCompiler], override bool) error {
	return Frontends.Register(name, factory, override)
}

// RegisterOptimizer binds name to an Optimizer factory.
func RegisterOptimizer(name string, factory registry.Factory[transform.Optimizer], override bool) error {
	return Optimizers.Register(name, factory, override)
}

// RegisterBackend binds name to a BackendCompiler factory.
func RegisterBackend(name string, factory registry.Factory[transform.BackendCompiler], override bool) error {
	return Backends.Register(name, factory, override)
}

// Dump returns every registry's registered names, keyed by namespace,
// for the `list` CLI subcommand.
func Dump() map[string][]string {
	return map[string][]string{
		Sources.Namespace():            Sources.Keys(),
		RawCaches.Namespace():          RawCaches.Keys(),
		PreprocessedCaches.Namespace(): PreprocessedCaches.Keys(),
		Frontends.Namespace():          Frontends.Keys(),
		Optimizers.Namespace():         Optimizers.Keys(),
		Backends.Namespace():           Backends.Keys(),
	}
}
