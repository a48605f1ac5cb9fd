// Package driver orchestrates one compiler run: frontend.Compile ->
// optimizer.Optimize -> backend.Emit, then commits the resulting
// artifacts into a PreprocessedCache under a reconciled CacheKey. It is
// the one place that resolves named stages from the registries and
// builds the provenance the preprocessed cache stores alongside the
// artifacts.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package driver

import (
	"sort"
	"time"

	"github.com/sgtransit/ingest/cache"
	"github.com/sgtransit/ingest/cmn/xerrors"
	"github.com/sgtransit/ingest/registry"
	"github.com/sgtransit/ingest/transform"
	"github.com/sgtransit/ingest/wiring"
)

// Now is overridable in tests; production code leaves it at time.Now.
var Now = time.Now

// Driver resolves named stages from its three registries and runs them
// in sequence. New fills the fields with the process-wide wiring
// registries; tests may set their own to isolate a run from global
// state. All three fields must be set before Run.
type Driver struct {
	Frontends  *registry.Registry[transform.FrontendCompiler]
	Optimizers *registry.Registry[transform.Optimizer]
	Backends   *registry.Registry[transform.BackendCompiler]
}

// New returns a Driver wired to the process-wide registries.
func New() *Driver {
	return &Driver{Frontends: wiring.Frontends, Optimizers: wiring.Optimizers, Backends: wiring.Backends}
}

// Result is what one driver run produced and where it landed.
type Result struct {
	Key       cache.CacheKey
	Manifest  cache.ArtifactManifest
	Meta      cache.PreprocessedCacheMeta
	Artifacts map[string][]byte
}

// Run compiles raw into the transformer's target shape and saves the result
// into store under key. If key.FetchedAtISO is already set (the normal
// case - callers pin it to the source record's real fetch time), it is
// reused as built_at_iso rather than recomputed from Now; only an
// empty FetchedAtISO falls back to Now. store.Save still enforces that
// a pinned key.FetchedAtISO matches meta.BuiltAtISO as a read/write
// consistency check (see cache/fspreprocessed.Cache.Save).
func (d *Driver) Run(spec transform.TransformerSpec, raw cache.RawCacheRecord, key cache.CacheKey, store cache.PreprocessedCache) (Result, error) {
	for _, cfg := range []transform.StageConfig{spec.FrontendConfig, spec.OptimizerConfig, spec.BackendConfig} {
		if err := transform.ValidateStageConfig(cfg); err != nil {
			return Result{}, err
		}
	}
	frontend, err := d.Frontends.New(spec.FrontendName, spec.FrontendConfig)
	if err != nil {
		return Result{}, err
	}
	optimizer, err := d.Optimizers.New(spec.OptimizerName, spec.OptimizerConfig)
	if err != nil {
		return Result{}, err
	}
	backend, err := d.Backends.New(spec.BackendName, spec.BackendConfig)
	if err != nil {
		return Result{}, err
	}

	record := transform.RawRecord{
		Payload: raw.Payload,
		Meta: transform.RawMeta{
			SourceName:   raw.Meta.SourceName,
			FetchedAtISO: raw.Meta.FetchedAtISO,
			ContentType:  raw.Meta.ContentType,
			Encoding:     raw.Meta.Encoding,
			Extra:        raw.Meta.Meta,
		},
	}

	mod, err := frontend.Compile(record, spec.FrontendConfig)
	if err != nil {
		return Result{}, err
	}
	mod, err = optimizer.Optimize(mod, spec.OptimizerConfig)
	if err != nil {
		return Result{}, err
	}
	artifacts, err := backend.Emit(mod, spec.Target, spec.BackendConfig)
	if err != nil {
		return Result{}, err
	}
	if len(artifacts) == 0 {
		return Result{}, xerrors.New(xerrors.KindInvariantViolation, "driver: backend %q produced no artifacts", spec.BackendName)
	}

	effectiveKey := key
	var builtAtISO string
	if effectiveKey.FetchedAtISO == "" {
		builtAtISO = Now().UTC().Format(time.RFC3339)
		effectiveKey.FetchedAtISO = builtAtISO
	} else {
		builtAtISO = effectiveKey.FetchedAtISO
	}

	meta := cache.PreprocessedCacheMeta{
		BuiltAtISO:    builtAtISO,
		SchemaVersion: spec.IRVersion,
		Extra: map[string]any{
			"frontend":          frontend.Name(),
			"frontend_version":  frontend.Version(),
			"optimizer":         optimizer.Name(),
			"optimizer_version": optimizer.Version(),
			"backend":           backend.Name(),
			"backend_version":   backend.Version(),
			"source_name":       raw.Meta.SourceName,
			"ir_kind":           mod.Kind(),
		},
	}

	if err := store.Save(effectiveKey, artifacts, meta); err != nil {
		return Result{}, err
	}

	names := make([]string, 0, len(artifacts))
	for name := range artifacts {
		names = append(names, name)
	}
	sort.Strings(names)

	return Result{
		Key:       effectiveKey,
		Manifest:  cache.ArtifactManifest{Files: names},
		Meta:      meta,
		Artifacts: artifacts,
	}, nil
}
