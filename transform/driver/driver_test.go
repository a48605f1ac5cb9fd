/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package driver

import (
	"testing"
	"time"

	"github.com/sgtransit/ingest/cache"
	"github.com/sgtransit/ingest/registry"
	"github.com/sgtransit/ingest/transform"
	"github.com/sgtransit/ingest/transform/frontend/jsonpayload"
	"github.com/sgtransit/ingest/transform/ir"
	"github.com/sgtransit/ingest/transform/optimizer/plain"
)

type passthroughBackend struct{}

func (passthroughBackend) Name() string    { return "test_backend" }
func (passthroughBackend) Version() string { return "0" }
func (passthroughBackend) Emit(mod ir.Module, target transform.Target, config transform.StageConfig) (map[string][]byte, error) {
	return map[string][]byte{"out.json": []byte("{}")}, nil
}

type memPreprocessedCache struct {
	saved     bool
	key       cache.CacheKey
	artifacts map[string][]byte
	meta      cache.PreprocessedCacheMeta
}

func (m *memPreprocessedCache) Has(cache.CacheKey) bool { return m.saved }
func (m *memPreprocessedCache) Save(key cache.CacheKey, artifacts map[string][]byte, meta cache.PreprocessedCacheMeta) error {
	m.saved = true
	m.key = key
	m.artifacts = artifacts
	m.meta = meta
	return nil
}
func (m *memPreprocessedCache) LoadManifest(cache.CacheKey) (cache.ArtifactManifest, error) {
	names := make([]string, 0, len(m.artifacts))
	for n := range m.artifacts {
		names = append(names, n)
	}
	return cache.ArtifactManifest{Files: names}, nil
}
func (m *memPreprocessedCache) LoadArtifact(key cache.CacheKey, name string) ([]byte, error) {
	return m.artifacts[name], nil
}
func (m *memPreprocessedCache) ReadMeta(cache.CacheKey) (cache.PreprocessedCacheMeta, error) {
	return m.meta, nil
}
func (m *memPreprocessedCache) IterKeys(string) ([]cache.CacheKey, error) {
	return []cache.CacheKey{m.key}, nil
}

func testDriver() *Driver {
	d := &Driver{
		Frontends:  registry.New[transform.FrontendCompiler]("frontends"),
		Optimizers: registry.New[transform.Optimizer]("optimizers"),
		Backends:   registry.New[transform.BackendCompiler]("backends"),
	}
	_ = d.Frontends.Register("json_payload", jsonpayload.Factory, false)
	_ = d.Optimizers.Register("plain", plain.Factory, false)
	_ = d.Backends.Register("test_backend", func(map[string]any) (transform.BackendCompiler, error) {
		return passthroughBackend{}, nil
	}, false)
	return d
}

func TestRunSavesArtifactsAndDerivesKeyWhenFetchedAtEmpty(t *testing.T) {
	fixed := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	Now = func() time.Time { return fixed }
	defer func() { Now = time.Now }()

	d := testDriver()
	store := &memPreprocessedCache{}
	spec := transform.TransformerSpec{FrontendName: "json_payload", OptimizerName: "plain", BackendName: "test_backend"}
	raw := cache.RawCacheRecord{Payload: []byte(`{"a":1}`), Meta: cache.RawCacheMeta{SourceName: "test"}}
	key := cache.CacheKey{ConfigName: "cfg", ContentHash: "abc"}

	result, err := d.Run(spec, raw, key, store)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Key.FetchedAtISO != fixed.Format(time.RFC3339) {
		t.Fatalf("expected derived fetched_at_iso, got %q", result.Key.FetchedAtISO)
	}
	if !store.saved {
		t.Fatalf("expected artifacts saved to store")
	}
	if len(result.Manifest.Files) != 1 || result.Manifest.Files[0] != "out.json" {
		t.Fatalf("unexpected manifest: %v", result.Manifest.Files)
	}
	if result.Meta.Extra.(map[string]any)["frontend"] != "json_payload" {
		t.Fatalf("expected provenance to record frontend name")
	}
}

func TestRunReusesPinnedFetchedAtAsBuiltAtRegardlessOfNow(t *testing.T) {
	// Now is left far from the pinned timestamp on purpose: a caller
	// that already knows the record's real fetch time (the normal
	// job/runner.go flow) must not have the run fail just because the
	// transform happens at a different wall-clock moment.
	fixed := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	Now = func() time.Time { return fixed }
	defer func() { Now = time.Now }()

	d := testDriver()
	store := &memPreprocessedCache{}
	spec := transform.TransformerSpec{FrontendName: "json_payload", OptimizerName: "plain", BackendName: "test_backend"}
	raw := cache.RawCacheRecord{Payload: []byte(`{}`)}
	pinned := "2020-01-01T00:00:00Z"
	key := cache.CacheKey{ConfigName: "cfg", ContentHash: "abc", FetchedAtISO: pinned}

	result, err := d.Run(spec, raw, key, store)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Key.FetchedAtISO != pinned {
		t.Fatalf("expected pinned fetched_at_iso %q to be preserved, got %q", pinned, result.Key.FetchedAtISO)
	}
	if result.Meta.BuiltAtISO != pinned {
		t.Fatalf("expected built_at_iso to reuse the pinned fetched_at_iso %q, got %q", pinned, result.Meta.BuiltAtISO)
	}
}

func TestRunFailsOnUnknownFrontend(t *testing.T) {
	d := testDriver()
	store := &memPreprocessedCache{}
	spec := transform.TransformerSpec{FrontendName: "does_not_exist", OptimizerName: "plain", BackendName: "test_backend"}
	raw := cache.RawCacheRecord{Payload: []byte(`{}`)}
	if _, err := d.Run(spec, raw, cache.CacheKey{}, store); err == nil {
		t.Fatalf("expected not-found error for unregistered frontend")
	}
}
