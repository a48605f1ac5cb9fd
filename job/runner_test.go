package job

import (
	"testing"

	"github.com/sgtransit/ingest/cache"
	"github.com/sgtransit/ingest/cmn/xerrors"
	"github.com/sgtransit/ingest/source"
	"github.com/sgtransit/ingest/transform"
	"github.com/sgtransit/ingest/transform/frontend/jsonpayload"
	"github.com/sgtransit/ingest/transform/ir"
	"github.com/sgtransit/ingest/transform/optimizer/plain"
	"github.com/sgtransit/ingest/wiring"
)

type fakeSource struct {
	n int
}

func (f *fakeSource) Name() string                 { return "fake" }
func (f *fakeSource) Describe() map[string]string   { return map[string]string{"name": "fake"} }
func (f *fakeSource) Validate() error               { return nil }
func (f *fakeSource) Fetch(emit func(cache.RawCacheRecord) error) error {
	for i := 0; i < f.n; i++ {
		if err := emit(cache.RawCacheRecord{Payload: []byte(`{"i":1}`), Meta: cache.RawCacheMeta{SourceName: "fake", FetchedAtISO: "2026-07-31T00:00:00Z"}}); err != nil {
			return err
		}
	}
	return nil
}

type failingSource struct{}

func (failingSource) Name() string               { return "failing" }
func (failingSource) Describe() map[string]string { return nil }
func (failingSource) Validate() error            { return nil }
func (failingSource) Fetch(emit func(cache.RawCacheRecord) error) error {
	return xerrors.New(xerrors.KindSourceTransport, "boom")
}

type testBackend struct{}

func (testBackend) Name() string    { return "test_backend" }
func (testBackend) Version() string { return "0" }
func (testBackend) Emit(mod ir.Module, target transform.Target, config transform.StageConfig) (map[string][]byte, error) {
	return map[string][]byte{"out.json": []byte("{}")}, nil
}

type memRaw struct{ saved map[string]cache.RawCacheRecord }

func newMemRaw() *memRaw { return &memRaw{saved: map[string]cache.RawCacheRecord{}} }
func (m *memRaw) Has(key cache.CacheKey) bool { _, ok := m.saved[key.String()]; return ok }
func (m *memRaw) Save(key cache.CacheKey, record cache.RawCacheRecord) error {
	m.saved[key.String()] = record
	return nil
}
func (m *memRaw) Load(key cache.CacheKey) (cache.RawCacheRecord, error) {
	r, ok := m.saved[key.String()]
	if !ok {
		return cache.RawCacheRecord{}, xerrors.CacheMissf("no such key")
	}
	return r, nil
}
func (m *memRaw) IterKeys(string) ([]cache.CacheKey, error) { return nil, nil }

type memPre struct {
	artifacts map[string][]byte
}

func newMemPre() *memPre { return &memPre{artifacts: map[string][]byte{}} }
func (m *memPre) Has(cache.CacheKey) bool { return len(m.artifacts) > 0 }
func (m *memPre) Save(key cache.CacheKey, artifacts map[string][]byte, meta cache.PreprocessedCacheMeta) error {
	for k, v := range artifacts {
		m.artifacts[k] = v
	}
	return nil
}
func (m *memPre) LoadManifest(cache.CacheKey) (cache.ArtifactManifest, error) {
	var names []string
	for k := range m.artifacts {
		names = append(names, k)
	}
	return cache.ArtifactManifest{Files: names}, nil
}
func (m *memPre) LoadArtifact(key cache.CacheKey, name string) ([]byte, error) { return m.artifacts[name], nil }
func (m *memPre) ReadMeta(cache.CacheKey) (cache.PreprocessedCacheMeta, error) {
	return cache.PreprocessedCacheMeta{}, nil
}
func (m *memPre) IterKeys(string) ([]cache.CacheKey, error) { return nil, nil }

func registerTestPlugins(t *testing.T, n int, failSource bool) {
	t.Helper()
	if failSource {
		_ = wiring.RegisterSource("fake", func(map[string]any) (source.DataSource, error) {
			return failingSource{}, nil
		}, true)
	} else {
		_ = wiring.RegisterSource("fake", func(map[string]any) (source.DataSource, error) {
			return &fakeSource{n: n}, nil
		}, true)
	}
	_ = wiring.RegisterRawCache("mem", func(map[string]any) (cache.RawCache, error) { return newMemRaw(), nil }, true)
	_ = wiring.RegisterPreprocessedCache("mem", func(map[string]any) (cache.PreprocessedCache, error) { return newMemPre(), nil }, true)
	_ = wiring.RegisterFrontend("json_payload", jsonpayload.Factory, true)
	_ = wiring.RegisterOptimizer("plain", plain.Factory, true)
	_ = wiring.RegisterBackend("test_backend", func(map[string]any) (transform.BackendCompiler, error) { return testBackend{}, nil }, true)
}

func testJobSpec() Spec {
	return Spec{
		Name:   "cfg",
		Source: NamedConfig{Name: "fake"},
		Transform: TransformDecl{
			Frontend:  NamedConfig{Name: "json_payload"},
			Optimizer: NamedConfig{Name: "plain"},
			Backend:   NamedConfig{Name: "test_backend"},
		},
	}
}

func testCacheConfigs() CacheConfigs {
	return CacheConfigs{Raw: NamedConfig{Name: "mem"}, Preprocessed: NamedConfig{Name: "mem"}}
}

func TestTaskLifecycleHappyPath(t *testing.T) {
	registerTestPlugins(t, 3, false)
	task := NewTask(testJobSpec(), testCacheConfigs(), TransformConfigs{IRVersion: 1}, nil)
	if err := task.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if task.State() != StatePrepared {
		t.Fatalf("expected prepared, got %s", task.State())
	}
	if err := task.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if task.State() != StateFinished {
		t.Fatalf("expected finished, got %s", task.State())
	}
	if len(task.Artifacts) != 3 {
		t.Fatalf("expected 3 artifacts (one per record), got %d", len(task.Artifacts))
	}
	if err := task.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := task.Close(); err != nil {
		t.Fatalf("Close must be idempotent: %v", err)
	}
}

func TestTaskRunBeforePrepareFails(t *testing.T) {
	registerTestPlugins(t, 1, false)
	task := NewTask(testJobSpec(), testCacheConfigs(), TransformConfigs{IRVersion: 1}, nil)
	if err := task.Run(); err == nil {
		t.Fatalf("expected Run before Prepare to fail")
	}
}

func TestTaskSourceFailureTransitionsToFailedWithTaskError(t *testing.T) {
	registerTestPlugins(t, 0, true)
	task := NewTask(testJobSpec(), testCacheConfigs(), TransformConfigs{IRVersion: 1}, nil)
	if err := task.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := task.Run(); err == nil {
		t.Fatalf("expected Run to fail")
	}
	if task.State() != StateFailed {
		t.Fatalf("expected failed, got %s", task.State())
	}
	if task.Err() == nil || task.Err().Type != string(xerrors.KindSourceTransport) {
		t.Fatalf("expected a source_transport TaskError, got %+v", task.Err())
	}
}

