package job

import (
	"github.com/sgtransit/ingest/cache"
	"github.com/sgtransit/ingest/cmn/xerrors"
	"github.com/sgtransit/ingest/source"
	"github.com/sgtransit/ingest/stats"
	"github.com/sgtransit/ingest/transform"
	"github.com/sgtransit/ingest/transform/driver"
	"github.com/sgtransit/ingest/wiring"
)

// State is one point in a Task's lifecycle: created -> prepared ->
// running -> finished|failed -> closed. close is idempotent from any
// state.
type State string

const (
	StateCreated  State = "created"
	StatePrepared State = "prepared"
	StateRunning  State = "running"
	StateFinished State = "finished"
	StateFailed   State = "failed"
	StateClosed   State = "closed"
)

// TaskError is the serializable failure record a Task carries after a
// failed run: type name, message, and (when the underlying error
// carries one) a stack trace.
type TaskError struct {
	Type    string   `json:"type"`
	Message string   `json:"message"`
	Stack   []string `json:"stack,omitempty"`
}

func newTaskError(err error) *TaskError {
	if err == nil {
		return nil
	}
	te := &TaskError{Message: err.Error()}
	var xe *xerrors.Error
	if asXerror(err, &xe) {
		te.Type = string(xe.Kind())
		if st := xe.StackTrace(); st != nil {
			for _, frame := range st {
				te.Stack = append(te.Stack, frame.String())
			}
		}
		return te
	}
	te.Type = "error"
	return te
}

func asXerror(err error, target **xerrors.Error) bool {
	for err != nil {
		if xe, ok := err.(*xerrors.Error); ok {
			*target = xe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Task runs exactly one job: source -> raw cache -> transform driver ->
// preprocessed cache, one record at a time, in the order the source
// yields them.
type Task struct {
	spec             Spec
	cacheConfigs     CacheConfigs
	transformConfigs TransformConfigs

	state State
	err   *TaskError

	rawCache          cache.RawCache
	preprocessedCache cache.PreprocessedCache
	drv               *driver.Driver
	dataSource        source.DataSource
	stats             *stats.Stats

	Artifacts []string
}

// NewTask constructs a Task in the created state. It performs no I/O
// and no registry lookups. st may be nil, in which case the task
// records no metrics.
func NewTask(spec Spec, cacheConfigs CacheConfigs, transformConfigs TransformConfigs, st *stats.Stats) *Task {
	return &Task{spec: spec, cacheConfigs: cacheConfigs, transformConfigs: transformConfigs, state: StateCreated, stats: st}
}

func (t *Task) State() State    { return t.state }
func (t *Task) Err() *TaskError { return t.err }
func (t *Task) Name() string    { return t.spec.Name }

// Source returns the job's instantiated data source, or nil before Run
// has resolved it. Useful for diagnostics after a run.
func (t *Task) Source() source.DataSource { return t.dataSource }

// Prepare instantiates the raw and preprocessed caches by name and
// builds the transform driver over the wiring registries (Run hands
// the preprocessed cache to each driver run). It must be called
// exactly once, before Run.
func (t *Task) Prepare() error {
	if t.state != StateCreated {
		return xerrors.New(xerrors.KindInvariantViolation, "job %q: Prepare called from state %q, want %q", t.spec.Name, t.state, StateCreated)
	}
	rawCache, err := wiring.RawCaches.New(t.cacheConfigs.Raw.Name, t.cacheConfigs.Raw.Config)
	if err != nil {
		return err
	}
	preprocessedCache, err := wiring.PreprocessedCaches.New(t.cacheConfigs.Preprocessed.Name, t.cacheConfigs.Preprocessed.Config)
	if err != nil {
		return err
	}
	t.rawCache = rawCache
	t.preprocessedCache = preprocessedCache
	t.drv = driver.New()
	t.state = StatePrepared
	return nil
}

// Run instantiates the job's source, validates it, and drives every
// yielded record through cache-key derivation, raw-cache save, and the
// transform driver, in order. On failure it transitions to failed,
// records a TaskError, and returns the error; on success it
// transitions to finished.
func (t *Task) Run() error {
	if t.state != StatePrepared {
		return xerrors.New(xerrors.KindInvariantViolation, "job %q: Run called from state %q, want %q", t.spec.Name, t.state, StatePrepared)
	}
	t.state = StateRunning

	if err := t.run(); err != nil {
		t.state = StateFailed
		t.err = newTaskError(err)
		if t.stats != nil {
			t.stats.JobFailure(t.spec.Name)
		}
		return err
	}
	t.state = StateFinished
	return nil
}

func (t *Task) run() error {
	src, err := wiring.Sources.New(t.spec.Source.Name, t.spec.Source.Config)
	if err != nil {
		return err
	}
	t.dataSource = src
	if err := src.Validate(); err != nil {
		return err
	}

	spec := transform.TransformerSpec{
		FrontendName:    t.spec.Transform.Frontend.Name,
		OptimizerName:   t.spec.Transform.Optimizer.Name,
		BackendName:     t.spec.Transform.Backend.Name,
		IRVersion:       t.transformConfigs.IRVersion,
		Target:          t.transformConfigs.Target,
		FrontendConfig:  t.spec.Transform.Frontend.Config,
		OptimizerConfig: t.spec.Transform.Optimizer.Config,
		BackendConfig:   t.spec.Transform.Backend.Config,
	}

	return src.Fetch(func(record cache.RawCacheRecord) error {
		if t.stats != nil {
			t.stats.RecordFetched(t.spec.Source.Name)
		}
		key, err := cache.MakeCacheKey(t.spec.Name, record, nil)
		if err != nil {
			return err
		}
		if err := t.rawCache.Save(key, record); err != nil {
			return err
		}
		result, err := t.drv.Run(spec, record, key, t.preprocessedCache)
		if err != nil {
			return err
		}
		t.Artifacts = append(t.Artifacts, result.Manifest.Files...)
		return nil
	})
}

// Close releases any resources the task holds. It is idempotent and
// safe to call from any state, including created (nothing to release
// yet) and failed.
func (t *Task) Close() error {
	if t.state == StateClosed {
		return nil
	}
	t.state = StateClosed
	return nil
}
