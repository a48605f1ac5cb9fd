// Package transform defines the three-stage compiler toolchain contract
// (frontend -> optimizer -> backend) that the driver
// subpackage orchestrates. It carries no concrete stage implementation -
// those live under transform/frontend, transform/optimizer, and
// transform/backend and register themselves into wiring.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package transform

import (
	"github.com/sgtransit/ingest/cmn/xerrors"
	"github.com/sgtransit/ingest/transform/ir"
)

// RawMeta is the driver's adapted view of cache.RawCacheMeta - the
// subset a frontend needs, decoupled from the cache package so
// transform stages don't import cache directly.
type RawMeta struct {
	SourceName   string
	FetchedAtISO string
	ContentType  string
	Encoding     string
	Extra        map[string]string
}

// RawRecord is the driver's adapted view of cache.RawCacheRecord.
type RawRecord struct {
	Payload []byte
	Meta    RawMeta
}

// Target describes the backend's output shape.
type Target struct {
	JSABIVersion int            `json:"js_abi_version"`
	ModuleFormat string         `json:"module_format"` // "esm" | "cjs"
	Layout       string         `json:"layout"`         // "single" | "sharded"
	PathPrefix   string         `json:"path_prefix"`
	Options      map[string]any `json:"options"`
}

// StageConfig is a shallowly-typed JSON object: top-level keys are
// strings, values are JSON-compatible. The driver validates this shape
// before handing it to a stage; stages may read anything from within.
type StageConfig map[string]any

// TransformerSpec is the immutable, fully-resolved configuration for
// one driver run.
type TransformerSpec struct {
	FrontendName  string
	OptimizerName string
	BackendName   string
	IRVersion     int
	Target        Target

	FrontendConfig  StageConfig
	OptimizerConfig StageConfig
	BackendConfig   StageConfig
}

// FrontendCompiler parses a raw record into IR.
type FrontendCompiler interface {
	Name() string
	Version() string
	Compile(record RawRecord, config StageConfig) (ir.Module, error)
}

// Optimizer rewrites IR into IR (same or different concrete kind).
type Optimizer interface {
	Name() string
	Version() string
	Optimize(mod ir.Module, config StageConfig) (ir.Module, error)
}

// BackendCompiler lowers IR into a set of named output artifacts.
type BackendCompiler interface {
	Name() string
	Version() string
	Emit(mod ir.Module, target Target, config StageConfig) (map[string][]byte, error)
}

// ValidateStageConfig enforces the shallow-JSON-object shape the driver
// checks on every stage config before dispatch (the shipped stages
// also check it on entry): a nil or
// empty map is fine, but a non-nil map's keys must be strings (true by
// Go's static type) and values must themselves be JSON-compatible
// scalars, slices, or maps - this rejects channels, funcs, and other
// values that could never have come from a JSON document.
func ValidateStageConfig(cfg StageConfig) error {
	for k, v := range cfg {
		if err := validateJSONValue(k, v); err != nil {
			return err
		}
	}
	return nil
}

func validateJSONValue(path string, v any) error {
	switch t := v.(type) {
	case nil, bool, string, float64, float32, int, int32, int64, uint, uint32, uint64:
		return nil
	case []any:
		for _, e := range t {
			if err := validateJSONValue(path, e); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		for k2, e := range t {
			if err := validateJSONValue(k2, e); err != nil {
				return err
			}
		}
		return nil
	default:
		return xerrors.Configurationf("stage config value at %q is not JSON-compatible (got %T)", path, v)
	}
}
