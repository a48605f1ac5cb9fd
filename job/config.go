// Package job implements the per-job lifecycle state machine (prepare
// -> run -> close) and the batch orchestrator that runs many jobs
// serially or concurrently. It instantiates sources, caches, and the
// transform driver purely by name via the wiring registries - it never
// imports a concrete implementation package itself.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package job

import (
	"strings"

	"github.com/sgtransit/ingest/cmn/xerrors"
	"github.com/sgtransit/ingest/transform"
)

// NamedConfig is the recurring {name, config} shape used for every
// pluggable declaration in a job config (source, frontend, optimizer,
// backend, raw/preprocessed cache).
type NamedConfig struct {
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}

// PathsConfig resolves the on-disk roots a run operates under.
type PathsConfig struct {
	ConfigsRoot      string `json:"configs_root"`
	DataRoot         string `json:"data_root"`
	RawRoot          string `json:"raw_root"`
	PreprocessedRoot string `json:"preprocessed_root"`
}

// ExecutionConfig controls the batch orchestrator.
type ExecutionConfig struct {
	Parallelism int    `json:"parallelism"`
	Strategy    string `json:"strategy"` // "serial" | "threads" | "processes"
	FailFast    bool   `json:"fail_fast"`
}

// CacheConfigs names the raw and preprocessed cache implementations a
// run uses, plus their declarative construction config.
type CacheConfigs struct {
	Raw          NamedConfig `json:"raw"`
	Preprocessed NamedConfig `json:"preprocessed"`
}

// TransformConfigs carries the run-wide transform defaults every job's
// TransformerSpec is built from.
type TransformConfigs struct {
	IRVersion int            `json:"ir_version"`
	Target    transform.Target `json:"target"`
}

// TransformDecl names the three transform stages one job uses.
type TransformDecl struct {
	Frontend  NamedConfig `json:"frontend"`
	Optimizer NamedConfig `json:"optimizer"`
	Backend   NamedConfig `json:"backend"`
}

// Spec is one job's declarative definition.
type Spec struct {
	Name      string        `json:"name"`
	Source    NamedConfig   `json:"source"`
	Transform TransformDecl `json:"transform"`
}

// Config is the full declarative job configuration consumed by the
// runner and the CLI.
type Config struct {
	Version          int              `json:"version"`
	Profile          string           `json:"profile"`
	LogLevel         string           `json:"log_level"`
	Paths            PathsConfig      `json:"paths"`
	Execution        ExecutionConfig  `json:"execution"`
	CacheConfigs     CacheConfigs     `json:"cache_configs"`
	TransformConfigs TransformConfigs `json:"transform_configs"`
	Plugins          []string         `json:"plugins"`
	Jobs             []Spec           `json:"jobs"`
}

// Validate enforces the shape invariants a config
// parser checks before any registry lookup happens: non-empty,
// deduplicated plugin list; non-empty, uniquely-named job list;
// positive parallelism; a recognized execution strategy.
func (c *Config) Validate() error {
	if len(c.Plugins) == 0 {
		return xerrors.Configurationf("config.plugins must be non-empty")
	}
	seenPlugins := make(map[string]bool, len(c.Plugins))
	for _, p := range c.Plugins {
		key := strings.ToLower(strings.TrimSpace(p))
		if key == "" {
			return xerrors.Configurationf("config.plugins entries must be non-empty")
		}
		if seenPlugins[key] {
			return xerrors.Configurationf("config.plugins contains duplicate entry %q", p)
		}
		seenPlugins[key] = true
	}
	if len(c.Jobs) == 0 {
		return xerrors.Configurationf("config.jobs must be non-empty")
	}
	seenJobs := make(map[string]bool, len(c.Jobs))
	for _, j := range c.Jobs {
		if strings.TrimSpace(j.Name) == "" {
			return xerrors.Configurationf("every job must have a non-empty name")
		}
		if seenJobs[j.Name] {
			return xerrors.Configurationf("duplicate job name %q", j.Name)
		}
		seenJobs[j.Name] = true
	}
	if c.Execution.Parallelism <= 0 {
		return xerrors.Configurationf("config.execution.parallelism must be > 0")
	}
	switch c.Execution.Strategy {
	case "serial", "threads", "processes":
	default:
		return xerrors.Configurationf("config.execution.strategy must be one of serial|threads|processes, got %q", c.Execution.Strategy)
	}
	return nil
}
