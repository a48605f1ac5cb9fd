// Package plain is the no-op optimizer (registered as "plain"): it
// passes its input IR through unchanged, serving as the toolchain
// baseline. Grounded on
// backend/ingest/transform/optimizer/plain_optimizer.py.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package plain

import (
	"github.com/sgtransit/ingest/plugin"
	"github.com/sgtransit/ingest/registry"
	"github.com/sgtransit/ingest/transform"
	"github.com/sgtransit/ingest/transform/ir"
	"github.com/sgtransit/ingest/wiring"
)

const Name = "plain"
const Version = "1.0.0"

type Optimizer struct{}

func New(map[string]any) (transform.Optimizer, error) { return &Optimizer{}, nil }

var Factory registry.Factory[transform.Optimizer] = New

func (*Optimizer) Name() string    { return Name }
func (*Optimizer) Version() string { return Version }

// Optimize returns mod unchanged - Go interface values are handed
// around by reference to immutable concrete structs here, so there is
// no shared-mutation risk the Python shallow-copy guarded against.
func (*Optimizer) Optimize(mod ir.Module, config transform.StageConfig) (ir.Module, error) {
	if err := transform.ValidateStageConfig(config); err != nil {
		return nil, err
	}
	return mod, nil
}

func init() {
	plugin.Provide("optimizer.plain", func() error {
		return wiring.RegisterOptimizer(Name, Factory, false)
	})
}
