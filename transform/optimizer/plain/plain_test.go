/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package plain

import (
	"testing"

	"github.com/sgtransit/ingest/transform"
	"github.com/sgtransit/ingest/transform/ir"
)

func TestOptimizeReturnsInputUnchanged(t *testing.T) {
	opt, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	in := ir.JSONPayload{Document: map[string]any{"x": 1.0}}
	out, err := opt.Optimize(in, transform.StageConfig{})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if out.Kind() != in.Kind() {
		t.Fatalf("expected unchanged kind, got %s", out.Kind())
	}
	if out.(ir.JSONPayload).Document.(map[string]any)["x"] != 1.0 {
		t.Fatalf("expected unchanged document")
	}
}

func TestOptimizeRejectsInvalidConfig(t *testing.T) {
	opt, _ := New(nil)
	_, err := opt.Optimize(ir.JSONPayload{}, transform.StageConfig{"bad": make(chan int)})
	if err == nil {
		t.Fatalf("expected config validation error")
	}
}
