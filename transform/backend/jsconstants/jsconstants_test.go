/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package jsconstants

import (
	"strings"
	"testing"

	"github.com/sgtransit/ingest/transform"
	"github.com/sgtransit/ingest/transform/ir"
)

func TestEmitSingleProducesOneFile(t *testing.T) {
	be, _ := New(nil)
	mod := ir.JSONPayload{Document: map[string]any{"a": 1.0}}
	target := transform.Target{ModuleFormat: "esm", Layout: "single", PathPrefix: "out"}
	files, err := be.Emit(mod, target, transform.StageConfig{"variable": "DATA", "filename": "x.js"})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	content, ok := files["out/x.js"]
	if !ok {
		t.Fatalf("expected out/x.js, got keys %v", keysOf(files))
	}
	if !strings.Contains(string(content), "const DATA =") || !strings.Contains(string(content), "export { DATA }") {
		t.Fatalf("unexpected content: %s", content)
	}
}

func TestEmitShardedProducesOneFilePerBucket(t *testing.T) {
	be, _ := New(nil)
	mod := ir.LTATrainBucketed{
		BucketSeconds: 300,
		Buckets: []ir.Bucket{
			{BucketStartISO: "2026-07-31T00:00:00Z", Station: "NS1", Aggregates: map[string]any{"count": 2}},
			{BucketStartISO: "2026-07-31T00:05:00Z", Station: "NS2", Aggregates: map[string]any{"count": 3}},
		},
	}
	target := transform.Target{ModuleFormat: "cjs", Layout: "sharded", PathPrefix: "/shards/"}
	files, err := be.Emit(mod, target, transform.StageConfig{"variable": "BUCKET"})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	for name, content := range files {
		if !strings.HasPrefix(name, "shards/") {
			t.Fatalf("expected shards/ prefix, got %s", name)
		}
		if !strings.Contains(string(content), "module.exports = { BUCKET }") {
			t.Fatalf("unexpected cjs footer: %s", content)
		}
	}
}

func TestEmitShardedRejectsNonBucketedIR(t *testing.T) {
	be, _ := New(nil)
	target := transform.Target{ModuleFormat: "esm", Layout: "sharded"}
	if _, err := be.Emit(ir.JSONPayload{}, target, transform.StageConfig{}); err == nil {
		t.Fatalf("expected error for non-bucketed IR under sharded layout")
	}
}

func TestValidateJSIdentifierRejectsBadVariable(t *testing.T) {
	be, _ := New(nil)
	target := transform.Target{ModuleFormat: "esm", Layout: "single"}
	if _, err := be.Emit(ir.JSONPayload{}, target, transform.StageConfig{"variable": "1bad"}); err == nil {
		t.Fatalf("expected error for invalid identifier")
	}
}

func keysOf(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
