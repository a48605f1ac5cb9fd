/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package ltatrainbucket

import (
	"testing"

	"github.com/sgtransit/ingest/transform"
	"github.com/sgtransit/ingest/transform/ir"
)

func csvFixture() ir.LTAHeadlessCSV {
	return ir.LTAHeadlessCSV{
		ColumnOrder: []string{"ts", "station", "load"},
		RowCount:    4,
		Columns: map[string]ir.Column{
			"ts": {Name: "ts", Values: []any{
				"2026-07-31T00:00:10Z",
				"2026-07-31T00:02:00Z",
				"2026-07-31T00:06:00Z",
				"2026-07-31T00:06:30Z",
			}},
			"station": {Name: "station", Values: []any{"NS1", "NS1", "NS1", "NS2"}},
			"load":    {Name: "load", Values: []any{10.0, 20.0, 5.0, 7.0}},
		},
	}
}

func TestOptimizeBucketsByStationAndTime(t *testing.T) {
	opt, _ := New(nil)
	config := transform.StageConfig{
		"timestamp_column":  "ts",
		"station_column":    "station",
		"bucket_seconds":    float64(300),
		"aggregate_columns": []any{"load"},
	}
	out, err := opt.Optimize(csvFixture(), config)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	bucketed := out.(ir.LTATrainBucketed)
	if len(bucketed.Buckets) != 3 {
		t.Fatalf("expected 3 buckets (NS1@00:00, NS1@00:05, NS2@00:05), got %d", len(bucketed.Buckets))
	}
	var ns1 ir.Bucket
	for _, b := range bucketed.Buckets {
		if b.Station == "NS1" && b.BucketStartISO == "2026-07-31T00:00:00Z" {
			ns1 = b
		}
	}
	if ns1.Aggregates["count"] != 2 {
		t.Fatalf("expected 2 rows bucketed into NS1's first window, got %v", ns1.Aggregates["count"])
	}
	if ns1.Aggregates["load_sum"] != 30.0 {
		t.Fatalf("expected load_sum 30, got %v", ns1.Aggregates["load_sum"])
	}
}

func TestOptimizeRejectsWrongIRKind(t *testing.T) {
	opt, _ := New(nil)
	if _, err := opt.Optimize(ir.JSONPayload{}, transform.StageConfig{}); err == nil {
		t.Fatalf("expected unsupported-input error")
	}
}

func TestOptimizeRequiresTimestampAndStationColumns(t *testing.T) {
	opt, _ := New(nil)
	if _, err := opt.Optimize(csvFixture(), transform.StageConfig{}); err == nil {
		t.Fatalf("expected configuration error for missing required columns")
	}
}
