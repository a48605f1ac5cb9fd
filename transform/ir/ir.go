// Package ir defines the in-flight intermediate representation passed
// between transform stages. It models
// it as an opaque JSON mapping with a conventional "ir_kind"
// discriminator; this package reifies that discriminator as a Go sum
// type so frontends, optimizers, and backends exchange a typed value
// instead of an untyped map, while still being able to round-trip to
// the same JSON-compatible shape for diagnostics and the rare case a
// stage wants to inspect a kind it does not itself own.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package ir

// Module is any of the concrete IR variants. Kind returns the
// conventional top-level discriminator; Fields returns a JSON-scalar
// map view used when a stage needs to inspect an IR it doesn't own, or
// when diagnostics serialize it verbatim.
type Module interface {
	Kind() string
	Fields() map[string]any
}

const (
	KindJSONPayload      = "json_payload"
	KindGeoJSON          = "geojson"
	KindLTAHeadlessCSV   = "lta_headless_csv"
	KindLTATrainBucketed = "lta_train_bucketed"
)

// JSONPayload wraps an arbitrary JSON-compatible document, the IR a
// generic pass-through frontend produces for already-structured input.
type JSONPayload struct {
	Document any
}

func (JSONPayload) Kind() string { return KindJSONPayload }

func (p JSONPayload) Fields() map[string]any {
	return map[string]any{"ir_kind": KindJSONPayload, "document": p.Document}
}

// GeoJSON wraps a FeatureCollection-shaped document produced by the OSM
// frontend.
type GeoJSON struct {
	Type     string `json:"type"`
	Features []any  `json:"features"`
}

func (GeoJSON) Kind() string { return KindGeoJSON }

func (g GeoJSON) Fields() map[string]any {
	return map[string]any{"ir_kind": KindGeoJSON, "type": g.Type, "features": g.Features}
}

// Column is one named, typed column of a headless (no header row) CSV
// frontier-table source; Values holds that column's cells in row order.
type Column struct {
	Name   string `json:"name"`
	Values []any  `json:"values"`
}

// LTAHeadlessCSV is the IR produced by the headless-CSV frontend: a set
// of named columns of equal length, plus the column order the source
// file used (since the CSV itself carries no header).
type LTAHeadlessCSV struct {
	ColumnOrder []string
	Columns     map[string]Column
	RowCount    int
}

func (LTAHeadlessCSV) Kind() string { return KindLTAHeadlessCSV }

func (c LTAHeadlessCSV) Fields() map[string]any {
	return map[string]any{
		"ir_kind":      KindLTAHeadlessCSV,
		"column_order": c.ColumnOrder,
		"row_count":    c.RowCount,
		"columns":      c.Columns,
	}
}

// Bucket is one time-bucketed aggregate produced by the train-load
// optimizer.
type Bucket struct {
	BucketStartISO string         `json:"bucket_start_iso"`
	Station        string         `json:"station"`
	Aggregates     map[string]any `json:"aggregates"`
}

// LTATrainBucketed is the IR the train-load optimizer rewrites
// LTAHeadlessCSV into: per-station, per-time-bucket aggregates, ready
// for the js_constants backend to shard and emit.
type LTATrainBucketed struct {
	BucketSeconds int
	Buckets       []Bucket
}

func (LTATrainBucketed) Kind() string { return KindLTATrainBucketed }

func (b LTATrainBucketed) Fields() map[string]any {
	return map[string]any{
		"ir_kind":        KindLTATrainBucketed,
		"bucket_seconds": b.BucketSeconds,
		"bucket_count":   len(b.Buckets),
		"buckets":        b.Buckets,
	}
}
