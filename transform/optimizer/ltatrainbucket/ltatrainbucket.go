// Package ltatrainbucket rewrites an ir.LTAHeadlessCSV of raw train
// load readings into ir.LTATrainBucketed, aggregating rows into fixed-
// width time buckets per station. Registered as "lta_train_bucket".
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package ltatrainbucket

import (
	"fmt"
	"sort"
	"time"

	"github.com/sgtransit/ingest/cmn/xerrors"
	"github.com/sgtransit/ingest/plugin"
	"github.com/sgtransit/ingest/registry"
	"github.com/sgtransit/ingest/transform"
	"github.com/sgtransit/ingest/transform/ir"
	"github.com/sgtransit/ingest/wiring"
)

const Name = "lta_train_bucket"
const Version = "1.0.0"

const defaultBucketSeconds = 300

type Optimizer struct{}

func New(map[string]any) (transform.Optimizer, error) { return &Optimizer{}, nil }

var Factory registry.Factory[transform.Optimizer] = New

func (*Optimizer) Name() string    { return Name }
func (*Optimizer) Version() string { return Version }

type accumulator struct {
	station string
	bucket  int64
	count   int
	sums    map[string]float64
}

func (*Optimizer) Optimize(mod ir.Module, config transform.StageConfig) (ir.Module, error) {
	if err := transform.ValidateStageConfig(config); err != nil {
		return nil, err
	}
	csv, ok := mod.(ir.LTAHeadlessCSV)
	if !ok {
		return nil, xerrors.New(xerrors.KindUnsupportedInput, "lta_train_bucket: requires %s IR, got %s", ir.KindLTAHeadlessCSV, mod.Kind())
	}

	timestampCol, _ := config["timestamp_column"].(string)
	stationCol, _ := config["station_column"].(string)
	if timestampCol == "" || stationCol == "" {
		return nil, xerrors.Configurationf("lta_train_bucket: config.timestamp_column and config.station_column are required")
	}
	bucketSeconds := defaultBucketSeconds
	if raw, ok := config["bucket_seconds"]; ok {
		f, ok := raw.(float64)
		if !ok || f <= 0 {
			return nil, xerrors.Configurationf("lta_train_bucket: config.bucket_seconds must be a positive number")
		}
		bucketSeconds = int(f)
	}
	aggregateColumns, err := stringListFrom(config, "aggregate_columns")
	if err != nil {
		return nil, err
	}

	timestamps, ok := csv.Columns[timestampCol]
	if !ok {
		return nil, xerrors.New(xerrors.KindSchemaMismatch, "lta_train_bucket: unknown timestamp_column %q", timestampCol)
	}
	stations, ok := csv.Columns[stationCol]
	if !ok {
		return nil, xerrors.New(xerrors.KindSchemaMismatch, "lta_train_bucket: unknown station_column %q", stationCol)
	}

	order := make([]string, 0, csv.RowCount)
	byKey := make(map[string]*accumulator)

	for row := 0; row < csv.RowCount; row++ {
		ts, err := parseRowTimestamp(timestamps.Values[row])
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindParseError, err, "lta_train_bucket: row %d timestamp", row)
		}
		station := fmt.Sprintf("%v", stations.Values[row])
		bucketStart := ts.Unix() / int64(bucketSeconds) * int64(bucketSeconds)
		key := fmt.Sprintf("%d|%s", bucketStart, station)

		acc, ok := byKey[key]
		if !ok {
			acc = &accumulator{station: station, bucket: bucketStart, sums: make(map[string]float64, len(aggregateColumns))}
			byKey[key] = acc
			order = append(order, key)
		}
		acc.count++
		for _, col := range aggregateColumns {
			values, ok := csv.Columns[col]
			if !ok {
				return nil, xerrors.New(xerrors.KindSchemaMismatch, "lta_train_bucket: unknown aggregate column %q", col)
			}
			f, ok := values.Values[row].(float64)
			if !ok {
				return nil, xerrors.New(xerrors.KindSchemaMismatch, "lta_train_bucket: aggregate column %q row %d is not numeric", col, row)
			}
			acc.sums[col] += f
		}
	}

	sort.Strings(order)
	buckets := make([]ir.Bucket, 0, len(order))
	for _, key := range order {
		acc := byKey[key]
		aggregates := map[string]any{"count": acc.count}
		for _, col := range aggregateColumns {
			aggregates[col+"_sum"] = acc.sums[col]
			aggregates[col+"_avg"] = acc.sums[col] / float64(acc.count)
		}
		buckets = append(buckets, ir.Bucket{
			BucketStartISO: time.Unix(acc.bucket, 0).UTC().Format(time.RFC3339),
			Station:        acc.station,
			Aggregates:     aggregates,
		})
	}

	return ir.LTATrainBucketed{BucketSeconds: bucketSeconds, Buckets: buckets}, nil
}

func parseRowTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case float64:
		return time.Unix(int64(t), 0).UTC(), nil
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, err
		}
		return parsed.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp value %v", v)
	}
}

func stringListFrom(config transform.StageConfig, key string) ([]string, error) {
	raw, ok := config[key].([]any)
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok || s == "" {
			return nil, xerrors.Configurationf("lta_train_bucket: config.%s entries must be non-empty strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}

func init() {
	plugin.Provide("optimizer.lta_train_bucket", func() error {
		return wiring.RegisterOptimizer(Name, Factory, false)
	})
}
