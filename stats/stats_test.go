/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordFetchedIncrementsByLabel(t *testing.T) {
	s := New()
	s.RecordFetched("datamall")
	s.RecordFetched("datamall")
	s.RecordFetched("osm")
	if got := testutil.ToFloat64(s.recordsFetched.WithLabelValues("datamall")); got != 2 {
		t.Fatalf("expected 2, got %v", got)
	}
	if got := testutil.ToFloat64(s.recordsFetched.WithLabelValues("osm")); got != 1 {
		t.Fatalf("expected 1, got %v", got)
	}
}

func TestCacheCounters(t *testing.T) {
	s := New()
	s.CacheHit("raw")
	s.CacheMiss("raw")
	s.CacheCorrupt("preprocessed")
	if got := testutil.ToFloat64(s.cacheHit.WithLabelValues("raw")); got != 1 {
		t.Fatalf("expected cache hit count 1, got %v", got)
	}
	if got := testutil.ToFloat64(s.cacheCorrupt.WithLabelValues("preprocessed")); got != 1 {
		t.Fatalf("expected cache corrupt count 1, got %v", got)
	}
}

func TestTransformStagePropagatesErrorAndRecordsLatency(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	err := s.TransformStage("frontend", func() error { return boom })
	if err != boom {
		t.Fatalf("expected TransformStage to return the wrapped error, got %v", err)
	}
	if testutil.CollectAndCount(s.transformLatency) != 1 {
		t.Fatalf("expected one observation recorded even on error")
	}
}
