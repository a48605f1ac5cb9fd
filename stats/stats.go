// Package stats tracks counters and latencies for one ingest run:
// records fetched per source, cache hit/miss/corruption counts, HTTP
// retry counts, and transform stage latency. The exported name
// constants below follow a dotted naming convention ("*.n" counter,
// "*.ns" latency); the Prometheus collectors themselves are registered
// under "ingest_"-prefixed names, with stage latency in seconds. They
// are served through github.com/prometheus/client_golang -
// a per-process registry rather than a long-lived cluster daemon's
// StatsD/Tracker runner, which this one-shot pipeline doesn't have.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	RecordsFetchedCount = "records.fetched.n"
	RawCacheHitCount    = "cache.raw.hit.n"
	RawCacheMissCount   = "cache.raw.miss.n"
	RawCacheCorruptCount = "cache.raw.corrupt.n"
	PreCacheHitCount    = "cache.pre.hit.n"
	PreCacheMissCount   = "cache.pre.miss.n"
	SourceRetryCount    = "source.retry.n"
	TransformLatency    = "transform.stage.ns"
	JobFailureCount     = "job.failure.n"
)

// Stats is a small, explicitly-constructed set of Prometheus
// collectors for one process. It is not a package-level global: each
// CLI invocation owns one Stats bound to its own registry (shared by
// every job of that invocation's batch), so concurrent test runs never
// share counters by accident.
type Stats struct {
	registry *prometheus.Registry

	recordsFetched   *prometheus.CounterVec
	cacheHit         *prometheus.CounterVec
	cacheMiss        *prometheus.CounterVec
	cacheCorrupt     *prometheus.CounterVec
	sourceRetries    *prometheus.CounterVec
	transformLatency *prometheus.HistogramVec
	jobFailures      *prometheus.CounterVec
}

// New builds a Stats and registers its collectors into a fresh
// registry.
func New() *Stats {
	s := &Stats{
		registry: prometheus.NewRegistry(),
		recordsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_records_fetched_total",
			Help: "Records yielded by a data source, by source name.",
		}, []string{"source"}),
		cacheHit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_cache_hit_total",
			Help: "Cache hits, by cache tier (raw|preprocessed).",
		}, []string{"tier"}),
		cacheMiss: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_cache_miss_total",
			Help: "Cache misses, by cache tier (raw|preprocessed).",
		}, []string{"tier"}),
		cacheCorrupt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_cache_corrupt_total",
			Help: "Corrupted-cache detections, by cache tier (raw|preprocessed).",
		}, []string{"tier"}),
		sourceRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_source_retries_total",
			Help: "HTTP retry attempts issued by a source, by source name.",
		}, []string{"source"}),
		transformLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingest_transform_stage_duration_seconds",
			Help:    "Wall-clock duration of one transform stage invocation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		jobFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_job_failures_total",
			Help: "Jobs that transitioned to failed, by job name.",
		}, []string{"job"}),
	}
	s.registry.MustRegister(s.recordsFetched, s.cacheHit, s.cacheMiss, s.cacheCorrupt, s.sourceRetries, s.transformLatency, s.jobFailures)
	return s
}

// Registry exposes the underlying collector registry for an HTTP
// /metrics handler or a push-gateway client.
func (s *Stats) Registry() *prometheus.Registry { return s.registry }

func (s *Stats) RecordFetched(source string) { s.recordsFetched.WithLabelValues(source).Inc() }

func (s *Stats) CacheHit(tier string)     { s.cacheHit.WithLabelValues(tier).Inc() }
func (s *Stats) CacheMiss(tier string)    { s.cacheMiss.WithLabelValues(tier).Inc() }
func (s *Stats) CacheCorrupt(tier string) { s.cacheCorrupt.WithLabelValues(tier).Inc() }

func (s *Stats) SourceRetry(source string) { s.sourceRetries.WithLabelValues(source).Inc() }

// TransformStage times fn and records its duration under stage. It
// returns fn's error unchanged.
func (s *Stats) TransformStage(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	s.transformLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	return err
}

func (s *Stats) JobFailure(job string) { s.jobFailures.WithLabelValues(job).Inc() }
