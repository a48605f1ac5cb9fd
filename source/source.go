// Package source defines the DataSource contract. Shared
// HTTP engine machinery (retry/backoff, pagination, link-file
// extraction) lives in source/httpengine; concrete providers live in
// their own subpackages and register into wiring.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package source

import "github.com/sgtransit/ingest/cache"

// DataSource fetches raw records from a remote provider. Construction
// takes an opaque option map (via the registry factory); Validate is a
// self-check that must fail fast, before any I/O, on bad config. Fetch
// streams records by invoking emit for each one in order; it returns
// once the source is exhausted or on unrecoverable error.
type DataSource interface {
	Name() string
	Describe() map[string]string
	Validate() error
	Fetch(emit func(cache.RawCacheRecord) error) error
}
