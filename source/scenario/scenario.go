// Package scenario implements the single-GET, single-record
// "scenario/realtime" DataSource mode: no pagination, no
// multi-stage download, just one request whose body becomes one
// RawCacheRecord. Registered as "scenario".
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package scenario

import (
	"strings"
	"time"

	"github.com/sgtransit/ingest/cache"
	"github.com/sgtransit/ingest/cmn/xerrors"
	"github.com/sgtransit/ingest/plugin"
	"github.com/sgtransit/ingest/registry"
	"github.com/sgtransit/ingest/source"
	"github.com/sgtransit/ingest/source/httpengine"
	"github.com/sgtransit/ingest/wiring"
)

const Name = "scenario"

type Source struct {
	path    string
	headers map[string]string
	engine  *httpengine.Engine
}

func New(config map[string]any) (source.DataSource, error) {
	endpoint, _ := config["endpoint"].(string)
	if strings.TrimSpace(endpoint) == "" {
		return nil, xerrors.Configurationf("scenario: config.endpoint is required")
	}
	path, _ := config["path"].(string)

	engine, err := httpengine.New(httpengine.Config{
		Endpoints:  []string{endpoint},
		MaxRetries: intOr(config["max_retries"], 3),
		Timeout:    30 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return &Source{path: path, headers: headersOf(config), engine: engine}, nil
}

var Factory registry.Factory[source.DataSource] = New

func (s *Source) Name() string { return Name }

func (s *Source) Describe() map[string]string {
	return map[string]string{"kind": Name, "path": s.path}
}

func (s *Source) Validate() error { return nil }

func (s *Source) Fetch(emit func(cache.RawCacheRecord) error) error {
	resp, err := s.engine.Do(httpengine.Request{Method: "GET", Path: s.path, Headers: s.headers})
	if err != nil {
		return err
	}
	contentType := resp.Headers["Content-Type"]
	return emit(cache.RawCacheRecord{
		Payload: resp.Body,
		Meta: cache.RawCacheMeta{
			SourceName:   Name,
			FetchedAtISO: time.Now().UTC().Format(time.RFC3339),
			ContentType:  contentType,
			Encoding:     httpengine.EncodingForContentType(contentType),
			Meta:         map[string]string{"mode": "realtime"},
		},
	})
}

func init() {
	plugin.Provide("source.scenario", func() error {
		return wiring.RegisterSource(Name, Factory, false)
	})
}

func intOr(v any, fallback int) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return fallback
	}
}

func headersOf(config map[string]any) map[string]string {
	m, ok := config["headers"].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
