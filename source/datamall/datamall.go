// Package datamall implements the two-stage link-file DataSource
// : a discovery GET returns a pre-signed download Link,
// which is then fetched and, if it is a zip archive, safely extracted.
// Registered as "datamall_linkfile". Directly grounded on
// Backend/ingest/sources/datamall_linkfile.py.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package datamall

import (
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/sgtransit/ingest/cache"
	"github.com/sgtransit/ingest/cmn/xerrors"
	"github.com/sgtransit/ingest/plugin"
	"github.com/sgtransit/ingest/registry"
	"github.com/sgtransit/ingest/source"
	"github.com/sgtransit/ingest/source/httpengine"
	"github.com/sgtransit/ingest/wiring"
)

const Name = "datamall_linkfile"

type Source struct {
	discoveryPath string
	accountKey    string
	maxBytes      int64
	emitPerFile   bool
	engine        *httpengine.Engine
}

func New(config map[string]any) (source.DataSource, error) {
	endpoint, _ := config["endpoint"].(string)
	if strings.TrimSpace(endpoint) == "" {
		return nil, xerrors.Configurationf("datamall_linkfile: config.endpoint is required")
	}
	discoveryPath, _ := config["discovery_path"].(string)
	if strings.TrimSpace(discoveryPath) == "" {
		return nil, xerrors.Configurationf("datamall_linkfile: config.discovery_path is required")
	}
	accountKey, _ := config["account_key"].(string)
	emitPerFile := true
	if v, ok := config["emit_per_file"].(bool); ok {
		emitPerFile = v
	}
	maxBytes := int64(intOr(config, "max_bytes", 0))

	engine, err := httpengine.New(httpengine.Config{
		Endpoints:   []string{endpoint},
		MaxRetries:  intOr(config, "max_retries", 3),
		BaseBackoff: durationOr(config, "base_backoff_ms", 500*time.Millisecond),
		MaxBackoff:  durationOr(config, "max_backoff_ms", 30*time.Second),
		MinInterval: durationOr(config, "min_interval_ms", 0),
		Timeout:     durationOr(config, "timeout_ms", 30*time.Second),
	})
	if err != nil {
		return nil, err
	}

	return &Source{
		discoveryPath: discoveryPath,
		accountKey:    accountKey,
		maxBytes:      maxBytes,
		emitPerFile:   emitPerFile,
		engine:        engine,
	}, nil
}

var Factory registry.Factory[source.DataSource] = New

func (s *Source) Name() string { return Name }

func (s *Source) Describe() map[string]string {
	return map[string]string{"kind": Name, "discovery_path": s.discoveryPath}
}

func (s *Source) Validate() error {
	if s.discoveryPath == "" {
		return xerrors.Configurationf("datamall_linkfile: discovery_path must be set")
	}
	return nil
}

func (s *Source) headers() map[string]string {
	if s.accountKey == "" {
		return nil
	}
	return map[string]string{"AccountKey": s.accountKey}
}

func (s *Source) Fetch(emit func(cache.RawCacheRecord) error) error {
	fetchedAt := time.Now().UTC().Format(time.RFC3339)

	discoveryResp, err := s.engine.Do(httpengine.Request{Method: "GET", Path: s.discoveryPath, Headers: s.headers()})
	if err != nil {
		return err
	}
	discoveryContentType := discoveryResp.Headers["Content-Type"]
	if err := emit(cache.RawCacheRecord{
		Payload: discoveryResp.Body,
		Meta: cache.RawCacheMeta{
			SourceName:   Name,
			FetchedAtISO: fetchedAt,
			ContentType:  discoveryContentType,
			Encoding:     httpengine.EncodingForContentType(discoveryContentType),
			Meta:         map[string]string{"stage": "discovery", "path": s.discoveryPath},
		},
	}); err != nil {
		return err
	}

	var discovery struct {
		Link string `json:"Link"`
	}
	if err := jsoniter.Unmarshal(discoveryResp.Body, &discovery); err != nil || discovery.Link == "" {
		return xerrors.New(xerrors.KindSourceTransport, "datamall_linkfile: discovery response has no Link field")
	}

	linkResp, err := s.engine.Do(httpengine.Request{Method: "GET", Path: discovery.Link})
	if err != nil {
		return err
	}

	if httpengine.IsZip(linkResp.Body) {
		files, err := httpengine.ExtractZip(linkResp.Body, s.maxBytes)
		if err != nil {
			return err
		}
		if s.emitPerFile {
			for _, f := range files {
				if err := emit(cache.RawCacheRecord{
					Payload: f.Content,
					Meta: cache.RawCacheMeta{
						SourceName:   Name,
						FetchedAtISO: fetchedAt,
						ContentType:  contentTypeForName(f.Name),
						Encoding:     httpengine.EncodingForContentType(contentTypeForName(f.Name)),
						Meta:         map[string]string{"stage": "download", "link_masked": maskLink(discovery.Link), "zip_entry": f.Name},
					},
				}); err != nil {
					return err
				}
			}
			return nil
		}
		// emit the archive as a single record
		return emit(cache.RawCacheRecord{
			Payload: linkResp.Body,
			Meta: cache.RawCacheMeta{
				SourceName:   Name,
				FetchedAtISO: fetchedAt,
				ContentType:  "application/zip",
				Encoding:     cache.BinaryEncoding,
				Meta:         map[string]string{"stage": "download", "link_masked": maskLink(discovery.Link)},
			},
		})
	}

	contentType := linkResp.Headers["Content-Type"]
	return emit(cache.RawCacheRecord{
		Payload: linkResp.Body,
		Meta: cache.RawCacheMeta{
			SourceName:   Name,
			FetchedAtISO: fetchedAt,
			ContentType:  contentType,
			Encoding:     httpengine.EncodingForContentType(contentType),
			Meta:         map[string]string{"stage": "download", "link_masked": maskLink(discovery.Link)},
		},
	})
}

// maskLink retains only a head/tail slice of a pre-signed URL in
// provenance, mirroring _mask_url in the original source.
func maskLink(link string) string {
	const head, tail = 32, 16
	if len(link) <= head+tail {
		return link
	}
	return link[:head] + "..." + link[len(link)-tail:]
}

func contentTypeForName(name string) string {
	switch {
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	case strings.HasSuffix(name, ".csv"):
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

func init() {
	plugin.Provide("source.datamall_linkfile", func() error {
		return wiring.RegisterSource(Name, Factory, false)
	})
}

func intOr(config map[string]any, key string, fallback int) int {
	switch t := config[key].(type) {
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

func durationOr(config map[string]any, key string, fallback time.Duration) time.Duration {
	ms := intOr(config, key, -1)
	if ms < 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
