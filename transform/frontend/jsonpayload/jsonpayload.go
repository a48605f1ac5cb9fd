// Package jsonpayload is the generic pass-through frontend (registered
// as "json_payload"): it parses an already-structured JSON raw record
// into ir.JSONPayload without any domain-specific reshaping. Grounded
// on Backend/ingest/transform/front/json_payload.py.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package jsonpayload

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/sgtransit/ingest/cmn/xerrors"
	"github.com/sgtransit/ingest/plugin"
	"github.com/sgtransit/ingest/registry"
	"github.com/sgtransit/ingest/transform"
	"github.com/sgtransit/ingest/transform/ir"
	"github.com/sgtransit/ingest/wiring"
)

const Name = "json_payload"
const Version = "1"

type Frontend struct{}

func New(map[string]any) (transform.FrontendCompiler, error) { return &Frontend{}, nil }

var Factory registry.Factory[transform.FrontendCompiler] = New

func (*Frontend) Name() string    { return Name }
func (*Frontend) Version() string { return Version }

func (*Frontend) Compile(record transform.RawRecord, config transform.StageConfig) (ir.Module, error) {
	if err := transform.ValidateStageConfig(config); err != nil {
		return nil, err
	}
	var doc any
	if len(record.Payload) > 0 {
		if err := jsoniter.Unmarshal(record.Payload, &doc); err != nil {
			return nil, xerrors.Wrap(xerrors.KindParseError, err, "json_payload: payload is not valid JSON")
		}
	}
	return ir.JSONPayload{Document: doc}, nil
}

func init() {
	plugin.Provide("frontend.json_payload", func() error {
		return wiring.RegisterFrontend(Name, Factory, false)
	})
}
