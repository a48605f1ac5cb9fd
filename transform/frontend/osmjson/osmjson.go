// Package osmjson parses an Overpass-style JSON response (elements:
// [...]) into a GeoJSON FeatureCollection IR, registered as
// "osm_json". Node elements become Point features; way elements with
// resolved geometry become LineString features, and way elements
// without geometry are dropped; elements of any other type are kept
// as a generic feature with its raw element under properties.raw.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package osmjson

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/sgtransit/ingest/cmn/xerrors"
	"github.com/sgtransit/ingest/plugin"
	"github.com/sgtransit/ingest/registry"
	"github.com/sgtransit/ingest/transform"
	"github.com/sgtransit/ingest/transform/ir"
	"github.com/sgtransit/ingest/wiring"
)

const Name = "osm_json"
const Version = "1"

type Frontend struct{}

func New(map[string]any) (transform.FrontendCompiler, error) { return &Frontend{}, nil }

var Factory registry.Factory[transform.FrontendCompiler] = New

func (*Frontend) Name() string    { return Name }
func (*Frontend) Version() string { return Version }

type overpassElement struct {
	Type string  `json:"type"`
	ID   int64   `json:"id"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Geom []struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"geometry"`
	Tags map[string]string `json:"tags"`
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

func (*Frontend) Compile(record transform.RawRecord, config transform.StageConfig) (ir.Module, error) {
	if err := transform.ValidateStageConfig(config); err != nil {
		return nil, err
	}
	var resp overpassResponse
	if err := jsoniter.Unmarshal(record.Payload, &resp); err != nil {
		return nil, xerrors.Wrap(xerrors.KindParseError, err, "osm_json: payload is not a valid Overpass JSON response")
	}

	features := make([]any, 0, len(resp.Elements))
	for _, el := range resp.Elements {
		switch el.Type {
		case "node":
			features = append(features, map[string]any{
				"type":       "Feature",
				"geometry":   map[string]any{"type": "Point", "coordinates": []float64{el.Lon, el.Lat}},
				"properties": tagsOrEmpty(el.Tags, el.ID),
			})
		case "way":
			if len(el.Geom) == 0 {
				continue
			}
			coords := make([][2]float64, 0, len(el.Geom))
			for _, pt := range el.Geom {
				coords = append(coords, [2]float64{pt.Lon, pt.Lat})
			}
			features = append(features, map[string]any{
				"type":       "Feature",
				"geometry":   map[string]any{"type": "LineString", "coordinates": coords},
				"properties": tagsOrEmpty(el.Tags, el.ID),
			})
		default:
			features = append(features, map[string]any{
				"type":       "Feature",
				"geometry":   nil,
				"properties": map[string]any{"raw": el, "id": el.ID},
			})
		}
	}

	return ir.GeoJSON{Type: "FeatureCollection", Features: features}, nil
}

func tagsOrEmpty(tags map[string]string, id int64) map[string]any {
	out := map[string]any{"osm_id": id}
	for k, v := range tags {
		out[k] = v
	}
	return out
}

func init() {
	plugin.Provide("frontend.osm_json", func() error {
		return wiring.RegisterFrontend(Name, Factory, false)
	})
}
