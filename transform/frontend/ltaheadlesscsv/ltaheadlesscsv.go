// Package ltaheadlesscsv parses a headless (no header row) CSV raw
// record into ir.LTAHeadlessCSV, registered as "lta_headless_csv". The
// column names and their order must be supplied via config, since the
// file itself carries none - the defining trait of LTA's "headless"
// CSV exports.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package ltaheadlesscsv

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/sgtransit/ingest/cmn/xerrors"
	"github.com/sgtransit/ingest/plugin"
	"github.com/sgtransit/ingest/registry"
	"github.com/sgtransit/ingest/transform"
	"github.com/sgtransit/ingest/transform/ir"
	"github.com/sgtransit/ingest/wiring"
)

const Name = "lta_headless_csv"
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
	columnNames, err := columnNamesFrom(config)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(record.Payload))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindParseError, err, "lta_headless_csv: malformed CSV payload")
	}

	columns := make(map[string]ir.Column, len(columnNames))
	for _, name := range columnNames {
		columns[name] = ir.Column{Name: name, Values: make([]any, 0, len(rows))}
	}

	for rowNum, row := range rows {
		if len(row) != len(columnNames) {
			return nil, xerrors.New(xerrors.KindSchemaMismatch, "lta_headless_csv: row %d has %d fields, expected %d", rowNum, len(row), len(columnNames))
		}
		for i, name := range columnNames {
			col := columns[name]
			col.Values = append(col.Values, parseCell(row[i]))
			columns[name] = col
		}
	}

	return ir.LTAHeadlessCSV{ColumnOrder: columnNames, Columns: columns, RowCount: len(rows)}, nil
}

func parseCell(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func columnNamesFrom(config transform.StageConfig) ([]string, error) {
	raw, ok := config["columns"].([]any)
	if !ok || len(raw) == 0 {
		return nil, xerrors.Configurationf("lta_headless_csv: config.columns must be a non-empty list of column names")
	}
	names := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok || s == "" {
			return nil, xerrors.Configurationf("lta_headless_csv: config.columns entries must be non-empty strings")
		}
		names = append(names, s)
	}
	return names, nil
}

func init() {
	plugin.Provide("frontend.lta_headless_csv", func() error {
		return wiring.RegisterFrontend(Name, Factory, false)
	})
}
