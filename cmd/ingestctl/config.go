package main

import (
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/sgtransit/ingest/cmn/xerrors"
	"github.com/sgtransit/ingest/job"
)

// loadConfig reads and JSON-decodes a job config file, then runs its
// shape validation. A ".json" suffix is added to name if missing; then,
// if configsRoot is non-empty and name is relative, configsRoot is
// joined with it to resolve the path (matching the documented
// configs_root convention); otherwise name is used as the path.
func loadConfig(configsRoot, name string) (job.Config, error) {
	path := name
	if filepath.Ext(path) != ".json" {
		path += ".json"
	}
	if configsRoot != "" && !filepath.IsAbs(path) {
		path = filepath.Join(configsRoot, path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return job.Config{}, xerrors.Configurationf("failed to read config %q: %v", path, err)
	}
	var cfg job.Config
	if err := jsoniter.Unmarshal(raw, &cfg); err != nil {
		return job.Config{}, xerrors.Configurationf("config %q is not valid JSON: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return job.Config{}, err
	}
	return cfg, nil
}

// selectJobs filters cfg.Jobs down to the names in only, preserving
// cfg's order. An empty only selects every job.
func selectJobs(cfg job.Config, only []string) ([]job.Spec, error) {
	if len(only) == 0 {
		return cfg.Jobs, nil
	}
	wanted := make(map[string]bool, len(only))
	for _, n := range only {
		wanted[n] = true
	}
	var out []job.Spec
	for _, j := range cfg.Jobs {
		if wanted[j.Name] {
			out = append(out, j)
			delete(wanted, j.Name)
		}
	}
	for missing := range wanted {
		return nil, xerrors.Configurationf("--job %q does not match any job in config", missing)
	}
	return out, nil
}
