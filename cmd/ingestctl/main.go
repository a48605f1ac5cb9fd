// Command ingestctl runs ingest job configs: it loads plugins declared
// by a config, instantiates sources/caches/transform stages purely by
// name via the wiring registries, and drives each job's Task lifecycle.
// This binary is the one place in the module allowed to know about
// every concrete implementation package (see plugins.go); everything
// else resolves implementations through wiring.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/urfave/cli"

	"github.com/sgtransit/ingest/job"
	"github.com/sgtransit/ingest/plugin"
	"github.com/sgtransit/ingest/stats"
	"github.com/sgtransit/ingest/wiring"
)

func main() {
	app := cli.NewApp()
	app.Name = "ingestctl"
	app.Usage = "run, preflight-check, and introspect ingest pipeline configs"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "configs-root", Usage: "base directory job config names are resolved against"},
	}
	app.Commands = []cli.Command{
		runCommand,
		doctorCommand,
		listCommand,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var runCommand = cli.Command{
	Name:      "run",
	Usage:     "run every job in a config (or a selected subset)",
	ArgsUsage: "<config>",
	Flags: []cli.Flag{
		cli.StringSliceFlag{Name: "job", Usage: "run only this job name (repeatable)"},
		cli.BoolFlag{Name: "fail-fast", Usage: "stop the batch at the first job failure"},
		cli.BoolFlag{Name: "no-fail-fast", Usage: "run every job regardless of earlier failures"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.NewExitError("run requires exactly one <config> argument", 2)
		}
		cfg, err := loadConfig(c.GlobalString("configs-root"), c.Args().Get(0))
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		if err := plugin.Load(cfg.Plugins); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		specs, err := selectJobs(cfg, c.StringSlice("job"))
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		failFast := cfg.Execution.FailFast
		if c.Bool("fail-fast") {
			failFast = true
		}
		if c.Bool("no-fail-fast") {
			failFast = false
		}
		exec := cfg.Execution
		exec.FailFast = failFast

		st := stats.New()
		tasks := make([]*job.Task, 0, len(specs))
		for _, spec := range specs {
			tasks = append(tasks, job.NewTask(spec, cfg.CacheConfigs, cfg.TransformConfigs, st))
		}

		outcomes := job.RunBatch(tasks, exec)
		failures := 0
		for _, o := range outcomes {
			if o.State == job.StateFailed {
				failures++
				glog.Errorf("job %q failed: %+v", o.Name, o.Err)
			} else {
				glog.Infof("job %q %s, %d artifact(s)", o.Name, o.State, len(o.Artifacts))
			}
		}
		if failures > 0 {
			return cli.NewExitError(fmt.Sprintf("%d of %d job(s) failed", failures, len(outcomes)), 1)
		}
		return nil
	},
}

var doctorCommand = cli.Command{
	Name:      "doctor",
	Usage:     "preflight-check a config without running any job",
	ArgsUsage: "<config>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.NewExitError("doctor requires exactly one <config> argument", 2)
		}
		cfg, err := loadConfig(c.GlobalString("configs-root"), c.Args().Get(0))
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		if err := plugin.Load(cfg.Plugins); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		for _, spec := range cfg.Jobs {
			src, err := wiring.Sources.New(spec.Source.Name, spec.Source.Config)
			if err != nil {
				return cli.NewExitError(fmt.Sprintf("job %q: %v", spec.Name, err), 1)
			}
			if err := src.Validate(); err != nil {
				return cli.NewExitError(fmt.Sprintf("job %q: %v", spec.Name, err), 1)
			}
			if _, err := wiring.Frontends.New(spec.Transform.Frontend.Name, spec.Transform.Frontend.Config); err != nil {
				return cli.NewExitError(fmt.Sprintf("job %q: %v", spec.Name, err), 1)
			}
			if _, err := wiring.Optimizers.New(spec.Transform.Optimizer.Name, spec.Transform.Optimizer.Config); err != nil {
				return cli.NewExitError(fmt.Sprintf("job %q: %v", spec.Name, err), 1)
			}
			if _, err := wiring.Backends.New(spec.Transform.Backend.Name, spec.Transform.Backend.Config); err != nil {
				return cli.NewExitError(fmt.Sprintf("job %q: %v", spec.Name, err), 1)
			}
			fmt.Printf("ok: %s (source=%v)\n", spec.Name, src.Describe())
		}
		return nil
	},
}

var listCommand = cli.Command{
	Name:  "list",
	Usage: "load every linked-in plugin and dump the resulting registry contents",
	Action: func(c *cli.Context) error {
		known := plugin.Known()
		if err := plugin.Load(known); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		fmt.Println("linked plugins:")
		for _, name := range known {
			fmt.Printf("  %s\n", name)
		}
		fmt.Println("registered:")
		for namespace, names := range wiring.Dump() {
			fmt.Printf("  %s: %v\n", namespace, names)
		}
		return nil
	},
}
