/*
 * Copyright 2025 Fleetmon Systems, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// probeadm reconciles the fleet's monitoring configuration: it renders probe
// templates against the deployment topology and converges the remote API on
// the result.
//
// Usage:
//
//	probeadm plan        stage and print the update plan, touch nothing
//	probeadm apply       push the plan and confirm convergence
//	probeadm verify      report drift, exit nonzero when out of sync
//	probeadm unconfigure tear down managed probes, keep operator ones
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fleetmon/probeadm/pkg/amon"
	"github.com/fleetmon/probeadm/pkg/config"
	"github.com/fleetmon/probeadm/pkg/diff"
	"github.com/fleetmon/probeadm/pkg/logger"
	"github.com/fleetmon/probeadm/pkg/natsutil"
	"github.com/fleetmon/probeadm/pkg/reconcile"
	"github.com/fleetmon/probeadm/pkg/registry"
)

const defaultConfigPath = "/etc/probeadm/probeadm.json"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	command := os.Args[1]

	switch command {
	case "plan", "apply", "verify", "unconfigure":
	case "-h", "--help", "help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		usage()
		os.Exit(2)
	}

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to config file")

	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}

	ctx := context.Background()
	cfgLoader := config.NewConfig()

	var cfg reconcile.Config

	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logCfg := cfg.Logging
	if logCfg == nil {
		logCfg = logger.DefaultConfig()
	}

	zlog, err := logger.New(logCfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	os.Exit(run(ctx, command, &cfg, zlog))
}

func run(ctx context.Context, command string, cfg *reconcile.Config, zlog logger.Logger) int {
	reg := registry.New(registry.Options{Services: cfg.Services})
	if err := reg.LoadDir(cfg.TemplateDir); err != nil {
		zlog.Error().Err(err).Str("dir", cfg.TemplateDir).Msg("Failed to load probe templates")
		return 1
	}

	client, err := amon.NewClient(cfg.Amon, zlog)
	if err != nil {
		zlog.Error().Err(err).Msg("Failed to create API client")
		return 1
	}

	var sink reconcile.EventSink

	if cfg.NATS != nil && cfg.NATS.URL != "" {
		publisher, nc, err := natsutil.Connect(ctx, cfg.NATS)
		if err != nil {
			zlog.Error().Err(err).Msg("Failed to connect to NATS")
			return 1
		}

		defer nc.Close()

		sink = publisher
	}

	svc, err := reconcile.New(reconcile.Params{
		Registry:    reg,
		Client:      client,
		Topology:    &reconcile.FileTopologyProvider{Path: cfg.TopologyPath},
		Events:      sink,
		Account:     cfg.Account,
		Contacts:    cfg.Contacts,
		Concurrency: cfg.Concurrency,
		Logger:      zlog,
	})
	if err != nil {
		zlog.Error().Err(err).Msg("Failed to create reconcile service")
		return 1
	}

	switch command {
	case "plan":
		return runPlan(ctx, svc, reg, zlog)
	case "verify":
		return runVerify(ctx, svc, reg, zlog)
	case "apply":
		return runApply(ctx, reg, zlog, svc.Apply)
	case "unconfigure":
		return runApply(ctx, reg, zlog, svc.Unconfigure)
	}

	return 2
}

func runPlan(ctx context.Context, svc *reconcile.Service, reg *registry.Registry, zlog logger.Logger) int {
	plan, err := svc.Plan(ctx)
	if err != nil {
		zlog.Error().Err(err).Msg("Plan failed")
		return 1
	}

	if err := diff.WriteSummary(os.Stdout, plan, reg); err != nil {
		zlog.Error().Err(err).Msg("Failed to write plan summary")
		return 1
	}

	return 0
}

func runVerify(ctx context.Context, svc *reconcile.Service, reg *registry.Registry, zlog logger.Logger) int {
	plan, err := svc.Verify(ctx)
	if err != nil {
		zlog.Error().Err(err).Msg("Verify failed")
		return 1
	}

	if err := diff.WriteSummary(os.Stdout, plan, reg); err != nil {
		zlog.Error().Err(err).Msg("Failed to write plan summary")
		return 1
	}

	if plan.NeedsChanges() {
		return 1
	}

	return 0
}

func runApply(
	ctx context.Context,
	reg *registry.Registry,
	zlog logger.Logger,
	apply func(context.Context) (*reconcile.Outcome, error),
) int {
	outcome, err := apply(ctx)
	if err != nil {
		zlog.Error().Err(err).Msg("Apply failed")
		return 1
	}

	if err := diff.WriteSummary(os.Stdout, outcome.Plan, reg); err != nil {
		zlog.Error().Err(err).Msg("Failed to write plan summary")
		return 1
	}

	if !outcome.Converged {
		zlog.Warn().Msg("Fleet did not converge, re-run to retry the remainder")
		return 1
	}

	return 0
}

func usage() {
	fmt.Fprintf(os.Stderr, `probeadm - fleet monitoring configuration reconciler

Usage:
  probeadm <command> [-config %s]

Commands:
  plan         Stage and print the update plan without applying it
  apply        Apply the plan and confirm convergence
  verify       Report drift; exits nonzero when out of sync
  unconfigure  Remove managed probe groups, preserving operator-created ones
`, defaultConfigPath)
}
