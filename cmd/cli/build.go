package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/avolpe/scanflow/internal/artifacts"
	"github.com/avolpe/scanflow/internal/config"
	"github.com/avolpe/scanflow/internal/discovery"
	"github.com/avolpe/scanflow/internal/dispatch"
	"github.com/avolpe/scanflow/internal/pipeline"
	"github.com/avolpe/scanflow/internal/store"
	"github.com/avolpe/scanflow/internal/targets"
)

// buildProbe selects the liveness probe from config.
func buildProbe(cfg *config.Config) (discovery.LivenessProbe, error) {
	switch cfg.Discovery.Method {
	case "nmap":
		return &discovery.NmapProbe{}, nil
	case "tcp":
		return &discovery.TCPProbe{}, nil
	case "snmp":
		return &discovery.SNMPProbe{Community: cfg.Discovery.SNMPCommunity}, nil
	default:
		return nil, fmt.Errorf("unknown discovery method %q", cfg.Discovery.Method)
	}
}

// buildLauncher selects the worker launcher from config.
func buildLauncher(cfg *config.Config) (dispatch.WorkerLauncher, error) {
	switch cfg.Scan.Mode {
	case "docker":
		return &dispatch.DockerLauncher{Image: cfg.Scan.DockerImage}, nil
	case "exec":
		if len(cfg.Scan.ExecCommand) == 0 {
			return nil, fmt.Errorf("exec mode requires a command")
		}
		return &dispatch.ExecLauncher{
			Command: cfg.Scan.ExecCommand[0],
			Args:    cfg.Scan.ExecCommand[1:],
		}, nil
	default:
		return nil, fmt.Errorf("unknown scan mode %q", cfg.Scan.Mode)
	}
}

// buildPipeline assembles the full pipeline from config. The returned
// cleanup closes the database connection if one was opened.
func buildPipeline(ctx context.Context, cfg *config.Config) (*pipeline.Pipeline, func(), error) {
	artifactStore, err := artifacts.NewStore(cfg.Artifacts.Dir)
	if err != nil {
		return nil, nil, err
	}

	probe, err := buildProbe(cfg)
	if err != nil {
		return nil, nil, err
	}
	engine := discovery.NewEngine(probe)
	engine.SetConcurrency(cfg.Discovery.Concurrency)
	engine.SetTimeout(cfg.Discovery.ProbeTimeout)

	launcher, err := buildLauncher(cfg)
	if err != nil {
		return nil, nil, err
	}
	dispatcher, err := dispatch.New(artifactStore, launcher, cfg.Scan.MaxConcurrent)
	if err != nil {
		return nil, nil, err
	}

	p, err := pipeline.New(artifactStore, engine, dispatcher)
	if err != nil {
		return nil, nil, err
	}
	p.SetClearFirst(cfg.Artifacts.ClearOnStart)

	if cfg.Discovery.ResolveHostnames {
		server := cfg.Discovery.DNSServer
		if server == "" {
			server = "127.0.0.1:53"
		}
		p.SetHostnameResolver(discovery.NewHostnameResolver(server))
	}

	cleanup := func() {}
	if cfg.Database.Enabled {
		runs, err := store.Connect(ctx, &cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := runs.Migrate(ctx); err != nil {
			_ = runs.Close()
			return nil, nil, err
		}
		p.SetRunStore(runs)
		cleanup = func() { _ = runs.Close() }
	}

	return p, cleanup, nil
}

// gatherTargets merges positional targets and target-list files into one
// raw input slice for resolution.
func gatherTargets(direct []string, files []string) ([]string, error) {
	inputs := append([]string{}, direct...)

	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open target file %s: %w", path, err)
		}
		entries, err := targets.ReadList(f)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, entries...)
	}

	return inputs, nil
}
