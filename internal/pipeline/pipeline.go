// Package pipeline drives one orchestration run end to end: resolve the
// target spec, probe for live hosts, dispatch scan workers, parse the
// artifacts they leave behind, and aggregate everything into a single
// report. Each phase completes before the next begins.
package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/avolpe/scanflow/internal/artifacts"
	"github.com/avolpe/scanflow/internal/discovery"
	"github.com/avolpe/scanflow/internal/dispatch"
	"github.com/avolpe/scanflow/internal/errors"
	"github.com/avolpe/scanflow/internal/logging"
	"github.com/avolpe/scanflow/internal/metrics"
	"github.com/avolpe/scanflow/internal/report"
	"github.com/avolpe/scanflow/internal/results"
	"github.com/avolpe/scanflow/internal/store"
	"github.com/avolpe/scanflow/internal/targets"
)

// Pipeline wires the scan phases together for repeated runs.
type Pipeline struct {
	artifacts  *artifacts.Store
	discovery  *discovery.Engine
	dispatcher *dispatch.Dispatcher

	// Optional collaborators.
	resolver *discovery.HostnameResolver
	runs     *store.Store

	clearFirst bool
	metrics    *metrics.Metrics
	logger     *logging.Logger
}

// New creates a pipeline over the three mandatory phases.
func New(artifactStore *artifacts.Store, engine *discovery.Engine, dispatcher *dispatch.Dispatcher) (*Pipeline, error) {
	if artifactStore == nil || engine == nil || dispatcher == nil {
		return nil, errors.New(errors.CodeConfiguration,
			"pipeline requires an artifact store, a discovery engine, and a dispatcher")
	}
	return &Pipeline{
		artifacts:  artifactStore,
		discovery:  engine,
		dispatcher: dispatcher,
		clearFirst: true,
		metrics:    metrics.Default(),
		logger:     logging.Default().WithComponent("pipeline"),
	}, nil
}

// SetHostnameResolver enables best-effort PTR enrichment of report rows.
func (p *Pipeline) SetHostnameResolver(r *discovery.HostnameResolver) {
	p.resolver = r
}

// SetRunStore enables persistence of finished runs.
func (p *Pipeline) SetRunStore(s *store.Store) {
	p.runs = s
}

// SetClearFirst controls whether stale artifacts are removed before a run.
func (p *Pipeline) SetClearFirst(clear bool) {
	p.clearFirst = clear
}

// SetMetrics replaces the metrics sink, mainly for tests.
func (p *Pipeline) SetMetrics(m *metrics.Metrics) {
	p.metrics = m
}

// Dispatcher exposes the dispatch phase, for status reporting.
func (p *Pipeline) Dispatcher() *dispatch.Dispatcher {
	return p.dispatcher
}

// RunStore returns the persistence store, or nil when disabled.
func (p *Pipeline) RunStore() *store.Store {
	return p.runs
}

// Execute performs one full run over the raw target inputs and returns the
// aggregated report. Per-host failures are absorbed into failed-scan rows;
// only batch-fatal conditions (bad target spec, unwritable report) surface
// as errors.
func (p *Pipeline) Execute(ctx context.Context, inputs []string) (*report.Report, error) {
	start := time.Now()

	candidates, err := targets.Resolve(inputs)
	if err != nil {
		p.metrics.RecordRun("failed", time.Since(start))
		return nil, err
	}
	if len(candidates) == 0 {
		p.metrics.RecordRun("failed", time.Since(start))
		return nil, errors.New(errors.CodeTargetInvalid, "no scan targets resolved from input")
	}

	p.logger.Info("Run starting", "candidates", len(candidates))

	if p.clearFirst {
		if err := p.artifacts.Clear(); err != nil {
			p.metrics.RecordRun("failed", time.Since(start))
			return nil, err
		}
	}

	active := p.discovery.FilterActive(ctx, candidates)
	if len(active) == 0 {
		p.logger.Info("No active hosts found, emitting empty report")
		r := report.Aggregate(active, nil, nil)
		p.metrics.RecordRun("completed", time.Since(start))
		return r, nil
	}

	jobs, err := p.dispatcher.Run(ctx, active)
	if err != nil {
		p.metrics.RecordRun("failed", time.Since(start))
		return nil, err
	}

	summaries, findings := p.collect(jobs)

	if p.resolver != nil {
		p.enrichHostnames(ctx, summaries)
	}

	r := report.Aggregate(active, summaries, findings)

	if p.runs != nil {
		if err := p.runs.SaveRun(ctx, r); err != nil {
			// Persistence is an add-on; the report itself is the
			// product of the run.
			p.logger.Error("Failed to persist run", "error", err, "run_id", r.RunID)
		}
	}

	p.logger.Info("Run finished",
		"run_id", r.RunID,
		"hosts", len(r.Hosts),
		"vulnerable", r.VulnerableHosts(),
		"failed", r.FailedHosts(),
		"duration", time.Since(start))
	p.metrics.RecordRun("completed", time.Since(start))
	return r, nil
}

// collect turns terminal jobs into per-host summaries and findings. A job
// whose artifact is missing or malformed gets an explicit failed-scan row,
// never a silent drop.
func (p *Pipeline) collect(jobs []*dispatch.ScanJob) ([]results.HostSummary, []results.Finding) {
	var summaries []results.HostSummary
	var findings []results.Finding

	for _, job := range jobs {
		if job.State != dispatch.StateCompleted {
			summaries = append(summaries, results.FailedSummary(job.Target, job.FailureReason))
			continue
		}

		artifact, err := p.artifacts.Locate(job.Target)
		if err != nil {
			summaries = append(summaries, results.FailedSummary(job.Target, err.Error()))
			continue
		}

		summary, hostFindings, err := results.Parse(artifact)
		if err != nil {
			p.logger.ErrorScan("Artifact unparsable", job.Target, err)
			summaries = append(summaries, results.HostSummary{
				Host:          job.Target,
				Outcome:       results.OutcomeUnparsable,
				FailureReason: err.Error(),
			})
			continue
		}

		summaries = append(summaries, summary)
		findings = append(findings, hostFindings...)
	}

	return summaries, findings
}

func (p *Pipeline) enrichHostnames(ctx context.Context, summaries []results.HostSummary) {
	addrs := make([]string, 0, len(summaries))
	for i := range summaries {
		if summaries[i].Hostname == "" {
			addrs = append(addrs, summaries[i].Host)
		}
	}
	names := p.resolver.ResolveAll(ctx, addrs)
	for i := range summaries {
		if summaries[i].Hostname == "" {
			summaries[i].Hostname = names[summaries[i].Host]
		}
	}
}

// ExecuteAndFlush runs the pipeline and writes the report to w.
func (p *Pipeline) ExecuteAndFlush(ctx context.Context, inputs []string, w io.Writer, format report.Format) (*report.Report, error) {
	r, err := p.Execute(ctx, inputs)
	if err != nil {
		return nil, err
	}
	if err := report.Flush(r, w, format); err != nil {
		return nil, err
	}
	return r, nil
}

// Reaggregate rebuilds a report purely from the artifacts already on disk,
// without probing or dispatching. Hosts are ordered by artifact listing.
func (p *Pipeline) Reaggregate(ctx context.Context) (*report.Report, error) {
	return Reaggregate(ctx, p.artifacts)
}

// Reaggregate builds a report from an artifact store alone, for offline
// re-aggregation of a previous run's output.
func Reaggregate(ctx context.Context, artifactStore *artifacts.Store) (*report.Report, error) {
	stored, err := artifactStore.List()
	if err != nil {
		return nil, err
	}

	var order targets.CandidateList
	var summaries []results.HostSummary
	var findings []results.Finding

	for _, artifact := range stored {
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.CodeCanceled, "reaggregation canceled", ctx.Err())
		}
		order = append(order, targets.Target{Address: artifact.Host})

		summary, hostFindings, err := results.Parse(artifact)
		if err != nil {
			summaries = append(summaries, results.HostSummary{
				Host:          artifact.Host,
				Outcome:       results.OutcomeUnparsable,
				FailureReason: err.Error(),
			})
			continue
		}
		summaries = append(summaries, summary)
		findings = append(findings, hostFindings...)
	}

	return report.Aggregate(order, summaries, findings), nil
}
