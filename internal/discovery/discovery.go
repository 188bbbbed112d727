// Package discovery filters candidate targets down to the hosts that are
// actually reachable. It runs liveness probes concurrently under its own
// bound, distinct from the scan-dispatch bound, since probes are cheap
// relative to full scans.
package discovery

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/avolpe/scanflow/internal/logging"
	"github.com/avolpe/scanflow/internal/metrics"
	"github.com/avolpe/scanflow/internal/targets"
)

const (
	defaultConcurrency = 50
	defaultTimeout     = 3 * time.Second
)

// Engine runs liveness checks over a candidate list.
type Engine struct {
	probe       LivenessProbe
	concurrency int64
	timeout     time.Duration
	metrics     *metrics.Metrics
	logger      *logging.Logger
}

// NewEngine creates a discovery engine around the given probe.
func NewEngine(probe LivenessProbe) *Engine {
	return &Engine{
		probe:       probe,
		concurrency: defaultConcurrency,
		timeout:     defaultTimeout,
		metrics:     metrics.Default(),
		logger:      logging.Default().WithComponent("discovery"),
	}
}

// SetConcurrency sets the number of concurrent probe operations.
func (e *Engine) SetConcurrency(n int) {
	if n >= 1 {
		e.concurrency = int64(n)
	}
}

// SetTimeout sets the per-host probe timeout.
func (e *Engine) SetTimeout(d time.Duration) {
	if d > 0 {
		e.timeout = d
	}
}

// SetMetrics replaces the metrics sink, mainly for tests.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// FilterActive probes every candidate and returns the subset reported
// reachable, preserving candidate order. A probe failure marks its host
// inactive; a single unreachable host never aborts the batch.
func (e *Engine) FilterActive(ctx context.Context, candidates targets.CandidateList) targets.CandidateList {
	if len(candidates) == 0 {
		return nil
	}

	start := time.Now()
	e.logger.Info("Starting liveness sweep",
		"candidates", len(candidates),
		"method", e.probe.Method(),
		"concurrency", e.concurrency)

	sem := semaphore.NewWeighted(e.concurrency)
	active := make([]bool, len(candidates))

	for i := range candidates {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context canceled: remaining candidates stay inactive.
			break
		}
		go func(idx int) {
			defer sem.Release(1)
			active[idx] = e.checkOne(ctx, candidates[idx].Address)
		}(i)
	}

	// Barrier: drain every slot so all probes have finished.
	if err := sem.Acquire(context.Background(), e.concurrency); err == nil {
		sem.Release(e.concurrency)
	}

	var filtered targets.CandidateList
	for i, ok := range active {
		if ok {
			filtered = append(filtered, candidates[i])
		}
	}

	e.logger.Info("Liveness sweep finished",
		"candidates", len(candidates),
		"active", len(filtered),
		"duration", time.Since(start))
	return filtered
}

func (e *Engine) checkOne(ctx context.Context, address string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	status, err := e.probe.Check(probeCtx, address)
	if err != nil {
		e.logger.Debug("Probe error, treating host as inactive",
			"target", address, "error", err)
		e.metrics.RecordProbe(e.probe.Method(), string(StatusError))
		return false
	}

	e.metrics.RecordProbe(e.probe.Method(), string(status))
	return status == StatusActive
}
