// Package dispatch is the concurrency core of scanflow. It launches one
// isolated scan worker per active host under a configurable concurrency
// bound, tracks each job's lifecycle, and isolates per-job failures so a
// crashed or hung worker never takes down the batch.
package dispatch

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/avolpe/scanflow/internal/artifacts"
	"github.com/avolpe/scanflow/internal/errors"
	"github.com/avolpe/scanflow/internal/logging"
	"github.com/avolpe/scanflow/internal/metrics"
	"github.com/avolpe/scanflow/internal/targets"
)

// Dispatcher admits jobs in candidate order, at most MaxConcurrent running
// at once. Completion order is unconstrained; workers routinely run for
// minutes each.
type Dispatcher struct {
	store         *artifacts.Store
	launcher      WorkerLauncher
	maxConcurrent int64
	metrics       *metrics.Metrics
	logger        *logging.Logger

	mu       sync.Mutex
	registry *registry
}

// New creates a dispatcher. maxConcurrent must be at least 1.
func New(store *artifacts.Store, launcher WorkerLauncher, maxConcurrent int) (*Dispatcher, error) {
	if maxConcurrent < 1 {
		return nil, errors.New(errors.CodeConfiguration, "max concurrent workers must be at least 1")
	}
	if store == nil || launcher == nil {
		return nil, errors.New(errors.CodeConfiguration, "dispatcher requires an artifact store and a launcher")
	}
	return &Dispatcher{
		store:         store,
		launcher:      launcher,
		maxConcurrent: int64(maxConcurrent),
		metrics:       metrics.Default(),
		logger:        logging.Default().WithComponent("dispatch"),
	}, nil
}

// SetMetrics replaces the metrics sink, mainly for tests.
func (d *Dispatcher) SetMetrics(m *metrics.Metrics) {
	d.metrics = m
}

// Jobs returns a snapshot of the current run's jobs in admission order.
func (d *Dispatcher) Jobs() []*ScanJob {
	d.mu.Lock()
	reg := d.registry
	d.mu.Unlock()

	if reg == nil {
		return nil
	}
	return reg.snapshot()
}

// Run scans every target and blocks until all admitted jobs reach a
// terminal state. The returned sequence has exactly one terminal job per
// input target, in input order.
//
// Cancelling ctx stops the admission of new jobs; workers already running
// drain to their own exit. Failure of one job never cancels siblings.
func (d *Dispatcher) Run(ctx context.Context, list targets.CandidateList) ([]*ScanJob, error) {
	reg := newRegistry()
	d.mu.Lock()
	d.registry = reg
	d.mu.Unlock()

	d.logger.Info("Dispatching scan workers",
		"targets", len(list),
		"max_concurrent", d.maxConcurrent)

	sem := semaphore.NewWeighted(d.maxConcurrent)
	var wg sync.WaitGroup

	for _, target := range list {
		job := reg.add(target.Address)

		// Admission throttling: block here until a slot frees up.
		if err := sem.Acquire(ctx, 1); err != nil {
			reg.markFailed(job, "run canceled before job admission")
			continue
		}

		wg.Add(1)
		go func(job *ScanJob) {
			defer wg.Done()
			defer sem.Release(1)
			d.runJob(reg, job)
		}(job)
	}

	// Full barrier: no partial results are returned early.
	wg.Wait()

	jobs := reg.snapshot()
	d.logger.Info("All scan jobs terminal",
		"total", len(jobs),
		"completed", countState(jobs, StateCompleted),
		"failed", countState(jobs, StateFailed))
	return jobs, nil
}

// runJob drives one job from Running to a terminal state. Any failure is
// recorded on the job and absorbed; nothing here can abort the batch.
func (d *Dispatcher) runJob(reg *registry, job *ScanJob) {
	reg.markRunning(job)
	d.metrics.JobStarted()
	d.logger.InfoScan("Scan worker starting", job.Target, "job_id", job.ID)

	artifactPath := d.store.Path(job.Target)

	handle, err := d.launcher.Launch(job.Target, artifactPath)
	if err != nil {
		d.finishFailed(reg, job, err)
		return
	}

	waitErr := handle.Wait()

	// Artifact presence is the authoritative success condition: a clean
	// exit without output is still a failure, because aggregation depends
	// on the artifact, not on exit-status trust.
	if _, locateErr := d.store.Locate(job.Target); locateErr != nil {
		d.finishFailed(reg, job, errors.ErrArtifactMissing(job.Target))
		return
	}
	if waitErr != nil {
		d.finishFailed(reg, job,
			errors.WrapWithTarget(errors.CodeWorkerExit, "worker exited with error", job.Target, waitErr))
		return
	}

	reg.markCompleted(job)
	d.metrics.JobFinished(string(StateCompleted), job.Duration())
	d.logger.InfoScan("Scan worker completed", job.Target,
		"job_id", job.ID, "duration", job.Duration())
}

// finishFailed records the failure and logs the error as-is, so the code
// in the log line matches the code stored on the job row.
func (d *Dispatcher) finishFailed(reg *registry, job *ScanJob, err error) {
	reg.markFailed(job, err.Error())
	d.metrics.JobFinished(string(StateFailed), job.Duration())
	d.logger.ErrorScan("Scan worker failed", job.Target, err, "job_id", job.ID)
}

func countState(jobs []*ScanJob, state JobState) int {
	n := 0
	for _, job := range jobs {
		if job.State == state {
			n++
		}
	}
	return n
}
