package dispatch

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobState is the lifecycle state of a dispatched scan job.
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// ScanJob tracks one dispatched worker from admission to terminal state.
// The dispatcher owns it exclusively for its lifetime; once terminal it is
// never restarted.
type ScanJob struct {
	ID            uuid.UUID `json:"id"`
	Target        string    `json:"target"`
	State         JobState  `json:"state"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	FinishedAt    time.Time `json:"finished_at,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// Duration returns the job's wall time, zero until it finishes.
func (j *ScanJob) Duration() time.Duration {
	if j.StartedAt.IsZero() || j.FinishedAt.IsZero() {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}

// registry is the only shared mutable state across workers: the map from
// target to job, guarded by a mutex.
type registry struct {
	mu    sync.Mutex
	jobs  map[string]*ScanJob
	order []string
}

func newRegistry() *registry {
	return &registry{jobs: make(map[string]*ScanJob)}
}

func (r *registry) add(target string) *ScanJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	job := &ScanJob{
		ID:     uuid.New(),
		Target: target,
		State:  StatePending,
	}
	r.jobs[target] = job
	r.order = append(r.order, target)
	return job
}

func (r *registry) markRunning(job *ScanJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job.State = StateRunning
	job.StartedAt = time.Now()
}

func (r *registry) markCompleted(job *ScanJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job.State = StateCompleted
	job.FinishedAt = time.Now()
}

func (r *registry) markFailed(job *ScanJob, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job.State = StateFailed
	job.FinishedAt = time.Now()
	job.FailureReason = reason
}

// snapshot returns jobs in admission order. Job structs are copied so
// callers never observe mid-transition state.
func (r *registry) snapshot() []*ScanJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*ScanJob, 0, len(r.order))
	for _, target := range r.order {
		copied := *r.jobs[target]
		out = append(out, &copied)
	}
	return out
}
