package jobscheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AgentRunner runs a job's prompt to completion in a fresh, one-shot
// session and returns the agent's reply. Implementations are expected to
// derive a session id from jobID (e.g. "cron-<jobID>-<uuid>") so each run
// gets an isolated session rather than sharing state across executions.
type AgentRunner interface {
	RunOnce(ctx context.Context, jobID, prompt string) (reply string, err error)
}

// Scheduler runs registered Jobs on their configured schedules. Due jobs
// are dispatched concurrently; a per-job running flag prevents overlap
// (a job still mid-execution when its next slot comes due is skipped, not
// queued), and each execution is bounded by its own timeout.
type Scheduler struct {
	runner       AgentRunner
	store        ExecutionStore
	log          *slog.Logger
	now          func() time.Time
	tickInterval time.Duration

	mu   sync.Mutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithExecutionStore overrides the execution history store (defaults to
// an in-memory one).
func WithExecutionStore(store ExecutionStore) Option {
	return func(s *Scheduler) { s.store = store }
}

// WithNow overrides the clock, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithTickInterval overrides the tick cadence (default 1 second, matching
// the once-per-wall-clock-second cadence jobs are specified against).
func WithTickInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.tickInterval = interval
		}
	}
}

// NewScheduler builds a Scheduler dispatching due jobs to runner.
func NewScheduler(runner AgentRunner, log *slog.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{
		runner:       runner,
		store:        NewMemoryExecutionStore(),
		log:          log.With("component", "jobscheduler"),
		now:          time.Now,
		tickInterval: time.Second,
		jobs:         make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds or replaces a job, computing its initial NextRun.
func (s *Scheduler) Register(job *Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("job must have a non-empty id")
	}
	next, err := job.Schedule.Next(s.now())
	if err != nil {
		return fmt.Errorf("job %s: %w", job.ID, err)
	}
	job.NextRun = next

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

// Unregister removes a job by id. Returns false if it wasn't registered.
func (s *Scheduler) Unregister(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	return true
}

// Jobs returns a snapshot of every registered job's current state.
func (s *Scheduler) Jobs() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Info, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.info())
	}
	return out
}

// Run drives the tick loop until ctx is canceled, then waits for every
// in-flight execution to finish.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick dispatches every enabled, due, not-currently-running job. Jobs that
// lose the tryStart race (already running) are skipped for this slot.
func (s *Scheduler) tick(ctx context.Context) int {
	now := s.now()
	s.mu.Lock()
	due := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if !job.Enabled || job.NextRun.IsZero() || now.Before(job.NextRun) {
			continue
		}
		due = append(due, job)
	}
	s.mu.Unlock()

	dispatched := 0
	for _, job := range due {
		if !job.tryStart() {
			continue
		}

		s.mu.Lock()
		job.LastRun = now
		if next, err := job.Schedule.Next(now); err == nil {
			job.NextRun = next
		} else {
			job.LastError = err.Error()
			job.Enabled = false
		}
		s.mu.Unlock()

		dispatched++
		s.wg.Add(1)
		go s.execute(ctx, job, now)
	}
	return dispatched
}

// RunJob executes a specific job immediately, ignoring its schedule but
// still respecting overlap prevention. Returns an error if it's already
// running or unknown.
func (s *Scheduler) RunJob(ctx context.Context, id string) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	if !job.tryStart() {
		return fmt.Errorf("job %s is already running", id)
	}
	s.wg.Add(1)
	s.execute(ctx, job, s.now())
	return nil
}

func (s *Scheduler) execute(ctx context.Context, job *Job, startedAt time.Time) {
	defer s.wg.Done()
	defer job.finish()

	runCtx, cancel := context.WithTimeout(ctx, job.effectiveTimeout())
	defer cancel()

	exec := &Execution{
		ID:        uuid.NewString(),
		JobID:     job.ID,
		Status:    ExecutionRunning,
		StartedAt: startedAt,
	}
	if s.store != nil {
		_ = s.store.Create(ctx, exec)
	}

	reply, err := s.runner.RunOnce(runCtx, job.ID, job.Prompt)
	exec.CompletedAt = s.now()

	switch {
	case err != nil && runCtx.Err() == context.DeadlineExceeded:
		exec.Status = ExecutionTimedOut
		exec.Error = "timed out"
		s.log.Warn("job timed out", "job_id", job.ID, "timeout", job.effectiveTimeout())
	case err != nil:
		exec.Status = ExecutionFailed
		exec.Error = err.Error()
		s.log.Warn("job failed", "job_id", job.ID, "error", err)
	default:
		exec.Status = ExecutionSucceeded
		exec.Output = truncate(reply, 200)
		s.log.Info("job finished", "job_id", job.ID, "preview", exec.Output)
	}

	s.mu.Lock()
	job.LastError = exec.Error
	s.mu.Unlock()

	if s.store != nil {
		_ = s.store.Update(ctx, exec)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
