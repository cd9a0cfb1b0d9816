package jobscheduler

import (
	"sync/atomic"
	"time"
)

// DefaultTimeout bounds a job execution when Timeout is unset.
const DefaultTimeout = 10 * time.Minute

// Job is a configured scheduled job: a prompt to run in a fresh session on
// the configured Schedule, bounded by Timeout.
type Job struct {
	ID      string
	Name    string
	Prompt  string
	Enabled bool

	Schedule Schedule
	Timeout  time.Duration

	NextRun   time.Time
	LastRun   time.Time
	LastError string

	// running guards against overlapping executions of the same job: a
	// tick that finds it already true skips the slot rather than queuing
	// a second execution behind it. Held as a pointer so Job can be
	// copied freely (e.g. when snapshotting for callers) without
	// duplicating the atomic.
	running *atomic.Bool
}

// NewJob builds a Job ready to be registered with a Scheduler.
func NewJob(id, name, prompt string, schedule Schedule, timeout time.Duration) *Job {
	return &Job{
		ID:       id,
		Name:     name,
		Prompt:   prompt,
		Enabled:  true,
		Schedule: schedule,
		Timeout:  timeout,
		running:  new(atomic.Bool),
	}
}

// effectiveTimeout returns Timeout, or DefaultTimeout if unset.
func (j *Job) effectiveTimeout() time.Duration {
	if j.Timeout > 0 {
		return j.Timeout
	}
	return DefaultTimeout
}

// tryStart marks the job running if it isn't already, returning whether
// the caller won the race and should execute it.
func (j *Job) tryStart() bool {
	return j.running.CompareAndSwap(false, true)
}

// finish clears the running flag, allowing the next due tick to fire.
func (j *Job) finish() {
	j.running.Store(false)
}

// Running reports whether an execution of this job is currently in flight.
func (j *Job) Running() bool {
	return j.running.Load()
}

// Info is a read-only, externally safe snapshot of a Job's state.
type Info struct {
	ID        string
	Name      string
	Enabled   bool
	Schedule  string
	NextRun   time.Time
	LastRun   time.Time
	LastError string
	Running   bool
}

func (j *Job) info() Info {
	return Info{
		ID:        j.ID,
		Name:      j.Name,
		Enabled:   j.Enabled,
		Schedule:  j.Schedule.Raw,
		NextRun:   j.NextRun,
		LastRun:   j.LastRun,
		LastError: j.LastError,
		Running:   j.Running(),
	}
}
