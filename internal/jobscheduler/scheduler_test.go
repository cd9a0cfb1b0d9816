package jobscheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRunner struct {
	mu       sync.Mutex
	calls    int
	delay    time.Duration
	fail     bool
	blockers map[string]chan struct{} // optional per-jobID gate to control overlap timing
}

func (f *fakeRunner) RunOnce(ctx context.Context, jobID, prompt string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if gate, ok := f.blockers[jobID]; ok {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.fail {
		return "", fmt.Errorf("boom")
	}
	return "ok: " + prompt, nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSchedulerDispatchesDueJob(t *testing.T) {
	runner := &fakeRunner{}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	s := NewScheduler(runner, nil, WithNow(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}))

	sched, _ := ParseSchedule("every 1m")
	job := NewJob("job-1", "test job", "do the thing", sched, time.Second)
	if err := s.Register(job); err != nil {
		t.Fatalf("register: %v", err)
	}

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	dispatched := s.tick(context.Background())
	if dispatched != 1 {
		t.Fatalf("expected 1 dispatch, got %d", dispatched)
	}

	deadline := time.After(time.Second)
	for runner.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for runner to be invoked")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestSchedulerSkipsJobAlreadyRunning(t *testing.T) {
	gate := make(chan struct{})
	runner := &fakeRunner{blockers: map[string]chan struct{}{"job-1": gate}}
	now := time.Now()
	s := NewScheduler(runner, nil, WithNow(func() time.Time { return now }))

	sched, _ := ParseSchedule("every 1s")
	job := NewJob("job-1", "slow job", "prompt", sched, time.Minute)
	_ = s.Register(job)

	job.NextRun = now.Add(-time.Second) // already due
	first := s.tick(context.Background())
	if first != 1 {
		t.Fatalf("expected first tick to dispatch, got %d", first)
	}

	// Second tick while the first execution is still blocked on gate: the
	// job is marked running and must be skipped, not queued.
	job.NextRun = now.Add(-time.Second)
	second := s.tick(context.Background())
	if second != 0 {
		t.Errorf("expected overlapping tick to dispatch 0 jobs, got %d", second)
	}

	close(gate)
}

func TestSchedulerEnforcesPerJobTimeout(t *testing.T) {
	runner := &fakeRunner{delay: 50 * time.Millisecond}
	s := NewScheduler(runner, nil)

	sched, _ := ParseSchedule("every 1h")
	job := NewJob("job-1", "timeout job", "prompt", sched, 5*time.Millisecond)
	_ = s.Register(job)

	var wg sync.WaitGroup
	var timedOut atomic.Bool
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.wg.Add(1)
		s.execute(context.Background(), job, time.Now())
		execs, _ := s.store.List(context.Background(), job.ID, 1)
		if len(execs) == 1 && execs[0].Status == ExecutionTimedOut {
			timedOut.Store(true)
		}
	}()
	wg.Wait()

	if !timedOut.Load() {
		t.Error("expected job execution to be recorded as timed out")
	}
	if job.Running() {
		t.Error("expected running flag to be cleared after timeout")
	}
}

func TestRunJobRejectsUnknownID(t *testing.T) {
	s := NewScheduler(&fakeRunner{}, nil)
	if err := s.RunJob(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown job id")
	}
}
