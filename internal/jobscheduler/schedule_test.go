package jobscheduler

import (
	"testing"
	"time"
)

func TestParseScheduleEveryInterval(t *testing.T) {
	cases := map[string]time.Duration{
		"every 30s": 30 * time.Second,
		"every 2h":  2 * time.Hour,
		"every 1d":  24 * time.Hour,
	}
	for raw, want := range cases {
		sched, err := ParseSchedule(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if sched.Kind != KindInterval || sched.Interval != want {
			t.Errorf("parse %q = %+v, want interval %v", raw, sched, want)
		}
	}
}

func TestParseScheduleCronExpression(t *testing.T) {
	sched, err := ParseSchedule("0 */6 * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sched.Kind != KindCron {
		t.Errorf("expected cron kind, got %v", sched.Kind)
	}
}

func TestParseScheduleRejectsInvalid(t *testing.T) {
	for _, raw := range []string{"", "every abc", "every 5x", "not a schedule"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Errorf("expected %q to fail parsing", raw)
		}
	}
}

func TestScheduleNextInterval(t *testing.T) {
	sched, _ := ParseSchedule("every 1h")
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	next, err := sched.Next(now)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !next.Equal(now.Add(time.Hour)) {
		t.Errorf("next = %v, want %v", next, now.Add(time.Hour))
	}
}

func TestScheduleNextCronIsStrictlyAfter(t *testing.T) {
	sched, _ := ParseSchedule("0 0 * * *")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next, err := sched.Next(now)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !next.After(now) {
		t.Errorf("expected next occurrence strictly after now, got %v", next)
	}
}
