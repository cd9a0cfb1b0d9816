// Package jobscheduler runs configured jobs at their scheduled times, each
// in a fresh one-shot agent session, with per-job overlap prevention and a
// per-job execution timeout.
package jobscheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// ScheduleKind distinguishes the two schedule grammars this package
// accepts: a parsed cron expression, or a plain recurring interval.
type ScheduleKind string

const (
	KindCron     ScheduleKind = "cron"
	KindInterval ScheduleKind = "interval"
)

// Schedule is a parsed, ready-to-evaluate job schedule.
type Schedule struct {
	Kind     ScheduleKind
	Raw      string
	Interval time.Duration
	cron     cron.Schedule
}

// ParseSchedule accepts either "every <N><unit>" (unit one of s, m, h, d)
// or a standard five- or six-field cron expression.
func ParseSchedule(raw string) (Schedule, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Schedule{}, fmt.Errorf("schedule is required")
	}

	if rest, ok := strings.CutPrefix(trimmed, "every "); ok {
		interval, err := parseInterval(strings.TrimSpace(rest))
		if err != nil {
			return Schedule{}, err
		}
		return Schedule{Kind: KindInterval, Raw: trimmed, Interval: interval}, nil
	}

	parsed, err := cronParser.Parse(trimmed)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid cron expression %q: %w", trimmed, err)
	}
	return Schedule{Kind: KindCron, Raw: trimmed, cron: parsed}, nil
}

// Next returns the next occurrence of the schedule strictly after now.
func (s Schedule) Next(now time.Time) (time.Time, error) {
	switch s.Kind {
	case KindInterval:
		if s.Interval <= 0 {
			return time.Time{}, fmt.Errorf("interval schedule missing duration")
		}
		return now.Add(s.Interval), nil
	case KindCron:
		if s.cron == nil {
			return time.Time{}, fmt.Errorf("cron schedule missing parsed expression")
		}
		return s.cron.Next(now), nil
	default:
		return time.Time{}, fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
}

// parseInterval parses a bare interval string like "30m", "2h", "1d", "90s".
func parseInterval(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty interval")
	}
	numPart, unit := s[:len(s)-1], s[len(s)-1:]
	n, err := strconv.ParseUint(numPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid interval number %q", numPart)
	}
	switch unit {
	case "s":
		return time.Duration(n) * time.Second, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown interval suffix %q: use s, m, h, or d", unit)
	}
}
