package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	// "every 5m", "every 2 hours", "every 30s"
	intervalRegex = regexp.MustCompile(`^every\s+(\d+)\s*(s|sec|secs|second|seconds|m|min|mins|minute|minutes|h|hr|hrs|hour|hours|d|day|days)$`)
)

const (
	minInterval = 10 * time.Second
	maxInterval = 7 * 24 * time.Hour
)

// ParseSchedule parses a schedule expression.
//
// Accepted forms are 5 or 6 field cron expressions ("0 2 * * *"), descriptors
// ("@hourly", "@every 15m") and intervals ("every 5m"). Intervals must lie
// within [10s, 7d].
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("schedule expression cannot be empty")
	}

	if strings.HasPrefix(strings.ToLower(expr), "every ") {
		d, err := parseInterval(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid interval expression %q: %w", expr, err)
		}
		return cron.Every(d), nil
	}

	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	if every, ok := schedule.(cron.ConstantDelaySchedule); ok && every.Delay < minInterval {
		return nil, fmt.Errorf("interval %s is shorter than %s", every.Delay, minInterval)
	}
	return schedule, nil
}

func parseInterval(expr string) (time.Duration, error) {
	m := intervalRegex.FindStringSubmatch(strings.ToLower(expr))
	if m == nil {
		return 0, fmt.Errorf("expected 'every <number><unit>', e.g. 'every 5m'")
	}

	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("interval must be a positive integer")
	}

	var unit time.Duration
	switch m[2][0] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	}

	d := time.Duration(n) * unit
	if d < minInterval {
		return 0, fmt.Errorf("interval must be at least %s", minInterval)
	}
	if d > maxInterval {
		return 0, fmt.Errorf("interval cannot exceed %s", maxInterval)
	}
	return d, nil
}

// ValidateSchedule reports whether expr can be scheduled.
func ValidateSchedule(expr string) error {
	_, err := ParseSchedule(expr)
	return err
}

// NextRuns returns the next n activation times of expr after from.
func NextRuns(expr string, from time.Time, n int) ([]time.Time, error) {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	runs := make([]time.Time, 0, n)
	t := from
	for i := 0; i < n; i++ {
		t = schedule.Next(t)
		runs = append(runs, t)
	}
	return runs, nil
}
