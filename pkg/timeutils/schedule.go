package timeutils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DayWindow is a single day's working window, times as "HH:MM" strings in the
// schedule's own timezone.
type DayWindow struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// WorkSchedule is a weekly working-hours definition. Days are keyed by the
// lowercase English weekday name ("monday" ... "sunday"); a missing day means
// the tenant never configured it.
type WorkSchedule struct {
	Enabled  bool                 `json:"enabled"`
	Timezone string               `json:"timezone,omitempty"`
	Days     map[string]DayWindow `json:"days,omitempty"`
}

// WithinSchedule reports whether 'now' falls inside the agent's working hours
// and, when it does not, a human-readable reason. The check fails open: a nil
// or disabled schedule, an unknown timezone or a malformed window all return
// (true, "") so a tenant misconfiguration can never silence the inbox.
func WithinSchedule(schedule *WorkSchedule, now time.Time) (bool, string) {
	if schedule == nil || !schedule.Enabled {
		return true, ""
	}

	loc := time.UTC
	if schedule.Timezone != "" {
		if l, err := time.LoadLocation(schedule.Timezone); err == nil {
			loc = l
		}
	}
	local := now.In(loc)

	day := strings.ToLower(local.Weekday().String())
	window, ok := schedule.Days[day]
	if !ok {
		return false, fmt.Sprintf("Working hours not configured for %s", day)
	}
	if !window.Enabled {
		return false, fmt.Sprintf("%s is not a working day", day)
	}

	start, err := parseClock(window.Start)
	if err != nil {
		return true, ""
	}
	end, err := parseClock(window.End)
	if err != nil {
		return true, ""
	}

	current := local.Hour()*60 + local.Minute()
	if current < start || current >= end {
		return false, fmt.Sprintf(
			"Outside working hours: %s %02d:%02d (working hours: %s-%s)",
			day, local.Hour(), local.Minute(), window.Start, window.End,
		)
	}
	return true, ""
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time format, expected HH:MM")
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour")
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute")
	}
	return hour*60 + minute, nil
}
