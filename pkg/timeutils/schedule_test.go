package timeutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// 2024-01-01 is a Monday.
func mondayAt(hour, minute int) time.Time {
	return time.Date(2024, 1, 1, hour, minute, 0, 0, time.UTC)
}

func weekSchedule() *WorkSchedule {
	return &WorkSchedule{
		Enabled:  true,
		Timezone: "UTC",
		Days: map[string]DayWindow{
			"monday":   {Enabled: true, Start: "09:00", End: "17:00"},
			"saturday": {Enabled: false, Start: "09:00", End: "13:00"},
		},
	}
}

func TestWithinScheduleNilFailsOpen(t *testing.T) {
	ok, reason := WithinSchedule(nil, mondayAt(3, 0))
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestWithinScheduleDisabledFailsOpen(t *testing.T) {
	s := weekSchedule()
	s.Enabled = false

	ok, reason := WithinSchedule(s, mondayAt(3, 0))
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestWithinScheduleInsideWindow(t *testing.T) {
	ok, reason := WithinSchedule(weekSchedule(), mondayAt(10, 30))
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestWithinScheduleBeforeOpening(t *testing.T) {
	ok, reason := WithinSchedule(weekSchedule(), mondayAt(8, 30))
	assert.False(t, ok)
	assert.Equal(t, "Outside working hours: monday 08:30 (working hours: 09:00-17:00)", reason)
}

func TestWithinScheduleBoundaries(t *testing.T) {
	ok, _ := WithinSchedule(weekSchedule(), mondayAt(9, 0))
	assert.True(t, ok, "opening minute is inside the window")

	ok, reason := WithinSchedule(weekSchedule(), mondayAt(17, 0))
	assert.False(t, ok, "closing minute is already outside")
	assert.Equal(t, "Outside working hours: monday 17:00 (working hours: 09:00-17:00)", reason)
}

func TestWithinScheduleDayNotConfigured(t *testing.T) {
	// 2024-01-02 is a Tuesday, absent from the map.
	tuesday := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	ok, reason := WithinSchedule(weekSchedule(), tuesday)
	assert.False(t, ok)
	assert.Equal(t, "Working hours not configured for tuesday", reason)
}

func TestWithinScheduleDayDisabled(t *testing.T) {
	// 2024-01-06 is a Saturday, present but disabled.
	saturday := time.Date(2024, 1, 6, 10, 0, 0, 0, time.UTC)

	ok, reason := WithinSchedule(weekSchedule(), saturday)
	assert.False(t, ok)
	assert.Equal(t, "saturday is not a working day", reason)
}

func TestWithinScheduleTimezoneShift(t *testing.T) {
	s := weekSchedule()
	s.Timezone = "Asia/Jakarta" // UTC+7

	// 02:30 UTC is 09:30 in Jakarta, inside Monday's window.
	ok, reason := WithinSchedule(s, mondayAt(2, 30))
	assert.True(t, ok, reason)

	// 23:30 UTC Monday is already 06:30 Tuesday in Jakarta.
	ok, reason = WithinSchedule(s, mondayAt(23, 30))
	assert.False(t, ok)
	assert.Equal(t, "Working hours not configured for tuesday", reason)
}

func TestWithinScheduleUnknownTimezoneFallsBackToUTC(t *testing.T) {
	s := weekSchedule()
	s.Timezone = "Mars/Olympus"

	ok, reason := WithinSchedule(s, mondayAt(10, 0))
	assert.True(t, ok, reason)
}

func TestWithinScheduleMalformedWindowFailsOpen(t *testing.T) {
	s := weekSchedule()
	s.Days["monday"] = DayWindow{Enabled: true, Start: "9am", End: "late"}

	ok, reason := WithinSchedule(s, mondayAt(3, 0))
	assert.True(t, ok, "broken window config must not close the inbox")
	assert.Empty(t, reason)
}

func TestParseClock(t *testing.T) {
	m, err := parseClock("09:30")
	assert.NoError(t, err)
	assert.Equal(t, 9*60+30, m)

	_, err = parseClock("25:00")
	assert.Error(t, err)
	_, err = parseClock("10:75")
	assert.Error(t, err)
	_, err = parseClock("1030")
	assert.Error(t, err)
}
