package agent

import (
	"fmt"
	"strings"
	"time"
)

// Call classification thresholds in seconds.
const (
	shortCallLimit  = 30.0
	mediumCallLimit = 300.0
)

// CallSession tracks the timing of a single call for duration reporting.
// It is a plain value holder: StartCall and EndCall record wall-clock
// timestamps, the remaining methods derive duration metrics from them.
type CallSession struct {
	startTime *time.Time
	endTime   *time.Time
}

// NewCallSession creates an empty call session with no timestamps recorded.
func NewCallSession() *CallSession {
	return &CallSession{}
}

// StartCall records the call start time and clears any previous end time.
func (s *CallSession) StartCall() {
	now := time.Now()
	s.startTime = &now
	s.endTime = nil
}

// EndCall records the call end time. It is a no-op if the call was never
// started.
func (s *CallSession) EndCall() {
	if s.startTime == nil {
		return
	}
	now := time.Now()
	s.endTime = &now
}

// Reset clears both timestamps so the session can be reused.
func (s *CallSession) Reset() {
	s.startTime = nil
	s.endTime = nil
}

// StartTime returns the recorded start time, or the zero time and false if
// the call has not started.
func (s *CallSession) StartTime() (time.Time, bool) {
	if s.startTime == nil {
		return time.Time{}, false
	}
	return *s.startTime, true
}

// EndTime returns the recorded end time, or the zero time and false if the
// call has not ended.
func (s *CallSession) EndTime() (time.Time, bool) {
	if s.endTime == nil {
		return time.Time{}, false
	}
	return *s.endTime, true
}

// Duration returns the call duration in seconds. The second return value is
// false when either timestamp is missing. A negative duration (end before
// start, e.g. under clock adjustment) is returned as-is rather than rejected.
func (s *CallSession) Duration() (float64, bool) {
	if s.startTime == nil || s.endTime == nil {
		return 0, false
	}
	return s.endTime.Sub(*s.startTime).Seconds(), true
}

// DurationMinutes returns the call duration in minutes.
func (s *CallSession) DurationMinutes() (float64, bool) {
	d, ok := s.Duration()
	if !ok {
		return 0, false
	}
	return d / 60.0, true
}

// DurationFormatted returns a human-readable duration string such as
// "2 minutes 30 seconds". Durations under a minute keep one decimal place.
// Returns "unknown" when no duration is available and "invalid duration"
// when the duration is negative.
func (s *CallSession) DurationFormatted() string {
	d, ok := s.Duration()
	if !ok {
		return "unknown"
	}
	if d < 0 {
		return "invalid duration"
	}
	if d < 60 {
		return fmt.Sprintf("%.1f seconds", d)
	}

	totalSeconds := int(d)
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	var parts []string
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", hours, pluralize("hour", hours)))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", minutes, pluralize("minute", minutes)))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%d %s", seconds, pluralize("second", seconds)))
	}
	return strings.Join(parts, " ")
}

// IsShortCall reports whether the call lasted under 30 seconds.
func (s *CallSession) IsShortCall() bool {
	d, ok := s.Duration()
	return ok && d < shortCallLimit
}

// IsMediumCall reports whether the call lasted between 30 seconds and 5 minutes.
func (s *CallSession) IsMediumCall() bool {
	d, ok := s.Duration()
	return ok && d >= shortCallLimit && d < mediumCallLimit
}

// IsLongCall reports whether the call lasted 5 minutes or more.
func (s *CallSession) IsLongCall() bool {
	d, ok := s.Duration()
	return ok && d >= mediumCallLimit
}

// Classification returns "short", "medium", "long" or "unknown" based on the
// call duration.
func (s *CallSession) Classification() string {
	switch {
	case s.IsShortCall():
		return "short"
	case s.IsMediumCall():
		return "medium"
	case s.IsLongCall():
		return "long"
	default:
		return "unknown"
	}
}

// DurationReport is the exportable set of duration metrics for a call.
type DurationReport struct {
	StartTime         *time.Time `json:"start_time"`
	EndTime           *time.Time `json:"end_time"`
	DurationSeconds   *float64   `json:"duration_seconds"`
	DurationMinutes   *float64   `json:"duration_minutes"`
	DurationFormatted string     `json:"duration_formatted"`
	Classification    string     `json:"call_classification"`
}

// ExportData builds a DurationReport for analytics and logging.
func (s *CallSession) ExportData() DurationReport {
	report := DurationReport{
		StartTime:         s.startTime,
		EndTime:           s.endTime,
		DurationFormatted: s.DurationFormatted(),
		Classification:    s.Classification(),
	}
	if d, ok := s.Duration(); ok {
		report.DurationSeconds = &d
		m := d / 60.0
		report.DurationMinutes = &m
	}
	return report
}

// setTimes is a test hook for installing explicit timestamps.
func (s *CallSession) setTimes(start, end *time.Time) {
	s.startTime = start
	s.endTime = end
}

func pluralize(unit string, n int) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}
