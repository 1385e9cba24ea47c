package domain

import "time"

type MonitorID string

// Monitor is a configured endpoint. Values are immutable once loaded.
type Monitor struct {
	ID       MonitorID     `json:"id"`
	Name     string        `json:"name"`
	URL      string        `json:"url"`
	Interval time.Duration `json:"interval"`
	Enabled  bool          `json:"enabled"`
	Method   string        `json:"method,omitempty"`
}

// IntervalMinutes is the interval as configured.
func (m Monitor) IntervalMinutes() int {
	return int(m.Interval / time.Minute)
}

// Schedulable reports whether the monitor may be considered for a check.
func (m Monitor) Schedulable() bool {
	return m.Enabled && m.Interval > 0
}

type MonitorState struct {
	MonitorID           MonitorID     `json:"monitor_id"`
	LastCheckedAt       time.Time     `json:"last_checked_at"`
	LastOutcome         *CheckOutcome `json:"last_outcome,omitempty"`
	LastChangeAt        time.Time     `json:"last_change_at,omitempty"`
	LastSuccessAt       time.Time     `json:"last_success_at,omitempty"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	PreviousSuccess     bool          `json:"previous_success"`
	Checks              uint64        `json:"checks"`
}
