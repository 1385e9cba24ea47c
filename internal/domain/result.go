package domain

import (
	"time"

	"github.com/iancoleman/strcase"
)

type ErrorKind string

const (
	ErrorKindNone             ErrorKind = ""
	ErrorKindTimeout          ErrorKind = "Timeout"
	ErrorKindConnectionFailed ErrorKind = "ConnectionFailed"
	ErrorKindDNSFailure       ErrorKind = "DnsFailure"
	ErrorKindTLSFailure       ErrorKind = "TlsFailure"
	ErrorKindOther            ErrorKind = "Other"
)

// Label is the snake_case form used in metric labels ("dns_failure").
func (k ErrorKind) Label() string {
	if k == ErrorKindNone {
		return "none"
	}
	return strcase.ToSnake(string(k))
}

// CheckOutcome is the classified result of one probe.
// StatusCode is nil unless the HTTP exchange completed.
type CheckOutcome struct {
	MonitorID  MonitorID     `json:"monitor_id"`
	Timestamp  time.Time     `json:"timestamp"`
	Success    bool          `json:"success"`
	StatusCode *int          `json:"status_code,omitempty"`
	Duration   time.Duration `json:"duration"`
	ErrorKind  ErrorKind     `json:"error_kind,omitempty"`
	Message    string        `json:"message,omitempty"`
}

// FailureClass names why a failed outcome failed: the error kind label,
// or "http_status" when the exchange completed with a non-success status.
func (o CheckOutcome) FailureClass() string {
	if o.Success {
		return ""
	}
	if o.ErrorKind == ErrorKindNone && o.StatusCode != nil {
		return "http_status"
	}
	if o.ErrorKind == ErrorKindNone {
		return ErrorKindOther.Label()
	}
	return o.ErrorKind.Label()
}

// Status returns the status code or 0.
func (o CheckOutcome) Status() int {
	if o.StatusCode == nil {
		return 0
	}
	return *o.StatusCode
}

func StatusCode(code int) *int { return &code }

type TransitionKind string

const (
	TransitionUp        TransitionKind = "up"        // none -> success
	TransitionDown      TransitionKind = "down"      // success -> failure
	TransitionRecovered TransitionKind = "recovered" // failure -> success
)

type Transition struct {
	MonitorID MonitorID      `json:"monitor_id"`
	Kind      TransitionKind `json:"kind"`
	At        time.Time      `json:"at"`
	// ConsecutiveFailures is the counter value after the outcome was applied.
	ConsecutiveFailures int `json:"consecutive_failures"`
}

// CycleSummary describes one scheduling cycle.
type CycleSummary struct {
	StartedAt       time.Time
	Checked         int
	Deferred        int
	SkippedInFlight int
	Pending         int
	InFlight        int
	Duration        time.Duration
	NextSleep       time.Duration
}
