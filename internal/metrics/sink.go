// Package metrics receives check outcomes and exports them.
package metrics

import (
	"errors"

	"go.uber.org/multierr"

	"github.com/hamed0406/uptimemon/internal/domain"
)

var ErrUnknownMonitor = errors.New("monitor not registered with sink")

//go:generate mockgen -destination=../scheduler/mock_sink_test.go -package=scheduler github.com/hamed0406/uptimemon/internal/metrics Sink

// Sink consumes outcomes from the scheduler. Implementations must be safe for
// concurrent use. Returned errors are logged by the caller and dropped.
type Sink interface {
	Observe(o domain.CheckOutcome) error
	ObserveTransition(t domain.Transition) error
	ObserveCycle(c domain.CycleSummary) error
}

type nop struct{}

func (nop) Observe(domain.CheckOutcome) error         { return nil }
func (nop) ObserveTransition(domain.Transition) error { return nil }
func (nop) ObserveCycle(domain.CycleSummary) error    { return nil }

// Nop discards everything.
func Nop() Sink { return nop{} }

type fanout []Sink

// Fanout forwards every call to each sink in order. One failing sink does
// not stop the rest; their errors are combined.
func Fanout(sinks ...Sink) Sink {
	out := make(fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f fanout) Observe(o domain.CheckOutcome) error {
	var err error
	for _, s := range f {
		err = multierr.Append(err, s.Observe(o))
	}
	return err
}

func (f fanout) ObserveTransition(t domain.Transition) error {
	var err error
	for _, s := range f {
		err = multierr.Append(err, s.ObserveTransition(t))
	}
	return err
}

func (f fanout) ObserveCycle(c domain.CycleSummary) error {
	var err error
	for _, s := range f {
		err = multierr.Append(err, s.ObserveCycle(c))
	}
	return err
}
