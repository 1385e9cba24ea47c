package repo

import (
	"context"
	"time"

	"github.com/hamed0406/uptimemon/internal/domain"
	"github.com/hamed0406/uptimemon/internal/metrics"
)

var _ metrics.Sink = (*Sink)(nil)

// Sink appends every observed outcome to a store. Transitions and cycle
// summaries are not kept.
type Sink struct {
	store   OutcomeStore
	timeout time.Duration
}

func NewSink(store OutcomeStore, timeout time.Duration) *Sink {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Sink{store: store, timeout: timeout}
}

func (s *Sink) Observe(o domain.CheckOutcome) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.store.Append(ctx, o)
}

func (s *Sink) ObserveTransition(domain.Transition) error { return nil }

func (s *Sink) ObserveCycle(domain.CycleSummary) error { return nil }
