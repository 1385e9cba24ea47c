// Package probe runs single HTTP checks and classifies what went wrong.
package probe

import (
	"context"
	"time"

	"github.com/hamed0406/uptimemon/internal/domain"
)

// Prober performs one check of a monitor. Implementations must always
// return an outcome; failures are reported in it, never as a panic or error.
type Prober interface {
	Probe(ctx context.Context, m domain.Monitor, timeout time.Duration) domain.CheckOutcome
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, m domain.Monitor, timeout time.Duration) domain.CheckOutcome

func (f ProberFunc) Probe(ctx context.Context, m domain.Monitor, timeout time.Duration) domain.CheckOutcome {
	return f(ctx, m, timeout)
}
