package repo

import (
	"context"

	"github.com/hamed0406/uptimemon/internal/domain"
)

// OutcomeStore keeps a bounded history of check outcomes per monitor.
// Swap in any DB adapter; see Open.
type OutcomeStore interface {
	Append(ctx context.Context, o domain.CheckOutcome) error
	// Recent returns up to limit outcomes for id, newest first.
	Recent(ctx context.Context, id domain.MonitorID, limit int) ([]domain.CheckOutcome, error)
	// Latest returns the newest outcome of every monitor, ordered by monitor id.
	Latest(ctx context.Context) ([]domain.CheckOutcome, error)
	Close() error
}
