// Package registry holds the active set of configured monitors.
//
// The set is an immutable snapshot behind an atomic pointer. Readers never
// lock; a reload builds a new snapshot and swaps it in whole.
package registry

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/hamed0406/uptimemon/internal/domain"
)

var (
	ErrDuplicateID     = errors.New("duplicate monitor id")
	ErrInvalidInterval = errors.New("monitor interval must be positive")
	ErrEmptyID         = errors.New("monitor id is empty")
)

type snapshot struct {
	monitors []domain.Monitor
	byID     map[domain.MonitorID]int
}

type Registry struct {
	cur atomic.Pointer[snapshot]
}

func New(monitors []domain.Monitor) (*Registry, error) {
	s, err := build(monitors)
	if err != nil {
		return nil, err
	}
	r := &Registry{}
	r.cur.Store(s)
	return r, nil
}

func build(monitors []domain.Monitor) (*snapshot, error) {
	s := &snapshot{
		monitors: make([]domain.Monitor, len(monitors)),
		byID:     make(map[domain.MonitorID]int, len(monitors)),
	}
	copy(s.monitors, monitors)
	for i, m := range s.monitors {
		if m.ID == "" {
			return nil, fmt.Errorf("monitors[%d]: %w", i, ErrEmptyID)
		}
		if _, dup := s.byID[m.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, m.ID)
		}
		if m.Enabled && m.Interval <= 0 {
			return nil, fmt.Errorf("%s: %w", m.ID, ErrInvalidInterval)
		}
		s.byID[m.ID] = i
	}
	return s, nil
}

// Snapshot returns the monitors in configuration order. The slice is a copy.
func (r *Registry) Snapshot() []domain.Monitor {
	s := r.cur.Load()
	out := make([]domain.Monitor, len(s.monitors))
	copy(out, s.monitors)
	return out
}

func (r *Registry) Lookup(id domain.MonitorID) (domain.Monitor, bool) {
	s := r.cur.Load()
	i, ok := s.byID[id]
	if !ok {
		return domain.Monitor{}, false
	}
	return s.monitors[i], true
}

func (r *Registry) Len() int { return len(r.cur.Load().monitors) }

// Replace validates monitors and atomically swaps them in. On error the
// current snapshot stays active.
func (r *Registry) Replace(monitors []domain.Monitor) error {
	s, err := build(monitors)
	if err != nil {
		return err
	}
	r.cur.Store(s)
	return nil
}
