// Package state tracks the per-monitor result of the latest check.
//
// Each monitor has its own lock, so a write for one monitor never waits on
// another. Only the probe-completion path calls Record; everything else reads.
// Retain is the exception: it excludes every Record while the monitor set
// changes.
package state

import (
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/uptimemon/internal/domain"
)

type entry struct {
	mu  sync.RWMutex
	st  domain.MonitorState
	has bool
}

type Tracker struct {
	mu      sync.RWMutex                  // Record holds it shared, Retain exclusive
	known   map[domain.MonitorID]struct{} // nil until the first Retain
	entries sync.Map                      // domain.MonitorID -> *entry
}

func NewTracker() *Tracker { return &Tracker{} }

func (t *Tracker) load(id domain.MonitorID) (*entry, bool) {
	v, ok := t.entries.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*entry), true
}

// IsDue reports whether m should be checked at now: never checked, or
// at least one interval since the last check.
func (t *Tracker) IsDue(m domain.Monitor, now time.Time) bool {
	next, ok := t.NextDue(m)
	return !ok || !now.Before(next)
}

// NextDue is the instant m becomes due again. ok is false when m has no
// recorded state and is therefore due right away.
func (t *Tracker) NextDue(m domain.Monitor) (time.Time, bool) {
	e, ok := t.load(m.ID)
	if !ok {
		return time.Time{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.has {
		return time.Time{}, false
	}
	return e.st.LastCheckedAt.Add(m.Interval), true
}

// Record applies an outcome and returns a transition when the success
// classification changed. A fresh monitor counts as previously failing, so
// its first success reports TransitionUp and a first failure reports nothing.
// Outcomes for monitors dropped by Retain are ignored.
func (t *Tracker) Record(o domain.CheckOutcome) *domain.Transition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.known != nil {
		if _, ok := t.known[o.MonitorID]; !ok {
			return nil
		}
	}
	v, _ := t.entries.LoadOrStore(o.MonitorID, &entry{})
	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()

	first := !e.has
	prev := e.st.PreviousSuccess

	oc := o
	e.has = true
	e.st.MonitorID = o.MonitorID
	e.st.LastCheckedAt = o.Timestamp
	e.st.LastOutcome = &oc
	e.st.Checks++
	if o.Success {
		e.st.ConsecutiveFailures = 0
		e.st.LastSuccessAt = o.Timestamp
	} else {
		e.st.ConsecutiveFailures++
	}
	e.st.PreviousSuccess = o.Success

	if o.Success == prev {
		return nil
	}
	kind := domain.TransitionDown
	if o.Success {
		kind = domain.TransitionRecovered
		if first {
			kind = domain.TransitionUp
		}
	}
	e.st.LastChangeAt = o.Timestamp
	return &domain.Transition{
		MonitorID:           o.MonitorID,
		Kind:                kind,
		At:                  o.Timestamp,
		ConsecutiveFailures: e.st.ConsecutiveFailures,
	}
}

func (t *Tracker) ConsecutiveFailures(id domain.MonitorID) int {
	e, ok := t.load(id)
	if !ok {
		return 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.st.ConsecutiveFailures
}

// Get returns a copy of the state for id.
func (t *Tracker) Get(id domain.MonitorID) (domain.MonitorState, bool) {
	e, ok := t.load(id)
	if !ok {
		return domain.MonitorState{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.st, e.has
}

// Snapshot copies every recorded state, ordered by monitor id.
func (t *Tracker) Snapshot() []domain.MonitorState {
	var out []domain.MonitorState
	t.entries.Range(func(_, v any) bool {
		e := v.(*entry)
		e.mu.RLock()
		if e.has {
			out = append(out, e.st)
		}
		e.mu.RUnlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].MonitorID < out[j].MonitorID })
	return out
}

// Retain drops state for monitors that are no longer configured. From then
// on only the given monitors are recorded.
func (t *Tracker) Retain(monitors []domain.Monitor) int {
	keep := make(map[domain.MonitorID]struct{}, len(monitors))
	for _, m := range monitors {
		keep[m.ID] = struct{}{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.known = keep
	dropped := 0
	t.entries.Range(func(k, _ any) bool {
		if _, ok := keep[k.(domain.MonitorID)]; !ok {
			t.entries.Delete(k)
			dropped++
		}
		return true
	})
	return dropped
}
