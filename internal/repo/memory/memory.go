package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hamed0406/uptimemon/internal/domain"
)

const DefaultLimit = 100

// ring holds the newest outcomes of one monitor. Until it is full head
// stays 0; afterwards head points at the oldest entry.
type ring struct {
	buf  []domain.CheckOutcome
	head int
}

func (r *ring) push(o domain.CheckOutcome) {
	if len(r.buf) < cap(r.buf) {
		r.buf = append(r.buf, o)
		return
	}
	r.buf[r.head] = o
	r.head = (r.head + 1) % len(r.buf)
}

func (r *ring) newest(n int) []domain.CheckOutcome {
	size := len(r.buf)
	if n <= 0 || n > size {
		n = size
	}
	out := make([]domain.CheckOutcome, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.buf[(r.head-1-i+2*size)%size])
	}
	return out
}

type Store struct {
	mu    sync.RWMutex
	limit int
	rings map[domain.MonitorID]*ring
}

func New(limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{
		limit: limit,
		rings: make(map[domain.MonitorID]*ring),
	}
}

func (m *Store) Append(ctx context.Context, o domain.CheckOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rings[o.MonitorID]
	if r == nil {
		r = &ring{buf: make([]domain.CheckOutcome, 0, m.limit)}
		m.rings[o.MonitorID] = r
	}
	r.push(o)
	return nil
}

func (m *Store) Recent(ctx context.Context, id domain.MonitorID, limit int) ([]domain.CheckOutcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r := m.rings[id]
	if r == nil {
		return nil, nil
	}
	return r.newest(limit), nil
}

func (m *Store) Latest(ctx context.Context) ([]domain.CheckOutcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.CheckOutcome, 0, len(m.rings))
	for _, r := range m.rings {
		if len(r.buf) > 0 {
			out = append(out, r.newest(1)[0])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MonitorID < out[j].MonitorID })
	return out, nil
}

func (m *Store) Close() error { return nil }
