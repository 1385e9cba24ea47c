package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hamed0406/uptimemon/internal/domain"
	"github.com/hamed0406/uptimemon/internal/metrics"
	"github.com/hamed0406/uptimemon/internal/probe"
	"github.com/hamed0406/uptimemon/internal/registry"
	"github.com/hamed0406/uptimemon/internal/state"
)

// --- fakes ---

type fakeProber struct {
	mu        sync.Mutex
	calls     map[domain.MonitorID]int
	active    map[domain.MonitorID]int
	maxActive int
	gate      chan struct{} // when set, probes block until it is closed or ctx ends
	result    func(m domain.Monitor, call int) domain.CheckOutcome
}

func newFakeProber() *fakeProber {
	return &fakeProber{
		calls:  make(map[domain.MonitorID]int),
		active: make(map[domain.MonitorID]int),
	}
}

func (f *fakeProber) Probe(ctx context.Context, m domain.Monitor, timeout time.Duration) domain.CheckOutcome {
	f.mu.Lock()
	f.calls[m.ID]++
	call := f.calls[m.ID]
	f.active[m.ID]++
	if f.active[m.ID] > f.maxActive {
		f.maxActive = f.active[m.ID]
	}
	gate := f.gate
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active[m.ID]--
		f.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.CheckOutcome{MonitorID: m.ID, ErrorKind: probe.Classify(ctx.Err()), Message: ctx.Err().Error()}
		}
	}
	if f.result != nil {
		return f.result(m, call)
	}
	return domain.CheckOutcome{MonitorID: m.ID, Success: true, StatusCode: domain.StatusCode(200), Duration: time.Millisecond}
}

func (f *fakeProber) callCount(id domain.MonitorID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func mon(id string, interval time.Duration, enabled bool) domain.Monitor {
	return domain.Monitor{ID: domain.MonitorID(id), Name: "mon-" + id, URL: "https://" + id + ".example.com", Interval: interval, Enabled: enabled}
}

func build(t *testing.T, monitors []domain.Monitor, p probe.Prober, sink metrics.Sink, cfg Config) *Scheduler {
	t.Helper()
	reg, err := registry.New(monitors)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return New(zap.NewNop(), reg, state.NewTracker(), p, sink, cfg)
}

// withPool starts workers for tests that drive runCycle directly.
func withPool(t *testing.T, s *Scheduler) *Scheduler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	s.pool.start(ctx)
	t.Cleanup(func() {
		s.pool.close()
		cancel()
		s.pool.wait(0)
	})
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// --- tests ---

func TestRunCycle_DispatchesDueEnabledMonitors(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := NewMockSink(ctrl)
	sink.EXPECT().Observe(gomock.Any()).Return(nil).Times(2)
	sink.EXPECT().ObserveTransition(gomock.Any()).Return(nil).Times(2)
	sink.EXPECT().ObserveCycle(gomock.Any()).Return(nil).Times(2)

	p := newFakeProber()
	s := withPool(t, build(t, []domain.Monitor{
		mon("a", time.Minute, true),
		mon("b", time.Minute, true),
		mon("c", time.Minute, false),
	}, p, sink, Config{Tick: time.Second, MaxConcurrent: 4}))

	sum := s.runCycle(context.Background())
	if sum.Checked != 2 || sum.Pending != 0 || sum.Deferred != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if p.callCount("c") != 0 {
		t.Fatalf("disabled monitor must not be probed")
	}
	for _, id := range []domain.MonitorID{"a", "b"} {
		st, ok := s.State.Get(id)
		if !ok || st.Checks != 1 || !st.LastCheckedAt.Equal(sum.StartedAt) {
			t.Fatalf("state for %s not recorded at dispatch time: %+v", id, st)
		}
	}

	// nothing is due a moment later
	if again := s.runCycle(context.Background()); again.Checked != 0 {
		t.Fatalf("want no checks before the interval elapses, got %+v", again)
	}
}

func TestRunCycle_SkipsMonitorStillInFlight(t *testing.T) {
	p := newFakeProber()
	p.gate = make(chan struct{})
	s := withPool(t, build(t, []domain.Monitor{mon("a", time.Millisecond, true)}, p, metrics.Nop(),
		Config{Tick: 30 * time.Millisecond, MaxConcurrent: 2}))

	first := s.runCycle(context.Background())
	if first.Checked != 1 || first.Pending != 1 {
		t.Fatalf("want one pending probe, got %+v", first)
	}

	second := s.runCycle(context.Background())
	if second.Checked != 0 || second.SkippedInFlight != 1 {
		t.Fatalf("in-flight monitor must be skipped, got %+v", second)
	}
	if second.NextSleep != 30*time.Millisecond {
		t.Fatalf("in-flight monitor should pin sleep to one tick, got %v", second.NextSleep)
	}

	close(p.gate)
	waitFor(t, "probe to finish", func() bool { return s.InFlight() == 0 })
	time.Sleep(2 * time.Millisecond)

	third := s.runCycle(context.Background())
	if third.Checked != 1 {
		t.Fatalf("monitor should be checked again once recorded, got %+v", third)
	}
	if p.callCount("a") != 2 {
		t.Fatalf("want 2 probes (no queued re-check), got %d", p.callCount("a"))
	}
	if p.maxActive != 1 {
		t.Fatalf("at most one probe per monitor may be in flight, saw %d", p.maxActive)
	}
}

func TestRunCycle_PoolExhaustionDefersChecks(t *testing.T) {
	p := newFakeProber()
	p.gate = make(chan struct{})
	monitors := []domain.Monitor{
		mon("a", time.Minute, true), mon("b", time.Minute, true),
		mon("c", time.Minute, true), mon("d", time.Minute, true),
	}
	core, logs := observer.New(zap.WarnLevel)
	s := build(t, monitors, p, metrics.Nop(), Config{Tick: 20 * time.Millisecond, MaxConcurrent: 1, QueueSize: 1})
	s.Logger = zap.New(core)
	withPool(t, s)
	defer close(p.gate)

	first := s.runCycle(context.Background())
	if first.Checked+first.Deferred != 4 || first.Deferred < 2 {
		t.Fatalf("want at most two accepted and the rest deferred, got %+v", first)
	}
	if s.InFlight() != first.Checked {
		t.Fatalf("deferred monitors must not stay in flight: in-flight=%d checked=%d", s.InFlight(), first.Checked)
	}
	if n := logs.FilterMessage("scheduler_pool_exhausted").Len(); n != first.Deferred {
		t.Fatalf("want %d exhaustion logs, got %d", first.Deferred, n)
	}

	second := s.runCycle(context.Background())
	if second.SkippedInFlight != first.Checked {
		t.Fatalf("accepted monitors should be skipped as in flight, got %+v", second)
	}
	if second.Checked+second.Deferred != 4-first.Checked {
		t.Fatalf("deferred monitors should be retried next cycle, got %+v", second)
	}
}

func TestRunCycle_ProberPanicBecomesOutcome(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := NewMockSink(ctrl)
	var got domain.CheckOutcome
	sink.EXPECT().Observe(gomock.Any()).Do(func(o domain.CheckOutcome) { got = o }).Return(nil)
	sink.EXPECT().ObserveCycle(gomock.Any()).Return(nil).AnyTimes()

	panicky := probe.ProberFunc(func(ctx context.Context, m domain.Monitor, timeout time.Duration) domain.CheckOutcome {
		panic("kaboom")
	})
	s := withPool(t, build(t, []domain.Monitor{mon("a", time.Minute, true)}, panicky, sink, Config{Tick: time.Second}))

	if sum := s.runCycle(context.Background()); sum.Checked != 1 || sum.Pending != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if got.Success || got.ErrorKind != domain.ErrorKindOther || got.MonitorID != "a" {
		t.Fatalf("want Other failure for panic, got %+v", got)
	}
	if s.State.ConsecutiveFailures("a") != 1 {
		t.Fatalf("panic outcome must be recorded")
	}
}

type panicSink struct{}

func (panicSink) Observe(domain.CheckOutcome) error         { panic("sink exploded") }
func (panicSink) ObserveTransition(domain.Transition) error { return nil }
func (panicSink) ObserveCycle(domain.CycleSummary) error    { return nil }

func TestRunCycle_SinkErrorsAreLoggedAndDropped(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := NewMockSink(ctrl)
	sink.EXPECT().Observe(gomock.Any()).Return(errors.New("exporter down"))
	sink.EXPECT().ObserveTransition(gomock.Any()).Return(errors.New("exporter down"))
	sink.EXPECT().ObserveCycle(gomock.Any()).Return(nil)

	core, logs := observer.New(zap.InfoLevel)
	s := build(t, []domain.Monitor{mon("a", time.Minute, true)}, newFakeProber(), sink, Config{Tick: time.Second})
	s.Logger = zap.New(core)
	withPool(t, s)

	s.runCycle(context.Background())
	if _, ok := s.State.Get("a"); !ok {
		t.Fatalf("state must be recorded even when the sink fails")
	}
	if n := logs.FilterMessage("metrics_observe_error").Len(); n != 2 {
		t.Fatalf("want 2 sink error logs, got %d", n)
	}
	if n := logs.FilterMessage("probe_completed").Len(); n != 1 {
		t.Fatalf("want one probe log line, got %d", n)
	}
	if n := logs.FilterMessage("cycle_completed").Len(); n != 1 {
		t.Fatalf("want one cycle summary line, got %d", n)
	}

	s2 := withPool(t, build(t, []domain.Monitor{mon("b", time.Minute, true)}, newFakeProber(), panicSink{}, Config{Tick: time.Second}))
	if sum := s2.runCycle(context.Background()); sum.Checked != 1 {
		t.Fatalf("panicking sink must not break the cycle: %+v", sum)
	}
	if _, ok := s2.State.Get("b"); !ok {
		t.Fatalf("state must be recorded even when the sink panics")
	}
}

func TestRunCycle_TransitionFiresOnceOnRecovery(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := NewMockSink(ctrl)
	sink.EXPECT().Observe(gomock.Any()).Return(nil).Times(5)
	sink.EXPECT().ObserveCycle(gomock.Any()).Return(nil).AnyTimes()
	var kinds []domain.TransitionKind
	sink.EXPECT().ObserveTransition(gomock.Any()).Do(func(tr domain.Transition) {
		kinds = append(kinds, tr.Kind)
	}).Return(nil).Times(1)

	p := newFakeProber()
	p.result = func(m domain.Monitor, call int) domain.CheckOutcome {
		if call <= 3 {
			return domain.CheckOutcome{MonitorID: m.ID, ErrorKind: domain.ErrorKindConnectionFailed}
		}
		return domain.CheckOutcome{MonitorID: m.ID, Success: true, StatusCode: domain.StatusCode(200)}
	}
	s := withPool(t, build(t, []domain.Monitor{mon("a", time.Millisecond, true)}, p, sink, Config{Tick: time.Second}))

	for i := 1; i <= 5; i++ {
		if sum := s.runCycle(context.Background()); sum.Checked != 1 {
			t.Fatalf("cycle %d: want one check, got %+v", i, sum)
		}
		switch i {
		case 3:
			if n := s.State.ConsecutiveFailures("a"); n != 3 {
				t.Fatalf("want 3 consecutive failures, got %d", n)
			}
		case 4:
			if n := s.State.ConsecutiveFailures("a"); n != 0 {
				t.Fatalf("want reset on first success, got %d", n)
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	if len(kinds) != 1 || kinds[0] != domain.TransitionRecovered {
		t.Fatalf("want a single recovered transition, got %v", kinds)
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRunCycle_OneMinuteIntervalWithTenSecondTick(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)}
	start := clock.Now()
	p := newFakeProber()
	s := build(t, []domain.Monitor{mon("a", time.Minute, true)}, p, metrics.Nop(), Config{Tick: 10 * time.Second})
	s.now = clock.Now
	withPool(t, s)

	var dispatched []time.Duration
	for step := 0; step <= 14; step++ {
		sum := s.runCycle(context.Background())
		if sum.Checked == 1 {
			dispatched = append(dispatched, clock.Now().Sub(start))
			if sum.NextSleep != time.Minute {
				t.Fatalf("after a check the next wake should be the due time, got %v", sum.NextSleep)
			}
		}
		clock.Advance(10 * time.Second)
	}

	want := []time.Duration{0, time.Minute, 2 * time.Minute}
	if fmt.Sprint(dispatched) != fmt.Sprint(want) {
		t.Fatalf("dispatch offsets %v, want %v", dispatched, want)
	}
	for i := 1; i < len(dispatched); i++ {
		gap := dispatched[i] - dispatched[i-1]
		if gap < time.Minute || gap > 70*time.Second {
			t.Fatalf("gap %v outside [60s, 70s]", gap)
		}
	}
}

func TestNextSleep(t *testing.T) {
	t0 := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	s := build(t, []domain.Monitor{mon("a", 5*time.Minute, true)}, newFakeProber(), nil, Config{Tick: 10 * time.Second})
	s.State.Record(domain.CheckOutcome{MonitorID: "a", Timestamp: t0, Success: true})

	monitors := []domain.Monitor{mon("a", 5*time.Minute, true), mon("off", time.Minute, false)}
	if got := s.nextSleep(monitors, t0.Add(time.Minute)); got != 4*time.Minute {
		t.Fatalf("want 4m, got %v", got)
	}
	if got := s.nextSleep(monitors, t0.Add(299*time.Second)); got != 10*time.Second {
		t.Fatalf("want one tick when due soon, got %v", got)
	}
	if got := s.nextSleep(append(monitors, mon("new", time.Hour, true)), t0); got != 10*time.Second {
		t.Fatalf("never-checked monitor should pin sleep to a tick, got %v", got)
	}
	if got := s.nextSleep(nil, t0); got != 10*time.Second {
		t.Fatalf("empty set should sleep one tick, got %v", got)
	}
}

func TestRun_HealthAndStop(t *testing.T) {
	p := newFakeProber()
	s := build(t, []domain.Monitor{mon("a", time.Minute, true)}, p, metrics.Nop(), Config{Tick: 20 * time.Millisecond})
	if s.Healthy(time.Now()) {
		t.Fatalf("must not be healthy before the loop runs")
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	waitFor(t, "first cycle", func() bool { return s.Healthy(time.Now()) })
	if p.callCount("a") != 1 {
		t.Fatalf("first cycle should probe immediately, got %d calls", p.callCount("a"))
	}
	if err := s.Run(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("want ErrAlreadyStarted, got %v", err)
	}
	if last, ok := s.LastCycle(); !ok || last.NextSleep <= 0 {
		t.Fatalf("last cycle not reported: %+v %v", last, ok)
	}

	s.Wake()
	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}
	if s.Healthy(time.Now()) {
		t.Fatalf("stopped loop must not be healthy")
	}
}

func TestRun_ShutdownCancelsAfterGrace(t *testing.T) {
	p := newFakeProber()
	p.gate = make(chan struct{}) // never opened
	s := build(t, []domain.Monitor{mon("a", time.Minute, true)}, p, metrics.Nop(),
		Config{Tick: 20 * time.Millisecond, ShutdownGrace: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	waitFor(t, "probe to start", func() bool { return p.callCount("a") == 1 })

	cancel()
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after the grace period")
	}

	if st, ok := s.State.Get("a"); ok {
		t.Fatalf("cancelled probe must not be recorded, got %+v", st)
	}
	if p.callCount("a") != 1 {
		t.Fatalf("cancelled probe must not be retried, got %d calls", p.callCount("a"))
	}
	if s.InFlight() != 0 {
		t.Fatalf("claims must be released on shutdown, got %d", s.InFlight())
	}
}

func TestRun_ShutdownDropsQueuedChecks(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := NewMockSink(ctrl)
	sink.EXPECT().Observe(gomock.Any()).Times(0)
	sink.EXPECT().ObserveTransition(gomock.Any()).Times(0)
	sink.EXPECT().ObserveCycle(gomock.Any()).Return(nil).AnyTimes()

	p := newFakeProber()
	p.gate = make(chan struct{}) // never opened
	s := build(t, []domain.Monitor{
		mon("a", time.Minute, true),
		mon("b", time.Minute, true),
		mon("c", time.Minute, true),
	}, p, sink, Config{Tick: 20 * time.Millisecond, MaxConcurrent: 1, ShutdownGrace: 50 * time.Millisecond})
	core, logs := observer.New(zap.InfoLevel)
	s.Logger = zap.New(core)

	calls := func() int { return p.callCount("a") + p.callCount("b") + p.callCount("c") }
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	waitFor(t, "first probe to start", func() bool { return calls() == 1 })
	waitFor(t, "first cycle", func() bool { _, ok := s.LastCycle(); return ok })

	cancel()
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}

	if n := calls(); n != 1 {
		t.Fatalf("queued checks must not be probed after shutdown, got %d calls", n)
	}
	for _, id := range []domain.MonitorID{"a", "b", "c"} {
		if st, ok := s.State.Get(id); ok {
			t.Fatalf("%s: nothing should be recorded on shutdown, got %+v", id, st)
		}
	}
	if s.InFlight() != 0 {
		t.Fatalf("claims must be released on shutdown, got %d", s.InFlight())
	}
	stopped := logs.FilterMessage("scheduler_stopped").All()
	if len(stopped) != 1 {
		t.Fatalf("want one scheduler_stopped entry, got %d", len(stopped))
	}
	if got := stopped[0].ContextMap()["cancelled"]; got != int64(3) {
		t.Fatalf("want 3 cancelled checks, got %v", got)
	}
}
