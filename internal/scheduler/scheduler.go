// Package scheduler decides which monitors are due and runs their probes
// on a bounded worker pool.
//
// Each cycle snapshots the registry, keeps enabled monitors that are due and
// not already being probed, and enqueues them. Completed probes are recorded
// in the state tracker and then handed to the sink. A monitor whose probe is
// still running when it becomes due again is skipped; it is evaluated again
// on the first tick after its outcome is recorded.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemon/internal/domain"
	"github.com/hamed0406/uptimemon/internal/metrics"
	"github.com/hamed0406/uptimemon/internal/probe"
	"github.com/hamed0406/uptimemon/internal/state"
)

var ErrAlreadyStarted = errors.New("scheduler already started")

// MonitorSource supplies the current monitor set, see registry.Registry.
type MonitorSource interface {
	Snapshot() []domain.Monitor
}

type Config struct {
	Tick          time.Duration
	ProbeTimeout  time.Duration
	MaxConcurrent int
	QueueSize     int
	ShutdownGrace time.Duration
}

type Scheduler struct {
	Logger   *zap.Logger
	Monitors MonitorSource
	State    *state.Tracker
	Prober   probe.Prober
	Sink     metrics.Sink

	cfg  Config
	now  func() time.Time
	pool *pool
	wake chan struct{}

	inflight  sync.Map // domain.MonitorID -> struct{}
	inflightN atomic.Int64

	mu      sync.Mutex
	started bool
	last    domain.CycleSummary

	running  atomic.Bool
	cycles   atomic.Int64
	nextWake atomic.Int64 // unix nanos

	stopping  atomic.Bool
	cancelled atomic.Int64
}

func New(
	logger *zap.Logger,
	monitors MonitorSource,
	tracker *state.Tracker,
	prober probe.Prober,
	sink metrics.Sink,
	cfg Config,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = metrics.Nop()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 10 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = probe.DefaultTimeout
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 256
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}
	s := &Scheduler{
		Logger:   logger,
		Monitors: monitors,
		State:    tracker,
		Prober:   prober,
		Sink:     sink,
		cfg:      cfg,
		now:      time.Now,
		wake:     make(chan struct{}, 1),
	}
	s.pool = newPool(cfg.MaxConcurrent, cfg.QueueSize, s.execute)
	return s
}

// Run drives the tick loop until ctx is cancelled. The first cycle starts
// immediately. On cancellation no new probes are dispatched and queued ones
// are dropped; running ones get ShutdownGrace to finish and are then
// cancelled. Dropped and cancelled checks are not recorded.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	probeCtx, cancelProbes := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelProbes()
	s.pool.start(probeCtx)

	s.running.Store(true)
	defer s.running.Store(false)

	s.Logger.Info("scheduler_started",
		zap.Duration("tick", s.cfg.Tick),
		zap.Duration("probe_timeout", s.cfg.ProbeTimeout),
		zap.Int("max_concurrent", s.cfg.MaxConcurrent),
		zap.Int("queue_size", s.cfg.QueueSize),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return s.shutdown(cancelProbes)
		case <-timer.C:
		case <-s.wake:
		}
		if ctx.Err() != nil {
			return s.shutdown(cancelProbes)
		}
		sum := s.runCycle(ctx)
		timer.Reset(sum.NextSleep)
	}
}

// Wake starts a cycle now instead of at the next scheduled wake time.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) shutdown(cancelProbes context.CancelFunc) error {
	s.Logger.Info("scheduler_stopping",
		zap.Int("in_flight", s.InFlight()),
		zap.Duration("grace", s.cfg.ShutdownGrace),
	)
	s.stopping.Store(true)
	s.pool.close()
	if s.pool.wait(s.cfg.ShutdownGrace) {
		s.Logger.Info("scheduler_stopped", zap.Int64("cancelled", s.cancelled.Load()))
		return nil
	}
	cancelProbes()
	s.pool.wait(0)
	s.Logger.Warn("scheduler_stopped",
		zap.Bool("probes_cancelled", true),
		zap.Int64("cancelled", s.cancelled.Load()),
	)
	return nil
}

func (s *Scheduler) runCycle(ctx context.Context) domain.CycleSummary {
	began := time.Now()
	now := s.now()
	sum := domain.CycleSummary{StartedAt: now}

	var (
		batch     sync.WaitGroup
		remaining atomic.Int64
	)
	monitors := s.Monitors.Snapshot()
	for _, m := range monitors {
		if !m.Schedulable() || !s.State.IsDue(m, now) {
			continue
		}
		if !s.claim(m.ID) {
			sum.SkippedInFlight++
			s.Logger.Debug("probe_skipped_in_flight", zap.String("monitor_id", string(m.ID)))
			continue
		}
		batch.Add(1)
		remaining.Add(1)
		j := job{monitor: m, dispatchedAt: now, done: func() {
			remaining.Add(-1)
			batch.Done()
		}}
		if !s.pool.trySubmit(j) {
			remaining.Add(-1)
			batch.Done()
			s.release(m.ID)
			sum.Deferred++
			s.Logger.Warn("scheduler_pool_exhausted",
				zap.String("monitor_id", string(m.ID)),
				zap.String("monitor", m.Name),
				zap.Int("queue_size", s.cfg.QueueSize),
			)
			continue
		}
		sum.Checked++
	}

	if sum.Checked > 0 {
		s.await(ctx, &batch, s.cfg.Tick)
	}
	sum.Pending = int(remaining.Load())
	sum.InFlight = s.InFlight()
	sum.Duration = time.Since(began)
	sum.NextSleep = s.nextSleep(monitors, s.now())

	s.mu.Lock()
	s.last = sum
	s.mu.Unlock()
	s.cycles.Add(1)
	s.nextWake.Store(time.Now().Add(sum.NextSleep).UnixNano())

	s.Logger.Info("cycle_completed",
		zap.Int("checked", sum.Checked),
		zap.Int("deferred", sum.Deferred),
		zap.Int("skipped_in_flight", sum.SkippedInFlight),
		zap.Int("pending", sum.Pending),
		zap.Duration("duration", sum.Duration),
		zap.Duration("next_sleep", sum.NextSleep),
	)
	s.observe("cycle", func() error { return s.Sink.ObserveCycle(sum) })
	return sum
}

// await waits for a cycle's probes, at most limit.
func (s *Scheduler) await(ctx context.Context, batch *sync.WaitGroup, limit time.Duration) {
	done := make(chan struct{})
	go func() {
		batch.Wait()
		close(done)
	}()
	t := time.NewTimer(limit)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
	case <-ctx.Done():
	}
}

// nextSleep is one tick, or longer when every monitor is known to be due
// later than that.
func (s *Scheduler) nextSleep(monitors []domain.Monitor, now time.Time) time.Duration {
	var earliest time.Time
	for _, m := range monitors {
		if !m.Schedulable() {
			continue
		}
		if s.isInFlight(m.ID) {
			return s.cfg.Tick
		}
		next, ok := s.State.NextDue(m)
		if !ok {
			return s.cfg.Tick
		}
		if earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}
	if earliest.IsZero() {
		return s.cfg.Tick
	}
	if d := earliest.Sub(now); d > s.cfg.Tick {
		return d
	}
	return s.cfg.Tick
}

// execute runs on a pool worker. The in-flight claim is released only after
// the outcome is recorded, so the due filter never sees a stale state.
// ctx is only cancelled when the shutdown grace runs out.
func (s *Scheduler) execute(ctx context.Context, j job) {
	defer j.done()
	defer s.release(j.monitor.ID)

	if s.stopping.Load() {
		s.cancelled.Add(1)
		s.Logger.Debug("probe_dropped", zap.String("monitor_id", string(j.monitor.ID)))
		return
	}
	out := s.safeProbe(ctx, j.monitor)
	if ctx.Err() != nil {
		// cut off by shutdown, not an endpoint result
		s.cancelled.Add(1)
		s.Logger.Info("probe_cancelled",
			zap.String("monitor_id", string(j.monitor.ID)),
			zap.Duration("duration", out.Duration),
		)
		return
	}
	out.MonitorID = j.monitor.ID
	out.Timestamp = j.dispatchedAt
	s.complete(j.monitor, out)
}

func (s *Scheduler) safeProbe(ctx context.Context, m domain.Monitor) (out domain.CheckOutcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			id := uuid.NewString()
			s.Logger.Error("probe_panic",
				zap.String("correlation_id", id),
				zap.String("monitor_id", string(m.ID)),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			out = domain.CheckOutcome{
				MonitorID: m.ID,
				Duration:  time.Since(start),
				ErrorKind: domain.ErrorKindOther,
				Message:   fmt.Sprintf("probe panicked (correlation_id=%s)", id),
			}
		}
	}()
	return s.Prober.Probe(ctx, m, s.cfg.ProbeTimeout)
}

func (s *Scheduler) complete(m domain.Monitor, out domain.CheckOutcome) {
	tr := s.State.Record(out)

	s.Logger.Info("probe_completed",
		zap.String("monitor", m.Name),
		zap.String("monitor_id", string(m.ID)),
		zap.Bool("success", out.Success),
		zap.Int("status", out.Status()),
		zap.Duration("duration", out.Duration),
		zap.String("error_kind", string(out.ErrorKind)),
		zap.String("message", out.Message),
	)
	s.observe("outcome", func() error { return s.Sink.Observe(out) })

	if tr == nil {
		return
	}
	s.Logger.Info("monitor_transition",
		zap.String("monitor", m.Name),
		zap.String("monitor_id", string(m.ID)),
		zap.String("transition", string(tr.Kind)),
		zap.Int("consecutive_failures", tr.ConsecutiveFailures),
	)
	s.observe("transition", func() error { return s.Sink.ObserveTransition(*tr) })
}

// observe calls the sink. Errors and panics are logged and dropped.
func (s *Scheduler) observe(what string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("metrics_observe_panic", zap.String("what", what), zap.Any("panic", r))
		}
	}()
	if err := fn(); err != nil {
		s.Logger.Warn("metrics_observe_error", zap.String("what", what), zap.Error(err))
	}
}

func (s *Scheduler) claim(id domain.MonitorID) bool {
	if _, loaded := s.inflight.LoadOrStore(id, struct{}{}); loaded {
		return false
	}
	s.inflightN.Add(1)
	return true
}

func (s *Scheduler) release(id domain.MonitorID) {
	if _, ok := s.inflight.LoadAndDelete(id); ok {
		s.inflightN.Add(-1)
	}
}

func (s *Scheduler) isInFlight(id domain.MonitorID) bool {
	_, ok := s.inflight.Load(id)
	return ok
}

// InFlight counts monitors whose probe is queued or running.
func (s *Scheduler) InFlight() int { return int(s.inflightN.Load()) }

// Healthy reports whether the loop is running, has finished a cycle, and
// has not overslept its next wake by more than two ticks.
func (s *Scheduler) Healthy(now time.Time) bool {
	if !s.running.Load() || s.cycles.Load() == 0 {
		return false
	}
	deadline := time.Unix(0, s.nextWake.Load()).Add(2 * s.cfg.Tick)
	return now.Before(deadline)
}

// LastCycle returns the most recent cycle summary.
func (s *Scheduler) LastCycle() (domain.CycleSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.cycles.Load() > 0
}
