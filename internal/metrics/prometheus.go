package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hamed0406/uptimemon/internal/domain"
)

var (
	monitorLabels = []string{"monitor_id", "monitor_name", "monitor_url", "interval_minutes"}

	// ResponseTimeBuckets are in seconds.
	ResponseTimeBuckets = []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 20, 30}
)

// FailureReader exposes consecutive failure counts, see state.Tracker.
type FailureReader interface {
	ConsecutiveFailures(id domain.MonitorID) int
}

// Prometheus is a Sink backed by its own registry.
type Prometheus struct {
	reg *prometheus.Registry

	mu       sync.RWMutex
	monitors map[domain.MonitorID]domain.Monitor

	up          *prometheus.GaugeVec
	requests    *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	transitions *prometheus.CounterVec

	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	deferred      prometheus.Counter
	inFlight      prometheus.Gauge
}

var _ Sink = (*Prometheus)(nil)

// NewPrometheus builds the sink. failures may be nil; when set it backs the
// http_monitor_consecutive_failures gauge.
func NewPrometheus(app string, failures FailureReader) *Prometheus {
	p := &Prometheus{
		reg:      prometheus.NewRegistry(),
		monitors: make(map[domain.MonitorID]domain.Monitor),

		up: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_monitor_up",
			Help: "Whether the last check succeeded (1) or failed (0).",
		}, monitorLabels),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_monitor_requests_total",
			Help: "Completed checks by outcome.",
		}, withLabels("status")),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_monitor_failures_total",
			Help: "Failed checks by error type and HTTP status.",
		}, withLabels("error_type", "status_code")),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_monitor_response_time_seconds",
			Help:    "Check duration from dispatch to completion or timeout.",
			Buckets: ResponseTimeBuckets,
		}, monitorLabels),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_monitor_last_success_timestamp",
			Help: "Unix time of the last successful check.",
		}, monitorLabels),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_monitor_state_transitions_total",
			Help: "Changes between success and failure.",
		}, withLabels("transition")),

		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_scheduler_cycles_total",
			Help: "Completed scheduling cycles.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "monitor_scheduler_cycle_duration_seconds",
			Help:    "Time from selecting due monitors to the end of the await phase.",
			Buckets: prometheus.DefBuckets,
		}),
		deferred: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_scheduler_deferred_total",
			Help: "Checks pushed to a later cycle because the probe queue was full.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_scheduler_in_flight",
			Help: "Probes currently running or queued.",
		}),
	}

	r := prometheus.WrapRegistererWith(prometheus.Labels{"app": app}, p.reg)
	r.MustRegister(
		p.up, p.requests, p.failures, p.duration, p.lastSuccess, p.transitions,
		p.cycles, p.cycleDuration, p.deferred, p.inFlight,
	)
	if failures != nil {
		r.MustRegister(&failureCollector{p: p, src: failures, desc: prometheus.NewDesc(
			"http_monitor_consecutive_failures",
			"Consecutive failed checks since the last success.",
			monitorLabels, nil,
		)})
	}
	p.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func withLabels(extra ...string) []string {
	out := make([]string, 0, len(monitorLabels)+len(extra))
	out = append(out, monitorLabels...)
	return append(out, extra...)
}

func labelValues(m domain.Monitor, extra ...string) []string {
	out := []string{string(m.ID), m.Name, m.URL, strconv.Itoa(m.IntervalMinutes())}
	return append(out, extra...)
}

// Register sets the monitors the sink accepts outcomes for. Series of
// monitors that are no longer present are removed. The write lock is held
// until the deletes are done, so an outcome observed concurrently cannot
// bring back a series under the old labels.
func (p *Prometheus) Register(monitors []domain.Monitor) {
	next := make(map[domain.MonitorID]domain.Monitor, len(monitors))
	for _, m := range monitors {
		next[m.ID] = m
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.monitors
	p.monitors = next

	for id, old := range prev {
		if cur, ok := next[id]; ok && cur == old {
			continue
		}
		match := prometheus.Labels{"monitor_id": string(id)}
		p.up.DeletePartialMatch(match)
		p.requests.DeletePartialMatch(match)
		p.failures.DeletePartialMatch(match)
		p.duration.DeletePartialMatch(match)
		p.lastSuccess.DeletePartialMatch(match)
		p.transitions.DeletePartialMatch(match)
	}
	for _, m := range monitors {
		// zero-valued counters make increase() work from the first sample
		p.requests.WithLabelValues(labelValues(m, "success")...)
		p.requests.WithLabelValues(labelValues(m, "failure")...)
	}
}

// monitor must be called with p.mu held.
func (p *Prometheus) monitor(id domain.MonitorID) (domain.Monitor, error) {
	m, ok := p.monitors[id]
	if !ok {
		return domain.Monitor{}, fmt.Errorf("%w: %s", ErrUnknownMonitor, id)
	}
	return m, nil
}

func (p *Prometheus) Observe(o domain.CheckOutcome) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, err := p.monitor(o.MonitorID)
	if err != nil {
		return err
	}
	lv := labelValues(m)

	up, err := p.up.GetMetricWithLabelValues(lv...)
	if err != nil {
		return fmt.Errorf("up gauge: %w", err)
	}
	status := "failure"
	if o.Success {
		status = "success"
	}
	req, err := p.requests.GetMetricWithLabelValues(labelValues(m, status)...)
	if err != nil {
		return fmt.Errorf("requests counter: %w", err)
	}
	hist, err := p.duration.GetMetricWithLabelValues(lv...)
	if err != nil {
		return fmt.Errorf("duration histogram: %w", err)
	}

	req.Inc()
	hist.Observe(o.Duration.Seconds())
	if o.Success {
		up.Set(1)
		p.lastSuccess.WithLabelValues(lv...).Set(float64(o.Timestamp.Unix()))
		return nil
	}
	up.Set(0)
	code := "none"
	if o.StatusCode != nil {
		code = strconv.Itoa(*o.StatusCode)
	}
	p.failures.WithLabelValues(labelValues(m, o.FailureClass(), code)...).Inc()
	return nil
}

func (p *Prometheus) ObserveTransition(t domain.Transition) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, err := p.monitor(t.MonitorID)
	if err != nil {
		return err
	}
	c, err := p.transitions.GetMetricWithLabelValues(labelValues(m, string(t.Kind))...)
	if err != nil {
		return fmt.Errorf("transitions counter: %w", err)
	}
	c.Inc()
	return nil
}

func (p *Prometheus) ObserveCycle(c domain.CycleSummary) error {
	p.cycles.Inc()
	p.cycleDuration.Observe(c.Duration.Seconds())
	p.deferred.Add(float64(c.Deferred))
	p.inFlight.Set(float64(c.InFlight))
	return nil
}

// Handler serves the registry in the text exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

func (p *Prometheus) Gatherer() prometheus.Gatherer { return p.reg }

type failureCollector struct {
	p    *Prometheus
	src  FailureReader
	desc *prometheus.Desc
}

func (c *failureCollector) Describe(ch chan<- *prometheus.Desc) { ch <- c.desc }

func (c *failureCollector) Collect(ch chan<- prometheus.Metric) {
	c.p.mu.RLock()
	monitors := make([]domain.Monitor, 0, len(c.p.monitors))
	for _, m := range c.p.monitors {
		monitors = append(monitors, m)
	}
	c.p.mu.RUnlock()

	for _, m := range monitors {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue,
			float64(c.src.ConsecutiveFailures(m.ID)), labelValues(m)...)
	}
}
