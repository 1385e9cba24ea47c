// Package promquery reads uptime and response-time aggregates back from the
// Prometheus server that scrapes this daemon.
package promquery

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemon/internal/domain"
)

type Window struct {
	Label string
	Range time.Duration
}

var DefaultWindows = []Window{
	{Label: "24h", Range: 24 * time.Hour},
	{Label: "7d", Range: 7 * 24 * time.Hour},
	{Label: "30d", Range: 30 * 24 * time.Hour},
}

// Stats holds one window's aggregates. Nil means Prometheus had no data.
type Stats struct {
	UptimePercent *float64 `json:"uptime_percent"`
	AvgResponseMS *float64 `json:"avg_response_ms"`
}

type Point struct {
	At     time.Time `json:"at"`
	Millis float64   `json:"ms"`
}

type Client struct {
	api v1.API
	log *zap.Logger
	now func() time.Time
}

func New(address string, logger *zap.Logger) (*Client, error) {
	c, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("prometheus client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{api: v1.NewAPI(c), log: logger, now: time.Now}, nil
}

func UptimeQuery(id domain.MonitorID, window time.Duration) string {
	w := model.Duration(window).String()
	return fmt.Sprintf(
		`sum(increase(http_monitor_requests_total{monitor_id=%q,status="success"}[%s])) / sum(increase(http_monitor_requests_total{monitor_id=%q}[%s])) * 100`,
		string(id), w, string(id), w)
}

func AvgResponseQuery(id domain.MonitorID, window time.Duration) string {
	w := model.Duration(window).String()
	return fmt.Sprintf(
		`sum(increase(http_monitor_response_time_seconds_sum{monitor_id=%q}[%s])) / sum(increase(http_monitor_response_time_seconds_count{monitor_id=%q}[%s])) * 1000`,
		string(id), w, string(id), w)
}

// Uptime is the percentage of successful checks over window. ok is false
// when Prometheus has no samples for the monitor.
func (c *Client) Uptime(ctx context.Context, id domain.MonitorID, window time.Duration) (float64, bool, error) {
	return c.scalar(ctx, UptimeQuery(id, window))
}

// AvgResponse is the mean response time over window in milliseconds.
func (c *Client) AvgResponse(ctx context.Context, id domain.MonitorID, window time.Duration) (float64, bool, error) {
	return c.scalar(ctx, AvgResponseQuery(id, window))
}

// Summary evaluates every window. Failed queries leave their field nil and
// are returned together.
func (c *Client) Summary(ctx context.Context, id domain.MonitorID, windows []Window) (map[string]Stats, error) {
	out := make(map[string]Stats, len(windows))
	var errs error
	for _, w := range windows {
		var st Stats
		if v, ok, err := c.Uptime(ctx, id, w.Range); err != nil {
			errs = multierr.Append(errs, err)
		} else if ok {
			st.UptimePercent = &v
		}
		if v, ok, err := c.AvgResponse(ctx, id, w.Range); err != nil {
			errs = multierr.Append(errs, err)
		} else if ok {
			st.AvgResponseMS = &v
		}
		out[w.Label] = st
	}
	return out, errs
}

// ResponseSeries returns the 5m-rate mean response time over the last span,
// one point per step.
func (c *Client) ResponseSeries(ctx context.Context, id domain.MonitorID, span, step time.Duration) ([]Point, error) {
	q := fmt.Sprintf(
		`rate(http_monitor_response_time_seconds_sum{monitor_id=%q}[5m]) / rate(http_monitor_response_time_seconds_count{monitor_id=%q}[5m]) * 1000`,
		string(id), string(id))
	end := c.now()
	val, warnings, err := c.api.QueryRange(ctx, q, v1.Range{Start: end.Add(-span), End: end, Step: step})
	if err != nil {
		return nil, fmt.Errorf("query_range %q: %w", q, err)
	}
	c.warn(q, warnings)
	m, ok := val.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("query_range %q: unexpected result type %s", q, val.Type())
	}
	var out []Point
	for _, series := range m {
		for _, sp := range series.Values {
			v := float64(sp.Value)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			out = append(out, Point{At: sp.Timestamp.Time().UTC(), Millis: v})
		}
	}
	return out, nil
}

func (c *Client) scalar(ctx context.Context, q string) (float64, bool, error) {
	start := time.Now()
	val, warnings, err := c.api.Query(ctx, q, c.now())
	if err != nil {
		return 0, false, fmt.Errorf("query %q: %w", q, err)
	}
	c.warn(q, warnings)
	c.log.Debug("promql_query", zap.String("query", q), zap.Duration("took", time.Since(start)))

	vec, ok := val.(model.Vector)
	if !ok {
		return 0, false, fmt.Errorf("query %q: unexpected result type %s", q, val.Type())
	}
	if len(vec) == 0 {
		return 0, false, nil
	}
	v := float64(vec[0].Value)
	// 0/0 when the window holds no checks
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, nil
	}
	return v, true, nil
}

func (c *Client) warn(q string, warnings v1.Warnings) {
	for _, w := range warnings {
		c.log.Warn("promql_warning", zap.String("query", q), zap.String("warning", w))
	}
}
