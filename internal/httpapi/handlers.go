package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemon/internal/domain"
	"github.com/hamed0406/uptimemon/internal/promquery"
)

const statsTimeout = 5 * time.Second

type outcomeView struct {
	MonitorID  domain.MonitorID `json:"monitor_id,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
	Success    bool             `json:"success"`
	StatusCode *int             `json:"status_code,omitempty"`
	DurationMS float64          `json:"duration_ms"`
	ErrorKind  domain.ErrorKind `json:"error_kind,omitempty"`
	Message    string           `json:"message,omitempty"`
}

func viewOutcome(o domain.CheckOutcome) outcomeView {
	return outcomeView{
		MonitorID:  o.MonitorID,
		Timestamp:  o.Timestamp,
		Success:    o.Success,
		StatusCode: o.StatusCode,
		DurationMS: float64(o.Duration) / float64(time.Millisecond),
		ErrorKind:  o.ErrorKind,
		Message:    o.Message,
	}
}

type monitorView struct {
	ID                  domain.MonitorID `json:"id"`
	Name                string           `json:"name"`
	URL                 string           `json:"url"`
	IntervalMinutes     int              `json:"interval_minutes"`
	Enabled             bool             `json:"enabled"`
	Method              string           `json:"method"`
	Status              string           `json:"status"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	Checks              uint64           `json:"checks"`
	LastCheckedAt       *time.Time       `json:"last_checked_at,omitempty"`
	LastChangeAt        *time.Time       `json:"last_change_at,omitempty"`
	LastSuccessAt       *time.Time       `json:"last_success_at,omitempty"`
	Last                *outcomeView     `json:"last,omitempty"`
}

const (
	statusUp       = "up"
	statusDown     = "down"
	statusUnknown  = "unknown"
	statusDisabled = "disabled"
)

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Server) viewMonitor(m domain.Monitor) monitorView {
	v := monitorView{
		ID:              m.ID,
		Name:            m.Name,
		URL:             m.URL,
		IntervalMinutes: m.IntervalMinutes(),
		Enabled:         m.Enabled,
		Method:          m.Method,
		Status:          statusUnknown,
	}
	if !m.Enabled {
		v.Status = statusDisabled
	}
	st, ok := s.State.Get(m.ID)
	if !ok {
		return v
	}
	if m.Enabled {
		v.Status = statusDown
		if st.PreviousSuccess {
			v.Status = statusUp
		}
	}
	v.ConsecutiveFailures = st.ConsecutiveFailures
	v.Checks = st.Checks
	v.LastCheckedAt = timePtr(st.LastCheckedAt)
	v.LastChangeAt = timePtr(st.LastChangeAt)
	v.LastSuccessAt = timePtr(st.LastSuccessAt)
	if st.LastOutcome != nil {
		last := viewOutcome(*st.LastOutcome)
		last.MonitorID = ""
		v.Last = &last
	}
	return v
}

type summaryView struct {
	Total         int      `json:"total_monitors"`
	Online        int      `json:"online_monitors"`
	Offline       int      `json:"offline_monitors"`
	Unknown       int      `json:"unknown_monitors"`
	Disabled      int      `json:"disabled_monitors"`
	AvgResponseMS *float64 `json:"avg_response_ms"`
	Healthy       bool     `json:"healthy"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var (
		sum   summaryView
		total time.Duration
		n     int
	)
	for _, m := range s.Monitors.Snapshot() {
		v := s.viewMonitor(m)
		sum.Total++
		switch v.Status {
		case statusUp:
			sum.Online++
		case statusDown:
			sum.Offline++
		case statusDisabled:
			sum.Disabled++
		default:
			sum.Unknown++
		}
		if st, ok := s.State.Get(m.ID); ok && m.Enabled && st.LastOutcome != nil && st.LastOutcome.Success {
			total += st.LastOutcome.Duration
			n++
		}
	}
	if n > 0 {
		avg := float64(total) / float64(n) / float64(time.Millisecond)
		sum.AvgResponseMS = &avg
	}
	sum.Healthy = s.Live == nil || s.Live.Healthy(s.now())
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	monitors := s.Monitors.Snapshot()
	out := make([]monitorView, 0, len(monitors))
	for _, m := range monitors {
		out = append(out, s.viewMonitor(m))
	}
	writeJSON(w, http.StatusOK, out)
}

type detailView struct {
	Monitor    monitorView                `json:"monitor"`
	History    []outcomeView              `json:"history"`
	Windows    map[string]promquery.Stats `json:"windows,omitempty"`
	Graph      []promquery.Point          `json:"graph,omitempty"`
	StatsError string                     `json:"stats_error,omitempty"`
}

func (s *Server) handleMonitorDetail(w http.ResponseWriter, r *http.Request) {
	id := domain.MonitorID(chi.URLParam(r, "id"))
	m, ok := s.Monitors.Lookup(id)
	if !ok {
		notFound(w, r)
		return
	}

	out := detailView{Monitor: s.viewMonitor(m), History: []outcomeView{}}
	if s.History != nil {
		hist, err := s.History.Recent(r.Context(), id, s.HistoryLimit)
		if err != nil {
			s.Logger.Error("history_read_error", zap.String("monitor_id", string(id)), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, apiError{Message: "could not read history"})
			return
		}
		for _, o := range hist {
			v := viewOutcome(o)
			v.MonitorID = ""
			out.History = append(out.History, v)
		}
	}

	if s.Stats != nil {
		ctx, cancel := context.WithTimeout(r.Context(), statsTimeout)
		defer cancel()
		windows, err := s.Stats.Summary(ctx, id, promquery.DefaultWindows)
		out.Windows = windows
		if err == nil {
			out.Graph, err = s.Stats.ResponseSeries(ctx, id, 24*time.Hour, time.Hour)
		}
		if err != nil {
			s.Logger.Warn("promql_failed", zap.String("monitor_id", string(id)), zap.Error(err))
			out.StatsError = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		writeJSON(w, http.StatusOK, []outcomeView{})
		return
	}
	latest, err := s.History.Latest(r.Context())
	if err != nil {
		s.Logger.Error("history_read_error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, apiError{Message: "could not read history"})
		return
	}
	out := make([]outcomeView, 0, len(latest))
	for _, o := range latest {
		out = append(out, viewOutcome(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.Reload == nil {
		writeJSON(w, http.StatusNotImplemented, apiError{Message: "reload not configured"})
		return
	}
	n, err := s.Reload(r.Context())
	if err != nil {
		s.Logger.Warn("monitors_reload_failed", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, apiError{Message: err.Error()})
		return
	}
	s.Logger.Info("monitors_reloaded", zap.Int("monitors", n))
	writeJSON(w, http.StatusOK, map[string]int{"monitors": n})
}
