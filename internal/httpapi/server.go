package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemon/internal/domain"
	apimw "github.com/hamed0406/uptimemon/internal/httpapi/middleware"
	"github.com/hamed0406/uptimemon/internal/promquery"
	"github.com/hamed0406/uptimemon/internal/registry"
	"github.com/hamed0406/uptimemon/internal/repo"
	"github.com/hamed0406/uptimemon/internal/state"
)

// Liveness is satisfied by the scheduler.
type Liveness interface {
	Healthy(now time.Time) bool
}

// StatsSource answers windowed aggregates, see promquery.Client.
type StatsSource interface {
	Summary(ctx context.Context, id domain.MonitorID, windows []promquery.Window) (map[string]promquery.Stats, error)
	ResponseSeries(ctx context.Context, id domain.MonitorID, span, step time.Duration) ([]promquery.Point, error)
}

// ReloadFunc re-reads the monitor configuration and returns the new count.
type ReloadFunc func(ctx context.Context) (int, error)

type Server struct {
	Logger   *zap.Logger
	Monitors *registry.Registry
	State    *state.Tracker
	History  repo.OutcomeStore
	Live     Liveness

	// Optional.
	Stats        StatsSource
	Reload       ReloadFunc
	Metrics      http.Handler
	HistoryLimit int

	now func() time.Time
}

func NewServer(l *zap.Logger, reg *registry.Registry, tracker *state.Tracker, history repo.OutcomeStore, live Liveness) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{
		Logger:       l,
		Monitors:     reg,
		State:        tracker,
		History:      history,
		Live:         live,
		HistoryLimit: 20,
		now:          time.Now,
	}
}

// Router builds the main listener. Public routes need any configured key,
// admin routes an admin key; each group has its own per-IP rate limit.
func (s *Server) Router(keys apimw.Keys, origins []string, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, s.accessLog, chimw.Recoverer)
	if len(origins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(pubRPM, pubBurst), apimw.RequireAny(keys))
		r.Get("/", s.handleSummary)
		r.Get("/api/summary", s.handleSummary)
		r.Get("/api/monitors", s.handleListMonitors)
		r.Get("/api/monitors/{id}", s.handleMonitorDetail)
		r.Get("/monitor/{id}", s.handleMonitorDetail)
		r.Get("/api/results/latest", s.handleLatest)
	})

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(admRPM, admBurst), apimw.RequireAdmin(keys))
		r.Post("/api/admin/reload", s.handleReload)
	})

	r.NotFound(notFound)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, apiError{Message: "Method not allowed"})
	})
	return r
}

// MetricsRouter serves the exposition endpoint on its own listener.
func (s *Server) MetricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}
	r.NotFound(notFound)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.Live != nil && !s.Live.Healthy(s.now()) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unhealthy"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.Logger.Debug("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(start)),
			zap.String("remote", r.RemoteAddr),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

type apiError struct {
	Message string `json:"message"`
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, apiError{Message: "Resource not found"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
