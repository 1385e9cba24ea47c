package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTick         = 10 * time.Second
	MinTick             = time.Second
	MaxTick             = 30 * time.Second
	DefaultProbeTimeout = 30 * time.Second
)

// Config holds process settings read from the environment.
// Monitors come from the settings file, see Load.
type Config struct {
	Addr        string
	MetricsAddr string
	LogDir      string
	LogLevel    string
	DatabaseURL string

	ProbeTimeout  time.Duration
	Tick          time.Duration
	MaxConcurrent int
	QueueSize     int
	ShutdownGrace time.Duration
	HistoryLimit  int

	PublicAPIKeys  []string
	AdminAPIKeys   []string
	PublicRPM      int
	PublicBurst    int
	AdminRPM       int
	AdminBurst     int
	AllowedOrigins []string

	PrometheusURL string
}

func FromEnv() Config {
	addr := getenv("ADDR", "")
	if addr == "" {
		addr = getenv("API_ADDR", ":3000")
	}
	return Config{
		Addr:        addr,
		MetricsAddr: getenv("METRICS_ADDR", ":3001"),
		LogDir:      getenv("LOG_DIR", ""),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		DatabaseURL: getenv("DATABASE_URL", ""),

		ProbeTimeout:  durationMS("HTTP_TIMEOUT_MS", DefaultProbeTimeout),
		Tick:          clampTick(durationMS("CHECK_INTERVAL_MS", DefaultTick)),
		MaxConcurrent: positiveInt("MAX_CONCURRENT_CHECKS", 10),
		QueueSize:     positiveInt("PROBE_QUEUE_SIZE", 256),
		ShutdownGrace: durationMS("SHUTDOWN_GRACE_MS", 5*time.Second),
		HistoryLimit:  positiveInt("HISTORY_LIMIT", 100),

		PublicAPIKeys:  list("PUBLIC_API_KEYS"),
		AdminAPIKeys:   list("ADMIN_API_KEYS"),
		PublicRPM:      positiveInt("PUBLIC_RPM", 120),
		PublicBurst:    positiveInt("PUBLIC_BURST", 60),
		AdminRPM:       positiveInt("ADMIN_RPM", 30),
		AdminBurst:     positiveInt("ADMIN_BURST", 10),
		AllowedOrigins: list("ALLOWED_ORIGINS"),

		PrometheusURL: getenv("PROMETHEUS_URL", ""),
	}
}

func clampTick(d time.Duration) time.Duration {
	if d < MinTick {
		return MinTick
	}
	if d > MaxTick {
		return MaxTick
	}
	return d
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func positiveInt(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, ""))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// durationMS reads a millisecond count; missing or non-positive values use def.
func durationMS(key string, def time.Duration) time.Duration {
	ms := positiveInt(key, 0)
	if ms == 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func list(key string) []string {
	raw := getenv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
