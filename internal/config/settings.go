package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/hamed0406/uptimemon/internal/domain"
)

var ErrNoMonitors = errors.New("no monitors configured")

// Settings is the validated content of the settings file.
type Settings struct {
	PrometheusURL string
	Monitors      []domain.Monitor
}

type rawMonitor struct {
	ID       string `toml:"id" yaml:"id"`
	Name     string `toml:"name" yaml:"name"`
	URL      string `toml:"url" yaml:"url"`
	Interval int    `toml:"interval" yaml:"interval"`
	Enabled  *bool  `toml:"enabled" yaml:"enabled"`
	Method   string `toml:"method" yaml:"method"`
}

type rawSettings struct {
	PrometheusURL string       `toml:"prometheus_url" yaml:"prometheus_url"`
	Monitors      []rawMonitor `toml:"monitors" yaml:"monitors"`
}

// Load reads and validates a settings file. The format follows the
// extension: .yaml/.yml is YAML, anything else is TOML.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	format := "toml"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	s, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates settings in the given format ("toml" or "yaml").
func Parse(data []byte, format string) (*Settings, error) {
	var raw rawSettings
	switch format {
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case "toml":
		md, err := toml.Decode(string(data), &raw)
		if err != nil {
			return nil, fmt.Errorf("decode toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return nil, fmt.Errorf("unknown settings: %s", strings.Join(keys, ", "))
		}
	default:
		return nil, fmt.Errorf("unsupported settings format %q", format)
	}
	return raw.validate()
}

// validate reports every problem at once so a broken file can be fixed in one pass.
func (r rawSettings) validate() (*Settings, error) {
	var errs error
	if r.PrometheusURL != "" && !isValidHTTPURL(r.PrometheusURL) {
		errs = multierr.Append(errs, fmt.Errorf("prometheus_url %q is not an absolute http(s) URL", r.PrometheusURL))
	}
	if len(r.Monitors) == 0 {
		errs = multierr.Append(errs, ErrNoMonitors)
	}

	seen := make(map[domain.MonitorID]int, len(r.Monitors))
	out := make([]domain.Monitor, 0, len(r.Monitors))
	for i, rm := range r.Monitors {
		where := fmt.Sprintf("monitors[%d]", i)
		if rm.Name != "" {
			where = fmt.Sprintf("monitors[%d] (%s)", i, rm.Name)
		}

		id := canonicalID(rm.ID)
		if id == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s: id is required", where))
		} else if first, dup := seen[id]; dup {
			errs = multierr.Append(errs, fmt.Errorf("%s: duplicate id %q (first used by monitors[%d])", where, id, first))
		} else {
			seen[id] = i
		}
		if strings.TrimSpace(rm.Name) == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s: name is required", where))
		}
		if !isValidHTTPURL(rm.URL) {
			errs = multierr.Append(errs, fmt.Errorf("%s: url %q is not an absolute http(s) URL", where, rm.URL))
		}
		if rm.Interval <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("%s: interval must be a positive number of minutes, got %d", where, rm.Interval))
		}
		if rm.Enabled == nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: enabled is required", where))
		}
		method := strings.ToUpper(strings.TrimSpace(rm.Method))
		switch method {
		case "":
			method = http.MethodGet
		case http.MethodGet, http.MethodHead:
		default:
			errs = multierr.Append(errs, fmt.Errorf("%s: unsupported method %q", where, rm.Method))
		}

		enabled := rm.Enabled != nil && *rm.Enabled
		out = append(out, domain.Monitor{
			ID:       id,
			Name:     strings.TrimSpace(rm.Name),
			URL:      strings.TrimSpace(rm.URL),
			Interval: time.Duration(rm.Interval) * time.Minute,
			Enabled:  enabled,
			Method:   method,
		})
	}
	if errs != nil {
		return nil, errs
	}
	return &Settings{PrometheusURL: strings.TrimRight(r.PrometheusURL, "/"), Monitors: out}, nil
}

// canonicalID lower-cases UUIDs so two spellings of one id collide.
func canonicalID(raw string) domain.MonitorID {
	raw = strings.TrimSpace(raw)
	if u, err := uuid.Parse(raw); err == nil {
		return domain.MonitorID(u.String())
	}
	return domain.MonitorID(raw)
}

func isValidHTTPURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" || u.Hostname() == "" {
		return false
	}
	s := strings.ToLower(u.Scheme)
	return s == "http" || s == "https"
}
