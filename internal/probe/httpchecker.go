package probe

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemon/internal/domain"
)

const (
	DefaultTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 20
	dnsDiagTimeout = 3 * time.Second
)

// HTTPProber issues one request per check. The success range is 2xx and 3xx.
type HTTPProber struct {
	Client    *http.Client
	Logger    *zap.Logger
	UserAgent string
	// DiagnoseDNS adds a resolver class (see CheckDNS) to DNS failures.
	DiagnoseDNS bool
	Resolver    *net.Resolver
}

var _ Prober = (*HTTPProber)(nil)

func NewHTTPProber(logger *zap.Logger, userAgent string) *HTTPProber {
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     60 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &HTTPProber{
		// no client-level Timeout: each probe carries its own deadline
		Client:      &http.Client{Transport: transport},
		Logger:      logger,
		UserAgent:   userAgent,
		DiagnoseDNS: true,
		Resolver:    net.DefaultResolver,
	}
}

func (p *HTTPProber) Probe(ctx context.Context, m domain.Monitor, timeout time.Duration) domain.CheckOutcome {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	start := time.Now()
	out := domain.CheckOutcome{MonitorID: m.ID, Timestamp: start.UTC()}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := m.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, m.URL, nil)
	if err != nil {
		out.Duration = time.Since(start)
		out.ErrorKind = domain.ErrorKindOther
		out.Message = err.Error()
		return out
	}
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		out.Duration = time.Since(start)
		return p.failed(ctx, m, out, err)
	}
	_, err = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	resp.Body.Close()
	out.Duration = time.Since(start)
	if err != nil {
		// the exchange did not complete, so no status is reported
		return p.failed(ctx, m, out, err)
	}

	out.StatusCode = domain.StatusCode(resp.StatusCode)
	out.Success = resp.StatusCode >= 200 && resp.StatusCode < 400
	out.Message = resp.Status
	return out
}

func (p *HTTPProber) failed(ctx context.Context, m domain.Monitor, out domain.CheckOutcome, err error) domain.CheckOutcome {
	out.Success = false
	out.ErrorKind = Classify(err)
	out.Message = err.Error()
	if out.ErrorKind != domain.ErrorKindDNSFailure || !p.DiagnoseDNS {
		return out
	}

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dnsDiagTimeout)
	defer cancel()
	dns := CheckDNS(dctx, p.Resolver, extractHost(m.URL))
	out.Message += " dns=" + dns.Class
	p.Logger.Info("dns_diagnosis",
		zap.String("monitor_id", string(m.ID)),
		zap.String("domain", dns.Domain),
		zap.String("class", dns.Class),
		zap.Bool("has_a_or_aaaa", dns.HasAOrAAAA),
		zap.Strings("nameservers", dns.Nameservers),
		zap.String("cname", dns.CNAME),
		zap.String("resolver_error", dns.ResolverError),
	)
	return out
}

func extractHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}
