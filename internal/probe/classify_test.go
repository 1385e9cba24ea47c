package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"

	"github.com/hamed0406/uptimemon/internal/domain"
)

func TestClassify(t *testing.T) {
	wrap := func(err error) error {
		return &url.Error{Op: "Get", URL: "http://x", Err: err}
	}
	cases := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{"nil", nil, domain.ErrorKindNone},
		{"deadline", wrap(context.DeadlineExceeded), domain.ErrorKindTimeout},
		{"dns", wrap(&net.OpError{Op: "dial", Err: &net.DNSError{Err: "no such host", Name: "x", IsNotFound: true}}), domain.ErrorKindDNSFailure},
		{"refused", wrap(&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}), domain.ErrorKindConnectionFailed},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), domain.ErrorKindConnectionFailed},
		{"tls text", errors.New("remote error: tls: handshake failure"), domain.ErrorKindTLSFailure},
		{"other", errors.New("something odd"), domain.ErrorKindOther},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Fatalf("%s: Classify=%q want %q", c.name, got, c.want)
		}
	}
}

func TestCheckDNS_ShortCircuits(t *testing.T) {
	if s := CheckDNS(context.Background(), nil, ""); s.Class != DNSInvalidName {
		t.Fatalf("want INVALID_NAME, got %s", s.Class)
	}
	if s := CheckDNS(context.Background(), nil, "https://example.com"); s.Class != DNSInvalidName {
		t.Fatalf("want INVALID_NAME for URL input, got %s", s.Class)
	}
	if s := CheckDNS(context.Background(), nil, "127.0.0.1"); s.Class != DNSIPLiteral || !s.HasAOrAAAA {
		t.Fatalf("want IP_LITERAL, got %+v", s)
	}
}
