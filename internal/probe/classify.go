package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/hamed0406/uptimemon/internal/domain"
)

// Classify maps a transport error to an error kind. Order matters: an
// expired deadline wins over whatever the dial was doing at the time.
func Classify(err error) domain.ErrorKind {
	if err == nil {
		return domain.ErrorKindNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrorKindTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return domain.ErrorKindDNSFailure
	}
	if isTLSError(err) {
		return domain.ErrorKindTLSFailure
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return domain.ErrorKindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return domain.ErrorKindConnectionFailed
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return domain.ErrorKindConnectionFailed
	}
	return domain.ErrorKindOther
}

func isTLSError(err error) bool {
	var (
		verifyErr   *tls.CertificateVerificationError
		unknownCA   x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidErr  x509.CertificateInvalidError
		recordErr   tls.RecordHeaderError
		alertErr    tls.AlertError
	)
	switch {
	case errors.As(err, &verifyErr),
		errors.As(err, &unknownCA),
		errors.As(err, &hostnameErr),
		errors.As(err, &invalidErr),
		errors.As(err, &recordErr),
		errors.As(err, &alertErr):
		return true
	}
	// handshake failures are often plain errors prefixed "tls: "
	return strings.Contains(err.Error(), "tls: ")
}
