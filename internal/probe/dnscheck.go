package probe

import (
	"context"
	"errors"
	"net"
	"strings"
)

const (
	DNSResolves    = "RESOLVES"
	DNSNXDomain    = "NXDOMAIN"
	DNSNoARecord   = "NO_A_RECORD"
	DNSServFail    = "SERVFAIL_or_TIMEOUT"
	DNSInvalidName = "INVALID_NAME"
	DNSIPLiteral   = "IP_LITERAL"
)

// DNSStatus explains why a host did or did not resolve.
type DNSStatus struct {
	Domain        string
	HasAOrAAAA    bool
	IPs           []net.IP
	CNAME         string
	HasNS         bool
	Nameservers   []string
	Class         string
	ResolverError string
}

// CheckDNS looks up A/AAAA, CNAME and NS records for host. A domain with
// nameservers but no address is NO_A_RECORD rather than NXDOMAIN.
func CheckDNS(ctx context.Context, r *net.Resolver, host string) DNSStatus {
	s := DNSStatus{Domain: strings.TrimSpace(host)}
	if s.Domain == "" || strings.Contains(s.Domain, "://") || strings.ContainsAny(s.Domain, " /") {
		s.Class = DNSInvalidName
		return s
	}
	if ip := net.ParseIP(s.Domain); ip != nil {
		s.Class = DNSIPLiteral
		s.HasAOrAAAA = true
		s.IPs = []net.IP{ip}
		return s
	}
	if r == nil {
		r = net.DefaultResolver
	}

	ips, err := r.LookupIP(ctx, "ip", s.Domain)
	switch {
	case err == nil && len(ips) > 0:
		s.HasAOrAAAA = true
		s.IPs = ips
	case err != nil:
		s.ResolverError = err.Error()
		var de *net.DNSError
		if errors.As(err, &de) {
			switch {
			case de.IsNotFound:
				s.Class = DNSNXDomain
			case de.IsTemporary || de.Timeout():
				s.Class = DNSServFail
			}
		}
	}

	if cname, err := r.LookupCNAME(ctx, s.Domain); err == nil && !strings.EqualFold(cname, s.Domain+".") {
		s.CNAME = strings.TrimSuffix(cname, ".")
	}
	if ns, err := r.LookupNS(ctx, s.Domain); err == nil && len(ns) > 0 {
		s.HasNS = true
		for _, n := range ns {
			s.Nameservers = append(s.Nameservers, strings.TrimSuffix(n.Host, "."))
		}
	}

	switch {
	case s.HasAOrAAAA:
		s.Class = DNSResolves
	case s.HasNS:
		s.Class = DNSNoARecord
	case s.Class != "":
	case s.ResolverError != "":
		s.Class = DNSServFail
	default:
		s.Class = DNSNXDomain
	}
	return s
}
