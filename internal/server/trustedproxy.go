package server

import (
	"net"
	"net/http"
	"strings"
)

// TrustedProxies decides when forwarded headers are believable. Only
// connections arriving from a listed CIDR get their X-Forwarded-For or
// X-Real-IP honored; everyone else is identified by the socket address.
type TrustedProxies struct {
	networks []*net.IPNet
}

// NewTrustedProxies creates a TrustedProxies from a list of CIDR strings.
// Bare IPs are accepted as /32 or /128. Invalid entries are ignored.
func NewTrustedProxies(cidrs []string) *TrustedProxies {
	tp := &TrustedProxies{}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			ip := net.ParseIP(cidr)
			if ip == nil {
				continue
			}
			if ip.To4() != nil {
				_, network, _ = net.ParseCIDR(ip.String() + "/32")
			} else {
				_, network, _ = net.ParseCIDR(ip.String() + "/128")
			}
		}
		if network != nil {
			tp.networks = append(tp.networks, network)
		}
	}
	return tp
}

// IsTrusted returns true if the IP is within any trusted proxy range.
func (tp *TrustedProxies) IsTrusted(ip net.IP) bool {
	for _, network := range tp.networks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP resolves the client IP for a request. Forwarded headers are
// only consulted when the direct peer is a trusted proxy.
func (tp *TrustedProxies) ClientIP(r *http.Request) net.IP {
	directIP := parseRemoteAddr(r.RemoteAddr)
	if directIP == nil || !tp.IsTrusted(directIP) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// "client, proxy1, proxy2": the first entry is the origin.
		for _, part := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
			return ip
		}
	}

	return directIP
}

// ClientIPString returns the client IP as a string for logging and rate
// limit keys.
func (tp *TrustedProxies) ClientIPString(r *http.Request) string {
	ip := tp.ClientIP(r)
	if ip == nil {
		return "unknown"
	}
	return ip.String()
}

// parseRemoteAddr extracts the IP from net/http RemoteAddr format.
func parseRemoteAddr(addr string) net.IP {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.ParseIP(addr)
	}
	return net.ParseIP(host)
}
