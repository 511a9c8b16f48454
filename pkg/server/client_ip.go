package server

import (
	"net"
	"net/http"
	"strings"
)

// proxyMatcher answers whether an address belongs to a trusted proxy.
// Entries may be single IPs or CIDR blocks.
type proxyMatcher struct {
	nets []*net.IPNet
	ips  []net.IP
}

func newProxyMatcher(proxies []string) *proxyMatcher {
	m := &proxyMatcher{}
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.Contains(p, "/") {
			if _, ipnet, err := net.ParseCIDR(p); err == nil {
				m.nets = append(m.nets, ipnet)
			}
			continue
		}
		if ip := net.ParseIP(p); ip != nil {
			m.ips = append(m.ips, ip)
		}
	}
	return m
}

func (m *proxyMatcher) empty() bool {
	return m == nil || (len(m.nets) == 0 && len(m.ips) == 0)
}

func (m *proxyMatcher) trusted(addr string) bool {
	if m.empty() {
		return false
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, known := range m.ips {
		if known.Equal(ip) {
			return true
		}
	}
	for _, n := range m.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// clientIP resolves the client address for a request. RemoteAddr wins
// unless it belongs to a trusted proxy, in which case the X-Forwarded-For
// chain is walked right to left past the trusted hops. Forwarding headers
// from untrusted peers are ignored; they are trivially spoofable.
func clientIP(r *http.Request, proxies *proxyMatcher) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !proxies.trusted(host) {
		return host
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return host
	}

	parts := strings.Split(xff, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		candidate := strings.TrimSpace(parts[i])
		if candidate == "" {
			continue
		}
		if proxies.trusted(candidate) {
			continue
		}
		if net.ParseIP(candidate) != nil {
			return candidate
		}
		// Garbage in the header; trust nothing beyond it.
		break
	}
	return host
}
