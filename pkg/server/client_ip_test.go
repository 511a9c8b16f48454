package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestProxyMatcher(t *testing.T) {
	m := newProxyMatcher([]string{"10.0.0.1", "172.16.0.0/12", "", "not-an-ip"})

	tests := []struct {
		addr string
		want bool
	}{
		{"10.0.0.1", true},
		{"10.0.0.2", false},
		{"172.16.5.9", true},
		{"172.32.0.1", false}, // outside /12
		{"not-an-ip", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := m.trusted(tt.addr); got != tt.want {
			t.Errorf("trusted(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}

	if m.empty() {
		t.Error("matcher with entries reported empty")
	}
	if !newProxyMatcher(nil).empty() {
		t.Error("matcher without entries reported non-empty")
	}
}

func TestClientIP(t *testing.T) {
	proxies := newProxyMatcher([]string{"10.0.0.1", "10.0.0.2"})

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{
			name:       "direct connection",
			remoteAddr: "203.0.113.7:54321",
			want:       "203.0.113.7",
		},
		{
			name:       "xff from untrusted peer is ignored",
			remoteAddr: "203.0.113.7:54321",
			xff:        "198.51.100.1",
			want:       "203.0.113.7",
		},
		{
			name:       "single trusted proxy",
			remoteAddr: "10.0.0.1:443",
			xff:        "198.51.100.1",
			want:       "198.51.100.1",
		},
		{
			name:       "chain walks past trusted hops",
			remoteAddr: "10.0.0.1:443",
			xff:        "198.51.100.1, 10.0.0.2",
			want:       "198.51.100.1",
		},
		{
			name:       "client-supplied prefix is not trusted",
			remoteAddr: "10.0.0.1:443",
			xff:        "1.2.3.4, 198.51.100.1",
			want:       "198.51.100.1",
		},
		{
			name:       "trusted proxy without forwarding header",
			remoteAddr: "10.0.0.1:443",
			want:       "10.0.0.1",
		},
		{
			name:       "garbage in chain falls back to remote",
			remoteAddr: "10.0.0.1:443",
			xff:        "198.51.100.1, garbage",
			want:       "10.0.0.1",
		},
		{
			name:       "remote without port",
			remoteAddr: "203.0.113.7",
			want:       "203.0.113.7",
		},
		{
			name:       "ipv6 remote",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := clientIP(r, proxies); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientIPNoProxies(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.RemoteAddr = "203.0.113.7:54321"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")

	if got := clientIP(r, newProxyMatcher(nil)); got != "203.0.113.7" {
		t.Errorf("clientIP = %q, want the remote address when no proxies are trusted", got)
	}
}
