package httpx

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTrustedProxies(t *testing.T) {
	got, err := ParseTrustedProxies([]string{" 10.0.0.0/8 ", "192.168.1.7", "", "::ffff:172.16.0.1", "2001:db8::/32"})
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.7/32"),
		netip.MustParsePrefix("172.16.0.1/32"),
		netip.MustParsePrefix("2001:db8::/32"),
	}, got)

	got, err = ParseTrustedProxies([]string{"10.0.0.0/33", "proxy.internal", "10.0.0.1"})
	assert.ErrorContains(t, err, `"10.0.0.0/33"`)
	assert.ErrorContains(t, err, `"proxy.internal"`)
	assert.Equal(t, []netip.Prefix{netip.MustParsePrefix("10.0.0.1/32")}, got)
}

func TestRealIP(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	tests := []struct {
		name       string
		trusted    []netip.Prefix
		remoteAddr string
		xff        []string
		xRealIP    string
		want       string
	}{
		{
			name:       "no trusted proxies ignores headers",
			remoteAddr: "203.0.113.7:1234",
			xff:        []string{"198.51.100.1"},
			xRealIP:    "198.51.100.2",
			want:       "203.0.113.7",
		},
		{
			name:       "untrusted peer ignores headers",
			trusted:    trusted,
			remoteAddr: "203.0.113.7:1234",
			xff:        []string{"198.51.100.1"},
			want:       "203.0.113.7",
		},
		{
			name:       "trusted peer uses forwarded client",
			trusted:    trusted,
			remoteAddr: "10.0.0.5:1234",
			xff:        []string{"198.51.100.1"},
			want:       "198.51.100.1",
		},
		{
			name:       "client supplied hops left of the proxy are skipped",
			trusted:    trusted,
			remoteAddr: "10.0.0.5:1234",
			xff:        []string{"1.2.3.4, 198.51.100.1, 10.0.0.9"},
			want:       "198.51.100.1",
		},
		{
			name:       "multiple header lines are joined",
			trusted:    trusted,
			remoteAddr: "10.0.0.5:1234",
			xff:        []string{"1.2.3.4", "198.51.100.1"},
			want:       "198.51.100.1",
		},
		{
			name:       "all hops trusted uses the outermost",
			trusted:    trusted,
			remoteAddr: "10.0.0.5:1234",
			xff:        []string{"10.9.9.9, 10.0.0.9"},
			want:       "10.9.9.9",
		},
		{
			name:       "malformed hop stops the walk",
			trusted:    trusted,
			remoteAddr: "10.0.0.5:1234",
			xff:        []string{"1.2.3.4, garbage, 10.0.0.9"},
			want:       "10.0.0.9",
		},
		{
			name:       "x-real-ip without forwarded-for",
			trusted:    trusted,
			remoteAddr: "10.0.0.5:1234",
			xRealIP:    "2001:db8::1",
			want:       "2001:db8::1",
		},
		{
			name:       "invalid x-real-ip keeps peer",
			trusted:    trusted,
			remoteAddr: "10.0.0.5:1234",
			xRealIP:    "not-an-ip",
			want:       "10.0.0.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RealIP(tt.trusted)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seen = clientIP(r)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for _, v := range tt.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}
			serve(h, req)

			assert.Equal(t, tt.want, seen)
		})
	}
}
