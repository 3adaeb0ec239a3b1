package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/fitcoach/internal/common"
)

// ClientIP returns the rate-limit partition key for r: the first entry of
// X-Forwarded-For when present (the upstream proxy is trusted), otherwise
// the host part of the socket address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get(common.ForwardedForHeaderName); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
