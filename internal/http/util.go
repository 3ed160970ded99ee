package httpx

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/target/intake-pipeline/internal/domain/model"
)

var errInternal = errors.New("internal server error")

// parseIntQuery returns the integer value of a query param or a default.
// It is tolerant of missing/invalid values.
func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// clientMeta extracts the caller address and user agent. The first
// X-Forwarded-For hop wins because the service runs behind a load balancer.
func clientMeta(r *http.Request) model.ClientMeta {
	return model.ClientMeta{
		IPAddress: clientIP(r),
		UserAgent: truncate(r.UserAgent(), 512),
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
		if ip := net.ParseIP(xr); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
