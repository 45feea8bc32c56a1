package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"passage/pkg/requestcontext"
)

// Device parses the gate client's User-Agent into a compact description and
// records it, with the client IP, for the scan audit trail. Ban-denied scan
// attempts are security events; knowing which station produced them matters.
func Device(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if uaHeader := r.Header.Get("User-Agent"); uaHeader != "" {
			ua := useragent.New(uaHeader)
			name, version := ua.Browser()
			parts := make([]string, 0, 3)
			if ua.Platform() != "" {
				parts = append(parts, ua.Platform())
			}
			if ua.OS() != "" {
				parts = append(parts, ua.OS())
			}
			if name != "" {
				parts = append(parts, name+"/"+version)
			}
			if len(parts) > 0 {
				ctx = requestcontext.WithDevice(ctx, strings.Join(parts, " "))
			}
		}

		ctx = requestcontext.WithClientIP(ctx, clientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
