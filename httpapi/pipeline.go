package httpapi

import (
	"net/http"
	"strings"
	"time"
)

// injectionPatterns are rejected outright in the raw query string per the
// request pipeline's step 4.
var injectionPatterns = []string{
	"<script", ";drop", "../", "union select", "--", "' or '1'='1",
}

// pipeline wraps next with the request pipeline described in spec.md §4.5:
// rate limiting, injection-pattern rejection, and GET-only enforcement.
// The 8 KB header cap is enforced by http.Server.MaxHeaderBytes upstream.
func (s *Server) pipeline(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")

		ip := clientIP(r)
		if !s.limiter.allow(ip, time.Now().UTC()) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", "slow down and retry later", nil)
			return
		}

		if containsInjectionPattern(r.URL.RawQuery) {
			writeError(w, http.StatusBadRequest, "invalid_query", "query string rejected", "remove special characters from query parameters", nil)
			return
		}

		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "this endpoint only accepts GET", "retry the request with GET", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func containsInjectionPattern(rawQuery string) bool {
	lower := strings.ToLower(rawQuery)
	for _, pattern := range injectionPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
