package middleware

import (
	"net/http"
	"strings"
)

// CORS answers cross-origin requests from the demo front end. Origins are
// matched exactly, or by subdomain when configured as "*.example.com"; a
// single "*" allows everything.
type CORS struct {
	allowedOrigins []string
	allowAll       bool
}

// NewCORS creates the middleware from the configured origin list.
func NewCORS(allowedOrigins []string) *CORS {
	allowAll := false
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
			break
		}
	}
	return &CORS{
		allowedOrigins: allowedOrigins,
		allowAll:       allowAll,
	}
}

// Handler applies the CORS headers and short-circuits preflight requests.
func (c *CORS) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (c.allowAll || c.originAllowed(origin)) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Client-App")
			w.Header().Set("Access-Control-Max-Age", "3600")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (c *CORS) originAllowed(origin string) bool {
	for _, allowed := range c.allowedOrigins {
		if allowed == origin {
			return true
		}
		if host, ok := strings.CutPrefix(allowed, "*."); ok {
			if strings.HasSuffix(origin, "."+host) || strings.HasSuffix(origin, "://"+host) {
				return true
			}
		}
	}
	return false
}
