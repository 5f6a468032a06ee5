package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/PlayPark-Labs/engagement_engine/pkg/logger"
)

// RequestLog emits one structured log line per completed request.
type RequestLog struct {
	log *logger.Logger
}

// NewRequestLog creates a request logging middleware.
func NewRequestLog(log *logger.Logger) *RequestLog {
	if log == nil {
		log = logger.NewDefault("http")
	}
	return &RequestLog{log: log}
}

// Handler returns the request logging handler. The miniapps send an
// X-Client-App header identifying which demo surface issued the call;
// when present it is attached to the log line so per-app traffic can
// be separated without parsing paths.
func (m *RequestLog) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rw, r)

		entry := m.log.
			WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("status", rw.statusCode).
			WithField("duration_ms", time.Since(start).Milliseconds())
		if clientApp := r.Header.Get("X-Client-App"); clientApp != "" {
			entry = entry.WithField("client_app", clientApp)
		}
		entry.Info("request completed")
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the logging wrapper.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}
