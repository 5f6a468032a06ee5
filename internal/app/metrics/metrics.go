package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "engagement_engine",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engagement_engine",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "engagement_engine",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	boardBuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engagement_engine",
			Subsystem: "board",
			Name:      "builds_total",
			Help:      "Total number of board aggregation builds.",
		},
		[]string{"kind", "outcome"},
	)

	boardBuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "engagement_engine",
			Subsystem: "board",
			Name:      "build_duration_seconds",
			Help:      "Duration of board aggregation builds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"kind"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engagement_engine",
			Subsystem: "board",
			Name:      "cache_lookups_total",
			Help:      "Board cache lookups by result.",
		},
		[]string{"kind", "result"},
	)

	recordsScanned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engagement_engine",
			Subsystem: "scan",
			Name:      "records_total",
			Help:      "Raw records decoded during scans.",
		},
		[]string{"kind"},
	)

	recordsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engagement_engine",
			Subsystem: "scan",
			Name:      "records_skipped_total",
			Help:      "Raw records skipped during scans.",
		},
		[]string{"kind", "reason"},
	)

	quotaIncrements = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "engagement_engine",
			Subsystem: "quota",
			Name:      "increments_total",
			Help:      "Total number of attempt counter increments.",
		},
	)

	counterRepairs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "engagement_engine",
			Subsystem: "quota",
			Name:      "counter_repairs_total",
			Help:      "Corrupted attempt counters deleted and retried.",
		},
	)

	activityRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engagement_engine",
			Subsystem: "activity",
			Name:      "records_total",
			Help:      "Raw activity records written.",
		},
		[]string{"kind"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		boardBuilds,
		boardBuildDuration,
		cacheLookups,
		recordsScanned,
		recordsSkipped,
		quotaIncrements,
		counterRepairs,
		activityRecords,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordBoardBuild records one aggregation build.
func RecordBoardBuild(kind string, duration time.Duration, ok bool) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	boardBuilds.WithLabelValues(kind, outcome).Inc()
	boardBuildDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordCacheLookup records a board cache hit or miss.
func RecordCacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(kind, result).Inc()
}

// RecordScan records how many raw records a scan decoded and skipped.
func RecordScan(kind string, decoded, skipped int) {
	if decoded > 0 {
		recordsScanned.WithLabelValues(kind).Add(float64(decoded))
	}
	if skipped > 0 {
		recordsSkipped.WithLabelValues(kind, "decode").Add(float64(skipped))
	}
}

// RecordQuotaIncrement counts one attempt counter increment.
func RecordQuotaIncrement() {
	quotaIncrements.Inc()
}

// RecordCounterRepair counts one delete-and-retry of a corrupted counter.
func RecordCounterRepair() {
	counterRepairs.Inc()
}

// RecordActivity counts one stored raw activity record.
func RecordActivity(kind string) {
	activityRecords.WithLabelValues(kind).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Hijack lets websocket upgrades pass through the instrumented handler.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// canonicalPath collapses resource identifiers so metric labels stay bounded.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "v1" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/v1"
	}
	resource := parts[1]
	switch resource {
	case "leaderboards":
		if len(parts) > 3 {
			return "/v1/leaderboards/:kind/" + parts[3]
		}
		return "/v1/leaderboards/:kind"
	case "quota":
		if len(parts) > 3 {
			return "/v1/quota/:identity/" + parts[3]
		}
		return "/v1/quota/:identity"
	case "sessions":
		if len(parts) > 2 {
			return "/v1/sessions/:id"
		}
		return "/v1/sessions"
	default:
		if len(parts) > 2 {
			return "/v1/" + resource + "/" + parts[2]
		}
		return "/v1/" + resource
	}
}
