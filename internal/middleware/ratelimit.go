// Package middleware provides the HTTP middleware the engine's server runs
// behind: transport-level rate limiting and CORS.
package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/PlayPark-Labs/engagement_engine/internal/app/system"
	"github.com/PlayPark-Labs/engagement_engine/pkg/logger"
)

// clientEntry pairs a token bucket with its last use so idle buckets can be
// evicted.
type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a per-client token bucket before requests reach the
// engine. This is transport protection only; the daily attempt quota is a
// separate, store-backed concern.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientEntry
	rate    rate.Limit
	burst   int
	log     *logger.Logger
	now     func() time.Time

	idleAfter time.Duration
	sweep     time.Duration
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
}

var _ system.Service = (*RateLimiter)(nil)

// NewRateLimiter creates a limiter allowing requestsPerSecond steady state
// with the given burst per client.
func NewRateLimiter(requestsPerSecond float64, burst int, log *logger.Logger) *RateLimiter {
	if log == nil {
		log = logger.NewDefault("ratelimit")
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return &RateLimiter{
		clients:   make(map[string]*clientEntry),
		rate:      rate.Limit(requestsPerSecond),
		burst:     burst,
		log:       log,
		now:       time.Now,
		idleAfter: 10 * time.Minute,
		sweep:     time.Minute,
	}
}

// clientKey buckets requests by originating address, honoring the first
// X-Forwarded-For hop when present.
func clientKey(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.clients[key]
	if !ok {
		entry = &clientEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.clients[key] = entry
	}
	entry.lastSeen = rl.now()
	return entry.limiter
}

// Handler wraps next with the per-client limit. Over-limit requests receive
// 429 without reaching the engine.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !rl.limiterFor(key).Allow() {
			rl.log.WithField("client", key).
				WithField("path", r.URL.Path).
				Warn("request rate limit exceeded")
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// evictIdle drops buckets unused for idleAfter.
func (rl *RateLimiter) evictIdle() {
	cutoff := rl.now().Add(-rl.idleAfter)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, entry := range rl.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
		}
	}
}

func (rl *RateLimiter) Name() string { return "ratelimit-janitor" }

// Start launches the periodic eviction of idle client buckets.
func (rl *RateLimiter) Start(ctx context.Context) error {
	rl.mu.Lock()
	if rl.running {
		rl.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	rl.cancel = cancel
	rl.running = true
	rl.mu.Unlock()

	rl.wg.Add(1)
	go func() {
		defer rl.wg.Done()
		ticker := time.NewTicker(rl.sweep)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				rl.evictIdle()
			}
		}
	}()
	return nil
}

func (rl *RateLimiter) Stop(ctx context.Context) error {
	rl.mu.Lock()
	if !rl.running {
		rl.mu.Unlock()
		return nil
	}
	cancel := rl.cancel
	rl.running = false
	rl.cancel = nil
	rl.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		rl.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
