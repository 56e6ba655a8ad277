package http

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// maxTrackedClients caps the bucket map so untrusted traffic cannot grow
// it without bound.
const maxTrackedClients = 100000

// RateLimiter throttles decision submissions per client IP with a token
// bucket. A council run fans out to several model calls, so even modest
// request rates are expensive upstream.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   int
}

type bucket struct {
	tokens   float64
	refilled time.Time
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing rate requests per second
// sustained, with the given burst.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
	}
}

// Handler enforces the limit, answering 429 with Retry-After when a
// client is over budget.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remaining, retryAfter, allowed := rl.allow(clientIP(r))

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter))))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ip string) (remaining int, retryAfter float64, allowed bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[ip]
	if !ok {
		if len(rl.buckets) >= maxTrackedClients {
			return 0, 1 / rl.rate, false
		}
		b = &bucket{tokens: float64(rl.burst) - 1, refilled: now, lastSeen: now}
		rl.buckets[ip] = b
		return int(b.tokens), 0, true
	}

	b.tokens = math.Min(float64(rl.burst), b.tokens+now.Sub(b.refilled).Seconds()*rl.rate)
	b.refilled = now
	b.lastSeen = now

	if b.tokens < 1 {
		return 0, (1 - b.tokens) / rl.rate, false
	}
	b.tokens--
	return int(b.tokens), 0, true
}

// StartCleanup periodically drops buckets idle longer than maxIdle. The
// returned function stops the cleanup goroutine.
func (rl *RateLimiter) StartCleanup(interval, maxIdle time.Duration) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				rl.cleanup(maxIdle)
			}
		}
	}()
	return func() { close(done) }
}

func (rl *RateLimiter) cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	for ip, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, ip)
		}
	}
}

// TrackedClients returns the number of client buckets currently held.
func (rl *RateLimiter) TrackedClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// clientIP uses RemoteAddr only. Proxy headers are spoofable and would
// let a client dodge the limiter.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
