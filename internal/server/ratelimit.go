package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/askdocs-go/internal/logging"
)

// Per-IP token bucket defaults for POST /api/chat.
const (
	defaultRateLimit = 10
	defaultRateBurst = 20
)

// limiterIdleTTL is how long an idle client's bucket is kept.
const limiterIdleTTL = 5 * time.Minute

// clientBucket is one client's token bucket and when it was last used.
type clientBucket struct {
	// limiter is the per-IP token bucket.
	limiter *rate.Limiter
	// lastSeen drives idle eviction.
	lastSeen time.Time
}

// rateLimiter throttles chat requests per client IP. It guards the HTTP
// surface only; model calls are bounded separately by the synthesizer's
// concurrency limit.
type rateLimiter struct {
	// mu protects buckets.
	mu sync.Mutex
	// buckets maps client IP to its bucket.
	buckets map[string]*clientBucket
	// rps is the sustained request rate allowed per IP.
	rps rate.Limit
	// burst is the maximum instantaneous burst per IP.
	burst int
	// now is the clock, replaceable in tests.
	now func() time.Time
}

// newRateLimiter constructs a rateLimiter and starts the background eviction
// goroutine, which exits when the returned stop function is called. The stop
// function is safe to call more than once.
func newRateLimiter(rps float64, burst int) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets: make(map[string]*clientBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}

	stopCh := make(chan struct{})
	go rl.evictLoop(stopCh)

	var once sync.Once
	return rl, func() { once.Do(func() { close(stopCh) }) }
}

// reserve takes a token for ip. It returns zero when the request may proceed,
// otherwise how long the client should wait before retrying.
func (rl *rateLimiter) reserve(ip string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = now

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return time.Second
	}
	delay := res.DelayFrom(now)
	if delay > 0 {
		// Rejected requests must not consume a future token.
		res.CancelAt(now)
	}
	return delay
}

func (rl *rateLimiter) evictLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

// evict drops buckets idle for longer than limiterIdleTTL and returns how
// many were removed.
func (rl *rateLimiter) evict() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-limiterIdleTTL)
	removed := 0
	for ip, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, ip)
			removed++
		}
	}
	return removed
}

// middleware rejects requests over the client's budget with 429, a JSON
// error body and a Retry-After header in whole seconds.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		wait := rl.reserve(ip)
		if wait <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		log := logging.FromContext(r.Context())
		log.Warn("rate limit exceeded",
			slog.String("ip", ip),
			slog.String("path", r.URL.Path),
			slog.Duration("retry_after", wait),
		)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
		writeJSON(w, log, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
	})
}

// retryAfterSeconds rounds d up to whole seconds, at least 1.
func retryAfterSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}

// clientIP returns the host part of RemoteAddr. X-Forwarded-For is not
// trusted; run behind a proxy that rewrites RemoteAddr if per-client limits
// matter there.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
