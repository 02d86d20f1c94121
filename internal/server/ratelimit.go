package server

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleLimiterTTL is how long an unused per-client limiter is kept.
const idleLimiterTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a token bucket per client IP. Limits can be changed while
// serving; existing buckets pick up the new values.
type RateLimiter struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	clients map[string]*clientLimiter
	now     func() time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second per
// client with the given burst. rps <= 0 disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
	rl.SetLimit(rps, burst)
	return rl
}

// SetLimit updates the rate and burst for every client.
func (rl *RateLimiter) SetLimit(rps float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if burst < 1 {
		burst = 1
	}
	rl.rps = rate.Limit(rps)
	if rps <= 0 {
		rl.rps = rate.Inf
	}
	rl.burst = burst

	now := rl.now()
	for _, c := range rl.clients {
		c.limiter.SetLimitAt(now, rl.rps)
		c.limiter.SetBurstAt(now, rl.burst)
	}
}

// Limit returns the configured rate and burst.
func (rl *RateLimiter) Limit() (rate.Limit, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.rps, rl.burst
}

// allow takes a token for key and reports the tokens left.
func (rl *RateLimiter) allow(key string) (bool, int, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.evict(now)

	c, ok := rl.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = now

	res := c.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, 0, delay
	}
	remaining := int(math.Floor(c.limiter.TokensAt(now)))
	if remaining < 0 {
		remaining = 0
	}
	return true, remaining, 0
}

func (rl *RateLimiter) evict(now time.Time) {
	for key, c := range rl.clients {
		if now.Sub(c.lastSeen) > idleLimiterTTL {
			delete(rl.clients, key)
		}
	}
}

// Middleware rejects clients over their limit with 429 and reports the
// budget in x-ratelimit-* headers.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, burst := rl.Limit()
		if limit == rate.Inf {
			next.ServeHTTP(w, r)
			return
		}

		ok, remaining, retryAfter := rl.allow(clientIP(r))

		h := w.Header()
		h.Set("x-ratelimit-limit-requests", strconv.Itoa(burst))
		h.Set("x-ratelimit-remaining-requests", strconv.Itoa(remaining))

		if !ok {
			secs := int(math.Ceil(retryAfter.Seconds()))
			h.Set("Retry-After", strconv.Itoa(secs))
			h.Set("x-ratelimit-reset-requests", retryAfter.Round(time.Millisecond).String())
			h.Set("Content-Type", "application/json")
			AddLogField(r.Context(), "rate_limited", "true")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
