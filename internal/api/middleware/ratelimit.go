package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedClients bounds the limiter table; it is reset when exceeded.
const maxTrackedClients = 10000

// IPRateLimiter limits requests per client address. Expects chi's RealIP to
// have normalised RemoteAddr.
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	onLimit  func(r *http.Request)
}

// NewIPRateLimiter allows perMinute requests per address with burst
func NewIPRateLimiter(perMinute, burst int) *IPRateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &IPRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
	}
}

// OnLimit registers a callback run for every rejected request
func (i *IPRateLimiter) OnLimit(fn func(r *http.Request)) *IPRateLimiter {
	i.onLimit = fn
	return i
}

// Allow reports whether a request from addr may proceed
func (i *IPRateLimiter) Allow(addr string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	limiter, ok := i.limiters[addr]
	if !ok {
		if len(i.limiters) >= maxTrackedClients {
			i.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(i.rate, i.burst)
		i.limiters[addr] = limiter
	}
	return limiter.Allow()
}

// Middleware rejects over-limit requests with 429
func (i *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !i.Allow(clientIP(r)) {
			if i.onLimit != nil {
				i.onLimit(r)
			}
			w.Header().Set("Retry-After", "60")
			JSONError(w, http.StatusTooManyRequests, "too many login attempts")
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
