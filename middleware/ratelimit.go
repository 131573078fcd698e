package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// RateLimiter limits requests per client IP with a token bucket per
// client. Buckets live in a bounded LRU so idle clients are forgotten.
type RateLimiter struct {
	limit      rate.Limit
	burst      int
	trustProxy bool
	now        func() time.Time

	mu      sync.Mutex
	clients *lru.Cache[string, *rate.Limiter]
}

// RateLimitOption configures a RateLimiter.
type RateLimitOption func(*RateLimiter)

// WithTrustProxy keys clients by the first X-Forwarded-For address.
func WithTrustProxy() RateLimitOption {
	return func(l *RateLimiter) { l.trustProxy = true }
}

// WithRateLimitClock overrides the time source.
func WithRateLimitClock(now func() time.Time) RateLimitOption {
	return func(l *RateLimiter) { l.now = now }
}

// WithMaxClients bounds the number of tracked clients. Defaults to 10000.
func WithMaxClients(n int) RateLimitOption {
	return func(l *RateLimiter) {
		if c, err := lru.New[string, *rate.Limiter](n); err == nil {
			l.clients = c
		}
	}
}

// NewRateLimiter allows each client requests per window, refilled evenly.
func NewRateLimiter(requests int, window time.Duration, opts ...RateLimitOption) *RateLimiter {
	if requests <= 0 {
		requests = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	clients, _ := lru.New[string, *rate.Limiter](10000)
	l := &RateLimiter{
		limit:   rate.Every(window / time.Duration(requests)),
		burst:   requests,
		now:     time.Now,
		clients: clients,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Middleware rejects clients over their budget with 429 and a
// Retry-After header in seconds.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wait, ok := l.allow(l.clientKey(r)); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allow spends one token for key. When none is left it reports how long
// until one is.
func (l *RateLimiter) allow(key string) (time.Duration, bool) {
	l.mu.Lock()
	lim, ok := l.clients.Get(key)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.clients.Add(key, lim)
	}
	l.mu.Unlock()

	now := l.now()
	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return time.Second, false
	}
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		return d, false
	}
	return 0, true
}

func (l *RateLimiter) clientKey(r *http.Request) string {
	if l.trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
