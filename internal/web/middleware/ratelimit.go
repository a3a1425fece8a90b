package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/juju/ratelimit"
)

// IPRateLimiter gives every client address its own token bucket.
type IPRateLimiter struct {
	rate     float64 // tokens per second
	burst    int64
	idleTTL  time.Duration
	onLimit  http.HandlerFunc
	now      func() time.Time
	mu       sync.Mutex
	visitors map[string]*visitor
	stop     chan struct{}
	stopOnce sync.Once
}

type visitor struct {
	bucket   *ratelimit.Bucket
	lastSeen time.Time
}

// NewIPRateLimiter allows requestsPerMinute sustained requests per address
// with bursts up to burst. onLimit writes the rejection response. Idle
// addresses are forgotten in the background until Close is called.
func NewIPRateLimiter(requestsPerMinute, burst int, onLimit http.HandlerFunc) *IPRateLimiter {
	if burst < 1 {
		burst = 1
	}
	l := &IPRateLimiter{
		rate:     float64(requestsPerMinute) / 60,
		burst:    int64(burst),
		idleTTL:  10 * time.Minute,
		onLimit:  onLimit,
		now:      time.Now,
		visitors: make(map[string]*visitor),
		stop:     make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Allow takes one token for ip and reports whether one was available.
func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{bucket: ratelimit.NewBucketWithRate(l.rate, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = l.now()
	l.mu.Unlock()

	return v.bucket.TakeAvailable(1) == 1
}

// Middleware rejects requests from addresses that ran out of tokens.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		if !l.Allow(ip) {
			retry := 1
			if l.rate > 0 {
				retry = max(1, int(1/l.rate+0.5))
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			l.onLimit(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Close stops the cleanup goroutine.
func (l *IPRateLimiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *IPRateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

func (l *IPRateLimiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.idleTTL)
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
		}
	}
}
