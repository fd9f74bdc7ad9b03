package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 5 * time.Minute
	limiterIdleTTL       = 10 * time.Minute
)

// bucket is the token bucket of one client key.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterPool hands out one token bucket per client key. Buckets idle for
// longer than ttl are swept.
type limiterPool struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

func newLimiterPool(requestsPerMinute int) *limiterPool {
	return &limiterPool{
		buckets: make(map[string]*bucket, 64),
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   requestsPerMinute,
		ttl:     limiterIdleTTL,
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// allow takes a token from the bucket of key.
func (p *limiterPool) allow(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()

	b, ok := p.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.buckets[key] = b
	}

	b.lastSeen = now

	return b.limiter.AllowN(now, 1)
}

// retryAfter is the whole number of seconds until one token refills.
func (p *limiterPool) retryAfter() int {
	if p.limit <= 0 {
		return 60
	}

	return int(math.Ceil(1 / float64(p.limit)))
}

// sweep drops buckets not used since ttl before now.
func (p *limiterPool) sweep(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0

	for key, b := range p.buckets {
		if now.Sub(b.lastSeen) > p.ttl {
			delete(p.buckets, key)
			removed++
		}
	}

	return removed
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.buckets)
}

// run sweeps periodically until stop is called.
func (p *limiterPool) run() {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.sweep(p.now())
		}
	}
}

func (p *limiterPool) stop() {
	p.stopOnce.Do(func() { close(p.done) })
}

// rateLimit rejects requests whose client key ran out of tokens. Mounted
// after requireBasicAuth it limits per user, elsewhere per IP.
func (s *server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rateLimitKey(r)

		if !s.limiter.allow(key) {
			s.log.WithField("client", key).Debug("Rate limit exceeded")
			w.Header().Set("Retry-After", strconv.Itoa(s.limiter.retryAfter()))
			writeJSON(w, http.StatusTooManyRequests,
				errorResponse{"rate limit exceeded"})

			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimitKey identifies the client: the authenticated user when basic
// auth ran, else the client IP.
func rateLimitKey(r *http.Request) string {
	if user, ok := userFromContext(r.Context()); ok {
		return "user:" + user
	}

	return "ip:" + clientIP(r)
}

// clientIP returns the first X-Forwarded-For hop, or the remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")

		return strings.TrimSpace(first)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}
