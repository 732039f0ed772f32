package http

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-lookup-service/internal/observability"
)

// ClientLimiter keeps one token bucket per client key (the remote IP).
// Buckets refill continuously at perHour/3600 tokens per second and hold up
// to perHour tokens, so a fresh client gets its whole hourly allowance.
type ClientLimiter struct {
	name    string
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	clients map[string]*rate.Limiter
	now     func() time.Time
}

// NewClientLimiter returns a limiter allowing perHour requests per client per
// hour. perHour <= 0 returns nil, which RateLimitMiddleware treats as disabled.
func NewClientLimiter(name string, perHour int) *ClientLimiter {
	if perHour <= 0 {
		return nil
	}
	return &ClientLimiter{
		name:    name,
		limit:   rate.Limit(float64(perHour) / time.Hour.Seconds()),
		burst:   perHour,
		clients: make(map[string]*rate.Limiter),
		now:     time.Now,
	}
}

// Allow takes a token from key's bucket. When the bucket is empty it returns
// false and how long until the next token.
func (l *ClientLimiter) Allow(key string) (bool, time.Duration) {
	now := l.now()
	lim := l.bucket(key)
	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Hour
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *ClientLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.clients[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.clients[key] = lim
		observability.RateLimitClients.WithLabelValues(l.name).Set(float64(len(l.clients)))
	}
	return lim
}

// Sweep drops buckets that have refilled completely. A full bucket is
// indistinguishable from a new one, so dropping it loses no state.
// Returns the number of buckets removed.
func (l *ClientLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	removed := 0
	for key, lim := range l.clients {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.clients, key)
			removed++
		}
	}
	observability.RateLimitClients.WithLabelValues(l.name).Set(float64(len(l.clients)))
	return removed
}

// Run sweeps every interval until ctx is done.
func (l *ClientLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// Len returns the number of tracked clients.
func (l *ClientLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// ClientIP returns the host part of the request's remote address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
