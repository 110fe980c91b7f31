package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

// RateLimiterConfig holds configuration for per-org submission limits.
type RateLimiterConfig struct {
	// SubmissionsPerMinute is the sustained rate allowed per org.
	SubmissionsPerMinute int
	// Burst is how many submissions an idle org may make at once.
	Burst int
	// CleanupInterval is how often idle limiters are purged.
	CleanupInterval time.Duration
}

// DefaultRateLimiterConfig returns sensible defaults.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		SubmissionsPerMinute: 30,
		Burst:                10,
		CleanupInterval:      5 * time.Minute,
	}
}

type orgLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits report submissions per org.
type RateLimiter struct {
	config RateLimiterConfig

	mu     sync.Mutex
	orgs   map[string]*orgLimiter
	stopCh chan struct{}
}

// NewRateLimiter creates a RateLimiter and starts a background cleanup
// goroutine. Call Stop() to release resources.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config: config,
		orgs:   make(map[string]*orgLimiter),
		stopCh: make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Stop halts the background cleanup goroutine.
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

func (rl *RateLimiter) cleanup() {
	interval := rl.config.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.purge(time.Now().Add(-10 * time.Minute))
		}
	}
}

// purge drops limiters not used since cutoff.
func (rl *RateLimiter) purge(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for org, l := range rl.orgs {
		if l.lastSeen.Before(cutoff) {
			delete(rl.orgs, org)
		}
	}
}

// AllowOrg reports whether orgID may submit another report now.
func (rl *RateLimiter) AllowOrg(orgID string) bool {
	rl.mu.Lock()
	l, ok := rl.orgs[orgID]
	if !ok {
		burst := rl.config.Burst
		if burst < 1 {
			burst = 1
		}
		l = &orgLimiter{limiter: rate.NewLimiter(rate.Limit(float64(rl.config.SubmissionsPerMinute)/60.0), burst)}
		rl.orgs[orgID] = l
	}
	l.lastSeen = time.Now()
	rl.mu.Unlock()
	return l.limiter.Allow()
}

// OrgRateLimitMiddleware returns middleware that enforces per-org limits on
// routes carrying an {orgID} parameter. It returns 429 when the limit is
// exceeded.
func OrgRateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.AllowOrg(chi.URLParam(r, "orgID")) {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
