package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/masthead/pkg/auth"
	"github.com/platinummonkey/masthead/pkg/httputil"
	"github.com/platinummonkey/masthead/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate
	BurstSize int
	// MaxKeys bounds the number of tracked callers in memory
	MaxKeys int
}

// DefaultRateLimitConfig returns default rate limit settings
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 100,
		WindowDuration:    time.Minute,
		BurstSize:         10,
		MaxKeys:           10000,
	}
}

// Limiter decides whether the caller identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Remaining(ctx context.Context, key string) (int, error)
	Limit() int
	Window() time.Duration
}

// RateLimiter is an in-process token bucket limiter. Idle buckets expire
// after two windows and the least recently used are evicted past MaxKeys.
type RateLimiter struct {
	config  *RateLimitConfig
	buckets *expirable.LRU[string, *bucket]
	mu      sync.Mutex
	now     func() time.Time
}

type bucket struct {
	tokens     int
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if config.MaxKeys <= 0 {
		config.MaxKeys = DefaultRateLimitConfig().MaxKeys
	}

	return &RateLimiter{
		config:  config,
		buckets: expirable.NewLRU[string, *bucket](config.MaxKeys, nil, config.WindowDuration*2),
		now:     time.Now,
	}
}

func (rl *RateLimiter) capacity() int {
	return rl.config.RequestsPerWindow + rl.config.BurstSize
}

// Allow takes a token for key. It never fails.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	rl.mu.Lock()
	b, ok := rl.buckets.Get(key)
	if !ok {
		b = &bucket{tokens: rl.capacity(), lastUpdate: rl.now()}
	}
	// re-adding refreshes the idle expiry
	rl.buckets.Add(key, b)
	rl.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	now := rl.now()
	elapsed := now.Sub(b.lastUpdate)

	tokensToAdd := int(elapsed.Seconds() * float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds())
	if tokensToAdd > 0 {
		b.tokens += tokensToAdd
		if b.tokens > rl.capacity() {
			b.tokens = rl.capacity()
		}
		b.lastUpdate = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true, nil
	}
	return false, nil
}

// Remaining returns the number of remaining tokens for a key. It never fails.
func (rl *RateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	rl.mu.Lock()
	b, ok := rl.buckets.Peek(key)
	rl.mu.Unlock()
	if !ok {
		return rl.capacity(), nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens, nil
}

// Limit returns the configured requests per window
func (rl *RateLimiter) Limit() int { return rl.config.RequestsPerWindow }

// Window returns the configured window
func (rl *RateLimiter) Window() time.Duration { return rl.config.WindowDuration }

// RateLimit rejects callers that exceed limiter with 429. Authenticated
// callers are keyed by user id, anonymous ones by client IP. Limiter errors
// fail open.
func RateLimit(limiter Limiter, name string, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + clientIP(r)
			if identity := auth.IdentityFromContext(r.Context()); identity != nil {
				key = fmt.Sprintf("user:%d", identity.UserID)
			}

			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				observability.FromContext(r.Context()).
					WithError(err).
					WithField("limiter", name).
					Warn("rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.Limit()))
			if remaining, err := limiter.Remaining(r.Context(), key); err == nil {
				w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			}
			if !allowed {
				metrics.RecordRateLimited(name)
				w.Header().Set("Retry-After", fmt.Sprintf("%.0f", limiter.Window().Seconds()))
				httputil.WriteTooManyRequests(w, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
