// SPDX-License-Identifier: MIT

package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var (
	rateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booksync",
			Name:      "ratelimit_exceeded_total",
			Help:      "Total rate limit rejections",
		},
		[]string{"limit_type", "action"},
	)
)

// Config holds rate limiting configuration
type Config struct {
	// Global limits across every key
	GlobalRate  rate.Limit
	GlobalBurst int

	// Per-key limits (actor id or client IP)
	PerKeyRate  rate.Limit
	PerKeyBurst int

	// Per-action limits, e.g. "join" or "checkout"
	ActionRates map[string]rate.Limit
	ActionBurst map[string]int

	// Idle per-key limiters older than this are dropped
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		GlobalRate:  200,
		GlobalBurst: 400,

		PerKeyRate:  5,
		PerKeyBurst: 20,

		ActionRates: map[string]rate.Limit{
			"join": 100,
		},
		ActionBurst: map[string]int{
			"join": 200,
		},

		CleanupInterval: 5 * time.Minute,
	}
}

type keyLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter combines a global, a per-action and a per-key token bucket.
type Limiter struct {
	config Config

	global    *rate.Limiter
	perKey    map[string]*keyLimiter
	perAction map[string]*rate.Limiter
	mu        sync.Mutex

	lastCleanup time.Time
	now         func() time.Time
}

// New creates a new rate limiter with the given config
func New(config Config) *Limiter {
	l := &Limiter{
		config:      config,
		global:      rate.NewLimiter(config.GlobalRate, config.GlobalBurst),
		perKey:      make(map[string]*keyLimiter),
		perAction:   make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
	for action, r := range config.ActionRates {
		l.perAction[action] = rate.NewLimiter(r, config.ActionBurst[action])
	}
	return l
}

// Allow reports whether key may perform action now.
func (l *Limiter) Allow(key, action string) bool {
	if !l.global.Allow() {
		rateLimitExceeded.WithLabelValues("global", action).Inc()
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if al, ok := l.perAction[action]; ok && !al.Allow() {
		rateLimitExceeded.WithLabelValues("per_action", action).Inc()
		return false
	}

	now := l.now()
	kl, ok := l.perKey[key]
	if !ok {
		kl = &keyLimiter{lim: rate.NewLimiter(l.config.PerKeyRate, l.config.PerKeyBurst)}
		l.perKey[key] = kl
	}
	kl.lastSeen = now
	allowed := kl.lim.AllowN(now, 1)
	if !allowed {
		rateLimitExceeded.WithLabelValues("per_key", action).Inc()
	}

	l.cleanupLocked(now)
	return allowed
}

// Keys reports how many per-key limiters are tracked.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.perKey)
}

func (l *Limiter) cleanupLocked(now time.Time) {
	if l.config.CleanupInterval <= 0 || now.Sub(l.lastCleanup) < l.config.CleanupInterval {
		return
	}
	for k, kl := range l.perKey {
		if now.Sub(kl.lastSeen) >= l.config.CleanupInterval {
			delete(l.perKey, k)
		}
	}
	l.lastCleanup = now
}
