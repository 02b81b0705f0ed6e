package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetTime time.Time
}

// Limiter applies the windowed-counter policy on top of a Store. The window
// starts at a key's first request and stays fixed until it expires; this is
// reset-on-expiry counting, not a true sliding window.
type Limiter struct {
	store   Store
	limit   int
	window  time.Duration
	enabled bool
	logger  *zap.Logger
}

func NewLimiter(store Store, limit int, window time.Duration, enabled bool, logger *zap.Logger) *Limiter {
	return &Limiter{
		store:   store,
		limit:   limit,
		window:  window,
		enabled: enabled,
		logger:  logger,
	}
}

// Check counts this request against clientKey's window and decides whether it
// may proceed. The increment happens before any upstream call, so aborted
// requests still count. Store failures fail open: an unreachable shared store
// must not take the funnel down.
func (l *Limiter) Check(ctx context.Context, clientKey string) Decision {
	if !l.enabled {
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit}
	}

	rec, err := l.store.Hit(ctx, clientKey, l.window)
	if err != nil {
		l.logger.Error("Rate limit store unavailable, allowing request",
			zap.String("client_key", clientKey),
			zap.Error(err),
		)
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit}
	}

	resetTime := rec.WindowStart.Add(l.window)
	remaining := l.limit - rec.Count
	if remaining < 0 {
		remaining = 0
	}

	if rec.Count > l.limit {
		l.logger.Warn("Rate limit exceeded",
			zap.String("client_key", clientKey),
			zap.Int("count", rec.Count),
			zap.Int("limit", l.limit),
			zap.Time("reset_time", resetTime),
		)
		return Decision{Allowed: false, Limit: l.limit, Remaining: 0, ResetTime: resetTime}
	}

	return Decision{Allowed: true, Limit: l.limit, Remaining: remaining, ResetTime: resetTime}
}

// Status reports the current window for clientKey without consuming a slot.
func (l *Limiter) Status(ctx context.Context, clientKey string) Decision {
	if !l.enabled {
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit}
	}

	rec, exists, err := l.store.Status(ctx, clientKey)
	if err != nil {
		l.logger.Error("Rate limit status lookup failed", zap.String("client_key", clientKey), zap.Error(err))
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit}
	}
	if !exists {
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit}
	}

	remaining := l.limit - rec.Count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   rec.Count < l.limit,
		Limit:     l.limit,
		Remaining: remaining,
		ResetTime: rec.WindowStart.Add(l.window),
	}
}

// Reset clears the window for clientKey. Exposed through the debug endpoint only.
func (l *Limiter) Reset(ctx context.Context, clientKey string) error {
	return l.store.Reset(ctx, clientKey)
}

func (l *Limiter) Limit() int {
	return l.limit
}

func (l *Limiter) Enabled() bool {
	return l.enabled
}
