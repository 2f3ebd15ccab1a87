package tenantauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tenantauth/internal/rate"
)

// RateDecision describes one limiter check. The HTTP layer turns it into
// X-RateLimit-* headers.
type RateDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
}

// AllowIP counts one request from ip against the per IP budget. It returns
// [ErrRateLimitExceeded] with the decision when the budget is spent. With
// rate limiting disabled every request is allowed.
func (e *Engine) AllowIP(ctx context.Context, ip string) (RateDecision, error) {
	if e == nil {
		return RateDecision{}, ErrEngineNotReady
	}
	if e.ipLimiter == nil {
		return RateDecision{Allowed: true}, nil
	}
	return e.allow(ctx, e.ipLimiter, rate.IPKey(ip), "ip", "", "")
}

// AllowUser counts one request against the per user budget. Without a user
// id it falls back to the per IP budget.
func (e *Engine) AllowUser(ctx context.Context, tenantID, userID, ip string) (RateDecision, error) {
	if e == nil {
		return RateDecision{}, ErrEngineNotReady
	}
	if userID == "" {
		return e.AllowIP(ctx, ip)
	}
	if e.userLimiter == nil {
		return RateDecision{Allowed: true}, nil
	}
	return e.allow(ctx, e.userLimiter, rate.UserKey(tenantID, userID), "user", tenantID, userID)
}

func (e *Engine) allow(ctx context.Context, l *rate.Limiter, key, scope, tenantID, userID string) (RateDecision, error) {
	d, err := l.Allow(ctx, key)
	out := RateDecision{
		Allowed:    d.Allowed,
		Limit:      d.Limit,
		Remaining:  d.Remaining,
		ResetAfter: d.ResetAfter,
	}
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, rate.ErrRateLimited):
		e.emitRateLimit(ctx, scope, tenantID, userID)
		return out, ErrRateLimitExceeded
	default:
		e.metricInc(MetricPersistenceFailure)
		return out, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
}
