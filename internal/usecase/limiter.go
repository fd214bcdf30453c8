package usecase

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ProviderPolicy is the per-provider request discipline.
type ProviderPolicy struct {
	// MinInterval is the minimum gap between two requests to the provider.
	MinInterval time.Duration
	// QuotaBackoff is the first wait after a quota error; it doubles with
	// every further quota error in the same resolution.
	QuotaBackoff time.Duration
	// QuotaRetries is how many times a quota error is retried on the same
	// provider before failing over.
	QuotaRetries int
}

// providerLimiter spaces requests to one provider. A token bucket of size one
// refilled every MinInterval makes Wait sleep exactly the remaining gap.
type providerLimiter struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	base     time.Duration
	interval time.Duration
}

func newProviderLimiter(interval time.Duration) *providerLimiter {
	return &providerLimiter{
		limiter:  rate.NewLimiter(limitFor(interval), 1),
		base:     interval,
		interval: interval,
	}
}

func (l *providerLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

func (l *providerLimiter) Interval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.interval
}

// Widen raises the interval to at least d until Reset is called.
func (l *providerLimiter) Widen(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d <= l.interval {
		return
	}
	l.interval = d
	l.limiter.SetLimit(limitFor(d))
}

func (l *providerLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.interval == l.base {
		return
	}
	l.interval = l.base
	l.limiter.SetLimit(limitFor(l.base))
}

func limitFor(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval)
}

func quotaBackoff(base, max time.Duration, strikes int) time.Duration {
	if base <= 0 || strikes <= 0 {
		return 0
	}
	wait := base
	for i := 1; i < strikes; i++ {
		wait *= 2
		if max > 0 && wait >= max {
			return max
		}
	}
	if max > 0 && wait > max {
		return max
	}
	return wait
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
