// Package ratelimit paces outbound OCR requests.
//
// The Throttler is a virtual slot queue: every call to Gate reserves the next
// free slot and reports how long the caller has to wait for it. Bursts of
// calls therefore get evenly spaced release times instead of drifting.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Tier selects a throttling preset matching the service's quota.
type Tier string

const (
	// TierFree is the quota-limited account tier.
	TierFree Tier = "free"
	// TierPaid is the higher-throughput account tier.
	TierPaid Tier = "paid"
)

const (
	// FreeInterval keeps a free account below 20 transactions per minute,
	// leaving headroom for the polling calls of each job.
	FreeInterval = 6000 * time.Millisecond
	// PaidInterval matches a standard account's 10 transactions per second.
	PaidInterval = 100 * time.Millisecond
)

// ParseTier converts a configuration value into a Tier.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierFree:
		return TierFree, nil
	case TierPaid:
		return TierPaid, nil
	default:
		return "", fmt.Errorf("unknown tier %q (must be one of: free, paid)", s)
	}
}

// Interval returns the minimum spacing between slots for the tier.
func (t Tier) Interval() time.Duration {
	if t == TierPaid {
		return PaidInterval
	}
	return FreeInterval
}

// Throttler enforces a minimum wall-clock interval between reserved slots.
// It is safe for concurrent use; slot reservation is serialized.
type Throttler struct {
	mu sync.Mutex

	interval time.Duration
	next     time.Time
	reserved bool

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// Option customizes a Throttler.
type Option func(*Throttler)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Throttler) { t.now = now }
}

// WithSleeper replaces the context-aware sleep used by Wait.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(t *Throttler) { t.sleep = sleep }
}

// New creates a throttler with the given minimum interval.
func New(interval time.Duration, opts ...Option) *Throttler {
	t := &Throttler{
		interval: interval,
		now:      time.Now,
		sleep:    Sleep,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewForTier creates a throttler using the tier's preset interval.
func NewForTier(tier Tier, opts ...Option) *Throttler {
	return New(tier.Interval(), opts...)
}

// Interval returns the configured minimum interval.
func (t *Throttler) Interval() time.Duration {
	return t.interval
}

// Gate reserves the next slot and returns the delay until it is reached.
//
// If no slot was reserved yet, or the previously reserved slot has already
// elapsed, the slot is "now" and the delay is zero. Otherwise the reserved
// slot is handed out and the following one is pushed back by the interval.
func (t *Throttler) Gate() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if !t.reserved || !t.next.After(now) {
		t.next = now.Add(t.interval)
		t.reserved = true
		return 0
	}

	delay := t.next.Sub(now)
	t.next = t.next.Add(t.interval)
	return delay
}

// Wait reserves a slot and blocks until it is reached or ctx is done.
// It returns the delay that was waited for.
func (t *Throttler) Wait(ctx context.Context) (time.Duration, error) {
	delay := t.Gate()
	if delay <= 0 {
		return 0, ctx.Err()
	}
	if err := t.sleep(ctx, delay); err != nil {
		return delay, err
	}
	return delay, nil
}

// Sleep blocks for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RateLimitError reports server-side backpressure that outlasted the caller's budget.
type RateLimitError struct {
	Op         string        // "submit" or "poll"
	Limit      time.Duration // the budget that was exceeded
	RetryAfter time.Duration // the delay the server asked for
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (budget: %v, retry after: %v)", e.Op, e.Limit, e.RetryAfter)
}
