// Package admission enforces per-client request budgets with fixed-window counters.
package admission

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRateLimited is returned to callers that need an error for a denied Decision.
var ErrRateLimited = errors.New("rate limited")

// Class is an endpoint class with its own budget.
type Class string

const (
	ClassGeneral    Class = "general"
	ClassAuth       Class = "auth"
	ClassPrivileged Class = "privileged"
)

// Policy is the budget of one Class. DelayAfter and DelayStep enable progressive slow-down:
// the n-th request in a window past DelayAfter is delayed by DelayStep × (n − DelayAfter), capped at DelayMax.
type Policy struct {
	Limit      int
	Window     time.Duration
	DelayAfter int
	DelayStep  time.Duration
	DelayMax   time.Duration
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
	Delay      time.Duration
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds, at least 1.
func (d Decision) RetryAfterSeconds() int {
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Store counts hits per key in fixed windows. Hit must increment and read atomically.
type Store interface {
	// Hit increments the counter for key and returns the new count and when the window ends.
	Hit(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Controller applies class policies to a Store.
type Controller struct {
	store    Store
	policies map[Class]Policy
	now      func() time.Time
}

// NewController returns a Controller. Classes without a policy are rejected by Admit.
func NewController(store Store, policies map[Class]Policy) *Controller {
	return &Controller{store: store, policies: policies, now: time.Now}
}

// Admit counts one request from clientKey against class and reports whether it may proceed.
// Every request counts, including denied ones.
func (c *Controller) Admit(ctx context.Context, clientKey string, class Class) (Decision, error) {
	p, ok := c.policies[class]
	if !ok {
		return Decision{}, fmt.Errorf("admission: unknown class %q", class)
	}
	count, resetAt, err := c.store.Hit(ctx, Key(class, clientKey), p.Window)
	if err != nil {
		return Decision{}, fmt.Errorf("admission: %w", err)
	}

	d := Decision{
		Allowed: count <= int64(p.Limit),
		Limit:   p.Limit,
		ResetAt: resetAt,
	}
	if remaining := int64(p.Limit) - count; remaining > 0 {
		d.Remaining = int(remaining)
	}
	if !d.Allowed {
		d.RetryAfter = resetAt.Sub(c.now())
		if d.RetryAfter < time.Second {
			d.RetryAfter = time.Second
		}
		return d, nil
	}
	if p.DelayStep > 0 && count > int64(p.DelayAfter) {
		d.Delay = time.Duration(count-int64(p.DelayAfter)) * p.DelayStep
		if p.DelayMax > 0 && d.Delay > p.DelayMax {
			d.Delay = p.DelayMax
		}
	}
	return d, nil
}

// Key builds the counter key for class and clientKey.
func Key(class Class, clientKey string) string {
	return "opsgate:admission:" + string(class) + ":" + SanitizeKeySegment(clientKey)
}
