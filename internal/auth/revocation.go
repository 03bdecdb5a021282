package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	maxCachedSessions    = 10000
	defaultLookupTimeout = 2 * time.Second
)

// CachedSessionChecker fronts a SessionChecker with a short positive cache so the
// revocation check costs at most one store round-trip per token per TTL. Concurrent
// checks of the same token share one lookup. Negative answers are never cached.
type CachedSessionChecker struct {
	store   SessionChecker
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	confirmed map[string]time.Time
}

// CheckerOption customizes a CachedSessionChecker.
type CheckerOption func(*CachedSessionChecker)

// WithLookupTimeout bounds the shared store lookup.
func WithLookupTimeout(d time.Duration) CheckerOption {
	return func(c *CachedSessionChecker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewCachedSessionChecker wraps store. A ttl of zero disables caching but keeps
// request collapsing.
func NewCachedSessionChecker(store SessionChecker, ttl time.Duration, opts ...CheckerOption) *CachedSessionChecker {
	c := &CachedSessionChecker{
		store:     store,
		ttl:       ttl,
		timeout:   defaultLookupTimeout,
		now:       time.Now,
		confirmed: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Exists implements SessionChecker.
func (c *CachedSessionChecker) Exists(ctx context.Context, token string) (bool, error) {
	if c.cached(token) {
		return true, nil
	}

	// The shared lookup outlives the caller that started it; each caller still
	// stops waiting when its own context ends.
	ch := c.group.DoChan(token, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.store.Exists(lookupCtx, token)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	if res.Err != nil {
		return false, res.Err
	}
	exists := res.Val.(bool)
	if exists {
		c.remember(token)
	}
	return exists, nil
}

// Forget drops a token so a local logout takes effect immediately on this instance.
func (c *CachedSessionChecker) Forget(token string) {
	c.mu.Lock()
	delete(c.confirmed, token)
	c.mu.Unlock()
}

// ForgetAll clears the cache, used after revoking every session of a user.
func (c *CachedSessionChecker) ForgetAll() {
	c.mu.Lock()
	c.confirmed = make(map[string]time.Time)
	c.mu.Unlock()
}

func (c *CachedSessionChecker) cached(token string) bool {
	if c.ttl <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.confirmed[token]
	if !ok {
		return false
	}
	if c.now().After(until) {
		delete(c.confirmed, token)
		return false
	}
	return true
}

func (c *CachedSessionChecker) remember(token string) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if len(c.confirmed) >= maxCachedSessions {
		for k, until := range c.confirmed {
			if now.After(until) {
				delete(c.confirmed, k)
			}
		}
		if len(c.confirmed) >= maxCachedSessions {
			c.confirmed = make(map[string]time.Time)
		}
	}
	c.confirmed[token] = now.Add(c.ttl)
}
