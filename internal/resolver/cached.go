package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/atsora/pomamo-engine-sub026/internal/cache"
	"github.com/atsora/pomamo-engine-sub026/internal/config"
	"github.com/atsora/pomamo-engine-sub026/internal/metrics"
	"github.com/atsora/pomamo-engine-sub026/internal/model"
)

// DefaultCacheTTL is how long a resolved state is reused.
const DefaultCacheTTL = 10 * time.Second

// StateResolver is satisfied by Resolver and Cached.
type StateResolver interface {
	Resolve(ctx context.Context, machine model.MachineID, period PeriodFlags, notRunningOnly bool) (State, error)
}

// Cached reuses resolved states for a short time. Two concurrent misses on
// the same key both compute the state.
type Cached struct {
	next    StateResolver
	cache   cache.Cache
	ttl     time.Duration
	metrics metrics.Recorder
}

// NewCached wraps next. The TTL is read from cfg.
func NewCached(next StateResolver, c cache.Cache, cfg config.Getter, rec metrics.Recorder) *Cached {
	return &Cached{
		next:    next,
		cache:   c,
		ttl:     cfg.Duration(CacheTTLKey, DefaultCacheTTL),
		metrics: metrics.OrNoop(rec),
	}
}

// CacheKey is the cache key of a resolution.
func CacheKey(machine model.MachineID, period PeriodFlags, notRunningOnly bool) string {
	return fmt.Sprintf("Business.Reason.Current.%s.%t.%d", period, notRunningOnly, machine)
}

// Resolve implements StateResolver.
func (c *Cached) Resolve(ctx context.Context, machine model.MachineID, period PeriodFlags, notRunningOnly bool) (State, error) {
	key := CacheKey(machine, period, notRunningOnly)
	if v, ok := c.cache.Get(key); ok {
		if s, ok := v.(State); ok {
			c.metrics.IncCacheRequest(true)
			return s, nil
		}
	}
	c.metrics.IncCacheRequest(false)
	s, err := c.next.Resolve(ctx, machine, period, notRunningOnly)
	if err != nil {
		return State{}, err
	}
	c.cache.Set(key, s, c.ttl)
	return s, nil
}
