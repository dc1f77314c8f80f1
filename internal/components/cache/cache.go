package cache

import (
	"context"
	"fmt"
	"polwatch-backend/internal/components/assert"
	"polwatch-backend/internal/components/telemetry"
	"sort"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/singleflight"
)

const (
	report_cache_compute = "cache.compute"
	report_cache_stale   = "cache.serve-stale"
)

// Outcome describes where the value returned by GetOrCompute came from.
type Outcome int

const (
	OUTCOME_HIT Outcome = iota
	OUTCOME_COMPUTED
	OUTCOME_STALE
)

func (o Outcome) String() string {
	switch o {
	case OUTCOME_HIT:
		return "hit"
	case OUTCOME_COMPUTED:
		return "computed"
	case OUTCOME_STALE:
		return "stale"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

type Options struct {
	// MaxEntries bounds the fresh store, the least recently used entry is evicted first.
	MaxEntries int
	// TTL is how long a computed value is served without recomputing it.
	TTL time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxEntries: 1024,
		TTL:        5 * time.Minute,
	}
}

// Cache is a bounded LRU cache with a TTL, backed by a "last known good" store
// that is used as a fallback when recomputing a value fails.
//
// Values are disposable copies, the owner of the data must always be able to
// recompute them. It is safe for concurrent use.
type Cache struct {
	fresh *expirable.LRU[string, any]
	stale *xsync.Map[string, any]
	group singleflight.Group

	maxEntries int
	tel        telemetry.API

	hits     atomic.Int64
	misses   atomic.Int64
	staleHit atomic.Int64
}

func New(opts Options, tel telemetry.API) *Cache {
	assert.NotNil(tel)
	assert.Positive(opts.MaxEntries)
	if opts.TTL <= 0 {
		panic("cache ttl must be positive")
	}

	return &Cache{
		fresh:      expirable.NewLRU[string, any](opts.MaxEntries, nil, opts.TTL),
		stale:      xsync.NewMap[string, any](),
		maxEntries: opts.MaxEntries,
		tel:        telemetry.NewScopedAPI("cache", tel),
	}
}

// GetOrCompute returns the cached value for key if it is present and unexpired,
// otherwise it calls compute and caches the result.
//
// If compute fails and a previous value for key exists, the previous value is
// returned with OUTCOME_STALE and a nil error. Concurrent callers missing the
// same key share a single call to compute, it is not cancelled when one of the
// callers gives up. A caller whose ctx is done stops waiting and is treated
// like a failed compute.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, compute func(ctx context.Context) (T, error)) (T, Outcome, error) {
	if cached, ok := c.fresh.Get(key); ok {
		if value, ok := cached.(T); ok {
			c.hits.Add(1)
			return value, OUTCOME_HIT, nil
		}
	}
	c.misses.Add(1)

	computeCtx := context.WithoutCancel(ctx)
	pending := c.group.DoChan(key, func() (any, error) {
		value, err := compute(computeCtx)
		if err != nil {
			return nil, err
		}
		c.fresh.Add(key, value)
		c.stale.Store(key, value)
		return value, nil
	})

	var err error
	select {
	case res := <-pending:
		if res.Err == nil {
			value, _ := res.Val.(T)
			return value, OUTCOME_COMPUTED, nil
		}
		err = res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}

	var zero T
	previous, ok := c.stale.Load(key)
	if !ok {
		c.tel.ReportWarning(report_cache_compute, err, key)
		return zero, OUTCOME_COMPUTED, err
	}
	value, ok := previous.(T)
	if !ok {
		c.tel.ReportBroken(report_cache_compute, fmt.Errorf("stale value of unexpected type %T", previous), key)
		return zero, OUTCOME_COMPUTED, err
	}

	c.staleHit.Add(1)
	c.tel.ReportWarning(report_cache_stale, err, key)
	return value, OUTCOME_STALE, nil
}

// Invalidate drops the given keys from both the fresh and the stale store.
func (c *Cache) Invalidate(keys ...string) {
	for _, k := range keys {
		c.fresh.Remove(k)
		c.stale.Delete(k)
	}
	c.tel.ReportDebug("invalidate", keys)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.fresh.Purge()
	c.stale.Clear()
	c.tel.ReportDebug("clear")
}

type Stats struct {
	Size    int      `json:"size"`
	MaxSize int      `json:"max_size"`
	Keys    []string `json:"keys"`
	Hits    int64    `json:"hits"`
	Misses  int64    `json:"misses"`
	Stale   int64    `json:"stale"`
}

// Stats reports the state of the fresh store, expired entries are not counted.
func (c *Cache) Stats() Stats {
	keys := c.fresh.Keys()
	sort.Strings(keys)
	return Stats{
		Size:    len(keys),
		MaxSize: c.maxEntries,
		Keys:    keys,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Stale:   c.staleHit.Load(),
	}
}
