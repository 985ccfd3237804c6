package cache

import (
	"github.com/smartetl/annotator/internal/enrich"
	"golang.org/x/sync/singleflight"
)

// Coalescer guards a Store with an in-flight call registry: at most one
// outstanding computation per key, even under concurrent callers. The
// second caller blocks and receives the first caller's eventual result.
type Coalescer struct {
	store  Store
	flight singleflight.Group
}

func NewCoalescer(store Store) *Coalescer {
	return &Coalescer{store: store}
}

// Store returns the underlying store.
func (c *Coalescer) Store() Store {
	return c.store
}

// GetOrCompute returns the cached result for key, or runs compute to
// produce it. fromCache reports whether this caller was served without
// executing compute (a stored entry or another caller's in-flight call).
//
// Caching the computed result is compute's responsibility: the caller
// decides which outcomes are worth persisting.
func (c *Coalescer) GetOrCompute(key string, compute func() (enrich.Result, error)) (result enrich.Result, fromCache bool, err error) {
	if res, ok := c.store.Get(key); ok {
		return res, true, nil
	}

	var computed bool
	v, err, _ := c.flight.Do(key, func() (any, error) {
		// Re-check: a previous flight may have stored the entry between
		// our miss and acquiring the flight.
		if res, ok := c.store.Get(key); ok {
			return res, nil
		}
		computed = true
		res, cerr := compute()
		if cerr != nil {
			return nil, cerr
		}
		return res, nil
	})
	if err != nil {
		return enrich.Result{}, !computed, err
	}
	return v.(enrich.Result), !computed, nil
}
