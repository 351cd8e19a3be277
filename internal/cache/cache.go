package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"tabletalk/pkg/frame"
)

// Artifact is immutable generated code plus the schema version it was
// generated against. Owned by the cache entry that created it.
type Artifact struct {
	ID            string
	Fingerprint   Fingerprint
	SchemaVersion uint64
	Code          string
	CreatedAt     time.Time
}

// Entry is one validated artifact and its last known result.
type Entry struct {
	Artifact Artifact
	Result   *frame.Result
}

// Cache is an LRU over fingerprints with singleflight admission: concurrent
// misses for one fingerprint share a single computation, and a computation
// that fails or is cancelled publishes nothing.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	ll         *list.List // front = most recently used
	items      map[Fingerprint]*list.Element

	group  singleflight.Group
	logger *zap.Logger
}

type lruItem struct {
	fp    Fingerprint
	entry *Entry
}

// New creates a cache holding at most maxEntries entries.
func New(maxEntries int, logger *zap.Logger) *Cache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		maxEntries: maxEntries,
		ll:         list.New(),
		items:      make(map[Fingerprint]*list.Element),
		logger:     logger,
	}
}

// Get returns the stored entry for fp, marking it recently used.
func (c *Cache) Get(fp Fingerprint) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[fp]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*lruItem).entry, true
}

// GetOrCompute returns the entry for fp, computing it at most once across
// concurrent callers. A stored success is replayed verbatim without invoking
// compute. The computation runs under the first caller's context; waiters
// that are cancelled stop waiting without disturbing the flight.
func (c *Cache) GetOrCompute(ctx context.Context, fp Fingerprint, compute func(ctx context.Context) (*Entry, error)) (*Entry, error) {
	if e, ok := c.Get(fp); ok {
		c.logger.Debug("cache hit", zap.String("fingerprint", shortFp(fp)))
		return e, nil
	}

	ch := c.group.DoChan(string(fp), func() (interface{}, error) {
		// Double-check under the flight: another flight may have stored
		// the entry between our miss and this callback.
		if e, ok := c.Get(fp); ok {
			return e, nil
		}
		e, err := compute(ctx)
		if err != nil {
			// Nothing is published on failure or cancellation: the cache
			// holds either a complete entry or none.
			return nil, err
		}
		c.store(fp, e)
		return e, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.Debug("joined in-flight computation", zap.String("fingerprint", shortFp(fp)))
		}
		return res.Val.(*Entry), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) store(fp Fingerprint, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[fp]; ok {
		el.Value.(*lruItem).entry = e
		c.ll.MoveToFront(el)
		return
	}
	c.items[fp] = c.ll.PushFront(&lruItem{fp: fp, entry: e})
	for c.ll.Len() > c.maxEntries {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		victim := oldest.Value.(*lruItem)
		c.ll.Remove(oldest)
		delete(c.items, victim.fp)
		c.logger.Debug("evicted", zap.String("fingerprint", shortFp(victim.fp)))
	}
}

// InvalidateOlderThan drops every entry computed under a schema version
// below v. Wired to the registry's version-change notifications so an entry
// is never served against a newer schema than it was computed under.
func (c *Cache) InvalidateOlderThan(v uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for el := c.ll.Front(); el != nil; {
		next := el.Next()
		item := el.Value.(*lruItem)
		if item.entry.Artifact.SchemaVersion < v {
			c.ll.Remove(el)
			delete(c.items, item.fp)
			dropped++
		}
		el = next
	}
	if dropped > 0 {
		c.logger.Info("invalidated cache entries",
			zap.Uint64("schema_version", v),
			zap.Int("dropped", dropped))
	}
	return dropped
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func shortFp(fp Fingerprint) string {
	if len(fp) > 12 {
		return string(fp[:12])
	}
	return string(fp)
}
