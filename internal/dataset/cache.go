package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kalambet/offerjourney/internal/journey"
	"github.com/kalambet/offerjourney/internal/metrics"
	"github.com/kalambet/offerjourney/internal/storage"
)

// TableReader defines the storage operation the Cache needs.
// Implemented by storage.Store.
type TableReader interface {
	ListInteractionRecords(ctx context.Context) ([]storage.InteractionRecord, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Cache loads the interaction table once and serves it read-only.
// Concurrent first callers share a single load. A zero TTL keeps the table
// until Invalidate is called.
type Cache struct {
	reader TableReader
	clock  Clock
	ttl    time.Duration
	logger *slog.Logger

	group singleflight.Group

	mu       sync.RWMutex
	table    *Table
	loadedAt time.Time
	gen      uint64
}

// NewCache creates a Cache over reader with the given TTL.
func NewCache(reader TableReader, ttl time.Duration) *Cache {
	return NewCacheWithClock(reader, realClock{}, ttl)
}

// NewCacheWithClock creates a Cache with a custom clock (for testing).
func NewCacheWithClock(reader TableReader, clock Clock, ttl time.Duration) *Cache {
	return &Cache{
		reader: reader,
		clock:  clock,
		ttl:    ttl,
		logger: slog.Default(),
	}
}

func (c *Cache) fresh() bool {
	if c.table == nil {
		return false
	}
	return c.ttl <= 0 || c.clock.Now().Before(c.loadedAt.Add(c.ttl))
}

// Table returns the cached table, loading it on first use or after expiry.
func (c *Cache) Table(ctx context.Context) (*Table, error) {
	c.mu.RLock()
	if c.fresh() {
		t := c.table
		c.mu.RUnlock()
		return t, nil
	}
	gen := c.gen
	c.mu.RUnlock()

	ch := c.group.DoChan("table", func() (any, error) {
		return c.load(context.WithoutCancel(ctx), gen)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Table), nil
	}
}

func (c *Cache) load(ctx context.Context, gen uint64) (*Table, error) {
	start := c.clock.Now()
	records, err := c.reader.ListInteractionRecords(ctx)
	if err != nil {
		metrics.RecordDatasetLoad(0, err)
		return nil, fmt.Errorf("loading interaction table: %w", err)
	}
	t := NewTable(records)
	metrics.RecordDatasetLoad(t.Len(), nil)

	c.mu.Lock()
	// An Invalidate during the load means these rows may be stale; hand them
	// to the waiting callers but do not keep them.
	if c.gen == gen {
		c.table = t
		c.loadedAt = c.clock.Now()
	}
	c.mu.Unlock()

	c.logger.Debug("interaction table loaded",
		"rows", t.Len(), "customers", len(t.keys), "duration", c.clock.Now().Sub(start))
	return t, nil
}

// Invalidate drops the cached table so the next call reloads it.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.table = nil
	c.gen++
	c.mu.Unlock()
	c.group.Forget("table")
}

// History returns the customer's interaction rows.
func (c *Cache) History(ctx context.Context, key int64) ([]journey.InteractionRow, error) {
	t, err := c.Table(ctx)
	if err != nil {
		return nil, err
	}
	return t.History(key), nil
}

// Customer returns the customer's profile.
func (c *Cache) Customer(ctx context.Context, key int64) (Customer, error) {
	t, err := c.Table(ctx)
	if err != nil {
		return Customer{}, err
	}
	return t.Customer(key), nil
}

// CustomerKeys returns every customer key in ascending order.
func (c *Cache) CustomerKeys(ctx context.Context) ([]int64, error) {
	t, err := c.Table(ctx)
	if err != nil {
		return nil, err
	}
	return t.CustomerKeys(), nil
}
