// Package catalog keeps a client-side view of the remote product resource.
//
// Mutations are optimistic: the speculative patch is applied to every cached
// view before the remote call is issued, and each mutation carries its own
// inverse patch, captured at issue time, which is applied if the remote call
// fails. Inverses are operation based (remove this insertion, restore these
// fields, re-insert this entry) rather than whole-view snapshots, so failing
// one of several interleaved mutations only undoes that mutation.
//
// Overlapping updates of the same field on the same product do not commute:
// if the earlier one fails after the later one was issued, its inverse
// restores the value seen at its own issue time and overwrites the later
// speculative value.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/crm-dashboard/internal/domain/product"
)

// Options configures a Cache. Zero values select no-op implementations.
type Options struct {
	Logger         *zap.Logger
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.MeterProvider == nil {
		o.MeterProvider = metricnoop.NewMeterProvider()
	}
	if o.TracerProvider == nil {
		o.TracerProvider = tracenoop.NewTracerProvider()
	}
}

// Cache is the optimistic product cache. It holds any number of collection
// views (one per Page) and standalone item views keyed by id.
type Cache struct {
	remote  product.Repository
	lg      *zap.Logger
	tracer  trace.Tracer
	metrics *cacheMetrics
	events  *broadcaster
	flight  singleflight.Group

	mu sync.RWMutex
	// gen is bumped by Reset; settlements from an older generation are dropped.
	gen     uint64
	tempSeq int64
	views   map[product.Page]*product.Collection
	items   map[int64]product.Product
	pending map[uuid.UUID]*pendingMutation
}

// New creates an empty Cache over the remote repository.
func New(remote product.Repository, opts Options) (*Cache, error) {
	opts.setDefaults()

	m, err := newCacheMetrics(opts.MeterProvider.Meter("github.com/xenking/crm-dashboard/internal/catalog"))
	if err != nil {
		return nil, errors.Wrap(err, "init metrics")
	}

	return &Cache{
		remote:  remote,
		lg:      opts.Logger,
		tracer:  opts.TracerProvider.Tracer("github.com/xenking/crm-dashboard/internal/catalog"),
		metrics: m,
		events:  newBroadcaster(opts.Logger),
		views:   make(map[product.Page]*product.Collection),
		items:   make(map[int64]product.Product),
		pending: make(map[uuid.UUID]*pendingMutation),
	}, nil
}

// List returns the collection view for page, fetching it on a miss.
// Concurrent misses for the same page share one remote call.
func (c *Cache) List(ctx context.Context, page product.Page) (product.Collection, error) {
	page = page.Normalize()

	if col, ok := c.Collection(page); ok {
		c.metrics.read(ctx, "list", true)
		return col, nil
	}
	c.metrics.read(ctx, "list", false)

	fetchCtx := context.WithoutCancel(ctx)
	key := fmt.Sprintf("list:%d:%d", page.Limit, page.Skip)
	v, err := c.shared(ctx, key, func() (any, error) {
		if col, ok := c.Collection(page); ok {
			return col, nil
		}
		gen := c.generation()

		col, err := c.remote.ListProducts(fetchCtx, page)
		if err != nil {
			return nil, err
		}
		if col.Limit == 0 {
			col.Limit = page.Limit
		}
		col.Skip = page.Skip

		c.mu.Lock()
		defer c.mu.Unlock()

		if existing, ok := c.views[page]; ok {
			return existing.Clone(), nil
		}
		stored := col.Clone()
		if gen == c.gen {
			c.views[page] = &stored
		}
		return stored.Clone(), nil
	})
	if err != nil {
		return product.Collection{}, errors.Wrap(err, "list products")
	}

	c.events.publish(Event{Kind: EventFetched})
	return v.(product.Collection).Clone(), nil
}

// GetByID returns the item view for id, fetching it on a miss. A missing
// remote product yields an error matching product.ErrNotFound.
func (c *Cache) GetByID(ctx context.Context, id int64) (product.Product, error) {
	if p, ok := c.Item(id); ok {
		c.metrics.read(ctx, "item", true)
		return p, nil
	}
	c.metrics.read(ctx, "item", false)

	fetchCtx := context.WithoutCancel(ctx)
	v, err := c.shared(ctx, fmt.Sprintf("item:%d", id), func() (any, error) {
		if p, ok := c.Item(id); ok {
			return p, nil
		}
		gen := c.generation()

		p, err := c.remote.GetProduct(fetchCtx, id)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		if existing, ok := c.items[id]; ok {
			return existing, nil
		}
		if gen == c.gen {
			c.items[id] = p
		}
		return p, nil
	})
	if err != nil {
		return product.Product{}, errors.Wrapf(err, "get product %d", id)
	}

	c.events.publish(Event{Kind: EventFetched, ProductID: id})
	return v.(product.Product), nil
}

// shared runs fetch once per key across concurrent callers. fetch must not
// observe any caller's cancellation; it is bounded by the remote timeout.
// Each caller stops waiting when its own ctx ends.
func (c *Cache) shared(ctx context.Context, key string, fetch func() (any, error)) (any, error) {
	select {
	case res := <-c.flight.DoChan(key, fetch):
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Collection returns a copy of the cached view for page without fetching.
func (c *Cache) Collection(page product.Page) (product.Collection, bool) {
	page = page.Normalize()

	c.mu.RLock()
	defer c.mu.RUnlock()

	view, ok := c.views[page]
	if !ok {
		return product.Collection{}, false
	}
	return view.Clone(), true
}

// Item returns the cached item view for id without fetching.
func (c *Cache) Item(id int64) (product.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.items[id]
	return p, ok
}

// Pending returns the number of mutations issued but not yet settled.
func (c *Cache) Pending() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pending)
}

// Subscribe registers a listener for cache events. The returned cancel func
// unregisters it and closes the channel.
func (c *Cache) Subscribe(buffer int) (<-chan Event, func()) {
	return c.events.subscribe(buffer)
}

// Reset drops every cached view. Mutations still in flight settle without
// touching the new state.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.gen++
	c.views = make(map[product.Page]*product.Collection)
	c.items = make(map[int64]product.Product)
	c.mu.Unlock()

	c.lg.Debug("Cache reset")
	c.events.publish(Event{Kind: EventReset})
}

// Warm fetches the given pages concurrently.
func (c *Cache) Warm(ctx context.Context, pages ...product.Page) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, page := range pages {
		g.Go(func() error {
			_, err := c.List(ctx, page)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "warm cache")
	}
	return nil
}

func (c *Cache) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}
