package catalog

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/crm-dashboard/internal/domain/product"
)

// Target names the views a mutation patched speculatively.
type Target uint8

const (
	TargetNone Target = iota
	TargetCollection
	TargetItem
	TargetBoth
)

func (t Target) String() string {
	switch t {
	case TargetCollection:
		return "collection"
	case TargetItem:
		return "item"
	case TargetBoth:
		return "both"
	default:
		return "none"
	}
}

func targetOf(collection, item bool) Target {
	switch {
	case collection && item:
		return TargetBoth
	case collection:
		return TargetCollection
	case item:
		return TargetItem
	default:
		return TargetNone
	}
}

// pendingMutation lives from issue until the remote call settles.
// undo is the inverse patch; it and commit run under the cache write lock.
type pendingMutation struct {
	id        uuid.UUID
	op        Op
	productID int64
	target    Target
	gen       uint64
	issued    time.Time
	undo      func()
	commit    func(product.Product)
	// dropped counts view entries a committed create displaced.
	dropped int
}

type settlement struct {
	product product.Product
	err     error
}

// Create prepends a provisional product, under a negative temporary id, to
// every cached first page and then issues the remote create. On success the
// provisional entry is replaced by the server's product; on failure it is
// removed again.
func (c *Cache) Create(ctx context.Context, in product.Input) (product.Product, error) {
	return c.issue(ctx, OpCreate, 0, func() *pendingMutation {
		c.tempSeq--
		tempID := c.tempSeq
		provisional := in.Product(tempID)

		var touched []*product.Collection
		for page, view := range c.views {
			if page.Skip != 0 {
				continue
			}
			view.Products = slices.Insert(view.Products, 0, provisional)
			view.Total++
			touched = append(touched, view)
		}

		pm := &pendingMutation{
			productID: tempID,
			target:    targetOf(len(touched) > 0, false),
		}
		pm.undo = func() {
			for _, view := range touched {
				if i := view.IndexOf(tempID); i >= 0 {
					view.Products = slices.Delete(view.Products, i, i+1)
					view.Total--
				}
			}
		}
		pm.commit = func(created product.Product) {
			for _, view := range touched {
				i := view.IndexOf(tempID)
				if i < 0 {
					continue
				}
				view.Products[i] = created
				// The server id may already be listed; keep the swapped entry only.
				for j := range view.Products {
					if j != i && view.Products[j].ID == created.ID {
						view.Products = slices.Delete(view.Products, j, j+1)
						view.Total--
						pm.dropped++
						break
					}
				}
			}
			c.items[created.ID] = created
		}
		return pm
	}, func(ctx context.Context) (product.Product, error) {
		return c.remote.CreateProduct(ctx, in)
	})
}

// Update merges patch into every cached copy of product id, in collection
// views and the item view alike, then issues the remote update. On failure
// exactly the patched fields are restored to their values at issue time.
// The remote call is issued even when nothing is cached. Temporary ids are
// refused with ErrProvisional.
func (c *Cache) Update(ctx context.Context, id int64, patch product.Patch) (product.Product, error) {
	if id < 0 {
		return product.Product{}, errors.Wrapf(ErrProvisional, "update product %d", id)
	}
	return c.issue(ctx, OpUpdate, id, func() *pendingMutation {
		type fieldUndo struct {
			view    *product.Collection
			inverse product.Patch
		}
		var undos []fieldUndo
		for _, view := range c.views {
			i := view.IndexOf(id)
			if i < 0 {
				continue
			}
			undos = append(undos, fieldUndo{view: view, inverse: patch.Capture(view.Products[i])})
			view.Products[i] = patch.Apply(view.Products[i])
		}

		var itemInverse *product.Patch
		if it, ok := c.items[id]; ok {
			inv := patch.Capture(it)
			itemInverse = &inv
			c.items[id] = patch.Apply(it)
		}

		return &pendingMutation{
			productID: id,
			target:    targetOf(len(undos) > 0, itemInverse != nil),
			undo: func() {
				for _, u := range undos {
					if i := u.view.IndexOf(id); i >= 0 {
						u.view.Products[i] = u.inverse.Apply(u.view.Products[i])
					}
				}
				if itemInverse != nil {
					if it, ok := c.items[id]; ok {
						c.items[id] = itemInverse.Apply(it)
					}
				}
			},
		}
	}, func(ctx context.Context) (product.Product, error) {
		return c.remote.UpdateProduct(ctx, id, patch)
	})
}

// Remove drops product id from every collection view holding it, then issues
// the remote delete. On failure the entry is re-inserted at its original
// index. On success the item view for id is evicted as well. Temporary ids
// are refused with ErrProvisional.
func (c *Cache) Remove(ctx context.Context, id int64) error {
	if id < 0 {
		return errors.Wrapf(ErrProvisional, "remove product %d", id)
	}
	_, err := c.issue(ctx, OpRemove, id, func() *pendingMutation {
		type removal struct {
			view  *product.Collection
			index int
			item  product.Product
		}
		var removals []removal
		for _, view := range c.views {
			i := view.IndexOf(id)
			if i < 0 {
				continue
			}
			removals = append(removals, removal{view: view, index: i, item: view.Products[i]})
			view.Products = slices.Delete(view.Products, i, i+1)
			view.Total--
		}

		return &pendingMutation{
			productID: id,
			target:    targetOf(len(removals) > 0, false),
			undo: func() {
				for _, r := range removals {
					if r.view.IndexOf(id) >= 0 {
						continue
					}
					at := min(r.index, len(r.view.Products))
					r.view.Products = slices.Insert(r.view.Products, at, r.item)
					r.view.Total++
				}
			},
			commit: func(product.Product) {
				delete(c.items, id)
			},
		}
	}, func(ctx context.Context) (product.Product, error) {
		return product.Product{}, c.remote.DeleteProduct(ctx, id)
	})
	return err
}

// issue applies the speculative patch built by apply, runs call in its own
// goroutine and waits for it. If ctx ends first the caller gets ctx.Err()
// while the call keeps running and still settles the cache.
func (c *Cache) issue(
	ctx context.Context,
	op Op,
	productID int64,
	apply func() *pendingMutation,
	call func(context.Context) (product.Product, error),
) (product.Product, error) {
	c.mu.Lock()
	pm := apply()
	pm.id = uuid.New()
	pm.op = op
	pm.gen = c.gen
	pm.issued = time.Now()
	if pm.productID == 0 {
		pm.productID = productID
	}
	c.pending[pm.id] = pm
	c.mu.Unlock()

	bg := context.WithoutCancel(ctx)
	bg, span := c.tracer.Start(bg, "catalog."+string(op), trace.WithAttributes(
		attribute.String("catalog.mutation", pm.id.String()),
		attribute.Int64("catalog.product_id", pm.productID),
		attribute.String("catalog.target", pm.target.String()),
	))

	c.metrics.issued(bg)
	c.lg.Debug("Mutation issued",
		zap.Stringer("mutation", pm.id),
		zap.String("op", string(op)),
		zap.Int64("product_id", pm.productID),
		zap.Stringer("target", pm.target),
	)
	c.events.publish(Event{Kind: EventApplied, Mutation: pm.id, Op: op, ProductID: pm.productID})

	done := make(chan settlement, 1)
	go func() {
		defer span.End()

		p, err := call(bg)
		err = c.settle(bg, pm, p, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "mutation failed")
		}
		done <- settlement{product: p, err: err}
	}()

	select {
	case s := <-done:
		if s.err != nil {
			return product.Product{}, s.err
		}
		return s.product, nil
	case <-ctx.Done():
		return product.Product{}, ctx.Err()
	}
}

// settle commits or rolls back pm and reports the outcome. It returns the
// *MutationError handed to the caller, or nil.
func (c *Cache) settle(ctx context.Context, pm *pendingMutation, p product.Product, callErr error) error {
	var mutErr error
	if callErr != nil {
		mutErr = &MutationError{Op: pm.op, ProductID: pm.productID, Mutation: pm.id, Err: callErr}
	}

	c.mu.Lock()
	delete(c.pending, pm.id)
	stale := pm.gen != c.gen
	if !stale {
		switch {
		case callErr != nil:
			pm.undo()
		case pm.commit != nil:
			pm.commit(p)
		}
	}
	c.mu.Unlock()

	lg := c.lg.With(
		zap.Stringer("mutation", pm.id),
		zap.String("op", string(pm.op)),
		zap.Int64("product_id", pm.productID),
	)

	outcome := "committed"
	if callErr != nil {
		outcome = "rolled_back"
	}
	c.metrics.settled(ctx, pm.op, outcome, time.Since(pm.issued))

	if stale {
		lg.Debug("Mutation settled after reset, cache untouched", zap.String("outcome", outcome))
		return mutErr
	}

	if callErr != nil {
		lg.Warn("Mutation failed, rolled back", zap.Error(callErr))
		c.events.publish(Event{Kind: EventRolledBack, Mutation: pm.id, Op: pm.op, ProductID: pm.productID, Err: mutErr})
		return mutErr
	}

	ev := Event{Kind: EventCommitted, Mutation: pm.id, Op: pm.op, ProductID: pm.productID}
	if pm.op == OpCreate {
		ev.ProductID = p.ID
		ev.ReplacedID = pm.productID
	}
	lg.Debug("Mutation committed")
	c.events.publish(ev)

	if pm.dropped > 0 {
		lg.Warn("Committed product displaced a cached entry with the same id",
			zap.Int64("server_id", p.ID),
			zap.Int("entries", pm.dropped),
		)
		c.events.publish(Event{Kind: EventDisplaced, Mutation: pm.id, Op: pm.op, ProductID: p.ID})
	}
	return nil
}
