package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/crm-dashboard/internal/domain/product"
)

var errUpstream = errors.New("upstream unavailable")

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func seed() []product.Product {
	return []product.Product{
		{ID: 1, Title: "Essence Mascara", Price: d("9.99"), Stock: 99, Brand: "Essence", Category: product.CategorySkincare},
		{ID: 2, Title: "Eyeshadow Palette", Price: d("19.99"), Stock: 34, Brand: "Glamour", Category: product.CategorySkincare},
		{ID: 3, Title: "Powder Canister", Price: d("14.99"), Stock: 5, Brand: "Velvet", Category: product.CategorySkincare},
		{ID: 4, Title: "Red Lipstick", Price: d("12.99"), Stock: 68, Brand: "Chic", Category: product.CategorySkincare},
		{ID: 5, Title: "Red Nail Polish", Price: d("8.99"), Stock: 71, Brand: "Nail Couture", Category: product.CategorySkincare},
	}
}

type remoteReply struct {
	product product.Product
	err     error
}

// remoteCall is a mutation parked in fakeRemote until the test replies.
type remoteCall struct {
	op    Op
	id    int64
	in    product.Input
	patch product.Patch
	reply chan remoteReply
}

func (c remoteCall) succeed(p product.Product) { c.reply <- remoteReply{product: p} }
func (c remoteCall) fail(err error)            { c.reply <- remoteReply{err: err} }

// fakeRemote serves reads from a fixed data set. Mutations either settle
// immediately against that set or, when calls is set, wait for a reply.
type fakeRemote struct {
	calls chan remoteCall

	listCalls atomic.Int32
	getCalls  atomic.Int32
	listGate  chan struct{}

	mu       sync.Mutex
	products []product.Product
	nextID   int64
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{products: seed(), nextID: 101}
}

func (f *fakeRemote) ListProducts(ctx context.Context, page product.Page) (product.Collection, error) {
	f.listCalls.Add(1)
	if f.listGate != nil {
		select {
		case <-f.listGate:
		case <-ctx.Done():
			return product.Collection{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	page = page.Normalize()
	start := min(page.Skip, len(f.products))
	end := min(start+page.Limit, len(f.products))
	out := make([]product.Product, end-start)
	copy(out, f.products[start:end])
	return product.Collection{Products: out, Total: len(f.products), Skip: page.Skip, Limit: page.Limit}, nil
}

func (f *fakeRemote) GetProduct(_ context.Context, id int64) (product.Product, error) {
	f.getCalls.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range f.products {
		if p.ID == id {
			return p, nil
		}
	}
	return product.Product{}, product.ErrNotFound
}

func (f *fakeRemote) CreateProduct(_ context.Context, in product.Input) (product.Product, error) {
	return f.await(remoteCall{op: OpCreate, in: in})
}

func (f *fakeRemote) UpdateProduct(_ context.Context, id int64, patch product.Patch) (product.Product, error) {
	return f.await(remoteCall{op: OpUpdate, id: id, patch: patch})
}

func (f *fakeRemote) DeleteProduct(_ context.Context, id int64) error {
	_, err := f.await(remoteCall{op: OpRemove, id: id})
	return err
}

func (f *fakeRemote) await(c remoteCall) (product.Product, error) {
	if f.calls == nil {
		return f.settle(c)
	}
	c.reply = make(chan remoteReply, 1)
	f.calls <- c
	r := <-c.reply
	return r.product, r.err
}

func (f *fakeRemote) settle(c remoteCall) (product.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch c.op {
	case OpCreate:
		p := c.in.Product(f.nextID)
		f.nextID++
		return p, nil
	case OpUpdate:
		for _, p := range f.products {
			if p.ID == c.id {
				return c.patch.Apply(p), nil
			}
		}
	case OpRemove:
		for _, p := range f.products {
			if p.ID == c.id {
				return product.Product{}, nil
			}
		}
	}
	return product.Product{}, product.ErrNotFound
}

func newTestCache(t *testing.T, remote product.Repository) *Cache {
	t.Helper()
	c, err := New(remote, Options{})
	require.NoError(t, err)
	return c
}

func expectCall(t *testing.T, calls <-chan remoteCall) remoteCall {
	t.Helper()
	select {
	case c := <-calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("remote call was not issued")
		return remoteCall{}
	}
}

type result struct {
	product product.Product
	err     error
}

func wait(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("mutation did not return")
		return result{}
	}
}

func goCreate(ctx context.Context, c *Cache, in product.Input) <-chan result {
	ch := make(chan result, 1)
	go func() {
		p, err := c.Create(ctx, in)
		ch <- result{product: p, err: err}
	}()
	return ch
}

func goUpdate(ctx context.Context, c *Cache, id int64, patch product.Patch) <-chan result {
	ch := make(chan result, 1)
	go func() {
		p, err := c.Update(ctx, id, patch)
		ch <- result{product: p, err: err}
	}()
	return ch
}

func goRemove(ctx context.Context, c *Cache, id int64) <-chan result {
	ch := make(chan result, 1)
	go func() {
		ch <- result{err: c.Remove(ctx, id)}
	}()
	return ch
}

func newInput(title string) product.Input {
	return product.Input{
		Title:       title,
		Description: "Fresh stock",
		Price:       d("5.50"),
		Stock:       3,
		Brand:       "Acme",
		Category:    product.CategoryGroceries,
	}
}

func stockPatch(v int) product.Patch {
	return product.Patch{Stock: &v}
}

func findProduct(t *testing.T, col product.Collection, id int64) product.Product {
	t.Helper()
	i := col.IndexOf(id)
	require.GreaterOrEqual(t, i, 0, "product %d not in view", id)
	return col.Products[i]
}

func mustCollection(t *testing.T, c *Cache, page product.Page) product.Collection {
	t.Helper()
	col, ok := c.Collection(page)
	require.True(t, ok, "page %+v not cached", page)
	return col
}

func TestList_Idempotent(t *testing.T) {
	remote := newFakeRemote()
	c := newTestCache(t, remote)
	ctx := context.Background()

	first, err := c.List(ctx, product.Page{})
	require.NoError(t, err)
	second, err := c.List(ctx, product.Page{Limit: product.DefaultLimit})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), remote.listCalls.Load())
	assert.Equal(t, 5, first.Total)
	assert.Len(t, first.Products, 5)
}

func TestList_ReturnsCopies(t *testing.T) {
	c := newTestCache(t, newFakeRemote())
	ctx := context.Background()

	col, err := c.List(ctx, product.Page{})
	require.NoError(t, err)
	col.Products[0].Title = "changed"

	again, err := c.List(ctx, product.Page{})
	require.NoError(t, err)
	assert.Equal(t, "Essence Mascara", again.Products[0].Title)
}

func TestList_CoalescesConcurrentMisses(t *testing.T) {
	remote := newFakeRemote()
	remote.listGate = make(chan struct{})
	c := newTestCache(t, remote)

	const readers = 8
	var wg sync.WaitGroup
	errs := make(chan error, readers)
	for range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.List(context.Background(), product.Page{})
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return remote.listCalls.Load() >= 1 }, time.Second, time.Millisecond)
	close(remote.listGate)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), remote.listCalls.Load())
}

func TestList_CanceledCallerDoesNotFailOthers(t *testing.T) {
	remote := newFakeRemote()
	remote.listGate = make(chan struct{})
	c := newTestCache(t, remote)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := make(chan error, 1)
	go func() {
		_, err := c.List(ctx, product.Page{})
		first <- err
	}()
	require.Eventually(t, func() bool { return remote.listCalls.Load() == 1 }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() {
		_, err := c.List(context.Background(), product.Page{})
		second <- err
	}()

	cancel()
	select {
	case err := <-first:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("canceled caller did not return")
	}

	close(remote.listGate)
	select {
	case err := <-second:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not return")
	}

	_, ok := c.Collection(product.Page{})
	assert.True(t, ok, "fetch started by the canceled caller still fills the view")
	assert.Equal(t, int32(1), remote.listCalls.Load())
}

func TestGetByID(t *testing.T) {
	remote := newFakeRemote()
	c := newTestCache(t, remote)
	ctx := context.Background()

	p, err := c.GetByID(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "Powder Canister", p.Title)

	_, err = c.GetByID(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int32(1), remote.getCalls.Load())

	_, err = c.GetByID(ctx, 999)
	require.ErrorIs(t, err, product.ErrNotFound)
	_, ok := c.Item(999)
	assert.False(t, ok)
}

func TestCreate_OptimisticThenSwapped(t *testing.T) {
	remote := newFakeRemote()
	remote.calls = make(chan remoteCall)
	c := newTestCache(t, remote)
	ctx := context.Background()

	_, err := c.List(ctx, product.Page{})
	require.NoError(t, err)

	res := goCreate(ctx, c, newInput("Honey Jar"))
	call := expectCall(t, remote.calls)

	col := mustCollection(t, c, product.Page{})
	require.Len(t, col.Products, 6)
	provisional := col.Products[0]
	assert.Negative(t, provisional.ID)
	assert.Equal(t, "Honey Jar", provisional.Title)
	assert.Equal(t, 6, col.Total)
	assert.Equal(t, 1, c.Pending())

	created := call.in.Product(194)
	call.succeed(created)

	r := wait(t, res)
	require.NoError(t, r.err)
	assert.Equal(t, int64(194), r.product.ID)

	col = mustCollection(t, c, product.Page{})
	require.Len(t, col.Products, 6)
	assert.Equal(t, created, col.Products[0])
	assert.Equal(t, -1, col.IndexOf(provisional.ID))
	assert.Equal(t, 6, col.Total)
	assert.Equal(t, 0, c.Pending())

	item, ok := c.Item(194)
	require.True(t, ok)
	assert.Equal(t, created, item)
}

func TestCreate_OnlyFirstPages(t *testing.T) {
	c := newTestCache(t, newFakeRemote())
	ctx := context.Background()

	second := product.Page{Limit: 2, Skip: 2}
	_, err := c.List(ctx, second)
	require.NoError(t, err)
	before := mustCollection(t, c, second)

	_, err = c.Create(ctx, newInput("Honey Jar"))
	require.NoError(t, err)

	assert.Equal(t, before, mustCollection(t, c, second))
}

func TestCreate_RollbackRestoresView(t *testing.T) {
	remote := newFakeRemote()
	remote.calls = make(chan remoteCall)
	c := newTestCache(t, remote)
	ctx := context.Background()

	_, err := c.List(ctx, product.Page{})
	require.NoError(t, err)
	before := mustCollection(t, c, product.Page{})

	res := goCreate(ctx, c, newInput("Honey Jar"))
	expectCall(t, remote.calls).fail(errUpstream)

	r := wait(t, res)
	require.ErrorIs(t, r.err, ErrMutationFailed)
	require.ErrorIs(t, r.err, errUpstream)

	var mutErr *MutationError
	require.ErrorAs(t, r.err, &mutErr)
	assert.Equal(t, OpCreate, mutErr.Op)
	assert.Negative(t, mutErr.ProductID)

	assert.Equal(t, before, mustCollection(t, c, product.Page{}))
	assert.Equal(t, 0, c.Pending())
}

func TestCreate_ConcurrentAreIndependent(t *testing.T) {
	remote := newFakeRemote()
	remote.calls = make(chan remoteCall)
	c := newTestCache(t, remote)
	ctx := context.Background()

	_, err := c.List(ctx, product.Page{})
	require.NoError(t, err)

	first := goCreate(ctx, c, newInput("Honey Jar"))
	firstCall := expectCall(t, remote.calls)
	second := goCreate(ctx, c, newInput("Olive Oil"))
	secondCall := expectCall(t, remote.calls)

	col := mustCollection(t, c, product.Page{})
	require.Len(t, col.Products, 7)
	assert.Equal(t, "Olive Oil", col.Products[0].Title)
	assert.Equal(t, "Honey Jar", col.Products[1].Title)

	firstCall.fail(errUpstream)
	require.ErrorIs(t, wait(t, first).err, ErrMutationFailed)

	created := secondCall.in.Product(194)
	secondCall.succeed(created)
	require.NoError(t, wait(t, second).err)

	col = mustCollection(t, c, product.Page{})
	require.Len(t, col.Products, 6)
	assert.Equal(t, created, col.Products[0])
	assert.Equal(t, 6, col.Total)
	for _, p := range col.Products {
		assert.NotEqual(t, "Honey Jar", p.Title)
	}
}

func TestCreate_SameServerIDIsNotDuplicated(t *testing.T) {
	remote := newFakeRemote()
	remote.calls = make(chan remoteCall)
	c := newTestCache(t, remote)
	ctx := context.Background()

	_, err := c.List(ctx, product.Page{})
	require.NoError(t, err)

	first := goCreate(ctx, c, newInput("Honey Jar"))
	firstCall := expectCall(t, remote.calls)
	second := goCreate(ctx, c, newInput("Olive Oil"))
	secondCall := expectCall(t, remote.calls)

	firstCall.succeed(firstCall.in.Product(194))
	require.NoError(t, wait(t, first).err)
	secondCall.succeed(secondCall.in.Product(194))
	require.NoError(t, wait(t, second).err)

	col := mustCollection(t, c, product.Page{})
	seen := 0
	for _, p := range col.Products {
		if p.ID == 194 {
			seen++
		}
	}
	assert.Equal(t, 1, seen)
	assert.Len(t, col.Products, 6)
	assert.Equal(t, 6, col.Total)
}

func TestCreate_DisplacedEntryIsReported(t *testing.T) {
	remote := newFakeRemote()
	remote.calls = make(chan remoteCall)
	c := newTestCache(t, remote)
	ctx := context.Background()

	_, err := c.List(ctx, product.Page{})
	require.NoError(t, err)
	events, cancel := c.Subscribe(16)
	defer cancel()

	first := goCreate(ctx, c, newInput("Honey Jar"))
	firstCall := expectCall(t, remote.calls)
	second := goCreate(ctx, c, newInput("Olive Oil"))
	secondCall := expectCall(t, remote.calls)

	firstCall.succeed(firstCall.in.Product(194))
	require.NoError(t, wait(t, first).err)
	secondCall.succeed(secondCall.in.Product(194))
	require.NoError(t, wait(t, second).err)

	var applied, displaced []Event
	for len(events) > 0 {
		switch ev := <-events; ev.Kind {
		case EventApplied:
			applied = append(applied, ev)
		case EventDisplaced:
			displaced = append(displaced, ev)
		}
	}
	require.Len(t, applied, 2)
	require.Len(t, displaced, 1)
	assert.Equal(t, int64(194), displaced[0].ProductID)
	assert.Equal(t, OpCreate, displaced[0].Op)
	assert.Equal(t, applied[1].Mutation, displaced[0].Mutation)
}

func TestUpdate_StockRollback(t *testing.T) {
	remote := newFakeRemote()
	remote.calls = make(chan remoteCall)
	c := newTestCache(t, remote)
	ctx := context.Background()

	_, err := c.List(ctx, product.Page{})
	require.NoError(t, err)
	_, err = c.GetByID(ctx, 3)
	require.NoError(t, err)
	before := mustCollection(t, c, product.Page{})

	res := goUpdate(ctx, c, 3, stockPatch(0))
	call := expectCall(t, remote.calls)

	assert.Equal(t, 0, findProduct(t, mustCollection(t, c, product.Page{}), 3).Stock)
	item, ok := c.Item(3)
	require.True(t, ok)
	assert.Equal(t, 0, item.Stock)

	call.fail(errUpstream)
	r := wait(t, res)
	require.ErrorIs(t, r.err, ErrMutationFailed)

	assert.Equal(t, before, mustCollection(t, c, product.Page{}))
	item, ok = c.Item(3)
	require.True(t, ok)
	assert.Equal(t, 5, item.Stock)
}

func TestUpdate_RollbackKeepsUntouchedFields(t *testing.T) {
	remote := newFakeRemote()
	remote.calls = make(chan remoteCall)
	c := newTestCache(t, remote)
	ctx := context.Background()

	_, err := c.List(ctx, product.Page{})
	require.NoError(t, err)

	stock := goUpdate(ctx, c, 3, stockPatch(0))
	stockCall := expectCall(t, remote.calls)
	title := "Loose Powder"
	rename := goUpdate(ctx, c, 3, product.Patch{Title: &title})
	renameCall := expectCall(t, remote.calls)

	stockCall.fail(errUpstream)
	require.ErrorIs(t, wait(t, stock).err, ErrMutationFailed)

	got := findProduct(t, mustCollection(t, c, product.Page{}), 3)
	assert.Equal(t, 5, got.Stock)
	assert.Equal(t, "Loose Powder", got.Title)

	renameCall.succeed(renameCall.patch.Apply(seed()[2]))
	require.NoError(t, wait(t, rename).err)
	assert.Equal(t, "Loose Powder", findProduct(t, mustCollection(t, c, product.Page{}), 3).Title)
}

func TestUpdate_SuccessKeepsPatch(t *testing.T) {
	c := newTestCache(t, newFakeRemote())
	ctx := context.Background()

	_, err := c.List(ctx, product.Page{})
	require.NoError(t, err)

	echo, err := c.Update(ctx, 3, stockPatch(0))
	require.NoError(t, err)
	assert.Equal(t, 0, echo.Stock)
	assert.Equal(t, "Powder Canister", echo.Title)

	assert.Equal(t, 0, findProduct(t, mustCollection(t, c, product.Page{}), 3).Stock)

	_, err = c.Update(ctx, 3, stockPatch(5))
	require.NoError(t, err)
	assert.Equal(t, 5, findProduct(t, mustCollection(t, c, product.Page{}), 3).Stock)
}

func TestUpdate_UncachedStillCallsRemote(t *testing.T) {
	remote := newFakeRemote()
	remote.calls = make(chan remoteCall)
	c := newTestCache(t, remote)
	ctx := context.Background()

	res := goUpdate(ctx, c, 4, stockPatch(1))
	call := expectCall(t, remote.calls)
	assert.Equal(t, OpUpdate, call.op)
	assert.Equal(t, int64(4), call.id)

	call.fail(product.ErrNotFound)
	r := wait(t, res)
	require.ErrorIs(t, r.err, ErrMutationFailed)
	require.ErrorIs(t, r.err, product.ErrNotFound)
}

func TestUpdate_AllViewsStayConsistent(t *testing.T) {
	c := newTestCache(t, newFakeRemote())
	ctx := context.Background()

	small := product.Page{Limit: 3}
	wide := product.Page{Limit: 10}
	_, err := c.List(ctx, small)
	require.NoError(t, err)
	_, err = c.List(ctx, wide)
	require.NoError(t, err)

	price := d("11.50")
	_, err = c.Update(ctx, 2, product.Patch{Price: &price})
	require.NoError(t, err)

	assert.True(t, price.Equal(findProduct(t, mustCollection(t, c, small), 2).Price))
	assert.True(t, price.Equal(findProduct(t, mustCollection(t, c, wide), 2).Price))
}

func TestRemove_RollbackReinsertsAtIndex(t *testing.T) {
	remote := newFakeRemote()
	remote.calls = make(chan remoteCall)
	c := newTestCache(t, remote)
	ctx := context.Background()

	_, err := c.List(ctx, product.Page{})
	require.NoError(t, err)
	before := mustCollection(t, c, product.Page{})

	res := goRemove(ctx, c, 3)
	call := expectCall(t, remote.calls)

	col := mustCollection(t, c, product.Page{})
	assert.Equal(t, -1, col.IndexOf(3))
	assert.Equal(t, 4, col.Total)

	call.fail(errUpstream)
	r := wait(t, res)
	require.ErrorIs(t, r.err, ErrMutationFailed)

	col = mustCollection(t, c, product.Page{})
	assert.Equal(t, before, col)
	assert.Equal(t, 2, col.IndexOf(3))
}

func TestRemove_SuccessEvictsItem(t *testing.T) {
	c := newTestCache(t, newFakeRemote())
	ctx := context.Background()

	_, err := c.List(ctx, product.Page{})
	require.NoError(t, err)
	_, err = c.GetByID(ctx, 3)
	require.NoError(t, err)

	require.NoError(t, c.Remove(ctx, 3))

	col := mustCollection(t, c, product.Page{})
	assert.Equal(t, -1, col.IndexOf(3))
	assert.Equal(t, 4, col.Total)
	_, ok := c.Item(3)
	assert.False(t, ok)
}

func TestRemove_FailureKeepsItem(t *testing.T) {
	remote := newFakeRemote()
	remote.calls = make(chan remoteCall)
	c := newTestCache(t, remote)
	ctx := context.Background()

	_, err := c.GetByID(ctx, 3)
	require.NoError(t, err)

	res := goRemove(ctx, c, 3)
	expectCall(t, remote.calls).fail(errUpstream)
	require.ErrorIs(t, wait(t, res).err, ErrMutationFailed)

	_, ok := c.Item(3)
	assert.True(t, ok)
}

func TestMutation_TemporaryIDIsRefused(t *testing.T) {
	remote := newFakeRemote()
	remote.calls = make(chan remoteCall)
	c := newTestCache(t, remote)
	ctx := context.Background()

	before, err := c.List(ctx, product.Page{})
	require.NoError(t, err)

	res := goCreate(ctx, c, newInput("Honey Jar"))
	call := expectCall(t, remote.calls)
	tempID := mustCollection(t, c, product.Page{}).Products[0].ID
	require.Negative(t, tempID)

	require.ErrorIs(t, c.Remove(ctx, tempID), ErrProvisional)
	_, err = c.Update(ctx, tempID, stockPatch(1))
	require.ErrorIs(t, err, ErrProvisional)
	assert.Equal(t, 1, c.Pending(), "refused mutations issue no remote call")

	call.fail(errUpstream)
	require.ErrorIs(t, wait(t, res).err, ErrMutationFailed)

	assert.Equal(t, before, mustCollection(t, c, product.Page{}))
	assert.Zero(t, c.Pending())
}

func TestReset_IgnoresStaleSettlement(t *testing.T) {
	remote := newFakeRemote()
	remote.calls = make(chan remoteCall)
	c := newTestCache(t, remote)
	ctx := context.Background()

	_, err := c.List(ctx, product.Page{})
	require.NoError(t, err)

	res := goRemove(ctx, c, 3)
	call := expectCall(t, remote.calls)

	c.Reset()
	_, ok := c.Collection(product.Page{})
	require.False(t, ok)

	fresh, err := c.List(ctx, product.Page{})
	require.NoError(t, err)

	call.fail(errUpstream)
	require.ErrorIs(t, wait(t, res).err, ErrMutationFailed)

	assert.Equal(t, fresh, mustCollection(t, c, product.Page{}))
	assert.Equal(t, 0, c.Pending())
}

func TestMutation_CanceledCallerStillSettles(t *testing.T) {
	remote := newFakeRemote()
	remote.calls = make(chan remoteCall)
	c := newTestCache(t, remote)

	_, err := c.List(context.Background(), product.Page{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	res := goUpdate(ctx, c, 3, stockPatch(0))
	call := expectCall(t, remote.calls)

	cancel()
	require.ErrorIs(t, wait(t, res).err, context.Canceled)
	assert.Equal(t, 1, c.Pending())

	call.fail(errUpstream)
	require.Eventually(t, func() bool { return c.Pending() == 0 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, 5, findProduct(t, mustCollection(t, c, product.Page{}), 3).Stock)
}

func TestSubscribe(t *testing.T) {
	c := newTestCache(t, newFakeRemote())
	ctx := context.Background()

	events, cancel := c.Subscribe(8)
	defer cancel()

	_, err := c.List(ctx, product.Page{})
	require.NoError(t, err)
	created, err := c.Create(ctx, newInput("Honey Jar"))
	require.NoError(t, err)

	next := func() Event {
		t.Helper()
		select {
		case ev := <-events:
			return ev
		case <-time.After(time.Second):
			t.Fatal("no event")
			return Event{}
		}
	}

	assert.Equal(t, EventFetched, next().Kind)

	applied := next()
	assert.Equal(t, EventApplied, applied.Kind)
	assert.Equal(t, OpCreate, applied.Op)
	assert.Negative(t, applied.ProductID)

	committed := next()
	assert.Equal(t, EventCommitted, committed.Kind)
	assert.Equal(t, applied.Mutation, committed.Mutation)
	assert.Equal(t, created.ID, committed.ProductID)
	assert.Equal(t, applied.ProductID, committed.ReplacedID)

	c.Reset()
	assert.Equal(t, EventReset, next().Kind)

	cancel()
	assert.Equal(t, 0, c.events.len())
	_, open := <-events
	assert.False(t, open)
}

func TestSubscribe_SlowSubscriberDoesNotBlock(t *testing.T) {
	c := newTestCache(t, newFakeRemote())
	ctx := context.Background()

	_, cancel := c.Subscribe(1)
	defer cancel()

	for i := range 5 {
		_, err := c.Update(ctx, int64(i+1), stockPatch(i))
		require.NoError(t, err)
	}
}

func TestWarm(t *testing.T) {
	remote := newFakeRemote()
	c := newTestCache(t, remote)

	pages := []product.Page{{Limit: 2}, {Limit: 2, Skip: 2}, {Limit: 2, Skip: 4}}
	require.NoError(t, c.Warm(context.Background(), pages...))

	for _, page := range pages {
		_, ok := c.Collection(page)
		assert.True(t, ok)
	}
	assert.Equal(t, int32(3), remote.listCalls.Load())
}
