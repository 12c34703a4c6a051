package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// DefaultLimit is the page size used when a Page leaves Limit unset.
const DefaultLimit = 30

// Product represents a catalog record managed from the dashboard.
type Product struct {
	ID                 int64
	Title              string
	Description        string
	Price              decimal.Decimal
	DiscountPercentage decimal.Decimal
	Rating             float64
	Stock              int
	Brand              string
	Category           Category
	Thumbnail          string
}

// Page selects one window of the remote collection.
type Page struct {
	Limit int
	Skip  int
}

// Normalize fills defaults and clamps negative values.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Skip < 0 {
		p.Skip = 0
	}
	return p
}

// Collection is one page of products together with the resource-wide total.
type Collection struct {
	Products []Product
	Total    int
	Skip     int
	Limit    int
}

// Clone returns a copy that shares no slice memory with c.
func (c Collection) Clone() Collection {
	out := c
	out.Products = make([]Product, len(c.Products))
	copy(out.Products, c.Products)
	return out
}

// IndexOf returns the position of the product with the given id, or -1.
func (c *Collection) IndexOf(id int64) int {
	for i := range c.Products {
		if c.Products[i].ID == id {
			return i
		}
	}
	return -1
}

// Repository is the remote product resource.
type Repository interface {
	ListProducts(ctx context.Context, page Page) (Collection, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	CreateProduct(ctx context.Context, in Input) (Product, error)
	UpdateProduct(ctx context.Context, id int64, patch Patch) (Product, error)
	DeleteProduct(ctx context.Context, id int64) error
}
