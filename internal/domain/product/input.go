package product

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Input holds the fields of a product to be created.
type Input struct {
	Title              string          `validate:"required"`
	Description        string          `validate:"required"`
	Price              decimal.Decimal `validate:"gt=0"`
	DiscountPercentage decimal.Decimal `validate:"gte=0,lte=100"`
	Rating             float64         `validate:"gte=0,lte=5"`
	Stock              int             `validate:"gte=0"`
	Brand              string          `validate:"required"`
	Category           Category        `validate:"required,category"`
	Thumbnail          string          `validate:"omitempty,url"`
}

// Normalize trims surrounding whitespace from text fields.
func (in Input) Normalize() Input {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Brand = strings.TrimSpace(in.Brand)
	in.Category = Category(strings.TrimSpace(string(in.Category)))
	in.Thumbnail = strings.TrimSpace(in.Thumbnail)
	return in
}

// Product builds a product from the input under the given id.
func (in Input) Product(id int64) Product {
	return Product{
		ID:                 id,
		Title:              in.Title,
		Description:        in.Description,
		Price:              in.Price,
		DiscountPercentage: in.DiscountPercentage,
		Rating:             in.Rating,
		Stock:              in.Stock,
		Brand:              in.Brand,
		Category:           in.Category,
		Thumbnail:          in.Thumbnail,
	}
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Title              *string
	Description        *string
	Price              *decimal.Decimal
	DiscountPercentage *decimal.Decimal
	Rating             *float64
	Stock              *int
	Brand              *string
	Category           *Category
	Thumbnail          *string
}

// Empty reports whether the patch touches no field.
func (p Patch) Empty() bool {
	return len(p.Fields()) == 0
}

// Fields lists the wire names of the fields the patch touches.
func (p Patch) Fields() []string {
	var out []string
	if p.Title != nil {
		out = append(out, "title")
	}
	if p.Description != nil {
		out = append(out, "description")
	}
	if p.Price != nil {
		out = append(out, "price")
	}
	if p.DiscountPercentage != nil {
		out = append(out, "discountPercentage")
	}
	if p.Rating != nil {
		out = append(out, "rating")
	}
	if p.Stock != nil {
		out = append(out, "stock")
	}
	if p.Brand != nil {
		out = append(out, "brand")
	}
	if p.Category != nil {
		out = append(out, "category")
	}
	if p.Thumbnail != nil {
		out = append(out, "thumbnail")
	}
	return out
}

// Apply returns pr with every field set in p overwritten.
func (p Patch) Apply(pr Product) Product {
	if p.Title != nil {
		pr.Title = *p.Title
	}
	if p.Description != nil {
		pr.Description = *p.Description
	}
	if p.Price != nil {
		pr.Price = *p.Price
	}
	if p.DiscountPercentage != nil {
		pr.DiscountPercentage = *p.DiscountPercentage
	}
	if p.Rating != nil {
		pr.Rating = *p.Rating
	}
	if p.Stock != nil {
		pr.Stock = *p.Stock
	}
	if p.Brand != nil {
		pr.Brand = *p.Brand
	}
	if p.Category != nil {
		pr.Category = *p.Category
	}
	if p.Thumbnail != nil {
		pr.Thumbnail = *p.Thumbnail
	}
	return pr
}

// Capture returns the inverse of p relative to pr: a patch touching the same
// fields, holding the values pr has now. Applying it after p restores pr.
func (p Patch) Capture(pr Product) Patch {
	var inv Patch
	if p.Title != nil {
		inv.Title = ptr(pr.Title)
	}
	if p.Description != nil {
		inv.Description = ptr(pr.Description)
	}
	if p.Price != nil {
		inv.Price = ptr(pr.Price)
	}
	if p.DiscountPercentage != nil {
		inv.DiscountPercentage = ptr(pr.DiscountPercentage)
	}
	if p.Rating != nil {
		inv.Rating = ptr(pr.Rating)
	}
	if p.Stock != nil {
		inv.Stock = ptr(pr.Stock)
	}
	if p.Brand != nil {
		inv.Brand = ptr(pr.Brand)
	}
	if p.Category != nil {
		inv.Category = ptr(pr.Category)
	}
	if p.Thumbnail != nil {
		inv.Thumbnail = ptr(pr.Thumbnail)
	}
	return inv
}

func ptr[T any](v T) *T {
	return &v
}
