package product

import (
	"strings"

	"github.com/shopspring/decimal"
)

// LowStockThreshold is the stock level at or below which a product counts as
// running low on the dashboard.
const LowStockThreshold = 10

// Summary aggregates the figures shown on the dashboard overview.
type Summary struct {
	// Total is the resource-wide product count reported by the collection.
	Total int
	// Listed is the number of products the summary was computed over.
	Listed         int
	AverageRating  float64
	InventoryValue decimal.Decimal
	LowStock       int
	ByCategory     map[Category]int
}

// Summarize computes dashboard figures over one collection page.
// Inventory value is the sum of price × stock, rounded to cents.
func Summarize(c Collection) Summary {
	s := Summary{
		Total:          c.Total,
		Listed:         len(c.Products),
		InventoryValue: decimal.Zero,
		ByCategory:     make(map[Category]int),
	}
	if len(c.Products) == 0 {
		return s
	}

	var ratings float64
	for _, p := range c.Products {
		ratings += p.Rating
		s.InventoryValue = s.InventoryValue.Add(p.Price.Mul(decimal.NewFromInt(int64(p.Stock))))
		if p.Stock <= LowStockThreshold {
			s.LowStock++
		}
		s.ByCategory[p.Category]++
	}
	s.AverageRating = ratings / float64(len(c.Products))
	s.InventoryValue = s.InventoryValue.Round(2)
	return s
}

// Filter returns the products whose title, brand or category contains term,
// ignoring case. An empty term matches everything.
func Filter(products []Product, term string) []Product {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return products
	}

	out := make([]Product, 0, len(products))
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Title), term) ||
			strings.Contains(strings.ToLower(p.Brand), term) ||
			strings.Contains(strings.ToLower(string(p.Category)), term) {
			out = append(out, p)
		}
	}
	return out
}
