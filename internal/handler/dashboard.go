package handler

import (
	"net/http"
	"slices"

	"github.com/go-faster/jx"

	"github.com/xenking/crm-dashboard/internal/domain/product"
)

// dashboard summarizes the first cached page.
func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	col, err := h.catalog.List(ctx, product.Page{Limit: h.cfg.PageSize})
	if err != nil {
		fail(ctx, w, err)
		return
	}
	s := product.Summarize(col)

	categories := make([]product.Category, 0, len(s.ByCategory))
	for c := range s.ByCategory {
		categories = append(categories, c)
	}
	slices.Sort(categories)

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("total")
		e.Int(s.Total)
		e.FieldStart("listed")
		e.Int(s.Listed)
		e.FieldStart("averageRating")
		e.Float64(s.AverageRating)
		e.FieldStart("inventoryValue")
		e.Num(jx.Num(s.InventoryValue.StringFixed(2)))
		e.FieldStart("lowStock")
		e.Int(s.LowStock)
		e.FieldStart("lowStockThreshold")
		e.Int(product.LowStockThreshold)
		e.FieldStart("byCategory")
		e.ObjStart()
		for _, c := range categories {
			e.FieldStart(string(c))
			e.Int(s.ByCategory[c])
		}
		e.ObjEnd()
		e.ObjEnd()
	})
}
