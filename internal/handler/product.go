package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/crm-dashboard/internal/domain/product"
)

func (h *Handler) page(r *http.Request) (product.Page, error) {
	q := r.URL.Query()
	page := product.Page{Limit: h.cfg.PageSize}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return page, errors.Wrap(errBadRequest, "limit must be a positive integer")
		}
		page.Limit = min(n, h.cfg.MaxPageSize)
	}
	if v := q.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page, errors.Wrap(errBadRequest, "skip must be a non-negative integer")
		}
		page.Skip = n
	}
	return page, nil
}

func productID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, errors.Wrap(errBadRequest, "invalid product id")
	}
	return id, nil
}

// listProducts serves one cached page. The q parameter filters the page by
// title, brand or category; total still counts the whole resource.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, err := h.page(r)
	if err != nil {
		fail(ctx, w, err)
		return
	}
	col, err := h.catalog.List(ctx, page)
	if err != nil {
		fail(ctx, w, err)
		return
	}
	col.Products = product.Filter(col.Products, r.URL.Query().Get("q"))

	writeJSON(w, http.StatusOK, col.Encode)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := productID(r)
	if err != nil {
		fail(ctx, w, err)
		return
	}
	p, err := h.catalog.GetByID(ctx, id)
	if err != nil {
		fail(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Encode)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in product.Input
	if err := decodeBody(r, in.Decode); err != nil {
		fail(ctx, w, err)
		return
	}
	in, err := h.validate.Input(in)
	if err != nil {
		fail(ctx, w, err)
		return
	}

	p, err := h.catalog.Create(ctx, in)
	if err != nil {
		fail(ctx, w, err)
		return
	}
	zctx.From(ctx).Info("Product created", zap.Int64("product_id", p.ID))

	w.Header().Set("Location", "/api/products/"+strconv.FormatInt(p.ID, 10))
	writeJSON(w, http.StatusCreated, p.Encode)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := productID(r)
	if err != nil {
		fail(ctx, w, err)
		return
	}
	var patch product.Patch
	if err := decodeBody(r, patch.Decode); err != nil {
		fail(ctx, w, err)
		return
	}
	if patch, err = h.validate.Patch(patch); err != nil {
		fail(ctx, w, err)
		return
	}

	p, err := h.catalog.Update(ctx, id, patch)
	if err != nil {
		fail(ctx, w, err)
		return
	}
	zctx.From(ctx).Info("Product updated", zap.Int64("product_id", id), zap.Strings("fields", patch.Fields()))

	writeJSON(w, http.StatusOK, p.Encode)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := productID(r)
	if err != nil {
		fail(ctx, w, err)
		return
	}
	if err := h.catalog.Remove(ctx, id); err != nil {
		fail(ctx, w, err)
		return
	}
	zctx.From(ctx).Info("Product deleted", zap.Int64("product_id", id))

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(id)
		e.FieldStart("deleted")
		e.Bool(true)
		e.ObjEnd()
	})
}

func (h *Handler) listCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, c := range product.Categories() {
			e.Str(string(c))
		}
		e.ArrEnd()
	})
}
