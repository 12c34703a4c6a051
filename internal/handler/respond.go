package handler

import (
	"context"
	"io"
	"net/http"
	"sort"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/crm-dashboard/internal/catalog"
	"github.com/xenking/crm-dashboard/internal/domain/auth"
	"github.com/xenking/crm-dashboard/internal/domain/product"
)

// maxBody caps request bodies.
const maxBody = 1 << 20

// errBadRequest marks malformed input that is not a validation failure.
var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(message)
		e.ObjEnd()
	})
}

func writeValidation(w http.ResponseWriter, verr *product.ValidationError) {
	names := make([]string, 0, len(verr.Fields))
	for name := range verr.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	writeJSON(w, http.StatusBadRequest, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(http.StatusBadRequest)
		e.FieldStart("message")
		e.Str("validation failed")
		e.FieldStart("fields")
		e.ObjStart()
		for _, name := range names {
			e.FieldStart(name)
			e.Str(verr.Fields[name])
		}
		e.ObjEnd()
		e.ObjEnd()
	})
}

// fail maps err onto the error response.
func fail(ctx context.Context, w http.ResponseWriter, err error) {
	var verr *product.ValidationError
	switch {
	case errors.As(err, &verr):
		writeValidation(w, verr)
	case errors.Is(err, errBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid username or password")
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, catalog.ErrProvisional):
		writeError(w, http.StatusConflict, "product is still being created")
	case errors.Is(err, catalog.ErrMutationFailed):
		zctx.From(ctx).Warn("Mutation rolled back", zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream rejected the change, it was rolled back")
	case errors.Is(err, context.Canceled):
		zctx.From(ctx).Debug("Request canceled", zap.Error(err))
	case errors.Is(err, context.DeadlineExceeded):
		zctx.From(ctx).Warn("Request timed out", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		zctx.From(ctx).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody reads a JSON body with decode.
func decodeBody(r *http.Request, decode func(d *jx.Decoder) error) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return errors.Wrap(errBadRequest, "read body")
	}
	if len(data) == 0 {
		return errors.Wrap(errBadRequest, "empty body")
	}
	if err := decode(jx.DecodeBytes(data)); err != nil {
		return errors.Wrap(errBadRequest, "invalid JSON: "+err.Error())
	}
	return nil
}
