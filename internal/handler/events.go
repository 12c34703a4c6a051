package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/crm-dashboard/internal/catalog"
)

// events streams cache notifications as server-sent events until the client
// goes away.
func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := zctx.From(ctx)
	rc := http.NewResponseController(w)

	// Streams outlive the server write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		lg.Debug("Cannot clear write deadline", zap.Error(err))
	}

	events, cancel := h.catalog.Subscribe(h.cfg.EventBuffer)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		lg.Warn("Event stream not flushable", zap.Error(err))
		return
	}

	keepAlive := time.NewTicker(h.cfg.KeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if _, err := w.Write(encodeEvent(ev)); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func encodeEvent(ev catalog.Event) []byte {
	var e jx.Encoder
	e.ObjStart()
	if ev.Mutation != uuid.Nil {
		e.FieldStart("mutation")
		e.Str(ev.Mutation.String())
	}
	if ev.Op != "" {
		e.FieldStart("op")
		e.Str(string(ev.Op))
	}
	if ev.ProductID != 0 {
		e.FieldStart("productId")
		e.Int64(ev.ProductID)
	}
	if ev.ReplacedID != 0 {
		e.FieldStart("replacedId")
		e.Int64(ev.ReplacedID)
	}
	if ev.Err != nil {
		e.FieldStart("error")
		e.Str(ev.Err.Error())
	}
	e.ObjEnd()

	out := make([]byte, 0, len(e.Bytes())+32)
	out = append(out, "event: "...)
	out = append(out, ev.Kind.String()...)
	out = append(out, "\ndata: "...)
	out = append(out, e.Bytes()...)
	out = append(out, "\n\n"...)
	return out
}
