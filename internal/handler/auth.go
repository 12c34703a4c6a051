package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/crm-dashboard/internal/domain/auth"
)

type sessionKey struct{}

type requestSession struct {
	token   string
	session auth.Session
}

func sessionFrom(ctx context.Context) (requestSession, bool) {
	s, ok := ctx.Value(sessionKey{}).(requestSession)
	return s, ok
}

func bearerToken(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// requireSession rejects requests without a live bearer session.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		s, err := h.sessions.Authenticate(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey{}, requestSession{token: token, session: s})
		ctx = zctx.With(ctx, zap.String("user", s.User.Username))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var creds auth.Credentials
	if err := decodeBody(r, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "username":
				creds.Username, err = d.Str()
			case "password":
				creds.Password, err = d.Str()
			default:
				return d.Skip()
			}
			return err
		})
	}); err != nil {
		fail(ctx, w, err)
		return
	}
	if strings.TrimSpace(creds.Username) == "" || creds.Password == "" {
		fail(ctx, w, errors.Wrap(errBadRequest, "username and password are required"))
		return
	}

	s, err := h.sessions.Login(ctx, creds)
	if err != nil {
		fail(ctx, w, err)
		return
	}
	zctx.From(ctx).Info("User logged in", zap.String("user", s.User.Username))

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("token")
		e.Str(s.Token)
		if s.RefreshToken != "" {
			e.FieldStart("refreshToken")
			e.Str(s.RefreshToken)
		}
		e.FieldStart("user")
		encodeUser(e, s.User)
		e.ObjEnd()
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if s, ok := sessionFrom(r.Context()); ok {
		h.sessions.Logout(s.token)
	}
	w.WriteHeader(http.StatusNoContent)
}

// me refreshes the profile from the upstream, falling back to the stored
// profile when the upstream is unreachable.
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, _ := sessionFrom(ctx)

	user, err := h.sessions.Refresh(ctx, s.token)
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		fail(ctx, w, err)
		return
	case err != nil:
		zctx.From(ctx).Warn("Profile refresh failed, serving stored profile", zap.Error(err))
		user = s.session.User
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeUser(e, user) })
}

func encodeUser(e *jx.Encoder, u auth.User) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(u.ID)
	e.FieldStart("username")
	e.Str(u.Username)
	e.FieldStart("email")
	e.Str(u.Email)
	e.FieldStart("firstName")
	e.Str(u.FirstName)
	e.FieldStart("lastName")
	e.Str(u.LastName)
	if u.Image != "" {
		e.FieldStart("image")
		e.Str(u.Image)
	}
	e.ObjEnd()
}
