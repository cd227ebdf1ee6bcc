package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/prolearn/accounts/internal/domain"
)

type authContextKey string

const contextKeyCaller authContextKey = "prolearn-caller"

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth ensures the request carries a valid, non-revoked bearer access
// token before invoking the handler. The validated caller is attached to the
// request context so handlers can pass it to services explicitly.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// ensureAuth validates the Authorization header and enriches the context.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, *domain.User, bool) {
	raw, err := bearerToken(req.Header.Get("Authorization"))
	if err != nil {
		r.logger.Warn("authorization header invalid", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "authentication required")
		return req.Context(), nil, false
	}
	caller, _, err := r.auth.Authorize(req.Context(), raw)
	if err != nil {
		r.logger.Warn("token validation failed", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "authentication failed")
		return req.Context(), nil, false
	}
	ctx := context.WithValue(req.Context(), contextKeyCaller, caller)
	return ctx, caller, true
}

// callerFromContext extracts the authenticated caller from context.
func callerFromContext(ctx context.Context) (*domain.User, bool) {
	caller, ok := ctx.Value(contextKeyCaller).(*domain.User)
	return caller, ok && caller != nil
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
