package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nivesha/portfolio/internal/metrics"
)

type ctxKey struct{}

// WithUserID returns a copy of ctx carrying the verified user ID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the verified user ID stored by Middleware.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Middleware rejects requests without a valid bearer token with 401 and
// otherwise passes the verified user ID on through the request context.
//
// The token is read from the Authorization header; browsers cannot set
// headers on a WebSocket upgrade, so a "token" query parameter is accepted
// as a fallback.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := v.Verify(bearerToken(r))
		if err != nil {
			reason := failureReason(err)
			metrics.AuthFailures.WithLabelValues(reason).Inc()
			slog.Warn("request rejected",
				"reason", reason,
				"path", r.URL.Path,
				"err", err,
			)
			writeUnauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return "missing"
	case errors.Is(err, ErrExpiredToken):
		return "expired"
	default:
		return "invalid"
	}
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	msg := "invalid credentials"
	switch {
	case errors.Is(err, ErrMissingToken):
		msg = "bearer token required"
	case errors.Is(err, ErrExpiredToken):
		msg = "token expired"
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="portfolio"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "message": msg})
}
