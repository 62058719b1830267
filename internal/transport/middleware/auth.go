package middleware

import (
	"net/http"
	"strings"

	"github.com/tidywork/finance-engine/internal/auth"
	"github.com/tidywork/finance-engine/pkg/logger"
)

// ActorContext verifies the bearer token and stores the acting user on the
// request context. Requests without a valid token are rejected before any
// handler runs.
func ActorContext(signingKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, `{"error": "missing bearer token"}`, http.StatusUnauthorized)
				return
			}

			actor, err := auth.ParseToken(strings.TrimPrefix(header, "Bearer "), signingKey)
			if err != nil {
				logger.From(r.Context()).Warn("token rejected", "error", err)
				http.Error(w, `{"error": "invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := auth.ContextWithActor(r.Context(), actor)
			ctx = logger.With(ctx, "actor_id", actor.ID, "tenant_id", actor.TenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
