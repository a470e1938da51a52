package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/clientpulse-platform/apps/api/internal/store"
)

func RequirePermission(s *store.Store, permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
				return
			}

			userID, err := uuid.Parse(actor.UserID)
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "Invalid actor", nil)
				return
			}
			tenantID, err := uuid.Parse(actor.TenantID)
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "Invalid actor", nil)
				return
			}

			has, err := s.UserHasPermission(r.Context(), userID, tenantID, permission)
			if err != nil {
				writeError(w, r, http.StatusInternalServerError, "internal_error", "Permission check failed", nil)
				return
			}
			if !has {
				writeError(w, r, http.StatusForbidden, "forbidden", "Permission denied", map[string]string{"permission": permission})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
