package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ardiwinata/qms-compliance/internal/identity"
	"github.com/ardiwinata/qms-compliance/internal/permission"
	"github.com/go-chi/chi"
)

// RequireAction gates a route on the permission engine. The resource ID is
// taken from the named chi URL parameter when one is given, so grants
// scoped to a single resource instance apply.
func RequireAction(perms *permission.Service, action, resourceType, idParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := identity.PrincipalFromContext(r.Context())
			if !ok || principal == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res := permission.Resource{Type: resourceType}
			if idParam != "" {
				res.ID = chi.URLParam(r, idParam)
			}

			if err := perms.Require(r.Context(), principal, action, res, time.Now()); err != nil {
				slog.Warn("access denied",
					"user_id", principal.ID,
					"action", action,
					"resource_type", resourceType,
					"resource_id", res.ID)
				http.Error(w, "forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
