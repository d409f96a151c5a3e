package middleware

import (
	"context"
	"net/http"
	"strings"

	apperrors "github.com/rakeshshah18/philanzel-sub001/pkg/errors"
	"github.com/rakeshshah18/philanzel-sub001/pkg/httputil"
)

// Headers set by the API gateway after it has authenticated the caller.
const (
	UserIDHeader   = "X-User-ID"
	UserRoleHeader = "X-User-Role"
)

// RoleAdmin is the role allowed to manage review sections.
const RoleAdmin = "admin"

type contextKeyType string

const (
	userIDKey contextKeyType = "user_id"
	roleKey   contextKeyType = "role"
)

// GatewayIdentity copies the gateway's identity headers into the context.
// Requests without them continue anonymously.
func GatewayIdentity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if id := strings.TrimSpace(r.Header.Get(UserIDHeader)); id != "" {
				ctx = context.WithValue(ctx, userIDKey, id)
			}
			if role := strings.TrimSpace(r.Header.Get(UserRoleHeader)); role != "" {
				ctx = context.WithValue(ctx, roleKey, strings.ToLower(role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole answers 401 for anonymous callers and 403 for callers whose
// role is not listed.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if UserIDFromContext(r.Context()) == "" {
				httputil.WriteError(w, r, apperrors.Unauthorized("missing caller identity"), nil)
				return
			}
			if _, ok := allowed[roleFromContext(r.Context())]; !ok {
				httputil.WriteError(w, r, apperrors.Forbidden("insufficient permissions"), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext returns the caller id set by GatewayIdentity.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

func roleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleKey).(string)
	return role
}
