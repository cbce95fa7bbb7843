package httputil

import (
	"context"
	"net/http"
)

type contextKey string

// Context keys populated by the boundary middleware.
const (
	TenantIDKey contextKey = "tenant_id"
	ActorIDKey  contextKey = "actor_id"
)

// TenantMiddleware scopes a request to a tenant via the X-Tenant-ID
// header. Authentication itself happens upstream; by the time a request
// reaches this service the gateway has already resolved and verified
// the tenant. Requests without a tenant are rejected.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get("X-Tenant-ID")
		if tenantID == "" {
			Error(w, http.StatusBadRequest, "missing X-Tenant-ID header")
			return
		}

		ctx := context.WithValue(r.Context(), TenantIDKey, tenantID)
		if actorID := r.Header.Get("X-Actor-ID"); actorID != "" {
			ctx = context.WithValue(ctx, ActorIDKey, actorID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetTenantID extracts the tenant id from context.
func GetTenantID(ctx context.Context) string {
	if id, ok := ctx.Value(TenantIDKey).(string); ok {
		return id
	}
	return ""
}

// GetActorID extracts the acting user id from context, for audit
// attribution. May be empty for system-triggered calls.
func GetActorID(ctx context.Context) string {
	if id, ok := ctx.Value(ActorIDKey).(string); ok {
		return id
	}
	return ""
}
