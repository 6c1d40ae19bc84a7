package middleware

import (
	"context"
	"net/http"
)

type identityKey string

const IdentityKey identityKey = "identity"

// Identity is the caller as asserted by the fronting gateway. The gateway
// terminates auth; this service trusts its forwarded headers.
type Identity struct {
	ID   string
	Name string
}

// WithIdentity reads X-User-ID and X-User-Name (query params user_id and
// user_name as a fallback, for websocket clients that cannot set headers)
// and rejects requests with no caller identity.
func WithIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Identity{
			ID:   r.Header.Get("X-User-ID"),
			Name: r.Header.Get("X-User-Name"),
		}
		if id.ID == "" {
			id.ID = r.URL.Query().Get("user_id")
			id.Name = r.URL.Query().Get("user_name")
		}
		if id.ID == "" {
			http.Error(w, "missing caller identity", http.StatusUnauthorized)
			return
		}
		if id.Name == "" {
			id.Name = id.ID
		}

		ctx := context.WithValue(r.Context(), IdentityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFrom extracts the caller from the request context.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(Identity)
	return id, ok
}
