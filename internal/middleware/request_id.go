package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type requestIdKey string

const RequestIdKey requestIdKey = "requestId"

// WithRequestId tags every request with an id for log correlation. An id
// forwarded by an upstream proxy is kept; otherwise one is minted here.
// The id is echoed back on the response so clients can quote it.
func WithRequestId(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqId := r.Header.Get("X-Request-ID")
		if reqId == "" {
			reqId = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), RequestIdKey, reqId)
		w.Header().Set("X-Request-ID", reqId)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
