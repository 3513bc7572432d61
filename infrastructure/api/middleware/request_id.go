package middleware

import (
	"context"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// RequestIDHeader carries the caller-supplied request ID. A missing or
// empty header gets a generated UUID instead.
const RequestIDHeader = "X-Request-Id"

// RequestID assigns every request an ID and echoes it in the response. The
// ID is stored under chi's request ID key so chimiddleware.GetReqID and the
// logging middleware pick it up unchanged.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), chimiddleware.RequestIDKey, id)
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
