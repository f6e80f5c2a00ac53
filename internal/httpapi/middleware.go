package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/elementstore/objstore/internal/platform/logging"
)

// requestDeadline bounds every request per §5 ("every request carries a
// deadline, default 30s").
const requestDeadline = 30 * time.Second

// deadlineMiddleware attaches requestDeadline to the request context.
func deadlineMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestDeadline)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tracingMiddleware assigns or forwards a trace id and attaches it to the
// logging context, grounded on the teacher's LoggingMiddleware shape.
func tracingMiddleware(log *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get("X-Trace-Id")
			if traceID == "" {
				traceID = uuid.NewString()
			}
			ctx := logging.ContextWithTraceID(r.Context(), traceID)
			if principal := r.Header.Get("X-User-Id"); principal != "" {
				ctx = logging.ContextWithPrincipal(ctx, principal)
			}
			w.Header().Set("X-Trace-Id", traceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// corsMiddleware adds permissive CORS headers; CORS policy itself is an
// external-collaborator concern (§1 Out of scope) but a minimal open
// default keeps the admin UI and browser clients functional.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-Id, X-Disable-Ownership, X-Allow-Custom-Ids, X-WS-Connection-Id, X-Trace-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
