package httpmiddleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request id in both directions. Clients and
// proxies may set it to correlate their own logs with the server's.
const RequestIDHeader = "X-Request-ID"

// requestIDKey is the context key of the request id.
type requestIDKey struct{}

// RequestIDFromContext returns the id stored by RequestID. It returns an
// empty string for a context that did not pass through the middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID gives every request an identifier. A well-formed incoming
// X-Request-ID is reused so an id assigned by a proxy survives the hop;
// anything else is replaced by a fresh UUID v4.
//
// The id is:
//   - echoed on the response X-Request-ID header, including error
//     responses written by later handlers;
//   - stored in the request context for RequestIDFromContext, which the
//     logging middleware attaches to the request logger.
//
// Place it before InjectLogger so every log line of a request carries it.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if !validRequestID(id) {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

// validRequestID accepts a non-empty id of at most 128 bytes made of
// printable ASCII (0x20 to 0x7E). Control bytes would corrupt log lines and
// response headers.
func validRequestID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}
