// Package trace propagates request trace context via X-Trace-ID and
// X-Span-ID headers. Identifiers are carried on the request context and
// always written back to the response, so a caller can correlate logs
// across the scraper, the video tool and the companion server.
package trace

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Header names used for trace propagation.
const (
	TraceHeader      = "X-Trace-ID"
	SpanHeader       = "X-Span-ID"
	ParentSpanHeader = "X-Parent-Span-ID"
)

type contextKey int

const (
	traceIDKey contextKey = iota
	spanIDKey
)

// IDs is the trace context of a single request.
type IDs struct {
	TraceID  string
	SpanID   string
	ParentID string
}

// NewContext returns a context carrying the given trace and span IDs.
func NewContext(ctx context.Context, traceID, spanID string) context.Context {
	ctx = context.WithValue(ctx, traceIDKey, traceID)
	return context.WithValue(ctx, spanIDKey, spanID)
}

// TraceID returns the trace ID carried by ctx, or "" when absent.
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

// SpanID returns the span ID carried by ctx, or "" when absent.
func SpanID(ctx context.Context) string {
	id, _ := ctx.Value(spanIDKey).(string)
	return id
}

// Headers returns the headers for propagating the trace context of ctx to
// outgoing requests. Empty when ctx carries no trace context.
func Headers(ctx context.Context) map[string]string {
	headers := make(map[string]string)
	if id := TraceID(ctx); id != "" {
		headers[TraceHeader] = id
	}
	if id := SpanID(ctx); id != "" {
		headers[SpanHeader] = id
	}
	return headers
}

// Extract reads the inbound trace headers of r, generating a trace ID when
// the caller did not send one and a fresh span ID for this hop.
func Extract(r *http.Request) IDs {
	ids := IDs{
		TraceID:  r.Header.Get(TraceHeader),
		ParentID: r.Header.Get(SpanHeader),
	}
	if ids.TraceID == "" {
		ids.TraceID = uuid.NewString()
	}
	ids.SpanID = uuid.NewString()[:16]
	return ids
}

// Middleware threads trace context through the request and attaches the
// trace headers to the response on every path, success or failure.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ids := Extract(r)

			// Headers must be set before the handler writes the status line.
			w.Header().Set(TraceHeader, ids.TraceID)
			w.Header().Set(SpanHeader, ids.SpanID)
			if ids.ParentID != "" {
				w.Header().Set(ParentSpanHeader, ids.ParentID)
			}

			ctx := NewContext(r.Context(), ids.TraceID, ids.SpanID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
