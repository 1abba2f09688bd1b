package trace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := NewContext(context.Background(), "trace-1", "span-1")

	assert.Equal(t, "trace-1", TraceID(ctx))
	assert.Equal(t, "span-1", SpanID(ctx))
}

func TestContextEmpty(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "", TraceID(ctx))
	assert.Equal(t, "", SpanID(ctx))
	assert.Empty(t, Headers(ctx))
}

func TestHeaders(t *testing.T) {
	ctx := NewContext(context.Background(), "trace-1", "span-1")

	h := Headers(ctx)
	assert.Equal(t, "trace-1", h[TraceHeader])
	assert.Equal(t, "span-1", h[SpanHeader])
}

func TestExtract_GeneratesTraceID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/health", nil)

	ids := Extract(r)
	assert.NotEmpty(t, ids.TraceID)
	assert.Len(t, ids.SpanID, 16)
	assert.Empty(t, ids.ParentID)
}

func TestExtract_PropagatesInbound(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set(TraceHeader, "inbound-trace")
	r.Header.Set(SpanHeader, "inbound-span")

	ids := Extract(r)
	assert.Equal(t, "inbound-trace", ids.TraceID)
	assert.Equal(t, "inbound-span", ids.ParentID)
	assert.NotEqual(t, "inbound-span", ids.SpanID)
}

func TestMiddleware_ResponseHeaders(t *testing.T) {
	var seenTrace, seenSpan string
	handler := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenTrace = TraceID(r.Context())
		seenSpan = SpanID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set(TraceHeader, "trace-abc")
	r.Header.Set(SpanHeader, "parent-span")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	assert.Equal(t, "trace-abc", w.Header().Get(TraceHeader))
	assert.Equal(t, "parent-span", w.Header().Get(ParentSpanHeader))
	require.NotEmpty(t, w.Header().Get(SpanHeader))

	// Context inside the handler carries the same identifiers.
	assert.Equal(t, "trace-abc", seenTrace)
	assert.Equal(t, w.Header().Get(SpanHeader), seenSpan)
}

func TestMiddleware_HeadersOnErrorPath(t *testing.T) {
	handler := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get(TraceHeader))
	assert.NotEmpty(t, w.Header().Get(SpanHeader))
}
