package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func setupTracing(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return sr
}

func spanAttr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracingMiddleware(t *testing.T) {
	playerID := uuid.New()

	tests := []struct {
		name       string
		handler    echo.HandlerFunc
		wantStatus int
		wantError  bool
		wantPlayer bool
	}{
		{
			name: "正常系: サーバースパンを記録",
			handler: func(c echo.Context) error {
				c.Set("player_id", playerID)
				return c.String(http.StatusOK, "ok")
			},
			wantStatus: http.StatusOK,
			wantPlayer: true,
		},
		{
			name: "正常系: 4xxはエラー扱いにしない",
			handler: func(c echo.Context) error {
				return echo.NewHTTPError(http.StatusNotFound)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "異常系: 未処理のエラー",
			handler: func(c echo.Context) error {
				return errors.New("boom")
			},
			wantStatus: http.StatusOK,
			wantError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr := setupTracing(t)

			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/codes/redeem", nil)
			req.Header.Set("User-Agent", "test-agent")
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetPath("/api/v1/codes/redeem")

			var inner trace.SpanContext
			handler := TracingMiddleware()(func(c echo.Context) error {
				inner = trace.SpanContextFromContext(c.Request().Context())
				return tt.handler(c)
			})
			_ = handler(c)

			spans := sr.Ended()
			require.Len(t, spans, 1)
			span := spans[0]
			assert.Equal(t, "POST /api/v1/codes/redeem", span.Name())
			assert.Equal(t, trace.SpanKindServer, span.SpanKind())
			assert.Equal(t, span.SpanContext().SpanID(), inner.SpanID())

			status, ok := spanAttr(span, "http.status_code")
			require.True(t, ok)
			assert.EqualValues(t, tt.wantStatus, status.AsInt64())

			_, hasPlayer := spanAttr(span, "player_id")
			assert.Equal(t, tt.wantPlayer, hasPlayer)
			if tt.wantError {
				assert.Equal(t, codes.Error, span.Status().Code)
			} else {
				assert.NotEqual(t, codes.Error, span.Status().Code)
			}
		})
	}
}

func TestTracingMiddleware_ExtractsTraceContext(t *testing.T) {
	sr := setupTracing(t)

	parentCtx, parent := otel.Tracer("client").Start(context.Background(), "client")
	parent.End()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	otel.GetTextMapPropagator().Inject(parentCtx, propagation.HeaderCarrier(req.Header))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/health")

	require.NoError(t, TracingMiddleware()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c))

	var server sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		if s.Name() == "GET /health" {
			server = s
		}
	}
	require.NotNil(t, server)
	assert.Equal(t, parent.SpanContext().TraceID(), server.SpanContext().TraceID())
	assert.Equal(t, parent.SpanContext().SpanID(), server.Parent().SpanID())
}
