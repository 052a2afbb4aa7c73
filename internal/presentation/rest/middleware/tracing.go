package middleware

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracerName HTTPサーバースパンのトレーサー名
const TracerName = "redeem-server/rest"

// TracingMiddleware 受信したトレースコンテキストを引き継いでサーバースパンを開始する
func TracingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))

			route := c.Path()
			ctx, span := otel.Tracer(TracerName).Start(ctx, req.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", req.Method),
					attribute.String("http.route", route),
					attribute.String("http.target", req.URL.RequestURI()),
					attribute.String("http.user_agent", req.UserAgent()),
					attribute.String("net.peer.ip", c.RealIP()),
				),
			)
			defer span.End()
			c.SetRequest(req.WithContext(ctx))

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			span.SetAttributes(attribute.Int("http.status_code", status))
			// 認証ミドルウェアは内側で動くため、ここで参照できる
			if id, ok := c.Get("player_id").(uuid.UUID); ok {
				span.SetAttributes(attribute.String("player_id", id.String()))
			}
			if err != nil {
				span.RecordError(err)
			}
			if status >= http.StatusInternalServerError || (err != nil && status < http.StatusBadRequest) {
				span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
			}
			return err
		}
	}
}
