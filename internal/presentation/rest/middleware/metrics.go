package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	otelinfra "redeem-server/internal/infrastructure/observability/otel"
)

// MetricsMiddleware リクエスト数、レスポンス時間、エラー数を記録する。
// パスはルートのテンプレートで集計する。
func MetricsMiddleware(metrics *otelinfra.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			ctx := c.Request().Context()
			method := c.Request().Method
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			metrics.RecordRequest(ctx, method, route)
			metrics.RecordResponseTime(ctx, method, route, time.Since(start).Seconds())

			// エラーハンドラーで応答済みの場合もステータスで判定する
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			if errorType := classify(status, err); errorType != "" {
				metrics.RecordError(ctx, errorType)
			}
			return err
		}
	}
}

func classify(status int, err error) string {
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error"
	case status >= http.StatusBadRequest:
		return "client_error"
	case err != nil:
		return "server_error"
	default:
		return ""
	}
}
