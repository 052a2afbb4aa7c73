package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	otelinfra "redeem-server/internal/infrastructure/observability/otel"
)

// LoggingMiddleware リクエストごとに完了ログを1件出力する。
// ステータスが5xxの場合はError、4xxの場合はWarn、それ以外はInfoで記録する。
func LoggingMiddleware(logger *otelinfra.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req := c.Request()
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			fields := map[string]interface{}{
				"method":      req.Method,
				"route":       c.Path(),
				"path":        req.URL.Path,
				"status_code": status,
				"duration_ms": time.Since(start).Milliseconds(),
				"remote_ip":   c.RealIP(),
				"user_agent":  req.UserAgent(),
			}
			if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
				fields["request_id"] = id
			}
			if id, ok := c.Get("player_id").(uuid.UUID); ok {
				fields["player_id"] = id.String()
			}

			ctx := req.Context()
			switch {
			case status >= http.StatusInternalServerError, err != nil && status < http.StatusBadRequest:
				logger.Error(ctx, "HTTP request failed", err, fields)
			case status >= http.StatusBadRequest:
				logger.Warn(ctx, "HTTP request rejected", fields)
			default:
				logger.Info(ctx, "HTTP request completed", fields)
			}
			return err
		}
	}
}
