package handler

import (
	"net/http/httptest"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	otelinfra "redeem-server/internal/infrastructure/observability/otel"
	restmiddleware "redeem-server/internal/presentation/rest/middleware"
)

var testPlayer = uuid.MustParse("0b7a4c54-7e3c-4b0e-9a52-3f3f0f6f1d11")

// testRoute 1つのルートを登録したEchoでリクエストを処理する。
// player がuuid.Nil以外の場合は認証済みプレイヤーとして設定する。
func testRoute(method, route, target, body string, player uuid.UUID, h echo.HandlerFunc) *httptest.ResponseRecorder {
	e := echo.New()
	e.Use(restmiddleware.ErrorHandlerMiddleware(otelinfra.NewNopLogger()))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if player != uuid.Nil {
				c.Set("player_id", player)
				c.Set("player_name", "Steve")
			}
			return next(c)
		}
	})
	e.Add(method, route, h)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(echo.HeaderXRealIP, "203.0.113.7")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}
