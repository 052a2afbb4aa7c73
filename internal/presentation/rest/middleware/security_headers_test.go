package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityHeadersMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		https     bool
		wantCSP   string
		wantCache string
		wantHSTS  bool
	}{
		{name: "正常系: APIのパス", path: "/api/v1/codes/redeem", wantCSP: apiCSP, wantCache: "no-store"},
		{name: "正常系: Swagger UI", path: "/swagger/index.html", wantCSP: swaggerCSP},
		{name: "正常系: OpenAPI文書", path: "/openapi.yaml", wantCSP: swaggerCSP},
		{name: "正常系: ReDoc", path: "/redoc", wantCSP: swaggerCSP},
		{name: "正常系: HTTPSではHSTSを付与", path: "/admin/codes", https: true, wantCSP: apiCSP, wantCache: "no-store", wantHSTS: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.https {
				req.Header.Set(echo.HeaderXForwardedProto, "https")
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			require.NoError(t, SecurityHeadersMiddleware()(func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			})(c))

			h := rec.Header()
			assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
			assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
			assert.Equal(t, tt.wantCSP, h.Get("Content-Security-Policy"))
			assert.Equal(t, tt.wantCache, h.Get("Cache-Control"))
			assert.Equal(t, tt.wantHSTS, h.Get("Strict-Transport-Security") != "")
		})
	}
}
