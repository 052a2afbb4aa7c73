package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"redeem-server/internal/application/auth"
	"redeem-server/internal/application/history"
	"redeem-server/internal/application/sequencer"
	"redeem-server/internal/domain/coupon"
	"redeem-server/internal/domain/duration"
	"redeem-server/internal/domain/player"
	"redeem-server/internal/domain/redeem_property"
	"redeem-server/internal/domain/redeem_template"
	"redeem-server/internal/domain/redemption_code"
	"redeem-server/internal/infrastructure/authz/casbin"
	"redeem-server/internal/infrastructure/condition/cel"
	otelinfra "redeem-server/internal/infrastructure/observability/otel"
)

// ErrorResponse エラーレスポンス
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// domainError ドメインエラーとHTTPステータスの対応
type domainError struct {
	err    error
	status int
	code   string
}

var domainErrors = []domainError{
	{redemption_code.ErrCodeNotFound, http.StatusNotFound, "code_not_found"},
	{redemption_code.ErrCodeAlreadyExists, http.StatusConflict, "code_already_exists"},
	{redemption_code.ErrInvalidCode, http.StatusBadRequest, "invalid_code"},
	{redemption_code.ErrInvalidDigit, http.StatusBadRequest, "invalid_digit"},
	{redemption_code.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{redemption_code.ErrGenerationExhausted, http.StatusConflict, "generation_exhausted"},
	{redemption_code.ErrLogNotFound, http.StatusNotFound, "log_not_found"},
	{redeem_template.ErrTemplateNotFound, http.StatusNotFound, "template_not_found"},
	{redeem_template.ErrTemplateAlreadyExists, http.StatusConflict, "template_already_exists"},
	{redeem_template.ErrInvalidTemplateName, http.StatusBadRequest, "invalid_template_name"},
	{redeem_template.ErrUnknownSyncProperty, http.StatusBadRequest, "unknown_property"},
	{duration.ErrInvalidDuration, http.StatusBadRequest, "invalid_duration"},
	{redeem_property.ErrInvalidIndex, http.StatusBadRequest, "invalid_index"},
	{redeem_property.ErrNegativeLimit, http.StatusBadRequest, "negative_limit"},
	{cel.ErrInvalidCondition, http.StatusBadRequest, "invalid_condition"},
	{casbin.ErrInvalidGrant, http.StatusBadRequest, "invalid_grant"},
	{player.ErrPlayerNotFound, http.StatusNotFound, "player_not_found"},
	{player.ErrInvalidPlayerID, http.StatusBadRequest, "invalid_player_id"},
	{coupon.ErrCouponNotFound, http.StatusNotFound, "coupon_not_found"},
	{coupon.ErrCouponAlreadyOwned, http.StatusConflict, "coupon_already_owned"},
	{coupon.ErrCouponAlreadyClaimed, http.StatusConflict, "coupon_already_claimed"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
	{history.ErrEmptyFilter, http.StatusBadRequest, "empty_filter"},
	{sequencer.ErrNotPersisted, http.StatusServiceUnavailable, "not_persisted"},
	{sequencer.ErrClosed, http.StatusServiceUnavailable, "shutting_down"},
}

// ErrorHandlerMiddleware エラーハンドリングミドルウェア
func ErrorHandlerMiddleware(logger *otelinfra.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			// エラーハンドリング
			return handleError(c, err, logger)
		}
	}
}

// handleError エラーを処理して適切なHTTPレスポンスを返す
func handleError(c echo.Context, err error, logger *otelinfra.Logger) error {
	ctx := c.Request().Context()

	for _, de := range domainErrors {
		if !errors.Is(err, de.err) {
			continue
		}
		fields := map[string]interface{}{
			"error": err.Error(),
			"path":  c.Request().URL.Path,
		}
		if de.status >= http.StatusInternalServerError {
			logger.Error(ctx, "Request failed", err, fields)
		} else {
			logger.Warn(ctx, "Request rejected", fields)
		}
		return c.JSON(de.status, ErrorResponse{
			Error:   http.StatusText(de.status),
			Message: err.Error(),
			Code:    de.code,
		})
	}

	// EchoのHTTPエラー
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		logger.Warn(ctx, "HTTP error", map[string]interface{}{
			"status_code": httpErr.Code,
			"message":     httpErr.Message,
		})
		message := ""
		if msg, ok := httpErr.Message.(string); ok {
			message = msg
		} else {
			message = http.StatusText(httpErr.Code)
		}
		return c.JSON(httpErr.Code, ErrorResponse{
			Error:   http.StatusText(httpErr.Code),
			Message: message,
		})
	}

	// 予期しないエラー
	logger.Error(ctx, "Internal server error", err, map[string]interface{}{
		"path": c.Request().URL.Path,
	})
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_server_error",
		Message: "An unexpected error occurred",
	})
}
