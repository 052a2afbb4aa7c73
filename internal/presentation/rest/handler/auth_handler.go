package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	authapp "redeem-server/internal/application/auth"
)

// TokenIssuer プレイヤーセッションのトークン発行
type TokenIssuer interface {
	GenerateToken(ctx context.Context, req *authapp.GenerateTokenRequest) (*authapp.GenerateTokenResponse, error)
}

// AuthHandler 認証関連ハンドラー
type AuthHandler struct {
	authService TokenIssuer
}

// NewAuthHandler 新しいAuthHandlerを作成
func NewAuthHandler(authService TokenIssuer) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// GenerateToken トークン生成ハンドラー
// @Summary プレイヤーの認証トークンを生成
// @Description ゲームサーバーがプレイヤーIDを指定してJWTを発行します。APIキーが必要です
// @Tags auth
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body GenerateTokenRequest true "トークン生成リクエスト"
// @Success 200 {object} GenerateTokenResponse "トークン生成成功"
// @Failure 400 {object} ErrorResponse "不正なリクエスト"
// @Router /api/v1/auth/token [post]
func (h *AuthHandler) GenerateToken(c echo.Context) error {
	var req GenerateTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.PlayerID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "player_id is required")
	}

	resp, err := h.authService.GenerateToken(c.Request().Context(), &authapp.GenerateTokenRequest{
		PlayerID:   req.PlayerID,
		PlayerName: req.PlayerName,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, GenerateTokenResponse{
		Token:     resp.Token,
		ExpiresIn: resp.ExpiresIn,
		TokenType: resp.TokenType,
	})
}
