package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	historyapp "redeem-server/internal/application/history"
	"redeem-server/internal/domain/player"
)

// HistoryService 引き換え履歴の操作
type HistoryService interface {
	GetRedeemHistory(ctx context.Context, req *historyapp.GetRedeemHistoryRequest) (*historyapp.GetRedeemHistoryResponse, error)
	DeleteRedeemHistory(ctx context.Context, req *historyapp.DeleteRedeemHistoryRequest) (int64, error)
}

// HistoryHandler 履歴関連ハンドラー
type HistoryHandler struct {
	historyService HistoryService
}

// NewHistoryHandler 新しいHistoryHandlerを作成
func NewHistoryHandler(historyService HistoryService) *HistoryHandler {
	return &HistoryHandler{
		historyService: historyService,
	}
}

// GetMyHistory 自分の引き換え履歴取得ハンドラー
// @Summary 自分の引き換え履歴を取得
// @Tags history
// @Produce json
// @Security Bearer
// @Param code query string false "コードで絞り込み"
// @Param limit query int false "取得件数（デフォルト: 50, 最大: 100）"
// @Param offset query int false "オフセット"
// @Success 200 {object} RedeemHistoryResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/me/history [get]
func (h *HistoryHandler) GetMyHistory(c echo.Context) error {
	id, _, err := currentPlayer(c)
	if err != nil {
		return err
	}
	return h.query(c, &historyapp.GetRedeemHistoryRequest{
		Player: &id,
		Code:   c.QueryParam("code"),
	})
}

// GetHistory 引き換え履歴取得ハンドラー（管理API用）
// @Summary 引き換え履歴を検索
// @Description player, code, templateのいずれかが必要です。templateはplayer, codeと併用できません
// @Tags history
// @Produce json
// @Security ApiKeyAuth
// @Param player query string false "プレイヤーID"
// @Param code query string false "コード"
// @Param template query string false "テンプレート名"
// @Param limit query int false "取得件数（デフォルト: 50, 最大: 100）"
// @Param offset query int false "オフセット"
// @Success 200 {object} RedeemHistoryResponse
// @Failure 400 {object} ErrorResponse
// @Router /admin/history [get]
func (h *HistoryHandler) GetHistory(c echo.Context) error {
	req := &historyapp.GetRedeemHistoryRequest{
		Code:     c.QueryParam("code"),
		Template: c.QueryParam("template"),
	}
	if s := c.QueryParam("player"); s != "" {
		id, err := player.ParseID(s)
		if err != nil {
			return err
		}
		req.Player = &id
	}
	return h.query(c, req)
}

// DeleteHistory 引き換え履歴削除ハンドラー
// @Summary 引き換え履歴を削除
// @Description idを指定した場合は1件、それ以外はplayerとcodeの組み合わせで削除します
// @Tags history
// @Produce json
// @Security ApiKeyAuth
// @Param id query int false "履歴ID"
// @Param player query string false "プレイヤーID"
// @Param code query string false "コード"
// @Success 200 {object} CountResponse
// @Failure 400 {object} ErrorResponse
// @Router /admin/history [delete]
func (h *HistoryHandler) DeleteHistory(c echo.Context) error {
	req := &historyapp.DeleteRedeemHistoryRequest{Code: c.QueryParam("code")}
	if s := c.QueryParam("id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid id parameter")
		}
		req.ID = id
	}
	if s := c.QueryParam("player"); s != "" {
		id, err := player.ParseID(s)
		if err != nil {
			return err
		}
		req.Player = &id
	}

	n, err := h.historyService.DeleteRedeemHistory(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, CountResponse{Count: n})
}

func (h *HistoryHandler) query(c echo.Context, req *historyapp.GetRedeemHistoryRequest) error {
	limit, offset, err := pagination(c, 50, 100)
	if err != nil {
		return err
	}
	req.Limit = limit
	req.Offset = offset

	resp, err := h.historyService.GetRedeemHistory(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RedeemHistoryResponse{
		Logs:   newRedeemLogItems(resp.Logs),
		Total:  resp.Total,
		Limit:  resp.Limit,
		Offset: resp.Offset,
	})
}
