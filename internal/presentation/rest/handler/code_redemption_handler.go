package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	redemptionapp "redeem-server/internal/application/code_redemption"
	"redeem-server/internal/domain/redemption_code"
	"redeem-server/internal/domain/service"
)

// RedemptionService コード引き換えの操作
type RedemptionService interface {
	Redeem(ctx context.Context, req *redemptionapp.RedeemCodeRequest) (*redemptionapp.RedeemCodeResponse, error)
	Check(ctx context.Context, req *redemptionapp.RedeemCodeRequest) (service.Reason, error)
}

// CodeRedemptionHandler コード引き換え関連ハンドラー
type CodeRedemptionHandler struct {
	redemptionService RedemptionService
}

// NewCodeRedemptionHandler 新しいCodeRedemptionHandlerを作成
func NewCodeRedemptionHandler(redemptionService RedemptionService) *CodeRedemptionHandler {
	return &CodeRedemptionHandler{
		redemptionService: redemptionService,
	}
}

// RedeemCode コード引き換えハンドラー
// @Summary コードを引き換える
// @Description トークンのプレイヤーとしてコードを引き換えます。永続化の完了後に応答します。
// @Description 引き換えできない場合は422と理由を返します
// @Tags redeem
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body RedeemCodeRequest true "引き換えリクエスト"
// @Success 200 {object} RedeemCodeResponse
// @Failure 404 {object} RedeemCodeResponse "コードが存在しない"
// @Failure 422 {object} RedeemCodeResponse "引き換え不可"
// @Failure 503 {object} ErrorResponse "永続化に失敗"
// @Router /api/v1/codes/redeem [post]
func (h *CodeRedemptionHandler) RedeemCode(c echo.Context) error {
	req, err := h.bind(c)
	if err != nil {
		return err
	}

	resp, err := h.redemptionService.Redeem(c.Request().Context(), req)
	if err != nil {
		return err
	}
	if !resp.Success() {
		return c.JSON(ineligibleStatus(resp.Reason), newRedeemCodeResponse(resp))
	}
	if err := await(c, resp.Done); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newRedeemCodeResponse(resp))
}

// CheckCode 引き換え可否の確認ハンドラー。状態は変更しない。
// @Summary コードを引き換えられるか確認
// @Tags redeem
// @Produce json
// @Security Bearer
// @Param code path string true "コード"
// @Success 200 {object} CheckCodeResponse
// @Router /api/v1/codes/{code}/check [get]
func (h *CodeRedemptionHandler) CheckCode(c echo.Context) error {
	id, name, err := currentPlayer(c)
	if err != nil {
		return err
	}
	req := &redemptionapp.RedeemCodeRequest{
		Code:       c.Param("code"),
		Player:     id,
		PlayerName: name,
		Address:    c.RealIP(),
	}
	reason, err := h.redemptionService.Check(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, CheckCodeResponse{
		Code:     redemption_code.NormalizeCode(req.Code),
		Eligible: reason.Eligible(),
		Reason:   reason.String(),
	})
}

func (h *CodeRedemptionHandler) bind(c echo.Context) (*redemptionapp.RedeemCodeRequest, error) {
	id, name, err := currentPlayer(c)
	if err != nil {
		return nil, err
	}
	var body RedeemCodeRequest
	if err := c.Bind(&body); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(body.Code) == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "code is required")
	}
	return &redemptionapp.RedeemCodeRequest{
		Code:       body.Code,
		Player:     id,
		PlayerName: name,
		Pin:        body.Pin,
		Address:    c.RealIP(),
	}, nil
}

// ineligibleStatus 引き換え不可の理由に対応するステータス
func ineligibleStatus(reason service.Reason) int {
	if reason == service.ReasonNotFound {
		return http.StatusNotFound
	}
	return http.StatusUnprocessableEntity
}
