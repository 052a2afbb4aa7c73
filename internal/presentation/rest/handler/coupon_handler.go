package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	walletapp "redeem-server/internal/application/coupon_wallet"
	"redeem-server/internal/domain/coupon"
	"redeem-server/internal/domain/player"
)

// WalletService クーポンウォレットの操作
type WalletService interface {
	Give(ctx context.Context, id uuid.UUID, code string) (*coupon.Coupon, error)
	GiveRandom(ctx context.Context, req *walletapp.GiveRandomRequest) ([]string, error)
	GiveToAll(ctx context.Context, req *walletapp.GiveToAllRequest) (*walletapp.GiveResult, error)
	GiveRandomToAll(ctx context.Context, req *walletapp.GiveRandomToAllRequest) (*walletapp.GiveResult, error)
	Gift(ctx context.Context, sender, recipient uuid.UUID, code string) error
	Take(ctx context.Context, id uuid.UUID, code string) error
	TakeAllByTemplate(ctx context.Context, id uuid.UUID, template string) (int64, error)
	TakeFromAll(ctx context.Context, code string, onlineOnly bool) error
	TakeAllByTemplateFromAll(ctx context.Context, template string, onlineOnly bool) (int64, error)
	List(ctx context.Context, id uuid.UUID) ([]*coupon.Coupon, error)
	ListByTemplate(ctx context.Context, id uuid.UUID, template string) ([]*coupon.Coupon, error)
	SetOnline(ctx context.Context, id uuid.UUID, name string, online bool) error
	NotifyPlayer(ctx context.Context, id uuid.UUID) ([]player.Notification, error)
}

// CouponView ウォレットのクーポン
// @Description ウォレットのクーポン
type CouponView struct {
	Code     string `json:"code" example:"K7M2Q"`
	GiftedAt string `json:"gifted_at" example:"2026-01-01T00:00:00Z"`
	Claimed  bool   `json:"claimed"`
}

// CouponsResponse クーポン一覧レスポンス
type CouponsResponse struct {
	Coupons []CouponView `json:"coupons"`
}

// GiveCouponRequest クーポン付与リクエスト。codeを省略した場合はtemplateからランダムに生成する。
// @Description クーポン付与リクエスト
type GiveCouponRequest struct {
	Code     string `json:"code,omitempty" example:"SUMMER24"`
	Template string `json:"template,omitempty" example:"summer"`
	Digit    int    `json:"digit,omitempty" example:"6"`
	Amount   int    `json:"amount,omitempty" example:"1"`
	Secured  bool   `json:"secured,omitempty"`
}

// BroadcastCouponRequest 一括付与リクエスト
// @Description 一括付与リクエスト
type BroadcastCouponRequest struct {
	GiveCouponRequest
	OnlineOnly bool `json:"online_only"`
}

// GiveCouponResponse 付与したコード
type GiveCouponResponse struct {
	Codes []string `json:"codes"`
}

// BroadcastCouponResponse 一括付与の結果
type BroadcastCouponResponse struct {
	Given   map[string]string `json:"given"`
	Skipped []string          `json:"skipped"`
}

// GiftCouponRequest ギフトリクエスト
// @Description ギフトリクエスト
type GiftCouponRequest struct {
	Recipient string `json:"recipient" example:"5d0f6c0a-2b8e-4c53-8f7e-1e0c9a4b7d22"`
}

// SessionRequest ゲームサーバーからのログイン・ログアウト通知
// @Description ログイン状態の通知
type SessionRequest struct {
	Name   string `json:"name,omitempty" example:"Steve"`
	Online bool   `json:"online"`
}

// NotificationsResponse 配信した通知
type NotificationsResponse struct {
	Notifications []player.Notification `json:"notifications"`
}

// CouponHandler クーポンウォレットハンドラー
type CouponHandler struct {
	wallet WalletService
}

// NewCouponHandler 新しいCouponHandlerを作成
func NewCouponHandler(wallet WalletService) *CouponHandler {
	return &CouponHandler{wallet: wallet}
}

// ListMyCoupons 自分のクーポン一覧ハンドラー
// @Summary 自分のクーポン一覧を取得
// @Tags coupons
// @Produce json
// @Security Bearer
// @Param template query string false "テンプレートで絞り込み"
// @Success 200 {object} CouponsResponse
// @Router /api/v1/me/coupons [get]
func (h *CouponHandler) ListMyCoupons(c echo.Context) error {
	id, _, err := currentPlayer(c)
	if err != nil {
		return err
	}
	return h.list(c, id)
}

// GiftCoupon ギフトハンドラー
// @Summary 自分のクーポンを他のプレイヤーに贈る
// @Tags coupons
// @Accept json
// @Security Bearer
// @Param code path string true "コード"
// @Param request body GiftCouponRequest true "受取人"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/me/coupons/{code}/gift [post]
func (h *CouponHandler) GiftCoupon(c echo.Context) error {
	sender, _, err := currentPlayer(c)
	if err != nil {
		return err
	}
	var req GiftCouponRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	recipient, err := player.ParseID(req.Recipient)
	if err != nil {
		return err
	}
	if recipient == sender {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot gift to yourself")
	}
	if err := h.wallet.Gift(c.Request().Context(), sender, recipient, c.Param("code")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ListCoupons プレイヤーのクーポン一覧ハンドラー（管理API用）
// @Summary プレイヤーのクーポン一覧を取得
// @Tags coupons
// @Produce json
// @Security ApiKeyAuth
// @Param player path string true "プレイヤーID"
// @Param template query string false "テンプレートで絞り込み"
// @Success 200 {object} CouponsResponse
// @Router /admin/players/{player}/coupons [get]
func (h *CouponHandler) ListCoupons(c echo.Context) error {
	id, err := playerParam(c, "player")
	if err != nil {
		return err
	}
	return h.list(c, id)
}

// GiveCoupon クーポン付与ハンドラー
// @Summary プレイヤーにクーポンを付与
// @Description codeを指定した場合は既存のコードを、省略した場合はtemplateからamount件生成して付与します
// @Tags coupons
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param player path string true "プレイヤーID"
// @Param request body GiveCouponRequest true "付与内容"
// @Success 201 {object} GiveCouponResponse
// @Failure 409 {object} ErrorResponse
// @Router /admin/players/{player}/coupons [post]
func (h *CouponHandler) GiveCoupon(c echo.Context) error {
	id, err := playerParam(c, "player")
	if err != nil {
		return err
	}
	var req GiveCouponRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	if strings.TrimSpace(req.Code) != "" {
		cp, err := h.wallet.Give(ctx, id, req.Code)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, GiveCouponResponse{Codes: []string{cp.Code()}})
	}

	if req.Amount == 0 {
		req.Amount = 1
	}
	codes, err := h.wallet.GiveRandom(ctx, &walletapp.GiveRandomRequest{
		Player:   id,
		Template: req.Template,
		Digit:    req.Digit,
		Amount:   req.Amount,
		Secured:  req.Secured,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, GiveCouponResponse{Codes: codes})
}

// TakeCoupon クーポン回収ハンドラー
// @Summary プレイヤーからクーポンを回収
// @Tags coupons
// @Security ApiKeyAuth
// @Param player path string true "プレイヤーID"
// @Param code path string true "コード"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /admin/players/{player}/coupons/{code} [delete]
func (h *CouponHandler) TakeCoupon(c echo.Context) error {
	id, err := playerParam(c, "player")
	if err != nil {
		return err
	}
	if err := h.wallet.Take(c.Request().Context(), id, c.Param("code")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// TakeTemplateCoupons テンプレート単位の回収ハンドラー
// @Summary プレイヤーからテンプレートのクーポンを全て回収
// @Tags coupons
// @Produce json
// @Security ApiKeyAuth
// @Param player path string true "プレイヤーID"
// @Param template path string true "テンプレート名"
// @Success 200 {object} CountResponse
// @Router /admin/players/{player}/coupons/templates/{template} [delete]
func (h *CouponHandler) TakeTemplateCoupons(c echo.Context) error {
	id, err := playerParam(c, "player")
	if err != nil {
		return err
	}
	n, err := h.wallet.TakeAllByTemplate(c.Request().Context(), id, c.Param("template"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, CountResponse{Count: n})
}

// BroadcastCoupon 一括付与ハンドラー
// @Summary 全プレイヤーまたはオンラインのプレイヤーにクーポンを付与
// @Description codeを指定した場合は同じコードを、省略した場合はプレイヤーごとに生成したコードを付与します
// @Tags coupons
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body BroadcastCouponRequest true "付与内容"
// @Success 200 {object} BroadcastCouponResponse
// @Router /admin/coupons/broadcast [post]
func (h *CouponHandler) BroadcastCoupon(c echo.Context) error {
	var req BroadcastCouponRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	var (
		result *walletapp.GiveResult
		err    error
	)
	if strings.TrimSpace(req.Code) != "" {
		result, err = h.wallet.GiveToAll(ctx, &walletapp.GiveToAllRequest{
			Code:       req.Code,
			OnlineOnly: req.OnlineOnly,
		})
	} else {
		result, err = h.wallet.GiveRandomToAll(ctx, &walletapp.GiveRandomToAllRequest{
			Template:   req.Template,
			Digit:      req.Digit,
			Secured:    req.Secured,
			OnlineOnly: req.OnlineOnly,
		})
	}
	if err != nil {
		return err
	}

	resp := BroadcastCouponResponse{
		Given:   make(map[string]string, len(result.Given)),
		Skipped: make([]string, 0, len(result.Skipped)),
	}
	for id, code := range result.Given {
		resp.Given[id.String()] = code
	}
	for _, id := range result.Skipped {
		resp.Skipped = append(resp.Skipped, id.String())
	}
	return c.JSON(http.StatusOK, resp)
}

// RevokeCoupon 全プレイヤーからの回収ハンドラー
// @Summary 全プレイヤーまたはオンラインのプレイヤーからクーポンを回収
// @Tags coupons
// @Security ApiKeyAuth
// @Param code path string true "コード"
// @Param online_only query bool false "オンラインのプレイヤーのみ"
// @Success 204
// @Router /admin/coupons/{code} [delete]
func (h *CouponHandler) RevokeCoupon(c echo.Context) error {
	onlineOnly, err := boolQuery(c, "online_only")
	if err != nil {
		return err
	}
	if err := h.wallet.TakeFromAll(c.Request().Context(), c.Param("code"), onlineOnly); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// RevokeTemplateCoupons テンプレート単位の全プレイヤーからの回収ハンドラー
// @Summary 全プレイヤーまたはオンラインのプレイヤーからテンプレートのクーポンを回収
// @Tags coupons
// @Produce json
// @Security ApiKeyAuth
// @Param template path string true "テンプレート名"
// @Param online_only query bool false "オンラインのプレイヤーのみ"
// @Success 200 {object} CountResponse
// @Router /admin/coupons/templates/{template} [delete]
func (h *CouponHandler) RevokeTemplateCoupons(c echo.Context) error {
	onlineOnly, err := boolQuery(c, "online_only")
	if err != nil {
		return err
	}
	n, err := h.wallet.TakeAllByTemplateFromAll(c.Request().Context(), c.Param("template"), onlineOnly)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, CountResponse{Count: n})
}

// UpdateSession ログイン状態の更新ハンドラー。ログイン時は保留中の通知を配信する。
// @Summary プレイヤーのログイン状態を更新
// @Tags players
// @Accept json
// @Security ApiKeyAuth
// @Param player path string true "プレイヤーID"
// @Param request body SessionRequest true "ログイン状態"
// @Success 204
// @Router /admin/players/{player}/session [put]
func (h *CouponHandler) UpdateSession(c echo.Context) error {
	id, err := playerParam(c, "player")
	if err != nil {
		return err
	}
	var req SessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.wallet.SetOnline(c.Request().Context(), id, strings.TrimSpace(req.Name), req.Online); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// NotifyPlayer 保留中の通知の配信ハンドラー
// @Summary 保留中の通知を配信
// @Tags players
// @Produce json
// @Security ApiKeyAuth
// @Param player path string true "プレイヤーID"
// @Success 200 {object} NotificationsResponse
// @Router /admin/players/{player}/notifications [post]
func (h *CouponHandler) NotifyPlayer(c echo.Context) error {
	id, err := playerParam(c, "player")
	if err != nil {
		return err
	}
	sent, err := h.wallet.NotifyPlayer(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if sent == nil {
		sent = []player.Notification{}
	}
	return c.JSON(http.StatusOK, NotificationsResponse{Notifications: sent})
}

func (h *CouponHandler) list(c echo.Context, id uuid.UUID) error {
	ctx := c.Request().Context()
	var (
		coupons []*coupon.Coupon
		err     error
	)
	if template := c.QueryParam("template"); template != "" {
		coupons, err = h.wallet.ListByTemplate(ctx, id, template)
	} else {
		coupons, err = h.wallet.List(ctx, id)
	}
	if err != nil {
		return err
	}

	views := make([]CouponView, 0, len(coupons))
	for _, cp := range coupons {
		views = append(views, CouponView{
			Code:     cp.Code(),
			GiftedAt: cp.GiftedAt().Format(timeLayout),
			Claimed:  cp.Claimed(),
		})
	}
	return c.JSON(http.StatusOK, CouponsResponse{Coupons: views})
}
