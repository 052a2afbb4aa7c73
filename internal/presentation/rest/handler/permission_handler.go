package handler

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"redeem-server/internal/domain/player"
	"redeem-server/internal/infrastructure/authz/casbin"
)

// PermissionAdmin 権限ノードの付与と剥奪
type PermissionAdmin interface {
	GrantPlayer(id uuid.UUID, permission string) error
	RevokePlayer(id uuid.UUID, permission string) error
	GrantGroup(group, permission string) error
	RevokeGroup(group, permission string) error
	AddToGroup(id uuid.UUID, group string) error
	RemoveFromGroup(id uuid.UUID, group string) error
	Grants() ([]casbin.Grant, error)
}

// GrantRequest 権限の付与・剥奪リクエスト。PlayerとGroupのどちらか一方を指定する。
type GrantRequest struct {
	Player     string `json:"player,omitempty" example:"0b7a4c54-7e3c-4b0e-9a52-3f3f0f6f1d11"`
	Group      string `json:"group,omitempty" example:"vip"`
	Permission string `json:"permission" example:"redeemx.use.*"`
}

// GrantsResponse 付与済みの権限一覧
type GrantsResponse struct {
	Grants []casbin.Grant `json:"grants"`
}

// PermissionHandler 権限管理ハンドラー
type PermissionHandler struct {
	permissions PermissionAdmin
}

// NewPermissionHandler 新しいPermissionHandlerを作成
func NewPermissionHandler(permissions PermissionAdmin) *PermissionHandler {
	return &PermissionHandler{permissions: permissions}
}

// ListGrants 権限一覧ハンドラー
// @Summary 付与済みの権限を取得
// @Tags permissions
// @Produce json
// @Success 200 {object} GrantsResponse
// @Router /admin/permissions [get]
func (h *PermissionHandler) ListGrants(c echo.Context) error {
	grants, err := h.permissions.Grants()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, GrantsResponse{Grants: grants})
}

// Grant 権限付与ハンドラー
// @Summary プレイヤーまたはグループに権限を付与
// @Tags permissions
// @Accept json
// @Param request body GrantRequest true "付与内容"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Router /admin/permissions/grant [post]
func (h *PermissionHandler) Grant(c echo.Context) error {
	return h.apply(c, h.permissions.GrantPlayer, h.permissions.GrantGroup)
}

// Revoke 権限剥奪ハンドラー
// @Summary プレイヤーまたはグループの権限を剥奪
// @Tags permissions
// @Accept json
// @Param request body GrantRequest true "剥奪内容"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Router /admin/permissions/revoke [post]
func (h *PermissionHandler) Revoke(c echo.Context) error {
	return h.apply(c, h.permissions.RevokePlayer, h.permissions.RevokeGroup)
}

// AddToGroup グループ追加ハンドラー
// @Summary プレイヤーをグループに追加
// @Tags permissions
// @Param player path string true "プレイヤーID"
// @Param group path string true "グループ名"
// @Success 204
// @Router /admin/players/{player}/groups/{group} [put]
func (h *PermissionHandler) AddToGroup(c echo.Context) error {
	return h.membership(c, h.permissions.AddToGroup)
}

// RemoveFromGroup グループ削除ハンドラー
// @Summary プレイヤーをグループから外す
// @Tags permissions
// @Param player path string true "プレイヤーID"
// @Param group path string true "グループ名"
// @Success 204
// @Router /admin/players/{player}/groups/{group} [delete]
func (h *PermissionHandler) RemoveFromGroup(c echo.Context) error {
	return h.membership(c, h.permissions.RemoveFromGroup)
}

func (h *PermissionHandler) apply(c echo.Context, forPlayer func(uuid.UUID, string) error, forGroup func(string, string) error) error {
	var req GrantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	playerID, group := strings.TrimSpace(req.Player), strings.TrimSpace(req.Group)
	if (playerID == "") == (group == "") {
		return echo.NewHTTPError(http.StatusBadRequest, "exactly one of player or group is required")
	}

	var err error
	if playerID != "" {
		id, perr := player.ParseID(playerID)
		if perr != nil {
			return perr
		}
		err = forPlayer(id, req.Permission)
	} else {
		err = forGroup(group, req.Permission)
	}
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *PermissionHandler) membership(c echo.Context, fn func(uuid.UUID, string) error) error {
	id, err := player.ParseID(c.Param("player"))
	if err != nil {
		return err
	}
	if err := fn(id, c.Param("group")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
