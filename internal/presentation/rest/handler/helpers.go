package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"redeem-server/internal/application/code_management"
	"redeem-server/internal/application/sequencer"
	"redeem-server/internal/domain/player"
)

// ErrorResponse エラーレスポンス
// @Description エラーレスポンス
type ErrorResponse struct {
	Error   string `json:"error" example:"code_not_found"`
	Message string `json:"message" example:"code not found"`
}

// await 永続化の完了を待つ
func await(c echo.Context, done <-chan sequencer.Result) error {
	res := sequencer.Wait(c.Request().Context(), done)
	if res.Success {
		return nil
	}
	if res.Err != nil {
		return errors.Join(sequencer.ErrNotPersisted, res.Err)
	}
	return sequencer.ErrNotPersisted
}

// currentPlayer 認証ミドルウェアが設定したプレイヤーを返す
func currentPlayer(c echo.Context) (uuid.UUID, string, error) {
	id, ok := c.Get("player_id").(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, "", echo.NewHTTPError(http.StatusUnauthorized, "player not found in token")
	}
	name, _ := c.Get("player_name").(string)
	return id, name, nil
}

// playerParam パスパラメータのプレイヤーIDを解析
func playerParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := player.ParseID(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// parsePlayers プレイヤーIDの一覧を解析
func parsePlayers(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := player.ParseID(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// pagination limit, offsetのクエリパラメータを解析
func pagination(c echo.Context, defaultLimit, maxLimit int) (int, int, error) {
	limit := defaultLimit
	if s := c.QueryParam("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > maxLimit {
			return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid limit parameter")
		}
		limit = v
	}
	offset := 0
	if s := c.QueryParam("offset"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid offset parameter")
		}
		offset = v
	}
	return limit, offset, nil
}

// boolQuery 真偽値のクエリパラメータを解析
func boolQuery(c echo.Context, name string) (bool, error) {
	s := c.QueryParam(name)
	if s == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+" parameter")
	}
	return v, nil
}

func syncReport(r code_management.SyncReport) SyncReport {
	return SyncReport{Updated: r.Updated, Failed: r.Failed, Skipped: r.Skipped}
}
