package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"redeem-server/internal/application/code_management"
	"redeem-server/internal/application/sequencer"
	"redeem-server/internal/domain/redeem_property"
	"redeem-server/internal/domain/redemption_code"
	"redeem-server/internal/infrastructure/queue"
)

// lookupSuggestions コードが見つからない場合に返す候補数
const lookupSuggestions = 5

// CodeService 管理APIで使うコードストアの操作
type CodeService interface {
	List(ctx context.Context, q code_management.ListQuery) (*code_management.ListResult, error)
	Lookup(ctx context.Context, code string, limit int) (*redemption_code.RedemptionCode, []string, error)
	Create(ctx context.Context, req *code_management.CreateRequest) (*code_management.CreateResponse, <-chan sequencer.Result, error)
	Update(ctx context.Context, code string, mutations ...redeem_property.Mutation) (<-chan sequencer.Result, error)
	SetCondition(ctx context.Context, code, condition string) (<-chan sequencer.Result, error)
	SetTemplate(ctx context.Context, code, template string) (<-chan sequencer.Result, error)
	SetTemplatePermission(ctx context.Context, code string) (<-chan sequencer.Result, error)
	ToggleSync(ctx context.Context, code string) (<-chan sequencer.Result, error)
	SetTargets(ctx context.Context, code string, players []uuid.UUID) (<-chan sequencer.Result, error)
	AddTargets(ctx context.Context, code string, players []uuid.UUID) (<-chan sequencer.Result, error)
	RemoveTargets(ctx context.Context, code string, players []uuid.UUID) (<-chan sequencer.Result, error)
	ResetValidFrom(ctx context.Context, code string) (<-chan sequencer.Result, error)
	Delete(ctx context.Context, code string) (<-chan sequencer.Result, error)
	DeleteBatch(ctx context.Context, codes []string) (int, <-chan sequencer.Result, error)
	DeleteByTemplate(ctx context.Context, template string) (int, <-chan sequencer.Result, error)
	PurgeExpired(ctx context.Context, template string) (int, error)
	Now() time.Time
}

// CodeHandler 引き換えコード管理ハンドラー
type CodeHandler struct {
	codes CodeService
	jobs  JobQueue
}

// NewCodeHandler 新しいCodeHandlerを作成
func NewCodeHandler(codes CodeService) *CodeHandler {
	return &CodeHandler{codes: codes}
}

// WithJobs async=trueの削除をキューへ投入する
func (h *CodeHandler) WithJobs(jobs JobQueue) *CodeHandler {
	h.jobs = jobs
	return h
}

// ListCodes コード一覧ハンドラー
// @Summary 引き換えコード一覧を取得
// @Tags codes
// @Produce json
// @Param template query string false "テンプレート名"
// @Param lock query string false "同期状態（all/locked/unlocked）"
// @Param status query string false "状態（active/expired/disabled）"
// @Param sort query string false "並び替えキー（code/template/modified/valid_from）"
// @Param desc query bool false "降順"
// @Param limit query int false "取得件数（デフォルト: 50, 最大: 500)"
// @Param offset query int false "オフセット"
// @Success 200 {object} CodesResponse
// @Failure 400 {object} ErrorResponse
// @Router /admin/codes [get]
func (h *CodeHandler) ListCodes(c echo.Context) error {
	limit, offset, err := pagination(c, 50, 500)
	if err != nil {
		return err
	}
	lock, err := redemption_code.NewLockStatus(c.QueryParam("lock"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	desc, err := boolQuery(c, "desc")
	if err != nil {
		return err
	}

	q := code_management.ListQuery{
		Template: c.QueryParam("template"),
		Lock:     lock,
		Sort:     redemption_code.SortOrder{Field: redemption_code.SortByCode, Descending: desc},
		Limit:    limit,
		Offset:   offset,
	}
	if s := c.QueryParam("sort"); s != "" {
		q.Sort.Field = redemption_code.SortField(s)
		if !q.Sort.Field.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid sort parameter")
		}
	}
	if s := c.QueryParam("status"); s != "" {
		status, err := redemption_code.ParseCodeStatus(s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		q.Status = &status
	}

	result, err := h.codes.List(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, CodesResponse{
		Codes:  newCodeViews(result.Codes, h.codes.Now()),
		Total:  result.Total,
		Limit:  result.Limit,
		Offset: result.Offset,
	})
}

// GetCode コード取得ハンドラー。見つからない場合は404と近いコードの候補を返す。
// @Summary 引き換えコードを取得
// @Tags codes
// @Produce json
// @Param code path string true "コード"
// @Success 200 {object} LookupResponse
// @Failure 404 {object} LookupResponse
// @Router /admin/codes/{code} [get]
func (h *CodeHandler) GetCode(c echo.Context) error {
	rc, suggestions, err := h.codes.Lookup(c.Request().Context(), c.Param("code"), lookupSuggestions)
	if err != nil {
		if errors.Is(err, redemption_code.ErrCodeNotFound) {
			return c.JSON(http.StatusNotFound, LookupResponse{Suggestions: suggestions})
		}
		return err
	}
	view := newCodeView(rc, h.codes.Now())
	return c.JSON(http.StatusOK, LookupResponse{Code: &view})
}

// CreateCodes コード作成ハンドラー
// @Summary 引き換えコードを作成
// @Description codesを指定した場合はそのコードを、省略した場合はdigit桁のランダムなコードをamount件作成します
// @Tags codes
// @Accept json
// @Produce json
// @Param request body CreateCodesRequest true "作成リクエスト"
// @Success 201 {object} CodesResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /admin/codes [post]
func (h *CodeHandler) CreateCodes(c echo.Context) error {
	var req CreateCodesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Codes) == 0 && req.Amount == 0 {
		req.Amount = 1
	}

	resp, done, err := h.codes.Create(c.Request().Context(), &code_management.CreateRequest{
		Codes:    req.Codes,
		Template: req.Template,
		Digit:    req.Digit,
		Amount:   req.Amount,
	})
	if err != nil {
		return err
	}
	if err := await(c, done); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, CodesResponse{
		Codes: newCodeViews(resp.Codes, h.codes.Now()),
		Total: len(resp.Codes),
		Limit: len(resp.Codes),
	})
}

// UpdateCode コードのプロパティ変更ハンドラー
// @Summary 引き換えコードのプロパティを変更
// @Tags codes
// @Accept json
// @Produce json
// @Param code path string true "コード"
// @Param request body PropertiesPatch true "変更内容"
// @Success 200 {object} CodeView
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /admin/codes/{code} [patch]
func (h *CodeHandler) UpdateCode(c echo.Context) error {
	var patch PropertiesPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if patch.Empty() {
		return echo.NewHTTPError(http.StatusBadRequest, "no properties to update")
	}

	ctx := c.Request().Context()
	code := c.Param("code")
	var pending []<-chan sequencer.Result
	if patch.Condition != nil {
		done, err := h.codes.SetCondition(ctx, code, *patch.Condition)
		if err != nil {
			return err
		}
		pending = append(pending, done)
	}
	if ms := patch.Mutations(); len(ms) > 0 {
		done, err := h.codes.Update(ctx, code, ms...)
		if err != nil {
			return err
		}
		pending = append(pending, done)
	}
	if err := await(c, sequencer.Join(pending...)); err != nil {
		return err
	}
	return h.respondCode(c, code)
}

// SetTemplate テンプレート付け替えハンドラー
// @Summary 引き換えコードのテンプレートを変更
// @Tags codes
// @Accept json
// @Produce json
// @Param code path string true "コード"
// @Param request body SetTemplateRequest true "テンプレート"
// @Success 200 {object} CodeView
// @Router /admin/codes/{code}/template [put]
func (h *CodeHandler) SetTemplate(c echo.Context) error {
	var req SetTemplateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return h.apply(c, func(ctx context.Context, code string) (<-chan sequencer.Result, error) {
		return h.codes.SetTemplate(ctx, code, req.Template)
	})
}

// SetTemplatePermission テンプレートの権限を適用するハンドラー
// @Summary テンプレートの権限をコードに適用
// @Tags codes
// @Produce json
// @Param code path string true "コード"
// @Success 200 {object} CodeView
// @Router /admin/codes/{code}/template-permission [post]
func (h *CodeHandler) SetTemplatePermission(c echo.Context) error {
	return h.apply(c, h.codes.SetTemplatePermission)
}

// ToggleSync テンプレート同期の切り替えハンドラー
// @Summary テンプレートとの同期を切り替え
// @Tags codes
// @Produce json
// @Param code path string true "コード"
// @Success 200 {object} CodeView
// @Router /admin/codes/{code}/sync [post]
func (h *CodeHandler) ToggleSync(c echo.Context) error {
	return h.apply(c, h.codes.ToggleSync)
}

// ResetValidFrom 有効期間の起点を現在時刻に戻すハンドラー
// @Summary 有効期間の起点をリセット
// @Tags codes
// @Produce json
// @Param code path string true "コード"
// @Success 200 {object} CodeView
// @Router /admin/codes/{code}/valid-from [post]
func (h *CodeHandler) ResetValidFrom(c echo.Context) error {
	return h.apply(c, h.codes.ResetValidFrom)
}

// UpdateTargets 対象プレイヤー変更ハンドラー
// @Summary 引き換え対象のプレイヤーを変更
// @Tags codes
// @Accept json
// @Produce json
// @Param code path string true "コード"
// @Param request body TargetsRequest true "変更内容"
// @Success 200 {object} CodeView
// @Failure 400 {object} ErrorResponse
// @Router /admin/codes/{code}/targets [put]
func (h *CodeHandler) UpdateTargets(c echo.Context) error {
	var req TargetsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	players, err := parsePlayers(req.Players)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var fn func(ctx context.Context, code string, players []uuid.UUID) (<-chan sequencer.Result, error)
	switch strings.ToLower(req.Mode) {
	case "", "set":
		fn = h.codes.SetTargets
	case "add":
		fn = h.codes.AddTargets
	case "remove":
		fn = h.codes.RemoveTargets
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid mode")
	}
	return h.apply(c, func(ctx context.Context, code string) (<-chan sequencer.Result, error) {
		return fn(ctx, code, players)
	})
}

// DeleteCode コード削除ハンドラー
// @Summary 引き換えコードを削除
// @Tags codes
// @Param code path string true "コード"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /admin/codes/{code} [delete]
func (h *CodeHandler) DeleteCode(c echo.Context) error {
	done, err := h.codes.Delete(c.Request().Context(), c.Param("code"))
	if err != nil {
		return err
	}
	if err := await(c, done); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteCodes コード一括削除ハンドラー
// @Summary 引き換えコードを一括削除
// @Tags codes
// @Accept json
// @Produce json
// @Param request body DeleteCodesRequest true "削除するコード"
// @Success 200 {object} CountResponse
// @Router /admin/codes/delete [post]
func (h *CodeHandler) DeleteCodes(c echo.Context) error {
	var req DeleteCodesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Codes) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "codes is required")
	}
	n, done, err := h.codes.DeleteBatch(c.Request().Context(), req.Codes)
	if err != nil {
		return err
	}
	if err := await(c, done); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, CountResponse{Count: int64(n)})
}

// DeleteTemplateCodes テンプレートに紐付くコードの削除ハンドラー
// @Summary テンプレートに紐付くコードを削除
// @Tags codes
// @Produce json
// @Param name path string true "テンプレート名"
// @Success 200 {object} CountResponse
// @Router /admin/templates/{name}/codes [delete]
func (h *CodeHandler) DeleteTemplateCodes(c echo.Context) error {
	n, done, err := h.codes.DeleteByTemplate(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	if err := await(c, done); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, CountResponse{Count: int64(n)})
}

// PurgeExpired 期限切れコードの削除ハンドラー
// @Summary 期限切れのコードを削除
// @Tags codes
// @Produce json
// @Param template query string false "テンプレート名。省略時は全コード"
// @Param async query bool false "バックグラウンドで実行"
// @Success 200 {object} CountResponse
// @Success 202 {object} QueuedResponse
// @Router /admin/codes/purge-expired [post]
func (h *CodeHandler) PurgeExpired(c echo.Context) error {
	if async(c, h.jobs) {
		if err := h.jobs.EnqueuePurgeExpired(queue.PurgeExpiredPayload{Template: c.QueryParam("template")}); err != nil {
			return err
		}
		return queued(c, queue.TaskPurgeExpired)
	}
	n, err := h.codes.PurgeExpired(c.Request().Context(), c.QueryParam("template"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, CountResponse{Count: int64(n)})
}

// apply パスのコードに変更を適用し、変更後のコードを返す
func (h *CodeHandler) apply(c echo.Context, fn func(ctx context.Context, code string) (<-chan sequencer.Result, error)) error {
	code := c.Param("code")
	done, err := fn(c.Request().Context(), code)
	if err != nil {
		return err
	}
	if err := await(c, done); err != nil {
		return err
	}
	return h.respondCode(c, code)
}

func (h *CodeHandler) respondCode(c echo.Context, code string) error {
	rc, _, err := h.codes.Lookup(c.Request().Context(), code, 0)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newCodeView(rc, h.codes.Now()))
}
