package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"redeem-server/internal/application/code_management"
	"redeem-server/internal/domain/redeem_property"
	"redeem-server/internal/domain/redeem_template"
	"redeem-server/internal/infrastructure/queue"
)

// TemplateService 管理APIで使うテンプレートの操作
type TemplateService interface {
	Get(ctx context.Context, name string) (*redeem_template.RedeemTemplate, error)
	List(ctx context.Context) ([]*redeem_template.RedeemTemplate, error)
	Value(ctx context.Context, name, property string) (string, error)
	Generate(ctx context.Context, name string) (*redeem_template.RedeemTemplate, error)
	Update(ctx context.Context, name string, mutations ...redeem_property.Mutation) (code_management.SyncReport, error)
	SetCondition(ctx context.Context, name, condition string) (code_management.SyncReport, error)
	SetDigit(ctx context.Context, name string, digit int) error
	ToggleLocked(ctx context.Context, name string) (bool, code_management.SyncReport, error)
	ToggleSyncProperty(ctx context.Context, name, property string) (bool, code_management.SyncReport, error)
	ToggleRequiredPermission(ctx context.Context, name string) (bool, code_management.SyncReport, error)
	Sync(ctx context.Context, name string) (code_management.SyncReport, error)
	Delete(ctx context.Context, name string) error
	DeleteAll(ctx context.Context) error
}

// TemplatesResponse テンプレート一覧レスポンス
type TemplatesResponse struct {
	Templates []TemplateView `json:"templates"`
}

// TemplateUpdateResponse 変更後のテンプレートと同期結果
type TemplateUpdateResponse struct {
	Template TemplateView `json:"template"`
	Sync     SyncReport   `json:"sync"`
}

// ValueResponse プロパティの値
type ValueResponse struct {
	Property string `json:"property" example:"duration"`
	Value    string `json:"value" example:"7d"`
}

// DigitRequest 桁数変更リクエスト
type DigitRequest struct {
	Digit int `json:"digit" example:"8"`
}

// TemplateHandler テンプレート管理ハンドラー
type TemplateHandler struct {
	templates TemplateService
	jobs      JobQueue
}

// NewTemplateHandler 新しいTemplateHandlerを作成
func NewTemplateHandler(templates TemplateService) *TemplateHandler {
	return &TemplateHandler{templates: templates}
}

// WithJobs async=trueの同期をキューへ投入する
func (h *TemplateHandler) WithJobs(jobs JobQueue) *TemplateHandler {
	h.jobs = jobs
	return h
}

// ListTemplates テンプレート一覧ハンドラー
// @Summary テンプレート一覧を取得
// @Tags templates
// @Produce json
// @Success 200 {object} TemplatesResponse
// @Router /admin/templates [get]
func (h *TemplateHandler) ListTemplates(c echo.Context) error {
	templates, err := h.templates.List(c.Request().Context())
	if err != nil {
		return err
	}
	views := make([]TemplateView, 0, len(templates))
	for _, t := range templates {
		views = append(views, newTemplateView(t))
	}
	return c.JSON(http.StatusOK, TemplatesResponse{Templates: views})
}

// GetTemplate テンプレート取得ハンドラー
// @Summary テンプレートを取得
// @Tags templates
// @Produce json
// @Param name path string true "テンプレート名"
// @Success 200 {object} TemplateView
// @Failure 404 {object} ErrorResponse
// @Router /admin/templates/{name} [get]
func (h *TemplateHandler) GetTemplate(c echo.Context) error {
	tmpl, err := h.templates.Get(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newTemplateView(tmpl))
}

// GetValue プロパティ値取得ハンドラー
// @Summary テンプレートのプロパティ値を取得
// @Tags templates
// @Produce json
// @Param name path string true "テンプレート名"
// @Param property path string true "プロパティ名"
// @Success 200 {object} ValueResponse
// @Router /admin/templates/{name}/values/{property} [get]
func (h *TemplateHandler) GetValue(c echo.Context) error {
	property := c.Param("property")
	v, err := h.templates.Value(c.Request().Context(), c.Param("name"), property)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ValueResponse{Property: property, Value: v})
}

// GenerateTemplate テンプレート作成ハンドラー
// @Summary 既定値でテンプレートを作成
// @Tags templates
// @Produce json
// @Param name path string true "テンプレート名"
// @Success 201 {object} TemplateView
// @Failure 409 {object} ErrorResponse
// @Router /admin/templates/{name} [post]
func (h *TemplateHandler) GenerateTemplate(c echo.Context) error {
	tmpl, err := h.templates.Generate(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, newTemplateView(tmpl))
}

// UpdateTemplate テンプレートのプロパティ変更ハンドラー。同期中のコードにも反映する。
// @Summary テンプレートのプロパティを変更
// @Tags templates
// @Accept json
// @Produce json
// @Param name path string true "テンプレート名"
// @Param request body PropertiesPatch true "変更内容"
// @Success 200 {object} TemplateUpdateResponse
// @Failure 400 {object} ErrorResponse
// @Router /admin/templates/{name} [patch]
func (h *TemplateHandler) UpdateTemplate(c echo.Context) error {
	var patch PropertiesPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if patch.Empty() {
		return echo.NewHTTPError(http.StatusBadRequest, "no properties to update")
	}

	ctx := c.Request().Context()
	name := c.Param("name")
	var report code_management.SyncReport
	if patch.Condition != nil {
		r, err := h.templates.SetCondition(ctx, name, *patch.Condition)
		if err != nil {
			return err
		}
		report = r
	}
	if ms := patch.Mutations(); len(ms) > 0 {
		r, err := h.templates.Update(ctx, name, ms...)
		if err != nil {
			return err
		}
		report = r
	}
	return h.respondUpdate(c, name, report)
}

// SetDigit 桁数変更ハンドラー
// @Summary ランダム生成の桁数を変更
// @Tags templates
// @Accept json
// @Produce json
// @Param name path string true "テンプレート名"
// @Param request body DigitRequest true "桁数"
// @Success 200 {object} TemplateView
// @Router /admin/templates/{name}/digit [put]
func (h *TemplateHandler) SetDigit(c echo.Context) error {
	var req DigitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	name := c.Param("name")
	if err := h.templates.SetDigit(c.Request().Context(), name, req.Digit); err != nil {
		return err
	}
	return h.GetTemplate(c)
}

// ToggleLocked ロック切り替えハンドラー
// @Summary テンプレートのロックを切り替え
// @Tags templates
// @Produce json
// @Param name path string true "テンプレート名"
// @Success 200 {object} ToggleResponse
// @Router /admin/templates/{name}/locked [post]
func (h *TemplateHandler) ToggleLocked(c echo.Context) error {
	return h.toggle(c, h.templates.ToggleLocked)
}

// TogglePermission 権限必須の切り替えハンドラー
// @Summary テンプレートの権限必須を切り替え
// @Tags templates
// @Produce json
// @Param name path string true "テンプレート名"
// @Success 200 {object} ToggleResponse
// @Router /admin/templates/{name}/permission [post]
func (h *TemplateHandler) TogglePermission(c echo.Context) error {
	return h.toggle(c, h.templates.ToggleRequiredPermission)
}

// ToggleSyncProperty 同期プロパティの切り替えハンドラー
// @Summary プロパティの同期を切り替え
// @Tags templates
// @Produce json
// @Param name path string true "テンプレート名"
// @Param property path string true "プロパティ名"
// @Success 200 {object} ToggleResponse
// @Failure 400 {object} ErrorResponse
// @Router /admin/templates/{name}/sync/{property} [post]
func (h *TemplateHandler) ToggleSyncProperty(c echo.Context) error {
	property := c.Param("property")
	return h.toggle(c, func(ctx context.Context, name string) (bool, code_management.SyncReport, error) {
		return h.templates.ToggleSyncProperty(ctx, name, property)
	})
}

// SyncTemplate 同期ハンドラー
// @Summary テンプレートを同期中のコードへ反映
// @Tags templates
// @Produce json
// @Param name path string true "テンプレート名"
// @Param async query bool false "バックグラウンドで実行"
// @Success 200 {object} SyncReport
// @Success 202 {object} QueuedResponse
// @Router /admin/templates/{name}/sync [post]
func (h *TemplateHandler) SyncTemplate(c echo.Context) error {
	if async(c, h.jobs) {
		if err := h.jobs.EnqueueSyncTemplate(queue.SyncTemplatePayload{Template: c.Param("name")}); err != nil {
			return err
		}
		return queued(c, queue.TaskSyncTemplate)
	}
	report, err := h.templates.Sync(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, syncReport(report))
}

// DeleteTemplate テンプレート削除ハンドラー
// @Summary テンプレートを削除
// @Tags templates
// @Param name path string true "テンプレート名"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /admin/templates/{name} [delete]
func (h *TemplateHandler) DeleteTemplate(c echo.Context) error {
	if err := h.templates.Delete(c.Request().Context(), c.Param("name")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteAllTemplates 全テンプレート削除ハンドラー
// @Summary 全テンプレートを削除
// @Tags templates
// @Success 204
// @Router /admin/templates [delete]
func (h *TemplateHandler) DeleteAllTemplates(c echo.Context) error {
	if err := h.templates.DeleteAll(c.Request().Context()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *TemplateHandler) toggle(c echo.Context, fn func(ctx context.Context, name string) (bool, code_management.SyncReport, error)) error {
	v, report, err := fn(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ToggleResponse{Value: v, Sync: syncReport(report)})
}

func (h *TemplateHandler) respondUpdate(c echo.Context, name string, report code_management.SyncReport) error {
	tmpl, err := h.templates.Get(c.Request().Context(), name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TemplateUpdateResponse{Template: newTemplateView(tmpl), Sync: syncReport(report)})
}
