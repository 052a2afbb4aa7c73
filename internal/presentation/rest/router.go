package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"redeem-server/internal/infrastructure/config"
	otelinfra "redeem-server/internal/infrastructure/observability/otel"
	"redeem-server/internal/presentation/rest/handler"
	restmiddleware "redeem-server/internal/presentation/rest/middleware"
)

// Services ルーターが公開するアプリケーションサービス
type Services struct {
	Auth        handler.TokenIssuer
	Redemption  handler.RedemptionService
	History     handler.HistoryService
	Codes       handler.CodeService
	Templates   handler.TemplateService
	Wallet      handler.WalletService
	Permissions handler.PermissionAdmin
	// Jobs 管理操作のジョブキュー。nilの場合は常に同期実行する。
	Jobs handler.JobQueue
	// Health 依存先の疎通確認。nilの場合は常に正常とする。
	Health func(ctx context.Context) error
}

// Router REST APIルーター
type Router struct {
	echo *echo.Echo
	cfg  *config.ServerConfig
}

// NewRouter 新しいRouterを作成
func NewRouter(
	cfg *config.Config,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
	services Services,
) (*Router, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// 通常はErrorHandlerMiddlewareで応答済み。Recoverが返したエラーのみここに届く。
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			status = httpErr.Code
		}
		_ = c.JSON(status, restmiddleware.ErrorResponse{
			Error:   http.StatusText(status),
			Message: http.StatusText(status),
		})
	}

	setupMiddleware(e, logger, metrics)
	setupRoutes(e, cfg, logger, services)
	SetupSwagger(e)

	return &Router{echo: e, cfg: &cfg.Server}, nil
}

// setupMiddleware ミドルウェアを設定
func setupMiddleware(e *echo.Echo, logger *otelinfra.Logger, metrics *otelinfra.Metrics) {
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-API-Key"},
	}))
	e.Use(middleware.RequestID())
	e.Use(restmiddleware.SecurityHeadersMiddleware())
	e.Use(restmiddleware.TracingMiddleware())
	e.Use(restmiddleware.LoggingMiddleware(logger))
	if metrics != nil {
		e.Use(restmiddleware.MetricsMiddleware(metrics))
	}
	e.Use(restmiddleware.ErrorHandlerMiddleware(logger))
}

// setupRoutes ルーティングを設定
func setupRoutes(e *echo.Echo, cfg *config.Config, logger *otelinfra.Logger, s Services) {
	auth := handler.NewAuthHandler(s.Auth)
	redemption := handler.NewCodeRedemptionHandler(s.Redemption)
	history := handler.NewHistoryHandler(s.History)
	codes := handler.NewCodeHandler(s.Codes).WithJobs(s.Jobs)
	templates := handler.NewTemplateHandler(s.Templates).WithJobs(s.Jobs)
	wallet := handler.NewCouponHandler(s.Wallet)
	permissions := handler.NewPermissionHandler(s.Permissions)

	apiKey := restmiddleware.APIKeyMiddleware(&cfg.AdminAPI, logger)

	// プレイヤー向け
	api := e.Group("/api/v1")
	api.POST("/auth/token", auth.GenerateToken, apiKey)

	player := api.Group("", restmiddleware.AuthMiddleware(&cfg.JWT, logger))
	player.POST("/codes/redeem", redemption.RedeemCode)
	player.GET("/codes/:code/check", redemption.CheckCode)
	player.GET("/me/history", history.GetMyHistory)
	player.GET("/me/coupons", wallet.ListMyCoupons)
	player.POST("/me/coupons/:code/gift", wallet.GiftCoupon)

	// 管理向け
	admin := e.Group("/admin", apiKey)

	admin.GET("/codes", codes.ListCodes)
	admin.POST("/codes", codes.CreateCodes)
	admin.POST("/codes/delete", codes.DeleteCodes)
	admin.POST("/codes/purge-expired", codes.PurgeExpired)
	admin.GET("/codes/:code", codes.GetCode)
	admin.PATCH("/codes/:code", codes.UpdateCode)
	admin.DELETE("/codes/:code", codes.DeleteCode)
	admin.PUT("/codes/:code/template", codes.SetTemplate)
	admin.POST("/codes/:code/template-permission", codes.SetTemplatePermission)
	admin.POST("/codes/:code/sync", codes.ToggleSync)
	admin.POST("/codes/:code/valid-from", codes.ResetValidFrom)
	admin.PUT("/codes/:code/targets", codes.UpdateTargets)

	admin.GET("/templates", templates.ListTemplates)
	admin.DELETE("/templates", templates.DeleteAllTemplates)
	admin.GET("/templates/:name", templates.GetTemplate)
	admin.POST("/templates/:name", templates.GenerateTemplate)
	admin.PATCH("/templates/:name", templates.UpdateTemplate)
	admin.DELETE("/templates/:name", templates.DeleteTemplate)
	admin.GET("/templates/:name/values/:property", templates.GetValue)
	admin.PUT("/templates/:name/digit", templates.SetDigit)
	admin.POST("/templates/:name/locked", templates.ToggleLocked)
	admin.POST("/templates/:name/permission", templates.TogglePermission)
	admin.POST("/templates/:name/sync", templates.SyncTemplate)
	admin.POST("/templates/:name/sync/:property", templates.ToggleSyncProperty)
	admin.DELETE("/templates/:name/codes", codes.DeleteTemplateCodes)

	admin.GET("/history", history.GetHistory)
	admin.DELETE("/history", history.DeleteHistory)

	admin.GET("/players/:player/coupons", wallet.ListCoupons)
	admin.POST("/players/:player/coupons", wallet.GiveCoupon)
	admin.DELETE("/players/:player/coupons/:code", wallet.TakeCoupon)
	admin.DELETE("/players/:player/coupons/templates/:template", wallet.TakeTemplateCoupons)
	admin.PUT("/players/:player/session", wallet.UpdateSession)
	admin.POST("/players/:player/notifications", wallet.NotifyPlayer)
	admin.PUT("/players/:player/groups/:group", permissions.AddToGroup)
	admin.DELETE("/players/:player/groups/:group", permissions.RemoveFromGroup)

	admin.GET("/permissions", permissions.ListGrants)
	admin.POST("/permissions/grant", permissions.Grant)
	admin.POST("/permissions/revoke", permissions.Revoke)
	admin.POST("/coupons/broadcast", wallet.BroadcastCoupon)
	admin.DELETE("/coupons/:code", wallet.RevokeCoupon)
	admin.DELETE("/coupons/templates/:template", wallet.RevokeTemplateCoupons)

	// ヘルスチェック（認証不要）
	e.GET("/health", func(c echo.Context) error {
		if s.Health != nil {
			if err := s.Health(c.Request().Context()); err != nil {
				logger.Warn(c.Request().Context(), "Health check failed", map[string]interface{}{
					"error": err.Error(),
				})
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

// ServeHTTP http.Handlerとして振る舞う
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.echo.ServeHTTP(w, req)
}

// Start サーバーを起動
func (r *Router) Start(address string) error {
	srv := &http.Server{
		Addr:         address,
		ReadTimeout:  r.cfg.ReadTimeout,
		WriteTimeout: r.cfg.WriteTimeout,
		IdleTimeout:  r.cfg.IdleTimeout,
	}
	return r.echo.StartServer(srv)
}

// Shutdown 処理中のリクエストの完了を待ってサーバーを停止
func (r *Router) Shutdown(ctx context.Context) error {
	return r.echo.Shutdown(ctx)
}
