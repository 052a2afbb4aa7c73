package handler

import (
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"

	"redeem-server/internal/infrastructure/queue"
)

// JobQueue 管理操作をバックグラウンドで実行するジョブキュー
type JobQueue interface {
	Enabled() bool
	EnqueuePurgeExpired(payload queue.PurgeExpiredPayload, opts ...asynq.Option) error
	EnqueueSyncTemplate(payload queue.SyncTemplatePayload, opts ...asynq.Option) error
}

// QueuedResponse ジョブ投入レスポンス
type QueuedResponse struct {
	Status string `json:"status" example:"queued"`
	Task   string `json:"task" example:"codes:purge_expired"`
}

// async async=trueが指定され、キューが有効な場合にtrueを返す
func async(c echo.Context, jobs JobQueue) bool {
	return jobs != nil && jobs.Enabled() && c.QueryParam("async") == "true"
}

func queued(c echo.Context, task string) error {
	return c.JSON(http.StatusAccepted, QueuedResponse{Status: "queued", Task: task})
}
