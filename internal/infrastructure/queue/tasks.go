package queue

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// TaskPurgeExpired 期限切れコードの削除タスク
	TaskPurgeExpired = "codes:purge_expired"
	// TaskRefreshCache コードキャッシュの再読み込みタスク
	TaskRefreshCache = "codes:refresh_cache"
	// TaskSyncTemplate テンプレートに紐付くコードの同期タスク
	TaskSyncTemplate = "templates:sync"
)

// PurgeExpiredPayload 期限切れコード削除タスクの載荷。Templateが空の場合は全コードが対象。
type PurgeExpiredPayload struct {
	Template string `json:"template,omitempty"`
}

// SyncTemplatePayload テンプレート同期タスクの載荷
type SyncTemplatePayload struct {
	Template string `json:"template"`
}

// NewPurgeExpiredTask 期限切れコード削除タスクを作成
func NewPurgeExpiredTask(payload PurgeExpiredPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPurgeExpired, body), nil
}

// NewRefreshCacheTask キャッシュ再読み込みタスクを作成
func NewRefreshCacheTask() *asynq.Task {
	return asynq.NewTask(TaskRefreshCache, nil)
}

// NewSyncTemplateTask テンプレート同期タスクを作成
func NewSyncTemplateTask(payload SyncTemplatePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSyncTemplate, body), nil
}
