package queue

import (
	"github.com/hibiken/asynq"

	"redeem-server/internal/infrastructure/config"
)

// DefaultQueue 既定のキュー名
const DefaultQueue = "redeem"

// Client 非同期ジョブクライアント。無効化されている場合は投入を無視する。
type Client struct {
	client  *asynq.Client
	enabled bool
}

// NewClient 新しいClientを作成
func NewClient(cfg *config.QueueConfig, redisCfg *config.RedisConfig) *Client {
	if cfg == nil || !cfg.Enabled {
		return &Client{}
	}
	return &Client{
		client:  asynq.NewClient(BuildRedisOpt(redisCfg)),
		enabled: true,
	}
}

// Enabled 有効かどうか
func (c *Client) Enabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// Close クライアントを閉じる
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueuePurgeExpired 期限切れコード削除タスクを投入
func (c *Client) EnqueuePurgeExpired(payload PurgeExpiredPayload, opts ...asynq.Option) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewPurgeExpiredTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.Enqueue(task, append([]asynq.Option{asynq.Queue(DefaultQueue)}, opts...)...)
	return err
}

// EnqueueRefreshCache キャッシュ再読み込みタスクを投入
func (c *Client) EnqueueRefreshCache(opts ...asynq.Option) error {
	if !c.Enabled() {
		return nil
	}
	_, err := c.client.Enqueue(NewRefreshCacheTask(), append([]asynq.Option{asynq.Queue(DefaultQueue)}, opts...)...)
	return err
}

// EnqueueSyncTemplate テンプレート同期タスクを投入。同じテンプレートの同期は一つにまとめる。
func (c *Client) EnqueueSyncTemplate(payload SyncTemplatePayload, opts ...asynq.Option) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewSyncTemplateTask(payload)
	if err != nil {
		return err
	}
	options := []asynq.Option{
		asynq.Queue(DefaultQueue),
		asynq.TaskID(TaskSyncTemplate + ":" + payload.Template),
	}
	_, err = c.client.Enqueue(task, append(options, opts...)...)
	return err
}

// BuildServerConfig ワーカーの設定を組み立てる
func BuildServerConfig(cfg *config.QueueConfig, redisCfg *config.RedisConfig) (asynq.RedisClientOpt, asynq.Config) {
	concurrency := 4
	if cfg != nil && cfg.Concurrency > 0 {
		concurrency = cfg.Concurrency
	}
	return BuildRedisOpt(redisCfg), asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{DefaultQueue: 1},
	}
}

// BuildRedisOpt Redis接続設定を組み立てる
func BuildRedisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	if cfg == nil {
		return asynq.RedisClientOpt{Addr: "localhost:6379"}
	}
	return asynq.RedisClientOpt{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}
