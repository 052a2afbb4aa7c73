package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"redeem-server/internal/application/code_management"
	"redeem-server/internal/infrastructure/config"
	otelinfra "redeem-server/internal/infrastructure/observability/otel"
)

// CodeMaintainer 定期メンテナンスで使うコードストアの操作
type CodeMaintainer interface {
	PurgeExpired(ctx context.Context, template string) (int, error)
	Refresh(ctx context.Context) error
}

// TemplateSyncer テンプレート同期の操作
type TemplateSyncer interface {
	Sync(ctx context.Context, name string) (code_management.SyncReport, error)
}

// Consumer タスクの処理
type Consumer struct {
	codes     CodeMaintainer
	templates TemplateSyncer
	logger    *otelinfra.Logger
}

// NewConsumer 新しいConsumerを作成
func NewConsumer(codes CodeMaintainer, templates TemplateSyncer, logger *otelinfra.Logger) *Consumer {
	return &Consumer{codes: codes, templates: templates, logger: logger}
}

// Register ハンドラーを登録
func (c *Consumer) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskPurgeExpired, c.handlePurgeExpired)
	mux.HandleFunc(TaskRefreshCache, c.handleRefreshCache)
	mux.HandleFunc(TaskSyncTemplate, c.handleSyncTemplate)
}

func (c *Consumer) handlePurgeExpired(ctx context.Context, task *asynq.Task) error {
	var payload PurgeExpiredPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("invalid purge payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	n, err := c.codes.PurgeExpired(ctx, payload.Template)
	if err != nil {
		c.logger.Warn(ctx, "Failed to purge expired codes", map[string]interface{}{
			"template": payload.Template,
			"error":    err.Error(),
		})
		return err
	}
	c.logger.Info(ctx, "Expired codes purged", map[string]interface{}{
		"template": payload.Template,
		"count":    n,
	})
	return nil
}

func (c *Consumer) handleRefreshCache(ctx context.Context, _ *asynq.Task) error {
	if err := c.codes.Refresh(ctx); err != nil {
		c.logger.Warn(ctx, "Failed to refresh code cache", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}
	return nil
}

func (c *Consumer) handleSyncTemplate(ctx context.Context, task *asynq.Task) error {
	var payload SyncTemplatePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid sync payload: %v: %w", err, asynq.SkipRetry)
	}
	if strings.TrimSpace(payload.Template) == "" {
		return fmt.Errorf("template is required: %w", asynq.SkipRetry)
	}

	report, err := c.templates.Sync(ctx, payload.Template)
	if err != nil {
		c.logger.Warn(ctx, "Failed to sync template", map[string]interface{}{
			"template": payload.Template,
			"error":    err.Error(),
		})
		return err
	}
	c.logger.Info(ctx, "Template synced", map[string]interface{}{
		"template": payload.Template,
		"updated":  report.Updated,
		"failed":   report.Failed,
		"skipped":  report.Skipped,
	})
	return nil
}

// Service ワーカーと定期実行スケジューラー
type Service struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
}

// NewService 新しいServiceを作成。期限切れ削除はRedeem.PurgeExpiredが有効な場合のみ登録する。
func NewService(cfg *config.Config, consumer *Consumer) (*Service, error) {
	if !cfg.Queue.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}

	opt, serverCfg := BuildServerConfig(&cfg.Queue, &cfg.Redis)
	mux := asynq.NewServeMux()
	consumer.Register(mux)

	scheduler := asynq.NewScheduler(opt, nil)
	if spec := strings.TrimSpace(cfg.Queue.RefreshCacheCron); spec != "" {
		if _, err := scheduler.Register(spec, NewRefreshCacheTask(), asynq.Queue(DefaultQueue)); err != nil {
			return nil, fmt.Errorf("failed to schedule cache refresh: %w", err)
		}
	}
	if spec := strings.TrimSpace(cfg.Queue.PurgeExpiredCron); spec != "" && cfg.Redeem.PurgeExpired {
		task, err := NewPurgeExpiredTask(PurgeExpiredPayload{})
		if err != nil {
			return nil, err
		}
		if _, err := scheduler.Register(spec, task, asynq.Queue(DefaultQueue)); err != nil {
			return nil, fmt.Errorf("failed to schedule expired code purge: %w", err)
		}
	}

	return &Service{
		server:    asynq.NewServer(opt, serverCfg),
		scheduler: scheduler,
		mux:       mux,
	}, nil
}

// Start ワーカーとスケジューラーを起動
func (s *Service) Start() error {
	if err := s.server.Start(s.mux); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	if err := s.scheduler.Start(); err != nil {
		s.server.Shutdown()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Stop スケジューラーとワーカーを停止
func (s *Service) Stop() {
	s.scheduler.Shutdown()
	s.server.Shutdown()
}
