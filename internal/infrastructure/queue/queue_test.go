package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"redeem-server/internal/application/code_management"
	"redeem-server/internal/infrastructure/config"
	otelinfra "redeem-server/internal/infrastructure/observability/otel"
)

// MockCodeMaintainer モックコードストア
type MockCodeMaintainer struct {
	mock.Mock
}

func (m *MockCodeMaintainer) PurgeExpired(ctx context.Context, template string) (int, error) {
	args := m.Called(ctx, template)
	return args.Int(0), args.Error(1)
}

func (m *MockCodeMaintainer) Refresh(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockTemplateSyncer モックテンプレート同期
type MockTemplateSyncer struct {
	mock.Mock
}

func (m *MockTemplateSyncer) Sync(ctx context.Context, name string) (code_management.SyncReport, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(code_management.SyncReport), args.Error(1)
}

func TestNewPurgeExpiredTask(t *testing.T) {
	task, err := NewPurgeExpiredTask(PurgeExpiredPayload{Template: "vip"})
	require.NoError(t, err)
	assert.Equal(t, TaskPurgeExpired, task.Type())

	var payload PurgeExpiredPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "vip", payload.Template)
}

func TestClient_Disabled(t *testing.T) {
	c := NewClient(&config.QueueConfig{Enabled: false}, &config.RedisConfig{})
	assert.False(t, c.Enabled())
	assert.NoError(t, c.EnqueuePurgeExpired(PurgeExpiredPayload{}))
	assert.NoError(t, c.EnqueueRefreshCache())
	assert.NoError(t, c.EnqueueSyncTemplate(SyncTemplatePayload{Template: "vip"}))
	assert.NoError(t, c.Close())
}

func TestBuildServerConfig(t *testing.T) {
	opt, cfg := BuildServerConfig(&config.QueueConfig{Concurrency: 0}, &config.RedisConfig{Host: "redis", Port: 6380, DB: 2})
	assert.Equal(t, "redis:6380", opt.Addr)
	assert.Equal(t, 2, opt.DB)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, map[string]int{DefaultQueue: 1}, cfg.Queues)
}

func TestNewService_Disabled(t *testing.T) {
	cfg := &config.Config{Queue: config.QueueConfig{Enabled: false}}
	_, err := NewService(cfg, NewConsumer(nil, nil, otelinfra.NewNopLogger()))
	assert.Error(t, err)
}

func TestConsumer_Handlers(t *testing.T) {
	syncTask, err := NewSyncTemplateTask(SyncTemplatePayload{Template: "vip"})
	require.NoError(t, err)
	purgeTask, err := NewPurgeExpiredTask(PurgeExpiredPayload{Template: "vip"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		task       *asynq.Task
		setupMocks func(codes *MockCodeMaintainer, templates *MockTemplateSyncer)
		wantErr    bool
		skipRetry  bool
	}{
		{
			name: "正常系: 期限切れコードを削除",
			task: purgeTask,
			setupMocks: func(codes *MockCodeMaintainer, templates *MockTemplateSyncer) {
				codes.On("PurgeExpired", mock.Anything, "vip").Return(3, nil)
			},
		},
		{
			name: "正常系: 載荷なしの場合は全コードが対象",
			task: asynq.NewTask(TaskPurgeExpired, nil),
			setupMocks: func(codes *MockCodeMaintainer, templates *MockTemplateSyncer) {
				codes.On("PurgeExpired", mock.Anything, "").Return(0, nil)
			},
		},
		{
			name: "異常系: 削除に失敗した場合は再試行する",
			task: purgeTask,
			setupMocks: func(codes *MockCodeMaintainer, templates *MockTemplateSyncer) {
				codes.On("PurgeExpired", mock.Anything, "vip").Return(0, errors.New("db down"))
			},
			wantErr: true,
		},
		{
			name: "正常系: キャッシュを再読み込み",
			task: NewRefreshCacheTask(),
			setupMocks: func(codes *MockCodeMaintainer, templates *MockTemplateSyncer) {
				codes.On("Refresh", mock.Anything).Return(nil)
			},
		},
		{
			name: "正常系: テンプレートを同期",
			task: syncTask,
			setupMocks: func(codes *MockCodeMaintainer, templates *MockTemplateSyncer) {
				templates.On("Sync", mock.Anything, "vip").Return(code_management.SyncReport{Updated: 2}, nil)
			},
		},
		{
			name:       "異常系: 不正な載荷は再試行しない",
			task:       asynq.NewTask(TaskSyncTemplate, []byte("{")),
			setupMocks: func(codes *MockCodeMaintainer, templates *MockTemplateSyncer) {},
			wantErr:    true,
			skipRetry:  true,
		},
		{
			name:       "異常系: テンプレート名が空",
			task:       asynq.NewTask(TaskSyncTemplate, []byte(`{"template":" "}`)),
			setupMocks: func(codes *MockCodeMaintainer, templates *MockTemplateSyncer) {},
			wantErr:    true,
			skipRetry:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes := new(MockCodeMaintainer)
			templates := new(MockTemplateSyncer)
			tt.setupMocks(codes, templates)

			mux := asynq.NewServeMux()
			NewConsumer(codes, templates, otelinfra.NewNopLogger()).Register(mux)

			err := mux.ProcessTask(context.Background(), tt.task)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.skipRetry, errors.Is(err, asynq.SkipRetry))
			} else {
				require.NoError(t, err)
			}
			codes.AssertExpectations(t)
			templates.AssertExpectations(t)
		})
	}
}
