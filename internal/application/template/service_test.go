package template

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"redeem-server/internal/application/code_management"
	"redeem-server/internal/application/sequencer"
	"redeem-server/internal/domain/duration"
	"redeem-server/internal/domain/redeem_property"
	"redeem-server/internal/domain/redeem_template"
	"redeem-server/internal/domain/redemption_code"
	otelinfra "redeem-server/internal/infrastructure/observability/otel"
)

// MockTemplateRepository モックテンプレートリポジトリ
type MockTemplateRepository struct {
	mock.Mock
}

func (m *MockTemplateRepository) Exists(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func (m *MockTemplateRepository) FindByName(ctx context.Context, name string) (*redeem_template.RedeemTemplate, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*redeem_template.RedeemTemplate), args.Error(1)
}

func (m *MockTemplateRepository) FindAll(ctx context.Context) ([]*redeem_template.RedeemTemplate, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*redeem_template.RedeemTemplate), args.Error(1)
}

func (m *MockTemplateRepository) ListNames(ctx context.Context, descending bool) ([]string, error) {
	args := m.Called(ctx, descending)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockTemplateRepository) Upsert(ctx context.Context, t *redeem_template.RedeemTemplate) error {
	return m.Called(ctx, t).Error(0)
}

func (m *MockTemplateRepository) Delete(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func (m *MockTemplateRepository) DeleteAll(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockCodeSynchronizer モック同期先
type MockCodeSynchronizer struct {
	mock.Mock
}

func (m *MockCodeSynchronizer) SyncTemplate(ctx context.Context, tmpl *redeem_template.RedeemTemplate) (code_management.SyncReport, error) {
	args := m.Called(ctx, tmpl)
	return args.Get(0).(code_management.SyncReport), args.Error(1)
}

type rejectValidator struct{}

func (rejectValidator) Validate(condition string) error {
	if condition == "bad" {
		return errors.New("invalid condition")
	}
	return nil
}

func newService(t *testing.T) (*Service, *MockTemplateRepository, *MockCodeSynchronizer) {
	t.Helper()
	metrics, err := otelinfra.NewMetrics("template-test")
	require.NoError(t, err)
	repo := new(MockTemplateRepository)
	syncer := new(MockCodeSynchronizer)
	dispatcher := sequencer.NewDispatcher(2, 8)
	t.Cleanup(dispatcher.Close)
	return NewService(repo, syncer, rejectValidator{}, dispatcher, otelinfra.NewNopLogger(), metrics), repo, syncer
}

func mustTemplate(t *testing.T, name string) *redeem_template.RedeemTemplate {
	t.Helper()
	tmpl, err := redeem_template.NewRedeemTemplate(name)
	require.NoError(t, err)
	return tmpl
}

func TestService_Generate(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(*MockTemplateRepository)
		wantErr   error
	}{
		{
			name: "正常系: 既定値で作成",
			setupMock: func(m *MockTemplateRepository) {
				m.On("Exists", mock.Anything, "Event").Return(false, nil)
				m.On("Upsert", mock.Anything, mock.MatchedBy(func(t *redeem_template.RedeemTemplate) bool {
					return t.Name() == "Event" && t.Locked() && t.Properties().Permission == "redeemx.use.event.{code}"
				})).Return(nil)
			},
		},
		{
			name: "異常系: 既存テンプレートは上書きしない",
			setupMock: func(m *MockTemplateRepository) {
				m.On("Exists", mock.Anything, "Event").Return(true, nil)
			},
			wantErr: redeem_template.ErrTemplateAlreadyExists,
		},
		{
			name: "異常系: 保存エラー",
			setupMock: func(m *MockTemplateRepository) {
				m.On("Exists", mock.Anything, "Event").Return(false, nil)
				m.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("db down"))
			},
			wantErr: sequencer.ErrNotPersisted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newService(t)
			tt.setupMock(repo)

			tmpl, err := svc.Generate(context.Background(), " Event ")
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				if errors.Is(tt.wantErr, redeem_template.ErrTemplateAlreadyExists) {
					repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
				} else {
					assert.ErrorContains(t, err, "failed to save template: db down")
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Event", tmpl.Name())
			repo.AssertExpectations(t)
		})
	}
}

func TestService_Update(t *testing.T) {
	t.Run("正常系: 変更を保存して同期中のコードへ反映", func(t *testing.T) {
		svc, repo, syncer := newService(t)
		tmpl := mustTemplate(t, "event")
		repo.On("FindByName", mock.Anything, "event").Return(tmpl, nil)
		repo.On("Upsert", mock.Anything, mock.MatchedBy(func(t *redeem_template.RedeemTemplate) bool {
			return t.Properties().PlayerLimit == 2
		})).Return(nil)
		syncer.On("SyncTemplate", mock.Anything, mock.MatchedBy(func(t *redeem_template.RedeemTemplate) bool {
			return t.Properties().Duration == duration.Duration("3d")
		})).Return(code_management.SyncReport{Updated: 4, Failed: 1}, nil)

		report, err := svc.Update(context.Background(), "event", redeem_property.SetDuration("3d"), redeem_property.SetPlayerLimit(2))
		require.NoError(t, err)
		assert.Equal(t, code_management.SyncReport{Updated: 4, Failed: 1}, report)

		got, err := svc.Get(context.Background(), "event")
		require.NoError(t, err)
		assert.Equal(t, 2, got.Properties().PlayerLimit)
		repo.AssertExpectations(t)
		syncer.AssertExpectations(t)
	})

	t.Run("異常系: 不正な期間は保存しない", func(t *testing.T) {
		svc, repo, syncer := newService(t)
		repo.On("FindByName", mock.Anything, "event").Return(mustTemplate(t, "event"), nil)

		_, err := svc.Update(context.Background(), "event", redeem_property.SetCooldown("10"))
		assert.ErrorIs(t, err, duration.ErrInvalidDuration)
		repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
		syncer.AssertNotCalled(t, "SyncTemplate", mock.Anything, mock.Anything)
	})

	t.Run("異常系: 不正な条件式", func(t *testing.T) {
		svc, repo, _ := newService(t)
		repo.On("FindByName", mock.Anything, "event").Return(mustTemplate(t, "event"), nil)

		_, err := svc.SetCondition(context.Background(), "event", "bad")
		assert.EqualError(t, err, "invalid condition")
		repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	})

	t.Run("異常系: テンプレートなし", func(t *testing.T) {
		svc, repo, _ := newService(t)
		repo.On("FindByName", mock.Anything, "none").Return(nil, redeem_template.ErrTemplateNotFound)

		_, err := svc.Update(context.Background(), "none", redeem_property.SetPin(1))
		assert.ErrorIs(t, err, redeem_template.ErrTemplateNotFound)
	})
}

func TestService_Toggles(t *testing.T) {
	t.Run("正常系: 同期フラグの無効化はコードへ反映しない", func(t *testing.T) {
		svc, repo, syncer := newService(t)
		tmpl := mustTemplate(t, "event")
		repo.On("FindByName", mock.Anything, "event").Return(tmpl, nil)
		repo.On("Upsert", mock.Anything, mock.Anything).Return(nil)

		enabled, _, err := svc.ToggleSyncProperty(context.Background(), "event", "Duration")
		require.NoError(t, err)
		assert.False(t, enabled)
		got, err := svc.Get(context.Background(), "event")
		require.NoError(t, err)
		assert.False(t, got.Syncs(redeem_template.SyncDuration))
		syncer.AssertNotCalled(t, "SyncTemplate", mock.Anything, mock.Anything)
	})

	t.Run("異常系: 不明な同期プロパティ", func(t *testing.T) {
		svc, _, _ := newService(t)
		_, _, err := svc.ToggleSyncProperty(context.Background(), "event", "colour")
		assert.ErrorIs(t, err, redeem_template.ErrUnknownSyncProperty)
	})

	t.Run("正常系: 権限要否の反転", func(t *testing.T) {
		svc, repo, syncer := newService(t)
		tmpl := mustTemplate(t, "event")
		repo.On("FindByName", mock.Anything, "event").Return(tmpl, nil)
		repo.On("Upsert", mock.Anything, mock.Anything).Return(nil)
		syncer.On("SyncTemplate", mock.Anything, mock.MatchedBy(func(t *redeem_template.RedeemTemplate) bool {
			return t.PermissionRequired()
		})).Return(code_management.SyncReport{Updated: 2}, nil)

		required, report, err := svc.ToggleRequiredPermission(context.Background(), "event")
		require.NoError(t, err)
		assert.True(t, required)
		assert.Equal(t, 2, report.Updated)
	})

	t.Run("正常系: 同期状態の反転", func(t *testing.T) {
		svc, repo, syncer := newService(t)
		tmpl := mustTemplate(t, "event")
		repo.On("FindByName", mock.Anything, "event").Return(tmpl, nil)
		repo.On("Upsert", mock.Anything, mock.Anything).Return(nil)
		syncer.On("SyncTemplate", mock.Anything, mock.Anything).Return(code_management.SyncReport{}, nil)

		locked, _, err := svc.ToggleLocked(context.Background(), "event")
		require.NoError(t, err)
		assert.False(t, locked)
	})
}

func TestService_SetDigit(t *testing.T) {
	svc, repo, syncer := newService(t)
	tmpl := mustTemplate(t, "event")
	repo.On("FindByName", mock.Anything, "event").Return(tmpl, nil)
	repo.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	assert.ErrorIs(t, svc.SetDigit(context.Background(), "event", 2), redemption_code.ErrInvalidDigit)
	require.NoError(t, svc.SetDigit(context.Background(), "event", 12))
	got, err := svc.Get(context.Background(), "event")
	require.NoError(t, err)
	assert.Equal(t, 12, got.Digit())
	syncer.AssertNotCalled(t, "SyncTemplate", mock.Anything, mock.Anything)
}

func TestService_Delete(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(*MockTemplateRepository)
		wantErr   error
	}{
		{
			name: "正常系: 削除",
			setupMock: func(m *MockTemplateRepository) {
				m.On("Exists", mock.Anything, "event").Return(true, nil)
				m.On("Delete", mock.Anything, "event").Return(nil)
			},
		},
		{
			name: "異常系: テンプレートなし",
			setupMock: func(m *MockTemplateRepository) {
				m.On("Exists", mock.Anything, "event").Return(false, nil)
			},
			wantErr: redeem_template.ErrTemplateNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, syncer := newService(t)
			tt.setupMock(repo)

			err := svc.Delete(context.Background(), "event")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			repo.AssertExpectations(t)
			syncer.AssertNotCalled(t, "SyncTemplate", mock.Anything, mock.Anything)
		})
	}
}

func TestService_Value(t *testing.T) {
	svc, repo, _ := newService(t)
	tmpl := mustTemplate(t, "event")
	tmpl.Mutate(func(p *redeem_property.Properties) { p.Redemption = 25 })
	repo.On("FindByName", mock.Anything, "event").Return(tmpl, nil)

	v, err := svc.Value(context.Background(), "event", "redemption")
	require.NoError(t, err)
	assert.Equal(t, "25", v)

	_, err = svc.Value(context.Background(), "event", "colour")
	assert.ErrorIs(t, err, redeem_template.ErrUnknownSyncProperty)
}

func TestService_CascadeRunsOutsideTemplateLock(t *testing.T) {
	svc, repo, syncer := newService(t)
	repo.On("FindByName", mock.Anything, "event").Return(mustTemplate(t, "event"), nil).Once()
	repo.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	syncer.On("SyncTemplate", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(code_management.SyncReport{Updated: 1}, nil).Once()

	cascade := make(chan error, 1)
	go func() {
		_, err := svc.Update(context.Background(), "event", redeem_property.SetDuration("7d"))
		cascade <- err
	}()
	<-entered

	// 同期の途中でも同じテンプレートへの別の変更は待たされない
	digit := make(chan error, 1)
	go func() { digit <- svc.SetDigit(context.Background(), "event", 9) }()
	select {
	case err := <-digit:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("template setter blocked by a running sync")
	}

	close(release)
	require.NoError(t, <-cascade)

	got, err := svc.Get(context.Background(), "event")
	require.NoError(t, err)
	assert.Equal(t, 9, got.Digit())
	assert.Equal(t, duration.Duration("7d"), got.Properties().Duration)
	repo.AssertNumberOfCalls(t, "FindByName", 1)
}

func TestService_ConsecutiveChangesKeepEarlierWrites(t *testing.T) {
	svc, repo, syncer := newService(t)
	repo.On("FindByName", mock.Anything, "event").Return(mustTemplate(t, "event"), nil).Once()
	repo.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	syncer.On("SyncTemplate", mock.Anything, mock.Anything).Return(code_management.SyncReport{}, nil)

	_, err := svc.Update(context.Background(), "event", redeem_property.SetPlayerLimit(3))
	require.NoError(t, err)
	require.NoError(t, svc.SetDigit(context.Background(), "event", 10))

	repo.AssertCalled(t, "Upsert", mock.Anything, mock.MatchedBy(func(t *redeem_template.RedeemTemplate) bool {
		return t.Digit() == 10 && t.Properties().PlayerLimit == 3
	}))
}

func TestService_FailedWriteDropsCachedTemplate(t *testing.T) {
	svc, repo, syncer := newService(t)
	stored := mustTemplate(t, "event")
	repo.On("FindByName", mock.Anything, "event").Return(stored, nil)
	repo.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

	_, err := svc.Update(context.Background(), "event", redeem_property.SetPlayerLimit(4))
	assert.ErrorIs(t, err, sequencer.ErrNotPersisted)
	syncer.AssertNotCalled(t, "SyncTemplate", mock.Anything, mock.Anything)

	got, err := svc.Get(context.Background(), "event")
	require.NoError(t, err)
	assert.Equal(t, stored.Properties().PlayerLimit, got.Properties().PlayerLimit)
	repo.AssertNumberOfCalls(t, "FindByName", 2)
}
