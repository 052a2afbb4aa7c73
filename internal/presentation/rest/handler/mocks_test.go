package handler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"redeem-server/internal/application/code_management"
	redemptionapp "redeem-server/internal/application/code_redemption"
	walletapp "redeem-server/internal/application/coupon_wallet"
	historyapp "redeem-server/internal/application/history"
	"redeem-server/internal/application/sequencer"
	"redeem-server/internal/domain/coupon"
	"redeem-server/internal/domain/player"
	"redeem-server/internal/domain/redeem_property"
	"redeem-server/internal/domain/redeem_template"
	"redeem-server/internal/domain/redemption_code"
	"redeem-server/internal/domain/service"
)

func done(args mock.Arguments, i int) <-chan sequencer.Result {
	if args.Get(i) == nil {
		return nil
	}
	return args.Get(i).(<-chan sequencer.Result)
}

// MockCodeService モックコード管理サービス
type MockCodeService struct {
	mock.Mock
	now time.Time
}

func (m *MockCodeService) List(ctx context.Context, q code_management.ListQuery) (*code_management.ListResult, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*code_management.ListResult), args.Error(1)
}

func (m *MockCodeService) Lookup(ctx context.Context, code string, limit int) (*redemption_code.RedemptionCode, []string, error) {
	args := m.Called(ctx, code, limit)
	var rc *redemption_code.RedemptionCode
	if args.Get(0) != nil {
		rc = args.Get(0).(*redemption_code.RedemptionCode)
	}
	var suggestions []string
	if args.Get(1) != nil {
		suggestions = args.Get(1).([]string)
	}
	return rc, suggestions, args.Error(2)
}

func (m *MockCodeService) Create(ctx context.Context, req *code_management.CreateRequest) (*code_management.CreateResponse, <-chan sequencer.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, done(args, 1), args.Error(2)
	}
	return args.Get(0).(*code_management.CreateResponse), done(args, 1), args.Error(2)
}

func (m *MockCodeService) Update(ctx context.Context, code string, mutations ...redeem_property.Mutation) (<-chan sequencer.Result, error) {
	args := m.Called(ctx, code, mutations)
	return done(args, 0), args.Error(1)
}

func (m *MockCodeService) SetCondition(ctx context.Context, code, condition string) (<-chan sequencer.Result, error) {
	args := m.Called(ctx, code, condition)
	return done(args, 0), args.Error(1)
}

func (m *MockCodeService) SetTemplate(ctx context.Context, code, template string) (<-chan sequencer.Result, error) {
	args := m.Called(ctx, code, template)
	return done(args, 0), args.Error(1)
}

func (m *MockCodeService) SetTemplatePermission(ctx context.Context, code string) (<-chan sequencer.Result, error) {
	args := m.Called(ctx, code)
	return done(args, 0), args.Error(1)
}

func (m *MockCodeService) ToggleSync(ctx context.Context, code string) (<-chan sequencer.Result, error) {
	args := m.Called(ctx, code)
	return done(args, 0), args.Error(1)
}

func (m *MockCodeService) SetTargets(ctx context.Context, code string, players []uuid.UUID) (<-chan sequencer.Result, error) {
	args := m.Called(ctx, code, players)
	return done(args, 0), args.Error(1)
}

func (m *MockCodeService) AddTargets(ctx context.Context, code string, players []uuid.UUID) (<-chan sequencer.Result, error) {
	args := m.Called(ctx, code, players)
	return done(args, 0), args.Error(1)
}

func (m *MockCodeService) RemoveTargets(ctx context.Context, code string, players []uuid.UUID) (<-chan sequencer.Result, error) {
	args := m.Called(ctx, code, players)
	return done(args, 0), args.Error(1)
}

func (m *MockCodeService) ResetValidFrom(ctx context.Context, code string) (<-chan sequencer.Result, error) {
	args := m.Called(ctx, code)
	return done(args, 0), args.Error(1)
}

func (m *MockCodeService) Delete(ctx context.Context, code string) (<-chan sequencer.Result, error) {
	args := m.Called(ctx, code)
	return done(args, 0), args.Error(1)
}

func (m *MockCodeService) DeleteBatch(ctx context.Context, codes []string) (int, <-chan sequencer.Result, error) {
	args := m.Called(ctx, codes)
	return args.Int(0), done(args, 1), args.Error(2)
}

func (m *MockCodeService) DeleteByTemplate(ctx context.Context, template string) (int, <-chan sequencer.Result, error) {
	args := m.Called(ctx, template)
	return args.Int(0), done(args, 1), args.Error(2)
}

func (m *MockCodeService) PurgeExpired(ctx context.Context, template string) (int, error) {
	args := m.Called(ctx, template)
	return args.Int(0), args.Error(1)
}

func (m *MockCodeService) Now() time.Time {
	if m.now.IsZero() {
		return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return m.now
}

// MockTemplateService モックテンプレートサービス
type MockTemplateService struct {
	mock.Mock
}

func (m *MockTemplateService) Get(ctx context.Context, name string) (*redeem_template.RedeemTemplate, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*redeem_template.RedeemTemplate), args.Error(1)
}

func (m *MockTemplateService) List(ctx context.Context) ([]*redeem_template.RedeemTemplate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*redeem_template.RedeemTemplate), args.Error(1)
}

func (m *MockTemplateService) Value(ctx context.Context, name, property string) (string, error) {
	args := m.Called(ctx, name, property)
	return args.String(0), args.Error(1)
}

func (m *MockTemplateService) Generate(ctx context.Context, name string) (*redeem_template.RedeemTemplate, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*redeem_template.RedeemTemplate), args.Error(1)
}

func (m *MockTemplateService) Update(ctx context.Context, name string, mutations ...redeem_property.Mutation) (code_management.SyncReport, error) {
	args := m.Called(ctx, name, mutations)
	return args.Get(0).(code_management.SyncReport), args.Error(1)
}

func (m *MockTemplateService) SetCondition(ctx context.Context, name, condition string) (code_management.SyncReport, error) {
	args := m.Called(ctx, name, condition)
	return args.Get(0).(code_management.SyncReport), args.Error(1)
}

func (m *MockTemplateService) SetDigit(ctx context.Context, name string, digit int) error {
	args := m.Called(ctx, name, digit)
	return args.Error(0)
}

func (m *MockTemplateService) ToggleLocked(ctx context.Context, name string) (bool, code_management.SyncReport, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Get(1).(code_management.SyncReport), args.Error(2)
}

func (m *MockTemplateService) ToggleSyncProperty(ctx context.Context, name, property string) (bool, code_management.SyncReport, error) {
	args := m.Called(ctx, name, property)
	return args.Bool(0), args.Get(1).(code_management.SyncReport), args.Error(2)
}

func (m *MockTemplateService) ToggleRequiredPermission(ctx context.Context, name string) (bool, code_management.SyncReport, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Get(1).(code_management.SyncReport), args.Error(2)
}

func (m *MockTemplateService) Sync(ctx context.Context, name string) (code_management.SyncReport, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(code_management.SyncReport), args.Error(1)
}

func (m *MockTemplateService) Delete(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockTemplateService) DeleteAll(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockRedemptionService モック引き換えサービス
type MockRedemptionService struct {
	mock.Mock
}

func (m *MockRedemptionService) Redeem(ctx context.Context, req *redemptionapp.RedeemCodeRequest) (*redemptionapp.RedeemCodeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*redemptionapp.RedeemCodeResponse), args.Error(1)
}

func (m *MockRedemptionService) Check(ctx context.Context, req *redemptionapp.RedeemCodeRequest) (service.Reason, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(service.Reason), args.Error(1)
}

// MockHistoryService モック履歴サービス
type MockHistoryService struct {
	mock.Mock
}

func (m *MockHistoryService) GetRedeemHistory(ctx context.Context, req *historyapp.GetRedeemHistoryRequest) (*historyapp.GetRedeemHistoryResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*historyapp.GetRedeemHistoryResponse), args.Error(1)
}

func (m *MockHistoryService) DeleteRedeemHistory(ctx context.Context, req *historyapp.DeleteRedeemHistoryRequest) (int64, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(int64), args.Error(1)
}

// MockWalletService モッククーポンウォレットサービス
type MockWalletService struct {
	mock.Mock
}

func (m *MockWalletService) Give(ctx context.Context, id uuid.UUID, code string) (*coupon.Coupon, error) {
	args := m.Called(ctx, id, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coupon.Coupon), args.Error(1)
}

func (m *MockWalletService) GiveRandom(ctx context.Context, req *walletapp.GiveRandomRequest) ([]string, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockWalletService) GiveToAll(ctx context.Context, req *walletapp.GiveToAllRequest) (*walletapp.GiveResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*walletapp.GiveResult), args.Error(1)
}

func (m *MockWalletService) GiveRandomToAll(ctx context.Context, req *walletapp.GiveRandomToAllRequest) (*walletapp.GiveResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*walletapp.GiveResult), args.Error(1)
}

func (m *MockWalletService) Gift(ctx context.Context, sender, recipient uuid.UUID, code string) error {
	args := m.Called(ctx, sender, recipient, code)
	return args.Error(0)
}

func (m *MockWalletService) Take(ctx context.Context, id uuid.UUID, code string) error {
	args := m.Called(ctx, id, code)
	return args.Error(0)
}

func (m *MockWalletService) TakeAllByTemplate(ctx context.Context, id uuid.UUID, template string) (int64, error) {
	args := m.Called(ctx, id, template)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockWalletService) TakeFromAll(ctx context.Context, code string, onlineOnly bool) error {
	args := m.Called(ctx, code, onlineOnly)
	return args.Error(0)
}

func (m *MockWalletService) TakeAllByTemplateFromAll(ctx context.Context, template string, onlineOnly bool) (int64, error) {
	args := m.Called(ctx, template, onlineOnly)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockWalletService) List(ctx context.Context, id uuid.UUID) ([]*coupon.Coupon, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*coupon.Coupon), args.Error(1)
}

func (m *MockWalletService) ListByTemplate(ctx context.Context, id uuid.UUID, template string) ([]*coupon.Coupon, error) {
	args := m.Called(ctx, id, template)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*coupon.Coupon), args.Error(1)
}

func (m *MockWalletService) SetOnline(ctx context.Context, id uuid.UUID, name string, online bool) error {
	args := m.Called(ctx, id, name, online)
	return args.Error(0)
}

func (m *MockWalletService) NotifyPlayer(ctx context.Context, id uuid.UUID) ([]player.Notification, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]player.Notification), args.Error(1)
}
