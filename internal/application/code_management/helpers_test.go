package code_management

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"redeem-server/internal/application/sequencer"
	"redeem-server/internal/domain/coupon"
	"redeem-server/internal/domain/redeem_template"
	"redeem-server/internal/domain/redemption_code"
	otelinfra "redeem-server/internal/infrastructure/observability/otel"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// memoryCodeRepository メモリ上のコードリポジトリ
type memoryCodeRepository struct {
	mu        sync.Mutex
	codes     map[string]*redemption_code.RedemptionCode
	failWrite error
	writes    int
}

func newMemoryCodeRepository(codes ...*redemption_code.RedemptionCode) *memoryCodeRepository {
	r := &memoryCodeRepository{codes: map[string]*redemption_code.RedemptionCode{}}
	for _, rc := range codes {
		r.codes[rc.Code()] = rc.Clone()
	}
	return r
}

func (r *memoryCodeRepository) get(code string) (*redemption_code.RedemptionCode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rc, ok := r.codes[code]
	if !ok {
		return nil, false
	}
	return rc.Clone(), true
}

func (r *memoryCodeRepository) FindByCode(ctx context.Context, code string) (*redemption_code.RedemptionCode, error) {
	if rc, ok := r.get(code); ok {
		return rc, nil
	}
	return nil, redemption_code.ErrCodeNotFound
}

func (r *memoryCodeRepository) FindByCodes(ctx context.Context, codes []string) ([]*redemption_code.RedemptionCode, error) {
	out := []*redemption_code.RedemptionCode{}
	for _, c := range codes {
		if rc, ok := r.get(c); ok {
			out = append(out, rc)
		}
	}
	return out, nil
}

func (r *memoryCodeRepository) FindAll(ctx context.Context, order redemption_code.SortOrder) ([]*redemption_code.RedemptionCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*redemption_code.RedemptionCode{}
	for _, rc := range r.codes {
		out = append(out, rc.Clone())
	}
	SortCodes(out, order)
	return out, nil
}

func (r *memoryCodeRepository) FindByTemplate(ctx context.Context, template string, lock redemption_code.LockStatus) ([]*redemption_code.RedemptionCode, error) {
	all, _ := r.FindAll(ctx, redemption_code.SortOrder{})
	out := []*redemption_code.RedemptionCode{}
	for _, rc := range all {
		if rc.Template() == template && lock.Matches(rc) {
			out = append(out, rc)
		}
	}
	return out, nil
}

func (r *memoryCodeRepository) ListCodes(ctx context.Context) ([]string, error) {
	all, _ := r.FindAll(ctx, redemption_code.SortOrder{})
	out := []string{}
	for _, rc := range all {
		out = append(out, rc.Code())
	}
	return out, nil
}

func (r *memoryCodeRepository) Exists(ctx context.Context, code string) (bool, error) {
	_, ok := r.get(code)
	return ok, nil
}

func (r *memoryCodeRepository) ExistingCodes(ctx context.Context, codes []string) ([]string, error) {
	out := []string{}
	for _, c := range codes {
		if _, ok := r.get(c); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memoryCodeRepository) write(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	if r.failWrite != nil {
		return r.failWrite
	}
	return fn()
}

func (r *memoryCodeRepository) Create(ctx context.Context, code *redemption_code.RedemptionCode) error {
	return r.CreateBatch(ctx, []*redemption_code.RedemptionCode{code})
}

func (r *memoryCodeRepository) CreateBatch(ctx context.Context, codes []*redemption_code.RedemptionCode) error {
	return r.write(func() error {
		for _, rc := range codes {
			if _, ok := r.codes[rc.Code()]; ok {
				return redemption_code.ErrCodeAlreadyExists
			}
		}
		for _, rc := range codes {
			r.codes[rc.Code()] = rc.Clone()
		}
		return nil
	})
}

func (r *memoryCodeRepository) Update(ctx context.Context, code *redemption_code.RedemptionCode) error {
	return r.write(func() error {
		if _, ok := r.codes[code.Code()]; !ok {
			return redemption_code.ErrCodeNotFound
		}
		r.codes[code.Code()] = code.Clone()
		return nil
	})
}

func (r *memoryCodeRepository) UpdateBatch(ctx context.Context, codes []*redemption_code.RedemptionCode) error {
	for _, rc := range codes {
		if err := r.Update(ctx, rc); err != nil {
			return err
		}
	}
	return nil
}

func (r *memoryCodeRepository) Delete(ctx context.Context, code string) error {
	return r.DeleteBatch(ctx, []string{code})
}

func (r *memoryCodeRepository) DeleteBatch(ctx context.Context, codes []string) error {
	return r.write(func() error {
		for _, c := range codes {
			delete(r.codes, c)
		}
		return nil
	})
}

func (r *memoryCodeRepository) DeleteByTemplate(ctx context.Context, template string) (int64, error) {
	var n int64
	err := r.write(func() error {
		for c, rc := range r.codes {
			if rc.Template() == template {
				delete(r.codes, c)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *memoryCodeRepository) DeleteAll(ctx context.Context) error {
	return r.write(func() error {
		r.codes = map[string]*redemption_code.RedemptionCode{}
		return nil
	})
}

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

// stubCouponRepository 削除のみ記録するクーポンリポジトリ
type stubCouponRepository struct {
	coupon.CouponRepository
	mu      sync.Mutex
	deleted []string
	all     bool
}

func (r *stubCouponRepository) DeleteByCodes(ctx context.Context, codes []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, codes...)
	return nil
}

func (r *stubCouponRepository) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = true
	return nil
}

// passthroughTxManager fnをそのまま実行する
type passthroughTxManager struct{}

func (passthroughTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// stubValidator 指定文字列を不正とする
type stubValidator struct{ invalid string }

func (v stubValidator) Validate(condition string) error {
	if condition == v.invalid {
		return errors.New("invalid condition")
	}
	return nil
}

type fixture struct {
	svc       *Service
	codes     *memoryCodeRepository
	templates *MockTemplateRepository
	coupons   *stubCouponRepository
}

func newFixture(t *testing.T, codes ...*redemption_code.RedemptionCode) *fixture {
	t.Helper()
	metrics, err := otelinfra.NewMetrics("code-management-test")
	require.NoError(t, err)

	dispatcher := sequencer.NewDispatcher(4, 64)
	t.Cleanup(dispatcher.Close)

	f := &fixture{
		codes:     newMemoryCodeRepository(codes...),
		templates: new(MockTemplateRepository),
		coupons:   &stubCouponRepository{},
	}
	f.svc = NewService(f.codes, f.templates, f.coupons, passthroughTxManager{}, dispatcher,
		stubValidator{invalid: "(("}, Options{ServerName: "lobby", MaxBulkAmount: 50, Clock: func() time.Time { return testNow }}, otelinfra.NewNopLogger(), metrics)
	return f
}

func newCode(t *testing.T, code string) *redemption_code.RedemptionCode {
	t.Helper()
	rc, err := redemption_code.NewRedemptionCode(code, testNow.Add(-time.Hour))
	require.NoError(t, err)
	return rc
}

func wait(t *testing.T, done <-chan sequencer.Result) sequencer.Result {
	t.Helper()
	select {
	case res := <-done:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for persistence")
		return sequencer.Result{}
	}
}

func mustUUIDs(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.New()
	}
	return out
}
