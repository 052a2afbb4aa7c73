package code_management

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"redeem-server/internal/application/sequencer"
	"redeem-server/internal/domain/coupon"
	"redeem-server/internal/domain/redeem_template"
	"redeem-server/internal/domain/redemption_code"
	"redeem-server/internal/domain/transaction"
	otelinfra "redeem-server/internal/infrastructure/observability/otel"
)

// ConditionValidator 条件式を検証する
type ConditionValidator interface {
	Validate(condition string) error
}

// Options コードストアの設定
type Options struct {
	ServerName        string
	DefaultDigit      int
	MaxBulkAmount     int
	GeneratorAttempts int
	Clock             func() time.Time // nilの場合はtime.Now
}

// Service コードストアのアプリケーションサービス。
// 変更はコードごとの排他区間でキャッシュへ即時に反映し、永続化はDispatcherで非同期に行う。
type Service struct {
	codes      redemption_code.RedemptionCodeRepository
	templates  redeem_template.RedeemTemplateRepository
	coupons    coupon.CouponRepository
	txManager  transaction.TransactionManager
	dispatcher *sequencer.Dispatcher
	conditions ConditionValidator
	locks      *LockTable
	cache      *Cache
	generator  *redemption_code.Generator
	fetches    singleflight.Group
	opts       Options
	logger     *otelinfra.Logger
	metrics    *otelinfra.Metrics
	tracer     trace.Tracer
	now        func() time.Time
}

// NewService 新しいServiceを作成
func NewService(
	codes redemption_code.RedemptionCodeRepository,
	templates redeem_template.RedeemTemplateRepository,
	coupons coupon.CouponRepository,
	txManager transaction.TransactionManager,
	dispatcher *sequencer.Dispatcher,
	conditions ConditionValidator,
	opts Options,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
) *Service {
	if opts.ServerName == "" {
		opts.ServerName = redemption_code.DefaultServer
	}
	if opts.DefaultDigit <= 0 {
		opts.DefaultDigit = redeem_template.DefaultDigit
	}
	if opts.MaxBulkAmount <= 0 {
		opts.MaxBulkAmount = 1000
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{
		codes:      codes,
		templates:  templates,
		coupons:    coupons,
		txManager:  txManager,
		dispatcher: dispatcher,
		conditions: conditions,
		locks:      NewLockTable(),
		cache:      NewCache(),
		generator:  redemption_code.NewGenerator(opts.GeneratorAttempts),
		opts:       opts,
		logger:     logger,
		metrics:    metrics,
		tracer:     otel.Tracer("code-management-service"),
		now:        opts.Clock,
	}
}

// Now 現在時刻を返す
func (s *Service) Now() time.Time {
	return s.now()
}

// Refresh 永続化層から全コードを読み込み、キャッシュを再構築する。
// 同時に呼ばれた場合は一度だけ読み込む。
func (s *Service) Refresh(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "CodeManagementService.Refresh")
	defer span.End()

	_, err, _ := s.fetches.Do("all", func() (interface{}, error) {
		all, err := s.codes.FindAll(ctx, redemption_code.SortOrder{Field: redemption_code.SortByCode})
		if err != nil {
			return nil, err
		}
		s.cache.Replace(all)
		return nil, nil
	})
	if err != nil {
		recordError(span, err)
		s.logger.Error(ctx, "Failed to refresh code cache", err, nil)
		return fmt.Errorf("failed to refresh code cache: %w", err)
	}

	n := s.cache.Len()
	span.SetAttributes(attribute.Int("cached_codes", n))
	s.metrics.RecordCachedCodes(ctx, n)
	s.logger.Debug(ctx, "Code cache refreshed", map[string]interface{}{"count": n})
	return nil
}

// Index キャッシュの索引（全コード、PIN、対象プレイヤー）を返す
func (s *Service) Index() redemption_code.Index {
	return s.cache.Index()
}

// Find コードを取得
func (s *Service) Find(ctx context.Context, code string) (*redemption_code.RedemptionCode, error) {
	code = redemption_code.NormalizeCode(code)
	if code == "" {
		return nil, redemption_code.ErrInvalidCode
	}
	if err := s.prime(ctx, code); err != nil {
		return nil, err
	}
	rc, ok := s.cache.Get(code)
	if !ok {
		return nil, redemption_code.ErrCodeNotFound
	}
	return rc, nil
}

// Lookup コードを取得。見つからない場合は近いコードの候補を返す。
func (s *Service) Lookup(ctx context.Context, code string, limit int) (*redemption_code.RedemptionCode, []string, error) {
	rc, err := s.Find(ctx, code)
	if errors.Is(err, redemption_code.ErrCodeNotFound) {
		return nil, s.Suggest(code, limit), err
	}
	return rc, nil, err
}

// Suggest キャッシュ済みのコードから曖昧一致の候補を返す
func (s *Service) Suggest(partial string, limit int) []string {
	partial = redemption_code.NormalizeCode(partial)
	if partial == "" {
		return []string{}
	}
	if limit <= 0 {
		limit = 5
	}
	matches := fuzzy.Find(partial, s.cache.Codes())
	out := make([]string, 0, limit)
	for _, m := range matches {
		if len(out) == limit {
			break
		}
		out = append(out, m.Str)
	}
	return out
}

// Exists コードが存在するかを返す
func (s *Service) Exists(ctx context.Context, code string) (bool, error) {
	code = redemption_code.NormalizeCode(code)
	if s.cache.Has(code) {
		return true, nil
	}
	return s.codes.Exists(ctx, code)
}

// WithCode コードの排他区間でfnを実行する。
// 変更はキャッシュへ同期的に反映され、永続化の完了はチャネルで通知される。
func (s *Service) WithCode(ctx context.Context, code string, fn func(rc *redemption_code.RedemptionCode) (Change, error)) (<-chan sequencer.Result, error) {
	code = redemption_code.NormalizeCode(code)
	if err := s.prime(ctx, code); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(code)
	defer unlock()

	rc, ok := s.cache.Get(code)
	if !ok {
		return nil, redemption_code.ErrCodeNotFound
	}

	change, err := fn(rc)
	if err != nil {
		return nil, err
	}
	if !change.Persist {
		return sequencer.Completed(nil), nil
	}
	if change.Touch {
		rc.Touch(s.now())
	}
	s.cache.Put(rc)

	snapshot := rc.Clone()
	return s.persist(ctx, []string{code}, func(ctx context.Context) error {
		if err := s.codes.Update(ctx, snapshot); err != nil {
			return err
		}
		if change.Also != nil {
			return change.Also(ctx)
		}
		return nil
	}), nil
}

// prime キャッシュにないコードを永続化層から読み込む。排他区間の外で呼ぶ。
func (s *Service) prime(ctx context.Context, code string) error {
	if s.cache.Has(code) {
		return nil
	}
	v, err, _ := s.fetches.Do("code:"+code, func() (interface{}, error) {
		return s.codes.FindByCode(ctx, code)
	})
	if err != nil {
		if errors.Is(err, redemption_code.ErrCodeNotFound) {
			return err
		}
		return fmt.Errorf("failed to find code: %w", err)
	}
	s.cache.Store(v.(*redemption_code.RedemptionCode))
	return nil
}

// persist 書き込みをトランザクション内で非同期に実行する。
// 失敗した場合はキャッシュを永続化層の状態に戻す。
func (s *Service) persist(ctx context.Context, codes []string, job sequencer.Job) <-chan sequencer.Result {
	key := ""
	if len(codes) > 0 {
		key = codes[0]
	}
	return s.dispatcher.Submit(ctx, key, func(ctx context.Context) error {
		err := s.txManager.WithTransaction(ctx, job)
		s.cache.Settle(codes...)
		if err != nil {
			s.logger.Error(ctx, "Failed to persist codes", err, map[string]interface{}{
				"codes": codes,
			})
			s.metrics.RecordError(ctx, "code_persist_failed")
			s.reconcile(ctx, codes)
		}
		return err
	})
}

// persistEach コードを担当ワーカーごとにまとめて書き込む
func (s *Service) persistEach(ctx context.Context, codes []string, job func(ctx context.Context, group []string) error) <-chan sequencer.Result {
	if len(codes) == 0 {
		return sequencer.Completed(nil)
	}
	groups := s.dispatcher.Partition(codes)
	chs := make([]<-chan sequencer.Result, 0, len(groups))
	for _, group := range groups {
		group := group
		chs = append(chs, s.persist(ctx, group, func(ctx context.Context) error {
			return job(ctx, group)
		}))
	}
	return sequencer.Join(chs...)
}

func (s *Service) reconcile(ctx context.Context, codes []string) {
	found, err := s.codes.FindByCodes(ctx, codes)
	if err != nil {
		s.logger.Warn(ctx, "Failed to reconcile code cache", map[string]interface{}{
			"codes": codes,
			"error": err.Error(),
		})
		for _, code := range codes {
			s.cache.Evict(code)
		}
		return
	}
	present := make(map[string]struct{}, len(found))
	for _, rc := range found {
		present[rc.Code()] = struct{}{}
		s.cache.Store(rc)
	}
	for _, code := range codes {
		if _, ok := present[code]; !ok {
			s.cache.Evict(code)
		}
	}
}

func normalizeCodes(codes []string) ([]string, error) {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = redemption_code.NormalizeCode(c)
		if c == "" || strings.ContainsAny(c, " \t\n") {
			return nil, fmt.Errorf("%w: %q", redemption_code.ErrInvalidCode, c)
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
}
