package template

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"redeem-server/internal/application/code_management"
	"redeem-server/internal/application/sequencer"
	"redeem-server/internal/domain/redeem_property"
	"redeem-server/internal/domain/redeem_template"
	"redeem-server/internal/domain/redemption_code"
	otelinfra "redeem-server/internal/infrastructure/observability/otel"
)

// CodeSynchronizer テンプレートの変更を同期中のコードへ反映する
type CodeSynchronizer interface {
	SyncTemplate(ctx context.Context, tmpl *redeem_template.RedeemTemplate) (code_management.SyncReport, error)
}

// ConditionValidator 条件式を検証する
type ConditionValidator interface {
	Validate(condition string) error
}

// Service テンプレートストアのアプリケーションサービス。
// 変更はテンプレート名の排他区間でキャッシュへ反映し、書き込みはDispatcherで行う。
// 排他区間は書き込みの完了もコードへの同期も待たない。
type Service struct {
	templates  redeem_template.RedeemTemplateRepository
	codes      CodeSynchronizer
	conditions ConditionValidator
	dispatcher *sequencer.Dispatcher
	locks      *code_management.LockTable
	// 書き込み済みまたは書き込み待ちの最新値
	cache   *xsync.MapOf[string, *redeem_template.RedeemTemplate]
	logger  *otelinfra.Logger
	metrics *otelinfra.Metrics
	tracer  trace.Tracer
}

// NewService 新しいServiceを作成
func NewService(
	templates redeem_template.RedeemTemplateRepository,
	codes CodeSynchronizer,
	conditions ConditionValidator,
	dispatcher *sequencer.Dispatcher,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
) *Service {
	return &Service{
		templates:  templates,
		codes:      codes,
		conditions: conditions,
		dispatcher: dispatcher,
		locks:      code_management.NewLockTable(),
		cache:      xsync.NewMapOf[string, *redeem_template.RedeemTemplate](),
		logger:     logger,
		metrics:    metrics,
		tracer:     otel.Tracer("template-service"),
	}
}

// Exists テンプレートが存在するかを返す
func (s *Service) Exists(ctx context.Context, name string) (bool, error) {
	return s.templates.Exists(ctx, strings.TrimSpace(name))
}

// Get テンプレートを取得
func (s *Service) Get(ctx context.Context, name string) (*redeem_template.RedeemTemplate, error) {
	ctx, span := s.tracer.Start(ctx, "TemplateService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("template", name))

	name = strings.TrimSpace(name)
	if cached, ok := s.cache.Load(name); ok {
		return cached.Clone(), nil
	}
	tmpl, err := s.templates.FindByName(ctx, name)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	return tmpl, nil
}

// ListNames テンプレート名を並べて取得
func (s *Service) ListNames(ctx context.Context, descending bool) ([]string, error) {
	return s.templates.ListNames(ctx, descending)
}

// List 全テンプレートを取得
func (s *Service) List(ctx context.Context) ([]*redeem_template.RedeemTemplate, error) {
	return s.templates.FindAll(ctx)
}

// Defaults 新規作成時の既定値を返す。保存はしない。
func (s *Service) Defaults(name string) (*redeem_template.RedeemTemplate, error) {
	return redeem_template.NewRedeemTemplate(name)
}

// Value 表示用にプロパティの値を返す
func (s *Service) Value(ctx context.Context, name, property string) (string, error) {
	tmpl, err := s.Get(ctx, name)
	if err != nil {
		return "", err
	}
	return tmpl.Value(property)
}

// Generate 既定値でテンプレートを作成。同名のテンプレートがある場合は上書きしない。
func (s *Service) Generate(ctx context.Context, name string) (*redeem_template.RedeemTemplate, error) {
	ctx, span := s.tracer.Start(ctx, "TemplateService.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("template", name))

	tmpl, err := redeem_template.NewRedeemTemplate(name)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	unlock := s.locks.Lock(tmpl.Name())
	exists, err := s.exists(ctx, tmpl.Name())
	if err != nil {
		unlock()
		recordError(span, err)
		return nil, fmt.Errorf("failed to check template: %w", err)
	}
	if exists {
		unlock()
		err := fmt.Errorf("%w: %s", redeem_template.ErrTemplateAlreadyExists, tmpl.Name())
		recordError(span, err)
		return nil, err
	}
	done := s.save(ctx, tmpl.Clone())
	unlock()

	if err := s.wait(ctx, done); err != nil {
		recordError(span, err)
		return nil, err
	}

	s.logger.Info(ctx, "Template generated", map[string]interface{}{
		"template": tmpl.Name(),
	})
	return tmpl, nil
}

// Upsert テンプレートを挿入または置換し、同期中のコードへ反映する
func (s *Service) Upsert(ctx context.Context, tmpl *redeem_template.RedeemTemplate) (code_management.SyncReport, error) {
	ctx, span := s.tracer.Start(ctx, "TemplateService.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("template", tmpl.Name()))

	if err := s.validate(tmpl); err != nil {
		recordError(span, err)
		return code_management.SyncReport{}, err
	}

	snapshot := tmpl.Clone()
	unlock := s.locks.Lock(snapshot.Name())
	done := s.save(ctx, snapshot)
	unlock()

	if err := s.wait(ctx, done); err != nil {
		recordError(span, err)
		return code_management.SyncReport{}, err
	}
	return s.codes.SyncTemplate(ctx, snapshot)
}

// Delete テンプレートを削除。参照しているコードは削除しない。
func (s *Service) Delete(ctx context.Context, name string) error {
	ctx, span := s.tracer.Start(ctx, "TemplateService.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("template", name))

	name = strings.TrimSpace(name)
	unlock := s.locks.Lock(name)
	exists, err := s.exists(ctx, name)
	if err != nil {
		unlock()
		recordError(span, err)
		return fmt.Errorf("failed to check template: %w", err)
	}
	if !exists {
		unlock()
		recordError(span, redeem_template.ErrTemplateNotFound)
		return redeem_template.ErrTemplateNotFound
	}
	s.cache.Delete(name)
	// 同じキーで投入し、書き込み待ちの保存より後に削除する
	done := s.dispatcher.Submit(ctx, persistKey(name), func(ctx context.Context) error {
		if err := s.templates.Delete(ctx, name); err != nil {
			return fmt.Errorf("failed to delete template: %w", err)
		}
		return nil
	})
	unlock()

	if res := sequencer.Wait(ctx, done); !res.Success {
		err := notPersisted(res)
		recordError(span, err)
		return err
	}

	s.logger.Info(ctx, "Template deleted", map[string]interface{}{
		"template": name,
	})
	return nil
}

// DeleteAll 全テンプレートを削除
func (s *Service) DeleteAll(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "TemplateService.DeleteAll")
	defer span.End()

	if err := s.templates.DeleteAll(ctx); err != nil {
		recordError(span, err)
		return fmt.Errorf("failed to delete templates: %w", err)
	}
	s.cache.Clear()
	s.logger.Info(ctx, "All templates deleted", nil)
	return nil
}

// Update テンプレートのプロパティを変更し、同期中のコードへ反映する
func (s *Service) Update(ctx context.Context, name string, mutations ...redeem_property.Mutation) (code_management.SyncReport, error) {
	return s.modify(ctx, "TemplateService.Update", name, func(tmpl *redeem_template.RedeemTemplate) (bool, error) {
		if err := redeem_property.Apply(tmpl, mutations...); err != nil {
			return false, err
		}
		return true, s.validate(tmpl)
	})
}

// SetCondition 条件式を検証して設定
func (s *Service) SetCondition(ctx context.Context, name, condition string) (code_management.SyncReport, error) {
	return s.Update(ctx, name, redeem_property.SetCondition(condition))
}

// SetDigit 生成コードの既定桁数を設定。コードへの同期はない。
func (s *Service) SetDigit(ctx context.Context, name string, digit int) error {
	if digit < redemption_code.MinDigit || digit > redemption_code.MaxDigit {
		return fmt.Errorf("%w: %d", redemption_code.ErrInvalidDigit, digit)
	}
	_, err := s.modify(ctx, "TemplateService.SetDigit", name, func(tmpl *redeem_template.RedeemTemplate) (bool, error) {
		tmpl.SetDigit(digit)
		return false, nil
	})
	return err
}

// ToggleLocked 生成コードの同期状態を反転
func (s *Service) ToggleLocked(ctx context.Context, name string) (bool, code_management.SyncReport, error) {
	var locked bool
	report, err := s.modify(ctx, "TemplateService.ToggleLocked", name, func(tmpl *redeem_template.RedeemTemplate) (bool, error) {
		locked = !tmpl.Locked()
		tmpl.SetLocked(locked)
		return true, nil
	})
	return locked, report, err
}

// ToggleSyncProperty プロパティ単位の同期フラグを反転
func (s *Service) ToggleSyncProperty(ctx context.Context, name, property string) (bool, code_management.SyncReport, error) {
	p, err := redeem_template.NewSyncProperty(property)
	if err != nil {
		return false, code_management.SyncReport{}, err
	}
	var enabled bool
	report, err := s.modify(ctx, "TemplateService.ToggleSyncProperty", name, func(tmpl *redeem_template.RedeemTemplate) (bool, error) {
		toggled, err := tmpl.ToggleSync(p)
		enabled = toggled
		return toggled, err
	})
	return enabled, report, err
}

// ToggleRequiredPermission 権限要否を反転
func (s *Service) ToggleRequiredPermission(ctx context.Context, name string) (bool, code_management.SyncReport, error) {
	var required bool
	report, err := s.modify(ctx, "TemplateService.ToggleRequiredPermission", name, func(tmpl *redeem_template.RedeemTemplate) (bool, error) {
		required = tmpl.ToggleRequiredPermission()
		return true, nil
	})
	return required, report, err
}

// Sync 現在のテンプレートを同期中のコードへ反映する
func (s *Service) Sync(ctx context.Context, name string) (code_management.SyncReport, error) {
	tmpl, err := s.Get(ctx, name)
	if err != nil {
		return code_management.SyncReport{}, err
	}
	return s.codes.SyncTemplate(ctx, tmpl)
}

// modify テンプレートの排他区間でfnを実行して書き込みを投入する。
// fnがtrueを返した場合は区間を抜けてから、変更後の複製をコードへ反映する。
func (s *Service) modify(ctx context.Context, spanName, name string, fn func(tmpl *redeem_template.RedeemTemplate) (bool, error)) (code_management.SyncReport, error) {
	ctx, span := s.tracer.Start(ctx, spanName)
	defer span.End()

	name = strings.TrimSpace(name)
	span.SetAttributes(attribute.String("template", name))

	unlock := s.locks.Lock(name)
	tmpl, err := s.load(ctx, name)
	if err != nil {
		unlock()
		recordError(span, err)
		return code_management.SyncReport{}, err
	}
	cascade, err := fn(tmpl)
	if err != nil {
		unlock()
		recordError(span, err)
		return code_management.SyncReport{}, err
	}
	snapshot := tmpl.Clone()
	done := s.save(ctx, snapshot)
	unlock()

	if err := s.wait(ctx, done); err != nil {
		recordError(span, err)
		return code_management.SyncReport{}, err
	}
	if !cascade {
		return code_management.SyncReport{}, nil
	}

	report, err := s.codes.SyncTemplate(ctx, snapshot)
	if err != nil {
		recordError(span, err)
		return report, err
	}
	span.SetAttributes(attribute.Int("updated", report.Updated), attribute.Int("failed", report.Failed))
	return report, nil
}

// load 変更用の複製を返す。排他区間内で呼ぶ。
func (s *Service) load(ctx context.Context, name string) (*redeem_template.RedeemTemplate, error) {
	if cached, ok := s.cache.Load(name); ok {
		return cached.Clone(), nil
	}
	tmpl, err := s.templates.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return tmpl.Clone(), nil
}

// exists キャッシュ、リポジトリの順に存在を確認する。排他区間内で呼ぶ。
func (s *Service) exists(ctx context.Context, name string) (bool, error) {
	if _, ok := s.cache.Load(name); ok {
		return true, nil
	}
	return s.templates.Exists(ctx, name)
}

// save キャッシュを更新して書き込みを投入する。排他区間内で呼び、完了は区間の外で待つ。
// 書き込みに失敗した場合、キャッシュがまだこの値ならば取り除く。
func (s *Service) save(ctx context.Context, tmpl *redeem_template.RedeemTemplate) <-chan sequencer.Result {
	s.cache.Store(tmpl.Name(), tmpl)
	return s.dispatcher.Submit(ctx, persistKey(tmpl.Name()), func(ctx context.Context) error {
		if err := s.templates.Upsert(ctx, tmpl); err != nil {
			s.cache.Compute(tmpl.Name(), func(current *redeem_template.RedeemTemplate, loaded bool) (*redeem_template.RedeemTemplate, bool) {
				return current, !loaded || current == tmpl
			})
			s.logger.Error(ctx, "Failed to persist template", err, map[string]interface{}{
				"template": tmpl.Name(),
			})
			return fmt.Errorf("failed to save template: %w", err)
		}
		return nil
	})
}

func (s *Service) wait(ctx context.Context, done <-chan sequencer.Result) error {
	if res := sequencer.Wait(ctx, done); !res.Success {
		return notPersisted(res)
	}
	return nil
}

func notPersisted(res sequencer.Result) error {
	if res.Err == nil {
		return sequencer.ErrNotPersisted
	}
	return errors.Join(sequencer.ErrNotPersisted, res.Err)
}

func persistKey(name string) string {
	return "template:" + name
}

func (s *Service) validate(tmpl *redeem_template.RedeemTemplate) error {
	props := tmpl.Properties()
	if err := props.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(props.Condition) == "" || s.conditions == nil {
		return nil
	}
	return s.conditions.Validate(props.Condition)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
}
