package code_management

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"redeem-server/internal/application/sequencer"
	"redeem-server/internal/domain/redeem_property"
	"redeem-server/internal/domain/redeem_template"
	"redeem-server/internal/domain/redemption_code"
)

// Update コードのプロパティを変更
func (s *Service) Update(ctx context.Context, code string, mutations ...redeem_property.Mutation) (<-chan sequencer.Result, error) {
	ctx, span := s.tracer.Start(ctx, "CodeManagementService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("code", code))

	done, err := s.WithCode(ctx, code, func(rc *redemption_code.RedemptionCode) (Change, error) {
		if err := redeem_property.Apply(rc, mutations...); err != nil {
			return Change{}, err
		}
		return Change{Persist: true, Touch: true}, nil
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	s.metrics.RecordCodeMutation(ctx, "update", 1)
	return done, nil
}

// UpdateMany 複数コードのプロパティを変更。失敗したコードで中断し、それまでの変更は残る。
func (s *Service) UpdateMany(ctx context.Context, codes []string, mutations ...redeem_property.Mutation) (<-chan sequencer.Result, error) {
	normalized, err := normalizeCodes(codes)
	if err != nil {
		return nil, err
	}
	chs := make([]<-chan sequencer.Result, 0, len(normalized))
	for _, code := range normalized {
		done, err := s.Update(ctx, code, mutations...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", code, err)
		}
		chs = append(chs, done)
	}
	return sequencer.Join(chs...), nil
}

// SetCondition 条件式を検証して設定
func (s *Service) SetCondition(ctx context.Context, code, condition string) (<-chan sequencer.Result, error) {
	if err := s.ValidateCondition(condition); err != nil {
		return nil, err
	}
	return s.Update(ctx, code, redeem_property.SetCondition(condition))
}

// ValidateCondition 条件式を検証。空文字は解除として有効。
func (s *Service) ValidateCondition(condition string) error {
	if strings.TrimSpace(condition) == "" || s.conditions == nil {
		return nil
	}
	return s.conditions.Validate(condition)
}

// ToggleSync テンプレートとの同期フラグを反転
func (s *Service) ToggleSync(ctx context.Context, code string) (<-chan sequencer.Result, error) {
	return s.WithCode(ctx, code, func(rc *redemption_code.RedemptionCode) (Change, error) {
		rc.SetSync(!rc.Sync())
		return Change{Persist: true, Touch: true}, nil
	})
}

// SetTemplate テンプレートを付け替え、同期フラグに従ってテンプレートの値を適用する。
// 空文字はテンプレートの解除。
func (s *Service) SetTemplate(ctx context.Context, code, template string) (<-chan sequencer.Result, error) {
	template = strings.TrimSpace(template)
	var tmpl *redeem_template.RedeemTemplate
	if template != "" {
		t, err := s.templates.FindByName(ctx, template)
		if err != nil {
			return nil, err
		}
		tmpl = t
	}

	return s.WithCode(ctx, code, func(rc *redemption_code.RedemptionCode) (Change, error) {
		if tmpl == nil {
			rc.SetTemplate("")
			rc.SetSync(false)
			return Change{Persist: true, Touch: true}, nil
		}
		rc.SetTemplate(tmpl.Name())
		rc.SetSync(tmpl.Locked())
		redemption_code.ApplyTemplate(rc, tmpl)
		return Change{Persist: true, Touch: true}, nil
	})
}

// SetTemplatePermission テンプレートの権限パターンからコードの権限を設定
func (s *Service) SetTemplatePermission(ctx context.Context, code string) (<-chan sequencer.Result, error) {
	current, err := s.Find(ctx, code)
	if err != nil {
		return nil, err
	}
	if current.Template() == "" {
		return nil, fmt.Errorf("%w: code %s has no template", redeem_template.ErrTemplateNotFound, current.Code())
	}
	tmpl, err := s.templates.FindByName(ctx, current.Template())
	if err != nil {
		return nil, err
	}

	return s.WithCode(ctx, code, func(rc *redemption_code.RedemptionCode) (Change, error) {
		if rc.Template() != tmpl.Name() {
			return Change{}, fmt.Errorf("template of %s changed concurrently", rc.Code())
		}
		permission := tmpl.ResolvePermission(rc.Code())
		if err := redeem_property.Apply(rc, redeem_property.SetPermission(permission)); err != nil {
			return Change{}, err
		}
		return Change{Persist: true, Touch: true}, nil
	})
}

// SetTargets 対象プレイヤーを置き換える。空の場合は制限なし。
func (s *Service) SetTargets(ctx context.Context, code string, players []uuid.UUID) (<-chan sequencer.Result, error) {
	return s.WithCode(ctx, code, func(rc *redemption_code.RedemptionCode) (Change, error) {
		rc.SetTargets(players)
		return Change{Persist: true, Touch: true}, nil
	})
}

// AddTargets 対象プレイヤーを追加
func (s *Service) AddTargets(ctx context.Context, code string, players []uuid.UUID) (<-chan sequencer.Result, error) {
	return s.WithCode(ctx, code, func(rc *redemption_code.RedemptionCode) (Change, error) {
		rc.AddTargets(players)
		return Change{Persist: true, Touch: true}, nil
	})
}

// RemoveTargets 対象プレイヤーを削除
func (s *Service) RemoveTargets(ctx context.Context, code string, players []uuid.UUID) (<-chan sequencer.Result, error) {
	return s.WithCode(ctx, code, func(rc *redemption_code.RedemptionCode) (Change, error) {
		rc.RemoveTargets(players)
		return Change{Persist: true, Touch: true}, nil
	})
}

// ResetValidFrom 有効期間の起点を現在時刻にする
func (s *Service) ResetValidFrom(ctx context.Context, code string) (<-chan sequencer.Result, error) {
	return s.WithCode(ctx, code, func(rc *redemption_code.RedemptionCode) (Change, error) {
		rc.SetValidFrom(s.now())
		return Change{Persist: true, Touch: true}, nil
	})
}
