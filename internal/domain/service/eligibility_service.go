package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"redeem-server/internal/domain/redemption_code"

	"github.com/google/uuid"
)

// Reason 引き換え可否の判定結果
type Reason string

const (
	ReasonEligible           Reason = "eligible"
	ReasonNotFound           Reason = "not_found"
	ReasonDisabled           Reason = "disabled"
	ReasonExpired            Reason = "expired"
	ReasonNotTargeted        Reason = "not_targeted"
	ReasonNoPermission       Reason = "no_permission"
	ReasonWrongPin           Reason = "wrong_pin"
	ReasonLimitReached       Reason = "limit_reached"
	ReasonPlayerLimitReached Reason = "player_limit_reached"
	ReasonOnCooldown         Reason = "on_cooldown"
	ReasonConditionFailed    Reason = "condition_failed"
)

// String 文字列表現を返す
func (r Reason) String() string {
	return string(r)
}

// Eligible 引き換え可能かどうかを返す
func (r Reason) Eligible() bool {
	return r == ReasonEligible
}

// PermissionChecker プレイヤーが権限を持つかを判定する外部コラボレーター
type PermissionChecker interface {
	HasPermission(ctx context.Context, player uuid.UUID, permission string) (bool, error)
}

// ConditionInput 条件式の評価に渡す値
type ConditionInput struct {
	Player     uuid.UUID
	PlayerName string
	Code       string
	Template   string
	Now        time.Time
	Uses       int
	PlayerUses int
	Address    string
}

// ConditionEvaluator 条件式を評価する外部コラボレーター
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, condition string, in ConditionInput) (bool, error)
}

// RedemptionRequest 引き換えを要求するプレイヤーの情報
type RedemptionRequest struct {
	Player     uuid.UUID
	PlayerName string
	Pin        *int
	Address    string
	Now        time.Time
}

// Decision 判定結果と、条件式の評価に失敗した場合のエラー
type Decision struct {
	Reason       Reason
	ConditionErr error
}

// EligibilityService 引き換え可否を判定するドメインサービス
type EligibilityService struct {
	permissions PermissionChecker
	conditions  ConditionEvaluator
}

// NewEligibilityService 新しいEligibilityServiceを作成
func NewEligibilityService(permissions PermissionChecker, conditions ConditionEvaluator) *EligibilityService {
	return &EligibilityService{
		permissions: permissions,
		conditions:  conditions,
	}
}

// Evaluate コードとプレイヤーについて引き換え可否を判定する。
// 最初に失敗した規則の理由を返す。エラーは権限確認の失敗時のみ。
func (s *EligibilityService) Evaluate(ctx context.Context, rc *redemption_code.RedemptionCode, req RedemptionRequest) (Decision, error) {
	if rc == nil {
		return Decision{Reason: ReasonNotFound}, nil
	}
	if !rc.Enabled() {
		return Decision{Reason: ReasonDisabled}, nil
	}
	if rc.IsExpired(req.Now) {
		return Decision{Reason: ReasonExpired}, nil
	}
	if !rc.IsTargeted(req.Player) {
		return Decision{Reason: ReasonNotTargeted}, nil
	}

	if permission := strings.TrimSpace(rc.Permission()); permission != "" {
		if s.permissions == nil {
			return Decision{Reason: ReasonNoPermission}, nil
		}
		ok, err := s.permissions.HasPermission(ctx, req.Player, permission)
		if err != nil {
			return Decision{}, fmt.Errorf("failed to check permission: %w", err)
		}
		if !ok {
			return Decision{Reason: ReasonNoPermission}, nil
		}
	}

	if !rc.Pin().Matches(req.Pin) {
		return Decision{Reason: ReasonWrongPin}, nil
	}
	if limit := rc.Redemption(); limit > 0 && rc.TotalUses() >= limit {
		return Decision{Reason: ReasonLimitReached}, nil
	}
	if limit := rc.PlayerLimit(); limit > 0 && rc.PlayerUses(req.Player) >= limit {
		return Decision{Reason: ReasonPlayerLimitReached}, nil
	}
	if rc.OnCooldown(req.Player, req.Now) {
		return Decision{Reason: ReasonOnCooldown}, nil
	}

	if condition := strings.TrimSpace(rc.Condition()); condition != "" {
		if s.conditions == nil {
			return Decision{Reason: ReasonConditionFailed}, nil
		}
		ok, err := s.conditions.Evaluate(ctx, condition, ConditionInput{
			Player:     req.Player,
			PlayerName: req.PlayerName,
			Code:       rc.Code(),
			Template:   rc.Template(),
			Now:        req.Now,
			Uses:       rc.TotalUses(),
			PlayerUses: rc.PlayerUses(req.Player),
			Address:    req.Address,
		})
		if err != nil {
			return Decision{Reason: ReasonConditionFailed, ConditionErr: err}, nil
		}
		if !ok {
			return Decision{Reason: ReasonConditionFailed}, nil
		}
	}

	return Decision{Reason: ReasonEligible}, nil
}
