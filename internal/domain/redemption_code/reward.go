package redemption_code

import (
	"context"
	"time"

	"redeem-server/internal/domain/redeem_property"

	"github.com/google/uuid"
)

// Reward 引き換え成功時にゲーム側へ渡す報酬のスナップショット
type Reward struct {
	Player   uuid.UUID
	Code     string
	Template string
	Commands []string
	Messages redeem_property.Messages
	Sound    redeem_property.Sound
	Rewards  []string
}

// RewardFor コードの現在値から報酬スナップショットを作成
func RewardFor(rc *RedemptionCode, player uuid.UUID) Reward {
	p := rc.Properties()
	return Reward{
		Player:   player,
		Code:     rc.code,
		Template: rc.template,
		Commands: p.Commands,
		Messages: p.Messages,
		Sound:    p.Sound,
		Rewards:  p.Rewards,
	}
}

// RewardDispatcher ゲーム内で報酬を実行する外部コラボレーター
type RewardDispatcher interface {
	Dispatch(ctx context.Context, reward Reward) error
}

// RedemptionEvent 引き換え試行の監査イベント
type RedemptionEvent struct {
	Player   uuid.UUID `json:"player_id"`
	Code     string    `json:"code"`
	Template string    `json:"template,omitempty"`
	Reason   string    `json:"reason"`
	Success  bool      `json:"success"`
	Address  string    `json:"address,omitempty"`
	At       time.Time `json:"at"`
}

// EventPublisher 引き換えイベントを外部へ配信する
type EventPublisher interface {
	Publish(ctx context.Context, event RedemptionEvent) error
}
