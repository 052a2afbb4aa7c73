package kafka

import (
	"context"
	"time"

	"redeem-server/internal/domain/player"
	"redeem-server/internal/domain/redeem_property"
	"redeem-server/internal/domain/redemption_code"
	otelinfra "redeem-server/internal/infrastructure/observability/otel"
)

// ゲームサーバーへ送るメッセージ種別
const (
	MessageTypeReward       = "reward"
	MessageTypeNotification = "notification"
)

// gameMessage ゲームサーバーが購読するトピックのメッセージ
type gameMessage struct {
	Type          string                    `json:"type"`
	PlayerID      string                    `json:"player_id"`
	Code          string                    `json:"code,omitempty"`
	Template      string                    `json:"template,omitempty"`
	Commands      []string                  `json:"commands,omitempty"`
	Messages      *redeem_property.Messages `json:"messages,omitempty"`
	Sound         *redeem_property.Sound    `json:"sound,omitempty"`
	Rewards       []string                  `json:"rewards,omitempty"`
	Notifications []player.Notification     `json:"notifications,omitempty"`
	SentAt        time.Time                 `json:"sent_at"`
}

// RewardDispatcher 報酬をゲームサーバーのトピックへ送信する
type RewardDispatcher struct {
	producer
	now func() time.Time
}

var _ redemption_code.RewardDispatcher = (*RewardDispatcher)(nil)

// NewRewardDispatcher 新しいRewardDispatcherを作成
func NewRewardDispatcher(writer MessageWriter, topic string, logger *otelinfra.Logger) *RewardDispatcher {
	return &RewardDispatcher{producer: newProducer(writer, topic, logger), now: time.Now}
}

// Dispatch 報酬を送信。プレイヤーIDをキーにして同一プレイヤーの順序を保つ。
func (d *RewardDispatcher) Dispatch(ctx context.Context, reward redemption_code.Reward) error {
	messages := reward.Messages
	sound := reward.Sound
	return d.produce(ctx, "RewardDispatcher.Dispatch", reward.Player.String(), gameMessage{
		Type:     MessageTypeReward,
		PlayerID: reward.Player.String(),
		Code:     reward.Code,
		Template: reward.Template,
		Commands: reward.Commands,
		Messages: &messages,
		Sound:    &sound,
		Rewards:  reward.Rewards,
		SentAt:   d.now().UTC(),
	})
}
