package kafka

import (
	"context"
	"time"

	"github.com/google/uuid"

	"redeem-server/internal/domain/player"
	otelinfra "redeem-server/internal/infrastructure/observability/otel"
)

// Notifier オンラインのプレイヤーへの通知をゲームサーバーのトピックへ送信する
type Notifier struct {
	producer
	now func() time.Time
}

var _ player.Notifier = (*Notifier)(nil)

// NewNotifier 新しいNotifierを作成
func NewNotifier(writer MessageWriter, topic string, logger *otelinfra.Logger) *Notifier {
	return &Notifier{producer: newProducer(writer, topic, logger), now: time.Now}
}

// Notify 通知を送信
func (n *Notifier) Notify(ctx context.Context, id uuid.UUID, notifications []player.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return n.produce(ctx, "Notifier.Notify", id.String(), gameMessage{
		Type:          MessageTypeNotification,
		PlayerID:      id.String(),
		Notifications: notifications,
		SentAt:        n.now().UTC(),
	})
}
