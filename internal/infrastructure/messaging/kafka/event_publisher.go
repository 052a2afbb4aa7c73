package kafka

import (
	"context"

	"redeem-server/internal/domain/redemption_code"
	otelinfra "redeem-server/internal/infrastructure/observability/otel"
)

// EventPublisher 引き換えイベントを監査トピックへ送信する
type EventPublisher struct {
	producer
}

var _ redemption_code.EventPublisher = (*EventPublisher)(nil)

// NewEventPublisher 新しいEventPublisherを作成
func NewEventPublisher(writer MessageWriter, topic string, logger *otelinfra.Logger) *EventPublisher {
	return &EventPublisher{producer: newProducer(writer, topic, logger)}
}

// Publish イベントを送信。コードをキーにする。
func (p *EventPublisher) Publish(ctx context.Context, event redemption_code.RedemptionEvent) error {
	return p.produce(ctx, "EventPublisher.Publish", event.Code, event)
}
