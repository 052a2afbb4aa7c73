package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	otelinfra "redeem-server/internal/infrastructure/observability/otel"
)

// MessageWriter kafka.Writerの送信部分
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter トピックへのWriterを作成。キーが同じメッセージは同じパーティションに入る。
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// producer JSONメッセージをトレースコンテキスト付きで送信する
type producer struct {
	writer MessageWriter
	topic  string
	logger *otelinfra.Logger
	tracer trace.Tracer
}

func newProducer(writer MessageWriter, topic string, logger *otelinfra.Logger) producer {
	return producer{
		writer: writer,
		topic:  topic,
		logger: logger,
		tracer: otel.Tracer("kafka-producer"),
	}
}

func (p producer) produce(ctx context.Context, spanName, key string, value interface{}) error {
	ctx, span := p.tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination.name", p.topic),
		attribute.String("messaging.kafka.message.key", key),
	)

	body, err := json.Marshal(value)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := kafka.Message{Key: []byte(key), Value: body}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: &msg})

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		p.logger.Error(ctx, "Failed to produce message", err, map[string]interface{}{
			"topic": p.topic,
			"key":   key,
		})
		return fmt.Errorf("failed to produce message to %s: %w", p.topic, err)
	}
	return nil
}

// headerCarrier kafkaヘッダーをTextMapCarrierとして扱う
type headerCarrier struct {
	msg *kafka.Message
}

var _ propagation.TextMapCarrier = headerCarrier{}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}
