package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"redeem-server/internal/domain/player"
	"redeem-server/internal/domain/redeem_property"
	"redeem-server/internal/domain/redemption_code"
	otelinfra "redeem-server/internal/infrastructure/observability/otel"
)

// fakeWriter 送信されたメッセージを記録する
type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestRewardDispatcher_Dispatch(t *testing.T) {
	playerID := uuid.New()
	reward := redemption_code.Reward{
		Player:   playerID,
		Code:     "ABCDE",
		Template: "event",
		Commands: []string{"give {player} diamond 1"},
		Messages: redeem_property.Messages{Text: []string{"thanks"}},
		Sound:    redeem_property.DefaultSound(),
		Rewards:  []string{"item-blob"},
	}

	tests := []struct {
		name      string
		writerErr error
		wantError bool
	}{
		{name: "正常系: 報酬を送信"},
		{name: "異常系: 送信失敗", writerErr: errors.New("broker down"), wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWriter{err: tt.writerErr}
			d := NewRewardDispatcher(w, "redeem.rewards", otelinfra.NewNopLogger())
			d.now = func() time.Time { return fixedNow }

			err := d.Dispatch(context.Background(), reward)
			if tt.wantError {
				assert.Error(t, err)
				assert.Empty(t, w.messages)
				return
			}
			require.NoError(t, err)
			require.Len(t, w.messages, 1)

			msg := w.messages[0]
			assert.Equal(t, playerID.String(), string(msg.Key))

			var got gameMessage
			require.NoError(t, json.Unmarshal(msg.Value, &got))
			assert.Equal(t, MessageTypeReward, got.Type)
			assert.Equal(t, "ABCDE", got.Code)
			assert.Equal(t, []string{"give {player} diamond 1"}, got.Commands)
			assert.Equal(t, []string{"thanks"}, got.Messages.Text)
			assert.Equal(t, fixedNow, got.SentAt)
		})
	}
}

func TestNotifier_Notify(t *testing.T) {
	id := uuid.New()

	t.Run("正常系: 通知なしは送信しない", func(t *testing.T) {
		w := &fakeWriter{}
		n := NewNotifier(w, "redeem.rewards", otelinfra.NewNopLogger())
		require.NoError(t, n.Notify(context.Background(), id, nil))
		assert.Empty(t, w.messages)
	})

	t.Run("正常系: 通知を送信", func(t *testing.T) {
		w := &fakeWriter{}
		n := NewNotifier(w, "redeem.rewards", otelinfra.NewNopLogger())
		err := n.Notify(context.Background(), id, []player.Notification{
			{Kind: player.NotificationCoupon, Code: "GIFT1", CreatedAt: fixedNow},
		})
		require.NoError(t, err)
		require.Len(t, w.messages, 1)

		var got gameMessage
		require.NoError(t, json.Unmarshal(w.messages[0].Value, &got))
		assert.Equal(t, MessageTypeNotification, got.Type)
		require.Len(t, got.Notifications, 1)
		assert.Equal(t, "GIFT1", got.Notifications[0].Code)
	})
}

func TestEventPublisher_InjectsTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "parent")
	defer span.End()

	w := &fakeWriter{}
	p := NewEventPublisher(w, "redeem.events", otelinfra.NewNopLogger())
	err := p.Publish(ctx, redemption_code.RedemptionEvent{
		Player:  uuid.New(),
		Code:    "ABCDE",
		Reason:  "eligible",
		Success: true,
		At:      fixedNow,
	})
	require.NoError(t, err)
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "ABCDE", string(msg.Key))
	carrier := headerCarrier{msg: &msg}
	assert.Contains(t, carrier.Get("traceparent"), span.SpanContext().TraceID().String())
}

func TestHeaderCarrier(t *testing.T) {
	msg := kafka.Message{}
	c := headerCarrier{msg: &msg}

	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("a", "3")

	assert.Equal(t, "3", c.Get("a"))
	assert.Equal(t, "", c.Get("missing"))
	assert.ElementsMatch(t, []string{"a", "b"}, c.Keys())
}
