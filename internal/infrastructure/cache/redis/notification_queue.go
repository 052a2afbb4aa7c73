package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"redeem-server/internal/domain/player"
)

// NotificationQueue プレイヤーごとのRedisリストに保持する通知キュー
type NotificationQueue struct {
	client *goredis.Client
	keys   keyspace
}

// NewNotificationQueue 新しいNotificationQueueを作成
func NewNotificationQueue(client *goredis.Client, prefix string) *NotificationQueue {
	return &NotificationQueue{client: client, keys: keyspace(prefix)}
}

func (q *NotificationQueue) listKey(id string) string { return q.keys.key("notifications", id) }
func (q *NotificationQueue) pendingKey() string      { return q.keys.key("notifications", "pending") }

// Push 通知を追加
func (q *NotificationQueue) Push(ctx context.Context, id uuid.UUID, n player.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, q.listKey(id.String()), body)
		pipe.SAdd(ctx, q.pendingKey(), id.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	return nil
}

// Drain 通知を取り出して削除
func (q *NotificationQueue) Drain(ctx context.Context, id uuid.UUID) ([]player.Notification, error) {
	key := q.listKey(id.String())

	var items *goredis.StringSliceCmd
	_, err := q.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		items = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		pipe.SRem(ctx, q.pendingKey(), id.String())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to drain notifications: %w", err)
	}

	return decodeNotifications(items.Val()), nil
}

// ClearByCodes 指定コードの通知を削除して返す
func (q *NotificationQueue) ClearByCodes(ctx context.Context, codes []string) ([]player.Notification, error) {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return q.clear(ctx, func(n player.Notification) bool {
		_, ok := set[n.Code]
		return ok
	})
}

// ClearByTemplate 指定テンプレートの通知を削除して返す
func (q *NotificationQueue) ClearByTemplate(ctx context.Context, template string) ([]player.Notification, error) {
	return q.clear(ctx, func(n player.Notification) bool {
		return n.Template == template
	})
}

// clear 全プレイヤーのキューからmatchに一致する通知を取り除く
func (q *NotificationQueue) clear(ctx context.Context, match func(player.Notification) bool) ([]player.Notification, error) {
	ids, err := q.client.SMembers(ctx, q.pendingKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending notifications: %w", err)
	}

	removed := make([]player.Notification, 0)
	for _, id := range ids {
		key := q.listKey(id)
		err := q.client.Watch(ctx, func(tx *goredis.Tx) error {
			raw, err := tx.LRange(ctx, key, 0, -1).Result()
			if err != nil {
				return err
			}

			keep := make([]interface{}, 0, len(raw))
			var dropped []player.Notification
			for _, item := range raw {
				var n player.Notification
				if err := json.Unmarshal([]byte(item), &n); err == nil && match(n) {
					dropped = append(dropped, n)
					continue
				}
				keep = append(keep, item)
			}
			if len(dropped) == 0 {
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Del(ctx, key)
				if len(keep) > 0 {
					pipe.RPush(ctx, key, keep...)
				} else {
					pipe.SRem(ctx, q.pendingKey(), id)
				}
				return nil
			})
			if err == nil {
				removed = append(removed, dropped...)
			}
			return err
		}, key)
		if err != nil {
			return removed, fmt.Errorf("failed to clear notifications: %w", err)
		}
	}
	return removed, nil
}

func decodeNotifications(raw []string) []player.Notification {
	out := make([]player.Notification, 0, len(raw))
	for _, item := range raw {
		var n player.Notification
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
