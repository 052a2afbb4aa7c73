package redis

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"redeem-server/internal/infrastructure/config"
)

// NewClient Redisクライアントを作成して疎通を確認
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// keyspace キープレフィックスを付与する
type keyspace string

func (k keyspace) key(parts ...string) string {
	prefix := strings.TrimSpace(string(k))
	return prefix + strings.Join(parts, ":")
}
