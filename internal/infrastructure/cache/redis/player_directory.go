package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sahilm/fuzzy"
	"golang.org/x/sync/singleflight"

	"redeem-server/internal/domain/player"
)

// PlayerDirectory Redisのハッシュとセットで管理するプレイヤーディレクトリ。
// 名前とIDの解決結果はプロセス内LRUにも保持する。
type PlayerDirectory struct {
	client *goredis.Client
	keys   keyspace
	names  *lru.Cache // 小文字の名前 -> uuid.UUID
	ids    *lru.Cache // uuid.UUID -> 名前
	group  singleflight.Group
}

// NewPlayerDirectory 新しいPlayerDirectoryを作成
func NewPlayerDirectory(client *goredis.Client, prefix string, cacheSize int) (*PlayerDirectory, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	names, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	ids, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &PlayerDirectory{
		client: client,
		keys:   keyspace(prefix),
		names:  names,
		ids:    ids,
	}, nil
}

func (d *PlayerDirectory) namesKey() string  { return d.keys.key("players", "names") }
func (d *PlayerDirectory) idsKey() string    { return d.keys.key("players", "ids") }
func (d *PlayerDirectory) onlineKey() string { return d.keys.key("players", "online") }

// IDByName 名前からIDを取得（大文字小文字を区別しない）
func (d *PlayerDirectory) IDByName(ctx context.Context, name string) (uuid.UUID, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return uuid.Nil, player.ErrPlayerNotFound
	}
	if v, ok := d.names.Get(lower); ok {
		return v.(uuid.UUID), nil
	}

	v, err, _ := d.group.Do("name:"+lower, func() (interface{}, error) {
		raw, err := d.client.HGet(ctx, d.namesKey(), lower).Result()
		if errors.Is(err, goredis.Nil) {
			return uuid.Nil, player.ErrPlayerNotFound
		}
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to resolve player name: %w", err)
		}
		id, err := player.ParseID(raw)
		if err != nil {
			return uuid.Nil, err
		}
		d.names.Add(lower, id)
		return id, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return v.(uuid.UUID), nil
}

// NameByID IDから名前を取得
func (d *PlayerDirectory) NameByID(ctx context.Context, id uuid.UUID) (string, error) {
	if v, ok := d.ids.Get(id); ok {
		return v.(string), nil
	}

	name, err := d.client.HGet(ctx, d.idsKey(), id.String()).Result()
	if errors.Is(err, goredis.Nil) {
		return "", player.ErrPlayerNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve player id: %w", err)
	}
	d.ids.Add(id, name)
	return name, nil
}

// Players 既知のプレイヤー一覧を取得
func (d *PlayerDirectory) Players(ctx context.Context) (map[uuid.UUID]string, error) {
	raw, err := d.client.HGetAll(ctx, d.idsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	players := make(map[uuid.UUID]string, len(raw))
	for k, name := range raw {
		id, err := uuid.Parse(k)
		if err != nil {
			continue
		}
		players[id] = name
	}
	return players, nil
}

// Remember 新しく見つかったプレイヤーを記録。改名時は古い名前を削除する。
func (d *PlayerDirectory) Remember(ctx context.Context, id uuid.UUID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty name", player.ErrInvalidPlayerID)
	}

	old, err := d.client.HGet(ctx, d.idsKey(), id.String()).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("failed to load player: %w", err)
	}

	_, err = d.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		if old != "" && !strings.EqualFold(old, name) {
			pipe.HDel(ctx, d.namesKey(), strings.ToLower(old))
		}
		pipe.HSet(ctx, d.namesKey(), strings.ToLower(name), id.String())
		pipe.HSet(ctx, d.idsKey(), id.String(), name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remember player: %w", err)
	}

	if old != "" {
		d.names.Remove(strings.ToLower(old))
	}
	d.names.Add(strings.ToLower(name), id)
	d.ids.Add(id, name)
	return nil
}

// SetOnline オンライン状態を更新
func (d *PlayerDirectory) SetOnline(ctx context.Context, id uuid.UUID, online bool) error {
	var err error
	if online {
		err = d.client.SAdd(ctx, d.onlineKey(), id.String()).Err()
	} else {
		err = d.client.SRem(ctx, d.onlineKey(), id.String()).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to update online status: %w", err)
	}
	return nil
}

// Online オンラインのプレイヤーIDを取得
func (d *PlayerDirectory) Online(ctx context.Context) ([]uuid.UUID, error) {
	members, err := d.client.SMembers(ctx, d.onlineKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list online players: %w", err)
	}
	sort.Strings(members)

	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SuggestNames 部分一致するプレイヤー名の候補を関連度順に返す
func (d *PlayerDirectory) SuggestNames(ctx context.Context, partial string, limit int) ([]string, error) {
	names, err := d.client.HVals(ctx, d.idsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list player names: %w", err)
	}
	sort.Strings(names)
	return suggest(partial, names, limit), nil
}

// suggest あいまい検索で上位limit件を返す
func suggest(pattern string, data []string, limit int) []string {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		if limit > 0 && len(data) > limit {
			return data[:limit]
		}
		return data
	}

	matches := fuzzy.Find(pattern, data)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, m.Str)
	}
	return out
}
