package player

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrPlayerNotFound プレイヤーが見つからないエラー
	ErrPlayerNotFound = errors.New("player not found")
	// ErrInvalidPlayerID プレイヤーIDが不正なエラー
	ErrInvalidPlayerID = errors.New("invalid player id")
)

// ParseID プレイヤーIDを解析
func ParseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrInvalidPlayerID, s)
	}
	return id, nil
}

// Directory プレイヤー名とIDの解決を行うディレクトリ
type Directory interface {
	// IDByName 名前からIDを取得
	IDByName(ctx context.Context, name string) (uuid.UUID, error)
	// NameByID IDから名前を取得
	NameByID(ctx context.Context, id uuid.UUID) (string, error)
	// Players 既知のプレイヤー一覧を取得
	Players(ctx context.Context) (map[uuid.UUID]string, error)
	// Remember 新しく見つかったプレイヤーを記録
	Remember(ctx context.Context, id uuid.UUID, name string) error
	// SetOnline オンライン状態を更新
	SetOnline(ctx context.Context, id uuid.UUID, online bool) error
	// Online オンラインのプレイヤーIDを取得
	Online(ctx context.Context) ([]uuid.UUID, error)
	// SuggestNames 部分一致するプレイヤー名の候補を返す
	SuggestNames(ctx context.Context, partial string, limit int) ([]string, error)
}

// NotificationKind 通知の種類
type NotificationKind string

const (
	NotificationCoupon NotificationKind = "coupon" // 管理者からのクーポン付与
	NotificationGift   NotificationKind = "gift"   // 他プレイヤーからのギフト
)

// Notification オフライン配信用の通知
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	Code      string           `json:"code"`
	Template  string           `json:"template"`
	Sender    string           `json:"sender,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// NotificationQueue 次回ログイン時に配信する通知キュー
type NotificationQueue interface {
	// Push 通知を追加
	Push(ctx context.Context, id uuid.UUID, n Notification) error
	// Drain 通知を取り出して削除
	Drain(ctx context.Context, id uuid.UUID) ([]Notification, error)
	// ClearByCodes 指定コードの通知を削除して返す
	ClearByCodes(ctx context.Context, codes []string) ([]Notification, error)
	// ClearByTemplate 指定テンプレートの通知を削除して返す
	ClearByTemplate(ctx context.Context, template string) ([]Notification, error)
}

// Notifier オンラインのプレイヤーへ通知を表示する
type Notifier interface {
	Notify(ctx context.Context, id uuid.UUID, notifications []Notification) error
}
