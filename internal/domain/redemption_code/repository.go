package redemption_code

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RedeemLog 引き換え履歴エンティティ（追記のみ）
type RedeemLog struct {
	id         int64
	playerID   uuid.UUID
	code       string
	redeemedAt time.Time
}

// NewRedeemLog 新しいRedeemLogエンティティを作成
func NewRedeemLog(playerID uuid.UUID, code string, redeemedAt time.Time) *RedeemLog {
	return &RedeemLog{
		playerID:   playerID,
		code:       code,
		redeemedAt: redeemedAt,
	}
}

// RestoreRedeemLog 永続化された値から復元
func RestoreRedeemLog(id int64, playerID uuid.UUID, code string, redeemedAt time.Time) *RedeemLog {
	return &RedeemLog{id: id, playerID: playerID, code: code, redeemedAt: redeemedAt}
}

// ID 履歴IDを返す
func (l *RedeemLog) ID() int64 {
	return l.id
}

// PlayerID プレイヤーIDを返す
func (l *RedeemLog) PlayerID() uuid.UUID {
	return l.playerID
}

// Code コードを返す
func (l *RedeemLog) Code() string {
	return l.code
}

// RedeemedAt 引き換え日時を返す
func (l *RedeemLog) RedeemedAt() time.Time {
	return l.redeemedAt
}

// SortField 一覧の並び替えキー
type SortField string

const (
	SortByCode      SortField = "code"
	SortByTemplate  SortField = "template"
	SortByModified  SortField = "modified"
	SortByValidFrom SortField = "valid_from"
)

// SortOrder 一覧の並び順
type SortOrder struct {
	Field      SortField
	Descending bool
}

// Valid 有効な並び替えキーかどうかを返す
func (f SortField) Valid() bool {
	switch f {
	case SortByCode, SortByTemplate, SortByModified, SortByValidFrom:
		return true
	default:
		return false
	}
}

// RedemptionCodeRepository 引き換えコードリポジトリインターフェース
type RedemptionCodeRepository interface {
	// FindByCode コードで引き換えコードを取得
	FindByCode(ctx context.Context, code string) (*RedemptionCode, error)

	// FindByCodes 複数コードを取得（存在しないコードは含まれない）
	FindByCodes(ctx context.Context, codes []string) ([]*RedemptionCode, error)

	// FindAll 全コードを並べて取得
	FindAll(ctx context.Context, order SortOrder) ([]*RedemptionCode, error)

	// FindByTemplate テンプレート名と同期状態で取得
	FindByTemplate(ctx context.Context, template string, lock LockStatus) ([]*RedemptionCode, error)

	// ListCodes コード文字列の一覧を取得
	ListCodes(ctx context.Context) ([]string, error)

	// Exists コードが存在するかチェック
	Exists(ctx context.Context, code string) (bool, error)

	// ExistingCodes 指定コードのうち存在するものを返す
	ExistingCodes(ctx context.Context, codes []string) ([]string, error)

	// Create 引き換えコードを作成
	Create(ctx context.Context, code *RedemptionCode) error

	// CreateBatch 複数の引き換えコードを作成
	CreateBatch(ctx context.Context, codes []*RedemptionCode) error

	// Update 引き換えコードを更新
	Update(ctx context.Context, code *RedemptionCode) error

	// UpdateBatch 複数の引き換えコードを更新
	UpdateBatch(ctx context.Context, codes []*RedemptionCode) error

	// Delete 引き換えコードを削除
	Delete(ctx context.Context, code string) error

	// DeleteBatch 複数の引き換えコードを削除
	DeleteBatch(ctx context.Context, codes []string) error

	// DeleteByTemplate テンプレートに紐付くコードを削除
	DeleteByTemplate(ctx context.Context, template string) (int64, error)

	// DeleteAll 全コードを削除
	DeleteAll(ctx context.Context) error
}

// RedeemLogRepository 引き換え履歴リポジトリインターフェース
type RedeemLogRepository interface {
	// Save 引き換え履歴を保存
	Save(ctx context.Context, log *RedeemLog) error

	// FindByPlayer プレイヤーの履歴を取得
	FindByPlayer(ctx context.Context, playerID uuid.UUID) ([]*RedeemLog, error)

	// FindByCode コードの履歴を取得
	FindByCode(ctx context.Context, code string) ([]*RedeemLog, error)

	// FindByPlayerAndCode プレイヤーとコードで履歴を取得
	FindByPlayerAndCode(ctx context.Context, playerID uuid.UUID, code string) ([]*RedeemLog, error)

	// FindByTemplate テンプレートに紐付くコードの履歴を取得
	FindByTemplate(ctx context.Context, template string) ([]*RedeemLog, error)

	// DeleteByID 履歴を削除
	DeleteByID(ctx context.Context, id int64) error

	// DeleteByPlayer プレイヤーの履歴を削除
	DeleteByPlayer(ctx context.Context, playerID uuid.UUID) (int64, error)

	// DeleteByCode コードの履歴を削除
	DeleteByCode(ctx context.Context, code string) (int64, error)

	// DeleteByPlayerAndCode プレイヤーとコードの履歴を削除
	DeleteByPlayerAndCode(ctx context.Context, playerID uuid.UUID, code string) (int64, error)
}
