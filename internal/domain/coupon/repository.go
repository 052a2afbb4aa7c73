package coupon

import (
	"context"

	"github.com/google/uuid"
)

// CouponRepository クーポンリポジトリインターフェース。(player, code) は一意。
type CouponRepository interface {
	Add(ctx context.Context, c *Coupon) error
	AddBatch(ctx context.Context, coupons []*Coupon) error

	Find(ctx context.Context, playerID uuid.UUID, code string) (*Coupon, error)
	FindByPlayer(ctx context.Context, playerID uuid.UUID) ([]*Coupon, error)
	FindAll(ctx context.Context) ([]*Coupon, error)
	FindByTemplate(ctx context.Context, template string) ([]*Coupon, error)
	FindByPlayerAndTemplate(ctx context.Context, playerID uuid.UUID, template string) ([]*Coupon, error)
	Exists(ctx context.Context, playerID uuid.UUID, code string) (bool, error)
	// OwnersOf 指定プレイヤーのうちコードを所持しているプレイヤーを返す
	OwnersOf(ctx context.Context, playerIDs []uuid.UUID, code string) ([]uuid.UUID, error)

	MarkClaimed(ctx context.Context, playerID uuid.UUID, code string) error

	Delete(ctx context.Context, playerID uuid.UUID, code string) error
	DeleteByCode(ctx context.Context, code string) error
	DeleteByCodes(ctx context.Context, codes []string) error
	DeleteByPlayer(ctx context.Context, playerID uuid.UUID) error
	DeleteByPlayerAndCodes(ctx context.Context, playerID uuid.UUID, codes []string) error
	DeleteByPlayersAndCode(ctx context.Context, playerIDs []uuid.UUID, code string) error
	DeleteByTemplate(ctx context.Context, template string) (int64, error)
	DeleteByPlayerAndTemplate(ctx context.Context, playerID uuid.UUID, template string) (int64, error)
	DeleteAll(ctx context.Context) error
}
