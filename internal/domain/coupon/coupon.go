package coupon

import (
	"time"

	"github.com/google/uuid"
)

// Coupon プレイヤーのウォレットに付与されたコード
type Coupon struct {
	id       int64
	playerID uuid.UUID
	code     string
	giftedAt time.Time
	claimed  bool
}

// NewCoupon 新しいCouponエンティティを作成
func NewCoupon(playerID uuid.UUID, code string, giftedAt time.Time) *Coupon {
	return &Coupon{
		playerID: playerID,
		code:     code,
		giftedAt: giftedAt,
	}
}

// Restore 永続化された値から復元
func Restore(id int64, playerID uuid.UUID, code string, giftedAt time.Time, claimed bool) *Coupon {
	return &Coupon{
		id:       id,
		playerID: playerID,
		code:     code,
		giftedAt: giftedAt,
		claimed:  claimed,
	}
}

// ID クーポンIDを返す
func (c *Coupon) ID() int64 {
	return c.id
}

// PlayerID 所持プレイヤーのIDを返す
func (c *Coupon) PlayerID() uuid.UUID {
	return c.playerID
}

// Code コードを返す
func (c *Coupon) Code() string {
	return c.code
}

// GiftedAt 付与日時を返す
func (c *Coupon) GiftedAt() time.Time {
	return c.giftedAt
}

// Claimed 使用済みかどうかを返す
func (c *Coupon) Claimed() bool {
	return c.claimed
}

// Claim 使用済みにする
func (c *Coupon) Claim() error {
	if c.claimed {
		return ErrCouponAlreadyClaimed
	}
	c.claimed = true
	return nil
}
