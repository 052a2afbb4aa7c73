package coupon

import "errors"

var (
	// ErrCouponNotFound クーポンが見つからないエラー
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrCouponAlreadyOwned プレイヤーが既にクーポンを所持しているエラー
	ErrCouponAlreadyOwned = errors.New("coupon already owned")
	// ErrCouponAlreadyClaimed クーポンが既に使用済みのエラー
	ErrCouponAlreadyClaimed = errors.New("coupon already claimed")
)
