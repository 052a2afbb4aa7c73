package coupon_wallet

import (
	"github.com/google/uuid"
)

// GiveRandomRequest ランダムなコードを生成してクーポンとして付与するリクエスト
type GiveRandomRequest struct {
	Player   uuid.UUID
	Template string
	Digit    int // 0の場合はテンプレートの既定値
	Amount   int
	Secured  bool // trueの場合はコードの対象を受取人のみに限定する
}

// GiveToAllRequest 複数プレイヤーへの一括付与リクエスト
type GiveToAllRequest struct {
	Code       string
	OnlineOnly bool
}

// GiveRandomToAllRequest プレイヤーごとにランダムなコードを生成して一括付与するリクエスト
type GiveRandomToAllRequest struct {
	Template   string
	Digit      int
	Secured    bool
	OnlineOnly bool
}

// GiveResult 一括付与の結果
type GiveResult struct {
	Given   map[uuid.UUID]string `json:"given"`   // プレイヤー -> コード
	Skipped []uuid.UUID          `json:"skipped"` // 既に所持していたプレイヤー
}
