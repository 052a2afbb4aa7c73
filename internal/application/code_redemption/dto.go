package code_redemption

import (
	"github.com/google/uuid"

	"redeem-server/internal/application/sequencer"
	"redeem-server/internal/domain/redemption_code"
	"redeem-server/internal/domain/service"
)

// RedeemCodeRequest コード引き換えリクエスト
type RedeemCodeRequest struct {
	Code       string
	Player     uuid.UUID
	PlayerName string
	Pin        *int   // nil = PIN未入力
	Address    string // 空文字 = アドレス不明
}

// RedeemCodeResponse コード引き換えレスポンス
type RedeemCodeResponse struct {
	Code        string
	Template    string
	Reason      service.Reason
	Reward      *redemption_code.Reward // 成功時のみ
	Suggestions []string                // コードが見つからない場合の候補
	// Done 永続化の完了通知。引き換えに失敗した場合は即時に完了する。
	Done <-chan sequencer.Result
}

// Success 引き換えに成功したかを返す
func (r *RedeemCodeResponse) Success() bool {
	return r.Reason.Eligible()
}
