package history

import (
	"github.com/google/uuid"

	"redeem-server/internal/domain/redemption_code"
)

// GetRedeemHistoryRequest 引き換え履歴取得リクエスト。条件は一つ以上指定する。
type GetRedeemHistoryRequest struct {
	Player   *uuid.UUID // optional
	Code     string     // optional
	Template string     // optional: Player, Codeとは併用しない
	Limit    int
	Offset   int
}

// GetRedeemHistoryResponse 引き換え履歴取得レスポンス
type GetRedeemHistoryResponse struct {
	Logs   []*redemption_code.RedeemLog
	Total  int
	Limit  int
	Offset int
}

// DeleteRedeemHistoryRequest 引き換え履歴削除リクエスト。IDを指定した場合は他の条件を無視する。
type DeleteRedeemHistoryRequest struct {
	ID     int64
	Player *uuid.UUID
	Code   string
}
