package handler

import "redeem-server/internal/domain/redemption_code"

// RedeemLogItem 引き換え履歴アイテム
// @Description 引き換え履歴アイテム
type RedeemLogItem struct {
	ID         int64  `json:"id" example:"42"`
	PlayerID   string `json:"player_id" example:"0b7a4c54-7e3c-4b0e-9a52-3f3f0f6f1d11"`
	Code       string `json:"code" example:"SUMMER24"`
	RedeemedAt string `json:"redeemed_at" example:"2026-01-01T12:00:00Z"`
}

// RedeemHistoryResponse 引き換え履歴レスポンス
// @Description 引き換え履歴レスポンス
type RedeemHistoryResponse struct {
	Logs   []RedeemLogItem `json:"logs"`
	Total  int             `json:"total" example:"1"`
	Limit  int             `json:"limit" example:"50"`
	Offset int             `json:"offset" example:"0"`
}

func newRedeemLogItems(logs []*redemption_code.RedeemLog) []RedeemLogItem {
	items := make([]RedeemLogItem, len(logs))
	for i, l := range logs {
		items[i] = RedeemLogItem{
			ID:         l.ID(),
			PlayerID:   l.PlayerID().String(),
			Code:       l.Code(),
			RedeemedAt: l.RedeemedAt().Format(timeLayout),
		}
	}
	return items
}
