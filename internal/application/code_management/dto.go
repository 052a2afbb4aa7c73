package code_management

import (
	"context"

	"redeem-server/internal/domain/redemption_code"
)

// CreateRequest コード作成リクエスト
type CreateRequest struct {
	Codes    []string // 指定したコード。空の場合はランダム生成
	Template string   // 空の場合はテンプレートなし
	Digit    int      // ランダム生成の桁数。0の場合はテンプレートまたは設定の既定値
	Amount   int      // ランダム生成の件数
}

// CreateResponse コード作成レスポンス
type CreateResponse struct {
	Codes []*redemption_code.RedemptionCode
}

// ListQuery コード一覧の条件
type ListQuery struct {
	Template string                      // 空の場合は全コード
	Lock     redemption_code.LockStatus  // Template指定時のみ有効
	Status   *redemption_code.CodeStatus // nilの場合は全ステータス
	Sort     redemption_code.SortOrder
	Limit    int
	Offset   int
}

// ListResult コード一覧
type ListResult struct {
	Codes  []*redemption_code.RedemptionCode
	Total  int
	Limit  int
	Offset int
}

// Change 排他区間内の変更内容
type Change struct {
	Persist bool // falseの場合は何も書き込まない
	Touch   bool // 最終更新日時を更新する
	// Also 同じトランザクションで行う追加の書き込み
	Also func(ctx context.Context) error
}
