package redeem_template

import "context"

// RedeemTemplateRepository テンプレートリポジトリインターフェース
type RedeemTemplateRepository interface {
	// Exists テンプレートが存在するかチェック
	Exists(ctx context.Context, name string) (bool, error)

	// FindByName 名前でテンプレートを取得
	FindByName(ctx context.Context, name string) (*RedeemTemplate, error)

	// FindAll 全テンプレートを取得
	FindAll(ctx context.Context) ([]*RedeemTemplate, error)

	// ListNames テンプレート名を並べて取得
	ListNames(ctx context.Context, descending bool) ([]string, error)

	// Upsert テンプレートを挿入または置換
	Upsert(ctx context.Context, template *RedeemTemplate) error

	// Delete テンプレートを削除
	Delete(ctx context.Context, name string) error

	// DeleteAll 全テンプレートを削除
	DeleteAll(ctx context.Context) error
}
