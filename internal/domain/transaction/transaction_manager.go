package transaction

import (
	"context"
)

// TransactionManager トランザクション管理インターフェース
type TransactionManager interface {
	// WithTransaction トランザクション内で関数を実行。
	// fnに渡されるコンテキストを使ったリポジトリ操作は同一トランザクションで実行される。
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
