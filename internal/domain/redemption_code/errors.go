package redemption_code

import "errors"

var (
	// ErrCodeNotFound 引き換えコードが見つからないエラー
	ErrCodeNotFound = errors.New("code not found")
	// ErrCodeAlreadyExists 引き換えコードが既に存在するエラー
	ErrCodeAlreadyExists = errors.New("code already exists")
	// ErrInvalidCode コード文字列が不正なエラー
	ErrInvalidCode = errors.New("invalid code")
	// ErrInvalidDigit 桁数が不正なエラー
	ErrInvalidDigit = errors.New("invalid digit")
	// ErrInvalidAmount 生成数が不正なエラー
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrGenerationExhausted 重複しないコードを生成できなかったエラー
	ErrGenerationExhausted = errors.New("could not generate unique code")
	// ErrLogNotFound 引き換え履歴が見つからないエラー
	ErrLogNotFound = errors.New("redeem log not found")
)
