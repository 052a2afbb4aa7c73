package duration

import "errors"

var (
	// ErrInvalidDuration 期間文字列が文法に一致しないエラー
	ErrInvalidDuration = errors.New("invalid duration format")
)
