package redemption_code

import (
	"fmt"
	"strings"
	"time"
)

// CodeStatus 算出されたコードの状態。保存はしない。
type CodeStatus string

const (
	CodeStatusActive   CodeStatus = "active"
	CodeStatusExpired  CodeStatus = "expired"
	CodeStatusDisabled CodeStatus = "disabled"
)

func (s CodeStatus) String() string {
	return string(s)
}

// ParseCodeStatus 一覧のフィルタ値を解析
func ParseCodeStatus(s string) (CodeStatus, error) {
	cs := CodeStatus(strings.ToLower(strings.TrimSpace(s)))
	switch cs {
	case CodeStatusActive, CodeStatusExpired, CodeStatusDisabled:
		return cs, nil
	}
	return "", fmt.Errorf("invalid code status: %s", s)
}

// StatusAt 指定時刻でのステータスを算出。無効化が期限切れより優先される。
func StatusAt(rc *RedemptionCode, now time.Time) CodeStatus {
	switch {
	case !rc.props.Enabled:
		return CodeStatusDisabled
	case rc.IsExpired(now):
		return CodeStatusExpired
	default:
		return CodeStatusActive
	}
}
