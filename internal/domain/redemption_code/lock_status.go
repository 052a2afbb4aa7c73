package redemption_code

import (
	"fmt"
	"strings"
)

// LockStatus テンプレート別一覧の同期状態フィルタ
type LockStatus string

const (
	LockStatusAll      LockStatus = "all"      // 全て
	LockStatusLocked   LockStatus = "locked"   // テンプレートと同期中
	LockStatusUnlocked LockStatus = "unlocked" // 同期解除
)

// NewLockStatus 新しいLockStatusを作成。空文字はallとして扱う。
func NewLockStatus(s string) (LockStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return LockStatusAll, nil
	case "locked":
		return LockStatusLocked, nil
	case "unlocked":
		return LockStatusUnlocked, nil
	default:
		return "", fmt.Errorf("invalid lock status: %s", s)
	}
}

// String 文字列表現を返す
func (ls LockStatus) String() string {
	return string(ls)
}

// Valid 有効なフィルタかどうかを返す
func (ls LockStatus) Valid() bool {
	switch ls {
	case LockStatusAll, LockStatusLocked, LockStatusUnlocked:
		return true
	default:
		return false
	}
}

// Matches コードがフィルタに一致するかを返す
func (ls LockStatus) Matches(rc *RedemptionCode) bool {
	switch ls {
	case LockStatusLocked:
		return rc.Locked()
	case LockStatusUnlocked:
		return !rc.Locked()
	default:
		return true
	}
}
