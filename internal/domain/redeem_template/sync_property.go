package redeem_template

import (
	"fmt"
	"strings"
)

// SyncProperty テンプレートからコードへ同期するプロパティ
type SyncProperty string

const (
	SyncEnabledStatus SyncProperty = "enabled"
	SyncLockedStatus  SyncProperty = "locked"
	SyncCommands      SyncProperty = "commands"
	SyncDuration      SyncProperty = "duration"
	SyncCooldown      SyncProperty = "cooldown"
	SyncPin           SyncProperty = "pin"
	SyncRedemption    SyncProperty = "redemption"
	SyncPlayerLimit   SyncProperty = "player_limit"
	SyncPermission    SyncProperty = "permission"
	SyncMessages      SyncProperty = "messages"
	SyncSound         SyncProperty = "sound"
	SyncRewards       SyncProperty = "rewards"
	SyncCondition     SyncProperty = "condition"
)

// AllSyncProperties 全ての同期プロパティ
var AllSyncProperties = []SyncProperty{
	SyncEnabledStatus,
	SyncLockedStatus,
	SyncCommands,
	SyncDuration,
	SyncCooldown,
	SyncPin,
	SyncRedemption,
	SyncPlayerLimit,
	SyncPermission,
	SyncMessages,
	SyncSound,
	SyncRewards,
	SyncCondition,
}

// NewSyncProperty 新しいSyncPropertyを作成
func NewSyncProperty(s string) (SyncProperty, error) {
	p := SyncProperty(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %s", ErrUnknownSyncProperty, s)
	}
	return p, nil
}

// String 文字列表現を返す
func (p SyncProperty) String() string {
	return string(p)
}

// Valid 有効な同期プロパティかどうかを返す
func (p SyncProperty) Valid() bool {
	for _, known := range AllSyncProperties {
		if p == known {
			return true
		}
	}
	return false
}

// SyncFlags プロパティごとの同期フラグ
type SyncFlags map[SyncProperty]bool

// AllSyncFlags 全プロパティを同期するフラグ
func AllSyncFlags() SyncFlags {
	flags := make(SyncFlags, len(AllSyncProperties))
	for _, p := range AllSyncProperties {
		flags[p] = true
	}
	return flags
}

// Enabled 指定プロパティを同期するかを返す
func (f SyncFlags) Enabled(p SyncProperty) bool {
	return f[p]
}

// Clone コピーを返す
func (f SyncFlags) Clone() SyncFlags {
	out := make(SyncFlags, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
