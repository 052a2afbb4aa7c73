package redemption_code

import (
	"reflect"

	"redeem-server/internal/domain/redeem_template"
)

// ApplyTemplate 同期フラグが有効なプロパティについて、テンプレートの現在値でコードを上書きする。
// 入出力は行わない。値が変化した場合にtrueを返す。
func ApplyTemplate(rc *RedemptionCode, tmpl *redeem_template.RedeemTemplate) bool {
	before := rc.Clone()
	src := tmpl.Properties()

	if tmpl.Syncs(redeem_template.SyncEnabledStatus) {
		rc.props.Enabled = src.Enabled
	}
	if tmpl.Syncs(redeem_template.SyncLockedStatus) {
		rc.sync = tmpl.Locked()
	}
	if tmpl.Syncs(redeem_template.SyncCommands) {
		rc.props.Commands = src.Commands
	}
	if tmpl.Syncs(redeem_template.SyncDuration) {
		rc.props.Duration = src.Duration
	}
	if tmpl.Syncs(redeem_template.SyncCooldown) {
		rc.props.Cooldown = src.Cooldown
	}
	if tmpl.Syncs(redeem_template.SyncPin) {
		rc.props.Pin = src.Pin
	}
	if tmpl.Syncs(redeem_template.SyncRedemption) {
		rc.props.Redemption = src.Redemption
	}
	if tmpl.Syncs(redeem_template.SyncPlayerLimit) {
		rc.props.PlayerLimit = src.PlayerLimit
	}
	if tmpl.Syncs(redeem_template.SyncPermission) {
		rc.props.Permission = tmpl.PermissionFor(rc.code)
	}
	if tmpl.Syncs(redeem_template.SyncMessages) {
		rc.props.Messages = src.Messages
	}
	if tmpl.Syncs(redeem_template.SyncSound) {
		rc.props.Sound = src.Sound
	}
	if tmpl.Syncs(redeem_template.SyncRewards) {
		rc.props.Rewards = src.Rewards
	}
	if tmpl.Syncs(redeem_template.SyncCondition) {
		rc.props.Condition = src.Condition
	}

	after := rc.Clone()
	return after.sync != before.sync || !reflect.DeepEqual(after.props, before.props)
}
