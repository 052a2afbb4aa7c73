package redeem_template

import (
	"fmt"
	"strconv"
	"strings"

	"redeem-server/internal/domain/redeem_property"
)

// CodePlaceholder 権限文字列内でコードに置き換えられるトークン
const CodePlaceholder = "{code}"

// DefaultDigit コード自動生成時の既定桁数
const DefaultDigit = 5

// RedeemTemplate コードの既定値を定義するテンプレートエンティティ
type RedeemTemplate struct {
	name               string
	digit              int
	props              redeem_property.Properties
	permissionRequired bool
	locked             bool // 生成したコードを同期状態にするか
	syncFlags          SyncFlags
}

// NewRedeemTemplate 既定値で新しいテンプレートを作成
func NewRedeemTemplate(name string) (*RedeemTemplate, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidTemplateName
	}

	props := redeem_property.DefaultProperties()
	props.Permission = DefaultPermission(name)

	return &RedeemTemplate{
		name:      name,
		digit:     DefaultDigit,
		props:     props,
		locked:    true,
		syncFlags: AllSyncFlags(),
	}, nil
}

// Restore 永続化された値からテンプレートを復元
func Restore(name string, digit int, props redeem_property.Properties, permissionRequired, locked bool, flags SyncFlags) *RedeemTemplate {
	if flags == nil {
		flags = AllSyncFlags()
	}
	return &RedeemTemplate{
		name:               name,
		digit:              digit,
		props:              props.Clone(),
		permissionRequired: permissionRequired,
		locked:             locked,
		syncFlags:          flags.Clone(),
	}
}

// DefaultPermission テンプレートの既定権限文字列を返す
func DefaultPermission(name string) string {
	return fmt.Sprintf("redeemx.use.%s.%s", strings.ToLower(name), CodePlaceholder)
}

// Name テンプレート名を返す
func (t *RedeemTemplate) Name() string {
	return t.name
}

// Digit 既定の桁数を返す
func (t *RedeemTemplate) Digit() int {
	return t.digit
}

// Properties プロパティのコピーを返す
func (t *RedeemTemplate) Properties() redeem_property.Properties {
	return t.props.Clone()
}

// PermissionRequired 権限が必要かどうかを返す
func (t *RedeemTemplate) PermissionRequired() bool {
	return t.permissionRequired
}

// Locked 生成コードを同期状態にするかを返す
func (t *RedeemTemplate) Locked() bool {
	return t.locked
}

// SyncFlags 同期フラグのコピーを返す
func (t *RedeemTemplate) SyncFlags() SyncFlags {
	return t.syncFlags.Clone()
}

// Syncs 指定プロパティを同期するかを返す
func (t *RedeemTemplate) Syncs(p SyncProperty) bool {
	return t.syncFlags.Enabled(p)
}

// PermissionFor コードに適用する権限文字列を返す。権限不要の場合は空文字。
func (t *RedeemTemplate) PermissionFor(code string) string {
	if !t.permissionRequired {
		return ""
	}
	return t.ResolvePermission(code)
}

// ResolvePermission 権限文字列のプレースホルダーをコードで置き換える
func (t *RedeemTemplate) ResolvePermission(code string) string {
	return strings.ReplaceAll(t.props.Permission, CodePlaceholder, strings.ToLower(code))
}

// Mutate プロパティを変更
func (t *RedeemTemplate) Mutate(fn func(p *redeem_property.Properties)) {
	fn(&t.props)
}

// SetDigit 既定の桁数を設定
func (t *RedeemTemplate) SetDigit(digit int) {
	t.digit = digit
}

// SetLocked 生成コードの同期状態を設定
func (t *RedeemTemplate) SetLocked(locked bool) {
	t.locked = locked
}

// ToggleRequiredPermission 権限要否を切り替える
func (t *RedeemTemplate) ToggleRequiredPermission() bool {
	t.permissionRequired = !t.permissionRequired
	return t.permissionRequired
}

// ToggleSync 指定プロパティの同期フラグを切り替える
func (t *RedeemTemplate) ToggleSync(p SyncProperty) (bool, error) {
	if !p.Valid() {
		return false, fmt.Errorf("%w: %s", ErrUnknownSyncProperty, p)
	}
	t.syncFlags[p] = !t.syncFlags[p]
	return t.syncFlags[p], nil
}

// Clone ディープコピーを返す
func (t *RedeemTemplate) Clone() *RedeemTemplate {
	return Restore(t.name, t.digit, t.props, t.permissionRequired, t.locked, t.syncFlags)
}

// Value 表示用にプロパティの値を文字列で返す
func (t *RedeemTemplate) Value(property string) (string, error) {
	p := t.props
	switch strings.ToLower(strings.TrimSpace(property)) {
	case "name", "template":
		return t.name, nil
	case "digit":
		return strconv.Itoa(t.digit), nil
	case "enabled":
		return strconv.FormatBool(p.Enabled), nil
	case "locked", "sync":
		return strconv.FormatBool(t.locked), nil
	case "commands":
		return strings.Join(p.Commands, "\n"), nil
	case "duration":
		return p.Duration.String(), nil
	case "cooldown":
		return p.Cooldown.String(), nil
	case "pin":
		return strconv.Itoa(int(p.Pin)), nil
	case "redemption":
		return strconv.Itoa(p.Redemption), nil
	case "player_limit":
		return strconv.Itoa(p.PlayerLimit), nil
	case "permission":
		return p.Permission, nil
	case "permission_required":
		return strconv.FormatBool(t.permissionRequired), nil
	case "messages":
		return strings.Join(p.Messages.Text, "\n"), nil
	case "actionbar":
		return p.Messages.ActionBar, nil
	case "title":
		return p.Messages.Title.Title, nil
	case "subtitle":
		return p.Messages.Title.Subtitle, nil
	case "sound":
		return p.Sound.Name, nil
	case "rewards":
		return strconv.Itoa(len(p.Rewards)), nil
	case "condition":
		return p.Condition, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownSyncProperty, property)
	}
}
