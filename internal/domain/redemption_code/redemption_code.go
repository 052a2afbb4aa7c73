package redemption_code

import (
	"strings"
	"time"

	"redeem-server/internal/domain/duration"
	"redeem-server/internal/domain/redeem_property"
	"redeem-server/internal/domain/redeem_template"

	"github.com/google/uuid"
)

// DefaultServer コードを作成したサーバー名の既定値
const DefaultServer = "Default"

// RedemptionCode 引き換えコードエンティティ
type RedemptionCode struct {
	code         string
	template     string // 空文字 = テンプレートなし
	sync         bool
	props        redeem_property.Properties
	usedBy       map[uuid.UUID]int
	lastRedeemed map[uuid.UUID]time.Time
	target       []uuid.UUID // 空 = 制限なし
	validFrom    time.Time
	ipLimit      map[uuid.UUID]string
	modified     time.Time
	server       string
}

// State 永続化層から復元するための値
type State struct {
	Code         string
	Template     string
	Sync         bool
	Properties   redeem_property.Properties
	UsedBy       map[uuid.UUID]int
	LastRedeemed map[uuid.UUID]time.Time
	Target       []uuid.UUID
	ValidFrom    time.Time
	IPLimit      map[uuid.UUID]string
	Modified     time.Time
	Server       string
}

// NormalizeCode コード文字列を正規化（大文字化）
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NewRedemptionCode テンプレートに紐付かない新しいRedemptionCodeエンティティを作成
func NewRedemptionCode(code string, now time.Time) (*RedemptionCode, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrInvalidCode
	}

	return &RedemptionCode{
		code:         code,
		props:        redeem_property.DefaultProperties(),
		usedBy:       map[uuid.UUID]int{},
		lastRedeemed: map[uuid.UUID]time.Time{},
		target:       []uuid.UUID{},
		validFrom:    now,
		ipLimit:      map[uuid.UUID]string{},
		modified:     now,
		server:       DefaultServer,
	}, nil
}

// FromTemplate テンプレートのスナップショットからコードを作成
func FromTemplate(code string, tmpl *redeem_template.RedeemTemplate, now time.Time) (*RedemptionCode, error) {
	rc, err := NewRedemptionCode(code, now)
	if err != nil {
		return nil, err
	}

	props := tmpl.Properties()
	props.Enabled = true
	props.Cooldown = duration.Disabled
	props.Permission = tmpl.PermissionFor(rc.code)

	rc.template = tmpl.Name()
	rc.sync = tmpl.Locked()
	rc.props = props
	return rc, nil
}

// Restore 永続化された状態からコードを復元
func Restore(s State) *RedemptionCode {
	rc := &RedemptionCode{
		code:         s.Code,
		template:     s.Template,
		sync:         s.Sync,
		props:        s.Properties.Clone(),
		usedBy:       make(map[uuid.UUID]int, len(s.UsedBy)),
		lastRedeemed: make(map[uuid.UUID]time.Time, len(s.LastRedeemed)),
		target:       append([]uuid.UUID{}, s.Target...),
		validFrom:    s.ValidFrom,
		ipLimit:      make(map[uuid.UUID]string, len(s.IPLimit)),
		modified:     s.Modified,
		server:       s.Server,
	}
	for k, v := range s.UsedBy {
		rc.usedBy[k] = v
	}
	for k, v := range s.LastRedeemed {
		rc.lastRedeemed[k] = v
	}
	for k, v := range s.IPLimit {
		rc.ipLimit[k] = v
	}
	if rc.server == "" {
		rc.server = DefaultServer
	}
	return rc
}

// State 永続化用の状態を返す
func (rc *RedemptionCode) State() State {
	c := rc.Clone()
	return State{
		Code:         c.code,
		Template:     c.template,
		Sync:         c.sync,
		Properties:   c.props,
		UsedBy:       c.usedBy,
		LastRedeemed: c.lastRedeemed,
		Target:       c.target,
		ValidFrom:    c.validFrom,
		IPLimit:      c.ipLimit,
		Modified:     c.modified,
		Server:       c.server,
	}
}

// Clone ディープコピーを返す
func (rc *RedemptionCode) Clone() *RedemptionCode {
	return Restore(State{
		Code:         rc.code,
		Template:     rc.template,
		Sync:         rc.sync,
		Properties:   rc.props,
		UsedBy:       rc.usedBy,
		LastRedeemed: rc.lastRedeemed,
		Target:       rc.target,
		ValidFrom:    rc.validFrom,
		IPLimit:      rc.ipLimit,
		Modified:     rc.modified,
		Server:       rc.server,
	})
}

// Code コードを返す
func (rc *RedemptionCode) Code() string {
	return rc.code
}

// Name コードを返す
func (rc *RedemptionCode) Name() string {
	return rc.code
}

// Template テンプレート名を返す
func (rc *RedemptionCode) Template() string {
	return rc.template
}

// Sync 同期フラグを返す
func (rc *RedemptionCode) Sync() bool {
	return rc.sync
}

// Locked テンプレートと同期中かどうかを返す
func (rc *RedemptionCode) Locked() bool {
	return rc.sync && strings.TrimSpace(rc.template) != ""
}

// Properties プロパティのコピーを返す
func (rc *RedemptionCode) Properties() redeem_property.Properties {
	return rc.props.Clone()
}

// Enabled 有効フラグを返す
func (rc *RedemptionCode) Enabled() bool {
	return rc.props.Enabled
}

// Duration 有効期間を返す
func (rc *RedemptionCode) Duration() duration.Duration {
	return rc.props.Duration
}

// Cooldown クールダウンを返す
func (rc *RedemptionCode) Cooldown() duration.Duration {
	return rc.props.Cooldown
}

// Permission 必要な権限を返す
func (rc *RedemptionCode) Permission() string {
	return rc.props.Permission
}

// Pin PINを返す
func (rc *RedemptionCode) Pin() redeem_property.Pin {
	return rc.props.Pin
}

// Redemption 総引き換え上限を返す
func (rc *RedemptionCode) Redemption() int {
	return rc.props.Redemption
}

// PlayerLimit プレイヤーごとの引き換え上限を返す
func (rc *RedemptionCode) PlayerLimit() int {
	return rc.props.PlayerLimit
}

// Condition 条件式を返す
func (rc *RedemptionCode) Condition() string {
	return rc.props.Condition
}

// UsedBy プレイヤーごとの引き換え回数のコピーを返す
func (rc *RedemptionCode) UsedBy() map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(rc.usedBy))
	for k, v := range rc.usedBy {
		out[k] = v
	}
	return out
}

// TotalUses 総引き換え回数を返す
func (rc *RedemptionCode) TotalUses() int {
	total := 0
	for _, n := range rc.usedBy {
		total += n
	}
	return total
}

// PlayerUses プレイヤーの引き換え回数を返す
func (rc *RedemptionCode) PlayerUses(player uuid.UUID) int {
	return rc.usedBy[player]
}

// LastRedeemed プレイヤーの最終引き換え日時を返す
func (rc *RedemptionCode) LastRedeemed(player uuid.UUID) (time.Time, bool) {
	t, ok := rc.lastRedeemed[player]
	return t, ok
}

// Targets 対象プレイヤーのコピーを返す
func (rc *RedemptionCode) Targets() []uuid.UUID {
	return append([]uuid.UUID{}, rc.target...)
}

// IsTargeted プレイヤーが引き換え対象かどうかを返す
func (rc *RedemptionCode) IsTargeted(player uuid.UUID) bool {
	if len(rc.target) == 0 {
		return true
	}
	for _, t := range rc.target {
		if t == player {
			return true
		}
	}
	return false
}

// ValidFrom 有効期間の起点を返す
func (rc *RedemptionCode) ValidFrom() time.Time {
	return rc.validFrom
}

// IPLimit プレイヤーごとの引き換え元アドレスのコピーを返す
func (rc *RedemptionCode) IPLimit() map[uuid.UUID]string {
	out := make(map[uuid.UUID]string, len(rc.ipLimit))
	for k, v := range rc.ipLimit {
		out[k] = v
	}
	return out
}

// Modified 最終更新日時を返す
func (rc *RedemptionCode) Modified() time.Time {
	return rc.modified
}

// Server 作成したサーバー名を返す
func (rc *RedemptionCode) Server() string {
	return rc.server
}

// ExpiresAt 有効期限を返す。期間が無効値の場合はfalse。
func (rc *RedemptionCode) ExpiresAt() (time.Time, bool) {
	return duration.ExpiresAt(rc.validFrom, rc.props.Duration)
}

// IsExpired 期限切れかどうかを返す
func (rc *RedemptionCode) IsExpired(now time.Time) bool {
	return duration.IsExpired(rc.validFrom, rc.props.Duration, now)
}

// OnCooldown プレイヤーがクールダウン中かどうかを返す
func (rc *RedemptionCode) OnCooldown(player uuid.UUID, now time.Time) bool {
	last, ok := rc.lastRedeemed[player]
	if !ok {
		return false
	}
	return duration.OnCooldown(rc.props.Cooldown, last, now)
}

// Status 現在のステータスを算出
func (rc *RedemptionCode) Status(now time.Time) CodeStatus {
	return StatusAt(rc, now)
}

// Mutate プロパティを変更
func (rc *RedemptionCode) Mutate(fn func(p *redeem_property.Properties)) {
	fn(&rc.props)
}

// SetTemplate テンプレート名を設定
func (rc *RedemptionCode) SetTemplate(template string) {
	rc.template = strings.TrimSpace(template)
}

// SetSync 同期フラグを設定
func (rc *RedemptionCode) SetSync(sync bool) {
	rc.sync = sync
}

// SetServer 作成サーバー名を設定
func (rc *RedemptionCode) SetServer(server string) {
	if server != "" {
		rc.server = server
	}
}

// SetValidFrom 有効期間の起点を設定
func (rc *RedemptionCode) SetValidFrom(t time.Time) {
	rc.validFrom = t
}

// SetTargets 対象プレイヤーを置き換える
func (rc *RedemptionCode) SetTargets(targets []uuid.UUID) {
	rc.target = dedupe(targets)
}

// AddTargets 対象プレイヤーを追加
func (rc *RedemptionCode) AddTargets(targets []uuid.UUID) {
	rc.target = dedupe(append(append([]uuid.UUID{}, rc.target...), targets...))
}

// RemoveTargets 対象プレイヤーを削除
func (rc *RedemptionCode) RemoveTargets(targets []uuid.UUID) {
	remove := make(map[uuid.UUID]struct{}, len(targets))
	for _, t := range targets {
		remove[t] = struct{}{}
	}
	kept := make([]uuid.UUID, 0, len(rc.target))
	for _, t := range rc.target {
		if _, ok := remove[t]; !ok {
			kept = append(kept, t)
		}
	}
	rc.target = kept
}

// RecordRedemption 引き換えを記録（回数加算、最終引き換え日時、アドレス）
func (rc *RedemptionCode) RecordRedemption(player uuid.UUID, now time.Time, address string) {
	rc.usedBy[player]++
	rc.lastRedeemed[player] = now
	if address != "" {
		rc.ipLimit[player] = address
	}
}

// Touch 最終更新日時を更新
func (rc *RedemptionCode) Touch(now time.Time) {
	rc.modified = now
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
