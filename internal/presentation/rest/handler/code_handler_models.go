package handler

import (
	"time"

	"redeem-server/internal/domain/duration"
	"redeem-server/internal/domain/redeem_property"
	"redeem-server/internal/domain/redeem_template"
	"redeem-server/internal/domain/redemption_code"
)

// timeLayout レスポンスの日時形式
const timeLayout = time.RFC3339

// IndexedValue 一覧の指定位置の値
type IndexedValue struct {
	Index int    `json:"index" example:"0"`
	Value string `json:"value" example:"give {player} diamond 1"`
}

// SoundPatch サウンドの変更
type SoundPatch struct {
	Name   string  `json:"name" example:"ENTITY_PLAYER_LEVELUP"`
	Volume float32 `json:"volume" example:"1"`
	Pitch  float32 `json:"pitch" example:"1"`
}

// PropertiesPatch プロパティの部分更新。指定した項目のみ変更する。
// @Description プロパティの部分更新
type PropertiesPatch struct {
	Enabled          *bool         `json:"enabled,omitempty"`
	Permission       *string       `json:"permission,omitempty" example:"redeemx.use.vip.summer"`
	Pin              *int          `json:"pin,omitempty" example:"1234"`
	Duration         *string       `json:"duration,omitempty" example:"7d"`
	AddDuration      *string       `json:"add_duration,omitempty" example:"1d"`
	SubtractDuration *string       `json:"subtract_duration,omitempty" example:"12h"`
	Cooldown         *string       `json:"cooldown,omitempty" example:"1h"`
	Redemption       *int          `json:"redemption,omitempty" example:"100"`
	PlayerLimit      *int          `json:"player_limit,omitempty" example:"1"`
	Condition        *string       `json:"condition,omitempty" example:"player_uses == 0"`
	AddCommands      []string      `json:"add_commands,omitempty"`
	SetCommand       *IndexedValue `json:"set_command,omitempty"`
	RemoveCommand    *int          `json:"remove_command,omitempty"`
	AddMessages      []string      `json:"add_messages,omitempty"`
	SetMessage       *IndexedValue `json:"set_message,omitempty"`
	RemoveMessage    *int          `json:"remove_message,omitempty"`
	ActionBar        *string       `json:"actionbar,omitempty"`
	Title            *string       `json:"title,omitempty"`
	Subtitle         *string       `json:"subtitle,omitempty"`
	Sound            *SoundPatch   `json:"sound,omitempty"`
	Rewards          *[]string     `json:"rewards,omitempty"`
}

// Mutations 条件式以外の変更を返す。条件式は検証が必要なため別に扱う。
func (p *PropertiesPatch) Mutations() []redeem_property.Mutation {
	var ms []redeem_property.Mutation
	if p.Enabled != nil {
		ms = append(ms, redeem_property.SetEnabled(*p.Enabled))
	}
	if p.Permission != nil {
		ms = append(ms, redeem_property.SetPermission(*p.Permission))
	}
	if p.Pin != nil {
		ms = append(ms, redeem_property.SetPin(*p.Pin))
	}
	if p.Duration != nil {
		ms = append(ms, redeem_property.SetDuration(*p.Duration))
	}
	if p.AddDuration != nil {
		ms = append(ms, redeem_property.AdjustDuration(*p.AddDuration, true))
	}
	if p.SubtractDuration != nil {
		ms = append(ms, redeem_property.AdjustDuration(*p.SubtractDuration, false))
	}
	if p.Cooldown != nil {
		ms = append(ms, redeem_property.SetCooldown(*p.Cooldown))
	}
	if p.Redemption != nil {
		ms = append(ms, redeem_property.SetRedemption(*p.Redemption))
	}
	if p.PlayerLimit != nil {
		ms = append(ms, redeem_property.SetPlayerLimit(*p.PlayerLimit))
	}
	for _, cmd := range p.AddCommands {
		ms = append(ms, redeem_property.AddCommand(cmd))
	}
	if p.SetCommand != nil {
		ms = append(ms, redeem_property.SetCommand(p.SetCommand.Index, p.SetCommand.Value))
	}
	if p.RemoveCommand != nil {
		ms = append(ms, redeem_property.RemoveCommand(*p.RemoveCommand))
	}
	for _, msg := range p.AddMessages {
		ms = append(ms, redeem_property.AddMessage(msg))
	}
	if p.SetMessage != nil {
		ms = append(ms, redeem_property.SetMessage(p.SetMessage.Index, p.SetMessage.Value))
	}
	if p.RemoveMessage != nil {
		ms = append(ms, redeem_property.RemoveMessage(*p.RemoveMessage))
	}
	if p.ActionBar != nil {
		ms = append(ms, redeem_property.SetActionBar(*p.ActionBar))
	}
	if p.Title != nil {
		ms = append(ms, redeem_property.SetTitle(*p.Title))
	}
	if p.Subtitle != nil {
		ms = append(ms, redeem_property.SetSubtitle(*p.Subtitle))
	}
	if p.Sound != nil {
		ms = append(ms, redeem_property.SetSound(p.Sound.Name, p.Sound.Volume, p.Sound.Pitch))
	}
	if p.Rewards != nil {
		ms = append(ms, redeem_property.SetRewards(*p.Rewards))
	}
	return ms
}

// Empty 変更が一つもないかどうか
func (p *PropertiesPatch) Empty() bool {
	return len(p.Mutations()) == 0 && p.Condition == nil
}

// PropertiesView プロパティの表示形式
type PropertiesView struct {
	Enabled     bool                     `json:"enabled"`
	Commands    []string                 `json:"commands"`
	Duration    string                   `json:"duration" example:"7d"`
	Cooldown    string                   `json:"cooldown" example:"0s"`
	Permission  string                   `json:"permission"`
	Pin         int                      `json:"pin" example:"-1"`
	Redemption  int                      `json:"redemption" example:"1"`
	PlayerLimit int                      `json:"player_limit" example:"1"`
	Messages    redeem_property.Messages `json:"messages"`
	Sound       redeem_property.Sound    `json:"sound"`
	Rewards     []string                 `json:"rewards"`
	Condition   string                   `json:"condition"`
}

func newPropertiesView(p redeem_property.Properties) PropertiesView {
	return PropertiesView{
		Enabled:     p.Enabled,
		Commands:    p.Commands,
		Duration:    p.Duration.String(),
		Cooldown:    p.Cooldown.String(),
		Permission:  p.Permission,
		Pin:         int(p.Pin),
		Redemption:  p.Redemption,
		PlayerLimit: p.PlayerLimit,
		Messages:    p.Messages,
		Sound:       p.Sound,
		Rewards:     p.Rewards,
		Condition:   p.Condition,
	}
}

// CodeView 引き換えコードの表示形式
// @Description 引き換えコード
type CodeView struct {
	Code       string         `json:"code" example:"SUMMER24"`
	Template   string         `json:"template,omitempty" example:"summer"`
	Locked     bool           `json:"locked"`
	Status     string         `json:"status" example:"active" enums:"active,expired,disabled"`
	Properties PropertiesView `json:"properties"`
	Targets    []string       `json:"targets"`
	ValidFrom  string         `json:"valid_from" example:"2026-01-01T00:00:00Z"`
	ExpiresAt  string         `json:"expires_at,omitempty" example:"2026-01-08T00:00:00Z"`
	Remaining  string         `json:"remaining" example:"6 days 23 hours"`
	TotalUses  int            `json:"total_uses" example:"12"`
	Modified   string         `json:"modified" example:"2026-01-01T00:00:00Z"`
	Server     string         `json:"server" example:"Default"`
}

func newCodeView(rc *redemption_code.RedemptionCode, now time.Time) CodeView {
	targets := make([]string, 0, len(rc.Targets()))
	for _, id := range rc.Targets() {
		targets = append(targets, id.String())
	}
	view := CodeView{
		Code:       rc.Code(),
		Template:   rc.Template(),
		Locked:     rc.Locked(),
		Status:     rc.Status(now).String(),
		Properties: newPropertiesView(rc.Properties()),
		Targets:    targets,
		ValidFrom:  rc.ValidFrom().Format(timeLayout),
		Remaining:  duration.Remaining(rc.ValidFrom(), rc.Duration(), now),
		TotalUses:  rc.TotalUses(),
		Modified:   rc.Modified().Format(timeLayout),
		Server:     rc.Server(),
	}
	if at, ok := rc.ExpiresAt(); ok {
		view.ExpiresAt = at.Format(timeLayout)
	}
	return view
}

func newCodeViews(codes []*redemption_code.RedemptionCode, now time.Time) []CodeView {
	views := make([]CodeView, 0, len(codes))
	for _, rc := range codes {
		views = append(views, newCodeView(rc, now))
	}
	return views
}

// TemplateView テンプレートの表示形式
// @Description テンプレート
type TemplateView struct {
	Name               string          `json:"name" example:"summer"`
	Digit              int             `json:"digit" example:"5"`
	PermissionRequired bool            `json:"permission_required"`
	Locked             bool            `json:"locked"`
	SyncFlags          map[string]bool `json:"sync_flags"`
	Properties         PropertiesView  `json:"properties"`
}

func newTemplateView(t *redeem_template.RedeemTemplate) TemplateView {
	flags := make(map[string]bool, len(redeem_template.AllSyncProperties))
	for _, p := range redeem_template.AllSyncProperties {
		flags[p.String()] = t.Syncs(p)
	}
	return TemplateView{
		Name:               t.Name(),
		Digit:              t.Digit(),
		PermissionRequired: t.PermissionRequired(),
		Locked:             t.Locked(),
		SyncFlags:          flags,
		Properties:         newPropertiesView(t.Properties()),
	}
}

// CreateCodesRequest コード作成リクエスト。codesを省略した場合はランダムに生成する。
// @Description コード作成リクエスト
type CreateCodesRequest struct {
	Codes    []string `json:"codes,omitempty" example:"SUMMER24"`
	Template string   `json:"template,omitempty" example:"summer"`
	Digit    int      `json:"digit,omitempty" example:"8"`
	Amount   int      `json:"amount,omitempty" example:"10"`
}

// CodesResponse コード一覧レスポンス
// @Description コード一覧レスポンス
type CodesResponse struct {
	Codes  []CodeView `json:"codes"`
	Total  int        `json:"total" example:"100"`
	Limit  int        `json:"limit" example:"50"`
	Offset int        `json:"offset" example:"0"`
}

// LookupResponse コード取得レスポンス。見つからない場合は候補を返す。
// @Description コード取得レスポンス
type LookupResponse struct {
	Code        *CodeView `json:"code,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

// SetTemplateRequest テンプレート付け替えリクエスト
type SetTemplateRequest struct {
	Template string `json:"template" example:"summer"`
}

// TargetsRequest 対象プレイヤー変更リクエスト
type TargetsRequest struct {
	Mode    string   `json:"mode" example:"add" enums:"set,add,remove"`
	Players []string `json:"players"`
}

// DeleteCodesRequest 一括削除リクエスト
type DeleteCodesRequest struct {
	Codes []string `json:"codes"`
}

// CountResponse 件数レスポンス
type CountResponse struct {
	Count int64 `json:"count" example:"3"`
}

// ToggleResponse 反転後の値と同期結果
type ToggleResponse struct {
	Value bool       `json:"value"`
	Sync  SyncReport `json:"sync"`
}

// SyncReport 同期結果
type SyncReport struct {
	Updated int `json:"updated" example:"10"`
	Failed  int `json:"failed" example:"0"`
	Skipped int `json:"skipped" example:"2"`
}
