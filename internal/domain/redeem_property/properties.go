package redeem_property

import (
	"fmt"

	"redeem-server/internal/domain/duration"
)

// Pin PINコード。0以下は無効。
type Pin int

// PinDisabled PIN無効を表す値
const PinDisabled Pin = -1

// Enabled PINが設定されているかどうかを返す
func (p Pin) Enabled() bool {
	return p > 0
}

// Matches 提示されたPINが一致するかを返す
func (p Pin) Matches(presented *int) bool {
	if !p.Enabled() {
		return true
	}
	return presented != nil && *presented == int(p)
}

// Title タイトル表示
type Title struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	FadeIn   int64  `json:"fade_in"`
	Stay     int64  `json:"stay"`
	FadeOut  int64  `json:"fade_out"`
}

// DefaultTitle 既定のタイトル表示（ティック単位）
func DefaultTitle() Title {
	return Title{FadeIn: 20, Stay: 70, FadeOut: 20}
}

// Messages 引き換え時に表示するメッセージ
type Messages struct {
	Text      []string `json:"text"`
	ActionBar string   `json:"actionbar"`
	Title     Title    `json:"title"`
}

// Sound 引き換え時に再生するサウンド。Nameが空の場合は再生しない。
type Sound struct {
	Name   string  `json:"sound,omitempty"`
	Volume float32 `json:"volume"`
	Pitch  float32 `json:"pitch"`
}

// DefaultSound 既定のサウンド設定
func DefaultSound() Sound {
	return Sound{Volume: 1, Pitch: 1}
}

// Properties コードとテンプレートが共有するプロパティ
type Properties struct {
	Enabled     bool
	Commands    []string
	Duration    duration.Duration
	Cooldown    duration.Duration
	Permission  string
	Pin         Pin
	Redemption  int // 0 = 無制限
	PlayerLimit int // 0 = 無制限
	Messages    Messages
	Sound       Sound
	Rewards     []string // シリアライズ済みアイテム
	Condition   string
}

// DefaultProperties 既定のプロパティを返す
func DefaultProperties() Properties {
	return Properties{
		Enabled:     true,
		Commands:    []string{},
		Duration:    duration.Disabled,
		Cooldown:    duration.Disabled,
		Pin:         PinDisabled,
		Redemption:  1,
		PlayerLimit: 1,
		Messages: Messages{
			Text:  []string{},
			Title: DefaultTitle(),
		},
		Sound:   DefaultSound(),
		Rewards: []string{},
	}
}

// Clone ディープコピーを返す
func (p Properties) Clone() Properties {
	out := p
	out.Commands = cloneStrings(p.Commands)
	out.Rewards = cloneStrings(p.Rewards)
	out.Messages.Text = cloneStrings(p.Messages.Text)
	return out
}

// Validate 管理操作で受け付ける値かどうかを厳密に検証
func (p Properties) Validate() error {
	if !duration.IsValid(p.Duration.String()) {
		return fmt.Errorf("%w: duration %q", duration.ErrInvalidDuration, p.Duration)
	}
	if !duration.IsValid(p.Cooldown.String()) {
		return fmt.Errorf("%w: cooldown %q", duration.ErrInvalidDuration, p.Cooldown)
	}
	if p.Redemption < 0 || p.PlayerLimit < 0 {
		return ErrNegativeLimit
	}
	return nil
}

// Holder プロパティを持つエンティティ（コード・テンプレート）
type Holder interface {
	Name() string
	Properties() Properties
	Mutate(fn func(p *Properties))
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
