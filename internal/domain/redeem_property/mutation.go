package redeem_property

import (
	"errors"
	"fmt"
	"strings"

	"redeem-server/internal/domain/duration"
)

// ErrNegativeLimit 上限値が負のエラー
var ErrNegativeLimit = errors.New("limit must not be negative")

// Mutation プロパティへの変更。検証に失敗した場合は何も変更しない。
type Mutation func(p *Properties) error

// Apply 変更をコピーに適用し、全て成功した場合のみ書き戻す
func Apply(h Holder, mutations ...Mutation) error {
	props := h.Properties()
	for _, m := range mutations {
		if err := m(&props); err != nil {
			return err
		}
	}
	h.Mutate(func(p *Properties) { *p = props })
	return nil
}

// SetEnabled 有効フラグを設定
func SetEnabled(enabled bool) Mutation {
	return func(p *Properties) error {
		p.Enabled = enabled
		return nil
	}
}

// ToggleEnabled 有効フラグを反転
func ToggleEnabled() Mutation {
	return func(p *Properties) error {
		p.Enabled = !p.Enabled
		return nil
	}
}

// SetPermission 権限文字列を設定
func SetPermission(permission string) Mutation {
	return func(p *Properties) error {
		p.Permission = strings.TrimSpace(permission)
		return nil
	}
}

// SetPin PINを設定。0以下は無効化。
func SetPin(pin int) Mutation {
	return func(p *Properties) error {
		if pin <= 0 {
			p.Pin = PinDisabled
			return nil
		}
		p.Pin = Pin(pin)
		return nil
	}
}

// SetDuration 有効期間を設定
func SetDuration(s string) Mutation {
	return func(p *Properties) error {
		d, err := duration.New(s)
		if err != nil {
			return err
		}
		p.Duration = d
		return nil
	}
}

// AdjustDuration 有効期間を加算または減算
func AdjustDuration(delta string, adding bool) Mutation {
	return func(p *Properties) error {
		d, err := duration.New(delta)
		if err != nil {
			return err
		}
		p.Duration = duration.Adjust(p.Duration, d, adding)
		return nil
	}
}

// SetCooldown クールダウンを設定
func SetCooldown(s string) Mutation {
	return func(p *Properties) error {
		d, err := duration.New(s)
		if err != nil {
			return err
		}
		p.Cooldown = d
		return nil
	}
}

// SetRedemption 総引き換え上限を設定
func SetRedemption(limit int) Mutation {
	return func(p *Properties) error {
		if limit < 0 {
			return fmt.Errorf("%w: redemption %d", ErrNegativeLimit, limit)
		}
		p.Redemption = limit
		return nil
	}
}

// SetPlayerLimit プレイヤーごとの引き換え上限を設定
func SetPlayerLimit(limit int) Mutation {
	return func(p *Properties) error {
		if limit < 0 {
			return fmt.Errorf("%w: player limit %d", ErrNegativeLimit, limit)
		}
		p.PlayerLimit = limit
		return nil
	}
}

// SetCondition 条件式を設定。空文字で解除。
func SetCondition(condition string) Mutation {
	return func(p *Properties) error {
		p.Condition = strings.TrimSpace(condition)
		return nil
	}
}

// AddCommand コマンドを末尾に追加
func AddCommand(command string) Mutation {
	return func(p *Properties) error {
		p.Commands = Append(p.Commands, command)
		return nil
	}
}

// SetCommand 指定位置のコマンドを置き換え
func SetCommand(index int, command string) Mutation {
	return func(p *Properties) (err error) {
		p.Commands, err = setOrKeep(p.Commands, index, command)
		return err
	}
}

// RemoveCommand 指定位置のコマンドを削除
func RemoveCommand(index int) Mutation {
	return func(p *Properties) (err error) {
		p.Commands, err = removeOrKeep(p.Commands, index)
		return err
	}
}

// AddMessage メッセージを末尾に追加
func AddMessage(message string) Mutation {
	return func(p *Properties) error {
		p.Messages.Text = Append(p.Messages.Text, message)
		return nil
	}
}

// SetMessage 指定位置のメッセージを置き換え
func SetMessage(index int, message string) Mutation {
	return func(p *Properties) (err error) {
		p.Messages.Text, err = setOrKeep(p.Messages.Text, index, message)
		return err
	}
}

// RemoveMessage 指定位置のメッセージを削除
func RemoveMessage(index int) Mutation {
	return func(p *Properties) (err error) {
		p.Messages.Text, err = removeOrKeep(p.Messages.Text, index)
		return err
	}
}

// SetActionBar アクションバーを設定
func SetActionBar(text string) Mutation {
	return func(p *Properties) error {
		p.Messages.ActionBar = text
		return nil
	}
}

// SetTitle タイトルを設定
func SetTitle(title string) Mutation {
	return func(p *Properties) error {
		p.Messages.Title.Title = title
		return nil
	}
}

// SetSubtitle サブタイトルを設定
func SetSubtitle(subtitle string) Mutation {
	return func(p *Properties) error {
		p.Messages.Title.Subtitle = subtitle
		return nil
	}
}

// SetSound サウンドを設定。名前が空の場合は再生しない。
func SetSound(name string, volume, pitch float32) Mutation {
	return func(p *Properties) error {
		p.Sound = Sound{Name: strings.TrimSpace(name), Volume: volume, Pitch: pitch}
		return nil
	}
}

// SetRewards 報酬アイテムを置き換え
func SetRewards(rewards []string) Mutation {
	return func(p *Properties) error {
		p.Rewards = cloneStrings(rewards)
		return nil
	}
}

func setOrKeep(list []string, index int, value string) ([]string, error) {
	out, err := Set(list, index, value)
	if err != nil {
		return list, fmt.Errorf("%w: %d", err, index)
	}
	return out, nil
}

func removeOrKeep(list []string, index int) ([]string, error) {
	out, err := Remove(list, index)
	if err != nil {
		return list, fmt.Errorf("%w: %d", err, index)
	}
	return out, nil
}
