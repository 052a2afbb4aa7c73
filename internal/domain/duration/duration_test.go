package duration

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "正常系: 無効値", input: "0s", want: true},
		{name: "正常系: 複合", input: "1d12h", want: true},
		{name: "正常系: 月と分", input: "2mo30m", want: true},
		{name: "正常系: 週", input: "3w", want: true},
		{name: "正常系: 年", input: "1y", want: true},
		{name: "異常系: 空文字", input: "", want: false},
		{name: "異常系: 空白", input: "  ", want: false},
		{name: "異常系: 未知の単位", input: "5x", want: false},
		{name: "異常系: 単位なし", input: "10", want: false},
		{name: "異常系: 数値なし", input: "d", want: false},
		{name: "異常系: 途中にゴミ", input: "5xd10s", want: false},
		{name: "異常系: 負の値", input: "-5s", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValid(tt.input))
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{name: "正常系: 1日12時間", input: "1d12h", want: 129600},
		{name: "正常系: 無効値", input: "0s", want: 0},
		{name: "正常系: 月は分より優先", input: "1mo", want: 2592000},
		{name: "正常系: 分", input: "5m", want: 300},
		{name: "正常系: 週", input: "1w", want: 604800},
		{name: "正常系: 年", input: "1y", want: 31536000},
		{name: "正常系: 不正な部分は無視", input: "5xd10s", want: 10},
		{name: "正常系: トークンなし", input: "abc", want: 0},
		{name: "正常系: 同じ単位の合算", input: "1h1h", want: 7200},
		{name: "正常系: 300年", input: "300y", want: 300 * secondsPerYear},
		{name: "正常系: 1000年", input: "1000y", want: 1000 * secondsPerYear},
		{name: "正常系: 乗算があふれる値は上限で止める", input: "999999999999999999y", want: MaxSeconds},
		{name: "正常系: 桁あふれする数値は上限で止める", input: "99999999999999999999s", want: MaxSeconds},
		{name: "正常系: 合算があふれる値は上限で止める", input: "999999999999y999999999999y", want: MaxSeconds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.input))
		})
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		name    string
		seconds int64
		want    Duration
	}{
		{name: "正常系: 0秒", seconds: 0, want: Disabled},
		{name: "正常系: 負の値", seconds: -10, want: Disabled},
		{name: "正常系: 1日12時間", seconds: 129600, want: "1d12h"},
		{name: "正常系: 全単位", seconds: secondsPerYear + secondsPerMonth + secondsPerDay + secondsPerHour + secondsPerMinute + 1, want: "1y1mo1d1h1m1s"},
		{name: "正常系: 週は日に展開", seconds: secondsPerWeek, want: "7d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatSeconds(tt.seconds))
		})
	}
}

func TestFormatSeconds_RoundTrip(t *testing.T) {
	inputs := []string{"0s", "1s", "59s", "61m", "1d12h", "25h", "13mo", "2y3mo4d5h6m7s", "90d", "3w2d"}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			seconds := Parse(in)
			formatted := FormatSeconds(seconds)
			assert.True(t, formatted.Valid())
			assert.Equal(t, seconds, formatted.Seconds())
		})
	}
}

func TestNew(t *testing.T) {
	d, err := New(" 1d ")
	require.NoError(t, err)
	assert.Equal(t, Duration("1d"), d)

	_, err = New("5x")
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestAdjust(t *testing.T) {
	tests := []struct {
		name     string
		existing Duration
		delta    Duration
		adding   bool
		want     Duration
	}{
		{name: "正常系: 加算", existing: "1d", delta: "12h", adding: true, want: "1d12h"},
		{name: "正常系: 減算", existing: "1d", delta: "12h", adding: false, want: "12h"},
		{name: "正常系: 0未満は0sに丸める", existing: "10s", delta: "15s", adding: false, want: Disabled},
		{name: "正常系: ちょうど0", existing: "10s", delta: "10s", adding: false, want: Disabled},
		{name: "正常系: 無効値への加算", existing: Disabled, delta: "1h", adding: true, want: "1h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Adjust(tt.existing, tt.delta, tt.adding))
		})
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		validFrom time.Time
		d         Duration
		want      bool
	}{
		{name: "正常系: 無効値は期限切れにならない", validFrom: now.AddDate(-10, 0, 0), d: Disabled, want: false},
		{name: "正常系: 期間内", validFrom: now.Add(-time.Hour), d: "2h", want: false},
		{name: "正常系: 期間超過", validFrom: now.Add(-3 * time.Hour), d: "2h", want: true},
		{name: "正常系: ちょうど期限", validFrom: now.Add(-2 * time.Hour), d: "2h", want: false},
		{name: "正常系: 未設定は期限切れにならない", validFrom: now.AddDate(-10, 0, 0), d: "", want: false},
		{name: "正常系: 300年は作成直後に期限切れにならない", validFrom: now.Add(-time.Hour), d: "300y", want: false},
		{name: "正常系: 1000年は作成直後に期限切れにならない", validFrom: now.Add(-time.Hour), d: "1000y", want: false},
		{name: "正常系: 上限の期間", validFrom: now, d: "999999999999999999y", want: false},
		{name: "異常系: 0mは無効値ではなく即時に期限切れ", validFrom: now.Add(-time.Hour), d: "0m", want: true},
		{name: "異常系: 0dは即時に期限切れ", validFrom: now.Add(-time.Second), d: "0d", want: true},
		{name: "異常系: 0h0sは即時に期限切れ", validFrom: now.Add(-time.Hour), d: "0h0s", want: true},
		{name: "異常系: トークンのない値は即時に期限切れ", validFrom: now.Add(-time.Hour), d: "abc", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsExpired(tt.validFrom, tt.d, now))
		})
	}
}

func TestOnCooldown(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		cooldown Duration
		last     time.Time
		want     bool
	}{
		{name: "正常系: 無効値", cooldown: Disabled, last: now, want: false},
		{name: "正常系: 不正な値", cooldown: "5x", last: now, want: false},
		{name: "正常系: クールダウン中", cooldown: "1h", last: now.Add(-30 * time.Minute), want: true},
		{name: "正常系: クールダウン明け", cooldown: "1h", last: now.Add(-2 * time.Hour), want: false},
		{name: "正常系: 300年のクールダウン中", cooldown: "300y", last: now.Add(-time.Hour), want: true},
		{name: "正常系: 1000年のクールダウン中", cooldown: "1000y", last: now.AddDate(-100, 0, 0), want: true},
		{name: "正常系: 0mは待ち時間なし", cooldown: "0m", last: now, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OnCooldown(tt.cooldown, tt.last, now))
		})
	}
}

func TestCalculateExpiry(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "2024-01-02 12:00:00 UTC", CalculateExpiry(start, "1d12h"))
	assert.Equal(t, "Invalid duration format: 5x", CalculateExpiry(start, "5x"))
	assert.Equal(t, "2323-10-21 00:00:00 UTC", CalculateExpiry(start, "300y"))
}

func TestExpiresAt(t *testing.T) {
	validFrom := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		d      Duration
		want   time.Time
		wantOK bool
	}{
		{name: "正常系: 1日", d: "1d", want: validFrom.AddDate(0, 0, 1), wantOK: true},
		{name: "正常系: 300年", d: "300y", want: time.Unix(validFrom.Unix()+300*secondsPerYear, 0).UTC(), wantOK: true},
		{name: "正常系: 0mは開始時刻そのもの", d: "0m", want: validFrom, wantOK: true},
		{name: "正常系: 無効値", d: Disabled, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExpiresAt(validFrom, tt.d)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, tt.want.Equal(got), "got %s", got)
				assert.True(t, got.After(validFrom) || got.Equal(validFrom))
			}
		})
	}
}

func TestStd(t *testing.T) {
	assert.Equal(t, 36*time.Hour, Duration("1d12h").Std())
	assert.Equal(t, time.Duration(math.MaxInt64), Duration("300y").Std())
	assert.Positive(t, Duration("1000y").Std())
}

func TestHumanize(t *testing.T) {
	assert.Equal(t, "1 day 2 hours", Humanize("1d2h"))
	assert.Equal(t, "2 months 1 second", Humanize("2mo1s"))
	assert.Equal(t, "0 seconds", Humanize(Disabled))
}

func TestRemaining(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "Never", Remaining(now, Disabled, now))
	assert.Equal(t, "Expired", Remaining(now.Add(-2*time.Hour), "1h", now))
	assert.Equal(t, "1 hour 30 minutes", Remaining(now.Add(-30*time.Minute), "2h", now))
	assert.Equal(t, "300 years", Remaining(now, "300y", now))
	assert.Equal(t, "Expired", Remaining(now.Add(-time.Minute), "0m", now))
}

func TestIsDisabled(t *testing.T) {
	assert.True(t, Disabled.IsDisabled())
	assert.True(t, Duration("").IsDisabled())
	assert.True(t, Duration(" 0s ").IsDisabled())
	assert.False(t, Duration("0m").IsDisabled())
	assert.False(t, Duration("0h0s").IsDisabled())
	assert.False(t, Duration("abc").IsDisabled())
}
