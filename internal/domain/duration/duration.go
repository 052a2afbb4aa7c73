package duration

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Duration 期間を表す値オブジェクト（例: "1d12h", "30m", "0s"）
//
// 値は `<整数><単位>` の連結で、単位は s, m, h, d, w, mo, y。
// 月と年は暦を考慮しない固定秒数で扱う。
type Duration string

// Disabled 期間・クールダウンが無効であることを表す値
const Disabled Duration = "0s"

const (
	secondsPerMinute int64 = 60
	secondsPerHour   int64 = 3600
	secondsPerDay    int64 = 86400
	secondsPerWeek   int64 = 604800
	secondsPerMonth  int64 = 2592000
	secondsPerYear   int64 = 31536000
)

// MaxSeconds 扱える最大秒数。これを超える合計は切り詰める。
// time.Timeの内部表現に足してもあふれない範囲に収める。
const MaxSeconds int64 = math.MaxInt64 / 4

// maxStdSeconds time.Durationで表現できる最大秒数（約292年）
const maxStdSeconds = math.MaxInt64 / int64(time.Second)

// ExpiryLayout 有効期限の表示フォーマット
const ExpiryLayout = "2006-01-02 15:04:05 MST"

var unitSeconds = map[string]int64{
	"y":  secondsPerYear,
	"mo": secondsPerMonth,
	"w":  secondsPerWeek,
	"d":  secondsPerDay,
	"h":  secondsPerHour,
	"m":  secondsPerMinute,
	"s":  1,
}

// formatUnits 整形時に使う単位（大きい順）。週は使わない。
var formatUnits = []struct {
	suffix  string
	seconds int64
}{
	{"y", secondsPerYear},
	{"mo", secondsPerMonth},
	{"d", secondsPerDay},
	{"h", secondsPerHour},
	{"m", secondsPerMinute},
	{"s", 1},
}

var (
	// "mo" は "m" より先に評価する
	tokenPattern  = regexp.MustCompile(`(\d+)(mo|y|w|d|h|m|s)`)
	strictPattern = regexp.MustCompile(`^(\d+(mo|y|w|d|h|m|s))+$`)
)

// New 厳密に検証したDurationを作成（管理者入力用）
func New(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if !IsValid(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	return Duration(s), nil
}

// IsValid 文字列全体が期間の文法に一致するかを返す
func IsValid(s string) bool {
	if strings.TrimSpace(s) == "" || len(s) < 2 {
		return false
	}
	return strictPattern.MatchString(s)
}

// Parse 文字列中のトークンを走査して合計秒数を返す。
// 一致しない部分は無視する。合計はMaxSecondsで頭打ちになる。
func Parse(s string) int64 {
	var total int64
	for _, m := range tokenPattern.FindAllStringSubmatch(s, -1) {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			// 桁あふれする数値
			return MaxSeconds
		}
		unit := unitSeconds[m[2]]
		if n > (MaxSeconds-total)/unit {
			return MaxSeconds
		}
		total += n * unit
	}
	return total
}

// FormatSeconds 秒数を大きい単位から順に分解した期間文字列に変換
func FormatSeconds(seconds int64) Duration {
	if seconds <= 0 {
		return Disabled
	}
	var b strings.Builder
	for _, u := range formatUnits {
		if seconds >= u.seconds {
			b.WriteString(strconv.FormatInt(seconds/u.seconds, 10))
			b.WriteString(u.suffix)
			seconds %= u.seconds
		}
	}
	return Duration(b.String())
}

// String 文字列表現を返す
func (d Duration) String() string {
	return string(d)
}

// Valid 厳密な文法に一致するかを返す
func (d Duration) Valid() bool {
	return IsValid(string(d))
}

// Seconds 合計秒数を返す
func (d Duration) Seconds() int64 {
	return Parse(string(d))
}

// Std time.Durationに変換。表現できない長さはtime.Durationの最大値になる。
func (d Duration) Std() time.Duration {
	seconds := d.Seconds()
	if seconds > maxStdSeconds {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(seconds) * time.Second
}

// IsDisabled 無効値 "0s"（または未設定）かどうかを返す。
// "0m" など合計0秒の他の表記は無効値ではなく、即時に期限切れになる。
func (d Duration) IsDisabled() bool {
	v := strings.TrimSpace(string(d))
	return v == "" || v == string(Disabled)
}

// Adjust 既存の期間に差分を加算または減算する。0秒未満にはならない。
func Adjust(existing, delta Duration, adding bool) Duration {
	current := existing.Seconds()
	diff := delta.Seconds()
	if adding {
		return FormatSeconds(min(current+diff, MaxSeconds))
	}
	if current-diff <= 0 {
		return Disabled
	}
	return FormatSeconds(current - diff)
}

// ExpiresAt 有効期限を返す。期間が無効値の場合はfalse。
func ExpiresAt(validFrom time.Time, d Duration) (time.Time, bool) {
	if d.IsDisabled() {
		return time.Time{}, false
	}
	return addSeconds(validFrom, d.Seconds()), true
}

// addSeconds 秒単位で時刻を進める。time.Durationを経由しないため約292年を超えてもあふれない。
func addSeconds(t time.Time, seconds int64) time.Time {
	return time.Unix(t.Unix()+seconds, int64(t.Nanosecond())).In(t.Location())
}

// CalculateExpiry 開始時刻に期間を足した日時を表示用文字列で返す。
// 期間が不正な場合はエラーメッセージを返す。
func CalculateExpiry(start time.Time, d string) string {
	if !IsValid(d) {
		return fmt.Sprintf("Invalid duration format: %s", d)
	}
	return addSeconds(start, Duration(d).Seconds()).Format(ExpiryLayout)
}

// IsExpired 期限切れかどうかを返す
func IsExpired(validFrom time.Time, d Duration, now time.Time) bool {
	expiry, ok := ExpiresAt(validFrom, d)
	if !ok {
		return false
	}
	return now.After(expiry)
}

// OnCooldown 最終引き換えからクールダウン期間内かどうかを返す
func OnCooldown(cooldown Duration, lastRedeemed time.Time, now time.Time) bool {
	if !cooldown.Valid() || cooldown.IsDisabled() {
		return false
	}
	return now.Before(addSeconds(lastRedeemed, cooldown.Seconds()))
}

// Humanize "1 day 2 hours" 形式の文字列を返す
func Humanize(d Duration) string {
	seconds := d.Seconds()
	if seconds <= 0 {
		return "0 seconds"
	}
	return humanizeSeconds(seconds)
}

// Remaining 有効期限までの残り時間を返す
func Remaining(validFrom time.Time, d Duration, now time.Time) string {
	expiry, ok := ExpiresAt(validFrom, d)
	if !ok {
		return "Never"
	}
	left := expiry.Unix() - now.Unix()
	if !now.Before(expiry) || left <= 0 {
		return "Expired"
	}
	return humanizeSeconds(left)
}

var humanUnits = []struct {
	name    string
	seconds int64
}{
	{"year", secondsPerYear},
	{"month", secondsPerMonth},
	{"day", secondsPerDay},
	{"hour", secondsPerHour},
	{"minute", secondsPerMinute},
	{"second", 1},
}

func humanizeSeconds(seconds int64) string {
	parts := make([]string, 0, len(humanUnits))
	for _, u := range humanUnits {
		if seconds < u.seconds {
			continue
		}
		n := seconds / u.seconds
		seconds %= u.seconds
		if n == 1 {
			parts = append(parts, fmt.Sprintf("1 %s", u.name))
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}
	return strings.Join(parts, " ")
}
