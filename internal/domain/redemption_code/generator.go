package redemption_code

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeAlphabet 紛らわしい文字（I, O, 0, 1）を除いた英数字
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	// MinDigit 生成できる最小桁数
	MinDigit = 3
	// MaxDigit 生成できる最大桁数
	MaxDigit = 32
	// DefaultMaxAttempts 1件あたりの生成試行回数の既定値
	DefaultMaxAttempts = 100
)

// Generator ランダムなコード文字列の生成器
type Generator struct {
	alphabet    string
	maxAttempts int
	random      func(n int) (int, error)
}

// NewGenerator 新しいGeneratorを作成
func NewGenerator(maxAttempts int) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Generator{
		alphabet:    CodeAlphabet,
		maxAttempts: maxAttempts,
		random:      cryptoIntn,
	}
}

// Generate 既存コードおよび同一バッチ内と衝突しないコードをamount件生成する。
// existsは永続化済みのコードとの衝突確認に使う。
func (g *Generator) Generate(digit, amount int, exists func(code string) (bool, error)) ([]string, error) {
	if digit < MinDigit || digit > MaxDigit {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDigit, digit)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	batch := make(map[string]struct{}, amount)
	codes := make([]string, 0, amount)
	for len(codes) < amount {
		code, err := g.next(digit, batch, exists)
		if err != nil {
			return nil, err
		}
		batch[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

func (g *Generator) next(digit int, batch map[string]struct{}, exists func(code string) (bool, error)) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		code, err := g.randomString(digit)
		if err != nil {
			return "", err
		}
		if _, dup := batch[code]; dup {
			continue
		}
		if exists != nil {
			found, err := exists(code)
			if err != nil {
				return "", fmt.Errorf("failed to check code existence: %w", err)
			}
			if found {
				continue
			}
		}
		return code, nil
	}
	return "", fmt.Errorf("%w after %d attempts", ErrGenerationExhausted, g.maxAttempts)
}

func (g *Generator) randomString(digit int) (string, error) {
	buf := make([]byte, digit)
	for i := range buf {
		idx, err := g.random(len(g.alphabet))
		if err != nil {
			return "", fmt.Errorf("failed to read random: %w", err)
		}
		buf[i] = g.alphabet[idx]
	}
	return string(buf), nil
}

func cryptoIntn(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
