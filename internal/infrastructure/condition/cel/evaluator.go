package cel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	lru "github.com/hashicorp/golang-lru"

	"redeem-server/internal/domain/service"
)

// ErrInvalidCondition 条件式が不正なエラー
var ErrInvalidCondition = errors.New("invalid condition")

// Evaluator CELで引き換え条件式を評価する。
// 利用できる変数: player, player_name, code, template, now, uses, player_uses, address
type Evaluator struct {
	env      *cel.Env
	programs *lru.Cache // 条件式 -> cel.Program
}

// NewEvaluator 新しいEvaluatorを作成
func NewEvaluator(cacheSize int) (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("player", cel.StringType),
		cel.Variable("player_name", cel.StringType),
		cel.Variable("code", cel.StringType),
		cel.Variable("template", cel.StringType),
		cel.Variable("now", cel.TimestampType),
		cel.Variable("uses", cel.IntType),
		cel.Variable("player_uses", cel.IntType),
		cel.Variable("address", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cel env: %w", err)
	}

	if cacheSize <= 0 {
		cacheSize = 128
	}
	programs, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Evaluator{env: env, programs: programs}, nil
}

// Validate 条件式をコンパイルして検証
func (e *Evaluator) Validate(condition string) error {
	_, err := e.program(condition)
	return err
}

// Evaluate 条件式を評価
func (e *Evaluator) Evaluate(ctx context.Context, condition string, in service.ConditionInput) (bool, error) {
	prg, err := e.program(condition)
	if err != nil {
		return false, err
	}

	out, _, err := prg.ContextEval(ctx, map[string]interface{}{
		"player":      in.Player.String(),
		"player_name": in.PlayerName,
		"code":        in.Code,
		"template":    in.Template,
		"now":         in.Now,
		"uses":        int64(in.Uses),
		"player_uses": int64(in.PlayerUses),
		"address":     in.Address,
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate condition: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: result is not bool", ErrInvalidCondition)
	}
	return result, nil
}

func (e *Evaluator) program(condition string) (cel.Program, error) {
	condition = strings.TrimSpace(condition)
	if v, ok := e.programs.Get(condition); ok {
		return v.(cel.Program), nil
	}

	ast, iss := e.env.Compile(condition)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCondition, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w: expression must return bool, got %s", ErrInvalidCondition, ast.OutputType())
	}

	prg, err := e.env.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}
	e.programs.Add(condition, prg)
	return prg, nil
}
