package cel

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redeem-server/internal/domain/service"
)

func TestEvaluator_Evaluate(t *testing.T) {
	ev, err := NewEvaluator(8)
	require.NoError(t, err)

	steve := uuid.MustParse("6f1e5c1a-3f2b-4c1d-9a7e-2b8f0c4d5e6a")
	in := service.ConditionInput{
		Player:     steve,
		PlayerName: "Steve",
		Code:       "ABCDE",
		Template:   "event",
		Now:        time.Date(2026, 12, 24, 18, 0, 0, 0, time.UTC),
		Uses:       3,
		PlayerUses: 0,
		Address:    "10.0.0.7",
	}

	tests := []struct {
		name      string
		condition string
		want      bool
		wantError bool
	}{
		{name: "正常系: 使用回数", condition: "uses < 5", want: true},
		{name: "正常系: プレイヤー名", condition: `player_name == "Alex"`, want: false},
		{name: "正常系: 日付", condition: `now.getMonth() == 11 && now.getDate() == 24`, want: true},
		{name: "正常系: テンプレートとアドレス", condition: `template == "event" && address.startsWith("10.")`, want: true},
		{name: "正常系: プレイヤーID", condition: `player == "` + steve.String() + `"`, want: true},
		{name: "正常系: 初回のみ", condition: "player_uses == 0", want: true},
		{name: "異常系: 構文エラー", condition: "uses <", wantError: true},
		{name: "異常系: 未知の変数", condition: "level > 10", wantError: true},
		{name: "異常系: boolではない", condition: "uses + 1", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ev.Evaluate(context.Background(), tt.condition, in)
			if tt.wantError {
				assert.ErrorIs(t, err, ErrInvalidCondition)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_CachesPrograms(t *testing.T) {
	ev, err := NewEvaluator(2)
	require.NoError(t, err)

	require.NoError(t, ev.Validate("uses > 0"))
	assert.Equal(t, 1, ev.programs.Len())

	require.NoError(t, ev.Validate(" uses > 0 "))
	assert.Equal(t, 1, ev.programs.Len())

	assert.Error(t, ev.Validate("uses >"))
	assert.Equal(t, 1, ev.programs.Len())
}

func TestEvaluator_RuntimeError(t *testing.T) {
	ev, err := NewEvaluator(2)
	require.NoError(t, err)

	_, err = ev.Evaluate(context.Background(), "10 / uses == 1", service.ConditionInput{Uses: 0})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCondition)
}
