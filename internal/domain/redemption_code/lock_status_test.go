package redemption_code

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLockStatus(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    LockStatus
		wantErr bool
	}{
		{name: "正常系: 空文字はall", input: "", want: LockStatusAll},
		{name: "正常系: locked", input: "Locked", want: LockStatusLocked},
		{name: "正常系: unlocked", input: "unlocked", want: LockStatusUnlocked},
		{name: "異常系: 無効な値", input: "maybe", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewLockStatus(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Valid())
		})
	}
}

func TestLockStatus_Matches(t *testing.T) {
	locked, err := NewRedemptionCode("A", time.Now())
	require.NoError(t, err)
	locked.SetTemplate("VIP")
	locked.SetSync(true)

	unlocked, err := NewRedemptionCode("B", time.Now())
	require.NoError(t, err)
	unlocked.SetTemplate("VIP")

	assert.True(t, LockStatusLocked.Matches(locked))
	assert.False(t, LockStatusLocked.Matches(unlocked))
	assert.True(t, LockStatusUnlocked.Matches(unlocked))
	assert.True(t, LockStatusAll.Matches(locked))
	assert.True(t, LockStatusAll.Matches(unlocked))
}
