package code_management

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"redeem-server/internal/application/sequencer"
	"redeem-server/internal/domain/duration"
	"redeem-server/internal/domain/redeem_property"
	"redeem-server/internal/domain/redeem_template"
	"redeem-server/internal/domain/redemption_code"
)

func TestLockTable(t *testing.T) {
	table := NewLockTable()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := table.Lock("CODE")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
	assert.Equal(t, 0, table.Len())

	unlock := table.LockAll([]string{"B", "A", "B"})
	assert.Equal(t, 2, table.Len())
	unlock()
	unlock()
	assert.Equal(t, 0, table.Len())
}

func TestCache_ReplaceKeepsPendingWrites(t *testing.T) {
	c := NewCache()
	stale := newCode(t, "AAA")
	fresh := stale.Clone()
	fresh.Mutate(func(p *redeem_property.Properties) { p.Redemption = 9 })

	c.Put(fresh)
	c.Remove("BBB")
	c.Replace([]*redemption_code.RedemptionCode{stale, newCode(t, "BBB"), newCode(t, "CCC")})

	got, ok := c.Get("AAA")
	require.True(t, ok)
	assert.Equal(t, 9, got.Redemption())
	assert.False(t, c.Has("BBB"))
	assert.True(t, c.Deleted("BBB"))
	assert.True(t, c.Has("CCC"))

	c.Settle("AAA", "BBB")
	c.Replace([]*redemption_code.RedemptionCode{stale})
	got, _ = c.Get("AAA")
	assert.Equal(t, 1, got.Redemption())
	assert.False(t, c.Deleted("BBB"))
}

func TestService_Create(t *testing.T) {
	tmpl, err := redeem_template.NewRedeemTemplate("event")
	require.NoError(t, err)
	tmpl.SetDigit(8)
	tmpl.Mutate(func(p *redeem_property.Properties) {
		p.Duration = "7d"
		p.Cooldown = "1h"
		p.Enabled = false
	})

	tests := []struct {
		name      string
		req       *CreateRequest
		existing  []string
		setupMock func(*MockTemplateRepository)
		wantErr   error
		check     func(t *testing.T, f *fixture, resp *CreateResponse)
	}{
		{
			name: "正常系: 指定コードを作成",
			req:  &CreateRequest{Codes: []string{"summer", "WINTER", "summer"}},
			check: func(t *testing.T, f *fixture, resp *CreateResponse) {
				require.Len(t, resp.Codes, 2)
				rc, ok := f.codes.get("SUMMER")
				require.True(t, ok)
				assert.Equal(t, "lobby", rc.Server())
				assert.Equal(t, "", rc.Template())
			},
		},
		{
			name: "正常系: テンプレートからランダム生成",
			req:  &CreateRequest{Template: "event", Amount: 3},
			setupMock: func(m *MockTemplateRepository) {
				m.On("FindByName", mock.Anything, "event").Return(tmpl, nil)
			},
			check: func(t *testing.T, f *fixture, resp *CreateResponse) {
				require.Len(t, resp.Codes, 3)
				for _, rc := range resp.Codes {
					assert.Len(t, rc.Code(), 8)
					assert.Equal(t, "event", rc.Template())
					assert.True(t, rc.Locked())
					assert.True(t, rc.Enabled(), "created codes start enabled")
					assert.Equal(t, duration.Disabled, rc.Cooldown())
					assert.Equal(t, duration.Duration("7d"), rc.Duration())
					_, ok := f.codes.get(rc.Code())
					assert.True(t, ok)
				}
			},
		},
		{
			name:     "異常系: 既存コード",
			req:      &CreateRequest{Codes: []string{"NEW", "TAKEN"}},
			existing: []string{"TAKEN"},
			wantErr:  redemption_code.ErrCodeAlreadyExists,
		},
		{
			name: "異常系: テンプレートなし",
			req:  &CreateRequest{Template: "missing"},
			setupMock: func(m *MockTemplateRepository) {
				m.On("FindByName", mock.Anything, "missing").Return(nil, redeem_template.ErrTemplateNotFound)
			},
			wantErr: redeem_template.ErrTemplateNotFound,
		},
		{
			name:    "異常系: 件数上限超過",
			req:     &CreateRequest{Amount: 51},
			wantErr: redemption_code.ErrInvalidAmount,
		},
		{
			name:    "異常系: 桁数不正",
			req:     &CreateRequest{Digit: 2, Amount: 1},
			wantErr: redemption_code.ErrInvalidDigit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seed []*redemption_code.RedemptionCode
			for _, c := range tt.existing {
				seed = append(seed, newCode(t, c))
			}
			f := newFixture(t, seed...)
			if tt.setupMock != nil {
				tt.setupMock(f.templates)
			}

			resp, done, err := f.svc.Create(context.Background(), tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, done)
				return
			}
			require.NoError(t, err)
			require.True(t, wait(t, done).Success)
			tt.check(t, f, resp)
		})
	}
}

func TestService_Update(t *testing.T) {
	t.Run("正常系: 変更はキャッシュと永続化層に反映される", func(t *testing.T) {
		f := newFixture(t, newCode(t, "AAA"))

		done, err := f.svc.Update(context.Background(), "aaa", redeem_property.SetPin(1234), redeem_property.SetDuration("1d"))
		require.NoError(t, err)

		cached, err := f.svc.Find(context.Background(), "AAA")
		require.NoError(t, err)
		assert.Equal(t, redeem_property.Pin(1234), cached.Pin())

		require.True(t, wait(t, done).Success)
		stored, _ := f.codes.get("AAA")
		assert.Equal(t, duration.Duration("1d"), stored.Duration())
		assert.Equal(t, testNow, stored.Modified())
		assert.Equal(t, map[string]int{"AAA": 1234}, f.svc.Index().Pins)
	})

	t.Run("異常系: 検証エラーは何も変更しない", func(t *testing.T) {
		f := newFixture(t, newCode(t, "AAA"))

		_, err := f.svc.Update(context.Background(), "AAA", redeem_property.SetCooldown("5x"))
		assert.ErrorIs(t, err, duration.ErrInvalidDuration)
		assert.Equal(t, 0, f.codes.writes)
	})

	t.Run("異常系: 存在しないコード", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Update(context.Background(), "NOPE", redeem_property.SetPin(1))
		assert.ErrorIs(t, err, redemption_code.ErrCodeNotFound)
	})

	t.Run("異常系: 永続化の失敗でキャッシュを戻す", func(t *testing.T) {
		f := newFixture(t, newCode(t, "AAA"))
		f.codes.failWrite = errors.New("disk full")

		done, err := f.svc.Update(context.Background(), "AAA", redeem_property.SetRedemption(10))
		require.NoError(t, err)

		res := wait(t, done)
		assert.False(t, res.Success)
		assert.EqualError(t, res.Err, "disk full")

		rc, err := f.svc.Find(context.Background(), "AAA")
		require.NoError(t, err)
		assert.Equal(t, 1, rc.Redemption())
	})
}

func TestService_SetCondition(t *testing.T) {
	f := newFixture(t, newCode(t, "AAA"))

	_, err := f.svc.SetCondition(context.Background(), "AAA", "((")
	assert.Error(t, err)

	done, err := f.svc.SetCondition(context.Background(), "AAA", "uses < 3")
	require.NoError(t, err)
	require.True(t, wait(t, done).Success)

	rc, _ := f.codes.get("AAA")
	assert.Equal(t, "uses < 3", rc.Condition())
}

func TestService_Targets(t *testing.T) {
	f := newFixture(t, newCode(t, "AAA"))
	ids := mustUUIDs(3)

	done, err := f.svc.SetTargets(context.Background(), "AAA", ids[:2])
	require.NoError(t, err)
	require.True(t, wait(t, done).Success)

	done, err = f.svc.AddTargets(context.Background(), "AAA", ids[1:])
	require.NoError(t, err)
	require.True(t, wait(t, done).Success)

	done, err = f.svc.RemoveTargets(context.Background(), "AAA", ids[:1])
	require.NoError(t, err)
	require.True(t, wait(t, done).Success)

	rc, _ := f.codes.get("AAA")
	assert.Equal(t, []uuid.UUID{ids[1], ids[2]}, rc.Targets())
	assert.Len(t, f.svc.Index().Targets["AAA"], 2)
}

func TestService_SetTemplate(t *testing.T) {
	tmpl, err := redeem_template.NewRedeemTemplate("vip")
	require.NoError(t, err)
	tmpl.ToggleRequiredPermission()
	tmpl.Mutate(func(p *redeem_property.Properties) { p.Commands = []string{"rank {player} vip"} })

	f := newFixture(t, newCode(t, "AAA"))
	f.templates.On("FindByName", mock.Anything, "vip").Return(tmpl, nil)

	done, err := f.svc.SetTemplate(context.Background(), "AAA", "vip")
	require.NoError(t, err)
	require.True(t, wait(t, done).Success)

	rc, _ := f.codes.get("AAA")
	assert.Equal(t, "vip", rc.Template())
	assert.True(t, rc.Locked())
	assert.Equal(t, []string{"rank {player} vip"}, rc.Properties().Commands)
	assert.Equal(t, "redeemx.use.vip.aaa", rc.Permission())

	done, err = f.svc.SetTemplatePermission(context.Background(), "AAA")
	require.NoError(t, err)
	require.True(t, wait(t, done).Success)

	done, err = f.svc.SetTemplate(context.Background(), "AAA", "")
	require.NoError(t, err)
	require.True(t, wait(t, done).Success)
	rc, _ = f.codes.get("AAA")
	assert.Equal(t, "", rc.Template())
	assert.False(t, rc.Locked())
}

func TestService_Lookup(t *testing.T) {
	f := newFixture(t, newCode(t, "SUMMER24"), newCode(t, "WINTER24"))
	require.NoError(t, f.svc.Refresh(context.Background()))

	rc, suggestions, err := f.svc.Lookup(context.Background(), "summer24", 3)
	require.NoError(t, err)
	assert.Equal(t, "SUMMER24", rc.Code())
	assert.Nil(t, suggestions)

	_, suggestions, err = f.svc.Lookup(context.Background(), "SMR24", 3)
	assert.ErrorIs(t, err, redemption_code.ErrCodeNotFound)
	assert.Equal(t, []string{"SUMMER24"}, suggestions)
}

func TestService_List(t *testing.T) {
	a := newCode(t, "AAA")
	b := newCode(t, "BBB")
	b.SetTemplate("event")
	b.SetSync(true)
	b.Touch(testNow.Add(-time.Minute))
	c := newCode(t, "CCC")
	c.Mutate(func(p *redeem_property.Properties) { p.Enabled = false })
	c.SetTemplate("event")
	d := newCode(t, "DDD")
	d.Mutate(func(p *redeem_property.Properties) { p.Duration = "30m" })

	f := newFixture(t, a, b, c, d)
	active := redemption_code.CodeStatusActive

	tests := []struct {
		name  string
		query ListQuery
		want  []string
		total int
	}{
		{name: "正常系: 全件をコード順", query: ListQuery{}, want: []string{"AAA", "BBB", "CCC", "DDD"}, total: 4},
		{name: "正常系: 降順とページング", query: ListQuery{Sort: redemption_code.SortOrder{Field: redemption_code.SortByCode, Descending: true}, Limit: 2, Offset: 1}, want: []string{"CCC", "BBB"}, total: 4},
		{name: "正常系: 有効なコードのみ", query: ListQuery{Status: &active}, want: []string{"AAA", "BBB"}, total: 2},
		{name: "正常系: テンプレートの同期中コード", query: ListQuery{Template: "event", Lock: redemption_code.LockStatusLocked}, want: []string{"BBB"}, total: 1},
		{name: "正常系: テンプレートの同期解除コード", query: ListQuery{Template: "event", Lock: redemption_code.LockStatusUnlocked}, want: []string{"CCC"}, total: 1},
		{name: "正常系: オフセット超過", query: ListQuery{Offset: 10}, want: []string{}, total: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.List(context.Background(), tt.query)
			require.NoError(t, err)
			got := []string{}
			for _, rc := range res.Codes {
				got = append(got, rc.Code())
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.total, res.Total)
		})
	}

	_, err := f.svc.List(context.Background(), ListQuery{Sort: redemption_code.SortOrder{Field: "bogus"}})
	assert.Error(t, err)
}

func TestService_PurgeExpired(t *testing.T) {
	expired := newCode(t, "OLD")
	expired.Mutate(func(p *redeem_property.Properties) { p.Duration = "1m" })
	forever := newCode(t, "FOREVER")

	f := newFixture(t, expired, forever)

	list, err := f.svc.ListExpired(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "OLD", list[0].Code())

	n, err := f.svc.PurgeExpired(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok := f.codes.get("OLD")
	assert.False(t, ok)
	_, ok = f.codes.get("FOREVER")
	assert.True(t, ok)
	assert.Equal(t, []string{"OLD"}, f.coupons.deleted)
}

func TestService_Delete(t *testing.T) {
	tagged := newCode(t, "T1")
	tagged.SetTemplate("event")
	f := newFixture(t, newCode(t, "AAA"), tagged)

	_, err := f.svc.Delete(context.Background(), "NOPE")
	assert.ErrorIs(t, err, redemption_code.ErrCodeNotFound)

	done, err := f.svc.Delete(context.Background(), "aaa")
	require.NoError(t, err)
	_, err = f.svc.Find(context.Background(), "AAA")
	assert.ErrorIs(t, err, redemption_code.ErrCodeNotFound, "deletion is visible before persistence completes")
	require.True(t, wait(t, done).Success)

	n, done, err := f.svc.DeleteByTemplate(context.Background(), "event")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.True(t, wait(t, done).Success)

	done, err = f.svc.DeleteAll(context.Background())
	require.NoError(t, err)
	require.True(t, wait(t, done).Success)
	assert.True(t, f.coupons.all)
	assert.Empty(t, f.codes.codes)
}

func TestService_SyncTemplate(t *testing.T) {
	tmpl, err := redeem_template.NewRedeemTemplate("event")
	require.NoError(t, err)

	locked, err := redemption_code.FromTemplate("LOCKED", tmpl, testNow)
	require.NoError(t, err)
	same, err := redemption_code.FromTemplate("SAME", tmpl, testNow)
	require.NoError(t, err)
	unlocked, err := redemption_code.FromTemplate("FREE", tmpl, testNow)
	require.NoError(t, err)
	unlocked.SetSync(false)

	f := newFixture(t, locked, same, unlocked)

	// SAMEは既に新しい値を持つ
	done, err := f.svc.Update(context.Background(), "SAME", redeem_property.SetDuration("3d"))
	require.NoError(t, err)
	require.True(t, wait(t, done).Success)

	tmpl.Mutate(func(p *redeem_property.Properties) { p.Duration = "3d" })
	report, err := f.svc.SyncTemplate(context.Background(), tmpl)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Updated: 1, Skipped: 1}, report)

	rc, _ := f.codes.get("LOCKED")
	assert.Equal(t, duration.Duration("3d"), rc.Duration())
	rc, _ = f.codes.get("FREE")
	assert.Equal(t, duration.Disabled, rc.Duration())
}

func TestService_ConcurrentMutationsAreSerialized(t *testing.T) {
	f := newFixture(t, newCode(t, "AAA"))

	var wg sync.WaitGroup
	results := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			done, err := f.svc.Update(context.Background(), "AAA", redeem_property.AddCommand("cmd"))
			if err != nil {
				results <- false
				return
			}
			results <- sequencer.Wait(context.Background(), done).Success
		}()
	}
	wg.Wait()
	close(results)
	for ok := range results {
		assert.True(t, ok)
	}

	rc, _ := f.codes.get("AAA")
	assert.Len(t, rc.Properties().Commands, 50)
}
