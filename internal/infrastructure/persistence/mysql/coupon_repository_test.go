package mysql

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redeem-server/internal/domain/coupon"
)

// errAny エラーの種類を問わないことを表す
var errAny = errors.New("any error")

var couponRowCols = []string{"id", "player_id", "code", "gifted_at", "claimed"}

func newCouponRepo(t *testing.T) (*CouponRepository, sqlmock.Sqlmock) {
	db, mock := newMockDB(t)
	return NewCouponRepository(db), mock
}

func TestCouponRepository_AddBatch(t *testing.T) {
	other := uuid.New()

	tests := []struct {
		name      string
		coupons   []*coupon.Coupon
		setupMock func(mock sqlmock.Sqlmock)
		wantError error
	}{
		{
			name: "正常系: 複数のクーポンを追加",
			coupons: []*coupon.Coupon{
				coupon.NewCoupon(testPlayer, "AAAAA", testNow),
				coupon.NewCoupon(other, "AAAAA", testNow),
			},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO coupons \(player_id, code, gifted_at, claimed\) VALUES \(\?, \?, \?, \?\), \(\?, \?, \?, \?\)`).
					WithArgs(testPlayer.String(), "AAAAA", testNow, false, other.String(), "AAAAA", testNow, false).
					WillReturnResult(sqlmock.NewResult(2, 2))
				mock.ExpectCommit()
			},
		},
		{
			name:    "異常系: 既に所持している",
			coupons: []*coupon.Coupon{coupon.NewCoupon(testPlayer, "AAAAA", testNow)},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO coupons`).
					WillReturnError(&mysqldriver.MySQLError{Number: 1062})
				mock.ExpectRollback()
			},
			wantError: coupon.ErrCouponAlreadyOwned,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newCouponRepo(t)
			tt.setupMock(mock)

			err := repo.AddBatch(context.Background(), tt.coupons)
			if tt.wantError != nil {
				assert.ErrorIs(t, err, tt.wantError)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCouponRepository_Find(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantError error
	}{
		{
			name: "正常系: クーポンが見つかる",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .* FROM coupons c WHERE c.player_id = \? AND c.code = \?`).
					WithArgs(testPlayer.String(), "AAAAA").
					WillReturnRows(sqlmock.NewRows(couponRowCols).AddRow(1, testPlayer.String(), "AAAAA", testNow, false))
			},
		},
		{
			name: "異常系: クーポンが見つからない",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .* FROM coupons`).WillReturnError(sql.ErrNoRows)
			},
			wantError: coupon.ErrCouponNotFound,
		},
		{
			name: "異常系: 不正なプレイヤーID",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .* FROM coupons`).
					WillReturnRows(sqlmock.NewRows(couponRowCols).AddRow(1, "not-a-uuid", "AAAAA", testNow, false))
			},
			wantError: errAny,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newCouponRepo(t)
			tt.setupMock(mock)

			got, err := repo.Find(context.Background(), testPlayer, "AAAAA")
			switch tt.wantError {
			case nil:
				require.NoError(t, err)
				assert.Equal(t, testPlayer, got.PlayerID())
				assert.Equal(t, "AAAAA", got.Code())
				assert.Equal(t, int64(1), got.ID())
			case errAny:
				assert.Error(t, err)
			default:
				assert.ErrorIs(t, err, tt.wantError)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCouponRepository_FindByPlayerAndTemplate(t *testing.T) {
	repo, mock := newCouponRepo(t)

	mock.ExpectQuery(`JOIN redemption_codes rc ON rc.code = c.code\s+WHERE c.player_id = \? AND rc.template = \?`).
		WithArgs(testPlayer.String(), "event").
		WillReturnRows(sqlmock.NewRows(couponRowCols).
			AddRow(1, testPlayer.String(), "AAAAA", testNow, false).
			AddRow(2, testPlayer.String(), "BBBBB", testNow, true))

	got, err := repo.FindByPlayerAndTemplate(context.Background(), testPlayer, "event")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[1].Claimed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCouponRepository_OwnersOf(t *testing.T) {
	repo, mock := newCouponRepo(t)
	other := uuid.New()

	mock.ExpectQuery(`SELECT player_id FROM coupons WHERE code = \? AND player_id IN \(\?, \?\)`).
		WithArgs("AAAAA", testPlayer.String(), other.String()).
		WillReturnRows(sqlmock.NewRows([]string{"player_id"}).AddRow(other.String()))

	got, err := repo.OwnersOf(context.Background(), []uuid.UUID{testPlayer, other}, "AAAAA")
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{other}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCouponRepository_MarkClaimed(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantError error
	}{
		{
			name: "正常系: 使用済みにする",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE coupons SET claimed = TRUE`).
					WithArgs(testPlayer.String(), "AAAAA").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "異常系: 既に使用済み",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE coupons SET claimed = TRUE`).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT .* FROM coupons c WHERE`).
					WillReturnRows(sqlmock.NewRows(couponRowCols).AddRow(1, testPlayer.String(), "AAAAA", testNow, true))
			},
			wantError: coupon.ErrCouponAlreadyClaimed,
		},
		{
			name: "異常系: クーポンがない",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE coupons SET claimed = TRUE`).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT .* FROM coupons c WHERE`).WillReturnError(sql.ErrNoRows)
			},
			wantError: coupon.ErrCouponNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newCouponRepo(t)
			tt.setupMock(mock)

			err := repo.MarkClaimed(context.Background(), testPlayer, "AAAAA")
			if tt.wantError != nil {
				assert.ErrorIs(t, err, tt.wantError)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCouponRepository_Deletes(t *testing.T) {
	repo, mock := newCouponRepo(t)
	ctx := context.Background()

	mock.ExpectExec(`DELETE FROM coupons WHERE player_id = \? AND code = \?`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM coupons WHERE code IN \(\?, \?\)`).
		WithArgs("AAAAA", "BBBBB").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(`DELETE c FROM coupons c\s+JOIN redemption_codes rc ON rc.code = c.code\s+WHERE c.player_id = \? AND rc.template = \?`).
		WithArgs(testPlayer.String(), "event").
		WillReturnResult(sqlmock.NewResult(0, 2))

	assert.ErrorIs(t, repo.Delete(ctx, testPlayer, "AAAAA"), coupon.ErrCouponNotFound)
	assert.NoError(t, repo.DeleteByCodes(ctx, []string{"AAAAA", "BBBBB"}))
	n, err := repo.DeleteByPlayerAndTemplate(ctx, testPlayer, "event")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// 空の指定ではクエリを発行しない
	assert.NoError(t, repo.DeleteByPlayersAndCode(ctx, nil, "AAAAA"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
