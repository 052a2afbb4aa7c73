package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"redeem-server/internal/domain/coupon"
)

const (
	couponsTable  = "coupons"
	couponColumns = "c.id, c.player_id, c.code, c.gifted_at, c.claimed"
)

// CouponRepository MySQL実装のCouponRepository
type CouponRepository struct {
	db     *DB
	tracer trace.Tracer
}

// NewCouponRepository 新しいCouponRepositoryを作成
func NewCouponRepository(db *DB) *CouponRepository {
	return &CouponRepository{
		db:     db,
		tracer: otel.Tracer("coupon-repository"),
	}
}

func scanCoupon(row rowScanner) (*coupon.Coupon, error) {
	var (
		id       int64
		playerID string
		code     string
		giftedAt time.Time
		claimed  bool
	)
	if err := row.Scan(&id, &playerID, &code, &giftedAt, &claimed); err != nil {
		return nil, err
	}
	pid, err := uuid.Parse(playerID)
	if err != nil {
		return nil, fmt.Errorf("invalid player id %q: %w", playerID, err)
	}
	return coupon.Restore(id, pid, code, giftedAt, claimed), nil
}

func (r *CouponRepository) query(ctx context.Context, span trace.Span, query string, args ...interface{}) ([]*coupon.Coupon, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fail(span, err, "failed to query coupons")
	}
	defer rows.Close()

	coupons := make([]*coupon.Coupon, 0)
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fail(span, err, "failed to scan coupon")
		}
		coupons = append(coupons, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, err, "failed to iterate coupons")
	}

	span.SetAttributes(attribute.Int("db.rows", len(coupons)))
	span.SetStatus(otelcodes.Ok, "coupons found")
	return coupons, nil
}

func (r *CouponRepository) exec(ctx context.Context, span trace.Span, query string, args ...interface{}) (int64, error) {
	result, err := r.db.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fail(span, err, "failed to modify coupons")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fail(span, err, "failed to get rows affected")
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", n))
	span.SetStatus(otelcodes.Ok, "coupons modified")
	return n, nil
}

// Add クーポンを追加
func (r *CouponRepository) Add(ctx context.Context, c *coupon.Coupon) error {
	return r.AddBatch(ctx, []*coupon.Coupon{c})
}

// AddBatch 複数のクーポンを追加
func (r *CouponRepository) AddBatch(ctx context.Context, coupons []*coupon.Coupon) error {
	ctx, span := startSpan(ctx, r.tracer, "CouponRepository.AddBatch", "INSERT", couponsTable,
		attribute.Int("db.coupons", len(coupons)),
	)
	defer span.End()

	if len(coupons) == 0 {
		return nil
	}

	err := r.db.inTx(ctx, func(ctx context.Context) error {
		for start := 0; start < len(coupons); start += batchMaxRows {
			chunk := coupons[start:min(start+batchMaxRows, len(coupons))]

			values := make([]string, len(chunk))
			args := make([]interface{}, 0, len(chunk)*4)
			for i, c := range chunk {
				values[i] = "(?, ?, ?, ?)"
				args = append(args, c.PlayerID().String(), c.Code(), c.GiftedAt(), c.Claimed())
			}

			query := `INSERT INTO coupons (player_id, code, gifted_at, claimed) VALUES ` + strings.Join(values, ", ")
			if _, err := r.db.conn(ctx).ExecContext(ctx, query, args...); err != nil {
				if isDuplicateKey(err) {
					return coupon.ErrCouponAlreadyOwned
				}
				return err
			}
		}
		return nil
	})
	if errors.Is(err, coupon.ErrCouponAlreadyOwned) {
		span.SetStatus(otelcodes.Error, "coupon already owned")
		return err
	}
	if err != nil {
		return fail(span, err, "failed to add coupons")
	}

	span.SetStatus(otelcodes.Ok, "coupons added")
	return nil
}

// Find プレイヤーとコードでクーポンを取得
func (r *CouponRepository) Find(ctx context.Context, playerID uuid.UUID, code string) (*coupon.Coupon, error) {
	ctx, span := startSpan(ctx, r.tracer, "CouponRepository.Find", "SELECT", couponsTable,
		attribute.String("db.player_id", playerID.String()),
		attribute.String("db.code", code),
	)
	defer span.End()

	query := `SELECT ` + couponColumns + ` FROM coupons c WHERE c.player_id = ? AND c.code = ?`
	c, err := scanCoupon(r.db.conn(ctx).QueryRowContext(ctx, query, playerID.String(), code))
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(otelcodes.Ok, "coupon not found")
		return nil, coupon.ErrCouponNotFound
	}
	if err != nil {
		return nil, fail(span, err, "failed to find coupon")
	}

	span.SetStatus(otelcodes.Ok, "coupon found")
	return c, nil
}

// FindByPlayer プレイヤーのクーポンを取得
func (r *CouponRepository) FindByPlayer(ctx context.Context, playerID uuid.UUID) ([]*coupon.Coupon, error) {
	ctx, span := startSpan(ctx, r.tracer, "CouponRepository.FindByPlayer", "SELECT", couponsTable,
		attribute.String("db.player_id", playerID.String()),
	)
	defer span.End()

	query := `SELECT ` + couponColumns + ` FROM coupons c WHERE c.player_id = ? ORDER BY c.gifted_at, c.code`
	return r.query(ctx, span, query, playerID.String())
}

// FindAll 全クーポンを取得
func (r *CouponRepository) FindAll(ctx context.Context) ([]*coupon.Coupon, error) {
	ctx, span := startSpan(ctx, r.tracer, "CouponRepository.FindAll", "SELECT", couponsTable)
	defer span.End()

	query := `SELECT ` + couponColumns + ` FROM coupons c ORDER BY c.player_id, c.gifted_at`
	return r.query(ctx, span, query)
}

// FindByTemplate テンプレートのコードに対応するクーポンを取得
func (r *CouponRepository) FindByTemplate(ctx context.Context, template string) ([]*coupon.Coupon, error) {
	ctx, span := startSpan(ctx, r.tracer, "CouponRepository.FindByTemplate", "SELECT", couponsTable,
		attribute.String("db.template", template),
	)
	defer span.End()

	query := `
		SELECT ` + couponColumns + `
		FROM coupons c
		JOIN redemption_codes rc ON rc.code = c.code
		WHERE rc.template = ?
		ORDER BY c.player_id, c.gifted_at
	`
	return r.query(ctx, span, query, template)
}

// FindByPlayerAndTemplate プレイヤーが持つテンプレートのクーポンを取得
func (r *CouponRepository) FindByPlayerAndTemplate(ctx context.Context, playerID uuid.UUID, template string) ([]*coupon.Coupon, error) {
	ctx, span := startSpan(ctx, r.tracer, "CouponRepository.FindByPlayerAndTemplate", "SELECT", couponsTable,
		attribute.String("db.player_id", playerID.String()),
		attribute.String("db.template", template),
	)
	defer span.End()

	query := `
		SELECT ` + couponColumns + `
		FROM coupons c
		JOIN redemption_codes rc ON rc.code = c.code
		WHERE c.player_id = ? AND rc.template = ?
		ORDER BY c.gifted_at
	`
	return r.query(ctx, span, query, playerID.String(), template)
}

// Exists プレイヤーがコードを所持しているかチェック
func (r *CouponRepository) Exists(ctx context.Context, playerID uuid.UUID, code string) (bool, error) {
	ctx, span := startSpan(ctx, r.tracer, "CouponRepository.Exists", "SELECT", couponsTable,
		attribute.String("db.player_id", playerID.String()),
		attribute.String("db.code", code),
	)
	defer span.End()

	var count int
	err := r.db.conn(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM coupons WHERE player_id = ? AND code = ?`,
		playerID.String(), code,
	).Scan(&count)
	if err != nil {
		return false, fail(span, err, "failed to check coupon")
	}

	span.SetStatus(otelcodes.Ok, fmt.Sprintf("coupon exists: %v", count > 0))
	return count > 0, nil
}

// OwnersOf 指定プレイヤーのうちコードを所持しているプレイヤーを返す
func (r *CouponRepository) OwnersOf(ctx context.Context, playerIDs []uuid.UUID, code string) ([]uuid.UUID, error) {
	ctx, span := startSpan(ctx, r.tracer, "CouponRepository.OwnersOf", "SELECT", couponsTable,
		attribute.Int("db.players", len(playerIDs)),
		attribute.String("db.code", code),
	)
	defer span.End()

	if len(playerIDs) == 0 {
		return []uuid.UUID{}, nil
	}

	query := `SELECT player_id FROM coupons WHERE code = ? AND player_id IN (` + placeholders(len(playerIDs)) + `)`
	args := append([]interface{}{code}, uuidArgs(playerIDs)...)

	rows, err := r.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fail(span, err, "failed to query coupon owners")
	}
	defer rows.Close()

	owners := make([]uuid.UUID, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fail(span, err, "failed to scan coupon owner")
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fail(span, err, "invalid player id")
		}
		owners = append(owners, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, err, "failed to iterate coupon owners")
	}

	span.SetStatus(otelcodes.Ok, "coupon owners found")
	return owners, nil
}

// MarkClaimed クーポンを使用済みにする
func (r *CouponRepository) MarkClaimed(ctx context.Context, playerID uuid.UUID, code string) error {
	ctx, span := startSpan(ctx, r.tracer, "CouponRepository.MarkClaimed", "UPDATE", couponsTable,
		attribute.String("db.player_id", playerID.String()),
		attribute.String("db.code", code),
	)
	defer span.End()

	n, err := r.exec(ctx, span,
		`UPDATE coupons SET claimed = TRUE WHERE player_id = ? AND code = ? AND claimed = FALSE`,
		playerID.String(), code,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		c, err := r.Find(ctx, playerID, code)
		if err != nil {
			return err
		}
		if c.Claimed() {
			return coupon.ErrCouponAlreadyClaimed
		}
	}
	return nil
}

// Delete クーポンを削除
func (r *CouponRepository) Delete(ctx context.Context, playerID uuid.UUID, code string) error {
	ctx, span := startSpan(ctx, r.tracer, "CouponRepository.Delete", "DELETE", couponsTable,
		attribute.String("db.player_id", playerID.String()),
		attribute.String("db.code", code),
	)
	defer span.End()

	n, err := r.exec(ctx, span, `DELETE FROM coupons WHERE player_id = ? AND code = ?`, playerID.String(), code)
	if err != nil {
		return err
	}
	if n == 0 {
		return coupon.ErrCouponNotFound
	}
	return nil
}

// DeleteByCode コードのクーポンを全プレイヤーから削除
func (r *CouponRepository) DeleteByCode(ctx context.Context, code string) error {
	return r.DeleteByCodes(ctx, []string{code})
}

// DeleteByCodes 複数コードのクーポンを全プレイヤーから削除
func (r *CouponRepository) DeleteByCodes(ctx context.Context, codes []string) error {
	ctx, span := startSpan(ctx, r.tracer, "CouponRepository.DeleteByCodes", "DELETE", couponsTable,
		attribute.Int("db.codes", len(codes)),
	)
	defer span.End()

	if len(codes) == 0 {
		return nil
	}
	_, err := r.exec(ctx, span, `DELETE FROM coupons WHERE code IN (`+placeholders(len(codes))+`)`, stringArgs(codes)...)
	return err
}

// DeleteByPlayer プレイヤーの全クーポンを削除
func (r *CouponRepository) DeleteByPlayer(ctx context.Context, playerID uuid.UUID) error {
	ctx, span := startSpan(ctx, r.tracer, "CouponRepository.DeleteByPlayer", "DELETE", couponsTable,
		attribute.String("db.player_id", playerID.String()),
	)
	defer span.End()

	_, err := r.exec(ctx, span, `DELETE FROM coupons WHERE player_id = ?`, playerID.String())
	return err
}

// DeleteByPlayerAndCodes プレイヤーの指定コードのクーポンを削除
func (r *CouponRepository) DeleteByPlayerAndCodes(ctx context.Context, playerID uuid.UUID, codes []string) error {
	ctx, span := startSpan(ctx, r.tracer, "CouponRepository.DeleteByPlayerAndCodes", "DELETE", couponsTable,
		attribute.String("db.player_id", playerID.String()),
		attribute.Int("db.codes", len(codes)),
	)
	defer span.End()

	if len(codes) == 0 {
		return nil
	}
	query := `DELETE FROM coupons WHERE player_id = ? AND code IN (` + placeholders(len(codes)) + `)`
	args := append([]interface{}{playerID.String()}, stringArgs(codes)...)
	_, err := r.exec(ctx, span, query, args...)
	return err
}

// DeleteByPlayersAndCode 複数プレイヤーから指定コードのクーポンを削除
func (r *CouponRepository) DeleteByPlayersAndCode(ctx context.Context, playerIDs []uuid.UUID, code string) error {
	ctx, span := startSpan(ctx, r.tracer, "CouponRepository.DeleteByPlayersAndCode", "DELETE", couponsTable,
		attribute.Int("db.players", len(playerIDs)),
		attribute.String("db.code", code),
	)
	defer span.End()

	if len(playerIDs) == 0 {
		return nil
	}
	query := `DELETE FROM coupons WHERE code = ? AND player_id IN (` + placeholders(len(playerIDs)) + `)`
	args := append([]interface{}{code}, uuidArgs(playerIDs)...)
	_, err := r.exec(ctx, span, query, args...)
	return err
}

// DeleteByTemplate テンプレートのクーポンを全プレイヤーから削除
func (r *CouponRepository) DeleteByTemplate(ctx context.Context, template string) (int64, error) {
	ctx, span := startSpan(ctx, r.tracer, "CouponRepository.DeleteByTemplate", "DELETE", couponsTable,
		attribute.String("db.template", template),
	)
	defer span.End()

	query := `
		DELETE c FROM coupons c
		JOIN redemption_codes rc ON rc.code = c.code
		WHERE rc.template = ?
	`
	return r.exec(ctx, span, query, template)
}

// DeleteByPlayerAndTemplate プレイヤーが持つテンプレートのクーポンを削除
func (r *CouponRepository) DeleteByPlayerAndTemplate(ctx context.Context, playerID uuid.UUID, template string) (int64, error) {
	ctx, span := startSpan(ctx, r.tracer, "CouponRepository.DeleteByPlayerAndTemplate", "DELETE", couponsTable,
		attribute.String("db.player_id", playerID.String()),
		attribute.String("db.template", template),
	)
	defer span.End()

	query := `
		DELETE c FROM coupons c
		JOIN redemption_codes rc ON rc.code = c.code
		WHERE c.player_id = ? AND rc.template = ?
	`
	return r.exec(ctx, span, query, playerID.String(), template)
}

// DeleteAll 全クーポンを削除
func (r *CouponRepository) DeleteAll(ctx context.Context) error {
	ctx, span := startSpan(ctx, r.tracer, "CouponRepository.DeleteAll", "DELETE", couponsTable)
	defer span.End()

	_, err := r.exec(ctx, span, `DELETE FROM coupons`)
	return err
}
