package mysql

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"redeem-server/internal/domain/redemption_code"
)

const (
	logsTable  = "redeem_logs"
	logColumns = "l.id, l.player_id, l.code, l.redeemed_at"
)

// RedeemLogRepository MySQL実装のRedeemLogRepository
type RedeemLogRepository struct {
	db     *DB
	tracer trace.Tracer
}

// NewRedeemLogRepository 新しいRedeemLogRepositoryを作成
func NewRedeemLogRepository(db *DB) *RedeemLogRepository {
	return &RedeemLogRepository{
		db:     db,
		tracer: otel.Tracer("redeem-log-repository"),
	}
}

// Save 引き換え履歴を保存
func (r *RedeemLogRepository) Save(ctx context.Context, log *redemption_code.RedeemLog) error {
	ctx, span := startSpan(ctx, r.tracer, "RedeemLogRepository.Save", "INSERT", logsTable,
		attribute.String("db.player_id", log.PlayerID().String()),
		attribute.String("db.code", log.Code()),
	)
	defer span.End()

	_, err := r.db.conn(ctx).ExecContext(ctx,
		`INSERT INTO redeem_logs (player_id, code, redeemed_at) VALUES (?, ?, ?)`,
		log.PlayerID().String(), log.Code(), log.RedeemedAt(),
	)
	if err != nil {
		return fail(span, err, "failed to save redeem log")
	}

	span.SetStatus(otelcodes.Ok, "redeem log saved")
	return nil
}

func (r *RedeemLogRepository) query(ctx context.Context, span trace.Span, query string, args ...interface{}) ([]*redemption_code.RedeemLog, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fail(span, err, "failed to query redeem logs")
	}
	defer rows.Close()

	logs := make([]*redemption_code.RedeemLog, 0)
	for rows.Next() {
		var (
			id         int64
			playerID   string
			code       string
			redeemedAt time.Time
		)
		if err := rows.Scan(&id, &playerID, &code, &redeemedAt); err != nil {
			return nil, fail(span, err, "failed to scan redeem log")
		}
		pid, err := uuid.Parse(playerID)
		if err != nil {
			return nil, fail(span, err, "invalid player id")
		}
		logs = append(logs, redemption_code.RestoreRedeemLog(id, pid, code, redeemedAt))
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, err, "failed to iterate redeem logs")
	}

	span.SetAttributes(attribute.Int("db.rows", len(logs)))
	span.SetStatus(otelcodes.Ok, "redeem logs found")
	return logs, nil
}

func (r *RedeemLogRepository) exec(ctx context.Context, span trace.Span, query string, args ...interface{}) (int64, error) {
	result, err := r.db.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fail(span, err, "failed to delete redeem logs")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fail(span, err, "failed to get rows affected")
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", n))
	span.SetStatus(otelcodes.Ok, "redeem logs deleted")
	return n, nil
}

// FindByPlayer プレイヤーの履歴を取得
func (r *RedeemLogRepository) FindByPlayer(ctx context.Context, playerID uuid.UUID) ([]*redemption_code.RedeemLog, error) {
	ctx, span := startSpan(ctx, r.tracer, "RedeemLogRepository.FindByPlayer", "SELECT", logsTable,
		attribute.String("db.player_id", playerID.String()),
	)
	defer span.End()

	query := `SELECT ` + logColumns + ` FROM redeem_logs l WHERE l.player_id = ? ORDER BY l.redeemed_at DESC, l.id DESC`
	return r.query(ctx, span, query, playerID.String())
}

// FindByCode コードの履歴を取得
func (r *RedeemLogRepository) FindByCode(ctx context.Context, code string) ([]*redemption_code.RedeemLog, error) {
	ctx, span := startSpan(ctx, r.tracer, "RedeemLogRepository.FindByCode", "SELECT", logsTable,
		attribute.String("db.code", code),
	)
	defer span.End()

	query := `SELECT ` + logColumns + ` FROM redeem_logs l WHERE l.code = ? ORDER BY l.redeemed_at DESC, l.id DESC`
	return r.query(ctx, span, query, code)
}

// FindByPlayerAndCode プレイヤーとコードで履歴を取得
func (r *RedeemLogRepository) FindByPlayerAndCode(ctx context.Context, playerID uuid.UUID, code string) ([]*redemption_code.RedeemLog, error) {
	ctx, span := startSpan(ctx, r.tracer, "RedeemLogRepository.FindByPlayerAndCode", "SELECT", logsTable,
		attribute.String("db.player_id", playerID.String()),
		attribute.String("db.code", code),
	)
	defer span.End()

	query := `SELECT ` + logColumns + ` FROM redeem_logs l WHERE l.player_id = ? AND l.code = ? ORDER BY l.redeemed_at DESC, l.id DESC`
	return r.query(ctx, span, query, playerID.String(), code)
}

// FindByTemplate テンプレートに紐付くコードの履歴を取得
func (r *RedeemLogRepository) FindByTemplate(ctx context.Context, template string) ([]*redemption_code.RedeemLog, error) {
	ctx, span := startSpan(ctx, r.tracer, "RedeemLogRepository.FindByTemplate", "SELECT", logsTable,
		attribute.String("db.template", template),
	)
	defer span.End()

	query := `
		SELECT ` + logColumns + `
		FROM redeem_logs l
		JOIN redemption_codes rc ON rc.code = l.code
		WHERE rc.template = ?
		ORDER BY l.redeemed_at DESC, l.id DESC
	`
	return r.query(ctx, span, query, template)
}

// DeleteByID 履歴を削除
func (r *RedeemLogRepository) DeleteByID(ctx context.Context, id int64) error {
	ctx, span := startSpan(ctx, r.tracer, "RedeemLogRepository.DeleteByID", "DELETE", logsTable,
		attribute.Int64("db.id", id),
	)
	defer span.End()

	n, err := r.exec(ctx, span, `DELETE FROM redeem_logs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return redemption_code.ErrLogNotFound
	}
	return nil
}

// DeleteByPlayer プレイヤーの履歴を削除
func (r *RedeemLogRepository) DeleteByPlayer(ctx context.Context, playerID uuid.UUID) (int64, error) {
	ctx, span := startSpan(ctx, r.tracer, "RedeemLogRepository.DeleteByPlayer", "DELETE", logsTable,
		attribute.String("db.player_id", playerID.String()),
	)
	defer span.End()

	return r.exec(ctx, span, `DELETE FROM redeem_logs WHERE player_id = ?`, playerID.String())
}

// DeleteByCode コードの履歴を削除
func (r *RedeemLogRepository) DeleteByCode(ctx context.Context, code string) (int64, error) {
	ctx, span := startSpan(ctx, r.tracer, "RedeemLogRepository.DeleteByCode", "DELETE", logsTable,
		attribute.String("db.code", code),
	)
	defer span.End()

	return r.exec(ctx, span, `DELETE FROM redeem_logs WHERE code = ?`, code)
}

// DeleteByPlayerAndCode プレイヤーとコードの履歴を削除
func (r *RedeemLogRepository) DeleteByPlayerAndCode(ctx context.Context, playerID uuid.UUID, code string) (int64, error) {
	ctx, span := startSpan(ctx, r.tracer, "RedeemLogRepository.DeleteByPlayerAndCode", "DELETE", logsTable,
		attribute.String("db.player_id", playerID.String()),
		attribute.String("db.code", code),
	)
	defer span.End()

	return r.exec(ctx, span, `DELETE FROM redeem_logs WHERE player_id = ? AND code = ?`, playerID.String(), code)
}
