package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"redeem-server/internal/domain/redemption_code"
)

const (
	codesTable   = "redemption_codes"
	codeColumns  = "code, template, sync, properties, used_by, last_redeemed, target, ip_limit, valid_from, modified, server"
	batchMaxRows = 500
)

// RedemptionCodeRepository MySQL実装のRedemptionCodeRepository
type RedemptionCodeRepository struct {
	db     *DB
	tracer trace.Tracer
}

// NewRedemptionCodeRepository 新しいRedemptionCodeRepositoryを作成
func NewRedemptionCodeRepository(db *DB) *RedemptionCodeRepository {
	return &RedemptionCodeRepository{
		db:     db,
		tracer: otel.Tracer("redemption-code-repository"),
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanCode 1行を引き換えコードに変換
func scanCode(row rowScanner) (*redemption_code.RedemptionCode, error) {
	var (
		s                                                 redemption_code.State
		props, usedBy, lastRedeemed, target, ipLimitJSON []byte
		usedByDoc                                         map[uuid.UUID]int
		lastRedeemedDoc                                   map[uuid.UUID]time.Time
		ipLimitDoc                                        map[uuid.UUID]string
	)

	if err := row.Scan(
		&s.Code,
		&s.Template,
		&s.Sync,
		&props,
		&usedBy,
		&lastRedeemed,
		&target,
		&ipLimitJSON,
		&s.ValidFrom,
		&s.Modified,
		&s.Server,
	); err != nil {
		return nil, err
	}

	var err error
	if s.Properties, err = unmarshalProperties(props); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(usedBy, &usedByDoc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal used_by: %w", err)
	}
	if err := unmarshalJSON(lastRedeemed, &lastRedeemedDoc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal last_redeemed: %w", err)
	}
	if err := unmarshalJSON(target, &s.Target); err != nil {
		return nil, fmt.Errorf("failed to unmarshal target: %w", err)
	}
	if err := unmarshalJSON(ipLimitJSON, &ipLimitDoc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ip_limit: %w", err)
	}
	s.UsedBy = usedByDoc
	s.LastRedeemed = lastRedeemedDoc
	s.IPLimit = ipLimitDoc

	return redemption_code.Restore(s), nil
}

// codeArgs INSERT用の値を列順に返す
func codeArgs(rc *redemption_code.RedemptionCode) ([]interface{}, error) {
	s := rc.State()

	props, err := marshalProperties(s.Properties)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal properties: %w", err)
	}
	docs := make([][]byte, 0, 4)
	for _, v := range []interface{}{s.UsedBy, s.LastRedeemed, s.Target, s.IPLimit} {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal code state: %w", err)
		}
		docs = append(docs, b)
	}

	return []interface{}{
		s.Code, s.Template, s.Sync, props,
		docs[0], docs[1], docs[2], docs[3],
		s.ValidFrom, s.Modified, s.Server,
	}, nil
}

func (r *RedemptionCodeRepository) query(ctx context.Context, span trace.Span, query string, args ...interface{}) ([]*redemption_code.RedemptionCode, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fail(span, err, "failed to query redemption codes")
	}
	defer rows.Close()

	codes := make([]*redemption_code.RedemptionCode, 0)
	for rows.Next() {
		rc, err := scanCode(rows)
		if err != nil {
			return nil, fail(span, err, "failed to scan redemption code")
		}
		codes = append(codes, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, err, "failed to iterate redemption codes")
	}

	span.SetAttributes(attribute.Int("db.rows", len(codes)))
	span.SetStatus(otelcodes.Ok, "redemption codes found")
	return codes, nil
}

// FindByCode コードで引き換えコードを取得
func (r *RedemptionCodeRepository) FindByCode(ctx context.Context, code string) (*redemption_code.RedemptionCode, error) {
	ctx, span := startSpan(ctx, r.tracer, "RedemptionCodeRepository.FindByCode", "SELECT", codesTable,
		attribute.String("db.code", code),
	)
	defer span.End()

	query := `SELECT ` + codeColumns + ` FROM redemption_codes WHERE code = ?`

	rc, err := scanCode(r.db.conn(ctx).QueryRowContext(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(otelcodes.Ok, "redemption code not found")
		return nil, redemption_code.ErrCodeNotFound
	}
	if err != nil {
		return nil, fail(span, err, "failed to find redemption code")
	}

	span.SetAttributes(attribute.String("db.template", rc.Template()))
	span.SetStatus(otelcodes.Ok, "redemption code found")
	return rc, nil
}

// FindByCodes 複数コードを取得
func (r *RedemptionCodeRepository) FindByCodes(ctx context.Context, codes []string) ([]*redemption_code.RedemptionCode, error) {
	ctx, span := startSpan(ctx, r.tracer, "RedemptionCodeRepository.FindByCodes", "SELECT", codesTable,
		attribute.Int("db.codes", len(codes)),
	)
	defer span.End()

	if len(codes) == 0 {
		return []*redemption_code.RedemptionCode{}, nil
	}

	query := `SELECT ` + codeColumns + ` FROM redemption_codes WHERE code IN (` + placeholders(len(codes)) + `) ORDER BY code`
	return r.query(ctx, span, query, stringArgs(codes)...)
}

// orderClause 並び替え指定をORDER BY句に変換
func orderClause(order redemption_code.SortOrder) string {
	column := "code"
	if order.Field.Valid() {
		column = string(order.Field)
	}
	direction := "ASC"
	if order.Descending {
		direction = "DESC"
	}
	if column == "code" {
		return fmt.Sprintf("ORDER BY code %s", direction)
	}
	return fmt.Sprintf("ORDER BY %s %s, code ASC", column, direction)
}

// FindAll 全コードを並べて取得
func (r *RedemptionCodeRepository) FindAll(ctx context.Context, order redemption_code.SortOrder) ([]*redemption_code.RedemptionCode, error) {
	ctx, span := startSpan(ctx, r.tracer, "RedemptionCodeRepository.FindAll", "SELECT", codesTable,
		attribute.String("db.sort", string(order.Field)),
		attribute.Bool("db.descending", order.Descending),
	)
	defer span.End()

	query := `SELECT ` + codeColumns + ` FROM redemption_codes ` + orderClause(order)
	return r.query(ctx, span, query)
}

// FindByTemplate テンプレート名と同期状態で取得
func (r *RedemptionCodeRepository) FindByTemplate(ctx context.Context, template string, lock redemption_code.LockStatus) ([]*redemption_code.RedemptionCode, error) {
	ctx, span := startSpan(ctx, r.tracer, "RedemptionCodeRepository.FindByTemplate", "SELECT", codesTable,
		attribute.String("db.template", template),
		attribute.String("db.lock_status", lock.String()),
	)
	defer span.End()

	var sb strings.Builder
	sb.WriteString(`SELECT ` + codeColumns + ` FROM redemption_codes WHERE template = ?`)
	switch lock {
	case redemption_code.LockStatusLocked:
		sb.WriteString(` AND sync = TRUE`)
	case redemption_code.LockStatusUnlocked:
		sb.WriteString(` AND sync = FALSE`)
	}
	sb.WriteString(` ORDER BY code`)

	return r.query(ctx, span, sb.String(), template)
}

// ListCodes コード文字列の一覧を取得
func (r *RedemptionCodeRepository) ListCodes(ctx context.Context) ([]string, error) {
	ctx, span := startSpan(ctx, r.tracer, "RedemptionCodeRepository.ListCodes", "SELECT", codesTable)
	defer span.End()

	return r.selectCodes(ctx, span, `SELECT code FROM redemption_codes ORDER BY code`)
}

func (r *RedemptionCodeRepository) selectCodes(ctx context.Context, span trace.Span, query string, args ...interface{}) ([]string, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fail(span, err, "failed to list codes")
	}
	defer rows.Close()

	codes := make([]string, 0)
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fail(span, err, "failed to scan code")
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, err, "failed to iterate codes")
	}

	span.SetStatus(otelcodes.Ok, "codes listed")
	return codes, nil
}

// Exists コードが存在するかチェック
func (r *RedemptionCodeRepository) Exists(ctx context.Context, code string) (bool, error) {
	ctx, span := startSpan(ctx, r.tracer, "RedemptionCodeRepository.Exists", "SELECT", codesTable,
		attribute.String("db.code", code),
	)
	defer span.End()

	var count int
	err := r.db.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM redemption_codes WHERE code = ?`, code).Scan(&count)
	if err != nil {
		return false, fail(span, err, "failed to check code")
	}

	span.SetStatus(otelcodes.Ok, fmt.Sprintf("code exists: %v", count > 0))
	return count > 0, nil
}

// ExistingCodes 指定コードのうち存在するものを返す
func (r *RedemptionCodeRepository) ExistingCodes(ctx context.Context, codes []string) ([]string, error) {
	ctx, span := startSpan(ctx, r.tracer, "RedemptionCodeRepository.ExistingCodes", "SELECT", codesTable,
		attribute.Int("db.codes", len(codes)),
	)
	defer span.End()

	if len(codes) == 0 {
		return []string{}, nil
	}

	query := `SELECT code FROM redemption_codes WHERE code IN (` + placeholders(len(codes)) + `) ORDER BY code`
	return r.selectCodes(ctx, span, query, stringArgs(codes)...)
}

// Create 引き換えコードを作成
func (r *RedemptionCodeRepository) Create(ctx context.Context, code *redemption_code.RedemptionCode) error {
	return r.CreateBatch(ctx, []*redemption_code.RedemptionCode{code})
}

// CreateBatch 複数の引き換えコードを作成
func (r *RedemptionCodeRepository) CreateBatch(ctx context.Context, codes []*redemption_code.RedemptionCode) error {
	ctx, span := startSpan(ctx, r.tracer, "RedemptionCodeRepository.CreateBatch", "INSERT", codesTable,
		attribute.Int("db.codes", len(codes)),
	)
	defer span.End()

	if len(codes) == 0 {
		return nil
	}

	err := r.db.inTx(ctx, func(ctx context.Context) error {
		for start := 0; start < len(codes); start += batchMaxRows {
			end := min(start+batchMaxRows, len(codes))
			chunk := codes[start:end]

			values := make([]string, len(chunk))
			args := make([]interface{}, 0, len(chunk)*11)
			for i, rc := range chunk {
				values[i] = "(" + placeholders(11) + ")"
				row, err := codeArgs(rc)
				if err != nil {
					return err
				}
				args = append(args, row...)
			}

			query := `INSERT INTO redemption_codes (` + codeColumns + `) VALUES ` + strings.Join(values, ", ")
			if _, err := r.db.conn(ctx).ExecContext(ctx, query, args...); err != nil {
				if isDuplicateKey(err) {
					return redemption_code.ErrCodeAlreadyExists
				}
				return err
			}
		}
		return nil
	})
	if errors.Is(err, redemption_code.ErrCodeAlreadyExists) {
		span.SetStatus(otelcodes.Error, "duplicate code")
		return err
	}
	if err != nil {
		return fail(span, err, "failed to create redemption codes")
	}

	span.SetStatus(otelcodes.Ok, "redemption codes created")
	return nil
}

// Update 引き換えコードを更新
func (r *RedemptionCodeRepository) Update(ctx context.Context, code *redemption_code.RedemptionCode) error {
	ctx, span := startSpan(ctx, r.tracer, "RedemptionCodeRepository.Update", "UPDATE", codesTable,
		attribute.String("db.code", code.Code()),
	)
	defer span.End()

	args, err := codeArgs(code)
	if err != nil {
		return fail(span, err, "failed to encode redemption code")
	}

	query := `
		UPDATE redemption_codes
		SET
			template = ?, sync = ?, properties = ?,
			used_by = ?, last_redeemed = ?, target = ?, ip_limit = ?,
			valid_from = ?, modified = ?, server = ?
		WHERE code = ?
	`

	result, err := r.db.conn(ctx).ExecContext(ctx, query, append(args[1:], args[0])...)
	if err != nil {
		return fail(span, err, "failed to update redemption code")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fail(span, err, "failed to get rows affected")
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", rowsAffected))

	// MySQLは値が変わらない場合に0を返すため、存在確認は別途行う
	if rowsAffected == 0 {
		exists, err := r.Exists(ctx, code.Code())
		if err != nil {
			return err
		}
		if !exists {
			span.SetStatus(otelcodes.Error, "redemption code not found")
			return redemption_code.ErrCodeNotFound
		}
	}

	span.SetStatus(otelcodes.Ok, "redemption code updated")
	return nil
}

// UpdateBatch 複数の引き換えコードを更新
func (r *RedemptionCodeRepository) UpdateBatch(ctx context.Context, codes []*redemption_code.RedemptionCode) error {
	return r.db.inTx(ctx, func(ctx context.Context) error {
		for _, rc := range codes {
			if err := r.Update(ctx, rc); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete 引き換えコードを削除
func (r *RedemptionCodeRepository) Delete(ctx context.Context, code string) error {
	ctx, span := startSpan(ctx, r.tracer, "RedemptionCodeRepository.Delete", "DELETE", codesTable,
		attribute.String("db.code", code),
	)
	defer span.End()

	result, err := r.db.conn(ctx).ExecContext(ctx, `DELETE FROM redemption_codes WHERE code = ?`, code)
	if err != nil {
		return fail(span, err, "failed to delete redemption code")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fail(span, err, "failed to get rows affected")
	}
	if n == 0 {
		span.SetStatus(otelcodes.Error, "redemption code not found")
		return redemption_code.ErrCodeNotFound
	}

	span.SetStatus(otelcodes.Ok, "redemption code deleted")
	return nil
}

// DeleteBatch 複数の引き換えコードを削除
func (r *RedemptionCodeRepository) DeleteBatch(ctx context.Context, codes []string) error {
	ctx, span := startSpan(ctx, r.tracer, "RedemptionCodeRepository.DeleteBatch", "DELETE", codesTable,
		attribute.Int("db.codes", len(codes)),
	)
	defer span.End()

	if len(codes) == 0 {
		return nil
	}

	query := `DELETE FROM redemption_codes WHERE code IN (` + placeholders(len(codes)) + `)`
	if _, err := r.db.conn(ctx).ExecContext(ctx, query, stringArgs(codes)...); err != nil {
		return fail(span, err, "failed to delete redemption codes")
	}

	span.SetStatus(otelcodes.Ok, "redemption codes deleted")
	return nil
}

// DeleteByTemplate テンプレートに紐付くコードを削除
func (r *RedemptionCodeRepository) DeleteByTemplate(ctx context.Context, template string) (int64, error) {
	ctx, span := startSpan(ctx, r.tracer, "RedemptionCodeRepository.DeleteByTemplate", "DELETE", codesTable,
		attribute.String("db.template", template),
	)
	defer span.End()

	result, err := r.db.conn(ctx).ExecContext(ctx, `DELETE FROM redemption_codes WHERE template = ?`, template)
	if err != nil {
		return 0, fail(span, err, "failed to delete redemption codes by template")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fail(span, err, "failed to get rows affected")
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", n))
	span.SetStatus(otelcodes.Ok, "redemption codes deleted")
	return n, nil
}

// DeleteAll 全コードを削除
func (r *RedemptionCodeRepository) DeleteAll(ctx context.Context) error {
	ctx, span := startSpan(ctx, r.tracer, "RedemptionCodeRepository.DeleteAll", "DELETE", codesTable)
	defer span.End()

	if _, err := r.db.conn(ctx).ExecContext(ctx, `DELETE FROM redemption_codes`); err != nil {
		return fail(span, err, "failed to delete all redemption codes")
	}

	span.SetStatus(otelcodes.Ok, "redemption codes deleted")
	return nil
}
