package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"redeem-server/internal/domain/redeem_template"
)

const (
	templatesTable  = "redeem_templates"
	templateColumns = "name, digit, properties, permission_required, locked, sync_flags"
)

// RedeemTemplateRepository MySQL実装のRedeemTemplateRepository
type RedeemTemplateRepository struct {
	db     *DB
	tracer trace.Tracer
}

// NewRedeemTemplateRepository 新しいRedeemTemplateRepositoryを作成
func NewRedeemTemplateRepository(db *DB) *RedeemTemplateRepository {
	return &RedeemTemplateRepository{
		db:     db,
		tracer: otel.Tracer("redeem-template-repository"),
	}
}

func scanTemplate(row rowScanner) (*redeem_template.RedeemTemplate, error) {
	var (
		name               string
		digit              int
		props, flagsJSON   []byte
		permissionRequired bool
		locked             bool
	)
	if err := row.Scan(&name, &digit, &props, &permissionRequired, &locked, &flagsJSON); err != nil {
		return nil, err
	}

	p, err := unmarshalProperties(props)
	if err != nil {
		return nil, err
	}

	// 保存されていないフラグは同期対象として扱う
	flags := redeem_template.AllSyncFlags()
	var stored map[string]bool
	if err := unmarshalJSON(flagsJSON, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync_flags: %w", err)
	}
	for k, v := range stored {
		if sp, err := redeem_template.NewSyncProperty(k); err == nil {
			flags[sp] = v
		}
	}

	return redeem_template.Restore(name, digit, p, permissionRequired, locked, flags), nil
}

// Exists テンプレートが存在するかチェック
func (r *RedeemTemplateRepository) Exists(ctx context.Context, name string) (bool, error) {
	ctx, span := startSpan(ctx, r.tracer, "RedeemTemplateRepository.Exists", "SELECT", templatesTable,
		attribute.String("db.template", name),
	)
	defer span.End()

	var count int
	err := r.db.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM redeem_templates WHERE name = ?`, name).Scan(&count)
	if err != nil {
		return false, fail(span, err, "failed to check template")
	}

	span.SetStatus(otelcodes.Ok, fmt.Sprintf("template exists: %v", count > 0))
	return count > 0, nil
}

// FindByName 名前でテンプレートを取得
func (r *RedeemTemplateRepository) FindByName(ctx context.Context, name string) (*redeem_template.RedeemTemplate, error) {
	ctx, span := startSpan(ctx, r.tracer, "RedeemTemplateRepository.FindByName", "SELECT", templatesTable,
		attribute.String("db.template", name),
	)
	defer span.End()

	query := `SELECT ` + templateColumns + ` FROM redeem_templates WHERE name = ?`
	tmpl, err := scanTemplate(r.db.conn(ctx).QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(otelcodes.Ok, "template not found")
		return nil, redeem_template.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fail(span, err, "failed to find template")
	}

	span.SetStatus(otelcodes.Ok, "template found")
	return tmpl, nil
}

// FindAll 全テンプレートを取得
func (r *RedeemTemplateRepository) FindAll(ctx context.Context) ([]*redeem_template.RedeemTemplate, error) {
	ctx, span := startSpan(ctx, r.tracer, "RedeemTemplateRepository.FindAll", "SELECT", templatesTable)
	defer span.End()

	rows, err := r.db.conn(ctx).QueryContext(ctx, `SELECT `+templateColumns+` FROM redeem_templates ORDER BY name`)
	if err != nil {
		return nil, fail(span, err, "failed to query templates")
	}
	defer rows.Close()

	templates := make([]*redeem_template.RedeemTemplate, 0)
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fail(span, err, "failed to scan template")
		}
		templates = append(templates, tmpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, err, "failed to iterate templates")
	}

	span.SetAttributes(attribute.Int("db.rows", len(templates)))
	span.SetStatus(otelcodes.Ok, "templates found")
	return templates, nil
}

// ListNames テンプレート名を並べて取得
func (r *RedeemTemplateRepository) ListNames(ctx context.Context, descending bool) ([]string, error) {
	ctx, span := startSpan(ctx, r.tracer, "RedeemTemplateRepository.ListNames", "SELECT", templatesTable)
	defer span.End()

	query := `SELECT name FROM redeem_templates ORDER BY name ASC`
	if descending {
		query = `SELECT name FROM redeem_templates ORDER BY name DESC`
	}

	rows, err := r.db.conn(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fail(span, err, "failed to list templates")
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fail(span, err, "failed to scan template name")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, err, "failed to iterate template names")
	}

	span.SetStatus(otelcodes.Ok, "template names listed")
	return names, nil
}

// Upsert テンプレートを挿入または置換
func (r *RedeemTemplateRepository) Upsert(ctx context.Context, tmpl *redeem_template.RedeemTemplate) error {
	ctx, span := startSpan(ctx, r.tracer, "RedeemTemplateRepository.Upsert", "UPSERT", templatesTable,
		attribute.String("db.template", tmpl.Name()),
	)
	defer span.End()

	props, err := marshalProperties(tmpl.Properties())
	if err != nil {
		return fail(span, err, "failed to marshal properties")
	}
	flags, err := json.Marshal(tmpl.SyncFlags())
	if err != nil {
		return fail(span, err, "failed to marshal sync flags")
	}

	query := `
		INSERT INTO redeem_templates (` + templateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			digit = VALUES(digit),
			properties = VALUES(properties),
			permission_required = VALUES(permission_required),
			locked = VALUES(locked),
			sync_flags = VALUES(sync_flags)
	`

	_, err = r.db.conn(ctx).ExecContext(ctx, query,
		tmpl.Name(),
		tmpl.Digit(),
		props,
		tmpl.PermissionRequired(),
		tmpl.Locked(),
		flags,
	)
	if err != nil {
		return fail(span, err, "failed to upsert template")
	}

	span.SetStatus(otelcodes.Ok, "template upserted")
	return nil
}

// Delete テンプレートを削除
func (r *RedeemTemplateRepository) Delete(ctx context.Context, name string) error {
	ctx, span := startSpan(ctx, r.tracer, "RedeemTemplateRepository.Delete", "DELETE", templatesTable,
		attribute.String("db.template", name),
	)
	defer span.End()

	result, err := r.db.conn(ctx).ExecContext(ctx, `DELETE FROM redeem_templates WHERE name = ?`, name)
	if err != nil {
		return fail(span, err, "failed to delete template")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fail(span, err, "failed to get rows affected")
	}
	if n == 0 {
		span.SetStatus(otelcodes.Error, "template not found")
		return redeem_template.ErrTemplateNotFound
	}

	span.SetStatus(otelcodes.Ok, "template deleted")
	return nil
}

// DeleteAll 全テンプレートを削除
func (r *RedeemTemplateRepository) DeleteAll(ctx context.Context) error {
	ctx, span := startSpan(ctx, r.tracer, "RedeemTemplateRepository.DeleteAll", "DELETE", templatesTable)
	defer span.End()

	if _, err := r.db.conn(ctx).ExecContext(ctx, `DELETE FROM redeem_templates`); err != nil {
		return fail(span, err, "failed to delete all templates")
	}

	span.SetStatus(otelcodes.Ok, "templates deleted")
	return nil
}
