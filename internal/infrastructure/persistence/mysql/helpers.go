package mysql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"redeem-server/internal/domain/duration"
	"redeem-server/internal/domain/redeem_property"
)

// startSpan リポジトリ操作のスパンを開始
func startSpan(ctx context.Context, tracer trace.Tracer, name, operation, table string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.String("db.operation", operation),
		attribute.String("db.table", table),
	)
	span.SetAttributes(attrs...)
	return ctx, span
}

// fail スパンにエラーを記録してラップしたエラーを返す
func fail(span trace.Span, err error, format string, args ...interface{}) error {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// placeholders "?, ?, ?" を返す
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func uuidArgs(ids []uuid.UUID) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}
	return args
}

// propertiesDocument プロパティのJSONカラム表現
type propertiesDocument struct {
	Enabled     bool                     `json:"enabled"`
	Commands    []string                 `json:"commands"`
	Duration    string                   `json:"duration"`
	Cooldown    string                   `json:"cooldown"`
	Permission  string                   `json:"permission"`
	Pin         int                      `json:"pin"`
	Redemption  int                      `json:"redemption"`
	PlayerLimit int                      `json:"player_limit"`
	Messages    redeem_property.Messages `json:"messages"`
	Sound       redeem_property.Sound    `json:"sound"`
	Rewards     []string                 `json:"rewards"`
	Condition   string                   `json:"condition"`
}

func marshalProperties(p redeem_property.Properties) ([]byte, error) {
	return json.Marshal(propertiesDocument{
		Enabled:     p.Enabled,
		Commands:    p.Commands,
		Duration:    p.Duration.String(),
		Cooldown:    p.Cooldown.String(),
		Permission:  p.Permission,
		Pin:         int(p.Pin),
		Redemption:  p.Redemption,
		PlayerLimit: p.PlayerLimit,
		Messages:    p.Messages,
		Sound:       p.Sound,
		Rewards:     p.Rewards,
		Condition:   p.Condition,
	})
}

func unmarshalProperties(data []byte) (redeem_property.Properties, error) {
	doc := propertiesDocument{
		Messages: redeem_property.Messages{Title: redeem_property.DefaultTitle()},
		Sound:    redeem_property.DefaultSound(),
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return redeem_property.Properties{}, fmt.Errorf("failed to unmarshal properties: %w", err)
	}

	p := redeem_property.Properties{
		Enabled:     doc.Enabled,
		Commands:    doc.Commands,
		Duration:    duration.Duration(doc.Duration),
		Cooldown:    duration.Duration(doc.Cooldown),
		Permission:  doc.Permission,
		Pin:         redeem_property.Pin(doc.Pin),
		Redemption:  doc.Redemption,
		PlayerLimit: doc.PlayerLimit,
		Messages:    doc.Messages,
		Sound:       doc.Sound,
		Rewards:     doc.Rewards,
		Condition:   doc.Condition,
	}
	if p.Duration == "" {
		p.Duration = duration.Disabled
	}
	if p.Cooldown == "" {
		p.Cooldown = duration.Disabled
	}
	return p.Clone(), nil
}

// unmarshalJSON 空カラムはゼロ値のまま扱う
func unmarshalJSON(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// isDuplicateKey 一意制約違反（MySQL 1062）かどうかを返す
func isDuplicateKey(err error) bool {
	var me *mysqldriver.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
