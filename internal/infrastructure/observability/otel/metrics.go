package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics メトリクス定義
type Metrics struct {
	// 引き換え試行数（判定理由別）
	RedeemAttempts metric.Int64Counter

	// 引き換え成功数（テンプレート別）
	RedeemSuccess metric.Int64Counter

	// コード変更操作数
	CodeMutations metric.Int64Counter

	// テンプレート同期で処理したコード数
	TemplateSyncCodes metric.Int64Counter

	// クーポン操作数
	CouponOperations metric.Int64Counter

	// キャッシュ上のコード数
	CachedCodes metric.Int64Gauge

	// リクエスト数
	RequestCount metric.Int64Counter

	// レスポンス時間
	ResponseTime metric.Float64Histogram

	// エラー数
	ErrorCount metric.Int64Counter
}

// NewMetrics 新しいMetricsを作成
func NewMetrics(meterName string) (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.RedeemAttempts, "redeem_attempts_total", "Total number of redeem attempts by decision"},
		{&m.RedeemSuccess, "redeem_success_total", "Total number of successful redemptions"},
		{&m.CodeMutations, "code_mutations_total", "Total number of code mutations"},
		{&m.TemplateSyncCodes, "template_sync_codes_total", "Codes processed by template sync"},
		{&m.CouponOperations, "coupon_operations_total", "Total number of coupon operations"},
		{&m.RequestCount, "http_requests_total", "Total number of requests"},
		{&m.ErrorCount, "errors_total", "Total number of errors"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	cachedCodes, err := meter.Int64Gauge(
		"cached_codes",
		metric.WithDescription("Number of codes held in the in-memory cache"),
	)
	if err != nil {
		return nil, err
	}
	m.CachedCodes = cachedCodes

	responseTime, err := meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("Response time in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	m.ResponseTime = responseTime

	return m, nil
}

// RecordRedeemAttempt 引き換え試行を記録
func (m *Metrics) RecordRedeemAttempt(ctx context.Context, reason string) {
	m.RedeemAttempts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordRedeemSuccess 引き換え成功を記録
func (m *Metrics) RecordRedeemSuccess(ctx context.Context, template string) {
	m.RedeemSuccess.Add(ctx, 1,
		metric.WithAttributes(attribute.String("template", template)),
	)
}

// RecordCodeMutation コード変更を記録
func (m *Metrics) RecordCodeMutation(ctx context.Context, operation string, count int) {
	m.CodeMutations.Add(ctx, int64(count),
		metric.WithAttributes(attribute.String("operation", operation)),
	)
}

// RecordTemplateSync テンプレート同期結果を記録
func (m *Metrics) RecordTemplateSync(ctx context.Context, updated, failed, skipped int) {
	for result, n := range map[string]int{"updated": updated, "failed": failed, "skipped": skipped} {
		if n == 0 {
			continue
		}
		m.TemplateSyncCodes.Add(ctx, int64(n),
			metric.WithAttributes(attribute.String("result", result)),
		)
	}
}

// RecordCouponOperation クーポン操作を記録
func (m *Metrics) RecordCouponOperation(ctx context.Context, operation string, count int) {
	m.CouponOperations.Add(ctx, int64(count),
		metric.WithAttributes(attribute.String("operation", operation)),
	)
}

// RecordCachedCodes キャッシュ上のコード数を記録
func (m *Metrics) RecordCachedCodes(ctx context.Context, n int) {
	m.CachedCodes.Record(ctx, int64(n))
}

// RecordRequest リクエストを記録
func (m *Metrics) RecordRequest(ctx context.Context, method, path string) {
	m.RequestCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path),
		),
	)
}

// RecordResponseTime レスポンス時間を記録
func (m *Metrics) RecordResponseTime(ctx context.Context, method, path string, duration float64) {
	m.ResponseTime.Record(ctx, duration,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path),
		),
	)
}

// RecordError エラーを記録
func (m *Metrics) RecordError(ctx context.Context, errorType string) {
	m.ErrorCount.Add(ctx, 1,
		metric.WithAttributes(attribute.String("error_type", errorType)),
	)
}
