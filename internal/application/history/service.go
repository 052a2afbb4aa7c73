package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"redeem-server/internal/domain/redemption_code"
	otelinfra "redeem-server/internal/infrastructure/observability/otel"
)

// ErrEmptyFilter 条件が指定されていないエラー
var ErrEmptyFilter = errors.New("player, code or template is required")

// HistoryApplicationService 引き換え履歴アプリケーションサービス
type HistoryApplicationService struct {
	logRepo redemption_code.RedeemLogRepository
	logger  *otelinfra.Logger
	metrics *otelinfra.Metrics
	tracer  trace.Tracer
}

// NewHistoryApplicationService 新しいHistoryApplicationServiceを作成
func NewHistoryApplicationService(
	logRepo redemption_code.RedeemLogRepository,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
) *HistoryApplicationService {
	return &HistoryApplicationService{
		logRepo: logRepo,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer("history-service"),
	}
}

// GetRedeemHistory 引き換え履歴を新しい順に取得
func (s *HistoryApplicationService) GetRedeemHistory(ctx context.Context, req *GetRedeemHistoryRequest) (*GetRedeemHistoryResponse, error) {
	ctx, span := s.tracer.Start(ctx, "HistoryApplicationService.GetRedeemHistory")
	defer span.End()

	code := redemption_code.NormalizeCode(req.Code)
	template := strings.TrimSpace(req.Template)
	span.SetAttributes(
		attribute.String("code", code),
		attribute.String("template", template),
		attribute.Int("limit", req.Limit),
		attribute.Int("offset", req.Offset),
	)

	// バリデーション
	if req.Limit <= 0 {
		req.Limit = 50 // デフォルト値
	}
	if req.Limit > 100 {
		req.Limit = 100 // 最大値
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	var (
		logs []*redemption_code.RedeemLog
		err  error
	)
	switch {
	case req.Player != nil && code != "":
		logs, err = s.logRepo.FindByPlayerAndCode(ctx, *req.Player, code)
	case req.Player != nil:
		logs, err = s.logRepo.FindByPlayer(ctx, *req.Player)
	case code != "":
		logs, err = s.logRepo.FindByCode(ctx, code)
	case template != "":
		logs, err = s.logRepo.FindByTemplate(ctx, template)
	default:
		span.RecordError(ErrEmptyFilter)
		span.SetStatus(otelcodes.Error, ErrEmptyFilter.Error())
		return nil, ErrEmptyFilter
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Error(ctx, "Failed to get redeem history", err, map[string]interface{}{
			"code":     code,
			"template": template,
		})
		return nil, fmt.Errorf("failed to get redeem history: %w", err)
	}

	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].RedeemedAt().After(logs[j].RedeemedAt())
	})

	total := len(logs)
	start := req.Offset
	if start > total {
		start = total
	}
	end := start + req.Limit
	if end > total {
		end = total
	}

	return &GetRedeemHistoryResponse{
		Logs:   logs[start:end],
		Total:  total,
		Limit:  req.Limit,
		Offset: req.Offset,
	}, nil
}

// DeleteRedeemHistory 引き換え履歴を削除し、削除件数を返す
func (s *HistoryApplicationService) DeleteRedeemHistory(ctx context.Context, req *DeleteRedeemHistoryRequest) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "HistoryApplicationService.DeleteRedeemHistory")
	defer span.End()

	code := redemption_code.NormalizeCode(req.Code)

	var (
		n   int64
		err error
	)
	switch {
	case req.ID > 0:
		err = s.logRepo.DeleteByID(ctx, req.ID)
		if err == nil {
			n = 1
		}
	case req.Player != nil && code != "":
		n, err = s.logRepo.DeleteByPlayerAndCode(ctx, *req.Player, code)
	case req.Player != nil:
		n, err = s.logRepo.DeleteByPlayer(ctx, *req.Player)
	case code != "":
		n, err = s.logRepo.DeleteByCode(ctx, code)
	default:
		err = ErrEmptyFilter
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return 0, err
	}

	span.SetAttributes(attribute.Int64("deleted", n))
	s.logger.Info(ctx, "Redeem history deleted", map[string]interface{}{
		"code":    code,
		"deleted": n,
	})
	return n, nil
}
