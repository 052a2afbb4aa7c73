package code_redemption

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"redeem-server/internal/application/code_management"
	"redeem-server/internal/application/sequencer"
	"redeem-server/internal/domain/coupon"
	"redeem-server/internal/domain/player"
	"redeem-server/internal/domain/redemption_code"
	"redeem-server/internal/domain/service"
	otelinfra "redeem-server/internal/infrastructure/observability/otel"
)

// suggestionLimit コードが見つからない場合に返す候補数
const suggestionLimit = 5

// CodeStore 引き換えで使うコードストアの操作
type CodeStore interface {
	Find(ctx context.Context, code string) (*redemption_code.RedemptionCode, error)
	WithCode(ctx context.Context, code string, fn func(rc *redemption_code.RedemptionCode) (code_management.Change, error)) (<-chan sequencer.Result, error)
	Suggest(partial string, limit int) []string
	Now() time.Time
}

// CodeRedemptionApplicationService コード引き換えアプリケーションサービス
type CodeRedemptionApplicationService struct {
	codes       CodeStore
	eligibility *service.EligibilityService
	logs        redemption_code.RedeemLogRepository
	coupons     coupon.CouponRepository
	players     player.Directory
	rewards     redemption_code.RewardDispatcher
	events      redemption_code.EventPublisher
	mainThread  *sequencer.MainThread
	logger      *otelinfra.Logger
	metrics     *otelinfra.Metrics
	tracer      trace.Tracer
}

// NewCodeRedemptionApplicationService 新しいCodeRedemptionApplicationServiceを作成。
// coupons, players, rewards, eventsはnilの場合は使わない。
func NewCodeRedemptionApplicationService(
	codes CodeStore,
	eligibility *service.EligibilityService,
	logs redemption_code.RedeemLogRepository,
	coupons coupon.CouponRepository,
	players player.Directory,
	rewards redemption_code.RewardDispatcher,
	events redemption_code.EventPublisher,
	mainThread *sequencer.MainThread,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
) *CodeRedemptionApplicationService {
	return &CodeRedemptionApplicationService{
		codes:       codes,
		eligibility: eligibility,
		logs:        logs,
		coupons:     coupons,
		players:     players,
		rewards:     rewards,
		events:      events,
		mainThread:  mainThread,
		logger:      logger,
		metrics:     metrics,
		tracer:      otel.Tracer("code-redemption-service"),
	}
}

// Redeem コードを引き換える。
// 判定から回数の加算までをコードの排他区間で行い、報酬は永続化の完了後にメインコンテキストで配布する。
func (s *CodeRedemptionApplicationService) Redeem(ctx context.Context, req *RedeemCodeRequest) (*RedeemCodeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "CodeRedemptionApplicationService.Redeem")
	defer span.End()

	span.SetAttributes(
		attribute.String("code", req.Code),
		attribute.String("player_id", req.Player.String()),
	)

	s.remember(ctx, req)

	now := s.codes.Now()
	resp := &RedeemCodeResponse{Code: redemption_code.NormalizeCode(req.Code)}
	var decision service.Decision

	done, err := s.codes.WithCode(ctx, req.Code, func(rc *redemption_code.RedemptionCode) (code_management.Change, error) {
		d, err := s.eligibility.Evaluate(ctx, rc, service.RedemptionRequest{
			Player:     req.Player,
			PlayerName: req.PlayerName,
			Pin:        req.Pin,
			Address:    req.Address,
			Now:        now,
		})
		if err != nil {
			return code_management.Change{}, err
		}
		decision = d
		resp.Template = rc.Template()
		if !d.Reason.Eligible() {
			return code_management.Change{}, nil
		}

		rc.RecordRedemption(req.Player, now, req.Address)
		reward := redemption_code.RewardFor(rc, req.Player)
		resp.Reward = &reward

		entry := redemption_code.NewRedeemLog(req.Player, rc.Code(), now)
		return code_management.Change{
			Persist: true,
			Touch:   true,
			Also: func(ctx context.Context) error {
				if err := s.logs.Save(ctx, entry); err != nil {
					return err
				}
				return s.claimCoupon(ctx, req.Player, entry.Code())
			},
		}, nil
	})
	switch {
	case errors.Is(err, redemption_code.ErrCodeNotFound), errors.Is(err, redemption_code.ErrInvalidCode):
		decision = service.Decision{Reason: service.ReasonNotFound}
		resp.Suggestions = s.codes.Suggest(req.Code, suggestionLimit)
		done = sequencer.Completed(nil)
	case err != nil:
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.metrics.RecordError(ctx, "redeem_failed")
		return nil, fmt.Errorf("failed to redeem code: %w", err)
	}

	resp.Reason = decision.Reason
	span.SetAttributes(attribute.String("reason", decision.Reason.String()))
	s.metrics.RecordRedeemAttempt(ctx, decision.Reason.String())

	if decision.ConditionErr != nil {
		s.logger.Warn(ctx, "Failed to evaluate code condition", map[string]interface{}{
			"code":  resp.Code,
			"error": decision.ConditionErr.Error(),
		})
	}

	event := redemption_code.RedemptionEvent{
		Player:   req.Player,
		Code:     resp.Code,
		Template: resp.Template,
		Reason:   decision.Reason.String(),
		Success:  decision.Reason.Eligible(),
		Address:  req.Address,
		At:       now,
	}

	if !resp.Success() {
		s.logger.Info(ctx, "Code not redeemable", map[string]interface{}{
			"code":      resp.Code,
			"player_id": req.Player.String(),
			"reason":    decision.Reason.String(),
		})
		go s.publish(context.WithoutCancel(ctx), event)
		resp.Done = done
		return resp, nil
	}

	s.metrics.RecordRedeemSuccess(ctx, resp.Template)
	s.logger.Info(ctx, "Code redeemed", map[string]interface{}{
		"code":      resp.Code,
		"player_id": req.Player.String(),
	})
	resp.Done = s.afterPersist(context.WithoutCancel(ctx), done, *resp.Reward, event)
	return resp, nil
}

// afterPersist 永続化の完了後に報酬の配布とイベントの配信を行い、結果を転送する
func (s *CodeRedemptionApplicationService) afterPersist(ctx context.Context, done <-chan sequencer.Result, reward redemption_code.Reward, event redemption_code.RedemptionEvent) <-chan sequencer.Result {
	out := make(chan sequencer.Result, 1)
	go func() {
		defer close(out)
		res := <-done
		if !res.Success {
			s.logger.Error(ctx, "Redemption was not persisted, reward withheld", res.Err, map[string]interface{}{
				"code":      reward.Code,
				"player_id": reward.Player.String(),
			})
			out <- res
			return
		}
		s.dispatch(ctx, reward)
		s.publish(ctx, event)
		out <- res
	}()
	return out
}

// claimCoupon プレイヤーがクーポンとして所持している場合は使用済みにする
func (s *CodeRedemptionApplicationService) claimCoupon(ctx context.Context, id uuid.UUID, code string) error {
	if s.coupons == nil {
		return nil
	}
	err := s.coupons.MarkClaimed(ctx, id, code)
	if errors.Is(err, coupon.ErrCouponNotFound) || errors.Is(err, coupon.ErrCouponAlreadyClaimed) {
		return nil
	}
	return err
}

// dispatch 報酬の配布をメインコンテキストへ投入する
func (s *CodeRedemptionApplicationService) dispatch(ctx context.Context, reward redemption_code.Reward) {
	if s.rewards == nil {
		return
	}
	posted := s.mainThread.Post(func() {
		if err := s.rewards.Dispatch(ctx, reward); err != nil {
			s.logger.Error(ctx, "Failed to dispatch reward", err, map[string]interface{}{
				"code":      reward.Code,
				"player_id": reward.Player.String(),
			})
			s.metrics.RecordError(ctx, "reward_dispatch_failed")
		}
	})
	if !posted {
		s.logger.Warn(ctx, "Main thread closed, reward dropped", map[string]interface{}{
			"code":      reward.Code,
			"player_id": reward.Player.String(),
		})
	}
}

func (s *CodeRedemptionApplicationService) publish(ctx context.Context, event redemption_code.RedemptionEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn(ctx, "Failed to publish redemption event", map[string]interface{}{
			"code":  event.Code,
			"error": err.Error(),
		})
	}
}

// remember 引き換えを試みたプレイヤーをディレクトリに記録
func (s *CodeRedemptionApplicationService) remember(ctx context.Context, req *RedeemCodeRequest) {
	if s.players == nil || req.PlayerName == "" {
		return
	}
	if err := s.players.Remember(ctx, req.Player, req.PlayerName); err != nil {
		s.logger.Warn(ctx, "Failed to remember player", map[string]interface{}{
			"player_id": req.Player.String(),
			"error":     err.Error(),
		})
	}
}

// Check 引き換え可否のみを判定する。キャッシュの複製に対して評価し、コードの排他ロックは取らない。
func (s *CodeRedemptionApplicationService) Check(ctx context.Context, req *RedeemCodeRequest) (service.Reason, error) {
	ctx, span := s.tracer.Start(ctx, "CodeRedemptionApplicationService.Check")
	defer span.End()
	span.SetAttributes(attribute.String("code", req.Code))

	rc, err := s.codes.Find(ctx, req.Code)
	if errors.Is(err, redemption_code.ErrCodeNotFound) || errors.Is(err, redemption_code.ErrInvalidCode) {
		return service.ReasonNotFound, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return "", err
	}

	d, err := s.eligibility.Evaluate(ctx, rc, service.RedemptionRequest{
		Player:     req.Player,
		PlayerName: req.PlayerName,
		Pin:        req.Pin,
		Address:    req.Address,
		Now:        s.codes.Now(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return "", err
	}
	return d.Reason, nil
}
