package coupon_wallet

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"redeem-server/internal/application/code_management"
	"redeem-server/internal/application/sequencer"
	"redeem-server/internal/domain/coupon"
	"redeem-server/internal/domain/player"
	"redeem-server/internal/domain/redemption_code"
	otelinfra "redeem-server/internal/infrastructure/observability/otel"
)

// fanOutLimit 一括操作で同時に処理するプレイヤー数
const fanOutLimit = 8

// CodeStore クーポン付与で使うコードストアの操作
type CodeStore interface {
	Find(ctx context.Context, code string) (*redemption_code.RedemptionCode, error)
	Create(ctx context.Context, req *code_management.CreateRequest) (*code_management.CreateResponse, <-chan sequencer.Result, error)
	SetTargets(ctx context.Context, code string, players []uuid.UUID) (<-chan sequencer.Result, error)
	Now() time.Time
}

// Service クーポンウォレットサービス
type Service struct {
	coupons    coupon.CouponRepository
	codes      CodeStore
	players    player.Directory
	queue      player.NotificationQueue
	notifier   player.Notifier
	mainThread *sequencer.MainThread
	logger     *otelinfra.Logger
	metrics    *otelinfra.Metrics
	tracer     trace.Tracer
}

// NewService 新しいServiceを作成。queue, notifierはnilの場合は通知しない。
func NewService(
	coupons coupon.CouponRepository,
	codes CodeStore,
	players player.Directory,
	queue player.NotificationQueue,
	notifier player.Notifier,
	mainThread *sequencer.MainThread,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
) *Service {
	return &Service{
		coupons:    coupons,
		codes:      codes,
		players:    players,
		queue:      queue,
		notifier:   notifier,
		mainThread: mainThread,
		logger:     logger,
		metrics:    metrics,
		tracer:     otel.Tracer("coupon-wallet-service"),
	}
}

// Give 既存のコードをプレイヤーのウォレットに付与
func (s *Service) Give(ctx context.Context, id uuid.UUID, code string) (*coupon.Coupon, error) {
	ctx, span := s.tracer.Start(ctx, "CouponWalletService.Give")
	defer span.End()

	span.SetAttributes(
		attribute.String("player_id", id.String()),
		attribute.String("code", code),
	)

	rc, err := s.codes.Find(ctx, code)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	owned, err := s.coupons.Exists(ctx, id, rc.Code())
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("failed to check coupon: %w", err)
	}
	if owned {
		recordError(span, coupon.ErrCouponAlreadyOwned)
		return nil, coupon.ErrCouponAlreadyOwned
	}

	c := coupon.NewCoupon(id, rc.Code(), s.codes.Now())
	if err := s.coupons.Add(ctx, c); err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("failed to add coupon: %w", err)
	}

	s.metrics.RecordCouponOperation(ctx, "give", 1)
	s.logger.Info(ctx, "Coupon given", map[string]interface{}{
		"player_id": id.String(),
		"code":      rc.Code(),
	})
	s.notify(ctx, id, s.notification(player.NotificationCoupon, rc, ""), nil)
	return c, nil
}

// GiveRandom ランダムなコードを生成してプレイヤーに付与し、生成したコードを返す
func (s *Service) GiveRandom(ctx context.Context, req *GiveRandomRequest) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "CouponWalletService.GiveRandom")
	defer span.End()

	span.SetAttributes(
		attribute.String("player_id", req.Player.String()),
		attribute.String("template", req.Template),
		attribute.Int("amount", req.Amount),
	)

	if req.Amount <= 0 {
		err := fmt.Errorf("%w: %d", redemption_code.ErrInvalidAmount, req.Amount)
		recordError(span, err)
		return nil, err
	}

	given, err := s.giveGenerated(ctx, req.Template, req.Digit, req.Secured, repeat(req.Player, req.Amount))
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	codes := make([]string, 0, len(given))
	for _, g := range given {
		codes = append(codes, g.code)
	}
	return codes, nil
}

// GiveToAll 既存のコードを全プレイヤー（またはオンラインのプレイヤー）に付与。既に所持しているプレイヤーはスキップする。
func (s *Service) GiveToAll(ctx context.Context, req *GiveToAllRequest) (*GiveResult, error) {
	ctx, span := s.tracer.Start(ctx, "CouponWalletService.GiveToAll")
	defer span.End()

	span.SetAttributes(
		attribute.String("code", req.Code),
		attribute.Bool("online_only", req.OnlineOnly),
	)

	rc, err := s.codes.Find(ctx, req.Code)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	recipients, err := s.recipients(ctx, req.OnlineOnly)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	result := &GiveResult{Given: map[uuid.UUID]string{}, Skipped: []uuid.UUID{}}
	if len(recipients) == 0 {
		return result, nil
	}

	owners, err := s.coupons.OwnersOf(ctx, recipients, rc.Code())
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("failed to find coupon owners: %w", err)
	}
	owned := make(map[uuid.UUID]struct{}, len(owners))
	for _, id := range owners {
		owned[id] = struct{}{}
	}

	now := s.codes.Now()
	batch := make([]*coupon.Coupon, 0, len(recipients))
	for _, id := range recipients {
		if _, ok := owned[id]; ok {
			result.Skipped = append(result.Skipped, id)
			continue
		}
		batch = append(batch, coupon.NewCoupon(id, rc.Code(), now))
		result.Given[id] = rc.Code()
	}
	if len(batch) == 0 {
		return result, nil
	}

	if err := s.coupons.AddBatch(ctx, batch); err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("failed to add coupons: %w", err)
	}

	s.metrics.RecordCouponOperation(ctx, "give_all", len(batch))
	s.logger.Info(ctx, "Coupon given to players", map[string]interface{}{
		"code":    rc.Code(),
		"given":   len(batch),
		"skipped": len(result.Skipped),
	})

	s.notifyEach(ctx, result.Given, s.notification(player.NotificationCoupon, rc, ""))
	return result, nil
}

// GiveRandomToAll プレイヤーごとにランダムなコードを生成して付与
func (s *Service) GiveRandomToAll(ctx context.Context, req *GiveRandomToAllRequest) (*GiveResult, error) {
	ctx, span := s.tracer.Start(ctx, "CouponWalletService.GiveRandomToAll")
	defer span.End()

	span.SetAttributes(
		attribute.String("template", req.Template),
		attribute.Bool("online_only", req.OnlineOnly),
	)

	recipients, err := s.recipients(ctx, req.OnlineOnly)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	result := &GiveResult{Given: map[uuid.UUID]string{}, Skipped: []uuid.UUID{}}
	if len(recipients) == 0 {
		return result, nil
	}

	given, err := s.giveGenerated(ctx, req.Template, req.Digit, req.Secured, recipients)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	for _, g := range given {
		result.Given[g.player] = g.code
	}
	return result, nil
}

// Gift 送り主のクーポンを受取人のウォレットへ移す。対象が送り主に限定されたコードは受取人に付け替える。
func (s *Service) Gift(ctx context.Context, sender, recipient uuid.UUID, code string) error {
	ctx, span := s.tracer.Start(ctx, "CouponWalletService.Gift")
	defer span.End()

	span.SetAttributes(
		attribute.String("sender_id", sender.String()),
		attribute.String("recipient_id", recipient.String()),
		attribute.String("code", code),
	)

	code = redemption_code.NormalizeCode(code)
	c, err := s.coupons.Find(ctx, sender, code)
	if err != nil {
		recordError(span, err)
		return err
	}
	if c.Claimed() {
		recordError(span, coupon.ErrCouponAlreadyClaimed)
		return coupon.ErrCouponAlreadyClaimed
	}

	owned, err := s.coupons.Exists(ctx, recipient, code)
	if err != nil {
		recordError(span, err)
		return fmt.Errorf("failed to check coupon: %w", err)
	}
	if owned {
		recordError(span, coupon.ErrCouponAlreadyOwned)
		return coupon.ErrCouponAlreadyOwned
	}

	rc, err := s.codes.Find(ctx, code)
	if err != nil {
		recordError(span, err)
		return err
	}

	if err := s.coupons.Delete(ctx, sender, code); err != nil {
		recordError(span, err)
		return fmt.Errorf("failed to remove coupon from sender: %w", err)
	}
	if err := s.coupons.Add(ctx, coupon.NewCoupon(recipient, code, s.codes.Now())); err != nil {
		recordError(span, err)
		return fmt.Errorf("failed to add coupon to recipient: %w", err)
	}

	if targets := rc.Targets(); contains(targets, sender) {
		retargeted := make([]uuid.UUID, 0, len(targets))
		for _, id := range targets {
			if id != sender {
				retargeted = append(retargeted, id)
			}
		}
		done, err := s.codes.SetTargets(ctx, code, append(retargeted, recipient))
		if err != nil {
			recordError(span, err)
			return fmt.Errorf("failed to retarget code: %w", err)
		}
		if res := sequencer.Wait(ctx, done); !res.Success {
			recordError(span, res.Err)
			return fmt.Errorf("failed to retarget code: %w", res.Err)
		}
	}

	senderName, err := s.players.NameByID(ctx, sender)
	if err != nil {
		senderName = sender.String()
	}

	s.metrics.RecordCouponOperation(ctx, "gift", 1)
	s.logger.Info(ctx, "Coupon gifted", map[string]interface{}{
		"code":         code,
		"sender_id":    sender.String(),
		"recipient_id": recipient.String(),
	})
	s.notify(ctx, recipient, s.notification(player.NotificationGift, rc, senderName), nil)
	return nil
}

// Take プレイヤーのウォレットからクーポンを取り除く
func (s *Service) Take(ctx context.Context, id uuid.UUID, code string) error {
	ctx, span := s.tracer.Start(ctx, "CouponWalletService.Take")
	defer span.End()

	code = redemption_code.NormalizeCode(code)
	span.SetAttributes(
		attribute.String("player_id", id.String()),
		attribute.String("code", code),
	)

	owned, err := s.coupons.Exists(ctx, id, code)
	if err != nil {
		recordError(span, err)
		return fmt.Errorf("failed to check coupon: %w", err)
	}
	if !owned {
		recordError(span, coupon.ErrCouponNotFound)
		return coupon.ErrCouponNotFound
	}
	if err := s.coupons.Delete(ctx, id, code); err != nil {
		recordError(span, err)
		return fmt.Errorf("failed to remove coupon: %w", err)
	}

	s.metrics.RecordCouponOperation(ctx, "take", 1)
	return nil
}

// TakeAllByTemplate プレイヤーのウォレットからテンプレートに属するクーポンを全て取り除き、件数を返す
func (s *Service) TakeAllByTemplate(ctx context.Context, id uuid.UUID, template string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "CouponWalletService.TakeAllByTemplate")
	defer span.End()

	span.SetAttributes(
		attribute.String("player_id", id.String()),
		attribute.String("template", template),
	)

	n, err := s.coupons.DeleteByPlayerAndTemplate(ctx, id, template)
	if err != nil {
		recordError(span, err)
		return 0, fmt.Errorf("failed to remove coupons: %w", err)
	}

	s.metrics.RecordCouponOperation(ctx, "take", int(n))
	return n, nil
}

// TakeFromAll 全プレイヤー（またはオンラインのプレイヤー）からクーポンを取り除く
func (s *Service) TakeFromAll(ctx context.Context, code string, onlineOnly bool) error {
	ctx, span := s.tracer.Start(ctx, "CouponWalletService.TakeFromAll")
	defer span.End()

	code = redemption_code.NormalizeCode(code)
	span.SetAttributes(
		attribute.String("code", code),
		attribute.Bool("online_only", onlineOnly),
	)

	if onlineOnly {
		online, err := s.players.Online(ctx)
		if err != nil {
			recordError(span, err)
			return fmt.Errorf("failed to get online players: %w", err)
		}
		if len(online) == 0 {
			return nil
		}
		if err := s.coupons.DeleteByPlayersAndCode(ctx, online, code); err != nil {
			recordError(span, err)
			return fmt.Errorf("failed to remove coupons: %w", err)
		}
		s.metrics.RecordCouponOperation(ctx, "take_all", len(online))
		return nil
	}

	if err := s.coupons.DeleteByCode(ctx, code); err != nil {
		recordError(span, err)
		return fmt.Errorf("failed to remove coupons: %w", err)
	}
	if s.queue != nil {
		if _, err := s.queue.ClearByCodes(ctx, []string{code}); err != nil {
			s.logger.Warn(ctx, "Failed to clear coupon notifications", map[string]interface{}{
				"code":  code,
				"error": err.Error(),
			})
		}
	}

	s.metrics.RecordCouponOperation(ctx, "take_all", 1)
	return nil
}

// TakeAllByTemplateFromAll 全プレイヤー（またはオンラインのプレイヤー）からテンプレートに属するクーポンを取り除き、件数を返す
func (s *Service) TakeAllByTemplateFromAll(ctx context.Context, template string, onlineOnly bool) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "CouponWalletService.TakeAllByTemplateFromAll")
	defer span.End()

	span.SetAttributes(
		attribute.String("template", template),
		attribute.Bool("online_only", onlineOnly),
	)

	if !onlineOnly {
		n, err := s.coupons.DeleteByTemplate(ctx, template)
		if err != nil {
			recordError(span, err)
			return 0, fmt.Errorf("failed to remove coupons: %w", err)
		}
		if s.queue != nil {
			if _, err := s.queue.ClearByTemplate(ctx, template); err != nil {
				s.logger.Warn(ctx, "Failed to clear coupon notifications", map[string]interface{}{
					"template": template,
					"error":    err.Error(),
				})
			}
		}
		s.metrics.RecordCouponOperation(ctx, "take_all", int(n))
		return n, nil
	}

	online, err := s.players.Online(ctx)
	if err != nil {
		recordError(span, err)
		return 0, fmt.Errorf("failed to get online players: %w", err)
	}

	var total atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutLimit)
	for _, id := range online {
		g.Go(func() error {
			n, err := s.coupons.DeleteByPlayerAndTemplate(gctx, id, template)
			if err != nil {
				return err
			}
			total.Add(n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		recordError(span, err)
		return total.Load(), fmt.Errorf("failed to remove coupons: %w", err)
	}

	s.metrics.RecordCouponOperation(ctx, "take_all", int(total.Load()))
	return total.Load(), nil
}

// List プレイヤーのクーポン一覧を取得
func (s *Service) List(ctx context.Context, id uuid.UUID) ([]*coupon.Coupon, error) {
	return s.coupons.FindByPlayer(ctx, id)
}

// ListByTemplate プレイヤーのテンプレートに属するクーポン一覧を取得
func (s *Service) ListByTemplate(ctx context.Context, id uuid.UUID, template string) ([]*coupon.Coupon, error) {
	return s.coupons.FindByPlayerAndTemplate(ctx, id, template)
}

// Owns プレイヤーがクーポンを所持しているかどうか
func (s *Service) Owns(ctx context.Context, id uuid.UUID, code string) (bool, error) {
	return s.coupons.Exists(ctx, id, redemption_code.NormalizeCode(code))
}

// SetOnline プレイヤーのオンライン状態を更新し、ログイン時は保留中の通知を配信する
func (s *Service) SetOnline(ctx context.Context, id uuid.UUID, name string, online bool) error {
	if name != "" {
		if err := s.players.Remember(ctx, id, name); err != nil {
			return fmt.Errorf("failed to remember player: %w", err)
		}
	}
	if err := s.players.SetOnline(ctx, id, online); err != nil {
		return fmt.Errorf("failed to update online status: %w", err)
	}
	if !online {
		return nil
	}
	_, err := s.NotifyPlayer(ctx, id)
	return err
}

// NotifyPlayer 保留中の通知を取り出し、まだ所持している未使用のクーポンの通知を配信する
func (s *Service) NotifyPlayer(ctx context.Context, id uuid.UUID) ([]player.Notification, error) {
	if s.queue == nil {
		return nil, nil
	}

	pending, err := s.queue.Drain(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to drain notifications: %w", err)
	}

	kept := make([]player.Notification, 0, len(pending))
	for _, n := range pending {
		c, err := s.coupons.Find(ctx, id, n.Code)
		if errors.Is(err, coupon.ErrCouponNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find coupon: %w", err)
		}
		if !c.Claimed() {
			kept = append(kept, n)
		}
	}
	if len(kept) == 0 || s.notifier == nil {
		return kept, nil
	}

	notifyCtx := context.WithoutCancel(ctx)
	posted := s.mainThread.Post(func() {
		if err := s.notifier.Notify(notifyCtx, id, kept); err != nil {
			s.logger.Error(notifyCtx, "Failed to notify player", err, map[string]interface{}{
				"player_id": id.String(),
			})
		}
	})
	if !posted {
		s.logger.Warn(ctx, "Main thread is closed, notification dropped", map[string]interface{}{
			"player_id": id.String(),
		})
	}
	return kept, nil
}

// generated 生成して付与したコード
type generated struct {
	player uuid.UUID
	code   string
}

// giveGenerated 受取人ごとにコードを一つ生成して付与する
func (s *Service) giveGenerated(ctx context.Context, template string, digit int, secured bool, recipients []uuid.UUID) ([]generated, error) {
	if len(recipients) == 0 {
		return nil, nil
	}

	resp, done, err := s.codes.Create(ctx, &code_management.CreateRequest{
		Template: template,
		Digit:    digit,
		Amount:   len(recipients),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create codes: %w", err)
	}
	if res := sequencer.Wait(ctx, done); !res.Success {
		return nil, fmt.Errorf("failed to persist codes: %w", res.Err)
	}
	if len(resp.Codes) != len(recipients) {
		return nil, fmt.Errorf("created %d codes for %d players", len(resp.Codes), len(recipients))
	}

	now := s.codes.Now()
	given := make([]generated, 0, len(recipients))
	batch := make([]*coupon.Coupon, 0, len(recipients))
	targeted := make([]<-chan sequencer.Result, 0, len(recipients))
	for i, id := range recipients {
		code := resp.Codes[i].Code()
		given = append(given, generated{player: id, code: code})
		batch = append(batch, coupon.NewCoupon(id, code, now))
		if secured {
			ch, err := s.codes.SetTargets(ctx, code, []uuid.UUID{id})
			if err != nil {
				return nil, fmt.Errorf("failed to secure code: %w", err)
			}
			targeted = append(targeted, ch)
		}
	}
	if len(targeted) > 0 {
		if res := sequencer.Wait(ctx, sequencer.Join(targeted...)); !res.Success {
			return nil, fmt.Errorf("failed to secure codes: %w", res.Err)
		}
	}

	if err := s.coupons.AddBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to add coupons: %w", err)
	}

	s.metrics.RecordCouponOperation(ctx, "give_random", len(batch))
	s.logger.Info(ctx, "Random coupons given", map[string]interface{}{
		"template": template,
		"count":    len(batch),
		"secured":  secured,
	})

	online, _ := s.onlineSet(ctx)
	for i, g := range given {
		s.notify(ctx, g.player, s.notification(player.NotificationCoupon, resp.Codes[i], ""), online)
	}
	return given, nil
}

// recipients 付与対象のプレイヤーを返す
func (s *Service) recipients(ctx context.Context, onlineOnly bool) ([]uuid.UUID, error) {
	if onlineOnly {
		ids, err := s.players.Online(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get online players: %w", err)
		}
		return ids, nil
	}
	known, err := s.players.Players(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get players: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(known))
	for id := range known {
		ids = append(ids, id)
	}
	return ids, nil
}

// notification 通知を組み立てる
func (s *Service) notification(kind player.NotificationKind, rc *redemption_code.RedemptionCode, sender string) player.Notification {
	return player.Notification{
		Kind:      kind,
		Code:      rc.Code(),
		Template:  rc.Template(),
		Sender:    sender,
		CreatedAt: s.codes.Now(),
	}
}

// notifyEach 受取人ごとに通知を積む
func (s *Service) notifyEach(ctx context.Context, given map[uuid.UUID]string, n player.Notification) {
	online, _ := s.onlineSet(ctx)

	var g errgroup.Group
	g.SetLimit(fanOutLimit)
	for id := range given {
		g.Go(func() error {
			s.notify(ctx, id, n, online)
			return nil
		})
	}
	_ = g.Wait()
}

// notify 通知をキューに積み、オンラインであればすぐに配信する。onlineがnilの場合は問い合わせる。
func (s *Service) notify(ctx context.Context, id uuid.UUID, n player.Notification, online map[uuid.UUID]struct{}) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Push(ctx, id, n); err != nil {
		s.logger.Warn(ctx, "Failed to queue coupon notification", map[string]interface{}{
			"player_id": id.String(),
			"code":      n.Code,
			"error":     err.Error(),
		})
		return
	}

	if online == nil {
		var err error
		if online, err = s.onlineSet(ctx); err != nil {
			return
		}
	}
	if _, ok := online[id]; !ok {
		return
	}
	if _, err := s.NotifyPlayer(ctx, id); err != nil {
		s.logger.Warn(ctx, "Failed to deliver coupon notification", map[string]interface{}{
			"player_id": id.String(),
			"error":     err.Error(),
		})
	}
}

func (s *Service) onlineSet(ctx context.Context) (map[uuid.UUID]struct{}, error) {
	ids, err := s.players.Online(ctx)
	if err != nil {
		s.logger.Warn(ctx, "Failed to get online players", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func repeat(id uuid.UUID, n int) []uuid.UUID {
	out := make([]uuid.UUID, 0, n)
	for range n {
		out = append(out, id)
	}
	return out
}

func contains(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
}
