package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	redemptionapp "redeem-server/internal/application/code_redemption"
	"redeem-server/internal/application/sequencer"
	"redeem-server/internal/domain/player"
	"redeem-server/internal/domain/redeem_property"
	"redeem-server/internal/domain/redemption_code"
	"redeem-server/internal/domain/service"
	"redeem-server/internal/presentation/grpc/interceptor"
)

// maxSuggestions Lookupで返す候補数の上限
const maxSuggestions = 20

// RedemptionService コード引き換えの操作
type RedemptionService interface {
	Redeem(ctx context.Context, req *redemptionapp.RedeemCodeRequest) (*redemptionapp.RedeemCodeResponse, error)
	Check(ctx context.Context, req *redemptionapp.RedeemCodeRequest) (service.Reason, error)
}

// CodeLookup コードの参照
type CodeLookup interface {
	Lookup(ctx context.Context, code string, limit int) (*redemption_code.RedemptionCode, []string, error)
	Now() time.Time
}

// RedeemHandler gRPC引き換えサービスハンドラー
type RedeemHandler struct {
	redemption RedemptionService
	codes      CodeLookup
}

// NewRedeemHandler 新しいRedeemHandlerを作成
func NewRedeemHandler(redemption RedemptionService, codes CodeLookup) *RedeemHandler {
	return &RedeemHandler{redemption: redemption, codes: codes}
}

// redeemRequest Redeem, Checkのリクエスト。player_idはAPIキーで認証された場合のみ使う。
type redeemRequest struct {
	Code       string `json:"code"`
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	Pin        *int   `json:"pin"`
	Address    string `json:"address"`
}

type rewardView struct {
	Commands []string                 `json:"commands"`
	Messages redeem_property.Messages `json:"messages"`
	Sound    redeem_property.Sound    `json:"sound"`
	Rewards  []string                 `json:"rewards"`
}

type redeemResponse struct {
	Success     bool        `json:"success"`
	Code        string      `json:"code"`
	Template    string      `json:"template,omitempty"`
	Reason      string      `json:"reason"`
	Reward      *rewardView `json:"reward,omitempty"`
	Suggestions []string    `json:"suggestions,omitempty"`
}

type checkResponse struct {
	Code     string `json:"code"`
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason"`
}

type lookupRequest struct {
	Code  string `json:"code"`
	Limit int    `json:"limit"`
}

type codeView struct {
	Code      string   `json:"code"`
	Template  string   `json:"template,omitempty"`
	Locked    bool     `json:"locked"`
	Status    string   `json:"status"`
	Enabled   bool     `json:"enabled"`
	Duration  string   `json:"duration"`
	Cooldown  string   `json:"cooldown"`
	TotalUses int      `json:"total_uses"`
	Targets   []string `json:"targets"`
	ValidFrom string   `json:"valid_from"`
	ExpiresAt string   `json:"expires_at,omitempty"`
}

type lookupResponse struct {
	Found       bool      `json:"found"`
	Code        *codeView `json:"code,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

// Redeem コードを引き換える。引き換えできない場合もエラーではなく理由を返す。
func (h *RedeemHandler) Redeem(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := h.request(ctx, in)
	if err != nil {
		return nil, err
	}

	resp, err := h.redemption.Redeem(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	if resp.Success() {
		res := sequencer.Wait(ctx, resp.Done)
		if !res.Success {
			return nil, toStatus(errors.Join(sequencer.ErrNotPersisted, res.Err))
		}
	}

	out := redeemResponse{
		Success:     resp.Success(),
		Code:        resp.Code,
		Template:    resp.Template,
		Reason:      resp.Reason.String(),
		Suggestions: resp.Suggestions,
	}
	if r := resp.Reward; r != nil {
		out.Reward = &rewardView{Commands: r.Commands, Messages: r.Messages, Sound: r.Sound, Rewards: r.Rewards}
	}
	return encode(out)
}

// Check コードを引き換えられるか確認する。状態は変更しない。
func (h *RedeemHandler) Check(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := h.request(ctx, in)
	if err != nil {
		return nil, err
	}

	reason, err := h.redemption.Check(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(checkResponse{
		Code:     redemption_code.NormalizeCode(req.Code),
		Eligible: reason.Eligible(),
		Reason:   reason.String(),
	})
}

// Lookup コードを参照する。見つからない場合は近いコードの候補を返す。APIキーが必要。
func (h *RedeemHandler) Lookup(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if !interceptor.Trusted(ctx) {
		return nil, status.Error(codes.PermissionDenied, "lookup requires an API key")
	}
	var req lookupRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Code) == "" {
		return nil, status.Error(codes.InvalidArgument, "code is required")
	}
	if req.Limit < 0 || req.Limit > maxSuggestions {
		return nil, status.Errorf(codes.InvalidArgument, "limit must be between 0 and %d", maxSuggestions)
	}

	rc, suggestions, err := h.codes.Lookup(ctx, req.Code, req.Limit)
	if errors.Is(err, redemption_code.ErrCodeNotFound) {
		return encode(lookupResponse{Suggestions: suggestions})
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(lookupResponse{Found: true, Code: newCodeView(rc, h.codes.Now())})
}

// request 認証情報とペイロードから引き換えリクエストを作成。
// トークンで認証された場合はペイロードのプレイヤーを無視する。
func (h *RedeemHandler) request(ctx context.Context, in *structpb.Struct) (*redemptionapp.RedeemCodeRequest, error) {
	var body redeemRequest
	if err := decode(in, &body); err != nil {
		return nil, err
	}
	if strings.TrimSpace(body.Code) == "" {
		return nil, status.Error(codes.InvalidArgument, "code is required")
	}

	req := &redemptionapp.RedeemCodeRequest{
		Code:    body.Code,
		Pin:     body.Pin,
		Address: body.Address,
	}
	if id, name, ok := interceptor.Player(ctx); ok {
		req.Player, req.PlayerName = id, name
		return req, nil
	}
	if !interceptor.Trusted(ctx) {
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}

	id, err := player.ParseID(body.PlayerID)
	if err != nil || id == uuid.Nil {
		return nil, status.Error(codes.InvalidArgument, "player_id is required")
	}
	req.Player, req.PlayerName = id, strings.TrimSpace(body.PlayerName)
	return req, nil
}

func newCodeView(rc *redemption_code.RedemptionCode, now time.Time) *codeView {
	targets := make([]string, 0, len(rc.Targets()))
	for _, id := range rc.Targets() {
		targets = append(targets, id.String())
	}
	v := &codeView{
		Code:      rc.Code(),
		Template:  rc.Template(),
		Locked:    rc.Locked(),
		Status:    rc.Status(now).String(),
		Enabled:   rc.Enabled(),
		Duration:  rc.Duration().String(),
		Cooldown:  rc.Cooldown().String(),
		TotalUses: rc.TotalUses(),
		Targets:   targets,
		ValidFrom: rc.ValidFrom().Format(time.RFC3339),
	}
	if at, ok := rc.ExpiresAt(); ok {
		v.ExpiresAt = at.Format(time.RFC3339)
	}
	return v
}
