package code_management

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"redeem-server/internal/application/sequencer"
	"redeem-server/internal/domain/redeem_template"
	"redeem-server/internal/domain/redemption_code"
)

// Create コードを作成する。指定コードがない場合はランダムに生成する。
// 既存のコードが一つでも含まれる場合は何も作成しない。
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*CreateResponse, <-chan sequencer.Result, error) {
	ctx, span := s.tracer.Start(ctx, "CodeManagementService.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("template", req.Template),
		attribute.Int("requested", len(req.Codes)),
		attribute.Int("amount", req.Amount),
	)

	var tmpl *redeem_template.RedeemTemplate
	if name := strings.TrimSpace(req.Template); name != "" {
		t, err := s.templates.FindByName(ctx, name)
		if err != nil {
			recordError(span, err)
			return nil, nil, err
		}
		tmpl = t
	}

	codes, err := s.codesFor(ctx, req, tmpl)
	if err != nil {
		recordError(span, err)
		return nil, nil, err
	}

	existing, err := s.codes.ExistingCodes(ctx, codes)
	if err != nil {
		recordError(span, err)
		return nil, nil, fmt.Errorf("failed to check existing codes: %w", err)
	}
	if len(existing) > 0 {
		err := fmt.Errorf("%w: %s", redemption_code.ErrCodeAlreadyExists, strings.Join(existing, ", "))
		recordError(span, err)
		return nil, nil, err
	}

	unlock := s.locks.LockAll(codes)
	defer unlock()

	now := s.now()
	created := make([]*redemption_code.RedemptionCode, 0, len(codes))
	for _, code := range codes {
		if s.cache.Has(code) {
			err := fmt.Errorf("%w: %s", redemption_code.ErrCodeAlreadyExists, code)
			recordError(span, err)
			return nil, nil, err
		}
		var rc *redemption_code.RedemptionCode
		if tmpl != nil {
			rc, err = redemption_code.FromTemplate(code, tmpl, now)
		} else {
			rc, err = redemption_code.NewRedemptionCode(code, now)
		}
		if err != nil {
			recordError(span, err)
			return nil, nil, err
		}
		rc.SetServer(s.opts.ServerName)
		created = append(created, rc)
	}

	s.cache.Put(created...)
	byCode := make(map[string]*redemption_code.RedemptionCode, len(created))
	for _, rc := range created {
		byCode[rc.Code()] = rc.Clone()
	}
	done := s.persistEach(ctx, codes, func(ctx context.Context, group []string) error {
		batch := make([]*redemption_code.RedemptionCode, 0, len(group))
		for _, code := range group {
			batch = append(batch, byCode[code])
		}
		return s.codes.CreateBatch(ctx, batch)
	})

	s.metrics.RecordCodeMutation(ctx, "create", len(created))
	s.logger.Info(ctx, "Codes created", map[string]interface{}{
		"template": req.Template,
		"count":    len(created),
	})

	return &CreateResponse{Codes: created}, done, nil
}

func (s *Service) codesFor(ctx context.Context, req *CreateRequest, tmpl *redeem_template.RedeemTemplate) ([]string, error) {
	if len(req.Codes) > 0 {
		if len(req.Codes) > s.opts.MaxBulkAmount {
			return nil, fmt.Errorf("%w: %d exceeds %d", redemption_code.ErrInvalidAmount, len(req.Codes), s.opts.MaxBulkAmount)
		}
		return normalizeCodes(req.Codes)
	}

	digit := req.Digit
	if digit <= 0 {
		digit = s.opts.DefaultDigit
		if tmpl != nil && tmpl.Digit() > 0 {
			digit = tmpl.Digit()
		}
	}
	amount := req.Amount
	if amount == 0 {
		amount = 1
	}
	if amount < 0 || amount > s.opts.MaxBulkAmount {
		return nil, fmt.Errorf("%w: %d", redemption_code.ErrInvalidAmount, amount)
	}

	return s.generator.Generate(digit, amount, func(code string) (bool, error) {
		if s.cache.Has(code) {
			return true, nil
		}
		return s.codes.Exists(ctx, code)
	})
}
