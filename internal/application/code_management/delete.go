package code_management

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"redeem-server/internal/application/sequencer"
	"redeem-server/internal/domain/redemption_code"
)

// Delete コードと、そのコードのクーポンを削除
func (s *Service) Delete(ctx context.Context, code string) (<-chan sequencer.Result, error) {
	n, done, err := s.DeleteBatch(ctx, []string{code})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, redemption_code.ErrCodeNotFound
	}
	return done, nil
}

// DeleteBatch 存在するコードを削除し、削除件数を返す
func (s *Service) DeleteBatch(ctx context.Context, codes []string) (int, <-chan sequencer.Result, error) {
	ctx, span := s.tracer.Start(ctx, "CodeManagementService.DeleteBatch")
	defer span.End()

	normalized, err := normalizeCodes(codes)
	if err != nil {
		recordError(span, err)
		return 0, nil, err
	}
	span.SetAttributes(attribute.Int("requested", len(normalized)))

	persisted, err := s.codes.ExistingCodes(ctx, normalized)
	if err != nil {
		recordError(span, err)
		return 0, nil, fmt.Errorf("failed to check existing codes: %w", err)
	}
	inStore := make(map[string]struct{}, len(persisted))
	for _, c := range persisted {
		inStore[c] = struct{}{}
	}

	unlock := s.locks.LockAll(normalized)
	defer unlock()

	targets := make([]string, 0, len(normalized))
	for _, code := range normalized {
		_, persistedCode := inStore[code]
		if s.cache.Has(code) || persistedCode {
			targets = append(targets, code)
		}
	}
	if len(targets) == 0 {
		return 0, sequencer.Completed(nil), nil
	}

	s.cache.Remove(targets...)
	done := s.persistEach(ctx, targets, func(ctx context.Context, group []string) error {
		if err := s.coupons.DeleteByCodes(ctx, group); err != nil {
			return err
		}
		return s.codes.DeleteBatch(ctx, group)
	})

	s.metrics.RecordCodeMutation(ctx, "delete", len(targets))
	s.logger.Info(ctx, "Codes deleted", map[string]interface{}{
		"count": len(targets),
	})
	return len(targets), done, nil
}

// DeleteByTemplate テンプレートに紐付く全コードを削除
func (s *Service) DeleteByTemplate(ctx context.Context, template string) (int, <-chan sequencer.Result, error) {
	codes, err := s.templateCodes(ctx, template, redemption_code.LockStatusAll)
	if err != nil {
		return 0, nil, err
	}
	ids := make([]string, 0, len(codes))
	for _, rc := range codes {
		ids = append(ids, rc.Code())
	}
	if len(ids) == 0 {
		return 0, sequencer.Completed(nil), nil
	}
	return s.DeleteBatch(ctx, ids)
}

// DeleteAll 全コードと全クーポンを削除
func (s *Service) DeleteAll(ctx context.Context) (<-chan sequencer.Result, error) {
	ctx, span := s.tracer.Start(ctx, "CodeManagementService.DeleteAll")
	defer span.End()

	persisted, err := s.codes.ListCodes(ctx)
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("failed to list codes: %w", err)
	}
	all := append(s.cache.Codes(), persisted...)

	unlock := s.locks.LockAll(all)
	defer unlock()

	cached := s.cache.Codes()
	s.cache.Clear()
	done := s.persist(ctx, cached, func(ctx context.Context) error {
		if err := s.coupons.DeleteAll(ctx); err != nil {
			return err
		}
		return s.codes.DeleteAll(ctx)
	})

	s.metrics.RecordCodeMutation(ctx, "delete_all", len(all))
	s.logger.Warn(ctx, "All codes deleted", map[string]interface{}{
		"count": len(all),
	})
	return done, nil
}

// PurgeExpired 期限切れコードを削除し、永続化の完了を待って件数を返す
func (s *Service) PurgeExpired(ctx context.Context, template string) (int, error) {
	expired, err := s.ListExpired(ctx, template)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}
	codes := make([]string, 0, len(expired))
	for _, rc := range expired {
		codes = append(codes, rc.Code())
	}

	n, done, err := s.DeleteBatch(ctx, codes)
	if err != nil {
		return 0, err
	}
	if res := sequencer.Wait(ctx, done); !res.Success {
		return 0, fmt.Errorf("failed to purge expired codes: %w", res.Err)
	}
	s.logger.Info(ctx, "Expired codes purged", map[string]interface{}{
		"template": strings.TrimSpace(template),
		"count":    n,
	})
	return n, nil
}
