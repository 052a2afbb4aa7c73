package code_management

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"redeem-server/internal/domain/redemption_code"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// List コードの一覧を取得。書き込み待ちの変更はキャッシュの値で上書きする。
func (s *Service) List(ctx context.Context, q ListQuery) (*ListResult, error) {
	ctx, span := s.tracer.Start(ctx, "CodeManagementService.List")
	defer span.End()

	if q.Sort.Field == "" {
		q.Sort.Field = redemption_code.SortByCode
	}
	if !q.Sort.Field.Valid() {
		err := fmt.Errorf("invalid sort field: %s", q.Sort.Field)
		recordError(span, err)
		return nil, err
	}
	if q.Lock == "" {
		q.Lock = redemption_code.LockStatusAll
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	span.SetAttributes(
		attribute.String("template", q.Template),
		attribute.String("lock", q.Lock.String()),
		attribute.Int("limit", q.Limit),
		attribute.Int("offset", q.Offset),
	)

	var codes []*redemption_code.RedemptionCode
	var err error
	if strings.TrimSpace(q.Template) != "" {
		codes, err = s.templateCodes(ctx, q.Template, q.Lock)
	} else {
		codes, err = s.allCodes(ctx, q.Sort)
	}
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	now := s.now()
	filtered := codes[:0]
	for _, rc := range codes {
		if q.Status != nil && rc.Status(now) != *q.Status {
			continue
		}
		filtered = append(filtered, rc)
	}
	SortCodes(filtered, q.Sort)

	total := len(filtered)
	start := q.Offset
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}

	return &ListResult{
		Codes:  filtered[start:end],
		Total:  total,
		Limit:  q.Limit,
		Offset: q.Offset,
	}, nil
}

// ListByTemplate テンプレートに紐付くコードを同期状態で絞り込んで取得
func (s *Service) ListByTemplate(ctx context.Context, template string, lock redemption_code.LockStatus) ([]*redemption_code.RedemptionCode, error) {
	codes, err := s.templateCodes(ctx, template, lock)
	if err != nil {
		return nil, err
	}
	SortCodes(codes, redemption_code.SortOrder{Field: redemption_code.SortByCode})
	return codes, nil
}

// ListExpired 期限切れのコードを取得。空のテンプレート名は全コード。
func (s *Service) ListExpired(ctx context.Context, template string) ([]*redemption_code.RedemptionCode, error) {
	var codes []*redemption_code.RedemptionCode
	var err error
	if strings.TrimSpace(template) != "" {
		codes, err = s.templateCodes(ctx, template, redemption_code.LockStatusAll)
	} else {
		codes, err = s.allCodes(ctx, redemption_code.SortOrder{Field: redemption_code.SortByCode})
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	expired := make([]*redemption_code.RedemptionCode, 0)
	for _, rc := range codes {
		if rc.IsExpired(now) {
			expired = append(expired, rc)
		}
	}
	SortCodes(expired, redemption_code.SortOrder{Field: redemption_code.SortByCode})
	return expired, nil
}

func (s *Service) allCodes(ctx context.Context, order redemption_code.SortOrder) ([]*redemption_code.RedemptionCode, error) {
	persisted, err := s.codes.FindAll(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("failed to find codes: %w", err)
	}
	return s.overlay(persisted, func(*redemption_code.RedemptionCode) bool { return true }), nil
}

// templateCodes 永続化層とキャッシュの両方からテンプレートのコードを集める
func (s *Service) templateCodes(ctx context.Context, template string, lock redemption_code.LockStatus) ([]*redemption_code.RedemptionCode, error) {
	template = strings.TrimSpace(template)
	if !lock.Valid() {
		return nil, fmt.Errorf("invalid lock status: %s", lock)
	}
	persisted, err := s.codes.FindByTemplate(ctx, template, redemption_code.LockStatusAll)
	if err != nil {
		return nil, fmt.Errorf("failed to find codes by template: %w", err)
	}
	return s.overlay(persisted, func(rc *redemption_code.RedemptionCode) bool {
		return rc.Template() == template && lock.Matches(rc)
	}), nil
}

// overlay 永続化層の結果にキャッシュ上の最新状態を重ね、keepで絞り込む
func (s *Service) overlay(persisted []*redemption_code.RedemptionCode, keep func(*redemption_code.RedemptionCode) bool) []*redemption_code.RedemptionCode {
	merged := make(map[string]*redemption_code.RedemptionCode, len(persisted))
	for _, rc := range persisted {
		if cached, ok := s.cache.Get(rc.Code()); ok {
			rc = cached
		} else if s.cache.Deleted(rc.Code()) {
			continue
		}
		merged[rc.Code()] = rc
	}
	for _, rc := range s.cache.All() {
		if _, ok := merged[rc.Code()]; !ok {
			merged[rc.Code()] = rc
		}
	}

	out := make([]*redemption_code.RedemptionCode, 0, len(merged))
	for _, rc := range merged {
		if keep(rc) {
			out = append(out, rc)
		}
	}
	return out
}

// SortCodes 並び替える。同順位はコードの昇順。
func SortCodes(codes []*redemption_code.RedemptionCode, order redemption_code.SortOrder) {
	compare := func(a, b *redemption_code.RedemptionCode) int {
		switch order.Field {
		case redemption_code.SortByTemplate:
			return strings.Compare(a.Template(), b.Template())
		case redemption_code.SortByModified:
			return a.Modified().Compare(b.Modified())
		case redemption_code.SortByValidFrom:
			return a.ValidFrom().Compare(b.ValidFrom())
		default:
			return strings.Compare(a.Code(), b.Code())
		}
	}
	sort.SliceStable(codes, func(i, j int) bool {
		c := compare(codes[i], codes[j])
		if order.Descending {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		return codes[i].Code() < codes[j].Code()
	})
}
