package code_management

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"redeem-server/internal/application/sequencer"
	"redeem-server/internal/domain/redeem_template"
	"redeem-server/internal/domain/redemption_code"
)

// SyncReport テンプレート変更の反映結果。失敗しても他のコードはロールバックしない。
type SyncReport struct {
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// SyncTemplate テンプレートの現在値を、同期中の各コードへそれぞれの排他区間で反映する。
// 対象は呼び出し時点のスナップショットで決まり、永続化の完了まで待つ。
func (s *Service) SyncTemplate(ctx context.Context, tmpl *redeem_template.RedeemTemplate) (SyncReport, error) {
	ctx, span := s.tracer.Start(ctx, "CodeManagementService.SyncTemplate")
	defer span.End()
	span.SetAttributes(attribute.String("template", tmpl.Name()))

	locked, err := s.templateCodes(ctx, tmpl.Name(), redemption_code.LockStatusLocked)
	if err != nil {
		recordError(span, err)
		return SyncReport{}, err
	}

	type pending struct {
		code    string
		changed bool
		done    <-chan sequencer.Result
	}

	var report SyncReport
	waits := make([]*pending, 0, len(locked))
	for _, snapshot := range locked {
		p := &pending{code: snapshot.Code()}
		done, err := s.WithCode(ctx, p.code, func(rc *redemption_code.RedemptionCode) (Change, error) {
			if !rc.Locked() || rc.Template() != tmpl.Name() {
				return Change{}, nil
			}
			p.changed = redemption_code.ApplyTemplate(rc, tmpl)
			return Change{Persist: p.changed, Touch: p.changed}, nil
		})
		if err != nil {
			report.Failed++
			s.logger.Warn(ctx, "Failed to sync code with template", map[string]interface{}{
				"code":     p.code,
				"template": tmpl.Name(),
				"error":    err.Error(),
			})
			continue
		}
		p.done = done
		waits = append(waits, p)
	}

	for _, p := range waits {
		res := sequencer.Wait(ctx, p.done)
		switch {
		case !res.Success:
			report.Failed++
		case p.changed:
			report.Updated++
		default:
			report.Skipped++
		}
	}

	span.SetAttributes(
		attribute.Int("updated", report.Updated),
		attribute.Int("failed", report.Failed),
		attribute.Int("skipped", report.Skipped),
	)
	s.metrics.RecordTemplateSync(ctx, report.Updated, report.Failed, report.Skipped)
	s.logger.Info(ctx, "Template synced to codes", map[string]interface{}{
		"template": tmpl.Name(),
		"updated":  report.Updated,
		"failed":   report.Failed,
		"skipped":  report.Skipped,
	})
	return report, nil
}
