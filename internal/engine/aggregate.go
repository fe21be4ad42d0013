package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"daybook/internal/domain"
	"daybook/internal/events"
	"daybook/internal/report"
)

// GenerateWeekly folds the stored dailies of the ISO week containing the
// reference date (Monday through Friday) into one weekly report.
func (e Engine) GenerateWeekly(ctx context.Context, owner, reference, actorID string) (domain.Report, error) {
	ref, err := report.ParseDate(reference)
	if err != nil {
		return domain.Report{}, fmt.Errorf("reference date %q: %w", reference, domain.ErrValidation)
	}
	start, end := report.WeekRange(ref)
	return e.aggregate(ctx, domain.ReportWeekly, owner, start, end, actorID)
}

// GenerateMonthly folds the stored dailies of the reference date's calendar
// month into one monthly report.
func (e Engine) GenerateMonthly(ctx context.Context, owner, reference, actorID string) (domain.Report, error) {
	ref, err := report.ParseDate(reference)
	if err != nil {
		return domain.Report{}, fmt.Errorf("reference date %q: %w", reference, domain.ErrValidation)
	}
	start, end := report.MonthRange(ref)
	return e.aggregate(ctx, domain.ReportMonthly, owner, start, end, actorID)
}

// GeneratePerformance folds an explicit [start, end] window and enriches the
// result with KPI-tagged tasks and the owner's KPI reference corpus.
func (e Engine) GeneratePerformance(ctx context.Context, owner, start, end, actorID string) (domain.Report, error) {
	if _, err := report.ParseDate(start); err != nil {
		return domain.Report{}, fmt.Errorf("start date %q: %w", start, domain.ErrValidation)
	}
	if _, err := report.ParseDate(end); err != nil {
		return domain.Report{}, fmt.Errorf("end date %q: %w", end, domain.ErrValidation)
	}
	if start > end {
		return domain.Report{}, fmt.Errorf("window %s..%s is inverted: %w", start, end, domain.ErrValidation)
	}
	return e.aggregate(ctx, domain.ReportPerformance, owner, start, end, actorID)
}

// aggregate fetches the window's dailies, folds them, and upserts the result
// in one transaction so a partial aggregate can never be observed.
func (e Engine) aggregate(ctx context.Context, reportType, owner, start, end, actorID string) (domain.Report, error) {
	if owner == "" {
		return domain.Report{}, fmt.Errorf("owner is required: %w", domain.ErrValidation)
	}
	dailies, err := e.Repo.ReportsByOwnerAndRange(ctx, owner, domain.ReportDaily, start, end)
	if err != nil {
		return domain.Report{}, err
	}

	in := report.AggregateInput{
		Type:    reportType,
		Owner:   owner,
		Start:   start,
		End:     end,
		Dailies: dailies,
	}
	if reportType == domain.ReportPerformance {
		corpus, err := e.Repo.ListKPIDocuments(ctx, owner)
		if err != nil {
			return domain.Report{}, err
		}
		in.KPIKeywords = e.Config.KPI.Keywords
		in.KPICorpus = corpus
	}
	agg, err := report.Aggregate(in)
	if err != nil {
		return domain.Report{}, err
	}
	now := e.nowRFC3339()
	agg.ID = uuid.NewString()
	agg.CreatedAt = now
	agg.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Report{}, err
	}
	defer tx.Rollback()
	agg, created, err := e.Repo.UpsertReportTx(ctx, tx, agg)
	if err != nil {
		return domain.Report{}, err
	}
	evtType := "report.updated"
	if created {
		evtType = "report.created"
	}
	if err := e.Events.Append(ctx, tx, evtType, owner, "report", agg.ID, actorID, events.EventPayload{
		"type":         reportType,
		"period_start": start,
		"period_end":   end,
		"daily_count":  len(dailies),
	}); err != nil {
		return domain.Report{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Report{}, err
	}
	e.logger().Info("report aggregated",
		zap.String("owner", owner),
		zap.String("type", reportType),
		zap.String("key", ReportKey(agg)),
		zap.Int("daily_count", len(dailies)),
		zap.Bool("created", created))
	return agg, nil
}

// Report returns a stored report by id.
func (e Engine) Report(ctx context.Context, id string) (domain.Report, error) {
	return e.Repo.ReportByID(ctx, id)
}
