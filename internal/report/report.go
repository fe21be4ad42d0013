// Package report assembles canonical reports: the daily builder folds planned
// and executed entries through reconciliation, the aggregator folds stored
// dailies into weekly, monthly, or performance reports. Everything here is
// pure; persistence belongs to the engine.
package report

import (
	"fmt"
	"sort"
	"strings"

	"daybook/internal/domain"
	"daybook/internal/reconcile"
)

// Metadata keys present on every report.
const (
	MetaPlannedCount    = "planned_task_count"
	MetaCompletedCount  = "completed_task_count"
	MetaUnresolvedCount = "unresolved_task_count"
	MetaCompletionRate  = "completion_rate"
	MetaDailyCount      = "daily_count"
	MetaKPIDocCount     = "kpi_document_count"
	MetaMatchedTasks    = "matched_task_count"
	MetaTotalKPIs       = "total_kpi_count"
)

// BuildDaily assembles a daily report for one owner and date. Tasks are the
// executed entries ordered by start time, plans are the planned titles
// verbatim, issues are the planned titles no executed entry claimed.
func BuildDaily(owner, date string, planned []domain.PlanEntry, executed []domain.TaskItem, th reconcile.Thresholds) domain.Report {
	plannedEntries := make([]reconcile.Entry, len(planned))
	for i, p := range planned {
		plannedEntries[i] = reconcile.Entry{Text: p.Title, Category: p.Category}
	}
	executedEntries := make([]reconcile.Entry, len(executed))
	for j, e := range executed {
		executedEntries[j] = reconcile.Entry{Text: strings.TrimSpace(e.Title + " " + e.Description)}
	}
	matched := reconcile.Match(plannedEntries, executedEntries, th)

	tasks := make([]domain.TaskItem, len(executed))
	copy(tasks, executed)
	sort.SliceStable(tasks, func(i, j int) bool {
		return timeKey(tasks[i].TimeStart) < timeKey(tasks[j].TimeStart)
	})
	for i := range tasks {
		if tasks[i].TaskID == "" {
			tasks[i].TaskID = fmt.Sprintf("%s-%s-t%d", owner, date, i+1)
		}
		if tasks[i].Status == "" {
			tasks[i].Status = "done"
		}
	}

	plans := make([]string, len(planned))
	issues := []string{}
	for i, p := range planned {
		plans[i] = p.Title
		if _, ok := matched[i]; !ok {
			issues = append(issues, p.Title)
		}
	}

	completed := len(matched)
	return domain.Report{
		Type:        domain.ReportDaily,
		Owner:       owner,
		PeriodStart: date,
		PeriodEnd:   date,
		Tasks:       tasks,
		KPIs:        []domain.KPIItem{},
		Issues:      issues,
		Plans:       plans,
		Metadata: map[string]any{
			MetaPlannedCount:    len(planned),
			MetaCompletedCount:  completed,
			MetaUnresolvedCount: len(planned) - completed,
			MetaCompletionRate:  fmt.Sprintf("%d/%d", completed, len(planned)),
		},
	}
}

// timeKey sorts entries without a start time after everything timed.
func timeKey(start string) string {
	if start == "" {
		return "￿"
	}
	return start
}

// AggregateInput carries everything the fold needs. KPIKeywords and KPICorpus
// apply to performance reports only.
type AggregateInput struct {
	Type        string
	Owner       string
	Start       string
	End         string
	Dailies     []domain.Report
	KPIKeywords []string
	KPICorpus   []domain.KPIDocument
}

// Aggregate folds daily reports into one report for the period, preserving
// date order and within-day order. The fold never runs on an empty window.
func Aggregate(in AggregateInput) (domain.Report, error) {
	if len(in.Dailies) == 0 {
		return domain.Report{}, fmt.Errorf("aggregate %s for %s: %w: no daily reports in window", in.Type, in.Owner, domain.ErrPrecondition)
	}
	if in.Start > in.End {
		return domain.Report{}, fmt.Errorf("aggregate window %s..%s: %w", in.Start, in.End, domain.ErrValidation)
	}

	dailies := make([]domain.Report, len(in.Dailies))
	copy(dailies, in.Dailies)
	sort.SliceStable(dailies, func(i, j int) bool { return dailies[i].PeriodStart < dailies[j].PeriodStart })

	agg := domain.Report{
		Type:        in.Type,
		Owner:       in.Owner,
		PeriodStart: in.Start,
		PeriodEnd:   in.End,
		Tasks:       []domain.TaskItem{},
		KPIs:        []domain.KPIItem{},
		Issues:      []string{},
		Plans:       []string{},
	}
	planned, completed := 0, 0
	for _, d := range dailies {
		agg.Tasks = append(agg.Tasks, d.Tasks...)
		agg.KPIs = append(agg.KPIs, d.KPIs...)
		agg.Issues = append(agg.Issues, d.Issues...)
		agg.Plans = append(agg.Plans, d.Plans...)
		planned += MetaInt(d.Metadata, MetaPlannedCount)
		completed += MetaInt(d.Metadata, MetaCompletedCount)
	}
	agg.Metadata = map[string]any{
		MetaDailyCount:      len(dailies),
		MetaPlannedCount:    planned,
		MetaCompletedCount:  completed,
		MetaUnresolvedCount: planned - completed,
		MetaCompletionRate:  fmt.Sprintf("%d/%d", completed, planned),
	}

	if in.Type == domain.ReportPerformance {
		tagged := tagKPITasks(agg.Tasks, in.KPIKeywords)
		kpis := make([]domain.KPIItem, 0, len(tagged)+len(in.KPICorpus))
		for _, t := range tagged {
			kpis = append(kpis, domain.KPIItem{Name: t.Title, Category: "task"})
		}
		for _, doc := range in.KPICorpus {
			kpis = append(kpis, domain.KPIItem{Name: doc.Name, Value: doc.Value, Unit: doc.Unit, Category: doc.Category})
		}
		agg.KPIs = append(agg.KPIs, kpis...)
		agg.Metadata[MetaKPIDocCount] = len(in.KPICorpus)
		agg.Metadata[MetaMatchedTasks] = len(tagged)
		agg.Metadata[MetaTotalKPIs] = len(agg.KPIs)
	}
	return agg, nil
}

func tagKPITasks(tasks []domain.TaskItem, keywords []string) []domain.TaskItem {
	if len(keywords) == 0 {
		return nil
	}
	var tagged []domain.TaskItem
	for _, t := range tasks {
		text := strings.ToLower(t.Title + " " + t.Description)
		for _, kw := range keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(text, strings.ToLower(kw)) {
				tagged = append(tagged, t)
				break
			}
		}
	}
	return tagged
}

// MetaInt reads an integer metadata value. JSON decoding turns numbers into
// float64, so stored reports need the coercion.
func MetaInt(m map[string]any, key string) int {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
