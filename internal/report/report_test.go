package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daybook/internal/domain"
	"daybook/internal/reconcile"
)

func TestBuildDailyScenario(t *testing.T) {
	planned := []domain.PlanEntry{
		{Title: "암보험 회신 확인"},
		{Title: "관련 문서 정리"},
		{Title: "고객 상담 스크립트 업데이트"},
	}
	executed := []domain.TaskItem{
		{Title: "고객 상담 스크립트 개선 작업", TimeStart: "11:00", TimeEnd: "12:00"},
		{Title: "암보험 회신 메일 확인하고 답장", TimeStart: "09:00", TimeEnd: "10:00"},
	}

	r := BuildDaily("kim", "2024-06-03", planned, executed, reconcile.DefaultThresholds())

	require.Len(t, r.Tasks, 2)
	assert.Equal(t, "암보험 회신 메일 확인하고 답장", r.Tasks[0].Title)
	assert.Equal(t, "고객 상담 스크립트 개선 작업", r.Tasks[1].Title)
	assert.Equal(t, []string{"관련 문서 정리"}, r.Issues)
	assert.Equal(t, []string{"암보험 회신 확인", "관련 문서 정리", "고객 상담 스크립트 업데이트"}, r.Plans)
	assert.Equal(t, "2/3", r.Metadata[MetaCompletionRate])
	assert.Equal(t, 3, r.Metadata[MetaPlannedCount])
	assert.Equal(t, 2, r.Metadata[MetaCompletedCount])
	assert.Equal(t, 1, r.Metadata[MetaUnresolvedCount])
	assert.Equal(t, domain.ReportDaily, r.Type)
	assert.Equal(t, "2024-06-03", r.PeriodStart)
	assert.Equal(t, "2024-06-03", r.PeriodEnd)
}

func TestBuildDailyEmptyInputs(t *testing.T) {
	r := BuildDaily("kim", "2024-06-03", nil, nil, reconcile.DefaultThresholds())

	assert.Empty(t, r.Tasks)
	assert.Empty(t, r.Issues)
	assert.Empty(t, r.Plans)
	assert.Equal(t, 0, r.Metadata[MetaPlannedCount])
	assert.Equal(t, 0, r.Metadata[MetaCompletedCount])
	assert.Equal(t, 0, r.Metadata[MetaUnresolvedCount])
	assert.Equal(t, "0/0", r.Metadata[MetaCompletionRate])
}

func TestBuildDailyIsDeterministic(t *testing.T) {
	planned := []domain.PlanEntry{{Title: "보고서 작성"}}
	executed := []domain.TaskItem{{Title: "보고서 작성", TimeStart: "09:00", TimeEnd: "10:00"}}

	a := BuildDaily("kim", "2024-06-03", planned, executed, reconcile.DefaultThresholds())
	b := BuildDaily("kim", "2024-06-03", planned, executed, reconcile.DefaultThresholds())

	assert.Equal(t, a, b)
	assert.Equal(t, "kim-2024-06-03-t1", a.Tasks[0].TaskID)
}

func TestBuildDailyEveryPlanMatchedOrIssued(t *testing.T) {
	planned := []domain.PlanEntry{
		{Title: "메일 회신"},
		{Title: "계약 서류 검토"},
		{Title: "주간 회의 준비"},
	}
	executed := []domain.TaskItem{
		{Title: "메일 회신", TimeStart: "09:00"},
		{Title: "주간 회의 준비", TimeStart: "14:00"},
	}

	r := BuildDaily("kim", "2024-06-04", planned, executed, reconcile.DefaultThresholds())

	issued := map[string]bool{}
	for _, is := range r.Issues {
		issued[is] = true
	}
	matched := 0
	for _, p := range planned {
		if !issued[p.Title] {
			matched++
		}
	}
	assert.Equal(t, len(planned), matched+len(r.Issues))
	assert.Equal(t, matched, r.Metadata[MetaCompletedCount])
}

func TestBuildDailySortsUntimedLast(t *testing.T) {
	executed := []domain.TaskItem{
		{Title: "기타 정리"},
		{Title: "오전 업무", TimeStart: "09:00"},
	}
	r := BuildDaily("kim", "2024-06-03", nil, executed, reconcile.DefaultThresholds())

	require.Len(t, r.Tasks, 2)
	assert.Equal(t, "오전 업무", r.Tasks[0].Title)
	assert.Equal(t, "기타 정리", r.Tasks[1].Title)
}

func TestWeekRange(t *testing.T) {
	wed := time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC)
	start, end := WeekRange(wed)
	assert.Equal(t, "2024-06-03", start)
	assert.Equal(t, "2024-06-07", end)

	sun := time.Date(2024, 6, 9, 10, 0, 0, 0, time.UTC)
	start, end = WeekRange(sun)
	assert.Equal(t, "2024-06-03", start)
	assert.Equal(t, "2024-06-07", end)

	mon := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	start, end = WeekRange(mon)
	assert.Equal(t, "2024-06-03", start)
	assert.Equal(t, "2024-06-07", end)
}

func TestMonthRange(t *testing.T) {
	start, end := MonthRange(time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "2024-02-01", start)
	assert.Equal(t, "2024-02-29", end)

	start, end = MonthRange(time.Date(2023, 6, 10, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "2023-06-01", start)
	assert.Equal(t, "2023-06-30", end)
}

func daily(date string, planned, completed int, tasks ...string) domain.Report {
	items := make([]domain.TaskItem, len(tasks))
	for i, title := range tasks {
		items[i] = domain.TaskItem{TaskID: date + "-" + title, Title: title}
	}
	return domain.Report{
		Type:        domain.ReportDaily,
		Owner:       "kim",
		PeriodStart: date,
		PeriodEnd:   date,
		Tasks:       items,
		Metadata: map[string]any{
			MetaPlannedCount:   planned,
			MetaCompletedCount: completed,
		},
	}
}

func TestAggregateEmptyWindowFails(t *testing.T) {
	_, err := Aggregate(AggregateInput{
		Type:  domain.ReportWeekly,
		Owner: "kim",
		Start: "2024-06-03",
		End:   "2024-06-07",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPrecondition)
}

func TestAggregatePreservesDateOrder(t *testing.T) {
	in := AggregateInput{
		Type:  domain.ReportWeekly,
		Owner: "kim",
		Start: "2024-06-03",
		End:   "2024-06-07",
		Dailies: []domain.Report{
			daily("2024-06-04", 2, 2, "화요일 첫 업무", "화요일 둘째 업무"),
			daily("2024-06-03", 1, 1, "월요일 업무"),
		},
	}

	agg, err := Aggregate(in)
	require.NoError(t, err)

	require.Len(t, agg.Tasks, 3)
	assert.Equal(t, "월요일 업무", agg.Tasks[0].Title)
	assert.Equal(t, "화요일 첫 업무", agg.Tasks[1].Title)
	assert.Equal(t, "화요일 둘째 업무", agg.Tasks[2].Title)
	assert.Equal(t, 2, agg.Metadata[MetaDailyCount])
	assert.Equal(t, "3/3", agg.Metadata[MetaCompletionRate])
	assert.Equal(t, domain.ReportWeekly, agg.Type)
}

func TestAggregateSumsCompletionAcrossStoredReports(t *testing.T) {
	// Metadata read back from storage arrives as float64.
	d := daily("2024-06-03", 0, 0, "업무")
	d.Metadata = map[string]any{MetaPlannedCount: float64(4), MetaCompletedCount: float64(3)}

	agg, err := Aggregate(AggregateInput{
		Type:    domain.ReportMonthly,
		Owner:   "kim",
		Start:   "2024-06-01",
		End:     "2024-06-30",
		Dailies: []domain.Report{d},
	})
	require.NoError(t, err)
	assert.Equal(t, "3/4", agg.Metadata[MetaCompletionRate])
	assert.Equal(t, 1, agg.Metadata[MetaUnresolvedCount])
}

func TestAggregatePerformanceTagsKPIs(t *testing.T) {
	d := daily("2024-06-03", 2, 2, "분기 실적 정리", "문서 백업")
	in := AggregateInput{
		Type:        domain.ReportPerformance,
		Owner:       "kim",
		Start:       "2024-04-01",
		End:         "2024-06-30",
		Dailies:     []domain.Report{d},
		KPIKeywords: []string{"실적", "계약"},
		KPICorpus: []domain.KPIDocument{
			{Name: "신규 계약 건수", Value: "12", Unit: "건", Category: "sales"},
		},
	}

	agg, err := Aggregate(in)
	require.NoError(t, err)

	assert.Equal(t, 1, agg.Metadata[MetaMatchedTasks])
	assert.Equal(t, 1, agg.Metadata[MetaKPIDocCount])
	assert.Equal(t, 2, agg.Metadata[MetaTotalKPIs])
	require.Len(t, agg.KPIs, 2)
	assert.Equal(t, "분기 실적 정리", agg.KPIs[0].Name)
	assert.Equal(t, "task", agg.KPIs[0].Category)
	assert.Equal(t, "신규 계약 건수", agg.KPIs[1].Name)
}

func TestAggregateWeeklyCarriesNoKPIMetadata(t *testing.T) {
	agg, err := Aggregate(AggregateInput{
		Type:    domain.ReportWeekly,
		Owner:   "kim",
		Start:   "2024-06-03",
		End:     "2024-06-07",
		Dailies: []domain.Report{daily("2024-06-03", 1, 1, "업무")},
	})
	require.NoError(t, err)
	assert.NotContains(t, agg.Metadata, MetaTotalKPIs)
	assert.NotContains(t, agg.Metadata, MetaKPIDocCount)
}
