package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daybook/internal/domain"
	"daybook/internal/report"
)

func sampleReport() domain.Report {
	return domain.Report{
		ID:          "rep-1",
		Type:        domain.ReportDaily,
		Owner:       "kim",
		PeriodStart: "2024-06-03",
		PeriodEnd:   "2024-06-03",
		Tasks: []domain.TaskItem{
			{TaskID: "t1", Title: "암보험 회신 메일 확인하고 답장", TimeStart: "09:00", TimeEnd: "10:00"},
			{TaskID: "t2", Title: "고객 상담 스크립트 개선 작업", TimeStart: "11:00", TimeEnd: "12:00"},
		},
		KPIs:   []domain.KPIItem{{Name: "신규 계약 건수", Value: "2", Unit: "건", Category: "sales"}},
		Issues: []string{"관련 문서 정리"},
		Plans:  []string{"암보험 회신 확인", "관련 문서 정리", "고객 상담 스크립트 업데이트"},
		Metadata: map[string]any{
			report.MetaCompletionRate: "2/3",
		},
	}
}

func TestChunkEmitsOneUnitPerItemPlusSummary(t *testing.T) {
	chunks := New().Chunk(sampleReport())

	require.Len(t, chunks, 2+1+1+3+1)
	byType := map[string]int{}
	for _, c := range chunks {
		byType[c.Type]++
	}
	assert.Equal(t, 2, byType[domain.ChunkTask])
	assert.Equal(t, 1, byType[domain.ChunkKPI])
	assert.Equal(t, 1, byType[domain.ChunkIssue])
	assert.Equal(t, 3, byType[domain.ChunkPlan])
	assert.Equal(t, 1, byType[domain.ChunkSummary])
}

func TestChunkInheritsReportMetadata(t *testing.T) {
	r := sampleReport()
	for _, c := range New().Chunk(r) {
		assert.Equal(t, r.ID, c.ReportID)
		assert.Equal(t, r.Type, c.ReportType)
		assert.Equal(t, r.Owner, c.Owner)
		assert.Equal(t, r.PeriodStart, c.PeriodStart)
		assert.Equal(t, r.PeriodEnd, c.PeriodEnd)
		assert.NotEmpty(t, c.ID)
		assert.GreaterOrEqual(t, c.Part, 1)
		assert.LessOrEqual(t, c.Part, c.TotalParts)
	}
}

func TestChunkSummaryCarriesCounts(t *testing.T) {
	chunks := New().Chunk(sampleReport())
	summary := chunks[len(chunks)-1]

	require.Equal(t, domain.ChunkSummary, summary.Type)
	assert.Contains(t, summary.Text, "업무 2건")
	assert.Contains(t, summary.Text, "성과 지표 1건")
	assert.Contains(t, summary.Text, "미이행 1건")
	assert.Contains(t, summary.Text, "계획 3건")
	assert.Contains(t, summary.Text, "달성률 2/3")
	assert.Contains(t, summary.Text, "일일")
}

func TestChunkSplitsOversizedUnits(t *testing.T) {
	long := strings.Repeat("업무 내용을 길게 기록했다. ", 40)
	r := domain.Report{
		ID:          "rep-2",
		Type:        domain.ReportDaily,
		Owner:       "kim",
		PeriodStart: "2024-06-03",
		PeriodEnd:   "2024-06-03",
		Tasks:       []domain.TaskItem{{TaskID: "t1", Title: "장문 기록", Description: long}},
	}

	c := New(WithMaxRunes(120))
	chunks := c.Chunk(r)

	var parts []domain.Chunk
	for _, ch := range chunks {
		if ch.Type == domain.ChunkTask {
			parts = append(parts, ch)
		}
	}
	require.Greater(t, len(parts), 1)

	var joined strings.Builder
	for i, p := range parts {
		assert.Equal(t, i+1, p.Part)
		assert.Equal(t, len(parts), p.TotalParts)
		assert.LessOrEqual(t, utf8.RuneCountInString(p.Text), 120)
		joined.WriteString(p.Text)
	}
	assert.Equal(t, "업무: 장문 기록. "+long, joined.String())
}

func TestChunkEmptyReportYieldsOnlySummary(t *testing.T) {
	r := domain.Report{
		ID:          "rep-3",
		Type:        domain.ReportWeekly,
		Owner:       "kim",
		PeriodStart: "2024-06-03",
		PeriodEnd:   "2024-06-07",
	}
	chunks := New().Chunk(r)

	require.Len(t, chunks, 1)
	assert.Equal(t, domain.ChunkSummary, chunks[0].Type)
	assert.Contains(t, chunks[0].Text, "업무 0건")
}

func TestSplitRunesRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
	}{
		{"short text stays whole", "짧은 기록", 100},
		{"sentence boundary preferred", "첫 문장이다. 둘째 문장이다. 셋째 문장이다.", 15},
		{"whitespace fallback", "공백만 있는 긴 기록 " + strings.Repeat("단어 ", 50), 20},
		{"hard cut without boundaries", strings.Repeat("가", 95), 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := splitRunes(tt.text, tt.max)
			require.NotEmpty(t, parts)
			for _, p := range parts {
				assert.LessOrEqual(t, utf8.RuneCountInString(p), tt.max)
				assert.NotEmpty(t, p)
			}
			assert.Equal(t, tt.text, strings.Join(parts, ""))
		})
	}
}
