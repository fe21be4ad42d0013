package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokensNormalization(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"lowercases and splits on punctuation", "Review PR #42, then deploy!", []string{"review", "pr", "42", "then", "deploy"}},
		{"drops single-rune tokens", "a b 가 ok", []string{"ok"}},
		{"strips verb endings", "확인하고", []string{"확인"}},
		{"strips trailing particles", "보고서를 정리", []string{"보고서", "정리"}},
		{"keeps tokens that would shrink below two runes", "바로", []string{"바로"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokens(tt.in)
			require.Len(t, got, len(tt.want))
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
		})
	}
}

func TestJaccard(t *testing.T) {
	a := Tokens("고객 상담 스크립트 업데이트")
	b := Tokens("고객 상담 스크립트 개선 작업")
	assert.InDelta(t, 0.5, Jaccard(a, b), 1e-9)

	assert.Zero(t, Jaccard(Tokens(""), Tokens("anything here")))
	assert.Zero(t, Jaccard(Tokens(""), Tokens("")))
	assert.Equal(t, 1.0, Jaccard(Tokens("주간 보고"), Tokens("주간 보고")))
}

func TestMatchDailyScenario(t *testing.T) {
	planned := []Entry{
		{Text: "암보험 회신 확인"},
		{Text: "관련 문서 정리"},
		{Text: "고객 상담 스크립트 업데이트"},
	}
	executed := []Entry{
		{Text: "암보험 회신 메일 확인하고 답장"},
		{Text: "고객 상담 스크립트 개선 작업"},
	}

	matched := Match(planned, executed, DefaultThresholds())

	require.Len(t, matched, 2)
	assert.Equal(t, 0, matched[0])
	assert.Equal(t, 1, matched[2])
	_, ok := matched[1]
	assert.False(t, ok, "실행 기록이 없는 계획은 미이행으로 남아야 한다")
}

func TestMatchAboveSimilarityThreshold(t *testing.T) {
	planned := []Entry{{Text: "weekly report draft review"}}
	executed := []Entry{{Text: "draft review for weekly report"}}

	matched := Match(planned, executed, DefaultThresholds())
	require.Contains(t, matched, 0)
}

func TestMatchCategoryRelaxation(t *testing.T) {
	th := DefaultThresholds()
	planned := []Entry{{Text: "고객 미팅 준비", Category: "meeting"}}
	executed := []Entry{{Text: "고객 일정 조율", Category: "meeting"}}

	sim := Jaccard(Tokens(planned[0].Text), Tokens(executed[0].Text))
	require.Less(t, sim, th.Similarity)
	require.GreaterOrEqual(t, sim, th.Category)

	assert.Contains(t, Match(planned, executed, th), 0)

	executed[0].Category = "ops"
	assert.Empty(t, Match(planned, executed, th))
}

func TestMatchIsOneToOne(t *testing.T) {
	planned := []Entry{
		{Text: "주간 보고 작성"},
		{Text: "주간 보고 작성 및 검토"},
	}
	executed := []Entry{{Text: "주간 보고 작성"}}

	matched := Match(planned, executed, DefaultThresholds())

	require.Len(t, matched, 1)
	assert.Equal(t, 0, matched[0], "첫 번째 계획이 먼저 실행 항목을 차지한다")
}

func TestMatchClaimsFirstEligibleExecuted(t *testing.T) {
	planned := []Entry{{Text: "서버 점검 진행"}}
	executed := []Entry{
		{Text: "서버 점검 진행"},
		{Text: "서버 점검 진행 및 보고"},
	}

	matched := Match(planned, executed, DefaultThresholds())
	assert.Equal(t, 0, matched[0])
}

func TestMatchEmptyInputs(t *testing.T) {
	assert.Empty(t, Match(nil, nil, DefaultThresholds()))
	assert.Empty(t, Match([]Entry{{Text: "계획만 있음"}}, nil, DefaultThresholds()))
	assert.Empty(t, Match(nil, []Entry{{Text: "실행만 있음"}}, DefaultThresholds()))
}
