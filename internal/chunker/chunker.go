// Package chunker decomposes a canonical report into retrieval units: one
// chunk per task, KPI, issue, and plan, plus a single summary chunk. Chunks
// inherit their metadata from the owning report and are never given it
// independently.
package chunker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"daybook/internal/domain"
	"daybook/internal/report"
)

const DefaultMaxRunes = 480

// Chunker renders and splits report units.
type Chunker struct {
	maxRunes int
}

// Option configures the Chunker.
type Option func(*Chunker)

// WithMaxRunes caps the chunk size in runes.
func WithMaxRunes(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxRunes = n
		}
	}
}

// New creates a Chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{maxRunes: DefaultMaxRunes}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chunk turns a report into its retrieval units. Pure; no I/O.
func (c *Chunker) Chunk(r domain.Report) []domain.Chunk {
	var chunks []domain.Chunk
	for _, t := range r.Tasks {
		chunks = append(chunks, c.emit(r, domain.ChunkTask, renderTask(t))...)
	}
	for _, k := range r.KPIs {
		chunks = append(chunks, c.emit(r, domain.ChunkKPI, renderKPI(k))...)
	}
	for _, issue := range r.Issues {
		chunks = append(chunks, c.emit(r, domain.ChunkIssue, "미이행 계획: "+issue)...)
	}
	for _, plan := range r.Plans {
		chunks = append(chunks, c.emit(r, domain.ChunkPlan, "계획: "+plan)...)
	}
	chunks = append(chunks, c.emit(r, domain.ChunkSummary, renderSummary(r))...)
	return chunks
}

// emit renders one unit into one chunk, or several ordered parts when the
// text exceeds the cap.
func (c *Chunker) emit(r domain.Report, chunkType, text string) []domain.Chunk {
	parts := splitRunes(text, c.maxRunes)
	out := make([]domain.Chunk, len(parts))
	for i, part := range parts {
		out[i] = domain.Chunk{
			ID:          uuid.New().String(),
			Text:        part,
			Type:        chunkType,
			ReportID:    r.ID,
			ReportType:  r.Type,
			Owner:       r.Owner,
			PeriodStart: r.PeriodStart,
			PeriodEnd:   r.PeriodEnd,
			Part:        i + 1,
			TotalParts:  len(parts),
		}
	}
	return out
}

func renderTask(t domain.TaskItem) string {
	var b strings.Builder
	b.WriteString("업무: ")
	b.WriteString(t.Title)
	if t.TimeStart != "" && t.TimeEnd != "" {
		fmt.Fprintf(&b, " (%s~%s)", t.TimeStart, t.TimeEnd)
	}
	if t.Description != "" {
		b.WriteString(". ")
		b.WriteString(t.Description)
	}
	if t.Note != "" {
		b.WriteString(". 비고: ")
		b.WriteString(t.Note)
	}
	return b.String()
}

func renderKPI(k domain.KPIItem) string {
	var b strings.Builder
	b.WriteString("성과 지표: ")
	b.WriteString(k.Name)
	if k.Value != "" {
		b.WriteString(" = ")
		b.WriteString(k.Value)
		b.WriteString(k.Unit)
	}
	if k.Category != "" {
		fmt.Fprintf(&b, " [%s]", k.Category)
	}
	return b.String()
}

var typeLabels = map[string]string{
	domain.ReportDaily:       "일일",
	domain.ReportWeekly:      "주간",
	domain.ReportMonthly:     "월간",
	domain.ReportPerformance: "성과",
}

func renderSummary(r domain.Report) string {
	label, ok := typeLabels[r.Type]
	if !ok {
		label = r.Type
	}
	text := fmt.Sprintf("%s의 %s 보고 (%s~%s): 업무 %d건, 성과 지표 %d건, 미이행 %d건, 계획 %d건.",
		r.Owner, label, r.PeriodStart, r.PeriodEnd,
		len(r.Tasks), len(r.KPIs), len(r.Issues), len(r.Plans))
	if rate, isStr := r.Metadata[report.MetaCompletionRate].(string); isStr && rate != "" {
		text += " 달성률 " + rate + "."
	}
	return text
}

// splitRunes cuts text into parts of at most max runes each, preferring a
// sentence end, then any whitespace, then a hard cut. Concatenating the parts
// reproduces the input exactly.
func splitRunes(text string, max int) []string {
	runes := []rune(text)
	if len(runes) <= max {
		return []string{text}
	}
	var parts []string
	for len(runes) > max {
		cut := cutIndex(runes, max)
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

func cutIndex(runes []rune, max int) int {
	for i := max - 1; i > 0; i-- {
		if isSentenceEnd(runes[i]) || isSpace(runes[i]) {
			return i + 1
		}
	}
	return max
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}
