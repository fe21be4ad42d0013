// Package reconcile matches planned tasks against executed entries using
// token-set similarity. Matching is greedy and order-dependent: each planned
// item claims the first executed entry that clears the threshold, one-to-one.
package reconcile

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Entry is one planned task or executed activity.
type Entry struct {
	Text     string
	Category string
}

// Thresholds are the similarity cutoffs. Category applies only when both
// entries carry the same non-empty category.
type Thresholds struct {
	Similarity float64
	Category   float64
}

// DefaultThresholds mirror the shipped configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{Similarity: 0.4, Category: 0.2}
}

// particles are suffixes stripped from tokens before comparison, so that
// inflected forms ("확인하고") meet their dictionary form ("확인").
// Ordered longest first; at most one suffix is stripped per token.
var particles = []string{
	"했습니다", "하였습니다",
	"합니다", "했음", "했다", "하기", "하고", "하여", "해서", "하는",
	"에서는", "으로는", "에게서", "으로써", "이라는",
	"에서", "에게", "으로", "라는", "부터", "까지", "처럼", "보다",
	"은", "는", "이", "가", "을", "를", "에", "의", "도", "만", "과", "와", "로",
}

// Tokens normalizes text into a comparable token set: lowercase, punctuation
// replaced by spaces, particles stripped, tokens shorter than two runes
// dropped.
func Tokens(text string) map[string]struct{} {
	lowered := strings.ToLower(text)
	fields := strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = stripParticle(f)
		if utf8.RuneCountInString(f) < 2 {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}

func stripParticle(token string) string {
	for _, p := range particles {
		if !strings.HasSuffix(token, p) {
			continue
		}
		rest := strings.TrimSuffix(token, p)
		if utf8.RuneCountInString(rest) >= 2 {
			return rest
		}
	}
	return token
}

// Jaccard computes |a∩b| / |a∪b| over two token sets. Two empty sets are
// entirely dissimilar, not identical: there is nothing to compare.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Match pairs planned entries with executed entries. The returned map has one
// entry per matched planned index, pointing at the executed index that
// claimed it. Unmatched planned indices are absent. Pure; no I/O.
func Match(planned, executed []Entry, th Thresholds) map[int]int {
	plannedTokens := make([]map[string]struct{}, len(planned))
	for i, p := range planned {
		plannedTokens[i] = Tokens(p.Text)
	}
	executedTokens := make([]map[string]struct{}, len(executed))
	for j, e := range executed {
		executedTokens[j] = Tokens(e.Text)
	}

	matched := make(map[int]int, len(planned))
	claimed := make([]bool, len(executed))
	for i := range planned {
		for j := range executed {
			if claimed[j] {
				continue
			}
			if !eligible(planned[i], executed[j], Jaccard(plannedTokens[i], executedTokens[j]), th) {
				continue
			}
			matched[i] = j
			claimed[j] = true
			break
		}
	}
	return matched
}

func eligible(p, e Entry, sim float64, th Thresholds) bool {
	if sim >= th.Similarity {
		return true
	}
	if p.Category != "" && p.Category == e.Category && sim >= th.Category {
		return true
	}
	return false
}
