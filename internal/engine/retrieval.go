package engine

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"daybook/internal/domain"
	"daybook/internal/events"
	"daybook/internal/vector"
)

// NoInformationAnswer is the explicit marker returned when nothing relevant
// survives the threshold. Callers get it verbatim instead of a fabricated
// answer.
const NoInformationAnswer = "관련된 보고 내용을 찾지 못했습니다."

// SmalltalkAnswer handles conversational input without touching the index.
const SmalltalkAnswer = "안녕하세요! 업무 보고에 대해 궁금한 점을 물어보세요."

const (
	embedBatchSize    = 16
	embedConcurrency  = 4
	excerptMaxRunes   = 120
	ingestLockPrefix  = "ingest:"
	sessionLockPrefix = "session:"
)

// Ingest chunks a stored report, embeds the chunks, and replaces the
// report's rows in the vector index. Runs for the same report id are
// serialized; a failed embedding leaves the previous rows untouched.
func (e Engine) Ingest(ctx context.Context, reportID, actorID string) (int, error) {
	if e.Embedder == nil {
		return 0, fmt.Errorf("embedder not configured: %w", domain.ErrUpstream)
	}
	var count int
	err := e.Locks.Do(ingestLockPrefix+reportID, func() error {
		rep, err := e.Repo.ReportByID(ctx, reportID)
		if err != nil {
			if err == domain.ErrNotFound {
				return fmt.Errorf("report %s: %w", reportID, domain.ErrNotFound)
			}
			return err
		}
		chunks := e.Chunker.Chunk(rep)
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		embeddings, err := e.embedAll(ctx, texts)
		if err != nil {
			return err
		}

		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if err := e.Repo.ReplaceChunksTx(ctx, tx, reportID, chunks, embeddings, e.nowRFC3339()); err != nil {
			return err
		}
		if err := e.Events.Append(ctx, tx, "report.ingested", rep.Owner, "report", reportID, actorID, events.EventPayload{
			"chunk_count": len(chunks),
		}); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		count = len(chunks)
		e.logger().Info("report ingested",
			zap.String("report_id", reportID),
			zap.String("owner", rep.Owner),
			zap.Int("chunk_count", count))
		return nil
	})
	return count, err
}

// embedAll embeds texts in fixed-size batches with bounded parallelism,
// preserving input order.
func (e Engine) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for start := 0; start < len(texts); start += embedBatchSize {
		start := start
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			vectors, err := e.Embedder.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vectors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Source is one grounding chunk behind an answer.
type Source struct {
	ChunkID    string
	ReportID   string
	Similarity float64
	Excerpt    string
}

// QueryResult is a grounded answer plus the chunks it stands on. Grounded is
// false for the smalltalk short-circuit and the no-information marker.
type QueryResult struct {
	Answer    string
	Grounded  bool
	Threshold float64
	Sources   []Source
}

// Query retrieves the most relevant chunks for the question and delegates
// answer synthesis to the generation collaborator, constrained to the
// retrieved context. The relevance cut is derived per query from the
// candidate pool and always stays inside the configured bounds.
func (e Engine) Query(ctx context.Context, owner, text string, topK int) (QueryResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return QueryResult{}, fmt.Errorf("query text is required: %w", domain.ErrValidation)
	}
	rcfg := e.Config.Retrieval
	if topK <= 0 {
		topK = rcfg.DefaultTopK
	}

	if rcfg.Smalltalk && isSmalltalk(text, rcfg.SmalltalkPatterns) {
		return QueryResult{Answer: SmalltalkAnswer, Grounded: false}, nil
	}
	if e.Embedder == nil || e.Generator == nil {
		return QueryResult{}, fmt.Errorf("ai collaborators not configured: %w", domain.ErrUpstream)
	}

	qvec, err := e.Embedder.Embed(ctx, text)
	if err != nil {
		return QueryResult{}, err
	}
	candidates, err := e.Repo.Candidates(ctx, owner, "")
	if err != nil {
		return QueryResult{}, err
	}
	if len(candidates) == 0 {
		return QueryResult{Answer: NoInformationAnswer, Grounded: false}, nil
	}

	embeddings := make([][]float32, len(candidates))
	for i, c := range candidates {
		embeddings[i] = c.Embedding
	}
	pool := vector.TopK(qvec, embeddings, topK*rcfg.PoolFactor)
	scores := make([]float64, len(pool))
	for i, s := range pool {
		scores[i] = s.Score
	}
	threshold := vector.DynamicThreshold(scores, rcfg.MinThreshold, rcfg.MaxThreshold)
	kept := vector.Cut(pool, threshold)
	if len(kept) > topK {
		kept = kept[:topK]
	}
	e.logger().Info("query scored",
		zap.String("owner", owner),
		zap.Int("top_k", topK),
		zap.Int("pool", len(pool)),
		zap.Float64("threshold", threshold),
		zap.Int("survivors", len(kept)))
	if len(kept) == 0 {
		return QueryResult{Answer: NoInformationAnswer, Grounded: false, Threshold: threshold}, nil
	}

	var block strings.Builder
	sources := make([]Source, len(kept))
	for i, s := range kept {
		c := candidates[s.Index]
		fmt.Fprintf(&block, "[%d] %s\n", i+1, c.Text)
		sources[i] = Source{
			ChunkID:    c.ChunkID,
			ReportID:   c.ReportID,
			Similarity: s.Score,
			Excerpt:    excerpt(c.Text),
		}
	}
	answer, err := e.Generator.Generate(ctx, text, block.String())
	if err != nil {
		return QueryResult{}, err
	}
	return QueryResult{Answer: answer, Grounded: true, Threshold: threshold, Sources: sources}, nil
}

// smalltalkPatterns are the built-in greetings; config may extend them.
var smalltalkPatterns = []string{
	"안녕", "하이", "반가워", "고마워", "감사", "수고", "잘자", "좋은 아침",
	"hello", "hi", "hey", "thanks", "thank you", "good morning", "bye",
}

// isSmalltalk flags short conversational input. Long text never
// short-circuits even when it contains a greeting.
func isSmalltalk(text string, extra []string) bool {
	if utf8.RuneCountInString(text) > 24 {
		return false
	}
	lowered := strings.ToLower(text)
	for _, p := range smalltalkPatterns {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	for _, p := range extra {
		if p == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptMaxRunes {
		return text
	}
	return string(runes[:excerptMaxRunes]) + "…"
}
