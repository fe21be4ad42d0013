package ai

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"daybook/internal/domain"
)

// Embedder produces text embeddings through the Gemini API.
type Embedder struct {
	client  *genai.Client
	model   string
	task    string
	limiter *rate.Limiter
	timeout time.Duration
}

// NewEmbedder creates an embedding client. The limiter may be shared with a
// Generator on the same account.
func NewEmbedder(ctx context.Context, cfg Config, limiter *rate.Limiter) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	model := cfg.EmbedModel
	if model == "" {
		model = "gemini-embedding-001"
	}
	if limiter == nil {
		limiter = NewLimiter(cfg)
	}
	return &Embedder{
		client:  client,
		model:   model,
		task:    embedTaskType(cfg.EmbedTaskType),
		limiter: limiter,
		timeout: cfg.timeout(),
	}, nil
}

func embedTaskType(name string) string {
	switch name {
	case "SEMANTIC_SIMILARITY", "":
		return "SEMANTIC_SIMILARITY"
	case "RETRIEVAL_DOCUMENT":
		return "RETRIEVAL_DOCUMENT"
	case "RETRIEVAL_QUERY":
		return "RETRIEVAL_QUERY"
	case "CLASSIFICATION":
		return "CLASSIFICATION"
	case "CLUSTERING":
		return "CLUSTERING"
	case "QUESTION_ANSWERING":
		return "QUESTION_ANSWERING"
	default:
		return "SEMANTIC_SIMILARITY"
	}
}

// Embed returns the embedding for one text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one API call, preserving input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := bound(ctx, e.timeout)
	defer cancel()
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embed rate wait: %v: %w", err, domain.ErrUpstream)
	}
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType: e.task,
	})
	if err != nil {
		return nil, fmt.Errorf("embed %d texts via %s: %v: %w", len(texts), e.model, err, domain.ErrUpstream)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed via %s: got %d embeddings for %d texts: %w", e.model, len(result.Embeddings), len(texts), domain.ErrUpstream)
	}
	vectors := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// Dimensions reports the embedding width; gemini-embedding-001 yields 768.
func (e *Embedder) Dimensions() int {
	return 768
}
