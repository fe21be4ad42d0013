package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"daybook/internal/domain"
)

const defaultGenerateBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Generator answers prompts through the Gemini generateContent REST endpoint.
type Generator struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewGenerator creates a generation client. The limiter may be shared with
// an Embedder on the same account.
func NewGenerator(cfg Config, limiter *rate.Limiter) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	model := cfg.GenerateModel
	if model == "" {
		model = "gemini-3-flash-preview"
	}
	if limiter == nil {
		limiter = NewLimiter(cfg)
	}
	return &Generator{
		apiKey:     cfg.APIKey,
		baseURL:    defaultGenerateBaseURL,
		model:      model,
		httpClient: &http.Client{Timeout: cfg.timeout()},
		limiter:    limiter,
	}, nil
}

type generateRequest struct {
	Contents          []generateContent `json:"contents"`
	SystemInstruction *generateContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig  `json:"generationConfig"`
}

type generateContent struct {
	Role  string         `json:"role,omitempty"`
	Parts []generatePart `json:"parts"`
}

type generatePart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []generatePart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate answers the prompt using only the supplied context block. The
// instruction to stay inside the context travels as the system instruction.
func (g *Generator) Generate(ctx context.Context, prompt, contextBlock string) (string, error) {
	ctx, cancel := bound(ctx, g.httpClient.Timeout)
	defer cancel()
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("generate rate wait: %v: %w", err, domain.ErrUpstream)
	}

	system := "당신은 업무 보고 비서입니다. 반드시 아래 제공된 문서 내용만 근거로 답변하세요. " +
		"문서에 없는 내용은 지어내지 말고 없다고 답하세요."
	user := prompt
	if contextBlock != "" {
		user = fmt.Sprintf("문서:\n%s\n\n질문: %s", contextBlock, prompt)
	}
	body, err := json.Marshal(generateRequest{
		Contents: []generateContent{
			{Role: "user", Parts: []generatePart{{Text: user}}},
		},
		SystemInstruction: &generateContent{Parts: []generatePart{{Text: system}}},
		GenerationConfig:  generationConfig{Temperature: 0.2},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate via %s: %v: %w", g.model, err, domain.ErrUpstream)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read generate response: %v: %w", err, domain.ErrUpstream)
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generate via %s: status %d: %s: %w", g.model, res.StatusCode, truncate(string(data), 256), domain.ErrUpstream)
	}

	var parsed generateResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("parse generate response: %v: %w", err, domain.ErrUpstream)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("generate via %s: %s: %w", g.model, parsed.Error.Message, domain.ErrUpstream)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("generate via %s: empty completion: %w", g.model, domain.ErrUpstream)
	}
	var out strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		out.WriteString(part.Text)
	}
	return strings.TrimSpace(out.String()), nil
}

// WithBaseURL points the client at a different endpoint; used by tests.
func (g *Generator) WithBaseURL(url string) *Generator {
	g.baseURL = strings.TrimRight(url, "/")
	return g
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
