// Package daybooksdk is a minimal Daybook HTTP API client.
package daybooksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a Daybook server. Set BearerToken or APIKey before use.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Report is the API report model (partial).
type Report struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Owner       string         `json:"owner"`
	PeriodStart string         `json:"period_start"`
	PeriodEnd   string         `json:"period_end"`
	Tasks       []TaskItem     `json:"tasks"`
	Issues      []string       `json:"issues,omitempty"`
	Metadata    map[string]any `json:"metadata"`
}

// TaskItem is one reported task.
type TaskItem struct {
	TaskID      string `json:"task_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	TimeStart   string `json:"time_start,omitempty"`
	TimeEnd     string `json:"time_end,omitempty"`
	Category    string `json:"category,omitempty"`
	Planned     bool   `json:"planned"`
	KPI         bool   `json:"kpi,omitempty"`
}

// PlanEntry is one planned task for a workday.
type PlanEntry struct {
	Title    string `json:"title"`
	Category string `json:"category,omitempty"`
}

// StartedSession is the response to starting a collection session.
type StartedSession struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

// AnswerOutcome is the response to one submitted answer.
type AnswerOutcome struct {
	SessionID    string  `json:"session_id"`
	SlotIndex    int     `json:"slot_index"`
	Finished     bool    `json:"finished"`
	NextQuestion string  `json:"next_question,omitempty"`
	ReportKey    string  `json:"report_key,omitempty"`
	Summary      string  `json:"summary,omitempty"`
	Report       *Report `json:"report,omitempty"`
}

// IngestOutcome reports how many chunks a report produced.
type IngestOutcome struct {
	ReportID   string `json:"report_id"`
	ChunkCount int    `json:"chunk_count"`
}

// Source is one grounding chunk behind an answer.
type Source struct {
	ChunkID    string  `json:"chunk_id"`
	ReportID   string  `json:"report_id"`
	Similarity float64 `json:"similarity"`
	Excerpt    string  `json:"excerpt"`
}

// Answer is a retrieval result.
type Answer struct {
	Answer    string   `json:"answer"`
	Grounded  bool     `json:"grounded"`
	Threshold float64  `json:"threshold"`
	Sources   []Source `json:"sources"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// SetPlans replaces the planned tasks for one owner and workday.
func (c *Client) SetPlans(ctx context.Context, owner, date string, entries []PlanEntry) ([]PlanEntry, error) {
	var resp []PlanEntry
	endpoint := fmt.Sprintf("v0/plans/%s/%s", url.PathEscape(owner), url.PathEscape(date))
	err := c.do(ctx, http.MethodPut, endpoint, map[string]any{"entries": entries}, &resp)
	return resp, err
}

// StartSession opens a collection session for a workday.
func (c *Client) StartSession(ctx context.Context, owner, date string, restart bool) (StartedSession, error) {
	var resp StartedSession
	err := c.do(ctx, http.MethodPost, "v0/sessions", map[string]any{
		"owner":   owner,
		"date":    date,
		"restart": restart,
	}, &resp)
	return resp, err
}

// SubmitAnswer answers the current time slot. Empty text records no activity.
func (c *Client) SubmitAnswer(ctx context.Context, sessionID, text string) (AnswerOutcome, error) {
	var resp AnswerOutcome
	endpoint := "v0/sessions/" + url.PathEscape(sessionID) + "/answers"
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"text": text}, &resp)
	return resp, err
}

// GenerateWeekly aggregates the week containing reference.
func (c *Client) GenerateWeekly(ctx context.Context, owner, reference string) (Report, error) {
	return c.aggregate(ctx, "weekly", owner, reference)
}

// GenerateMonthly aggregates the month containing reference.
func (c *Client) GenerateMonthly(ctx context.Context, owner, reference string) (Report, error) {
	return c.aggregate(ctx, "monthly", owner, reference)
}

func (c *Client) aggregate(ctx context.Context, kind, owner, reference string) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodPost, "v0/reports/"+kind, map[string]any{
		"owner":     owner,
		"reference": reference,
	}, &resp)
	return resp, err
}

// GeneratePerformance aggregates a performance report over an explicit window.
func (c *Client) GeneratePerformance(ctx context.Context, owner, start, end string) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodPost, "v0/reports/performance", map[string]any{
		"owner": owner,
		"start": start,
		"end":   end,
	}, &resp)
	return resp, err
}

// GetReport fetches a stored report by id.
func (c *Client) GetReport(ctx context.Context, id string) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodGet, "v0/reports/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Ingest chunks and embeds a report into the vector index.
func (c *Client) Ingest(ctx context.Context, reportID string) (IngestOutcome, error) {
	var resp IngestOutcome
	endpoint := "v0/reports/" + url.PathEscape(reportID) + "/ingest"
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Query asks a question over the ingested reports. topK <= 0 uses the
// server's default.
func (c *Client) Query(ctx context.Context, owner, text string, topK int) (Answer, error) {
	body := map[string]any{"text": text}
	if owner != "" {
		body["owner"] = owner
	}
	if topK > 0 {
		body["top_k"] = topK
	}
	var resp Answer
	err := c.do(ctx, http.MethodPost, "v0/query", body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
