package server

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"daybook/internal/config"
	"daybook/internal/db"
	"daybook/internal/domain"
	"daybook/internal/engine"
	"daybook/internal/migrate"
)

const testJWTSecret = "server-test-secret"

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := fakeEmbedder{}.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 32)
		for _, word := range strings.Fields(text) {
			h := fnv.New32a()
			h.Write([]byte(word))
			vec[h.Sum32()%32]++
		}
		out[i] = vec
	}
	return out, nil
}

type fakeGenerator struct{}

func (fakeGenerator) Generate(_ context.Context, prompt, contextBlock string) (string, error) {
	return "답변: " + prompt, nil
}

type testServer struct {
	URL    string
	client *http.Client
	engine engine.Engine
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Collection.Slots = []config.Slot{
		{Start: "09:00", End: "10:00"},
		{Start: "10:00", End: "11:00"},
	}
	e := engine.New(conn, cfg)
	e.Embedder = fakeEmbedder{}
	e.Generator = fakeGenerator{}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testJWTSecret},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		engine: e,
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func testToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func authHeaders(t *testing.T) map[string]string {
	t.Helper()
	return map[string]string{"Authorization": "Bearer " + testToken(t, "tester")}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error
}

func TestRequiresAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/reports", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	if got := decodeError(t, data).Code; got != "unauthorized" {
		t.Fatalf("code %q", got)
	}

	healthRes, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if healthRes.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", healthRes.StatusCode)
	}
}

func TestSessionFlowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	headers := authHeaders(t)

	// No plans yet: starting a session must fail the precondition.
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/sessions", StartSessionRequest{
		Owner: "kim", Date: "2024-06-03",
	}, headers)
	if res.StatusCode != http.StatusPreconditionFailed {
		t.Fatalf("start without plans status %d: %s", res.StatusCode, string(data))
	}
	if got := decodeError(t, data).Code; got != "precondition_failed" {
		t.Fatalf("code %q", got)
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/plans/kim/2024-06-03", SetPlansRequest{
		Entries: []domain.PlanEntry{
			{Title: "암보험 회신 확인", Category: "보험"},
			{Title: "고객 상담 스크립트 업데이트", Category: "상담"},
		},
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set plans status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/sessions", StartSessionRequest{
		Owner: "kim", Date: "2024-06-03",
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("start session status %d: %s", res.StatusCode, string(data))
	}
	var started StartSessionResponse
	if err := json.Unmarshal(data, &started); err != nil {
		t.Fatalf("unmarshal start response: %v", err)
	}
	if started.SessionID == "" || started.Question == "" {
		t.Fatalf("incomplete start response: %+v", started)
	}

	// A second start for the same owner and day conflicts.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/sessions", StartSessionRequest{
		Owner: "kim", Date: "2024-06-03",
	}, headers)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate start status %d: %s", res.StatusCode, string(data))
	}
	if got := decodeError(t, data).Code; got != "conflict" {
		t.Fatalf("code %q", got)
	}

	answersURL := srv.URL + "/v0/sessions/" + started.SessionID + "/answers"
	res, data = doJSON(t, client, http.MethodPost, answersURL, SubmitAnswerRequest{Text: "암보험 회신 확인했습니다"}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("first answer status %d: %s", res.StatusCode, string(data))
	}
	var step SubmitAnswerResponse
	if err := json.Unmarshal(data, &step); err != nil {
		t.Fatalf("unmarshal answer: %v", err)
	}
	if step.Finished || step.NextQuestion == "" {
		t.Fatalf("expected next question, got %+v", step)
	}

	res, data = doJSON(t, client, http.MethodPost, answersURL, SubmitAnswerRequest{Text: "고객 상담 스크립트 업데이트"}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("final answer status %d: %s", res.StatusCode, string(data))
	}
	var final SubmitAnswerResponse
	if err := json.Unmarshal(data, &final); err != nil {
		t.Fatalf("unmarshal final answer: %v", err)
	}
	if !final.Finished || final.Report == nil {
		t.Fatalf("expected finished session with report, got %+v", final)
	}
	if final.Report.Type != domain.ReportDaily || len(final.Report.Tasks) != 2 {
		t.Fatalf("unexpected report: %+v", final.Report)
	}

	// The finished report is readable by id.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports/"+final.Report.ID, nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get report status %d: %s", res.StatusCode, string(data))
	}

	// Answering again conflicts.
	res, data = doJSON(t, client, http.MethodPost, answersURL, SubmitAnswerRequest{Text: "또"}, headers)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("answer after finish status %d: %s", res.StatusCode, string(data))
	}
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/sessions/nope/answers",
		SubmitAnswerRequest{Text: "x"}, authHeaders(t))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	if got := decodeError(t, data).Code; got != "not_found" {
		t.Fatalf("code %q", got)
	}
}

func TestIngestAndQueryOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	headers := authHeaders(t)

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/plans/kim/2024-06-03", SetPlansRequest{
		Entries: []domain.PlanEntry{{Title: "암보험 회신 확인"}},
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set plans status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/sessions", StartSessionRequest{
		Owner: "kim", Date: "2024-06-03",
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("start status %d: %s", res.StatusCode, string(data))
	}
	var started StartSessionResponse
	if err := json.Unmarshal(data, &started); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	answersURL := srv.URL + "/v0/sessions/" + started.SessionID + "/answers"
	doJSON(t, client, http.MethodPost, answersURL, SubmitAnswerRequest{Text: "암보험 회신 확인 완료"}, headers)
	res, data = doJSON(t, client, http.MethodPost, answersURL, SubmitAnswerRequest{Text: ""}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("final answer status %d: %s", res.StatusCode, string(data))
	}
	var final SubmitAnswerResponse
	if err := json.Unmarshal(data, &final); err != nil {
		t.Fatalf("unmarshal final: %v", err)
	}
	if !final.Finished {
		t.Fatalf("session not finished: %+v", final)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/reports/"+final.Report.ID+"/ingest", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("ingest status %d: %s", res.StatusCode, string(data))
	}
	var ingested IngestResponse
	if err := json.Unmarshal(data, &ingested); err != nil {
		t.Fatalf("unmarshal ingest: %v", err)
	}
	if ingested.ChunkCount == 0 {
		t.Fatalf("expected chunks, got %+v", ingested)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/query", QueryRequest{
		Owner: "kim", Text: "암보험 회신 확인 결과가 어떻게 되었나요",
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("query status %d: %s", res.StatusCode, string(data))
	}
	var answer QueryResponse
	if err := json.Unmarshal(data, &answer); err != nil {
		t.Fatalf("unmarshal query: %v", err)
	}
	if !answer.Grounded || len(answer.Sources) == 0 {
		t.Fatalf("expected grounded answer, got %+v", answer)
	}

	// Ingesting an unknown report id is a 404.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/reports/missing/ingest", nil, headers)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("ingest missing status %d: %s", res.StatusCode, string(data))
	}
}

func TestAggregateValidation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	headers := authHeaders(t)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/reports/weekly", AggregateRequest{
		Owner: "kim", Reference: "not-a-date",
	}, headers)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	if got := decodeError(t, data).Code; got != "bad_request" {
		t.Fatalf("code %q", got)
	}

	// A valid reference with no daily reports in range fails the precondition.
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/reports/weekly", AggregateRequest{
		Owner: "kim", Reference: "2024-06-05",
	}, headers)
	if res.StatusCode != http.StatusPreconditionFailed {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
}

func TestEventsTail(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	headers := authHeaders(t)

	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/plans/kim/2024-06-03", SetPlansRequest{
		Entries: []domain.PlanEntry{{Title: "문서 정리"}},
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set plans status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?type=plan.updated", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var events []domain.Event
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one plan.updated event, got %d (%s)", len(events), string(data))
	}
	if events[0].ActorID != "tester" {
		t.Fatalf("actor %q", events[0].ActorID)
	}
}

func TestMetricsEndpointExposed(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	// Counters appear on /metrics only once a request went through the
	// middleware.
	if res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil); res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/metrics", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", res.StatusCode)
	}
	if !strings.Contains(string(data), "daybook_http_requests_total") {
		t.Fatalf("metrics body missing request counter")
	}
}
