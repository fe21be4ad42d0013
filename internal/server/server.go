// Package server exposes the daybook engine over HTTP: session collection,
// report aggregation, ingestion, and retrieval, with an OpenAPI document,
// bearer/API-key auth, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"daybook/internal/domain"
	"daybook/internal/engine"
	"daybook/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"precondition_failed"`
	Message string         `json:"message" example:"no planned tasks for kim on 2024-06-03"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the daybook API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors are 400 bad_request.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestMetrics(logger))
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo, logger))
	router.Handle("/metrics", metricsHandler())

	hcfg := huma.DefaultConfig("Daybook API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerSessions(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerPlans(group, cfg.Engine)
	registerKPIDocuments(group, cfg.Engine)
	registerRetrieval(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine, logger)
	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps the domain error taxonomy onto HTTP statuses.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrValidation):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, domain.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrPrecondition):
		return newAPIError(http.StatusPreconditionFailed, "precondition_failed", err.Error(), nil)
	case errors.Is(err, domain.ErrConflict):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, domain.ErrUpstream):
		return newAPIError(http.StatusBadGateway, "upstream_error", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusPreconditionFailed:
		return "precondition_failed"
	case http.StatusBadGateway:
		return "upstream_error"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Daybook API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerSessions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-session",
		Method:        http.MethodPost,
		Path:          "/sessions",
		Summary:       "Start a collection session",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusPreconditionFailed,
		},
	}, func(ctx context.Context, input *struct {
		Body StartSessionRequest `json:"body"`
	}) (*struct {
		Body StartSessionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sess, question, err := e.StartSession(ctx, input.Body.Owner, input.Body.Date, input.Body.Restart, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StartSessionResponse `json:"body"`
		}{Body: StartSessionResponse{SessionID: sess.ID, Question: question}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-answer",
		Method:      http.MethodPost,
		Path:        "/sessions/{session_id}/answers",
		Summary:     "Answer the current time slot",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		SessionID string              `path:"session_id"`
		Body      SubmitAnswerRequest `json:"body"`
	}) (*struct {
		Body SubmitAnswerResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.SubmitAnswer(ctx, input.SessionID, input.Body.Text, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		if res.Finished {
			sessionsFinished.Inc()
		}
		return &struct {
			Body SubmitAnswerResponse `json:"body"`
		}{Body: answerResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{session_id}",
		Summary:     "Get a session",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
	}) (*struct {
		Body domain.Session `json:"body"`
	}, error) {
		sess, err := e.Session(ctx, input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Session `json:"body"`
		}{Body: sess}, nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	aggregateHandler := func(kind string) func(ctx context.Context, input *struct {
		Body AggregateRequest `json:"body"`
	}) (*struct {
		Body domain.Report `json:"body"`
	}, error) {
		return func(ctx context.Context, input *struct {
			Body AggregateRequest `json:"body"`
		}) (*struct {
			Body domain.Report `json:"body"`
		}, error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			var rep domain.Report
			var err error
			if kind == domain.ReportWeekly {
				rep, err = e.GenerateWeekly(ctx, input.Body.Owner, input.Body.Reference, actorID)
			} else {
				rep, err = e.GenerateMonthly(ctx, input.Body.Owner, input.Body.Reference, actorID)
			}
			if err != nil {
				return nil, handleError(err)
			}
			reportsBuilt.WithLabelValues(kind).Inc()
			return &struct {
				Body domain.Report `json:"body"`
			}{Body: rep}, nil
		}
	}

	huma.Register(api, huma.Operation{
		OperationID: "generate-weekly",
		Method:      http.MethodPost,
		Path:        "/reports/weekly",
		Summary:     "Aggregate a weekly report",
		Errors:      []int{http.StatusBadRequest, http.StatusPreconditionFailed},
	}, aggregateHandler(domain.ReportWeekly))

	huma.Register(api, huma.Operation{
		OperationID: "generate-monthly",
		Method:      http.MethodPost,
		Path:        "/reports/monthly",
		Summary:     "Aggregate a monthly report",
		Errors:      []int{http.StatusBadRequest, http.StatusPreconditionFailed},
	}, aggregateHandler(domain.ReportMonthly))

	huma.Register(api, huma.Operation{
		OperationID: "generate-performance",
		Method:      http.MethodPost,
		Path:        "/reports/performance",
		Summary:     "Aggregate a performance report over an explicit window",
		Errors:      []int{http.StatusBadRequest, http.StatusPreconditionFailed},
	}, func(ctx context.Context, input *struct {
		Body PerformanceRequest `json:"body"`
	}) (*struct {
		Body domain.Report `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := e.GeneratePerformance(ctx, input.Body.Owner, input.Body.Start, input.Body.End, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		reportsBuilt.WithLabelValues(domain.ReportPerformance).Inc()
		return &struct {
			Body domain.Report `json:"body"`
		}{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/reports/{report_id}",
		Summary:     "Get a report",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ReportID string `path:"report_id"`
	}) (*struct {
		Body domain.Report `json:"body"`
	}, error) {
		rep, err := e.Report(ctx, input.ReportID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Report `json:"body"`
		}{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/reports",
		Summary:     "List reports",
	}, func(ctx context.Context, input *struct {
		Owner string `query:"owner"`
		Type  string `query:"type" enum:"daily,weekly,monthly,performance,"`
		Start string `query:"start"`
		End   string `query:"end"`
		Limit int    `query:"limit" minimum:"0" maximum:"500"`
	}) (*struct {
		Body []domain.Report `json:"body"`
	}, error) {
		items, err := e.Repo.ListReports(ctx, repo.ReportFilters{
			Owner: input.Owner,
			Type:  input.Type,
			Start: input.Start,
			End:   input.End,
			Limit: normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Report{}
		}
		return &struct {
			Body []domain.Report `json:"body"`
		}{Body: items}, nil
	})
}

func registerPlans(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "set-plans",
		Method:      http.MethodPut,
		Path:        "/plans/{owner}/{date}",
		Summary:     "Replace the planned tasks for a workday",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Owner string          `path:"owner"`
		Date  string          `path:"date"`
		Body  SetPlansRequest `json:"body"`
	}) (*struct {
		Body []domain.PlanEntry `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.SetPlans(ctx, input.Owner, input.Date, input.Body.Entries, actorID); err != nil {
			return nil, handleError(err)
		}
		entries, err := e.Plans(ctx, input.Owner, input.Date)
		if err != nil {
			return nil, handleError(err)
		}
		if entries == nil {
			entries = []domain.PlanEntry{}
		}
		return &struct {
			Body []domain.PlanEntry `json:"body"`
		}{Body: entries}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-plans",
		Method:      http.MethodGet,
		Path:        "/plans/{owner}/{date}",
		Summary:     "Planned tasks for a workday",
	}, func(ctx context.Context, input *struct {
		Owner string `path:"owner"`
		Date  string `path:"date"`
	}) (*struct {
		Body []domain.PlanEntry `json:"body"`
	}, error) {
		entries, err := e.Plans(ctx, input.Owner, input.Date)
		if err != nil {
			return nil, handleError(err)
		}
		if entries == nil {
			entries = []domain.PlanEntry{}
		}
		return &struct {
			Body []domain.PlanEntry `json:"body"`
		}{Body: entries}, nil
	})
}

func registerKPIDocuments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-kpi-document",
		Method:        http.MethodPost,
		Path:          "/kpi-documents",
		Summary:       "Add a KPI reference document",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body KPIDocumentRequest `json:"body"`
	}) (*struct {
		Body domain.KPIDocument `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		doc, err := e.AddKPIDocument(ctx, domain.KPIDocument{
			Owner:    input.Body.Owner,
			Name:     input.Body.Name,
			Value:    input.Body.Value,
			Unit:     input.Body.Unit,
			Category: input.Body.Category,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.KPIDocument `json:"body"`
		}{Body: doc}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-kpi-documents",
		Method:      http.MethodGet,
		Path:        "/kpi-documents",
		Summary:     "List the KPI reference corpus",
	}, func(ctx context.Context, input *struct {
		Owner string `query:"owner"`
	}) (*struct {
		Body []domain.KPIDocument `json:"body"`
	}, error) {
		docs, err := e.KPIDocuments(ctx, input.Owner)
		if err != nil {
			return nil, handleError(err)
		}
		if docs == nil {
			docs = []domain.KPIDocument{}
		}
		return &struct {
			Body []domain.KPIDocument `json:"body"`
		}{Body: docs}, nil
	})
}

func registerRetrieval(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "ingest-report",
		Method:      http.MethodPost,
		Path:        "/reports/{report_id}/ingest",
		Summary:     "Chunk and embed a report into the vector index",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		ReportID string `path:"report_id"`
	}) (*struct {
		Body IngestResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		count, err := e.Ingest(ctx, input.ReportID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		chunksIngested.Add(float64(count))
		return &struct {
			Body IngestResponse `json:"body"`
		}{Body: IngestResponse{ReportID: input.ReportID, ChunkCount: count}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "query",
		Method:      http.MethodPost,
		Path:        "/query",
		Summary:     "Semantic search over ingested reports",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		Body QueryRequest `json:"body"`
	}) (*struct {
		Body QueryResponse `json:"body"`
	}, error) {
		res, err := e.Query(ctx, input.Body.Owner, input.Body.Text, input.Body.TopK)
		if err != nil {
			return nil, handleError(err)
		}
		queriesAnswered.WithLabelValues(groundedLabel(res.Grounded)).Inc()
		return &struct {
			Body QueryResponse `json:"body"`
		}{Body: queryResponse(res)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Tail the audit event log",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" minimum:"0" maximum:"500"`
		Owner      string `query:"owner"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		items, err := e.Repo.LatestEvents(ctx, normalizeLimit(input.Limit), input.Owner, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Event{}
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 500 {
		return 500
	}
	return in
}

func groundedLabel(grounded bool) string {
	if grounded {
		return "grounded"
	}
	return "ungrounded"
}
