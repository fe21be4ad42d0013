package server

import (
	"daybook/internal/domain"
	"daybook/internal/engine"
)

type StartSessionRequest struct {
	Owner   string `json:"owner" example:"kim"`
	Date    string `json:"date" format:"date" example:"2024-06-03"`
	Restart bool   `json:"restart,omitempty" doc:"Replace a live session for the same owner and date"`
}

type StartSessionResponse struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

type SubmitAnswerRequest struct {
	Text string `json:"text" doc:"Activity for the current slot; empty means no activity"`
}

type SubmitAnswerResponse struct {
	SessionID    string         `json:"session_id"`
	SlotIndex    int            `json:"slot_index"`
	Finished     bool           `json:"finished"`
	NextQuestion string         `json:"next_question,omitempty"`
	ReportKey    string         `json:"report_key,omitempty"`
	Summary      string         `json:"summary,omitempty"`
	Report       *domain.Report `json:"report,omitempty"`
}

type AggregateRequest struct {
	Owner     string `json:"owner" example:"kim"`
	Reference string `json:"reference" format:"date" doc:"Any date inside the target week or month"`
}

type PerformanceRequest struct {
	Owner string `json:"owner" example:"kim"`
	Start string `json:"start" format:"date"`
	End   string `json:"end" format:"date"`
}

type SetPlansRequest struct {
	Entries []domain.PlanEntry `json:"entries"`
}

type KPIDocumentRequest struct {
	Owner    string `json:"owner"`
	Name     string `json:"name"`
	Value    string `json:"value,omitempty"`
	Unit     string `json:"unit,omitempty"`
	Category string `json:"category,omitempty"`
}

type IngestResponse struct {
	ReportID   string `json:"report_id"`
	ChunkCount int    `json:"chunk_count"`
}

type QueryRequest struct {
	Owner string `json:"owner,omitempty" doc:"Restrict retrieval to one owner's reports"`
	Text  string `json:"text"`
	TopK  int    `json:"top_k,omitempty" minimum:"0" maximum:"50"`
}

type SourceResponse struct {
	ChunkID    string  `json:"chunk_id"`
	ReportID   string  `json:"report_id"`
	Similarity float64 `json:"similarity"`
	Excerpt    string  `json:"excerpt"`
}

type QueryResponse struct {
	Answer    string           `json:"answer"`
	Grounded  bool             `json:"grounded"`
	Threshold float64          `json:"threshold"`
	Sources   []SourceResponse `json:"sources"`
}

func answerResponse(res engine.AnswerResult) SubmitAnswerResponse {
	out := SubmitAnswerResponse{
		SessionID:    res.SessionID,
		SlotIndex:    res.SlotIndex,
		Finished:     res.Finished,
		NextQuestion: res.NextQuestion,
		ReportKey:    res.ReportKey,
		Summary:      res.Summary,
	}
	if res.Finished {
		rep := res.Report
		out.Report = &rep
	}
	return out
}

func queryResponse(res engine.QueryResult) QueryResponse {
	sources := make([]SourceResponse, len(res.Sources))
	for i, s := range res.Sources {
		sources[i] = SourceResponse{
			ChunkID:    s.ChunkID,
			ReportID:   s.ReportID,
			Similarity: s.Similarity,
			Excerpt:    s.Excerpt,
		}
	}
	return QueryResponse{
		Answer:    res.Answer,
		Grounded:  res.Grounded,
		Threshold: res.Threshold,
		Sources:   sources,
	}
}
