package domain

const (
	ReportDaily       = "daily"
	ReportWeekly      = "weekly"
	ReportMonthly     = "monthly"
	ReportPerformance = "performance"
)

type Report struct {
	ID          string         `json:"id"`
	Type        string         `json:"type" enum:"daily,weekly,monthly,performance"`
	Owner       string         `json:"owner"`
	PeriodStart string         `json:"period_start" format:"date"`
	PeriodEnd   string         `json:"period_end" format:"date"`
	Tasks       []TaskItem     `json:"tasks"`
	KPIs        []KPIItem      `json:"kpis,omitempty"`
	Issues      []string       `json:"issues,omitempty"`
	Plans       []string       `json:"plans,omitempty"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   string         `json:"created_at" format:"date-time"`
	UpdatedAt   string         `json:"updated_at" format:"date-time"`
}

type TaskItem struct {
	TaskID      string `json:"task_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	TimeStart   string `json:"time_start,omitempty"`
	TimeEnd     string `json:"time_end,omitempty"`
	Status      string `json:"status,omitempty"`
	Note        string `json:"note,omitempty"`
}

type KPIItem struct {
	Name     string `json:"kpi_name"`
	Value    string `json:"value,omitempty"`
	Unit     string `json:"unit,omitempty"`
	Category string `json:"category,omitempty"`
}

type PlanEntry struct {
	Title    string `json:"title"`
	Category string `json:"category,omitempty"`
}

const (
	SessionCollecting = "COLLECTING"
	SessionFinished   = "FINISHED"
	SessionError      = "ERROR"
)

type Session struct {
	ID         string      `json:"id"`
	Owner      string      `json:"owner"`
	TargetDate string      `json:"target_date" format:"date"`
	State      string      `json:"state" enum:"COLLECTING,FINISHED,ERROR"`
	SlotIndex  int         `json:"slot_index"`
	Planned    []PlanEntry `json:"planned"`
	Entries    []SlotEntry `json:"entries"`
	Revision   int64       `json:"revision"`
	CreatedAt  string      `json:"created_at" format:"date-time"`
	UpdatedAt  string      `json:"updated_at" format:"date-time"`
}

// SlotEntry is one answered time slot. Empty Text means the slot was
// reported as no activity.
type SlotEntry struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Text  string `json:"text"`
}

const (
	ChunkTask    = "task"
	ChunkKPI     = "kpi"
	ChunkIssue   = "issue"
	ChunkPlan    = "plan"
	ChunkSummary = "summary"
)

type Chunk struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Type        string `json:"chunk_type" enum:"task,kpi,issue,plan,summary"`
	ReportID    string `json:"report_id"`
	ReportType  string `json:"report_type"`
	Owner       string `json:"owner"`
	PeriodStart string `json:"period_start" format:"date"`
	PeriodEnd   string `json:"period_end" format:"date"`
	Part        int    `json:"part"`
	TotalParts  int    `json:"total_parts"`
}

type KPIDocument struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	Name      string `json:"name"`
	Value     string `json:"value,omitempty"`
	Unit      string `json:"unit,omitempty"`
	Category  string `json:"category,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	Owner      string `json:"owner,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
