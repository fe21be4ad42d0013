// Package engine orchestrates the daybook core: it owns persistence and
// event writing around the pure session, reconcile, report, chunker, and
// vector packages, and talks to the embedding/generation collaborators.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"daybook/internal/chunker"
	"daybook/internal/config"
	"daybook/internal/domain"
	"daybook/internal/events"
	"daybook/internal/reconcile"
	"daybook/internal/repo"
	"daybook/internal/report"
	"daybook/internal/session"
)

// Embedder is the embedding collaborator seam.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator is the language-model collaborator seam. It must answer only
// from the supplied context block.
type Generator interface {
	Generate(ctx context.Context, prompt, contextBlock string) (string, error)
}

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Locks     *session.Keyed
	Chunker   *chunker.Chunker
	Embedder  Embedder
	Generator Generator
	Logger    *zap.Logger
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Events:  events.Writer{DB: db},
		Config:  cfg,
		Locks:   session.NewKeyed(),
		Chunker: chunker.New(chunker.WithMaxRunes(cfg.Chunk.MaxRunes)),
		Logger:  zap.NewNop(),
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

func (e Engine) thresholds() reconcile.Thresholds {
	if e.Config == nil {
		return reconcile.DefaultThresholds()
	}
	return reconcile.Thresholds{
		Similarity: e.Config.Reconcile.SimilarityThreshold,
		Category:   e.Config.Reconcile.CategoryThreshold,
	}
}

// ReportKey is the storage key of a stored report.
func ReportKey(r domain.Report) string {
	return fmt.Sprintf("%s/%s/%s/%s", r.Owner, r.PeriodStart, r.PeriodEnd, r.Type)
}

// StartSession opens a collection session for one owner and workday. It
// requires a non-empty planned-task list for the day; a collecting session
// already open for the same key is replaced only when restart is set.
func (e Engine) StartSession(ctx context.Context, owner, date string, restart bool, actorID string) (domain.Session, string, error) {
	if owner == "" {
		return domain.Session{}, "", fmt.Errorf("owner is required: %w", domain.ErrValidation)
	}
	if _, err := report.ParseDate(date); err != nil {
		return domain.Session{}, "", fmt.Errorf("date %q: %w", date, domain.ErrValidation)
	}
	planned, err := e.Repo.MainTasks(ctx, owner, date)
	if err != nil {
		return domain.Session{}, "", err
	}
	if len(planned) == 0 {
		return domain.Session{}, "", fmt.Errorf("no planned tasks for %s on %s: %w", owner, date, domain.ErrPrecondition)
	}

	var sess domain.Session
	err = e.Locks.Do("session-start:"+owner+"|"+date, func() error {
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		now := e.nowRFC3339()
		live, err := e.Repo.LiveSession(ctx, owner, date)
		switch {
		case err == nil:
			if !restart {
				return fmt.Errorf("session %s already collecting for %s on %s: %w", live.ID, owner, date, domain.ErrConflict)
			}
			if err := e.Repo.AbortSessionTx(ctx, tx, live.ID, now); err != nil {
				return err
			}
			if err := e.Events.Append(ctx, tx, "session.aborted", owner, "session", live.ID, actorID, events.EventPayload{"reason": "restart"}); err != nil {
				return err
			}
		case err == domain.ErrNotFound:
		default:
			return err
		}

		sess = session.New(uuid.NewString(), owner, date, planned)
		sess.CreatedAt = now
		sess.UpdatedAt = now
		if err := e.Repo.InsertSessionTx(ctx, tx, sess); err != nil {
			return err
		}
		if err := e.Events.Append(ctx, tx, "session.started", owner, "session", sess.ID, actorID, events.EventPayload{
			"target_date":   date,
			"planned_count": len(planned),
		}); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return domain.Session{}, "", err
	}

	question := session.Question(e.Config.Collection.QuestionTemplate, date, e.Config.Collection.Slots[0])
	e.logger().Info("session started",
		zap.String("session_id", sess.ID),
		zap.String("owner", owner),
		zap.String("date", date),
		zap.Int("planned", len(planned)))
	return sess, question, nil
}

// AnswerResult is the outcome of one submitted answer: either the next
// question, or the finished report and its storage key.
type AnswerResult struct {
	SessionID    string
	SlotIndex    int
	Finished     bool
	NextQuestion string
	Report       domain.Report
	ReportKey    string
	Summary      string
}

// SubmitAnswer records text against the current slot. Empty text is a valid
// "no activity" answer. When the last slot is answered the engine reconciles,
// builds the daily report, upserts it, and finishes the session. Writers on
// the same session are refused while one is in flight.
func (e Engine) SubmitAnswer(ctx context.Context, sessionID, text, actorID string) (AnswerResult, error) {
	var result AnswerResult
	err := e.Locks.Do(sessionLockPrefix+sessionID, func() error {
		sess, err := e.Repo.GetSession(ctx, sessionID)
		if err != nil {
			if err == domain.ErrNotFound {
				return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
			}
			return err
		}
		slots := e.Config.Collection.Slots
		next, step, err := session.Advance(sess, text, slots)
		if err != nil {
			return err
		}
		next.UpdatedAt = e.nowRFC3339()

		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if err := e.Repo.UpdateSessionTx(ctx, tx, next, sess.Revision); err != nil {
			return err
		}

		result = AnswerResult{SessionID: sessionID, SlotIndex: next.SlotIndex}
		if !step.Finished {
			result.NextQuestion = session.Question(e.Config.Collection.QuestionTemplate, next.TargetDate, *step.Next)
			return tx.Commit()
		}

		rep, created, err := e.storeDailyTx(ctx, tx, next, actorID)
		if err != nil {
			return err
		}
		if err := e.Events.Append(ctx, tx, "session.finished", next.Owner, "session", next.ID, actorID, events.EventPayload{
			"report_id": rep.ID,
		}); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		result.Finished = true
		result.Report = rep
		result.ReportKey = ReportKey(rep)
		result.Summary = dailySummary(rep)
		e.logger().Info("session finished",
			zap.String("session_id", next.ID),
			zap.String("owner", next.Owner),
			zap.String("report_key", result.ReportKey),
			zap.Bool("report_created", created))
		return nil
	})
	return result, err
}

// storeDailyTx reconciles and builds the daily report for a finished session
// and upserts it inside the caller's transaction.
func (e Engine) storeDailyTx(ctx context.Context, tx *sql.Tx, sess domain.Session, actorID string) (domain.Report, bool, error) {
	executed := session.ExecutedTasks(sess)
	rep := report.BuildDaily(sess.Owner, sess.TargetDate, sess.Planned, executed, e.thresholds())
	now := e.nowRFC3339()
	rep.ID = uuid.NewString()
	rep.CreatedAt = now
	rep.UpdatedAt = now

	rep, created, err := e.Repo.UpsertReportTx(ctx, tx, rep)
	if err != nil {
		return rep, false, err
	}
	evtType := "report.updated"
	if created {
		evtType = "report.created"
	}
	if err := e.Events.Append(ctx, tx, evtType, rep.Owner, "report", rep.ID, actorID, events.EventPayload{
		"type":            rep.Type,
		"period_start":    rep.PeriodStart,
		"period_end":      rep.PeriodEnd,
		"completion_rate": rep.Metadata[report.MetaCompletionRate],
	}); err != nil {
		return rep, false, err
	}
	return rep, created, nil
}

func dailySummary(rep domain.Report) string {
	rate, _ := rep.Metadata[report.MetaCompletionRate].(string)
	return fmt.Sprintf("%s %s 일일 보고: 업무 %d건, 미이행 %d건, 달성률 %s",
		rep.Owner, rep.PeriodStart, len(rep.Tasks), len(rep.Issues), rate)
}

// Session returns a stored session by id.
func (e Engine) Session(ctx context.Context, id string) (domain.Session, error) {
	return e.Repo.GetSession(ctx, id)
}

// SetPlans replaces the planned-task list for one workday.
func (e Engine) SetPlans(ctx context.Context, owner, date string, entries []domain.PlanEntry, actorID string) error {
	if owner == "" {
		return fmt.Errorf("owner is required: %w", domain.ErrValidation)
	}
	if _, err := report.ParseDate(date); err != nil {
		return fmt.Errorf("date %q: %w", date, domain.ErrValidation)
	}
	for i, p := range entries {
		if p.Title == "" {
			return fmt.Errorf("plan %d has an empty title: %w", i, domain.ErrValidation)
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.ReplacePlansTx(ctx, tx, owner, date, entries); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "plan.updated", owner, "plan", date, actorID, events.EventPayload{
		"count": len(entries),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// Plans returns the planned tasks for one workday.
func (e Engine) Plans(ctx context.Context, owner, date string) ([]domain.PlanEntry, error) {
	return e.Repo.MainTasks(ctx, owner, date)
}

// AddKPIDocument stores one entry of the KPI reference corpus.
func (e Engine) AddKPIDocument(ctx context.Context, doc domain.KPIDocument, actorID string) (domain.KPIDocument, error) {
	if doc.Owner == "" || doc.Name == "" {
		return domain.KPIDocument{}, fmt.Errorf("kpi document needs owner and name: %w", domain.ErrValidation)
	}
	doc.ID = uuid.NewString()
	doc.CreatedAt = e.nowRFC3339()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.KPIDocument{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertKPIDocumentTx(ctx, tx, doc); err != nil {
		return domain.KPIDocument{}, err
	}
	if err := e.Events.Append(ctx, tx, "kpi.added", doc.Owner, "kpi_document", doc.ID, actorID, events.EventPayload{
		"name": doc.Name,
	}); err != nil {
		return domain.KPIDocument{}, err
	}
	return doc, tx.Commit()
}

// KPIDocuments lists the KPI corpus, optionally by owner.
func (e Engine) KPIDocuments(ctx context.Context, owner string) ([]domain.KPIDocument, error) {
	return e.Repo.ListKPIDocuments(ctx, owner)
}

// CreateAPIKey mints an operator API key and returns the plaintext secret
// once; only the hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (string, domain.APIKey, error) {
	if actorID == "" {
		return "", domain.APIKey{}, fmt.Errorf("actor_id is required: %w", domain.ErrValidation)
	}
	secret := "dbk_" + uuid.NewString()
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(secret),
		CreatedAt: e.nowRFC3339(),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return "", domain.APIKey{}, err
	}
	return secret, key, nil
}
