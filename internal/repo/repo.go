package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"daybook/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func encodeReport(r domain.Report) (tasks, kpis, issues, plans, meta string, err error) {
	if tasks, err = marshalJSON(emptyTasks(r.Tasks)); err != nil {
		return
	}
	if kpis, err = marshalJSON(emptyKPIs(r.KPIs)); err != nil {
		return
	}
	if issues, err = marshalJSON(emptyStrings(r.Issues)); err != nil {
		return
	}
	if plans, err = marshalJSON(emptyStrings(r.Plans)); err != nil {
		return
	}
	m := r.Metadata
	if m == nil {
		m = map[string]any{}
	}
	meta, err = marshalJSON(m)
	return
}

func emptyTasks(v []domain.TaskItem) []domain.TaskItem {
	if v == nil {
		return []domain.TaskItem{}
	}
	return v
}

func emptyKPIs(v []domain.KPIItem) []domain.KPIItem {
	if v == nil {
		return []domain.KPIItem{}
	}
	return v
}

func emptyStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func decodeReport(r *domain.Report, tasks, kpis, issues, plans, meta string) error {
	if err := json.Unmarshal([]byte(tasks), &r.Tasks); err != nil {
		return fmt.Errorf("report %s tasks_json: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(kpis), &r.KPIs); err != nil {
		return fmt.Errorf("report %s kpis_json: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(issues), &r.Issues); err != nil {
		return fmt.Errorf("report %s issues_json: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(plans), &r.Plans); err != nil {
		return fmt.Errorf("report %s plans_json: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
		return fmt.Errorf("report %s metadata_json: %w", r.ID, err)
	}
	return nil
}

const reportColumns = `id,type,owner,period_start,period_end,tasks_json,kpis_json,issues_json,plans_json,metadata_json,created_at,updated_at`

func scanReport(row *sql.Row) (domain.Report, error) {
	var r domain.Report
	var tasks, kpis, issues, plans, meta string
	err := row.Scan(&r.ID, &r.Type, &r.Owner, &r.PeriodStart, &r.PeriodEnd, &tasks, &kpis, &issues, &plans, &meta, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return r, domain.ErrNotFound
	}
	if err != nil {
		return r, err
	}
	return r, decodeReport(&r, tasks, kpis, issues, plans, meta)
}

// UpsertReportTx writes one report row per (owner, period_start, period_end,
// type) key. A second build for the same key overwrites the body and keeps
// the original id and created_at. Returns whether a new row was created.
func (r Repo) UpsertReportTx(ctx context.Context, tx *sql.Tx, rep domain.Report) (domain.Report, bool, error) {
	tasks, kpis, issues, plans, meta, err := encodeReport(rep)
	if err != nil {
		return rep, false, err
	}
	var existingID, existingCreated string
	err = tx.QueryRowContext(ctx, `SELECT id,created_at FROM reports WHERE owner=? AND period_start=? AND period_end=? AND type=?`,
		rep.Owner, rep.PeriodStart, rep.PeriodEnd, rep.Type).Scan(&existingID, &existingCreated)
	if err != nil && err != sql.ErrNoRows {
		return rep, false, err
	}
	if err == nil {
		rep.ID = existingID
		rep.CreatedAt = existingCreated
		_, err = tx.ExecContext(ctx, `UPDATE reports SET tasks_json=?,kpis_json=?,issues_json=?,plans_json=?,metadata_json=?,updated_at=? WHERE id=?`,
			tasks, kpis, issues, plans, meta, rep.UpdatedAt, rep.ID)
		return rep, false, err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO reports(`+reportColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		rep.ID, rep.Type, rep.Owner, rep.PeriodStart, rep.PeriodEnd, tasks, kpis, issues, plans, meta, rep.CreatedAt, rep.UpdatedAt)
	return rep, true, err
}

func (r Repo) ReportByID(ctx context.Context, id string) (domain.Report, error) {
	return scanReport(r.DB.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id=?`, id))
}

// ReportByOwnerAndDate looks up the daily report for one workday.
func (r Repo) ReportByOwnerAndDate(ctx context.Context, owner, date string) (domain.Report, error) {
	return scanReport(r.DB.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE owner=? AND period_start=? AND period_end=? AND type=?`,
		owner, date, date, domain.ReportDaily))
}

// ReportsByOwnerAndRange returns reports of one type whose period starts
// inside [start, end], ordered by period start.
func (r Repo) ReportsByOwnerAndRange(ctx context.Context, owner, reportType, start, end string) ([]domain.Report, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE owner=? AND type=? AND period_start>=? AND period_start<=? ORDER BY period_start ASC, id ASC`,
		owner, reportType, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReports(rows)
}

type ReportFilters struct {
	Owner string
	Type  string
	Start string
	End   string
	Limit int
}

func (r Repo) ListReports(ctx context.Context, f ReportFilters) ([]domain.Report, error) {
	var clauses []string
	var args []any
	if f.Owner != "" {
		clauses = append(clauses, "owner=?")
		args = append(args, f.Owner)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.Start != "" {
		clauses = append(clauses, "period_start>=?")
		args = append(args, f.Start)
	}
	if f.End != "" {
		clauses = append(clauses, "period_start<=?")
		args = append(args, f.End)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + reportColumns + ` FROM reports ` + where + ` ORDER BY period_start DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReports(rows)
}

func collectReports(rows *sql.Rows) ([]domain.Report, error) {
	var res []domain.Report
	for rows.Next() {
		var rep domain.Report
		var tasks, kpis, issues, plans, meta string
		if err := rows.Scan(&rep.ID, &rep.Type, &rep.Owner, &rep.PeriodStart, &rep.PeriodEnd, &tasks, &kpis, &issues, &plans, &meta, &rep.CreatedAt, &rep.UpdatedAt); err != nil {
			return nil, err
		}
		if err := decodeReport(&rep, tasks, kpis, issues, plans, meta); err != nil {
			return nil, err
		}
		res = append(res, rep)
	}
	return res, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, owner, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, owner, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, owner, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if owner != "" {
		clauses = append(clauses, "owner=?")
		args = append(args, owner)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,owner,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,ts,type,owner,entity_kind,entity_id,actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`,
		cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// LatestEventID returns the most recent event ID, 0 when the log is empty.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func collectEvents(rows *sql.Rows) ([]domain.Event, error) {
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.Owner, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
