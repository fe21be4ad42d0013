package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"daybook/internal/domain"
)

const sessionColumns = `id,owner,target_date,state,slot_index,planned_json,entries_json,revision,created_at,updated_at`

func encodeSession(s domain.Session) (planned, entries string, err error) {
	p := s.Planned
	if p == nil {
		p = []domain.PlanEntry{}
	}
	if planned, err = marshalJSON(p); err != nil {
		return
	}
	e := s.Entries
	if e == nil {
		e = []domain.SlotEntry{}
	}
	entries, err = marshalJSON(e)
	return
}

func decodeSession(s *domain.Session, planned, entries string) error {
	if err := json.Unmarshal([]byte(planned), &s.Planned); err != nil {
		return fmt.Errorf("session %s planned_json: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(entries), &s.Entries); err != nil {
		return fmt.Errorf("session %s entries_json: %w", s.ID, err)
	}
	return nil
}

func scanSession(row *sql.Row) (domain.Session, error) {
	var s domain.Session
	var planned, entries string
	err := row.Scan(&s.ID, &s.Owner, &s.TargetDate, &s.State, &s.SlotIndex, &planned, &entries, &s.Revision, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, domain.ErrNotFound
	}
	if err != nil {
		return s, err
	}
	return s, decodeSession(&s, planned, entries)
}

func (r Repo) InsertSessionTx(ctx context.Context, tx *sql.Tx, s domain.Session) error {
	planned, entries, err := encodeSession(s)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO sessions(`+sessionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.Owner, s.TargetDate, s.State, s.SlotIndex, planned, entries, s.Revision, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) GetSession(ctx context.Context, id string) (domain.Session, error) {
	return scanSession(r.DB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=?`, id))
}

// LiveSession returns the collecting session for (owner, date), if any.
func (r Repo) LiveSession(ctx context.Context, owner, date string) (domain.Session, error) {
	return scanSession(r.DB.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE owner=? AND target_date=? AND state=?`,
		owner, date, domain.SessionCollecting))
}

// UpdateSessionTx persists an advanced session, guarded by the revision the
// caller loaded. A stale revision means another writer got there first and
// surfaces as a conflict.
func (r Repo) UpdateSessionTx(ctx context.Context, tx *sql.Tx, s domain.Session, expectedRevision int64) error {
	planned, entries, err := encodeSession(s)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET state=?,slot_index=?,planned_json=?,entries_json=?,revision=?,updated_at=? WHERE id=? AND revision=?`,
		s.State, s.SlotIndex, planned, entries, expectedRevision+1, s.UpdatedAt, s.ID, expectedRevision)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s revision %d is stale: %w", s.ID, expectedRevision, domain.ErrConflict)
	}
	return nil
}

// AbortSessionTx moves a session into the terminal ERROR state, used when an
// explicit restart replaces a live session.
func (r Repo) AbortSessionTx(ctx context.Context, tx *sql.Tx, id, now string) error {
	_, err := tx.ExecContext(ctx, `UPDATE sessions SET state=?, revision=revision+1, updated_at=? WHERE id=?`,
		domain.SessionError, now, id)
	return err
}

type SessionFilters struct {
	Owner string
	State string
	Limit int
}

func (r Repo) ListSessions(ctx context.Context, f SessionFilters) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1=1`
	var args []any
	if f.Owner != "" {
		query += ` AND owner=?`
		args = append(args, f.Owner)
	}
	if f.State != "" {
		query += ` AND state=?`
		args = append(args, f.State)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Session
	for rows.Next() {
		var s domain.Session
		var planned, entries string
		if err := rows.Scan(&s.ID, &s.Owner, &s.TargetDate, &s.State, &s.SlotIndex, &planned, &entries, &s.Revision, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if err := decodeSession(&s, planned, entries); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
