package repo

import (
	"context"
	"database/sql"

	"daybook/internal/domain"
)

// ReplacePlans swaps out the planned tasks for one workday in a single
// transaction.
func (r Repo) ReplacePlans(ctx context.Context, owner, date string, entries []domain.PlanEntry) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.ReplacePlansTx(ctx, tx, owner, date, entries); err != nil {
		return err
	}
	return tx.Commit()
}

func (r Repo) ReplacePlansTx(ctx context.Context, tx *sql.Tx, owner, date string, entries []domain.PlanEntry) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM plans WHERE owner=? AND date=?`, owner, date); err != nil {
		return err
	}
	for i, e := range entries {
		if _, err := tx.ExecContext(ctx, `INSERT INTO plans(owner,date,position,title,category) VALUES (?,?,?,?,?)`,
			owner, date, i, e.Title, e.Category); err != nil {
			return err
		}
	}
	return nil
}

// MainTasks returns the planned tasks for (owner, date) in plan order. An
// empty day yields an empty slice, not an error; callers decide whether that
// is a precondition failure.
func (r Repo) MainTasks(ctx context.Context, owner, date string) ([]domain.PlanEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT title,category FROM plans WHERE owner=? AND date=? ORDER BY position ASC`, owner, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PlanEntry
	for rows.Next() {
		var e domain.PlanEntry
		if err := rows.Scan(&e.Title, &e.Category); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
