package repo

import (
	"context"
	"database/sql"

	"daybook/internal/domain"
)

func (r Repo) InsertKPIDocumentTx(ctx context.Context, tx *sql.Tx, doc domain.KPIDocument) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO kpi_documents(id,owner,name,value,unit,category,created_at) VALUES (?,?,?,?,?,?,?)`,
		doc.ID, doc.Owner, doc.Name, doc.Value, doc.Unit, doc.Category, doc.CreatedAt)
	return err
}

func (r Repo) ListKPIDocuments(ctx context.Context, owner string) ([]domain.KPIDocument, error) {
	query := `SELECT id,owner,name,value,unit,category,created_at FROM kpi_documents`
	var args []any
	if owner != "" {
		query += ` WHERE owner=?`
		args = append(args, owner)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.KPIDocument
	for rows.Next() {
		var d domain.KPIDocument
		if err := rows.Scan(&d.ID, &d.Owner, &d.Name, &d.Value, &d.Unit, &d.Category, &d.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) DeleteKPIDocument(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM kpi_documents WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
