package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"daybook/internal/domain"
)

// StoredChunk is one embedded retrieval unit as persisted in the vectors
// table.
type StoredChunk struct {
	ChunkID   string
	ReportID  string
	ChunkType string
	Owner     string
	Text      string
	Embedding []float32
	Metadata  map[string]any
}

// ReplaceChunksTx swaps out every vector row for a report. Chunks and
// embeddings are positionally paired.
func (r Repo) ReplaceChunksTx(ctx context.Context, tx *sql.Tx, reportID string, chunks []domain.Chunk, embeddings [][]float32, now string) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("replace chunks for %s: %d chunks but %d embeddings", reportID, len(chunks), len(embeddings))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE report_id=?`, reportID); err != nil {
		return err
	}
	for i, c := range chunks {
		emb, err := marshalJSON(embeddings[i])
		if err != nil {
			return err
		}
		meta, err := marshalJSON(map[string]any{
			"report_type":  c.ReportType,
			"period_start": c.PeriodStart,
			"period_end":   c.PeriodEnd,
			"part":         c.Part,
			"total_parts":  c.TotalParts,
		})
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vectors(chunk_id,report_id,chunk_type,owner,text,embedding,metadata_json,created_at) VALUES (?,?,?,?,?,?,?,?)`,
			c.ID, reportID, c.Type, c.Owner, c.Text, emb, meta, now); err != nil {
			return err
		}
	}
	return nil
}

// Candidates loads embedded chunks for similarity scoring, optionally
// filtered by owner and chunk type.
func (r Repo) Candidates(ctx context.Context, owner, chunkType string) ([]StoredChunk, error) {
	query := `SELECT chunk_id,report_id,chunk_type,owner,text,embedding,metadata_json FROM vectors WHERE 1=1`
	var args []any
	if owner != "" {
		query += ` AND owner=?`
		args = append(args, owner)
	}
	if chunkType != "" {
		query += ` AND chunk_type=?`
		args = append(args, chunkType)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []StoredChunk
	for rows.Next() {
		var c StoredChunk
		var emb, meta string
		if err := rows.Scan(&c.ChunkID, &c.ReportID, &c.ChunkType, &c.Owner, &c.Text, &emb, &meta); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(emb), &c.Embedding); err != nil {
			return nil, fmt.Errorf("chunk %s embedding: %w", c.ChunkID, err)
		}
		if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
			return nil, fmt.Errorf("chunk %s metadata_json: %w", c.ChunkID, err)
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) CountChunksByReport(ctx context.Context, reportID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM vectors WHERE report_id=?`, reportID).Scan(&n)
	return n, err
}
