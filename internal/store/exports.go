package store

import (
	"context"
	"time"

	"github.com/pavelanni/worksheetgen/internal/model"
)

// RecordExport stores a written workbook in the export history.
func (s *Store) RecordExport(ctx context.Context, worksheetID, filename string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO exports (worksheet_id, filename, created_at) VALUES (?, ?, ?)`,
		worksheetID, filename, s.now().UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListExports returns the export history, newest first.
func (s *Store) ListExports(ctx context.Context) ([]model.ExportRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, worksheet_id, filename, created_at FROM exports ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []model.ExportRecord
	for rows.Next() {
		var (
			r         model.ExportRecord
			createdAt int64
		)
		if err := rows.Scan(&r.ID, &r.WorksheetID, &r.Filename, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt = time.UnixMilli(createdAt)
		records = append(records, r)
	}
	return records, rows.Err()
}
