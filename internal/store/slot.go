package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type slot struct {
	value     string
	expiresAt time.Time
}

// setSlot upserts a value under key.
func (s *Store) setSlot(ctx context.Context, key, value string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO slots (key, value, expires_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at, updated_at = excluded.updated_at`,
		key, value, expiresAt.UnixMilli(), s.now().UnixMilli(),
	)
	return err
}

// getSlot returns the slot stored under key, or nil if the key is missing.
func (s *Store) getSlot(ctx context.Context, key string) (*slot, error) {
	var (
		value     string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM slots WHERE key = ?`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &slot{value: value, expiresAt: time.UnixMilli(expiresAt)}, nil
}

func (s *Store) deleteSlot(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE key = ?`, key)
	return err
}
