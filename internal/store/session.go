package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pavelanni/worksheetgen/internal/model"
)

// SessionKey is the well-known slot holding the wizard session.
const SessionKey = "worksheetSession"

// SessionTTL is the token window, counted from token acquisition.
const SessionTTL = model.SessionTTL

// SaveSession persists the full session snapshot. Sessions without a token
// are not persisted. The stored expiry is the session's own TokenExpiry.
func (s *Store) SaveSession(ctx context.Context, sess *model.Session) error {
	if sess == nil || sess.Token == "" {
		return nil
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.setSlot(ctx, SessionKey, string(data), sess.TokenExpiry); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// RestoreSession returns the saved session if present, parseable and
// unexpired. Otherwise the slot is cleared and nil is returned.
func (s *Store) RestoreSession(ctx context.Context) (*model.Session, error) {
	sl, err := s.getSlot(ctx, SessionKey)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sl == nil {
		return nil, nil
	}

	var sess model.Session
	if err := json.Unmarshal([]byte(sl.value), &sess); err != nil {
		slog.Warn("discarding unreadable session", "error", err)
		return nil, s.ClearSession(ctx)
	}
	if sess.Expired(s.now()) {
		slog.Info("discarding expired session", "expired_at", sess.TokenExpiry)
		return nil, s.ClearSession(ctx)
	}
	if !sess.Step.Valid() {
		sess.Step = model.StepConfigure
	}
	return &sess, nil
}

// ClearSession removes the session slot unconditionally.
func (s *Store) ClearSession(ctx context.Context) error {
	if err := s.deleteSlot(ctx, SessionKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// HasSession reports whether the slot holds anything, expired or not.
func (s *Store) HasSession(ctx context.Context) (bool, error) {
	sl, err := s.getSlot(ctx, SessionKey)
	if err != nil {
		return false, err
	}
	return sl != nil, nil
}
