package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/banshee-data/fieldtrack/internal/track"
)

// PutActive replaces the in-progress session snapshot.
func (s *Store) PutActive(ctx context.Context, session track.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode active session %s: %w", session.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO active_session (slot, session_id, user_id, payload_json, updated_at_ms)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			session_id = excluded.session_id,
			user_id = excluded.user_id,
			payload_json = excluded.payload_json,
			updated_at_ms = excluded.updated_at_ms`,
		session.ID, session.UserID, string(payload), s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("write active session %s: %w", session.ID, err)
	}
	return nil
}

// GetActive returns the in-progress session snapshot, or ErrNotFound.
func (s *Store) GetActive(ctx context.Context) (track.Session, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload_json FROM active_session WHERE slot = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return track.Session{}, fmt.Errorf("active session: %w", ErrNotFound)
	}
	if err != nil {
		return track.Session{}, fmt.Errorf("read active session: %w", err)
	}
	return decodeSession(payload)
}

// DeleteActive clears the slot. Clearing an empty slot is not an error.
func (s *Store) DeleteActive(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM active_session WHERE slot = 1`); err != nil {
		return fmt.Errorf("clear active session: %w", err)
	}
	return nil
}
