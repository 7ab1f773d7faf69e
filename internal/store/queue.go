package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/banshee-data/fieldtrack/internal/track"
)

// Filter narrows All. Zero fields match everything.
type Filter struct {
	UserID    string
	CompanyID string
	FieldID   string
	Status    track.Status
	// UnsyncedOnly keeps entries still waiting for a remote acknowledgement.
	UnsyncedOnly bool
}

// Put writes s to the queue, replacing an entry with the same id. The write
// is committed when Put returns.
func (s *Store) Put(ctx context.Context, session track.Session) error {
	if session.ID == "" {
		return errors.New("session id is required")
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO track_queue (session_id, user_id, company_id, status, synced, remote_id, start_time_ms, payload_json, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			user_id = excluded.user_id,
			company_id = excluded.company_id,
			status = excluded.status,
			synced = excluded.synced,
			remote_id = excluded.remote_id,
			start_time_ms = excluded.start_time_ms,
			payload_json = excluded.payload_json,
			updated_at_ms = excluded.updated_at_ms`,
		session.ID, session.UserID, session.CompanyID, string(session.Status), session.Synced, session.RemoteID,
		session.StartTime.UnixMilli(), string(payload), s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("queue session %s: %w", session.ID, err)
	}
	return nil
}

// Get returns the queued session with the given id.
func (s *Store) Get(ctx context.Context, id string) (track.Session, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload_json FROM track_queue WHERE session_id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return track.Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return track.Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return decodeSession(payload)
}

// All returns queued sessions matching f, most recent first.
func (s *Store) All(ctx context.Context, f Filter) ([]track.Session, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.CompanyID != "" {
		where = append(where, "company_id = ?")
		args = append(args, f.CompanyID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.UnsyncedOnly {
		where = append(where, "synced = 0")
	}

	query := `SELECT payload_json FROM track_queue`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_time_ms DESC, session_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []track.Session{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		session, err := decodeSession(payload)
		if err != nil {
			return nil, err
		}
		if f.FieldID != "" && !slices.Contains(session.FieldIDs, f.FieldID) {
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// Unsynced returns every queued session still waiting for the remote.
func (s *Store) Unsynced(ctx context.Context) ([]track.Session, error) {
	return s.All(ctx, Filter{UnsyncedOnly: true})
}

// MarkSynced flags a queued session as acknowledged by the remote service,
// which knows it as remoteID.
func (s *Store) MarkSynced(ctx context.Context, id, remoteID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var payload string
	err = tx.QueryRowContext(ctx, `SELECT payload_json FROM track_queue WHERE session_id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("mark synced %s: %w", id, err)
	}

	session, err := decodeSession(payload)
	if err != nil {
		return err
	}
	session = track.MarkSynced(session, remoteID)
	updated, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE track_queue SET synced = 1, status = ?, remote_id = ?, payload_json = ?, updated_at_ms = ? WHERE session_id = ?`,
		string(session.Status), session.RemoteID, string(updated), s.now().UnixMilli(), id,
	); err != nil {
		return fmt.Errorf("mark synced %s: %w", id, err)
	}
	return tx.Commit()
}

// Delete removes a queued session. Deleting a missing id returns
// ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM track_queue WHERE session_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

func decodeSession(payload string) (track.Session, error) {
	var session track.Session
	if err := json.Unmarshal([]byte(payload), &session); err != nil {
		return track.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}
