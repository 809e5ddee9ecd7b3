package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hwonboard/earlychecks/pkg/checks"
	"github.com/hwonboard/earlychecks/pkg/errors"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for check sessions
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}
	// Session goroutines and update runs write concurrently.
	db.SetMaxOpenConns(1)

	slog.Info("database_create_schema", "db_path", dbPath)
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Info("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// CreateSession inserts a new session record
func (r *Repository) CreateSession(s *Session) error {
	slog.Info("database_create_session", "session_id", s.ID, "device_id", s.DeviceID)

	if s.GenuineStatus == "" {
		s.GenuineStatus = string(checks.StatusInactive)
	}
	if s.FirmwareStatus == "" {
		s.FirmwareStatus = string(checks.StatusInactive)
	}

	query := `
		INSERT INTO sessions (id, device_id, model_id, genuine_status, firmware_status, completed)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, s.ID, s.DeviceID, s.ModelID, s.GenuineStatus, s.FirmwareStatus, s.Completed)
	if err != nil {
		slog.Error("database_insert_failed", "session_id", s.ID, "error", err)
		return errors.Wrap(err, "failed to insert session")
	}

	slog.Info("database_session_created", "session_id", s.ID)
	return nil
}

// GetSession retrieves a session by id. It returns nil when not found.
func (r *Repository) GetSession(id string) (*Session, error) {
	query := `
		SELECT id, device_id, model_id, genuine_status, firmware_status, completed, created_at, updated_at
		FROM sessions WHERE id = ?
	`
	s, err := scanSession(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		slog.Info("database_session_not_found", "session_id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("database_query_failed", "session_id", id, "error", err)
		return nil, errors.Wrap(err, "failed to query session")
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var s Session
	var completed int
	if err := row.Scan(
		&s.ID, &s.DeviceID, &s.ModelID, &s.GenuineStatus, &s.FirmwareStatus,
		&completed, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Completed = completed != 0
	return &s, nil
}

// ListSessions retrieves all sessions, newest first
func (r *Repository) ListSessions() ([]*Session, error) {
	slog.Info("database_list_sessions")

	query := `
		SELECT id, device_id, model_id, genuine_status, firmware_status, completed, created_at, updated_at
		FROM sessions ORDER BY created_at DESC, id
	`
	rows, err := r.db.Query(query)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list sessions")
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		slog.Error("database_rows_error", "error", err)
		return nil, errors.Wrap(err, "rows error")
	}

	slog.Info("database_list_complete", "session_count", len(sessions))
	return sessions, nil
}

// MarkCompleted flags a session whose user continued to the device setup
func (r *Repository) MarkCompleted(id string) error {
	result, err := r.db.Exec(`UPDATE sessions SET completed = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		slog.Error("database_update_failed", "session_id", id, "error", err)
		return errors.Wrap(err, "failed to mark session completed")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return fmt.Errorf("session not found: id=%s", id)
	}
	slog.Info("database_session_completed", "session_id", id)
	return nil
}

// RecordTransition stores t and moves the session's status for t.Check.
// Sessions not yet created are created on the fly.
func (r *Repository) RecordTransition(ctx context.Context, t checks.Transition) error {
	var column string
	switch t.Check {
	case checks.CheckGenuine:
		column = "genuine_status"
	case checks.CheckFirmware:
		column = "firmware_status"
	default:
		return fmt.Errorf("unknown check: %q", t.Check)
	}

	at := t.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed_to_begin_transaction", "error", err)
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, device_id) VALUES (?, ?)`,
		t.SessionID, t.DeviceID); err != nil {
		return errors.Wrap(err, "failed to ensure session")
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transitions (id, session_id, device_id, check_name, from_status, to_status, reason, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ulid.Make().String(), t.SessionID, t.DeviceID, t.Check,
		string(t.From), string(t.To), t.Reason, at.Format(time.RFC3339Nano)); err != nil {
		slog.Error("database_insert_failed", "session_id", t.SessionID, "check", t.Check, "error", err)
		return errors.Wrap(err, "failed to insert transition")
	}

	query := fmt.Sprintf(`UPDATE sessions SET %s = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, column)
	if _, err := tx.ExecContext(ctx, query, string(t.To), t.SessionID); err != nil {
		return errors.Wrap(err, "failed to update session status")
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed_to_commit_transaction", "error", err)
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// ListTransitions returns the history of a session in recording order
func (r *Repository) ListTransitions(sessionID string) ([]*TransitionRecord, error) {
	query := `
		SELECT id, session_id, device_id, check_name, from_status, to_status, reason, at
		FROM transitions WHERE session_id = ? ORDER BY id
	`
	rows, err := r.db.Query(query, sessionID)
	if err != nil {
		slog.Error("database_list_query_failed", "session_id", sessionID, "error", err)
		return nil, errors.Wrap(err, "failed to list transitions")
	}
	defer rows.Close()

	var out []*TransitionRecord
	for rows.Next() {
		var t TransitionRecord
		var reason sql.NullString
		if err := rows.Scan(&t.ID, &t.SessionID, &t.DeviceID, &t.Check, &t.From, &t.To, &reason, &t.At); err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}
		t.Reason = reason.String
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}
	return out, nil
}

// CreateUpdate inserts a firmware update run. An empty ID is filled in.
func (r *Repository) CreateUpdate(u *Update) error {
	if u.ID == "" {
		u.ID = ulid.Make().String()
	}
	if u.Status == "" {
		u.Status = UpdatePending
	}
	slog.Info("database_create_update", "update_id", u.ID, "session_id", u.SessionID, "firmware", u.Firmware)

	query := `
		INSERT INTO updates (id, session_id, device_id, firmware, mode, step_id, status, attempts, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		u.ID, u.SessionID, u.DeviceID, u.Firmware, u.Mode, u.StepID,
		u.Status, u.Attempts, u.ErrorMessage)
	if err != nil {
		slog.Error("database_insert_failed", "update_id", u.ID, "error", err)
		return errors.Wrap(err, "failed to insert update")
	}
	return nil
}

// UpdateUpdateStatus moves a firmware update run to status
func (r *Repository) UpdateUpdateStatus(id, status string, attempts int, errorMessage string) error {
	slog.Info("database_update_status", "update_id", id, "status", status, "attempts", attempts)

	query := `UPDATE updates SET status = ?, attempts = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	result, err := r.db.Exec(query, status, attempts, errorMessage, id)
	if err != nil {
		slog.Error("database_status_update_failed", "update_id", id, "status", status, "error", err)
		return errors.Wrap(err, "failed to update status")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return fmt.Errorf("update not found: id=%s", id)
	}
	return nil
}

// GetUpdate retrieves an update run by id. It returns nil when not found.
func (r *Repository) GetUpdate(id string) (*Update, error) {
	updates, err := r.queryUpdates(`WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, nil
	}
	return updates[0], nil
}

// ListUpdates returns the update runs of a session, oldest first
func (r *Repository) ListUpdates(sessionID string) ([]*Update, error) {
	return r.queryUpdates(`WHERE session_id = ? ORDER BY id`, sessionID)
}

func (r *Repository) queryUpdates(where string, args ...any) ([]*Update, error) {
	query := `
		SELECT id, session_id, device_id, firmware, mode, step_id, status, attempts,
		       error_message, created_at, updated_at
		FROM updates ` + where
	rows, err := r.db.Query(query, args...)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to query updates")
	}
	defer rows.Close()

	var out []*Update
	for rows.Next() {
		var u Update
		var errorMessage sql.NullString
		if err := rows.Scan(
			&u.ID, &u.SessionID, &u.DeviceID, &u.Firmware, &u.Mode, &u.StepID,
			&u.Status, &u.Attempts, &errorMessage, &u.CreatedAt, &u.UpdatedAt); err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}
		u.ErrorMessage = errorMessage.String
		out = append(out, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}
	return out, nil
}

// DeleteSession deletes a session with its transitions and updates
func (r *Repository) DeleteSession(ctx context.Context, id string) error {
	slog.Info("database_delete_session", "session_id", id)
	_, err := r.deleteWhere(ctx, `id = ?`, id)
	return err
}

// DeleteSessionsOlderThan deletes sessions created before cutoff and
// returns how many were removed
func (r *Repository) DeleteSessionsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	slog.Info("database_prune_sessions", "cutoff", cutoff.UTC().Format(time.RFC3339))
	n, err := r.deleteWhere(ctx, `created_at < datetime(?, 'unixepoch')`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	slog.Info("database_sessions_pruned", "session_count", n)
	return n, nil
}

func (r *Repository) deleteWhere(ctx context.Context, cond string, args ...any) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed_to_begin_transaction", "error", err)
		return 0, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	selected := `SELECT id FROM sessions WHERE ` + cond
	for _, table := range []string{"transitions", "updates"} {
		query := fmt.Sprintf(`DELETE FROM %s WHERE session_id IN (%s)`, table, selected)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			slog.Error("database_delete_failed", "table", table, "error", err)
			return 0, errors.Wrapf(err, "failed to delete %s", table)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE `+cond, args...)
	if err != nil {
		slog.Error("database_delete_failed", "table", "sessions", "error", err)
		return 0, errors.Wrap(err, "failed to delete sessions")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed_to_commit_transaction", "error", err)
		return 0, errors.Wrap(err, "failed to commit transaction")
	}
	return n, nil
}
