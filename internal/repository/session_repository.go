package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/model"
)

// SessionRepo persists purchase sessions.  A session is stored as one row
// in purchase_sessions plus its ordered seat selection in session_seats.
// session_seats references the parent row with ON DELETE CASCADE, so
// removing a session is a single statement and cannot leave orphan seats.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo returns a new SessionRepo bound to the given database.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

const sessionColumns = `session_id, username, event_id, step, created_at, last_activity_at, version`

// GetByUsername loads the session owned by username together with its
// seats.  ErrNotFound is returned when the user has no session.
func (r *SessionRepo) GetByUsername(ctx context.Context, username string) (*model.PurchaseSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM purchase_sessions WHERE username = ?`
	s, err := scanSession(r.db.QueryRowContext(ctx, q, username))
	if err != nil {
		return nil, err
	}
	seats, err := r.loadSeats(ctx, s.SessionID)
	if err != nil {
		return nil, err
	}
	s.Seats = seats
	return s, nil
}

func scanSession(row rowScanner) (*model.PurchaseSession, error) {
	var (
		s       model.PurchaseSession
		eventID sql.NullInt64
		step    string
	)
	err := row.Scan(&s.SessionID, &s.Username, &eventID, &step, &s.CreatedAt, &s.LastActivityAt, &s.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if eventID.Valid {
		id := eventID.Int64
		s.EventID = &id
	}
	s.Step = model.Step(step)
	s.CreatedAt = s.CreatedAt.UTC()
	s.LastActivityAt = s.LastActivityAt.UTC()
	return &s, nil
}

func (r *SessionRepo) loadSeats(ctx context.Context, sessionID string) ([]model.SessionSeat, error) {
	const q = `SELECT seat_row, seat_column, person_name, locked FROM session_seats WHERE session_id = ? ORDER BY position`
	rows, err := r.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seats := []model.SessionSeat{}
	for rows.Next() {
		var st model.SessionSeat
		if err := rows.Scan(&st.Row, &st.Column, &st.PersonName, &st.LockedWithBoxOffice); err != nil {
			return nil, err
		}
		seats = append(seats, st)
	}
	return seats, rows.Err()
}

// Create inserts a new session and its seats in one transaction.  When a
// session for the same username already exists ErrConflict is returned and
// nothing is written; the caller is expected to read the existing row.
// On success s.Version is set to 1.
func (r *SessionRepo) Create(ctx context.Context, s *model.PurchaseSession) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const q = `INSERT INTO purchase_sessions (session_id, username, event_id, step, created_at, last_activity_at, version) VALUES (?, ?, ?, ?, ?, ?, 1)`
	if _, err := tx.ExecContext(ctx, q, s.SessionID, s.Username, nullableID(s.EventID), string(s.Step), s.CreatedAt.UTC(), s.LastActivityAt.UTC()); err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return err
	}
	if err := insertSessionSeatsTx(ctx, tx, s.SessionID, s.Seats); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.Version = 1
	return nil
}

// Update writes s back if, and only if, the stored version still equals
// s.Version.  The seat selection is replaced wholesale.  ErrStaleWrite is
// returned when another writer got there first or the session was deleted
// in the meantime.  On success s.Version is incremented.
func (r *SessionRepo) Update(ctx context.Context, s *model.PurchaseSession) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const q = `UPDATE purchase_sessions SET event_id = ?, step = ?, last_activity_at = ?, version = version + 1 WHERE session_id = ? AND version = ?`
	res, err := tx.ExecContext(ctx, q, nullableID(s.EventID), string(s.Step), s.LastActivityAt.UTC(), s.SessionID, s.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleWrite
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_seats WHERE session_id = ?`, s.SessionID); err != nil {
		return err
	}
	if err := insertSessionSeatsTx(ctx, tx, s.SessionID, s.Seats); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.Version++
	return nil
}

func insertSessionSeatsTx(ctx context.Context, tx *sql.Tx, sessionID string, seats []model.SessionSeat) error {
	if len(seats) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO session_seats (session_id, position, seat_row, seat_column, person_name, locked) VALUES `)
	args := make([]any, 0, len(seats)*6)
	for i, st := range seats {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?)")
		args = append(args, sessionID, i, st.Row, st.Column, st.PersonName, st.LockedWithBoxOffice)
	}
	_, err := tx.ExecContext(ctx, sb.String(), args...)
	return err
}

// Delete removes the session with the given id.  Deleting a session that
// does not exist is not an error.
func (r *SessionRepo) Delete(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM purchase_sessions WHERE session_id = ?`, sessionID)
	return err
}

// DeleteIfVersion removes the session only when it has not changed since it
// was read.  It reports whether a row was removed.
func (r *SessionRepo) DeleteIfVersion(ctx context.Context, sessionID string, version int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM purchase_sessions WHERE session_id = ? AND version = ?`, sessionID, version)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteIdleBefore removes every session whose last activity is strictly
// older than cutoff and returns how many were removed.  The predicate is
// evaluated by the server at delete time, so a session touched after the
// caller computed cutoff survives.
func (r *SessionRepo) DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM purchase_sessions WHERE last_activity_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete idle sessions: %w", err)
	}
	return res.RowsAffected()
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
