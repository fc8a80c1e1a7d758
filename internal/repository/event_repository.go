package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/model"
)

// EventRepo stores the local projection of box office events.  The box
// office is the owner of this data; the rows here are overwritten on every
// sync and only soft-deleted (active = 0) so that sales keep a readable
// reference to the event they were made for.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the given database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

const eventColumns = `id, title, summary, description, event_date, venue, image, seat_rows, seat_columns, price, category_name, category_description, active, last_synced_at`

// Upsert inserts the event or overwrites every field of the existing row,
// marking it active.  The member list is replaced wholesale.  Upserting the
// same snapshot twice leaves the table in the same state.
func (r *EventRepo) Upsert(ctx context.Context, e *model.Event) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var catName, catDesc sql.NullString
	if e.Category != nil {
		catName = sql.NullString{String: e.Category.Name, Valid: true}
		catDesc = sql.NullString{String: e.Category.Description, Valid: true}
	}
	var date any
	if e.Date != nil {
		date = e.Date.UTC()
	}
	const q = `INSERT INTO events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
ON DUPLICATE KEY UPDATE title = VALUES(title), summary = VALUES(summary), description = VALUES(description),
event_date = VALUES(event_date), venue = VALUES(venue), image = VALUES(image), seat_rows = VALUES(seat_rows),
seat_columns = VALUES(seat_columns), price = VALUES(price), category_name = VALUES(category_name),
category_description = VALUES(category_description), active = 1, last_synced_at = VALUES(last_synced_at)`
	if _, err := tx.ExecContext(ctx, q,
		e.ID, e.Title, e.Summary, e.Description, date, e.Venue, e.Image, e.SeatRows, e.SeatColumns,
		e.Price, catName, catDesc, e.LastSyncedAt.UTC(),
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM event_members WHERE event_id = ?`, e.ID); err != nil {
		return err
	}
	if len(e.Members) > 0 {
		var sb strings.Builder
		sb.WriteString(`INSERT INTO event_members (event_id, position, first_name, last_name, identification) VALUES `)
		args := make([]any, 0, len(e.Members)*5)
		for i, m := range e.Members {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("(?, ?, ?, ?, ?)")
			args = append(args, e.ID, i, m.FirstName, m.LastName, m.Identification)
		}
		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.Active = true
	return nil
}

// Deactivate soft-deletes the event.  ErrNotFound is returned when no row
// with that id exists.  Deactivating an already inactive event succeeds.
func (r *EventRepo) Deactivate(ctx context.Context, id int64, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE events SET active = 0, last_synced_at = ? WHERE id = ?`, now.UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// RowsAffected counts changed rows only, so tell "missing" apart
		// from "already inactive with the same timestamp".
		var exists int
		err := r.db.QueryRowContext(ctx, `SELECT 1 FROM events WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// GetByID returns the event (active or not) with its members.
func (r *EventRepo) GetByID(ctx context.Context, id int64) (*model.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events WHERE id = ?`
	e, err := scanEvent(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, err
	}
	if err := r.attachMembers(ctx, []*model.Event{e}); err != nil {
		return nil, err
	}
	return e, nil
}

// ListActive returns every active event ordered by date then id.
func (r *EventRepo) ListActive(ctx context.Context) ([]*model.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events WHERE active = 1 ORDER BY event_date IS NULL, event_date, id`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := []*model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachMembers(ctx, events); err != nil {
		return nil, err
	}
	return events, nil
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var (
		e       model.Event
		date    sql.NullTime
		catName sql.NullString
		catDesc sql.NullString
	)
	err := row.Scan(&e.ID, &e.Title, &e.Summary, &e.Description, &date, &e.Venue, &e.Image,
		&e.SeatRows, &e.SeatColumns, &e.Price, &catName, &catDesc, &e.Active, &e.LastSyncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if date.Valid {
		t := date.Time.UTC()
		e.Date = &t
	}
	if catName.Valid {
		e.Category = &model.EventCategory{Name: catName.String, Description: catDesc.String}
	}
	e.LastSyncedAt = e.LastSyncedAt.UTC()
	e.Members = []model.Member{}
	return &e, nil
}

func (r *EventRepo) attachMembers(ctx context.Context, events []*model.Event) error {
	if len(events) == 0 {
		return nil
	}
	byID := make(map[int64]*model.Event, len(events))
	args := make([]any, 0, len(events))
	for _, e := range events {
		byID[e.ID] = e
		args = append(args, e.ID)
	}
	q := `SELECT event_id, first_name, last_name, identification FROM event_members WHERE event_id IN (` + placeholders(len(args)) + `) ORDER BY event_id, position`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			eventID int64
			m       model.Member
		)
		if err := rows.Scan(&eventID, &m.FirstName, &m.LastName, &m.Identification); err != nil {
			return err
		}
		if e, ok := byID[eventID]; ok {
			e.Members = append(e.Members, m)
		}
	}
	return rows.Err()
}
