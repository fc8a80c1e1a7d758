package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/model"
)

// SaleRepo persists the local sale records.  Sales are append-only: rows
// are inserted once and afterwards only updated through a versioned
// compare-and-set, never deleted.  The per-seat outcome lives in
// sale_seats and is replaced whenever the box office reports new statuses.
type SaleRepo struct {
	db *sql.DB
}

// NewSaleRepo returns a new SaleRepo bound to the given database.
func NewSaleRepo(db *sql.DB) *SaleRepo { return &SaleRepo{db: db} }

const saleColumns = `id, external_sale_id, event_id, username, sale_timestamp, price, succeeded, description, sync_state, attempt_count, last_attempt_at, version`

// Create inserts a sale and its seats in one transaction and populates the
// generated ID.  The stored version starts at 1.
func (r *SaleRepo) Create(ctx context.Context, s *model.Sale) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const q = `INSERT INTO sales (external_sale_id, event_id, username, sale_timestamp, price, succeeded, description, sync_state, attempt_count, last_attempt_at, version) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`
	res, err := tx.ExecContext(ctx, q,
		nullableID(s.ExternalSaleID), s.EventID, s.Username, s.SaleTimestamp.UTC(), s.Price,
		s.Succeeded, s.Description, string(s.SyncState), s.AttemptCount, nullableTime(s.LastAttemptAt),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if err := insertSaleSeatsTx(ctx, tx, id, s.Seats); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.ID = id
	s.Version = 1
	return nil
}

// Update writes every mutable field of s back if the stored version still
// equals s.Version, replacing the seat list.  ErrStaleWrite is returned
// when the row changed in the meantime.
func (r *SaleRepo) Update(ctx context.Context, s *model.Sale) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const q = `UPDATE sales SET external_sale_id = ?, sale_timestamp = ?, price = ?, succeeded = ?, description = ?, sync_state = ?, attempt_count = ?, last_attempt_at = ?, version = version + 1 WHERE id = ? AND version = ?`
	res, err := tx.ExecContext(ctx, q,
		nullableID(s.ExternalSaleID), s.SaleTimestamp.UTC(), s.Price, s.Succeeded, s.Description,
		string(s.SyncState), s.AttemptCount, nullableTime(s.LastAttemptAt), s.ID, s.Version,
	)
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
	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_seats WHERE sale_id = ?`, s.ID); err != nil {
		return err
	}
	if err := insertSaleSeatsTx(ctx, tx, s.ID, s.Seats); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.Version++
	return nil
}

// Claim marks a pending sale as being retried: the attempt counter is
// bumped and last_attempt_at set to now, guarded by the version the caller
// read.  A sale attempted less than lease ago is still held by the sweep
// that claimed it, even after a fresh read.  Losers get ErrStaleWrite and
// must skip the sale.  On success s reflects the stored row.
func (r *SaleRepo) Claim(ctx context.Context, s *model.Sale, now time.Time, lease time.Duration) error {
	const q = `UPDATE sales SET attempt_count = attempt_count + 1, last_attempt_at = ?, version = version + 1
		WHERE id = ? AND version = ? AND sync_state = ? AND (last_attempt_at IS NULL OR last_attempt_at <= ?)`
	now = now.UTC()
	res, err := r.db.ExecContext(ctx, q, now, s.ID, s.Version, string(model.SyncPending), now.Add(-lease))
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
	t := now
	s.AttemptCount++
	s.LastAttemptAt = &t
	s.Version++
	return nil
}

func insertSaleSeatsTx(ctx context.Context, tx *sql.Tx, saleID int64, seats []model.SaleSeat) error {
	if len(seats) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO sale_seats (sale_id, position, seat_row, seat_column, person_name, status) VALUES `)
	args := make([]any, 0, len(seats)*6)
	for i, st := range seats {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?)")
		args = append(args, saleID, i, st.Row, st.Column, st.PersonName, st.Status)
	}
	_, err := tx.ExecContext(ctx, sb.String(), args...)
	return err
}

// GetByID returns a single sale with its seats or ErrNotFound.
func (r *SaleRepo) GetByID(ctx context.Context, id int64) (*model.Sale, error) {
	q := `SELECT ` + saleColumns + ` FROM sales WHERE id = ?`
	s, err := scanSale(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, err
	}
	if err := r.attachSeats(ctx, []*model.Sale{s}); err != nil {
		return nil, err
	}
	return s, nil
}

// ListByUsername returns every sale of one user, newest first.
func (r *SaleRepo) ListByUsername(ctx context.Context, username string) ([]*model.Sale, error) {
	q := `SELECT ` + saleColumns + ` FROM sales WHERE username = ? ORDER BY sale_timestamp DESC, id DESC`
	return r.list(ctx, q, username)
}

// ListBySyncState returns every sale in the given state, oldest first.
func (r *SaleRepo) ListBySyncState(ctx context.Context, state model.SyncState) ([]*model.Sale, error) {
	q := `SELECT ` + saleColumns + ` FROM sales WHERE sync_state = ? ORDER BY id`
	return r.list(ctx, q, string(state))
}

func (r *SaleRepo) list(ctx context.Context, q string, args ...any) ([]*model.Sale, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sales := []*model.Sale{}
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachSeats(ctx, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func scanSale(row rowScanner) (*model.Sale, error) {
	var (
		s           model.Sale
		externalID  sql.NullInt64
		syncState   string
		lastAttempt sql.NullTime
	)
	err := row.Scan(&s.ID, &externalID, &s.EventID, &s.Username, &s.SaleTimestamp, &s.Price,
		&s.Succeeded, &s.Description, &syncState, &s.AttemptCount, &lastAttempt, &s.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if externalID.Valid {
		id := externalID.Int64
		s.ExternalSaleID = &id
	}
	if lastAttempt.Valid {
		t := lastAttempt.Time.UTC()
		s.LastAttemptAt = &t
	}
	s.SyncState = model.SyncState(syncState)
	s.SaleTimestamp = s.SaleTimestamp.UTC()
	s.Seats = []model.SaleSeat{}
	return &s, nil
}

// attachSeats loads the seats of all given sales with a single query.
func (r *SaleRepo) attachSeats(ctx context.Context, sales []*model.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	byID := make(map[int64]*model.Sale, len(sales))
	args := make([]any, 0, len(sales))
	for _, s := range sales {
		byID[s.ID] = s
		args = append(args, s.ID)
	}
	q := `SELECT sale_id, seat_row, seat_column, person_name, status FROM sale_seats WHERE sale_id IN (` + placeholders(len(args)) + `) ORDER BY sale_id, position`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			saleID int64
			st     model.SaleSeat
		)
		if err := rows.Scan(&saleID, &st.Row, &st.Column, &st.PersonName, &st.Status); err != nil {
			return err
		}
		if s, ok := byID[saleID]; ok {
			s.Seats = append(s.Seats, st)
		}
	}
	return rows.Err()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
