package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/model"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var sessionCols = []string{"session_id", "username", "event_id", "step", "created_at", "last_activity_at", "version"}

func TestSessionRepo_GetByUsername(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepo(db)
	now := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM purchase_sessions WHERE username = ?")).
		WithArgs("dino").
		WillReturnRows(sqlmock.NewRows(sessionCols).AddRow("s-1", "dino", int64(7), "SEAT_SELECTION", now, now, int64(3)))
	mock.ExpectQuery(regexp.QuoteMeta("FROM session_seats WHERE session_id = ?")).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"seat_row", "seat_column", "person_name", "locked"}).
			AddRow(1, 1, "Ana", true).
			AddRow(1, 2, "", false))

	s, err := repo.GetByUsername(context.Background(), "dino")
	require.NoError(t, err)
	require.NotNil(t, s.EventID)
	assert.Equal(t, int64(7), *s.EventID)
	assert.Equal(t, model.StepSeatSelection, s.Step)
	assert.Equal(t, int64(3), s.Version)
	require.Len(t, s.Seats, 2)
	assert.Equal(t, model.SessionSeat{Row: 1, Column: 1, PersonName: "Ana", LockedWithBoxOffice: true}, s.Seats[0])
	assert.False(t, s.Seats[1].LockedWithBoxOffice)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_GetByUsername_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM purchase_sessions WHERE username = ?")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(sessionCols))

	_, err := repo.GetByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_Create_DuplicateUsername(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepo(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO purchase_sessions")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'dino' for key 'username'"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &model.PurchaseSession{
		SessionID: "s-2", Username: "dino", Step: model.StepListing, CreatedAt: now, LastActivityAt: now,
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_Create_WithSeats(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepo(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO purchase_sessions")).
		WithArgs("s-1", "dino", nil, "LISTING", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO session_seats")).
		WithArgs("s-1", 0, 2, 3, "Ana", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s := &model.PurchaseSession{
		SessionID: "s-1", Username: "dino", Step: model.StepListing, CreatedAt: now, LastActivityAt: now,
		Seats: []model.SessionSeat{{Row: 2, Column: 3, PersonName: "Ana"}},
	}
	require.NoError(t, repo.Create(context.Background(), s))
	assert.Equal(t, int64(1), s.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_Update_Stale(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepo(db)
	eventID := int64(9)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE purchase_sessions SET")).
		WithArgs(eventID, "EVENT_DETAIL", sqlmock.AnyArg(), "s-1", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	s := &model.PurchaseSession{SessionID: "s-1", Username: "dino", EventID: &eventID, Step: model.StepEventDetail, Version: 4}
	err := repo.Update(context.Background(), s)
	assert.ErrorIs(t, err, ErrStaleWrite)
	assert.Equal(t, int64(4), s.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_Update_ReplacesSeats(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE purchase_sessions SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM session_seats WHERE session_id = ?")).
		WithArgs("s-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO session_seats")).
		WithArgs("s-1", 0, 1, 1, "", true, "s-1", 1, 1, 2, "", true).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	s := &model.PurchaseSession{
		SessionID: "s-1", Step: model.StepDataEntry, Version: 2,
		Seats: []model.SessionSeat{{Row: 1, Column: 1, LockedWithBoxOffice: true}, {Row: 1, Column: 2, LockedWithBoxOffice: true}},
	}
	require.NoError(t, repo.Update(context.Background(), s))
	assert.Equal(t, int64(3), s.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_DeleteIdleBefore(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepo(db)
	cutoff := time.Date(2025, 11, 3, 11, 30, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM purchase_sessions WHERE last_activity_at < ?")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeleteIdleBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_DeleteIfVersion(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM purchase_sessions WHERE session_id = ? AND version = ?")).
		WithArgs("s-1", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err := repo.DeleteIfVersion(context.Background(), "s-1", 5)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
