// Package repository holds the MySQL persistence for purchase sessions,
// sales and the local event projection.  The sentinel values below let the
// service layer tell the common failure scenarios apart without inspecting
// driver errors.  ErrStaleWrite is the signal behind every compare-and-set
// update: the row changed (or vanished) between the caller's read and its
// write, and the caller should reload before trying again.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert collides with a unique key, such
// as a second purchase session created concurrently for the same user.
var ErrConflict = errors.New("conflict")

// ErrStaleWrite is returned when a versioned update matched no row.
var ErrStaleWrite = errors.New("stale write")

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}
