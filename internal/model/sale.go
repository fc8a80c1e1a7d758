package model

import "time"

// SyncState tracks whether a sale has been confirmed by the box office.
type SyncState string

const (
	// SyncPending means the box office has not confirmed the sale yet; the
	// retry sweep will resubmit it.
	SyncPending SyncState = "PENDING"
	// SyncConfirmed is terminal.
	SyncConfirmed SyncState = "CONFIRMED"
)

// Sale is the append-only local record of one purchase attempt.  Rows are
// never deleted; they form the audit trail of what the box office answered.
//
// Fields:
//
//	ID             – local identity (auto increment).
//	ExternalSaleID – box office sale id; nil until the box office assigns one.
//	EventID        – event the seats belong to.
//	SaleTimestamp  – when the sale was submitted, or the box office timestamp once known.
//	Price          – price sent to (or confirmed by) the box office.
//	Succeeded      – true only when the box office confirmed the sale.
//	Description    – free text returned by the box office.
//	SyncState      – PENDING or CONFIRMED.
//	Seats          – last known per-seat outcome reported by the box office.
//	AttemptCount   – number of submissions made by the retry sweep.
//	LastAttemptAt  – time of the last retry submission; nil before the first retry.
type Sale struct {
	ID             int64      `json:"id"`
	ExternalSaleID *int64     `json:"external_sale_id"`
	EventID        int64      `json:"event_id"`
	Username       string     `json:"username"`
	SaleTimestamp  time.Time  `json:"sale_timestamp"`
	Price          float64    `json:"price"`
	Succeeded      bool       `json:"succeeded"`
	Description    string     `json:"description"`
	SyncState      SyncState  `json:"sync_state"`
	Seats          []SaleSeat `json:"seats"`
	AttemptCount   int        `json:"attempt_count"`
	LastAttemptAt  *time.Time `json:"last_attempt_at"`
	Version        int64      `json:"-"`
}

// SaleSeat is one seat of a sale.  Status is the box office outcome
// ("Sold", "Free", "Occupied", "Locked") or "Pending" before the first
// response that mentions the seat.
type SaleSeat struct {
	Row        int    `json:"row"`
	Column     int    `json:"column"`
	PersonName string `json:"person_name"`
	Status     string `json:"status"`
}

// Position returns the seat coordinates.
func (s SaleSeat) Position() SeatPosition {
	return SeatPosition{Row: s.Row, Column: s.Column}
}
