package model

import "time"

// SessionTTL is the inactivity window after which a purchase session is
// considered expired.
const SessionTTL = 30 * time.Minute

// Step is the user's position in the linear purchase workflow.  Transitions
// are advisory: the caller picks the step and nothing rejects out-of-order
// values.
type Step string

const (
	StepListing       Step = "LISTING"
	StepEventDetail   Step = "EVENT_DETAIL"
	StepSeatSelection Step = "SEAT_SELECTION"
	StepDataEntry     Step = "DATA_ENTRY"
	StepConfirmation  Step = "CONFIRMATION"
)

// Valid reports whether s is one of the known workflow steps.
func (s Step) Valid() bool {
	switch s {
	case StepListing, StepEventDetail, StepSeatSelection, StepDataEntry, StepConfirmation:
		return true
	}
	return false
}

// PurchaseSession holds the mutable workflow state of one user.  There is at
// most one row per username.
//
// Fields:
//
//	SessionID      – opaque identifier generated at creation, never changes.
//	Username       – owner and unique lookup key.
//	EventID        – event being purchased; nil until the user picks one.
//	Step           – current workflow step.
//	Seats          – ordered seat selection, unique by (row, column).
//	CreatedAt      – creation timestamp (UTC).
//	LastActivityAt – touched by every mutating operation (UTC).
//	Version        – compare-and-set counter maintained by the repository.
type PurchaseSession struct {
	SessionID      string        `json:"session_id"`       // purchase_sessions.session_id
	Username       string        `json:"username"`         // purchase_sessions.username
	EventID        *int64        `json:"event_id"`         // purchase_sessions.event_id (nullable)
	Step           Step          `json:"step"`             // purchase_sessions.step
	Seats          []SessionSeat `json:"selected_seats"`   // session_seats rows
	CreatedAt      time.Time     `json:"created_at"`       // purchase_sessions.created_at
	LastActivityAt time.Time     `json:"last_activity_at"` // purchase_sessions.last_activity_at
	Version        int64         `json:"-"`                // purchase_sessions.version
}

// SessionSeat is one seat chosen during a session.
type SessionSeat struct {
	Row                 int    `json:"row"`
	Column              int    `json:"column"`
	PersonName          string `json:"person_name"`
	LockedWithBoxOffice bool   `json:"locked_with_box_office"`
}

// Position returns the seat coordinates.
func (s SessionSeat) Position() SeatPosition {
	return SeatPosition{Row: s.Row, Column: s.Column}
}

// IsExpired reports whether the session has been idle for longer than ttl
// at the given instant.
func (s *PurchaseSession) IsExpired(now time.Time, ttl time.Duration) bool {
	return s.LastActivityAt.Add(ttl).Before(now)
}

// Touch records activity at now.
func (s *PurchaseSession) Touch(now time.Time) {
	s.LastActivityAt = now.UTC()
}
