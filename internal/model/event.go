package model

import "time"

// Event is the local read-only projection of an event owned by the box
// office.  Rows are upserted by the sync processor and soft-deleted by
// clearing Active, so sales issued for a removed event keep their reference.
type Event struct {
	ID           int64          `json:"id"`             // events.id (box office id)
	Title        string         `json:"title"`          // events.title
	Summary      string         `json:"summary"`        // events.summary
	Description  string         `json:"description"`    // events.description
	Date         *time.Time     `json:"date"`           // events.event_date (nullable)
	Venue        string         `json:"venue"`          // events.venue
	Image        string         `json:"image"`          // events.image
	SeatRows     int            `json:"seat_rows"`      // events.seat_rows
	SeatColumns  int            `json:"seat_columns"`   // events.seat_columns
	Price        float64        `json:"price"`          // events.price
	Category     *EventCategory `json:"category"`       // events.category_name / category_description
	Members      []Member       `json:"members"`        // event_members rows
	Active       bool           `json:"active"`         // events.active
	LastSyncedAt time.Time      `json:"last_synced_at"` // events.last_synced_at
}

// EventCategory describes the kind of event ("Concert", "Play", ...).
type EventCategory struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Member is a performer or speaker listed on an event.
type Member struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Identification string `json:"identification"`
}

// TotalSeats returns the size of the seating grid.
func (e *Event) TotalSeats() int {
	return e.SeatRows * e.SeatColumns
}
