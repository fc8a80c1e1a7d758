package model

import "fmt"

// Seat status values.  The box office reports the first four; the last two
// are produced locally when no authoritative status exists yet.
const (
	SeatSold     = "Sold"
	SeatFree     = "Free"
	SeatOccupied = "Occupied"
	SeatLocked   = "Locked"
	SeatPending  = "Pending"
	SeatUnknown  = "Unknown"
)

// SeatPosition identifies a seat inside an event's seating grid.
type SeatPosition struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

func (p SeatPosition) String() string {
	return fmt.Sprintf("%d:%d", p.Row, p.Column)
}

// SeatStatusView maps seat positions to their status for one event.  It is
// derived from the shared cache on every query and never persisted.
type SeatStatusView map[SeatPosition]string
