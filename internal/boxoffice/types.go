package boxoffice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// The box office speaks JSON with its own field names.  The types below
// mirror its payloads one to one; optional values are pointers and a nil
// pointer means the box office did not send the field.

// Event is the full event record returned by /eventos and /evento/{id}.
type Event struct {
	ID          int64      `json:"id"`
	Title       string     `json:"titulo"`
	Summary     string     `json:"resumen"`
	Description string     `json:"descripcion"`
	Date        *Timestamp `json:"fecha,omitempty"`
	Venue       string     `json:"direccion"`
	Image       string     `json:"imagen"`
	SeatRows    int        `json:"filaAsientos"`
	SeatColumns int        `json:"columnaAsientos"`
	Price       *float64   `json:"precioEntrada,omitempty"`
	Category    *Category  `json:"eventoTipo,omitempty"`
	Members     []Member   `json:"integrantes"`
}

// EventSummary is one entry of /eventos-resumidos.
type EventSummary struct {
	ID          int64      `json:"id"`
	Title       string     `json:"titulo"`
	Summary     string     `json:"resumen"`
	Description string     `json:"descripcion"`
	Date        *Timestamp `json:"fecha,omitempty"`
	Price       *float64   `json:"precioEntrada,omitempty"`
	Category    *Category  `json:"eventoTipo,omitempty"`
}

// Category is the event type.
type Category struct {
	Name        string `json:"nombre"`
	Description string `json:"descripcion"`
}

// Member is a performer listed on an event.
type Member struct {
	FirstName      string `json:"nombre"`
	LastName       string `json:"apellido"`
	Identification string `json:"identificacion"`
}

// SeatRef addresses one seat of an event.
type SeatRef struct {
	Row    int `json:"fila"`
	Column int `json:"columna"`
}

// LockRequest asks the box office to hold seats.
type LockRequest struct {
	EventID int64     `json:"eventoId"`
	Seats   []SeatRef `json:"asientos"`
}

// LockResult is the box office answer to a lock request.  Result is true
// only when every seat was locked; Seats carries the per-seat outcome.
type LockResult struct {
	Result      bool          `json:"resultado"`
	Description string        `json:"descripcion"`
	EventID     *int64        `json:"eventoId,omitempty"`
	Seats       []SeatOutcome `json:"asientos"`
}

// SeatOutcome is the status the box office reports for one seat.
type SeatOutcome struct {
	Row    int    `json:"fila"`
	Column int    `json:"columna"`
	Status string `json:"estado"`
}

// SaleRequest submits a sale of previously locked seats.
type SaleRequest struct {
	EventID   int64         `json:"eventoId"`
	Timestamp time.Time     `json:"fecha"`
	Price     float64       `json:"precioVenta"`
	Seats     []SaleSeatRef `json:"asientos"`
}

// SaleSeatRef is one seat of a sale request with the attendee name.
type SaleSeatRef struct {
	Row    int    `json:"fila"`
	Column int    `json:"columna"`
	Person string `json:"persona"`
}

// SaleResponse is the answer to /realizar-venta and the record returned by
// /listar-venta/{id}.  SaleID stays nil until the box office assigns one.
type SaleResponse struct {
	EventID       *int64            `json:"eventoId,omitempty"`
	SaleID        *int64            `json:"ventaId,omitempty"`
	SaleTimestamp *Timestamp        `json:"fechaVenta,omitempty"`
	Result        bool              `json:"resultado"`
	Description   string            `json:"descripcion"`
	Price         *float64          `json:"precioVenta,omitempty"`
	Seats         []SaleSeatOutcome `json:"asientos"`
}

// SaleSeatOutcome is the per-seat result of a sale.
type SaleSeatOutcome struct {
	Row    int    `json:"fila"`
	Column int    `json:"columna"`
	Person string `json:"persona"`
	Status string `json:"estado"`
}

// SaleSummary is one entry of /listar-ventas.
type SaleSummary struct {
	EventID       *int64     `json:"eventoId,omitempty"`
	SaleID        *int64     `json:"ventaId,omitempty"`
	SaleTimestamp *Timestamp `json:"fechaVenta,omitempty"`
	Result        bool       `json:"resultado"`
	Description   string     `json:"descripcion"`
	Price         *float64   `json:"precioVenta,omitempty"`
	SeatCount     int        `json:"cantidadAsientos"`
}

// Timestamp accepts the two date encodings the box office uses: RFC 3339
// with an offset, and a local date-time without one (read as UTC).
type Timestamp struct {
	time.Time
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

// ParseTime parses a box office date string.  Values without an offset are
// taken as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if v, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return v.UTC(), nil
	}
	for _, layout := range localLayouts {
		if v, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return v, nil
		}
	}
	return time.Time{}, fmt.Errorf("boxoffice: unrecognised time %q", s)
}

// TimePtr returns the wrapped time or nil.
func (t *Timestamp) TimePtr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}
