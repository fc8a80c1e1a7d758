// Package queue carries the broker side of the service: consuming event
// change notifications and publishing confirmed sales.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/boxoffice"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/model"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/service"
)

// ErrUndecodable marks a change notification that can never be applied.
var ErrUndecodable = errors.New("undecodable change notification")

// ChangeNotification is a decoded event change.  Event is nil when the
// payload only named the event id and the full record must be fetched.
type ChangeNotification struct {
	Kind    string
	EventID int64
	Event   *boxoffice.Event
}

// DecodeChange reads a change notification.  The kind is taken from
// tipoCambio, tipo_cambio or tipo (UPDATE when absent).  The event is the
// evento or event object, or the root itself when it carries an id; failing
// that, eventoId or evento_id names an event to fetch.
func DecodeChange(body []byte) (ChangeNotification, error) {
	var n ChangeNotification
	if !gjson.ValidBytes(body) {
		return n, fmt.Errorf("%w: invalid JSON", ErrUndecodable)
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return n, fmt.Errorf("%w: not an object", ErrUndecodable)
	}

	n.Kind = "UPDATE"
	for _, k := range []string{"tipoCambio", "tipo_cambio", "tipo"} {
		if v := root.Get(k); v.Type == gjson.String && v.String() != "" {
			n.Kind = v.String()
			break
		}
	}

	node := gjson.Result{}
	for _, k := range []string{"evento", "event"} {
		if v := root.Get(k); v.IsObject() {
			node = v
			break
		}
	}
	if !node.Exists() && root.Get("id").Exists() {
		node = root
	}

	if node.Exists() && node.Get("id").Int() > 0 {
		var ev boxoffice.Event
		if err := json.Unmarshal([]byte(node.Raw), &ev); err != nil {
			return n, fmt.Errorf("%w: %v", ErrUndecodable, err)
		}
		n.Event = &ev
		n.EventID = ev.ID
		return n, nil
	}

	for _, src := range []gjson.Result{node, root} {
		for _, k := range []string{"eventoId", "evento_id"} {
			if id := src.Get(k).Int(); id > 0 {
				n.EventID = id
				return n, nil
			}
		}
	}
	return n, fmt.Errorf("%w: no event id", ErrUndecodable)
}

// EventSyncer is satisfied by *service.EventSyncService.
type EventSyncer interface {
	ApplyChange(ctx context.Context, kind string, ev *boxoffice.Event) error
	FetchEvent(ctx context.Context, id int64) (*boxoffice.Event, error)
}

// HandleChange decodes body and applies it.  A notification that only
// names an event is completed from the box office, except for DELETE which
// needs nothing but the id.
func HandleChange(ctx context.Context, sync EventSyncer, body []byte) error {
	n, err := DecodeChange(body)
	if err != nil {
		return err
	}
	kind, err := service.ParseChangeKind(n.Kind)
	if err != nil {
		return err
	}
	ev := n.Event
	if ev == nil {
		if kind == service.ChangeDelete {
			ev = &boxoffice.Event{ID: n.EventID}
		} else if ev, err = sync.FetchEvent(ctx, n.EventID); err != nil {
			return fmt.Errorf("fetch event %d: %w", n.EventID, err)
		}
	}
	return sync.ApplyChange(ctx, string(kind), ev)
}

// SaleConfirmedEvent is published when the box office confirms a sale.
type SaleConfirmedEvent struct {
	SaleID         int64    `json:"sale_id"`
	ExternalSaleID *int64   `json:"external_sale_id"`
	EventID        int64    `json:"event_id"`
	Username       string   `json:"username"`
	Price          float64  `json:"price"`
	Seats          []string `json:"seats"`
	SaleTimestamp  string   `json:"sale_timestamp"`
	ConfirmedAt    string   `json:"confirmed_at"`
}

// NewSaleConfirmedEvent builds the message for a confirmed sale.
func NewSaleConfirmedEvent(s *model.Sale, now time.Time) SaleConfirmedEvent {
	ev := SaleConfirmedEvent{
		SaleID:         s.ID,
		ExternalSaleID: s.ExternalSaleID,
		EventID:        s.EventID,
		Username:       s.Username,
		Price:          s.Price,
		Seats:          make([]string, 0, len(s.Seats)),
		SaleTimestamp:  s.SaleTimestamp.UTC().Format(time.RFC3339),
		ConfirmedAt:    now.UTC().Format(time.RFC3339),
	}
	for _, st := range s.Seats {
		ev.Seats = append(ev.Seats, st.Position().String())
	}
	return ev
}
