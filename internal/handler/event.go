package handler

import (
	"context"
	"io"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"

	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/boxoffice"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/model"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/queue"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/service"
)

// EventAPI is the event projection; *service.EventSyncService satisfies it.
type EventAPI interface {
	queue.EventSyncer
	ListActive(ctx context.Context) ([]*model.Event, error)
	GetEvent(ctx context.Context, id int64) (*model.Event, error)
	SyncEvent(ctx context.Context, id int64) (*model.Event, error)
	FullResync(ctx context.Context) (service.ResyncReport, error)
	Catalog(ctx context.Context) ([]boxoffice.EventSummary, error)
}

// SeatAPI reads seat availability; *seatcache.Resolver satisfies it.
type SeatAPI interface {
	SeatStatuses(ctx context.Context, eventID int64) (model.SeatStatusView, error)
	SeatStatus(ctx context.Context, eventID int64, row, column int) (string, error)
}

// EventHandler serves events, seat availability and synchronisation.
type EventHandler struct {
	Events EventAPI
	Seats  SeatAPI
}

type seatStatus struct {
	Row    int    `json:"row"`
	Column int    `json:"column"`
	Status string `json:"status"`
}

// List handles GET /v1/events.
func (h *EventHandler) List(c echo.Context) error {
	events, err := h.Events.ListActive(c.Request().Context())
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": events})
}

// Get handles GET /v1/events/:id.
func (h *EventHandler) Get(c echo.Context) error {
	id, err := positiveParam(c, "id")
	if err != nil {
		return respond(c, err)
	}
	ev, err := h.Events.GetEvent(c.Request().Context(), id)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, ev)
}

// SeatMap handles GET /v1/events/:id/seats.  Seats are listed row by row.
func (h *EventHandler) SeatMap(c echo.Context) error {
	id, err := positiveParam(c, "id")
	if err != nil {
		return respond(c, err)
	}
	view, err := h.Seats.SeatStatuses(c.Request().Context(), id)
	if err != nil {
		return respond(c, err)
	}
	out := make([]seatStatus, 0, len(view))
	for pos, st := range view {
		out = append(out, seatStatus{Row: pos.Row, Column: pos.Column, Status: st})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Column < out[j].Column
	})
	return c.JSON(http.StatusOK, echo.Map{"event_id": id, "seats": out})
}

// Seat handles GET /v1/events/:id/seats/:row/:column.
func (h *EventHandler) Seat(c echo.Context) error {
	id, err := positiveParam(c, "id")
	if err != nil {
		return respond(c, err)
	}
	row, err := positiveParam(c, "row")
	if err != nil {
		return respond(c, err)
	}
	col, err := positiveParam(c, "column")
	if err != nil {
		return respond(c, err)
	}
	st, err := h.Seats.SeatStatus(c.Request().Context(), id, int(row), int(col))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, seatStatus{Row: int(row), Column: int(col), Status: st})
}

// Resync handles POST /v1/events/sync.  Per-event failures are reported in
// the body next to the counts.
func (h *EventHandler) Resync(c echo.Context) error {
	report, err := h.Events.FullResync(c.Request().Context())
	if err != nil && report.Total == 0 {
		return respond(c, err)
	}
	body := echo.Map{"report": report}
	if err != nil {
		body["errors"] = err.Error()
	}
	return c.JSON(http.StatusOK, body)
}

// SyncOne handles POST /v1/events/:id/sync.
func (h *EventHandler) SyncOne(c echo.Context) error {
	id, err := positiveParam(c, "id")
	if err != nil {
		return respond(c, err)
	}
	ev, err := h.Events.SyncEvent(c.Request().Context(), id)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, ev)
}

// Catalog handles GET /v1/catalog.
func (h *EventHandler) Catalog(c echo.Context) error {
	out, err := h.Events.Catalog(c.Request().Context())
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// Webhook handles POST /v1/sync/webhook.  It accepts the same payload as
// the change-notification queue.
func (h *EventHandler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return respond(c, echo.NewHTTPError(http.StatusBadRequest, "unreadable body"))
	}
	if err := queue.HandleChange(c.Request().Context(), h.Events, body); err != nil {
		return respond(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
