package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/boxoffice"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/model"
)

// SessionAPI is the purchase workflow; *service.SessionService satisfies it.
type SessionAPI interface {
	GetOrCreate(ctx context.Context, username string) (*model.PurchaseSession, error)
	Advance(ctx context.Context, username string, step model.Step, eventID *int64) (*model.PurchaseSession, error)
	SelectSeats(ctx context.Context, username string, seats []model.SessionSeat) (*model.PurchaseSession, error)
	LockSeats(ctx context.Context, username string) (*boxoffice.LockResult, error)
	Discard(ctx context.Context, username string) error
}

// SessionHandler serves /v1/session.
type SessionHandler struct {
	Sessions SessionAPI
}

type advanceRequest struct {
	Step    string `json:"step" validate:"required,session_step"`
	EventID *int64 `json:"event_id" validate:"omitempty,gt=0"`
}

type seatRequest struct {
	Row        int    `json:"row" validate:"required,gte=1"`
	Column     int    `json:"column" validate:"required,gte=1"`
	PersonName string `json:"person_name" validate:"max=120"`
}

type selectSeatsRequest struct {
	Seats []seatRequest `json:"seats" validate:"required,min=1,dive"`
}

type lockResponse struct {
	Locked      bool                    `json:"locked"`
	Description string                  `json:"description"`
	Seats       []boxoffice.SeatOutcome `json:"seats"`
}

// Get handles GET /v1/session and returns the caller's session, creating
// it when there is none.
func (h *SessionHandler) Get(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return respond(c, err)
	}
	sess, err := h.Sessions.GetOrCreate(c.Request().Context(), user)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// Advance handles POST /v1/session/step.
func (h *SessionHandler) Advance(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return respond(c, err)
	}
	var body advanceRequest
	if err := bindValid(c, &body); err != nil {
		return respond(c, err)
	}
	sess, err := h.Sessions.Advance(c.Request().Context(), user, model.Step(body.Step), body.EventID)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// SelectSeats handles POST /v1/session/seats.  The body replaces the
// current selection.
func (h *SessionHandler) SelectSeats(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return respond(c, err)
	}
	var body selectSeatsRequest
	if err := bindValid(c, &body); err != nil {
		return respond(c, err)
	}
	seats := make([]model.SessionSeat, 0, len(body.Seats))
	for _, s := range body.Seats {
		seats = append(seats, model.SessionSeat{Row: s.Row, Column: s.Column, PersonName: s.PersonName})
	}
	sess, err := h.Sessions.SelectSeats(c.Request().Context(), user, seats)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// Lock handles POST /v1/session/lock.  A lock the box office refused is
// still a 200; the body says which seats failed.
func (h *SessionHandler) Lock(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return respond(c, err)
	}
	res, err := h.Sessions.LockSeats(c.Request().Context(), user)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, lockResponse{Locked: res.Result, Description: res.Description, Seats: res.Seats})
}

// Discard handles DELETE /v1/session.
func (h *SessionHandler) Discard(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return respond(c, err)
	}
	if err := h.Sessions.Discard(c.Request().Context(), user); err != nil {
		return respond(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
