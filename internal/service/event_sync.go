package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/boxoffice"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/model"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/repository"
)

// ChangeKind is the type of an event change notification.
type ChangeKind string

const (
	ChangeNew    ChangeKind = "NEW"
	ChangeUpdate ChangeKind = "UPDATE"
	ChangeDelete ChangeKind = "DELETE"
)

// ParseChangeKind accepts NEW, UPDATE and DELETE in any case, ignoring
// surrounding space.
func ParseChangeKind(s string) (ChangeKind, error) {
	switch k := ChangeKind(strings.ToUpper(strings.TrimSpace(s))); k {
	case ChangeNew, ChangeUpdate, ChangeDelete:
		return k, nil
	}
	return "", validationf("unknown change kind %q", s)
}

// EventSyncService keeps the local event projection in line with the box
// office.  Every application is a full overwrite keyed by event id, so
// duplicate or reordered notifications for the same event converge.
type EventSyncService struct {
	events    EventStore
	boxOffice BoxOffice
	now       func() time.Time
}

// NewEventSyncService returns an EventSyncService.
func NewEventSyncService(events EventStore, boxOffice BoxOffice) *EventSyncService {
	return &EventSyncService{
		events:    events,
		boxOffice: boxOffice,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ApplyChange applies one change notification.  NEW and UPDATE upsert the
// event and replace its member list; DELETE deactivates it.  Deleting an
// event that was never synced is a no-op.
func (s *EventSyncService) ApplyChange(ctx context.Context, kind string, ev *boxoffice.Event) error {
	k, err := ParseChangeKind(kind)
	if err != nil {
		return err
	}
	if ev == nil || ev.ID <= 0 {
		return validationf("change notification without a valid event id")
	}
	if k == ChangeDelete {
		err := s.events.Deactivate(ctx, ev.ID, s.now())
		if errors.Is(err, repository.ErrNotFound) {
			log.Info().Int64("event_id", ev.ID).Msg("eventsync: delete for unknown event ignored")
			return nil
		}
		if err != nil {
			return fmt.Errorf("deactivate event %d: %w", ev.ID, err)
		}
		log.Info().Int64("event_id", ev.ID).Msg("eventsync: event deactivated")
		return nil
	}
	if _, err := s.upsert(ctx, ev); err != nil {
		return err
	}
	log.Info().Int64("event_id", ev.ID).Str("kind", string(k)).Msg("eventsync: event applied")
	return nil
}

// ResyncReport summarises a full resync.
type ResyncReport struct {
	Total   int `json:"total"`
	Applied int `json:"applied"`
	Failed  int `json:"failed"`
}

// FullResync pulls every event from the box office and upserts each one.
// A failing event does not stop the others; the failures are returned
// joined together alongside the report.  Failing to fetch the list itself
// aborts with an ExternalServiceError.
func (s *EventSyncService) FullResync(ctx context.Context) (ResyncReport, error) {
	var report ResyncReport
	list, err := s.boxOffice.ListEvents(ctx)
	if err != nil {
		return report, externalError("listEventsFull", err)
	}
	report.Total = len(list)

	var errs []error
	for i := range list {
		ev := &list[i]
		if ev.ID <= 0 {
			report.Failed++
			errs = append(errs, validationf("event at position %d has no id", i))
			continue
		}
		if _, err := s.upsert(ctx, ev); err != nil {
			log.Error().Err(err).Int64("event_id", ev.ID).Msg("eventsync: resync of event failed")
			report.Failed++
			errs = append(errs, err)
			continue
		}
		report.Applied++
	}
	log.Info().Int("total", report.Total).Int("applied", report.Applied).Int("failed", report.Failed).Msg("eventsync: full resync done")
	return report, errors.Join(errs...)
}

// SyncEvent pulls one event from the box office and upserts it.
func (s *EventSyncService) SyncEvent(ctx context.Context, id int64) (*model.Event, error) {
	if id <= 0 {
		return nil, validationf("event id must be positive")
	}
	ev, err := s.boxOffice.GetEvent(ctx, id)
	if err != nil {
		var be *boxoffice.Error
		if errors.As(err, &be) && be.StatusCode == 404 {
			return nil, &NotFoundError{Resource: "event", Key: fmt.Sprint(id)}
		}
		return nil, externalError("getEvent", err)
	}
	if ev.ID == 0 {
		ev.ID = id
	}
	return s.upsert(ctx, ev)
}

// FetchEvent returns the full box office record of one event without
// storing it.
func (s *EventSyncService) FetchEvent(ctx context.Context, id int64) (*boxoffice.Event, error) {
	ev, err := s.boxOffice.GetEvent(ctx, id)
	if err != nil {
		return nil, externalError("getEvent", err)
	}
	if ev.ID == 0 {
		ev.ID = id
	}
	return ev, nil
}

// ListActive returns the active events of the local projection.
func (s *EventSyncService) ListActive(ctx context.Context) ([]*model.Event, error) {
	return s.events.ListActive(ctx)
}

// GetEvent returns one event of the local projection, active or not.
func (s *EventSyncService) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	ev, err := s.events.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Resource: "event", Key: fmt.Sprint(id)}
	}
	return ev, err
}

// Catalog returns the box office event summaries.
func (s *EventSyncService) Catalog(ctx context.Context) ([]boxoffice.EventSummary, error) {
	out, err := s.boxOffice.ListEventSummaries(ctx)
	if err != nil {
		return nil, externalError("listEventsSummary", err)
	}
	return out, nil
}

func (s *EventSyncService) upsert(ctx context.Context, ev *boxoffice.Event) (*model.Event, error) {
	e := toModelEvent(ev, s.now())
	if err := s.events.Upsert(ctx, e); err != nil {
		return nil, fmt.Errorf("upsert event %d: %w", ev.ID, err)
	}
	return e, nil
}

func toModelEvent(ev *boxoffice.Event, now time.Time) *model.Event {
	e := &model.Event{
		ID:           ev.ID,
		Title:        ev.Title,
		Summary:      ev.Summary,
		Description:  ev.Description,
		Date:         ev.Date.TimePtr(),
		Venue:        ev.Venue,
		Image:        ev.Image,
		SeatRows:     ev.SeatRows,
		SeatColumns:  ev.SeatColumns,
		Members:      make([]model.Member, 0, len(ev.Members)),
		Active:       true,
		LastSyncedAt: now.UTC(),
	}
	if ev.Price != nil {
		e.Price = *ev.Price
	}
	if ev.Category != nil {
		e.Category = &model.EventCategory{Name: ev.Category.Name, Description: ev.Category.Description}
	}
	for _, m := range ev.Members {
		e.Members = append(e.Members, model.Member{FirstName: m.FirstName, LastName: m.LastName, Identification: m.Identification})
	}
	return e
}
