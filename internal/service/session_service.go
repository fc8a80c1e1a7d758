package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/boxoffice"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/model"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/repository"
)

// maxWriteAttempts bounds the read-modify-write loop when a concurrent
// writer (another request or the expiry sweep) wins the compare-and-set.
const maxWriteAttempts = 3

// SessionService owns the purchase session lifecycle.  No other component
// writes sessions; the sale flow reads them through GetActive and removes
// them through Discard.
type SessionService struct {
	store     SessionStore
	boxOffice BoxOffice
	ttl       time.Duration
	now       func() time.Time
	newID     func() string
}

// NewSessionService returns a SessionService.  A non-positive ttl falls
// back to model.SessionTTL.
func NewSessionService(store SessionStore, boxOffice BoxOffice, ttl time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = model.SessionTTL
	}
	return &SessionService{
		store:     store,
		boxOffice: boxOffice,
		ttl:       ttl,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// GetOrCreate returns the user's live session, creating one when none
// exists and replacing it when it has expired.  Activity is touched.
func (s *SessionService) GetOrCreate(ctx context.Context, username string) (*model.PurchaseSession, error) {
	return s.mutate(ctx, username, nil)
}

// Advance sets the workflow step and, when eventID is not nil, the event.
// Steps are advisory and any valid value is accepted in any order.
func (s *SessionService) Advance(ctx context.Context, username string, step model.Step, eventID *int64) (*model.PurchaseSession, error) {
	if !step.Valid() {
		return nil, validationf("unknown step %q", step)
	}
	if eventID != nil && *eventID <= 0 {
		return nil, validationf("event id must be positive")
	}
	return s.mutate(ctx, username, func(sess *model.PurchaseSession) error {
		sess.Step = step
		if eventID != nil {
			id := *eventID
			sess.EventID = &id
		}
		return nil
	})
}

// SelectSeats replaces the selection wholesale and moves the session to
// SEAT_SELECTION.  A new selection is never locked with the box office.
func (s *SessionService) SelectSeats(ctx context.Context, username string, seats []model.SessionSeat) (*model.PurchaseSession, error) {
	if len(seats) == 0 {
		return nil, validationf("at least one seat is required")
	}
	selection := make([]model.SessionSeat, 0, len(seats))
	seen := make(map[model.SeatPosition]bool, len(seats))
	for _, st := range seats {
		if st.Row < 1 || st.Column < 1 {
			return nil, validationf("seat %d:%d is outside the grid", st.Row, st.Column)
		}
		if seen[st.Position()] {
			return nil, validationf("seat %s selected twice", st.Position())
		}
		seen[st.Position()] = true
		selection = append(selection, model.SessionSeat{Row: st.Row, Column: st.Column, PersonName: st.PersonName})
	}
	sess, err := s.mutate(ctx, username, func(sess *model.PurchaseSession) error {
		sess.Seats = append([]model.SessionSeat(nil), selection...)
		sess.Step = model.StepSeatSelection
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("username", username).Int("seats", len(selection)).Msg("session: seats selected")
	return sess, nil
}

// LockSeats asks the box office to hold the selected seats.  When the box
// office reports success every selected seat is flagged as locked and the
// session moves to DATA_ENTRY; otherwise the session is left as it was.
// The per-seat outcome is returned untouched for display.  A missing or
// expired session is rejected like one without an event, and nothing is
// written.
func (s *SessionService) LockSeats(ctx context.Context, username string) (*boxoffice.LockResult, error) {
	sess, err := s.store.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, validationf("no event selected")
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.IsExpired(s.now(), s.ttl) || sess.EventID == nil {
		return nil, validationf("no event selected")
	}
	if len(sess.Seats) == 0 {
		return nil, validationf("no seats selected")
	}

	req := boxoffice.LockRequest{EventID: *sess.EventID, Seats: make([]boxoffice.SeatRef, 0, len(sess.Seats))}
	requested := make(map[model.SeatPosition]bool, len(sess.Seats))
	for _, st := range sess.Seats {
		req.Seats = append(req.Seats, boxoffice.SeatRef{Row: st.Row, Column: st.Column})
		requested[st.Position()] = true
	}

	log.Info().Str("username", username).Int64("event_id", req.EventID).Int("seats", len(req.Seats)).Msg("session: locking seats")
	res, err := s.boxOffice.LockSeats(ctx, req)
	if err != nil {
		return nil, externalError("lockSeats", err)
	}
	if !res.Result {
		log.Info().Str("username", username).Str("description", res.Description).Msg("session: lock rejected")
		return res, nil
	}

	// The box office call is not repeated on a storage conflict: the flags
	// are re-applied to the freshest row instead.
	sessionID := sess.SessionID
	eventID := req.EventID
	_, err = s.mutateExisting(ctx, username, func(fresh *model.PurchaseSession) error {
		if fresh.SessionID != sessionID || fresh.EventID == nil || *fresh.EventID != eventID {
			return errSessionReplaced
		}
		for i := range fresh.Seats {
			if requested[fresh.Seats[i].Position()] {
				fresh.Seats[i].LockedWithBoxOffice = true
			}
		}
		fresh.Step = model.StepDataEntry
		return nil
	})
	switch {
	case errors.Is(err, errSessionReplaced):
		log.Warn().Str("username", username).Str("session_id", sessionID).Msg("session: replaced while locking, lock flags not applied")
	case err != nil:
		return nil, err
	}
	return res, nil
}

var errSessionReplaced = errors.New("session replaced")

// GetActive returns the user's live session without creating one.
func (s *SessionService) GetActive(ctx context.Context, username string) (*model.PurchaseSession, error) {
	sess, err := s.store.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Resource: "session", Key: username}
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.IsExpired(s.now(), s.ttl) {
		return nil, &NotFoundError{Resource: "session", Key: username}
	}
	return sess, nil
}

// ExpireStale deletes every session idle for longer than the TTL at now
// and returns how many were removed.  Rows touched concurrently survive
// because the cutoff is evaluated by the store at delete time.
func (s *SessionService) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.store.DeleteIdleBefore(ctx, now.UTC().Add(-s.ttl))
	if err != nil {
		return 0, err
	}
	log.Info().Int64("removed", n).Msg("session: expired sessions swept")
	return n, nil
}

// Discard deletes the user's session if there is one.
func (s *SessionService) Discard(ctx context.Context, username string) error {
	sess, err := s.store.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if err := s.store.Delete(ctx, sess.SessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	log.Info().Str("username", username).Str("session_id", sess.SessionID).Msg("session: discarded")
	return nil
}

// mutate loads (or creates) the live session, applies fn, touches it and
// writes it back, retrying from a fresh read when the write loses a race.
// A nil fn only touches; a session created by this very call is returned
// as is.
func (s *SessionService) mutate(ctx context.Context, username string, fn func(*model.PurchaseSession) error) (*model.PurchaseSession, error) {
	return s.retry(ctx, username, func() (*model.PurchaseSession, error) {
		sess, created, err := s.load(ctx, username)
		if err != nil {
			return nil, err
		}
		if created && fn == nil {
			return sess, nil
		}
		return s.apply(ctx, sess, fn)
	})
}

// mutateExisting is mutate without implicit creation or replacement.
func (s *SessionService) mutateExisting(ctx context.Context, username string, fn func(*model.PurchaseSession) error) (*model.PurchaseSession, error) {
	return s.retry(ctx, username, func() (*model.PurchaseSession, error) {
		sess, err := s.store.GetByUsername(ctx, username)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errSessionReplaced
		}
		if err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
		return s.apply(ctx, sess, fn)
	})
}

func (s *SessionService) retry(ctx context.Context, username string, once func() (*model.PurchaseSession, error)) (*model.PurchaseSession, error) {
	var err error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		var sess *model.PurchaseSession
		sess, err = once()
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, repository.ErrStaleWrite) {
			return nil, err
		}
		log.Debug().Str("username", username).Int("attempt", attempt).Msg("session: concurrent write, retrying")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
	}
	return nil, fmt.Errorf("session for %s: %w", username, err)
}

func (s *SessionService) apply(ctx context.Context, sess *model.PurchaseSession, fn func(*model.PurchaseSession) error) (*model.PurchaseSession, error) {
	if fn != nil {
		if err := fn(sess); err != nil {
			return nil, err
		}
	}
	sess.Touch(s.now())
	if err := s.store.Update(ctx, sess); err != nil {
		if errors.Is(err, repository.ErrStaleWrite) {
			return nil, err
		}
		return nil, fmt.Errorf("update session: %w", err)
	}
	return sess, nil
}

// load returns the user's live session.  A missing session is created and
// an expired one is deleted and replaced; created reports either case.
// ErrStaleWrite is returned when a concurrent writer got in the way and
// the caller should start over.
func (s *SessionService) load(ctx context.Context, username string) (sess *model.PurchaseSession, created bool, err error) {
	now := s.now()
	existing, err := s.store.GetByUsername(ctx, username)
	switch {
	case err == nil && !existing.IsExpired(now, s.ttl):
		return existing, false, nil
	case err == nil:
		removed, err := s.store.DeleteIfVersion(ctx, existing.SessionID, existing.Version)
		if err != nil {
			return nil, false, fmt.Errorf("delete expired session: %w", err)
		}
		if !removed {
			return nil, false, repository.ErrStaleWrite
		}
		log.Info().Str("username", username).Str("session_id", existing.SessionID).Msg("session: expired, replacing")
	case !errors.Is(err, repository.ErrNotFound):
		return nil, false, fmt.Errorf("load session: %w", err)
	}

	fresh := &model.PurchaseSession{
		SessionID:      s.newID(),
		Username:       username,
		Step:           model.StepListing,
		Seats:          []model.SessionSeat{},
		CreatedAt:      now.UTC(),
		LastActivityAt: now.UTC(),
	}
	err = s.store.Create(ctx, fresh)
	if errors.Is(err, repository.ErrConflict) {
		// Another request created the session first; use theirs.
		return nil, false, repository.ErrStaleWrite
	}
	if err != nil {
		return nil, false, fmt.Errorf("create session: %w", err)
	}
	log.Info().Str("username", username).Str("session_id", fresh.SessionID).Msg("session: created")
	return fresh, true, nil
}
