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

// RetryPolicy decides which pending sales the retry sweep resubmits.
//
// MaxAttempts caps the number of retry submissions; zero means no cap.
// BaseBackoff is the wait after the first retry, doubled after each
// further retry up to MaxBackoff; zero resubmits on every sweep.
// Lease is how long a claimed sale stays out of reach of other sweeps; it
// must outlast one box office call.  Zero means DefaultClaimLease.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Lease       time.Duration
}

// DefaultClaimLease covers the default box office timeouts with room to
// store the answer.
const DefaultClaimLease = time.Minute

// ClaimLease returns the effective lease.
func (p RetryPolicy) ClaimLease() time.Duration {
	if p.Lease <= 0 {
		return DefaultClaimLease
	}
	return p.Lease
}

// Backoff returns the wait that must elapse after the given number of
// retry attempts before the next one.
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	if p.BaseBackoff <= 0 || attempts <= 0 {
		return 0
	}
	d := p.BaseBackoff
	for i := 1; i < attempts; i++ {
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			break
		}
		if d > time.Duration(1<<62)/2 {
			break
		}
		d *= 2
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// Exhausted reports whether the sale has used up its attempts.
func (p RetryPolicy) Exhausted(s *model.Sale) bool {
	return p.MaxAttempts > 0 && s.AttemptCount >= p.MaxAttempts
}

// Due reports whether the sale should be resubmitted at now.
func (p RetryPolicy) Due(s *model.Sale, now time.Time) bool {
	if p.Exhausted(s) {
		return false
	}
	if s.LastAttemptAt == nil {
		return true
	}
	return !now.Before(s.LastAttemptAt.Add(p.Backoff(s.AttemptCount)))
}

// SessionReader is what the sale flow needs from the session workflow.
type SessionReader interface {
	GetActive(ctx context.Context, username string) (*model.PurchaseSession, error)
	Discard(ctx context.Context, username string) error
}

// SaleService executes sales against the box office and reconciles the
// ones left pending.  It is the only writer of sales.
type SaleService struct {
	sales     SaleStore
	events    EventStore
	sessions  SessionReader
	boxOffice BoxOffice
	notifier  SaleNotifier
	policy    RetryPolicy
	now       func() time.Time

	// notifyTimeout bounds the confirmation publish.
	notifyTimeout time.Duration
}

const defaultNotifyTimeout = 5 * time.Second

// NewSaleService returns a SaleService.  notifier may be nil.
func NewSaleService(sales SaleStore, events EventStore, sessions SessionReader, boxOffice BoxOffice, notifier SaleNotifier, policy RetryPolicy) *SaleService {
	return &SaleService{
		sales:     sales,
		events:    events,
		sessions:  sessions,
		boxOffice: boxOffice,
		notifier:  notifier,
		policy:    policy,
		now:       func() time.Time { return time.Now().UTC() },

		notifyTimeout: defaultNotifyTimeout,
	}
}

// ExecuteSale submits the user's locked selection to the box office and
// records the outcome.  Once the box office has answered, a Sale is always
// persisted and returned: a rejected sale comes back with Succeeded false
// and stays PENDING for the retry sweep.  If the call itself fails no Sale
// is written and an ExternalServiceError is returned.  The session is
// discarded only when the sale succeeded.
//
// The call is detached from ctx cancellation: a sale in flight is never
// abandoned locally because the box office outcome would be unknown.
func (s *SaleService) ExecuteSale(ctx context.Context, username string) (*model.Sale, error) {
	ctx = context.WithoutCancel(ctx)

	sess, err := s.sessions.GetActive(ctx, username)
	if err != nil {
		return nil, err
	}
	if sess.EventID == nil || len(sess.Seats) == 0 {
		return nil, validationf("no seats selected for sale")
	}
	eventID := *sess.EventID

	price, err := s.canonicalPrice(ctx, eventID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	req := boxoffice.SaleRequest{EventID: eventID, Timestamp: now, Price: price, Seats: make([]boxoffice.SaleSeatRef, 0, len(sess.Seats))}
	sale := &model.Sale{
		EventID:       eventID,
		Username:      username,
		SaleTimestamp: now,
		Price:         price,
		SyncState:     model.SyncPending,
		Seats:         make([]model.SaleSeat, 0, len(sess.Seats)),
	}
	for _, st := range sess.Seats {
		req.Seats = append(req.Seats, boxoffice.SaleSeatRef{Row: st.Row, Column: st.Column, Person: st.PersonName})
		sale.Seats = append(sale.Seats, model.SaleSeat{Row: st.Row, Column: st.Column, PersonName: st.PersonName, Status: model.SeatPending})
	}

	log.Info().Str("username", username).Int64("event_id", eventID).Int("seats", len(req.Seats)).Float64("price", price).Msg("sale: submitting")
	resp, err := s.boxOffice.ExecuteSale(ctx, req)
	if err != nil {
		return nil, externalError("executeSale", err)
	}
	applySaleResponse(sale, resp)

	if err := s.sales.Create(ctx, sale); err != nil {
		log.Error().Err(err).Str("username", username).Interface("external_sale_id", sale.ExternalSaleID).
			Bool("succeeded", sale.Succeeded).Msg("sale: box office answered but the sale could not be stored")
		return nil, fmt.Errorf("store sale: %w", err)
	}
	log.Info().Int64("sale_id", sale.ID).Interface("external_sale_id", sale.ExternalSaleID).
		Bool("succeeded", sale.Succeeded).Str("description", sale.Description).Msg("sale: recorded")

	if sale.Succeeded {
		if err := s.sessions.Discard(ctx, username); err != nil {
			log.Error().Err(err).Str("username", username).Msg("sale: could not discard session after confirmed sale")
		}
		s.notify(ctx, sale)
	}
	return sale, nil
}

// RetryReport summarises one retry sweep.
type RetryReport struct {
	Pending   int `json:"pending"`
	Attempted int `json:"attempted"`
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// RetryPending resubmits every PENDING sale the policy says is due.  Each
// sale is claimed first; a sale claimed by a concurrent sweep, or whose
// previous attempt is younger than the claim lease, is skipped, so a sale
// is never resubmitted while an earlier call may still be in flight.  Per-sale
// failures are recorded (the claim already bumped the attempt counters)
// and logged, never returned; only a failure to list pending sales is.
func (s *SaleService) RetryPending(ctx context.Context, now time.Time) (RetryReport, error) {
	var report RetryReport
	pending, err := s.sales.ListBySyncState(ctx, model.SyncPending)
	if err != nil {
		return report, fmt.Errorf("list pending sales: %w", err)
	}
	report.Pending = len(pending)

	for _, sale := range pending {
		if ctx.Err() != nil {
			break
		}
		if sale.SyncState != model.SyncPending {
			report.Skipped++
			continue
		}
		if !s.policy.Due(sale, now) {
			if s.policy.Exhausted(sale) {
				log.Warn().Int64("sale_id", sale.ID).Int("attempts", sale.AttemptCount).Msg("sale: retry attempts exhausted")
			}
			report.Skipped++
			continue
		}
		err := s.sales.Claim(ctx, sale, now, s.policy.ClaimLease())
		if errors.Is(err, repository.ErrStaleWrite) {
			log.Debug().Int64("sale_id", sale.ID).Msg("sale: claimed elsewhere, skipping")
			report.Skipped++
			continue
		}
		if err != nil {
			log.Error().Err(err).Int64("sale_id", sale.ID).Msg("sale: claim failed")
			report.Failed++
			continue
		}
		report.Attempted++
		if s.retryOne(ctx, sale, now) {
			report.Confirmed++
		} else {
			report.Failed++
		}
	}
	log.Info().Int("pending", report.Pending).Int("attempted", report.Attempted).Int("confirmed", report.Confirmed).
		Int("failed", report.Failed).Int("skipped", report.Skipped).Msg("sale: retry sweep done")
	return report, nil
}

// retryOne resubmits a claimed sale from its own stored data and reports
// whether the box office confirmed it.
func (s *SaleService) retryOne(ctx context.Context, sale *model.Sale, now time.Time) bool {
	ctx = context.WithoutCancel(ctx)
	req := boxoffice.SaleRequest{EventID: sale.EventID, Timestamp: now.UTC(), Price: sale.Price, Seats: make([]boxoffice.SaleSeatRef, 0, len(sale.Seats))}
	for _, st := range sale.Seats {
		req.Seats = append(req.Seats, boxoffice.SaleSeatRef{Row: st.Row, Column: st.Column, Person: st.PersonName})
	}

	resp, err := s.boxOffice.ExecuteSale(ctx, req)
	if err != nil {
		ext := externalError("executeSale", err).(*ExternalServiceError)
		log.Error().Err(err).Int64("sale_id", sale.ID).Int("attempt", sale.AttemptCount).
			Int("status", ext.Status).Str("body", ext.Body).Msg("sale: retry failed, will try again next cycle")
		return false
	}
	applySaleResponse(sale, resp)
	if err := s.sales.Update(ctx, sale); err != nil {
		log.Error().Err(err).Int64("sale_id", sale.ID).Interface("external_sale_id", sale.ExternalSaleID).
			Bool("succeeded", sale.Succeeded).Msg("sale: retry answered but could not be stored")
		return false
	}
	log.Info().Int64("sale_id", sale.ID).Int("attempt", sale.AttemptCount).Bool("succeeded", sale.Succeeded).
		Str("description", sale.Description).Msg("sale: retried")
	if sale.Succeeded {
		s.notify(ctx, sale)
	}
	return sale.Succeeded
}

// ListSales returns the user's sales, newest first.
func (s *SaleService) ListSales(ctx context.Context, username string) ([]*model.Sale, error) {
	return s.sales.ListByUsername(ctx, username)
}

// GetSale returns one of the user's sales.  A sale owned by someone else is
// reported as not found.
func (s *SaleService) GetSale(ctx context.Context, id int64, username string) (*model.Sale, error) {
	sale, err := s.sales.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && sale.Username != username) {
		return nil, &NotFoundError{Resource: "sale", Key: fmt.Sprint(id)}
	}
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// RemoteSales lists the sales the box office holds for this service.
func (s *SaleService) RemoteSales(ctx context.Context) ([]boxoffice.SaleSummary, error) {
	out, err := s.boxOffice.ListSales(ctx)
	if err != nil {
		return nil, externalError("listSales", err)
	}
	return out, nil
}

// RemoteSale fetches one sale record from the box office.
func (s *SaleService) RemoteSale(ctx context.Context, id int64) (*boxoffice.SaleResponse, error) {
	out, err := s.boxOffice.GetSale(ctx, id)
	if err != nil {
		var be *boxoffice.Error
		if errors.As(err, &be) && be.StatusCode == 404 {
			return nil, &NotFoundError{Resource: "box office sale", Key: fmt.Sprint(id)}
		}
		return nil, externalError("getSale", err)
	}
	return out, nil
}

// canonicalPrice reads the ticket price from the local projection and
// falls back to the box office when the event was never synced or was
// synced without a price.  An event the box office removed is not for
// sale, and a sale is never priced at zero for lack of a price.
func (s *SaleService) canonicalPrice(ctx context.Context, eventID int64) (float64, error) {
	ev, err := s.events.GetByID(ctx, eventID)
	switch {
	case err == nil && !ev.Active:
		return 0, validationf("event %d is no longer on sale", eventID)
	case err == nil && ev.Price > 0:
		return ev.Price, nil
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return 0, fmt.Errorf("load event %d: %w", eventID, err)
	}
	remote, err := s.boxOffice.GetEvent(ctx, eventID)
	if err != nil {
		var be *boxoffice.Error
		if errors.As(err, &be) && be.StatusCode == 404 {
			return 0, &NotFoundError{Resource: "event", Key: fmt.Sprint(eventID)}
		}
		return 0, externalError("getEvent", err)
	}
	if remote.Price == nil || *remote.Price <= 0 {
		return 0, externalError("getEvent", fmt.Errorf("event %d has no ticket price", eventID))
	}
	return *remote.Price, nil
}

// notify publishes the confirmation without holding the caller past
// notifyTimeout.
func (s *SaleService) notify(ctx context.Context, sale *model.Sale) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()
	if err := s.notifier.SaleConfirmed(ctx, sale); err != nil {
		log.Warn().Err(err).Int64("sale_id", sale.ID).Msg("sale: confirmation event not published")
	}
}

// applySaleResponse folds a box office answer into the sale.  Optional
// fields only replace local values when present.
func applySaleResponse(sale *model.Sale, resp *boxoffice.SaleResponse) {
	sale.Succeeded = resp.Result
	sale.Description = resp.Description
	if resp.SaleID != nil {
		id := *resp.SaleID
		sale.ExternalSaleID = &id
	}
	if t := resp.SaleTimestamp.TimePtr(); t != nil {
		sale.SaleTimestamp = t.UTC()
	}
	if resp.Price != nil {
		sale.Price = *resp.Price
	}
	if sale.Succeeded {
		sale.SyncState = model.SyncConfirmed
	} else {
		sale.SyncState = model.SyncPending
	}
	overlaySeats(sale.Seats, resp.Seats)
}

// overlaySeats copies the box office per-seat outcome onto the local seats,
// matching by position.  Unmatched seats keep their current values and a
// blank person name from the box office never replaces a local one.
func overlaySeats(seats []model.SaleSeat, reported []boxoffice.SaleSeatOutcome) {
	if len(reported) == 0 {
		return
	}
	byPos := make(map[model.SeatPosition]boxoffice.SaleSeatOutcome, len(reported))
	for _, r := range reported {
		byPos[model.SeatPosition{Row: r.Row, Column: r.Column}] = r
	}
	for i := range seats {
		r, ok := byPos[seats[i].Position()]
		if !ok {
			continue
		}
		if strings.TrimSpace(r.Status) != "" {
			seats[i].Status = r.Status
		}
		if strings.TrimSpace(r.Person) != "" {
			seats[i].PersonName = r.Person
		}
	}
}
