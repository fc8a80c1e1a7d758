package jobs

import (
	"context"
	"time"

	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/service"
)

const (
	SessionSweep = "session-sweep"
	SaleRetry    = "sale-retry"
)

// SessionExpirer is satisfied by *service.SessionService.
type SessionExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// SaleRetrier is satisfied by *service.SaleService.
type SaleRetrier interface {
	RetryPending(ctx context.Context, now time.Time) (service.RetryReport, error)
}

// SessionSweepTask deletes the sessions idle past their TTL.
func SessionSweepTask(sessions SessionExpirer) Task {
	return func(ctx context.Context, now time.Time) error {
		_, err := sessions.ExpireStale(ctx, now)
		return err
	}
}

// SaleRetryTask resubmits the pending sales.
func SaleRetryTask(sales SaleRetrier) Task {
	return func(ctx context.Context, now time.Time) error {
		_, err := sales.RetryPending(ctx, now)
		return err
	}
}
