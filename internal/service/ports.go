package service

import (
	"context"
	"time"

	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/boxoffice"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/model"
)

// BoxOffice is the subset of the box office client the services use.
// *boxoffice.Client satisfies it.
type BoxOffice interface {
	ListEventSummaries(ctx context.Context) ([]boxoffice.EventSummary, error)
	ListEvents(ctx context.Context) ([]boxoffice.Event, error)
	GetEvent(ctx context.Context, id int64) (*boxoffice.Event, error)
	LockSeats(ctx context.Context, req boxoffice.LockRequest) (*boxoffice.LockResult, error)
	ExecuteSale(ctx context.Context, req boxoffice.SaleRequest) (*boxoffice.SaleResponse, error)
	ListSales(ctx context.Context) ([]boxoffice.SaleSummary, error)
	GetSale(ctx context.Context, id int64) (*boxoffice.SaleResponse, error)
}

// SessionStore persists purchase sessions with compare-and-set updates.
// *repository.SessionRepo satisfies it.
type SessionStore interface {
	GetByUsername(ctx context.Context, username string) (*model.PurchaseSession, error)
	Create(ctx context.Context, s *model.PurchaseSession) error
	Update(ctx context.Context, s *model.PurchaseSession) error
	Delete(ctx context.Context, sessionID string) error
	DeleteIfVersion(ctx context.Context, sessionID string, version int64) (bool, error)
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SaleStore persists sales.  *repository.SaleRepo satisfies it.
type SaleStore interface {
	Create(ctx context.Context, s *model.Sale) error
	Update(ctx context.Context, s *model.Sale) error
	Claim(ctx context.Context, s *model.Sale, now time.Time, lease time.Duration) error
	GetByID(ctx context.Context, id int64) (*model.Sale, error)
	ListByUsername(ctx context.Context, username string) ([]*model.Sale, error)
	ListBySyncState(ctx context.Context, state model.SyncState) ([]*model.Sale, error)
}

// EventStore persists the local event projection.  *repository.EventRepo
// satisfies it.
type EventStore interface {
	Upsert(ctx context.Context, e *model.Event) error
	Deactivate(ctx context.Context, id int64, now time.Time) error
	GetByID(ctx context.Context, id int64) (*model.Event, error)
	ListActive(ctx context.Context) ([]*model.Event, error)
}

// SaleNotifier is told about every sale the box office confirmed.
// Failures are logged by the caller and never fail the sale.
type SaleNotifier interface {
	SaleConfirmed(ctx context.Context, sale *model.Sale) error
}
