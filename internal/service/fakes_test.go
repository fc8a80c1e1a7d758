package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/boxoffice"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/model"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/repository"
)

// memSessions is an in-memory SessionStore with the same compare-and-set
// contract as the MySQL repository.
type memSessions struct {
	mu     sync.Mutex
	byUser map[string]*model.PurchaseSession

	// beforeUpdate runs (without the lock) ahead of every Update.
	beforeUpdate func()
	updates      int
}

func newMemSessions() *memSessions {
	return &memSessions{byUser: map[string]*model.PurchaseSession{}}
}

func cloneSession(s *model.PurchaseSession) *model.PurchaseSession {
	c := *s
	c.Seats = append([]model.SessionSeat{}, s.Seats...)
	if s.EventID != nil {
		id := *s.EventID
		c.EventID = &id
	}
	return &c
}

func (m *memSessions) GetByUsername(_ context.Context, username string) (*model.PurchaseSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byUser[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *memSessions) Create(_ context.Context, s *model.PurchaseSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byUser[s.Username]; ok {
		return repository.ErrConflict
	}
	s.Version = 1
	m.byUser[s.Username] = cloneSession(s)
	return nil
}

func (m *memSessions) Update(_ context.Context, s *model.PurchaseSession) error {
	if m.beforeUpdate != nil {
		m.beforeUpdate()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	cur, ok := m.byUser[s.Username]
	if !ok || cur.SessionID != s.SessionID || cur.Version != s.Version {
		return repository.ErrStaleWrite
	}
	s.Version++
	m.byUser[s.Username] = cloneSession(s)
	return nil
}

func (m *memSessions) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for u, s := range m.byUser {
		if s.SessionID == sessionID {
			delete(m.byUser, u)
		}
	}
	return nil
}

func (m *memSessions) DeleteIfVersion(_ context.Context, sessionID string, version int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for u, s := range m.byUser {
		if s.SessionID == sessionID && s.Version == version {
			delete(m.byUser, u)
			return true, nil
		}
	}
	return false, nil
}

func (m *memSessions) DeleteIdleBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for u, s := range m.byUser {
		if s.LastActivityAt.Before(cutoff) {
			delete(m.byUser, u)
			n++
		}
	}
	return n, nil
}

// touchBehindBack bumps the stored version as a concurrent writer would.
func (m *memSessions) touchBehindBack(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byUser[username]; ok {
		s.Version++
	}
}

// memSales is an in-memory SaleStore.
type memSales struct {
	mu     sync.Mutex
	rows   map[int64]*model.Sale
	nextID int64

	createErr   error
	beforeClaim func(s *model.Sale)
	claims      int
}

func newMemSales() *memSales { return &memSales{rows: map[int64]*model.Sale{}} }

func cloneSale(s *model.Sale) *model.Sale {
	c := *s
	c.Seats = append([]model.SaleSeat{}, s.Seats...)
	if s.ExternalSaleID != nil {
		id := *s.ExternalSaleID
		c.ExternalSaleID = &id
	}
	if s.LastAttemptAt != nil {
		t := *s.LastAttemptAt
		c.LastAttemptAt = &t
	}
	return &c
}

func (m *memSales) Create(_ context.Context, s *model.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	s.ID = m.nextID
	s.Version = 1
	m.rows[s.ID] = cloneSale(s)
	return nil
}

func (m *memSales) Update(_ context.Context, s *model.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[s.ID]
	if !ok || cur.Version != s.Version {
		return repository.ErrStaleWrite
	}
	s.Version++
	m.rows[s.ID] = cloneSale(s)
	return nil
}

func (m *memSales) Claim(_ context.Context, s *model.Sale, now time.Time, lease time.Duration) error {
	if m.beforeClaim != nil {
		m.beforeClaim(s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims++
	cur, ok := m.rows[s.ID]
	if !ok || cur.Version != s.Version || cur.SyncState != model.SyncPending {
		return repository.ErrStaleWrite
	}
	if cur.LastAttemptAt != nil && cur.LastAttemptAt.After(now.Add(-lease)) {
		return repository.ErrStaleWrite
	}
	t := now.UTC()
	cur.AttemptCount++
	cur.LastAttemptAt = &t
	cur.Version++
	s.AttemptCount, s.LastAttemptAt, s.Version = cur.AttemptCount, &t, cur.Version
	return nil
}

func (m *memSales) GetByID(_ context.Context, id int64) (*model.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneSale(s), nil
}

func (m *memSales) ListByUsername(_ context.Context, username string) ([]*model.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Sale{}
	for _, s := range m.rows {
		if s.Username == username {
			out = append(out, cloneSale(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memSales) ListBySyncState(_ context.Context, state model.SyncState) ([]*model.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Sale{}
	for _, s := range m.rows {
		if s.SyncState == state {
			out = append(out, cloneSale(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memSales) all() []*model.Sale {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Sale{}
	for _, s := range m.rows {
		out = append(out, cloneSale(s))
	}
	return out
}

// memEvents is an in-memory EventStore.
type memEvents struct {
	mu        sync.Mutex
	rows      map[int64]*model.Event
	failOnIDs map[int64]error
}

func newMemEvents() *memEvents {
	return &memEvents{rows: map[int64]*model.Event{}, failOnIDs: map[int64]error{}}
}

func (m *memEvents) Upsert(_ context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOnIDs[e.ID]; err != nil {
		return err
	}
	c := *e
	c.Members = append([]model.Member{}, e.Members...)
	c.Active = true
	m.rows[e.ID] = &c
	e.Active = true
	return nil
}

func (m *memEvents) Deactivate(_ context.Context, id int64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.Active = false
	e.LastSyncedAt = now
	return nil
}

func (m *memEvents) GetByID(_ context.Context, id int64) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *e
	c.Members = append([]model.Member{}, e.Members...)
	return &c, nil
}

func (m *memEvents) ListActive(_ context.Context) ([]*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Event{}
	for _, e := range m.rows {
		if e.Active {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// mockBoxOffice is a testify mock of the BoxOffice port.
type mockBoxOffice struct {
	mock.Mock
}

func (m *mockBoxOffice) ListEventSummaries(ctx context.Context) ([]boxoffice.EventSummary, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).([]boxoffice.EventSummary)
	return out, args.Error(1)
}

func (m *mockBoxOffice) ListEvents(ctx context.Context) ([]boxoffice.Event, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).([]boxoffice.Event)
	return out, args.Error(1)
}

func (m *mockBoxOffice) GetEvent(ctx context.Context, id int64) (*boxoffice.Event, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).(*boxoffice.Event)
	return out, args.Error(1)
}

func (m *mockBoxOffice) LockSeats(ctx context.Context, req boxoffice.LockRequest) (*boxoffice.LockResult, error) {
	args := m.Called(ctx, req)
	out, _ := args.Get(0).(*boxoffice.LockResult)
	return out, args.Error(1)
}

func (m *mockBoxOffice) ExecuteSale(ctx context.Context, req boxoffice.SaleRequest) (*boxoffice.SaleResponse, error) {
	args := m.Called(ctx, req)
	out, _ := args.Get(0).(*boxoffice.SaleResponse)
	return out, args.Error(1)
}

func (m *mockBoxOffice) ListSales(ctx context.Context) ([]boxoffice.SaleSummary, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).([]boxoffice.SaleSummary)
	return out, args.Error(1)
}

func (m *mockBoxOffice) GetSale(ctx context.Context, id int64) (*boxoffice.SaleResponse, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).(*boxoffice.SaleResponse)
	return out, args.Error(1)
}

// recordingNotifier collects confirmed sales.
type recordingNotifier struct {
	mu    sync.Mutex
	sales []int64
	err   error
}

func (n *recordingNotifier) SaleConfirmed(_ context.Context, s *model.Sale) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sales = append(n.sales, s.ID)
	return n.err
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func int64p(v int64) *int64       { return &v }
func float64p(v float64) *float64 { return &v }
