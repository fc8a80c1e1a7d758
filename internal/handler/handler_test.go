package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/boxoffice"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/handler"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/model"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/router"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/seatcache"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/service"
)

const secret = "handler-secret"

type sessionsMock struct{ mock.Mock }

func (m *sessionsMock) GetOrCreate(ctx context.Context, u string) (*model.PurchaseSession, error) {
	args := m.Called(ctx, u)
	s, _ := args.Get(0).(*model.PurchaseSession)
	return s, args.Error(1)
}

func (m *sessionsMock) Advance(ctx context.Context, u string, step model.Step, eventID *int64) (*model.PurchaseSession, error) {
	args := m.Called(ctx, u, step, eventID)
	s, _ := args.Get(0).(*model.PurchaseSession)
	return s, args.Error(1)
}

func (m *sessionsMock) SelectSeats(ctx context.Context, u string, seats []model.SessionSeat) (*model.PurchaseSession, error) {
	args := m.Called(ctx, u, seats)
	s, _ := args.Get(0).(*model.PurchaseSession)
	return s, args.Error(1)
}

func (m *sessionsMock) LockSeats(ctx context.Context, u string) (*boxoffice.LockResult, error) {
	args := m.Called(ctx, u)
	r, _ := args.Get(0).(*boxoffice.LockResult)
	return r, args.Error(1)
}

func (m *sessionsMock) Discard(ctx context.Context, u string) error {
	return m.Called(ctx, u).Error(0)
}

type salesMock struct{ mock.Mock }

func (m *salesMock) ExecuteSale(ctx context.Context, u string) (*model.Sale, error) {
	args := m.Called(ctx, u)
	s, _ := args.Get(0).(*model.Sale)
	return s, args.Error(1)
}

func (m *salesMock) ListSales(ctx context.Context, u string) ([]*model.Sale, error) {
	args := m.Called(ctx, u)
	s, _ := args.Get(0).([]*model.Sale)
	return s, args.Error(1)
}

func (m *salesMock) GetSale(ctx context.Context, id int64, u string) (*model.Sale, error) {
	args := m.Called(ctx, id, u)
	s, _ := args.Get(0).(*model.Sale)
	return s, args.Error(1)
}

func (m *salesMock) RemoteSales(ctx context.Context) ([]boxoffice.SaleSummary, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).([]boxoffice.SaleSummary)
	return s, args.Error(1)
}

func (m *salesMock) RemoteSale(ctx context.Context, id int64) (*boxoffice.SaleResponse, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*boxoffice.SaleResponse)
	return s, args.Error(1)
}

type eventsMock struct{ mock.Mock }

func (m *eventsMock) ApplyChange(ctx context.Context, kind string, ev *boxoffice.Event) error {
	return m.Called(ctx, kind, ev).Error(0)
}

func (m *eventsMock) FetchEvent(ctx context.Context, id int64) (*boxoffice.Event, error) {
	args := m.Called(ctx, id)
	e, _ := args.Get(0).(*boxoffice.Event)
	return e, args.Error(1)
}

func (m *eventsMock) ListActive(ctx context.Context) ([]*model.Event, error) {
	args := m.Called(ctx)
	e, _ := args.Get(0).([]*model.Event)
	return e, args.Error(1)
}

func (m *eventsMock) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	args := m.Called(ctx, id)
	e, _ := args.Get(0).(*model.Event)
	return e, args.Error(1)
}

func (m *eventsMock) SyncEvent(ctx context.Context, id int64) (*model.Event, error) {
	args := m.Called(ctx, id)
	e, _ := args.Get(0).(*model.Event)
	return e, args.Error(1)
}

func (m *eventsMock) FullResync(ctx context.Context) (service.ResyncReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(service.ResyncReport), args.Error(1)
}

func (m *eventsMock) Catalog(ctx context.Context) ([]boxoffice.EventSummary, error) {
	args := m.Called(ctx)
	e, _ := args.Get(0).([]boxoffice.EventSummary)
	return e, args.Error(1)
}

type seatsMock struct{ mock.Mock }

func (m *seatsMock) SeatStatuses(ctx context.Context, id int64) (model.SeatStatusView, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(model.SeatStatusView)
	return v, args.Error(1)
}

func (m *seatsMock) SeatStatus(ctx context.Context, id int64, row, col int) (string, error) {
	args := m.Called(ctx, id, row, col)
	return args.String(0), args.Error(1)
}

type fixture struct {
	e        *echo.Echo
	sessions *sessionsMock
	sales    *salesMock
	events   *eventsMock
	seats    *seatsMock
}

func newFixture() *fixture {
	f := &fixture{sessions: &sessionsMock{}, sales: &salesMock{}, events: &eventsMock{}, seats: &seatsMock{}}
	f.e = router.New(router.Handlers{
		Health:   handler.Health(nil),
		Sessions: &handler.SessionHandler{Sessions: f.sessions},
		Sales:    &handler.SaleHandler{Sales: f.sales},
		Events:   &handler.EventHandler{Events: f.events, Seats: f.seats},
	}, secret)
	return f
}

func token(t *testing.T, sub, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub, "role": role, "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func (f *fixture) do(t *testing.T, method, path, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if role != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token(t, "dino", role))
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRoutesRequireIdentityAndRole(t *testing.T) {
	f := newFixture()
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/v1/session", "", "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/v1/catalog", "CUSTOMER", "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/v1/sync/webhook", "ADMIN", "{}").Code)
}

func TestSession_Get(t *testing.T) {
	f := newFixture()
	f.sessions.On("GetOrCreate", mock.Anything, "dino").Return(&model.PurchaseSession{SessionID: "s1", Username: "dino", Step: model.StepListing}, nil)

	rec := f.do(t, http.MethodGet, "/v1/session", "CUSTOMER", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"session_id":"s1"`)
}

func TestSession_AdvanceValidatesStep(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/v1/session/step", "CUSTOMER", `{"step":"FLYING"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.sessions.AssertNotCalled(t, "Advance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	ev := int64(1)
	f.sessions.On("Advance", mock.Anything, "dino", model.StepEventDetail, &ev).Return(&model.PurchaseSession{Step: model.StepEventDetail, EventID: &ev}, nil).Once()
	rec = f.do(t, http.MethodPost, "/v1/session/step", "CUSTOMER", `{"step":"EVENT_DETAIL","event_id":1}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	f.sessions.AssertExpectations(t)
}

func TestSession_SelectSeats(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/v1/session/seats", "CUSTOMER", `{"seats":[{"row":0,"column":1}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, "/v1/session/seats", "CUSTOMER", `{"seats":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	want := []model.SessionSeat{{Row: 2, Column: 3, PersonName: "Fernando"}}
	f.sessions.On("SelectSeats", mock.Anything, "dino", want).Return(&model.PurchaseSession{Seats: want}, nil).Once()
	rec = f.do(t, http.MethodPost, "/v1/session/seats", "CUSTOMER", `{"seats":[{"row":2,"column":3,"person_name":"Fernando"}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	f.sessions.AssertExpectations(t)
}

func TestSession_LockRejectedIsStillOK(t *testing.T) {
	f := newFixture()
	f.sessions.On("LockSeats", mock.Anything, "dino").Return(&boxoffice.LockResult{
		Result: false, Description: "ocupado", Seats: []boxoffice.SeatOutcome{{Row: 2, Column: 3, Status: "Ocupado"}},
	}, nil)

	rec := f.do(t, http.MethodPost, "/v1/session/lock", "CUSTOMER", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"locked":false,"description":"ocupado","seats":[{"fila":2,"columna":3,"estado":"Ocupado"}]}`, rec.Body.String())
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", &service.ValidationError{Msg: "no seats selected"}, http.StatusBadRequest},
		{"not found", &service.NotFoundError{Resource: "session", Key: "dino"}, http.StatusNotFound},
		{"external", &service.ExternalServiceError{Op: "lockSeats", Status: 503, Body: "secret detail"}, http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.sessions.On("LockSeats", mock.Anything, "dino").Return(nil, tt.err)
			rec := f.do(t, http.MethodPost, "/v1/session/lock", "CUSTOMER", "")
			assert.Equal(t, tt.code, rec.Code)
			assert.NotContains(t, rec.Body.String(), "secret detail")
		})
	}
}

func TestSale_ExecuteStatus(t *testing.T) {
	f := newFixture()
	f.sales.On("ExecuteSale", mock.Anything, "dino").Return(&model.Sale{ID: 1, Succeeded: true, SyncState: model.SyncConfirmed}, nil).Once()
	f.sales.On("ExecuteSale", mock.Anything, "dino").Return(&model.Sale{ID: 2, SyncState: model.SyncPending}, nil).Once()

	assert.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/v1/sales", "CUSTOMER", "").Code)
	assert.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/v1/sales", "CUSTOMER", "").Code)
}

func TestSale_GetParsesID(t *testing.T) {
	f := newFixture()
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/v1/sales/abc", "CUSTOMER", "").Code)

	f.sales.On("GetSale", mock.Anything, int64(7), "dino").Return(nil, &service.NotFoundError{Resource: "sale", Key: "7"})
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/sales/7", "CUSTOMER", "").Code)
}

func TestEvent_SeatMapIsSorted(t *testing.T) {
	f := newFixture()
	f.seats.On("SeatStatuses", mock.Anything, int64(1)).Return(model.SeatStatusView{
		{Row: 2, Column: 1}: "Sold",
		{Row: 1, Column: 2}: "Free",
		{Row: 1, Column: 1}: "Locked",
	}, nil)

	rec := f.do(t, http.MethodGet, "/v1/events/1/seats", "CUSTOMER", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"event_id":1,"seats":[
		{"row":1,"column":1,"status":"Locked"},
		{"row":1,"column":2,"status":"Free"},
		{"row":2,"column":1,"status":"Sold"}]}`, rec.Body.String())
}

func TestEvent_SeatCacheDownIs500(t *testing.T) {
	f := newFixture()
	f.seats.On("SeatStatus", mock.Anything, int64(1), 2, 3).Return("", &seatcache.CacheUnavailableError{EventID: 1, Err: errors.New("dial tcp")})

	rec := f.do(t, http.MethodGet, "/v1/events/1/seats/2/3", "CUSTOMER", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestEvent_ResyncReportsPartialFailure(t *testing.T) {
	f := newFixture()
	f.events.On("FullResync", mock.Anything).Return(service.ResyncReport{Total: 3, Applied: 2, Failed: 1}, errors.New("upsert event 2: deadlock")).Once()

	rec := f.do(t, http.MethodPost, "/v1/events/sync", "ADMIN", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"failed":1`)
}

func TestWebhook(t *testing.T) {
	f := newFixture()
	f.events.On("ApplyChange", mock.Anything, "NEW", mock.MatchedBy(func(ev *boxoffice.Event) bool { return ev.ID == 4 })).Return(nil).Once()

	rec := f.do(t, http.MethodPost, "/v1/sync/webhook", "SERVICE", `{"tipoCambio":"NEW","evento":{"id":4}}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/sync/webhook", "SERVICE", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.events.AssertExpectations(t)
}
