// Package router wires the HTTP routes onto an echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/handler"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/middleware"
)

// Handlers bundles everything the routes dispatch to.
type Handlers struct {
	Health   echo.HandlerFunc
	Sessions *handler.SessionHandler
	Sales    *handler.SaleHandler
	Events   *handler.EventHandler
}

// New returns an echo instance with the validator, request logging and
// every route registered.
func New(h Handlers, jwtSecret string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.Use(middleware.RequestLogger())
	Register(e, h, jwtSecret)
	return e
}

// Register maps the routes.  /healthz is public; everything under /v1
// needs a valid token, and each group its own role.
func Register(e *echo.Echo, h Handlers, jwtSecret string) {
	e.GET("/healthz", h.Health)

	auth := middleware.JWTAuth(jwtSecret)

	customer := e.Group("/v1", auth, middleware.RequireRole(middleware.RoleCustomer))
	customer.GET("/session", h.Sessions.Get)
	customer.POST("/session/step", h.Sessions.Advance)
	customer.POST("/session/seats", h.Sessions.SelectSeats)
	customer.POST("/session/lock", h.Sessions.Lock)
	customer.DELETE("/session", h.Sessions.Discard)
	customer.POST("/sales", h.Sales.Execute)
	customer.GET("/sales", h.Sales.List)
	customer.GET("/sales/:id", h.Sales.Get)
	customer.GET("/events", h.Events.List)
	customer.GET("/events/:id", h.Events.Get)
	customer.GET("/events/:id/seats", h.Events.SeatMap)
	customer.GET("/events/:id/seats/:row/:column", h.Events.Seat)

	admin := e.Group("/v1", auth, middleware.RequireRole(middleware.RoleAdmin))
	admin.POST("/events/sync", h.Events.Resync)
	admin.POST("/events/:id/sync", h.Events.SyncOne)
	admin.GET("/catalog", h.Events.Catalog)
	admin.GET("/boxoffice/sales", h.Sales.RemoteList)
	admin.GET("/boxoffice/sales/:id", h.Sales.RemoteGet)

	svc := e.Group("/v1", auth, middleware.RequireRole(middleware.RoleService))
	svc.POST("/sync/webhook", h.Events.Webhook)
}
