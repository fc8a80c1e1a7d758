package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/boxoffice"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/model"
)

// SaleAPI is the sale flow; *service.SaleService satisfies it.
type SaleAPI interface {
	ExecuteSale(ctx context.Context, username string) (*model.Sale, error)
	ListSales(ctx context.Context, username string) ([]*model.Sale, error)
	GetSale(ctx context.Context, id int64, username string) (*model.Sale, error)
	RemoteSales(ctx context.Context) ([]boxoffice.SaleSummary, error)
	RemoteSale(ctx context.Context, id int64) (*boxoffice.SaleResponse, error)
}

// SaleHandler serves /v1/sales and the box office sale passthrough.
type SaleHandler struct {
	Sales SaleAPI
}

// Execute handles POST /v1/sales.  A confirmed sale answers 201; a sale the
// box office did not confirm is recorded as pending and answers 202.
func (h *SaleHandler) Execute(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return respond(c, err)
	}
	sale, err := h.Sales.ExecuteSale(c.Request().Context(), user)
	if err != nil {
		return respond(c, err)
	}
	status := http.StatusCreated
	if !sale.Succeeded {
		status = http.StatusAccepted
	}
	return c.JSON(status, sale)
}

// List handles GET /v1/sales.
func (h *SaleHandler) List(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return respond(c, err)
	}
	sales, err := h.Sales.ListSales(c.Request().Context(), user)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": sales})
}

// Get handles GET /v1/sales/:id.
func (h *SaleHandler) Get(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return respond(c, err)
	}
	id, err := positiveParam(c, "id")
	if err != nil {
		return respond(c, err)
	}
	sale, err := h.Sales.GetSale(c.Request().Context(), id, user)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, sale)
}

// RemoteList handles GET /v1/boxoffice/sales.
func (h *SaleHandler) RemoteList(c echo.Context) error {
	out, err := h.Sales.RemoteSales(c.Request().Context())
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// RemoteGet handles GET /v1/boxoffice/sales/:id.
func (h *SaleHandler) RemoteGet(c echo.Context) error {
	id, err := positiveParam(c, "id")
	if err != nil {
		return respond(c, err)
	}
	out, err := h.Sales.RemoteSale(c.Request().Context(), id)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
