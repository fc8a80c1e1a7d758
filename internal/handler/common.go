// Package handler exposes the booking engine over HTTP.  Handlers depend on
// small interfaces so the services can be replaced in tests.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/middleware"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/model"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/queue"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/service"
)

// Validator adapts go-playground/validator to echo.
type Validator struct {
	v *validator.Validate
}

// NewValidator returns a Validator with the session_step rule registered.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("session_step", func(fl validator.FieldLevel) bool {
		return model.Step(fl.Field().String()).Valid()
	})
	return &Validator{v: v}
}

// Validate implements echo.Validator.
func (cv *Validator) Validate(i interface{}) error {
	return cv.v.Struct(i)
}

// bindValid binds the request body into dst and validates it.  The
// returned error is already an HTTP response.
func bindValid(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return echo.NewHTTPError(http.StatusBadRequest, fe.Field()+" failed "+fe.Tag()+" validation")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// currentUser reads the username JWTAuth stored on the context.
func currentUser(c echo.Context) (string, error) {
	u, ok := middleware.Username(c)
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return u, nil
}

// positiveParam parses a positive integer path parameter.
func positiveParam(c echo.Context, name string) (int64, error) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return v, nil
}

// respond turns a service error into the HTTP response.  Only validation
// and not-found errors expose their message; anything else is logged and
// answered with a generic 500.
func respond(c echo.Context, err error) error {
	var (
		he *echo.HTTPError
		ve *service.ValidationError
		nf *service.NotFoundError
	)
	switch {
	case errors.As(err, &he):
		return c.JSON(he.Code, echo.Map{"error": he.Message})
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": ve.Error()})
	case errors.Is(err, queue.ErrUndecodable):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.As(err, &nf):
		return c.JSON(http.StatusNotFound, echo.Map{"error": nf.Error()})
	}
	log.Error().Err(err).Str("method", c.Request().Method).Str("path", c.Path()).Msg("http: request failed")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
