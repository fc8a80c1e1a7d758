package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is anything Health can ping; *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health answers the load balancer.  With a database attached it also
// pings it and reports 503 when the ping fails.
func Health(db Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				return c.String(http.StatusServiceUnavailable, "database unreachable")
			}
		}
		return c.String(http.StatusOK, "ok")
	}
}
