package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
)

const (
	ctxUsername = "username"
	ctxRole     = "role"
)

// Username returns the authenticated username stored by JWTAuth.
func Username(c echo.Context) (string, bool) {
	u, ok := c.Get(ctxUsername).(string)
	return u, ok && u != ""
}

// requester names the caller for logs; "guest" when unauthenticated.
func requester(c echo.Context) string {
	if u, ok := Username(c); ok {
		return u
	}
	return "guest"
}

// RequestLogger logs one line per request through zerolog.
func RequestLogger() echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= 500 || v.Error != nil {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency.Round(time.Microsecond)).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Str("user", requester(c)).
				Msg("http: request")
			return nil
		},
	})
}
