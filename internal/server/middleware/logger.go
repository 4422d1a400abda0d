package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/kinship-crm/kinship/pkg/logger"
)

// RequestLogger writes one log line per request through the logger facade.
func RequestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			kv := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			switch {
			case v.Error != nil:
				logger.Error("[API] request", append(kv, "err", v.Error)...)
			case v.Status >= 500:
				logger.Error("[API] request", kv...)
			default:
				logger.Debug("[API] request", kv...)
			}
			return nil
		},
	})
}
