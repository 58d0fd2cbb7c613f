package httpapi

import (
	"errors"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"task-manager/internal/apperr"
	"task-manager/internal/auth"
)

// requireIdentity rejects requests without a valid bearer token.
func requireIdentity(gateway *auth.Gateway, log *slog.Logger) echo.MiddlewareFunc {
	return identityMiddleware(gateway, log, true)
}

// optionalIdentity lets anonymous requests through but still rejects a token
// that is present and bad.
func optionalIdentity(gateway *auth.Gateway, log *slog.Logger) echo.MiddlewareFunc {
	return identityMiddleware(gateway, log, false)
}

func identityMiddleware(gateway *auth.Gateway, log *slog.Logger, required bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := gateway.Authenticate(req.Header.Get(echo.HeaderAuthorization))

			switch {
			case res.Identity != nil:
				ctx := auth.WithIdentity(req.Context(), *res.Identity)
				c.SetRequest(req.WithContext(ctx))
				log.DebugContext(ctx, "identity attached",
					"stage", auth.StageIdentityAttached.String(),
					"user_id", res.Identity.UserID,
				)
				return next(c)
			case errors.Is(res.Err, auth.ErrNoToken) && !required:
				return next(c)
			case errors.Is(res.Err, auth.ErrNoToken):
				return apperr.Unauthenticated("Authentication required")
			}

			log.DebugContext(req.Context(), "token rejected", "stage", res.Stage.String(), "error", res.Err)
			if errors.Is(res.Err, auth.ErrTokenExpired) {
				return apperr.Unauthenticated("Token expired")
			}
			return apperr.Unauthenticated("Invalid token")
		}
	}
}

// requestLogger reports every request to slog once it completes.
func requestLogger(log *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if id := auth.IdentityFrom(c.Request().Context()); id != nil {
				attrs = append(attrs, "user_id", id.UserID)
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			log.InfoContext(c.Request().Context(), "request", attrs...)
			return nil
		},
	})
}
