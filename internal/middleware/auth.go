// Package middleware holds the echo middleware of the HTTP API.
package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/userauth/internal/admission"
	"github.com/Skotchmaster/userauth/internal/logging"
)

// UserIDKey is the echo context key holding the authenticated user id (uint).
const UserIDKey = "user_id"

type Auth struct {
	Decider *admission.Decider
}

func NewAuth(d *admission.Decider) *Auth {
	return &Auth{Decider: d}
}

// RequireAuth admits valid tokens of users that exist and are not blocked.
func (a *Auth) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return a.require(next, admission.ModeLiveStatus)
}

// RequireToken only checks the token itself.
func (a *Auth) RequireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return a.require(next, admission.ModeSignatureOnly)
}

func (a *Auth) require(next echo.HandlerFunc, mode admission.Mode) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		d := a.Decider.Decide(ctx, c.Request().Header.Get(echo.HeaderAuthorization), mode)

		switch d.Outcome {
		case admission.Admitted:
			c.Set(UserIDKey, d.UserID)
			return next(c)
		case admission.RejectedMissing:
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		case admission.RejectedInvalid:
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		case admission.RejectedForbidden:
			return echo.NewHTTPError(http.StatusForbidden, "account is blocked")
		default:
			logging.FromContext(ctx).Error("admission_failed", "user_id", d.UserID, "error", d.Err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(d.Err)
		}
	}
}

// UserID reads the id stored by RequireAuth or RequireToken.
func UserID(c echo.Context) (uint, bool) {
	id, ok := c.Get(UserIDKey).(uint)
	return id, ok
}
