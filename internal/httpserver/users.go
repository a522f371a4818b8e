package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/userauth/internal/domain"
	"github.com/Skotchmaster/userauth/internal/logging"
	"github.com/Skotchmaster/userauth/internal/middleware"
	"github.com/Skotchmaster/userauth/internal/models"
	"github.com/Skotchmaster/userauth/internal/service"
	"github.com/Skotchmaster/userauth/internal/util"
)

type UsersHTTP struct {
	Svc                   *service.AccountService
	FrontendActivationURL string
}

type userView struct {
	ID     uint              `json:"id"`
	Name   string            `json:"name"`
	Email  string            `json:"email"`
	Status domain.UserStatus `json:"status"`
}

func viewOf(u *models.User) userView {
	return userView{ID: u.ID, Name: u.Name, Email: u.Email, Status: u.Status}
}

func bindBody(c echo.Context, dst validation.Validatable) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if n, ok := dst.(interface{ normalize() }); ok {
		n.normalize()
	}
	if err := dst.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// fail maps service errors onto HTTP errors. Anything unrecognised is logged
// and hidden behind a 500.
func fail(l *slog.Logger, event string, err error) error {
	var (
		code int
		msg  string
	)
	switch {
	case errors.Is(err, domain.ErrValidation):
		code, msg = http.StatusBadRequest, err.Error()
	case domain.IsUnauthorized(err):
		code, msg = http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, domain.ErrForbidden):
		code, msg = http.StatusForbidden, "the user is blocked"
	case errors.Is(err, domain.ErrNotFound):
		code, msg = http.StatusNotFound, "user not found"
	case errors.Is(err, domain.ErrConflict):
		code, msg = http.StatusConflict, "user with such an email already exists"
	default:
		l.Error(event, "status", http.StatusInternalServerError, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
	l.Warn(event, "status", code, "error", err)
	return echo.NewHTTPError(code, msg)
}

func (h *UsersHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_register")

	var req registerRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	res, err := h.Svc.Register(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		return fail(l, "register_failed", err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"user":         res.User,
		"accessToken":  res.Pair.AccessToken,
		"refreshToken": res.Pair.RefreshToken,
		"message":      "Registration successful. Please check your email to activate your account.",
	})
}

func (h *UsersHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_login")

	var req loginRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	res, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		if domain.IsUnauthorized(err) {
			l.Warn("login_failed", "status", http.StatusUnauthorized)
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
		}
		return fail(l, "login_failed", err)
	}
	l.Info("login_successful", "user_id", res.User.ID)

	return c.JSON(http.StatusOK, echo.Map{
		"user":         viewOf(res.User),
		"accessToken":  res.Pair.AccessToken,
		"refreshToken": res.Pair.RefreshToken,
	})
}

func (h *UsersHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_refresh")

	var req refreshRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	pair, err := h.Svc.Refresh(ctx, req.RefreshToken)
	if err != nil {
		if domain.IsUnauthorized(err) {
			l.Warn("refresh_rejected", "status", http.StatusUnauthorized, "error", err)
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
		}
		return fail(l, "refresh_failed", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// Logout always answers 204 once the body is well formed.
func (h *UsersHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_logout")

	var req refreshRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	if err := h.Svc.Logout(ctx, req.RefreshToken); err != nil {
		l.Warn("logout_revoke_failed", "error", err)
	} else {
		l.Info("successful_logout")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *UsersHTTP) Activate(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_activate")
	base := strings.TrimRight(h.FrontendActivationURL, "/")

	err := h.Svc.Activate(ctx, c.Param("token"))
	if err != nil {
		msg := "Activation failed"
		var aerr *service.ActivationError
		if errors.As(err, &aerr) {
			msg = aerr.Error()
			l.Warn("activation_rejected", "reason", msg)
		} else {
			l.Error("activation_failed", "error", err)
		}
		return c.Redirect(http.StatusFound, base+"/activation-failed?error="+url.QueryEscape(msg))
	}

	l.Info("activation_successful")
	return c.Redirect(http.StatusFound, base+"/activation-success")
}

func (h *UsersHTTP) Me(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_me")

	id, ok := middleware.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}
	user, err := h.Svc.Me(ctx, id)
	if err != nil {
		return fail(l, "me_failed", err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *UsersHTTP) List(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_list")

	page := util.ParsePage(c.QueryParam("page"), c.QueryParam("size"))
	users, err := h.Svc.List(ctx, c.QueryParam("sortBy"), c.QueryParam("order"), page)
	if err != nil {
		return fail(l, "list_failed", err)
	}
	return c.JSON(http.StatusOK, users)
}

func (h *UsersHTTP) DeleteMany(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_delete")

	var req idsRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	n, err := h.Svc.DeleteMany(ctx, req.uintIDs())
	if err != nil {
		return fail(l, "delete_failed", err)
	}
	l.Info("users_deleted", "count", n)
	return c.JSON(http.StatusOK, echo.Map{"message": "Successfully deleted", "count": n})
}

func (h *UsersHTTP) DeleteUnverified(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_delete_unverified")

	n, err := h.Svc.DeleteUnverified(ctx)
	if err != nil {
		return fail(l, "delete_unverified_failed", err)
	}
	l.Info("users_deleted", "count", n)
	return c.JSON(http.StatusOK, echo.Map{"message": "Successfully deleted", "count": n})
}

func (h *UsersHTTP) UpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_update_status")

	var req statusRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	n, err := h.Svc.UpdateStatusMany(ctx, idsRequest{IDs: req.IDs}.uintIDs(), domain.UserStatus(req.Status))
	if err != nil {
		return fail(l, "update_status_failed", err)
	}
	l.Info("users_status_updated", "count", n, "status", req.Status)
	return c.JSON(http.StatusOK, echo.Map{"message": "Successfully updated", "count": n})
}
