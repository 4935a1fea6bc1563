package httpserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/lms/pkg/apperr"
	"github.com/Skotchmaster/lms/pkg/cookies"
	"github.com/Skotchmaster/lms/pkg/logging"
	authmw "github.com/Skotchmaster/lms/pkg/middleware/auth"
	"github.com/Skotchmaster/lms/pkg/pagination"
	"github.com/Skotchmaster/lms/services/auth/internal/service"
)

const forgotPasswordMessage = "If an account with that email exists, a password reset link has been sent."

var errInvalidBody = apperr.Validation("invalid body")

type AuthHTTP struct {
	Svc     *service.AuthService
	Cookies cookies.Policy
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHTTP) Signup(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_signup")

	var req service.SignupRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("signup_failed", "status", 400, "reason", "invalid body", "error", err)
		return errInvalidBody
	}

	res, err := h.Svc.Signup(ctx, req)
	if err != nil {
		l.Warn("signup_failed", "status", apperr.KindOf(err).Status(), "reason", apperr.PublicMessage(err))
		return err
	}

	h.Cookies.SetAuth(c, res.Session.AccessToken, res.Session.RefreshToken)
	return apperr.OKMessage(c, http.StatusCreated, "user registered", res)
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_failed", "status", 400, "reason", "invalid body", "error", err)
		return errInvalidBody
	}

	res, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		l.Warn("login_failed", "status", apperr.KindOf(err).Status(), "reason", apperr.PublicMessage(err))
		return err
	}

	h.Cookies.SetAuth(c, res.Session.AccessToken, res.Session.RefreshToken)
	l.Info("login_successful", "user_id", res.User.ID.String())
	return apperr.OK(c, http.StatusOK, res)
}

// Refresh accepts the refresh token from its cookie or from the JSON body.
func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	token := cookies.RefreshToken(c.Request())
	if token == "" {
		var req refreshRequest
		if err := c.Bind(&req); err != nil {
			return errInvalidBody
		}
		token = req.RefreshToken
	}

	res, err := h.Svc.Refresh(ctx, token)
	if err != nil {
		l.Info("refresh_failed", "status", apperr.KindOf(err).Status(), "reason", apperr.PublicMessage(err))
		h.Cookies.Clear(c)
		return err
	}

	h.Cookies.SetAuth(c, res.Session.AccessToken, res.Session.RefreshToken)
	return apperr.OK(c, http.StatusOK, res)
}

// Logout always succeeds and always clears cookies; server-side revocation is
// best-effort.
func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	access := authmw.ExtractToken(c.Request())
	refresh := cookies.RefreshToken(c.Request())
	if refresh == "" {
		var req refreshRequest
		if err := c.Bind(&req); err == nil {
			refresh = req.RefreshToken
		}
	}

	if err := h.Svc.Logout(ctx, access, refresh); err != nil {
		l.Warn("logout_revoke_failed", "error", err)
	}
	h.Cookies.Clear(c)
	l.Info("successful_logout")
	return apperr.OKMessage(c, http.StatusOK, "logged out", nil)
}

func (h *AuthHTTP) Verify(c echo.Context) error {
	p, err := authmw.MustPrincipal(c)
	if err != nil {
		return err
	}
	view, err := h.Svc.Verify(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return apperr.OK(c, http.StatusOK, echo.Map{"user": view})
}

func (h *AuthHTTP) Me(c echo.Context) error {
	p, err := authmw.MustPrincipal(c)
	if err != nil {
		return err
	}
	view, err := h.Svc.Me(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return apperr.OK(c, http.StatusOK, view)
}

func (h *AuthHTTP) UpdateMe(c echo.Context) error {
	p, err := authmw.MustPrincipal(c)
	if err != nil {
		return err
	}
	var req service.UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidBody
	}
	view, err := h.Svc.UpdateMe(c.Request().Context(), p, req)
	if err != nil {
		return err
	}
	return apperr.OK(c, http.StatusOK, view)
}

func (h *AuthHTTP) ForgotPassword(c echo.Context) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil {
		return errInvalidBody
	}
	h.Svc.ForgotPassword(c.Request().Context(), req.Email)
	return apperr.OKMessage(c, http.StatusOK, forgotPasswordMessage, nil)
}

func (h *AuthHTTP) ResetPassword(c echo.Context) error {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return errInvalidBody
	}
	if err := h.Svc.ResetPassword(c.Request().Context(), req.Token, req.Password); err != nil {
		return err
	}
	return apperr.OKMessage(c, http.StatusOK, "password updated", nil)
}

func (h *AuthHTTP) ListUsers(c echo.Context) error {
	page := pagination.FromQuery(c)
	users, total, err := h.Svc.ListUsers(c.Request().Context(), page)
	if err != nil {
		return err
	}
	return apperr.OK(c, http.StatusOK, echo.Map{"users": users, "meta": page.Meta(total)})
}

func (h *AuthHTTP) SetRole(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_set_role")

	admin, err := authmw.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		l.Warn("set_role_failed", "status", 400, "reason", "id not a uuid")
		return apperr.Validation("id not a uuid")
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		return errInvalidBody
	}

	view, err := h.Svc.SetRole(ctx, admin, id, req.Role)
	if err != nil {
		return err
	}
	return apperr.OK(c, http.StatusOK, view)
}
