package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"tagihin_dashboard/internal/format"
	"tagihin_dashboard/internal/platform"
	"tagihin_dashboard/internal/session"
)

const sessionCookieName = "sid"

// AuthHandler handles the login, register and logout flows
type AuthHandler struct {
	sessions *session.Manager
	trackers *TrackerRegistry
	validate *validator.Validate
	logger   *zap.Logger
	secure   bool
}

// NewAuthHandler creates a new AuthHandler. secure controls the cookie
// Secure flag (production).
func NewAuthHandler(sessions *session.Manager, trackers *TrackerRegistry, logger *zap.Logger, secure bool) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		trackers: trackers,
		validate: validator.New(),
		logger:   logger,
		secure:   secure,
	}
}

type loginForm struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
}

type registerForm struct {
	BusinessName string `form:"business_name" validate:"required,min=2,max=100"`
	BusinessType string `form:"business_type" validate:"required,oneof=gym kos salon"`
	Email        string `form:"email" validate:"required,email"`
	Password     string `form:"password" validate:"required,min=8"`
	Phone        string `form:"phone"`
}

// LoginPage renders the login page
func (h *AuthHandler) LoginPage(c echo.Context) error {
	return c.Render(http.StatusOK, "login.html", map[string]interface{}{
		"Error": c.QueryParam("error"),
	})
}

// RegisterPage renders the registration page
func (h *AuthHandler) RegisterPage(c echo.Context) error {
	return c.Render(http.StatusOK, "register.html", map[string]interface{}{
		"Error":        "",
		"BusinessName": "",
		"BusinessType": "",
		"Email":        "",
		"Phone":        "",
	})
}

// HandleLogin authenticates against the platform API and creates the
// browser session. A suspended principal still logs in; the dashboard
// renders the blocking modal immediately because the session manager
// prefetches the pending invoice before returning.
func (h *AuthHandler) HandleLogin(c echo.Context) error {
	var form loginForm
	if err := c.Bind(&form); err != nil {
		return h.renderLoginError(c, "Invalid form submission")
	}
	if err := h.validate.Struct(form); err != nil {
		return h.renderLoginError(c, "Please enter a valid email and password")
	}

	store, err := h.sessions.Login(c.Request().Context(), form.Email, form.Password)
	if err != nil {
		var pe *platform.HTTPError
		if errors.As(err, &pe) && pe.StatusCode == http.StatusUnauthorized {
			return h.renderLoginError(c, "Incorrect email or password")
		}
		return err
	}

	h.setSessionCookie(c, store.Snapshot().SessionID)
	return c.Redirect(http.StatusSeeOther, "/dashboard")
}

// HandleRegister creates a new tenant account. The phone number is
// normalized and validated before any network call.
func (h *AuthHandler) HandleRegister(c echo.Context) error {
	var form registerForm
	if err := c.Bind(&form); err != nil {
		return h.renderRegisterError(c, "Invalid form submission", form)
	}
	if err := h.validate.Struct(form); err != nil {
		return h.renderRegisterError(c, "Please check the highlighted fields", form)
	}

	phone := ""
	if form.Phone != "" {
		phone = format.NormalizePhone(form.Phone)
		if err := format.ValidatePhone(phone); err != nil {
			return h.renderRegisterError(c, err.Error(), form)
		}
	}

	store, err := h.sessions.Register(c.Request().Context(), platform.RegisterRequest{
		BusinessName: form.BusinessName,
		BusinessType: form.BusinessType,
		Email:        form.Email,
		Password:     form.Password,
		Phone:        phone,
	})
	if err != nil {
		var pe *platform.HTTPError
		if errors.As(err, &pe) && pe.StatusCode == http.StatusConflict {
			return h.renderRegisterError(c, "An account with this email already exists", form)
		}
		return err
	}

	h.setSessionCookie(c, store.Snapshot().SessionID)
	return c.Redirect(http.StatusSeeOther, "/dashboard")
}

// HandleLogout clears the session and credential and returns to login
func (h *AuthHandler) HandleLogout(c echo.Context) error {
	if cookie, err := c.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		h.sessions.Logout(c.Request().Context(), cookie.Value)
		h.trackers.DropSession(cookie.Value)
	}

	clearCookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		Path:     "/",
	}
	c.SetCookie(clearCookie)

	return c.Redirect(http.StatusSeeOther, "/login")
}

func (h *AuthHandler) setSessionCookie(c echo.Context, sessionID string) {
	// Cookie lifetime matches the stored credential's 7-day expiry
	expiresIn := 7 * 24 * time.Hour
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		MaxAge:   int(expiresIn.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
	c.SetCookie(cookie)
}

func (h *AuthHandler) renderLoginError(c echo.Context, msg string) error {
	return c.Render(http.StatusUnprocessableEntity, "login.html", map[string]interface{}{
		"Error": msg,
	})
}

func (h *AuthHandler) renderRegisterError(c echo.Context, msg string, form registerForm) error {
	return c.Render(http.StatusUnprocessableEntity, "register.html", map[string]interface{}{
		"Error":        msg,
		"BusinessName": form.BusinessName,
		"BusinessType": form.BusinessType,
		"Email":        form.Email,
		"Phone":        form.Phone,
	})
}
