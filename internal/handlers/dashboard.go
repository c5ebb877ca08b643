package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"tagihin_dashboard/internal/gate"
	"tagihin_dashboard/internal/middleware"
)

const bannerCookieName = "trial_banner_dismissed"

// DashboardHandler renders the main dashboard shell
type DashboardHandler struct {
	trackers *TrackerRegistry
	logger   *zap.Logger
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(trackers *TrackerRegistry, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{trackers: trackers, logger: logger}
}

// Dashboard renders the dashboard page. A suspended session gets the page
// blocked behind the payment modal, wired to the suspension invoice's
// tracker; a trial within its last week gets the countdown banner.
func (h *DashboardHandler) Dashboard(c echo.Context) error {
	store := middleware.SessionFromContext(c)
	snap := store.Snapshot()
	decision := gate.Evaluate(snap, time.Now())

	data := PageData{
		Title:           "Dashboard",
		ActiveNav:       "dashboard",
		Breadcrumbs:     []Breadcrumb{{Title: "Home", URL: "/"}, {Title: "Dashboard", URL: ""}},
		Principal:       snap.Principal,
		Gate:            decision,
		BannerDismissed: bannerDismissed(c),
	}

	if decision.Blocked() && decision.Suspension != nil && decision.Suspension.Invoice != nil {
		tracker := h.trackers.For(store, *decision.Suspension.Invoice)
		view := tracker.View(time.Now())
		data.Tracker = &view
	}

	return c.Render(http.StatusOK, "dashboard.html", data)
}

// DismissBanner hides the trial banner for a day. The banner is
// dismissible; the suspension modal is not.
func (h *DashboardHandler) DismissBanner(c echo.Context) error {
	cookie := &http.Cookie{
		Name:     bannerCookieName,
		Value:    "1",
		MaxAge:   int((24 * time.Hour).Seconds()),
		HttpOnly: true,
		Path:     "/",
	}
	c.SetCookie(cookie)
	return c.NoContent(http.StatusNoContent)
}

func bannerDismissed(c echo.Context) bool {
	cookie, err := c.Cookie(bannerCookieName)
	return err == nil && cookie.Value == "1"
}
