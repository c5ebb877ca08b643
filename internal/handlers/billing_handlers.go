package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"tagihin_dashboard/internal/format"
	"tagihin_dashboard/internal/gate"
	"tagihin_dashboard/internal/middleware"
	"tagihin_dashboard/internal/payment"
	"tagihin_dashboard/internal/platform"
	"tagihin_dashboard/internal/session"
)

// BillingHandler serves the billing page and the JSON endpoints behind the
// payment modal and countdown widgets.
type BillingHandler struct {
	api      payment.BillingAPI
	trackers *TrackerRegistry
	logger   *zap.Logger
}

// NewBillingHandler creates a new BillingHandler
func NewBillingHandler(api payment.BillingAPI, trackers *TrackerRegistry, logger *zap.Logger) *BillingHandler {
	return &BillingHandler{api: api, trackers: trackers, logger: logger}
}

// BillingPage renders the billing page with the pending invoice and its
// payment flow, if any.
func (h *BillingHandler) BillingPage(c echo.Context) error {
	store := middleware.SessionFromContext(c)
	snap := store.Snapshot()
	decision := gate.Evaluate(snap, time.Now())

	data := PageData{
		Title:           "Billing",
		ActiveNav:       "billing",
		Breadcrumbs:     []Breadcrumb{{Title: "Home", URL: "/"}, {Title: "Billing", URL: ""}},
		Principal:       snap.Principal,
		Gate:            decision,
		BannerDismissed: bannerDismissed(c),
	}

	tracker, err := h.resolveTracker(c, store, snap)
	if err != nil {
		return err
	}
	if tracker != nil {
		view := tracker.View(time.Now())
		data.Tracker = &view
	}

	return c.Render(http.StatusOK, "billing.html", data)
}

// Status returns the tracker view as JSON. The page polls this endpoint to
// drive the countdown and to pick up server-side transitions. While the
// invoice amount is still being generated the handler refetches it once per
// poll.
func (h *BillingHandler) Status(c echo.Context) error {
	store := middleware.SessionFromContext(c)
	snap := store.Snapshot()
	decision := gate.Evaluate(snap, time.Now())

	tracker, err := h.resolveTracker(c, store, snap)
	if err != nil {
		return err
	}

	resp := map[string]interface{}{
		"gate": decision.Mode,
	}
	if tracker != nil {
		view := tracker.View(time.Now())
		if view.Generating {
			if err := tracker.ReloadInvoice(c.Request().Context()); err == nil {
				view = tracker.View(time.Now())
			}
		}
		resp["tracker"] = view
		resp["countdown"] = format.Countdown(view.SecondsRemaining)
	}
	return c.JSON(http.StatusOK, resp)
}

// SelectMethod chooses BCA_VA or QRIS for the invoice. From an expired
// state with the same method this becomes a regenerate call.
func (h *BillingHandler) SelectMethod(c echo.Context) error {
	method := platform.PaymentMethod(c.FormValue("payment_method"))
	if method != platform.MethodBCAVA && method != platform.MethodQRIS {
		return echo.NewHTTPError(http.StatusBadRequest, "Unknown payment method")
	}

	tracker, err := h.trackerForParam(c)
	if err != nil {
		return err
	}

	if err := tracker.SelectMethod(c.Request().Context(), method); err != nil {
		return trackerError(err)
	}
	return c.JSON(http.StatusOK, tracker.View(time.Now()))
}

// CancelMethod clears the selected method so another can be chosen
func (h *BillingHandler) CancelMethod(c echo.Context) error {
	tracker, err := h.trackerForParam(c)
	if err != nil {
		return err
	}

	if err := tracker.CancelMethod(c.Request().Context()); err != nil {
		return trackerError(err)
	}
	return c.JSON(http.StatusOK, tracker.View(time.Now()))
}

// RefreshQR re-issues the QR image without changing method
func (h *BillingHandler) RefreshQR(c echo.Context) error {
	tracker, err := h.trackerForParam(c)
	if err != nil {
		return err
	}

	if err := tracker.RefreshQR(c.Request().Context()); err != nil {
		return trackerError(err)
	}
	return c.JSON(http.StatusOK, tracker.View(time.Now()))
}

// Refresh re-fetches the suspended-account data and the invoice. Backs the
// manual refresh action on the suspension modal.
func (h *BillingHandler) Refresh(c echo.Context) error {
	store := middleware.SessionFromContext(c)
	store.RefreshSuspendedData(c.Request().Context())

	snap := store.Snapshot()
	decision := gate.Evaluate(snap, time.Now())

	tracker, err := h.resolveTracker(c, store, snap)
	if err != nil {
		return err
	}

	resp := map[string]interface{}{
		"gate": decision.Mode,
	}
	if tracker != nil {
		if err := tracker.ReloadInvoice(c.Request().Context()); err != nil {
			h.logger.Warn("invoice reload failed", zap.Error(err))
		}
		resp["tracker"] = tracker.View(time.Now())
	}
	return c.JSON(http.StatusOK, resp)
}

// resolveTracker finds the invoice this session should be paying: the one
// attached to the suspension signal when suspended, otherwise the latest
// pending invoice. Returns nil when there is nothing to pay.
func (h *BillingHandler) resolveTracker(c echo.Context, store *session.Store, snap session.Snapshot) (*payment.Tracker, error) {
	if snap.Suspension != nil && snap.Suspension.Invoice != nil {
		return h.trackers.For(store, *snap.Suspension.Invoice), nil
	}

	invoice, err := h.api.PendingInvoice(c.Request().Context(), store.Credentials())
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, nil
	}
	return h.trackers.For(store, *invoice), nil
}

// trackerForParam resolves the tracker for the :id route param
func (h *BillingHandler) trackerForParam(c echo.Context) (*payment.Tracker, error) {
	store := middleware.SessionFromContext(c)

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid invoice id")
	}
	invoiceID := uint(id)

	if tracker := h.trackers.Lookup(store.Snapshot().SessionID, invoiceID); tracker != nil {
		return tracker, nil
	}

	// Tracker not built yet (fresh process or direct API use): fetch and
	// verify the invoice actually belongs to this session's pending set.
	invoice, err := h.api.PendingInvoice(c.Request().Context(), store.Credentials())
	if err != nil {
		return nil, err
	}
	if invoice == nil || invoice.ID != invoiceID {
		return nil, echo.NewHTTPError(http.StatusNotFound, "No such pending invoice")
	}
	return h.trackers.For(store, *invoice), nil
}

// trackerError maps tracker state errors onto HTTP statuses for the JSON API
func trackerError(err error) error {
	switch {
	case errors.Is(err, payment.ErrRequestInFlight),
		errors.Is(err, payment.ErrMethodAlreadySelected),
		errors.Is(err, payment.ErrInvoiceGenerating):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, payment.ErrNoMethodSelected),
		errors.Is(err, payment.ErrNotQRIS):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return err
	}
}
