package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"tagihin_dashboard/internal/platform"
)

// State is the tracker's position in the payment lifecycle
type State string

const (
	// StatePendingGeneration: the server has not finished computing the
	// invoice amount; method selection is forbidden until it does.
	StatePendingGeneration State = "pending_generation"
	StateNoMethod          State = "no_method"
	StateMethodSelected    State = "method_selected"
	StateExpired           State = "expired"
	StateRegenerating      State = "regenerating"
)

var (
	ErrRequestInFlight        = errors.New("a create or regenerate call is already in flight")
	ErrInvoiceGenerating      = errors.New("invoice amount is still being generated")
	ErrMethodAlreadySelected  = errors.New("a payment method is already selected; cancel it first")
	ErrNoMethodSelected       = errors.New("no payment method selected")
	ErrNotQRIS                = errors.New("qr refresh is only available for QRIS")
	ErrInvoiceStillGenerating = errors.New("invoice amount still not ready after polling")
)

// BillingAPI is the slice of the platform client the tracker needs
type BillingAPI interface {
	PendingInvoice(ctx context.Context, creds platform.Credentials) (*platform.PendingInvoice, error)
	CreatePayment(ctx context.Context, creds platform.Credentials, invoiceID uint, method platform.PaymentMethod) (*platform.PaymentArtifact, error)
	RegeneratePayment(ctx context.Context, creds platform.Credentials, invoiceID uint) (*platform.PaymentArtifact, error)
	RefreshQR(ctx context.Context, creds platform.Credentials, invoiceID uint) (*platform.QRRefresh, error)
	CancelPayment(ctx context.Context, creds platform.Credentials, invoiceID uint) error
}

// Tracker manages the payment lifecycle of a single pending invoice:
// method selection, the issued artifact and its expiry countdown, and the
// create-vs-regenerate distinction the server contract requires.
// One tracker per invoice per flow; no shared globals.
type Tracker struct {
	mu       sync.Mutex
	creds    platform.Credentials
	invoice  platform.PendingInvoice
	artifact *platform.PaymentArtifact
	method   platform.PaymentMethod
	state    State

	inFlight        bool
	autoCancel      bool
	autoCancelFired bool

	api          BillingAPI
	logger       *zap.Logger
	now          func() time.Time
	pollInterval time.Duration
}

const pollMaxAttempts = 10

// Option configures a Tracker
type Option func(*Tracker)

// WithClock replaces the time source (tests)
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithAutoCancel makes the tracker cancel the method itself when it observes
// expiry, forcing method reselection. At most once per expiry event.
func WithAutoCancel() Option {
	return func(t *Tracker) { t.autoCancel = true }
}

// WithPollInterval replaces the pending-generation poll spacing (tests)
func WithPollInterval(d time.Duration) Option {
	return func(t *Tracker) { t.pollInterval = d }
}

// NewTracker creates a tracker for one invoice. An artifact that is already
// past its expiry resolves to Expired immediately.
func NewTracker(invoice platform.PendingInvoice, creds platform.Credentials, api BillingAPI, logger *zap.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		creds:        creds,
		invoice:      invoice,
		api:          api,
		logger:       logger,
		now:          time.Now,
		pollInterval: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.adoptInvoice(invoice)
	return t
}

// adoptInvoice resolves the state implied by the invoice's fields.
// Caller must not hold the lock.
func (t *Tracker) adoptInvoice(invoice platform.PendingInvoice) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.invoice = invoice
	t.method = invoice.PaymentMethod
	t.artifact = invoice.Artifact

	switch {
	case invoice.Generating():
		t.state = StatePendingGeneration
	case invoice.PaymentMethod == "" || invoice.Artifact == nil:
		t.state = StateNoMethod
		t.method = ""
		t.artifact = nil
	case invoice.Artifact.Expired(t.now()):
		t.state = StateExpired
	default:
		t.state = StateMethodSelected
	}
}

// SelectMethod chooses a payment method. From Expired with the same method
// it calls the regenerate endpoint (create may reject a second creation for
// the same invoice+method); otherwise it calls create. Rejected while a
// create/regenerate is in flight so a double-click cannot issue twice.
func (t *Tracker) SelectMethod(ctx context.Context, method platform.PaymentMethod) error {
	t.mu.Lock()
	if t.inFlight {
		t.mu.Unlock()
		return ErrRequestInFlight
	}
	switch t.state {
	case StatePendingGeneration:
		t.mu.Unlock()
		return ErrInvoiceGenerating
	case StateMethodSelected, StateRegenerating:
		t.mu.Unlock()
		return ErrMethodAlreadySelected
	}
	regenerate := t.state == StateExpired && method == t.method
	prevState := t.state
	t.inFlight = true
	if regenerate {
		t.state = StateRegenerating
	}
	invoiceID := t.invoice.ID
	t.mu.Unlock()

	var artifact *platform.PaymentArtifact
	var err error
	if regenerate {
		artifact, err = t.api.RegeneratePayment(ctx, t.creds, invoiceID)
	} else {
		artifact, err = t.api.CreatePayment(ctx, t.creds, invoiceID, method)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.inFlight = false

	if err != nil {
		t.state = prevState
		t.logger.Warn("payment method selection failed",
			zap.Uint("invoice_id", invoiceID),
			zap.String("method", string(method)),
			zap.Bool("regenerate", regenerate),
			zap.Error(err))
		return err
	}

	t.method = method
	t.artifact = artifact
	t.state = StateMethodSelected
	t.autoCancelFired = false
	t.invoice.PaymentMethod = method
	t.invoice.Artifact = artifact
	return nil
}

// CancelMethod discards the selected method and its artifact, returning to
// NoMethod. Used for explicit "change payment method" and by the auto path
// on expiry.
func (t *Tracker) CancelMethod(ctx context.Context) error {
	t.mu.Lock()
	if t.inFlight {
		t.mu.Unlock()
		return ErrRequestInFlight
	}
	if t.method == "" {
		t.mu.Unlock()
		return ErrNoMethodSelected
	}
	t.inFlight = true
	invoiceID := t.invoice.ID
	t.mu.Unlock()

	err := t.api.CancelPayment(ctx, t.creds, invoiceID)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.inFlight = false

	if err != nil {
		return err
	}

	t.method = ""
	t.artifact = nil
	t.state = StateNoMethod
	t.invoice.PaymentMethod = ""
	t.invoice.Artifact = nil
	return nil
}

// RefreshQR replaces the QR image and expiry without changing method.
// Only valid while QRIS is selected. A refresh that lands on an expired
// artifact clears the Expired state.
func (t *Tracker) RefreshQR(ctx context.Context) error {
	t.mu.Lock()
	if t.inFlight {
		t.mu.Unlock()
		return ErrRequestInFlight
	}
	if t.method != platform.MethodQRIS || t.artifact == nil {
		t.mu.Unlock()
		return ErrNotQRIS
	}
	t.inFlight = true
	invoiceID := t.invoice.ID
	t.mu.Unlock()

	refresh, err := t.api.RefreshQR(ctx, t.creds, invoiceID)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.inFlight = false

	if err != nil {
		return err
	}

	t.artifact.QRImageURL = refresh.QRImageURL
	t.artifact.ExpiresAt = refresh.ExpiresAt
	if t.state == StateExpired || t.state == StateRegenerating {
		t.state = StateMethodSelected
	}
	t.autoCancelFired = false
	return nil
}

// Tick advances the expiry check. Crossing the boundary transitions
// MethodSelected to Expired exactly once; repeated ticks past the boundary
// do not re-fire. Returns true on the transition tick.
func (t *Tracker) Tick(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateMethodSelected || t.artifact == nil {
		return false
	}
	if !t.artifact.Expired(now) {
		return false
	}
	t.state = StateExpired
	t.logger.Info("payment artifact expired",
		zap.Uint("invoice_id", t.invoice.ID),
		zap.String("method", string(t.method)))
	return true
}

// Run drives the 1-second tick loop until ctx is cancelled. The caller owns
// the context; cancelling it is how an unmounted view stops its timer.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if t.Tick(now) && t.autoCancel {
				t.autoCancelExpired(ctx)
			}
		}
	}
}

// autoCancelExpired fires the automatic method-change flow at most once per
// expiry event, and never while a regeneration is in progress.
func (t *Tracker) autoCancelExpired(ctx context.Context) {
	t.mu.Lock()
	if t.state != StateExpired || t.inFlight || t.autoCancelFired {
		t.mu.Unlock()
		return
	}
	t.autoCancelFired = true
	t.mu.Unlock()

	if err := t.CancelMethod(ctx); err != nil {
		t.logger.Warn("auto cancel on expiry failed",
			zap.Uint("invoice_id", t.invoice.ID),
			zap.Error(err))
	}
}

// AwaitInvoiceReady polls the pending invoice while its amount is still
// being generated: bounded attempts with fixed spacing, cancellable through
// ctx. On success the tracker leaves PendingGeneration.
func (t *Tracker) AwaitInvoiceReady(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StatePendingGeneration {
		t.mu.Unlock()
		return nil
	}
	invoiceID := t.invoice.ID
	t.mu.Unlock()

	for attempt := 1; attempt <= pollMaxAttempts; attempt++ {
		invoice, err := t.api.PendingInvoice(ctx, t.creds)
		if err == nil && invoice != nil && invoice.ID == invoiceID && !invoice.Generating() {
			t.adoptInvoice(*invoice)
			return nil
		}
		if err != nil {
			t.logger.Warn("pending invoice poll failed",
				zap.Uint("invoice_id", invoiceID),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.pollInterval):
		}
	}
	return ErrInvoiceStillGenerating
}

// ReloadInvoice refetches the invoice once and re-resolves state
func (t *Tracker) ReloadInvoice(ctx context.Context) error {
	invoice, err := t.api.PendingInvoice(ctx, t.creds)
	if err != nil {
		return err
	}
	if invoice == nil {
		return nil
	}
	t.mu.Lock()
	sameInvoice := invoice.ID == t.invoice.ID
	t.mu.Unlock()
	if sameInvoice {
		t.adoptInvoice(*invoice)
	}
	return nil
}

// SecondsRemaining is the whole seconds until artifact expiry, floored at 0
func (t *Tracker) SecondsRemaining(now time.Time) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.secondsRemainingLocked(now)
}

func (t *Tracker) secondsRemainingLocked(now time.Time) int64 {
	if t.artifact == nil {
		return 0
	}
	remaining := t.artifact.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int64(remaining / time.Second)
}

// View is the derived render state of the tracker at one instant
type View struct {
	State            State                     `json:"state"`
	Invoice          platform.PendingInvoice   `json:"invoice"`
	Artifact         *platform.PaymentArtifact `json:"artifact,omitempty"`
	Method           platform.PaymentMethod    `json:"method,omitempty"`
	SecondsRemaining int64                     `json:"seconds_remaining"`
	PayEnabled       bool                      `json:"pay_enabled"`
	CanSelectMethod  bool                      `json:"can_select_method"`
	CanRefreshQR     bool                      `json:"can_refresh_qr"`
	Generating       bool                      `json:"generating"`
	InFlight         bool                      `json:"in_flight"`
}

// View computes the render state. At zero seconds remaining the pay
// affordance is disabled; only regenerate/change-method remain.
func (t *Tracker) View(now time.Time) View {
	t.mu.Lock()
	defer t.mu.Unlock()

	seconds := t.secondsRemainingLocked(now)
	v := View{
		State:            t.state,
		Invoice:          t.invoice,
		Method:           t.method,
		SecondsRemaining: seconds,
		Generating:       t.state == StatePendingGeneration,
		InFlight:         t.inFlight,
	}
	if t.artifact != nil {
		a := *t.artifact
		v.Artifact = &a
	}
	v.PayEnabled = t.state == StateMethodSelected && seconds > 0 && !t.inFlight
	v.CanSelectMethod = (t.state == StateNoMethod || t.state == StateExpired) && !t.inFlight
	v.CanRefreshQR = t.method == platform.MethodQRIS && t.artifact != nil && !t.inFlight
	return v
}
