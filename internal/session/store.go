package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tagihin_dashboard/internal/platform"
)

// State is the session store's position in its state machine
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateSuspended       State = "suspended"
)

// PlatformAPI is the slice of the platform client the session layer needs
type PlatformAPI interface {
	Login(ctx context.Context, email, password string) (*platform.AuthResponse, error)
	Register(ctx context.Context, req platform.RegisterRequest) (*platform.AuthResponse, error)
	Me(ctx context.Context, creds platform.Credentials) (*platform.Principal, error)
	PendingInvoice(ctx context.Context, creds platform.Credentials) (*platform.PendingInvoice, error)
}

// Store holds the authenticated principal and the live suspension signal for
// one browser session. It is the single subscriber of that session's
// suspension channel.
type Store struct {
	mu         sync.RWMutex
	sessionID  string
	token      string
	state      State
	principal  *platform.Principal
	suspension *platform.SuspensionSignal
	lastSeq    uint64

	api    PlatformAPI
	hub    *SuspensionHub
	logger *zap.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func newStore(sessionID, token string, principal *platform.Principal, api PlatformAPI, hub *SuspensionHub, logger *zap.Logger) *Store {
	s := &Store{
		sessionID: sessionID,
		token:     token,
		state:     StateAuthenticated,
		principal: principal,
		api:       api,
		hub:       hub,
		logger:    logger,
		done:      make(chan struct{}),
	}
	if principal != nil && principal.Status == platform.StatusSuspended {
		s.state = StateSuspended
	}

	ch := hub.Subscribe(sessionID)
	go s.listen(ch)

	return s
}

// listen consumes the suspension channel until the store is closed.
// Signals arrive in emission order; applySignal enforces last-write-wins.
func (s *Store) listen(ch chan platform.SuspensionSignal) {
	for {
		select {
		case <-s.done:
			s.hub.Unsubscribe(s.sessionID, ch)
			return
		case sig, ok := <-ch:
			if !ok {
				return
			}
			s.applySignal(sig)
		}
	}
}

// applySignal overwrites the current suspension state unless the signal is
// older than one already applied (stale fetch losing to a newer broadcast).
func (s *Store) applySignal(sig platform.SuspensionSignal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sig.Seq < s.lastSeq {
		s.logger.Debug("rejecting stale suspension signal",
			zap.String("session_id", s.sessionID),
			zap.Uint64("seq", sig.Seq),
			zap.Uint64("last_seq", s.lastSeq))
		return
	}

	s.lastSeq = sig.Seq
	s.suspension = &sig
	s.state = StateSuspended
	if s.principal != nil {
		s.principal.Status = platform.StatusSuspended
	}
}

// populateSuspension performs the bounded invoice fetch for a suspended
// principal. "No invoice yet" is a valid transient: the signal is applied
// with a nil invoice and a later re-check or broadcast fills it in. The
// fetch result is stamped with the sequence observed before the fetch
// started, so a broadcast that lands mid-fetch wins.
func (s *Store) populateSuspension(ctx context.Context) {
	seqBefore := s.hub.Seq()

	invoice, err := s.api.PendingInvoice(ctx, s.Credentials())
	if err != nil {
		if platform.IsSuspended(err) {
			// The broadcast path already delivered the signal.
			return
		}
		// Keep whatever signal is already applied. A transient fetch
		// failure must not blank out invoice data the modal still needs.
		s.logger.Warn("failed to fetch pending invoice for suspended account",
			zap.String("session_id", s.sessionID),
			zap.Error(err))
		return
	}

	s.mu.RLock()
	principal := s.principal
	s.mu.RUnlock()

	s.applySignal(platform.SuspensionSignal{
		Reason:  deriveReason(principal, invoice),
		Invoice: invoice,
		Seq:     seqBefore,
	})
}

func deriveReason(p *platform.Principal, invoice *platform.PendingInvoice) platform.SuspensionReason {
	if p != nil && p.TrialEndsAt != nil && !p.TrialEndsAt.After(time.Now()) {
		return platform.ReasonTrialExpired
	}
	if invoice != nil {
		return platform.ReasonPaymentOverdue
	}
	return platform.ReasonAccountSuspended
}

// RefreshSuspendedData re-runs the invoice fetch. Idempotent; a no-op unless
// the session is suspended. Used for manual refresh and for polling while
// the invoice amount is still being generated.
func (s *Store) RefreshSuspendedData(ctx context.Context) {
	s.mu.RLock()
	suspended := s.state == StateSuspended
	s.mu.RUnlock()
	if !suspended {
		return
	}
	s.populateSuspension(ctx)
}

// Credentials returns what the platform client needs to call on behalf of
// this session
func (s *Store) Credentials() platform.Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return platform.Credentials{SessionID: s.sessionID, Token: s.token}
}

// Snapshot is a point-in-time copy of the session state for rendering
type Snapshot struct {
	SessionID  string
	State      State
	Principal  *platform.Principal
	Suspension *platform.SuspensionSignal
}

// Snapshot copies the current state. The copies are safe to read after the
// store moves on.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{SessionID: s.sessionID, State: s.state}
	if s.principal != nil {
		p := *s.principal
		snap.Principal = &p
	}
	if s.suspension != nil {
		sig := *s.suspension
		snap.Suspension = &sig
	}
	return snap
}

func (s *Store) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Manager maps browser session ids to their stores and owns the
// login/register/logout/check-session operations.
type Manager struct {
	mu     sync.Mutex
	stores map[string]*Store

	api    PlatformAPI
	hub    *SuspensionHub
	creds  CredentialStore
	logger *zap.Logger
}

// NewManager creates a session manager
func NewManager(api PlatformAPI, hub *SuspensionHub, creds CredentialStore, logger *zap.Logger) *Manager {
	return &Manager{
		stores: make(map[string]*Store),
		api:    api,
		hub:    hub,
		creds:  creds,
		logger: logger,
	}
}

// Login authenticates against the platform and creates the session. When the
// returned principal is suspended the pending-invoice fetch happens before
// control returns, so the first render already shows the gate.
func (m *Manager) Login(ctx context.Context, email, password string) (*Store, error) {
	resp, err := m.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	if err := m.creds.Save(ctx, sessionID, resp.Token); err != nil {
		return nil, err
	}

	principal := resp.Principal
	store := m.adopt(sessionID, resp.Token, &principal)
	if principal.Status == platform.StatusSuspended {
		store.populateSuspension(ctx)
	}

	m.logger.Info("session created",
		zap.String("session_id", sessionID),
		zap.String("status", string(principal.Status)))
	return store, nil
}

// Register creates a new tenant account and its session. New principals are
// never suspended at creation, so no invoice fetch is needed.
func (m *Manager) Register(ctx context.Context, req platform.RegisterRequest) (*Store, error) {
	resp, err := m.api.Register(ctx, req)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	if err := m.creds.Save(ctx, sessionID, resp.Token); err != nil {
		return nil, err
	}

	principal := resp.Principal
	store := m.adopt(sessionID, resp.Token, &principal)
	return store, nil
}

// Resolve returns the store for a session id, rebuilding it from the stored
// credential if the process restarted (the check-session path). Returns nil
// without error when no credential exists.
func (m *Manager) Resolve(ctx context.Context, sessionID string) (*Store, error) {
	m.mu.Lock()
	if store, ok := m.stores[sessionID]; ok {
		m.mu.Unlock()
		return store, nil
	}
	m.mu.Unlock()

	token, err := m.creds.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, nil
	}

	creds := platform.Credentials{SessionID: sessionID, Token: token}
	principal, err := m.api.Me(ctx, creds)
	if err != nil {
		var se *platform.SuspendedError
		if !errors.As(err, &se) {
			return nil, err
		}
		// Some deployments suspend every endpoint including /auth/me.
		// Build the store from the signal alone; the principal arrives on a
		// later refresh.
		store := m.adopt(sessionID, token, nil)
		store.applySignal(platform.SuspensionSignal{
			Reason:  se.Signal.Reason,
			Invoice: se.Signal.Invoice,
			Seq:     m.hub.Seq(),
		})
		return store, nil
	}

	store := m.adopt(sessionID, token, principal)
	if principal.Status == platform.StatusSuspended {
		store.populateSuspension(ctx)
	}
	return store, nil
}

// Logout clears the credential and drops all session state. Effective
// client-side without a server call (stateless token model).
func (m *Manager) Logout(ctx context.Context, sessionID string) {
	if err := m.creds.Delete(ctx, sessionID); err != nil {
		m.logger.Warn("failed to delete credential",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
	m.drop(sessionID)
}

// InvalidateCredential is the 401 hook: the stored credential is gone or
// rejected, so the session must be torn down and the user sent to login.
func (m *Manager) InvalidateCredential(ctx context.Context, sessionID string) {
	m.logger.Info("credential invalidated by 401", zap.String("session_id", sessionID))
	m.Logout(ctx, sessionID)
}

// Close tears down all sessions (shutdown path)
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, store := range m.stores {
		store.close()
		delete(m.stores, id)
	}
}

func (m *Manager) adopt(sessionID, token string, principal *platform.Principal) *Store {
	store := newStore(sessionID, token, principal, m.api, m.hub, m.logger)
	m.mu.Lock()
	if existing, ok := m.stores[sessionID]; ok {
		// Lost to a concurrent resolve of the same session. Only the mapped
		// store may live on, or logout could never tear down the loser's
		// hub subscription.
		m.mu.Unlock()
		store.close()
		return existing
	}
	m.stores[sessionID] = store
	m.mu.Unlock()
	return store
}

func (m *Manager) drop(sessionID string) {
	m.mu.Lock()
	store, ok := m.stores[sessionID]
	if ok {
		delete(m.stores, sessionID)
	}
	m.mu.Unlock()
	if ok {
		store.close()
	}
}
