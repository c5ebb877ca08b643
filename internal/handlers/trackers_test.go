package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tagihin_dashboard/internal/platform"
	"tagihin_dashboard/internal/session"
)

type stubPlatform struct{}

func (stubPlatform) Login(ctx context.Context, email, password string) (*platform.AuthResponse, error) {
	return &platform.AuthResponse{
		Token:     "tok",
		Principal: platform.Principal{ID: 1, BusinessName: "Gym Sehat", Status: platform.StatusActive},
	}, nil
}

func (stubPlatform) Register(ctx context.Context, req platform.RegisterRequest) (*platform.AuthResponse, error) {
	return &platform.AuthResponse{Token: "tok", Principal: platform.Principal{ID: 1}}, nil
}

func (stubPlatform) Me(ctx context.Context, creds platform.Credentials) (*platform.Principal, error) {
	return &platform.Principal{ID: 1, Status: platform.StatusActive}, nil
}

func (stubPlatform) PendingInvoice(ctx context.Context, creds platform.Credentials) (*platform.PendingInvoice, error) {
	return nil, nil
}

type stubBilling struct{}

func (stubBilling) PendingInvoice(ctx context.Context, creds platform.Credentials) (*platform.PendingInvoice, error) {
	return nil, nil
}

func (stubBilling) CreatePayment(ctx context.Context, creds platform.Credentials, invoiceID uint, method platform.PaymentMethod) (*platform.PaymentArtifact, error) {
	return &platform.PaymentArtifact{Kind: method, ExpiresAt: time.Now().Add(15 * time.Minute)}, nil
}

func (stubBilling) RegeneratePayment(ctx context.Context, creds platform.Credentials, invoiceID uint) (*platform.PaymentArtifact, error) {
	return &platform.PaymentArtifact{Kind: platform.MethodBCAVA, ExpiresAt: time.Now().Add(15 * time.Minute)}, nil
}

func (stubBilling) RefreshQR(ctx context.Context, creds platform.Credentials, invoiceID uint) (*platform.QRRefresh, error) {
	return &platform.QRRefresh{ExpiresAt: time.Now().Add(15 * time.Minute)}, nil
}

func (stubBilling) CancelPayment(ctx context.Context, creds platform.Credentials, invoiceID uint) error {
	return nil
}

func sessionStore(t *testing.T) *session.Store {
	t.Helper()
	hub := session.NewSuspensionHub(zap.NewNop())
	m := session.NewManager(stubPlatform{}, hub, session.NewMemoryCredentialStore(), zap.NewNop())
	t.Cleanup(m.Close)

	store, err := m.Login(context.Background(), "owner@gym.id", "secret")
	require.NoError(t, err)
	return store
}

func TestRegistryReturnsSameTracker(t *testing.T) {
	reg := NewTrackerRegistry(stubBilling{}, zap.NewNop())
	t.Cleanup(reg.Close)

	store := sessionStore(t)
	invoice := platform.PendingInvoice{ID: 9, TotalAmount: 150000}

	first := reg.For(store, invoice)
	second := reg.For(store, invoice)
	assert.Same(t, first, second)
}

func TestSweepDropsIdleTrackers(t *testing.T) {
	reg := NewTrackerRegistry(stubBilling{}, zap.NewNop())
	t.Cleanup(reg.Close)

	store := sessionStore(t)
	sessionID := store.Snapshot().SessionID
	reg.For(store, platform.PendingInvoice{ID: 9, TotalAmount: 150000})

	// within the idle window the tracker survives
	assert.Equal(t, 0, reg.Sweep(time.Now().Add(time.Hour), 7*24*time.Hour))
	require.NotNil(t, reg.Lookup(sessionID, 9))

	// a session that faded out through the credential TTL gets reclaimed
	assert.Equal(t, 1, reg.Sweep(time.Now().Add(8*24*time.Hour), 7*24*time.Hour))
	assert.Nil(t, reg.Lookup(sessionID, 9))
}

func TestDropSessionStopsAllTrackers(t *testing.T) {
	reg := NewTrackerRegistry(stubBilling{}, zap.NewNop())
	t.Cleanup(reg.Close)

	store := sessionStore(t)
	sessionID := store.Snapshot().SessionID
	reg.For(store, platform.PendingInvoice{ID: 9, TotalAmount: 150000})
	reg.For(store, platform.PendingInvoice{ID: 10, TotalAmount: 99000})

	reg.DropSession(sessionID)
	assert.Nil(t, reg.Lookup(sessionID, 9))
	assert.Nil(t, reg.Lookup(sessionID, 10))
}
