package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func noDelay(int) time.Duration { return 0 }

type recordingPublisher struct {
	mu      sync.Mutex
	signals []struct {
		sessionID string
		sig       SuspensionSignal
	}
}

func (p *recordingPublisher) PublishSuspension(sessionID string, sig SuspensionSignal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, struct {
		sessionID string
		sig       SuspensionSignal
	}{sessionID, sig})
}

func TestClientRetriesServerErrors(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"id":1,"business_name":"Gym Sehat","status":"active"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zap.NewNop(), WithRetryDelay(noDelay))
	p, err := client.Me(context.Background(), Credentials{SessionID: "s1", Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "Gym Sehat", p.BusinessName)
}

func TestClientGivesUpAfterRetryBudget(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zap.NewNop(), WithRetryDelay(noDelay))
	_, err := client.Me(context.Background(), Credentials{SessionID: "s1", Token: "tok"})

	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadGateway, he.StatusCode)
	// first attempt plus three retries
	assert.Equal(t, 4, attempts)
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid payment method"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zap.NewNop(), WithRetryDelay(noDelay))
	_, err := client.CreatePayment(context.Background(), Credentials{SessionID: "s1", Token: "tok"}, 7, PaymentMethod("WRONG"))

	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadRequest, he.StatusCode)
	assert.Equal(t, "invalid payment method", he.ServerMessage)
	assert.Equal(t, 1, attempts)
}

func TestClientNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	client := NewClient(srv.URL, zap.NewNop(), WithRetryDelay(noDelay))
	_, err := client.Me(context.Background(), Credentials{SessionID: "s1", Token: "tok"})

	var ne *NetworkError
	assert.ErrorAs(t, err, &ne)
}

func TestClientUnauthorizedInvokesHook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	var invalidated []string
	hook := func(ctx context.Context, sessionID string) {
		invalidated = append(invalidated, sessionID)
	}

	client := NewClient(srv.URL, zap.NewNop(), WithRetryDelay(noDelay), WithUnauthorizedHook(hook))
	_, err := client.Me(context.Background(), Credentials{SessionID: "s1", Token: "expired"})

	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusUnauthorized, he.StatusCode)
	assert.Equal(t, []string{"s1"}, invalidated)
}

func TestClientUnauthorizedOnLoginSkipsHook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid credentials"}`))
	}))
	defer srv.Close()

	var hookCalls int
	hook := func(ctx context.Context, sessionID string) { hookCalls++ }

	client := NewClient(srv.URL, zap.NewNop(), WithRetryDelay(noDelay), WithUnauthorizedHook(hook))
	_, err := client.Login(context.Background(), "owner@gym.id", "wrong")

	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, 0, hookCalls, "login failures carry no credential to invalidate")
}

func TestClientSuspensionMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"Account suspended","reason":"payment_overdue","invoice":{"id":9,"invoice_number":"INV-009","total_amount":150000}}`))
	}))
	defer srv.Close()

	pub := &recordingPublisher{}
	client := NewClient(srv.URL, zap.NewNop(), WithRetryDelay(noDelay), WithPublisher(pub))
	_, err := client.Me(context.Background(), Credentials{SessionID: "s1", Token: "tok"})

	var se *SuspendedError
	require.ErrorAs(t, err, &se)
	assert.True(t, IsSuspended(err))
	assert.Equal(t, ReasonPaymentOverdue, se.Signal.Reason)

	require.Len(t, pub.signals, 1)
	assert.Equal(t, "s1", pub.signals[0].sessionID)
	require.NotNil(t, pub.signals[0].sig.Invoice)
	assert.Equal(t, int64(150000), pub.signals[0].sig.Invoice.TotalAmount)
}

func TestClientSuspensionMarkerOnLoginSkipsPublish(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"Account suspended","reason":"payment_overdue"}`))
	}))
	defer srv.Close()

	pub := &recordingPublisher{}
	client := NewClient(srv.URL, zap.NewNop(), WithRetryDelay(noDelay), WithPublisher(pub))
	_, err := client.Login(context.Background(), "owner@gym.id", "secret")

	assert.True(t, IsSuspended(err), "the caller still learns about the suspension")
	assert.Empty(t, pub.signals, "unauthenticated calls have no session to notify")
}

func TestClientPlainForbiddenIsNotSuspension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"insufficient role"}`))
	}))
	defer srv.Close()

	pub := &recordingPublisher{}
	client := NewClient(srv.URL, zap.NewNop(), WithRetryDelay(noDelay), WithPublisher(pub))
	_, err := client.Me(context.Background(), Credentials{SessionID: "s1", Token: "tok"})

	assert.False(t, IsSuspended(err))
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusForbidden, he.StatusCode)
	assert.Empty(t, pub.signals)
}

func TestClientPendingInvoiceEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"invoices":[]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zap.NewNop(), WithRetryDelay(noDelay))
	inv, err := client.PendingInvoice(context.Background(), Credentials{SessionID: "s1", Token: "tok"})
	require.NoError(t, err)
	assert.Nil(t, inv)
}

func TestClientIdempotencyKeyStableAcrossRetries(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("X-Idempotency-Key"))
		if len(keys) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"payment_method":"BCA_VA","va_number":"1234567890","expired_time":"2026-09-01T12:00:00Z"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zap.NewNop(), WithRetryDelay(noDelay))
	artifact, err := client.CreatePayment(context.Background(), Credentials{SessionID: "s1", Token: "tok"}, 9, MethodBCAVA)
	require.NoError(t, err)

	assert.Equal(t, MethodBCAVA, artifact.Kind)
	assert.Equal(t, "1234567890", artifact.VANumber)
	require.Len(t, keys, 2)
	assert.NotEmpty(t, keys[0])
	assert.Equal(t, keys[0], keys[1], "retries of one logical call must share the idempotency key")
}

func TestClientCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(srv.URL, zap.NewNop(), WithRetryDelay(func(int) time.Duration { return time.Minute }))
	_, err := client.Me(ctx, Credentials{SessionID: "s1", Token: "tok"})
	assert.Error(t, err)
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "network", err: &NetworkError{Err: errors.New("refused")}, want: true},
		{name: "timeout", err: &TimeoutError{Err: context.DeadlineExceeded}, want: true},
		{name: "500", err: &HTTPError{StatusCode: 500}, want: true},
		{name: "503", err: &HTTPError{StatusCode: 503}, want: true},
		{name: "408", err: &HTTPError{StatusCode: 408}, want: true},
		{name: "429", err: &HTTPError{StatusCode: 429}, want: true},
		{name: "400", err: &HTTPError{StatusCode: 400}, want: false},
		{name: "401", err: &HTTPError{StatusCode: 401}, want: false},
		{name: "404", err: &HTTPError{StatusCode: 404}, want: false},
		{name: "suspended", err: &SuspendedError{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}
