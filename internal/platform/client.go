package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// callTimeout bounds the total elapsed time of one logical call,
	// retries and backoff waits included.
	callTimeout = 30 * time.Second

	// maxRetries is the number of additional attempts after the first one
	maxRetries = 3

	suspendedMarker = "Account suspended"
)

// SuspensionPublisher receives suspension signals detected by the client.
// There is exactly one subscriber per session: its session store.
type SuspensionPublisher interface {
	PublishSuspension(sessionID string, sig SuspensionSignal)
}

// UnauthorizedHook is invoked when an authenticated request comes back 401,
// so the session layer can drop the stored credential.
type UnauthorizedHook func(ctx context.Context, sessionID string)

// Client talks to the platform REST API on behalf of dashboard sessions
type Client struct {
	baseURL        string
	httpClient     *http.Client
	logger         *zap.Logger
	publisher      SuspensionPublisher
	onUnauthorized UnauthorizedHook
	retryDelay     func(attempt int) time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithPublisher wires the suspension hub
func WithPublisher(p SuspensionPublisher) Option {
	return func(c *Client) { c.publisher = p }
}

// WithUnauthorizedHook wires the credential-invalidation callback
func WithUnauthorizedHook(h UnauthorizedHook) Option {
	return func(c *Client) { c.onUnauthorized = h }
}

// WithHTTPClient replaces the underlying transport
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithRetryDelay replaces the backoff schedule (tests)
func WithRetryDelay(f func(attempt int) time.Duration) Option {
	return func(c *Client) { c.retryDelay = f }
}

// NewClient creates a platform API client
func NewClient(baseURL string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		logger:     logger,
		retryDelay: func(attempt int) time.Duration {
			return time.Duration(attempt) * time.Second
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login exchanges credentials for a bearer token and the principal
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, Credentials{}, http.MethodPost, "/auth/login", LoginRequest{Email: email, Password: password}, nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates a new tenant account. New principals are never suspended.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, Credentials{}, http.MethodPost, "/auth/register", req, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me fetches the current principal
func (c *Client) Me(ctx context.Context, creds Credentials) (*Principal, error) {
	var out Principal
	if err := c.do(ctx, creds, http.MethodGet, "/auth/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PendingInvoice fetches the latest pending platform invoice, or nil if the
// server has not issued one yet.
func (c *Client) PendingInvoice(ctx context.Context, creds Credentials) (*PendingInvoice, error) {
	var out invoiceListResponse
	if err := c.do(ctx, creds, http.MethodGet, "/billing/invoices?status=pending&limit=1", nil, nil, &out); err != nil {
		return nil, err
	}
	if len(out.Invoices) == 0 {
		return nil, nil
	}
	inv := out.Invoices[0]
	return &inv, nil
}

// CreatePayment selects a payment method for an invoice and issues a fresh
// artifact. This POST is retried like any other call; an X-Idempotency-Key
// (stable across the retries of one logical call) is attached so a
// deduplicating server can reject duplicates. Servers that do not dedupe may
// still see duplicate intent; that risk cannot be closed client-side.
func (c *Client) CreatePayment(ctx context.Context, creds Credentials, invoiceID uint, method PaymentMethod) (*PaymentArtifact, error) {
	var out paymentResponse
	path := fmt.Sprintf("/billing/invoices/%d/create-payment", invoiceID)
	headers := map[string]string{"X-Idempotency-Key": uuid.NewString()}
	body := map[string]string{"payment_method": string(method)}
	if err := c.do(ctx, creds, http.MethodPost, path, body, headers, &out); err != nil {
		return nil, err
	}
	return out.artifact(), nil
}

// RegeneratePayment replaces an expired artifact for the already-selected
// method. The server distinguishes this from create-payment: a second create
// for the same invoice+method may be rejected, regenerate explicitly
// replaces.
func (c *Client) RegeneratePayment(ctx context.Context, creds Credentials, invoiceID uint) (*PaymentArtifact, error) {
	var out paymentResponse
	path := fmt.Sprintf("/billing/invoices/%d/regenerate-payment", invoiceID)
	if err := c.do(ctx, creds, http.MethodPost, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.artifact(), nil
}

// RefreshQR replaces the QR image and expiry without changing method
func (c *Client) RefreshQR(ctx context.Context, creds Credentials, invoiceID uint) (*QRRefresh, error) {
	var out QRRefresh
	path := fmt.Sprintf("/billing/invoices/%d/refresh-qr", invoiceID)
	if err := c.do(ctx, creds, http.MethodPost, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelPayment clears the selected method and its artifact server-side
func (c *Client) CancelPayment(ctx context.Context, creds Credentials, invoiceID uint) error {
	path := fmt.Sprintf("/billing/invoices/%d/cancel-payment", invoiceID)
	return c.do(ctx, creds, http.MethodPost, path, nil, nil, nil)
}

// do runs one logical call: marshal, attach credentials, bounded retry with
// linearly increasing delay, error classification. The 30s budget covers the
// whole loop.
func (c *Client) do(ctx context.Context, creds Credentials, method, path string, body interface{}, headers map[string]string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		payload = data
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return &TimeoutError{Err: ctx.Err()}
			case <-time.After(c.retryDelay(attempt)):
			}
			c.logger.Debug("retrying request",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("attempt", attempt+1))
		}

		err := c.once(ctx, creds, method, path, payload, headers, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
	}

	c.logger.Warn("request failed after retries",
		zap.String("method", method),
		zap.String("path", path),
		zap.Error(lastErr))
	return lastErr
}

func (c *Client) once(ctx context.Context, creds Credentials, method, path string, payload []byte, headers map[string]string, out interface{}) error {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &TimeoutError{Err: err}
		}
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil
	}

	return c.classify(ctx, creds, resp.StatusCode, respBody)
}

// suspensionBody is the marked 403 payload carrying the suspension details
type suspensionBody struct {
	Error   string           `json:"error"`
	Reason  SuspensionReason `json:"reason"`
	Invoice *PendingInvoice  `json:"invoice,omitempty"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) classify(ctx context.Context, creds Credentials, status int, body []byte) error {
	switch status {
	case http.StatusUnauthorized:
		// Unauthenticated calls (login, register) have no credential to drop.
		if creds.SessionID != "" && c.onUnauthorized != nil {
			c.onUnauthorized(ctx, creds.SessionID)
		}
	case http.StatusForbidden:
		var sb suspensionBody
		if err := json.Unmarshal(body, &sb); err == nil && sb.Error == suspendedMarker {
			sig := SuspensionSignal{Reason: sb.Reason, Invoice: sb.Invoice}
			// Unauthenticated calls have no session to notify; publishing
			// would only advance the hub sequence for nobody.
			if c.publisher != nil && creds.SessionID != "" {
				c.publisher.PublishSuspension(creds.SessionID, sig)
			}
			c.logger.Info("suspension signal received",
				zap.String("session_id", creds.SessionID),
				zap.String("reason", string(sig.Reason)))
			return &SuspendedError{Signal: sig}
		}
	}

	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	msg := eb.Error
	if msg == "" {
		msg = eb.Message
	}
	return &HTTPError{StatusCode: status, ServerMessage: msg}
}
