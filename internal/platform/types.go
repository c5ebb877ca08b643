package platform

import (
	"time"
)

// AccountStatus represents the billing standing of a tenant account
type AccountStatus string

const (
	StatusTrial     AccountStatus = "trial"
	StatusActive    AccountStatus = "active"
	StatusOverdue   AccountStatus = "overdue"
	StatusSuspended AccountStatus = "suspended"
)

// Principal represents the authenticated tenant account
type Principal struct {
	ID           uint          `json:"id"`
	BusinessName string        `json:"business_name"`
	BusinessType string        `json:"business_type"` // e.g., "gym", "kos", "salon"
	Email        string        `json:"email"`
	Phone        string        `json:"phone,omitempty"`
	Role         string        `json:"role"`
	Status       AccountStatus `json:"status"`
	TrialEndsAt  *time.Time    `json:"trial_ends_at,omitempty"`
	MonthlyBill  int64         `json:"monthly_bill"`
}

// PaymentMethod identifies how a platform invoice is paid
type PaymentMethod string

const (
	MethodBCAVA PaymentMethod = "BCA_VA"
	MethodQRIS  PaymentMethod = "QRIS"
)

// PaymentArtifact is the payable instrument issued for an invoice:
// a virtual account number or a scannable QR image, with a fixed expiry.
// Which fields are set depends on Kind.
type PaymentArtifact struct {
	Kind        PaymentMethod `json:"kind"`
	VANumber    string        `json:"va_number,omitempty"`
	CheckoutURL string        `json:"checkout_url,omitempty"`
	QRImageURL  string        `json:"qr_url,omitempty"`
	ExpiresAt   time.Time     `json:"expired_time"`
}

// Expired reports whether the artifact may no longer be presented as payable
func (a PaymentArtifact) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// PendingInvoice is the platform's own subscription invoice awaiting payment.
// TotalAmount may be 0 transiently while the server is still computing it;
// callers must treat that as "still generating", not a zero-amount invoice.
type PendingInvoice struct {
	ID            uint             `json:"id"`
	InvoiceNumber string           `json:"invoice_number"`
	TotalAmount   int64            `json:"total_amount"`
	DueDate       time.Time        `json:"due_date"`
	PaymentMethod PaymentMethod    `json:"payment_method_selected,omitempty"`
	Artifact      *PaymentArtifact `json:"artifact,omitempty"`
}

// Generating reports whether the server has not finished computing the amount
func (i PendingInvoice) Generating() bool {
	return i.TotalAmount == 0
}

// SuspensionReason explains why the account was suspended
type SuspensionReason string

const (
	ReasonTrialExpired     SuspensionReason = "trial_expired"
	ReasonPaymentOverdue   SuspensionReason = "payment_overdue"
	ReasonAccountSuspended SuspensionReason = "account_suspended"
)

// SuspensionSignal is the normalized payload of a server-declared suspension,
// built either from a proactive fetch or from a marked 403 response.
// Seq is assigned at publish time by the suspension hub; later signals carry
// higher numbers so stale writes can be rejected.
type SuspensionSignal struct {
	Reason  SuspensionReason `json:"reason"`
	Invoice *PendingInvoice  `json:"invoice,omitempty"`
	Seq     uint64           `json:"-"`
}

// Credentials identifies the browser session a request is made on behalf of
type Credentials struct {
	SessionID string
	Token     string
}

// LoginRequest is the payload for POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the payload for POST /auth/register
type RegisterRequest struct {
	BusinessName string `json:"business_name"`
	BusinessType string `json:"business_type"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Phone        string `json:"phone,omitempty"`
}

// AuthResponse is returned by login and register
type AuthResponse struct {
	Token     string    `json:"token"`
	Principal Principal `json:"principal"`
}

// QRRefresh is returned by POST /billing/invoices/{id}/refresh-qr
type QRRefresh struct {
	QRImageURL string    `json:"qr_url"`
	ExpiresAt  time.Time `json:"expired_time"`
}

type invoiceListResponse struct {
	Invoices []PendingInvoice `json:"invoices"`
}

// paymentResponse covers both create-payment and regenerate-payment bodies
type paymentResponse struct {
	PaymentMethod PaymentMethod `json:"payment_method"`
	VANumber      string        `json:"va_number,omitempty"`
	CheckoutURL   string        `json:"checkout_url,omitempty"`
	QRImageURL    string        `json:"qr_url,omitempty"`
	ExpiresAt     time.Time     `json:"expired_time"`
}

func (r paymentResponse) artifact() *PaymentArtifact {
	return &PaymentArtifact{
		Kind:        r.PaymentMethod,
		VANumber:    r.VANumber,
		CheckoutURL: r.CheckoutURL,
		QRImageURL:  r.QRImageURL,
		ExpiresAt:   r.ExpiresAt,
	}
}
