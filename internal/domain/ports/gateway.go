package ports

import "context"

// InitPaymentRequest starts an initial (card-entry) payment. Recurrent asks
// the gateway to issue a rebill token for future charges; CustomerKey binds
// that token to our user.
type InitPaymentRequest struct {
	OrderID       string
	AmountKopecks int64
	Description   string
	Recurrent     bool
	CustomerKey   string
	ReceiptEmail  string
}

// InitPaymentResult is the gateway's answer to an init call. The user
// completes the payment on PaymentURL; the outcome arrives via webhook.
type InitPaymentResult struct {
	PaymentID  string
	PaymentURL string
	Status     string
}

// ChargeResult is the synchronous outcome of a recurring charge
type ChargeResult struct {
	PaymentID string
	Status    string
	Success   bool
}

// PaymentGateway abstracts the card gateway used for subscription billing.
// Implementations do not impose their own deadline: callers supply the
// request timeout through ctx.
type PaymentGateway interface {
	// InitPayment registers a new payment and returns the hosted payment URL
	InitPayment(ctx context.Context, req InitPaymentRequest) (*InitPaymentResult, error)

	// ChargeRecurring charges a stored card by rebill token. A gateway
	// decline is returned as a typed gateway error, not a result.
	ChargeRecurring(ctx context.Context, rebillID, orderID string, amountKopecks int64, description string) (*ChargeResult, error)

	// VerifyNotificationToken checks a webhook payload's signature token.
	// It returns false on any mismatch and never returns an error.
	VerifyNotificationToken(payload map[string]interface{}) bool
}
