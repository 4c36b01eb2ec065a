package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus represents the payment order state
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentOrder records a single charge attempt, initial or recurrent.
// It is created with status pending before the gateway is called and
// updated exactly once when the gateway responds: synchronously for
// recurring charges, via the notification webhook for initial ones.
type PaymentOrder struct {
	OrderID       string      `json:"order_id"`
	UserID        string      `json:"user_id"`
	PlanID        string      `json:"plan_id"`
	AmountKopecks int64       `json:"amount_kopecks"`
	Status        OrderStatus `json:"status"`
	PaymentID     string      `json:"payment_id"`
	Recurrent     bool        `json:"recurrent"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// NewPaymentOrder creates a pending order for one charge attempt
func NewPaymentOrder(userID, planID string, amountKopecks int64, recurrent bool, now time.Time) *PaymentOrder {
	return &PaymentOrder{
		OrderID:       uuid.New().String(),
		UserID:        userID,
		PlanID:        planID,
		AmountKopecks: amountKopecks,
		Status:        OrderStatusPending,
		Recurrent:     recurrent,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// MarkPaid transitions the order to paid and records the gateway payment ID
func (o *PaymentOrder) MarkPaid(paymentID string, now time.Time) {
	o.Status = OrderStatusPaid
	o.PaymentID = paymentID
	o.UpdatedAt = now
}

// MarkFailed transitions the order to failed. The gateway payment ID is kept
// when the gateway assigned one before declining.
func (o *PaymentOrder) MarkFailed(paymentID string, now time.Time) {
	o.Status = OrderStatusFailed
	if paymentID != "" {
		o.PaymentID = paymentID
	}
	o.UpdatedAt = now
}
