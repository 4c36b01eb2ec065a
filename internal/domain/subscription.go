package domain

import (
	"time"

	"github.com/lim5max/checkly-billing/pkg/timeutil"
)

// SubscriptionStatus represents the subscription state
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusSuspended SubscriptionStatus = "suspended"
)

// Subscription represents a user's paid plan and its recurring-charge state.
// There is exactly one subscription per user; it is created at signup and
// never deleted. Terminal payment failure moves it to the free plan instead.
type Subscription struct {
	UserID          string             `json:"user_id"`
	PlanID          string             `json:"plan_id"`
	Status          SubscriptionStatus `json:"status"`
	AutoRenew       bool               `json:"auto_renew"`
	RebillID        *string            `json:"rebill_id"`
	ExpiresAt       time.Time          `json:"expires_at"`
	FailedPaymentAt *time.Time         `json:"failed_payment_at"`
	RetryCount      int                `json:"retry_count"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// IsActive returns true if the subscription is currently active
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}

// HasCardOnFile returns true if a rebill token is stored for the subscription
func (s *Subscription) HasCardOnFile() bool {
	return s.RebillID != nil && *s.RebillID != ""
}

// CheckChargeable validates the preconditions for a recurring charge.
// Each unmet precondition returns its own sentinel error so callers can
// report a specific rejection reason without attempting a charge.
func (s *Subscription) CheckChargeable(plan *Plan) error {
	if !s.AutoRenew {
		return ErrAutoRenewDisabled
	}
	if !s.HasCardOnFile() {
		return ErrNoCardOnFile
	}
	if !s.IsActive() {
		return ErrSubscriptionSuspended
	}
	if plan.IsFree() {
		return ErrFreePlan
	}
	return nil
}

// ApplyChargeSuccess records a successful recurring charge: the expiration is
// extended by the plan's duration and all failure bookkeeping is cleared.
// The retry count resets to 0 exactly here and nowhere else.
func (s *Subscription) ApplyChargeSuccess(plan *Plan, now time.Time) {
	base := s.ExpiresAt
	if base.Before(now) {
		base = now
	}
	s.ExpiresAt = timeutil.ToUTC(base.AddDate(0, 0, plan.DurationDays))
	s.Status = SubscriptionStatusActive
	s.FailedPaymentAt = nil
	s.RetryCount = 0
	s.UpdatedAt = now
}

// ApplyChargeFailure records a failed charge attempt
func (s *Subscription) ApplyChargeFailure(now time.Time) {
	s.RetryCount++
	s.FailedPaymentAt = &now
	s.UpdatedAt = now
}

// Suspend downgrades the subscription to the free plan and marks it suspended
func (s *Subscription) Suspend(now time.Time) {
	s.PlanID = FreePlanID
	s.Status = SubscriptionStatusSuspended
	s.UpdatedAt = now
}
