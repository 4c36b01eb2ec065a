package domain

import "errors"

// Precondition errors returned before any gateway call is made. Each one
// carries a distinct rejection reason for the invoking scheduler.
var (
	ErrAutoRenewDisabled     = errors.New("auto-renew is disabled")
	ErrNoCardOnFile          = errors.New("no card on file")
	ErrSubscriptionSuspended = errors.New("subscription is suspended")
	ErrFreePlan              = errors.New("plan is free, nothing to charge")

	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrOrderNotFound        = errors.New("payment order not found")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrUserNotFound         = errors.New("user not found")

	// ErrStaleSubscription is returned by the repository when a conditional
	// update loses a compare-and-set race on the retry count.
	ErrStaleSubscription = errors.New("subscription was modified concurrently")
)

// RejectionReason converts a precondition error into the machine-readable
// reason string surfaced to the scheduler. Returns "" for other errors.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrAutoRenewDisabled):
		return "auto_renew_disabled"
	case errors.Is(err, ErrNoCardOnFile):
		return "no_card_on_file"
	case errors.Is(err, ErrSubscriptionSuspended):
		return "subscription_suspended"
	case errors.Is(err, ErrFreePlan):
		return "free_plan"
	default:
		return ""
	}
}

// IsPrecondition reports whether err is a charge precondition failure
func IsPrecondition(err error) bool {
	return RejectionReason(err) != ""
}
