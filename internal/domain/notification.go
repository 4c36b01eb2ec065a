package domain

import "time"

// NotificationKind identifies the templated message for a lifecycle outcome
type NotificationKind string

const (
	NotificationRenewalSuccess NotificationKind = "renewal_success"
	NotificationPaymentRetry   NotificationKind = "payment_retry"
	NotificationSuspended      NotificationKind = "subscription_suspended"
)

// NotificationRecord is an append-only log entry of a sent notification.
// The (UserID, Kind, ExpiresAtSnapshot) triple is the dedupe key: the
// dispatcher never sends the same triple twice.
type NotificationRecord struct {
	ID                int64             `json:"id"`
	UserID            string            `json:"user_id"`
	Kind              NotificationKind  `json:"kind"`
	ExpiresAtSnapshot time.Time         `json:"expires_at_snapshot"`
	Metadata          map[string]string `json:"metadata"`
	SentAt            time.Time         `json:"sent_at"`
}
