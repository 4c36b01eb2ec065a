package ports

import (
	"context"
	"time"

	"github.com/lim5max/checkly-billing/internal/domain"
)

// SubscriptionRepository persists subscription rows keyed by user
type SubscriptionRepository interface {
	GetByUserID(ctx context.Context, db DBTX, userID string) (*domain.Subscription, error)

	// Update persists all mutable subscription fields unconditionally
	Update(ctx context.Context, tx DBTX, sub *domain.Subscription) error

	// UpdateWithRetryGuard persists the subscription only if the stored
	// retry count still equals expectedRetryCount. A lost compare-and-set
	// returns domain.ErrStaleSubscription; it is the only guard against
	// concurrent charges of the same subscription.
	UpdateWithRetryGuard(ctx context.Context, tx DBTX, sub *domain.Subscription, expectedRetryCount int) error

	// ListDueForRenewal lists active auto-renew subscriptions whose expiry
	// is at or before asOf, capped at limit
	ListDueForRenewal(ctx context.Context, db DBTX, asOf time.Time, limit int32) ([]*domain.Subscription, error)
}

// OrderRepository persists payment orders, one row per charge attempt
type OrderRepository interface {
	Create(ctx context.Context, tx DBTX, order *domain.PaymentOrder) error
	GetByOrderID(ctx context.Context, db DBTX, orderID string) (*domain.PaymentOrder, error)
	Update(ctx context.Context, tx DBTX, order *domain.PaymentOrder) error
}

// PlanRepository reads the immutable plan catalog
type PlanRepository interface {
	GetByID(ctx context.Context, db DBTX, id string) (*domain.Plan, error)
}

// UserRepository reads users and mutates their credit balance
type UserRepository interface {
	GetByID(ctx context.Context, db DBTX, id string) (*domain.User, error)

	// CreditBalance adds credits to the user's balance and appends a ledger
	// entry with a negative used amount representing the top-up
	CreditBalance(ctx context.Context, tx DBTX, userID string, credits int, comment string) error

	// ZeroBalance clears the balance on suspension
	ZeroBalance(ctx context.Context, tx DBTX, userID string) error
}

// NotificationLogRepository is the append-only store behind dispatcher dedupe
type NotificationLogRepository interface {
	// Exists reports whether a (user, kind, expiry-snapshot) notification
	// was already sent
	Exists(ctx context.Context, db DBTX, userID string, kind domain.NotificationKind, expiresAt time.Time) (bool, error)

	Insert(ctx context.Context, tx DBTX, rec *domain.NotificationRecord) error
}
