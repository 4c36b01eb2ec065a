package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lim5max/checkly-billing/internal/domain"
	"github.com/lim5max/checkly-billing/internal/domain/ports"
)

// SubscriptionRepository implements ports.SubscriptionRepository on pgx
type SubscriptionRepository struct {
	db ports.DBPort
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db ports.DBPort) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) executor(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.db.GetDB()
}

const subscriptionColumns = `user_id, plan_id, status, auto_renew, rebill_id,
	expires_at, failed_payment_at, retry_count, created_at, updated_at`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.UserID,
		&sub.PlanID,
		&sub.Status,
		&sub.AutoRenew,
		&sub.RebillID,
		&sub.ExpiresAt,
		&sub.FailedPaymentAt,
		&sub.RetryCount,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByUserID retrieves the subscription for a user
func (r *SubscriptionRepository) GetByUserID(ctx context.Context, db ports.DBTX, userID string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1`

	sub, err := scanSubscription(r.executor(db).QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription by user id: %w", err)
	}
	return sub, nil
}

// Update persists all mutable subscription fields
func (r *SubscriptionRepository) Update(ctx context.Context, tx ports.DBTX, sub *domain.Subscription) error {
	query := `
		UPDATE subscriptions
		SET plan_id = $2, status = $3, auto_renew = $4, rebill_id = $5,
		    expires_at = $6, failed_payment_at = $7, retry_count = $8, updated_at = $9
		WHERE user_id = $1`

	tag, err := r.executor(tx).Exec(ctx, query,
		sub.UserID, sub.PlanID, sub.Status, sub.AutoRenew, sub.RebillID,
		sub.ExpiresAt, sub.FailedPaymentAt, sub.RetryCount, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// UpdateWithRetryGuard persists the subscription only while the stored retry
// count matches what the caller read. Two schedulers racing on the same
// subscription make one of them lose the compare-and-set instead of
// double-charging bookkeeping.
func (r *SubscriptionRepository) UpdateWithRetryGuard(ctx context.Context, tx ports.DBTX, sub *domain.Subscription, expectedRetryCount int) error {
	query := `
		UPDATE subscriptions
		SET plan_id = $2, status = $3, auto_renew = $4, rebill_id = $5,
		    expires_at = $6, failed_payment_at = $7, retry_count = $8, updated_at = $9
		WHERE user_id = $1 AND retry_count = $10`

	tag, err := r.executor(tx).Exec(ctx, query,
		sub.UserID, sub.PlanID, sub.Status, sub.AutoRenew, sub.RebillID,
		sub.ExpiresAt, sub.FailedPaymentAt, sub.RetryCount, sub.UpdatedAt,
		expectedRetryCount,
	)
	if err != nil {
		return fmt.Errorf("update subscription with retry guard: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleSubscription
	}
	return nil
}

// ListDueForRenewal lists active auto-renew subscriptions with a stored card
// whose expiry has passed as of asOf
func (r *SubscriptionRepository) ListDueForRenewal(ctx context.Context, db ports.DBTX, asOf time.Time, limit int32) ([]*domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = $1 AND auto_renew AND rebill_id IS NOT NULL AND expires_at <= $2
		ORDER BY expires_at
		LIMIT $3`

	rows, err := r.executor(db).Query(ctx, query, domain.SubscriptionStatusActive, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions due for renewal: %w", err)
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}

	return subs, nil
}
