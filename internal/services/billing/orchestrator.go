package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lim5max/checkly-billing/internal/domain"
	"github.com/lim5max/checkly-billing/internal/domain/ports"
	"github.com/lim5max/checkly-billing/internal/services/notification"
	"github.com/lim5max/checkly-billing/pkg/observability"
	"github.com/lim5max/checkly-billing/pkg/resilience"
	"github.com/lim5max/checkly-billing/pkg/timeutil"
)

// Notifier dispatches lifecycle notifications. Implementations must swallow
// their own failures; the orchestrator does not check them.
type Notifier interface {
	Notify(ctx context.Context, kind domain.NotificationKind, user *domain.User, nc notification.Context)
}

// ChargeOutcome is the orchestrator's answer to one charge invocation
type ChargeOutcome struct {
	Success      bool
	OrderID      string
	PaymentID    string
	NewExpiresAt time.Time
	Escalation   *domain.EscalationDecision
}

// BatchError describes one failed subscription within a renewal batch
type BatchError struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

// BatchResult summarizes one renewal batch run
type BatchResult struct {
	Processed int          `json:"processed"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Rejected  int          `json:"rejected"`
	Errors    []BatchError `json:"errors,omitempty"`
}

// Orchestrator drives the recurring-charge lifecycle of a subscription:
// eligibility, the gateway charge, and the escalation of failures up to
// suspension. One invocation handles exactly one subscription; concurrent
// invocations for different subscriptions share no state, and same-
// subscription races are left to the repository's compare-and-set guard.
type Orchestrator struct {
	db       ports.DBPort
	subs     ports.SubscriptionRepository
	orders   ports.OrderRepository
	plans    ports.PlanRepository
	users    ports.UserRepository
	gateway  ports.PaymentGateway
	notifier Notifier
	policy   domain.EscalationPolicy
	timeouts *resilience.TimeoutConfig
	logger   ports.Logger
}

// NewOrchestrator creates a new charge orchestrator
func NewOrchestrator(
	db ports.DBPort,
	subs ports.SubscriptionRepository,
	orders ports.OrderRepository,
	plans ports.PlanRepository,
	users ports.UserRepository,
	gateway ports.PaymentGateway,
	notifier Notifier,
	policy domain.EscalationPolicy,
	timeouts *resilience.TimeoutConfig,
	logger ports.Logger,
) *Orchestrator {
	if policy == nil {
		policy = domain.TwoStrikePolicy
	}
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &Orchestrator{
		db:       db,
		subs:     subs,
		orders:   orders,
		plans:    plans,
		users:    users,
		gateway:  gateway,
		notifier: notifier,
		policy:   policy,
		timeouts: timeouts,
		logger:   logger,
	}
}

// ChargeSubscription attempts one recurring charge for the user's
// subscription. Precondition failures return a domain sentinel error
// without touching the gateway. A gateway failure escalates through the
// policy and is returned alongside the decided outcome.
func (o *Orchestrator) ChargeSubscription(ctx context.Context, userID string) (*ChargeOutcome, error) {
	sub, err := o.subs.GetByUserID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	user, err := o.users.GetByID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	plan, err := o.plans.GetByID(ctx, nil, sub.PlanID)
	if err != nil {
		return nil, err
	}

	if err := sub.CheckChargeable(plan); err != nil {
		observability.RecordChargeAttempt(plan.ID, "rejected")
		o.logger.Info("charge rejected by precondition",
			ports.String("user_id", userID),
			ports.String("reason", domain.RejectionReason(err)))
		return nil, err
	}

	// The retry count read here anchors both the escalation decision and
	// the compare-and-set persistence below.
	expectedRetry := sub.RetryCount

	order := domain.NewPaymentOrder(userID, plan.ID, plan.PriceKopecks(), true, timeutil.Now())
	if err := o.orders.Create(ctx, nil, order); err != nil {
		return nil, fmt.Errorf("create payment order: %w", err)
	}

	o.logger.Info("charging subscription",
		ports.String("user_id", userID),
		ports.String("order_id", order.OrderID),
		ports.String("plan_id", plan.ID),
		ports.Int64("amount_kopecks", order.AmountKopecks),
		ports.Int("retry_count", expectedRetry))

	gwCtx, cancel := o.timeouts.GatewayContext(ctx)
	defer cancel()

	description := fmt.Sprintf("Продление подписки «%s»", plan.Name)
	result, gwErr := o.gateway.ChargeRecurring(gwCtx, *sub.RebillID, order.OrderID, order.AmountKopecks, description)

	now := timeutil.Now()
	if gwErr != nil {
		// A timeout surfaces here as a gateway error and counts as a
		// failed attempt like any other.
		return o.handleChargeFailure(ctx, sub, user, plan, order, expectedRetry, now, gwErr)
	}

	return o.handleChargeSuccess(ctx, sub, user, plan, order, expectedRetry, now, result)
}

func (o *Orchestrator) handleChargeSuccess(
	ctx context.Context,
	sub *domain.Subscription,
	user *domain.User,
	plan *domain.Plan,
	order *domain.PaymentOrder,
	expectedRetry int,
	now time.Time,
	result *ports.ChargeResult,
) (*ChargeOutcome, error) {
	order.MarkPaid(result.PaymentID, now)
	sub.ApplyChargeSuccess(plan, now)

	err := o.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := o.orders.Update(ctx, tx, order); err != nil {
			return err
		}
		if err := o.subs.UpdateWithRetryGuard(ctx, tx, sub, expectedRetry); err != nil {
			return err
		}
		comment := fmt.Sprintf("Продление тарифа «%s», заказ %s", plan.Name, order.OrderID)
		return o.users.CreditBalance(ctx, tx, user.ID, plan.CheckCredits, comment)
	})
	if err != nil {
		// The money has been taken; reporting failure here would make the
		// scheduler charge again. Log loudly for manual reconciliation and
		// answer success.
		o.logger.Error("CHARGE SUCCEEDED BUT PERSISTENCE FAILED, manual reconciliation required",
			ports.String("user_id", user.ID),
			ports.String("order_id", order.OrderID),
			ports.String("payment_id", result.PaymentID),
			ports.Int64("amount_kopecks", order.AmountKopecks),
			ports.Err(err))
	}

	observability.RecordChargeAttempt(plan.ID, "succeeded")
	observability.RecordChargedAmount(plan.ID, order.AmountKopecks)

	o.notifier.Notify(ctx, domain.NotificationRenewalSuccess, user, notification.Context{
		PlanName:     plan.Name,
		ExpiresAt:    sub.ExpiresAt,
		AmountRubles: plan.Price.StringFixed(2),
		Credits:      plan.CheckCredits,
	})

	o.logger.Info("subscription charged",
		ports.String("user_id", user.ID),
		ports.String("order_id", order.OrderID),
		ports.String("payment_id", result.PaymentID),
		ports.String("new_expires_at", sub.ExpiresAt.Format(time.RFC3339)))

	return &ChargeOutcome{
		Success:      true,
		OrderID:      order.OrderID,
		PaymentID:    result.PaymentID,
		NewExpiresAt: sub.ExpiresAt,
	}, nil
}

func (o *Orchestrator) handleChargeFailure(
	ctx context.Context,
	sub *domain.Subscription,
	user *domain.User,
	plan *domain.Plan,
	order *domain.PaymentOrder,
	expectedRetry int,
	now time.Time,
	gwErr error,
) (*ChargeOutcome, error) {
	decision := o.policy(expectedRetry)

	order.MarkFailed("", now)
	sub.ApplyChargeFailure(now)
	if decision.Action == domain.EscalationSuspend {
		sub.Suspend(now)
	}

	err := o.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := o.orders.Update(ctx, tx, order); err != nil {
			return err
		}
		if err := o.subs.UpdateWithRetryGuard(ctx, tx, sub, expectedRetry); err != nil {
			return err
		}
		if decision.Action == domain.EscalationSuspend {
			return o.users.ZeroBalance(ctx, tx, user.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("persist charge failure: %w (charge error: %s)", err, gwErr.Error())
	}

	observability.RecordChargeAttempt(plan.ID, "failed")
	observability.RecordEscalation(string(decision.Action))

	switch decision.Action {
	case domain.EscalationSuspend:
		o.notifier.Notify(ctx, domain.NotificationSuspended, user, notification.Context{
			PlanName:  plan.Name,
			ExpiresAt: sub.ExpiresAt,
		})
		o.logger.Warn("subscription suspended after repeated payment failure",
			ports.String("user_id", user.ID),
			ports.String("order_id", order.OrderID),
			ports.Int("retry_count", sub.RetryCount),
			ports.Err(gwErr))
	default:
		o.notifier.Notify(ctx, domain.NotificationPaymentRetry, user, notification.Context{
			PlanName:        plan.Name,
			ExpiresAt:       sub.ExpiresAt,
			NextRetryInDays: decision.NextRetryInDays,
		})
		o.logger.Warn("subscription charge failed, retry scheduled",
			ports.String("user_id", user.ID),
			ports.String("order_id", order.OrderID),
			ports.Int("retry_count", sub.RetryCount),
			ports.Int("next_retry_in_days", decision.NextRetryInDays),
			ports.Err(gwErr))
	}

	return &ChargeOutcome{
		Success:    false,
		OrderID:    order.OrderID,
		Escalation: &decision,
	}, gwErr
}

// ProcessDueRenewals charges every subscription whose paid period has ended
// as of asOf, up to batchSize of them. Precondition rejections are counted
// separately from charge failures: a disabled auto-renew is not an error.
func (o *Orchestrator) ProcessDueRenewals(ctx context.Context, asOf time.Time, batchSize int) (*BatchResult, error) {
	subs, err := o.subs.ListDueForRenewal(ctx, nil, asOf, int32(batchSize))
	if err != nil {
		return nil, fmt.Errorf("list subscriptions due for renewal: %w", err)
	}

	result := &BatchResult{Processed: len(subs)}

	o.logger.Info("processing renewal batch",
		ports.String("as_of", asOf.Format(time.RFC3339)),
		ports.Int("count", len(subs)))

	for _, sub := range subs {
		chargeCtx, cancel := o.timeouts.ChargeContext(ctx)
		_, err := o.ChargeSubscription(chargeCtx, sub.UserID)
		cancel()

		switch {
		case err == nil:
			result.Succeeded++
		case domain.IsPrecondition(err):
			result.Rejected++
		default:
			result.Failed++
			result.Errors = append(result.Errors, BatchError{
				UserID: sub.UserID,
				Error:  err.Error(),
			})
		}
	}

	o.logger.Info("renewal batch completed",
		ports.Int("processed", result.Processed),
		ports.Int("succeeded", result.Succeeded),
		ports.Int("failed", result.Failed),
		ports.Int("rejected", result.Rejected))

	return result, nil
}
