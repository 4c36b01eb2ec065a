package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/lim5max/checkly-billing/internal/adapters/tbank"
	"github.com/lim5max/checkly-billing/internal/domain"
	"github.com/lim5max/checkly-billing/internal/domain/ports"
	"github.com/lim5max/checkly-billing/pkg/observability"
	"github.com/lim5max/checkly-billing/pkg/timeutil"
)

// TBankHandler processes inbound payment notifications from the gateway.
// The gateway retries a notification until it receives the literal body "OK",
// so every accepted notification must answer that, including duplicates.
type TBankHandler struct {
	db      ports.DBPort
	orders  ports.OrderRepository
	subs    ports.SubscriptionRepository
	plans   ports.PlanRepository
	users   ports.UserRepository
	gateway ports.PaymentGateway
	logger  *zap.Logger
}

// NewTBankHandler creates a new webhook handler
func NewTBankHandler(
	db ports.DBPort,
	orders ports.OrderRepository,
	subs ports.SubscriptionRepository,
	plans ports.PlanRepository,
	users ports.UserRepository,
	gateway ports.PaymentGateway,
	logger *zap.Logger,
) *TBankHandler {
	return &TBankHandler{
		db:      db,
		orders:  orders,
		subs:    subs,
		plans:   plans,
		users:   users,
		gateway: gateway,
		logger:  logger,
	}
}

// HandleNotification processes POST /webhook/tbank
func (h *TBankHandler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.logger.Error("failed to read notification body", zap.Error(err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	notif, raw, err := tbank.ParseNotification(body)
	if err != nil {
		h.logger.Warn("failed to parse notification",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr),
		)
		observability.RecordWebhookNotification("malformed")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if !h.gateway.VerifyNotificationToken(raw) {
		h.logger.Warn("notification token verification failed",
			zap.String("order_id", notif.OrderID),
			zap.String("remote_addr", r.RemoteAddr),
		)
		observability.RecordWebhookNotification("bad_token")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	h.logger.Info("received gateway notification",
		zap.String("order_id", notif.OrderID),
		zap.String("status", notif.Status),
		zap.Bool("success", notif.Success),
	)

	if err := h.applyNotification(ctx, notif); err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			// Unknown order: acknowledge so the gateway stops retrying; the
			// payment did not originate here.
			h.logger.Warn("notification for unknown order",
				zap.String("order_id", notif.OrderID),
			)
			observability.RecordWebhookNotification("unknown_order")
			h.respondOK(w)
			return
		}
		h.logger.Error("failed to apply notification",
			zap.Error(err),
			zap.String("order_id", notif.OrderID),
		)
		observability.RecordWebhookNotification("error")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	observability.RecordWebhookNotification("accepted")
	h.respondOK(w)
}

// applyNotification transitions the order and, for a confirmed initial
// recurrent payment, captures the rebill token and activates the plan.
// Orders already moved off pending are left untouched by the repository's
// status guard, which makes redelivered notifications harmless.
func (h *TBankHandler) applyNotification(ctx context.Context, notif *tbank.Notification) error {
	order, err := h.orders.GetByOrderID(ctx, nil, notif.OrderID)
	if err != nil {
		return err
	}

	if order.Status != domain.OrderStatusPending {
		// Redelivery of an already processed notification
		h.logger.Debug("notification for settled order",
			zap.String("order_id", order.OrderID),
			zap.String("order_status", string(order.Status)),
		)
		return nil
	}

	now := timeutil.Now()

	switch notif.Status {
	case tbank.StatusConfirmed:
		if !notif.Success {
			return nil
		}
		return h.confirmOrder(ctx, order, notif, now)
	case tbank.StatusRejected:
		order.MarkFailed(notif.PaymentID.String(), now)
		return h.orders.Update(ctx, nil, order)
	default:
		// AUTHORIZED and the rest are intermediate; wait for a final status
		h.logger.Debug("ignoring intermediate notification status",
			zap.String("order_id", notif.OrderID),
			zap.String("status", notif.Status),
		)
		return nil
	}
}

func (h *TBankHandler) confirmOrder(ctx context.Context, order *domain.PaymentOrder, notif *tbank.Notification, now time.Time) error {
	order.MarkPaid(notif.PaymentID.String(), now)

	// Recurring charges are confirmed synchronously by the orchestrator; a
	// confirmation arriving here for a pending recurrent order is the initial
	// payment that establishes the card on file.
	if !order.Recurrent || notif.RebillID.String() == "" {
		return h.orders.Update(ctx, nil, order)
	}

	sub, err := h.subs.GetByUserID(ctx, nil, order.UserID)
	if err != nil {
		return err
	}
	plan, err := h.plans.GetByID(ctx, nil, order.PlanID)
	if err != nil {
		return err
	}

	rebillID := notif.RebillID.String()
	sub.PlanID = plan.ID
	sub.RebillID = &rebillID
	sub.ApplyChargeSuccess(plan, now)

	return h.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := h.orders.Update(ctx, tx, order); err != nil {
			return err
		}
		if err := h.subs.Update(ctx, tx, sub); err != nil {
			return err
		}
		return h.users.CreditBalance(ctx, tx, order.UserID, plan.CheckCredits, "Активация тарифа «"+plan.Name+"», заказ "+order.OrderID)
	})
}

func (h *TBankHandler) respondOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
