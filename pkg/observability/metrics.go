package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chargeAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_charge_attempts_total",
		Help: "Total recurring charge attempts by outcome",
	}, []string{
		"plan_id",
		"outcome", // succeeded, failed, rejected
	})

	chargeAmountKopecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_charge_amount_kopecks_total",
		Help: "Total charged amount in kopecks (for revenue tracking)",
	}, []string{
		"plan_id",
	})

	escalationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_escalations_total",
		Help: "Escalation decisions after failed charges",
	}, []string{
		"action", // retry, suspend
	})

	gatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billing_gateway_request_duration_seconds",
		Help:    "Duration of payment gateway HTTP requests",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{
		"method", // Init, Charge
		"status", // ok, declined, error
	})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_notifications_total",
		Help: "Notification dispatch results",
	}, []string{
		"kind",
		"result", // sent, deduped, failed
	})

	webhookNotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_webhook_notifications_total",
		Help: "Inbound gateway webhook notifications",
	}, []string{
		"status", // accepted, bad_token, unknown_order
	})
)

// RecordChargeAttempt records a charge attempt outcome
func RecordChargeAttempt(planID, outcome string) {
	chargeAttemptsTotal.WithLabelValues(planID, outcome).Inc()
}

// RecordChargedAmount records a successfully charged amount
func RecordChargedAmount(planID string, amountKopecks int64) {
	chargeAmountKopecks.WithLabelValues(planID).Add(float64(amountKopecks))
}

// RecordEscalation records an escalation decision
func RecordEscalation(action string) {
	escalationsTotal.WithLabelValues(action).Inc()
}

// RecordGatewayRequest records one gateway round-trip
func RecordGatewayRequest(method, status string, duration time.Duration) {
	gatewayRequestDuration.WithLabelValues(method, status).Observe(duration.Seconds())
}

// RecordNotification records a dispatcher result
func RecordNotification(kind, result string) {
	notificationsTotal.WithLabelValues(kind, result).Inc()
}

// RecordWebhookNotification records an inbound webhook outcome
func RecordWebhookNotification(status string) {
	webhookNotificationsTotal.WithLabelValues(status).Inc()
}
