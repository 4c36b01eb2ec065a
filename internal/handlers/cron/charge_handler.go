package cron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lim5max/checkly-billing/internal/domain"
	"github.com/lim5max/checkly-billing/internal/services/billing"
	apperrors "github.com/lim5max/checkly-billing/pkg/errors"
	"github.com/lim5max/checkly-billing/pkg/resilience"
)

// ChargeService drives subscription charges on behalf of the cron endpoints
type ChargeService interface {
	ChargeSubscription(ctx context.Context, userID string) (*billing.ChargeOutcome, error)
	ProcessDueRenewals(ctx context.Context, asOf time.Time, batchSize int) (*billing.BatchResult, error)
}

// ChargeHandler handles cron job endpoints for recurring subscription charges
type ChargeHandler struct {
	orchestrator ChargeService
	logger       *zap.Logger
	cronSecret   string // Secret token for authenticating cron requests
	timeouts     *resilience.TimeoutConfig
}

// NewChargeHandler creates a new charge cron handler
func NewChargeHandler(
	orchestrator ChargeService,
	logger *zap.Logger,
	cronSecret string,
	timeouts *resilience.TimeoutConfig,
) *ChargeHandler {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &ChargeHandler{
		orchestrator: orchestrator,
		logger:       logger,
		cronSecret:   cronSecret,
		timeouts:     timeouts,
	}
}

// ChargeSubscriptionRequest is the body of POST /cron/charge-subscription
type ChargeSubscriptionRequest struct {
	UserID string `json:"user_id"`
}

// ChargeSubscriptionResponse is the success shape of the charge endpoint
type ChargeSubscriptionResponse struct {
	Success      bool   `json:"success"`
	OrderID      string `json:"order_id"`
	PaymentID    string `json:"payment_id,omitempty"`
	NewExpiresAt string `json:"new_expires_at,omitempty"`
	Escalation   string `json:"escalation,omitempty"`
}

// ProcessRenewalsRequest is the body of POST /cron/process-renewals
type ProcessRenewalsRequest struct {
	AsOfDate  *string `json:"as_of_date"` // Optional: ISO date string, defaults to today
	BatchSize *int    `json:"batch_size"` // Optional: defaults to 100
}

// ProcessRenewalsResponse is the response from a renewal batch run
type ProcessRenewalsResponse struct {
	Success     bool                 `json:"success"`
	Processed   int                  `json:"processed"`
	Succeeded   int                  `json:"succeeded"`
	Failed      int                  `json:"failed"`
	Rejected    int                  `json:"rejected"`
	Errors      []billing.BatchError `json:"errors,omitempty"`
	ProcessedAt string               `json:"processed_at"`
}

// ChargeSubscription handles the POST /cron/charge-subscription endpoint.
// The scheduler calls it once per due subscription.
func (h *ChargeHandler) ChargeSubscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed", "")
		return
	}

	if !h.authenticateRequest(r) {
		h.logger.Warn("Unauthorized cron request",
			zap.String("remote_addr", r.RemoteAddr),
		)
		h.respondError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	var req ChargeSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "")
		return
	}
	if req.UserID == "" {
		h.respondError(w, http.StatusBadRequest, "user_id is required", "")
		return
	}

	h.logger.Info("Charge cron job triggered",
		zap.String("user_id", req.UserID),
		zap.String("remote_addr", r.RemoteAddr),
	)

	ctx, cancel := h.timeouts.ChargeContext(r.Context())
	defer cancel()

	outcome, err := h.orchestrator.ChargeSubscription(ctx, req.UserID)
	if err != nil {
		switch {
		case domain.IsPrecondition(err):
			// Not chargeable; the scheduler should stop scheduling this one
			h.respondError(w, http.StatusUnprocessableEntity, err.Error(), domain.RejectionReason(err))
		case errors.Is(err, domain.ErrSubscriptionNotFound) || errors.Is(err, domain.ErrUserNotFound) || errors.Is(err, domain.ErrPlanNotFound):
			h.respondError(w, http.StatusNotFound, err.Error(), "")
		default:
			resp := ChargeSubscriptionResponse{Success: false}
			if outcome != nil {
				resp.OrderID = outcome.OrderID
				if outcome.Escalation != nil {
					resp.Escalation = string(outcome.Escalation.Action)
				}
			}
			status := http.StatusBadGateway
			var gwErr *apperrors.GatewayError
			if !errors.As(err, &gwErr) {
				status = http.StatusInternalServerError
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
				h.logger.Error("Failed to encode response", zap.Error(encErr))
			}
		}
		return
	}

	resp := ChargeSubscriptionResponse{
		Success:      true,
		OrderID:      outcome.OrderID,
		PaymentID:    outcome.PaymentID,
		NewExpiresAt: outcome.NewExpiresAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// ProcessRenewals handles the POST /cron/process-renewals endpoint.
// Cloud Scheduler calls it daily to sweep expired auto-renew subscriptions.
func (h *ChargeHandler) ProcessRenewals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed", "")
		return
	}

	if !h.authenticateRequest(r) {
		h.logger.Warn("Unauthorized cron request",
			zap.String("remote_addr", r.RemoteAddr),
		)
		h.respondError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	// Both parameters are optional
	var req ProcessRenewalsRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.logger.Warn("Failed to parse request body", zap.Error(err))
		}
	}

	asOf := time.Now().UTC()
	if req.AsOfDate != nil {
		parsed, err := time.Parse("2006-01-02", *req.AsOfDate)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid as_of_date format: %v", err), "")
			return
		}
		asOf = parsed
	}

	batchSize := 100
	if req.BatchSize != nil {
		if *req.BatchSize < 1 || *req.BatchSize > 1000 {
			h.respondError(w, http.StatusBadRequest, "batch_size must be between 1 and 1000", "")
			return
		}
		batchSize = *req.BatchSize
	}

	ctx, cancel := h.timeouts.CronContext(r.Context())
	defer cancel()

	result, err := h.orchestrator.ProcessDueRenewals(ctx, asOf, batchSize)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}

	resp := ProcessRenewalsResponse{
		Success:     result.Failed == 0,
		Processed:   result.Processed,
		Succeeded:   result.Succeeded,
		Failed:      result.Failed,
		Rejected:    result.Rejected,
		Errors:      result.Errors,
		ProcessedAt: time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Success {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusPartialContent) // 206 indicates partial success
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// authenticateRequest verifies the cron request is authorized
func (h *ChargeHandler) authenticateRequest(r *http.Request) bool {
	cronSecret := r.Header.Get("X-Cron-Secret")
	if cronSecret != "" && cronSecret == h.cronSecret {
		return true
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "Bearer "+h.cronSecret {
		return true
	}

	return false
}

// respondError sends an error response
func (h *ChargeHandler) respondError(w http.ResponseWriter, statusCode int, message, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := map[string]interface{}{
		"success": false,
		"error":   message,
	}
	if reason != "" {
		resp["reason"] = reason
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode error response", zap.Error(err))
	}
}
