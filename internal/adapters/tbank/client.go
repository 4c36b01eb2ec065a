package tbank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lim5max/checkly-billing/internal/domain/ports"
	pkgerrors "github.com/lim5max/checkly-billing/pkg/errors"
	"github.com/lim5max/checkly-billing/pkg/observability"
)

// DefaultBaseURL is the production gateway endpoint
const DefaultBaseURL = "https://securepay.tbank.ru/v2"

// Config holds the gateway credentials and mode. It is passed explicitly to
// the client constructor; the client reads no process-wide state.
type Config struct {
	TerminalKey string
	Password    string
	BaseURL     string
	IsTestMode  bool
}

// Client implements ports.PaymentGateway for the T-Bank acquiring API.
// It imposes no request deadline of its own: callers bound each call
// through ctx.
type Client struct {
	config     Config
	httpClient ports.HTTPClient
	logger     ports.Logger
}

// NewClient creates a new gateway client with dependency injection
func NewClient(config Config, httpClient ports.HTTPClient, logger ports.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}
}

// apiResponse is the common shape of gateway answers
type apiResponse struct {
	Success    bool        `json:"Success"`
	ErrorCode  string      `json:"ErrorCode"`
	Message    string      `json:"Message"`
	Details    string      `json:"Details"`
	Status     string      `json:"Status"`
	PaymentID  json.Number `json:"PaymentId"`
	PaymentURL string      `json:"PaymentURL"`
	RebillID   json.Number `json:"RebillId"`
}

func (r *apiResponse) ok() bool {
	return r.Success && (r.ErrorCode == "" || r.ErrorCode == "0")
}

// InitPayment registers a new payment with the gateway and returns the
// hosted payment page URL. With req.Recurrent set the gateway issues a
// rebill token on completion, delivered through the notification webhook.
func (c *Client) InitPayment(ctx context.Context, req ports.InitPaymentRequest) (*ports.InitPaymentResult, error) {
	fields := map[string]interface{}{
		"TerminalKey": c.config.TerminalKey,
		"Amount":      req.AmountKopecks,
		"OrderId":     req.OrderID,
		"Description": req.Description,
	}
	if req.Recurrent {
		fields["Recurrent"] = "Y"
		fields["CustomerKey"] = req.CustomerKey
	}
	if req.ReceiptEmail != "" {
		// Nested objects are not part of the signed set
		fields["DATA"] = map[string]interface{}{"Email": req.ReceiptEmail}
	}

	start := time.Now()
	resp, err := c.post(ctx, "/Init", fields)
	if err != nil {
		observability.RecordGatewayRequest("Init", "error", time.Since(start))
		return nil, err
	}

	if !resp.ok() {
		observability.RecordGatewayRequest("Init", "declined", time.Since(start))
		return nil, pkgerrors.NewGatewayError(
			"INIT_REJECTED",
			fmt.Sprintf("payment init rejected with code %s", resp.ErrorCode),
			pkgerrors.CategoryDeclined,
			false,
		).WithGatewayMessage(resp.Message)
	}

	observability.RecordGatewayRequest("Init", "ok", time.Since(start))

	return &ports.InitPaymentResult{
		PaymentID:  resp.PaymentID.String(),
		PaymentURL: resp.PaymentURL,
		Status:     resp.Status,
	}, nil
}

// ChargeRecurring charges a stored card. The gateway requires a fresh
// payment session per attempt, so this is Init followed by Charge with the
// rebill token; both legs are bounded by the caller's ctx.
func (c *Client) ChargeRecurring(ctx context.Context, rebillID, orderID string, amountKopecks int64, description string) (*ports.ChargeResult, error) {
	initFields := map[string]interface{}{
		"TerminalKey": c.config.TerminalKey,
		"Amount":      amountKopecks,
		"OrderId":     orderID,
		"Description": description,
	}

	start := time.Now()
	initResp, err := c.post(ctx, "/Init", initFields)
	if err != nil {
		observability.RecordGatewayRequest("Charge", "error", time.Since(start))
		return nil, err
	}
	if !initResp.ok() {
		observability.RecordGatewayRequest("Charge", "declined", time.Since(start))
		return nil, pkgerrors.NewGatewayError(
			"INIT_REJECTED",
			fmt.Sprintf("recurring init rejected with code %s", initResp.ErrorCode),
			pkgerrors.CategoryDeclined,
			false,
		).WithGatewayMessage(initResp.Message)
	}

	chargeFields := map[string]interface{}{
		"TerminalKey": c.config.TerminalKey,
		"PaymentId":   initResp.PaymentID.String(),
		"RebillId":    rebillID,
	}

	chargeResp, err := c.post(ctx, "/Charge", chargeFields)
	if err != nil {
		observability.RecordGatewayRequest("Charge", "error", time.Since(start))
		return nil, err
	}

	if !chargeResp.ok() || chargeResp.Status == StatusRejected {
		observability.RecordGatewayRequest("Charge", "declined", time.Since(start))
		return nil, pkgerrors.NewGatewayError(
			"CHARGE_DECLINED",
			fmt.Sprintf("recurring charge declined with code %s", chargeResp.ErrorCode),
			pkgerrors.CategoryDeclined,
			false,
		).WithGatewayMessage(chargeResp.Message)
	}

	observability.RecordGatewayRequest("Charge", "ok", time.Since(start))

	return &ports.ChargeResult{
		PaymentID: chargeResp.PaymentID.String(),
		Status:    chargeResp.Status,
		Success:   true,
	}, nil
}

// VerifyNotificationToken implements ports.PaymentGateway
func (c *Client) VerifyNotificationToken(payload map[string]interface{}) bool {
	return VerifyToken(c.config.Password, payload)
}

// post signs and sends one JSON request to the gateway
func (c *Client) post(ctx context.Context, endpoint string, fields map[string]interface{}) (*apiResponse, error) {
	fields[tokenField] = SignToken(c.config.Password, fields)

	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway request: %w", err)
	}

	url := c.config.BaseURL + endpoint
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if c.logger != nil {
		c.logger.Debug("gateway request",
			ports.String("endpoint", endpoint),
			ports.Bool("test_mode", c.config.IsTestMode),
		)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.NewGatewayError("NETWORK_ERROR", "failed to reach payment gateway", pkgerrors.CategoryNetworkError, true)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}

	if httpResp.StatusCode >= 500 {
		return nil, pkgerrors.NewGatewayError("GATEWAY_ERROR", "payment gateway error", pkgerrors.CategorySystemError, true)
	}
	if httpResp.StatusCode >= 400 {
		return nil, pkgerrors.NewGatewayError("REQUEST_ERROR", "invalid request to payment gateway", pkgerrors.CategoryInvalidRequest, false)
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal gateway response: %w", err)
	}

	return &resp, nil
}
