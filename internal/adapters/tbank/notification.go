package tbank

import "encoding/json"

// Gateway payment statuses seen in notifications and charge responses
const (
	StatusConfirmed  = "CONFIRMED"
	StatusAuthorized = "AUTHORIZED"
	StatusRejected   = "REJECTED"
	StatusRefunded   = "REFUNDED"
)

// Notification is a parsed inbound webhook callback. The gateway sends one
// for every state change of a payment started through Init.
type Notification struct {
	TerminalKey string      `json:"TerminalKey"`
	OrderID     string      `json:"OrderId"`
	Success     bool        `json:"Success"`
	Status      string      `json:"Status"`
	PaymentID   json.Number `json:"PaymentId"`
	Amount      int64       `json:"Amount"`
	RebillID    json.Number `json:"RebillId"`
	ErrorCode   string      `json:"ErrorCode"`
	Token       string      `json:"Token"`
}

// IsPaid reports whether the notification confirms a completed payment
func (n *Notification) IsPaid() bool {
	return n.Success && n.Status == StatusConfirmed
}

// ParseNotification decodes a webhook body twice: into the typed form for
// business handling and into a raw map for token verification. The raw map
// must be used for verification so that every top-level field the gateway
// signed participates, including ones the typed struct does not know about.
func ParseNotification(body []byte) (*Notification, map[string]interface{}, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, nil, err
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, nil, err
	}

	return &n, raw, nil
}
