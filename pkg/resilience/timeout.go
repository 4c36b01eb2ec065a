package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines the service's timeout hierarchy.
//
// From outermost to innermost:
//
//	HTTP handler (60s) > charge operation (50s) > gateway call (30s)
//
// Each layer must complete before its parent times out. The gateway client
// itself imposes no deadline; the gateway timeout here is the only bound on
// a recurring charge request, and hitting it counts as a failed attempt.
type TimeoutConfig struct {
	HTTPHandler time.Duration // overall request timeout
	CronBatch   time.Duration // renewal batch processing timeout
	Charge      time.Duration // single charge operation, gateway call included
	Gateway     time.Duration // one gateway HTTP request
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler: 60 * time.Second,
		CronBatch:   5 * time.Minute,
		Charge:      50 * time.Second,
		Gateway:     30 * time.Second,
	}
}

// TestTimeoutConfig returns shorter timeouts for tests
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler: 5 * time.Second,
		CronBatch:   30 * time.Second,
		Charge:      4 * time.Second,
		Gateway:     2 * time.Second,
	}
}

// HandlerContext creates a context with timeout for HTTP handlers
func (tc *TimeoutConfig) HandlerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.HTTPHandler)
}

// CronContext creates a context with timeout for renewal batches
func (tc *TimeoutConfig) CronContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.CronBatch)
}

// ChargeContext creates a context with timeout for one charge operation
func (tc *TimeoutConfig) ChargeContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Charge)
}

// GatewayContext creates a context with timeout for one gateway request
func (tc *TimeoutConfig) GatewayContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Gateway)
}
