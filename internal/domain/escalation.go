package domain

// EscalationAction is the decided follow-up after a failed recurring charge
type EscalationAction string

const (
	EscalationRetry   EscalationAction = "retry"
	EscalationSuspend EscalationAction = "suspend"
)

// EscalationDecision maps a failure onto the next lifecycle step.
// NextRetryInDays is advisory: nothing in this service schedules the retry,
// the external cron is expected to honor it.
type EscalationDecision struct {
	Action          EscalationAction
	NextRetryInDays int
}

// EscalationPolicy decides what happens after a failed charge given the
// retry count recorded before this failure. Kept as a swappable function
// rather than inlined conditionals so the policy can grow parameters later.
type EscalationPolicy func(retryCount int) EscalationDecision

// retryDelayDays is how long the retry-warning email tells the user to
// expect before the next attempt.
const retryDelayDays = 3

// TwoStrikePolicy suspends on the second consecutive failure. It is counted
// by attempts, not elapsed time: a manual retry triggered early still counts
// toward the limit.
func TwoStrikePolicy(retryCount int) EscalationDecision {
	if retryCount >= 1 {
		return EscalationDecision{Action: EscalationSuspend}
	}
	return EscalationDecision{Action: EscalationRetry, NextRetryInDays: retryDelayDays}
}
