package models

// ReconcileOutcome is the typed result of applying a payment event
type ReconcileOutcome string

const (
	// OutcomeReconciled means this event committed the state transition
	OutcomeReconciled ReconcileOutcome = "reconciled"
	// OutcomeAlreadyReconciled means an earlier event already produced the same terminal state
	OutcomeAlreadyReconciled ReconcileOutcome = "already_reconciled"
	// OutcomeUnknownOrder means no payment matches the order reference
	OutcomeUnknownOrder ReconcileOutcome = "unknown_order"
	// OutcomeInvalidTransition means the payment or booking already moved to a conflicting terminal state
	OutcomeInvalidTransition ReconcileOutcome = "invalid_transition"
	// OutcomeIgnored is used for events that carry no terminal status (still pending)
	OutcomeIgnored ReconcileOutcome = "ignored"
)

// ExpirySweepResult summarises one ExpirePendingBookings pass
type ExpirySweepResult struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// PaymentPollResult summarises one pending-payment poll pass
type PaymentPollResult struct {
	Checked    int `json:"checked"`
	Reconciled int `json:"reconciled"`
	Failed     int `json:"failed"`
}

// WebhookResponse is returned to the gateway after a callback
type WebhookResponse struct {
	Outcome        ReconcileOutcome `json:"outcome"`
	OrderReference string           `json:"order_reference,omitempty"`
}

// ErrorResponse is the standard JSON error body
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
