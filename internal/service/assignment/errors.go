package assignment

import "errors"

// Sentinel errors for the assignment service layer.
var (
	// ErrLeadNotFound propagates when the lead item is missing. The queue
	// retries: the lead-created event can arrive before the intake write is
	// readable.
	ErrLeadNotFound = errors.New("lead not found")

	// ErrRulesUnavailable propagates when the rule set cannot be loaded and
	// there is no cached copy to fall back on.
	ErrRulesUnavailable = errors.New("assignment rules unavailable")
)
