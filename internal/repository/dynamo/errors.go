package dynamo

import "errors"

var (
	// ErrLeadNotFound is returned when the lead item does not exist.
	ErrLeadNotFound = errors.New("lead not found")

	// ErrAlreadyAssigned is returned when the conditional assignment write
	// loses because some invocation has already assigned the lead. Callers
	// treat this as idempotent success.
	ErrAlreadyAssigned = errors.New("lead already assigned")

	// ErrAlreadyResolved is returned when a status transition loses because
	// the lead has already left the "new" state.
	ErrAlreadyResolved = errors.New("lead already resolved")
)
