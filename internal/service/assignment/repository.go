package assignment

import (
	"context"
	"time"

	"github.com/ignite/lead-router/internal/caps"
	"github.com/ignite/lead-router/internal/domain"
	"github.com/ignite/lead-router/internal/repository/dynamo"
)

// LeadRepository is the durable lead store. Implementations must make
// CommitAssignment and MarkUnassigned conditional writes: they are the only
// mutual exclusion between concurrent invocations.
type LeadRepository interface {
	// GetLead returns the lead or dynamo.ErrLeadNotFound.
	GetLead(ctx context.Context, funnelID, leadID string) (*domain.Lead, error)

	// CommitAssignment sets the assignment fields only while the lead is
	// still new and unassigned. Returns dynamo.ErrAlreadyAssigned when some
	// invocation got there first; callers treat that as idempotent success.
	CommitAssignment(ctx context.Context, funnelID, leadID string, a dynamo.Assignment) error

	// MarkUnassigned flips a still-new lead to the terminal unassigned
	// state. Returns dynamo.ErrAlreadyResolved when the lead has moved on.
	MarkUnassigned(ctx context.Context, funnelID, leadID string, at time.Time) error

	// PutUnassignedRecord writes the unassigned fact under a deterministic
	// key so redelivery overwrites rather than duplicates.
	PutUnassignedRecord(ctx context.Context, rec domain.UnassignedLeadRecord) error
}

// RuleProvider serves the cached rule set filtered for a funnel.
type RuleProvider interface {
	ActiveForFunnel(ctx context.Context, funnelID string) ([]domain.AssignmentRule, error)
}

// Directory answers target-status questions against the portal database.
type Directory interface {
	OrgActive(ctx context.Context, orgID string) (bool, error)
	UserActiveInOrg(ctx context.Context, userID, orgID string) (bool, error)
}

// CapEnforcer atomically counts an assignment attempt against a rule's caps.
type CapEnforcer interface {
	CheckAndIncrement(ctx context.Context, ruleID string, dailyCap, monthlyCap *int) (caps.Result, error)
}

// EventPublisher emits the router's domain events. Publishing is best-effort
// from the orchestrator's point of view: failures are logged, never rolled
// back into the assignment outcome.
type EventPublisher interface {
	PublishLeadAssigned(ctx context.Context, payload domain.LeadAssigned) error
	PublishLeadUnassigned(ctx context.Context, payload domain.LeadUnassigned) error
}
