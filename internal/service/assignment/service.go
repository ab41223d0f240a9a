package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/lead-router/internal/caps"
	"github.com/ignite/lead-router/internal/domain"
	"github.com/ignite/lead-router/internal/metrics"
	"github.com/ignite/lead-router/internal/pkg/logger"
	"github.com/ignite/lead-router/internal/repository/dynamo"
	"github.com/ignite/lead-router/internal/rules"
)

// Outcome names the terminal result of one orchestration pass.
type Outcome string

const (
	// OutcomeAssigned means this invocation won the assignment write.
	OutcomeAssigned Outcome = "assigned"
	// OutcomeUnassigned means the lead exhausted every candidate.
	OutcomeUnassigned Outcome = "unassigned"
	// OutcomeAlreadyResolved means some other invocation resolved the lead
	// first; nothing was written and no event was emitted.
	OutcomeAlreadyResolved Outcome = "already_resolved"
)

// Result reports what one orchestration pass did.
type Result struct {
	Outcome Outcome
	// Rule is the winning rule when Outcome is OutcomeAssigned.
	Rule *domain.AssignmentRule
	// Reason is set when Outcome is OutcomeUnassigned.
	Reason domain.UnassignedReason
}

// Service drives the assignment state machine for one lead at a time. It is
// stateless; all mutual exclusion lives in the store's conditional writes,
// so any number of Service instances may process the same lead concurrently.
type Service struct {
	leads     LeadRepository
	rules     RuleProvider
	directory Directory
	caps      CapEnforcer
	events    EventPublisher

	unassignedTTL time.Duration
	now           func() time.Time
}

// NewService wires the orchestrator. unassignedTTLDays controls the
// retention window stamped on unassigned-lead records.
func NewService(leads LeadRepository, ruleProvider RuleProvider, directory Directory, capEnforcer CapEnforcer, events EventPublisher, unassignedTTLDays int) *Service {
	if unassignedTTLDays <= 0 {
		unassignedTTLDays = 90
	}
	return &Service{
		leads:         leads,
		rules:         ruleProvider,
		directory:     directory,
		caps:          capEnforcer,
		events:        events,
		unassignedTTL: time.Duration(unassignedTTLDays) * 24 * time.Hour,
		now:           time.Now,
	}
}

// Process runs the full state machine for one lead. Errors are returned only
// for hard failures loading the lead or the rule set; those are the cases
// where queue redelivery can help. Everything else resolves locally to a
// terminal outcome.
func (s *Service) Process(ctx context.Context, funnelID, leadID string) (Result, error) {
	lead, err := s.leads.GetLead(ctx, funnelID, leadID)
	if err != nil {
		if errors.Is(err, dynamo.ErrLeadNotFound) {
			return Result{}, fmt.Errorf("%w: %s/%s", ErrLeadNotFound, funnelID, leadID)
		}
		return Result{}, fmt.Errorf("loading lead %s/%s: %w", funnelID, leadID, err)
	}
	if lead.IsResolved() {
		// Redelivery after the lead moved on. Nothing to do.
		logger.Debug("lead already resolved, skipping",
			"funnel_id", funnelID, "lead_id", leadID, "status", string(lead.Status))
		return Result{Outcome: OutcomeAlreadyResolved}, nil
	}

	candidates, err := s.rules.ActiveForFunnel(ctx, funnelID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRulesUnavailable, err)
	}
	if len(candidates) == 0 {
		return s.resolveUnassigned(ctx, lead, domain.ReasonNoRulesConfigured)
	}

	chain := rules.Chain(candidates, lead.ZipCode)
	if chain == nil {
		return s.resolveUnassigned(ctx, lead, domain.ReasonNoMatchingRule)
	}

	for i := range chain {
		rule := &chain[i]
		if !s.candidateEligible(ctx, lead, rule) {
			continue
		}

		res, err := s.commit(ctx, lead, rule)
		if err != nil {
			return Result{}, err
		}
		return res, nil
	}

	return s.resolveUnassigned(ctx, lead, domain.ReasonAllRulesExhausted)
}

// candidateEligible runs the per-candidate side checks: target active and
// cap available. Lookup errors are fail-closed: an unanswerable check skips
// the candidate instead of failing the message, so one flaky dependency
// degrades to fallback rather than blocking the lead.
func (s *Service) candidateEligible(ctx context.Context, lead *domain.Lead, rule *domain.AssignmentRule) bool {
	orgActive, err := s.directory.OrgActive(ctx, rule.OrgID)
	if err != nil {
		logger.Warn("org status check failed, skipping candidate",
			"rule_id", rule.RuleID, "org_id", rule.OrgID, "error", err.Error())
		return false
	}
	if !orgActive {
		return false
	}

	if rule.TargetType == domain.TargetUser {
		userActive, err := s.directory.UserActiveInOrg(ctx, rule.TargetID, rule.OrgID)
		if err != nil {
			logger.Warn("user status check failed, skipping candidate",
				"rule_id", rule.RuleID, "user_id", rule.TargetID, "error", err.Error())
			return false
		}
		if !userActive {
			return false
		}
	}

	capRes, err := s.caps.CheckAndIncrement(ctx, rule.RuleID, rule.DailyCap, rule.MonthlyCap)
	if err != nil {
		logger.Warn("cap check failed, skipping candidate",
			"rule_id", rule.RuleID, "error", err.Error())
		return false
	}
	if !capRes.Allowed {
		period := "day"
		if capRes.Reason == caps.ReasonMonthlyCapExceeded {
			period = "month"
		}
		metrics.CapRejections.WithLabelValues(period).Inc()
		logger.Info("candidate over cap",
			"rule_id", rule.RuleID, "reason", capRes.Reason,
			"lead_id", lead.LeadID, "funnel_id", lead.FunnelID)
		return false
	}
	return true
}

// commit attempts the idempotent assignment write and, on a win, runs the
// best-effort post-commit tasks. A lost condition is idempotent success:
// the loop must stop without trying further candidates or emitting a
// duplicate event.
func (s *Service) commit(ctx context.Context, lead *domain.Lead, rule *domain.AssignmentRule) (Result, error) {
	at := s.now().UTC()
	a := dynamo.Assignment{
		OrgID:  rule.OrgID,
		RuleID: rule.RuleID,
		At:     at,
	}
	if rule.TargetType == domain.TargetUser {
		a.UserID = rule.TargetID
	}

	err := s.leads.CommitAssignment(ctx, lead.FunnelID, lead.LeadID, a)
	if errors.Is(err, dynamo.ErrAlreadyAssigned) {
		logger.Info("assignment write lost to concurrent invocation",
			"funnel_id", lead.FunnelID, "lead_id", lead.LeadID, "rule_id", rule.RuleID)
		return Result{Outcome: OutcomeAlreadyResolved}, nil
	}
	if err != nil {
		return Result{}, err
	}

	metrics.LeadsAssigned.WithLabelValues(lead.FunnelID).Inc()
	logger.Info("lead assigned",
		"funnel_id", lead.FunnelID, "lead_id", lead.LeadID,
		"rule_id", rule.RuleID, "org_id", rule.OrgID)

	// Best-effort post-commit: the write above is authoritative, the event
	// only triggers notifications.
	if err := s.events.PublishLeadAssigned(ctx, domain.LeadAssigned{
		LeadID:           lead.LeadID,
		FunnelID:         lead.FunnelID,
		AssignedOrgID:    a.OrgID,
		AssignedUserID:   a.UserID,
		AssignmentRuleID: a.RuleID,
		AssignedAt:       at,
		ZipCode:          lead.ZipCode,
	}); err != nil {
		logger.Error("publishing lead.assigned failed",
			"funnel_id", lead.FunnelID, "lead_id", lead.LeadID, "error", err.Error())
	}

	return Result{Outcome: OutcomeAssigned, Rule: rule}, nil
}

// resolveUnassigned records the terminal unassigned outcome. The record
// write comes first and must succeed; the status flip and the event are
// tolerant of redelivery (the record key is deterministic, the flip is
// conditional, the event is best-effort).
func (s *Service) resolveUnassigned(ctx context.Context, lead *domain.Lead, reason domain.UnassignedReason) (Result, error) {
	at := s.now().UTC()

	rec := domain.UnassignedLeadRecord{
		LeadID:      lead.LeadID,
		FunnelID:    lead.FunnelID,
		ZipCode:     lead.ZipCode,
		Reason:      reason,
		EvaluatedAt: at,
		ExpiresAt:   at.Add(s.unassignedTTL).Unix(),
	}
	if err := s.leads.PutUnassignedRecord(ctx, rec); err != nil {
		return Result{}, err
	}

	err := s.leads.MarkUnassigned(ctx, lead.FunnelID, lead.LeadID, at)
	if errors.Is(err, dynamo.ErrAlreadyResolved) {
		return Result{Outcome: OutcomeAlreadyResolved}, nil
	}
	if err != nil {
		return Result{}, err
	}

	metrics.LeadsUnassigned.WithLabelValues(lead.FunnelID, string(reason)).Inc()
	logger.Info("lead unassigned",
		"funnel_id", lead.FunnelID, "lead_id", lead.LeadID, "reason", string(reason))

	if err := s.events.PublishLeadUnassigned(ctx, domain.LeadUnassigned{
		LeadID:      lead.LeadID,
		FunnelID:    lead.FunnelID,
		ZipCode:     lead.ZipCode,
		Reason:      reason,
		EvaluatedAt: at,
	}); err != nil {
		logger.Error("publishing lead.unassigned failed",
			"funnel_id", lead.FunnelID, "lead_id", lead.LeadID, "error", err.Error())
	}

	return Result{Outcome: OutcomeUnassigned, Reason: reason}, nil
}
