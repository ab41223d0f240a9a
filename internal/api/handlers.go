package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/lead-router/internal/caps"
	"github.com/ignite/lead-router/internal/domain"
	"github.com/ignite/lead-router/internal/flags"
	"github.com/ignite/lead-router/internal/pkg/httputil"
	"github.com/ignite/lead-router/internal/repository/postgres"
	"github.com/ignite/lead-router/internal/service/assignment"
)

// RuleStore is the mutable rule source behind the CRUD endpoints.
type RuleStore interface {
	ListRules(ctx context.Context) ([]domain.AssignmentRule, error)
	GetRule(ctx context.Context, ruleID string) (*domain.AssignmentRule, error)
	CreateRule(ctx context.Context, rule *domain.AssignmentRule) (string, error)
	UpdateRule(ctx context.Context, rule *domain.AssignmentRule) error
	DeleteRule(ctx context.Context, ruleID string) error
}

// FlagReporter exposes the cached flag snapshot.
type FlagReporter interface {
	Snapshot() (f flags.Flags, fetchedAt time.Time, err error)
}

// CapReader reads current cap counters without incrementing.
type CapReader interface {
	CurrentUsage(ctx context.Context, ruleID string) (caps.Usage, error)
}

// UnassignedLister reads recent unassigned-lead records.
type UnassignedLister interface {
	ListUnassignedRecords(ctx context.Context, funnelID string, limit int32) ([]domain.UnassignedLeadRecord, error)
}

// Orchestrator re-drives the assignment pipeline for one lead. Safe to call
// from an API because assignment is idempotent.
type Orchestrator interface {
	Process(ctx context.Context, funnelID, leadID string) (assignment.Result, error)
}

// Pinger is a dependency health probe.
type Pinger func(ctx context.Context) error

// Handlers holds the ops API endpoints and their dependencies.
type Handlers struct {
	rules        RuleStore
	flagReporter FlagReporter
	capReader    CapReader
	unassigned   UnassignedLister
	orchestrator Orchestrator
	pings        map[string]Pinger
}

// NewHandlers wires the endpoint dependencies. pings maps dependency names
// to health probes reported by /health; nil is allowed.
func NewHandlers(rules RuleStore, flagReporter FlagReporter, capReader CapReader, unassigned UnassignedLister, orchestrator Orchestrator, pings map[string]Pinger) *Handlers {
	return &Handlers{
		rules:        rules,
		flagReporter: flagReporter,
		capReader:    capReader,
		unassigned:   unassigned,
		orchestrator: orchestrator,
		pings:        pings,
	}
}

// HealthCheck reports liveness and per-dependency status.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	deps := map[string]string{}
	for name, ping := range h.pings {
		if err := ping(ctx); err != nil {
			deps[name] = err.Error()
			status = "degraded"
		} else {
			deps[name] = "ok"
		}
	}

	httputil.OK(w, map[string]any{
		"status":       status,
		"dependencies": deps,
		"time":         time.Now().UTC().Format(time.RFC3339),
	})
}

// ListRules returns every configured rule.
func (h *Handlers) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.ListRules(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if rules == nil {
		rules = []domain.AssignmentRule{}
	}
	httputil.OK(w, map[string]any{"rules": rules, "count": len(rules)})
}

// GetRule returns one rule.
func (h *Handlers) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.rules.GetRule(r.Context(), chi.URLParam(r, "ruleID"))
	if errors.Is(err, postgres.ErrRuleNotFound) {
		httputil.NotFound(w, "rule not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, rule)
}

// CreateRule inserts a new rule.
func (h *Handlers) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.AssignmentRule
	if !httputil.Decode(w, r, &rule) {
		return
	}
	if msg := validateRule(&rule); msg != "" {
		httputil.BadRequest(w, msg)
		return
	}

	id, err := h.rules.CreateRule(r.Context(), &rule)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	rule.RuleID = id
	httputil.Created(w, rule)
}

// UpdateRule replaces a rule's fields.
func (h *Handlers) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.AssignmentRule
	if !httputil.Decode(w, r, &rule) {
		return
	}
	rule.RuleID = chi.URLParam(r, "ruleID")
	if msg := validateRule(&rule); msg != "" {
		httputil.BadRequest(w, msg)
		return
	}

	err := h.rules.UpdateRule(r.Context(), &rule)
	if errors.Is(err, postgres.ErrRuleNotFound) {
		httputil.NotFound(w, "rule not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, rule)
}

// DeleteRule removes a rule.
func (h *Handlers) DeleteRule(w http.ResponseWriter, r *http.Request) {
	err := h.rules.DeleteRule(r.Context(), chi.URLParam(r, "ruleID"))
	if errors.Is(err, postgres.ErrRuleNotFound) {
		httputil.NotFound(w, "rule not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

// GetFlags returns the cached flag snapshot and source health.
func (h *Handlers) GetFlags(w http.ResponseWriter, r *http.Request) {
	f, fetchedAt, err := h.flagReporter.Snapshot()
	resp := map[string]any{"flags": f}
	if !fetchedAt.IsZero() {
		resp["fetched_at"] = fetchedAt.UTC().Format(time.RFC3339)
	}
	if err != nil {
		resp["source_error"] = err.Error()
	}
	httputil.OK(w, resp)
}

// GetCapUsage returns the current day/month counters for one rule alongside
// its configured limits.
func (h *Handlers) GetCapUsage(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleID")

	rule, err := h.rules.GetRule(r.Context(), ruleID)
	if errors.Is(err, postgres.ErrRuleNotFound) {
		httputil.NotFound(w, "rule not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	usage, err := h.capReader.CurrentUsage(r.Context(), ruleID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	httputil.OK(w, map[string]any{
		"rule_id":     ruleID,
		"usage":       usage,
		"daily_cap":   rule.DailyCap,
		"monthly_cap": rule.MonthlyCap,
	})
}

// ListUnassignedLeads returns recent unassigned records for a funnel.
func (h *Handlers) ListUnassignedLeads(w http.ResponseWriter, r *http.Request) {
	funnelID := r.URL.Query().Get("funnel_id")
	if funnelID == "" {
		httputil.BadRequest(w, "funnel_id is required")
		return
	}

	limit := int32(50)
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			httputil.BadRequest(w, "limit must be 1-500")
			return
		}
		limit = int32(n)
	}

	records, err := h.unassigned.ListUnassignedRecords(r.Context(), funnelID, limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if records == nil {
		records = []domain.UnassignedLeadRecord{}
	}
	httputil.OK(w, map[string]any{"records": records, "count": len(records)})
}

// AssignLead manually re-drives the orchestrator for one lead.
func (h *Handlers) AssignLead(w http.ResponseWriter, r *http.Request) {
	funnelID := chi.URLParam(r, "funnelID")
	leadID := chi.URLParam(r, "leadID")

	res, err := h.orchestrator.Process(r.Context(), funnelID, leadID)
	if errors.Is(err, assignment.ErrLeadNotFound) {
		httputil.NotFound(w, "lead not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	resp := map[string]any{"outcome": string(res.Outcome)}
	if res.Rule != nil {
		resp["rule_id"] = res.Rule.RuleID
		resp["org_id"] = res.Rule.OrgID
	}
	if res.Reason != "" {
		resp["reason"] = string(res.Reason)
	}
	httputil.OK(w, resp)
}

func validateRule(rule *domain.AssignmentRule) string {
	if rule.FunnelID == "" {
		return "funnel_id is required"
	}
	if rule.TargetType != domain.TargetOrg && rule.TargetType != domain.TargetUser {
		return "target_type must be ORG or USER"
	}
	if rule.TargetID == "" {
		return "target_id is required"
	}
	if rule.OrgID == "" {
		return "org_id is required"
	}
	if len(rule.ZipPatterns) == 0 {
		return "zip_patterns must have at least one pattern"
	}
	if rule.DailyCap != nil && *rule.DailyCap < 0 {
		return "daily_cap must be non-negative"
	}
	if rule.MonthlyCap != nil && *rule.MonthlyCap < 0 {
		return "monthly_cap must be non-negative"
	}
	return ""
}
