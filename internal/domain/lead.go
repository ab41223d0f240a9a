package domain

import "time"

// LeadStatus enumerates the lifecycle states of a lead.
type LeadStatus string

const (
	LeadNew              LeadStatus = "new"
	LeadStatusAssigned   LeadStatus = "assigned"
	LeadStatusUnassigned LeadStatus = "unassigned"
	LeadContacted        LeadStatus = "contacted"
	LeadConverted        LeadStatus = "converted"
)

// Lead represents a captured sales lead. Leads are created by the intake
// service; this pipeline only ever sets the assignment fields (once) and the
// notification markers (once each).
type Lead struct {
	LeadID   string `json:"lead_id" dynamodbav:"leadId"`
	FunnelID string `json:"funnel_id" dynamodbav:"funnelId"`
	ZipCode  string `json:"zip_code,omitempty" dynamodbav:"zipCode,omitempty"`

	// Contact fields captured by the intake form.
	Name        string `json:"name,omitempty" dynamodbav:"name,omitempty"`
	Email       string `json:"email,omitempty" dynamodbav:"email,omitempty"`
	Phone       string `json:"phone,omitempty" dynamodbav:"phone,omitempty"`
	Message     string `json:"message,omitempty" dynamodbav:"message,omitempty"`
	UTMSource   string `json:"utm_source,omitempty" dynamodbav:"utmSource,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty" dynamodbav:"utmMedium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty" dynamodbav:"utmCampaign,omitempty"`

	Status LeadStatus `json:"status" dynamodbav:"status"`

	// Assignment fields. Set exactly once by the assignment pipeline and
	// immutable thereafter (enforced by conditional writes).
	AssignedOrgID    string     `json:"assigned_org_id,omitempty" dynamodbav:"assignedOrgId,omitempty"`
	AssignedUserID   string     `json:"assigned_user_id,omitempty" dynamodbav:"assignedUserId,omitempty"`
	AssignmentRuleID string     `json:"assignment_rule_id,omitempty" dynamodbav:"assignmentRuleId,omitempty"`
	AssignedAt       *time.Time `json:"assigned_at,omitempty" dynamodbav:"assignedAt,omitempty"`

	// Notification idempotency markers. A non-nil value means the
	// corresponding notification fan-out has been claimed by some invocation.
	NotifiedInternalAt *time.Time `json:"notified_internal_at,omitempty" dynamodbav:"notifiedInternalAt,omitempty"`
	NotifiedOrgAt      *time.Time `json:"notified_org_at,omitempty" dynamodbav:"notifiedOrgAt,omitempty"`

	CreatedAt time.Time `json:"created_at" dynamodbav:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" dynamodbav:"updatedAt"`
}

// IsResolved returns true when the lead has moved past the "new" state and
// the assignment pipeline must not touch it again.
func (l *Lead) IsResolved() bool {
	return l.Status != LeadNew
}

// NotificationScope identifies which notification fan-out a lock covers.
type NotificationScope string

const (
	// ScopeInternal covers the internal operations recipients.
	ScopeInternal NotificationScope = "internal"
	// ScopeOrg covers the assigned organization's members.
	ScopeOrg NotificationScope = "org"
)

// UnassignedReason enumerates why a lead could not be routed.
type UnassignedReason string

const (
	ReasonNoRulesConfigured UnassignedReason = "no_rules_configured"
	ReasonNoMatchingRule    UnassignedReason = "no_matching_rule"
	ReasonAllRulesExhausted UnassignedReason = "all_rules_exhausted"
)

// UnassignedLeadRecord is the append-only fact written when a lead exhausts
// every candidate rule. Keyed deterministically by lead so a redelivered
// evaluation overwrites rather than duplicates.
type UnassignedLeadRecord struct {
	LeadID      string           `json:"lead_id" dynamodbav:"leadId"`
	FunnelID    string           `json:"funnel_id" dynamodbav:"funnelId"`
	ZipCode     string           `json:"zip_code,omitempty" dynamodbav:"zipCode,omitempty"`
	Reason      UnassignedReason `json:"reason" dynamodbav:"reason"`
	EvaluatedAt time.Time        `json:"evaluated_at" dynamodbav:"evaluatedAt"`
	ExpiresAt   int64            `json:"expires_at" dynamodbav:"TTL"`
}
