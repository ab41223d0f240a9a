package domain

import (
	"errors"
	"time"
)

// EventType names the domain events flowing through the pipeline. The wire
// format (EventBridge detail) keeps the historical camelCase field names, so
// the payload structs below tag accordingly.
type EventType string

const (
	EventLeadCreated    EventType = "lead.created"
	EventLeadAssigned   EventType = "lead.assigned"
	EventLeadUnassigned EventType = "lead.unassigned"
)

var errMissingField = errors.New("missing required field")

// LeadCreated is emitted by the intake service when a lead is captured.
type LeadCreated struct {
	LeadID    string    `json:"leadId"`
	FunnelID  string    `json:"funnelId"`
	ZipCode   string    `json:"zipCode,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Status    string    `json:"status"`
}

// Validate reports whether the payload carries the fields the assignment
// pipeline cannot work without. A failing payload is dropped, not retried.
func (p *LeadCreated) Validate() error {
	if p.LeadID == "" || p.FunnelID == "" {
		return errMissingField
	}
	return nil
}

// LeadAssigned is emitted after a successful assignment write.
type LeadAssigned struct {
	EventID          string    `json:"eventId,omitempty"`
	LeadID           string    `json:"leadId"`
	FunnelID         string    `json:"funnelId"`
	AssignedOrgID    string    `json:"assignedOrgId"`
	AssignedUserID   string    `json:"assignedUserId,omitempty"`
	AssignmentRuleID string    `json:"assignmentRuleId"`
	AssignedAt       time.Time `json:"assignedAt"`
	ZipCode          string    `json:"zipCode,omitempty"`
}

// Validate reports whether the payload is complete enough to notify on.
func (p *LeadAssigned) Validate() error {
	if p.LeadID == "" || p.FunnelID == "" || p.AssignedOrgID == "" {
		return errMissingField
	}
	return nil
}

// LeadUnassigned is emitted after a lead exhausts every candidate rule.
type LeadUnassigned struct {
	EventID     string           `json:"eventId,omitempty"`
	LeadID      string           `json:"leadId"`
	FunnelID    string           `json:"funnelId"`
	ZipCode     string           `json:"zipCode,omitempty"`
	Reason      UnassignedReason `json:"reason"`
	EvaluatedAt time.Time        `json:"evaluatedAt"`
}

// Validate reports whether the payload is complete enough to notify on.
func (p *LeadUnassigned) Validate() error {
	if p.LeadID == "" || p.FunnelID == "" || p.Reason == "" {
		return errMissingField
	}
	return nil
}
