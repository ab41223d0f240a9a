package domain

// TargetType says whether a rule routes leads to a whole organization or to
// a specific user within one.
type TargetType string

const (
	TargetOrg  TargetType = "ORG"
	TargetUser TargetType = "USER"
)

// FunnelWildcard matches any funnel when used as a rule's FunnelID.
const FunnelWildcard = "*"

// AssignmentRule is one routing target with its geographic match patterns,
// priority, and optional capacity limits. Rules are immutable per version:
// they are loaded from a configuration source, normalized, cached, and never
// mutated by the pipeline.
type AssignmentRule struct {
	RuleID   string `json:"rule_id" db:"id"`
	FunnelID string `json:"funnel_id" db:"funnel_id"`

	TargetType TargetType `json:"target_type" db:"target_type"`
	// TargetID is the org id for ORG rules and the user id for USER rules.
	TargetID string `json:"target_id" db:"target_id"`
	// OrgID is always populated: the owning org, even when the target is a user.
	OrgID string `json:"org_id" db:"org_id"`

	// ZipPatterns are prefix strings matched against the lead zip code.
	// An empty-string pattern matches every zip, including the empty one.
	ZipPatterns []string `json:"zip_patterns" db:"zip_patterns"`

	// Priority orders fallback candidates; lower sorts first.
	Priority int `json:"priority" db:"priority"`

	// Nil cap means unlimited for that period.
	DailyCap   *int `json:"daily_cap,omitempty" db:"daily_cap"`
	MonthlyCap *int `json:"monthly_cap,omitempty" db:"monthly_cap"`

	Active bool `json:"active" db:"active"`
}

// AppliesToFunnel reports whether the rule is in scope for the given funnel.
func (r *AssignmentRule) AppliesToFunnel(funnelID string) bool {
	return r.FunnelID == FunnelWildcard || r.FunnelID == funnelID
}

// HasCaps reports whether either period cap is configured.
func (r *AssignmentRule) HasCaps() bool {
	return r.DailyCap != nil || r.MonthlyCap != nil
}
