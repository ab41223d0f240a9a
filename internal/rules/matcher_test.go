package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/lead-router/internal/domain"
)

func rule(id string, priority int, patterns ...string) domain.AssignmentRule {
	return domain.AssignmentRule{
		RuleID:      id,
		FunnelID:    "roofing",
		TargetType:  domain.TargetOrg,
		TargetID:    "ORG-" + id,
		OrgID:       "ORG-" + id,
		ZipPatterns: patterns,
		Priority:    priority,
		Active:      true,
	}
}

func TestMatchLongestPrefixWins(t *testing.T) {
	// The longer, more specific match beats the better priority.
	candidates := []domain.AssignmentRule{
		rule("R1", 5, "331"),
		rule("R2", 10, "33101"),
	}

	got := Match(candidates, "33101")
	require.NotNil(t, got)
	assert.Equal(t, "R2", got.RuleID)
}

func TestMatchPriorityBreaksPrefixTie(t *testing.T) {
	candidates := []domain.AssignmentRule{
		rule("R1", 10, "331"),
		rule("R2", 5, "331"),
	}

	got := Match(candidates, "33199")
	require.NotNil(t, got)
	assert.Equal(t, "R2", got.RuleID)
}

func TestMatchRuleIDBreaksPriorityTie(t *testing.T) {
	candidates := []domain.AssignmentRule{
		rule("R9", 5, "331"),
		rule("R2", 5, "331"),
	}

	got := Match(candidates, "33101")
	require.NotNil(t, got)
	assert.Equal(t, "R2", got.RuleID)
}

func TestMatchPicksRuleLongestOwnPattern(t *testing.T) {
	// Within one rule only its longest matching pattern counts.
	candidates := []domain.AssignmentRule{
		rule("R1", 1, "3", "3310"),
		rule("R2", 9, "331"),
	}

	got := Match(candidates, "33101")
	require.NotNil(t, got)
	assert.Equal(t, "R1", got.RuleID)
}

func TestMatchNoCandidates(t *testing.T) {
	assert.Nil(t, Match(nil, "33101"))
}

func TestMatchNoPatternMatches(t *testing.T) {
	candidates := []domain.AssignmentRule{
		rule("R1", 1, "90", "94"),
	}
	assert.Nil(t, Match(candidates, "33101"))
}

func TestMatchEmptyZip(t *testing.T) {
	// Only the empty pattern matches an empty zip.
	noWildcard := []domain.AssignmentRule{
		rule("R1", 1, "331"),
	}
	assert.Nil(t, Match(noWildcard, ""))

	withWildcard := []domain.AssignmentRule{
		rule("R1", 1, "331"),
		rule("R2", 5, ""),
	}
	got := Match(withWildcard, "")
	require.NotNil(t, got)
	assert.Equal(t, "R2", got.RuleID)
}

func TestMatchEmptyPatternMatchesAnyZip(t *testing.T) {
	candidates := []domain.AssignmentRule{
		rule("R1", 1, ""),
		rule("R2", 5, "94"),
	}

	// "94" is the longer prefix even though "" also matches.
	got := Match(candidates, "94110")
	require.NotNil(t, got)
	assert.Equal(t, "R2", got.RuleID)
}

func TestFilterForFunnel(t *testing.T) {
	inactive := rule("R3", 1, "331")
	inactive.Active = false
	other := rule("R4", 1, "331")
	other.FunnelID = "solar"
	wildcard := rule("R5", 2, "331")
	wildcard.FunnelID = domain.FunnelWildcard

	all := []domain.AssignmentRule{rule("R1", 1, "331"), inactive, other, wildcard}

	got := FilterForFunnel(all, "roofing")
	require.Len(t, got, 2)
	assert.Equal(t, "R1", got[0].RuleID)
	assert.Equal(t, "R5", got[1].RuleID)
}

func TestChainPrimaryFirstThenPriority(t *testing.T) {
	candidates := []domain.AssignmentRule{
		rule("R1", 1, "331"),
		rule("R2", 5, "33101"),
		rule("R3", 3, "90"),
		rule("R4", 2, "331"),
	}

	chain := Chain(candidates, "33101")
	require.Len(t, chain, 4)

	// R2 wins on prefix length; the rest follow by priority, including rules
	// whose own patterns never matched the zip.
	assert.Equal(t, "R2", chain[0].RuleID)
	assert.Equal(t, "R1", chain[1].RuleID)
	assert.Equal(t, "R4", chain[2].RuleID)
	assert.Equal(t, "R3", chain[3].RuleID)
}

func TestChainNoMatch(t *testing.T) {
	candidates := []domain.AssignmentRule{
		rule("R1", 1, "90"),
	}
	assert.Nil(t, Chain(candidates, "33101"))
}

func TestSortByPriorityStableOnRuleID(t *testing.T) {
	rs := []domain.AssignmentRule{
		rule("RB", 5, "1"),
		rule("RA", 5, "2"),
		rule("RC", 1, "3"),
	}
	SortByPriority(rs)

	assert.Equal(t, "RC", rs[0].RuleID)
	assert.Equal(t, "RA", rs[1].RuleID)
	assert.Equal(t, "RB", rs[2].RuleID)
}
