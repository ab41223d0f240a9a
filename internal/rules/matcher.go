// Package rules loads, caches, and matches assignment rules. Matching is pure:
// longest zip prefix wins, then lowest priority, then lowest rule id. Rules
// arrive from two sources (flat S3 JSON or the Postgres rules table) and are
// normalized into domain.AssignmentRule at the boundary so nothing downstream
// branches on where a rule came from.
package rules

import (
	"sort"
	"strings"

	"github.com/ignite/lead-router/internal/domain"
)

// FilterForFunnel returns the active rules in scope for a funnel, either by
// exact funnel id or the wildcard.
func FilterForFunnel(all []domain.AssignmentRule, funnelID string) []domain.AssignmentRule {
	var out []domain.AssignmentRule
	for _, r := range all {
		if r.Active && r.AppliesToFunnel(funnelID) {
			out = append(out, r)
		}
	}
	return out
}

// Match selects the best rule for a zip code from an already-filtered
// candidate set. A rule matches when at least one of its zip patterns is a
// prefix of the zip; the empty pattern matches everything, including an empty
// zip. Longest matching prefix wins, ties go to the lowest priority value,
// remaining ties to the lowest rule id. Returns nil when nothing matches.
func Match(candidates []domain.AssignmentRule, zip string) *domain.AssignmentRule {
	bestIdx := -1
	bestLen := -1
	for i := range candidates {
		matchLen, ok := longestPrefix(&candidates[i], zip)
		if !ok {
			continue
		}
		if bestIdx == -1 || matchLen > bestLen {
			bestIdx, bestLen = i, matchLen
			continue
		}
		if matchLen < bestLen {
			continue
		}
		best := &candidates[bestIdx]
		cur := &candidates[i]
		if cur.Priority < best.Priority ||
			(cur.Priority == best.Priority && cur.RuleID < best.RuleID) {
			bestIdx = i
		}
	}
	if bestIdx == -1 {
		return nil
	}
	return &candidates[bestIdx]
}

// Chain builds the ordered candidate list the orchestrator walks: the best
// zip match first, then every remaining candidate sorted by priority
// ascending (rule id breaks ties). Returns nil when no rule matches the zip.
func Chain(candidates []domain.AssignmentRule, zip string) []domain.AssignmentRule {
	primary := Match(candidates, zip)
	if primary == nil {
		return nil
	}

	rest := make([]domain.AssignmentRule, 0, len(candidates)-1)
	for _, r := range candidates {
		if r.RuleID != primary.RuleID {
			rest = append(rest, r)
		}
	}
	SortByPriority(rest)

	chain := make([]domain.AssignmentRule, 0, len(candidates))
	chain = append(chain, *primary)
	chain = append(chain, rest...)
	return chain
}

// SortByPriority orders rules by priority ascending, then rule id ascending.
func SortByPriority(rs []domain.AssignmentRule) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Priority != rs[j].Priority {
			return rs[i].Priority < rs[j].Priority
		}
		return rs[i].RuleID < rs[j].RuleID
	})
}

// longestPrefix returns the length of the longest pattern that prefixes the
// zip, and whether any pattern matched at all.
func longestPrefix(r *domain.AssignmentRule, zip string) (int, bool) {
	best := -1
	for _, p := range r.ZipPatterns {
		if strings.HasPrefix(zip, p) && len(p) > best {
			best = len(p)
		}
	}
	return best, best >= 0
}
