package rule

import (
	"sort"

	"github.com/finflow/expense-approval/internal/domain/expense"
)

// Select finds the single applicable rule for an expense among the company's
// rules. Candidates are ordered by ascending priority, ties broken by creation
// time (earliest first) so selection is deterministic. A rule applies when
// every configured condition matches; the logic type plays no part here.
// Returns ErrNoRuleMatched when no active rule applies.
func Select(e expense.Snapshot, rules []*Rule) (*Rule, error) {
	candidates := make([]*Rule, 0, len(rules))
	for _, r := range rules {
		if r.IsActive {
			candidates = append(candidates, r)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	for _, r := range candidates {
		if r.Conditions.Match(e) {
			return r, nil
		}
	}

	return nil, ErrNoRuleMatched
}
