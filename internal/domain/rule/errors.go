package rule

import "errors"

var (
	// ErrConfiguration is returned when a rule or condition payload is malformed.
	// It is surfaced to the admin who authored the rule, never silently defaulted.
	ErrConfiguration = errors.New("invalid rule configuration")

	// ErrNoRuleMatched is returned when no active rule applies to an expense.
	// The caller decides the fallback policy; this is not an engine failure.
	ErrNoRuleMatched = errors.New("no approval rule matched")
)
