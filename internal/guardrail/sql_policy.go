package guardrail

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// DestructivePredicates are the statement keywords rejected by the sql policy.
var DestructivePredicates = []string{"drop", "update", "delete", "create", "alter", "insert"}

// SQLPredicatePolicy is a keyword blacklist, not a statement parser: a
// payload fails when a destructive keyword occurs anywhere in it, whatever
// its casing. Matches inside identifiers count too, so `created_at` is
// rejected along with `CREATE TABLE`, while obfuscated statements (comments
// splitting a keyword) still pass.
type SQLPredicatePolicy struct {
	pattern *regexp.Regexp
}

func NewSQLPredicatePolicy() *SQLPredicatePolicy {
	return &SQLPredicatePolicy{
		pattern: regexp.MustCompile(`(?i)(` + strings.Join(DestructivePredicates, "|") + `)`),
	}
}

func (p *SQLPredicatePolicy) Name() string { return PolicySQL }

func (p *SQLPredicatePolicy) Check(_ context.Context, payload string) error {
	if m := p.pattern.FindString(payload); m != "" {
		return &ValidationError{
			Policy: PolicySQL,
			Detail: fmt.Sprintf("query contains forbidden predicate %q", strings.ToUpper(m)),
		}
	}
	return nil
}
