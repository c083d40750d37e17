package guardrail

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Policy names known to the gate.
const (
	PolicySQL   = "sql"
	PolicyToxic = "toxic"
)

// ErrUnknownPolicy is returned when a caller asks for a policy the gate does
// not hold. It is distinct from a rejection.
var ErrUnknownPolicy = errors.New("guard not found")

// ValidationError reports that a payload was rejected by a policy.
type ValidationError struct {
	Policy string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Policy, e.Detail)
}

// IsRejection reports whether err is a policy rejection rather than a failure
// to run the check.
func IsRejection(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// Validator is implemented by the in-process Gate and by the remote Client.
type Validator interface {
	IsKnown(policy string) bool
	Validate(ctx context.Context, policy, payload string) error
}

// Policy checks a payload and returns a *ValidationError on rejection.
type Policy interface {
	Name() string
	Check(ctx context.Context, payload string) error
}

// Gate is a stateless validator keyed by policy name.
type Gate struct {
	policies map[string]Policy
}

func NewGate(policies ...Policy) *Gate {
	g := &Gate{policies: make(map[string]Policy, len(policies))}
	for _, p := range policies {
		g.policies[p.Name()] = p
	}
	return g
}

// NewDefaultGate holds the predicate-exclusion and toxicity policies.
func NewDefaultGate(classifier ToxicityClassifier) *Gate {
	return NewGate(NewSQLPredicatePolicy(), NewToxicityPolicy(classifier, DefaultToxicityThreshold))
}

func (g *Gate) IsKnown(policy string) bool {
	_, ok := g.policies[policy]
	return ok
}

// Policies returns the known policy names, sorted.
func (g *Gate) Policies() []string {
	names := make([]string, 0, len(g.policies))
	for name := range g.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (g *Gate) Validate(ctx context.Context, policy, payload string) error {
	p, ok := g.policies[policy]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}
	return p.Check(ctx, payload)
}

var _ Validator = (*Gate)(nil)
