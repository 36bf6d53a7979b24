package service

import (
	"fmt"
	"regexp"
	"strings"
)

// Definition is a registered service (relying party) record. The identity
// fields are interpreted by the registry; everything else lives in Body and
// is passed through untouched.
type Definition struct {
	ID               int64          `json:"id" yaml:"id"`
	Name             string         `json:"name,omitempty" yaml:"name,omitempty"`
	ServiceIDPattern string         `json:"serviceIdPattern" yaml:"serviceIdPattern"`
	EvaluationOrder  int            `json:"evaluationOrder,omitempty" yaml:"evaluationOrder,omitempty"`
	Body             map[string]any `json:"body,omitempty" yaml:"body,omitempty"`
}

// Validate checks the fields the registry requires before a definition can
// be saved. Body contents are never inspected.
func (d *Definition) Validate() error {
	if d.ID <= 0 {
		return fmt.Errorf("definition id must be a positive integer, got %d", d.ID)
	}
	if strings.TrimSpace(d.ServiceIDPattern) == "" {
		return fmt.Errorf("definition %d is missing a serviceIdPattern", d.ID)
	}
	return nil
}

// Clone returns a deep copy. Callers of the registry only ever see clones,
// so mutating a returned definition never touches indexed state.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	out := *d
	out.Body = cloneBody(d.Body)
	return &out
}

func cloneBody(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneBody(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Matcher decides whether a service identifier is covered by a definition's
// pattern. Patterns that compile as regular expressions match that way;
// anything else falls back to exact string comparison.
type Matcher struct {
	re    *regexp.Regexp
	exact string
}

// CompileMatcher builds a Matcher for the given pattern. It never fails:
// an invalid regular expression degrades to an exact-string match.
func CompileMatcher(pattern string) Matcher {
	if re, err := regexp.Compile(pattern); err == nil {
		return Matcher{re: re}
	}
	return Matcher{exact: pattern}
}

// Match reports whether the service identifier is matched by the pattern.
func (m Matcher) Match(serviceID string) bool {
	if m.re != nil {
		return m.re.MatchString(serviceID)
	}
	return m.exact == serviceID
}

// Less orders definitions for lookup selection: lowest evaluation order
// first, ties broken by ascending id so the winner is stable across runs.
func Less(a, b *Definition) bool {
	if a.EvaluationOrder != b.EvaluationOrder {
		return a.EvaluationOrder < b.EvaluationOrder
	}
	return a.ID < b.ID
}
