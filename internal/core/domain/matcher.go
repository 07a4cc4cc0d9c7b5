package domain

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Rule maps a product-name substring to a resource. Policy overrides the
// service default when set.
type Rule struct {
	Pattern    string     `json:"pattern" mapstructure:"pattern"`
	ResourceID ResourceID `json:"resource_id" mapstructure:"resource_id"`
	Policy     *Policy    `json:"policy,omitempty" mapstructure:"policy"`
}

// DefaultRules is the shipped rule table. Order is significant: the first
// matching rule wins.
var DefaultRules = []Rule{
	{Pattern: "Killarney Town", ResourceID: ResourceTown},
	{Pattern: "Discover Killarney National Park", ResourceID: ResourceNational},
	{Pattern: "Hag's Glen", ResourceID: ResourceHags},
	{Pattern: "Muckross Park", ResourceID: ResourceMuckross},
	{Pattern: "Ross Island", ResourceID: ResourceRoss},
}

type compiledRule struct {
	folded string
	rule   Rule
}

// Matcher resolves normalized product names against an ordered rule list.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher compiles rules in declared order. Every rule must reference a
// resource in catalog.
func NewMatcher(rules []Rule, catalog *Catalog) (*Matcher, error) {
	m := &Matcher{}
	for i, r := range rules {
		pattern := NormalizeName(r.Pattern)
		if pattern == "" {
			return nil, fmt.Errorf("rule %d: empty pattern", i)
		}
		if catalog != nil && !catalog.Has(r.ResourceID) {
			return nil, fmt.Errorf("rule %d (%q): unknown resource %q", i, r.Pattern, r.ResourceID)
		}
		m.rules = append(m.rules, compiledRule{folded: fold(pattern), rule: r})
	}
	return m, nil
}

// Match returns the first rule whose pattern is contained in name. ok is false
// when nothing matches, which is an expected outcome for unknown products.
func (m *Matcher) Match(name string) (Rule, bool) {
	folded := fold(NormalizeName(name))
	if folded == "" {
		return Rule{}, false
	}
	for _, cr := range m.rules {
		if strings.Contains(folded, cr.folded) {
			return cr.rule, true
		}
	}
	return Rule{}, false
}

// Rules returns the configured rules in match order.
func (m *Matcher) Rules() []Rule {
	out := make([]Rule, len(m.rules))
	for i, cr := range m.rules {
		out[i] = cr.rule
	}
	return out
}

// fold applies Unicode case folding. A Caser is stateful, so one is built per call.
func fold(s string) string {
	return cases.Fold().String(s)
}
