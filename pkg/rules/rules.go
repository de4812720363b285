// Package rules provides the routing decisions of the relay pipeline: which
// forwarding rule a subject line maps to, and whether a sender is allowed to
// use the relay at all.
package rules

import (
	"fmt"
	"strings"
)

// ForwardRule routes messages whose subject contains Tag to Recipients.
// Rules are loaded once at startup and never mutated.
type ForwardRule struct {
	// Tag is matched as a case-insensitive substring of the subject.
	Tag string `toml:"tag" json:"tag"`
	// Recipients receive forwarded copies. Order is preserved for
	// deterministic iteration only; it carries no priority.
	Recipients []string `toml:"recipients" json:"recipients"`
}

// Matcher maps a subject line to at most one ForwardRule.
type Matcher struct {
	rules []ForwardRule
	tags  []string // lowercased, index-aligned with rules
}

// NewMatcher creates a Matcher over the given rules. Configuration order is
// significant: overlapping tags are resolved by first match.
func NewMatcher(forwardRules []ForwardRule) (*Matcher, error) {
	if len(forwardRules) == 0 {
		return nil, fmt.Errorf("at least one forward rule is required")
	}
	tags := make([]string, len(forwardRules))
	for i, r := range forwardRules {
		if strings.TrimSpace(r.Tag) == "" {
			return nil, fmt.Errorf("rule %d has an empty tag", i)
		}
		if len(r.Recipients) == 0 {
			return nil, fmt.Errorf("rule %q has no recipients", r.Tag)
		}
		tags[i] = strings.ToLower(r.Tag)
	}
	return &Matcher{rules: forwardRules, tags: tags}, nil
}

// Match returns the first rule, in configured order, whose tag is a
// case-insensitive substring of the subject. The second return value is false
// when no rule matches.
func (m *Matcher) Match(subject string) (ForwardRule, bool) {
	lowered := strings.ToLower(subject)
	for i, tag := range m.tags {
		if strings.Contains(lowered, tag) {
			return m.rules[i], true
		}
	}
	return ForwardRule{}, false
}

// Rules returns a copy of the configured rule list for external rendering.
func (m *Matcher) Rules() []ForwardRule {
	out := make([]ForwardRule, len(m.rules))
	copy(out, m.rules)
	return out
}

// SenderFilter evaluates the sender allow-list. An empty list allows all
// senders: absence of configuration means no restriction.
type SenderFilter struct {
	allow []string // lowercased at construction
}

// NewSenderFilter creates a SenderFilter from the configured allow-list
// entries. Entries may be full addresses or bare domains such as
// "@example.com".
func NewSenderFilter(entries []string) *SenderFilter {
	allow := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		allow = append(allow, strings.ToLower(e))
	}
	return &SenderFilter{allow: allow}
}

// Allowed reports whether the sender passes the allow-list. A sender is
// allowed iff the list is empty, or its lowercased address contains at least
// one entry. Substring containment, not equality, so domain entries match any
// sender at that domain. No wildcard or regex syntax.
func (f *SenderFilter) Allowed(sender string) bool {
	if len(f.allow) == 0 {
		return true
	}
	lowered := strings.ToLower(sender)
	for _, entry := range f.allow {
		if strings.Contains(lowered, entry) {
			return true
		}
	}
	return false
}
