package model

import (
	"fmt"
	"slices"
	"strings"
)

// Kind identifies a category of configuration object.
type Kind string

const (
	KindAction        Kind = "action"
	KindList          Kind = "list"
	KindExclusion     Kind = "exclusion"
	KindFeed          Kind = "feed"
	KindRule          Kind = "rule"
	KindRuleAction    Kind = "rule_action"
	KindRuleExclusion Kind = "rule_exclusion"
)

// AllKinds lists every kind in canonical migration order.
// The position of a kind in this slice is its rank for deterministic ordering.
var AllKinds = []Kind{
	KindAction,
	KindList,
	KindExclusion,
	KindFeed,
	KindRule,
	KindRuleAction,
	KindRuleExclusion,
}

// kindAliases maps accepted spellings to kinds, plural and hyphenated forms
// included.
var kindAliases = map[string]Kind{
	"action":           KindAction,
	"actions":          KindAction,
	"list":             KindList,
	"lists":            KindList,
	"exclusion":        KindExclusion,
	"exclusions":       KindExclusion,
	"feed":             KindFeed,
	"feeds":            KindFeed,
	"rule":             KindRule,
	"rules":            KindRule,
	"rule_action":      KindRuleAction,
	"rule-action":      KindRuleAction,
	"rule_actions":     KindRuleAction,
	"actions-to-rules": KindRuleAction,
	"rule_exclusion":   KindRuleExclusion,
	"rule-exclusion":   KindRuleExclusion,
	"rule_exclusions":  KindRuleExclusion,
	"rule-exclusions":  KindRuleExclusion,
}

// ParseKind converts a user-supplied kind name to a Kind.
func ParseKind(s string) (Kind, error) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown kind %q: must be one of %v", s, AllKinds)
	}
	return k, nil
}

// ParseKinds parses a list of kind names, dropping duplicates.
func ParseKinds(names []string) ([]Kind, error) {
	var kinds []Kind
	for _, name := range names {
		k, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(kinds, k) {
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

// Rank returns the position of the kind in AllKinds, or len(AllKinds) if unknown.
func (k Kind) Rank() int {
	if i := slices.Index(AllKinds, k); i >= 0 {
		return i
	}
	return len(AllKinds)
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return slices.Contains(AllKinds, k)
}

// Plural returns the collection name used by the platform API.
func (k Kind) Plural() string {
	return string(k) + "s"
}

// Key identifies one object on one instance.
type Key struct {
	Kind Kind   `json:"kind" yaml:"kind"`
	ID   string `json:"id" yaml:"id"`
}

// String returns "kind/id".
func (k Key) String() string {
	return string(k.Kind) + "/" + k.ID
}

// ParseKey parses the "kind/id" form produced by Key.String.
func ParseKey(s string) (Key, error) {
	kindName, id, ok := strings.Cut(s, "/")
	if !ok || id == "" {
		return Key{}, fmt.Errorf("invalid key %q: expected kind/id", s)
	}
	kind, err := ParseKind(kindName)
	if err != nil {
		return Key{}, err
	}
	return Key{Kind: kind, ID: id}, nil
}

// CompareKeys orders keys by kind rank, then ID.
func CompareKeys(a, b Key) int {
	if a.Kind != b.Kind {
		return a.Kind.Rank() - b.Kind.Rank()
	}
	return strings.Compare(a.ID, b.ID)
}
