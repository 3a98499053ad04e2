package model

import (
	"fmt"
	"slices"
)

// Slot is a field holding the ID of another object (or a list of IDs).
type Slot struct {
	Field string
	Kind  Kind
	Many  bool
}

// Spec describes how objects of one kind are identified, compared and created.
type Spec struct {
	Kind Kind

	// Named kinds resolve by name + Discriminators. Unnamed kinds resolve
	// through their parents.
	Named          bool
	Discriminators []string

	// Mutable fields are diffed and sent on UPDATE.
	Mutable []string
	// CreateOnly fields are sent on CREATE only.
	CreateOnly []string

	// ContentField is hashed for content matching; empty if none.
	ContentField string

	// Slots hold IDs of other objects and are rewritten before a write.
	Slots []Slot
	// ListRefFields contain query text whose $name tokens reference lists.
	ListRefFields []string
}

var specs = map[Kind]Spec{
	KindAction: {
		Kind:           KindAction,
		Named:          true,
		Discriminators: []string{"type"},
		Mutable:        []string{"active", "config"},
		CreateOnly:     []string{"name", "type"},
	},
	KindList: {
		Kind:           KindList,
		Named:          true,
		Discriminators: []string{"entry_type"},
		Mutable:        []string{"description", "entries", "provider_group_name"},
		CreateOnly:     []string{"name", "entry_type"},
	},
	KindExclusion: {
		Kind:           KindExclusion,
		Named:          true,
		Discriminators: []string{"scope"},
		Mutable:        []string{"description", "source", "active", "tags"},
		CreateOnly:     []string{"name", "scope"},
		ContentField:   "source",
		ListRefFields:  []string{"source"},
	},
	KindFeed: {
		Kind:  KindFeed,
		Named: true,
		Mutable: []string{
			"git_url", "git_branch",
			"detection_rule_file_filter", "triage_rule_file_filter",
			"auto_update_rules", "auto_activate_new_rules",
		},
		CreateOnly: []string{"name"},
	},
	KindRule: {
		Kind:           KindRule,
		Named:          true,
		Discriminators: []string{"type"},
		Mutable: []string{
			"description", "source", "active", "severity", "tags",
			"attack_types", "detection_methods", "false_positives", "maturity",
			"references", "tactics_and_techniques", "user_provided_tags",
			"auto_review_auto_share", "auto_review_classification",
			"triage_abuse_reports", "triage_flagged_messages",
		},
		CreateOnly:   []string{"name", "type", "action_ids", "feed_id"},
		ContentField: "source",
		Slots: []Slot{
			{Field: "action_ids", Kind: KindAction, Many: true},
			{Field: "feed_id", Kind: KindFeed},
		},
		ListRefFields: []string{"source", "exclusions"},
	},
	KindRuleAction: {
		Kind:       KindRuleAction,
		CreateOnly: []string{"rule_id", "action_id"},
		Slots: []Slot{
			{Field: "rule_id", Kind: KindRule},
			{Field: "action_id", Kind: KindAction},
		},
	},
	KindRuleExclusion: {
		Kind:          KindRuleExclusion,
		CreateOnly:    []string{"rule_id", "source"},
		ContentField:  "source",
		Slots:         []Slot{{Field: "rule_id", Kind: KindRule}},
		ListRefFields: []string{"source"},
	},
}

// SpecFor returns the field spec of a kind.
func SpecFor(k Kind) (Spec, bool) {
	s, ok := specs[k]
	return s, ok
}

// MustSpec is like SpecFor but panics on an unknown kind.
func MustSpec(k Kind) Spec {
	s, ok := specs[k]
	if !ok {
		panic(fmt.Sprintf("model: no spec for kind %q", k))
	}
	return s
}

// SameDiscriminators reports whether a and b agree on every discriminator field.
func SameDiscriminators(a, b Object) bool {
	for _, f := range MustSpec(a.Kind).Discriminators {
		if !CanonicalEqual(a.Fields[f], b.Fields[f]) {
			return false
		}
	}
	return true
}

// CreatePayload returns the create-only and mutable fields present on obj.
func CreatePayload(obj Object) map[string]any {
	spec := MustSpec(obj.Kind)
	out := make(map[string]any)
	for _, f := range slices.Concat(spec.CreateOnly, spec.Mutable) {
		if f == "name" && obj.Name != "" {
			out[f] = obj.Name
			continue
		}
		if obj.Has(f) {
			out[f] = cloneValue(obj.Fields[f])
		}
	}
	return out
}

// Diff returns the mutable fields whose source value differs from dest.
// Fields the source does not carry are left alone.
func Diff(src, dest Object) []string {
	var changed []string
	for _, f := range MustSpec(src.Kind).Mutable {
		v, ok := src.Fields[f]
		if !ok {
			continue
		}
		if !CanonicalEqual(v, dest.Fields[f]) {
			changed = append(changed, f)
		}
	}
	return changed
}

// UpdatePayload returns only the named fields of obj.
func UpdatePayload(obj Object, changed []string) map[string]any {
	out := make(map[string]any, len(changed))
	for _, f := range changed {
		out[f] = cloneValue(obj.Fields[f])
	}
	return out
}

// UnresolvedReferenceError reports a reference with no destination ID.
type UnresolvedReferenceError struct {
	Field string
	Key   Key
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("field %s: no destination ID for %s", e.Field, e.Key)
}

// RewriteReferences returns a copy of payload with every reference slot of
// kind replaced by the destination ID from lookup. Slots absent from the
// payload are ignored.
func RewriteReferences(kind Kind, payload map[string]any, lookup func(Key) (string, bool)) (map[string]any, error) {
	out := cloneMap(payload)
	if out == nil {
		out = map[string]any{}
	}
	for _, slot := range MustSpec(kind).Slots {
		v, ok := out[slot.Field]
		if !ok || v == nil {
			continue
		}
		rewrite := func(id string) (string, error) {
			key := Key{Kind: slot.Kind, ID: id}
			dest, ok := lookup(key)
			if !ok {
				return "", &UnresolvedReferenceError{Field: slot.Field, Key: key}
			}
			return dest, nil
		}
		switch val := v.(type) {
		case string:
			if val == "" {
				continue
			}
			dest, err := rewrite(val)
			if err != nil {
				return nil, err
			}
			out[slot.Field] = dest
		case []any:
			ids := make([]any, 0, len(val))
			for _, elem := range val {
				id, ok := elem.(string)
				if !ok {
					return nil, fmt.Errorf("field %s: non-string reference %v", slot.Field, elem)
				}
				dest, err := rewrite(id)
				if err != nil {
					return nil, err
				}
				ids = append(ids, dest)
			}
			out[slot.Field] = ids
		default:
			return nil, fmt.Errorf("field %s: unexpected reference type %T", slot.Field, v)
		}
	}
	return out, nil
}

// systemAuthors are creator names of platform-managed exclusions.
var systemAuthors = []string{"Sublime Security", "System"}

// IsSystem reports whether o is managed by the platform rather than a user:
// feeds flagged is_system, and exclusions created by a system author.
func IsSystem(o Object) bool {
	switch o.Kind {
	case KindFeed:
		return o.Bool("is_system")
	case KindExclusion:
		return slices.Contains(systemAuthors, o.String("created_by_user_name")) ||
			slices.Contains(systemAuthors, o.String("created_by_org_name"))
	}
	return false
}
