package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeObject decodes one platform JSON record into an Object of kind.
func DecodeObject(kind Kind, raw []byte) (Object, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var rec map[string]any
	if err := dec.Decode(&rec); err != nil {
		return Object{}, fmt.Errorf("decode %s: %w", kind, err)
	}
	return FromRecord(kind, rec)
}

// FromRecord converts a decoded platform record into an Object of kind.
//
// Rules carrying "actions": [{"id": ...}] get an "action_ids" field. Rule
// exclusions carrying "originating_rule": {"id": ...} get a "rule_id" field.
// Associations without an "id" get the composite ID rule_id:action_id.
func FromRecord(kind Kind, rec map[string]any) (Object, error) {
	if !kind.Valid() {
		return Object{}, fmt.Errorf("unknown kind %q", kind)
	}
	fields, err := NormalizeFields(rec)
	if err != nil {
		return Object{}, fmt.Errorf("decode %s: %w", kind, err)
	}
	obj := Object{Kind: kind, Fields: fields}
	obj.ID, _ = fields["id"].(string)
	delete(obj.Fields, "id")
	if MustSpec(kind).Named {
		obj.Name, _ = fields["name"].(string)
	}
	if raw, ok := fields["annotations"].(map[string]any); ok {
		obj.Annotations = make(map[string]string, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				obj.Annotations[k] = s
			}
		}
		delete(obj.Fields, "annotations")
	}

	switch kind {
	case KindRule:
		if _, ok := fields["action_ids"]; !ok {
			if actions, ok := fields["actions"].([]any); ok {
				ids := make([]any, 0, len(actions))
				for _, a := range actions {
					if m, ok := a.(map[string]any); ok {
						if id, ok := m["id"].(string); ok && id != "" {
							ids = append(ids, id)
						}
					}
				}
				obj.Fields["action_ids"] = ids
			}
		}
	case KindRuleExclusion:
		if _, ok := fields["rule_id"]; !ok {
			if rule, ok := fields["originating_rule"].(map[string]any); ok {
				obj.Fields["rule_id"] = rule["id"]
			}
		}
		if obj.ID == "" {
			obj.ID = RuleExclusionID(obj.String("rule_id"), obj.String("source"))
		}
	case KindRuleAction:
		if obj.ID == "" {
			obj.ID = AssociationID(obj.String("rule_id"), obj.String("action_id"))
		}
	}
	if obj.ID == "" {
		return Object{}, fmt.Errorf("decode %s: record has no id", kind)
	}
	return obj, nil
}

// Associations derives the rule-action associations of a rule from its action_ids.
func Associations(rule Object) []Object {
	var out []Object
	for _, actionID := range rule.Strings("action_ids") {
		out = append(out, Object{
			Kind: KindRuleAction,
			ID:   AssociationID(rule.ID, actionID),
			Fields: map[string]any{
				"rule_id":   rule.ID,
				"action_id": actionID,
			},
		})
	}
	return out
}

// RuleExclusions derives the exclusions attached to a rule from its
// "exclusions" list of query strings.
func RuleExclusions(rule Object) []Object {
	var out []Object
	for _, source := range rule.Strings("exclusions") {
		out = append(out, Object{
			Kind: KindRuleExclusion,
			ID:   RuleExclusionID(rule.ID, source),
			Fields: map[string]any{
				"rule_id": rule.ID,
				"source":  source,
			},
		})
	}
	return out
}
