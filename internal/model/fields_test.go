package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryKindHasSpec(t *testing.T) {
	for _, k := range AllKinds {
		spec, ok := SpecFor(k)
		require.True(t, ok, k)
		assert.Equal(t, k, spec.Kind)
	}
	assert.False(t, MustSpec(KindRuleAction).Named)
	assert.False(t, MustSpec(KindRuleExclusion).Named)
}

func TestCreatePayloadIncludesCreateOnlyAndMutable(t *testing.T) {
	rule := NewObject(KindRule, "r1", "Phish", map[string]any{
		"type":       "detection",
		"source":     "type.inbound",
		"severity":   "high",
		"action_ids": []string{"a1"},
		"org_id":     "org-src",
		"created_at": "2024-01-01",
	})

	payload := CreatePayload(rule)
	assert.Equal(t, map[string]any{
		"name":       "Phish",
		"type":       "detection",
		"source":     "type.inbound",
		"severity":   "high",
		"action_ids": []any{"a1"},
	}, payload)
}

func TestCreatePayloadIsACopy(t *testing.T) {
	list := NewObject(KindList, "l1", "vips", map[string]any{"entry_type": "string", "entries": []string{"a"}})
	payload := CreatePayload(list)
	payload["entries"].([]any)[0] = "mutated"
	assert.Equal(t, []string{"a"}, list.Strings("entries"))
}

func TestDiffComparesMutableFieldsOnly(t *testing.T) {
	src := NewObject(KindAction, "a1", "Notify", map[string]any{
		"type":   "webhook",
		"active": true,
		"config": map[string]any{"url": "https://hooks.example/1"},
	})
	dest := NewObject(KindAction, "d1", "Notify", map[string]any{
		"type":   "slack",
		"active": true,
		"config": map[string]any{"url": "https://hooks.example/2"},
	})

	assert.Equal(t, []string{"config"}, Diff(src, dest))
	assert.Empty(t, Diff(src, src.Clone()))
}

func TestDiffIgnoresFieldsAbsentFromSource(t *testing.T) {
	src := NewObject(KindList, "l1", "vips", map[string]any{"entries": []string{"a"}})
	dest := NewObject(KindList, "d1", "vips", map[string]any{"entries": []string{"a"}, "description": "dest only"})
	assert.Empty(t, Diff(src, dest))
}

func TestUpdatePayloadOnlyChangedFields(t *testing.T) {
	src := NewObject(KindFeed, "f1", "Core", map[string]any{"git_url": "https://g/x", "git_branch": "main"})
	assert.Equal(t, map[string]any{"git_branch": "main"}, UpdatePayload(src, []string{"git_branch"}))
}

func TestSameDiscriminators(t *testing.T) {
	a := NewObject(KindList, "l1", "vips", map[string]any{"entry_type": "string"})
	b := NewObject(KindList, "l2", "vips", map[string]any{"entry_type": "user_group"})
	assert.False(t, SameDiscriminators(a, b))
	assert.True(t, SameDiscriminators(a, a))
}

func TestRewriteReferences(t *testing.T) {
	ids := map[Key]string{
		{Kind: KindAction, ID: "a1"}: "dest-a1",
		{Kind: KindAction, ID: "a2"}: "dest-a2",
		{Kind: KindFeed, ID: "f1"}:   "dest-f1",
	}
	lookup := func(k Key) (string, bool) {
		id, ok := ids[k]
		return id, ok
	}
	payload := map[string]any{
		"name":       "Phish",
		"action_ids": []any{"a1", "a2"},
		"feed_id":    "f1",
	}

	out, err := RewriteReferences(KindRule, payload, lookup)
	require.NoError(t, err)
	assert.Equal(t, []any{"dest-a1", "dest-a2"}, out["action_ids"])
	assert.Equal(t, "dest-f1", out["feed_id"])
	assert.Equal(t, []any{"a1", "a2"}, payload["action_ids"], "input must not be modified")
}

func TestRewriteReferencesMissingDestination(t *testing.T) {
	_, err := RewriteReferences(KindRuleAction, map[string]any{"rule_id": "r1", "action_id": "a1"},
		func(Key) (string, bool) { return "", false })

	var unresolved *UnresolvedReferenceError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, Key{Kind: KindRule, ID: "r1"}, unresolved.Key)
}

func TestIsSystem(t *testing.T) {
	assert.True(t, IsSystem(NewObject(KindFeed, "f1", "Core", map[string]any{"is_system": true})))
	assert.False(t, IsSystem(NewObject(KindFeed, "f2", "Mine", nil)))
	assert.True(t, IsSystem(NewObject(KindExclusion, "e1", "Builtin", map[string]any{"created_by_user_name": "System"})))
	assert.False(t, IsSystem(NewObject(KindExclusion, "e2", "Mine", map[string]any{"created_by_user_name": "alice"})))
	assert.False(t, IsSystem(NewObject(KindRule, "r1", "R", map[string]any{"is_system": true})))
}
