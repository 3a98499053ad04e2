package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cfgmigrate/internal/graph"
	"github.com/roach88/cfgmigrate/internal/identity"
	"github.com/roach88/cfgmigrate/internal/model"
)

func key(k model.Kind, id string) model.Key {
	return model.Key{Kind: k, ID: id}
}

func plan(t *testing.T, src, dest []model.Object, sel graph.Selection, opts Options) *Plan {
	t.Helper()
	g, err := graph.Build(model.NewInventory(src...), sel)
	require.NoError(t, err)
	r := identity.NewResolver(model.NewInventory(dest...), identity.NewIdentityMap())
	p, err := Build(g, r, opts)
	require.NoError(t, err)
	return p
}

func actions(p *Plan) map[model.Key]Action {
	out := map[model.Key]Action{}
	for _, s := range p.Steps {
		out[s.Key] = s.Action
	}
	return out
}

// TestBuild_CreatesMissingObjects verifies NotFound objects become CREATE
// with payloads holding source IDs.
func TestBuild_CreatesMissingObjects(t *testing.T) {
	src := []model.Object{
		model.NewObject(model.KindAction, "a1", "Notify", map[string]any{"type": "webhook", "active": true}),
		model.NewObject(model.KindRule, "r1", "Phish", map[string]any{"type": "detection", "source": "type.inbound", "action_ids": []string{"a1"}}),
	}
	p := plan(t, src, nil, graph.Selection{}, Options{})

	require.Len(t, p.Steps, 2)
	assert.Equal(t, key(model.KindAction, "a1"), p.Steps[0].Key)
	assert.Equal(t, ActionCreate, p.Steps[0].Action)
	assert.Equal(t, map[string]any{"name": "Notify", "type": "webhook", "active": true}, p.Steps[0].Payload)

	rule := p.Steps[1]
	assert.Equal(t, ActionCreate, rule.Action)
	assert.Equal(t, []any{"a1"}, rule.Payload["action_ids"])
	assert.Equal(t, []model.Key{key(model.KindAction, "a1")}, rule.Deps)
	assert.Equal(t, 1, rule.Index)
	assert.True(t, p.HasWork())
}

// TestBuild_ExistingInSyncIsSkipped verifies identical objects are skipped.
func TestBuild_ExistingInSyncIsSkipped(t *testing.T) {
	obj := map[string]any{"entry_type": "string", "entries": []string{"a", "b"}}
	p := plan(t,
		[]model.Object{model.NewObject(model.KindList, "l1", "vips", obj)},
		[]model.Object{model.NewObject(model.KindList, "d1", "vips", obj)},
		graph.Selection{}, Options{UpdateExisting: true})

	require.Len(t, p.Steps, 1)
	assert.Equal(t, ActionSkip, p.Steps[0].Action)
	assert.Equal(t, "d1", p.Steps[0].DestinationID)
	assert.Contains(t, p.Steps[0].Reason, "already in sync")
	assert.False(t, p.HasWork())
}

// TestBuild_UpdateOnlyChangedFields verifies UPDATE sends only differing fields.
func TestBuild_UpdateOnlyChangedFields(t *testing.T) {
	src := model.NewObject(model.KindList, "l1", "vips", map[string]any{"entry_type": "string", "entries": []string{"a", "b"}, "description": "same"})
	dest := model.NewObject(model.KindList, "d1", "vips", map[string]any{"entry_type": "string", "entries": []string{"a"}, "description": "same"})

	p := plan(t, []model.Object{src}, []model.Object{dest}, graph.Selection{}, Options{UpdateExisting: true})
	step := p.Steps[0]
	assert.Equal(t, ActionUpdate, step.Action)
	assert.Equal(t, []string{"entries"}, step.Changes)
	assert.Equal(t, map[string]any{"entries": []any{"a", "b"}}, step.Payload)
	assert.Equal(t, "d1", step.DestinationID)

	p = plan(t, []model.Object{src}, []model.Object{dest}, graph.Selection{}, Options{})
	assert.Equal(t, ActionSkip, p.Steps[0].Action)
	assert.Contains(t, p.Steps[0].Reason, "updates disabled")
}

// TestBuild_AmbiguousPropagatesConflict verifies an ambiguous object and
// every transitive dependent become CONFLICT.
func TestBuild_AmbiguousPropagatesConflict(t *testing.T) {
	src := []model.Object{
		model.NewObject(model.KindAction, "a1", "Notify", map[string]any{"type": "webhook"}),
		model.NewObject(model.KindAction, "a2", "Other", map[string]any{"type": "webhook"}),
		model.NewObject(model.KindRule, "r1", "Phish", map[string]any{"action_ids": []string{"a1"}}),
		{Kind: model.KindRuleAction, ID: "r1:a2", Fields: map[string]any{"rule_id": "r1", "action_id": "a2"}},
	}
	dest := []model.Object{
		model.NewObject(model.KindAction, "d1", "Notify", map[string]any{"type": "webhook"}),
		model.NewObject(model.KindAction, "d2", "Notify", map[string]any{"type": "webhook"}),
	}
	p := plan(t, src, dest, graph.Selection{}, Options{})

	got := actions(p)
	assert.Equal(t, ActionConflict, got[key(model.KindAction, "a1")])
	assert.Equal(t, ActionCreate, got[key(model.KindAction, "a2")])
	assert.Equal(t, ActionConflict, got[key(model.KindRule, "r1")])
	assert.Equal(t, ActionConflict, got[key(model.KindRuleAction, "r1:a2")])

	r1, _ := p.Step(key(model.KindRule, "r1"))
	assert.Equal(t, "blocked by conflicted dependency action/a1", r1.Reason)
	a1, _ := p.Step(key(model.KindAction, "a1"))
	assert.Contains(t, a1.Reason, "d1, d2")
}

// TestBuild_MissingDependencyConflicts verifies a skipped dependency kind
// makes the dependent CONFLICT.
func TestBuild_MissingDependencyConflicts(t *testing.T) {
	src := []model.Object{
		model.NewObject(model.KindFeed, "f1", "Team", nil),
		model.NewObject(model.KindRule, "r1", "Phish", map[string]any{"feed_id": "f1"}),
	}
	p := plan(t, src, nil, graph.Selection{SkipKinds: []model.Kind{model.KindFeed}}, Options{})

	require.Len(t, p.Steps, 1)
	assert.Equal(t, ActionConflict, p.Steps[0].Action)
	assert.Equal(t, "dependency unavailable: feed f1 (kind is skipped)", p.Steps[0].Reason)
}

// TestBuild_AssociationAttachedByRuleCreate verifies an association carried
// by a created rule's payload is skipped.
func TestBuild_AssociationAttachedByRuleCreate(t *testing.T) {
	src := []model.Object{
		model.NewObject(model.KindAction, "a1", "Notify", map[string]any{"type": "webhook"}),
		model.NewObject(model.KindRule, "r1", "Phish", map[string]any{"action_ids": []string{"a1"}}),
		{Kind: model.KindRuleAction, ID: "r1:a1", Fields: map[string]any{"rule_id": "r1", "action_id": "a1"}},
	}
	p := plan(t, src, nil, graph.Selection{}, Options{})

	s, ok := p.Step(key(model.KindRuleAction, "r1:a1"))
	require.True(t, ok)
	assert.Equal(t, ActionSkip, s.Action)
	assert.Equal(t, "attached by rule create", s.Reason)
}

// TestBuild_AssociationOnExistingRule verifies associations are created for
// rules that already exist and skipped when already attached.
func TestBuild_AssociationOnExistingRule(t *testing.T) {
	src := []model.Object{
		model.NewObject(model.KindAction, "a1", "Notify", map[string]any{"type": "webhook"}),
		model.NewObject(model.KindAction, "a2", "Page", map[string]any{"type": "webhook"}),
		model.NewObject(model.KindRule, "r1", "Phish", map[string]any{"action_ids": []string{"a1", "a2"}}),
		{Kind: model.KindRuleAction, ID: "r1:a1", Fields: map[string]any{"rule_id": "r1", "action_id": "a1"}},
		{Kind: model.KindRuleAction, ID: "r1:a2", Fields: map[string]any{"rule_id": "r1", "action_id": "a2"}},
	}
	dest := []model.Object{
		model.NewObject(model.KindAction, "da1", "Notify", map[string]any{"type": "webhook"}),
		model.NewObject(model.KindAction, "da2", "Page", map[string]any{"type": "webhook"}),
		model.NewObject(model.KindRule, "dr1", "Phish", map[string]any{"action_ids": []string{"da1"}}),
		{Kind: model.KindRuleAction, ID: "dr1:da1", Fields: map[string]any{"rule_id": "dr1", "action_id": "da1"}},
	}
	p := plan(t, src, dest, graph.Selection{}, Options{})

	got := actions(p)
	assert.Equal(t, ActionSkip, got[key(model.KindRule, "r1")])
	assert.Equal(t, ActionSkip, got[key(model.KindRuleAction, "r1:a1")])
	assert.Equal(t, ActionCreate, got[key(model.KindRuleAction, "r1:a2")])

	s, _ := p.Step(key(model.KindRuleAction, "r1:a1"))
	assert.Equal(t, "dr1:da1", s.DestinationID)
}

// TestBuild_RuleExclusionReason verifies recognised exclusions are described.
func TestBuild_RuleExclusionReason(t *testing.T) {
	rule := model.NewObject(model.KindRule, "r1", "Phish", map[string]any{
		"exclusions": []string{"sender.email.email == 'ceo@corp.com'"},
	})
	src := append([]model.Object{rule}, model.RuleExclusions(rule)...)
	p := plan(t, src, nil, graph.Selection{}, Options{})

	require.Len(t, p.Steps, 2)
	assert.Equal(t, model.KindRuleExclusion, p.Steps[1].Key.Kind)
	assert.Equal(t, "not found in destination (sender_email: ceo@corp.com)", p.Steps[1].Reason)
}

// TestBuild_PlanIsPureWithRespectToDestination verifies the same inputs
// always produce the same plan.
func TestBuild_PlanIsPureWithRespectToDestination(t *testing.T) {
	src := []model.Object{
		model.NewObject(model.KindList, "l1", "vips", map[string]any{"entry_type": "string"}),
		model.NewObject(model.KindExclusion, "e1", "Skip", map[string]any{"source": "$vips"}),
	}
	first := plan(t, src, nil, graph.Selection{}, Options{DryRun: true})
	second := plan(t, src, nil, graph.Selection{}, Options{})
	assert.Equal(t, first.Steps, second.Steps)
}

// TestPlanSummary verifies per-action counts.
func TestPlanSummary(t *testing.T) {
	p := FromSteps(
		Step{Key: key(model.KindAction, "a"), Action: ActionCreate},
		Step{Key: key(model.KindAction, "b"), Action: ActionCreate},
		Step{Key: key(model.KindList, "c"), Action: ActionConflict},
	)
	assert.Equal(t, Summary{ActionCreate: 2, ActionConflict: 1}, p.Summary())
	s, ok := p.Step(key(model.KindList, "c"))
	require.True(t, ok)
	assert.Equal(t, 2, s.Index)

	_, err := Build(nil, nil, Options{})
	assert.Error(t, err)
}
