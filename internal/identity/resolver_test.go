package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cfgmigrate/internal/model"
)

func newResolver(dest ...model.Object) *Resolver {
	return NewResolver(model.NewInventory(dest...), NewIdentityMap())
}

// TestResolve_ByName verifies name + discriminator matching and pinning.
func TestResolve_ByName(t *testing.T) {
	r := newResolver(
		model.NewObject(model.KindList, "d1", "vips", map[string]any{"entry_type": "user_group"}),
		model.NewObject(model.KindList, "d2", "vips", map[string]any{"entry_type": "string"}),
	)
	src := model.NewObject(model.KindList, "l1", "vips", map[string]any{"entry_type": "string"})

	res := r.Resolve(src)
	assert.Equal(t, StatusFound, res.Status)
	assert.Equal(t, "d2", res.DestinationID)
	assert.Equal(t, ViaName, res.Via)
	require.NotNil(t, res.Destination)

	id, ok := r.IDs().Lookup(src.Key())
	assert.True(t, ok)
	assert.Equal(t, "d2", id)

	again := r.Resolve(src)
	assert.Equal(t, ViaPinned, again.Via)
	assert.Equal(t, "d2", again.DestinationID)
}

// TestResolve_NameIsCaseSensitive verifies names must match exactly.
func TestResolve_NameIsCaseSensitive(t *testing.T) {
	r := newResolver(model.NewObject(model.KindFeed, "d1", "Team Feed", nil))
	res := r.Resolve(model.NewObject(model.KindFeed, "f1", "team feed", nil))
	assert.Equal(t, StatusNotFound, res.Status)
}

// TestResolve_MultipleNameMatchesAmbiguous verifies duplicate names are ambiguous.
func TestResolve_MultipleNameMatchesAmbiguous(t *testing.T) {
	r := newResolver(
		model.NewObject(model.KindAction, "d2", "Notify", map[string]any{"type": "webhook"}),
		model.NewObject(model.KindAction, "d1", "Notify", map[string]any{"type": "webhook"}),
	)
	res := r.Resolve(model.NewObject(model.KindAction, "a1", "Notify", map[string]any{"type": "webhook"}))

	assert.Equal(t, StatusAmbiguous, res.Status)
	assert.Equal(t, []string{"d1", "d2"}, res.Candidates)
	assert.Zero(t, r.IDs().Len(), "ambiguous results are never pinned")
}

// TestResolve_ByContent verifies renamed rules match on content.
func TestResolve_ByContent(t *testing.T) {
	r := newResolver(model.NewObject(model.KindRule, "d1", "Renamed", map[string]any{"type": "detection", "source": "type.inbound\n"}))
	res := r.Resolve(model.NewObject(model.KindRule, "r1", "Original", map[string]any{"type": "detection", "source": "type.inbound"}))

	assert.Equal(t, StatusFound, res.Status)
	assert.Equal(t, ViaContent, res.Via)
	assert.Equal(t, "d1", res.DestinationID)
}

// TestResolve_NameAndContentDisagree verifies a conflicting content match is ambiguous.
func TestResolve_NameAndContentDisagree(t *testing.T) {
	r := newResolver(
		model.NewObject(model.KindRule, "d1", "Phish", map[string]any{"type": "detection", "source": "old"}),
		model.NewObject(model.KindRule, "d2", "Copy", map[string]any{"type": "detection", "source": "new"}),
	)
	res := r.Resolve(model.NewObject(model.KindRule, "r1", "Phish", map[string]any{"type": "detection", "source": "new"}))

	assert.Equal(t, StatusAmbiguous, res.Status)
	assert.Equal(t, []string{"d1", "d2"}, res.Candidates)
}

// TestResolve_NameAndContentAgree verifies a match on both is found by name.
func TestResolve_NameAndContentAgree(t *testing.T) {
	r := newResolver(model.NewObject(model.KindRule, "d1", "Phish", map[string]any{"type": "detection", "source": "x"}))
	res := r.Resolve(model.NewObject(model.KindRule, "r1", "Phish", map[string]any{"type": "detection", "source": "x"}))
	assert.Equal(t, ViaName, res.Via)
}

// TestResolve_MultipleContentMatchesAmbiguous verifies duplicate content is ambiguous.
func TestResolve_MultipleContentMatchesAmbiguous(t *testing.T) {
	r := newResolver(
		model.NewObject(model.KindExclusion, "d1", "A", map[string]any{"source": "x"}),
		model.NewObject(model.KindExclusion, "d2", "B", map[string]any{"source": "x"}),
	)
	res := r.Resolve(model.NewObject(model.KindExclusion, "e1", "C", map[string]any{"source": "x"}))
	assert.Equal(t, StatusAmbiguous, res.Status)
}

// TestResolve_LinkAnnotation verifies a valid link wins and a stale one is ignored.
func TestResolve_LinkAnnotation(t *testing.T) {
	r := newResolver(
		model.NewObject(model.KindAction, "d1", "Old Name", map[string]any{"type": "webhook"}),
		model.NewObject(model.KindAction, "d2", "Notify", map[string]any{"type": "webhook"}),
	)

	linked := model.NewObject(model.KindAction, "a1", "Notify", map[string]any{"type": "webhook"})
	linked.Annotations = map[string]string{model.AnnotationDestinationID: "d1"}
	res := r.Resolve(linked)
	assert.Equal(t, ViaLink, res.Via)
	assert.Equal(t, "d1", res.DestinationID)

	stale := model.NewObject(model.KindAction, "a2", "Notify", map[string]any{"type": "webhook"})
	stale.Annotations = map[string]string{model.AnnotationDestinationID: "deleted"}
	res = r.Resolve(stale)
	assert.Equal(t, ViaName, res.Via)
	assert.Equal(t, "d2", res.DestinationID)
}

// TestResolve_ClaimedDestinationAmbiguous verifies two sources cannot share a destination.
func TestResolve_ClaimedDestinationAmbiguous(t *testing.T) {
	r := newResolver(model.NewObject(model.KindRule, "d1", "Renamed", map[string]any{"source": "x"}))

	first := r.Resolve(model.NewObject(model.KindRule, "r1", "A", map[string]any{"source": "x"}))
	require.Equal(t, StatusFound, first.Status)

	second := r.Resolve(model.NewObject(model.KindRule, "r2", "B", map[string]any{"source": "x"}))
	assert.Equal(t, StatusAmbiguous, second.Status)
	assert.Contains(t, second.Reason, "already matched by source r1")
}

// TestResolve_Association verifies associations resolve through mapped parents.
func TestResolve_Association(t *testing.T) {
	r := newResolver(model.Object{
		Kind:   model.KindRuleAction,
		ID:     "dr1:da1",
		Fields: map[string]any{"rule_id": "dr1", "action_id": "da1"},
	})
	assoc := model.Object{Kind: model.KindRuleAction, ID: "r1:a1", Fields: map[string]any{"rule_id": "r1", "action_id": "a1"}}

	assert.Equal(t, StatusNotFound, r.Resolve(assoc).Status, "parents not mapped yet")

	require.NoError(t, r.IDs().Pin(model.Key{Kind: model.KindRule, ID: "r1"}, "dr1"))
	require.NoError(t, r.IDs().Pin(model.Key{Kind: model.KindAction, ID: "a1"}, "da1"))
	res := r.Resolve(assoc)
	assert.Equal(t, StatusFound, res.Status)
	assert.Equal(t, ViaComposite, res.Via)
	assert.Equal(t, "dr1:da1", res.DestinationID)
}

// TestResolve_RuleExclusion verifies rule exclusions match on parent and content.
func TestResolve_RuleExclusion(t *testing.T) {
	destRule := model.NewObject(model.KindRule, "dr1", "Phish", map[string]any{
		"exclusions": []string{"sender.email.domain.domain == 'a.com'"},
	})
	r := newResolver(model.RuleExclusions(destRule)...)
	require.NoError(t, r.IDs().Pin(model.Key{Kind: model.KindRule, ID: "r1"}, "dr1"))

	srcRule := model.NewObject(model.KindRule, "r1", "Phish", map[string]any{
		"exclusions": []string{"sender.email.domain.domain == 'a.com'", "type.outbound"},
	})
	excl := model.RuleExclusions(srcRule)

	res := r.Resolve(excl[0])
	assert.Equal(t, StatusFound, res.Status)
	assert.Equal(t, model.RuleExclusionID("dr1", "sender.email.domain.domain == 'a.com'"), res.DestinationID)

	assert.Equal(t, StatusNotFound, r.Resolve(excl[1]).Status)
}
