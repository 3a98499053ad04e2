package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHashNormalizesText(t *testing.T) {
	a := NewObject(KindRule, "r1", "Rule", map[string]any{"source": "type.inbound\r\nand true\n"})
	b := NewObject(KindRule, "r2", "Other", map[string]any{"source": "  type.inbound\nand true"})

	require.NotEmpty(t, ContentHash(a))
	assert.Equal(t, ContentHash(a), ContentHash(b))
	assert.Len(t, ContentHash(a), 64)
}

func TestContentHashDiffersOnContent(t *testing.T) {
	a := NewObject(KindExclusion, "e1", "E", map[string]any{"source": "sender.email.domain.domain == 'a.com'"})
	b := NewObject(KindExclusion, "e1", "E", map[string]any{"source": "sender.email.domain.domain == 'b.com'"})
	assert.NotEqual(t, ContentHash(a), ContentHash(b))
}

func TestContentHashEmptyForKindsWithoutContent(t *testing.T) {
	action := NewObject(KindAction, "a1", "Notify", map[string]any{"type": "webhook"})
	assert.Empty(t, ContentHash(action))

	blank := NewObject(KindRule, "r1", "Blank", map[string]any{"source": "   "})
	assert.Empty(t, ContentHash(blank))
}

func TestContentHashDomainSeparated(t *testing.T) {
	// The same bytes hashed under different domains must not collide.
	assert.NotEqual(t, hashWithDomain(DomainContent, []byte("x")), hashWithDomain(DomainFields, []byte("x")))
}

func TestFieldsHashIgnoresKeyOrderAndNumberForm(t *testing.T) {
	a := NewObject(KindAction, "a1", "A", map[string]any{"config": map[string]any{"url": "https://x", "n": 1}})
	b := NewObject(KindAction, "a2", "A", map[string]any{"config": map[string]any{"n": int64(1), "url": "https://x"}})

	ha, err := FieldsHash(a, []string{"config", "active"})
	require.NoError(t, err)
	hb, err := FieldsHash(b, []string{"config", "active"})
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestRuleExclusionIDStable(t *testing.T) {
	id := RuleExclusionID("r1", "sender.email.email == 'a@b.c'")
	assert.Equal(t, id, RuleExclusionID("r1", "sender.email.email == 'a@b.c'\n"))
	assert.Regexp(t, `^r1:[0-9a-f]{12}$`, id)
}
