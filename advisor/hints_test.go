package advisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeElaborationHint(t *testing.T) {
	t.Parallel()

	hint := DecodeElaborationHint(map[string]any{
		"rationale":      " agents share the same quota ",
		"action_details": map[string]any{"appoint_mediator": "pick agent-c", "bad": 7},
		"follow_ups":     []string{"review in 2 days", ""},
	})

	assert.Equal(t, "agents share the same quota", hint.Rationale)
	assert.Equal(t, map[string]string{"appoint_mediator": "pick agent-c"}, hint.ActionDetails)
	assert.Equal(t, []string{"review in 2 days"}, hint.FollowUps)
}

func TestDecodeAlternativesHint(t *testing.T) {
	t.Parallel()

	hint := DecodeAlternativesHint(map[string]any{
		"alternatives": []any{
			"rotate ownership weekly",
			map[string]any{"description": "split", "terms": map[string]any{"gpu_hours": 40.0, "weeks": 2}},
			map[string]any{},
			42,
		},
	})

	require.Len(t, hint.Alternatives, 2)
	assert.Equal(t, "rotate ownership weekly", hint.Alternatives[0].Description)
	assert.Equal(t, map[string]float64{"gpu_hours": 40, "weeks": 2}, hint.Alternatives[1].Terms)
}

func TestDecode_MalformedIgnored(t *testing.T) {
	t.Parallel()

	assert.Equal(t, StructureHint{}, DecodeStructureHint(nil))
	assert.Equal(t, StructureHint{}, DecodeStructureHint(map[string]any{"topology": 3, "protocols": "x"}))
	assert.Empty(t, DecodeAlternativesHint(map[string]any{"alternatives": "none"}).Alternatives)
}

func TestTermsPayload(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a=1", "b=2.5"}, TermsPayload(map[string]float64{"b": 2.5, "a": 1}))
}
