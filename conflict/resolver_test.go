package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/collabengine/advisor"
	"github.com/BaSui01/collabengine/types"
)

type fakeHistory map[string]float64

func (h fakeHistory) HistoricalRate(t string) (float64, bool) {
	r, ok := h[t]
	return r, ok
}

func baseConflict() AgentConflict {
	return AgentConflict{
		ID:             "c-1",
		Type:           TypeResourceCompetition,
		InvolvedAgents: []string{"alpha", "bravo"},
		Severity:       types.SeverityMedium,
		Context: Context{
			Description:        "both need the GPU pool",
			ContestedResources: []string{"gpu-pool"},
		},
	}
}

func TestSelectStrategy_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ  Type
		sev  types.Severity
		want Strategy
	}{
		{TypeResourceCompetition, types.SeverityLow, StrategyMediation},
		{TypeResourceCompetition, types.SeverityMedium, StrategyMediation},
		{TypeResourceCompetition, types.SeverityHigh, StrategyArbitration},
		{TypeResourceCompetition, types.SeverityCritical, StrategyEscalation},
		{TypePriorityDisagreement, types.SeverityLow, StrategyArbitration},
		{TypePriorityDisagreement, types.SeverityCritical, StrategyArbitration},
		{TypeMethodologyDisagreement, types.SeverityLow, StrategyCompromise},
		{TypeMethodologyDisagreement, types.SeverityMedium, StrategyMediation},
		{TypeMethodologyDisagreement, types.SeverityHigh, StrategyArbitration},
		{TypeMethodologyDisagreement, types.SeverityCritical, StrategyEscalation},
		{TypeFundamentalDisagreement, types.SeverityMedium, StrategyMediation},
		{TypeFundamentalDisagreement, types.SeverityHigh, StrategyEscalation},
		{TypeFundamentalDisagreement, types.SeverityCritical, StrategyEscalation},
		{Type("scheduling_clash"), types.SeverityLow, StrategyMediation},
		{Type("scheduling_clash"), types.SeverityHigh, StrategyArbitration},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ)+"/"+string(tt.sev), func(t *testing.T) {
			assert.Equal(t, tt.want, SelectStrategy(tt.typ, tt.sev))
		})
	}
}

func TestResolve_ResourceCompetitionMediation(t *testing.T) {
	t.Parallel()

	r := NewResolver(fakeHistory{"resource_competition": 0.8}, nil, DefaultConfig(), zap.NewNop())
	res, err := r.Resolve(context.Background(), baseConflict())
	require.NoError(t, err)

	assert.Equal(t, StrategyMediation, res.Strategy)
	assert.InDelta(t, 0.75, res.SuccessProbability, 1e-9)
	assert.False(t, res.EscalationRequired)
	assert.Nil(t, res.EscalationPath)
	assert.False(t, res.RequiresApproval)
	assert.Equal(t, []State{StateReported, StateClassified, StateStrategySelected, StateActionsGenerated, StateResolved}, res.Transitions)

	require.Len(t, res.Actions, 4)
	assert.Equal(t, "identify_interests", res.Actions[0].Type)
	assert.Contains(t, res.Actions[0].Description, "gpu-pool")
	assert.Equal(t, 24*time.Hour, res.Actions[0].Deadline)
	assert.Equal(t, 96*time.Hour, res.Actions[3].Deadline)
	require.NotEmpty(t, res.FollowUps)
}

func TestResolve_CriticalFundamentalEscalates(t *testing.T) {
	t.Parallel()

	c := baseConflict()
	c.Type = TypeFundamentalDisagreement
	c.Severity = types.SeverityCritical
	c.EscalationLevel = types.EscalationTeam
	c.Impact = ImpactAssessment{AffectedTasks: []string{"t1", "t2"}, Performance: 0.8, Collaboration: 0.6}

	res, err := NewResolver(nil, nil, DefaultConfig(), nil).Resolve(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, StrategyEscalation, res.Strategy)
	assert.True(t, res.EscalationRequired)
	require.NotNil(t, res.EscalationPath)
	assert.Equal(t, types.EscalationTeam, res.EscalationPath.From)
	assert.Equal(t, types.EscalationSystem, res.EscalationPath.To)
	assert.Equal(t, "system_operator", res.EscalationPath.Authority)
	assert.Contains(t, res.EscalationPath.Reason, "critical severity")
	assert.Equal(t, StateEscalated, res.Transitions[len(res.Transitions)-1])

	var descriptions []string
	for _, f := range res.FollowUps {
		descriptions = append(descriptions, f.Description)
	}
	assert.Contains(t, descriptions, "re-plan affected tasks: t1, t2")
}

func TestResolve_LowProbabilityEscalates(t *testing.T) {
	t.Parallel()

	c := baseConflict()
	c.Type = TypePriorityDisagreement
	c.Severity = types.SeverityHigh
	c.Impact = ImpactAssessment{Performance: 1, Timeline: 1, Resource: 1, Collaboration: 1}

	res, err := NewResolver(fakeHistory{"priority_disagreement": 0.2}, nil, DefaultConfig(), nil).
		Resolve(context.Background(), c)
	require.NoError(t, err)

	// 0.5*0.45 + 0.5*0.2 - 0.1 = 0.225
	assert.InDelta(t, 0.225, res.SuccessProbability, 1e-9)
	assert.Equal(t, StrategyArbitration, res.Strategy)
	assert.True(t, res.EscalationRequired)
	assert.Equal(t, types.EscalationAgent, res.EscalationPath.From)
	assert.Equal(t, types.EscalationTeam, res.EscalationPath.To)
}

func TestResolve_AdvisorElaboratesOnly(t *testing.T) {
	t.Parallel()

	adv := advisor.NewClient(advisor.Static{advisor.KindConflictElaboration: {
		"rationale":      "both agents depend on one quota",
		"action_details": map[string]any{"appoint_mediator": "agent charlie is neutral"},
		"follow_ups":     []any{"audit quota usage"},
		"strategy":       "escalation",
	}}, advisor.DefaultConfig(), nil)

	cfg := DefaultConfig()
	cfg.AutoResolution = false
	res, err := NewResolver(nil, adv, cfg, nil).Resolve(context.Background(), baseConflict())
	require.NoError(t, err)

	assert.Equal(t, StrategyMediation, res.Strategy, "advisor must not change the strategy")
	assert.True(t, res.AdvisorUsed)
	assert.True(t, res.RequiresApproval)
	assert.Equal(t, "both agents depend on one quota", res.Rationale)
	assert.Equal(t, "assign a neutral mediator: agent charlie is neutral", res.Actions[1].Description)
	assert.Equal(t, "audit quota usage", res.FollowUps[len(res.FollowUps)-1].Description)
}

func TestResolve_Validation(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil, nil, DefaultConfig(), nil)
	tests := []struct {
		name   string
		mutate func(c *AgentConflict)
	}{
		{"missing id", func(c *AgentConflict) { c.ID = "" }},
		{"missing type", func(c *AgentConflict) { c.Type = "" }},
		{"unknown severity", func(c *AgentConflict) { c.Severity = "urgent" }},
		{"single agent", func(c *AgentConflict) { c.InvolvedAgents = []string{"alpha"} }},
		{"duplicate agents", func(c *AgentConflict) { c.InvolvedAgents = []string{"alpha", "alpha"} }},
		{"bad level", func(c *AgentConflict) { c.EscalationLevel = "board" }},
		{"impact out of range", func(c *AgentConflict) { c.Impact.Resource = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := baseConflict()
			tt.mutate(&c)
			res, err := r.Resolve(context.Background(), c)
			assert.Nil(t, res)
			assert.Equal(t, types.ErrInvalidInput, types.GetErrorCode(err))
		})
	}
}

func TestProperty_EscalationInvariant(t *testing.T) {
	severities := []types.Severity{types.SeverityLow, types.SeverityMedium, types.SeverityHigh, types.SeverityCritical}
	conflictTypes := []Type{TypeResourceCompetition, TypePriorityDisagreement, TypeMethodologyDisagreement, TypeFundamentalDisagreement}

	rapid.Check(t, func(rt *rapid.T) {
		c := baseConflict()
		c.Type = rapid.SampledFrom(conflictTypes).Draw(rt, "type")
		c.Severity = rapid.SampledFrom(severities).Draw(rt, "severity")
		c.Impact = ImpactAssessment{
			Performance:   rapid.Float64Range(0, 1).Draw(rt, "perf"),
			Timeline:      rapid.Float64Range(0, 1).Draw(rt, "timeline"),
			Resource:      rapid.Float64Range(0, 1).Draw(rt, "resource"),
			Collaboration: rapid.Float64Range(0, 1).Draw(rt, "collab"),
		}
		history := fakeHistory{}
		if rapid.Bool().Draw(rt, "has_history") {
			history[string(c.Type)] = rapid.Float64Range(0, 1).Draw(rt, "rate")
		}

		res, err := NewResolver(history, nil, DefaultConfig(), nil).Resolve(context.Background(), c)
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		if res.SuccessProbability < 0 || res.SuccessProbability > 1 {
			rt.Fatalf("probability %v out of range", res.SuccessProbability)
		}
		want := c.Severity == types.SeverityCritical || res.SuccessProbability < 0.4 || res.Strategy == StrategyEscalation
		if res.EscalationRequired != want {
			rt.Fatalf("escalation_required=%v, want %v (p=%v strategy=%s)", res.EscalationRequired, want, res.SuccessProbability, res.Strategy)
		}
		if res.EscalationRequired != (res.EscalationPath != nil) {
			rt.Fatalf("escalation path presence mismatch")
		}
		if res.Strategy != SelectStrategy(c.Type, c.Severity) {
			rt.Fatalf("strategy not deterministic")
		}
	})
}
