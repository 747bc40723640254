package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscalationLevel_Next(t *testing.T) {
	t.Parallel()

	assert.Equal(t, EscalationTeam, EscalationAgent.Next())
	assert.Equal(t, EscalationSystem, EscalationTeam.Next())
	assert.Equal(t, EscalationSystem, EscalationSystem.Next())
	assert.False(t, EscalationLevel("board_level").Valid())
}

func TestSeverity_Rank(t *testing.T) {
	t.Parallel()

	assert.Less(t, SeverityLow.Rank(), SeverityMedium.Rank())
	assert.Less(t, SeverityHigh.Rank(), SeverityCritical.Rank())
	assert.False(t, Severity("urgent").Valid())
}

func TestPriority_OrDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, PriorityMedium, Priority("").OrDefault())
	assert.Equal(t, PriorityHigh, PriorityHigh.OrDefault())
	assert.False(t, Priority("urgent").Valid())
}
