package collaboration

import (
	"fmt"
	"sort"
	"time"

	"github.com/BaSui01/collabengine/types"
)

// defaultTopology 按参与规模选择拓扑
func defaultTopology(n int) Topology {
	switch {
	case n <= 3:
		return TopologyFlat
	case n <= 8:
		return TopologyHierarchical
	default:
		return TopologyFederated
	}
}

func syncCadence(p types.Priority) time.Duration {
	switch p {
	case types.PriorityHigh:
		return 24 * time.Hour
	case types.PriorityLow:
		return 7 * 24 * time.Hour
	default:
		return 72 * time.Hour
	}
}

func responseTime(p types.Priority) time.Duration {
	switch p {
	case types.PriorityHigh:
		return time.Hour
	case types.PriorityLow:
		return 24 * time.Hour
	default:
		return 4 * time.Hour
	}
}

// designProtocols 生成沟通协议：≤3 人直接沟通，>3 人定期同步加里程碑评审
func designProtocols(participants []ParticipatingAgent, goal CollaborationGoal, extra []string) []Protocol {
	ids := make([]string, 0, len(participants))
	coordinator := ""
	for _, p := range participants {
		ids = append(ids, p.AgentID)
		if p.Role.Type == RoleCoordinator {
			coordinator = p.AgentID
		}
	}
	priority := goal.Priority.OrDefault()

	var protocols []Protocol
	if len(participants) <= 3 {
		protocols = append(protocols, Protocol{
			Name:         "direct_messaging",
			Type:         ProtocolDirectMessaging,
			Participants: ids,
			Description:  "participants exchange updates directly as work progresses",
		})
	} else {
		protocols = append(protocols, Protocol{
			Name:         "scheduled_sync",
			Type:         ProtocolScheduledSync,
			Participants: ids,
			Cadence:      syncCadence(priority),
			Description:  fmt.Sprintf("recurring sync chaired by %s", coordinator),
		})
		if len(goal.Timeline.Milestones) == 0 {
			protocols = append(protocols, Protocol{
				Name:         "milestone_review",
				Type:         ProtocolMilestoneReview,
				Participants: ids,
				Description:  "review deliverables at the end of each work phase",
			})
		}
		for _, m := range goal.Timeline.Milestones {
			protocols = append(protocols, Protocol{
				Name:         "milestone_review:" + m.Name,
				Type:         ProtocolMilestoneReview,
				Participants: ids,
				Description:  fmt.Sprintf("review %d deliverable(s) due %s", len(m.Deliverables), m.Due.Format(time.DateOnly)),
			})
		}
	}

	protocols = append(protocols, Protocol{
		Name:         "escalation_channel",
		Type:         ProtocolEscalationChannel,
		Participants: ids,
		Cadence:      responseTime(priority),
		Description:  fmt.Sprintf("unresolved issues go to %s first", coordinator),
	})

	seen := make(map[string]bool, len(protocols))
	for _, p := range protocols {
		seen[p.Name] = true
	}
	for _, name := range extra {
		if seen[name] {
			continue
		}
		seen[name] = true
		protocols = append(protocols, Protocol{
			Name:         name,
			Type:         ProtocolAdvisorSuggested,
			Participants: ids,
		})
	}
	return protocols
}

// coordinationMechanisms 由约束类型推导协调机制，去重且顺序稳定
func coordinationMechanisms(constraints []Constraint) []string {
	out := []string{"progress_tracking"}
	seen := map[string]bool{"progress_tracking": true}
	for _, c := range constraints {
		var m string
		switch c.Type {
		case ConstraintResource:
			m = "resource_sharing"
		case ConstraintTime:
			m = "task_dependencies"
		case ConstraintQuality:
			m = "peer_review"
		case ConstraintScope:
			m = "change_control"
		default:
			continue
		}
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

func defaultMitigation(t ConstraintType) string {
	switch t {
	case ConstraintResource:
		return "reserve shared capacity and rebalance allocations weekly"
	case ConstraintTime:
		return "track the critical path and pull forward dependent work"
	case ConstraintQuality:
		return "add peer review before each milestone"
	case ConstraintScope:
		return "route scope changes through the coordinator"
	default:
		return "monitor and revisit at the next sync"
	}
}

// assessRisks 由约束、技能缺口与可用性生成风险清单
func assessRisks(goal CollaborationGoal, participants []ParticipatingAgent, uncovered []string) RiskManagement {
	var risks []Risk
	for _, c := range goal.Constraints {
		likelihood := 1 - c.Flexibility
		mitigation := c.Mitigation
		if mitigation == "" {
			mitigation = defaultMitigation(c.Type)
		}
		risks = append(risks, Risk{
			Source:      "constraint:" + string(c.Type),
			Description: c.Description,
			Likelihood:  likelihood,
			Impact:      c.Impact,
			Score:       likelihood * c.Impact,
			Mitigation:  mitigation,
		})
	}
	for _, skill := range uncovered {
		risks = append(risks, Risk{
			Source:      "skill_gap",
			Description: fmt.Sprintf("no participant declares %s", skill),
			Likelihood:  1,
			Impact:      0.5,
			Score:       0.5,
			Mitigation:  "recruit an additional agent or train an existing participant",
		})
	}
	for _, p := range participants {
		if p.Availability < 0.5 {
			likelihood := 1 - p.Availability
			risks = append(risks, Risk{
				Source:      "availability",
				Description: fmt.Sprintf("%s is available %.0f%% of the time", p.AgentID, p.Availability*100),
				Likelihood:  likelihood,
				Impact:      0.4,
				Score:       likelihood * 0.4,
				Mitigation:  "pair with a backup participant",
			})
		}
	}
	sort.SliceStable(risks, func(i, j int) bool { return risks[i].Score > risks[j].Score })

	rm := RiskManagement{Risks: risks, ContingencyBuffer: goal.Timeline.Buffer}
	if len(risks) > 0 {
		rm.OverallRisk = risks[0].Score
	}
	if rm.ContingencyBuffer == 0 && !goal.Timeline.Start.IsZero() && goal.Timeline.End.After(goal.Timeline.Start) {
		rm.ContingencyBuffer = goal.Timeline.End.Sub(goal.Timeline.Start) / 10
	}
	return rm
}

// successMetrics 由成功标准与可度量产出生成度量项
func successMetrics(goal CollaborationGoal, qualityThreshold float64) []SuccessMetric {
	metrics := []SuccessMetric{{
		Name:        "goal_completion",
		Description: goal.Objective,
		Target:      1,
		Source:      "objective",
	}}
	for i, c := range goal.SuccessCriteria {
		metrics = append(metrics, SuccessMetric{
			Name:        fmt.Sprintf("criterion_%d", i+1),
			Description: c,
			Target:      qualityThreshold,
			Source:      "success_criteria",
		})
	}
	for i, o := range goal.ExpectedOutcomes {
		for j, c := range o.MeasurableCriteria {
			metrics = append(metrics, SuccessMetric{
				Name:        fmt.Sprintf("outcome_%d_%d", i+1, j+1),
				Description: c,
				Target:      qualityThreshold,
				Source:      "expected_outcome",
			})
		}
	}
	return metrics
}
