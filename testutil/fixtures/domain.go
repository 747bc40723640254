// =============================================================================
// 测试数据工厂 - 领域样例
// =============================================================================
// 提供协作目标、Agent 目录、冲突、复杂任务、系统消息与谈判的预置数据
// =============================================================================
package fixtures

import (
	"time"

	"github.com/BaSui01/collabengine/broadcast"
	"github.com/BaSui01/collabengine/collaboration"
	"github.com/BaSui01/collabengine/conflict"
	"github.com/BaSui01/collabengine/coordination"
	"github.com/BaSui01/collabengine/negotiation"
	"github.com/BaSui01/collabengine/types"
)

// Epoch 样例数据使用的固定起始时间
var Epoch = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

// AgentIDs 三个样例 Agent
func AgentIDs() []string {
	return []string{"alpha", "bravo", "charlie"}
}

// AgentProfiles 与 AgentIDs 对应的能力声明
func AgentProfiles() []collaboration.AgentProfile {
	return []collaboration.AgentProfile{
		{ID: "alpha", Type: "engineer", Capabilities: []string{"go", "sql"}, Availability: 1},
		{ID: "bravo", Type: "engineer", Capabilities: []string{"kafka"}, Availability: 0.6},
		{ID: "charlie", Type: "analyst", Capabilities: []string{"reporting"}, Availability: 1},
	}
}

// CollaborationGoal 一个高优先级的交付目标
func CollaborationGoal() collaboration.CollaborationGoal {
	return collaboration.CollaborationGoal{
		ID:              "goal-ingest",
		Description:     "ship the ingestion pipeline",
		Objective:       "ingest partner feeds daily",
		SuccessCriteria: []string{"zero data loss"},
		RequiredSkills:  []string{"go", "kafka"},
		Timeline: collaboration.Timeline{
			Start: Epoch,
			End:   Epoch.Add(14 * 24 * time.Hour),
			Milestones: []collaboration.Milestone{
				{Name: "launch", Due: Epoch.Add(12 * 24 * time.Hour)},
			},
		},
		Constraints: []collaboration.Constraint{
			{Type: collaboration.ConstraintResource, Description: "one GPU", Flexibility: 0.3, Impact: 0.7},
		},
		Priority: types.PriorityHigh,
	}
}

// ResourceConflict 两个 Agent 争用同一资源的中等冲突
func ResourceConflict() conflict.AgentConflict {
	return conflict.AgentConflict{
		ID:             "conflict-gpu",
		Type:           conflict.TypeResourceCompetition,
		InvolvedAgents: []string{"alpha", "bravo"},
		Severity:       types.SeverityMedium,
		Context: conflict.Context{
			Description:        "both need the GPU pool",
			ContestedResources: []string{"gpu-pool"},
		},
	}
}

// DiamondTask S1 -> {S2, S3} -> S4 的菱形依赖任务
func DiamondTask() coordination.ComplexTask {
	return coordination.ComplexTask{
		ID:             "task-release",
		Description:    "release",
		RequiredAgents: AgentIDs(),
		Subtasks: []coordination.Subtask{
			{ID: "S1", AssignedAgent: "alpha", EstimatedDuration: time.Hour},
			{ID: "S2", AssignedAgent: "bravo", Dependencies: []string{"S1"}, EstimatedDuration: 2 * time.Hour},
			{ID: "S3", AssignedAgent: "charlie", Dependencies: []string{"S1"}, EstimatedDuration: time.Hour},
			{ID: "S4", AssignedAgent: "alpha", Dependencies: []string{"S2", "S3"}, EstimatedDuration: time.Hour},
		},
	}
}

// CyclicTask A -> B -> A 的非法任务
func CyclicTask() coordination.ComplexTask {
	return coordination.ComplexTask{
		ID:             "task-cycle",
		RequiredAgents: []string{"alpha"},
		Subtasks: []coordination.Subtask{
			{ID: "A", AssignedAgent: "alpha", Dependencies: []string{"B"}},
			{ID: "B", AssignedAgent: "alpha", Dependencies: []string{"A"}},
		},
	}
}

// DirectiveMessage 发往指定收件人的指令消息
func DirectiveMessage(ackRequired bool, recipients ...string) broadcast.SystemMessage {
	return broadcast.SystemMessage{
		SenderID:   "ops",
		Recipients: recipients,
		Type:       broadcast.MessageDirective,
		Content:    broadcast.Content{Subject: "rotate keys", Body: "rotate before midnight"},
		Priority:   types.PriorityHigh,
		Delivery:   broadcast.DeliveryRequirements{AcknowledgmentRequired: ackRequired},
	}
}

// PriceNegotiation buyer 偏好 100、seller 偏好 60 的单条款议价
func PriceNegotiation(tolerance, flexibility float64, maxRounds int) negotiation.AgentNegotiation {
	interest := func(price float64) negotiation.StakeholderInterest {
		return negotiation.StakeholderInterest{
			Preferred:   map[string]float64{"price": price},
			Tolerance:   tolerance,
			Flexibility: flexibility,
		}
	}
	return negotiation.AgentNegotiation{
		ID:                  "neg-gpu-hours",
		ParticipatingAgents: []string{"buyer", "seller"},
		Context: negotiation.Context{
			Subject: "gpu hours",
			Interests: map[string]negotiation.StakeholderInterest{
				"buyer":  interest(100),
				"seller": interest(60),
			},
		},
		Parameters: negotiation.Parameters{MaxRounds: maxRounds},
		InitialProposals: []negotiation.Proposal{
			{ProposerID: "buyer", Terms: map[string]float64{"price": 100}},
			{ProposerID: "seller", Terms: map[string]float64{"price": 60}},
		},
	}
}
