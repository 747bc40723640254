package conflict

import (
	"time"

	"github.com/BaSui01/collabengine/types"
)

// Type 冲突类型
type Type string

const (
	TypeResourceCompetition     Type = "resource_competition"
	TypePriorityDisagreement    Type = "priority_disagreement"
	TypeMethodologyDisagreement Type = "methodology_disagreement"
	TypeFundamentalDisagreement Type = "fundamental_disagreement"
)

// ImpactAssessment 冲突影响评估，各维度取值 [0,1]
type ImpactAssessment struct {
	AffectedTasks  []string      `json:"affected_tasks,omitempty"`
	Performance    float64       `json:"performance"`
	Timeline       float64       `json:"timeline"`
	Resource       float64       `json:"resource"`
	Collaboration  float64       `json:"collaboration"`
	EstimatedDelay time.Duration `json:"estimated_delay,omitempty"`
}

func (i ImpactAssessment) mean() float64 {
	return (i.Performance + i.Timeline + i.Resource + i.Collaboration) / 4
}

// Context 冲突上下文
type Context struct {
	Description        string            `json:"description"`
	ContestedResources []string          `json:"contested_resources,omitempty"`
	Details            map[string]string `json:"details,omitempty"`
}

// AgentConflict 待处理的 Agent 冲突
type AgentConflict struct {
	ID              string                `json:"id"`
	Type            Type                  `json:"type"`
	InvolvedAgents  []string              `json:"involved_agents"`
	Severity        types.Severity        `json:"severity"`
	Impact          ImpactAssessment      `json:"impact"`
	Context         Context               `json:"context"`
	EscalationLevel types.EscalationLevel `json:"escalation_level,omitempty"`
}

// Strategy 解决策略
type Strategy string

const (
	StrategyMediation   Strategy = "mediation"
	StrategyArbitration Strategy = "arbitration"
	StrategyCompromise  Strategy = "compromise"
	StrategyEscalation  Strategy = "escalation"
)

// State 解决流程状态
type State string

const (
	StateReported         State = "reported"
	StateClassified       State = "classified"
	StateStrategySelected State = "strategy_selected"
	StateActionsGenerated State = "actions_generated"
	StateResolved         State = "resolved"
	StateEscalated        State = "escalated"
)

// Action 解决步骤
type Action struct {
	ID          string        `json:"id"`
	Type        string        `json:"type"`
	Description string        `json:"description"`
	Assignee    string        `json:"assignee"`
	Order       int           `json:"order"`
	Deadline    time.Duration `json:"deadline"`
}

// FollowUp 跟进事项
type FollowUp struct {
	Description string        `json:"description"`
	Owner       string        `json:"owner"`
	Due         time.Duration `json:"due"`
}

// EscalationPath 升级路径
type EscalationPath struct {
	From      types.EscalationLevel `json:"from"`
	To        types.EscalationLevel `json:"to"`
	Authority string                `json:"authority"`
	Reason    string                `json:"reason"`
}

// Resolution 冲突解决方案，创建后不可变
type Resolution struct {
	ID                 string          `json:"id"`
	ConflictID         string          `json:"conflict_id"`
	ConflictType       Type            `json:"conflict_type"`
	Strategy           Strategy        `json:"strategy"`
	Actions            []Action        `json:"actions"`
	SuccessProbability float64         `json:"success_probability"`
	EscalationRequired bool            `json:"escalation_required"`
	EscalationPath     *EscalationPath `json:"escalation_path,omitempty"`
	FollowUps          []FollowUp      `json:"follow_ups"`
	RequiresApproval   bool            `json:"requires_approval"`
	Rationale          string          `json:"rationale,omitempty"`
	AdvisorUsed        bool            `json:"advisor_used"`
	Transitions        []State         `json:"transitions"`
	ResolvedAt         time.Time       `json:"resolved_at"`
	Duration           time.Duration   `json:"duration"`
}
