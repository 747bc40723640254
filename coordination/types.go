package coordination

import "time"

// Subtask 子任务
type Subtask struct {
	ID                string        `json:"id"`
	Description       string        `json:"description"`
	AssignedAgent     string        `json:"assigned_agent"`
	Dependencies      []string      `json:"dependencies,omitempty"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
	RequiredSkills    []string      `json:"required_skills,omitempty"`
	Deliverables      []string      `json:"deliverables,omitempty"`
}

// ComplexTask 需要多 Agent 协同的复杂任务
type ComplexTask struct {
	ID                       string    `json:"id"`
	Description              string    `json:"description"`
	RequiredAgents           []string  `json:"required_agents"`
	Subtasks                 []Subtask `json:"subtasks"`
	CoordinationRequirements []string  `json:"coordination_requirements,omitempty"`
	SuccessCriteria          []string  `json:"success_criteria,omitempty"`
	Deadline                 time.Time `json:"deadline,omitempty"`
}

// Strategy 执行策略
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyParallel   Strategy = "parallel"
	StrategyDAG        Strategy = "dag"
)

// SyncKind 同步点类型
type SyncKind string

const (
	SyncFanIn    SyncKind = "fan_in"
	SyncFanOut   SyncKind = "fan_out"
	SyncFanInOut SyncKind = "fan_in_out"
)

// SyncPoint 同步点：多个前驱汇合或多个后继分叉处
type SyncPoint struct {
	SubtaskID string   `json:"subtask_id"`
	Kind      SyncKind `json:"kind"`
	WaitsFor  []string `json:"waits_for,omitempty"`
	Releases  []string `json:"releases,omitempty"`
}

// AgentAssignment Agent 的工作分配，子任务按执行顺序排列
type AgentAssignment struct {
	AgentID       string        `json:"agent_id"`
	Subtasks      []string      `json:"subtasks"`
	TotalDuration time.Duration `json:"total_duration"`
	Idle          bool          `json:"idle"`
}

// ScheduledSubtask 关键路径法计算出的排期
type ScheduledSubtask struct {
	SubtaskID      string        `json:"subtask_id"`
	AgentID        string        `json:"agent_id"`
	Stage          int           `json:"stage"`
	EarliestStart  time.Duration `json:"earliest_start"`
	EarliestFinish time.Duration `json:"earliest_finish"`
	Slack          time.Duration `json:"slack"`
	Critical       bool          `json:"critical"`
}

// Handoff 跨 Agent 的交接
type Handoff struct {
	FromSubtask string `json:"from_subtask"`
	ToSubtask   string `json:"to_subtask"`
	FromAgent   string `json:"from_agent"`
	ToAgent     string `json:"to_agent"`
}

// CommunicationPlan 沟通计划
type CommunicationPlan struct {
	Channels             []string      `json:"channels"`
	Handoffs             []Handoff     `json:"handoffs,omitempty"`
	StatusUpdateInterval time.Duration `json:"status_update_interval"`
}

// MonitoringFramework 监控框架
type MonitoringFramework struct {
	Checkpoints      []string      `json:"checkpoints"`
	Metrics          []string      `json:"metrics"`
	ProgressInterval time.Duration `json:"progress_interval"`
	DeadlineAlerts   bool          `json:"deadline_alerts"`
}

// Plan 协调计划，创建后不可变
type Plan struct {
	ID                string              `json:"id"`
	TaskID            string              `json:"task_id"`
	Strategy          Strategy            `json:"strategy"`
	ExecutionSequence []string            `json:"execution_sequence"`
	Stages            [][]string          `json:"stages"`
	SyncPoints        []SyncPoint         `json:"sync_points"`
	AgentAssignments  []AgentAssignment   `json:"agent_assignments"`
	Schedule          []ScheduledSubtask  `json:"schedule"`
	CriticalPath      []string            `json:"critical_path"`
	EstimatedDuration time.Duration       `json:"estimated_duration"`
	DeadlineAtRisk    bool                `json:"deadline_at_risk"`
	Communication     CommunicationPlan   `json:"communication_plan"`
	Monitoring        MonitoringFramework `json:"monitoring_framework"`
	CreatedAt         time.Time           `json:"created_at"`
}
