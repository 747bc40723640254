package types

// Priority 目标或消息的优先级
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid 判断优先级是否可识别
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// OrDefault 空值按 medium 处理
func (p Priority) OrDefault() Priority {
	if p == "" {
		return PriorityMedium
	}
	return p
}

// Severity 冲突严重程度
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank 返回严重程度序号，未知值返回 0
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Valid 判断严重程度是否可识别
func (s Severity) Valid() bool { return s.Rank() > 0 }

// EscalationLevel 升级层级
type EscalationLevel string

const (
	EscalationAgent  EscalationLevel = "agent_level"
	EscalationTeam   EscalationLevel = "team_level"
	EscalationSystem EscalationLevel = "system_level"
)

// Valid 判断层级是否可识别
func (l EscalationLevel) Valid() bool {
	switch l {
	case EscalationAgent, EscalationTeam, EscalationSystem:
		return true
	}
	return false
}

// Next 返回上一级；system_level 已是最高层
func (l EscalationLevel) Next() EscalationLevel {
	switch l {
	case EscalationAgent:
		return EscalationTeam
	default:
		return EscalationSystem
	}
}

// Authority 返回负责该层级裁决的角色
func (l EscalationLevel) Authority() string {
	switch l {
	case EscalationAgent:
		return "involved_agents"
	case EscalationTeam:
		return "team_coordinator"
	default:
		return "system_operator"
	}
}
