package collaboration

import (
	"time"

	"github.com/BaSui01/collabengine/types"
)

// CollaborationGoal 协作目标
type CollaborationGoal struct {
	ID               string         `json:"id"`
	Description      string         `json:"description"`
	Objective        string         `json:"objective"`
	SuccessCriteria  []string       `json:"success_criteria,omitempty"`
	RequiredSkills   []string       `json:"required_skills,omitempty"`
	ExpectedOutcomes []Outcome      `json:"expected_outcomes,omitempty"`
	Timeline         Timeline       `json:"timeline"`
	Constraints      []Constraint   `json:"constraints,omitempty"`
	Priority         types.Priority `json:"priority,omitempty"`
}

// Outcome 预期产出
type Outcome struct {
	Description        string             `json:"description"`
	MeasurableCriteria []string           `json:"measurable_criteria,omitempty"`
	ValueProposition   map[string]float64 `json:"value_proposition,omitempty"`
}

// Timeline 目标时间线
type Timeline struct {
	Start        time.Time     `json:"start"`
	End          time.Time     `json:"end"`
	Milestones   []Milestone   `json:"milestones,omitempty"`
	CriticalPath []string      `json:"critical_path,omitempty"`
	Buffer       time.Duration `json:"buffer,omitempty"`
}

// Milestone 里程碑
type Milestone struct {
	Name         string    `json:"name"`
	Due          time.Time `json:"due"`
	Deliverables []string  `json:"deliverables,omitempty"`
}

// ConstraintType 约束类型
type ConstraintType string

const (
	ConstraintResource ConstraintType = "resource"
	ConstraintTime     ConstraintType = "time"
	ConstraintQuality  ConstraintType = "quality"
	ConstraintScope    ConstraintType = "scope"
)

// Constraint 目标约束
type Constraint struct {
	Type        ConstraintType `json:"type"`
	Description string         `json:"description"`
	Flexibility float64        `json:"flexibility"` // [0,1]
	Impact      float64        `json:"impact"`      // [0,1]
	Mitigation  string         `json:"mitigation,omitempty"`
}

// Topology 协作拓扑
type Topology string

const (
	TopologyFlat         Topology = "flat"
	TopologyHierarchical Topology = "hierarchical"
	TopologyFederated    Topology = "federated"
)

func (t Topology) valid() bool {
	switch t {
	case TopologyFlat, TopologyHierarchical, TopologyFederated:
		return true
	}
	return false
}

// RoleType 协作角色
type RoleType string

const (
	RoleCoordinator RoleType = "coordinator"
	RoleSpecialist  RoleType = "specialist"
	RoleContributor RoleType = "contributor"
)

// Role 角色及其权限级别
type Role struct {
	Type           RoleType `json:"type"`
	Title          string   `json:"title"`
	AuthorityLevel int      `json:"authority_level"`
}

// ParticipatingAgent 计划中的参与者
type ParticipatingAgent struct {
	AgentID          string   `json:"agent_id"`
	AgentType        string   `json:"agent_type"`
	Role             Role     `json:"role"`
	Responsibilities []string `json:"responsibilities"`
	Capabilities     []string `json:"capabilities,omitempty"`
	OwnedSkills      []string `json:"owned_skills,omitempty"`
	MatchScore       float64  `json:"match_score"`
	Availability     float64  `json:"availability"`
}

// ProtocolType 沟通协议类型
type ProtocolType string

const (
	ProtocolDirectMessaging   ProtocolType = "direct_messaging"
	ProtocolScheduledSync     ProtocolType = "scheduled_sync"
	ProtocolMilestoneReview   ProtocolType = "milestone_review"
	ProtocolEscalationChannel ProtocolType = "escalation_channel"
	ProtocolAdvisorSuggested  ProtocolType = "advisor_suggested"
)

// Protocol 沟通协议
type Protocol struct {
	Name         string        `json:"name"`
	Type         ProtocolType  `json:"type"`
	Participants []string      `json:"participants"`
	Cadence      time.Duration `json:"cadence,omitempty"`
	Description  string        `json:"description,omitempty"`
}

// ConflictProcedures 协作期间的冲突处理约定
type ConflictProcedures struct {
	DefaultStrategy string                  `json:"default_strategy"`
	EscalationPath  []types.EscalationLevel `json:"escalation_path"`
	Mediator        string                  `json:"mediator"`
	AutoResolution  bool                    `json:"auto_resolution"`
	ResponseTime    time.Duration           `json:"response_time"`
}

// SuccessMetric 成功度量
type SuccessMetric struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Target      float64 `json:"target"`
	Source      string  `json:"source"`
}

// Risk 风险项
type Risk struct {
	Source      string  `json:"source"`
	Description string  `json:"description"`
	Likelihood  float64 `json:"likelihood"`
	Impact      float64 `json:"impact"`
	Score       float64 `json:"score"`
	Mitigation  string  `json:"mitigation"`
}

// RiskManagement 风险管理
type RiskManagement struct {
	Risks             []Risk        `json:"risks"`
	OverallRisk       float64       `json:"overall_risk"`
	ContingencyBuffer time.Duration `json:"contingency_buffer"`
}

// CollaborationPlan 协作计划，创建后不可变
type CollaborationPlan struct {
	ID                     string               `json:"id"`
	GoalID                 string               `json:"goal_id"`
	Participants           []ParticipatingAgent `json:"participants"`
	Topology               Topology             `json:"topology"`
	Protocols              []Protocol           `json:"protocols"`
	CoordinationMechanisms []string             `json:"coordination_mechanisms"`
	ConflictProcedures     ConflictProcedures   `json:"conflict_procedures"`
	SuccessMetrics         []SuccessMetric      `json:"success_metrics"`
	RiskManagement         RiskManagement       `json:"risk_management"`
	UncoveredSkills        []string             `json:"uncovered_skills,omitempty"`
	Timeline               Timeline             `json:"timeline"`
	AdvisorUsed            bool                 `json:"advisor_used"`
	AdvisorNotes           string               `json:"advisor_notes,omitempty"`
	CreatedAt              time.Time            `json:"created_at"`
}
