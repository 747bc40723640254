package negotiation

import (
	"time"
)

// StakeholderInterest Agent 在谈判中的利益诉求
type StakeholderInterest struct {
	// Preferred 各条款的理想取值；为空时以该 Agent 的初始提案为参照
	Preferred map[string]float64 `json:"preferred,omitempty"`

	// Weights 条款权重，缺省为 1
	Weights map[string]float64 `json:"weights,omitempty"`

	// Tolerance 可接受的满意度损失，0 表示使用全局共识阈值
	Tolerance float64 `json:"tolerance,omitempty"`

	// Flexibility 每轮向领先提案让步的比例 [0,1]
	Flexibility float64 `json:"flexibility,omitempty"`

	Priorities []string `json:"priorities,omitempty"`
}

// Context 谈判背景
type Context struct {
	Subject     string                         `json:"subject"`
	Interests   map[string]StakeholderInterest `json:"stakeholder_interests"`
	Constraints []string                       `json:"constraints,omitempty"`
}

// Parameters 谈判参数
type Parameters struct {
	MaxRounds          int      `json:"max_rounds"`
	TimeoutMinutes     float64  `json:"timeout_minutes"`
	SuccessCriteria    []string `json:"success_criteria,omitempty"`
	EscalationTriggers []string `json:"escalation_triggers,omitempty"`
}

// Proposal 提案，Terms 为条款到数值的映射
type Proposal struct {
	ID         string             `json:"id"`
	ProposerID string             `json:"proposer_id"`
	Terms      map[string]float64 `json:"terms"`
	ParentID   string             `json:"parent_id,omitempty"`
	Round      int                `json:"round"`
	Rationale  string             `json:"rationale,omitempty"`
}

func (p Proposal) clone() Proposal {
	cp := p
	cp.Terms = make(map[string]float64, len(p.Terms))
	for k, v := range p.Terms {
		cp.Terms[k] = v
	}
	return cp
}

// AgentNegotiation 一次谈判请求
type AgentNegotiation struct {
	ID                  string     `json:"id"`
	ParticipatingAgents []string   `json:"participating_agents"`
	Context             Context    `json:"negotiation_context"`
	Parameters          Parameters `json:"negotiation_parameters"`
	InitialProposals    []Proposal `json:"initial_proposals"`
}

// Stance 回应立场
type Stance string

const (
	StanceAccept  Stance = "accept"
	StanceCounter Stance = "counter"
	StanceReject  Stance = "reject"
)

// Response Agent 对领先提案的回应
type Response struct {
	AgentID      string    `json:"agent_id"`
	Stance       Stance    `json:"stance"`
	Counter      *Proposal `json:"counter_proposal,omitempty"`
	Satisfaction float64   `json:"satisfaction"`
	Reason       string    `json:"reason,omitempty"`

	// Carried 为 true 表示本轮未取得回应，沿用上一轮立场
	Carried bool `json:"carried,omitempty"`
}

// Round 一轮谈判记录
type Round struct {
	Number          int        `json:"number"`
	LeadingProposal Proposal   `json:"leading_proposal"`
	Responses       []Response `json:"responses"`
	PositionChanged bool       `json:"position_changed"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     time.Time  `json:"completed_at"`
}

// OutcomeStatus 谈判结果状态
type OutcomeStatus string

const (
	OutcomeAgreement OutcomeStatus = "agreement"
	OutcomeDeadlock  OutcomeStatus = "deadlock"
	OutcomeTimeout   OutcomeStatus = "timeout"
	OutcomeEscalated OutcomeStatus = "escalated"
)

// AlternativeSolution 陷入僵局或超时后的备选方案
type AlternativeSolution struct {
	Description  string             `json:"description"`
	Terms        map[string]float64 `json:"terms,omitempty"`
	Satisfaction map[string]float64 `json:"satisfaction,omitempty"`
}

// Result 谈判结果
type Result struct {
	ID                   string                `json:"id"`
	NegotiationID        string                `json:"negotiation_id"`
	OutcomeStatus        OutcomeStatus         `json:"outcome_status"`
	FinalAgreement       *Proposal             `json:"final_agreement,omitempty"`
	History              []Round               `json:"negotiation_history"`
	SatisfactionScores   map[string]float64    `json:"satisfaction_scores"`
	EscalationRequired   bool                  `json:"escalation_required"`
	EscalationReason     string                `json:"escalation_reason,omitempty"`
	AlternativeSolutions []AlternativeSolution `json:"alternative_solutions"`
	AdvisorUsed          bool                  `json:"advisor_used"`
	StartedAt            time.Time             `json:"started_at"`
	CompletedAt          time.Time             `json:"completed_at"`
}
