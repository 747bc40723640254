package collaboration

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/collabengine/advisor"
	"github.com/BaSui01/collabengine/types"
)

// Config 协作规划配置
type Config struct {
	AutoConflictResolution bool
	QualityThreshold       float64
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{AutoConflictResolution: true, QualityThreshold: 0.8}
}

// Facilitator 协作规划器：校验输入、分配角色、设计协议并输出不可变计划
type Facilitator struct {
	directory Directory
	advisor   *advisor.Client
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewFacilitator 创建协作规划器，directory 与 adv 均可为 nil
func NewFacilitator(directory Directory, adv *advisor.Client, cfg Config, logger *zap.Logger) *Facilitator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Facilitator{
		directory: directory,
		advisor:   adv,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "collaboration_facilitator")),
		now:       time.Now,
	}
}

// Facilitate 为给定 Agent 集合生成协作计划。
// 顾问不可用或超时时使用确定性计划骨架，不视为错误。
func (f *Facilitator) Facilitate(ctx context.Context, agentIDs []string, goal CollaborationGoal) (*CollaborationPlan, error) {
	if err := validateAgents(agentIDs); err != nil {
		return nil, err
	}
	if err := ValidateGoal(goal); err != nil {
		return nil, err
	}
	goal.Priority = goal.Priority.OrDefault()

	participants, uncovered := assignRoles(agentIDs, goal.RequiredSkills, f.directory)

	topology := defaultTopology(len(participants))
	var extraProtocols []string
	var notes string
	advisorUsed := false

	if hint, ok := f.advisor.Structure(ctx, structurePayload(agentIDs, goal)); ok {
		advisorUsed = true
		if t := Topology(hint.Topology); t.valid() {
			topology = t
		}
		extraProtocols = hint.Protocols
		notes = hint.Notes
	}

	coordinator := ""
	for _, p := range participants {
		if p.Role.Type == RoleCoordinator {
			coordinator = p.AgentID
		}
	}

	plan := &CollaborationPlan{
		ID:                     uuid.NewString(),
		GoalID:                 goal.ID,
		Participants:           participants,
		Topology:               topology,
		Protocols:              designProtocols(participants, goal, extraProtocols),
		CoordinationMechanisms: coordinationMechanisms(goal.Constraints),
		ConflictProcedures: ConflictProcedures{
			DefaultStrategy: "classify_by_type_and_severity",
			EscalationPath:  []types.EscalationLevel{types.EscalationAgent, types.EscalationTeam, types.EscalationSystem},
			Mediator:        coordinator,
			AutoResolution:  f.cfg.AutoConflictResolution,
			ResponseTime:    responseTime(goal.Priority),
		},
		SuccessMetrics:  successMetrics(goal, f.cfg.QualityThreshold),
		RiskManagement:  assessRisks(goal, participants, uncovered),
		UncoveredSkills: uncovered,
		Timeline:        goal.Timeline,
		AdvisorUsed:     advisorUsed,
		AdvisorNotes:    notes,
		CreatedAt:       f.now(),
	}

	f.logger.Info("collaboration plan created",
		zap.String("plan_id", plan.ID),
		zap.String("goal_id", goal.ID),
		zap.Int("participants", len(participants)),
		zap.String("topology", string(topology)),
		zap.Bool("advisor_used", advisorUsed),
	)
	return plan, nil
}

func structurePayload(agentIDs []string, goal CollaborationGoal) map[string]any {
	constraintTypes := make([]string, 0, len(goal.Constraints))
	for _, c := range goal.Constraints {
		constraintTypes = append(constraintTypes, string(c.Type))
	}
	return map[string]any{
		"goal_id":          goal.ID,
		"objective":        goal.Objective,
		"priority":         string(goal.Priority),
		"agent_count":      len(agentIDs),
		"required_skills":  append([]string(nil), goal.RequiredSkills...),
		"constraint_types": constraintTypes,
		"milestones":       len(goal.Timeline.Milestones),
	}
}

func validateAgents(agentIDs []string) error {
	if len(agentIDs) == 0 {
		return types.NewError(types.ErrCollaborationFacilitationFailed, "at least one agent is required")
	}
	seen := make(map[string]bool, len(agentIDs))
	for _, id := range agentIDs {
		if strings.TrimSpace(id) == "" {
			return types.NewError(types.ErrCollaborationFacilitationFailed, "agent id must not be empty")
		}
		if seen[id] {
			return types.Errorf(types.ErrCollaborationFacilitationFailed, "duplicate agent id %q", id).
				WithDetail("agent_id", id)
		}
		seen[id] = true
	}
	return nil
}

// ValidateGoal 校验协作目标
func ValidateGoal(goal CollaborationGoal) error {
	switch {
	case strings.TrimSpace(goal.ID) == "":
		return types.NewError(types.ErrInvalidGoal, "goal id is required")
	case strings.TrimSpace(goal.Description) == "":
		return types.NewError(types.ErrInvalidGoal, "goal description is required")
	case strings.TrimSpace(goal.Objective) == "":
		return types.NewError(types.ErrInvalidGoal, "goal objective is required")
	case goal.Priority != "" && !goal.Priority.Valid():
		return types.Errorf(types.ErrInvalidGoal, "unknown priority %q", goal.Priority)
	}
	tl := goal.Timeline
	if !tl.Start.IsZero() && !tl.End.IsZero() && tl.End.Before(tl.Start) {
		return types.NewError(types.ErrInvalidGoal, "timeline ends before it starts")
	}
	if tl.Buffer < 0 {
		return types.NewError(types.ErrInvalidGoal, "timeline buffer must not be negative")
	}
	for _, m := range tl.Milestones {
		if strings.TrimSpace(m.Name) == "" {
			return types.NewError(types.ErrInvalidGoal, "milestone name is required")
		}
	}
	for i, c := range goal.Constraints {
		if c.Type == "" {
			return types.Errorf(types.ErrInvalidGoal, "constraint %d has no type", i)
		}
		if c.Flexibility < 0 || c.Flexibility > 1 || c.Impact < 0 || c.Impact > 1 {
			return types.Errorf(types.ErrInvalidGoal, "constraint %d flexibility and impact must be within [0,1]", i)
		}
	}
	return nil
}
