package conflict

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/collabengine/advisor"
	"github.com/BaSui01/collabengine/types"
)

// History 提供每类冲突的历史解决成功率
type History interface {
	HistoricalRate(conflictType string) (float64, bool)
}

// Config 冲突解决配置
type Config struct {
	// AutoResolution 为 false 时所有方案都需要人工批准
	AutoResolution bool

	// ElaborationTimeout 顾问补充说明的时间上限
	ElaborationTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{AutoResolution: true, ElaborationTimeout: 5 * time.Minute}
}

// Resolver 冲突解决器
type Resolver struct {
	history History
	advisor *advisor.Client
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

// NewResolver 创建冲突解决器，history 与 adv 均可为 nil
func NewResolver(history History, adv *advisor.Client, cfg Config, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ElaborationTimeout <= 0 {
		cfg.ElaborationTimeout = DefaultConfig().ElaborationTimeout
	}
	return &Resolver{
		history: history,
		advisor: adv,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "conflict_resolver")),
		now:     time.Now,
	}
}

// Resolve 对冲突分类、选择策略、生成行动与跟进项。
// 策略与是否升级只由确定性规则决定，顾问仅补充说明。
func (r *Resolver) Resolve(ctx context.Context, c AgentConflict) (*Resolution, error) {
	start := r.now()
	if err := Validate(c); err != nil {
		return nil, err
	}
	if c.EscalationLevel == "" {
		c.EscalationLevel = types.EscalationAgent
	}

	transitions := []State{StateReported, StateClassified}

	strategy := SelectStrategy(c.Type, c.Severity)
	transitions = append(transitions, StateStrategySelected)

	rate := defaultHistoricalRate
	if r.history != nil {
		if h, ok := r.history.HistoricalRate(string(c.Type)); ok {
			rate = h
		}
	}
	probability := SuccessProbability(c.Severity, rate, c.Impact)
	escalate := RequiresEscalation(c.Severity, probability, strategy)

	var path *EscalationPath
	if escalate {
		path = escalationPath(c, probability, strategy)
	}

	actions := buildActions(c, strategy, path)
	followUps := buildFollowUps(c, strategy, path)
	transitions = append(transitions, StateActionsGenerated)

	res := &Resolution{
		ID:                 uuid.NewString(),
		ConflictID:         c.ID,
		ConflictType:       c.Type,
		Strategy:           strategy,
		SuccessProbability: probability,
		EscalationRequired: escalate,
		EscalationPath:     path,
		RequiresApproval:   !r.cfg.AutoResolution,
	}

	elabCtx, cancel := context.WithTimeout(ctx, r.cfg.ElaborationTimeout)
	hint, ok := r.advisor.Elaborate(elabCtx, elaborationPayload(c, strategy, probability))
	cancel()
	if ok {
		res.AdvisorUsed = true
		res.Rationale = hint.Rationale
		for i := range actions {
			if detail, found := hint.ActionDetails[actions[i].Type]; found {
				actions[i].Description += ": " + detail
			}
		}
		due := actions[len(actions)-1].Deadline
		for _, f := range hint.FollowUps {
			followUps = append(followUps, FollowUp{Description: f, Owner: mediatorFor(c), Due: due})
		}
	}

	if escalate {
		transitions = append(transitions, StateEscalated)
	} else {
		transitions = append(transitions, StateResolved)
	}
	res.Actions = actions
	res.FollowUps = followUps
	res.Transitions = transitions
	res.ResolvedAt = r.now()
	res.Duration = res.ResolvedAt.Sub(start)

	r.logger.Info("conflict resolved",
		zap.String("conflict_id", c.ID),
		zap.String("type", string(c.Type)),
		zap.String("severity", string(c.Severity)),
		zap.String("strategy", string(strategy)),
		zap.Float64("success_probability", probability),
		zap.Bool("escalation_required", escalate),
	)
	return res, nil
}

// Validate 校验冲突输入
func Validate(c AgentConflict) error {
	if strings.TrimSpace(c.ID) == "" {
		return types.NewError(types.ErrInvalidInput, "conflict id is required")
	}
	if strings.TrimSpace(string(c.Type)) == "" {
		return types.NewError(types.ErrInvalidInput, "conflict type is required")
	}
	if !c.Severity.Valid() {
		return types.Errorf(types.ErrInvalidInput, "unknown severity %q", c.Severity)
	}
	if c.EscalationLevel != "" && !c.EscalationLevel.Valid() {
		return types.Errorf(types.ErrInvalidInput, "unknown escalation level %q", c.EscalationLevel)
	}
	seen := make(map[string]bool, len(c.InvolvedAgents))
	for _, id := range c.InvolvedAgents {
		if strings.TrimSpace(id) == "" {
			return types.NewError(types.ErrInvalidInput, "involved agent id must not be empty")
		}
		seen[id] = true
	}
	if len(seen) < 2 {
		return types.NewError(types.ErrInvalidInput, "a conflict needs at least two distinct agents")
	}
	for _, v := range []float64{c.Impact.Performance, c.Impact.Timeline, c.Impact.Resource, c.Impact.Collaboration} {
		if v < 0 || v > 1 {
			return types.NewError(types.ErrInvalidInput, "impact scores must be within [0,1]")
		}
	}
	return nil
}

func escalationPath(c AgentConflict, probability float64, strategy Strategy) *EscalationPath {
	var reasons []string
	if strategy == StrategyEscalation {
		reasons = append(reasons, "strategy requires a higher authority")
	}
	if c.Severity == types.SeverityCritical {
		reasons = append(reasons, "critical severity")
	}
	if probability < escalationThreshold {
		reasons = append(reasons, fmt.Sprintf("success probability %.2f below %.2f", probability, escalationThreshold))
	}
	to := c.EscalationLevel.Next()
	return &EscalationPath{
		From:      c.EscalationLevel,
		To:        to,
		Authority: to.Authority(),
		Reason:    strings.Join(reasons, "; "),
	}
}

func stepDeadline(s types.Severity) time.Duration {
	switch s {
	case types.SeverityCritical:
		return time.Hour
	case types.SeverityHigh:
		return 4 * time.Hour
	case types.SeverityMedium:
		return 24 * time.Hour
	default:
		return 72 * time.Hour
	}
}

func mediatorFor(c AgentConflict) string {
	return c.EscalationLevel.Authority()
}

func buildActions(c AgentConflict, strategy Strategy, path *EscalationPath) []Action {
	agents := strings.Join(c.InvolvedAgents, ", ")
	subject := c.Context.Description
	if len(c.Context.ContestedResources) > 0 {
		subject = strings.Join(c.Context.ContestedResources, ", ")
	}
	if subject == "" {
		subject = string(c.Type)
	}

	type step struct{ kind, desc, assignee string }
	var steps []step
	switch strategy {
	case StrategyMediation:
		steps = []step{
			{"identify_interests", fmt.Sprintf("each of %s states interests in %s", agents, subject), "involved_agents"},
			{"appoint_mediator", "assign a neutral mediator", mediatorFor(c)},
			{"joint_session", fmt.Sprintf("facilitated session between %s", agents), mediatorFor(c)},
			{"record_agreement", "record the mediated agreement", mediatorFor(c)},
		}
	case StrategyArbitration:
		arbiter := c.EscalationLevel.Next().Authority()
		steps = []step{
			{"collect_positions", fmt.Sprintf("collect written positions on %s", subject), "involved_agents"},
			{"arbiter_decision", "arbiter issues a binding decision", arbiter},
			{"communicate_decision", fmt.Sprintf("notify %s of the decision", agents), arbiter},
		}
	case StrategyCompromise:
		steps = []step{
			{"identify_common_ground", fmt.Sprintf("list shared requirements for %s", subject), "involved_agents"},
			{"split_difference", "agree on a middle-ground approach", "involved_agents"},
			{"confirm_agreement", "confirm the compromise with all parties", mediatorFor(c)},
		}
	default:
		authority := c.EscalationLevel.Next().Authority()
		if path != nil {
			authority = path.Authority
		}
		steps = []step{
			{"freeze_contested_work", fmt.Sprintf("pause changes to %s", subject), "involved_agents"},
			{"escalate", fmt.Sprintf("hand the conflict to %s", authority), mediatorFor(c)},
			{"await_decision", "apply the decision once issued", authority},
		}
	}

	base := stepDeadline(c.Severity)
	actions := make([]Action, 0, len(steps))
	for i, s := range steps {
		actions = append(actions, Action{
			ID:          fmt.Sprintf("%s-%d", c.ID, i+1),
			Type:        s.kind,
			Description: s.desc,
			Assignee:    s.assignee,
			Order:       i + 1,
			Deadline:    base * time.Duration(i+1),
		})
	}
	return actions
}

func buildFollowUps(c AgentConflict, strategy Strategy, path *EscalationPath) []FollowUp {
	base := stepDeadline(c.Severity)
	followUps := []FollowUp{{
		Description: fmt.Sprintf("verify the %s outcome holds", strategy),
		Owner:       mediatorFor(c),
		Due:         base * 3,
	}}
	if path != nil {
		followUps = append(followUps, FollowUp{
			Description: fmt.Sprintf("report the %s decision back to the agents", path.To),
			Owner:       path.Authority,
			Due:         base * 2,
		})
	}
	if len(c.Impact.AffectedTasks) > 0 {
		followUps = append(followUps, FollowUp{
			Description: "re-plan affected tasks: " + strings.Join(c.Impact.AffectedTasks, ", "),
			Owner:       "involved_agents",
			Due:         base * 2,
		})
	}
	return followUps
}

func elaborationPayload(c AgentConflict, strategy Strategy, probability float64) map[string]any {
	return map[string]any{
		"conflict_id":         c.ID,
		"type":                string(c.Type),
		"severity":            string(c.Severity),
		"involved_agents":     append([]string(nil), c.InvolvedAgents...),
		"description":         c.Context.Description,
		"strategy":            string(strategy),
		"success_probability": probability,
	}
}
