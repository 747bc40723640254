package coordination

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/collabengine/types"
)

// Coordinator 复杂任务协调器，无内部状态
type Coordinator struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewCoordinator 创建任务协调器
func NewCoordinator(logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		logger: logger.With(zap.String("component", "task_coordinator")),
		now:    time.Now,
	}
}

// Coordinate 生成执行顺序、同步点与分配方案。
// 依赖环在任何其他处理之前检查。
func (c *Coordinator) Coordinate(ctx context.Context, task ComplexTask) (*Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewError(types.ErrOperationTimeout, "coordination cancelled").WithCause(err)
	}

	g := buildGraph(task.Subtasks)
	if cycle := g.findCycle(); cycle != nil {
		c.logger.Warn("task rejected: cyclic dependency",
			zap.String("task_id", task.ID),
			zap.Strings("cycle", cycle),
		)
		return nil, cycleError(cycle)
	}
	if err := validateTask(task); err != nil {
		return nil, err
	}

	byID := make(map[string]Subtask, len(task.Subtasks))
	for _, st := range task.Subtasks {
		byID[st.ID] = st
	}

	order := g.topoOrder()
	stages, stageOf := buildStages(g, order)
	schedule, critical, total := buildSchedule(g, order, byID, stageOf)

	plan := &Plan{
		ID:                uuid.NewString(),
		TaskID:            task.ID,
		Strategy:          classify(g),
		ExecutionSequence: order,
		Stages:            stages,
		SyncPoints:        syncPoints(g, order),
		AgentAssignments:  assignments(task.RequiredAgents, order, byID),
		Schedule:          schedule,
		CriticalPath:      critical,
		EstimatedDuration: total,
		CreatedAt:         c.now(),
	}
	if !task.Deadline.IsZero() {
		plan.DeadlineAtRisk = plan.CreatedAt.Add(total).After(task.Deadline)
	}

	interval := total / 10
	if interval < 15*time.Minute {
		interval = 15 * time.Minute
	}
	if total == 0 {
		interval = time.Hour
	}
	handoffs := handoffsFor(g, order, byID)
	channels := []string{"task:" + task.ID}
	if len(handoffs) > 0 {
		channels = append(channels, "handoff_notifications")
	}
	plan.Communication = CommunicationPlan{
		Channels:             channels,
		Handoffs:             handoffs,
		StatusUpdateInterval: interval,
	}
	checkpoints := make([]string, 0, len(plan.SyncPoints))
	for _, sp := range plan.SyncPoints {
		checkpoints = append(checkpoints, sp.SubtaskID)
	}
	plan.Monitoring = MonitoringFramework{
		Checkpoints:      checkpoints,
		Metrics:          []string{"subtask_completion_rate", "critical_path_slack", "handoff_latency"},
		ProgressInterval: interval,
		DeadlineAlerts:   !task.Deadline.IsZero(),
	}

	c.logger.Info("task coordinated",
		zap.String("task_id", task.ID),
		zap.Int("subtasks", len(order)),
		zap.String("strategy", string(plan.Strategy)),
		zap.Int("sync_points", len(plan.SyncPoints)),
		zap.Duration("estimated_duration", total),
	)
	return plan, nil
}

func validateTask(task ComplexTask) error {
	if strings.TrimSpace(task.ID) == "" {
		return types.NewError(types.ErrInvalidInput, "task id is required")
	}
	if len(task.Subtasks) == 0 {
		return types.NewError(types.ErrInvalidInput, "task needs at least one subtask")
	}
	ids := make(map[string]bool, len(task.Subtasks))
	for _, st := range task.Subtasks {
		if strings.TrimSpace(st.ID) == "" {
			return types.NewError(types.ErrInvalidInput, "subtask id is required")
		}
		if ids[st.ID] {
			return types.Errorf(types.ErrInvalidInput, "duplicate subtask id %q", st.ID)
		}
		if st.EstimatedDuration < 0 {
			return types.Errorf(types.ErrInvalidInput, "subtask %q has a negative duration", st.ID)
		}
		ids[st.ID] = true
	}
	for _, st := range task.Subtasks {
		for _, d := range st.Dependencies {
			if !ids[d] {
				return types.Errorf(types.ErrInvalidInput, "subtask %q depends on unknown subtask %q", st.ID, d)
			}
		}
	}

	agents := make(map[string]bool, len(task.RequiredAgents))
	for _, a := range task.RequiredAgents {
		agents[a] = true
	}
	for _, st := range task.Subtasks {
		if !agents[st.AssignedAgent] {
			return types.Errorf(types.ErrUnassignedAgentMismatch,
				"subtask %q is assigned to %q which is not a required agent", st.ID, st.AssignedAgent).
				WithDetail("subtask_id", st.ID).
				WithDetail("agent_id", st.AssignedAgent)
		}
	}
	return nil
}

func classify(g *graph) Strategy {
	edges := 0
	for _, id := range g.ids {
		edges += len(g.deps[id])
		if len(g.deps[id]) > 1 || len(g.succ[id]) > 1 {
			return StrategyDAG
		}
	}
	switch {
	case len(g.ids) <= 1 || edges == len(g.ids)-1:
		return StrategySequential
	case edges == 0:
		return StrategyParallel
	default:
		return StrategyDAG
	}
}

// buildStages 按依赖层级划分可并行的阶段
func buildStages(g *graph, order []string) ([][]string, map[string]int) {
	stageOf := make(map[string]int, len(order))
	maxStage := 0
	for _, id := range order {
		s := 0
		for _, d := range g.deps[id] {
			if stageOf[d]+1 > s {
				s = stageOf[d] + 1
			}
		}
		stageOf[id] = s
		if s > maxStage {
			maxStage = s
		}
	}
	stages := make([][]string, maxStage+1)
	if len(order) == 0 {
		return nil, stageOf
	}
	for _, id := range order {
		stages[stageOf[id]] = append(stages[stageOf[id]], id)
	}
	return stages, stageOf
}

// buildSchedule 关键路径法：只考虑依赖约束，不考虑同一 Agent 的串行占用
func buildSchedule(g *graph, order []string, byID map[string]Subtask, stageOf map[string]int) ([]ScheduledSubtask, []string, time.Duration) {
	es := make(map[string]time.Duration, len(order))
	ef := make(map[string]time.Duration, len(order))
	var total time.Duration
	for _, id := range order {
		var start time.Duration
		for _, d := range g.deps[id] {
			if ef[d] > start {
				start = ef[d]
			}
		}
		es[id] = start
		ef[id] = start + byID[id].EstimatedDuration
		if ef[id] > total {
			total = ef[id]
		}
	}

	lf := make(map[string]time.Duration, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		latest := total
		for _, s := range g.succ[id] {
			if ls := lf[s] - byID[s].EstimatedDuration; ls < latest {
				latest = ls
			}
		}
		lf[id] = latest
	}

	schedule := make([]ScheduledSubtask, 0, len(order))
	for _, id := range order {
		slack := lf[id] - ef[id]
		schedule = append(schedule, ScheduledSubtask{
			SubtaskID:      id,
			AgentID:        byID[id].AssignedAgent,
			Stage:          stageOf[id],
			EarliestStart:  es[id],
			EarliestFinish: ef[id],
			Slack:          slack,
			Critical:       slack == 0,
		})
	}

	// 从最晚完成的节点沿最晚完成的前驱回溯
	var path []string
	tail := ""
	for _, id := range order {
		if tail == "" || ef[id] > ef[tail] {
			tail = id
		}
	}
	for tail != "" {
		path = append(path, tail)
		prev := ""
		for _, d := range g.deps[tail] {
			if prev == "" || ef[d] > ef[prev] {
				prev = d
			}
		}
		tail = prev
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return schedule, path, total
}

func syncPoints(g *graph, order []string) []SyncPoint {
	var points []SyncPoint
	for _, id := range order {
		in, out := len(g.deps[id]), len(g.succ[id])
		var kind SyncKind
		switch {
		case in > 1 && out > 1:
			kind = SyncFanInOut
		case in > 1:
			kind = SyncFanIn
		case out > 1:
			kind = SyncFanOut
		default:
			continue
		}
		sp := SyncPoint{SubtaskID: id, Kind: kind}
		if in > 1 {
			sp.WaitsFor = append([]string(nil), g.deps[id]...)
		}
		if out > 1 {
			sp.Releases = append([]string(nil), g.succ[id]...)
		}
		points = append(points, sp)
	}
	return points
}

func assignments(requiredAgents []string, order []string, byID map[string]Subtask) []AgentAssignment {
	idx := make(map[string]int, len(requiredAgents))
	out := make([]AgentAssignment, 0, len(requiredAgents))
	for _, a := range requiredAgents {
		if _, dup := idx[a]; dup {
			continue
		}
		idx[a] = len(out)
		out = append(out, AgentAssignment{AgentID: a, Subtasks: []string{}})
	}
	for _, id := range order {
		st := byID[id]
		i := idx[st.AssignedAgent]
		out[i].Subtasks = append(out[i].Subtasks, id)
		out[i].TotalDuration += st.EstimatedDuration
	}
	for i := range out {
		out[i].Idle = len(out[i].Subtasks) == 0
	}
	return out
}

func handoffsFor(g *graph, order []string, byID map[string]Subtask) []Handoff {
	var handoffs []Handoff
	for _, id := range order {
		for _, d := range g.deps[id] {
			from, to := byID[d].AssignedAgent, byID[id].AssignedAgent
			if from == to {
				continue
			}
			handoffs = append(handoffs, Handoff{FromSubtask: d, ToSubtask: id, FromAgent: from, ToAgent: to})
		}
	}
	return handoffs
}
