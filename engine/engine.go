package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/collabengine/advisor"
	"github.com/BaSui01/collabengine/broadcast"
	"github.com/BaSui01/collabengine/collaboration"
	"github.com/BaSui01/collabengine/config"
	"github.com/BaSui01/collabengine/conflict"
	"github.com/BaSui01/collabengine/coordination"
	"github.com/BaSui01/collabengine/metrics"
	"github.com/BaSui01/collabengine/negotiation"
	"github.com/BaSui01/collabengine/store"
	"github.com/BaSui01/collabengine/types"
)

const instrumentationName = "collabengine/engine"

// Engine 协作引擎门面
type Engine struct {
	cfg    config.EngineConfig
	logger *zap.Logger
	tracer trace.Tracer

	aggregator     *metrics.Aggregator
	advisor        *advisor.Client
	registry       *collaboration.Registry
	collaborations *collaboration.Facilitator
	resolver       *conflict.Resolver
	coordinator    *coordination.Coordinator
	dispatcher     *broadcast.Dispatcher
	negotiations   *negotiation.Facilitator
	hub            *broadcast.Hub
	records        store.Store

	// slots 限制同时进行的协作规划与谈判
	slots *semaphore.Weighted

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ broadcast.AckHandler = (*Engine)(nil)

// New 根据配置创建引擎
func New(cfg config.EngineConfig, opts ...Option) (*Engine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tp := o.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	e := &Engine{
		cfg:        cfg,
		logger:     logger.With(zap.String("component", "engine")),
		tracer:     tp.Tracer(instrumentationName),
		aggregator: metrics.NewAggregator(o.sinks...),
		records:    o.records,
		slots:      semaphore.NewWeighted(int64(cfg.MaxConcurrentCollaborations)),
	}
	if e.records == nil {
		e.records = store.NewMemoryStore()
	}

	e.advisor = advisor.NewClient(o.advisor, advisor.Config{
		Timeout:             cfg.Advisor.Timeout,
		MaxRetries:          cfg.Advisor.MaxRetries,
		InitialBackoff:      cfg.Advisor.InitialBackoff,
		BreakerThreshold:    cfg.Advisor.BreakerThreshold,
		BreakerResetTimeout: cfg.Advisor.BreakerResetTimeout,
	}, logger)

	directory := o.directory
	if directory == nil {
		e.registry = collaboration.NewRegistry(logger)
		directory = e.registry
	}
	e.collaborations = collaboration.NewFacilitator(directory, e.advisor, collaboration.Config{
		AutoConflictResolution: cfg.AutoConflictResolution,
		QualityThreshold:       cfg.CollaborationQualityThreshold,
	}, logger)

	e.resolver = conflict.NewResolver(e.aggregator, e.advisor, conflict.Config{
		AutoResolution:     cfg.AutoConflictResolution,
		ElaborationTimeout: minutes(cfg.ConflictResolutionTimeoutMinutes),
	}, logger)

	e.coordinator = coordination.NewCoordinator(logger)

	deliverer := o.deliverer
	if deliverer == nil {
		e.hub = broadcast.NewHub(cfg.Broadcast.MailboxSize, logger)
		deliverer = e.hub
	}
	e.dispatcher = broadcast.NewDispatcher(deliverer, o.ledger, broadcast.Config{
		MaxAttempts:    cfg.Broadcast.MaxAttempts,
		InitialBackoff: cfg.Broadcast.InitialBackoff,
		MaxBackoff:     cfg.Broadcast.MaxBackoff,
		AckTimeout:     cfg.Broadcast.AckTimeout,
		MaxFanout:      cfg.Broadcast.MaxFanout,
	}, logger)

	e.negotiations = negotiation.NewFacilitator(o.responder, e.advisor, negotiation.Config{
		RoundsLimit:        cfg.NegotiationRoundsLimit,
		RoundTimeout:       cfg.NegotiationRoundTimeout,
		ConsensusThreshold: cfg.ConsensusThreshold,
	}, logger)

	e.logger.Info("engine initialized",
		zap.Int("max_concurrent_collaborations", cfg.MaxConcurrentCollaborations),
		zap.Bool("advisor_configured", o.advisor != nil),
		zap.Bool("in_process_hub", e.hub != nil),
	)
	return e, nil
}

func validateConfig(cfg config.EngineConfig) error {
	if cfg.MaxConcurrentCollaborations <= 0 {
		return types.NewError(types.ErrInvalidInput, "max_concurrent_collaborations must be positive")
	}
	if cfg.CollaborationTimeoutMinutes <= 0 {
		return types.NewError(types.ErrInvalidInput, "collaboration_timeout_minutes must be positive")
	}
	if cfg.ConflictResolutionTimeoutMinutes <= 0 {
		return types.NewError(types.ErrInvalidInput, "conflict_resolution_timeout_minutes must be positive")
	}
	if cfg.ConsensusThreshold < 0 || cfg.ConsensusThreshold > 1 {
		return types.NewError(types.ErrInvalidInput, "consensus_threshold must be within [0,1]")
	}
	if cfg.CollaborationQualityThreshold < 0 || cfg.CollaborationQualityThreshold > 1 {
		return types.NewError(types.ErrInvalidInput, "collaboration_quality_threshold must be within [0,1]")
	}
	return nil
}

func minutes(n int) time.Duration { return time.Duration(n) * time.Minute }

// Hub 返回进程内投递 Hub，使用自定义 Deliverer 时为 nil
func (e *Engine) Hub() *broadcast.Hub { return e.hub }

// Registry 返回默认 Agent 目录，使用自定义 Directory 时为 nil
func (e *Engine) Registry() *collaboration.Registry { return e.registry }

// Ledger 返回广播投递台账
func (e *Engine) Ledger() broadcast.Ledger { return e.dispatcher.Ledger() }

// =============================================================================
// Operations
// =============================================================================

// FacilitateCollaboration 为一组 Agent 生成协作计划
func (e *Engine) FacilitateCollaboration(ctx context.Context, agentIDs []string, goal collaboration.CollaborationGoal) (*collaboration.CollaborationPlan, error) {
	ctx, span := e.startSpan(ctx, "engine.facilitate_collaboration",
		attribute.String("goal.id", goal.ID),
		attribute.Int("agents", len(agentIDs)),
	)
	defer span.End()

	if err := e.checkOpen(); err != nil {
		return nil, endSpan(span, err)
	}
	release, err := e.acquire(ctx, "collaboration")
	if err != nil {
		return nil, endSpan(span, err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, minutes(e.cfg.CollaborationTimeoutMinutes))
	defer cancel()

	start := time.Now()
	plan, err := e.collaborations.Facilitate(ctx, agentIDs, goal)
	if err != nil {
		e.logger.Warn("collaboration rejected", zap.String("goal_id", goal.ID), zap.Error(err))
		return nil, endSpan(span, err)
	}
	e.aggregator.RecordCollaboration(time.Since(start), plan.AdvisorUsed)
	span.SetAttributes(
		attribute.String("plan.id", plan.ID),
		attribute.String("plan.topology", string(plan.Topology)),
		attribute.Bool("advisor.used", plan.AdvisorUsed),
	)

	status := "planned"
	if len(plan.UncoveredSkills) > 0 {
		status = "skills_uncovered"
	}
	e.persist(ctx, store.KindCollaborationPlan, plan.ID, status, plan)
	return plan, nil
}

// ResolveAgentConflicts 为冲突生成解决方案
func (e *Engine) ResolveAgentConflicts(ctx context.Context, c conflict.AgentConflict) (*conflict.Resolution, error) {
	ctx, span := e.startSpan(ctx, "engine.resolve_conflict",
		attribute.String("conflict.id", c.ID),
		attribute.String("conflict.type", string(c.Type)),
		attribute.String("conflict.severity", string(c.Severity)),
	)
	defer span.End()

	if err := e.checkOpen(); err != nil {
		return nil, endSpan(span, err)
	}
	ctx, cancel := context.WithTimeout(ctx, minutes(e.cfg.ConflictResolutionTimeoutMinutes))
	defer cancel()

	res, err := e.resolver.Resolve(ctx, c)
	if err != nil {
		e.logger.Warn("conflict rejected", zap.String("conflict_id", c.ID), zap.Error(err))
		return nil, endSpan(span, err)
	}
	e.aggregator.RecordConflict(string(res.ConflictType), res.EscalationRequired, res.Duration)
	span.SetAttributes(
		attribute.String("resolution.strategy", string(res.Strategy)),
		attribute.Bool("resolution.escalated", res.EscalationRequired),
	)

	status := "resolved"
	if res.EscalationRequired {
		status = "escalated"
	}
	e.persist(ctx, store.KindConflictResolution, res.ID, status, res)
	return res, nil
}

// CoordinateComplexTasks 为带依赖的复杂任务生成协调计划
func (e *Engine) CoordinateComplexTasks(ctx context.Context, task coordination.ComplexTask) (*coordination.Plan, error) {
	ctx, span := e.startSpan(ctx, "engine.coordinate_task",
		attribute.String("task.id", task.ID),
		attribute.Int("subtasks", len(task.Subtasks)),
	)
	defer span.End()

	if err := e.checkOpen(); err != nil {
		return nil, endSpan(span, err)
	}
	start := time.Now()
	plan, err := e.coordinator.Coordinate(ctx, task)
	if err != nil {
		e.logger.Warn("task coordination rejected", zap.String("task_id", task.ID), zap.Error(err))
		return nil, endSpan(span, err)
	}
	e.aggregator.RecordCoordination(time.Since(start))
	span.SetAttributes(attribute.String("plan.strategy", string(plan.Strategy)))

	status := "scheduled"
	if plan.DeadlineAtRisk {
		status = "deadline_at_risk"
	}
	e.persist(ctx, store.KindCoordinationPlan, plan.ID, status, plan)
	return plan, nil
}

// BroadcastMessage 向所有收件人投递系统消息
func (e *Engine) BroadcastMessage(ctx context.Context, msg broadcast.SystemMessage) (*broadcast.Result, error) {
	ctx, span := e.startSpan(ctx, "engine.broadcast",
		attribute.String("message.type", string(msg.Type)),
		attribute.Int("recipients", len(msg.Recipients)),
		attribute.Bool("ack_required", msg.Delivery.AcknowledgmentRequired),
	)
	defer span.End()

	if err := e.checkOpen(); err != nil {
		return nil, endSpan(span, err)
	}
	start := time.Now()
	res, err := e.dispatcher.Broadcast(ctx, msg)
	if err != nil {
		e.logger.Warn("broadcast rejected", zap.String("message_id", msg.ID), zap.Error(err))
		return nil, endSpan(span, err)
	}
	e.aggregator.RecordBroadcast(time.Since(start),
		len(res.RecipientsReached), len(res.AcknowledgmentsReceived), len(res.FailedDeliveries))
	span.SetAttributes(
		attribute.String("message.id", res.MessageID),
		attribute.Int("recipients.failed", len(res.FailedDeliveries)),
	)

	status := "delivered"
	if len(res.FailedDeliveries) > 0 {
		status = "partial"
	}
	e.persist(ctx, store.KindBroadcastResult, res.BroadcastID, status, res)
	return res, nil
}

// Acknowledge 记录收件人的确认，实现 broadcast.AckHandler
func (e *Engine) Acknowledge(ctx context.Context, messageID, recipient string) error {
	return e.dispatcher.Acknowledge(ctx, messageID, recipient)
}

// RecordReadReceipt 记录收件人的已读回执
func (e *Engine) RecordReadReceipt(ctx context.Context, messageID, recipient string) error {
	return e.dispatcher.RecordReadReceipt(ctx, messageID, recipient)
}

// FacilitateNegotiation 运行多轮谈判
func (e *Engine) FacilitateNegotiation(ctx context.Context, neg negotiation.AgentNegotiation) (*negotiation.Result, error) {
	ctx, span := e.startSpan(ctx, "engine.facilitate_negotiation",
		attribute.String("negotiation.id", neg.ID),
		attribute.Int("agents", len(neg.ParticipatingAgents)),
	)
	defer span.End()

	if err := e.checkOpen(); err != nil {
		return nil, endSpan(span, err)
	}
	start := time.Now()
	var res *negotiation.Result
	release, err := e.acquire(ctx, "negotiation")
	if err != nil {
		// 等待槽位超时属于谈判结果，不是硬错误
		res, err = e.negotiations.TimedOut(neg, "negotiation waited for a free slot until its deadline")
	} else {
		defer release()
		res, err = e.negotiations.Facilitate(ctx, neg)
	}
	if err != nil {
		e.logger.Warn("negotiation rejected", zap.String("negotiation_id", neg.ID), zap.Error(err))
		return nil, endSpan(span, err)
	}
	agreement := res.OutcomeStatus == negotiation.OutcomeAgreement
	e.aggregator.RecordNegotiation(string(res.OutcomeStatus), agreement, len(res.History), time.Since(start))
	span.SetAttributes(
		attribute.String("negotiation.outcome", string(res.OutcomeStatus)),
		attribute.Int("negotiation.rounds", len(res.History)),
	)

	e.persist(ctx, store.KindNegotiationResult, res.ID, string(res.OutcomeStatus), res)
	return res, nil
}

// ReportConflictOutcome 反馈某类冲突解决方案的实际效果，影响后续成功概率
func (e *Engine) ReportConflictOutcome(conflictType conflict.Type, success bool) error {
	if conflictType == "" {
		return types.NewError(types.ErrInvalidInput, "conflict type is required")
	}
	e.aggregator.RecordConflictOutcome(string(conflictType), success)
	return nil
}

// GetMetrics 返回指标快照
func (e *Engine) GetMetrics() metrics.Snapshot {
	return e.aggregator.Snapshot()
}

// Record 读取已持久化的操作结果
func (e *Engine) Record(ctx context.Context, kind store.Kind, id string) (store.Record, error) {
	if !kind.Valid() {
		return store.Record{}, types.Errorf(types.ErrInvalidInput, "unknown record kind %q", kind)
	}
	return e.records.Get(ctx, kind, id)
}

// Records 按时间倒序列出某类结果
func (e *Engine) Records(ctx context.Context, kind store.Kind, limit int) ([]store.Record, error) {
	if !kind.Valid() {
		return nil, types.Errorf(types.ErrInvalidInput, "unknown record kind %q", kind)
	}
	return e.records.List(ctx, kind, limit)
}

// Ping 检查结果存储是否可用
func (e *Engine) Ping(ctx context.Context) error {
	return e.records.Ping(ctx)
}

// Close 释放引擎持有的资源，可重复调用
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		var errs []error
		if e.hub != nil {
			errs = append(errs, e.hub.Close())
		}
		errs = append(errs, e.records.Close())
		e.closeErr = errors.Join(errs...)
		e.logger.Info("engine closed")
	})
	return e.closeErr
}

// =============================================================================
// Helpers
// =============================================================================

func (e *Engine) checkOpen() error {
	if e.closed.Load() {
		return types.NewError(types.ErrInternalError, "engine is closed")
	}
	return nil
}

// acquire 占用一个并发槽位，调用方 context 先到期时返回 OPERATION_TIMEOUT
func (e *Engine) acquire(ctx context.Context, op string) (func(), error) {
	if err := e.slots.Acquire(ctx, 1); err != nil {
		e.logger.Warn("no collaboration slot available",
			zap.String("operation", op),
			zap.Int("ceiling", e.cfg.MaxConcurrentCollaborations),
			zap.Error(err),
		)
		return nil, types.Errorf(types.ErrOperationTimeout,
			"%s waited for a free slot until its deadline", op).WithCause(err)
	}
	return func() { e.slots.Release(1) }, nil
}

// persist 写入结果存储，失败只记录日志
func (e *Engine) persist(ctx context.Context, kind store.Kind, id, status string, result any) {
	rec, err := store.NewRecord(kind, id, status, result)
	if err == nil {
		err = e.records.Save(context.WithoutCancel(ctx), rec)
	}
	if err != nil {
		e.logger.Warn("failed to persist result",
			zap.String("kind", string(kind)),
			zap.String("id", id),
			zap.Error(err),
		)
	}
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if code := types.GetErrorCode(err); code != "" {
		span.SetAttributes(attribute.String("error.code", string(code)))
	}
	return err
}
