package metrics

import (
	"sync"
	"time"
)

// Operation 引擎操作类型
type Operation string

const (
	OpCollaboration      Operation = "collaboration"
	OpConflictResolution Operation = "conflict_resolution"
	OpTaskCoordination   Operation = "task_coordination"
	OpBroadcast          Operation = "broadcast"
	OpNegotiation        Operation = "negotiation"
)

// Event 单次操作完成事件，推送给所有 Sink
type Event struct {
	Operation    Operation
	Status       string
	Duration     time.Duration
	ConflictType string
	Delivered    int
	Acknowledged int
	Failed       int
	Rounds       int
}

// Sink 外部指标出口（Prometheus、OpenTelemetry 等）
type Sink interface {
	Observe(ev Event)
}

// ConflictTypeStats 某类冲突的历史解决统计。
// Observed 为处理次数；Total/Successful/Rate 只来自调用方反馈的实际结果，
// 策略表强制的升级不计入成功率。
type ConflictTypeStats struct {
	Observed   int64   `json:"observed"`
	Total      int64   `json:"total"`
	Successful int64   `json:"successful"`
	Rate       float64 `json:"rate"`
}

// Snapshot 指标快照
type Snapshot struct {
	CollaborationsFacilitated     int64                        `json:"collaborations_facilitated"`
	ConflictsResolved             int64                        `json:"conflicts_resolved"`
	ConflictsEscalated            int64                        `json:"conflicts_escalated"`
	ComplexTasksCoordinated       int64                        `json:"complex_tasks_coordinated"`
	MessagesBroadcast             int64                        `json:"messages_broadcast"`
	DeliveriesSucceeded           int64                        `json:"deliveries_succeeded"`
	DeliveriesAcknowledged        int64                        `json:"deliveries_acknowledged"`
	DeliveriesFailed              int64                        `json:"deliveries_failed"`
	NegotiationsCompleted         int64                        `json:"negotiations_completed"`
	NegotiationAgreements         int64                        `json:"negotiation_agreements"`
	AverageSuccessRate            float64                      `json:"average_success_rate"`
	AverageConflictResolutionTime time.Duration                `json:"average_conflict_resolution_time"`
	ConflictHistory               map[string]ConflictTypeStats `json:"conflict_history"`
	LastUpdated                   time.Time                    `json:"last_updated"`
}

// Aggregator 引擎指标聚合器，并发安全
type Aggregator struct {
	mu sync.RWMutex

	collaborations int64
	conflicts      int64
	escalated      int64
	tasks          int64
	broadcasts     int64
	delivered      int64
	acknowledged   int64
	failed         int64
	negotiations   int64
	agreements     int64

	outcomeAttempts  int64
	outcomeSuccesses int64
	conflictDuration time.Duration
	history          map[string]*ConflictTypeStats
	lastUpdated      time.Time

	sinks []Sink
	now   func() time.Time
}

// NewAggregator 创建聚合器
func NewAggregator(sinks ...Sink) *Aggregator {
	return &Aggregator{
		history: make(map[string]*ConflictTypeStats),
		sinks:   sinks,
		now:     time.Now,
	}
}

// AddSink 注册指标出口
func (a *Aggregator) AddSink(s Sink) {
	if s == nil {
		return
	}
	a.mu.Lock()
	a.sinks = append(a.sinks, s)
	a.mu.Unlock()
}

// RecordCollaboration 记录一次协作规划
func (a *Aggregator) RecordCollaboration(d time.Duration, advisorUsed bool) {
	status := "fallback"
	if advisorUsed {
		status = "advised"
	}
	a.update(func() { a.collaborations++ },
		Event{Operation: OpCollaboration, Status: status, Duration: d})
}

// RecordConflict 记录一次冲突处理，未升级视为成功的自动解决。
// 只累计 Observed，不影响历史成功率。
func (a *Aggregator) RecordConflict(conflictType string, escalated bool, d time.Duration) {
	status := "resolved"
	if escalated {
		status = "escalated"
	}
	a.update(func() {
		a.conflicts++
		a.conflictDuration += d
		a.outcomeAttempts++
		if escalated {
			a.escalated++
		} else {
			a.outcomeSuccesses++
		}
		a.typeStatsLocked(conflictType).Observed++
	}, Event{Operation: OpConflictResolution, Status: status, Duration: d, ConflictType: conflictType})
}

// RecordConflictOutcome 调用方反馈某次解决方案的实际结果
func (a *Aggregator) RecordConflictOutcome(conflictType string, success bool) {
	a.mu.Lock()
	a.recordHistoryLocked(conflictType, success)
	a.lastUpdated = a.now()
	a.mu.Unlock()
}

func (a *Aggregator) typeStatsLocked(conflictType string) *ConflictTypeStats {
	h, ok := a.history[conflictType]
	if !ok {
		h = &ConflictTypeStats{}
		a.history[conflictType] = h
	}
	return h
}

func (a *Aggregator) recordHistoryLocked(conflictType string, success bool) {
	h := a.typeStatsLocked(conflictType)
	h.Total++
	if success {
		h.Successful++
	}
	h.Rate = float64(h.Successful) / float64(h.Total)
}

// HistoricalRate 返回某类冲突的历史成功率，无记录时 ok 为 false
func (a *Aggregator) HistoricalRate(conflictType string) (rate float64, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	h, found := a.history[conflictType]
	if !found || h.Total == 0 {
		return 0, false
	}
	return h.Rate, true
}

// RecordCoordination 记录一次复杂任务协调
func (a *Aggregator) RecordCoordination(d time.Duration) {
	a.update(func() { a.tasks++ },
		Event{Operation: OpTaskCoordination, Status: "ok", Duration: d})
}

// RecordBroadcast 记录一次广播的投递结果
func (a *Aggregator) RecordBroadcast(d time.Duration, delivered, acknowledged, failed int) {
	status := "ok"
	if failed > 0 {
		status = "partial"
	}
	a.update(func() {
		a.broadcasts++
		a.delivered += int64(delivered)
		a.acknowledged += int64(acknowledged)
		a.failed += int64(failed)
	}, Event{Operation: OpBroadcast, Status: status, Duration: d,
		Delivered: delivered, Acknowledged: acknowledged, Failed: failed})
}

// RecordNegotiation 记录一次谈判结果
func (a *Aggregator) RecordNegotiation(status string, agreement bool, rounds int, d time.Duration) {
	a.update(func() {
		a.negotiations++
		a.outcomeAttempts++
		if agreement {
			a.agreements++
			a.outcomeSuccesses++
		}
	}, Event{Operation: OpNegotiation, Status: status, Duration: d, Rounds: rounds})
}

func (a *Aggregator) update(fn func(), ev Event) {
	a.mu.Lock()
	fn()
	a.lastUpdated = a.now()
	sinks := a.sinks
	a.mu.Unlock()

	for _, s := range sinks {
		s.Observe(ev)
	}
}

// Snapshot 返回当前指标的深拷贝，无新事件时多次调用结果一致
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := Snapshot{
		CollaborationsFacilitated: a.collaborations,
		ConflictsResolved:         a.conflicts,
		ConflictsEscalated:        a.escalated,
		ComplexTasksCoordinated:   a.tasks,
		MessagesBroadcast:         a.broadcasts,
		DeliveriesSucceeded:       a.delivered,
		DeliveriesAcknowledged:    a.acknowledged,
		DeliveriesFailed:          a.failed,
		NegotiationsCompleted:     a.negotiations,
		NegotiationAgreements:     a.agreements,
		ConflictHistory:           make(map[string]ConflictTypeStats, len(a.history)),
		LastUpdated:               a.lastUpdated,
	}
	if a.outcomeAttempts > 0 {
		s.AverageSuccessRate = float64(a.outcomeSuccesses) / float64(a.outcomeAttempts)
	}
	if a.conflicts > 0 {
		s.AverageConflictResolutionTime = a.conflictDuration / time.Duration(a.conflicts)
	}
	for k, v := range a.history {
		s.ConflictHistory[k] = *v
	}
	return s
}
