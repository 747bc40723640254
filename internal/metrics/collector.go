// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/BaSui01/collabengine/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector Prometheus 指标收集器，同时作为 metrics.Sink 接收引擎事件
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 引擎操作指标
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	conflictsTotal    *prometheus.CounterVec
	deliveriesTotal   *prometheus.CounterVec
	negotiationRounds *prometheus.HistogramVec

	// 会话与数据库指标
	agentSessions     prometheus.Gauge
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

var _ metrics.Sink = (*Collector)(nil)

// NewCollector 创建指标收集器，指标注册到默认 Registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer, namespace, logger)
}

// NewCollectorWith 将指标注册到指定的 Registerer
func NewCollectorWith(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 引擎操作指标
	c.operationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of completed engine operations",
		},
		[]string{"operation", "status"},
	)

	c.operationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Engine operation duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
		},
		[]string{"operation"},
	)

	c.conflictsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Total number of handled conflicts by type",
		},
		[]string{"conflict_type", "status"},
	)

	c.deliveriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_deliveries_total",
			Help:      "Broadcast recipient outcomes",
		},
		[]string{"outcome"}, // delivered, acknowledged, failed
	)

	c.negotiationRounds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "negotiation_rounds",
			Help:      "Rounds run per negotiation",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		},
		[]string{"status"},
	)

	c.agentSessions = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "agent_sessions_active",
		Help:      "Number of connected agent WebSocket sessions",
	})

	// 数据库指标
	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🤝 引擎事件
// =============================================================================

// Observe 实现 metrics.Sink
func (c *Collector) Observe(ev metrics.Event) {
	op := string(ev.Operation)
	c.operationsTotal.WithLabelValues(op, ev.Status).Inc()
	c.operationDuration.WithLabelValues(op).Observe(ev.Duration.Seconds())

	switch ev.Operation {
	case metrics.OpConflictResolution:
		c.conflictsTotal.WithLabelValues(ev.ConflictType, ev.Status).Inc()
	case metrics.OpBroadcast:
		c.deliveriesTotal.WithLabelValues("delivered").Add(float64(ev.Delivered))
		c.deliveriesTotal.WithLabelValues("acknowledged").Add(float64(ev.Acknowledged))
		c.deliveriesTotal.WithLabelValues("failed").Add(float64(ev.Failed))
	case metrics.OpNegotiation:
		c.negotiationRounds.WithLabelValues(ev.Status).Observe(float64(ev.Rounds))
	}
}

// SessionOpened 记录 Agent 会话建立
func (c *Collector) SessionOpened() { c.agentSessions.Inc() }

// SessionClosed 记录 Agent 会话断开
func (c *Collector) SessionClosed() { c.agentSessions.Dec() }

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码归类为 2xx/3xx/4xx/5xx
func statusCode(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
