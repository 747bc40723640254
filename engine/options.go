package engine

import (
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/collabengine/advisor"
	"github.com/BaSui01/collabengine/broadcast"
	"github.com/BaSui01/collabengine/collaboration"
	"github.com/BaSui01/collabengine/metrics"
	"github.com/BaSui01/collabengine/negotiation"
	"github.com/BaSui01/collabengine/store"
)

// Option 配置 Engine
type Option func(*options)

type options struct {
	logger         *zap.Logger
	advisor        advisor.Advisor
	directory      collaboration.Directory
	deliverer      broadcast.Deliverer
	ledger         broadcast.Ledger
	records        store.Store
	responder      negotiation.Responder
	sinks          []metrics.Sink
	tracerProvider trace.TracerProvider
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithAdvisor 设置能力顾问，未设置时所有组件使用确定性兜底
func WithAdvisor(a advisor.Advisor) Option {
	return func(o *options) { o.advisor = a }
}

// WithDirectory 设置 Agent 能力目录，默认使用空的内存目录
func WithDirectory(d collaboration.Directory) Option {
	return func(o *options) { o.directory = d }
}

// WithDeliverer 设置广播传输，默认使用进程内 Hub
func WithDeliverer(d broadcast.Deliverer) Option {
	return func(o *options) { o.deliverer = d }
}

// WithLedger 设置投递台账，默认使用内存台账
func WithLedger(l broadcast.Ledger) Option {
	return func(o *options) { o.ledger = l }
}

// WithRecordStore 设置结果存储，默认使用内存存储
func WithRecordStore(s store.Store) Option {
	return func(o *options) { o.records = s }
}

// WithResponder 设置谈判回应来源，默认按利益模型自动回应
func WithResponder(r negotiation.Responder) Option {
	return func(o *options) { o.responder = r }
}

// WithSinks 追加指标出口
func WithSinks(sinks ...metrics.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, sinks...) }
}

// WithTracerProvider 设置 TracerProvider，默认使用全局 provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}
